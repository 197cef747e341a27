// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package simplify_test

import (
	"testing"

	"github.com/gx-org/stencil/build/ir"
	ih "github.com/gx-org/stencil/build/ir/irhelper"
	"github.com/gx-org/stencil/build/simplify"
)

func TestExpr(t *testing.T) {
	x := ih.X("x")
	c := ih.Var("c", ir.BoolType())
	tests := []struct {
		name string
		in   ir.Expr
		want ir.Expr
	}{
		{"add zero", ir.NewAdd(x, ih.Int(0)), x},
		{"zero add", ir.NewAdd(ih.Int(0), x), x},
		{"mul one", ir.NewMul(x, ih.Int(1)), x},
		{"mul zero", ir.NewMul(x, ih.Int(0)), ih.Int(0)},
		{"sub self", ir.NewSub(x, x), ih.Int(0)},
		{"div one", ir.NewDiv(x, ih.Int(1)), x},
		{"const div floors", ir.NewDiv(ih.Int(7), ih.Int(2)), ih.Int(3)},
		{"const mod floors", ir.NewMod(ih.Int(-7), ih.Int(4)), ih.Int(1)},
		{"const min", ir.NewMin(ih.Int(3), ih.Int(5)), ih.Int(3)},
		{"min self", ir.NewMin(x, ih.X("x")), x},
		{"true and", ir.NewAnd(&ir.BoolImm{Value: true}, c), c},
		{"false and", ir.NewAnd(c, &ir.BoolImm{Value: false}), &ir.BoolImm{Value: false}},
		{"false or", ir.NewOr(&ir.BoolImm{Value: false}, c), c},
		{"compare self", ir.NewLT(x, ih.X("x")), &ir.BoolImm{Value: false}},
		{"compare self le", ir.NewLE(x, ih.X("x")), &ir.BoolImm{Value: true}},
		{"const compare", ir.NewLT(ih.Int(3), ih.Int(5)), &ir.BoolImm{Value: true}},
		{"neg const", ir.NewNeg(ih.Int(4)), ih.Int(-4)},
		{"double neg", ir.NewNeg(ir.NewNeg(x)), x},
		{"double not", ir.NewNot(ir.NewNot(c)), c},
		{"select const cond", ih.Select(&ir.BoolImm{Value: true}, x, ih.Int(0)), x},
		{"select same branches", ih.Select(c, x, ih.X("x")), x},
		{"cast int to float", ir.NewCast(ih.Int(3), ir.Float64Type()), ih.Float(3)},
		{"cast same type", ir.NewCast(x, ir.IndexType()), x},
		{"let cheap value", &ir.LetExpr{Name: "t", Value: x, Body: ir.NewMul(ih.X("t"), ih.Int(2))}, ir.NewMul(x, ih.Int(2))},
		{"let unused", &ir.LetExpr{Name: "t", Value: ir.NewAdd(x, x), Body: ih.Int(7)}, ih.Int(7)},
		{"float fold", ir.NewAdd(ih.Float(1.5), ih.Float(2)), ih.Float(3.5)},
		{"nested", ir.NewAdd(ir.NewMul(x, ih.Int(1)), ir.NewSub(ih.Int(5), ih.Int(5))), x},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := simplify.Expr(test.in)
			if !ir.Equal(got, test.want) {
				t.Errorf("Expr(%s) = %s, want %s", ir.String(test.in), ir.String(got), ir.String(test.want))
			}
		})
	}
}

func TestExprKeepsDivByZero(t *testing.T) {
	// Division by a constant zero must survive to evaluation, where it is
	// an error, instead of folding to an arbitrary value.
	e := ir.NewDiv(ih.Int(1), ih.Int(0))
	if got := simplify.Expr(e); !ir.Equal(got, e) {
		t.Errorf("Expr folded a division by zero to %s", ir.String(got))
	}
}

func TestStmt(t *testing.T) {
	x := ih.X("x")
	store := ih.Store("out", x, x)
	tests := []struct {
		name string
		in   ir.Stmt
		want ir.Stmt
	}{
		{"loop of zero iterations", ih.For("x", 3, 0, store), nil},
		{"loop of dead body", &ir.ForStmt{Name: "x", Min: ih.Int(0), Extent: ih.X("n")}, nil},
		{
			"loop of one iteration",
			ih.For("x", 5, 1, store),
			ih.Store("out", ih.Int(5), ih.Int(5)),
		},
		{"if true", &ir.IfStmt{Cond: &ir.BoolImm{Value: true}, Then: store}, store},
		{"if false without else", &ir.IfStmt{Cond: &ir.BoolImm{Value: false}, Then: store}, nil},
		{
			"if false with else",
			&ir.IfStmt{Cond: &ir.BoolImm{Value: false}, Then: store, Else: ih.Store("out", x, ih.Int(0))},
			ih.Store("out", x, ih.Int(0)),
		},
		{"if empty", &ir.IfStmt{Cond: ir.NewLT(x, ih.Int(4))}, nil},
		{
			"let of a constant",
			&ir.LetStmt{Name: "t", Value: ih.Int(2), Body: ih.Store("out", ih.X("t"), ih.X("t"))},
			ih.Store("out", ih.Int(2), ih.Int(2)),
		},
		{
			"let unused",
			&ir.LetStmt{Name: "t", Value: ir.NewAdd(x, x), Body: store},
			store,
		},
		{"assert true", &ir.AssertStmt{Cond: &ir.BoolImm{Value: true}, Message: "ok"}, nil},
		{"empty produce", &ir.ProduceStmt{Stage: "f"}, nil},
		{"empty consume", &ir.ConsumeStmt{Stage: "f"}, nil},
		{"empty parallel loop", &ir.ParForStmt{Name: "x", Min: ih.Int(0), Extent: ih.Int(8)}, nil},
		{
			"block collapses",
			&ir.BlockStmt{Stmts: []ir.Stmt{ih.For("x", 0, 0, store), store}},
			store,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := simplify.Stmt(test.in)
			if test.want == nil {
				if got != nil {
					t.Errorf("Stmt = %s, want nil", ir.String(got))
				}
				return
			}
			if got == nil || !ir.Equal(got, test.want) {
				t.Errorf("Stmt = %v, want %s", got, ir.String(test.want))
			}
		})
	}
}

func TestStmtKeepsLiveLoop(t *testing.T) {
	loop := ih.For("x", 0, 8, ih.Store("out", ih.X("x"), ih.X("x")))
	got := simplify.Stmt(loop)
	if !ir.Equal(got, loop) {
		t.Errorf("Stmt rewrote a loop with nothing to simplify: %s", ir.String(got))
	}
}
