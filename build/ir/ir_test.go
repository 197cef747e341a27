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

package ir_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gx-org/stencil/build/ir"
	ih "github.com/gx-org/stencil/build/ir/irhelper"
)

func TestBinaryTypes(t *testing.T) {
	x, y := ih.X("x"), ih.X("y")
	if got := ir.NewAdd(x, y).Type(); got != ir.IndexType() {
		t.Errorf("(x + y) has type %s, want %s", got, ir.IndexType())
	}
	if got := ir.NewLT(x, y).Type(); got != ir.BoolType() {
		t.Errorf("(x < y) has type %s, want %s", got, ir.BoolType())
	}
	if _, err := ir.NewBinary(ir.Add, ih.Int(1), ih.Float(1)); err == nil {
		t.Errorf("adding an integer to a float succeeded, want a type error")
	}
	if _, err := ir.NewBinary(ir.And, ih.Int(1), ih.Int(2)); err == nil {
		t.Errorf("conjunction of integers succeeded, want a type error")
	}
}

func TestSelectTypes(t *testing.T) {
	cond := ir.NewLT(ih.X("x"), ih.Int(4))
	if _, err := ir.NewSelect(cond, ih.Float(1), ih.Float(2)); err != nil {
		t.Errorf("NewSelect: %v", err)
	}
	if _, err := ir.NewSelect(cond, ih.Int(1), ih.Float(2)); err == nil {
		t.Errorf("select over mismatched branches succeeded, want an error")
	}
	if _, err := ir.NewSelect(ih.Int(1), ih.Int(1), ih.Int(2)); err == nil {
		t.Errorf("select with an integer condition succeeded, want an error")
	}
}

func TestFloorArithmetic(t *testing.T) {
	tests := []struct {
		a, b, div, mod int64
	}{
		{7, 2, 3, 1},
		{-7, 2, -4, 1},
		{7, -2, -4, -1},
		{-7, -2, 3, -1},
		{6, 3, 2, 0},
		{-1, 8, -1, 7},
		{0, 5, 0, 0},
	}
	for _, test := range tests {
		if got := ir.FloorDiv(test.a, test.b); got != test.div {
			t.Errorf("FloorDiv(%d, %d) = %d, want %d", test.a, test.b, got, test.div)
		}
		if got := ir.FloorMod(test.a, test.b); got != test.mod {
			t.Errorf("FloorMod(%d, %d) = %d, want %d", test.a, test.b, got, test.mod)
		}
	}
}

func TestBlock(t *testing.T) {
	store := ih.Store("out", ih.Int(0), ih.Int(1))
	if got := ir.Block(); got != nil {
		t.Errorf("Block() = %v, want nil", got)
	}
	if got := ir.Block(nil, nil); got != nil {
		t.Errorf("Block(nil, nil) = %v, want nil", got)
	}
	if got := ir.Block(nil, store); got != ir.Stmt(store) {
		t.Errorf("Block of one statement = %v, want the statement itself", got)
	}
	nested := ir.Block(ir.Block(store, store), nil, store)
	block, ok := nested.(*ir.BlockStmt)
	if !ok {
		t.Fatalf("Block of nested blocks is %T, want *ir.BlockStmt", nested)
	}
	if len(block.Stmts) != 3 {
		t.Errorf("nested blocks flatten to %d statements, want 3", len(block.Stmts))
	}
}

func TestEqual(t *testing.T) {
	x := ih.X("x")
	tests := []struct {
		name string
		a, b ir.Node
		want bool
	}{
		{"same variable", ih.X("x"), ih.X("x"), true},
		{"different variable", ih.X("x"), ih.X("y"), false},
		{"same constant", ih.Int(3), ih.Int(3), true},
		{"different constant", ih.Int(3), ih.Int(4), false},
		{"same binary", ir.NewAdd(x, ih.Int(1)), ir.NewAdd(ih.X("x"), ih.Int(1)), true},
		{"different operator", ir.NewAdd(x, ih.Int(1)), ir.NewSub(x, ih.Int(1)), false},
		{"same store", ih.Store("out", x, ih.Int(1)), ih.Store("out", ih.X("x"), ih.Int(1)), true},
		{"different buffer", ih.Store("out", x, ih.Int(1)), ih.Store("tmp", x, ih.Int(1)), false},
		{"same loop", ih.For("x", 0, 8, ih.Store("out", x, x)), ih.For("x", 0, 8, ih.Store("out", x, x)), true},
		{"different extent", ih.For("x", 0, 8, nil), ih.For("x", 0, 9, nil), false},
	}
	for _, test := range tests {
		if got := ir.Equal(test.a, test.b); got != test.want {
			t.Errorf("%s: Equal = %t, want %t", test.name, got, test.want)
		}
	}
}

func TestSubstituteExpr(t *testing.T) {
	x, y := ih.X("x"), ih.X("y")
	e := ir.NewAdd(x, y)
	got := ir.SubstituteExpr(e, map[string]ir.Expr{"x": ih.Int(3)})
	want := ir.NewAdd(ih.Int(3), y)
	if !ir.Equal(got, want) {
		t.Errorf("substitution = %s, want %s", ir.String(got), ir.String(want))
	}
	// An expression without the substituted variable is shared, not
	// copied.
	if same := ir.SubstituteExpr(e, map[string]ir.Expr{"z": ih.Int(3)}); same != ir.Expr(e) {
		t.Errorf("substituting an absent variable rebuilt the tree")
	}
}

func TestRewriteStmt(t *testing.T) {
	loop := ih.For("x", 0, 8, ih.Store("out", ih.X("x"), ir.NewMul(ih.X("x"), ih.Int(2))))
	got := ir.RewriteStmt(loop, func(n ir.Node) ir.Node {
		if v, ok := n.(*ir.Var); ok && v.Name == "x" {
			return ih.X("i")
		}
		return n
	})
	want := ih.For("x", 0, 8, ih.Store("out", ih.X("i"), ir.NewMul(ih.X("i"), ih.Int(2))))
	if !ir.Equal(got, want) {
		t.Errorf("rewrite = %s, want %s", ir.String(got), ir.String(want))
	}
	// Deleting a statement propagates nil upwards.
	if got := ir.RewriteStmt(loop, func(n ir.Node) ir.Node {
		if _, ok := n.(*ir.StoreStmt); ok {
			return nil
		}
		return n
	}); got == nil {
		t.Errorf("rewrite deleted the loop, want the loop with a nil body")
	} else if f, ok := got.(*ir.ForStmt); !ok || f.Body != nil {
		t.Errorf("rewrite = %v, want a loop with a nil body", got)
	}
}

func TestCount(t *testing.T) {
	body := ir.Block(
		ih.Store("out", ih.X("x"), ih.Int(1)),
		ih.Store("out", ih.X("x"), ih.Int(2)),
	)
	loop := ih.For("x", 0, 8, body)
	if got := ir.Count(loop, func(n ir.Node) bool { _, ok := n.(*ir.StoreStmt); return ok }); got != 2 {
		t.Errorf("counted %d stores, want 2", got)
	}
	if !ir.UsesVar(loop, "x") {
		t.Errorf("UsesVar(x) = false, want true")
	}
	if ir.UsesVar(loop, "y") {
		t.Errorf("UsesVar(y) = true, want false")
	}
}

func TestString(t *testing.T) {
	loop := ih.For("x", 0, 8, &ir.IfStmt{
		Cond: ir.NewLT(ih.X("x"), ih.Int(4)),
		Then: ih.Store("out", ih.X("x"), ir.NewMul(ih.X("x"), ih.Int(2))),
	})
	want := `for x in [0, 0 + 8) {
  if (x < 4) {
    out[x] = (x * 2)
  }
}
`
	if diff := cmp.Diff(want, ir.String(loop)); diff != "" {
		t.Errorf("String mismatch (-want +got):\n%s", diff)
	}
}

func TestZeroOne(t *testing.T) {
	if v, ok := ir.IsConstInt(ir.Zero(ir.IndexType())); !ok || v != 0 {
		t.Errorf("Zero(index) is not the integer 0")
	}
	if f, ok := ir.One(ir.Float64Type()).(*ir.FloatImm); !ok || f.Value != 1 {
		t.Errorf("One(float64) is not the float 1")
	}
	if b, ok := ir.IsConstBool(ir.Zero(ir.BoolType())); !ok || b {
		t.Errorf("Zero(bool) is not false")
	}
}

func TestNewCast(t *testing.T) {
	x := ih.X("x")
	if got := ir.NewCast(x, ir.IndexType()); got != ir.Expr(x) {
		t.Errorf("casting to the same type rebuilt the expression")
	}
	cast := ir.NewCast(x, ir.Float64Type())
	if got := cast.Type(); got != ir.Float64Type() {
		t.Errorf("cast type = %s, want %s", got, ir.Float64Type())
	}
}
