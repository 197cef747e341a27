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

// Package vectorize lowers marked loops to their execution form:
// vectorized loops become vector expressions over lanes, parallel loops
// become fork-join loops, unrolled loops become repeated bodies.
package vectorize

import (
	"strings"

	"github.com/gx-org/stencil/build/diag"
	"github.com/gx-org/stencil/build/ir"
	"github.com/gx-org/stencil/build/simplify"
)

// Lower rewrites every marked loop in a statement. The result contains
// only serial loops, fork-join loops, and vector expressions.
func Lower(s ir.Stmt) (ir.Stmt, error) {
	errs := &diag.Errors{}
	s = lowerStmt(s, errs)
	return s, errs.ToError()
}

func lowerStmt(s ir.Stmt, errs *diag.Errors) ir.Stmt {
	switch node := s.(type) {
	case nil:
		return nil
	case *ir.ForStmt:
		body := lowerStmt(node.Body, errs)
		switch node.Kind {
		case ir.Vectorized:
			return vectorizeLoop(node.Name, node.Min, node.Extent, body, errs)
		case ir.Parallel:
			return &ir.ParForStmt{Name: node.Name, Min: node.Min, Extent: node.Extent, Body: body}
		case ir.Unrolled:
			return unrollLoop(node.Name, node.Min, node.Extent, body, errs)
		}
		return &ir.ForStmt{Name: node.Name, Min: node.Min, Extent: node.Extent, Kind: node.Kind, Body: body}
	case *ir.ParForStmt:
		return &ir.ParForStmt{Name: node.Name, Min: node.Min, Extent: node.Extent, Body: lowerStmt(node.Body, errs)}
	case *ir.BlockStmt:
		var stmts []ir.Stmt
		for _, st := range node.Stmts {
			stmts = append(stmts, lowerStmt(st, errs))
		}
		return ir.Block(stmts...)
	case *ir.IfStmt:
		return &ir.IfStmt{Cond: node.Cond, Then: lowerStmt(node.Then, errs), Else: lowerStmt(node.Else, errs)}
	case *ir.LetStmt:
		return &ir.LetStmt{Name: node.Name, Value: node.Value, Body: lowerStmt(node.Body, errs)}
	case *ir.ProduceStmt:
		return &ir.ProduceStmt{Stage: node.Stage, Body: lowerStmt(node.Body, errs)}
	case *ir.ConsumeStmt:
		return &ir.ConsumeStmt{Stage: node.Stage, Body: lowerStmt(node.Body, errs)}
	case *ir.AllocateStmt:
		return &ir.AllocateStmt{Buffer: node.Buffer, Typ: node.Typ, Extents: node.Extents, Body: lowerStmt(node.Body, errs)}
	}
	return s
}

// stageOf recovers the stage a qualified loop variable belongs to for
// diagnostics.
func stageOf(loopVar string) string {
	if i := strings.LastIndex(loopVar, "."); i >= 0 {
		return loopVar[:i]
	}
	return loopVar
}

// unrollLoop replicates the body once per iteration with the loop
// variable substituted. The extent must be a known constant.
func unrollLoop(name string, min, extent ir.Expr, body ir.Stmt, errs *diag.Errors) ir.Stmt {
	k, ok := ir.IsConstInt(extent)
	if !ok {
		errs.Appendf(diag.InvalidScheduleReference, stageOf(name), name,
			"unrolled loops need a constant extent, got %s", ir.String(extent))
		return &ir.ForStmt{Name: name, Min: min, Extent: extent, Body: body}
	}
	var stmts []ir.Stmt
	for i := int64(0); i < k; i++ {
		at := simplify.Expr(ir.NewAdd(min, ir.Const(i)))
		stmts = append(stmts, ir.SubstituteStmt(body, map[string]ir.Expr{name: at}))
	}
	return ir.Block(stmts...)
}

// vectorizeLoop widens the loop body across the loop's lanes: the loop
// variable becomes a ramp and every dependent expression a vector of the
// same lane count. Bodies carrying a cross-lane dependency are rejected.
func vectorizeLoop(name string, min, extent ir.Expr, body ir.Stmt, errs *diag.Errors) ir.Stmt {
	lanes64, ok := ir.IsConstInt(extent)
	if !ok || lanes64 < 1 {
		errs.Appendf(diag.InvalidScheduleReference, stageOf(name), name,
			"vectorized loops need a constant extent, got %s", ir.String(extent))
		return &ir.ForStmt{Name: name, Min: min, Extent: extent, Body: body}
	}
	if lanes64 == 1 {
		return ir.SubstituteStmt(body, map[string]ir.Expr{name: min})
	}
	vec := &vectorizer{
		name:  name,
		lanes: int(lanes64),
		ramp:  &ir.Ramp{Base: min, Stride: ir.Const(1), Lanes: int(lanes64)},
		errs:  errs,
	}
	out := vec.stmt(inlineLets(body))
	vec.checkDependencies(out)
	return out
}

type vectorizer struct {
	name  string
	lanes int
	ramp  *ir.Ramp
	errs  *diag.Errors
}

func (vec *vectorizer) fail(format string, args ...any) {
	vec.errs.Appendf(diag.UnvectorizableDependency, stageOf(vec.name), vec.name, format, args...)
}

// broadcast widens a scalar operand to the vectorizer's lane count.
func (vec *vectorizer) broadcast(e ir.Expr) ir.Expr {
	if e.Type().IsVector() {
		return e
	}
	return &ir.Broadcast{Value: e, Lanes: vec.lanes}
}

func (vec *vectorizer) expr(e ir.Expr) ir.Expr {
	switch node := e.(type) {
	case *ir.Var:
		if node.Name == vec.name {
			return vec.ramp
		}
		return node
	case *ir.BinaryExpr:
		x, y := vec.expr(node.X), vec.expr(node.Y)
		if !x.Type().IsVector() && !y.Type().IsVector() {
			if x == node.X && y == node.Y {
				return node
			}
			return &ir.BinaryExpr{Op: node.Op, X: x, Y: y, Typ: node.Typ}
		}
		x, y = vec.broadcast(x), vec.broadcast(y)
		typ := x.Type()
		if node.Op.IsComparison() {
			typ = ir.BoolType().VectorOf(vec.lanes)
		}
		return &ir.BinaryExpr{Op: node.Op, X: x, Y: y, Typ: typ}
	case *ir.UnaryExpr:
		return &ir.UnaryExpr{Op: node.Op, X: vec.expr(node.X)}
	case *ir.CastExpr:
		x := vec.expr(node.X)
		return &ir.CastExpr{X: x, Typ: node.Typ.Element().VectorOf(x.Type().Lanes)}
	case *ir.SelectExpr:
		cond, t, f := vec.expr(node.Cond), vec.expr(node.True), vec.expr(node.False)
		if !cond.Type().IsVector() && !t.Type().IsVector() && !f.Type().IsVector() {
			return node
		}
		return &ir.SelectExpr{Cond: vec.broadcast(cond), True: vec.broadcast(t), False: vec.broadcast(f)}
	case *ir.LoadExpr:
		index := vec.expr(node.Index)
		return &ir.LoadExpr{Buffer: node.Buffer, Index: index, Typ: node.Typ.Element().VectorOf(index.Type().Lanes)}
	}
	return e
}

// scalar vectorizes an expression that must stay uniform across lanes:
// loop bounds, allocation extents, branch conditions.
func (vec *vectorizer) scalar(e ir.Expr, what string) ir.Expr {
	out := vec.expr(e)
	if out.Type().IsVector() {
		vec.fail("%s varies across the vector lanes", what)
		return e
	}
	return out
}

func (vec *vectorizer) stmt(s ir.Stmt) ir.Stmt {
	switch node := s.(type) {
	case nil:
		return nil
	case *ir.StoreStmt:
		index, value := vec.expr(node.Index), vec.expr(node.Value)
		if value.Type().IsVector() && !index.Type().IsVector() {
			vec.fail("all lanes store to the same element of %s", node.Buffer)
			return node
		}
		if index.Type().IsVector() {
			if _, same := index.(*ir.Broadcast); same {
				vec.fail("all lanes store to the same element of %s", node.Buffer)
				return node
			}
			value = vec.broadcast(value)
		}
		return &ir.StoreStmt{Buffer: node.Buffer, Index: index, Value: value}
	case *ir.IfStmt:
		cond := vec.scalar(node.Cond, "the branch condition")
		return &ir.IfStmt{Cond: cond, Then: vec.stmt(node.Then), Else: vec.stmt(node.Else)}
	case *ir.ForStmt:
		min := vec.scalar(node.Min, "the loop start")
		extent := vec.scalar(node.Extent, "the loop extent")
		return &ir.ForStmt{Name: node.Name, Min: min, Extent: extent, Kind: node.Kind, Body: vec.stmt(node.Body)}
	case *ir.ParForStmt:
		min := vec.scalar(node.Min, "the loop start")
		extent := vec.scalar(node.Extent, "the loop extent")
		return &ir.ParForStmt{Name: node.Name, Min: min, Extent: extent, Body: vec.stmt(node.Body)}
	case *ir.BlockStmt:
		var stmts []ir.Stmt
		for _, st := range node.Stmts {
			stmts = append(stmts, vec.stmt(st))
		}
		return ir.Block(stmts...)
	case *ir.ProduceStmt:
		return &ir.ProduceStmt{Stage: node.Stage, Body: vec.stmt(node.Body)}
	case *ir.ConsumeStmt:
		return &ir.ConsumeStmt{Stage: node.Stage, Body: vec.stmt(node.Body)}
	case *ir.AllocateStmt:
		var extents []ir.Expr
		for _, e := range node.Extents {
			extents = append(extents, vec.scalar(e, "the allocation extent"))
		}
		return &ir.AllocateStmt{Buffer: node.Buffer, Typ: node.Typ, Extents: extents, Body: vec.stmt(node.Body)}
	case *ir.AssertStmt:
		return &ir.AssertStmt{Cond: vec.scalar(node.Cond, "the assertion"), Message: node.Message}
	case *ir.EvalStmt:
		return &ir.EvalStmt{X: vec.expr(node.X)}
	}
	return s
}

// checkDependencies rejects bodies that read a buffer they write at a
// different vector index. Lanes may then observe values written by other
// lanes of the same statement, which the scalar loop would not have.
func (vec *vectorizer) checkDependencies(s ir.Stmt) {
	type access struct {
		buffer string
		index  ir.Expr
	}
	var stores, loads []access
	ir.Walk(s, func(n ir.Node) bool {
		switch node := n.(type) {
		case *ir.StoreStmt:
			stores = append(stores, access{node.Buffer, node.Index})
		case *ir.LoadExpr:
			loads = append(loads, access{node.Buffer, node.Index})
		}
		return true
	})
	for _, st := range stores {
		for _, ld := range loads {
			if st.buffer != ld.buffer {
				continue
			}
			if !ir.Equal(st.index, ld.index) {
				vec.fail("buffer %s is read and written at different lanes", st.buffer)
				return
			}
		}
	}
}

// inlineLets substitutes every let binding so lane widening does not
// have to track the laneness of named values.
func inlineLets(s ir.Stmt) ir.Stmt {
	return ir.RewriteStmt(s, func(n ir.Node) ir.Node {
		switch node := n.(type) {
		case *ir.LetStmt:
			return ir.SubstituteStmt(node.Body, map[string]ir.Expr{node.Name: node.Value})
		case *ir.LetExpr:
			return ir.SubstituteExpr(node.Body, map[string]ir.Expr{node.Name: node.Value})
		}
		return n
	})
}
