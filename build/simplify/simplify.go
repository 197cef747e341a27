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

// Package simplify folds constants and applies algebraic identities over
// the IR. It runs after every structural pass so later passes and the
// final module see canonical trees.
package simplify

import (
	"github.com/gx-org/stencil/build/ir"
)

// Expr returns a simplified expression computing the same values.
func Expr(e ir.Expr) ir.Expr {
	return ir.RewriteExpr(e, rule)
}

// Stmt returns a simplified statement with the same behavior. Statements
// proven to do nothing simplify to nil.
func Stmt(s ir.Stmt) ir.Stmt {
	return ir.RewriteStmt(s, rule)
}

func rule(n ir.Node) ir.Node {
	switch node := n.(type) {
	case *ir.BinaryExpr:
		return binary(node)
	case *ir.UnaryExpr:
		return unary(node)
	case *ir.CastExpr:
		return cast(node)
	case *ir.SelectExpr:
		if c, ok := ir.IsConstBool(node.Cond); ok {
			if c {
				return node.True
			}
			return node.False
		}
		if ir.Equal(node.True, node.False) {
			return node.True
		}
		return node
	case *ir.LetExpr:
		if isCheap(node.Value) {
			return ir.SubstituteExpr(node.Body, map[string]ir.Expr{node.Name: node.Value})
		}
		if !ir.UsesVar(node.Body, node.Name) {
			return node.Body
		}
		return node
	case *ir.IfStmt:
		return ifStmt(node)
	case *ir.ForStmt:
		return forStmt(node)
	case *ir.ParForStmt:
		if v, ok := ir.IsConstInt(node.Extent); ok && v <= 0 {
			return nil
		}
		if node.Body == nil {
			return nil
		}
		return node
	case *ir.LetStmt:
		if node.Body == nil {
			return nil
		}
		if isCheap(node.Value) {
			return ir.SubstituteStmt(node.Body, map[string]ir.Expr{node.Name: node.Value})
		}
		if !ir.UsesVar(node.Body, node.Name) {
			return node.Body
		}
		return node
	case *ir.AssertStmt:
		if c, ok := ir.IsConstBool(node.Cond); ok && c {
			return nil
		}
		return node
	case *ir.ProduceStmt:
		if node.Body == nil {
			return nil
		}
		return node
	case *ir.ConsumeStmt:
		if node.Body == nil {
			return nil
		}
		return node
	case *ir.BlockStmt:
		return ir.Block(node.Stmts...)
	}
	return n
}

// isCheap reports if an expression can be substituted for its binding
// without duplicating work.
func isCheap(e ir.Expr) bool {
	switch e.(type) {
	case *ir.IntImm, *ir.FloatImm, *ir.BoolImm, *ir.Var:
		return true
	}
	return false
}

func ifStmt(node *ir.IfStmt) ir.Node {
	if c, ok := ir.IsConstBool(node.Cond); ok {
		if c {
			if node.Then == nil {
				return nil
			}
			return node.Then
		}
		if node.Else == nil {
			return nil
		}
		return node.Else
	}
	if node.Then == nil && node.Else == nil {
		return nil
	}
	return node
}

func forStmt(node *ir.ForStmt) ir.Node {
	if node.Body == nil {
		return nil
	}
	if v, ok := ir.IsConstInt(node.Extent); ok {
		if v <= 0 {
			return nil
		}
		if v == 1 {
			return ir.SubstituteStmt(node.Body, map[string]ir.Expr{node.Name: node.Min})
		}
	}
	return node
}

func unary(node *ir.UnaryExpr) ir.Node {
	switch node.Op {
	case ir.Neg:
		if v, ok := ir.IsConstInt(node.X); ok {
			return &ir.IntImm{Typ: node.X.Type(), Value: -v}
		}
		if f, ok := node.X.(*ir.FloatImm); ok {
			return &ir.FloatImm{Typ: f.Typ, Value: -f.Value}
		}
		if inner, ok := node.X.(*ir.UnaryExpr); ok && inner.Op == ir.Neg {
			return inner.X
		}
	case ir.Not:
		if v, ok := ir.IsConstBool(node.X); ok {
			return &ir.BoolImm{Value: !v}
		}
		if inner, ok := node.X.(*ir.UnaryExpr); ok && inner.Op == ir.Not {
			return inner.X
		}
	}
	return node
}

func cast(node *ir.CastExpr) ir.Node {
	if node.X.Type() == node.Typ {
		return node.X
	}
	if !node.Typ.IsVector() {
		switch x := node.X.(type) {
		case *ir.IntImm:
			if node.Typ.IsInteger() {
				return &ir.IntImm{Typ: node.Typ, Value: x.Value}
			}
			if node.Typ.IsFloat() {
				return &ir.FloatImm{Typ: node.Typ, Value: float64(x.Value)}
			}
		case *ir.FloatImm:
			if node.Typ.IsFloat() {
				return &ir.FloatImm{Typ: node.Typ, Value: x.Value}
			}
			if node.Typ.IsInteger() {
				return &ir.IntImm{Typ: node.Typ, Value: int64(x.Value)}
			}
		}
	}
	return node
}
