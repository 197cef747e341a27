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

package ir

// RewriteFunc transforms a node whose children have already been
// rewritten. Returning the node unchanged keeps the original tree.
type RewriteFunc func(Node) Node

// RewriteExpr rebuilds the expression bottom-up, applying f to every node
// after its children. Unchanged subtrees are shared with the input tree.
func RewriteExpr(e Expr, f RewriteFunc) Expr {
	return f(rewriteExprChildren(e, f)).(Expr)
}

// RewriteStmt rebuilds the statement bottom-up, applying f to every node
// after its children. Unchanged subtrees are shared with the input tree.
// f may return nil to delete a statement.
func RewriteStmt(s Stmt, f RewriteFunc) Stmt {
	if s == nil {
		return nil
	}
	got := f(rewriteStmtChildren(s, f))
	if got == nil {
		return nil
	}
	return got.(Stmt)
}

func rewriteExprChildren(e Expr, f RewriteFunc) Expr {
	switch expr := e.(type) {
	case *IntImm, *FloatImm, *BoolImm, *Var:
		return e
	case *BinaryExpr:
		x := RewriteExpr(expr.X, f)
		y := RewriteExpr(expr.Y, f)
		if x == expr.X && y == expr.Y {
			return e
		}
		typ := x.Type()
		if expr.Op.IsComparison() {
			typ = BoolType().VectorOf(x.Type().Lanes)
		}
		return &BinaryExpr{Op: expr.Op, X: x, Y: y, Typ: typ}
	case *UnaryExpr:
		x := RewriteExpr(expr.X, f)
		if x == expr.X {
			return e
		}
		return &UnaryExpr{Op: expr.Op, X: x}
	case *CastExpr:
		x := RewriteExpr(expr.X, f)
		if x == expr.X {
			return e
		}
		return &CastExpr{X: x, Typ: expr.Typ.Element().VectorOf(x.Type().Lanes)}
	case *SelectExpr:
		cond := RewriteExpr(expr.Cond, f)
		t := RewriteExpr(expr.True, f)
		fl := RewriteExpr(expr.False, f)
		if cond == expr.Cond && t == expr.True && fl == expr.False {
			return e
		}
		return &SelectExpr{Cond: cond, True: t, False: fl}
	case *LoadExpr:
		index := RewriteExpr(expr.Index, f)
		if index == expr.Index {
			return e
		}
		return &LoadExpr{Buffer: expr.Buffer, Index: index, Typ: expr.Typ.Element().VectorOf(index.Type().Lanes)}
	case *CallExpr:
		args, changed := rewriteExprs(expr.Args, f)
		if !changed {
			return e
		}
		return &CallExpr{Stage: expr.Stage, Value: expr.Value, Args: args, Typ: expr.Typ}
	case *Ramp:
		base := RewriteExpr(expr.Base, f)
		stride := RewriteExpr(expr.Stride, f)
		if base == expr.Base && stride == expr.Stride {
			return e
		}
		return &Ramp{Base: base, Stride: stride, Lanes: expr.Lanes}
	case *Broadcast:
		value := RewriteExpr(expr.Value, f)
		if value == expr.Value {
			return e
		}
		return &Broadcast{Value: value, Lanes: expr.Lanes}
	case *LetExpr:
		value := RewriteExpr(expr.Value, f)
		body := RewriteExpr(expr.Body, f)
		if value == expr.Value && body == expr.Body {
			return e
		}
		return &LetExpr{Name: expr.Name, Value: value, Body: body}
	}
	panic(malformed("cannot rewrite expression of type %T", e))
}

func rewriteExprs(exprs []Expr, f RewriteFunc) ([]Expr, bool) {
	changed := false
	out := make([]Expr, len(exprs))
	for i, e := range exprs {
		out[i] = RewriteExpr(e, f)
		if out[i] != e {
			changed = true
		}
	}
	if !changed {
		return exprs, false
	}
	return out, true
}

func rewriteStmtChildren(s Stmt, f RewriteFunc) Stmt {
	switch stmt := s.(type) {
	case *StoreStmt:
		index := RewriteExpr(stmt.Index, f)
		value := RewriteExpr(stmt.Value, f)
		if index == stmt.Index && value == stmt.Value {
			return s
		}
		return &StoreStmt{Buffer: stmt.Buffer, Index: index, Value: value}
	case *LetStmt:
		value := RewriteExpr(stmt.Value, f)
		body := RewriteStmt(stmt.Body, f)
		if value == stmt.Value && body == stmt.Body {
			return s
		}
		return &LetStmt{Name: stmt.Name, Value: value, Body: body}
	case *AssertStmt:
		cond := RewriteExpr(stmt.Cond, f)
		if cond == stmt.Cond {
			return s
		}
		return &AssertStmt{Cond: cond, Message: stmt.Message}
	case *ForStmt:
		min := RewriteExpr(stmt.Min, f)
		extent := RewriteExpr(stmt.Extent, f)
		body := RewriteStmt(stmt.Body, f)
		if min == stmt.Min && extent == stmt.Extent && body == stmt.Body {
			return s
		}
		return &ForStmt{Name: stmt.Name, Min: min, Extent: extent, Kind: stmt.Kind, Body: body}
	case *IfStmt:
		cond := RewriteExpr(stmt.Cond, f)
		then := RewriteStmt(stmt.Then, f)
		var els Stmt
		if stmt.Else != nil {
			els = RewriteStmt(stmt.Else, f)
		}
		if cond == stmt.Cond && then == stmt.Then && els == stmt.Else {
			return s
		}
		return &IfStmt{Cond: cond, Then: then, Else: els}
	case *BlockStmt:
		changed := false
		var out []Stmt
		for _, sub := range stmt.Stmts {
			got := RewriteStmt(sub, f)
			if got != sub {
				changed = true
			}
			if got != nil {
				out = append(out, got)
			}
		}
		if !changed {
			return s
		}
		return Block(out...)
	case *ProduceStmt:
		body := RewriteStmt(stmt.Body, f)
		if body == stmt.Body {
			return s
		}
		return &ProduceStmt{Stage: stmt.Stage, Body: body}
	case *ConsumeStmt:
		body := RewriteStmt(stmt.Body, f)
		if body == stmt.Body {
			return s
		}
		return &ConsumeStmt{Stage: stmt.Stage, Body: body}
	case *AllocateStmt:
		extents, changed := rewriteExprs(stmt.Extents, f)
		body := RewriteStmt(stmt.Body, f)
		if !changed && body == stmt.Body {
			return s
		}
		return &AllocateStmt{Buffer: stmt.Buffer, Typ: stmt.Typ, Extents: extents, Body: body}
	case *ParForStmt:
		min := RewriteExpr(stmt.Min, f)
		extent := RewriteExpr(stmt.Extent, f)
		body := RewriteStmt(stmt.Body, f)
		if min == stmt.Min && extent == stmt.Extent && body == stmt.Body {
			return s
		}
		return &ParForStmt{Name: stmt.Name, Min: min, Extent: extent, Body: body}
	case *EvalStmt:
		x := RewriteExpr(stmt.X, f)
		if x == stmt.X {
			return s
		}
		return &EvalStmt{X: x}
	}
	panic(malformed("cannot rewrite statement of type %T", s))
}

// Identity is a RewriteFunc that keeps every node unchanged.
func Identity(n Node) Node { return n }

// SubstituteExpr replaces free variable references by name in an
// expression. Generated names are unique across a lowering run, so
// shadowing by let bindings is not considered.
func SubstituteExpr(e Expr, vars map[string]Expr) Expr {
	if len(vars) == 0 {
		return e
	}
	return RewriteExpr(e, func(n Node) Node {
		if v, ok := n.(*Var); ok {
			if repl, ok := vars[v.Name]; ok {
				return repl
			}
		}
		return n
	})
}

// SubstituteStmt replaces free variable references by name in a statement.
func SubstituteStmt(s Stmt, vars map[string]Expr) Stmt {
	if len(vars) == 0 {
		return s
	}
	return RewriteStmt(s, func(n Node) Node {
		if v, ok := n.(*Var); ok {
			if repl, ok := vars[v.Name]; ok {
				return repl
			}
		}
		return n
	})
}
