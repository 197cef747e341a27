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

// Package trim removes conditionals from loop bodies by splitting the
// loop range. A condition linear in the loop variable holds over a
// contiguous sub-range; the loop becomes up to three loops where the
// condition is a known constant, and simplification deletes the dead
// branches.
package trim

import (
	"github.com/gx-org/stencil/build/interval"
	"github.com/gx-org/stencil/build/ir"
	"github.com/gx-org/stencil/build/simplify"
)

// maxRounds caps the fixed point. Each round eliminates at most one
// condition; nested guards need one round per level.
const maxRounds = 32

// Eliminate splits loops until no provably linear condition remains, or
// the round cap is hit. The result computes the same values with the
// same stores in the same order.
func Eliminate(s ir.Stmt) ir.Stmt {
	for round := 0; round < maxRounds; round++ {
		changed := false
		s = ir.RewriteStmt(s, func(n ir.Node) ir.Node {
			if changed {
				return n
			}
			loop, ok := n.(*ir.ForStmt)
			if !ok {
				return n
			}
			if split := splitLoop(loop); split != nil {
				changed = true
				return split
			}
			return n
		})
		s = simplify.Stmt(s)
		if !changed {
			break
		}
	}
	return s
}

// splitLoop returns the loop split around one of its trimmable
// conditions, or nil when none applies. Vectorized and unrolled loops
// keep their constant extents and are never split.
func splitLoop(loop *ir.ForStmt) ir.Stmt {
	if loop.Kind == ir.Vectorized || loop.Kind == ir.Unrolled {
		return nil
	}
	inner := boundInside(loop.Body)
	for _, cond := range conditions(loop.Body) {
		truth, ok := solve(cond, loop.Name, inner)
		if !ok {
			continue
		}
		return split(loop, cond, truth)
	}
	return nil
}

// split rewrites the loop as a prologue, a steady state where the
// condition holds, and an epilogue. Range arithmetic clamps each piece
// into the original range, so pieces degenerate to zero extent instead
// of running backwards.
func split(loop *ir.ForStmt, cond ir.Expr, truth interval.Interval) ir.Stmt {
	s := func(e ir.Expr) ir.Expr { return simplify.Expr(e) }
	start := loop.Min
	end := s(ir.NewAdd(loop.Min, loop.Extent))
	mid0 := start
	if truth.Min != nil {
		mid0 = s(ir.NewMin(ir.NewMax(start, truth.Min), end))
	}
	mid1 := end
	if truth.Max != nil {
		mid1 = s(ir.NewMin(ir.NewMax(ir.NewAdd(truth.Max, ir.Const(1)), mid0), end))
	}
	piece := func(min, max ir.Expr, hold bool) ir.Stmt {
		return &ir.ForStmt{
			Name:   loop.Name,
			Min:    min,
			Extent: s(ir.NewSub(max, min)),
			Kind:   loop.Kind,
			Body:   replaceCond(loop.Body, cond, hold),
		}
	}
	return ir.Block(
		piece(start, mid0, false),
		piece(mid0, mid1, true),
		piece(mid1, end, false),
	)
}

// replaceCond substitutes one condition occurrence, identified by
// pointer, with a boolean constant.
func replaceCond(body ir.Stmt, cond ir.Expr, val bool) ir.Stmt {
	return ir.RewriteStmt(body, func(n ir.Node) ir.Node {
		if n == ir.Node(cond) {
			return &ir.BoolImm{Value: val}
		}
		return n
	})
}

// conditions collects the candidate conditions of a loop body: guards of
// if statements and conditions of selects.
func conditions(body ir.Stmt) []ir.Expr {
	var out []ir.Expr
	ir.Walk(body, func(n ir.Node) bool {
		switch node := n.(type) {
		case *ir.IfStmt:
			out = append(out, node.Cond)
		case *ir.SelectExpr:
			out = append(out, node.Cond)
		}
		return true
	})
	return out
}

// boundInside returns every name bound inside a loop body. A condition
// referencing one of them varies within a single iteration and cannot be
// trimmed by splitting the loop.
func boundInside(body ir.Stmt) map[string]bool {
	names := map[string]bool{}
	ir.Walk(body, func(n ir.Node) bool {
		switch node := n.(type) {
		case *ir.ForStmt:
			names[node.Name] = true
		case *ir.ParForStmt:
			names[node.Name] = true
		case *ir.LetStmt:
			names[node.Name] = true
		case *ir.LetExpr:
			names[node.Name] = true
		}
		return true
	})
	return names
}

// solve returns the sub-range of the loop variable over which a
// condition holds. Conjunctions intersect their operands' ranges.
func solve(cond ir.Expr, v string, inner map[string]bool) (interval.Interval, bool) {
	c, ok := cond.(*ir.BinaryExpr)
	if !ok {
		return interval.Interval{}, false
	}
	if c.Op == ir.And {
		x, ok := solve(c.X, v, inner)
		if !ok {
			return interval.Interval{}, false
		}
		y, ok := solve(c.Y, v, inner)
		if !ok {
			return interval.Interval{}, false
		}
		return interval.Intersect(x, y), true
	}
	return solveCmp(c, v, inner)
}

// solveCmp solves one comparison a*v + rest OP 0 for v. Equalities are
// left alone; their truth range is a single point and splitting on them
// rarely pays for the extra loops.
func solveCmp(c *ir.BinaryExpr, v string, inner map[string]bool) (interval.Interval, bool) {
	op := c.Op
	diff := ir.NewSub(c.X, c.Y)
	switch op {
	case ir.GT:
		op, diff = ir.LT, ir.NewSub(c.Y, c.X)
	case ir.GE:
		op, diff = ir.LE, ir.NewSub(c.Y, c.X)
	case ir.LT, ir.LE:
	default:
		return interval.Interval{}, false
	}
	lf, ok := interval.Linearize(diff)
	if !ok {
		return interval.Interval{}, false
	}
	a, rest := lf.Coeff(v)
	if a == 0 {
		return interval.Interval{}, false
	}
	for name := range lf.Coeffs {
		if name != v && inner[name] {
			return interval.Interval{}, false
		}
	}
	s := func(e ir.Expr) ir.Expr { return simplify.Expr(e) }
	if op == ir.LT {
		if a > 0 {
			// v <= floor((-1 - rest) / a)
			return interval.Interval{Max: s(ir.NewDiv(ir.NewSub(ir.Const(-1), rest), ir.Const(a)))}, true
		}
		// v >= floor(rest / -a) + 1
		return interval.Interval{Min: s(ir.NewAdd(ir.NewDiv(rest, ir.Const(-a)), ir.Const(1)))}, true
	}
	if a > 0 {
		// v <= floor(-rest / a)
		return interval.Interval{Max: s(ir.NewDiv(ir.NewSub(ir.Const(0), rest), ir.Const(a)))}, true
	}
	// v >= ceil(rest / -a)
	return interval.Interval{Min: s(ir.NewDiv(ir.NewAdd(rest, ir.Const(-a-1)), ir.Const(-a)))}, true
}
