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

package trim_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/stencil/build/ir"
	ih "github.com/gx-org/stencil/build/ir/irhelper"
	"github.com/gx-org/stencil/build/lower"
	"github.com/gx-org/stencil/build/trim"
	"github.com/gx-org/stencil/interp"
)

func countIf(s ir.Stmt) int {
	return ir.Count(s, func(n ir.Node) bool { _, ok := n.(*ir.IfStmt); return ok })
}

func countFor(s ir.Stmt) int {
	return ir.Count(s, func(n ir.Node) bool { _, ok := n.(*ir.ForStmt); return ok })
}

func countSelect(s ir.Stmt) int {
	return ir.Count(s, func(n ir.Node) bool { _, ok := n.(*ir.SelectExpr); return ok })
}

// runOut executes a statement writing out[0, 100) and returns the buffer.
func runOut(t *testing.T, body ir.Stmt) []int64 {
	t.Helper()
	f := &lower.Function{
		Name: "main",
		Args: []*lower.Arg{{
			Name:    "out",
			DType:   dtype.Int64,
			Rank:    1,
			Mins:    []ir.Expr{ih.Int(0)},
			Extents: []ir.Expr{ih.Int(100)},
		}},
		Body: body,
	}
	env := interp.NewEnv()
	if err := interp.Run(f, env); err != nil {
		t.Fatalf("Run: %v", err)
	}
	out, _ := env.Buffer("out")
	return out.Ints()
}

func TestEliminateGuard(t *testing.T) {
	loop := ih.For("x", 0, 100, &ir.IfStmt{
		Cond: ir.NewLT(ih.X("x"), ih.Int(10)),
		Then: ih.Store("out", ih.X("x"), ih.Int(1)),
		Else: ih.Store("out", ih.X("x"), ih.Int(2)),
	})
	got := trim.Eliminate(loop)
	if n := countIf(got); n != 0 {
		t.Errorf("%d conditionals remain:\n%s", n, ir.String(got))
	}
	if n := countFor(got); n != 2 {
		t.Errorf("split into %d loops, want 2:\n%s", n, ir.String(got))
	}
	if diff := cmp.Diff(runOut(t, loop), runOut(t, got)); diff != "" {
		t.Errorf("splitting changed the computed values (-before +after):\n%s", diff)
	}
}

func TestEliminateRangeSelect(t *testing.T) {
	x := ih.X("x")
	loop := ih.For("x", 0, 100,
		ih.Store("out", x, ih.Select(ih.Within(x, 20, 80), ih.Int(1), ih.Int(2))))
	got := trim.Eliminate(loop)
	if n := countSelect(got); n != 0 {
		t.Errorf("%d selects remain:\n%s", n, ir.String(got))
	}
	if n := countFor(got); n != 3 {
		t.Errorf("split into %d loops, want 3:\n%s", n, ir.String(got))
	}
	if diff := cmp.Diff(runOut(t, loop), runOut(t, got)); diff != "" {
		t.Errorf("splitting changed the computed values (-before +after):\n%s", diff)
	}
}

func TestEliminateIdempotent(t *testing.T) {
	loop := ih.For("x", 0, 100, &ir.IfStmt{
		Cond: ir.NewLT(ih.X("x"), ih.Int(10)),
		Then: ih.Store("out", ih.X("x"), ih.Int(1)),
	})
	once := trim.Eliminate(loop)
	twice := trim.Eliminate(once)
	if diff := cmp.Diff(ir.String(once), ir.String(twice)); diff != "" {
		t.Errorf("a second pass changed the result (-once +twice):\n%s", diff)
	}
}

// A condition over a variable bound inside the loop body varies within a
// single iteration and cannot be trimmed.
func TestEliminateKeepsInnerConditions(t *testing.T) {
	x, y := ih.X("x"), ih.X("y")
	loop := ih.For("x", 0, 100, ih.For("y", 0, 4, &ir.IfStmt{
		Cond: ir.NewLT(ir.NewAdd(x, y), ih.Int(50)),
		Then: ih.Store("out", x, ih.Int(1)),
	}))
	// The inner loop can still split on its own variable; the conditional
	// must not leak into the outer split untouched.
	got := trim.Eliminate(loop)
	if diff := cmp.Diff(runOut(t, loop), runOut(t, got)); diff != "" {
		t.Errorf("splitting changed the computed values (-before +after):\n%s", diff)
	}
}

func TestEliminateSkipsVectorLoops(t *testing.T) {
	loop := &ir.ForStmt{
		Name:   "x",
		Min:    ih.Int(0),
		Extent: ih.Int(8),
		Kind:   ir.Vectorized,
		Body: &ir.IfStmt{
			Cond: ir.NewLT(ih.X("x"), ih.Int(4)),
			Then: ih.Store("out", ih.X("x"), ih.Int(1)),
		},
	}
	got := trim.Eliminate(loop)
	if !ir.Equal(got, loop) {
		t.Errorf("a vectorized loop was split:\n%s", ir.String(got))
	}
}

func TestEliminateUnsolvable(t *testing.T) {
	// A condition quadratic in the loop variable has no contiguous truth
	// range the solver can derive.
	x := ih.X("x")
	loop := ih.For("x", 0, 100, &ir.IfStmt{
		Cond: ir.NewLT(ir.NewMul(x, x), ih.Int(50)),
		Then: ih.Store("out", x, ih.Int(1)),
	})
	got := trim.Eliminate(loop)
	if n := countIf(got); n != 1 {
		t.Errorf("%d conditionals after trimming an unsolvable guard, want 1", n)
	}
	if diff := cmp.Diff(runOut(t, loop), runOut(t, got)); diff != "" {
		t.Errorf("trimming changed the computed values (-before +after):\n%s", diff)
	}
}
