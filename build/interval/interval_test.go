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

package interval_test

import (
	"testing"

	"github.com/gx-org/stencil/build/interval"
	"github.com/gx-org/stencil/build/ir"
	ih "github.com/gx-org/stencil/build/ir/irhelper"
)

func constBounds(t *testing.T, it interval.Interval) (int64, int64) {
	t.Helper()
	lo, hi, ok := it.ConstBounds()
	if !ok {
		t.Fatalf("interval %s has non-constant bounds", it)
	}
	return lo, hi
}

func TestConstAlgebra(t *testing.T) {
	tests := []struct {
		name   string
		got    interval.Interval
		lo, hi int64
	}{
		{"union", interval.Union(interval.Of(0, 3), interval.Of(2, 8)), 0, 8},
		{"intersect", interval.Intersect(interval.Of(0, 9), interval.Of(5, 20)), 5, 9},
		{"add", interval.Add(interval.Of(0, 3), interval.Of(1, 2)), 1, 5},
		{"sub", interval.Sub(interval.Of(0, 3), interval.Of(1, 2)), -2, 2},
		{"mul const", interval.Mul(interval.Of(1, 3), interval.Point(ir.Const(2))), 2, 6},
		{"mul negative", interval.Mul(interval.Of(1, 3), interval.Point(ir.Const(-2))), -6, -2},
		{"div", interval.Div(interval.Of(-7, 7), interval.Point(ir.Const(2))), -4, 3},
		{"mod", interval.Mod(interval.Of(1, 10), interval.Point(ir.Const(4))), 0, 3},
		{"mod identity", interval.Mod(interval.Of(0, 3), interval.Point(ir.Const(4))), 0, 3},
		{"extent", interval.NewExtent(ir.Const(2), ir.Const(5)), 2, 6},
	}
	for _, test := range tests {
		lo, hi := constBounds(t, test.got)
		if lo != test.lo || hi != test.hi {
			t.Errorf("%s: got [%d, %d], want [%d, %d]", test.name, lo, hi, test.lo, test.hi)
		}
	}
}

func TestUnboundedSides(t *testing.T) {
	if !interval.Everything().IsEverything() {
		t.Errorf("Everything() reports bounded sides")
	}
	half := interval.Interval{Min: ir.Const(0)}
	if half.IsBounded() || !half.HasLowerBound() {
		t.Errorf("a half-bounded interval misreports its sides")
	}
	// Unknown-sign divisors and non-point multipliers drop to unbounded.
	if got := interval.Div(interval.Of(0, 8), interval.Of(2, 3)); !got.IsEverything() {
		t.Errorf("Div by a non-point interval = %s, want unbounded", got)
	}
	if got := interval.Mul(interval.Of(0, 8), interval.Point(ih.X("k"))); !got.IsEverything() {
		t.Errorf("Mul by a symbolic point = %s, want unbounded", got)
	}
	// Intersect keeps the bound of whichever side has one.
	got := interval.Intersect(interval.Everything(), interval.Of(1, 5))
	if lo, hi := constBounds(t, got); lo != 1 || hi != 5 {
		t.Errorf("Intersect with Everything = [%d, %d], want [1, 5]", lo, hi)
	}
}

// Union of shifted copies of the same variable must resolve through the
// linear form: sliding-window detection depends on the resulting extent
// being a provable constant.
func TestUnionSymbolic(t *testing.T) {
	y := ih.X("out.y")
	got := interval.Union(interval.Point(y), interval.Point(ir.NewAdd(y, ih.Int(2))))
	if !ir.Equal(got.Min, y) {
		t.Errorf("union minimum = %s, want out.y", ir.String(got.Min))
	}
	if ext, ok := ir.IsConstInt(got.Extent()); !ok || ext != 3 {
		t.Errorf("union extent = %s, want 3", ir.String(got.Extent()))
	}
}

func TestExtentSymbolic(t *testing.T) {
	x := ih.X("x")
	it := interval.NewExtent(x, ih.Int(3))
	if d, ok := interval.ProveConst(ir.NewSub(it.Max, x)); !ok || d != 2 {
		t.Errorf("NewExtent(x, 3) maximum is not x+2: %s", ir.String(it.Max))
	}
	if ext, ok := ir.IsConstInt(it.Extent()); !ok || ext != 3 {
		t.Errorf("NewExtent(x, 3) extent = %s, want 3", ir.String(it.Extent()))
	}
}

func TestBoundsOf(t *testing.T) {
	x, y := ih.X("x"), ih.X("y")
	scope := interval.Scope{"x": interval.Of(0, 9), "y": interval.Of(0, 4)}
	tests := []struct {
		name   string
		e      ir.Expr
		lo, hi int64
	}{
		{"var", x, 0, 9},
		{"affine", ir.NewAdd(x, ir.NewMul(ih.Int(2), y)), 0, 17},
		{"sub", ir.NewSub(x, y), -4, 9},
		{"neg", ir.NewNeg(x), -9, 0},
		{"min", ir.NewMin(x, ih.Int(5)), 0, 5},
		{"max", ir.NewMax(x, ih.Int(5)), 5, 9},
		{"select", ih.Select(ir.NewLT(x, y), x, ir.NewAdd(y, ih.Int(20))), 0, 24},
		{"let", &ir.LetExpr{Name: "t", Value: ir.NewAdd(x, ih.Int(1)), Body: ir.NewMul(ih.X("t"), ih.Int(2))}, 2, 20},
		{"div", ir.NewDiv(x, ih.Int(2)), 0, 4},
		{"mod", ir.NewMod(x, ih.Int(4)), 0, 3},
	}
	for _, test := range tests {
		lo, hi := constBounds(t, interval.BoundsOf(test.e, scope))
		if lo != test.lo || hi != test.hi {
			t.Errorf("%s: BoundsOf = [%d, %d], want [%d, %d]", test.name, lo, hi, test.lo, test.hi)
		}
	}
	// A free variable is the point of itself, and a load has no bound.
	free := interval.BoundsOf(ih.X("n"), scope)
	if !free.IsPoint() || !ir.Equal(free.Min, ih.X("n")) {
		t.Errorf("a free variable bounds to %s, want the point n", free)
	}
	if got := interval.BoundsOf(ih.Load("buf", x), scope); !got.IsEverything() {
		t.Errorf("a load bounds to %s, want unbounded", got)
	}
}

func TestLinearize(t *testing.T) {
	x, y := ih.X("x"), ih.X("y")
	lf, ok := interval.Linearize(ir.NewSub(ir.NewMul(x, ih.Int(3)), ir.NewSub(y, ih.Int(2))))
	if !ok {
		t.Fatalf("Linearize failed on an affine expression")
	}
	if lf.Coeffs["x"] != 3 || lf.Coeffs["y"] != -1 || lf.Const != 2 {
		t.Errorf("Linearize = %+v, want x:3 y:-1 const:2", lf)
	}
	c, rest := lf.Coeff("x")
	if c != 3 {
		t.Errorf("Coeff(x) = %d, want 3", c)
	}
	restLF, ok := interval.Linearize(rest)
	if !ok || restLF.Coeffs["y"] != -1 || restLF.Const != 2 || len(restLF.Coeffs) != 1 {
		t.Errorf("rest of the form = %s, want -y + 2", ir.String(rest))
	}
	if _, ok := interval.Linearize(ir.NewMul(x, y)); ok {
		t.Errorf("Linearize accepted a product of variables")
	}
	if _, ok := interval.Linearize(ir.NewDiv(x, ih.Int(2))); ok {
		t.Errorf("Linearize accepted a division")
	}
}

// Rebuilding a linear form emits its terms in sorted variable order, so
// the same form always prints the same expression.
func TestLinearFormExprOrder(t *testing.T) {
	lf := &interval.LinearForm{
		Coeffs: map[string]int64{"y": 2, "x": 1, "z": -1},
		Const:  4,
	}
	want := "(((x + (y * 2)) + (z * -1)) + 4)"
	if got := ir.String(lf.Expr()); got != want {
		t.Errorf("Expr = %s, want %s", got, want)
	}
}

func TestProveConst(t *testing.T) {
	x := ih.X("x")
	tests := []struct {
		name string
		e    ir.Expr
		want int64
		ok   bool
	}{
		{"constant", ih.Int(7), 7, true},
		{"cancellation", ir.NewSub(ir.NewAdd(x, ih.Int(5)), ir.NewAdd(x, ih.Int(2))), 3, true},
		{"scaled", ir.NewSub(ir.NewMul(x, ih.Int(2)), ir.NewAdd(x, x)), 0, true},
		{"free variable", ir.NewAdd(x, ih.Int(1)), 0, false},
	}
	for _, test := range tests {
		got, ok := interval.ProveConst(test.e)
		if ok != test.ok || (ok && got != test.want) {
			t.Errorf("%s: ProveConst = (%d, %t), want (%d, %t)", test.name, got, ok, test.want, test.ok)
		}
	}
}
