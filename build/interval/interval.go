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

// Package interval is the symbolic algebra over integer intervals used by
// bounds inference and conditional elimination.
//
// An interval bound is an expression over loop variables and scalar
// parameters; a nil bound means unbounded on that side. Bounds are
// inclusive. The contract of every operation is soundness: a computed
// interval always contains every value the exact result can take.
// Precision may be lost; it is never gained.
package interval

import (
	"github.com/gx-org/stencil/build/ir"
)

// Interval is a pair of symbolic inclusive bounds. A nil Min or Max means
// the interval is unbounded on that side.
type Interval struct {
	Min, Max ir.Expr
}

// Everything returns the interval with no bound on either side.
func Everything() Interval {
	return Interval{}
}

// Point returns the interval holding exactly the value of e.
func Point(e ir.Expr) Interval {
	return Interval{Min: e, Max: e}
}

// Of returns the constant interval [lo, hi].
func Of(lo, hi int64) Interval {
	return Interval{Min: ir.Const(lo), Max: ir.Const(hi)}
}

// NewExtent returns the interval [min, min+extent-1].
func NewExtent(min, extent ir.Expr) Interval {
	return Interval{
		Min: min,
		Max: foldSub(foldAdd(min, extent), ir.Const(1)),
	}
}

// HasLowerBound reports if the interval is bounded below.
func (i Interval) HasLowerBound() bool { return i.Min != nil }

// HasUpperBound reports if the interval is bounded above.
func (i Interval) HasUpperBound() bool { return i.Max != nil }

// IsBounded reports if the interval is bounded on both sides.
func (i Interval) IsBounded() bool { return i.Min != nil && i.Max != nil }

// IsEverything reports if the interval is unbounded on both sides.
func (i Interval) IsEverything() bool { return i.Min == nil && i.Max == nil }

// IsPoint reports if both bounds are the same expression.
func (i Interval) IsPoint() bool {
	return i.Min != nil && i.Max != nil && ir.Equal(i.Min, i.Max)
}

// Extent returns max-min+1, or nil when a side is unbounded.
func (i Interval) Extent() ir.Expr {
	if !i.IsBounded() {
		return nil
	}
	return foldAdd(foldSub(i.Max, i.Min), ir.Const(1))
}

// ConstBounds returns the bounds when both are integer constants.
func (i Interval) ConstBounds() (lo, hi int64, ok bool) {
	if !i.IsBounded() {
		return 0, 0, false
	}
	lo, lok := ir.IsConstInt(i.Min)
	hi, hok := ir.IsConstInt(i.Max)
	return lo, hi, lok && hok
}

// String representation of the interval.
func (i Interval) String() string {
	min, max := "-inf", "+inf"
	if i.Min != nil {
		min = ir.String(i.Min)
	}
	if i.Max != nil {
		max = ir.String(i.Max)
	}
	return "[" + min + ", " + max + "]"
}

// Union returns an interval containing both operands.
func Union(a, b Interval) Interval {
	var min, max ir.Expr
	if a.Min != nil && b.Min != nil {
		min = foldMin(a.Min, b.Min)
	}
	if a.Max != nil && b.Max != nil {
		max = foldMax(a.Max, b.Max)
	}
	return Interval{Min: min, Max: max}
}

// Intersect returns an interval contained in both operands. The result
// may be empty (min greater than max) when the operands are disjoint.
func Intersect(a, b Interval) Interval {
	min, max := a.Min, a.Max
	if min == nil {
		min = b.Min
	} else if b.Min != nil {
		min = foldMax(min, b.Min)
	}
	if max == nil {
		max = b.Max
	} else if b.Max != nil {
		max = foldMin(max, b.Max)
	}
	return Interval{Min: min, Max: max}
}

// Add returns the interval of x+y for x in a and y in b.
func Add(a, b Interval) Interval {
	var min, max ir.Expr
	if a.Min != nil && b.Min != nil {
		min = foldAdd(a.Min, b.Min)
	}
	if a.Max != nil && b.Max != nil {
		max = foldAdd(a.Max, b.Max)
	}
	return Interval{Min: min, Max: max}
}

// Sub returns the interval of x-y for x in a and y in b.
func Sub(a, b Interval) Interval {
	var min, max ir.Expr
	if a.Min != nil && b.Max != nil {
		min = foldSub(a.Min, b.Max)
	}
	if a.Max != nil && b.Min != nil {
		max = foldSub(a.Max, b.Min)
	}
	return Interval{Min: min, Max: max}
}

// Mul returns an interval containing x*y for x in a and y in b.
//
// The precise cases are a constant-sign point multiplier and fully
// constant operands; anything else falls back to unbounded, which is
// sound.
func Mul(a, b Interval) Interval {
	if b.IsPoint() {
		return mulByPoint(a, b.Min)
	}
	if a.IsPoint() {
		return mulByPoint(b, a.Min)
	}
	alo, ahi, aok := a.ConstBounds()
	blo, bhi, bok := b.ConstBounds()
	if aok && bok {
		lo, hi := minMax4(alo*blo, alo*bhi, ahi*blo, ahi*bhi)
		return Of(lo, hi)
	}
	return Everything()
}

func mulByPoint(a Interval, factor ir.Expr) Interval {
	c, ok := ir.IsConstInt(factor)
	if !ok {
		// The multiplier's sign is unknown: the bounds cannot be
		// oriented.
		return Everything()
	}
	var min, max ir.Expr
	if c >= 0 {
		if a.Min != nil {
			min = foldMul(a.Min, ir.Const(c))
		}
		if a.Max != nil {
			max = foldMul(a.Max, ir.Const(c))
		}
	} else {
		if a.Max != nil {
			min = foldMul(a.Max, ir.Const(c))
		}
		if a.Min != nil {
			max = foldMul(a.Min, ir.Const(c))
		}
	}
	return Interval{Min: min, Max: max}
}

// Div returns an interval containing x/y (flooring division) for x in a
// and y in b. Only constant divisors are derived precisely; a divisor
// interval of unknown sign falls back to unbounded.
func Div(a, b Interval) Interval {
	if !b.IsPoint() {
		return Everything()
	}
	c, ok := ir.IsConstInt(b.Min)
	if !ok || c == 0 {
		return Everything()
	}
	var min, max ir.Expr
	if c > 0 {
		if a.Min != nil {
			min = foldDiv(a.Min, ir.Const(c))
		}
		if a.Max != nil {
			max = foldDiv(a.Max, ir.Const(c))
		}
	} else {
		if a.Max != nil {
			min = foldDiv(a.Max, ir.Const(c))
		}
		if a.Min != nil {
			max = foldDiv(a.Min, ir.Const(c))
		}
	}
	return Interval{Min: min, Max: max}
}

// Mod returns an interval containing the Euclidean remainder of x by y
// for x in a and y in b. Only a constant positive divisor is derived
// precisely.
func Mod(a, b Interval) Interval {
	if !b.IsPoint() {
		return Everything()
	}
	c, ok := ir.IsConstInt(b.Min)
	if !ok || c <= 0 {
		return Everything()
	}
	if alo, ahi, aok := a.ConstBounds(); aok && alo >= 0 && ahi < c {
		// The remainder is the identity over [0, c).
		return a
	}
	return Of(0, c-1)
}

func minMax4(a, b, c, d int64) (lo, hi int64) {
	lo, hi = a, a
	for _, v := range []int64{b, c, d} {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}
