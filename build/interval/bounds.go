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

package interval

import (
	"github.com/gx-org/stencil/build/ir"
)

// Scope maps variable names to the interval of values they take.
// Variables absent from the scope are symbolic: they are treated as the
// exact point interval of themselves (a scalar parameter is one value,
// whatever it is).
type Scope map[string]Interval

// With returns a scope extended with one binding. The receiver is not
// modified.
func (s Scope) With(name string, i Interval) Scope {
	next := make(Scope, len(s)+1)
	for k, v := range s {
		next[k] = v
	}
	next[name] = i
	return next
}

// BoundsOf computes a sound interval for an integer expression given
// bounds on its free variables. Operators without a precise derivation
// rule fall back to unbounded.
func BoundsOf(e ir.Expr, scope Scope) Interval {
	switch expr := e.(type) {
	case *ir.IntImm:
		return Point(expr)
	case *ir.Var:
		if i, ok := scope[expr.Name]; ok {
			return i
		}
		return Point(expr)
	case *ir.BinaryExpr:
		return binaryBounds(expr, scope)
	case *ir.UnaryExpr:
		if expr.Op == ir.Neg {
			return Sub(Point(ir.Const(0)), BoundsOf(expr.X, scope))
		}
	case *ir.CastExpr:
		// Overflow during a narrowing cast is the caller's contract;
		// bounds pass through the conversion.
		if expr.Typ.IsInteger() {
			return BoundsOf(expr.X, scope)
		}
	case *ir.SelectExpr:
		return Union(BoundsOf(expr.True, scope), BoundsOf(expr.False, scope))
	case *ir.LetExpr:
		return BoundsOf(expr.Body, scope.With(expr.Name, BoundsOf(expr.Value, scope)))
	}
	// Loads, calls, and boolean expressions have no derivable integer
	// bound.
	return Everything()
}

func binaryBounds(expr *ir.BinaryExpr, scope Scope) Interval {
	x := BoundsOf(expr.X, scope)
	y := BoundsOf(expr.Y, scope)
	switch expr.Op {
	case ir.Add:
		return Add(x, y)
	case ir.Sub:
		return Sub(x, y)
	case ir.Mul:
		return Mul(x, y)
	case ir.Div:
		return Div(x, y)
	case ir.Mod:
		return Mod(x, y)
	case ir.Min:
		return minBounds(x, y)
	case ir.Max:
		return maxBounds(x, y)
	}
	return Everything()
}

func minBounds(x, y Interval) Interval {
	var min, max ir.Expr
	if x.Min != nil && y.Min != nil {
		min = foldMin(x.Min, y.Min)
	}
	switch {
	case x.Max != nil && y.Max != nil:
		max = foldMin(x.Max, y.Max)
	case x.Max != nil:
		max = x.Max
	case y.Max != nil:
		max = y.Max
	}
	return Interval{Min: min, Max: max}
}

func maxBounds(x, y Interval) Interval {
	var min, max ir.Expr
	if x.Max != nil && y.Max != nil {
		max = foldMax(x.Max, y.Max)
	}
	switch {
	case x.Min != nil && y.Min != nil:
		min = foldMax(x.Min, y.Min)
	case x.Min != nil:
		min = x.Min
	case y.Min != nil:
		min = y.Min
	}
	return Interval{Min: min, Max: max}
}
