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

// Bound expressions are built through small folding constructors so that
// constant bounds stay constant. Full algebraic simplification is the
// simplify pass's job; here only enough folding happens for constant
// bound checks to see through the arithmetic.

func foldAdd(x, y ir.Expr) ir.Expr {
	xv, xok := ir.IsConstInt(x)
	yv, yok := ir.IsConstInt(y)
	switch {
	case xok && yok:
		return ir.Const(xv + yv)
	case xok && xv == 0:
		return y
	case yok && yv == 0:
		return x
	}
	return ir.NewAdd(x, y)
}

func foldSub(x, y ir.Expr) ir.Expr {
	if yv, ok := ir.IsConstInt(y); ok && yv == 0 {
		return x
	}
	// Differences of bounds over the same variables are constants in
	// disguise; extents in particular.
	if d, ok := ProveConst(ir.NewSub(x, y)); ok {
		return ir.Const(d)
	}
	return ir.NewSub(x, y)
}

func foldMul(x, y ir.Expr) ir.Expr {
	xv, xok := ir.IsConstInt(x)
	yv, yok := ir.IsConstInt(y)
	switch {
	case xok && yok:
		return ir.Const(xv * yv)
	case xok && xv == 1:
		return y
	case yok && yv == 1:
		return x
	case (xok && xv == 0) || (yok && yv == 0):
		return ir.Const(0)
	}
	return ir.NewMul(x, y)
}

func foldDiv(x, y ir.Expr) ir.Expr {
	xv, xok := ir.IsConstInt(x)
	yv, yok := ir.IsConstInt(y)
	switch {
	case xok && yok && yv != 0:
		return ir.Const(ir.FloorDiv(xv, yv))
	case yok && yv == 1:
		return x
	}
	return ir.NewDiv(x, y)
}

// foldMin resolves the ordering through the linear form, so bounds like
// min(y, y+1) collapse even when neither side is constant.
func foldMin(x, y ir.Expr) ir.Expr {
	if d, ok := ProveConst(ir.NewSub(x, y)); ok {
		if d <= 0 {
			return x
		}
		return y
	}
	if ir.Equal(x, y) {
		return x
	}
	return ir.NewMin(x, y)
}

func foldMax(x, y ir.Expr) ir.Expr {
	if d, ok := ProveConst(ir.NewSub(x, y)); ok {
		if d >= 0 {
			return x
		}
		return y
	}
	if ir.Equal(x, y) {
		return x
	}
	return ir.NewMax(x, y)
}
