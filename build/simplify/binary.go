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

package simplify

import (
	"github.com/gx-org/stencil/build/ir"
)

func binary(node *ir.BinaryExpr) ir.Node {
	if folded, ok := foldConst(node); ok {
		return folded
	}
	x, y := node.X, node.Y
	xc, xok := ir.IsConstInt(x)
	yc, yok := ir.IsConstInt(y)
	switch node.Op {
	case ir.Add:
		if yok && yc == 0 {
			return x
		}
		if xok && xc == 0 {
			return y
		}
	case ir.Sub:
		if yok && yc == 0 {
			return x
		}
		if x.Type().IsInteger() && ir.Equal(x, y) {
			return ir.Zero(x.Type())
		}
	case ir.Mul:
		if yok && yc == 1 {
			return x
		}
		if xok && xc == 1 {
			return y
		}
		if (yok && yc == 0) || (xok && xc == 0) {
			return ir.Zero(node.Typ)
		}
	case ir.Div:
		if yok && yc == 1 {
			return x
		}
	case ir.Min, ir.Max:
		if ir.Equal(x, y) {
			return x
		}
	case ir.And:
		if v, ok := ir.IsConstBool(x); ok {
			if !v {
				return &ir.BoolImm{Value: false}
			}
			return y
		}
		if v, ok := ir.IsConstBool(y); ok {
			if !v {
				return &ir.BoolImm{Value: false}
			}
			return x
		}
	case ir.Or:
		if v, ok := ir.IsConstBool(x); ok {
			if v {
				return &ir.BoolImm{Value: true}
			}
			return y
		}
		if v, ok := ir.IsConstBool(y); ok {
			if v {
				return &ir.BoolImm{Value: true}
			}
			return x
		}
	case ir.EQ, ir.LE, ir.GE:
		if x.Type().IsInteger() && ir.Equal(x, y) {
			return &ir.BoolImm{Value: true}
		}
	case ir.NE, ir.LT, ir.GT:
		if x.Type().IsInteger() && ir.Equal(x, y) {
			return &ir.BoolImm{Value: false}
		}
	}
	return node
}

func foldConst(node *ir.BinaryExpr) (ir.Expr, bool) {
	if xi, ok := ir.IsConstInt(node.X); ok {
		if yi, ok := ir.IsConstInt(node.Y); ok {
			return foldInt(node, xi, yi)
		}
	}
	xf, xok := node.X.(*ir.FloatImm)
	yf, yok := node.Y.(*ir.FloatImm)
	if xok && yok {
		return foldFloat(node, xf.Value, yf.Value)
	}
	return nil, false
}

func foldInt(node *ir.BinaryExpr, x, y int64) (ir.Expr, bool) {
	typ := node.X.Type()
	imm := func(v int64) (ir.Expr, bool) { return &ir.IntImm{Typ: typ, Value: v}, true }
	cmp := func(v bool) (ir.Expr, bool) { return &ir.BoolImm{Value: v}, true }
	switch node.Op {
	case ir.Add:
		return imm(x + y)
	case ir.Sub:
		return imm(x - y)
	case ir.Mul:
		return imm(x * y)
	case ir.Div:
		if y == 0 {
			return nil, false
		}
		return imm(ir.FloorDiv(x, y))
	case ir.Mod:
		if y == 0 {
			return nil, false
		}
		return imm(ir.FloorMod(x, y))
	case ir.Min:
		return imm(min(x, y))
	case ir.Max:
		return imm(max(x, y))
	case ir.EQ:
		return cmp(x == y)
	case ir.NE:
		return cmp(x != y)
	case ir.LT:
		return cmp(x < y)
	case ir.LE:
		return cmp(x <= y)
	case ir.GT:
		return cmp(x > y)
	case ir.GE:
		return cmp(x >= y)
	}
	return nil, false
}

func foldFloat(node *ir.BinaryExpr, x, y float64) (ir.Expr, bool) {
	typ := node.X.Type()
	imm := func(v float64) (ir.Expr, bool) { return &ir.FloatImm{Typ: typ, Value: v}, true }
	cmp := func(v bool) (ir.Expr, bool) { return &ir.BoolImm{Value: v}, true }
	switch node.Op {
	case ir.Add:
		return imm(x + y)
	case ir.Sub:
		return imm(x - y)
	case ir.Mul:
		return imm(x * y)
	case ir.Div:
		if y == 0 {
			return nil, false
		}
		return imm(x / y)
	case ir.Min:
		return imm(min(x, y))
	case ir.Max:
		return imm(max(x, y))
	case ir.EQ:
		return cmp(x == y)
	case ir.NE:
		return cmp(x != y)
	case ir.LT:
		return cmp(x < y)
	case ir.LE:
		return cmp(x <= y)
	case ir.GT:
		return cmp(x > y)
	case ir.GE:
		return cmp(x >= y)
	}
	return nil, false
}
