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
	"sort"

	"github.com/gx-org/stencil/build/ir"
	"golang.org/x/exp/maps"
)

// LinearForm is an integer expression written as a sum of variable terms
// plus a constant.
type LinearForm struct {
	Coeffs map[string]int64
	Const  int64
}

// Linearize writes an integer expression as a linear form over its
// variables. It fails on any non-linear operator.
func Linearize(e ir.Expr) (*LinearForm, bool) {
	lf := &LinearForm{Coeffs: map[string]int64{}}
	if !linearize(e, 1, lf) {
		return nil, false
	}
	for name, c := range lf.Coeffs {
		if c == 0 {
			delete(lf.Coeffs, name)
		}
	}
	return lf, true
}

func linearize(e ir.Expr, scale int64, lf *LinearForm) bool {
	switch expr := e.(type) {
	case *ir.IntImm:
		lf.Const += scale * expr.Value
		return true
	case *ir.Var:
		lf.Coeffs[expr.Name] += scale
		return true
	case *ir.UnaryExpr:
		if expr.Op != ir.Neg {
			return false
		}
		return linearize(expr.X, -scale, lf)
	case *ir.BinaryExpr:
		switch expr.Op {
		case ir.Add:
			return linearize(expr.X, scale, lf) && linearize(expr.Y, scale, lf)
		case ir.Sub:
			return linearize(expr.X, scale, lf) && linearize(expr.Y, -scale, lf)
		case ir.Mul:
			if c, ok := ir.IsConstInt(expr.Y); ok {
				return linearize(expr.X, scale*c, lf)
			}
			if c, ok := ir.IsConstInt(expr.X); ok {
				return linearize(expr.Y, scale*c, lf)
			}
		}
	}
	return false
}

// Coeff returns the coefficient of one variable and the rest of the form
// as an expression.
func (lf *LinearForm) Coeff(name string) (int64, ir.Expr) {
	c := lf.Coeffs[name]
	rest := &LinearForm{Coeffs: map[string]int64{}, Const: lf.Const}
	for n, v := range lf.Coeffs {
		if n != name {
			rest.Coeffs[n] = v
		}
	}
	return c, rest.Expr()
}

// Expr rebuilds the linear form as an expression.
func (lf *LinearForm) Expr() ir.Expr {
	e := ir.Expr(nil)
	add := func(term ir.Expr) {
		if e == nil {
			e = term
		} else {
			e = ir.NewAdd(e, term)
		}
	}
	for _, name := range sortedKeys(lf.Coeffs) {
		c := lf.Coeffs[name]
		v := &ir.Var{Name: name, Typ: ir.IndexType()}
		switch c {
		case 0:
		case 1:
			add(v)
		default:
			add(ir.NewMul(v, ir.Const(c)))
		}
	}
	if e == nil || lf.Const != 0 {
		add(ir.Const(lf.Const))
	}
	return e
}

// ProveConst reports whether an expression provably equals one constant,
// canceling variables that plain structural folding cannot.
func ProveConst(e ir.Expr) (int64, bool) {
	if v, ok := ir.IsConstInt(e); ok {
		return v, true
	}
	lf, ok := Linearize(e)
	if !ok || len(lf.Coeffs) > 0 {
		return 0, false
	}
	return lf.Const, true
}

func sortedKeys(m map[string]int64) []string {
	keys := maps.Keys(m)
	sort.Strings(keys)
	return keys
}
