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

// Package irhelper provides helper functions to build IR programmatically
// in tests.
package irhelper

import (
	"github.com/gx-org/stencil/build/ir"
)

// X returns the index-typed variable of a coordinate dimension.
func X(name string) *ir.Var {
	return &ir.Var{Name: name, Typ: ir.IndexType()}
}

// Var returns a variable of an explicit type.
func Var(name string, typ ir.Type) *ir.Var {
	return &ir.Var{Name: name, Typ: typ}
}

// Int returns an index-typed integer constant.
func Int(v int64) *ir.IntImm {
	return ir.Const(v)
}

// Float returns a 64-bit floating point constant.
func Float(v float64) *ir.FloatImm {
	return &ir.FloatImm{Typ: ir.Float64Type(), Value: v}
}

// Call returns a call to a stage's first value at the given coordinates.
func Call(stage string, typ ir.Type, args ...ir.Expr) *ir.CallExpr {
	return &ir.CallExpr{Stage: stage, Args: args, Typ: typ}
}

// Select returns cond ? t : f and panics on a type mismatch.
func Select(cond, t, f ir.Expr) ir.Expr {
	e, err := ir.NewSelect(cond, t, f)
	if err != nil {
		panic(err)
	}
	return e
}

// Within returns the boolean expression lo <= x && x <= hi.
func Within(x ir.Expr, lo, hi int64) ir.Expr {
	return ir.NewAnd(ir.NewGE(x, Int(lo)), ir.NewLE(x, Int(hi)))
}

// Load returns a load of an index-typed element.
func Load(buffer string, index ir.Expr) *ir.LoadExpr {
	return &ir.LoadExpr{Buffer: buffer, Index: index, Typ: ir.IndexType()}
}

// Store returns a store of an expression at an index.
func Store(buffer string, index, value ir.Expr) *ir.StoreStmt {
	return &ir.StoreStmt{Buffer: buffer, Index: index, Value: value}
}

// For returns a serial loop.
func For(name string, min, extent int64, body ir.Stmt) *ir.ForStmt {
	return &ir.ForStmt{Name: name, Min: Int(min), Extent: Int(extent), Body: body}
}
