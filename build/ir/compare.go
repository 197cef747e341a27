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

// Equal reports structural equality of two trees. Shared subtrees compare
// equal by pointer without descending.
func Equal(a, b Node) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	switch na := a.(type) {
	case *IntImm:
		nb, ok := b.(*IntImm)
		return ok && na.Typ == nb.Typ && na.Value == nb.Value
	case *FloatImm:
		nb, ok := b.(*FloatImm)
		return ok && na.Typ == nb.Typ && na.Value == nb.Value
	case *BoolImm:
		nb, ok := b.(*BoolImm)
		return ok && na.Value == nb.Value
	case *Var:
		nb, ok := b.(*Var)
		return ok && na.Name == nb.Name && na.Typ == nb.Typ
	case *BinaryExpr:
		nb, ok := b.(*BinaryExpr)
		return ok && na.Op == nb.Op && Equal(na.X, nb.X) && Equal(na.Y, nb.Y)
	case *UnaryExpr:
		nb, ok := b.(*UnaryExpr)
		return ok && na.Op == nb.Op && Equal(na.X, nb.X)
	case *CastExpr:
		nb, ok := b.(*CastExpr)
		return ok && na.Typ == nb.Typ && Equal(na.X, nb.X)
	case *SelectExpr:
		nb, ok := b.(*SelectExpr)
		return ok && Equal(na.Cond, nb.Cond) && Equal(na.True, nb.True) && Equal(na.False, nb.False)
	case *LoadExpr:
		nb, ok := b.(*LoadExpr)
		return ok && na.Buffer == nb.Buffer && na.Typ == nb.Typ && Equal(na.Index, nb.Index)
	case *CallExpr:
		nb, ok := b.(*CallExpr)
		if !ok || na.Stage != nb.Stage || na.Value != nb.Value || len(na.Args) != len(nb.Args) {
			return false
		}
		for i := range na.Args {
			if !Equal(na.Args[i], nb.Args[i]) {
				return false
			}
		}
		return true
	case *Ramp:
		nb, ok := b.(*Ramp)
		return ok && na.Lanes == nb.Lanes && Equal(na.Base, nb.Base) && Equal(na.Stride, nb.Stride)
	case *Broadcast:
		nb, ok := b.(*Broadcast)
		return ok && na.Lanes == nb.Lanes && Equal(na.Value, nb.Value)
	case *LetExpr:
		nb, ok := b.(*LetExpr)
		return ok && na.Name == nb.Name && Equal(na.Value, nb.Value) && Equal(na.Body, nb.Body)
	case *StoreStmt:
		nb, ok := b.(*StoreStmt)
		return ok && na.Buffer == nb.Buffer && Equal(na.Index, nb.Index) && Equal(na.Value, nb.Value)
	case *LetStmt:
		nb, ok := b.(*LetStmt)
		return ok && na.Name == nb.Name && Equal(na.Value, nb.Value) && Equal(na.Body, nb.Body)
	case *AssertStmt:
		nb, ok := b.(*AssertStmt)
		return ok && na.Message == nb.Message && Equal(na.Cond, nb.Cond)
	case *ForStmt:
		nb, ok := b.(*ForStmt)
		return ok && na.Name == nb.Name && na.Kind == nb.Kind &&
			Equal(na.Min, nb.Min) && Equal(na.Extent, nb.Extent) && Equal(na.Body, nb.Body)
	case *IfStmt:
		nb, ok := b.(*IfStmt)
		if !ok || !Equal(na.Cond, nb.Cond) || !Equal(na.Then, nb.Then) {
			return false
		}
		if (na.Else == nil) != (nb.Else == nil) {
			return false
		}
		return na.Else == nil || Equal(na.Else, nb.Else)
	case *BlockStmt:
		nb, ok := b.(*BlockStmt)
		if !ok || len(na.Stmts) != len(nb.Stmts) {
			return false
		}
		for i := range na.Stmts {
			if !Equal(na.Stmts[i], nb.Stmts[i]) {
				return false
			}
		}
		return true
	case *ProduceStmt:
		nb, ok := b.(*ProduceStmt)
		return ok && na.Stage == nb.Stage && Equal(na.Body, nb.Body)
	case *ConsumeStmt:
		nb, ok := b.(*ConsumeStmt)
		return ok && na.Stage == nb.Stage && Equal(na.Body, nb.Body)
	case *AllocateStmt:
		nb, ok := b.(*AllocateStmt)
		if !ok || na.Buffer != nb.Buffer || na.Typ != nb.Typ || len(na.Extents) != len(nb.Extents) {
			return false
		}
		for i := range na.Extents {
			if !Equal(na.Extents[i], nb.Extents[i]) {
				return false
			}
		}
		return Equal(na.Body, nb.Body)
	case *ParForStmt:
		nb, ok := b.(*ParForStmt)
		return ok && na.Name == nb.Name &&
			Equal(na.Min, nb.Min) && Equal(na.Extent, nb.Extent) && Equal(na.Body, nb.Body)
	case *EvalStmt:
		nb, ok := b.(*EvalStmt)
		return ok && Equal(na.X, nb.X)
	}
	return false
}
