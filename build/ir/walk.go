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

// Walk traverses the tree rooted at n in depth-first order, calling f for
// each node. If f returns false for a node, its children are skipped.
func Walk(n Node, f func(Node) bool) {
	if n == nil || !f(n) {
		return
	}
	switch node := n.(type) {
	case *IntImm, *FloatImm, *BoolImm, *Var:
	case *BinaryExpr:
		Walk(node.X, f)
		Walk(node.Y, f)
	case *UnaryExpr:
		Walk(node.X, f)
	case *CastExpr:
		Walk(node.X, f)
	case *SelectExpr:
		Walk(node.Cond, f)
		Walk(node.True, f)
		Walk(node.False, f)
	case *LoadExpr:
		Walk(node.Index, f)
	case *CallExpr:
		for _, arg := range node.Args {
			Walk(arg, f)
		}
	case *Ramp:
		Walk(node.Base, f)
		Walk(node.Stride, f)
	case *Broadcast:
		Walk(node.Value, f)
	case *LetExpr:
		Walk(node.Value, f)
		Walk(node.Body, f)
	case *StoreStmt:
		Walk(node.Index, f)
		Walk(node.Value, f)
	case *LetStmt:
		Walk(node.Value, f)
		Walk(node.Body, f)
	case *AssertStmt:
		Walk(node.Cond, f)
	case *ForStmt:
		Walk(node.Min, f)
		Walk(node.Extent, f)
		Walk(node.Body, f)
	case *IfStmt:
		Walk(node.Cond, f)
		Walk(node.Then, f)
		if node.Else != nil {
			Walk(node.Else, f)
		}
	case *BlockStmt:
		for _, s := range node.Stmts {
			Walk(s, f)
		}
	case *ProduceStmt:
		Walk(node.Body, f)
	case *ConsumeStmt:
		Walk(node.Body, f)
	case *AllocateStmt:
		for _, e := range node.Extents {
			Walk(e, f)
		}
		Walk(node.Body, f)
	case *ParForStmt:
		Walk(node.Min, f)
		Walk(node.Extent, f)
		Walk(node.Body, f)
	case *EvalStmt:
		Walk(node.X, f)
	default:
		panic(malformed("cannot walk node of type %T", n))
	}
}

// Count returns the number of nodes in the tree for which f returns true.
func Count(n Node, f func(Node) bool) int {
	count := 0
	Walk(n, func(node Node) bool {
		if f(node) {
			count++
		}
		return true
	})
	return count
}

// UsesVar reports whether the tree references a variable by name.
func UsesVar(n Node, name string) bool {
	found := false
	Walk(n, func(node Node) bool {
		if v, ok := node.(*Var); ok && v.Name == name {
			found = true
		}
		return !found
	})
	return found
}
