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

import (
	"fmt"
	"strings"
)

// String returns an indented rendering of a statement tree. The output is
// stable across runs and used by golden tests.
func String(n Node) string {
	var b strings.Builder
	writeNode(&b, n, 0)
	return b.String()
}

func indent(b *strings.Builder, depth int) {
	for range depth {
		b.WriteString("  ")
	}
}

func writeNode(b *strings.Builder, n Node, depth int) {
	switch node := n.(type) {
	case Expr:
		b.WriteString(exprString(node))
	case *StoreStmt:
		indent(b, depth)
		fmt.Fprintf(b, "%s[%s] = %s\n", node.Buffer, exprString(node.Index), exprString(node.Value))
	case *LetStmt:
		indent(b, depth)
		fmt.Fprintf(b, "let %s = %s\n", node.Name, exprString(node.Value))
		writeNode(b, node.Body, depth)
	case *AssertStmt:
		indent(b, depth)
		fmt.Fprintf(b, "assert(%s, %q)\n", exprString(node.Cond), node.Message)
	case *ForStmt:
		indent(b, depth)
		kind := ""
		if node.Kind != Serial {
			kind = node.Kind.String() + " "
		}
		fmt.Fprintf(b, "%sfor %s in [%s, %s + %s) {\n", kind, node.Name,
			exprString(node.Min), exprString(node.Min), exprString(node.Extent))
		writeNode(b, node.Body, depth+1)
		indent(b, depth)
		b.WriteString("}\n")
	case *IfStmt:
		indent(b, depth)
		fmt.Fprintf(b, "if %s {\n", exprString(node.Cond))
		writeNode(b, node.Then, depth+1)
		if node.Else != nil {
			indent(b, depth)
			b.WriteString("} else {\n")
			writeNode(b, node.Else, depth+1)
		}
		indent(b, depth)
		b.WriteString("}\n")
	case *BlockStmt:
		for _, s := range node.Stmts {
			writeNode(b, s, depth)
		}
	case *ProduceStmt:
		indent(b, depth)
		fmt.Fprintf(b, "produce %s {\n", node.Stage)
		writeNode(b, node.Body, depth+1)
		indent(b, depth)
		b.WriteString("}\n")
	case *ConsumeStmt:
		indent(b, depth)
		fmt.Fprintf(b, "consume %s {\n", node.Stage)
		writeNode(b, node.Body, depth+1)
		indent(b, depth)
		b.WriteString("}\n")
	case *AllocateStmt:
		indent(b, depth)
		extents := make([]string, len(node.Extents))
		for i, e := range node.Extents {
			extents[i] = exprString(e)
		}
		fmt.Fprintf(b, "allocate %s[%s x %s] {\n", node.Buffer, node.Typ, strings.Join(extents, " x "))
		writeNode(b, node.Body, depth+1)
		indent(b, depth)
		b.WriteString("}\n")
	case *ParForStmt:
		indent(b, depth)
		fmt.Fprintf(b, "parfor %s in [%s, %s + %s) {\n", node.Name,
			exprString(node.Min), exprString(node.Min), exprString(node.Extent))
		writeNode(b, node.Body, depth+1)
		indent(b, depth)
		b.WriteString("}\n")
	case *EvalStmt:
		indent(b, depth)
		fmt.Fprintf(b, "eval %s\n", exprString(node.X))
	case nil:
	default:
		panic(malformed("cannot print node of type %T", n))
	}
}

func exprString(e Expr) string {
	switch expr := e.(type) {
	case *IntImm:
		return fmt.Sprintf("%d", expr.Value)
	case *FloatImm:
		return fmt.Sprintf("%gf", expr.Value)
	case *BoolImm:
		return fmt.Sprintf("%t", expr.Value)
	case *Var:
		return expr.Name
	case *BinaryExpr:
		if expr.Op == Min || expr.Op == Max {
			return fmt.Sprintf("%s(%s, %s)", expr.Op, exprString(expr.X), exprString(expr.Y))
		}
		return fmt.Sprintf("(%s %s %s)", exprString(expr.X), expr.Op, exprString(expr.Y))
	case *UnaryExpr:
		return fmt.Sprintf("%s%s", expr.Op, exprString(expr.X))
	case *CastExpr:
		return fmt.Sprintf("%s(%s)", expr.Typ, exprString(expr.X))
	case *SelectExpr:
		return fmt.Sprintf("select(%s, %s, %s)", exprString(expr.Cond), exprString(expr.True), exprString(expr.False))
	case *LoadExpr:
		return fmt.Sprintf("%s[%s]", expr.Buffer, exprString(expr.Index))
	case *CallExpr:
		args := make([]string, len(expr.Args))
		for i, arg := range expr.Args {
			args[i] = exprString(arg)
		}
		name := expr.Stage
		if expr.Value > 0 {
			name = fmt.Sprintf("%s.%d", name, expr.Value)
		}
		return fmt.Sprintf("%s(%s)", name, strings.Join(args, ", "))
	case *Ramp:
		return fmt.Sprintf("ramp(%s, %s, %d)", exprString(expr.Base), exprString(expr.Stride), expr.Lanes)
	case *Broadcast:
		return fmt.Sprintf("x%d(%s)", expr.Lanes, exprString(expr.Value))
	case *LetExpr:
		return fmt.Sprintf("(let %s = %s in %s)", expr.Name, exprString(expr.Value), exprString(expr.Body))
	}
	panic(malformed("cannot print expression of type %T", e))
}
