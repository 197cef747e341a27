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

// Package ir is the stencil Intermediate Representation (IR) tree.
//
// The tree holds the imperative form of a pipeline: expressions over loop
// variables and statements realizing stage computations as loop nests.
// Nodes are immutable once constructed. Transformation passes never edit a
// node in place; they build new trees through [RewriteExpr] and
// [RewriteStmt], sharing unchanged subtrees.
package ir

import (
	"fmt"

	"github.com/pkg/errors"
)

// ----------------------------------------------------------------------------
// Types of node in the tree.
type (
	// Node in the tree.
	Node interface {
		// node marks a structure as a node structure.
		// It prevents external implementations of the interface.
		node()
	}

	// Expr is an expression node. Every expression carries a concrete
	// scalar or vector type.
	Expr interface {
		Node
		Type() Type
	}

	// Stmt is a statement node.
	Stmt interface {
		Node
		stmt()
	}
)

// ----------------------------------------------------------------------------
// Operators.

// BinaryOp identifies a binary operator.
type BinaryOp int

// Binary operators. Comparisons yield a boolean of the operand lane count.
const (
	InvalidOp BinaryOp = iota
	Add
	Sub
	Mul
	Div
	Mod
	Min
	Max
	EQ
	NE
	LT
	LE
	GT
	GE
	And
	Or
)

var binaryOpNames = [...]string{
	InvalidOp: "invalid",
	Add:       "+",
	Sub:       "-",
	Mul:       "*",
	Div:       "/",
	Mod:       "%",
	Min:       "min",
	Max:       "max",
	EQ:        "==",
	NE:        "!=",
	LT:        "<",
	LE:        "<=",
	GT:        ">",
	GE:        ">=",
	And:       "&&",
	Or:        "||",
}

// String representation of the operator.
func (op BinaryOp) String() string {
	if op < 0 || int(op) >= len(binaryOpNames) {
		return fmt.Sprintf("BinaryOp(%d)", int(op))
	}
	return binaryOpNames[op]
}

// IsComparison reports if the operator compares its operands.
func (op BinaryOp) IsComparison() bool {
	return op >= EQ && op <= GE
}

// IsBoolean reports if the operator requires boolean operands.
func (op BinaryOp) IsBoolean() bool {
	return op == And || op == Or
}

// UnaryOp identifies a unary operator.
type UnaryOp int

// Unary operators.
const (
	Neg UnaryOp = iota + 1
	Not
)

// String representation of the operator.
func (op UnaryOp) String() string {
	switch op {
	case Neg:
		return "-"
	case Not:
		return "!"
	}
	return fmt.Sprintf("UnaryOp(%d)", int(op))
}

// ----------------------------------------------------------------------------
// Expressions.
type (
	// IntImm is an integer constant.
	IntImm struct {
		Typ   Type
		Value int64
	}

	// FloatImm is a floating-point constant.
	FloatImm struct {
		Typ   Type
		Value float64
	}

	// BoolImm is a boolean constant.
	BoolImm struct {
		Value bool
	}

	// Var is a reference to a loop variable, a let binding, or a scalar
	// pipeline parameter.
	Var struct {
		Name string
		Typ  Type
	}

	// BinaryExpr applies a binary operator to two operands of the same
	// type.
	BinaryExpr struct {
		Op   BinaryOp
		X, Y Expr
		Typ  Type
	}

	// UnaryExpr applies a unary operator to its operand.
	UnaryExpr struct {
		Op UnaryOp
		X  Expr
	}

	// CastExpr converts its operand to a different element type. The lane
	// count is preserved.
	CastExpr struct {
		X   Expr
		Typ Type
	}

	// SelectExpr picks between two values given a boolean condition.
	// Unlike an if statement, both sides are evaluated.
	SelectExpr struct {
		Cond, True, False Expr
	}

	// LoadExpr reads a buffer at a linear index. A vector index loads one
	// element per lane.
	LoadExpr struct {
		Buffer string
		Index  Expr
		Typ    Type
	}

	// CallExpr is a call to a stage at an integer coordinate tuple.
	// Calls only exist before storage lowering; lowering replaces them
	// with loads from the producer's buffer.
	CallExpr struct {
		Stage string
		// Value selects the output for tuple-valued stages.
		Value int
		Args  []Expr
		Typ   Type
	}

	// Ramp is the vector [Base, Base+Stride, ..., Base+(Lanes-1)*Stride].
	Ramp struct {
		Base, Stride Expr
		Lanes        int
	}

	// Broadcast replicates a scalar across lanes.
	Broadcast struct {
		Value Expr
		Lanes int
	}

	// LetExpr binds a name to a value within an expression.
	LetExpr struct {
		Name  string
		Value Expr
		Body  Expr
	}
)

func (*IntImm) node()     {}
func (*FloatImm) node()   {}
func (*BoolImm) node()    {}
func (*Var) node()        {}
func (*BinaryExpr) node() {}
func (*UnaryExpr) node()  {}
func (*CastExpr) node()   {}
func (*SelectExpr) node() {}
func (*LoadExpr) node()   {}
func (*CallExpr) node()   {}
func (*Ramp) node()       {}
func (*Broadcast) node()  {}
func (*LetExpr) node()    {}

// Type of the constant.
func (e *IntImm) Type() Type { return e.Typ }

// Type of the constant.
func (e *FloatImm) Type() Type { return e.Typ }

// Type of the constant.
func (e *BoolImm) Type() Type { return BoolType() }

// Type of the variable.
func (e *Var) Type() Type { return e.Typ }

// Type of the operation result.
func (e *BinaryExpr) Type() Type { return e.Typ }

// Type of the operation result.
func (e *UnaryExpr) Type() Type { return e.X.Type() }

// Type the operand is converted to.
func (e *CastExpr) Type() Type { return e.Typ }

// Type of both branches.
func (e *SelectExpr) Type() Type { return e.True.Type() }

// Type of the loaded elements.
func (e *LoadExpr) Type() Type { return e.Typ }

// Type of the called stage value.
func (e *CallExpr) Type() Type { return e.Typ }

// Type of the ramp vector.
func (e *Ramp) Type() Type { return e.Base.Type().VectorOf(e.Lanes) }

// Type of the broadcast vector.
func (e *Broadcast) Type() Type { return e.Value.Type().VectorOf(e.Lanes) }

// Type of the body.
func (e *LetExpr) Type() Type { return e.Body.Type() }

// ----------------------------------------------------------------------------
// Statements.

// ForKind tags how a loop's iterations are executed.
type ForKind int

// Loop kinds. Vectorized and Parallel loops are rewritten by the
// vectorize pass; the final IR only contains Serial, Unrolled, and ParFor
// forms.
const (
	Serial ForKind = iota
	Parallel
	Vectorized
	Unrolled
)

// String representation of the loop kind.
func (k ForKind) String() string {
	switch k {
	case Serial:
		return "serial"
	case Parallel:
		return "parallel"
	case Vectorized:
		return "vectorized"
	case Unrolled:
		return "unrolled"
	}
	return fmt.Sprintf("ForKind(%d)", int(k))
}

type (
	// StoreStmt writes a value to a buffer at a linear index.
	StoreStmt struct {
		Buffer string
		Index  Expr
		Value  Expr
	}

	// LetStmt binds a name to a value within a statement.
	LetStmt struct {
		Name  string
		Value Expr
		Body  Stmt
	}

	// AssertStmt aborts evaluation with a message if its condition is
	// false.
	AssertStmt struct {
		Cond    Expr
		Message string
	}

	// ForStmt iterates Name over [Min, Min+Extent).
	ForStmt struct {
		Name        string
		Min, Extent Expr
		Kind        ForKind
		Body        Stmt
	}

	// IfStmt runs Then when the condition holds, Else otherwise.
	// Else may be nil.
	IfStmt struct {
		Cond Expr
		Then Stmt
		Else Stmt
	}

	// BlockStmt runs its statements in order.
	BlockStmt struct {
		Stmts []Stmt
	}

	// ProduceStmt delimits the region of the program where a stage's
	// buffer is written.
	ProduceStmt struct {
		Stage string
		Body  Stmt
	}

	// ConsumeStmt delimits the region of the program where a stage's
	// buffer is read.
	ConsumeStmt struct {
		Stage string
		Body  Stmt
	}

	// AllocateStmt allocates a buffer for the duration of its body.
	// The buffer is dead once the body completes; there is no separate
	// free statement.
	AllocateStmt struct {
		Buffer  string
		Typ     Type
		Extents []Expr
		Body    Stmt
	}

	// ParForStmt is an explicit fork-join loop over independent
	// iterations, produced by lowering a loop marked Parallel. Iterations
	// may run concurrently; the body of one iteration never reads state
	// written by another iteration of the same loop.
	ParForStmt struct {
		Name        string
		Min, Extent Expr
		Body        Stmt
	}

	// EvalStmt evaluates an expression and discards the result.
	EvalStmt struct {
		X Expr
	}
)

func (*StoreStmt) node()    {}
func (*LetStmt) node()      {}
func (*AssertStmt) node()   {}
func (*ForStmt) node()      {}
func (*IfStmt) node()       {}
func (*BlockStmt) node()    {}
func (*ProduceStmt) node()  {}
func (*ConsumeStmt) node()  {}
func (*AllocateStmt) node() {}
func (*ParForStmt) node()   {}
func (*EvalStmt) node()     {}

func (*StoreStmt) stmt()    {}
func (*LetStmt) stmt()      {}
func (*AssertStmt) stmt()   {}
func (*ForStmt) stmt()      {}
func (*IfStmt) stmt()       {}
func (*BlockStmt) stmt()    {}
func (*ProduceStmt) stmt()  {}
func (*ConsumeStmt) stmt()  {}
func (*AllocateStmt) stmt() {}
func (*ParForStmt) stmt()   {}
func (*EvalStmt) stmt()     {}

// ----------------------------------------------------------------------------
// Checked constructors.
//
// Operator helpers compute the result type and panic on an operand type
// mismatch. A mismatch is a broken contract in the calling pass, never a
// condition of the input program.

func malformed(format string, args ...any) error {
	return errors.Errorf(format, args...)
}

// NewBinary builds a binary expression, checking operand types.
func NewBinary(op BinaryOp, x, y Expr) (Expr, error) {
	xt, yt := x.Type(), y.Type()
	if xt != yt {
		return nil, malformed("operator %s applied to mismatched types %s and %s", op, xt, yt)
	}
	if op.IsBoolean() && !xt.IsBool() {
		return nil, malformed("operator %s applied to non-boolean type %s", op, xt)
	}
	typ := xt
	if op.IsComparison() {
		typ = BoolType().VectorOf(xt.Lanes)
	}
	return &BinaryExpr{Op: op, X: x, Y: y, Typ: typ}, nil
}

func mustBinary(op BinaryOp, x, y Expr) Expr {
	e, err := NewBinary(op, x, y)
	if err != nil {
		panic(err)
	}
	return e
}

// NewAdd returns x+y.
func NewAdd(x, y Expr) Expr { return mustBinary(Add, x, y) }

// NewSub returns x-y.
func NewSub(x, y Expr) Expr { return mustBinary(Sub, x, y) }

// NewMul returns x*y.
func NewMul(x, y Expr) Expr { return mustBinary(Mul, x, y) }

// NewDiv returns x/y rounding towards negative infinity.
func NewDiv(x, y Expr) Expr { return mustBinary(Div, x, y) }

// NewMod returns the Euclidean remainder of x by y. The result is
// non-negative for a positive divisor.
func NewMod(x, y Expr) Expr { return mustBinary(Mod, x, y) }

// NewMin returns the smaller of x and y.
func NewMin(x, y Expr) Expr { return mustBinary(Min, x, y) }

// NewMax returns the larger of x and y.
func NewMax(x, y Expr) Expr { return mustBinary(Max, x, y) }

// NewEQ returns x==y.
func NewEQ(x, y Expr) Expr { return mustBinary(EQ, x, y) }

// NewNE returns x!=y.
func NewNE(x, y Expr) Expr { return mustBinary(NE, x, y) }

// NewLT returns x<y.
func NewLT(x, y Expr) Expr { return mustBinary(LT, x, y) }

// NewLE returns x<=y.
func NewLE(x, y Expr) Expr { return mustBinary(LE, x, y) }

// NewGT returns x>y.
func NewGT(x, y Expr) Expr { return mustBinary(GT, x, y) }

// NewGE returns x>=y.
func NewGE(x, y Expr) Expr { return mustBinary(GE, x, y) }

// NewAnd returns the conjunction of two boolean expressions.
func NewAnd(x, y Expr) Expr { return mustBinary(And, x, y) }

// NewOr returns the disjunction of two boolean expressions.
func NewOr(x, y Expr) Expr { return mustBinary(Or, x, y) }

// NewNot returns the negation of a boolean expression.
func NewNot(x Expr) Expr {
	if !x.Type().IsBool() {
		panic(malformed("operator ! applied to non-boolean type %s", x.Type()))
	}
	return &UnaryExpr{Op: Not, X: x}
}

// NewNeg returns -x.
func NewNeg(x Expr) Expr {
	if x.Type().IsBool() {
		panic(malformed("operator - applied to boolean operand"))
	}
	return &UnaryExpr{Op: Neg, X: x}
}

// NewSelect returns cond ? t : f, checking that both branches agree.
func NewSelect(cond, t, f Expr) (Expr, error) {
	if !cond.Type().IsBool() {
		return nil, malformed("select condition has type %s, want boolean", cond.Type())
	}
	if t.Type() != f.Type() {
		return nil, malformed("select branches have mismatched types %s and %s", t.Type(), f.Type())
	}
	return &SelectExpr{Cond: cond, True: t, False: f}, nil
}

// NewCast converts x to the element type of typ, preserving lanes.
func NewCast(x Expr, typ Type) Expr {
	target := typ.Element().VectorOf(x.Type().Lanes)
	if x.Type() == target {
		return x
	}
	return &CastExpr{X: x, Typ: target}
}

// NewIntImm returns an integer constant of the given scalar type.
func NewIntImm(typ Type, value int64) *IntImm {
	if !typ.IsInteger() || typ.IsVector() {
		panic(malformed("integer constant of type %s", typ))
	}
	return &IntImm{Typ: typ, Value: value}
}

// Const returns the canonical index-typed constant used for loop bounds
// and buffer addressing.
func Const(value int64) *IntImm {
	return &IntImm{Typ: IndexType(), Value: value}
}

// IsConstInt reports whether e is an integer constant, and its value.
func IsConstInt(e Expr) (int64, bool) {
	imm, ok := e.(*IntImm)
	if !ok {
		return 0, false
	}
	return imm.Value, true
}

// IsConstBool reports whether e is a boolean constant, and its value.
func IsConstBool(e Expr) (bool, bool) {
	imm, ok := e.(*BoolImm)
	if !ok {
		return false, false
	}
	return imm.Value, true
}

// Zero returns the zero constant of a scalar type.
func Zero(typ Type) Expr {
	if typ.IsFloat() {
		return &FloatImm{Typ: typ, Value: 0}
	}
	if typ.IsBool() {
		return &BoolImm{Value: false}
	}
	return &IntImm{Typ: typ, Value: 0}
}

// One returns the one constant of a scalar type.
func One(typ Type) Expr {
	if typ.IsFloat() {
		return &FloatImm{Typ: typ, Value: 1}
	}
	if typ.IsBool() {
		return &BoolImm{Value: true}
	}
	return &IntImm{Typ: typ, Value: 1}
}

// Block returns the statements as a single statement, flattening nested
// blocks and skipping nils.
func Block(stmts ...Stmt) Stmt {
	var flat []Stmt
	for _, s := range stmts {
		switch st := s.(type) {
		case nil:
			continue
		case *BlockStmt:
			flat = append(flat, st.Stmts...)
		default:
			flat = append(flat, s)
		}
	}
	switch len(flat) {
	case 0:
		return nil
	case 1:
		return flat[0]
	}
	return &BlockStmt{Stmts: flat}
}
