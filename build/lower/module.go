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

package lower

import (
	"sort"
	"strings"

	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/backend/shape"
	"github.com/gx-org/stencil/build/bounds"
	"github.com/gx-org/stencil/build/interval"
	"github.com/gx-org/stencil/build/ir"
	"github.com/gx-org/stencil/build/stage"
)

// Module is the lowered form of a pipeline: imperative functions over
// external buffers and scalar parameters.
type Module struct {
	Name  string
	Funcs []*Function
}

// Function is one lowered entry point. Callers bind the buffer arguments
// and scalar parameters, then execute the body.
type Function struct {
	Name string
	// Args lists the external buffers, inputs before outputs.
	Args []*Arg
	// Params lists the free scalar variables of the body, sorted by
	// name.
	Params []*ir.Var
	Body   ir.Stmt
}

// Arg describes one external buffer of a function. Mins and Extents give
// the coordinate region per dimension, innermost first; Shape is set
// when every extent is constant.
type Arg struct {
	Name    string
	DType   dtype.DataType
	Rank    int
	Mins    []ir.Expr
	Extents []ir.Expr
	Shape   *shape.Shape
	Input   bool
}

// Main returns the single function of a module lowered from one
// pipeline.
func (m *Module) Main() *Function {
	return m.Funcs[0]
}

// Arg returns a buffer argument by name.
func (f *Function) Arg(name string) (*Arg, bool) {
	for _, a := range f.Args {
		if a.Name == name {
			return a, true
		}
	}
	return nil, false
}

// String representation of the function body.
func (f *Function) String() string {
	return ir.String(f.Body)
}

func bufferArg(r *bounds.Realization, value int, input bool) *Arg {
	s := r.Stage
	arg := &Arg{
		Name:  bounds.BufName(s.Name, value),
		DType: s.ValueType(value).DType,
		Rank:  len(s.Dims),
		Input: input,
	}
	lengths := make([]int, 0, len(s.Dims))
	constShape := true
	for _, it := range r.Region {
		arg.Mins = append(arg.Mins, it.Min)
		ext := it.Extent()
		arg.Extents = append(arg.Extents, ext)
		if v, ok := interval.ProveConst(ext); ok && v >= 0 {
			lengths = append(lengths, int(v))
		} else {
			constShape = false
		}
	}
	if constShape {
		arg.Shape = &shape.Shape{DType: arg.DType, AxisLengths: lengths}
	}
	return arg
}

// collectParams returns the free scalar variables of a function: every
// variable the body reads that no loop or let binds and no buffer
// argument covers.
func collectParams(f *Function) []*ir.Var {
	bound := map[string]bool{}
	free := map[string]*ir.Var{}
	var walkStmt func(s ir.Stmt)
	var walkExpr func(e ir.Expr)
	walkExpr = func(e ir.Expr) {
		ir.Walk(e, func(n ir.Node) bool {
			switch node := n.(type) {
			case *ir.Var:
				if !bound[node.Name] {
					free[node.Name] = node
				}
			case *ir.LetExpr:
				walkExpr(node.Value)
				was := bound[node.Name]
				bound[node.Name] = true
				walkExpr(node.Body)
				bound[node.Name] = was
				return false
			}
			return true
		})
	}
	walkStmt = func(s ir.Stmt) {
		if s == nil {
			return
		}
		switch node := s.(type) {
		case *ir.BlockStmt:
			for _, st := range node.Stmts {
				walkStmt(st)
			}
		case *ir.ForStmt:
			walkExpr(node.Min)
			walkExpr(node.Extent)
			was := bound[node.Name]
			bound[node.Name] = true
			walkStmt(node.Body)
			bound[node.Name] = was
		case *ir.ParForStmt:
			walkExpr(node.Min)
			walkExpr(node.Extent)
			was := bound[node.Name]
			bound[node.Name] = true
			walkStmt(node.Body)
			bound[node.Name] = was
		case *ir.LetStmt:
			walkExpr(node.Value)
			was := bound[node.Name]
			bound[node.Name] = true
			walkStmt(node.Body)
			bound[node.Name] = was
		case *ir.IfStmt:
			walkExpr(node.Cond)
			walkStmt(node.Then)
			walkStmt(node.Else)
		case *ir.StoreStmt:
			walkExpr(node.Index)
			walkExpr(node.Value)
		case *ir.AssertStmt:
			walkExpr(node.Cond)
		case *ir.ProduceStmt:
			walkStmt(node.Body)
		case *ir.ConsumeStmt:
			walkStmt(node.Body)
		case *ir.AllocateStmt:
			for _, e := range node.Extents {
				walkExpr(e)
			}
			walkStmt(node.Body)
		case *ir.EvalStmt:
			walkExpr(node.X)
		}
	}
	walkStmt(f.Body)
	for _, a := range f.Args {
		for _, e := range append(append([]ir.Expr{}, a.Mins...), a.Extents...) {
			if e == nil {
				continue
			}
			walkExpr(e)
		}
	}
	var params []*ir.Var
	for name, v := range free {
		// Loop variables are qualified with their stage name; free
		// qualified names never survive a correct lowering.
		if strings.Contains(name, ".") {
			continue
		}
		params = append(params, v)
	}
	sort.Slice(params, func(i, j int) bool { return params[i].Name < params[j].Name })
	return params
}

// functionArgs lists the external buffers of the lowered pipeline:
// inputs first in topological order, then one buffer per output value.
func functionArgs(res *bounds.Result) []*Arg {
	var args []*Arg
	for _, s := range res.Pipeline.TopoOrder() {
		if s.Kind() != stage.Input {
			continue
		}
		r, _ := res.Realization(s.Name)
		args = append(args, bufferArg(r, 0, true))
	}
	for _, out := range res.Pipeline.Outputs {
		r, _ := res.Realization(out.Name)
		for v := 0; v < out.NumValues(); v++ {
			args = append(args, bufferArg(r, v, false))
		}
	}
	return args
}
