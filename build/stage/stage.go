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

// Package stage defines the functional form of a pipeline: named pure
// computations over integer coordinate domains, referencing each other
// through calls and forming a directed acyclic graph.
package stage

import (
	"github.com/pkg/errors"
	"github.com/gx-org/stencil/build/ir"
)

// Kind is the closed set of stage kinds. Every pass matches exhaustively
// on it.
type Kind int

// Stage kinds.
const (
	// Pure stages compute each coordinate independently from their
	// initial definition.
	Pure Kind = iota
	// Reduction stages refine their initial definition with ordered
	// update steps, possibly over a reduction domain.
	Reduction
	// Input stages are externally provided buffers; they are never
	// computed, only read.
	Input
)

// String representation of the kind.
func (k Kind) String() string {
	switch k {
	case Pure:
		return "pure"
	case Reduction:
		return "reduction"
	case Input:
		return "input"
	}
	return "invalid"
}

// RVar is one variable of a reduction domain, iterating over
// [Min, Min+Extent).
type RVar struct {
	Name        string
	Min, Extent ir.Expr
}

// RDom is an ordered reduction domain. Variables iterate in a nest with
// the first variable innermost, matching dimension order.
type RDom struct {
	Vars []*RVar
}

// NewRDom builds a reduction domain from (name, min, extent) triples.
func NewRDom(vars ...*RVar) *RDom {
	return &RDom{Vars: vars}
}

// R returns one reduction variable over constant bounds.
func R(name string, min, extent int64) *RVar {
	return &RVar{Name: name, Min: ir.Const(min), Extent: ir.Const(extent)}
}

// Update is one refinement step of a reduction stage. Args give the
// stored coordinate per dimension; Values give the stored value per
// output. Both may reference the stage itself and the update's reduction
// domain.
type Update struct {
	Args   []ir.Expr
	Values []ir.Expr
	Dom    *RDom
}

// DimBound is a user-declared bound for one dimension of a stage.
type DimBound struct {
	Dim         string
	Min, Extent ir.Expr
}

// BoundaryPolicy says how calls outside a stage's declared bounds behave.
type BoundaryPolicy int

// Boundary policies.
const (
	// BoundaryNone makes an out-of-bounds requirement an error.
	BoundaryNone BoundaryPolicy = iota
	// BoundaryClamp redirects out-of-bounds coordinates to the nearest
	// valid coordinate.
	BoundaryClamp
)

// Stage is one named computation of the pipeline.
type Stage struct {
	Name string
	// Dims are the coordinate dimensions, innermost first.
	Dims []string
	// Values is the initial definition, one expression per output value.
	// Empty for input stages.
	Values []ir.Expr
	// Updates are the ordered refinement steps.
	Updates []*Update
	// Bounds are user-declared bounds, at most one per dimension.
	Bounds []*DimBound
	// Boundary is the policy for out-of-bounds consumers.
	Boundary BoundaryPolicy

	inputType ir.Type
}

// New returns a pure stage from its dimension names and defining
// expressions.
func New(name string, dims []string, values ...ir.Expr) *Stage {
	return &Stage{Name: name, Dims: dims, Values: values}
}

// NewInput returns an input stage: an externally provided buffer of the
// given element type.
func NewInput(name string, typ ir.Type, dims ...string) *Stage {
	return &Stage{Name: name, Dims: dims, inputType: typ}
}

// Kind of the stage.
func (s *Stage) Kind() Kind {
	switch {
	case s.Values == nil:
		return Input
	case len(s.Updates) > 0:
		return Reduction
	}
	return Pure
}

// NumValues returns how many values the stage produces per coordinate.
func (s *Stage) NumValues() int {
	if s.Kind() == Input {
		return 1
	}
	return len(s.Values)
}

// ValueType returns the type of the i-th output value.
func (s *Stage) ValueType(i int) ir.Type {
	if s.Kind() == Input {
		return s.inputType
	}
	return s.Values[i].Type()
}

// Update appends a refinement step storing values at the given
// coordinates.
func (s *Stage) Update(args []ir.Expr, values []ir.Expr, dom *RDom) *Stage {
	s.Updates = append(s.Updates, &Update{Args: args, Values: values, Dom: dom})
	return s
}

// UpdateValue appends a single-value refinement step over the stage's own
// coordinates.
func (s *Stage) UpdateValue(value ir.Expr) *Stage {
	args := make([]ir.Expr, len(s.Dims))
	for i, d := range s.Dims {
		args[i] = &ir.Var{Name: d, Typ: ir.IndexType()}
	}
	return s.Update(args, []ir.Expr{value}, nil)
}

// Bound declares the valid interval of one dimension.
func (s *Stage) Bound(dim string, min, extent ir.Expr) *Stage {
	s.Bounds = append(s.Bounds, &DimBound{Dim: dim, Min: min, Extent: extent})
	return s
}

// Clamp sets the clamp boundary policy on the stage.
func (s *Stage) Clamp() *Stage {
	s.Boundary = BoundaryClamp
	return s
}

// BoundFor returns the declared bound of a dimension if one exists.
func (s *Stage) BoundFor(dim string) (*DimBound, bool) {
	for _, b := range s.Bounds {
		if b.Dim == dim {
			return b, true
		}
	}
	return nil, false
}

// DimIndex returns the position of a dimension name.
func (s *Stage) DimIndex(dim string) (int, error) {
	for i, d := range s.Dims {
		if d == dim {
			return i, nil
		}
	}
	return -1, errors.Errorf("stage %s has no dimension %s", s.Name, dim)
}

// DimVar returns the loop variable of the i-th dimension.
func (s *Stage) DimVar(i int) *ir.Var {
	return &ir.Var{Name: s.Dims[i], Typ: ir.IndexType()}
}

// Call returns a call to the stage's first value at the given
// coordinates.
func (s *Stage) Call(args ...ir.Expr) *ir.CallExpr {
	return s.CallValue(0, args...)
}

// CallValue returns a call to the i-th value at the given coordinates.
func (s *Stage) CallValue(i int, args ...ir.Expr) *ir.CallExpr {
	return &ir.CallExpr{Stage: s.Name, Value: i, Args: args, Typ: s.ValueType(i)}
}
