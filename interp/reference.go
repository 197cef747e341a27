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

package interp

import (
	"github.com/pkg/errors"
	"github.com/gx-org/stencil/build/ir"
	"github.com/gx-org/stencil/build/stage"
)

// Reference evaluates a pipeline directly from its functional
// definitions, ignoring any schedule. It is the oracle lowered modules
// are compared against.
type Reference struct {
	p   *stage.Pipeline
	env *Env

	// mat holds materialized reduction stages, one buffer per value.
	mat map[string][]*Buffer
	// regions holds the evaluated bounds of inputs and materialized
	// stages.
	regions map[string]*refRegion
}

type refRegion struct {
	mins, extents []int64
}

// NewReference returns an evaluator over a pipeline and the environment
// binding its input buffers and scalar parameters.
func NewReference(p *stage.Pipeline, env *Env) *Reference {
	return &Reference{p: p, env: env, mat: map[string][]*Buffer{}, regions: map[string]*refRegion{}}
}

// Float evaluates one value of a stage at a coordinate tuple.
func (ref *Reference) Float(name string, value int, coords ...int64) (float64, error) {
	l, err := ref.call(name, value, coords)
	return l.f, err
}

// Int evaluates one value of a stage at a coordinate tuple.
func (ref *Reference) Int(name string, value int, coords ...int64) (int64, error) {
	l, err := ref.call(name, value, coords)
	return l.i, err
}

func (ref *Reference) call(name string, value int, coords []int64) (lane, error) {
	s, ok := ref.p.Lookup(name)
	if !ok {
		return lane{}, errors.Errorf("unknown stage %s", name)
	}
	if s.Boundary == stage.BoundaryClamp {
		var err error
		if coords, err = ref.clamp(s, coords); err != nil {
			return lane{}, err
		}
	}
	switch s.Kind() {
	case stage.Input:
		return ref.loadInput(s, coords)
	case stage.Reduction:
		bufs, err := ref.materialize(s)
		if err != nil {
			return lane{}, err
		}
		region := ref.regions[s.Name]
		return bufs[value].load(Flatten(region.mins, region.extents, coords))
	}
	vars := map[string]lane{}
	for i, d := range s.Dims {
		vars[d] = lane{i: coords[i]}
	}
	return ref.eval(s.Values[value], vars)
}

// clamp folds a coordinate tuple onto the stage's declared bounds.
func (ref *Reference) clamp(s *stage.Stage, coords []int64) ([]int64, error) {
	out := append([]int64{}, coords...)
	for i, d := range s.Dims {
		b, ok := s.BoundFor(d)
		if !ok {
			continue
		}
		lo, ext, err := ref.evalBound(b)
		if err != nil {
			return nil, err
		}
		if out[i] < lo {
			out[i] = lo
		}
		if out[i] > lo+ext-1 {
			out[i] = lo + ext - 1
		}
	}
	return out, nil
}

func (ref *Reference) evalBound(b *stage.DimBound) (lo, extent int64, err error) {
	lo, err = ref.evalInt(b.Min, nil)
	if err != nil {
		return 0, 0, err
	}
	extent, err = ref.evalInt(b.Extent, nil)
	return lo, extent, err
}

// declaredRegion evaluates the declared bounds of a stage. Reference
// evaluation materializes reductions and addresses inputs through their
// declared bounds, so it requires them.
func (ref *Reference) declaredRegion(s *stage.Stage) (*refRegion, error) {
	if region, ok := ref.regions[s.Name]; ok {
		return region, nil
	}
	region := &refRegion{}
	for _, d := range s.Dims {
		b, ok := s.BoundFor(d)
		if !ok {
			return nil, errors.Errorf("stage %s needs declared bounds on %s for direct evaluation", s.Name, d)
		}
		lo, ext, err := ref.evalBound(b)
		if err != nil {
			return nil, err
		}
		region.mins = append(region.mins, lo)
		region.extents = append(region.extents, ext)
	}
	ref.regions[s.Name] = region
	return region, nil
}

func (ref *Reference) loadInput(s *stage.Stage, coords []int64) (lane, error) {
	b, ok := ref.env.Buffer(s.Name)
	if !ok {
		return lane{}, errors.Errorf("input buffer %s is not bound", s.Name)
	}
	region, err := ref.declaredRegion(s)
	if err != nil {
		return lane{}, err
	}
	l, err := b.load(Flatten(region.mins, region.extents, coords))
	if err != nil {
		return lane{}, errors.Wrapf(err, "reading input %s", s.Name)
	}
	return l, nil
}

// materialize computes a reduction stage over its declared bounds: the
// initial definition everywhere, then each update in order over the
// bounds and its reduction domain.
func (ref *Reference) materialize(s *stage.Stage) ([]*Buffer, error) {
	if bufs, ok := ref.mat[s.Name]; ok {
		return bufs, nil
	}
	region, err := ref.declaredRegion(s)
	if err != nil {
		return nil, err
	}
	size := 1
	for _, e := range region.extents {
		size *= int(e)
	}
	bufs := make([]*Buffer, s.NumValues())
	for v := range bufs {
		bufs[v] = NewBuffer(s.ValueType(v).DType, size)
	}
	// Publish before filling so updates can read the stage's own
	// earlier values.
	ref.mat[s.Name] = bufs
	err = ref.overRegion(region, s.Dims, map[string]lane{}, func(vars map[string]lane, coords []int64) error {
		idx := Flatten(region.mins, region.extents, coords)
		for v := range bufs {
			l, err := ref.eval(s.Values[v], vars)
			if err != nil {
				return err
			}
			if err := bufs[v].store(idx, l); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		delete(ref.mat, s.Name)
		return nil, err
	}
	for _, up := range s.Updates {
		if err := ref.applyUpdate(s, up, bufs, region); err != nil {
			delete(ref.mat, s.Name)
			return nil, err
		}
	}
	return bufs, nil
}

func (ref *Reference) applyUpdate(s *stage.Stage, up *stage.Update, bufs []*Buffer, region *refRegion) error {
	return ref.overRegion(region, s.Dims, map[string]lane{}, func(vars map[string]lane, _ []int64) error {
		var rvars []*stage.RVar
		if up.Dom != nil {
			rvars = up.Dom.Vars
		}
		return ref.overRVars(rvars, vars, func(vars map[string]lane) error {
			coords := make([]int64, len(up.Args))
			for i, a := range up.Args {
				l, err := ref.eval(a, vars)
				if err != nil {
					return err
				}
				coords[i] = l.i
			}
			idx := Flatten(region.mins, region.extents, coords)
			for v, val := range up.Values {
				l, err := ref.eval(val, vars)
				if err != nil {
					return err
				}
				if err := bufs[v].store(idx, l); err != nil {
					return errors.Wrapf(err, "update of stage %s", s.Name)
				}
			}
			return nil
		})
	})
}

// overRegion iterates a region with the first dimension innermost.
func (ref *Reference) overRegion(region *refRegion, dims []string, vars map[string]lane, f func(map[string]lane, []int64) error) error {
	coords := make([]int64, len(dims))
	var iterate func(d int) error
	iterate = func(d int) error {
		if d < 0 {
			return f(vars, coords)
		}
		for c := region.mins[d]; c < region.mins[d]+region.extents[d]; c++ {
			coords[d] = c
			vars[dims[d]] = lane{i: c}
			if err := iterate(d - 1); err != nil {
				return err
			}
		}
		return nil
	}
	return iterate(len(dims) - 1)
}

// overRVars iterates a reduction domain with the first variable
// innermost.
func (ref *Reference) overRVars(rvars []*stage.RVar, vars map[string]lane, f func(map[string]lane) error) error {
	var iterate func(d int) error
	iterate = func(d int) error {
		if d < 0 {
			return f(vars)
		}
		rv := rvars[d]
		lo, err := ref.evalInt(rv.Min, vars)
		if err != nil {
			return err
		}
		n, err := ref.evalInt(rv.Extent, vars)
		if err != nil {
			return err
		}
		for c := lo; c < lo+n; c++ {
			vars[rv.Name] = lane{i: c}
			if err := iterate(d - 1); err != nil {
				return err
			}
		}
		return nil
	}
	return iterate(len(rvars) - 1)
}

func (ref *Reference) evalInt(e ir.Expr, vars map[string]lane) (int64, error) {
	l, err := ref.eval(e, vars)
	return l.i, err
}

func (ref *Reference) eval(e ir.Expr, vars map[string]lane) (lane, error) {
	switch node := e.(type) {
	case *ir.IntImm:
		return lane{i: node.Value}, nil
	case *ir.FloatImm:
		return lane{f: node.Value}, nil
	case *ir.BoolImm:
		return lane{b: node.Value}, nil
	case *ir.Var:
		if l, ok := vars[node.Name]; ok {
			return l, nil
		}
		if i, ok := ref.env.ints[node.Name]; ok {
			return lane{i: i}, nil
		}
		if f, ok := ref.env.floats[node.Name]; ok {
			return lane{f: f}, nil
		}
		return lane{}, errors.Errorf("variable %s is not bound", node.Name)
	case *ir.BinaryExpr:
		x, err := ref.eval(node.X, vars)
		if err != nil {
			return lane{}, err
		}
		y, err := ref.eval(node.Y, vars)
		if err != nil {
			return lane{}, err
		}
		return binaryLane(node.Op, node.X.Type().Element(), x, y)
	case *ir.UnaryExpr:
		x, err := ref.eval(node.X, vars)
		if err != nil {
			return lane{}, err
		}
		return unaryLane(node.Op, node.X.Type().Element(), x)
	case *ir.CastExpr:
		x, err := ref.eval(node.X, vars)
		if err != nil {
			return lane{}, err
		}
		return castLane(node.X.Type().Element(), node.Typ.Element(), x), nil
	case *ir.SelectExpr:
		cond, err := ref.eval(node.Cond, vars)
		if err != nil {
			return lane{}, err
		}
		if cond.b {
			return ref.eval(node.True, vars)
		}
		return ref.eval(node.False, vars)
	case *ir.LetExpr:
		v, err := ref.eval(node.Value, vars)
		if err != nil {
			return lane{}, err
		}
		old, had := vars[node.Name]
		vars[node.Name] = v
		out, err := ref.eval(node.Body, vars)
		if had {
			vars[node.Name] = old
		} else {
			delete(vars, node.Name)
		}
		return out, err
	case *ir.CallExpr:
		coords := make([]int64, len(node.Args))
		for i, a := range node.Args {
			l, err := ref.eval(a, vars)
			if err != nil {
				return lane{}, err
			}
			coords[i] = l.i
		}
		return ref.call(node.Stage, node.Value, coords)
	}
	return lane{}, errors.Errorf("cannot evaluate expression %T", e)
}
