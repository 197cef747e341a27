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

package stage

import (
	"slices"

	"github.com/pkg/errors"
	"github.com/gx-org/stencil/base/ordered"
	"github.com/gx-org/stencil/build/ir"
)

// Pipeline is a stage graph with designated outputs. The graph restricted
// to non-self edges is acyclic; a stage referencing itself is a reduction
// over its own earlier values.
type Pipeline struct {
	Name    string
	Outputs []*Stage

	// stages maps names to stages in topological order: producers before
	// their consumers.
	stages *ordered.Map[string, *Stage]
}

// NewPipeline builds a pipeline from the list of its stages and its
// outputs, checking the graph invariants: unique names, resolvable calls
// with matching arity, and acyclicity over non-self edges.
func NewPipeline(name string, stages []*Stage, outputs ...*Stage) (*Pipeline, error) {
	if len(outputs) == 0 {
		return nil, errors.Errorf("pipeline %s has no output stage", name)
	}
	byName := map[string]*Stage{}
	for _, s := range stages {
		if _, in := byName[s.Name]; in {
			return nil, errors.Errorf("two stages named %s", s.Name)
		}
		if err := s.check(); err != nil {
			return nil, err
		}
		byName[s.Name] = s
	}
	for _, out := range outputs {
		if byName[out.Name] != out {
			return nil, errors.Errorf("output stage %s is not in the stage list", out.Name)
		}
	}
	p := &Pipeline{Name: name, Outputs: outputs, stages: ordered.NewMap[string, *Stage]()}
	visiting := map[string]bool{}
	for _, out := range outputs {
		if err := p.visit(out, byName, visiting); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// visit stores stages producers-first, rejecting cycles through non-self
// edges.
func (p *Pipeline) visit(s *Stage, byName map[string]*Stage, visiting map[string]bool) error {
	if p.stages.Has(s.Name) {
		return nil
	}
	if visiting[s.Name] {
		return errors.Errorf("stage %s depends on itself through other stages", s.Name)
	}
	visiting[s.Name] = true
	defer delete(visiting, s.Name)
	callees, err := s.callees(byName)
	if err != nil {
		return err
	}
	for _, callee := range callees {
		if err := p.visit(callee, byName, visiting); err != nil {
			return err
		}
	}
	p.stages.Store(s.Name, s)
	return nil
}

// callees resolves the stages called by s, excluding s itself. A
// self-reference in the initial definition of a pure stage is rejected.
func (s *Stage) callees(byName map[string]*Stage) ([]*Stage, error) {
	seen := map[string]bool{}
	var out []*Stage
	record := func(exprs []ir.Expr, allowSelf bool) error {
		var err error
		for _, e := range exprs {
			ir.Walk(e, func(n ir.Node) bool {
				if err != nil {
					return false
				}
				call, ok := n.(*ir.CallExpr)
				if !ok {
					return true
				}
				if call.Stage == s.Name {
					if !allowSelf {
						err = errors.Errorf("stage %s calls itself outside an update", s.Name)
					}
					return err == nil
				}
				callee, ok := byName[call.Stage]
				if !ok {
					err = errors.Errorf("stage %s calls unknown stage %s", s.Name, call.Stage)
					return false
				}
				if len(call.Args) != len(callee.Dims) {
					err = errors.Errorf("stage %s calls %s with %d coordinates, want %d",
						s.Name, call.Stage, len(call.Args), len(callee.Dims))
					return false
				}
				if call.Value >= callee.NumValues() {
					err = errors.Errorf("stage %s reads value %d of %s, which has %d",
						s.Name, call.Value, call.Stage, callee.NumValues())
					return false
				}
				if !seen[call.Stage] {
					seen[call.Stage] = true
					out = append(out, callee)
				}
				return true
			})
			if err != nil {
				return err
			}
		}
		return nil
	}
	if err := record(s.Values, false); err != nil {
		return nil, err
	}
	for _, up := range s.Updates {
		if err := record(up.Args, true); err != nil {
			return nil, err
		}
		if err := record(up.Values, true); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Stage) check() error {
	if s.Kind() != Input && len(s.Values) == 0 {
		return errors.Errorf("stage %s has no definition", s.Name)
	}
	for _, up := range s.Updates {
		if len(up.Args) != len(s.Dims) {
			return errors.Errorf("stage %s update stores %d coordinates, want %d",
				s.Name, len(up.Args), len(s.Dims))
		}
		if len(up.Values) != len(s.Values) {
			return errors.Errorf("stage %s update stores %d values, want %d",
				s.Name, len(up.Values), len(s.Values))
		}
	}
	for _, b := range s.Bounds {
		if !slices.Contains(s.Dims, b.Dim) {
			return errors.Errorf("stage %s declares bounds on unknown dimension %s", s.Name, b.Dim)
		}
	}
	return nil
}

// Lookup returns a stage by name.
func (p *Pipeline) Lookup(name string) (*Stage, bool) {
	return p.stages.Load(name)
}

// Stages iterates over the reachable stages, producers before consumers.
func (p *Pipeline) Stages() func(func(string, *Stage) bool) {
	return p.stages.Iter()
}

// TopoOrder returns the reachable stages with every producer before its
// consumers.
func (p *Pipeline) TopoOrder() []*Stage {
	out := make([]*Stage, 0, p.stages.Size())
	for _, s := range p.stages.Iter() {
		out = append(out, s)
	}
	return out
}

// IsOutput reports if a stage is a pipeline output.
func (p *Pipeline) IsOutput(s *Stage) bool {
	return slices.Contains(p.Outputs, s)
}
