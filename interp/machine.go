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

// Package interp executes lowered modules and, for reference, the
// functional stage definitions they were compiled from. It exists to
// check that a schedule never changes what a pipeline computes.
package interp

import (
	"runtime"
	"sync"

	"github.com/pkg/errors"
	"github.com/gx-org/stencil/build/ir"
	"github.com/gx-org/stencil/build/lower"
)

// lane is one scalar slot. The active field follows the element class of
// the expression's type.
type lane struct {
	i int64
	f float64
	b bool
}

// value is an evaluated expression: one lane for scalars, one per vector
// lane otherwise.
type value struct {
	typ   ir.Type
	lanes []lane
}

func scalarValue(typ ir.Type, l lane) value {
	return value{typ: typ, lanes: []lane{l}}
}

func (v value) lane(i int) lane {
	if len(v.lanes) == 1 {
		return v.lanes[0]
	}
	return v.lanes[i]
}

func (v value) isVector() bool { return len(v.lanes) > 1 }

// Env binds the external state of a run: buffer arguments and scalar
// parameters.
type Env struct {
	buffers map[string]*Buffer
	ints    map[string]int64
	floats  map[string]float64
}

// NewEnv returns an empty environment.
func NewEnv() *Env {
	return &Env{buffers: map[string]*Buffer{}, ints: map[string]int64{}, floats: map[string]float64{}}
}

// BindBuffer binds a buffer argument by name.
func (env *Env) BindBuffer(name string, b *Buffer) *Env {
	env.buffers[name] = b
	return env
}

// BindInt binds an integer scalar parameter.
func (env *Env) BindInt(name string, v int64) *Env {
	env.ints[name] = v
	return env
}

// BindFloat binds a floating point scalar parameter.
func (env *Env) BindFloat(name string, v float64) *Env {
	env.floats[name] = v
	return env
}

// Buffer returns a bound or run-allocated buffer.
func (env *Env) Buffer(name string) (*Buffer, bool) {
	b, ok := env.buffers[name]
	return b, ok
}

type frame struct {
	vars    map[string]value
	buffers map[string]*Buffer
}

func (fr *frame) fork() *frame {
	next := &frame{vars: map[string]value{}, buffers: map[string]*Buffer{}}
	for k, v := range fr.vars {
		next.vars[k] = v
	}
	for k, b := range fr.buffers {
		next.buffers[k] = b
	}
	return next
}

type machine struct {
	env *Env
}

// Run executes a lowered function. Input buffers must be bound in the
// environment; unbound output buffers are allocated from the argument
// extents and published to the environment.
func Run(f *lower.Function, env *Env) error {
	m := &machine{env: env}
	fr := &frame{vars: map[string]value{}, buffers: map[string]*Buffer{}}
	for _, p := range f.Params {
		if _, ok := env.ints[p.Name]; ok {
			continue
		}
		if _, ok := env.floats[p.Name]; ok {
			continue
		}
		return errors.Errorf("parameter %s is not bound", p.Name)
	}
	for _, a := range f.Args {
		size := int64(1)
		for _, e := range a.Extents {
			ext, err := m.evalIndex(e, fr)
			if err != nil {
				return errors.Wrapf(err, "sizing argument %s", a.Name)
			}
			size *= ext
		}
		b, ok := env.buffers[a.Name]
		switch {
		case !ok && a.Input:
			return errors.Errorf("input buffer %s is not bound", a.Name)
		case !ok:
			b = NewBuffer(a.DType, int(size))
			env.buffers[a.Name] = b
		case int64(b.Len()) != size:
			return errors.Errorf("buffer %s has %d elements, the function needs %d", a.Name, b.Len(), size)
		}
		fr.buffers[a.Name] = b
	}
	return m.stmt(f.Body, fr)
}

// ArgBounds evaluates the coordinate region of a buffer argument under
// an environment's scalar parameters.
func ArgBounds(a *lower.Arg, env *Env) (mins, extents []int64, err error) {
	m := &machine{env: env}
	fr := &frame{vars: map[string]value{}}
	for i := range a.Mins {
		min, err := m.evalIndex(a.Mins[i], fr)
		if err != nil {
			return nil, nil, err
		}
		ext, err := m.evalIndex(a.Extents[i], fr)
		if err != nil {
			return nil, nil, err
		}
		mins, extents = append(mins, min), append(extents, ext)
	}
	return mins, extents, nil
}

func (m *machine) stmt(s ir.Stmt, fr *frame) error {
	switch node := s.(type) {
	case nil:
		return nil
	case *ir.BlockStmt:
		for _, st := range node.Stmts {
			if err := m.stmt(st, fr); err != nil {
				return err
			}
		}
		return nil
	case *ir.StoreStmt:
		return m.store(node, fr)
	case *ir.LetStmt:
		v, err := m.expr(node.Value, fr)
		if err != nil {
			return err
		}
		old, had := fr.vars[node.Name]
		fr.vars[node.Name] = v
		err = m.stmt(node.Body, fr)
		if had {
			fr.vars[node.Name] = old
		} else {
			delete(fr.vars, node.Name)
		}
		return err
	case *ir.IfStmt:
		cond, err := m.expr(node.Cond, fr)
		if err != nil {
			return err
		}
		if cond.isVector() {
			return errors.Errorf("a branch condition evaluated to a vector")
		}
		if cond.lanes[0].b {
			return m.stmt(node.Then, fr)
		}
		return m.stmt(node.Else, fr)
	case *ir.ForStmt:
		return m.loop(node.Name, node.Min, node.Extent, node.Body, fr)
	case *ir.ParForStmt:
		return m.parLoop(node, fr)
	case *ir.AssertStmt:
		cond, err := m.expr(node.Cond, fr)
		if err != nil {
			return err
		}
		if !cond.lanes[0].b {
			return errors.Errorf("assertion failed: %s", node.Message)
		}
		return nil
	case *ir.ProduceStmt:
		return m.stmt(node.Body, fr)
	case *ir.ConsumeStmt:
		return m.stmt(node.Body, fr)
	case *ir.AllocateStmt:
		size := int64(1)
		for _, e := range node.Extents {
			ext, err := m.evalIndex(e, fr)
			if err != nil {
				return err
			}
			size *= ext
		}
		old, had := fr.buffers[node.Buffer]
		fr.buffers[node.Buffer] = NewBuffer(node.Typ.DType, int(size))
		err := m.stmt(node.Body, fr)
		if had {
			fr.buffers[node.Buffer] = old
		} else {
			delete(fr.buffers, node.Buffer)
		}
		return err
	case *ir.EvalStmt:
		_, err := m.expr(node.X, fr)
		return err
	}
	return errors.Errorf("cannot execute statement %T", s)
}

func (m *machine) loop(name string, min, extent ir.Expr, body ir.Stmt, fr *frame) error {
	lo, err := m.evalIndex(min, fr)
	if err != nil {
		return err
	}
	n, err := m.evalIndex(extent, fr)
	if err != nil {
		return err
	}
	old, had := fr.vars[name]
	for i := lo; i < lo+n; i++ {
		fr.vars[name] = scalarValue(ir.IndexType(), lane{i: i})
		if err := m.stmt(body, fr); err != nil {
			return err
		}
	}
	if had {
		fr.vars[name] = old
	} else {
		delete(fr.vars, name)
	}
	return nil
}

// parLoop splits the iteration range over workers. Iterations of a
// fork-join loop never write state read by their siblings, so workers
// only share the buffers.
func (m *machine) parLoop(node *ir.ParForStmt, fr *frame) error {
	lo, err := m.evalIndex(node.Min, fr)
	if err != nil {
		return err
	}
	n, err := m.evalIndex(node.Extent, fr)
	if err != nil {
		return err
	}
	if n <= 0 {
		return nil
	}
	workers := int64(runtime.NumCPU())
	if workers > n {
		workers = n
	}
	chunk := (n + workers - 1) / workers
	var wg sync.WaitGroup
	var once sync.Once
	var firstErr error
	for w := int64(0); w < workers; w++ {
		start := lo + w*chunk
		end := start + chunk
		if end > lo+n {
			end = lo + n
		}
		wg.Add(1)
		go func(start, end int64) {
			defer wg.Done()
			sub := fr.fork()
			for i := start; i < end; i++ {
				sub.vars[node.Name] = scalarValue(ir.IndexType(), lane{i: i})
				if err := m.stmt(node.Body, sub); err != nil {
					once.Do(func() { firstErr = err })
					return
				}
			}
		}(start, end)
	}
	wg.Wait()
	return firstErr
}

func (m *machine) store(node *ir.StoreStmt, fr *frame) error {
	b, ok := fr.buffers[node.Buffer]
	if !ok {
		return errors.Errorf("store to unknown buffer %s", node.Buffer)
	}
	index, err := m.expr(node.Index, fr)
	if err != nil {
		return err
	}
	val, err := m.expr(node.Value, fr)
	if err != nil {
		return err
	}
	lanes := len(index.lanes)
	if len(val.lanes) > lanes {
		lanes = len(val.lanes)
	}
	for l := 0; l < lanes; l++ {
		if err := b.store(int(index.lane(l).i), val.lane(l)); err != nil {
			return errors.Wrapf(err, "storing to %s", node.Buffer)
		}
	}
	return nil
}

func (m *machine) evalIndex(e ir.Expr, fr *frame) (int64, error) {
	v, err := m.expr(e, fr)
	if err != nil {
		return 0, err
	}
	if v.isVector() {
		return 0, errors.Errorf("expected a scalar index, got %d lanes", len(v.lanes))
	}
	return v.lanes[0].i, nil
}

func (m *machine) expr(e ir.Expr, fr *frame) (value, error) {
	switch node := e.(type) {
	case *ir.IntImm:
		return scalarValue(node.Typ, lane{i: node.Value}), nil
	case *ir.FloatImm:
		return scalarValue(node.Typ, lane{f: node.Value}), nil
	case *ir.BoolImm:
		return scalarValue(ir.BoolType(), lane{b: node.Value}), nil
	case *ir.Var:
		if v, ok := fr.vars[node.Name]; ok {
			return v, nil
		}
		if i, ok := m.env.ints[node.Name]; ok {
			return scalarValue(node.Typ, lane{i: i}), nil
		}
		if f, ok := m.env.floats[node.Name]; ok {
			return scalarValue(node.Typ, lane{f: f}), nil
		}
		return value{}, errors.Errorf("variable %s is not bound", node.Name)
	case *ir.BinaryExpr:
		x, err := m.expr(node.X, fr)
		if err != nil {
			return value{}, err
		}
		y, err := m.expr(node.Y, fr)
		if err != nil {
			return value{}, err
		}
		return mapLanes2(node.Typ, x, y, func(a, b lane) (lane, error) {
			return binaryLane(node.Op, node.X.Type().Element(), a, b)
		})
	case *ir.UnaryExpr:
		x, err := m.expr(node.X, fr)
		if err != nil {
			return value{}, err
		}
		return mapLanes(node.Type(), x, func(a lane) (lane, error) {
			return unaryLane(node.Op, node.X.Type().Element(), a)
		})
	case *ir.CastExpr:
		x, err := m.expr(node.X, fr)
		if err != nil {
			return value{}, err
		}
		return mapLanes(node.Typ, x, func(a lane) (lane, error) {
			return castLane(node.X.Type().Element(), node.Typ.Element(), a), nil
		})
	case *ir.SelectExpr:
		cond, err := m.expr(node.Cond, fr)
		if err != nil {
			return value{}, err
		}
		t, err := m.expr(node.True, fr)
		if err != nil {
			return value{}, err
		}
		f, err := m.expr(node.False, fr)
		if err != nil {
			return value{}, err
		}
		lanes := maxLanes(cond, t, f)
		out := value{typ: node.Type(), lanes: make([]lane, lanes)}
		for l := 0; l < lanes; l++ {
			if cond.lane(l).b {
				out.lanes[l] = t.lane(l)
			} else {
				out.lanes[l] = f.lane(l)
			}
		}
		return out, nil
	case *ir.LoadExpr:
		b, ok := fr.buffers[node.Buffer]
		if !ok {
			return value{}, errors.Errorf("load from unknown buffer %s", node.Buffer)
		}
		index, err := m.expr(node.Index, fr)
		if err != nil {
			return value{}, err
		}
		out := value{typ: node.Typ, lanes: make([]lane, len(index.lanes))}
		for l := range index.lanes {
			out.lanes[l], err = b.load(int(index.lane(l).i))
			if err != nil {
				return value{}, errors.Wrapf(err, "loading from %s", node.Buffer)
			}
		}
		return out, nil
	case *ir.Ramp:
		base, err := m.evalIndex(node.Base, fr)
		if err != nil {
			return value{}, err
		}
		stride, err := m.evalIndex(node.Stride, fr)
		if err != nil {
			return value{}, err
		}
		out := value{typ: node.Type(), lanes: make([]lane, node.Lanes)}
		for l := 0; l < node.Lanes; l++ {
			out.lanes[l] = lane{i: base + int64(l)*stride}
		}
		return out, nil
	case *ir.Broadcast:
		v, err := m.expr(node.Value, fr)
		if err != nil {
			return value{}, err
		}
		out := value{typ: node.Type(), lanes: make([]lane, node.Lanes)}
		for l := 0; l < node.Lanes; l++ {
			out.lanes[l] = v.lanes[0]
		}
		return out, nil
	case *ir.LetExpr:
		v, err := m.expr(node.Value, fr)
		if err != nil {
			return value{}, err
		}
		old, had := fr.vars[node.Name]
		fr.vars[node.Name] = v
		out, err := m.expr(node.Body, fr)
		if had {
			fr.vars[node.Name] = old
		} else {
			delete(fr.vars, node.Name)
		}
		return out, err
	case *ir.CallExpr:
		return value{}, errors.Errorf("call to stage %s survived lowering", node.Stage)
	}
	return value{}, errors.Errorf("cannot evaluate expression %T", e)
}

func maxLanes(vs ...value) int {
	n := 1
	for _, v := range vs {
		if len(v.lanes) > n {
			n = len(v.lanes)
		}
	}
	return n
}

func mapLanes(typ ir.Type, x value, f func(lane) (lane, error)) (value, error) {
	out := value{typ: typ, lanes: make([]lane, len(x.lanes))}
	for l := range x.lanes {
		var err error
		out.lanes[l], err = f(x.lanes[l])
		if err != nil {
			return value{}, err
		}
	}
	return out, nil
}

func mapLanes2(typ ir.Type, x, y value, f func(lane, lane) (lane, error)) (value, error) {
	lanes := maxLanes(x, y)
	out := value{typ: typ, lanes: make([]lane, lanes)}
	for l := 0; l < lanes; l++ {
		var err error
		out.lanes[l], err = f(x.lane(l), y.lane(l))
		if err != nil {
			return value{}, err
		}
	}
	return out, nil
}
