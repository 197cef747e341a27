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
	"github.com/gx-org/stencil/build/bounds"
	"github.com/gx-org/stencil/build/ir"
	"github.com/gx-org/stencil/build/schedule"
	"github.com/gx-org/stencil/build/simplify"
	"github.com/gx-org/stencil/build/stage"
)

// synthesizer turns the inferred realizations into one imperative
// statement: a loop nest per realized stage, nested at its compute
// location, with storage flattened to linear indexes.
type synthesizer struct {
	res *bounds.Result

	// produceAt and allocAt group compute-at producers by the qualified
	// consumer loop variable they nest under, consumers first.
	produceAt map[string][]*bounds.Realization
	allocAt   map[string][]*bounds.Realization
}

func newSynthesizer(res *bounds.Result) *synthesizer {
	sy := &synthesizer{
		res:       res,
		produceAt: map[string][]*bounds.Realization{},
		allocAt:   map[string][]*bounds.Realization{},
	}
	for _, r := range res.Realized {
		if r.ComputeLevel.Kind != schedule.LevelAt {
			continue
		}
		at := bounds.VarName(r.ComputeLevel.Stage, r.ComputeLevel.Dim)
		sy.produceAt[at] = append(sy.produceAt[at], r)
		if r.StoreLevel.Kind == schedule.LevelAt && r.StoreLevel != r.ComputeLevel {
			sat := bounds.VarName(r.StoreLevel.Stage, r.StoreLevel.Dim)
			sy.allocAt[sat] = append(sy.allocAt[sat], r)
		}
	}
	return sy
}

// synthesize emits the whole pipeline: root realizations in consumer
// order, producers wrapping their consumers in produce and consume
// markers.
func (sy *synthesizer) synthesize() ir.Stmt {
	var body ir.Stmt
	for _, r := range sy.res.Realized {
		if r.Plan == nil || r.ComputeLevel.Kind != schedule.LevelRoot {
			continue
		}
		produce := &ir.ProduceStmt{Stage: r.Stage.Name, Body: sy.stageNest(r)}
		var consume ir.Stmt
		if body != nil {
			consume = &ir.ConsumeStmt{Stage: r.Stage.Name, Body: body}
		}
		body = ir.Block(produce, consume)
		if !sy.res.Pipeline.IsOutput(r.Stage) {
			body = sy.allocate(r, body)
		}
		body = sy.wrapRootStores(r, body)
	}
	return body
}

// wrapRootStores allocates, around a root segment, the buffers of
// producers computed inside it but stored at root.
func (sy *synthesizer) wrapRootStores(root *bounds.Realization, body ir.Stmt) ir.Stmt {
	for _, p := range sy.res.Realized {
		if p.ComputeLevel.Kind != schedule.LevelAt || p.StoreLevel.Kind != schedule.LevelRoot {
			continue
		}
		if sy.rootAncestor(p) == root {
			body = sy.allocate(p, body)
		}
	}
	return body
}

// rootAncestor chases compute locations up to the root realization a
// compute-at stage ultimately nests inside.
func (sy *synthesizer) rootAncestor(r *bounds.Realization) *bounds.Realization {
	for r.ComputeLevel.Kind == schedule.LevelAt {
		c, ok := sy.res.Realization(r.ComputeLevel.Stage)
		if !ok {
			return r
		}
		r = c
	}
	return r
}

// allocate wraps a statement with one allocation per output value of the
// stage, sized by the storage region.
func (sy *synthesizer) allocate(r *bounds.Realization, body ir.Stmt) ir.Stmt {
	var extents []ir.Expr
	for _, it := range r.Storage {
		extents = append(extents, it.Extent())
	}
	for v := r.Stage.NumValues() - 1; v >= 0; v-- {
		body = &ir.AllocateStmt{
			Buffer:  bounds.BufName(r.Stage.Name, v),
			Typ:     r.Stage.ValueType(v),
			Extents: extents,
			Body:    body,
		}
	}
	return body
}

// stageNest emits the full computation of one stage: the scheduled
// initial nest, then one plain nest per update, with producers computed
// at one of the stage's loops injected at that loop.
func (sy *synthesizer) stageNest(r *bounds.Realization) ir.Stmt {
	body := sy.initBody(r)
	for _, g := range r.Plan.Guards {
		body = &ir.IfStmt{Cond: g, Then: body}
	}
	for _, def := range r.Plan.Defs {
		body = &ir.LetStmt{Name: def.Name, Value: def.Value, Body: body}
	}
	for _, l := range r.Plan.Loops {
		if inner := sy.produceAt[l.Name]; len(inner) > 0 {
			body = sy.wrapProducers(inner, body)
		}
		for _, p := range sy.allocAt[l.Name] {
			body = sy.allocate(p, body)
		}
		body = &ir.ForStmt{Name: l.Name, Min: l.Min, Extent: l.Extent, Kind: forKind(l.Kind), Body: body}
	}
	stmts := []ir.Stmt{body}
	for _, up := range sy.res.Updates[r.Stage.Name] {
		stmts = append(stmts, sy.updateNest(r, up))
	}
	return ir.Block(stmts...)
}

// wrapProducers nests compute-at producers around a consumer body. The
// list is consumers first, so each wrap puts the next producer outside
// the previous one.
func (sy *synthesizer) wrapProducers(producers []*bounds.Realization, body ir.Stmt) ir.Stmt {
	for _, p := range producers {
		seg := ir.Block(
			&ir.ProduceStmt{Stage: p.Stage.Name, Body: sy.stageNest(p)},
			&ir.ConsumeStmt{Stage: p.Stage.Name, Body: body},
		)
		if p.StoreLevel == p.ComputeLevel {
			seg = sy.allocate(p, seg)
		}
		body = seg
	}
	return body
}

// initBody is the innermost statement of the initial nest: one store per
// output value at the stage's coordinates.
func (sy *synthesizer) initBody(r *bounds.Realization) ir.Stmt {
	s := r.Stage
	subst := map[string]ir.Expr{}
	coords := make([]ir.Expr, len(s.Dims))
	for i, d := range s.Dims {
		v := &ir.Var{Name: bounds.VarName(s.Name, d), Typ: ir.IndexType()}
		subst[d] = v
		coords[i] = v
	}
	index := sy.flatten(r, coords)
	var stores []ir.Stmt
	for v, val := range sy.res.Values[s.Name] {
		stores = append(stores, &ir.StoreStmt{
			Buffer: bounds.BufName(s.Name, v),
			Index:  index,
			Value:  sy.loadCalls(ir.SubstituteExpr(val, subst)),
		})
	}
	return ir.Block(stores...)
}

// updateNest emits one refinement step: serial loops over the stage's
// region with the reduction variables innermost, storing at the update's
// coordinates.
func (sy *synthesizer) updateNest(r *bounds.Realization, up *stage.Update) ir.Stmt {
	s := r.Stage
	subst := map[string]ir.Expr{}
	for _, d := range s.Dims {
		subst[d] = &ir.Var{Name: bounds.VarName(s.Name, d), Typ: ir.IndexType()}
	}
	var rvars []*stage.RVar
	if up.Dom != nil {
		rvars = up.Dom.Vars
		for _, rv := range rvars {
			subst[rv.Name] = &ir.Var{Name: bounds.VarName(s.Name, rv.Name), Typ: ir.IndexType()}
		}
	}
	coords := make([]ir.Expr, len(up.Args))
	for i, a := range up.Args {
		coords[i] = sy.loadCalls(ir.SubstituteExpr(a, subst))
	}
	index := sy.flatten(r, coords)
	var stores []ir.Stmt
	for v, val := range up.Values {
		stores = append(stores, &ir.StoreStmt{
			Buffer: bounds.BufName(s.Name, v),
			Index:  index,
			Value:  sy.loadCalls(ir.SubstituteExpr(val, subst)),
		})
	}
	body := ir.Block(stores...)
	for _, rv := range rvars {
		body = &ir.ForStmt{
			Name:   bounds.VarName(s.Name, rv.Name),
			Min:    ir.SubstituteExpr(rv.Min, subst),
			Extent: ir.SubstituteExpr(rv.Extent, subst),
			Body:   body,
		}
	}
	for i, d := range s.Dims {
		body = &ir.ForStmt{
			Name:   bounds.VarName(s.Name, d),
			Min:    r.Region[i].Min,
			Extent: r.Region[i].Extent(),
			Body:   body,
		}
	}
	return body
}

// loadCalls replaces stage calls with loads from the producer's buffer
// at the flattened coordinate.
func (sy *synthesizer) loadCalls(e ir.Expr) ir.Expr {
	return ir.RewriteExpr(e, func(n ir.Node) ir.Node {
		call, ok := n.(*ir.CallExpr)
		if !ok {
			return n
		}
		p, ok := sy.res.Realization(call.Stage)
		if !ok {
			return n
		}
		return &ir.LoadExpr{
			Buffer: bounds.BufName(call.Stage, call.Value),
			Index:  sy.flatten(p, call.Args),
			Typ:    call.Typ,
		}
	})
}

// flatten maps a coordinate tuple to a row-major linear index over the
// stage's storage region. Folded dimensions address modulo their window.
func (sy *synthesizer) flatten(r *bounds.Realization, coords []ir.Expr) ir.Expr {
	var index ir.Expr
	stride := ir.Expr(ir.Const(1))
	for i, c := range coords {
		var rel ir.Expr
		if w, ok := r.Fold[i]; ok {
			rel = ir.NewMod(c, ir.Const(w))
		} else {
			rel = ir.NewSub(c, r.Storage[i].Min)
		}
		term := ir.NewMul(rel, stride)
		if index == nil {
			index = term
		} else {
			index = ir.NewAdd(index, term)
		}
		stride = ir.NewMul(stride, r.Storage[i].Extent())
	}
	if index == nil {
		index = ir.Const(0)
	}
	return simplify.Expr(index)
}

func forKind(k schedule.DimKind) ir.ForKind {
	switch k {
	case schedule.DimParallel:
		return ir.Parallel
	case schedule.DimVectorized:
		return ir.Vectorized
	case schedule.DimUnrolled:
		return ir.Unrolled
	}
	return ir.Serial
}
