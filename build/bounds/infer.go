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

// Package bounds infers, for every realized stage, the region of
// coordinates it must compute so its consumers find every value they
// read. Inference walks the graph consumers first: a stage's region is
// the union of the footprints of its call sites, evaluated over the
// intervals of the consumer loops inside the stage's compute location.
package bounds

import (
	"github.com/gx-org/stencil/build/diag"
	"github.com/gx-org/stencil/build/interval"
	"github.com/gx-org/stencil/build/ir"
	"github.com/gx-org/stencil/build/schedule"
	"github.com/gx-org/stencil/build/simplify"
	"github.com/gx-org/stencil/build/stage"
)

const (
	// closureSteps caps chasing loop variables through the bounds of
	// other loop variables.
	closureSteps = 16
	// reductionSteps caps the fixed point growing a reduction's region by
	// its own update footprints.
	reductionSteps = 8
)

// Result is the outcome of inference: one realization per non-inline
// stage, listed consumers first, plus the stage definitions rewritten for
// lowering.
type Result struct {
	Pipeline *stage.Pipeline
	Schedule *schedule.Schedule

	// Realized lists the realizations with every consumer before its
	// producers.
	Realized []*Realization

	// Values and Updates hold the definitions after boundary clamping
	// and inlining, keyed by stage name.
	Values  map[string][]ir.Expr
	Updates map[string][]*stage.Update

	byName map[string]*Realization
}

// Realization returns the realization of a stage.
func (res *Result) Realization(name string) (*Realization, bool) {
	r, ok := res.byName[name]
	return r, ok
}

type inferencer struct {
	pipeline *stage.Pipeline
	sched    *schedule.Schedule
	errs     *diag.Errors

	values  map[string][]ir.Expr
	updates map[string][]*stage.Update

	realized []*Realization
	byName   map[string]*Realization
	// global holds the interval of every realized loop variable, keyed
	// by qualified name.
	global interval.Scope
}

// Infer computes the realization of every non-inline stage of a
// scheduled pipeline.
func Infer(p *stage.Pipeline, sched *schedule.Schedule) (*Result, error) {
	inf := &inferencer{
		pipeline: p,
		sched:    sched,
		errs:     &diag.Errors{},
		values:   map[string][]ir.Expr{},
		updates:  map[string][]*stage.Update{},
		byName:   map[string]*Realization{},
		global:   interval.Scope{},
	}
	inf.prepare()
	topo := p.TopoOrder()
	for i := len(topo) - 1; i >= 0; i-- {
		s := topo[i]
		st := Effective(p, sched, s)
		if st.ComputeLevel.Kind == schedule.LevelInline && s.Kind() != stage.Input {
			continue
		}
		inf.inferStage(s, st)
	}
	if err := inf.errs.ToError(); err != nil {
		return nil, err
	}
	return &Result{
		Pipeline: p,
		Schedule: sched,
		Realized: inf.realized,
		Values:   inf.values,
		Updates:  inf.updates,
		byName:   inf.byName,
	}, nil
}

func (inf *inferencer) inferStage(s *stage.Stage, st *schedule.StageSchedule) {
	compute, store := inf.checkLevels(s, st)
	region := inf.demand(s, compute)
	if len(inf.updates[s.Name]) > 0 {
		region = inf.selfFootprint(s, region)
	}
	region = inf.checkDeclared(s, region)
	if s.Kind() != stage.Input {
		inf.expandRoundUp(s, st, region)
	}
	for i, d := range s.Dims {
		if region[i].IsBounded() {
			region[i] = interval.Interval{
				Min: simplify.Expr(region[i].Min),
				Max: simplify.Expr(region[i].Max),
			}
			continue
		}
		inf.errs.Appendf(diag.UnboundedRegion, s.Name, d,
			"the required region has no finite bound; declare bounds or bound the consumers")
		region[i] = interval.Of(0, 0)
	}
	r := &Realization{
		Stage:        s,
		Sched:        st,
		Region:       region,
		ComputeLevel: compute,
		StoreLevel:   store,
		Fold:         map[int]int64{},
	}
	if s.Kind() != stage.Input {
		plan, err := planNest(s, st, region)
		if err != nil {
			inf.errs.Appendf(diag.InvalidScheduleReference, s.Name, "", "%s", err.Error())
			plan, _ = planNest(s, &schedule.StageSchedule{}, region)
		}
		r.Plan = plan
	}
	r.Storage = inf.storageRegion(s, r)
	inf.detectFolding(r)
	inf.realized = append(inf.realized, r)
	inf.byName[s.Name] = r
	inf.registerScope(r)
}

// checkLevels validates the compute and storage levels of a stage and
// returns the effective pair. Invalid references degrade to root so
// inference can keep reporting.
func (inf *inferencer) checkLevels(s *stage.Stage, st *schedule.StageSchedule) (compute, store schedule.LoopLevel) {
	compute, store = st.ComputeLevel, st.Storage()
	if s.Kind() == stage.Input {
		return schedule.Root(), schedule.Root()
	}
	if compute.Kind == schedule.LevelAt {
		c, ok := inf.byName[compute.Stage]
		switch {
		case !ok:
			inf.errs.Appendf(diag.InvalidScheduleReference, s.Name, "",
				"compute location %s is not a realized consumer", compute)
			compute = schedule.Root()
		case c.Plan == nil || c.Plan.LoopIndex(VarName(compute.Stage, compute.Dim)) < 0:
			inf.errs.Appendf(diag.InvalidScheduleReference, s.Name, compute.Dim,
				"consumer %s has no loop %s", compute.Stage, compute.Dim)
			compute = schedule.Root()
		}
	}
	if store == compute {
		return compute, store
	}
	switch store.Kind {
	case schedule.LevelRoot:
	case schedule.LevelAt:
		ok := compute.Kind == schedule.LevelAt && store.Stage == compute.Stage
		if ok {
			c := inf.byName[compute.Stage]
			cpos := c.Plan.LoopIndex(VarName(compute.Stage, compute.Dim))
			spos := c.Plan.LoopIndex(VarName(store.Stage, store.Dim))
			ok = spos >= cpos
		}
		if !ok {
			inf.errs.Appendf(diag.InvalidScheduleReference, s.Name, store.Dim,
				"storage location %s is inside compute location %s", store, compute)
			store = compute
		}
	default:
		store = compute
	}
	return compute, store
}

// callCtx evaluates call coordinates found in one consumer context: the
// substitution from the consumer's declared dimensions to its loop
// variables, and the intervals of the variables that vary inside the
// producer's compute location.
type callCtx struct {
	subst map[string]ir.Expr
	scope interval.Scope
}

// demand returns the union of the footprints of every call site reading
// the stage. Output stages start from their declared bounds.
func (inf *inferencer) demand(s *stage.Stage, compute schedule.LoopLevel) interval.Region {
	region := make(interval.Region, len(s.Dims))
	seen := false
	if inf.pipeline.IsOutput(s) {
		for i, d := range s.Dims {
			b, ok := s.BoundFor(d)
			if !ok {
				inf.errs.Appendf(diag.UnboundedRegion, s.Name, d,
					"output stages must declare bounds on every dimension")
				region[i] = interval.Of(0, 0)
				continue
			}
			region[i] = interval.NewExtent(b.Min, b.Extent)
		}
		seen = true
	}
	consumed := false
	for _, c := range inf.realized {
		if c.Plan == nil || c.Stage.Name == s.Name {
			continue
		}
		sites := collectCalls(inf.values[c.Stage.Name], s.Name)
		if len(sites) > 0 {
			if compute.Kind == schedule.LevelAt && compute.Stage != c.Stage.Name {
				inf.errs.Appendf(diag.CyclicComputeLocation, s.Name, "",
					"computed at %s but consumed by %s outside that nest", compute, c.Stage.Name)
			} else {
				consumed = true
			}
			ctx := inf.initCtx(c, compute)
			for _, call := range sites {
				region, seen = unionDemand(region, seen, inf.siteDemand(call, ctx))
			}
		}
		for _, up := range inf.updates[c.Stage.Name] {
			sites := collectCalls(append(append([]ir.Expr{}, up.Args...), up.Values...), s.Name)
			if len(sites) == 0 {
				continue
			}
			if compute.Kind == schedule.LevelAt {
				inf.errs.Appendf(diag.CyclicComputeLocation, s.Name, "",
					"computed at %s but consumed by an update of %s", compute, c.Stage.Name)
			}
			ctx := inf.updateCtx(c, up)
			for _, call := range sites {
				region, seen = unionDemand(region, seen, inf.siteDemand(call, ctx))
			}
		}
	}
	if compute.Kind == schedule.LevelAt && !consumed {
		inf.errs.Appendf(diag.InvalidScheduleReference, s.Name, "",
			"compute location %s never reads the stage", compute)
	}
	if !seen {
		for i := range region {
			region[i] = interval.Everything()
		}
	}
	return region
}

// initCtx is the call context of a consumer's initial definition.
func (inf *inferencer) initCtx(c *Realization, compute schedule.LoopLevel) *callCtx {
	subst := map[string]ir.Expr{}
	for _, d := range c.Stage.Dims {
		subst[d] = c.Plan.DimExpr(d)
	}
	scope := inf.global
	if compute.Kind == schedule.LevelAt && compute.Stage == c.Stage.Name {
		pos := c.Plan.LoopIndex(VarName(compute.Stage, compute.Dim))
		scope = c.Plan.ScopeInside(pos)
	}
	return &callCtx{subst: subst, scope: scope}
}

// updateCtx is the call context of one update of a consumer. Update
// nests loop over the consumer's region with the declared dimension
// variables, qualified, plus the update's reduction variables.
func (inf *inferencer) updateCtx(c *Realization, up *stage.Update) *callCtx {
	subst := map[string]ir.Expr{}
	for _, d := range c.Stage.Dims {
		subst[d] = &ir.Var{Name: VarName(c.Stage.Name, d), Typ: ir.IndexType()}
	}
	if up.Dom != nil {
		for _, rv := range up.Dom.Vars {
			subst[rv.Name] = &ir.Var{Name: VarName(c.Stage.Name, rv.Name), Typ: ir.IndexType()}
		}
	}
	return &callCtx{subst: subst, scope: inf.global}
}

// siteDemand bounds the coordinates of one call site over the context's
// scope.
func (inf *inferencer) siteDemand(call *ir.CallExpr, ctx *callCtx) interval.Region {
	region := make(interval.Region, len(call.Args))
	for i, a := range call.Args {
		arg := simplify.Expr(ir.SubstituteExpr(a, ctx.subst))
		region[i] = inf.closure(interval.BoundsOf(arg, ctx.scope), ctx.scope)
	}
	return region
}

func unionDemand(region interval.Region, seen bool, site interval.Region) (interval.Region, bool) {
	if !seen {
		copy(region, site)
		return region, true
	}
	for i := range region {
		region[i] = interval.Union(region[i], site[i])
	}
	return region, true
}

// selfFootprint grows a reduction's region until it covers the
// coordinates its own updates store to and read from, to a capped fixed
// point. Dimensions that do not settle fall back to the declared bound.
func (inf *inferencer) selfFootprint(s *stage.Stage, region interval.Region) interval.Region {
	converged := false
	for iter := 0; iter < reductionSteps && !converged; iter++ {
		next := append(interval.Region{}, region...)
		for _, up := range inf.updates[s.Name] {
			scope := interval.Scope{}
			for i, d := range s.Dims {
				scope[d] = region[i]
			}
			if up.Dom != nil {
				for _, rv := range up.Dom.Vars {
					scope[rv.Name] = interval.NewExtent(rv.Min, rv.Extent)
				}
			}
			for i, a := range up.Args {
				next[i] = interval.Union(next[i], inf.closure(interval.BoundsOf(a, scope), scope))
			}
			for _, call := range collectCalls(append(append([]ir.Expr{}, up.Args...), up.Values...), s.Name) {
				for i, a := range call.Args {
					next[i] = interval.Union(next[i], inf.closure(interval.BoundsOf(a, scope), scope))
				}
			}
		}
		converged = regionEqual(next, region)
		region = next
	}
	if !converged {
		for i, d := range s.Dims {
			if b, ok := s.BoundFor(d); ok {
				region[i] = interval.NewExtent(b.Min, b.Extent)
			} else {
				region[i] = interval.Everything()
			}
		}
	}
	return region
}

// checkDeclared clips the region to the user-declared bounds, reporting
// a violation when the requirement provably exceeds them. Clamped stages
// never violate; their consumers were already folded onto the bounds.
func (inf *inferencer) checkDeclared(s *stage.Stage, region interval.Region) interval.Region {
	for _, b := range s.Bounds {
		i, err := s.DimIndex(b.Dim)
		if err != nil {
			continue
		}
		db := interval.NewExtent(b.Min, b.Extent)
		if s.Boundary != stage.BoundaryClamp && !inf.pipeline.IsOutput(s) {
			if region[i].Min != nil {
				if v, ok := interval.ProveConst(ir.NewSub(db.Min, region[i].Min)); ok && v > 0 {
					inf.errs.Appendf(diag.BoundsViolation, s.Name, b.Dim,
						"consumers read %s below the declared minimum %s",
						ir.String(region[i].Min), ir.String(db.Min))
				}
			}
			if region[i].Max != nil {
				if v, ok := interval.ProveConst(ir.NewSub(region[i].Max, db.Max)); ok && v > 0 {
					inf.errs.Appendf(diag.BoundsViolation, s.Name, b.Dim,
						"consumers read %s above the declared maximum %s",
						ir.String(region[i].Max), ir.String(db.Max))
				}
			}
		}
		if inf.pipeline.IsOutput(s) {
			if region[i].Min != nil {
				if v, ok := interval.ProveConst(ir.NewSub(db.Min, region[i].Min)); ok && v > 0 {
					inf.errs.Appendf(diag.BoundsViolation, s.Name, b.Dim,
						"consumers read past the declared output bounds")
				}
			}
			if region[i].Max != nil {
				if v, ok := interval.ProveConst(ir.NewSub(region[i].Max, db.Max)); ok && v > 0 {
					inf.errs.Appendf(diag.BoundsViolation, s.Name, b.Dim,
						"consumers read past the declared output bounds")
				}
			}
		}
		region[i] = interval.Intersect(region[i], db)
	}
	return region
}

// expandRoundUp widens the region of dimensions split with the round-up
// tail so the extent becomes a multiple of the factor. Writing past a
// declared bound is a violation.
func (inf *inferencer) expandRoundUp(s *stage.Stage, st *schedule.StageSchedule, region interval.Region) {
	for _, sp := range st.Splits {
		if sp.Fuse || sp.Tail != schedule.RoundUp || sp.Factor <= 0 {
			continue
		}
		i, err := s.DimIndex(sp.Old)
		if err != nil {
			// Splits of derived dimensions fall back to a guard.
			continue
		}
		if !region[i].IsBounded() {
			continue
		}
		f := ir.Const(sp.Factor)
		ext := simplify.Expr(ir.NewMul(ir.NewDiv(ir.NewAdd(region[i].Extent(), ir.Const(sp.Factor-1)), f), f))
		region[i] = interval.NewExtent(region[i].Min, ext)
		if b, ok := s.BoundFor(sp.Old); ok {
			db := interval.NewExtent(b.Min, b.Extent)
			if v, ok := interval.ProveConst(ir.NewSub(region[i].Max, db.Max)); ok && v > 0 {
				inf.errs.Appendf(diag.BoundsViolation, s.Name, sp.Old,
					"rounding the extent up to a multiple of %d writes past the declared bounds", sp.Factor)
			}
		}
	}
}

// storageRegion widens the compute region over the loops between the
// compute and storage locations, so one allocation covers every region
// realized inside it.
func (inf *inferencer) storageRegion(s *stage.Stage, r *Realization) interval.Region {
	if r.StoreLevel == r.ComputeLevel {
		return append(interval.Region{}, r.Region...)
	}
	scope := inf.global
	if r.StoreLevel.Kind == schedule.LevelAt {
		c := inf.byName[r.StoreLevel.Stage]
		scope = c.Plan.ScopeInside(c.Plan.LoopIndex(VarName(r.StoreLevel.Stage, r.StoreLevel.Dim)))
	}
	storage := make(interval.Region, len(r.Region))
	for i, d := range s.Dims {
		storage[i] = inf.closure(r.Region[i], scope)
		if !storage[i].IsBounded() {
			inf.errs.Appendf(diag.UnboundedRegion, s.Name, d,
				"the storage footprint at %s has no finite bound", r.StoreLevel)
			storage[i] = interval.Of(0, 0)
		}
	}
	return storage
}

// detectFolding shrinks the allocation of a stage computed inside a
// consumer loop to its sliding window: when the region over the fold
// loop variable has a constant extent and a provably nondecreasing
// minimum, coordinates are stored modulo the window.
func (inf *inferencer) detectFolding(r *Realization) {
	if r.Sched.NoFold || r.ComputeLevel.Kind != schedule.LevelAt || r.StoreLevel == r.ComputeLevel {
		return
	}
	v := VarName(r.ComputeLevel.Stage, r.ComputeLevel.Dim)
	vNext := ir.NewAdd(&ir.Var{Name: v, Typ: ir.IndexType()}, ir.Const(1))
	for i := range r.Region {
		it := r.Region[i]
		if !it.IsBounded() || !(ir.UsesVar(it.Min, v) || ir.UsesVar(it.Max, v)) {
			continue
		}
		w, ok := interval.ProveConst(it.Extent())
		if !ok || w < 1 {
			continue
		}
		shifted := ir.SubstituteExpr(it.Min, map[string]ir.Expr{v: vNext})
		dv, ok := interval.ProveConst(ir.NewSub(shifted, it.Min))
		if !ok || dv < 0 {
			continue
		}
		if sw, ok := interval.ProveConst(r.Storage[i].Extent()); ok && sw <= w {
			continue
		}
		r.Fold[i] = w
		r.Storage[i] = interval.Of(0, w-1)
	}
}

// registerScope publishes the realized loop variables so producers can
// bound expressions over them.
func (inf *inferencer) registerScope(r *Realization) {
	name := r.Stage.Name
	if r.Plan != nil {
		for _, l := range r.Plan.Loops {
			inf.global[l.Name] = interval.NewExtent(l.Min, l.Extent)
		}
	}
	if len(inf.updates[name]) == 0 {
		return
	}
	subst := map[string]ir.Expr{}
	for _, d := range r.Stage.Dims {
		subst[d] = &ir.Var{Name: VarName(name, d), Typ: ir.IndexType()}
	}
	for i, d := range r.Stage.Dims {
		inf.global[VarName(name, d)] = r.Region[i]
	}
	for _, up := range inf.updates[name] {
		if up.Dom == nil {
			continue
		}
		for _, rv := range up.Dom.Vars {
			min := ir.SubstituteExpr(rv.Min, subst)
			extent := ir.SubstituteExpr(rv.Extent, subst)
			inf.global[VarName(name, rv.Name)] = interval.NewExtent(min, extent)
		}
	}
}

// closure rebounds an interval until its bounds no longer reference
// scoped variables. A bound still moving after the cap is dropped to
// unbounded.
func (inf *inferencer) closure(it interval.Interval, scope interval.Scope) interval.Interval {
	return interval.Interval{
		Min: closeBound(it.Min, scope, false),
		Max: closeBound(it.Max, scope, true),
	}
}

func closeBound(e ir.Expr, scope interval.Scope, upper bool) ir.Expr {
	for step := 0; step < closureSteps; step++ {
		if e == nil {
			return nil
		}
		b := interval.BoundsOf(e, scope)
		next := b.Min
		if upper {
			next = b.Max
		}
		if next == nil {
			return nil
		}
		if ir.Equal(next, e) {
			return simplify.Expr(e)
		}
		e = next
	}
	return nil
}

func collectCalls(exprs []ir.Expr, name string) []*ir.CallExpr {
	var out []*ir.CallExpr
	for _, e := range exprs {
		ir.Walk(e, func(n ir.Node) bool {
			if call, ok := n.(*ir.CallExpr); ok && call.Stage == name {
				out = append(out, call)
			}
			return true
		})
	}
	return out
}

func regionEqual(a, b interval.Region) bool {
	for i := range a {
		if !exprEqual(a[i].Min, b[i].Min) || !exprEqual(a[i].Max, b[i].Max) {
			return false
		}
	}
	return true
}

func exprEqual(a, b ir.Expr) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return ir.Equal(a, b)
}
