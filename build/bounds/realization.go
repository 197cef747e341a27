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

package bounds

import (
	"strconv"

	"github.com/pkg/errors"
	"github.com/gx-org/stencil/build/interval"
	"github.com/gx-org/stencil/build/ir"
	"github.com/gx-org/stencil/build/schedule"
	"github.com/gx-org/stencil/build/simplify"
	"github.com/gx-org/stencil/build/stage"
)

// VarName returns the qualified loop variable name of a stage dimension.
func VarName(stageName, dim string) string {
	return stageName + "." + dim
}

// Loop is one loop of a planned nest.
type Loop struct {
	// Name is the qualified loop variable.
	Name        string
	Min, Extent ir.Expr
	Kind        schedule.DimKind
}

// VarDef binds a derived dimension variable to its value in terms of
// enclosing loop variables. Defs are emitted as let statements inside the
// innermost loop.
type VarDef struct {
	Name  string
	Value ir.Expr
}

// NestPlan is the loop structure realizing a stage's initial definition:
// the final loops (innermost first), the definitions reconstituting the
// original dimensions from split or fused loop variables, and the guard
// conditions of split tails.
type NestPlan struct {
	Loops  []Loop
	Defs   []VarDef
	Guards []ir.Expr

	// dimExprs maps each original dimension to its value as an
	// expression over the final loop variables only.
	dimExprs map[string]ir.Expr
}

// Realization is everything later passes need to realize one stage: its
// inferred regions, its planned loop nest, and its effective placement.
type Realization struct {
	Stage *stage.Stage
	Sched *schedule.StageSchedule

	// Region is the stage's footprint at its compute location, one
	// interval per dimension. Bounds may reference loop variables of
	// enclosing consumer loops.
	Region interval.Region
	// Storage is the footprint at the storage location, covering every
	// compute-location region realized inside it.
	Storage interval.Region
	// Fold maps a dimension index to the sliding-window extent its
	// allocation is folded to.
	Fold map[int]int64

	Plan *NestPlan

	ComputeLevel schedule.LoopLevel
	StoreLevel   schedule.LoopLevel
}

// BufName returns the buffer holding the i-th value of a stage.
func BufName(stageName string, value int) string {
	if value == 0 {
		return stageName
	}
	return stageName + "." + strconv.Itoa(value)
}

// planNest applies the stage's split, fuse, and reorder directives to the
// loops implied by its compute region.
func planNest(s *stage.Stage, sch *schedule.StageSchedule, region interval.Region) (*NestPlan, error) {
	type curDim struct {
		name        string
		min, extent ir.Expr
	}
	q := func(d string) string { return VarName(s.Name, d) }
	cur := make([]curDim, len(s.Dims))
	for i, d := range s.Dims {
		cur[i] = curDim{name: d, min: region[i].Min, extent: region[i].Extent()}
	}
	find := func(name string) int {
		for i, c := range cur {
			if c.name == name {
				return i
			}
		}
		return -1
	}
	plan := &NestPlan{}
	var splits []*schedule.Split
	if sch != nil {
		splits = sch.Splits
	}
	for _, sp := range splits {
		if sp.Fuse {
			oi, ii := find(sp.Outer), find(sp.Inner)
			if oi < 0 {
				return nil, errors.Errorf("dimension %s does not exist", sp.Outer)
			}
			if ii < 0 {
				return nil, errors.Errorf("dimension %s does not exist", sp.Inner)
			}
			outer, inner := cur[oi], cur[ii]
			fusedVar := &ir.Var{Name: q(sp.Old), Typ: ir.IndexType()}
			plan.Defs = append(plan.Defs,
				VarDef{Name: q(sp.Inner), Value: sAdd(inner.min, sMod(fusedVar, inner.extent))},
				VarDef{Name: q(sp.Outer), Value: sAdd(outer.min, sDiv(fusedVar, inner.extent))},
			)
			fused := curDim{name: sp.Old, min: ir.Const(0), extent: sMul(outer.extent, inner.extent)}
			// The fused dimension takes the inner one's position.
			cur[ii] = fused
			cur = append(cur[:oi], cur[oi+1:]...)
			continue
		}
		at := find(sp.Old)
		if at < 0 {
			return nil, errors.Errorf("dimension %s does not exist", sp.Old)
		}
		old := cur[at]
		factor := ir.Const(sp.Factor)
		outerExtent := sDiv(sAdd(old.extent, ir.Const(sp.Factor-1)), factor)
		outerVar := &ir.Var{Name: q(sp.Outer), Typ: ir.IndexType()}
		innerVar := &ir.Var{Name: q(sp.Inner), Typ: ir.IndexType()}
		rel := sAdd(sMul(outerVar, factor), innerVar)
		tail := sp.Tail
		if tail == schedule.RoundUp && !divisibleBy(old.extent, sp.Factor) {
			// Inference widens round-up extents to a multiple of the
			// factor; anything else keeps the guard.
			tail = schedule.GuardWithIf
		}
		if tail == schedule.ShiftInwards {
			if ext, ok := ir.IsConstInt(old.extent); !ok || ext < sp.Factor {
				// Shifting needs a full first block to shift into.
				tail = schedule.GuardWithIf
			}
		}
		switch tail {
		case schedule.GuardWithIf:
			plan.Defs = append(plan.Defs, VarDef{Name: q(sp.Old), Value: sAdd(old.min, rel)})
			if ext, ok := ir.IsConstInt(old.extent); !ok || ext%sp.Factor != 0 {
				plan.Guards = append(plan.Guards, ir.NewLT(rel, old.extent))
			}
		case schedule.ShiftInwards:
			base := ir.NewMax(ir.NewMin(sMul(outerVar, factor), sSub(old.extent, factor)), ir.Const(0))
			plan.Defs = append(plan.Defs, VarDef{Name: q(sp.Old), Value: sAdd(old.min, sAdd(base, innerVar))})
		case schedule.RoundUp:
			plan.Defs = append(plan.Defs, VarDef{Name: q(sp.Old), Value: sAdd(old.min, rel)})
		}
		cur[at] = curDim{name: sp.Inner, min: ir.Const(0), extent: factor}
		rest := append([]curDim{}, cur[at+1:]...)
		cur = append(append(cur[:at+1], curDim{name: sp.Outer, min: ir.Const(0), extent: outerExtent}), rest...)
	}
	var order []string
	if sch != nil {
		order = sch.Order
	}
	if len(order) > 0 {
		byName := map[string]curDim{}
		var positions []int
		for _, name := range order {
			idx := find(name)
			if idx < 0 {
				return nil, errors.Errorf("dimension %s does not exist", name)
			}
			byName[name] = cur[idx]
		}
		for i, c := range cur {
			if _, ok := byName[c.name]; ok {
				positions = append(positions, i)
			}
		}
		// Listed dimensions take the listed order within the positions
		// they already occupy; unlisted ones do not move.
		reordered := make([]curDim, len(cur))
		copy(reordered, cur)
		for j, pos := range positions {
			reordered[pos] = byName[order[j]]
		}
		cur = reordered
	}
	var marks map[string]schedule.DimKind
	if sch != nil {
		marks = sch.Marks
	}
	for name := range marks {
		if find(name) < 0 {
			return nil, errors.Errorf("dimension %s does not exist", name)
		}
	}
	for _, c := range cur {
		plan.Loops = append(plan.Loops, Loop{
			Name:   q(c.name),
			Min:    c.min,
			Extent: c.extent,
			Kind:   marks[c.name],
		})
	}
	plan.resolveDimExprs(s, q)
	return plan, nil
}

// resolveDimExprs computes, for each original dimension, its value as an
// expression over final loop variables by chasing definition chains.
func (plan *NestPlan) resolveDimExprs(s *stage.Stage, q func(string) string) {
	defs := map[string]ir.Expr{}
	for _, def := range plan.Defs {
		defs[def.Name] = def.Value
	}
	plan.dimExprs = map[string]ir.Expr{}
	for _, d := range s.Dims {
		e := ir.Expr(&ir.Var{Name: q(d), Typ: ir.IndexType()})
		for {
			next := ir.SubstituteExpr(e, defs)
			if next == e {
				break
			}
			e = next
		}
		plan.dimExprs[d] = e
	}
}

// DimExpr returns the value of an original dimension over final loop
// variables.
func (plan *NestPlan) DimExpr(dim string) ir.Expr {
	return plan.dimExprs[dim]
}

// LoopIndex returns the position of a final dimension in the nest.
func (plan *NestPlan) LoopIndex(qualified string) int {
	for i, l := range plan.Loops {
		if l.Name == qualified {
			return i
		}
	}
	return -1
}

// ScopeInside returns the interval scope of the final loop variables
// strictly inner than the given loop position. Loop variables at or
// outside the position stay symbolic.
func (plan *NestPlan) ScopeInside(pos int) interval.Scope {
	scope := interval.Scope{}
	for i := 0; i < pos; i++ {
		l := plan.Loops[i]
		scope[l.Name] = interval.NewExtent(l.Min, l.Extent)
	}
	return scope
}

// DimInterval returns the interval covered by an original dimension when
// execution sits at the top of the loop at the given position (len(Loops)
// meaning outside the whole nest). The result is clipped to the stage's
// compute region.
func (r *Realization) DimInterval(dim string, pos int) interval.Interval {
	i, err := r.Stage.DimIndex(dim)
	if err != nil {
		return interval.Everything()
	}
	got := interval.BoundsOf(r.Plan.DimExpr(dim), r.Plan.ScopeInside(pos))
	return interval.Intersect(got, r.Region[i])
}

// divisibleBy reports if an extent is provably a multiple of a factor.
func divisibleBy(e ir.Expr, f int64) bool {
	if f <= 0 {
		return false
	}
	if v, ok := ir.IsConstInt(e); ok {
		return v%f == 0
	}
	if mul, ok := e.(*ir.BinaryExpr); ok && mul.Op == ir.Mul {
		if c, ok := ir.IsConstInt(mul.Y); ok && c%f == 0 {
			return true
		}
		if c, ok := ir.IsConstInt(mul.X); ok && c%f == 0 {
			return true
		}
	}
	return false
}

func sAdd(x, y ir.Expr) ir.Expr { return simplify.Expr(ir.NewAdd(x, y)) }
func sSub(x, y ir.Expr) ir.Expr { return simplify.Expr(ir.NewSub(x, y)) }
func sMul(x, y ir.Expr) ir.Expr { return simplify.Expr(ir.NewMul(x, y)) }
func sDiv(x, y ir.Expr) ir.Expr { return simplify.Expr(ir.NewDiv(x, y)) }
func sMod(x, y ir.Expr) ir.Expr { return simplify.Expr(ir.NewMod(x, y)) }
