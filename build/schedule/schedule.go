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

// Package schedule holds the execution schedule of a pipeline: per-stage,
// per-dimension directives describing loop order, tiling, vectorization,
// parallelism, and where each stage is computed and stored.
//
// A schedule is authored separately from the stages' definitions and
// never changes what a pipeline computes, only how its loop nest is
// arranged.
package schedule

import (
	"fmt"

	"github.com/gx-org/stencil/base/ordered"
)

// TailPolicy says how a split handles an extent that is not a multiple of
// the split factor.
type TailPolicy int

// Tail policies.
const (
	// GuardWithIf keeps the outer extent at ceil(extent/factor) and
	// guards inner iterations past the end with a conditional.
	GuardWithIf TailPolicy = iota
	// ShiftInwards clamps the start of the last inner block so it
	// recomputes part of the previous block instead of running past the
	// end. Requires the producer region to tolerate recomputation.
	ShiftInwards
	// RoundUp rounds the computed extent up to a multiple of the factor.
	// Valid only when the stage's bounds allow the overcompute.
	RoundUp
)

// String representation of the policy.
func (p TailPolicy) String() string {
	switch p {
	case GuardWithIf:
		return "guard"
	case ShiftInwards:
		return "shift"
	case RoundUp:
		return "roundup"
	}
	return fmt.Sprintf("TailPolicy(%d)", int(p))
}

// LoopLevelKind discriminates the loop level variants.
type LoopLevelKind int

// Loop level variants.
const (
	// LevelInline substitutes the stage's expression at its call sites;
	// no loop is generated.
	LevelInline LoopLevelKind = iota
	// LevelRoot computes the stage once, outside all consumer loops.
	LevelRoot
	// LevelAt computes the stage inside a specific loop of a specific
	// consumer.
	LevelAt
)

// LoopLevel refers to a position in the eventual loop nest: the sentinel
// levels root and inline, or a (stage, dimension) pair.
type LoopLevel struct {
	Kind  LoopLevelKind
	Stage string
	Dim   string
}

// Root returns the outermost loop level.
func Root() LoopLevel { return LoopLevel{Kind: LevelRoot} }

// Inline returns the no-loop sentinel level.
func Inline() LoopLevel { return LoopLevel{Kind: LevelInline} }

// At returns the loop level of a dimension of a consumer stage.
func At(stage, dim string) LoopLevel {
	return LoopLevel{Kind: LevelAt, Stage: stage, Dim: dim}
}

// String representation of the level.
func (l LoopLevel) String() string {
	switch l.Kind {
	case LevelInline:
		return "inline"
	case LevelRoot:
		return "root"
	}
	return l.Stage + "." + l.Dim
}

// Split is one split or fuse directive. For a split, Old is replaced by
// the Outer and Inner dimensions with Inner covering Factor iterations.
// For a fuse, Outer and Inner are replaced by the single Old dimension
// covering both.
type Split struct {
	Old          string
	Outer, Inner string
	Factor       int64
	Tail         TailPolicy
	Fuse         bool
}

// Dim is one dimension of a stage's final loop nest with its execution
// mark.
type Dim struct {
	Name string
	Kind DimKind
}

// DimKind marks how a dimension's loop runs.
type DimKind int

// Dimension marks.
const (
	DimSerial DimKind = iota
	DimParallel
	DimVectorized
	DimUnrolled
)

// String representation of the mark.
func (k DimKind) String() string {
	switch k {
	case DimSerial:
		return "serial"
	case DimParallel:
		return "parallel"
	case DimVectorized:
		return "vectorize"
	case DimUnrolled:
		return "unroll"
	}
	return fmt.Sprintf("DimKind(%d)", int(k))
}

// StageSchedule is the directive set of one stage.
type StageSchedule struct {
	// Splits and fuses, in application order.
	Splits []*Split
	// Order is the final dimension order, innermost first. Empty means
	// the stage's declaration order.
	Order []string
	// Marks assigns an execution mark to final dimension names.
	Marks map[string]DimKind
	// ComputeLevel is where the stage is computed. The zero value is
	// inline.
	ComputeLevel LoopLevel
	// StoreLevel is where the stage's buffer lives. The zero value
	// follows ComputeLevel.
	StoreLevel LoopLevel
	// storeSet records that StoreLevel was set explicitly.
	storeSet bool
	// NoFold disables sliding-window storage folding for the stage.
	NoFold bool
}

// Schedule is the directive sets of a pipeline, keyed by stage name.
// Stages without an entry use their default schedule: outputs at root,
// reductions at root, other pure stages inline.
type Schedule struct {
	stages *ordered.Map[string, *StageSchedule]
}

// New returns an empty schedule.
func New() *Schedule {
	return &Schedule{stages: ordered.NewMap[string, *StageSchedule]()}
}

// Stage returns the directive set of a stage, creating it on first use.
func (s *Schedule) Stage(name string) *StageSchedule {
	if st, ok := s.stages.Load(name); ok {
		return st
	}
	st := &StageSchedule{Marks: map[string]DimKind{}}
	s.stages.Store(name, st)
	return st
}

// Lookup returns the directive set of a stage if one was authored.
func (s *Schedule) Lookup(name string) (*StageSchedule, bool) {
	if s == nil || s.stages == nil {
		return nil, false
	}
	return s.stages.Load(name)
}

// Stages iterates over the authored directive sets in authoring order.
func (s *Schedule) Stages() func(func(string, *StageSchedule) bool) {
	return s.stages.Iter()
}

// Split divides a dimension into an outer and inner pair with the given
// factor and tail policy.
func (st *StageSchedule) Split(old, outer, inner string, factor int64, tail TailPolicy) *StageSchedule {
	st.Splits = append(st.Splits, &Split{Old: old, Outer: outer, Inner: inner, Factor: factor, Tail: tail})
	return st
}

// Fuse merges two adjacent dimensions into one.
func (st *StageSchedule) Fuse(outer, inner, fused string) *StageSchedule {
	st.Splits = append(st.Splits, &Split{Old: fused, Outer: outer, Inner: inner, Fuse: true})
	return st
}

// Reorder sets the loop order, innermost first. Dimensions not listed
// keep their relative order outside the listed ones.
func (st *StageSchedule) Reorder(dims ...string) *StageSchedule {
	st.Order = dims
	return st
}

// Tile is the common split-split-reorder combination over two dimensions.
func (st *StageSchedule) Tile(x, y, xi, yi string, xf, yf int64, tail TailPolicy) *StageSchedule {
	xo, yo := x+"o", y+"o"
	st.Split(x, xo, xi, xf, tail)
	st.Split(y, yo, yi, yf, tail)
	return st.Reorder(xi, yi, xo, yo)
}

// Vectorize marks a dimension to be lowered to vector lanes.
func (st *StageSchedule) Vectorize(dim string) *StageSchedule {
	st.mark(dim, DimVectorized)
	return st
}

// Parallel marks a dimension to be lowered to fork-join tasks.
func (st *StageSchedule) Parallel(dim string) *StageSchedule {
	st.mark(dim, DimParallel)
	return st
}

// Unroll marks a dimension to be fully unrolled.
func (st *StageSchedule) Unroll(dim string) *StageSchedule {
	st.mark(dim, DimUnrolled)
	return st
}

func (st *StageSchedule) mark(dim string, kind DimKind) {
	if st.Marks == nil {
		st.Marks = map[string]DimKind{}
	}
	st.Marks[dim] = kind
}

// ComputeRoot computes the stage once before all of its consumers.
func (st *StageSchedule) ComputeRoot() *StageSchedule {
	st.ComputeLevel = Root()
	return st
}

// ComputeAt computes the stage at a loop level of one of its consumers.
func (st *StageSchedule) ComputeAt(stage, dim string) *StageSchedule {
	st.ComputeLevel = At(stage, dim)
	return st
}

// StoreRoot allocates the stage's buffer outside all loops, independent
// of where values are computed.
func (st *StageSchedule) StoreRoot() *StageSchedule {
	st.StoreLevel = Root()
	st.storeSet = true
	return st
}

// StoreAt allocates the stage's buffer at a loop level of a consumer.
func (st *StageSchedule) StoreAt(stage, dim string) *StageSchedule {
	st.StoreLevel = At(stage, dim)
	st.storeSet = true
	return st
}

// DisableFolding keeps the full allocation even when a sliding window is
// detected.
func (st *StageSchedule) DisableFolding() *StageSchedule {
	st.NoFold = true
	return st
}

// Storage returns the effective storage level.
func (st *StageSchedule) Storage() LoopLevel {
	if st.storeSet {
		return st.StoreLevel
	}
	return st.ComputeLevel
}
