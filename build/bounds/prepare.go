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
	"github.com/gx-org/stencil/build/interval"
	"github.com/gx-org/stencil/build/ir"
	"github.com/gx-org/stencil/build/schedule"
	"github.com/gx-org/stencil/build/stage"
)

// Effective returns the directive set driving a stage, supplying the
// default placement when none was authored: outputs and reductions at
// root, other pure stages inline. Input stages read external buffers and
// are treated as computed at root.
func Effective(p *stage.Pipeline, sched *schedule.Schedule, s *stage.Stage) *schedule.StageSchedule {
	st := schedule.StageSchedule{}
	if authored, ok := sched.Lookup(s.Name); ok {
		st = *authored
	}
	if st.ComputeLevel.Kind == schedule.LevelInline {
		if p.IsOutput(s) || s.Kind() != stage.Pure {
			st.ComputeLevel = schedule.Root()
		}
	}
	return &st
}

// prepare rewrites every stage definition for inference: coordinates of
// calls into clamped stages are folded onto the declared bounds, then
// inline stages are substituted into their consumers. Producers are
// processed first so substituted bodies are already fully rewritten.
func (inf *inferencer) prepare() {
	inlined := map[string][]ir.Expr{}
	rewrite := func(e ir.Expr) ir.Expr {
		e = inf.clampCalls(e)
		return inf.substituteInlined(e, inlined)
	}
	for _, s := range inf.pipeline.TopoOrder() {
		values := make([]ir.Expr, len(s.Values))
		for i, v := range s.Values {
			values[i] = rewrite(v)
		}
		inf.values[s.Name] = values
		for _, up := range s.Updates {
			prepared := &stage.Update{Dom: up.Dom}
			for _, a := range up.Args {
				prepared.Args = append(prepared.Args, rewrite(a))
			}
			for _, v := range up.Values {
				prepared.Values = append(prepared.Values, rewrite(v))
			}
			inf.updates[s.Name] = append(inf.updates[s.Name], prepared)
		}
		if s.Kind() == stage.Pure && !inf.pipeline.IsOutput(s) {
			if Effective(inf.pipeline, inf.sched, s).ComputeLevel.Kind == schedule.LevelInline {
				inlined[s.Name] = values
			}
		}
	}
}

// clampCalls folds call coordinates into the callee's declared bounds
// when the callee carries the clamp boundary policy.
func (inf *inferencer) clampCalls(e ir.Expr) ir.Expr {
	return ir.RewriteExpr(e, func(n ir.Node) ir.Node {
		call, ok := n.(*ir.CallExpr)
		if !ok {
			return n
		}
		callee, ok := inf.pipeline.Lookup(call.Stage)
		if !ok || callee.Boundary != stage.BoundaryClamp {
			return n
		}
		args := make([]ir.Expr, len(call.Args))
		changed := false
		for i, arg := range call.Args {
			args[i] = arg
			b, ok := callee.BoundFor(callee.Dims[i])
			if !ok {
				continue
			}
			hi := interval.NewExtent(b.Min, b.Extent).Max
			args[i] = ir.NewMax(ir.NewMin(arg, hi), b.Min)
			changed = true
		}
		if !changed {
			return n
		}
		return &ir.CallExpr{Stage: call.Stage, Value: call.Value, Args: args, Typ: call.Typ}
	})
}

// substituteInlined replaces calls into inline stages with the callee's
// defining expression evaluated at the call coordinates.
func (inf *inferencer) substituteInlined(e ir.Expr, inlined map[string][]ir.Expr) ir.Expr {
	return ir.RewriteExpr(e, func(n ir.Node) ir.Node {
		call, ok := n.(*ir.CallExpr)
		if !ok {
			return n
		}
		values, ok := inlined[call.Stage]
		if !ok {
			return n
		}
		callee, _ := inf.pipeline.Lookup(call.Stage)
		sub := map[string]ir.Expr{}
		for i, d := range callee.Dims {
			sub[d] = call.Args[i]
		}
		return ir.SubstituteExpr(values[call.Value], sub)
	})
}
