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

// Package lower drives the compilation of a scheduled pipeline down to
// an imperative module: bounds inference, loop synthesis, conditional
// elimination, vector and parallel lowering, then simplification.
package lower

import (
	"go.uber.org/zap"

	"github.com/gx-org/stencil/build/bounds"
	"github.com/gx-org/stencil/build/schedule"
	"github.com/gx-org/stencil/build/simplify"
	"github.com/gx-org/stencil/build/stage"
	"github.com/gx-org/stencil/build/trim"
	"github.com/gx-org/stencil/build/vectorize"
)

type lowerer struct {
	trace    *tracer
	registry *Registry
	noTrim   bool
}

// Option configures a lowering run.
type Option func(*lowerer)

// WithLogger traces the IR after every pass to a logger.
func WithLogger(log *zap.Logger) Option {
	return func(lw *lowerer) { lw.trace = newTracer(log) }
}

// WithRegistry appends custom passes, run after the built-in ones.
func WithRegistry(reg *Registry) Option {
	return func(lw *lowerer) { lw.registry = reg }
}

// WithoutTrim disables conditional elimination, keeping split tail
// guards in the emitted loops.
func WithoutTrim() Option {
	return func(lw *lowerer) { lw.noTrim = true }
}

// Lower compiles a pipeline under a schedule. The schedule may be nil,
// meaning every stage takes its default placement. Lowering either
// returns a module or the accumulated diagnostics, never both.
func Lower(p *stage.Pipeline, sched *schedule.Schedule, opts ...Option) (*Module, error) {
	if sched == nil {
		sched = schedule.New()
	}
	lw := &lowerer{registry: NewRegistry()}
	for _, opt := range opts {
		opt(lw)
	}
	if lw.trace == nil {
		lw.trace = newTracer(nil)
	}
	res, err := bounds.Infer(p, sched)
	if err != nil {
		return nil, err
	}
	body := newSynthesizer(res).synthesize()
	lw.trace.pass("synthesize", body)
	body = simplify.Stmt(body)
	lw.trace.pass("simplify", body)
	if !lw.noTrim {
		body = trim.Eliminate(body)
		lw.trace.pass("trim", body)
	}
	body, err = vectorize.Lower(body)
	if err != nil {
		return nil, err
	}
	lw.trace.pass("vectorize", body)
	body = simplify.Stmt(body)
	lw.trace.pass("final", body)
	fn := &Function{Name: p.Name, Args: functionArgs(res), Body: body}
	fn.Params = collectParams(fn)
	mod := &Module{Name: p.Name, Funcs: []*Function{fn}}
	for _, pass := range lw.registry.Passes() {
		if err := pass.Run(fn); err != nil {
			return nil, err
		}
		lw.trace.pass(pass.Name, fn.Body)
	}
	return mod, nil
}
