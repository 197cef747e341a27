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
	"github.com/xyproto/env/v2"
	"go.uber.org/zap"

	"github.com/gx-org/stencil/build/ir"
)

// debugEnv enables pass tracing to stderr without code changes.
const debugEnv = "STENCIL_DEBUG_LOWER"

type tracer struct {
	log *zap.Logger
}

func newTracer(log *zap.Logger) *tracer {
	if log == nil {
		if env.Bool(debugEnv) {
			log, _ = zap.NewDevelopment()
		}
		if log == nil {
			log = zap.NewNop()
		}
	}
	return &tracer{log: log}
}

// pass logs the IR after one lowering pass.
func (t *tracer) pass(name string, body ir.Stmt) {
	if ce := t.log.Check(zap.DebugLevel, "lowering pass"); ce != nil {
		s := "(empty)"
		if body != nil {
			s = ir.String(body)
		}
		ce.Write(zap.String("pass", name), zap.String("ir", s))
	}
}
