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
	"github.com/pkg/errors"
)

// Pass is a custom transformation over a lowered function. Passes run
// after the built-in pipeline, in registration order.
type Pass struct {
	Name string
	Run  func(*Function) error
}

// Registry holds custom lowering passes.
type Registry struct {
	passes []*Pass
	names  map[string]bool
}

// NewRegistry returns an empty pass registry.
func NewRegistry() *Registry {
	return &Registry{names: map[string]bool{}}
}

// Register appends a pass. Registering two passes with the same name is
// an error.
func (reg *Registry) Register(p *Pass) error {
	if p.Name == "" || p.Run == nil {
		return errors.Errorf("a pass needs a name and a body")
	}
	if reg.names[p.Name] {
		return errors.Errorf("pass %s registered twice", p.Name)
	}
	reg.names[p.Name] = true
	reg.passes = append(reg.passes, p)
	return nil
}

// Passes returns the registered passes in registration order.
func (reg *Registry) Passes() []*Pass {
	return reg.passes
}
