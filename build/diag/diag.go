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

// Package diag accumulates structured lowering diagnostics.
//
// A lowering run either produces a module or a non-empty set of errors,
// never both. Each error identifies the failing stage and, when it
// applies, the offending dimension.
package diag

import (
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

// Kind classifies a lowering error.
type Kind int

// Lowering error kinds.
const (
	// UnboundedRegion: a stage's required footprint has no finite bound
	// but the stage must allocate finite storage.
	UnboundedRegion Kind = iota + 1
	// BoundsViolation: an inferred region exceeds a user-declared bound.
	BoundsViolation
	// InvalidScheduleReference: a directive names a dimension or loop
	// level that does not exist after prior splits and fusions.
	InvalidScheduleReference
	// CyclicComputeLocation: a compute location creates a cycle with the
	// realization order required by its consumers.
	CyclicComputeLocation
	// UnvectorizableDependency: a vectorized loop body carries a
	// cross-lane data dependency.
	UnvectorizableDependency
)

var kindNames = map[Kind]string{
	UnboundedRegion:          "UnboundedRegion",
	BoundsViolation:          "BoundsViolation",
	InvalidScheduleReference: "InvalidScheduleReference",
	CyclicComputeLocation:    "CyclicComputeLocation",
	UnvectorizableDependency: "UnvectorizableDependency",
}

// String representation of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is one structured lowering diagnostic.
type Error struct {
	Kind    Kind
	Stage   string
	Dim     string
	Message string
}

// Errorf builds a diagnostic with a formatted message.
func Errorf(kind Kind, stage, dim, format string, args ...any) *Error {
	return &Error{Kind: kind, Stage: stage, Dim: dim, Message: fmt.Sprintf(format, args...)}
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	b.WriteString(": stage ")
	b.WriteString(e.Stage)
	if e.Dim != "" {
		b.WriteString(", dimension ")
		b.WriteString(e.Dim)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	return b.String()
}

// Errors collects diagnostics across passes.
type Errors struct {
	errs []*Error
}

// Append adds a diagnostic to the set.
func (errs *Errors) Append(err *Error) {
	errs.errs = append(errs.errs, err)
}

// Appendf adds a diagnostic built from a formatted message.
func (errs *Errors) Appendf(kind Kind, stage, dim, format string, args ...any) {
	errs.Append(Errorf(kind, stage, dim, format, args...))
}

// Empty returns true if no error has been reported.
func (errs *Errors) Empty() bool {
	return errs == nil || len(errs.errs) == 0
}

// All returns the collected diagnostics in report order.
func (errs *Errors) All() []*Error {
	if errs == nil {
		return nil
	}
	return errs.errs
}

// ToError returns the set as a single error, or nil if the set is empty.
func (errs *Errors) ToError() error {
	if errs.Empty() {
		return nil
	}
	var err error
	for _, e := range errs.errs {
		err = multierr.Append(err, e)
	}
	return err
}

// Find returns the first diagnostic of a kind in an error returned by
// [Errors.ToError].
func Find(err error, kind Kind) (*Error, bool) {
	for _, e := range multierr.Errors(err) {
		if de, ok := e.(*Error); ok && de.Kind == kind {
			return de, true
		}
	}
	return nil, false
}
