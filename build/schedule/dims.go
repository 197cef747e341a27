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

package schedule

import (
	"slices"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
)

// FinalDims applies the stage's splits, fuses, and reorder to its
// original dimension list (innermost first) and returns the final loop
// dimensions with their marks. An error names the first directive
// referencing a dimension that does not exist at its application point.
func (st *StageSchedule) FinalDims(original []string) ([]Dim, error) {
	dims := slices.Clone(original)
	if st == nil {
		return plainDims(dims, nil), nil
	}
	for _, sp := range st.Splits {
		var err error
		dims, err = sp.apply(dims)
		if err != nil {
			return nil, err
		}
	}
	if len(st.Order) > 0 {
		var err error
		dims, err = reorder(dims, st.Order)
		if err != nil {
			return nil, err
		}
	}
	for name := range st.Marks {
		if !slices.Contains(dims, name) {
			return nil, unknownDim(name, dims)
		}
	}
	return plainDims(dims, st.Marks), nil
}

func plainDims(names []string, marks map[string]DimKind) []Dim {
	dims := make([]Dim, len(names))
	for i, name := range names {
		dims[i] = Dim{Name: name, Kind: marks[name]}
	}
	return dims
}

func (sp *Split) apply(dims []string) ([]string, error) {
	if sp.Fuse {
		outer := slices.Index(dims, sp.Outer)
		if outer < 0 {
			return nil, unknownDim(sp.Outer, dims)
		}
		inner := slices.Index(dims, sp.Inner)
		if inner < 0 {
			return nil, unknownDim(sp.Inner, dims)
		}
		// The fused dimension sits where the inner one was.
		dims = slices.Delete(dims, outer, outer+1)
		inner = slices.Index(dims, sp.Inner)
		dims[inner] = sp.Old
		return dims, nil
	}
	if sp.Factor <= 0 {
		return nil, errors.Errorf("split of %s has non-positive factor %d", sp.Old, sp.Factor)
	}
	at := slices.Index(dims, sp.Old)
	if at < 0 {
		return nil, unknownDim(sp.Old, dims)
	}
	dims[at] = sp.Inner
	return slices.Insert(dims, at+1, sp.Outer), nil
}

func reorder(dims []string, order []string) ([]string, error) {
	for _, name := range order {
		if !slices.Contains(dims, name) {
			return nil, unknownDim(name, dims)
		}
	}
	// Listed dimensions take the listed order; the rest keep their
	// positions.
	listed := make(map[string]bool, len(order))
	for _, name := range order {
		listed[name] = true
	}
	next := 0
	out := slices.Clone(dims)
	for i, name := range dims {
		if !listed[name] {
			continue
		}
		out[i] = order[next]
		next++
	}
	return out, nil
}

func unknownDim(name string, dims []string) error {
	return errors.Errorf("dimension %s does not exist (have %s)", name, strings.Join(dims, ", "))
}

// MarkedDims returns the names carrying a given mark, sorted for stable
// diagnostics.
func (st *StageSchedule) MarkedDims(kind DimKind) []string {
	var names []string
	for _, name := range maps.Keys(st.Marks) {
		if st.Marks[name] == kind {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
