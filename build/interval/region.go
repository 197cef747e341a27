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

package interval

import (
	"strings"

	"github.com/pkg/errors"
)

// Region is the footprint of a stage: one interval per coordinate
// dimension, in the stage's dimension order.
type Region []Interval

// UnionRegion returns the per-dimension union of two regions of the same
// rank.
func UnionRegion(a, b Region) Region {
	if len(a) != len(b) {
		panic(errors.Errorf("union of regions of rank %d and %d", len(a), len(b)))
	}
	out := make(Region, len(a))
	for i := range a {
		out[i] = Union(a[i], b[i])
	}
	return out
}

// IntersectRegion returns the per-dimension intersection of two regions
// of the same rank.
func IntersectRegion(a, b Region) Region {
	if len(a) != len(b) {
		panic(errors.Errorf("intersection of regions of rank %d and %d", len(a), len(b)))
	}
	out := make(Region, len(a))
	for i := range a {
		out[i] = Intersect(a[i], b[i])
	}
	return out
}

// IsBounded reports if every dimension is bounded on both sides.
func (r Region) IsBounded() bool {
	for _, i := range r {
		if !i.IsBounded() {
			return false
		}
	}
	return true
}

// String representation of the region.
func (r Region) String() string {
	parts := make([]string, len(r))
	for i, iv := range r {
		parts[i] = iv.String()
	}
	return strings.Join(parts, " x ")
}
