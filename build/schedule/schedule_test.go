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

package schedule_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gx-org/stencil/build/schedule"
)

func TestFinalDims(t *testing.T) {
	tests := []struct {
		name     string
		build    func(st *schedule.StageSchedule)
		original []string
		want     []schedule.Dim
	}{
		{
			name:     "no directives",
			build:    func(st *schedule.StageSchedule) {},
			original: []string{"x", "y"},
			want:     []schedule.Dim{{Name: "x"}, {Name: "y"}},
		},
		{
			name: "split",
			build: func(st *schedule.StageSchedule) {
				st.Split("x", "xo", "xi", 4, schedule.GuardWithIf)
			},
			original: []string{"x", "y"},
			want:     []schedule.Dim{{Name: "xi"}, {Name: "xo"}, {Name: "y"}},
		},
		{
			name: "split then mark",
			build: func(st *schedule.StageSchedule) {
				st.Split("x", "xo", "xi", 8, schedule.ShiftInwards).Vectorize("xi").Parallel("xo")
			},
			original: []string{"x"},
			want: []schedule.Dim{
				{Name: "xi", Kind: schedule.DimVectorized},
				{Name: "xo", Kind: schedule.DimParallel},
			},
		},
		{
			name: "fuse",
			build: func(st *schedule.StageSchedule) {
				st.Fuse("y", "x", "xy")
			},
			original: []string{"x", "y"},
			want:     []schedule.Dim{{Name: "xy"}},
		},
		{
			name: "tile",
			build: func(st *schedule.StageSchedule) {
				st.Tile("x", "y", "xi", "yi", 8, 4, schedule.GuardWithIf)
			},
			original: []string{"x", "y"},
			want: []schedule.Dim{
				{Name: "xi"}, {Name: "yi"}, {Name: "xo"}, {Name: "yo"},
			},
		},
		{
			name: "reorder subset keeps unlisted positions",
			build: func(st *schedule.StageSchedule) {
				st.Reorder("z", "x")
			},
			original: []string{"x", "y", "z"},
			want:     []schedule.Dim{{Name: "z"}, {Name: "y"}, {Name: "x"}},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			s := schedule.New()
			st := s.Stage("f")
			test.build(st)
			got, err := st.FinalDims(test.original)
			if err != nil {
				t.Fatalf("FinalDims: %v", err)
			}
			if diff := cmp.Diff(test.want, got); diff != "" {
				t.Errorf("FinalDims mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFinalDimsErrors(t *testing.T) {
	tests := []struct {
		name  string
		build func(st *schedule.StageSchedule)
	}{
		{"split of unknown dimension", func(st *schedule.StageSchedule) {
			st.Split("z", "zo", "zi", 4, schedule.GuardWithIf)
		}},
		{"split of consumed dimension", func(st *schedule.StageSchedule) {
			st.Split("x", "xo", "xi", 4, schedule.GuardWithIf)
			st.Split("x", "xo2", "xi2", 2, schedule.GuardWithIf)
		}},
		{"non-positive factor", func(st *schedule.StageSchedule) {
			st.Split("x", "xo", "xi", 0, schedule.GuardWithIf)
		}},
		{"reorder of unknown dimension", func(st *schedule.StageSchedule) {
			st.Reorder("z")
		}},
		{"mark of unknown dimension", func(st *schedule.StageSchedule) {
			st.Vectorize("z")
		}},
		{"mark of split-away dimension", func(st *schedule.StageSchedule) {
			st.Split("x", "xo", "xi", 4, schedule.GuardWithIf).Unroll("x")
		}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			st := schedule.New().Stage("f")
			test.build(st)
			if _, err := st.FinalDims([]string{"x", "y"}); err == nil {
				t.Errorf("FinalDims succeeded, want an error")
			}
		})
	}
}

func TestMarkedDims(t *testing.T) {
	st := schedule.New().Stage("f")
	st.Vectorize("xi").Parallel("yo").Vectorize("ab")
	if diff := cmp.Diff([]string{"ab", "xi"}, st.MarkedDims(schedule.DimVectorized)); diff != "" {
		t.Errorf("MarkedDims mismatch (-want +got):\n%s", diff)
	}
}

func TestLoopLevels(t *testing.T) {
	if got := schedule.Root().String(); got != "root" {
		t.Errorf("Root() = %q, want root", got)
	}
	if got := schedule.Inline().String(); got != "inline" {
		t.Errorf("Inline() = %q, want inline", got)
	}
	if got := schedule.At("out", "y").String(); got != "out.y" {
		t.Errorf("At(out, y) = %q, want out.y", got)
	}
	var zero schedule.LoopLevel
	if zero != schedule.Inline() {
		t.Errorf("the zero loop level is not inline")
	}
}

func TestStorageFollowsCompute(t *testing.T) {
	st := schedule.New().Stage("f")
	st.ComputeAt("out", "y")
	if got := st.Storage(); got != schedule.At("out", "y") {
		t.Errorf("Storage() = %s, want the compute level", got)
	}
	st.StoreRoot()
	if got := st.Storage(); got != schedule.Root() {
		t.Errorf("Storage() = %s, want root after StoreRoot", got)
	}
}

func TestScheduleStages(t *testing.T) {
	s := schedule.New()
	s.Stage("b").ComputeRoot()
	s.Stage("a").ComputeAt("b", "x")
	if st := s.Stage("b"); st.ComputeLevel != schedule.Root() {
		t.Errorf("Stage(b) did not return the existing directive set")
	}
	var names []string
	for name := range s.Stages() {
		names = append(names, name)
	}
	// Authoring order, not name order.
	if diff := cmp.Diff([]string{"b", "a"}, names); diff != "" {
		t.Errorf("Stages order mismatch (-want +got):\n%s", diff)
	}
	if _, ok := s.Lookup("c"); ok {
		t.Errorf("Lookup(c) found a stage that was never authored")
	}
}
