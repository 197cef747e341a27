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

const blurSchedule = `
[stages.blur]
compute_at = "out.y"
store_at = "root"
order = ["xi", "xo"]
no_fold = true

[[stages.blur.transform]]
op = "split"
dim = "x"
outer = "xo"
inner = "xi"
factor = 8
tail = "shift"

[stages.blur.marks]
xi = "vectorize"

[stages.out]
compute_at = "root"

[[stages.out.transform]]
op = "fuse"
dim = "xy"
outer = "y"
inner = "x"
`

func checkBlurSchedule(t *testing.T, s *schedule.Schedule) {
	t.Helper()
	blur, ok := s.Lookup("blur")
	if !ok {
		t.Fatalf("stage blur is missing")
	}
	if blur.ComputeLevel != schedule.At("out", "y") {
		t.Errorf("blur compute level = %s, want out.y", blur.ComputeLevel)
	}
	if blur.Storage() != schedule.Root() {
		t.Errorf("blur storage level = %s, want root", blur.Storage())
	}
	if !blur.NoFold {
		t.Errorf("blur NoFold = false, want true")
	}
	wantSplit := &schedule.Split{Old: "x", Outer: "xo", Inner: "xi", Factor: 8, Tail: schedule.ShiftInwards}
	if len(blur.Splits) != 1 {
		t.Fatalf("blur has %d transforms, want 1", len(blur.Splits))
	}
	if diff := cmp.Diff(wantSplit, blur.Splits[0]); diff != "" {
		t.Errorf("blur split mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"xi", "xo"}, blur.Order); diff != "" {
		t.Errorf("blur order mismatch (-want +got):\n%s", diff)
	}
	if blur.Marks["xi"] != schedule.DimVectorized {
		t.Errorf("blur mark of xi = %s, want vectorize", blur.Marks["xi"])
	}
	out, ok := s.Lookup("out")
	if !ok {
		t.Fatalf("stage out is missing")
	}
	if out.ComputeLevel != schedule.Root() {
		t.Errorf("out compute level = %s, want root", out.ComputeLevel)
	}
	if len(out.Splits) != 1 || !out.Splits[0].Fuse {
		t.Fatalf("out has no fuse transform")
	}
	if f := out.Splits[0]; f.Old != "xy" || f.Outer != "y" || f.Inner != "x" {
		t.Errorf("out fuse = %+v, want xy from y and x", f)
	}
}

func TestParseTOML(t *testing.T) {
	s, err := schedule.ParseTOML([]byte(blurSchedule))
	if err != nil {
		t.Fatalf("ParseTOML: %v", err)
	}
	checkBlurSchedule(t, s)
}

func TestTOMLRoundTrip(t *testing.T) {
	s, err := schedule.ParseTOML([]byte(blurSchedule))
	if err != nil {
		t.Fatalf("ParseTOML: %v", err)
	}
	data, err := schedule.EncodeTOML(s)
	if err != nil {
		t.Fatalf("EncodeTOML: %v", err)
	}
	again, err := schedule.ParseTOML(data)
	if err != nil {
		t.Fatalf("ParseTOML of the encoded schedule: %v", err)
	}
	checkBlurSchedule(t, again)
}

func TestEncodeTOMLFluent(t *testing.T) {
	s := schedule.New()
	s.Stage("f").Split("x", "xo", "xi", 4, schedule.RoundUp).Unroll("xi").ComputeRoot()
	data, err := schedule.EncodeTOML(s)
	if err != nil {
		t.Fatalf("EncodeTOML: %v", err)
	}
	got, err := schedule.ParseTOML(data)
	if err != nil {
		t.Fatalf("ParseTOML: %v", err)
	}
	f, ok := got.Lookup("f")
	if !ok {
		t.Fatalf("stage f is missing after the round trip")
	}
	if f.ComputeLevel != schedule.Root() {
		t.Errorf("compute level = %s, want root", f.ComputeLevel)
	}
	if len(f.Splits) != 1 || f.Splits[0].Tail != schedule.RoundUp {
		t.Errorf("splits = %+v, want one round-up split", f.Splits)
	}
	if f.Marks["xi"] != schedule.DimUnrolled {
		t.Errorf("mark of xi = %s, want unroll", f.Marks["xi"])
	}
}

func TestParseTOMLErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown transform", `
[[stages.f.transform]]
op = "twist"
dim = "x"
`},
		{"unknown tail", `
[[stages.f.transform]]
op = "split"
dim = "x"
outer = "xo"
inner = "xi"
factor = 4
tail = "wrap"
`},
		{"missing factor", `
[[stages.f.transform]]
op = "split"
dim = "x"
outer = "xo"
inner = "xi"
`},
		{"unknown mark", `
[stages.f.marks]
x = "sideways"
`},
		{"bad level", `
[stages.f]
compute_at = "nowhere"
`},
		{"not toml", `stages = [`},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := schedule.ParseTOML([]byte(test.doc)); err == nil {
				t.Errorf("ParseTOML succeeded, want an error")
			}
		})
	}
}
