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
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

// The TOML form of a schedule keeps directives per stage:
//
//	[stages.blur]
//	compute_at = "out.y"
//	store_at = "root"
//	order = ["xi", "yi", "xo", "yo"]
//
//	[[stages.blur.transform]]
//	op = "split"
//	dim = "x"
//	outer = "xo"
//	inner = "xi"
//	factor = 8
//	tail = "shift"
//
//	[stages.blur.marks]
//	xi = "vectorize"
type tomlSchedule struct {
	Stages map[string]*tomlStage `toml:"stages"`
}

type tomlStage struct {
	ComputeAt  string            `toml:"compute_at,omitempty"`
	StoreAt    string            `toml:"store_at,omitempty"`
	Order      []string          `toml:"order,omitempty"`
	NoFold     bool              `toml:"no_fold,omitempty"`
	Transforms []*tomlTransform  `toml:"transform,omitempty"`
	Marks      map[string]string `toml:"marks,omitempty"`
}

type tomlTransform struct {
	Op     string `toml:"op"`
	Dim    string `toml:"dim"`
	Outer  string `toml:"outer"`
	Inner  string `toml:"inner"`
	Factor int64  `toml:"factor,omitempty"`
	Tail   string `toml:"tail,omitempty"`
}

// ParseTOML decodes a schedule authored as TOML.
func ParseTOML(data []byte) (*Schedule, error) {
	var doc tomlSchedule
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "decoding schedule")
	}
	s := New()
	names := make([]string, 0, len(doc.Stages))
	for name := range doc.Stages {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := doc.Stages[name].apply(s.Stage(name)); err != nil {
			return nil, errors.Wrapf(err, "stage %s", name)
		}
	}
	return s, nil
}

func (ts *tomlStage) apply(st *StageSchedule) error {
	for _, tr := range ts.Transforms {
		switch tr.Op {
		case "split":
			tail, err := parseTail(tr.Tail)
			if err != nil {
				return err
			}
			if tr.Factor < 1 {
				return errors.Errorf("split of %s needs a positive factor, got %d", tr.Dim, tr.Factor)
			}
			st.Split(tr.Dim, tr.Outer, tr.Inner, tr.Factor, tail)
		case "fuse":
			st.Fuse(tr.Outer, tr.Inner, tr.Dim)
		default:
			return errors.Errorf("unknown transform %q", tr.Op)
		}
	}
	if len(ts.Order) > 0 {
		st.Reorder(ts.Order...)
	}
	dims := make([]string, 0, len(ts.Marks))
	for dim := range ts.Marks {
		dims = append(dims, dim)
	}
	sort.Strings(dims)
	for _, dim := range dims {
		kind, err := parseMark(ts.Marks[dim])
		if err != nil {
			return err
		}
		st.mark(dim, kind)
	}
	if ts.ComputeAt != "" {
		level, err := parseLevel(ts.ComputeAt)
		if err != nil {
			return err
		}
		st.ComputeLevel = level
	}
	if ts.StoreAt != "" {
		level, err := parseLevel(ts.StoreAt)
		if err != nil {
			return err
		}
		st.StoreLevel = level
		st.storeSet = true
	}
	st.NoFold = ts.NoFold
	return nil
}

// EncodeTOML writes a schedule as TOML, the inverse of [ParseTOML].
func EncodeTOML(s *Schedule) ([]byte, error) {
	doc := tomlSchedule{Stages: map[string]*tomlStage{}}
	for name, st := range s.Stages() {
		ts := &tomlStage{Order: st.Order, NoFold: st.NoFold}
		for _, sp := range st.Splits {
			tr := &tomlTransform{Dim: sp.Old, Outer: sp.Outer, Inner: sp.Inner}
			if sp.Fuse {
				tr.Op = "fuse"
			} else {
				tr.Op = "split"
				tr.Factor = sp.Factor
				tr.Tail = sp.Tail.String()
			}
			ts.Transforms = append(ts.Transforms, tr)
		}
		if len(st.Marks) > 0 {
			ts.Marks = map[string]string{}
			for dim, kind := range st.Marks {
				ts.Marks[dim] = kind.String()
			}
		}
		if st.ComputeLevel.Kind != LevelInline {
			ts.ComputeAt = st.ComputeLevel.String()
		}
		if st.storeSet {
			ts.StoreAt = st.StoreLevel.String()
		}
		doc.Stages[name] = ts
	}
	out, err := toml.Marshal(doc)
	if err != nil {
		return nil, errors.Wrap(err, "encoding schedule")
	}
	return out, nil
}

func parseTail(name string) (TailPolicy, error) {
	switch name {
	case "", GuardWithIf.String():
		return GuardWithIf, nil
	case ShiftInwards.String():
		return ShiftInwards, nil
	case RoundUp.String():
		return RoundUp, nil
	}
	return 0, errors.Errorf("unknown tail policy %q", name)
}

func parseMark(name string) (DimKind, error) {
	switch name {
	case DimSerial.String():
		return DimSerial, nil
	case DimParallel.String():
		return DimParallel, nil
	case DimVectorized.String():
		return DimVectorized, nil
	case DimUnrolled.String():
		return DimUnrolled, nil
	}
	return 0, errors.Errorf("unknown dimension mark %q", name)
}

func parseLevel(name string) (LoopLevel, error) {
	switch name {
	case "root":
		return Root(), nil
	case "inline":
		return Inline(), nil
	}
	i := strings.LastIndex(name, ".")
	if i <= 0 || i == len(name)-1 {
		return LoopLevel{}, errors.Errorf("a loop level is %q, %q, or stage.dim, got %q", "root", "inline", name)
	}
	return At(name[:i], name[i+1:]), nil
}
