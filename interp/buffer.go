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

package interp

import (
	"github.com/pkg/errors"
	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/backend/shape"
)

// Buffer is a dense one-dimensional typed buffer. Lowered code addresses
// buffers by row-major linear index with the innermost dimension at
// stride one.
type Buffer struct {
	dt     dtype.DataType
	ints   []int64
	floats []float64
	bools  []bool
}

// NewBuffer allocates a zeroed buffer of one element class.
func NewBuffer(dt dtype.DataType, size int) *Buffer {
	b := &Buffer{dt: dt}
	switch {
	case dt == dtype.Bool:
		b.bools = make([]bool, size)
	case dt == dtype.Float32 || dt == dtype.Float64:
		b.floats = make([]float64, size)
	default:
		b.ints = make([]int64, size)
	}
	return b
}

// NewBufferShape allocates a buffer holding one element per coordinate
// of a shape.
func NewBufferShape(sh *shape.Shape) *Buffer {
	return NewBuffer(sh.DType, sh.Size())
}

// DType returns the element type.
func (b *Buffer) DType() dtype.DataType { return b.dt }

// Len returns the number of elements.
func (b *Buffer) Len() int {
	switch {
	case b.bools != nil:
		return len(b.bools)
	case b.floats != nil:
		return len(b.floats)
	}
	return len(b.ints)
}

// Ints returns the backing slice of an integer buffer.
func (b *Buffer) Ints() []int64 { return b.ints }

// Floats returns the backing slice of a floating point buffer.
func (b *Buffer) Floats() []float64 { return b.floats }

// Bools returns the backing slice of a boolean buffer.
func (b *Buffer) Bools() []bool { return b.bools }

func (b *Buffer) check(i int) error {
	if i < 0 || i >= b.Len() {
		return errors.Errorf("index %d out of range [0, %d)", i, b.Len())
	}
	return nil
}

func (b *Buffer) load(i int) (lane, error) {
	if err := b.check(i); err != nil {
		return lane{}, err
	}
	switch {
	case b.bools != nil:
		return lane{b: b.bools[i]}, nil
	case b.floats != nil:
		return lane{f: b.floats[i]}, nil
	}
	return lane{i: b.ints[i]}, nil
}

func (b *Buffer) store(i int, v lane) error {
	if err := b.check(i); err != nil {
		return err
	}
	switch {
	case b.bools != nil:
		b.bools[i] = v.b
	case b.floats != nil:
		b.floats[i] = v.f
	default:
		b.ints[i] = v.i
	}
	return nil
}

// Flatten maps a coordinate tuple, innermost first, onto the row-major
// linear index of a buffer with the given per-dimension bounds.
func Flatten(mins, extents, coords []int64) int {
	idx, stride := int64(0), int64(1)
	for i, c := range coords {
		idx += (c - mins[i]) * stride
		stride *= extents[i]
	}
	return int(idx)
}
