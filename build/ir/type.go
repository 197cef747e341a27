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

package ir

import (
	"fmt"

	"github.com/gx-org/backend/dtype"
)

// Type is the type of an expression: a scalar element type and a lane
// count. Lanes is 1 for scalars and the vector width for vector values.
type Type struct {
	DType dtype.DataType
	Lanes int
}

// TypeFromDType returns the scalar type of an element type.
func TypeFromDType(dt dtype.DataType) Type {
	return Type{DType: dt, Lanes: 1}
}

// BoolType returns the scalar boolean type.
func BoolType() Type { return TypeFromDType(dtype.Bool) }

// Int32Type returns the scalar 32-bit signed integer type.
func Int32Type() Type { return TypeFromDType(dtype.Int32) }

// Int64Type returns the scalar 64-bit signed integer type.
func Int64Type() Type { return TypeFromDType(dtype.Int64) }

// Uint32Type returns the scalar 32-bit unsigned integer type.
func Uint32Type() Type { return TypeFromDType(dtype.Uint32) }

// Uint64Type returns the scalar 64-bit unsigned integer type.
func Uint64Type() Type { return TypeFromDType(dtype.Uint64) }

// Float32Type returns the scalar 32-bit floating point type.
func Float32Type() Type { return TypeFromDType(dtype.Float32) }

// Float64Type returns the scalar 64-bit floating point type.
func Float64Type() Type { return TypeFromDType(dtype.Float64) }

// IndexType returns the type of loop variables and buffer addresses.
func IndexType() Type { return Int64Type() }

// IsVector reports if the type has more than one lane.
func (t Type) IsVector() bool { return t.Lanes > 1 }

// Element returns the scalar type of one lane.
func (t Type) Element() Type { return Type{DType: t.DType, Lanes: 1} }

// VectorOf returns the type widened to the given lane count.
func (t Type) VectorOf(lanes int) Type {
	return Type{DType: t.DType, Lanes: lanes}
}

// IsBool reports if the element type is boolean.
func (t Type) IsBool() bool { return t.DType == dtype.Bool }

// IsFloat reports if the element type is a floating point type.
func (t Type) IsFloat() bool {
	switch t.DType {
	case dtype.Bfloat16, dtype.Float32, dtype.Float64:
		return true
	}
	return false
}

// IsInteger reports if the element type is an integer type.
func (t Type) IsInteger() bool {
	switch t.DType {
	case dtype.Int32, dtype.Int64, dtype.Uint32, dtype.Uint64:
		return true
	}
	return false
}

// IsUnsigned reports if the element type is an unsigned integer type.
func (t Type) IsUnsigned() bool {
	return t.DType == dtype.Uint32 || t.DType == dtype.Uint64
}

// String representation of the type.
func (t Type) String() string {
	if t.Lanes > 1 {
		return fmt.Sprintf("%sx%d", t.DType.String(), t.Lanes)
	}
	return t.DType.String()
}
