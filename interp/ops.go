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
	"github.com/gx-org/stencil/build/ir"
)

// binaryLane applies one operator to one lane pair. The type is the
// element type of the operands, which for comparisons differs from the
// result.
func binaryLane(op ir.BinaryOp, t ir.Type, x, y lane) (lane, error) {
	if t.IsBool() {
		switch op {
		case ir.And:
			return lane{b: x.b && y.b}, nil
		case ir.Or:
			return lane{b: x.b || y.b}, nil
		case ir.EQ:
			return lane{b: x.b == y.b}, nil
		case ir.NE:
			return lane{b: x.b != y.b}, nil
		}
		return lane{}, errors.Errorf("operator %s is not defined on booleans", op)
	}
	if t.IsFloat() {
		switch op {
		case ir.Add:
			return lane{f: x.f + y.f}, nil
		case ir.Sub:
			return lane{f: x.f - y.f}, nil
		case ir.Mul:
			return lane{f: x.f * y.f}, nil
		case ir.Div:
			return lane{f: x.f / y.f}, nil
		case ir.Min:
			return lane{f: min(x.f, y.f)}, nil
		case ir.Max:
			return lane{f: max(x.f, y.f)}, nil
		case ir.EQ:
			return lane{b: x.f == y.f}, nil
		case ir.NE:
			return lane{b: x.f != y.f}, nil
		case ir.LT:
			return lane{b: x.f < y.f}, nil
		case ir.LE:
			return lane{b: x.f <= y.f}, nil
		case ir.GT:
			return lane{b: x.f > y.f}, nil
		case ir.GE:
			return lane{b: x.f >= y.f}, nil
		}
		return lane{}, errors.Errorf("operator %s is not defined on floats", op)
	}
	switch op {
	case ir.Add:
		return lane{i: x.i + y.i}, nil
	case ir.Sub:
		return lane{i: x.i - y.i}, nil
	case ir.Mul:
		return lane{i: x.i * y.i}, nil
	case ir.Div:
		if y.i == 0 {
			return lane{}, errors.Errorf("division by zero")
		}
		return lane{i: ir.FloorDiv(x.i, y.i)}, nil
	case ir.Mod:
		if y.i == 0 {
			return lane{}, errors.Errorf("modulo by zero")
		}
		return lane{i: ir.FloorMod(x.i, y.i)}, nil
	case ir.Min:
		return lane{i: min(x.i, y.i)}, nil
	case ir.Max:
		return lane{i: max(x.i, y.i)}, nil
	case ir.EQ:
		return lane{b: x.i == y.i}, nil
	case ir.NE:
		return lane{b: x.i != y.i}, nil
	case ir.LT:
		return lane{b: x.i < y.i}, nil
	case ir.LE:
		return lane{b: x.i <= y.i}, nil
	case ir.GT:
		return lane{b: x.i > y.i}, nil
	case ir.GE:
		return lane{b: x.i >= y.i}, nil
	}
	return lane{}, errors.Errorf("operator %s is not defined on integers", op)
}

func unaryLane(op ir.UnaryOp, t ir.Type, x lane) (lane, error) {
	switch op {
	case ir.Neg:
		if t.IsFloat() {
			return lane{f: -x.f}, nil
		}
		return lane{i: -x.i}, nil
	case ir.Not:
		return lane{b: !x.b}, nil
	}
	return lane{}, errors.Errorf("unknown unary operator %s", op)
}

func castLane(from, to ir.Type, x lane) lane {
	switch {
	case to.IsBool():
		return lane{b: x.b}
	case to.IsFloat():
		if from.IsFloat() {
			return lane{f: x.f}
		}
		return lane{f: float64(x.i)}
	default:
		if from.IsFloat() {
			return lane{i: int64(x.f)}
		}
		return lane{i: x.i}
	}
}
