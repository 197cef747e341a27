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

// FloorDiv divides rounding towards negative infinity. Integer division
// in the IR has this semantic, so that x/c*c never exceeds x for a
// positive c. Division by zero returns zero; loop synthesis never emits
// a zero divisor and the interpreter asserts against it separately.
func FloorDiv(a, b int64) int64 {
	if b == 0 {
		return 0
	}
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// FloorMod is the remainder matching [FloorDiv]: the result has the sign
// of the divisor, so it is non-negative for a positive divisor.
func FloorMod(a, b int64) int64 {
	if b == 0 {
		return 0
	}
	return a - FloorDiv(a, b)*b
}
