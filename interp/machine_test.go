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

package interp_test

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/stencil/build/ir"
	ih "github.com/gx-org/stencil/build/ir/irhelper"
	"github.com/gx-org/stencil/build/lower"
	"github.com/gx-org/stencil/interp"
)

func intArg(name string, n int64) *lower.Arg {
	return &lower.Arg{
		Name:    name,
		DType:   dtype.Int64,
		Rank:    1,
		Mins:    []ir.Expr{ih.Int(0)},
		Extents: []ir.Expr{ih.Int(n)},
	}
}

func TestRunStoreLoop(t *testing.T) {
	x := ih.X("x")
	f := &lower.Function{
		Name: "main",
		Args: []*lower.Arg{intArg("out", 8)},
		Body: ih.For("x", 0, 8, ih.Store("out", x, ir.NewMul(x, x))),
	}
	env := interp.NewEnv()
	if err := interp.Run(f, env); err != nil {
		t.Fatalf("Run: %v", err)
	}
	out, ok := env.Buffer("out")
	if !ok {
		t.Fatalf("the run did not publish the output buffer")
	}
	want := []int64{0, 1, 4, 9, 16, 25, 36, 49}
	if diff := cmp.Diff(want, out.Ints()); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestRunUnaryExpr(t *testing.T) {
	x := ih.X("x")
	f := &lower.Function{
		Name: "main",
		Args: []*lower.Arg{intArg("out", 4)},
		Body: ih.For("x", 0, 4, ih.Store("out", x, ir.NewNeg(ir.NewAdd(x, ih.Int(1))))),
	}
	env := interp.NewEnv()
	if err := interp.Run(f, env); err != nil {
		t.Fatalf("Run: %v", err)
	}
	out, _ := env.Buffer("out")
	if diff := cmp.Diff([]int64{-1, -2, -3, -4}, out.Ints()); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestRunParallelLoop(t *testing.T) {
	x := ih.X("x")
	f := &lower.Function{
		Name: "main",
		Args: []*lower.Arg{intArg("out", 1000)},
		Body: &ir.ParForStmt{
			Name:   "x",
			Min:    ih.Int(0),
			Extent: ih.Int(1000),
			Body:   ih.Store("out", x, ir.NewAdd(x, ih.Int(1))),
		},
	}
	env := interp.NewEnv()
	if err := interp.Run(f, env); err != nil {
		t.Fatalf("Run: %v", err)
	}
	out, _ := env.Buffer("out")
	for i, v := range out.Ints() {
		if v != int64(i)+1 {
			t.Fatalf("out[%d] = %d, want %d", i, v, i+1)
		}
	}
}

// A temporary buffer exists only within its allocation statement.
func TestRunAllocateScope(t *testing.T) {
	x := ih.X("x")
	f := &lower.Function{
		Name: "main",
		Args: []*lower.Arg{intArg("out", 4)},
		Body: &ir.AllocateStmt{
			Buffer:  "tmp",
			Typ:     ir.IndexType(),
			Extents: []ir.Expr{ih.Int(4)},
			Body: &ir.BlockStmt{Stmts: []ir.Stmt{
				ih.For("x", 0, 4, ih.Store("tmp", x, ir.NewMul(x, ih.Int(3)))),
				ih.For("x", 0, 4, ih.Store("out", x, ih.Load("tmp", x))),
			}},
		},
	}
	env := interp.NewEnv()
	if err := interp.Run(f, env); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, ok := env.Buffer("tmp"); ok {
		t.Errorf("the temporary buffer leaked into the environment")
	}
	out, _ := env.Buffer("out")
	if diff := cmp.Diff([]int64{0, 3, 6, 9}, out.Ints()); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestRunUnboundParam(t *testing.T) {
	f := &lower.Function{
		Name:   "main",
		Params: []*ir.Var{ih.X("n")},
		Args:   []*lower.Arg{intArg("out", 4)},
	}
	err := interp.Run(f, interp.NewEnv())
	if err == nil || !strings.Contains(err.Error(), "is not bound") {
		t.Errorf("Run = %v, want an unbound parameter error", err)
	}
}

func TestRunUnboundInput(t *testing.T) {
	in := intArg("in", 4)
	in.Input = true
	f := &lower.Function{Name: "main", Args: []*lower.Arg{in, intArg("out", 4)}}
	err := interp.Run(f, interp.NewEnv())
	if err == nil || !strings.Contains(err.Error(), "input buffer in is not bound") {
		t.Errorf("Run = %v, want an unbound input error", err)
	}
}

func TestRunBufferSizeMismatch(t *testing.T) {
	f := &lower.Function{Name: "main", Args: []*lower.Arg{intArg("out", 4)}}
	env := interp.NewEnv().BindBuffer("out", interp.NewBuffer(dtype.Int64, 3))
	err := interp.Run(f, env)
	if err == nil || !strings.Contains(err.Error(), "3 elements") {
		t.Errorf("Run = %v, want a size mismatch error", err)
	}
}

func TestRunAssertFailure(t *testing.T) {
	f := &lower.Function{
		Name: "main",
		Body: &ir.AssertStmt{Cond: &ir.BoolImm{Value: false}, Message: "extent is negative"},
	}
	err := interp.Run(f, interp.NewEnv())
	if err == nil || !strings.Contains(err.Error(), "extent is negative") {
		t.Errorf("Run = %v, want the assertion message", err)
	}
}

func TestRunOutOfRangeStore(t *testing.T) {
	f := &lower.Function{
		Name: "main",
		Args: []*lower.Arg{intArg("out", 4)},
		Body: ih.Store("out", ih.Int(7), ih.Int(1)),
	}
	err := interp.Run(f, interp.NewEnv())
	if err == nil || !strings.Contains(err.Error(), "out of range") {
		t.Errorf("Run = %v, want an out of range error", err)
	}
}

func TestFlatten(t *testing.T) {
	tests := []struct {
		name                 string
		mins, extents, coord []int64
		want                 int
	}{
		{"origin", []int64{0, 0}, []int64{4, 5}, []int64{0, 0}, 0},
		{"innermost stride one", []int64{0, 0}, []int64{4, 5}, []int64{3, 0}, 3},
		{"row stride", []int64{0, 0}, []int64{4, 5}, []int64{0, 2}, 8},
		{"offset mins", []int64{2, 3}, []int64{4, 5}, []int64{3, 4}, 5},
		{"rank three", []int64{0, 0, 0}, []int64{2, 3, 4}, []int64{1, 2, 3}, 23},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := interp.Flatten(test.mins, test.extents, test.coord); got != test.want {
				t.Errorf("Flatten(%v, %v, %v) = %d, want %d", test.mins, test.extents, test.coord, got, test.want)
			}
		})
	}
}
