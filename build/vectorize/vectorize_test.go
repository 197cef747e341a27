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

package vectorize_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/stencil/build/diag"
	"github.com/gx-org/stencil/build/ir"
	ih "github.com/gx-org/stencil/build/ir/irhelper"
	"github.com/gx-org/stencil/build/lower"
	"github.com/gx-org/stencil/build/vectorize"
	"github.com/gx-org/stencil/interp"
)

func markedLoop(kind ir.ForKind, extent int64, body ir.Stmt) *ir.ForStmt {
	return &ir.ForStmt{Name: "f.x", Min: ih.Int(0), Extent: ih.Int(extent), Kind: kind, Body: body}
}

// runOut executes a statement writing out[0, n) and returns the buffer.
func runOut(t *testing.T, body ir.Stmt, n int64) []int64 {
	t.Helper()
	f := &lower.Function{
		Name: "main",
		Args: []*lower.Arg{{
			Name:    "out",
			DType:   dtype.Int64,
			Rank:    1,
			Mins:    []ir.Expr{ih.Int(0)},
			Extents: []ir.Expr{ih.Int(n)},
		}},
		Body: body,
	}
	env := interp.NewEnv()
	if err := interp.Run(f, env); err != nil {
		t.Fatalf("Run: %v", err)
	}
	out, _ := env.Buffer("out")
	return out.Ints()
}

func TestVectorizeLoop(t *testing.T) {
	x := ih.X("f.x")
	loop := markedLoop(ir.Vectorized, 4, ih.Store("out", x, ir.NewMul(x, ih.Int(2))))
	got, err := vectorize.Lower(loop)
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}
	if n := ir.Count(got, func(n ir.Node) bool { _, ok := n.(*ir.ForStmt); return ok }); n != 0 {
		t.Errorf("%d loops remain after vectorizing:\n%s", n, ir.String(got))
	}
	store, ok := got.(*ir.StoreStmt)
	if !ok {
		t.Fatalf("vectorized body is %T, want a single store", got)
	}
	ramp, ok := store.Index.(*ir.Ramp)
	if !ok {
		t.Fatalf("store index is %T, want a ramp", store.Index)
	}
	if ramp.Lanes != 4 {
		t.Errorf("ramp over %d lanes, want 4", ramp.Lanes)
	}
	want := []int64{0, 2, 4, 6}
	if diff := cmp.Diff(want, runOut(t, got, 4)); diff != "" {
		t.Errorf("vectorized values mismatch (-want +got):\n%s", diff)
	}
}

func TestParallelLoop(t *testing.T) {
	x := ih.X("f.x")
	loop := markedLoop(ir.Parallel, 64, ih.Store("out", x, ir.NewMul(x, ih.Int(2))))
	got, err := vectorize.Lower(loop)
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}
	if n := ir.Count(got, func(n ir.Node) bool { _, ok := n.(*ir.ParForStmt); return ok }); n != 1 {
		t.Fatalf("%d fork-join loops, want 1:\n%s", n, ir.String(got))
	}
	want := make([]int64, 64)
	for i := range want {
		want[i] = int64(i) * 2
	}
	if diff := cmp.Diff(want, runOut(t, got, 64)); diff != "" {
		t.Errorf("parallel values mismatch (-want +got):\n%s", diff)
	}
}

func TestUnrollLoop(t *testing.T) {
	x := ih.X("f.x")
	loop := markedLoop(ir.Unrolled, 3, ih.Store("out", x, x))
	got, err := vectorize.Lower(loop)
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}
	if n := ir.Count(got, func(n ir.Node) bool { _, ok := n.(*ir.ForStmt); return ok }); n != 0 {
		t.Errorf("%d loops remain after unrolling:\n%s", n, ir.String(got))
	}
	if n := ir.Count(got, func(n ir.Node) bool { _, ok := n.(*ir.StoreStmt); return ok }); n != 3 {
		t.Errorf("%d stores after unrolling, want 3:\n%s", n, ir.String(got))
	}
	if diff := cmp.Diff([]int64{0, 1, 2}, runOut(t, got, 3)); diff != "" {
		t.Errorf("unrolled values mismatch (-want +got):\n%s", diff)
	}
}

func TestNonConstantExtent(t *testing.T) {
	x := ih.X("f.x")
	loop := &ir.ForStmt{Name: "f.x", Min: ih.Int(0), Extent: ih.X("n"), Kind: ir.Vectorized,
		Body: ih.Store("out", x, x)}
	_, err := vectorize.Lower(loop)
	if err == nil {
		t.Fatalf("Lower accepted a vectorized loop with a symbolic extent")
	}
	de, ok := diag.Find(err, diag.InvalidScheduleReference)
	if !ok {
		t.Fatalf("no InvalidScheduleReference in %v", err)
	}
	if de.Stage != "f" {
		t.Errorf("diagnostic names stage %s, want f", de.Stage)
	}
}

func TestScalarStoreAcrossLanes(t *testing.T) {
	x := ih.X("f.x")
	loop := markedLoop(ir.Vectorized, 4, ih.Store("out", ih.Int(0), x))
	_, err := vectorize.Lower(loop)
	if err == nil {
		t.Fatalf("Lower accepted lanes colliding on one element")
	}
	if _, ok := diag.Find(err, diag.UnvectorizableDependency); !ok {
		t.Errorf("no UnvectorizableDependency in %v", err)
	}
}

func TestCrossLaneReadAfterWrite(t *testing.T) {
	x := ih.X("f.x")
	loop := markedLoop(ir.Vectorized, 4,
		ih.Store("out", x, ir.NewAdd(ih.Load("out", ir.NewAdd(x, ih.Int(1))), ih.Int(1))))
	_, err := vectorize.Lower(loop)
	if err == nil {
		t.Fatalf("Lower accepted a cross-lane read of a written buffer")
	}
	if _, ok := diag.Find(err, diag.UnvectorizableDependency); !ok {
		t.Errorf("no UnvectorizableDependency in %v", err)
	}
}

// Let bindings are inlined before widening so a bound value may take a
// different lane form at each use.
func TestVectorizeThroughLet(t *testing.T) {
	x := ih.X("f.x")
	loop := markedLoop(ir.Vectorized, 4, &ir.LetStmt{
		Name:  "t",
		Value: ir.NewMul(x, ih.Int(3)),
		Body:  ih.Store("out", x, ih.X("t")),
	})
	got, err := vectorize.Lower(loop)
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}
	if diff := cmp.Diff([]int64{0, 3, 6, 9}, runOut(t, got, 4)); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}
}
