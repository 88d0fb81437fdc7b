// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package ree

import (
	"testing"

	"github.com/doki23/vortex/array"
	"github.com/doki23/vortex/dtype"
)

func u64Prim(t *testing.T, vs ...uint64) *array.PrimitiveArray {
	t.Helper()
	var buf []byte
	for _, v := range vs {
		buf = array.AppendRawU64(buf, dtype.U64, v)
	}
	return array.NewPrimitiveArray(dtype.U64, buf, len(vs), array.NonNull())
}

func i64Prim(t *testing.T, vs ...int64) *array.PrimitiveArray {
	t.Helper()
	var buf []byte
	for _, v := range vs {
		buf = array.AppendRawU64(buf, dtype.I64, uint64(v))
	}
	return array.NewPrimitiveArray(dtype.I64, buf, len(vs), array.NonNull())
}

// reeOf10 encodes [1,1,1,2,2,5,5,5,5,5] as 3 runs.
func reeOf10(t *testing.T) *Array {
	t.Helper()
	runEnds := u64Prim(t, 3, 5, 10)
	values := i64Prim(t, 1, 2, 5)
	a, err := NewArray(runEnds, values, 10)
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func TestNewArrayValidatesRunEnds(t *testing.T) {
	runEnds := u64Prim(t, 3, 2, 10)
	values := i64Prim(t, 1, 2, 3)
	if _, err := NewArray(runEnds, values, 10); err == nil {
		t.Fatal("expected non-increasing run_ends to be rejected")
	}
}

func TestScalarAtResolvesRun(t *testing.T) {
	a := reeOf10(t)
	want := []int64{1, 1, 1, 2, 2, 5, 5, 5, 5, 5}
	for i, w := range want {
		s, err := a.ScalarAt(i)
		if err != nil {
			t.Fatal(err)
		}
		got, _ := s.AsI64()
		if got != w {
			t.Errorf("ScalarAt(%d) = %d, want %d", i, got, w)
		}
	}
}

func TestTakeGathersOncePerRun(t *testing.T) {
	a := reeOf10(t)
	idx := u64Prim(t, 9, 0, 4, 3)
	taken, err := a.Take(idx)
	if err != nil {
		t.Fatal(err)
	}
	want := []int64{5, 1, 2, 2}
	for i, w := range want {
		s, err := taken.(*array.PrimitiveArray).ScalarAt(i)
		if err != nil {
			t.Fatal(err)
		}
		got, _ := s.AsI64()
		if got != w {
			t.Errorf("Take()[%d] = %d, want %d", i, got, w)
		}
	}
}

func TestFilterMapsToRuns(t *testing.T) {
	a := reeOf10(t)
	maskBools := make([]bool, 10)
	maskBools[0] = true
	maskBools[4] = true
	maskBools[7] = true
	mask := array.NewBoolArrayFromBools(maskBools, array.NonNull())
	filtered, err := a.Filter(mask)
	if err != nil {
		t.Fatal(err)
	}
	pa := filtered.(*array.PrimitiveArray)
	want := []int64{1, 2, 5}
	if pa.Len() != len(want) {
		t.Fatalf("Filter len = %d, want %d", pa.Len(), len(want))
	}
	for i, w := range want {
		s, err := pa.ScalarAt(i)
		if err != nil {
			t.Fatal(err)
		}
		got, _ := s.AsI64()
		if got != w {
			t.Errorf("Filter()[%d] = %d, want %d", i, got, w)
		}
	}
}

func TestSliceIsZeroCopy(t *testing.T) {
	a := reeOf10(t)
	s, err := a.Slice(4, 8)
	if err != nil {
		t.Fatal(err)
	}
	sa := s.(*Array)
	if sa.runEnds != a.runEnds || sa.values != a.values {
		t.Error("Slice should reuse the same run_ends/values backing arrays")
	}
	want := []int64{2, 5, 5, 5}
	for i, w := range want {
		sc, err := sa.ScalarAt(i)
		if err != nil {
			t.Fatal(err)
		}
		got, _ := sc.AsI64()
		if got != w {
			t.Errorf("sliced ScalarAt(%d) = %d, want %d", i, got, w)
		}
	}
}

func TestEncodeRuns(t *testing.T) {
	vals := []int64{1, 1, 1, 2, 2, 5, 5, 5, 5, 5}
	runEnds, runStarts := Encode(len(vals), func(i, j int) bool { return vals[i] == vals[j] })
	wantEnds := []uint64{3, 5, 10}
	wantStarts := []int{0, 3, 5}
	if len(runEnds) != len(wantEnds) {
		t.Fatalf("len(runEnds) = %d, want %d", len(runEnds), len(wantEnds))
	}
	for i, w := range wantEnds {
		if runEnds[i] != w {
			t.Errorf("runEnds[%d] = %d, want %d", i, runEnds[i], w)
		}
	}
	for i, w := range wantStarts {
		if runStarts[i] != w {
			t.Errorf("runStarts[%d] = %d, want %d", i, runStarts[i], w)
		}
	}
}
