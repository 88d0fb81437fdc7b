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

package forencoding

import (
	"testing"

	"github.com/doki23/vortex/array"
	"github.com/doki23/vortex/dtype"
	"github.com/doki23/vortex/scalar"
)

func offsetsArray(t *testing.T, vs ...uint64) *array.PrimitiveArray {
	t.Helper()
	var buf []byte
	for _, v := range vs {
		buf = array.AppendRawU64(buf, dtype.U64, v)
	}
	return array.NewPrimitiveArray(dtype.U64, buf, len(vs), array.NonNull())
}

func forArray(t *testing.T, raw []uint64) *Array {
	t.Helper()
	reference, offsets := Encode(raw, dtype.I64)
	return NewArray(dtype.I64, offsetsArray(t, offsets...), scalar.New(dtype.Primitive(dtype.I64, false), int64(reference)), false)
}

func TestEncodeReference(t *testing.T) {
	raw := []uint64{uint64(int64(100)), uint64(int64(105)), uint64(int64(103))}
	reference, offsets := Encode(raw, dtype.I64)
	if int64(reference) != 100 {
		t.Errorf("reference = %d, want 100", int64(reference))
	}
	want := []uint64{0, 5, 3}
	for i, w := range want {
		if offsets[i] != w {
			t.Errorf("offsets[%d] = %d, want %d", i, offsets[i], w)
		}
	}
}

func TestScalarAtAddsReference(t *testing.T) {
	a := forArray(t, []uint64{uint64(int64(100)), uint64(int64(105)), uint64(int64(103))})
	want := []int64{100, 105, 103}
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

func TestTakeCommutesWithReference(t *testing.T) {
	a := forArray(t, []uint64{uint64(int64(10)), uint64(int64(20)), uint64(int64(30)), uint64(int64(40))})
	idx := offsetsArray(t, 3, 0, 2)
	taken, err := a.Take(idx)
	if err != nil {
		t.Fatal(err)
	}
	ta := taken.(*Array)
	want := []int64{40, 10, 30}
	for i, w := range want {
		s, err := ta.ScalarAt(i)
		if err != nil {
			t.Fatal(err)
		}
		got, _ := s.AsI64()
		if got != w {
			t.Errorf("Take()[%d] = %d, want %d", i, got, w)
		}
	}
}

func TestFilterKeepsReference(t *testing.T) {
	a := forArray(t, []uint64{uint64(int64(10)), uint64(int64(20)), uint64(int64(30)), uint64(int64(40))})
	mask := array.NewBoolArrayFromBools([]bool{true, false, true, false}, array.NonNull())
	filtered, err := a.Filter(mask)
	if err != nil {
		t.Fatal(err)
	}
	fa := filtered.(*Array)
	if fa.Len() != 2 {
		t.Fatalf("Filter len = %d, want 2", fa.Len())
	}
	want := []int64{10, 30}
	for i, w := range want {
		s, err := fa.ScalarAt(i)
		if err != nil {
			t.Fatal(err)
		}
		got, _ := s.AsI64()
		if got != w {
			t.Errorf("Filter()[%d] = %d, want %d", i, got, w)
		}
	}
}

func TestIntoCanonicalRoundTrips(t *testing.T) {
	neg5 := int64(-5)
	a := forArray(t, []uint64{uint64(neg5), uint64(int64(0)), uint64(int64(7))})
	canon, err := a.IntoCanonical()
	if err != nil {
		t.Fatal(err)
	}
	pa := canon.(*array.PrimitiveArray)
	want := []int64{-5, 0, 7}
	for i, w := range want {
		s, err := pa.ScalarAt(i)
		if err != nil {
			t.Fatal(err)
		}
		got, _ := s.AsI64()
		if got != w {
			t.Errorf("IntoCanonical()[%d] = %d, want %d", i, got, w)
		}
	}
}
