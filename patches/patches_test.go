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

package patches

import (
	"testing"

	"github.com/doki23/vortex/array"
	"github.com/doki23/vortex/dtype"
)

func valuesArray(t *testing.T, vs ...int64) array.Array {
	t.Helper()
	var buf []byte
	for _, v := range vs {
		buf = array.AppendRawU64(buf, dtype.I64, uint64(v))
	}
	return array.NewPrimitiveArray(dtype.I64, buf, len(vs), array.NonNull())
}

func TestNewValidates(t *testing.T) {
	vals := valuesArray(t, 10, 20)
	if _, err := New(8, []uint64{1, 3}, vals); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := New(8, []uint64{1}, vals); err == nil {
		t.Fatal("expected error on indices/values length mismatch")
	}
	if _, err := New(8, []uint64{3, 1}, vals); err == nil {
		t.Fatal("expected error on non-increasing indices")
	}
	if _, err := New(2, []uint64{1, 5}, vals); err == nil {
		t.Fatal("expected error on out-of-bounds index")
	}
}

func TestGetPatched(t *testing.T) {
	p, err := New(8, []uint64{1, 4}, valuesArray(t, 100, 200))
	if err != nil {
		t.Fatal(err)
	}
	s, ok, err := p.GetPatched(4)
	if err != nil || !ok {
		t.Fatalf("GetPatched(4) = (_, %v, %v), want (_, true, nil)", ok, err)
	}
	if v, _ := s.AsI64(); v != 200 {
		t.Errorf("GetPatched(4) value = %d, want 200", v)
	}
	_, ok, err = p.GetPatched(2)
	if err != nil || ok {
		t.Fatalf("GetPatched(2) = (_, %v, %v), want (_, false, nil)", ok, err)
	}
}

func TestFilter(t *testing.T) {
	p, err := New(5, []uint64{1, 3}, valuesArray(t, 11, 33))
	if err != nil {
		t.Fatal(err)
	}
	mask := []bool{true, true, false, true, true}
	filtered, err := p.Filter(mask)
	if err != nil {
		t.Fatal(err)
	}
	if filtered.ArrayLen != 4 {
		t.Fatalf("ArrayLen = %d, want 4", filtered.ArrayLen)
	}
	if len(filtered.Indices) != 2 || filtered.Indices[0] != 1 || filtered.Indices[1] != 2 {
		t.Fatalf("Indices = %v, want [1 2]", filtered.Indices)
	}
}

func TestFilterDropsMaskedOutPatch(t *testing.T) {
	p, err := New(5, []uint64{2}, valuesArray(t, 77))
	if err != nil {
		t.Fatal(err)
	}
	mask := []bool{true, true, false, true, true}
	filtered, err := p.Filter(mask)
	if err != nil {
		t.Fatal(err)
	}
	if filtered.Len() != 0 {
		t.Fatalf("Len() = %d, want 0: the only patched index was masked out", filtered.Len())
	}
}

func TestSlice(t *testing.T) {
	p, err := New(10, []uint64{0, 4, 9}, valuesArray(t, 1, 2, 3))
	if err != nil {
		t.Fatal(err)
	}
	sliced, err := p.Slice(3, 8)
	if err != nil {
		t.Fatal(err)
	}
	if sliced.ArrayLen != 5 {
		t.Fatalf("ArrayLen = %d, want 5", sliced.ArrayLen)
	}
	if len(sliced.Indices) != 1 || sliced.Indices[0] != 1 {
		t.Fatalf("Indices = %v, want [1] (index 4 rebased to 4-3=1)", sliced.Indices)
	}
}

func TestTake(t *testing.T) {
	p, err := New(5, []uint64{1, 3}, valuesArray(t, 10, 30))
	if err != nil {
		t.Fatal(err)
	}
	taken, err := p.Take([]uint64{3, 0, 1, 4})
	if err != nil {
		t.Fatal(err)
	}
	if taken.ArrayLen != 4 {
		t.Fatalf("ArrayLen = %d, want 4", taken.ArrayLen)
	}
	if len(taken.Indices) != 2 || taken.Indices[0] != 0 || taken.Indices[1] != 2 {
		t.Fatalf("Indices = %v, want [0 2]: gather positions 0 (src idx 3) and 2 (src idx 1) hit patches", taken.Indices)
	}
}

func TestApplyToBase(t *testing.T) {
	base := []uint64{0, 0, 0, 0}
	p, err := New(4, []uint64{1, 3}, valuesArray(t, 9, 7))
	if err != nil {
		t.Fatal(err)
	}
	if err := ApplyToBase(base, p); err != nil {
		t.Fatal(err)
	}
	want := []uint64{0, 9, 0, 7}
	for i := range want {
		if base[i] != want[i] {
			t.Errorf("base[%d] = %d, want %d", i, base[i], want[i])
		}
	}
}

func TestToMetadata(t *testing.T) {
	empty := &Patches{}
	if m := empty.ToMetadata(10); m.Offset != 0 || m.Width != 0 {
		t.Errorf("empty patches metadata = %+v, want zero value", m)
	}
	p, err := New(10, []uint64{2, 5, 7}, valuesArray(t, 1, 2, 3))
	if err != nil {
		t.Fatal(err)
	}
	m := p.ToMetadata(10)
	if m.Offset != 2 || m.Width != 6 {
		t.Errorf("ToMetadata() = %+v, want {Offset:2 Width:6}", m)
	}
}
