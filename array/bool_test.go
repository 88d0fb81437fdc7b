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

package array

import "testing"

func TestBoolArrayRoundTrip(t *testing.T) {
	vals := []bool{true, false, true, true, false, false, true, false, true}
	a := NewBoolArrayFromBools(vals, NonNull())
	if a.Len() != len(vals) {
		t.Fatalf("Len() = %d, want %d", a.Len(), len(vals))
	}
	for i, want := range vals {
		if got := a.ValueUnchecked(i); got != want {
			t.Errorf("ValueUnchecked(%d) = %v, want %v", i, got, want)
		}
	}
}

func TestBoolArrayScalarAtNull(t *testing.T) {
	validity := NewBoolArrayFromBools([]bool{true, false, true}, NonNull())
	a := NewBoolArrayFromBools([]bool{true, true, false}, FromBoolArray(validity))
	s, err := a.ScalarAt(1)
	if err != nil {
		t.Fatal(err)
	}
	if s.Valid {
		t.Fatal("position 1 should be null per the validity child")
	}
	s, err = a.ScalarAt(0)
	if err != nil {
		t.Fatal(err)
	}
	if !s.Valid || s.Value.(bool) != true {
		t.Errorf("ScalarAt(0) = %+v, want valid true", s)
	}
}

func TestBoolArraySlice(t *testing.T) {
	a := NewBoolArrayFromBools([]bool{true, false, true, false, true, true}, NonNull())
	sliced, err := a.Slice(2, 5)
	if err != nil {
		t.Fatal(err)
	}
	b := sliced.(*BoolArray)
	want := []bool{true, false, true}
	if b.Len() != len(want) {
		t.Fatalf("Len() = %d, want %d", b.Len(), len(want))
	}
	for i, w := range want {
		if b.ValueUnchecked(i) != w {
			t.Errorf("Slice()[%d] = %v, want %v", i, b.ValueUnchecked(i), w)
		}
	}
}

func TestBoolArrayTrueCountIsCached(t *testing.T) {
	a := NewBoolArrayFromBools([]bool{true, false, true, true}, NonNull())
	if got := a.TrueCount(); got != 3 {
		t.Fatalf("TrueCount() = %d, want 3", got)
	}
	// second call should hit the stats cache and return the same value
	if got := a.TrueCount(); got != 3 {
		t.Fatalf("cached TrueCount() = %d, want 3", got)
	}
}

func TestBoolArrayInvert(t *testing.T) {
	a := NewBoolArrayFromBools([]bool{true, false, true}, NonNull())
	inv, err := a.Invert()
	if err != nil {
		t.Fatal(err)
	}
	b := inv.(*BoolArray)
	want := []bool{false, true, false}
	for i, w := range want {
		if b.ValueUnchecked(i) != w {
			t.Errorf("Invert()[%d] = %v, want %v", i, b.ValueUnchecked(i), w)
		}
	}
}

func TestBoolArrayOutOfBoundsSlice(t *testing.T) {
	a := NewBoolArrayFromBools([]bool{true, false}, NonNull())
	if _, err := a.Slice(0, 5); err == nil {
		t.Fatal("expected error slicing beyond length")
	}
}
