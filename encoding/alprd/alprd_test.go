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

package alprd

import (
	"math"
	"testing"

	"github.com/doki23/vortex/array"
	"github.com/doki23/vortex/dtype"
)

const rightBitWidth = 48

func buildArray(t *testing.T, values []float64) (*Array, []float64) {
	t.Helper()
	bits := make([]uint64, len(values))
	for i, v := range values {
		bits[i] = math.Float64bits(v)
	}
	dict, leftCodes, rightParts, excIdx, excLeft := Encode(bits, false, rightBitWidth)
	if len(excIdx) > 0 {
		t.Fatalf("unexpected dictionary exceptions: %v / %v", excIdx, excLeft)
	}
	var lcBuf []byte
	for _, c := range leftCodes {
		lcBuf = array.AppendRawU64(lcBuf, dtype.U8, uint64(c))
	}
	lc := array.NewPrimitiveArray(dtype.U8, lcBuf, len(leftCodes), array.NonNull())
	var rpBuf []byte
	for _, r := range rightParts {
		rpBuf = array.AppendRawU64(rpBuf, dtype.U64, r)
	}
	rp := array.NewPrimitiveArray(dtype.U64, rpBuf, len(rightParts), array.NonNull())
	a := NewArray(false, rightBitWidth, dict, lc, rp, nil, false)
	return a, values
}

func TestScalarAtReconstructsBits(t *testing.T) {
	values := []float64{1.5, 2.25, 1.5, 3.75, 2.25}
	a, want := buildArray(t, values)
	for i, w := range want {
		s, err := a.ScalarAt(i)
		if err != nil {
			t.Fatal(err)
		}
		if got := s.Value.(float64); got != w {
			t.Errorf("ScalarAt(%d) = %v, want %v", i, got, w)
		}
	}
}

func TestTakeGathersBothChildren(t *testing.T) {
	values := []float64{1.5, 2.25, 1.5, 3.75, 2.25}
	a, _ := buildArray(t, values)
	var idxBuf []byte
	for _, v := range []uint64{4, 1, 0} {
		idxBuf = array.AppendRawU64(idxBuf, dtype.U64, v)
	}
	idx := array.NewPrimitiveArray(dtype.U64, idxBuf, 3, array.NonNull())
	taken, err := a.Take(idx)
	if err != nil {
		t.Fatal(err)
	}
	ta := taken.(*Array)
	want := []float64{2.25, 2.25, 1.5}
	for i, w := range want {
		s, err := ta.ScalarAt(i)
		if err != nil {
			t.Fatal(err)
		}
		if got := s.Value.(float64); got != w {
			t.Errorf("Take()[%d] = %v, want %v", i, got, w)
		}
	}
}

func TestFilterKeepsMaskedPositions(t *testing.T) {
	values := []float64{1.5, 2.25, 1.5, 3.75, 2.25}
	a, _ := buildArray(t, values)
	mask := array.NewBoolArrayFromBools([]bool{true, false, false, true, true}, array.NonNull())
	filtered, err := a.Filter(mask)
	if err != nil {
		t.Fatal(err)
	}
	fa := filtered.(*Array)
	if fa.Len() != 3 {
		t.Fatalf("Filter len = %d, want 3", fa.Len())
	}
	want := []float64{1.5, 3.75, 2.25}
	for i, w := range want {
		s, err := fa.ScalarAt(i)
		if err != nil {
			t.Fatal(err)
		}
		if got := s.Value.(float64); got != w {
			t.Errorf("Filter()[%d] = %v, want %v", i, got, w)
		}
	}
}

func TestIntoCanonicalRoundTrips(t *testing.T) {
	values := []float64{1.5, 2.25, 1.5, 3.75, 2.25}
	a, want := buildArray(t, values)
	canon, err := a.IntoCanonical()
	if err != nil {
		t.Fatal(err)
	}
	pa := canon.(*array.PrimitiveArray)
	for i, w := range want {
		s, err := pa.ScalarAt(i)
		if err != nil {
			t.Fatal(err)
		}
		if got := s.Value.(float64); got != w {
			t.Errorf("IntoCanonical()[%d] = %v, want %v", i, got, w)
		}
	}
}
