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

package vfile

import (
	"testing"

	"github.com/doki23/vortex/array"
)

func TestSplitSetAddDedupsByRowOffset(t *testing.T) {
	s := NewSplitSet()
	s.Add(10, []int{0})
	s.Add(10, []int{1})
	s.Add(20, []int{0})
	if len(s.Sorted()) != 2 {
		t.Fatalf("Sorted() len = %d, want 2 (duplicate row offset must be deduped)", len(s.Sorted()))
	}
}

func TestSplitSetSortedOrdersByRowOffset(t *testing.T) {
	s := NewSplitSet()
	s.Add(30, nil)
	s.Add(10, nil)
	s.Add(20, nil)
	got := s.Sorted()
	want := []uint64{10, 20, 30}
	for i, w := range want {
		if got[i].RowOffset != w {
			t.Errorf("Sorted()[%d].RowOffset = %d, want %d", i, got[i].RowOffset, w)
		}
	}
}

func TestSplitSetRangesCoversFullRowCount(t *testing.T) {
	s := NewSplitSet()
	s.Add(0, nil)
	s.Add(5, nil)
	s.Add(12, nil)
	ranges := s.Ranges(20)
	want := []Buffer{{Begin: 0, End: 5}, {Begin: 5, End: 12}, {Begin: 12, End: 20}}
	if len(ranges) != len(want) {
		t.Fatalf("Ranges() len = %d, want %d", len(ranges), len(want))
	}
	for i, w := range want {
		if ranges[i] != w {
			t.Errorf("Ranges()[%d] = %+v, want %+v", i, ranges[i], w)
		}
	}
}

func TestSplitSetRangesWithNoSplitsIsWholeFile(t *testing.T) {
	s := NewSplitSet()
	ranges := s.Ranges(100)
	if len(ranges) != 1 || ranges[0] != (Buffer{Begin: 0, End: 100}) {
		t.Fatalf("Ranges() = %+v, want single [0,100) range", ranges)
	}
}

func TestAddSplitsWalksChunkedLayout(t *testing.T) {
	// Children[0] is the offsets child (mirrors encoding/chunked.Array's
	// Children() shape); AddSplits skips it and walks Children[1:] as the
	// value chunks in row order.
	chunkedLayout := Layout{
		Encoding: uint16(array.EncodingChunked),
		Children: []Layout{
			{Length: 0},
			{Length: 4},
			{Length: 3},
			{Length: 5},
		},
	}
	s := NewSplitSet()
	AddSplits(chunkedLayout, 0, nil, s)
	ranges := s.Ranges(12)
	want := []Buffer{{Begin: 0, End: 4}, {Begin: 4, End: 7}, {Begin: 7, End: 12}}
	if len(ranges) != len(want) {
		t.Fatalf("Ranges() len = %d, want %d: %+v", len(ranges), len(want), ranges)
	}
	for i, w := range want {
		if ranges[i] != w {
			t.Errorf("Ranges()[%d] = %+v, want %+v", i, ranges[i], w)
		}
	}
}

func TestAddSplitsIgnoresNonChunkedLayout(t *testing.T) {
	plain := Layout{Encoding: uint16(array.EncodingPrimitive), Length: 9}
	s := NewSplitSet()
	AddSplits(plain, 0, nil, s)
	if len(s.Sorted()) != 0 {
		t.Errorf("non-chunked layout must not contribute split points, got %+v", s.Sorted())
	}
}
