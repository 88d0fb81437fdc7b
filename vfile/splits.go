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
	"encoding/binary"
	"sort"

	"github.com/dchest/siphash"

	"github.com/doki23/vortex/array"
	"github.com/doki23/vortex/dtype"
	"github.com/doki23/vortex/vxerr"
)

// splitKey0/splitKey1 are fixed keys for the siphash ordering used to
// break ties between splits or message paths landing on the same
// row_offset.
const (
	splitKey0 = uint64(0xd011a7a5)
	splitKey1 = uint64(0xfeedc0de)
)

// pathKey produces a deterministic secondary sort key for a layout-tree
// path (the sequence of child indices descended to reach a node), used
// to total-order splits/masks/message paths that share a row_offset.
func pathKey(path []int) uint64 {
	buf := make([]byte, len(path)*4)
	for i, p := range path {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(p))
	}
	return siphash.Hash(splitKey0, splitKey1, buf)
}

// Split is one absolute row split-point plus the tree path that
// produced it, used only to total-order splits deterministically when
// two different subtrees report the same row_offset.
type Split struct {
	RowOffset uint64
	Key       uint64
}

// SplitSet accumulates split points across a layout tree, deduplicating
// by RowOffset and keeping a stable (RowOffset, Key) total order.
type SplitSet struct {
	seen  map[uint64]bool
	items []Split
}

// NewSplitSet returns an empty split accumulator.
func NewSplitSet() *SplitSet {
	return &SplitSet{seen: make(map[uint64]bool)}
}

// Add records a split point at rowOffset, reached via path.
func (s *SplitSet) Add(rowOffset uint64, path []int) {
	if s.seen[rowOffset] {
		return
	}
	s.seen[rowOffset] = true
	s.items = append(s.items, Split{RowOffset: rowOffset, Key: pathKey(path)})
}

// Sorted returns the accumulated splits in ascending (RowOffset, Key)
// order.
func (s *SplitSet) Sorted() []Split {
	out := make([]Split, len(s.items))
	copy(out, s.items)
	sort.Slice(out, func(i, j int) bool {
		if out[i].RowOffset != out[j].RowOffset {
			return out[i].RowOffset < out[j].RowOffset
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// Ranges returns the disjoint [begin, end) ranges the accumulated splits
// (plus the implicit 0 and rowCount boundaries) partition [0, rowCount)
// into.
func (s *SplitSet) Ranges(rowCount uint64) []Buffer {
	s.Add(0, nil)
	s.Add(rowCount, nil)
	points := s.Sorted()
	offsets := make([]uint64, 0, len(points))
	var last uint64 = ^uint64(0)
	for _, p := range points {
		if p.RowOffset != last {
			offsets = append(offsets, p.RowOffset)
			last = p.RowOffset
		}
	}
	ranges := make([]Buffer, 0, len(offsets)-1)
	for i := 0; i+1 < len(offsets); i++ {
		ranges = append(ranges, Buffer{Begin: offsets[i], End: offsets[i+1]})
	}
	return ranges
}

// AddSplits walks l (recursively, under path) contributing one split
// point per chunk boundary for a Chunked layout: leaf layouts contribute
// nothing beyond their extent, a chunked layout contributes each of its
// chunk boundaries.
func AddSplits(l Layout, rowOffset uint64, path []int, out *SplitSet) {
	if array.EncodingID(l.Encoding) != array.EncodingChunked {
		return
	}
	if len(l.Children) == 0 {
		return
	}
	// Children()[0] is the offsets child (see encoding/chunked.Array);
	// the remaining children are the value chunks in row order.
	offset := rowOffset
	for i, child := range l.Children[1:] {
		out.Add(offset, append(append([]int{}, path...), i))
		AddSplits(child, offset, append(append([]int{}, path...), i), out)
		offset += child.Length
	}
}

// resolveSplitChunk descends l the same way AddSplits walked it,
// following the one child whose absolute row range exactly contains
// want, and stops at the first node that isn't Chunked. Every split
// range handed to this function came from that same layout's own
// AddSplits walk, so it always bottoms out on exactly one physical
// chunk -- letting collectBuffers/DecodeLayout fetch and decode only
// that chunk instead of the whole column.
func resolveSplitChunk(l Layout, dt dtype.DType, rowOffset uint64, want Buffer) (Layout, dtype.DType, uint64, error) {
	if array.EncodingID(l.Encoding) != array.EncodingChunked || len(l.Children) == 0 {
		return l, dt, rowOffset, nil
	}
	offset := rowOffset
	for _, child := range l.Children[1:] {
		end := offset + child.Length
		if want.Begin >= offset && want.End <= end {
			return resolveSplitChunk(child, dt, offset, want)
		}
		offset = end
	}
	return Layout{}, dtype.DType{}, 0, vxerr.E(vxerr.InvalidArgument, "split [%d,%d) does not align to a single chunk", want.Begin, want.End)
}

// columnRanges returns the disjoint row ranges layout's own splits
// partition [0, rowCount) into, falling back to the single range
// [0, rowCount) when the layout contributes no splits of its own (a
// non-chunked column, or an empty file).
func columnRanges(layout Layout, rowCount uint64) []Buffer {
	splits := NewSplitSet()
	AddSplits(layout, 0, nil, splits)
	ranges := splits.Ranges(rowCount)
	if len(ranges) == 0 {
		return []Buffer{{Begin: 0, End: rowCount}}
	}
	return ranges
}
