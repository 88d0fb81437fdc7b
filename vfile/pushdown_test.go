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
	"bytes"
	"context"
	"testing"

	"github.com/doki23/vortex/array"
	"github.com/doki23/vortex/compute"
	"github.com/doki23/vortex/dtype"
	"github.com/doki23/vortex/scalar"
	"github.com/doki23/vortex/vexpr"
)

// spyReadAt wraps a ReadAt and records every byte range requested of it,
// so a test can assert a particular chunk's bytes were never fetched.
type spyReadAt struct {
	ReadAt
	ranges []Buffer
}

func (s *spyReadAt) ReadByteRange(pos, length int64) ([]byte, error) {
	s.ranges = append(s.ranges, Buffer{Begin: uint64(pos), End: uint64(pos + length)})
	return s.ReadAt.ReadByteRange(pos, length)
}

func (s *spyReadAt) fetched(b Buffer) bool {
	for _, r := range s.ranges {
		if r == b {
			return true
		}
	}
	return false
}

// chunkedColumn writes one I64 column's on-disk layout: an offsets
// buffer (nchunks+1 u64 entries) followed by one raw buffer per chunk,
// returning the column's Layout plus the Buffer each chunk's raw values
// landed at (so a test can check whether that exact range was fetched).
func chunkedColumn(buf *bytes.Buffer, chunks [][]int64) (Layout, []Buffer) {
	offsetsBuf := array.AppendRawU64(nil, dtype.U64, 0)
	var total uint64
	for _, c := range chunks {
		total += uint64(len(c))
		offsetsBuf = array.AppendRawU64(offsetsBuf, dtype.U64, total)
	}
	offBegin := uint64(buf.Len())
	buf.Write(offsetsBuf)
	offsetsLayout := Layout{
		Encoding: uint16(array.EncodingPrimitive),
		Buffers:  []Buffer{{Begin: offBegin, End: uint64(buf.Len())}},
		Length:   uint64(len(chunks) + 1),
	}

	children := []Layout{offsetsLayout}
	chunkRanges := make([]Buffer, len(chunks))
	for i, c := range chunks {
		var raw []byte
		for _, v := range c {
			raw = array.AppendRawU64(raw, dtype.I64, uint64(v))
		}
		begin := uint64(buf.Len())
		buf.Write(raw)
		rng := Buffer{Begin: begin, End: uint64(buf.Len())}
		chunkRanges[i] = rng
		children = append(children, Layout{
			Encoding: uint16(array.EncodingPrimitive),
			Buffers:  []Buffer{rng},
			Length:   uint64(len(c)),
		})
	}

	return Layout{
		Encoding: uint16(array.EncodingChunked),
		Children: children,
		Length:   total,
	}, chunkRanges
}

// buildScoreFlagFile writes a two-field file ("score", "flag"), both I64
// columns chunked identically into three 2-row chunks, returning the
// encoded bytes plus the byte range each column's middle chunk (rows
// [2,4)) occupies.
func buildScoreFlagFile(t *testing.T, scores, flags []int64) ([]byte, Buffer, Buffer) {
	t.Helper()
	if len(scores) != 6 || len(flags) != 6 {
		t.Fatalf("buildScoreFlagFile: want 6 rows each, got %d/%d", len(scores), len(flags))
	}
	var buf bytes.Buffer
	scoreLayout, scoreChunks := chunkedColumn(&buf, [][]int64{scores[0:2], scores[2:4], scores[4:6]})
	flagLayout, flagChunks := chunkedColumn(&buf, [][]int64{flags[0:2], flags[2:4], flags[4:6]})

	schema := Schema{
		Names:  []string{"score", "flag"},
		DTypes: []dtype.DType{dtype.Primitive(dtype.I64, false), dtype.Primitive(dtype.I64, false)},
	}
	footer := Footer{
		RowCount: 6,
		Layout:   Layout{Children: []Layout{scoreLayout, flagLayout}},
	}
	base := int64(buf.Len())
	if _, err := WriteFile(&buf, base, EncodeSchema(schema), footer); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes(), scoreChunks[1], flagChunks[1]
}

// TestReadFilteredSkipsExcludedChunkBytes proves the row-mask -> array
// pipeline performs real byte-range pushdown: filtering "score" on a
// predicate over "flag" that excludes the middle chunk entirely must
// never fetch that chunk's bytes off the "score" column, even though the
// "flag" column's middle chunk is fetched (it has to be, to evaluate the
// filter).
func TestReadFilteredSkipsExcludedChunkBytes(t *testing.T) {
	scores := []int64{10, 20, 30, 40, 50, 60}
	flags := []int64{1, 1, 0, 0, 1, 1}
	data, scoreMiddle, flagMiddle := buildScoreFlagFile(t, scores, flags)

	spy := &spyReadAt{ReadAt: &MemFile{Data: data}}
	s, err := OpenStream(spy, "f", DefaultReaderConfig())
	if err != nil {
		t.Fatal(err)
	}

	filterExpr := vexpr.Binary{Op: vexpr.Ne, Left: vexpr.Column{Name: "flag"}, Right: vexpr.Literal{Value: scalar.I64(0)}}
	arr, err := s.ReadFiltered(context.Background(), "score", filterExpr)
	if err != nil {
		t.Fatal(err)
	}

	if arr.Len() != 4 {
		t.Fatalf("arr.Len() = %d, want 4 (rows with flag != 0)", arr.Len())
	}
	want := []uint64{10, 20, 50, 60}
	for i, w := range want {
		sc, err := compute.ScalarAt(arr, i)
		if err != nil {
			t.Fatal(err)
		}
		got, _ := sc.AsU64()
		if got != w {
			t.Errorf("ScalarAt(%d) = %d, want %d", i, got, w)
		}
	}

	if spy.fetched(scoreMiddle) {
		t.Errorf("score's excluded middle chunk %v was fetched, want it skipped entirely", scoreMiddle)
	}
	if !spy.fetched(flagMiddle) {
		t.Errorf("flag's middle chunk %v was never fetched, want it read to evaluate the filter", flagMiddle)
	}
}

// TestReadAllFilteredSkipsExcludedChunkBytes exercises the same pushdown
// through the public single-column threshold entry point.
func TestReadAllFilteredSkipsExcludedChunkBytes(t *testing.T) {
	scores := []int64{10, 20, 30, 40, 50, 60}
	flags := []int64{1, 1, 0, 0, 1, 1}
	data, scoreMiddle, _ := buildScoreFlagFile(t, scores, flags)

	spy := &spyReadAt{ReadAt: &MemFile{Data: data}}
	s, err := OpenStream(spy, "f", DefaultReaderConfig())
	if err != nil {
		t.Fatal(err)
	}

	arr, err := s.ReadAllFiltered(context.Background(), "flag", array.NotEq, scalar.I64(0))
	if err != nil {
		t.Fatal(err)
	}
	if arr.Len() != 4 {
		t.Fatalf("arr.Len() = %d, want 4", arr.Len())
	}
	if spy.fetched(scoreMiddle) {
		t.Errorf("unrelated score column's middle chunk %v was fetched during a flag-only read", scoreMiddle)
	}
}
