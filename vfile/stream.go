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
	"context"

	"github.com/google/uuid"

	"github.com/doki23/vortex/array"
	"github.com/doki23/vortex/compute"
	"github.com/doki23/vortex/dtype"
	"github.com/doki23/vortex/encoding/chunked"
	"github.com/doki23/vortex/scalar"
	"github.com/doki23/vortex/vexpr"
	"github.com/doki23/vortex/vxerr"
)

// Stream drives the layered split -> row-mask -> array pipeline over one
// open file: splits -> BufferedLayoutReader(ReadRowMask) ->
// BufferedLayoutReader(ReadArray) -> array batches. Every stream gets
// its own correlation id, attached to every log line it emits, so one
// read sequence can be followed through concurrent fetches.
type Stream struct {
	Source      ReadAt
	Path        string
	Footer      Footer
	Schema      Schema
	Config      ReaderConfig
	Cache       *MessageCache
	Correlation uuid.UUID
}

// OpenStream reads the footer and schema from src and constructs a
// Stream ready to read columns from it.
func OpenStream(src ReadAt, path string, cfg ReaderConfig) (*Stream, error) {
	footer, schemaBytes, err := ReadFooter(src)
	if err != nil {
		return nil, err
	}
	schema, err := DecodeSchema(schemaBytes)
	if err != nil {
		return nil, err
	}
	return &Stream{
		Source: src, Path: path, Footer: footer, Schema: schema,
		Config: cfg, Cache: NewMessageCache(cfg.MessageCacheBudget),
		Correlation: uuid.New(),
	}, nil
}

func (s *Stream) fieldIndex(name string) (int, error) {
	for i, n := range s.Schema.Names {
		if n == name {
			return i, nil
		}
	}
	return 0, vxerr.E(vxerr.InvalidArgument, "unknown field %q", name)
}

func (s *Stream) columnLayout(idx int) (Layout, error) {
	if len(s.Schema.Names) == 1 {
		return s.Footer.Layout, nil
	}
	if idx >= len(s.Footer.Layout.Children) {
		return Layout{}, vxerr.E(vxerr.InvalidSerde, "schema has %d fields but footer layout has %d children", len(s.Schema.Names), len(s.Footer.Layout.Children))
	}
	return s.Footer.Layout.Children[idx], nil
}

func collectBuffers(l Layout) []Buffer {
	out := append([]Buffer{}, l.Buffers...)
	for _, c := range l.Children {
		out = append(out, collectBuffers(c)...)
	}
	return out
}

// readRowMaskOp implements the ReadRowMask stage: for every split it
// declares pending only the buffers of the single chunk each field in
// fieldLayouts resolves to at that split (resolveSplitChunk), never the
// whole column, then once the cache holds them all it decodes those
// chunks and evaluates filterExpr row by row to produce one RowMask per
// split.
func (s *Stream) readRowMaskOp(ranges []Buffer, fieldLayouts map[string]Layout, fieldTypes map[string]dtype.DType, filterExpr vexpr.Expr) OpFunc[struct{}, []RowMask] {
	return func(cache *MessageCache, _ struct{}) ([]RowMask, []FetchMessage, bool, error) {
		var missing []FetchMessage
		for _, r := range ranges {
			for field, layout := range fieldLayouts {
				chunk, _, _, err := resolveSplitChunk(layout, fieldTypes[field], 0, r)
				if err != nil {
					return nil, nil, false, err
				}
				for _, b := range collectBuffers(chunk) {
					if _, ok := cache.Get(NewMessageID(s.Path, b)); !ok {
						missing = append(missing, FetchMessage{Path: s.Path, Range: b})
					}
				}
			}
		}
		if len(missing) > 0 {
			return nil, missing, false, nil
		}

		masks := make([]RowMask, len(ranges))
		for ri, r := range ranges {
			cols := make(map[string]array.Array, len(fieldLayouts))
			for field, layout := range fieldLayouts {
				chunk, dt, _, err := resolveSplitChunk(layout, fieldTypes[field], 0, r)
				if err != nil {
					return nil, nil, false, err
				}
				arr, err := DecodeLayout(chunk, dt, s.Path, s.Source, cache)
				if err != nil {
					return nil, nil, false, err
				}
				cols[field] = arr
			}
			n := int(r.End - r.Begin)
			bits := make([]bool, n)
			for i := 0; i < n; i++ {
				ok, err := evalBool(filterExpr, cols, i)
				if err != nil {
					return nil, nil, false, err
				}
				bits[i] = ok
			}
			masks[ri] = RowMask{Begin: r.Begin, End: r.End, Selected: array.NewBoolArrayFromBools(bits, array.NonNull())}
		}
		return masks, nil, true, nil
	}
}

// readArrayFilteredOp implements the ReadArray stage: splits whose mask
// has zero surviving rows are skipped entirely -- not fetched, not
// decoded -- and every other split only fetches the one chunk
// resolveSplitChunk resolves it to, filtering it down to its local mask
// before the split's batch is produced.
func (s *Stream) readArrayFilteredOp(layout Layout, dt dtype.DType, ranges []Buffer, masks []RowMask) OpFunc[struct{}, array.Array] {
	return func(cache *MessageCache, _ struct{}) (array.Array, []FetchMessage, bool, error) {
		var missing []FetchMessage
		for i, r := range ranges {
			if masks[i].TrueCount() == 0 {
				continue
			}
			chunk, _, _, err := resolveSplitChunk(layout, dt, 0, r)
			if err != nil {
				var zero array.Array
				return zero, nil, false, err
			}
			for _, b := range collectBuffers(chunk) {
				if _, ok := cache.Get(NewMessageID(s.Path, b)); !ok {
					missing = append(missing, FetchMessage{Path: s.Path, Range: b})
				}
			}
		}
		if len(missing) > 0 {
			return nil, missing, false, nil
		}

		var batches []array.Array
		for i, r := range ranges {
			mask := masks[i]
			if mask.TrueCount() == 0 {
				continue
			}
			chunk, cdt, _, err := resolveSplitChunk(layout, dt, 0, r)
			if err != nil {
				var zero array.Array
				return zero, nil, false, err
			}
			arr, err := DecodeLayout(chunk, cdt, s.Path, s.Source, cache)
			if err != nil {
				var zero array.Array
				return zero, nil, false, err
			}
			if mask.TrueCount() < int(r.End-r.Begin) {
				arr, err = compute.Filter(arr, mask.Selected)
				if err != nil {
					var zero array.Array
					return zero, nil, false, err
				}
			}
			batches = append(batches, arr)
		}
		if len(batches) == 1 {
			return batches[0], nil, true, nil
		}
		out, err := chunkedFromBatches(batches)
		if err != nil {
			var zero array.Array
			return zero, nil, false, err
		}
		return out, nil, true, nil
	}
}

// chunkedFromBatches concatenates per-split batches into one Chunked
// array the same way ReadAll wraps a single plain column: offsets are
// rebuilt from each batch's own length, so batches dropped entirely by a
// zero-surviving-rows mask contribute nothing to the result.
func chunkedFromBatches(batches []array.Array) (array.Array, error) {
	offsetsBuf := array.AppendRawU64(nil, dtype.U64, 0)
	var total uint64
	for _, b := range batches {
		total += uint64(b.Len())
		offsetsBuf = array.AppendRawU64(offsetsBuf, dtype.U64, total)
	}
	offsets := array.NewPrimitiveArray(dtype.U64, offsetsBuf, len(batches)+1, array.NonNull())
	return chunked.NewArray(offsets, batches)
}

// ReadColumn drives the layered pipeline over field with no filter: a
// row-mask stage that selects every row of every split (FullRowMask plus
// MasksFromSplits), followed by an array stage that decodes each split's
// single resolved chunk. Logging happens at the row-mask stage so split
// boundaries are visible before any column bytes are fetched.
func (s *Stream) ReadColumn(ctx context.Context, field string) (array.Array, error) {
	idx, err := s.fieldIndex(field)
	if err != nil {
		return nil, err
	}
	layout, err := s.columnLayout(idx)
	if err != nil {
		return nil, err
	}
	dt := s.Schema.DTypes[idx]

	ranges := columnRanges(layout, s.Footer.RowCount)
	for _, r := range ranges {
		Logger.Printf("stream %s: split [%d,%d) over field %q", s.Correlation, r.Begin, r.End, field)
	}

	masks, err := MasksFromSplits(ranges, FullRowMask(0, s.Footer.RowCount))
	if err != nil {
		return nil, err
	}

	reader := &BufferedLayoutReader[struct{}, array.Array]{
		Source: s.Source, Cache: s.Cache, Config: s.Config,
		Op: s.readArrayFilteredOp(layout, dt, ranges, masks),
	}
	return reader.Read(ctx, struct{}{})
}

// ReadFiltered drives the full layered pipeline spec.md names: splits ->
// BufferedLayoutReader(ReadRowMask) -> BufferedLayoutReader(ReadArray) ->
// array batches, returning field filtered down to the rows satisfying
// filterExpr. filterExpr is pruned with vexpr.Project against the set of
// fields this stream's schema actually has: a filter with no surviving
// fragment is rejected up front rather than discovered mid-read, while
// an And branch naming an unknown field is dropped and the rest of the
// filter still applies; the surviving fragment's referenced fields (vexpr.Fields) -- which
// need not include field itself, e.g. filtering on one column while
// reading another -- are exactly what the row-mask stage fetches and
// decodes. All fields are assumed to share the same split boundaries
// (the same per-chunk row counts), since they describe the same rows;
// resolveSplitChunk reports an error if a referenced field's chunking
// doesn't line up with field's.
//
// The row-mask stage only fetches and decodes the chunks needed to
// evaluate the filter; the array stage then only fetches and decodes
// field's chunks whose mask has at least one surviving row, so a chunk
// a filter column excludes entirely is never read off field at all.
func (s *Stream) ReadFiltered(ctx context.Context, field string, filterExpr vexpr.Expr) (array.Array, error) {
	known := make(map[string]bool, len(s.Schema.Names))
	for _, n := range s.Schema.Names {
		known[n] = true
	}
	pruned := vexpr.Project(filterExpr, known)
	if pruned == nil {
		return nil, vxerr.E(vxerr.Unsupported, "row mask: filter references no field in this stream's schema")
	}

	idx, err := s.fieldIndex(field)
	if err != nil {
		return nil, err
	}
	layout, err := s.columnLayout(idx)
	if err != nil {
		return nil, err
	}
	dt := s.Schema.DTypes[idx]

	fieldLayouts := map[string]Layout{field: layout}
	fieldTypes := map[string]dtype.DType{field: dt}
	for name := range vexpr.Fields(pruned) {
		if _, ok := fieldLayouts[name]; ok {
			continue
		}
		fi, err := s.fieldIndex(name)
		if err != nil {
			return nil, err
		}
		fl, err := s.columnLayout(fi)
		if err != nil {
			return nil, err
		}
		fieldLayouts[name] = fl
		fieldTypes[name] = s.Schema.DTypes[fi]
	}

	ranges := columnRanges(layout, s.Footer.RowCount)
	for _, r := range ranges {
		Logger.Printf("stream %s: split [%d,%d) over field %q", s.Correlation, r.Begin, r.End, field)
	}

	maskReader := &BufferedLayoutReader[struct{}, []RowMask]{
		Source: s.Source, Cache: s.Cache, Config: s.Config,
		Op: s.readRowMaskOp(ranges, fieldLayouts, fieldTypes, pruned),
	}
	masks, err := maskReader.Read(ctx, struct{}{})
	if err != nil {
		return nil, err
	}

	arrReader := &BufferedLayoutReader[struct{}, array.Array]{
		Source: s.Source, Cache: s.Cache, Config: s.Config,
		Op: s.readArrayFilteredOp(layout, dt, ranges, masks),
	}
	return arrReader.Read(ctx, struct{}{})
}

// ReadAllFiltered is the common-case entry to ReadFiltered: a single
// scalar threshold comparison against field itself, expressed as a
// vexpr.Binary.
func (s *Stream) ReadAllFiltered(ctx context.Context, field string, cmp array.CompareOp, threshold scalar.Scalar) (array.Array, error) {
	op, err := cmpToVexprOp(cmp)
	if err != nil {
		return nil, err
	}
	filterExpr := vexpr.Binary{Op: op, Left: vexpr.Column{Name: field}, Right: vexpr.Literal{Value: threshold}}
	return s.ReadFiltered(ctx, field, filterExpr)
}

// ReadAll concatenates the batches produced for field into a single
// Chunked array. Since ReadColumn already decodes the whole (possibly
// already-Chunked) column in one pass, this wraps a non-chunked result
// as a single-chunk Chunked array so callers always get the same
// return shape.
func (s *Stream) ReadAll(ctx context.Context, field string) (array.Array, error) {
	arr, err := s.ReadColumn(ctx, field)
	if err != nil {
		return nil, err
	}
	if arr.EncodingID() == array.EncodingChunked {
		return arr, nil
	}
	offsetsBuf := array.AppendRawU64(nil, dtype.U64, 0)
	offsetsBuf = array.AppendRawU64(offsetsBuf, dtype.U64, uint64(arr.Len()))
	offsets := array.NewPrimitiveArray(dtype.U64, offsetsBuf, 2, array.NonNull())
	return chunked.NewArray(offsets, []array.Array{arr})
}

