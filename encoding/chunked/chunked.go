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

// Package chunked implements the chunked composite encoding: a sequence
// of child arrays, all sharing the parent's dtype, addressed through a
// monotonically non-decreasing offsets table.
package chunked

import (
	"math"
	"sort"

	"github.com/doki23/vortex/array"
	"github.com/doki23/vortex/dtype"
	"github.com/doki23/vortex/scalar"
	"github.com/doki23/vortex/vxerr"
)

func init() {
	array.RegisterEncoding(array.EncodingChunked, func(dt dtype.DType, length int, buffers [][]byte, children []array.Array, metadata []byte) (array.Array, error) {
		if len(children) < 2 {
			return nil, vxerr.E(vxerr.InvalidSerde, "chunked decode: expected offsets child plus at least one chunk")
		}
		offsets, ok := children[0].(*array.PrimitiveArray)
		if !ok || offsets.PType() != dtype.U64 {
			return nil, vxerr.E(vxerr.InvalidSerde, "chunked decode: offsets child must be u64 primitive")
		}
		return NewArray(offsets, children[1:])
	})
}

// Array is the chunked composite encoding: offsets has nchunks+1 entries
// (non-decreasing, starting at 0), and chunks[i] spans the logical
// window [offsets[i], offsets[i+1]).
type Array struct {
	offsets *array.PrimitiveArray
	chunks  []array.Array
	length  int
	stats   *array.Stats
}

// NewArray validates and constructs a chunked array.
func NewArray(offsets *array.PrimitiveArray, chunks []array.Array) (*Array, error) {
	if offsets.Len() != len(chunks)+1 {
		return nil, vxerr.E(vxerr.InvalidArgument, "chunked: offsets length %d != nchunks+1 (%d)", offsets.Len(), len(chunks)+1)
	}
	prev := uint64(0)
	for i := 0; i < offsets.Len(); i++ {
		o := offsets.U64At(i)
		if o < prev {
			return nil, vxerr.E(vxerr.InvalidArgument, "chunked: offsets not non-decreasing at %d", i)
		}
		prev = o
	}
	length := int(offsets.U64At(offsets.Len() - 1))
	return &Array{offsets: offsets, chunks: chunks, length: length, stats: array.NewStats()}, nil
}

func (a *Array) EncodingID() array.EncodingID { return array.EncodingChunked }
func (a *Array) DType() dtype.DType {
	if len(a.chunks) == 0 {
		return dtype.Null()
	}
	return a.chunks[0].DType()
}
func (a *Array) Len() int { return a.length }
func (a *Array) Children() []array.Array {
	out := make([]array.Array, 0, 1+len(a.chunks))
	out = append(out, a.offsets)
	return append(out, a.chunks...)
}
func (a *Array) Buffer() []byte      { return nil }
func (a *Array) Metadata() []byte    { return nil }
func (a *Array) Stats() *array.Stats { return a.stats }

func (a *Array) LogicalValidity() array.Validity {
	bools := make([]bool, a.length)
	pos := 0
	for _, c := range a.chunks {
		for i := 0; i < c.Len(); i++ {
			valid, err := c.LogicalValidity().IsValid(i)
			if err == nil {
				bools[pos] = valid
			}
			pos++
		}
	}
	return array.FromBoolArray(array.NewBoolArrayFromBools(bools, array.Valid()))
}

// findChunkIdx locates the chunk owning logical position i using a
// right-biased sorted search over offsets (the first index whose offset
// is greater than the search target), then subtracting one. This matches
// the chosen tie-break for empty chunks: an empty chunk's offset equals
// its neighbors', and searching past the rightmost match before
// subtracting one skips over it deterministically rather than landing
// inside it.
func (a *Array) findChunkIdx(i int) int {
	target := uint64(i)
	// Rightmost index j such that offsets[j] <= target, via a search for
	// the first index with offsets[j] > target, then subtracting one.
	j := sort.Search(a.offsets.Len(), func(k int) bool { return a.offsets.U64At(k) > target })
	return j - 1
}

// Bounds returns the [start, end) logical window covered by chunk idx.
func (a *Array) Bounds(idx int) (int, int) {
	return int(a.offsets.U64At(idx)), int(a.offsets.U64At(idx + 1))
}

// ScalarAt finds the owning chunk and recurses into it at the
// chunk-relative position.
func (a *Array) ScalarAt(i int) (scalar.Scalar, error) {
	if i < 0 || i >= a.length {
		return scalar.Scalar{}, array.ErrBounds(i, a.length)
	}
	ci := a.findChunkIdx(i)
	start, _ := a.Bounds(ci)
	return scalarAt(a.chunks[ci], i-start)
}

func scalarAt(a array.Array, i int) (scalar.Scalar, error) {
	if sa, ok := a.(array.ScalarAtter); ok {
		return sa.ScalarAt(i)
	}
	canon, err := a.IntoCanonical()
	if err != nil {
		return scalar.Scalar{}, err
	}
	sa, ok := canon.(array.ScalarAtter)
	if !ok {
		return scalar.Scalar{}, vxerr.E(vxerr.Unsupported, "chunked: chunk encoding has no scalar_at")
	}
	return sa.ScalarAt(i)
}

func takeAt(a array.Array, idx array.Array) (array.Array, error) {
	if t, ok := a.(array.Taker); ok {
		return t.Take(idx)
	}
	canon, err := a.IntoCanonical()
	if err != nil {
		return nil, err
	}
	t, ok := canon.(array.Taker)
	if !ok {
		return nil, vxerr.E(vxerr.Unsupported, "chunked: chunk encoding has no take")
	}
	return t.Take(idx)
}

func filterAt(a array.Array, mask array.Array) (array.Array, error) {
	if f, ok := a.(array.Filterer); ok {
		return f.Filter(mask)
	}
	canon, err := a.IntoCanonical()
	if err != nil {
		return nil, err
	}
	f, ok := canon.(array.Filterer)
	if !ok {
		return nil, vxerr.E(vxerr.Unsupported, "chunked: chunk encoding has no filter")
	}
	return f.Filter(mask)
}

func binaryNumericAt(a, other array.Array, op array.NumericOp) (array.Array, error) {
	if b, ok := a.(array.BinaryNumericer); ok {
		return b.BinaryNumeric(other, op)
	}
	canon, err := a.IntoCanonical()
	if err != nil {
		return nil, err
	}
	b, ok := canon.(array.BinaryNumericer)
	if !ok {
		return nil, vxerr.E(vxerr.Unsupported, "chunked: chunk encoding has no binary_numeric")
	}
	return b.BinaryNumeric(other, op)
}

func binaryBooleanAt(a, other array.Array, op array.BooleanOp) (array.Array, error) {
	if b, ok := a.(array.BinaryBooleaner); ok {
		return b.BinaryBoolean(other, op)
	}
	canon, err := a.IntoCanonical()
	if err != nil {
		return nil, err
	}
	b, ok := canon.(array.BinaryBooleaner)
	if !ok {
		return nil, vxerr.E(vxerr.Unsupported, "chunked: chunk encoding has no binary_boolean")
	}
	return b.BinaryBoolean(other, op)
}

func sliceArray(a array.Array, lo, hi int) (array.Array, error) {
	if s, ok := a.(array.Slicer); ok {
		return s.Slice(lo, hi)
	}
	canon, err := a.IntoCanonical()
	if err != nil {
		return nil, err
	}
	s, ok := canon.(array.Slicer)
	if !ok {
		return nil, vxerr.E(vxerr.Unsupported, "chunked: chunk encoding has no slice")
	}
	return s.Slice(lo, hi)
}

// Slice identifies the first and last chunk touched by [lo,hi), slices
// both at the edges, and keeps any fully-covered middle chunks whole. If
// only one chunk survives, that chunk (sliced) is returned directly
// rather than a new single-chunk Chunked wrapper.
func (a *Array) Slice(lo, hi int) (array.Array, error) {
	if lo < 0 || hi > a.length || lo > hi {
		return nil, array.ErrBounds(hi, a.length)
	}
	if lo == hi {
		empty, err := sliceArray(a.chunks[0], 0, 0)
		if err != nil {
			return nil, err
		}
		return empty, nil
	}
	firstChunk := a.findChunkIdx(lo)
	lastChunk := a.findChunkIdx(hi - 1)
	if firstChunk == lastChunk {
		start, _ := a.Bounds(firstChunk)
		return sliceArray(a.chunks[firstChunk], lo-start, hi-start)
	}
	var newChunks []array.Array
	var newOffsets []uint64
	newOffsets = append(newOffsets, 0)
	total := uint64(0)
	for ci := firstChunk; ci <= lastChunk; ci++ {
		start, end := a.Bounds(ci)
		sliceLo, sliceHi := start, end
		if ci == firstChunk {
			sliceLo = lo
		}
		if ci == lastChunk {
			sliceHi = hi
		}
		c, err := sliceArray(a.chunks[ci], sliceLo-start, sliceHi-start)
		if err != nil {
			return nil, err
		}
		newChunks = append(newChunks, c)
		total += uint64(sliceHi - sliceLo)
		newOffsets = append(newOffsets, total)
	}
	buf := make([]byte, 0, len(newOffsets)*8)
	for _, o := range newOffsets {
		buf = array.AppendRawU64(buf, dtype.U64, o)
	}
	offsets := array.NewPrimitiveArray(dtype.U64, buf, len(newOffsets), array.NonNull())
	return NewArray(offsets, newChunks)
}

// Take gathers idx.Len() positions. Each requested index is resolved to
// its owning chunk and fetched directly, rather than materializing the
// full chunked array into its canonical form first.
func (a *Array) Take(idx array.Array) (array.Array, error) {
	n := idx.Len()
	out := make([]scalar.Scalar, n)
	for k := 0; k < n; k++ {
		iv, err := scalarAt(idx, k)
		if err != nil {
			return nil, err
		}
		pos, ok := iv.AsI64()
		if !ok || pos < 0 || int(pos) >= a.length {
			return nil, array.ErrBounds(int(pos), a.length)
		}
		s, err := a.ScalarAt(int(pos))
		if err != nil {
			return nil, err
		}
		out[k] = s
	}
	return array.BuildFromScalars(a.DType(), out)
}

// Filter maps chunk-wise: mask is sliced to each chunk's logical window
// and delegated to that chunk's own filter, preserving the chunk
// boundaries of the receiver rather than flattening first.
func (a *Array) Filter(mask array.Array) (array.Array, error) {
	if mask.Len() != a.length {
		return nil, array.ErrLength("filter", mask.Len(), a.length)
	}
	newChunks := make([]array.Array, len(a.chunks))
	offsets := make([]uint64, len(a.chunks)+1)
	total := uint64(0)
	for ci, c := range a.chunks {
		start, end := a.Bounds(ci)
		maskSlice, err := sliceArray(mask, start, end)
		if err != nil {
			return nil, err
		}
		filtered, err := filterAt(c, maskSlice)
		if err != nil {
			return nil, err
		}
		newChunks[ci] = filtered
		total += uint64(filtered.Len())
		offsets[ci+1] = total
	}
	buf := make([]byte, 0, len(offsets)*8)
	for _, o := range offsets {
		buf = array.AppendRawU64(buf, dtype.U64, o)
	}
	offArr := array.NewPrimitiveArray(dtype.U64, buf, len(offsets), array.NonNull())
	return NewArray(offArr, newChunks)
}

// BinaryNumeric maps chunk-wise: other is sliced to each chunk's logical
// window (aligning chunk boundaries against other's own encoding, e.g. if
// other is itself chunked differently) before the chunk's own
// binary_numeric is invoked.
func (a *Array) BinaryNumeric(other array.Array, op array.NumericOp) (array.Array, error) {
	if other.Len() != a.length {
		return nil, array.ErrLength("binary_numeric", other.Len(), a.length)
	}
	newChunks := make([]array.Array, len(a.chunks))
	for ci, c := range a.chunks {
		start, end := a.Bounds(ci)
		otherSlice, err := sliceArray(other, start, end)
		if err != nil {
			return nil, err
		}
		r, err := binaryNumericAt(c, otherSlice, op)
		if err != nil {
			return nil, err
		}
		newChunks[ci] = r
	}
	return NewArray(a.offsets, newChunks)
}

// BinaryBoolean maps chunk-wise, mirroring BinaryNumeric.
func (a *Array) BinaryBoolean(other array.Array, op array.BooleanOp) (array.Array, error) {
	if other.Len() != a.length {
		return nil, array.ErrLength("binary_boolean", other.Len(), a.length)
	}
	newChunks := make([]array.Array, len(a.chunks))
	for ci, c := range a.chunks {
		start, end := a.Bounds(ci)
		otherSlice, err := sliceArray(other, start, end)
		if err != nil {
			return nil, err
		}
		r, err := binaryBooleanAt(c, otherSlice, op)
		if err != nil {
			return nil, err
		}
		newChunks[ci] = r
	}
	return NewArray(a.offsets, newChunks)
}

// IntoCanonical gathers every logical position through scalar_at and
// rebuilds a canonical PrimitiveArray, BoolArray or VarBinArray according
// to the dtype kind.
func (a *Array) IntoCanonical() (array.Array, error) {
	switch a.DType().Kind() {
	case dtype.KindPrimitive:
		p := a.DType().PType()
		width := p.BitWidth() / 8
		buf := make([]byte, a.length*width)
		validBits := make([]bool, a.length)
		anyInvalid := false
		for i := 0; i < a.length; i++ {
			s, err := a.ScalarAt(i)
			if err != nil {
				return nil, err
			}
			if !s.Valid {
				anyInvalid = true
				continue
			}
			validBits[i] = true
			var u uint64
			switch v := s.Value.(type) {
			case float32:
				u = uint64(math.Float32bits(v))
			case float64:
				u = math.Float64bits(v)
			default:
				u, _ = s.AsU64()
			}
			copy(buf[i*width:(i+1)*width], encodeLE(u, width))
		}
		validity := array.NonNull()
		if anyInvalid {
			validity = array.FromBoolArray(array.NewBoolArrayFromBools(validBits, array.Valid()))
		} else if a.DType().Nullable() {
			validity = array.Valid()
		}
		return array.NewPrimitiveArray(p, buf, a.length, validity), nil
	case dtype.KindBool:
		out := make([]bool, a.length)
		validBits := make([]bool, a.length)
		anyInvalid := false
		for i := 0; i < a.length; i++ {
			s, err := a.ScalarAt(i)
			if err != nil {
				return nil, err
			}
			if !s.Valid {
				anyInvalid = true
				continue
			}
			validBits[i] = true
			out[i] = s.Value.(bool)
		}
		validity := array.NonNull()
		if anyInvalid {
			validity = array.FromBoolArray(array.NewBoolArrayFromBools(validBits, array.Valid()))
		} else if a.DType().Nullable() {
			validity = array.Valid()
		}
		return array.NewBoolArrayFromBools(out, validity), nil
	default:
		b := array.NewVarBinBuilder(a.DType().Kind() == dtype.KindUtf8)
		for i := 0; i < a.length; i++ {
			s, err := a.ScalarAt(i)
			if err != nil {
				return nil, err
			}
			if !s.Valid {
				b.AppendNull()
				continue
			}
			switch v := s.Value.(type) {
			case string:
				b.AppendString(v)
			case []byte:
				b.Append(v)
			default:
				b.AppendNull()
			}
		}
		return b.Finish(), nil
	}
}

func encodeLE(v uint64, width int) []byte {
	out := make([]byte, width)
	for i := 0; i < width; i++ {
		out[i] = byte(v >> (8 * i))
	}
	return out
}

// Rechunk greedily regroups chunks under target byte/row caps: adding the
// next chunk is deferred to a new accumulator group once doing so would
// exceed either cap and the current group is non-empty. A chunk
// individually larger than a cap passes through as its own group. Row
// order and total content are preserved.
func Rechunk(chunks []array.Array, chunkBytes func(array.Array) int, targetBytes, targetRows int) []array.Array {
	var out []array.Array
	var group []array.Array
	groupBytes, groupRows := 0, 0
	flush := func() {
		if len(group) == 0 {
			return
		}
		if len(group) == 1 {
			out = append(out, group[0])
		} else {
			merged, err := concatSameKind(group)
			if err == nil {
				out = append(out, merged)
			} else {
				out = append(out, group...)
			}
		}
		group = nil
		groupBytes, groupRows = 0, 0
	}
	for _, c := range chunks {
		b := chunkBytes(c)
		if len(group) > 0 && (groupBytes+b > targetBytes || groupRows+c.Len() > targetRows) {
			flush()
		}
		group = append(group, c)
		groupBytes += b
		groupRows += c.Len()
	}
	flush()
	return out
}

// concatSameKind gathers every logical position out of arrs, in order,
// and rebuilds a single flat array of the shared dtype. This is what lets
// Rechunk actually merge a run of small chunks into one larger chunk
// rather than just renesting them.
func concatSameKind(arrs []array.Array) (array.Array, error) {
	if len(arrs) == 0 {
		return nil, vxerr.E(vxerr.InvalidArgument, "chunked: concatSameKind of zero arrays")
	}
	dt := arrs[0].DType()
	total := 0
	for _, c := range arrs {
		total += c.Len()
	}
	out := make([]scalar.Scalar, 0, total)
	for _, c := range arrs {
		for i := 0; i < c.Len(); i++ {
			s, err := scalarAt(c, i)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
	}
	return array.BuildFromScalars(dt, out)
}
