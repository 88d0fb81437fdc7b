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

// Package sparse implements an encoding whose logical positions default
// to a single fill scalar (possibly null) except for a sparse, sorted
// set of overridden indices.
package sparse

import (
	"math"
	"sort"

	"github.com/doki23/vortex/array"
	"github.com/doki23/vortex/dtype"
	"github.com/doki23/vortex/scalar"
	"github.com/doki23/vortex/vxerr"
)

func init() {
	array.RegisterEncoding(array.EncodingSparse, func(dt dtype.DType, length int, buffers [][]byte, children []array.Array, metadata []byte) (array.Array, error) {
		if len(children) < 2 {
			return nil, vxerr.E(vxerr.InvalidSerde, "sparse decode: expected indices and values children")
		}
		indicesArr, ok := children[0].(*array.PrimitiveArray)
		if !ok || indicesArr.PType() != dtype.U64 {
			return nil, vxerr.E(vxerr.InvalidSerde, "sparse decode: expected u64 indices child")
		}
		indices := make([]uint64, indicesArr.Len())
		for i := range indices {
			indices[i] = indicesArr.U64At(i)
		}
		fill, err := decodeFill(dt, metadata)
		if err != nil {
			return nil, err
		}
		return NewArray(dt, indices, children[1], fill, length)
	})
}

// Array is the sparse encoding: indices (sorted, unique, in-range),
// values (one per index, dtype equal to the parent's non-nullable form),
// a fill scalar used for every unlisted position, and length.
type Array struct {
	dt      dtype.DType
	indices []uint64 // strictly increasing
	values  array.Array
	fill    scalar.Scalar
	length  int
	stats   *array.Stats
}

// NewArray validates and constructs a sparse array.
func NewArray(dt dtype.DType, indices []uint64, values array.Array, fill scalar.Scalar, length int) (*Array, error) {
	if len(indices) != values.Len() {
		return nil, vxerr.E(vxerr.InvalidArgument, "sparse: %d indices but %d values", len(indices), values.Len())
	}
	for i := range indices {
		if i > 0 && indices[i] <= indices[i-1] {
			return nil, vxerr.E(vxerr.InvalidArgument, "sparse: indices not strictly increasing at %d", i)
		}
		if indices[i] >= uint64(length) {
			return nil, vxerr.E(vxerr.OutOfBounds, "sparse: index %d >= length %d", indices[i], length)
		}
	}
	return &Array{dt: dt, indices: indices, values: values, fill: fill, length: length, stats: array.NewStats()}, nil
}

func (a *Array) EncodingID() array.EncodingID { return array.EncodingSparse }
func (a *Array) DType() dtype.DType           { return a.dt }
func (a *Array) Len() int                     { return a.length }
func (a *Array) Children() []array.Array {
	buf := make([]byte, 0, len(a.indices)*8)
	for _, v := range a.indices {
		buf = array.AppendRawU64(buf, dtype.U64, v)
	}
	return []array.Array{array.NewPrimitiveArray(dtype.U64, buf, len(a.indices), array.NonNull()), a.values}
}
func (a *Array) Buffer() []byte      { return nil }
func (a *Array) Stats() *array.Stats { return a.stats }

// Metadata encodes the fill scalar's validity and raw bit pattern (for
// primitive dtypes) so the decode path can reconstruct it; composite and
// varbin fill values are out of scope for on-disk round-trip and encode
// to a null fill.
func (a *Array) Metadata() []byte { return encodeFill(a.fill) }

func (a *Array) search(idx uint64) int {
	lo, hi := 0, len(a.indices)
	for lo < hi {
		mid := (lo + hi) / 2
		if a.indices[mid] < idx {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(a.indices) && a.indices[lo] == idx {
		return lo
	}
	return -1
}

func (a *Array) LogicalValidity() array.Validity {
	if !a.fill.Valid && len(a.indices) == 0 {
		return array.Invalid()
	}
	if a.fill.Valid {
		vv := a.values.LogicalValidity()
		if vv.Kind() == array.NonNullable || vv.Kind() == array.AllValid {
			return array.Valid()
		}
	}
	bools := make([]bool, a.length)
	for i := range bools {
		bools[i] = a.fill.Valid
	}
	for j, idx := range a.indices {
		s, err := scalarAtValues(a.values, j)
		if err == nil {
			bools[idx] = s.Valid
		}
	}
	return array.FromBoolArray(array.NewBoolArrayFromBools(bools, array.Valid()))
}

// ScalarAt returns values[j] if indices[j] == i, else the fill scalar.
func (a *Array) ScalarAt(i int) (scalar.Scalar, error) {
	if i < 0 || i >= a.length {
		return scalar.Scalar{}, array.ErrBounds(i, a.length)
	}
	if j := a.search(uint64(i)); j >= 0 {
		return scalarAtValues(a.values, j)
	}
	return a.fill, nil
}

// Slice narrows indices to the window and rebases them.
func (a *Array) Slice(lo, hi int) (array.Array, error) {
	if lo < 0 || hi > a.length || lo > hi {
		return nil, array.ErrBounds(hi, a.length)
	}
	start := sort.Search(len(a.indices), func(i int) bool { return a.indices[i] >= uint64(lo) })
	end := sort.Search(len(a.indices), func(i int) bool { return a.indices[i] >= uint64(hi) })
	newIndices := make([]uint64, end-start)
	for i := start; i < end; i++ {
		newIndices[i-start] = a.indices[i] - uint64(lo)
	}
	keep := make([]int, end-start)
	for i := range keep {
		keep[i] = start + i
	}
	newValues, err := takeIndices(a.values, keep)
	if err != nil {
		return nil, err
	}
	return &Array{dt: a.dt, indices: newIndices, values: newValues, fill: a.fill, length: hi - lo, stats: array.NewStats()}, nil
}

// Filter projects indices surviving mask and reindexes them to their
// post-filter position.
func (a *Array) Filter(mask array.Array) (array.Array, error) {
	mb, ok := mask.(*array.BoolArray)
	if !ok {
		canon, err := mask.IntoCanonical()
		if err != nil {
			return nil, err
		}
		mb = canon.(*array.BoolArray)
	}
	prefix := make([]int, a.length+1)
	for i := 0; i < a.length; i++ {
		prefix[i+1] = prefix[i]
		if mb.ValueUnchecked(i) {
			prefix[i+1]++
		}
	}
	var newIndices []uint64
	var keep []int
	for j, idx := range a.indices {
		if mb.ValueUnchecked(int(idx)) {
			newIndices = append(newIndices, uint64(prefix[idx]))
			keep = append(keep, j)
		}
	}
	newValues, err := takeIndices(a.values, keep)
	if err != nil {
		return nil, err
	}
	return &Array{dt: a.dt, indices: newIndices, values: newValues, fill: a.fill, length: prefix[a.length], stats: array.NewStats()}, nil
}

func scalarAtIdx(a array.Array, i int) (scalar.Scalar, error) {
	if sa, ok := a.(array.ScalarAtter); ok {
		return sa.ScalarAt(i)
	}
	canon, err := a.IntoCanonical()
	if err != nil {
		return scalar.Scalar{}, err
	}
	sa, ok := canon.(array.ScalarAtter)
	if !ok {
		return scalar.Scalar{}, vxerr.E(vxerr.Unsupported, "sparse: index array has no scalar_at")
	}
	return sa.ScalarAt(i)
}

// Take gathers idx.Len() positions, keeping the sparse representation:
// a gathered position that hit an overridden index is projected into the
// result's own indices/values; everything else stays implicit as fill.
func (a *Array) Take(idx array.Array) (array.Array, error) {
	n := idx.Len()
	var newIndices []uint64
	var keep []int
	for k := 0; k < n; k++ {
		iv, err := scalarAtIdx(idx, k)
		if err != nil {
			return nil, err
		}
		pos, ok := iv.AsI64()
		if !ok || pos < 0 || int(pos) >= a.length {
			return nil, array.ErrBounds(int(pos), a.length)
		}
		if j := a.search(uint64(pos)); j >= 0 {
			newIndices = append(newIndices, uint64(k))
			keep = append(keep, j)
		}
	}
	newValues, err := takeIndices(a.values, keep)
	if err != nil {
		return nil, err
	}
	return NewArray(a.dt, newIndices, newValues, a.fill, n)
}

// IntoCanonical allocates a dense array pre-filled with the fill scalar
// (and its validity) then scatters the sparse values over it.
func (a *Array) IntoCanonical() (array.Array, error) {
	switch a.dt.Kind() {
	case dtype.KindPrimitive:
		p := a.dt.PType()
		width := p.BitWidth() / 8
		buf := make([]byte, a.length*width)
		validBits := make([]bool, a.length)
		fillValid := a.fill.Valid
		var fillBits uint64
		if fillValid {
			fillBits = rawBits(a.fill)
		}
		for i := 0; i < a.length; i++ {
			validBits[i] = fillValid
			if fillValid {
				copy(buf[i*width:(i+1)*width], encodeLE(fillBits, width))
			}
		}
		for j, idx := range a.indices {
			s, err := scalarAtValues(a.values, j)
			if err != nil {
				return nil, err
			}
			validBits[idx] = true
			u := rawBits(s)
			copy(buf[int(idx)*width:(int(idx)+1)*width], encodeLE(u, width))
		}
		anyInvalid := false
		for _, v := range validBits {
			if !v {
				anyInvalid = true
				break
			}
		}
		validity := array.NonNull()
		if anyInvalid {
			validity = array.FromBoolArray(array.NewBoolArrayFromBools(validBits, array.Valid()))
		} else if a.dt.Nullable() {
			validity = array.Valid()
		}
		return array.NewPrimitiveArray(p, buf, a.length, validity), nil
	case dtype.KindBool:
		out := make([]bool, a.length)
		validBits := make([]bool, a.length)
		for i := range out {
			validBits[i] = a.fill.Valid
			if a.fill.Valid {
				out[i] = a.fill.Value.(bool)
			}
		}
		for j, idx := range a.indices {
			s, err := scalarAtValues(a.values, j)
			if err != nil {
				return nil, err
			}
			validBits[idx] = true
			out[idx] = s.Value.(bool)
		}
		return array.NewBoolArrayFromBools(out, array.FromBoolArray(array.NewBoolArrayFromBools(validBits, array.Valid()))), nil
	default:
		b := array.NewVarBinBuilder(a.dt.Kind() == dtype.KindUtf8)
		patchPos := 0
		for i := 0; i < a.length; i++ {
			if patchPos < len(a.indices) && a.indices[patchPos] == uint64(i) {
				s, err := scalarAtValues(a.values, patchPos)
				if err != nil {
					return nil, err
				}
				appendScalar(b, s)
				patchPos++
				continue
			}
			appendScalar(b, a.fill)
		}
		return b.Finish(), nil
	}
}

func appendScalar(b *array.VarBinBuilder, s scalar.Scalar) {
	if !s.Valid {
		b.AppendNull()
		return
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

func scalarAtValues(a array.Array, i int) (scalar.Scalar, error) {
	if sa, ok := a.(array.ScalarAtter); ok {
		return sa.ScalarAt(i)
	}
	canon, err := a.IntoCanonical()
	if err != nil {
		return scalar.Scalar{}, err
	}
	sa, ok := canon.(array.ScalarAtter)
	if !ok {
		return scalar.Scalar{}, vxerr.E(vxerr.Unsupported, "sparse: values encoding has no scalar_at")
	}
	return sa.ScalarAt(i)
}

func takeIndices(a array.Array, idx []int) (array.Array, error) {
	u64 := make([]uint64, len(idx))
	for i, v := range idx {
		u64[i] = uint64(v)
	}
	buf := make([]byte, 0, len(u64)*8)
	for _, v := range u64 {
		buf = array.AppendRawU64(buf, dtype.U64, v)
	}
	idxArray := array.NewPrimitiveArray(dtype.U64, buf, len(u64), array.NonNull())
	if t, ok := a.(array.Taker); ok {
		return t.Take(idxArray)
	}
	canon, err := a.IntoCanonical()
	if err != nil {
		return nil, err
	}
	t, ok := canon.(array.Taker)
	if !ok {
		return nil, vxerr.E(vxerr.Unsupported, "sparse: values canonical form has no take")
	}
	return t.Take(idxArray)
}

// rawBits returns a primitive scalar's value as its unsigned bit pattern:
// IEEE-754 bits for floats, the integer reinterpreted as uint64 otherwise.
func rawBits(s scalar.Scalar) uint64 {
	switch v := s.Value.(type) {
	case float32:
		return uint64(math.Float32bits(v))
	case float64:
		return math.Float64bits(v)
	default:
		u, _ := s.AsU64()
		return u
	}
}

func encodeLE(v uint64, width int) []byte {
	out := make([]byte, width)
	for i := 0; i < width; i++ {
		out[i] = byte(v >> (8 * i))
	}
	return out
}

func decodeFill(dt dtype.DType, metadata []byte) (scalar.Scalar, error) {
	base := dt.AsNonNullable()
	if len(metadata) < 1 || metadata[0] == 0 {
		return scalar.Null(base), nil
	}
	if dt.Kind() != dtype.KindPrimitive || len(metadata) < 9 {
		return scalar.Null(base), nil
	}
	u := uint64(metadata[1]) | uint64(metadata[2])<<8 | uint64(metadata[3])<<16 | uint64(metadata[4])<<24 |
		uint64(metadata[5])<<32 | uint64(metadata[6])<<40 | uint64(metadata[7])<<48 | uint64(metadata[8])<<56
	return scalar.New(base, boxBits(dt.PType(), u)), nil
}

func encodeFill(s scalar.Scalar) []byte {
	if !s.Valid || s.DT.Kind() != dtype.KindPrimitive {
		return []byte{0}
	}
	u := rawBits(s)
	out := make([]byte, 9)
	out[0] = 1
	for i := 0; i < 8; i++ {
		out[1+i] = byte(u >> (8 * i))
	}
	return out
}

func boxBits(p dtype.PType, u uint64) any {
	switch p {
	case dtype.U8:
		return uint8(u)
	case dtype.U16:
		return uint16(u)
	case dtype.U32:
		return uint32(u)
	case dtype.U64:
		return u
	case dtype.I8:
		return int8(int64(u))
	case dtype.I16:
		return int16(int64(u))
	case dtype.I32:
		return int32(int64(u))
	case dtype.I64:
		return int64(u)
	case dtype.F32:
		return math.Float32frombits(uint32(u))
	case dtype.F64:
		return math.Float64frombits(u)
	default:
		return u
	}
}
