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

// Package alprd implements ALP-RD (real-double), a variant of ALP for
// floats whose fractional parts do not compress well under the plain ALP
// scheme. Each float's IEEE-754 bit pattern is split into a right part
// of the low rightBitWidth bits (stored as an unsigned integer array) and
// a left part of the remaining high bits, held as a uint16 and
// dictionary-coded over at most 8 distinct values per array, with
// dictionary misses recorded as patches.
package alprd

import (
	"math"
	"sort"

	"github.com/doki23/vortex/array"
	"github.com/doki23/vortex/dtype"
	"github.com/doki23/vortex/patches"
	"github.com/doki23/vortex/scalar"
	"github.com/doki23/vortex/vxerr"
)

// MaxDictSize is the maximum number of distinct left-parts ALP-RD will
// dictionary-code before falling back to patches.
const MaxDictSize = 8

func init() {
	array.RegisterEncoding(array.EncodingALPRD, func(dt dtype.DType, length int, buffers [][]byte, children []array.Array, metadata []byte) (array.Array, error) {
		if len(metadata) < 2 {
			return nil, vxerr.E(vxerr.InvalidSerde, "alprd decode: metadata too short")
		}
		rightBitWidth := int(metadata[0])
		dictLen := int(metadata[1])
		if len(metadata) < 2+dictLen*2 {
			return nil, vxerr.E(vxerr.InvalidSerde, "alprd decode: metadata too short for dictionary")
		}
		dict := make([]uint16, dictLen)
		for i := 0; i < dictLen; i++ {
			dict[i] = uint16(metadata[2+i*2]) | uint16(metadata[2+i*2+1])<<8
		}
		if len(children) < 2 {
			return nil, vxerr.E(vxerr.InvalidSerde, "alprd decode: expected left_codes and right_parts children")
		}
		leftCodes, ok := children[0].(*array.PrimitiveArray)
		if !ok {
			return nil, vxerr.E(vxerr.InvalidSerde, "alprd decode: left_codes child must be primitive")
		}
		rightParts, ok := children[1].(*array.PrimitiveArray)
		if !ok {
			return nil, vxerr.E(vxerr.InvalidSerde, "alprd decode: right_parts child must be primitive")
		}
		var pat *patches.Patches
		if len(children) >= 4 {
			indicesArr, ok := children[2].(*array.PrimitiveArray)
			if ok && indicesArr.PType() == dtype.U64 {
				indices := make([]uint64, indicesArr.Len())
				for i := range indices {
					indices[i] = indicesArr.U64At(i)
				}
				var err error
				pat, err = patches.New(length, indices, children[3])
				if err != nil {
					return nil, err
				}
			}
		}
		isF32 := dt.PType() == dtype.F32
		return NewArray(isF32, rightBitWidth, dict, leftCodes, rightParts, pat, dt.Nullable()), nil
	})
}

// Array is the ALP-RD encoding.
type Array struct {
	isF32         bool
	rightBitWidth int
	dict          []uint16 // at most MaxDictSize entries, code -> left-part bits
	leftCodes     *array.PrimitiveArray
	rightParts    *array.PrimitiveArray
	patches       *patches.Patches
	nullable      bool
	stats         *array.Stats
}

// NewArray constructs an ALP-RD array.
func NewArray(isF32 bool, rightBitWidth int, dict []uint16, leftCodes, rightParts *array.PrimitiveArray, pat *patches.Patches, nullable bool) *Array {
	return &Array{
		isF32: isF32, rightBitWidth: rightBitWidth, dict: dict,
		leftCodes: leftCodes, rightParts: rightParts, patches: pat,
		nullable: nullable, stats: array.NewStats(),
	}
}

func (a *Array) ptype() dtype.PType {
	if a.isF32 {
		return dtype.F32
	}
	return dtype.F64
}

func (a *Array) EncodingID() array.EncodingID { return array.EncodingALPRD }
func (a *Array) DType() dtype.DType           { return dtype.Primitive(a.ptype(), a.nullable) }
func (a *Array) Len() int                     { return a.leftCodes.Len() }
func (a *Array) Buffer() []byte               { return nil }
func (a *Array) Stats() *array.Stats          { return a.stats }

func (a *Array) Children() []array.Array {
	out := []array.Array{a.leftCodes, a.rightParts}
	if a.patches != nil {
		idx := make([]uint64, a.patches.Len())
		copy(idx, a.patches.Indices)
		buf := make([]byte, 0, len(idx)*8)
		for _, v := range idx {
			buf = array.AppendRawU64(buf, dtype.U64, v)
		}
		out = append(out, array.NewPrimitiveArray(dtype.U64, buf, len(idx), array.NonNull()), a.patches.Values)
	}
	return out
}

func (a *Array) Metadata() []byte {
	buf := make([]byte, 2+len(a.dict)*2)
	buf[0] = byte(a.rightBitWidth)
	buf[1] = byte(len(a.dict))
	for i, v := range a.dict {
		buf[2+i*2] = byte(v)
		buf[2+i*2+1] = byte(v >> 8)
	}
	return buf
}

// LogicalValidity: the left_codes child carries the array's own validity;
// right_parts is non-nullable per construction.
func (a *Array) LogicalValidity() array.Validity {
	if !a.nullable {
		return array.NonNull()
	}
	return a.leftCodes.LogicalValidity()
}

func (a *Array) leftBitsAt(i int) (uint16, error) {
	if a.patches != nil {
		if s, ok, err := a.patches.GetPatched(uint64(i)); err != nil {
			return 0, err
		} else if ok {
			v, _ := s.AsU64()
			return uint16(v), nil
		}
	}
	code := a.leftCodes.U64At(i)
	if int(code) >= len(a.dict) {
		return 0, vxerr.E(vxerr.InvalidSerde, "alprd: left code %d out of dictionary range", code)
	}
	return a.dict[code], nil
}

// ScalarAt reconstructs the IEEE-754 bit pattern as
// (left << right_bit_width) | right_parts[i] and reinterprets it as the
// logical float type.
func (a *Array) ScalarAt(i int) (scalar.Scalar, error) {
	if i < 0 || i >= a.Len() {
		return scalar.Scalar{}, array.ErrBounds(i, a.Len())
	}
	validity := a.leftCodes.LogicalValidity()
	if a.nullable {
		valid, err := validity.IsValid(i)
		if err != nil {
			return scalar.Scalar{}, err
		}
		if !valid {
			return scalar.Null(a.DType()), nil
		}
	}
	left, err := a.leftBitsAt(i)
	if err != nil {
		return scalar.Scalar{}, err
	}
	right := a.rightParts.U64At(i)
	bits := (uint64(left) << uint(a.rightBitWidth)) | right
	if a.isF32 {
		return scalar.New(a.DType(), math.Float32frombits(uint32(bits))), nil
	}
	return scalar.New(a.DType(), math.Float64frombits(bits)), nil
}

// Slice re-slices both children and re-bases patches.
func (a *Array) Slice(lo, hi int) (array.Array, error) {
	lc, err := a.leftCodes.Slice(lo, hi)
	if err != nil {
		return nil, err
	}
	rp, err := a.rightParts.Slice(lo, hi)
	if err != nil {
		return nil, err
	}
	var newPatches *patches.Patches
	if a.patches != nil {
		p, err := a.patches.Slice(lo, hi)
		if err != nil {
			return nil, err
		}
		newPatches = p
	}
	return NewArray(a.isF32, a.rightBitWidth, a.dict, lc.(*array.PrimitiveArray), rp.(*array.PrimitiveArray), newPatches, a.nullable), nil
}

func idxToU64s(idx array.Array) ([]uint64, error) {
	n := idx.Len()
	out := make([]uint64, n)
	for k := 0; k < n; k++ {
		var s scalar.Scalar
		var err error
		if sa, ok := idx.(array.ScalarAtter); ok {
			s, err = sa.ScalarAt(k)
		} else {
			canon, cErr := idx.IntoCanonical()
			if cErr != nil {
				return nil, cErr
			}
			sa, ok := canon.(array.ScalarAtter)
			if !ok {
				return nil, vxerr.E(vxerr.Unsupported, "alprd: index array has no scalar_at")
			}
			s, err = sa.ScalarAt(k)
		}
		if err != nil {
			return nil, err
		}
		u, ok := s.AsI64()
		if !ok || u < 0 {
			return nil, vxerr.E(vxerr.InvalidArgument, "alprd: index %d is negative or non-integer", k)
		}
		out[k] = uint64(u)
	}
	return out, nil
}

func maskToBools(mask array.Array) ([]bool, error) {
	mb, ok := mask.(*array.BoolArray)
	if !ok {
		canon, err := mask.IntoCanonical()
		if err != nil {
			return nil, err
		}
		mb, ok = canon.(*array.BoolArray)
		if !ok {
			return nil, vxerr.E(vxerr.Unsupported, "alprd: mask canonical form is not bool")
		}
	}
	out := make([]bool, mb.Len())
	for i := range out {
		valid, err := mb.LogicalValidity().IsValid(i)
		out[i] = err == nil && valid && mb.ValueUnchecked(i)
	}
	return out, nil
}

// Take gathers idx.Len() positions from both children and rebases
// patches onto the gathered indices.
func (a *Array) Take(idx array.Array) (array.Array, error) {
	u64, err := idxToU64s(idx)
	if err != nil {
		return nil, err
	}
	lc, err := a.leftCodes.Take(idx)
	if err != nil {
		return nil, err
	}
	rp, err := a.rightParts.Take(idx)
	if err != nil {
		return nil, err
	}
	var newPatches *patches.Patches
	if a.patches != nil {
		newPatches, err = a.patches.Take(u64)
		if err != nil {
			return nil, err
		}
	}
	return NewArray(a.isF32, a.rightBitWidth, a.dict, lc.(*array.PrimitiveArray), rp.(*array.PrimitiveArray), newPatches, a.nullable), nil
}

// Filter keeps positions where mask is true.
func (a *Array) Filter(mask array.Array) (array.Array, error) {
	bools, err := maskToBools(mask)
	if err != nil {
		return nil, err
	}
	lc, err := a.leftCodes.Filter(mask)
	if err != nil {
		return nil, err
	}
	rp, err := a.rightParts.Filter(mask)
	if err != nil {
		return nil, err
	}
	var newPatches *patches.Patches
	if a.patches != nil {
		newPatches, err = a.patches.Filter(bools)
		if err != nil {
			return nil, err
		}
	}
	return NewArray(a.isF32, a.rightBitWidth, a.dict, lc.(*array.PrimitiveArray), rp.(*array.PrimitiveArray), newPatches, a.nullable), nil
}

// IntoCanonical decodes every position into a dense PrimitiveArray of the
// logical float ptype.
func (a *Array) IntoCanonical() (array.Array, error) {
	n := a.Len()
	pt := a.ptype()
	width := pt.BitWidth() / 8
	buf := make([]byte, n*width)
	validBits := make([]bool, n)
	anyInvalid := false
	for i := 0; i < n; i++ {
		s, err := a.ScalarAt(i)
		if err != nil {
			return nil, err
		}
		if !s.Valid {
			anyInvalid = true
			continue
		}
		validBits[i] = true
		var bits uint64
		if a.isF32 {
			bits = uint64(math.Float32bits(s.Value.(float32)))
		} else {
			bits = math.Float64bits(s.Value.(float64))
		}
		for k := 0; k < width; k++ {
			buf[i*width+k] = byte(bits >> (8 * k))
		}
	}
	validity := array.NonNull()
	if anyInvalid {
		validity = array.FromBoolArray(array.NewBoolArrayFromBools(validBits, array.Valid()))
	} else if a.nullable {
		validity = array.Valid()
	}
	return array.NewPrimitiveArray(pt, buf, n, validity), nil
}

// Encode splits each value's bit pattern at rightBitWidth, builds a
// frequency-ranked dictionary of at most MaxDictSize left-parts (the most
// common values win a dictionary slot), and reports every other position
// as a patch on the left-part.
func Encode(values []uint64, isF32 bool, rightBitWidth int) (dict []uint16, leftCodes []uint8, rightParts []uint64, exceptionIdx []int, exceptionLeft []uint16) {
	freq := map[uint16]int{}
	lefts := make([]uint16, len(values))
	rights := make([]uint64, len(values))
	rightMask := uint64(1)<<uint(rightBitWidth) - 1
	for i, bits := range values {
		rights[i] = bits & rightMask
		left := uint16(bits >> uint(rightBitWidth))
		lefts[i] = left
		freq[left]++
	}
	type kv struct {
		k uint16
		v int
	}
	var ranked []kv
	for k, v := range freq {
		ranked = append(ranked, kv{k, v})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].v != ranked[j].v {
			return ranked[i].v > ranked[j].v
		}
		return ranked[i].k < ranked[j].k
	})
	if len(ranked) > MaxDictSize {
		ranked = ranked[:MaxDictSize]
	}
	dict = make([]uint16, len(ranked))
	code := map[uint16]uint8{}
	for i, e := range ranked {
		dict[i] = e.k
		code[e.k] = uint8(i)
	}
	leftCodes = make([]uint8, len(values))
	for i, left := range lefts {
		if c, ok := code[left]; ok {
			leftCodes[i] = c
		} else {
			exceptionIdx = append(exceptionIdx, i)
			exceptionLeft = append(exceptionLeft, left)
		}
	}
	return dict, leftCodes, rights, exceptionIdx, exceptionLeft
}
