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

// Package forencoding implements the frame-of-reference encoding: a child
// array of offsets (often itself bit-packed) plus a single reference
// scalar such that value[i] == offsets[i] + reference.
package forencoding

import (
	"encoding/binary"
	"math"

	"github.com/doki23/vortex/array"
	"github.com/doki23/vortex/dtype"
	"github.com/doki23/vortex/scalar"
	"github.com/doki23/vortex/vxerr"
)

func init() {
	array.RegisterEncoding(array.EncodingFrameOfReference, func(dt dtype.DType, length int, buffers [][]byte, children []array.Array, metadata []byte) (array.Array, error) {
		if len(children) != 1 {
			return nil, vxerr.E(vxerr.InvalidSerde, "forencoding decode: expected one offsets child")
		}
		if len(metadata) < 8 {
			return nil, vxerr.E(vxerr.InvalidSerde, "forencoding decode: metadata too short")
		}
		bits := binary.LittleEndian.Uint64(metadata[:8])
		ref := scalar.New(dt.AsNonNullable(), boxBits(dt.PType(), bits))
		return NewArray(dt.PType(), children[0], ref, dt.Nullable()), nil
	})
}

// Array is the frame-of-reference encoding.
type Array struct {
	ptype     dtype.PType
	offsets   array.Array
	reference scalar.Scalar
	nullable  bool
	stats     *array.Stats
}

// NewArray constructs a frame-of-reference array over offsets (whose
// dtype's ptype is the unsigned-reinterpreted form of ptype).
func NewArray(ptype dtype.PType, offsets array.Array, reference scalar.Scalar, nullable bool) *Array {
	return &Array{ptype: ptype, offsets: offsets, reference: reference, nullable: nullable, stats: array.NewStats()}
}

func (a *Array) EncodingID() array.EncodingID { return array.EncodingFrameOfReference }
func (a *Array) DType() dtype.DType           { return dtype.Primitive(a.ptype, a.nullable) }
func (a *Array) Len() int                     { return a.offsets.Len() }
func (a *Array) Children() []array.Array      { return []array.Array{a.offsets} }
func (a *Array) Buffer() []byte               { return nil }
func (a *Array) Stats() *array.Stats          { return a.stats }

func (a *Array) Metadata() []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, bitsOf(a.ptype, a.reference))
	return buf
}

func (a *Array) LogicalValidity() array.Validity {
	if !a.nullable {
		return array.NonNull()
	}
	return a.offsets.LogicalValidity()
}

func bitsOf(p dtype.PType, s scalar.Scalar) uint64 {
	switch v := s.Value.(type) {
	case uint8:
		return uint64(v)
	case uint16:
		return uint64(v)
	case uint32:
		return uint64(v)
	case uint64:
		return v
	case int8:
		return uint64(uint8(v))
	case int16:
		return uint64(uint16(v))
	case int32:
		return uint64(uint32(v))
	case int64:
		return uint64(v)
	case float32:
		return uint64(math.Float32bits(v))
	case float64:
		return math.Float64bits(v)
	default:
		return 0
	}
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

// add combines an offset's raw bit pattern with the reference's raw bit
// pattern via modular addition on the low bit_width bits, which is
// correct for both signed and unsigned reinterpretations.
func (a *Array) add(offsetBits uint64) uint64 {
	return offsetBits + bitsOf(a.ptype, a.reference)
}

func offsetScalarAt(a array.Array, i int) (scalar.Scalar, error) {
	if sa, ok := a.(array.ScalarAtter); ok {
		return sa.ScalarAt(i)
	}
	canon, err := a.IntoCanonical()
	if err != nil {
		return scalar.Scalar{}, err
	}
	sa, ok := canon.(array.ScalarAtter)
	if !ok {
		return scalar.Scalar{}, vxerr.E(vxerr.Unsupported, "forencoding: offsets encoding has no scalar_at")
	}
	return sa.ScalarAt(i)
}

// ScalarAt reconstructs value i as offsets[i] + reference.
func (a *Array) ScalarAt(i int) (scalar.Scalar, error) {
	if i < 0 || i >= a.Len() {
		return scalar.Scalar{}, array.ErrBounds(i, a.Len())
	}
	os, err := offsetScalarAt(a.offsets, i)
	if err != nil {
		return scalar.Scalar{}, err
	}
	if !os.Valid {
		return scalar.Null(a.DType()), nil
	}
	u := a.add(bitsOf(a.ptype, os))
	return scalar.New(a.DType(), boxBits(a.ptype, u)), nil
}

// Slice delegates to the offsets child's own slice kernel; the reference
// is unchanged.
func (a *Array) Slice(lo, hi int) (array.Array, error) {
	var sliced array.Array
	var err error
	if s, ok := a.offsets.(array.Slicer); ok {
		sliced, err = s.Slice(lo, hi)
	} else {
		canon, cErr := a.offsets.IntoCanonical()
		if cErr != nil {
			return nil, cErr
		}
		s, ok := canon.(array.Slicer)
		if !ok {
			return nil, vxerr.E(vxerr.Unsupported, "forencoding: offsets encoding has no slice")
		}
		sliced, err = s.Slice(lo, hi)
	}
	if err != nil {
		return nil, err
	}
	return NewArray(a.ptype, sliced, a.reference, a.nullable), nil
}

// Take gathers from the offsets child and rewraps with the same
// reference: the reference is position-independent, so take commutes
// with the add.
func (a *Array) Take(idx array.Array) (array.Array, error) {
	var taken array.Array
	var err error
	if t, ok := a.offsets.(array.Taker); ok {
		taken, err = t.Take(idx)
	} else {
		canon, cErr := a.offsets.IntoCanonical()
		if cErr != nil {
			return nil, cErr
		}
		t, ok := canon.(array.Taker)
		if !ok {
			return nil, vxerr.E(vxerr.Unsupported, "forencoding: offsets encoding has no take")
		}
		taken, err = t.Take(idx)
	}
	if err != nil {
		return nil, err
	}
	return NewArray(a.ptype, taken, a.reference, a.nullable), nil
}

// Filter keeps positions where mask is true, delegating to the offsets
// child and rewrapping with the same reference.
func (a *Array) Filter(mask array.Array) (array.Array, error) {
	var filtered array.Array
	var err error
	if f, ok := a.offsets.(array.Filterer); ok {
		filtered, err = f.Filter(mask)
	} else {
		canon, cErr := a.offsets.IntoCanonical()
		if cErr != nil {
			return nil, cErr
		}
		f, ok := canon.(array.Filterer)
		if !ok {
			return nil, vxerr.E(vxerr.Unsupported, "forencoding: offsets encoding has no filter")
		}
		filtered, err = f.Filter(mask)
	}
	if err != nil {
		return nil, err
	}
	return NewArray(a.ptype, filtered, a.reference, a.nullable), nil
}

// IntoCanonical adds the reference back into every offset, producing a
// dense PrimitiveArray.
func (a *Array) IntoCanonical() (array.Array, error) {
	width := a.ptype.BitWidth() / 8
	n := a.Len()
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
		copy(buf[i*width:(i+1)*width], encodeLE(bitsOf(a.ptype, s), width))
	}
	validity := array.NonNull()
	if anyInvalid {
		validity = array.FromBoolArray(array.NewBoolArrayFromBools(validBits, array.Valid()))
	} else if a.nullable {
		validity = array.Valid()
	}
	return array.NewPrimitiveArray(a.ptype, buf, n, validity), nil
}

func encodeLE(v uint64, width int) []byte {
	out := make([]byte, width)
	for i := 0; i < width; i++ {
		out[i] = byte(v >> (8 * i))
	}
	return out
}

// Encode computes the per-element unsigned offsets relative to a chosen
// reference (the minimum value present in raw). raw holds the
// already-unsigned-reinterpreted bit patterns of the input values;
// integer types choose the true signed/unsigned minimum as the
// reference, while float types use the smallest bit pattern, matching
// the simpler of the two strategies for FOR-over-floats.
func Encode(raw []uint64, ptype dtype.PType) (reference uint64, offsets []uint64) {
	if len(raw) == 0 {
		return 0, nil
	}
	if ptype.IsFloat() {
		reference = raw[0]
		for _, v := range raw {
			if v < reference {
				reference = v
			}
		}
	} else {
		reference = minSigned(raw, ptype)
	}
	offsets = make([]uint64, len(raw))
	for i, v := range raw {
		offsets[i] = v - reference
	}
	return reference, offsets
}

func minSigned(raw []uint64, ptype dtype.PType) uint64 {
	if !ptype.IsSigned() {
		m := raw[0]
		for _, v := range raw {
			if v < m {
				m = v
			}
		}
		return m
	}
	var m int64
	first := true
	for _, u := range raw {
		var s int64
		switch ptype.BitWidth() {
		case 8:
			s = int64(int8(uint8(u)))
		case 16:
			s = int64(int16(uint16(u)))
		case 32:
			s = int64(int32(uint32(u)))
		default:
			s = int64(u)
		}
		if first || s < m {
			m = s
			first = false
		}
	}
	return reinterpretSignedToU64(m, ptype)
}

func reinterpretSignedToU64(s int64, ptype dtype.PType) uint64 {
	switch ptype.BitWidth() {
	case 8:
		return uint64(uint8(int8(s)))
	case 16:
		return uint64(uint16(int16(s)))
	case 32:
		return uint64(uint32(int32(s)))
	default:
		return uint64(s)
	}
}
