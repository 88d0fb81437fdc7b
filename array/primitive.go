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

import (
	"encoding/binary"
	"math"

	"github.com/doki23/vortex/dtype"
	"github.com/doki23/vortex/scalar"
)

func init() {
	RegisterEncoding(EncodingPrimitive, func(dt dtype.DType, length int, buffers [][]byte, children []Array, metadata []byte) (Array, error) {
		if len(buffers) == 0 {
			return nil, ErrLength("primitive decode", 0, 1)
		}
		validity := NonNull()
		if dt.Nullable() {
			if len(children) != 1 {
				return nil, ErrLength("primitive validity child", len(children), 1)
			}
			b, ok := children[0].(*BoolArray)
			if !ok {
				return nil, ErrDTypeMismatch("primitive validity child", dt, dt)
			}
			validity = FromBoolArray(b)
		}
		return NewPrimitiveArray(dt.PType(), buffers[0], length, validity), nil
	})
}

// PrimitiveArray is the canonical physical form of the Primitive dtype: a
// contiguous little-endian buffer of native element width, plus validity.
type PrimitiveArray struct {
	ptype    dtype.PType
	buf      []byte
	length   int
	validity Validity
	stats    *Stats
}

// NewPrimitiveArray wraps a little-endian buffer of length*width(ptype)
// bytes.
func NewPrimitiveArray(ptype dtype.PType, buf []byte, length int, validity Validity) *PrimitiveArray {
	width := ptype.BitWidth() / 8
	if len(buf) < length*width {
		panic("array.NewPrimitiveArray: buffer too small for length")
	}
	return &PrimitiveArray{ptype: ptype, buf: buf, length: length, validity: validity, stats: NewStats()}
}

func (a *PrimitiveArray) EncodingID() EncodingID { return EncodingPrimitive }
func (a *PrimitiveArray) DType() dtype.DType {
	return dtype.Primitive(a.ptype, a.validity.Kind() != NonNullable)
}
func (a *PrimitiveArray) Len() int { return a.length }
func (a *PrimitiveArray) Children() []Array {
	if a.validity.Kind() == ArrayBacked {
		return []Array{a.validity.BoolArray()}
	}
	return nil
}
func (a *PrimitiveArray) Buffer() []byte            { return a.buf }
func (a *PrimitiveArray) Metadata() []byte          { return nil }
func (a *PrimitiveArray) Stats() *Stats             { return a.stats }
func (a *PrimitiveArray) LogicalValidity() Validity { return a.validity }
func (a *PrimitiveArray) IntoCanonical() (Array, error) { return a, nil }
func (a *PrimitiveArray) PType() dtype.PType         { return a.ptype }

func (a *PrimitiveArray) elemWidth() int { return a.ptype.BitWidth() / 8 }

// U64At returns element i reinterpreted as an unsigned integer of its
// native width widened to uint64; used by FastLanes-style bit packing that
// always operates on the unsigned variant of the declared type.
func (a *PrimitiveArray) U64At(i int) uint64 {
	w := a.elemWidth()
	off := i * w
	switch w {
	case 1:
		return uint64(a.buf[off])
	case 2:
		return uint64(binary.LittleEndian.Uint16(a.buf[off:]))
	case 4:
		return uint64(binary.LittleEndian.Uint32(a.buf[off:]))
	case 8:
		return binary.LittleEndian.Uint64(a.buf[off:])
	default:
		panic("array.PrimitiveArray.U64At: unsupported width")
	}
}

// F64At reinterprets element i as a float, widened to float64.
func (a *PrimitiveArray) F64At(i int) float64 {
	switch a.ptype {
	case dtype.F32:
		return float64(math.Float32frombits(uint32(a.U64At(i))))
	case dtype.F64:
		return math.Float64frombits(a.U64At(i))
	default:
		panic("array.PrimitiveArray.F64At: not a float ptype")
	}
}

// I64At reinterprets element i as a signed integer, sign-extended to
// int64.
func (a *PrimitiveArray) I64At(i int) int64 {
	u := a.U64At(i)
	switch a.ptype {
	case dtype.I8:
		return int64(int8(u))
	case dtype.I16:
		return int64(int16(u))
	case dtype.I32:
		return int64(int32(u))
	case dtype.I64:
		return int64(u)
	default:
		return int64(u)
	}
}

// ScalarAt returns a typed null at invalid positions, else the element
// value boxed per a.ptype.
func (a *PrimitiveArray) ScalarAt(i int) (scalar.Scalar, error) {
	if i < 0 || i >= a.length {
		return scalar.Scalar{}, ErrBounds(i, a.length)
	}
	valid, err := a.validity.IsValid(i)
	if err != nil {
		return scalar.Scalar{}, err
	}
	if !valid {
		return scalar.Null(a.DType()), nil
	}
	return scalar.New(a.DType(), boxValue(a.ptype, a, i)), nil
}

func boxValue(p dtype.PType, a *PrimitiveArray, i int) any {
	switch p {
	case dtype.U8:
		return uint8(a.U64At(i))
	case dtype.U16:
		return uint16(a.U64At(i))
	case dtype.U32:
		return uint32(a.U64At(i))
	case dtype.U64:
		return a.U64At(i)
	case dtype.I8:
		return int8(a.I64At(i))
	case dtype.I16:
		return int16(a.I64At(i))
	case dtype.I32:
		return int32(a.I64At(i))
	case dtype.I64:
		return a.I64At(i)
	case dtype.F32:
		return float32(a.F64At(i))
	case dtype.F64:
		return a.F64At(i)
	default:
		return nil
	}
}

// Slice returns a zero-copy PrimitiveArray over the logical window
// [lo, hi).
func (a *PrimitiveArray) Slice(lo, hi int) (Array, error) {
	if lo < 0 || hi > a.length || lo > hi {
		return nil, ErrBounds(hi, a.length)
	}
	w := a.elemWidth()
	return &PrimitiveArray{
		ptype:    a.ptype,
		buf:      a.buf[lo*w : hi*w],
		length:   hi - lo,
		validity: a.validity.Slice(lo, hi),
		stats:    NewStats(),
	}, nil
}

// Take gathers idx.Len() positions from a, rebuilding a canonical
// PrimitiveArray. It is the canonical fallback compute.Take retries
// against once an encoding declines Take itself.
func (a *PrimitiveArray) Take(idx Array) (Array, error) { return genericTake(a, idx) }

// Filter keeps positions where mask is true.
func (a *PrimitiveArray) Filter(mask Array) (Array, error) { return genericFilter(a, mask) }

// FillForward replaces each null with the most recently seen non-null.
func (a *PrimitiveArray) FillForward() (Array, error) { return genericFillForward(a) }

// Compare evaluates op element-wise; the result is non-null with false at
// positions where either operand is null.
func (a *PrimitiveArray) Compare(other Array, op CompareOp) (Array, error) {
	return genericCompare(a, other, op)
}

// Cast supports numeric-to-numeric reinterpretation only, matching the
// cast kernel's contract.
func (a *PrimitiveArray) Cast(dt dtype.DType) (Array, error) {
	if dt.Kind() != dtype.KindPrimitive {
		return nil, ErrDTypeMismatch("cast", a.DType(), dt)
	}
	p := dt.PType()
	n := a.length
	width := p.BitWidth() / 8
	buf := make([]byte, n*width)
	for i := 0; i < n; i++ {
		var u uint64
		switch {
		case p.IsFloat():
			var f float64
			switch {
			case a.ptype.IsFloat():
				f = a.F64At(i)
			case a.ptype.IsSigned():
				f = float64(a.I64At(i))
			default:
				f = float64(a.U64At(i))
			}
			u = floatBits(p, f)
		case p.IsSigned():
			var iv int64
			switch {
			case a.ptype.IsFloat():
				iv = int64(a.F64At(i))
			case a.ptype.IsSigned():
				iv = a.I64At(i)
			default:
				iv = int64(a.U64At(i))
			}
			u = truncateSigned(p, iv)
		default:
			var uv uint64
			switch {
			case a.ptype.IsFloat():
				uv = uint64(a.F64At(i))
			case a.ptype.IsSigned():
				uv = uint64(a.I64At(i))
			default:
				uv = a.U64At(i)
			}
			u = truncateUnsigned(p, uv)
		}
		copy(buf[i*width:], AppendRawU64(nil, p, u))
	}
	return NewPrimitiveArray(p, buf, n, a.validity), nil
}

// BinaryNumeric applies op element-wise; result nullability is the
// disjunction of the operands' nullability.
func (a *PrimitiveArray) BinaryNumeric(other Array, op NumericOp) (Array, error) {
	b, ok := other.(*PrimitiveArray)
	if !ok {
		canon, err := other.IntoCanonical()
		if err != nil {
			return nil, err
		}
		b, ok = canon.(*PrimitiveArray)
		if !ok {
			return nil, ErrDTypeMismatch("binary_numeric", a.DType(), other.DType())
		}
	}
	if a.length != b.Len() {
		return nil, ErrLength("binary_numeric", b.Len(), a.length)
	}
	if a.ptype != b.ptype {
		return nil, ErrDTypeMismatch("binary_numeric", a.DType(), b.DType())
	}
	n := a.length
	width := a.elemWidth()
	buf := make([]byte, n*width)
	validBits := make([]bool, n)
	anyInvalid := false
	for i := 0; i < n; i++ {
		va, err := a.validity.IsValid(i)
		if err != nil {
			return nil, err
		}
		vb, err := b.validity.IsValid(i)
		if err != nil {
			return nil, err
		}
		valid := va && vb
		validBits[i] = valid
		if !valid {
			anyInvalid = true
			continue
		}
		var u uint64
		switch {
		case a.ptype.IsFloat():
			r, err := numericBinOp(a.ptype, a.F64At(i), b.F64At(i), op)
			if err != nil {
				return nil, err
			}
			u = floatBits(a.ptype, r)
		case a.ptype.IsSigned():
			r, err := intBinOp(a.I64At(i), b.I64At(i), op)
			if err != nil {
				return nil, err
			}
			u = truncateSigned(a.ptype, r)
		default:
			r, err := uintBinOp(a.U64At(i), b.U64At(i), op)
			if err != nil {
				return nil, err
			}
			u = truncateUnsigned(a.ptype, r)
		}
		copy(buf[i*width:], AppendRawU64(nil, a.ptype, u))
	}
	nullable := a.validity.Kind() != NonNullable || b.validity.Kind() != NonNullable
	validity := NonNull()
	if nullable {
		if anyInvalid {
			validity = FromBoolArray(NewBoolArrayFromBools(validBits, Valid()))
		} else {
			validity = Valid()
		}
	}
	return NewPrimitiveArray(a.ptype, buf, n, validity), nil
}

// AppendRawU64 appends to buf the little-endian bytes of v truncated to
// ptype's width (v is already ptype's unsigned reinterpretation) -- used by
// encoders (e.g. bit-packing exception collection) to build scratch
// primitive buffers one element at a time.
func AppendRawU64(buf []byte, ptype dtype.PType, v uint64) []byte {
	switch ptype.BitWidth() {
	case 8:
		return append(buf, byte(v))
	case 16:
		var tmp [2]byte
		binary.LittleEndian.PutUint16(tmp[:], uint16(v))
		return append(buf, tmp[:]...)
	case 32:
		var tmp [4]byte
		binary.LittleEndian.PutUint32(tmp[:], uint32(v))
		return append(buf, tmp[:]...)
	default:
		var tmp [8]byte
		binary.LittleEndian.PutUint64(tmp[:], v)
		return append(buf, tmp[:]...)
	}
}
