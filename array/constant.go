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
	"github.com/doki23/vortex/vxerr"
)

func init() {
	RegisterEncoding(EncodingConstant, func(dt dtype.DType, length int, buffers [][]byte, children []Array, metadata []byte) (Array, error) {
		s, err := decodeScalarMetadata(dt, metadata)
		if err != nil {
			return nil, err
		}
		return NewConstantArray(s, length), nil
	})
}

// ConstantArray holds a single scalar repeated length times. It is used
// both as a first-class encoding and internally by compute to materialize
// a scalar right-hand-side operand as an array.
type ConstantArray struct {
	value  scalar.Scalar
	length int
	stats  *Stats
}

// NewConstantArray returns a ConstantArray repeating value length times.
func NewConstantArray(value scalar.Scalar, length int) *ConstantArray {
	return &ConstantArray{value: value, length: length, stats: NewStats()}
}

func (a *ConstantArray) EncodingID() EncodingID       { return EncodingConstant }
func (a *ConstantArray) DType() dtype.DType           { return a.value.DT }
func (a *ConstantArray) Len() int                     { return a.length }
func (a *ConstantArray) Children() []Array            { return nil }
func (a *ConstantArray) Buffer() []byte               { return nil }
func (a *ConstantArray) Metadata() []byte             { return encodeScalarMetadata(a.value) }
func (a *ConstantArray) Stats() *Stats                { return a.stats }
func (a *ConstantArray) Value() scalar.Scalar         { return a.value }

func (a *ConstantArray) LogicalValidity() Validity {
	if a.value.Valid {
		return NonNull()
	}
	return Invalid()
}

// ScalarAt always returns the constant value (or a typed null).
func (a *ConstantArray) ScalarAt(i int) (scalar.Scalar, error) {
	if i < 0 || i >= a.length {
		return scalar.Scalar{}, ErrBounds(i, a.length)
	}
	return a.value, nil
}

// Slice is a no-op beyond adjusting length.
func (a *ConstantArray) Slice(lo, hi int) (Array, error) {
	if lo < 0 || hi > a.length || lo > hi {
		return nil, ErrBounds(hi, a.length)
	}
	return NewConstantArray(a.value, hi-lo), nil
}

// Take returns a ConstantArray of length idx.Len(), since every gathered
// position yields the same value.
func (a *ConstantArray) Take(idx Array) (Array, error) {
	return NewConstantArray(a.value, idx.Len()), nil
}

// Filter returns a ConstantArray of length equal to the number of set
// bits in mask.
func (a *ConstantArray) Filter(mask Array) (Array, error) {
	n := 0
	mb, ok := mask.(*BoolArray)
	if !ok {
		canon, err := mask.IntoCanonical()
		if err != nil {
			return nil, err
		}
		mb = canon.(*BoolArray)
	}
	for i := 0; i < mb.Len(); i++ {
		if mb.ValueUnchecked(i) {
			n++
		}
	}
	return NewConstantArray(a.value, n), nil
}

// Compare folds to a Constant Bool array when other is also Constant,
// else defers to compute's canonicalize-and-retry fallback.
func (a *ConstantArray) Compare(other Array, op CompareOp) (Array, error) {
	o, ok := other.(*ConstantArray)
	if !ok {
		return nil, vxerr.E(vxerr.Unsupported, "compare: rhs is not Constant")
	}
	if a.length != o.length {
		return nil, ErrLength("compare", o.length, a.length)
	}
	return NewConstantArray(scalar.Bool(compareScalars(a.value, o.value, op)), a.length), nil
}

// BinaryNumeric folds to another Constant scalar when other is also
// Constant.
func (a *ConstantArray) BinaryNumeric(other Array, op NumericOp) (Array, error) {
	o, ok := other.(*ConstantArray)
	if !ok {
		return nil, vxerr.E(vxerr.Unsupported, "binary_numeric: rhs is not Constant")
	}
	if a.length != o.length {
		return nil, ErrLength("binary_numeric", o.length, a.length)
	}
	if !a.value.Valid || !o.value.Valid {
		return NewConstantArray(scalar.Null(a.DType()), a.length), nil
	}
	p := a.DType().PType()
	av, _ := a.value.AsF64()
	bv, _ := o.value.AsF64()
	switch {
	case p.IsFloat():
		r, err := numericBinOp(p, av, bv, op)
		if err != nil {
			return nil, err
		}
		return NewConstantArray(scalar.New(a.DType(), boxBitsAsPType(p, floatBits(p, r))), a.length), nil
	case p.IsSigned():
		ai, _ := a.value.AsI64()
		bi, _ := o.value.AsI64()
		r, err := intBinOp(ai, bi, op)
		if err != nil {
			return nil, err
		}
		return NewConstantArray(scalar.New(a.DType(), boxBitsAsPType(p, truncateSigned(p, r))), a.length), nil
	default:
		au, _ := a.value.AsU64()
		bu, _ := o.value.AsU64()
		r, err := uintBinOp(au, bu, op)
		if err != nil {
			return nil, err
		}
		return NewConstantArray(scalar.New(a.DType(), boxBitsAsPType(p, truncateUnsigned(p, r))), a.length), nil
	}
}

func boxBitsAsPType(p dtype.PType, u uint64) any {
	elem := NewPrimitiveArray(p, AppendRawU64(nil, p, u), 1, NonNull())
	return boxValue(p, elem, 0)
}

// FillForward is a no-op on a Constant array unless the repeated value
// itself is null, in which case there is no preceding non-null value to
// fill with.
func (a *ConstantArray) FillForward() (Array, error) { return a, nil }

// IntoCanonical materializes the repeated scalar into the matching
// canonical encoding, so downstream kernels with no Constant-specific
// implementation can still operate on it.
func (a *ConstantArray) IntoCanonical() (Array, error) {
	switch a.DType().Kind() {
	case dtype.KindBool:
		out := make([]bool, a.length)
		if a.value.Valid {
			v := a.value.Value.(bool)
			for i := range out {
				out[i] = v
			}
		}
		validity := NonNull()
		if !a.value.Valid {
			validity = Invalid()
		} else if a.DType().Nullable() {
			validity = Valid()
		}
		return NewBoolArrayFromBools(out, validity), nil
	case dtype.KindPrimitive:
		p := a.DType().PType()
		buf := make([]byte, 0, a.length*(p.BitWidth()/8))
		if a.value.Valid {
			u := reinterpretToU64(p, a.value.Value)
			for i := 0; i < a.length; i++ {
				buf = AppendRawU64(buf, p, u)
			}
		} else {
			buf = make([]byte, a.length*(p.BitWidth()/8))
		}
		validity := NonNull()
		if !a.value.Valid {
			validity = Invalid()
		} else if a.DType().Nullable() {
			validity = Valid()
		}
		return NewPrimitiveArray(p, buf, a.length, validity), nil
	case dtype.KindUtf8, dtype.KindBinary:
		b := NewVarBinBuilder(a.DType().Kind() == dtype.KindUtf8)
		for i := 0; i < a.length; i++ {
			if !a.value.Valid {
				b.AppendNull()
				continue
			}
			switch v := a.value.Value.(type) {
			case string:
				b.AppendString(v)
			case []byte:
				b.Append(v)
			}
		}
		return b.Finish(), nil
	default:
		return nil, ErrBounds(0, 0)
	}
}

func reinterpretToU64(p dtype.PType, v any) uint64 {
	switch x := v.(type) {
	case uint8:
		return uint64(x)
	case uint16:
		return uint64(x)
	case uint32:
		return uint64(x)
	case uint64:
		return x
	case int8:
		return uint64(uint8(x))
	case int16:
		return uint64(uint16(x))
	case int32:
		return uint64(uint32(x))
	case int64:
		return uint64(x)
	case float32:
		return uint64(math.Float32bits(x))
	case float64:
		return math.Float64bits(x)
	default:
		return 0
	}
}

// encodeScalarMetadata/decodeScalarMetadata serialize a Constant array's
// repeated scalar to/from its metadata blob: one validity byte, followed
// (when valid) by a kind-specific fixed- or length-prefixed payload.
// Struct and List scalars are not supported here, matching IntoCanonical's
// coverage (Bool, Primitive, Utf8, Binary only).
func encodeScalarMetadata(s scalar.Scalar) []byte {
	if !s.Valid {
		return []byte{0}
	}
	buf := []byte{1}
	switch s.DT.Kind() {
	case dtype.KindBool:
		v := byte(0)
		if s.Value.(bool) {
			v = 1
		}
		buf = append(buf, v)
	case dtype.KindPrimitive:
		u := reinterpretToU64(s.DT.PType(), s.Value)
		buf = AppendRawU64(buf, s.DT.PType(), u)
	case dtype.KindUtf8, dtype.KindBinary:
		var b []byte
		switch v := s.Value.(type) {
		case string:
			b = []byte(v)
		case []byte:
			b = v
		}
		var lenBuf [4]byte
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(b)))
		buf = append(buf, lenBuf[:]...)
		buf = append(buf, b...)
	}
	return buf
}

func decodeScalarMetadata(dt dtype.DType, metadata []byte) (scalar.Scalar, error) {
	if len(metadata) == 0 || metadata[0] == 0 {
		return scalar.Null(dt), nil
	}
	payload := metadata[1:]
	switch dt.Kind() {
	case dtype.KindBool:
		if len(payload) < 1 {
			return scalar.Scalar{}, vxerr.E(vxerr.InvalidSerde, "constant bool metadata: short payload")
		}
		return scalar.New(dt, payload[0] != 0), nil
	case dtype.KindPrimitive:
		width := dt.PType().BitWidth() / 8
		if len(payload) < width {
			return scalar.Scalar{}, vxerr.E(vxerr.InvalidSerde, "constant primitive metadata: short payload")
		}
		elem := NewPrimitiveArray(dt.PType(), payload[:width], 1, NonNull())
		boxed, err := elem.ScalarAt(0)
		if err != nil {
			return scalar.Scalar{}, err
		}
		return scalar.New(dt, boxed.Value), nil
	case dtype.KindUtf8, dtype.KindBinary:
		if len(payload) < 4 {
			return scalar.Scalar{}, vxerr.E(vxerr.InvalidSerde, "constant bin metadata: short length prefix")
		}
		n := binary.LittleEndian.Uint32(payload)
		payload = payload[4:]
		if uint32(len(payload)) < n {
			return scalar.Scalar{}, vxerr.E(vxerr.InvalidSerde, "constant bin metadata: short payload")
		}
		b := append([]byte(nil), payload[:n]...)
		if dt.Kind() == dtype.KindUtf8 {
			return scalar.New(dt, string(b)), nil
		}
		return scalar.New(dt, b), nil
	default:
		return scalar.Scalar{}, vxerr.E(vxerr.Unsupported, "constant metadata: unsupported dtype kind %v", dt.Kind())
	}
}
