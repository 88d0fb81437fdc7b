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
	"github.com/doki23/vortex/dtype"
	"github.com/doki23/vortex/scalar"
)

// bitBytesNeeded returns the number of bytes needed to pack n bits,
// one bit per logical position, LSB-first within each byte.
func bitBytesNeeded(n int) int {
	return (n + 7) / 8
}

// setBitLSB sets the k-th bit of a LSB-first packed bit buffer.
func setBitLSB(buf []byte, k int) {
	buf[k/8] |= 1 << uint(k%8)
}

// testBitLSB reports the k-th bit of a LSB-first packed bit buffer.
func testBitLSB(buf []byte, k int) bool {
	return buf[k/8]&(1<<uint(k%8)) != 0
}

func init() {
	RegisterEncoding(EncodingBool, func(dt dtype.DType, length int, buffers [][]byte, children []Array, metadata []byte) (Array, error) {
		if len(buffers) == 0 {
			return nil, ErrLength("bool decode", 0, 1)
		}
		var validity Validity
		if dt.Nullable() {
			if len(children) != 1 {
				return nil, ErrLength("bool validity child", len(children), 1)
			}
			b, ok := children[0].(*BoolArray)
			if !ok {
				return nil, ErrDTypeMismatch("bool validity child", dt, dt)
			}
			validity = FromBoolArray(b)
		} else {
			validity = NonNull()
		}
		return NewBoolArray(buffers[0], length, validity), nil
	})
}

// BoolArray is the canonical physical form of the Bool dtype: a packed
// bit buffer, one bit per element, LSB-first within each little-endian
// byte, plus validity.
type BoolArray struct {
	buf      []byte
	length   int
	validity Validity
	stats    *Stats
}

// NewBoolArray wraps an LSB-first packed bit buffer of the given logical
// length. buf must contain at least ceil(length/8) bytes.
func NewBoolArray(buf []byte, length int, validity Validity) *BoolArray {
	need := bitBytesNeeded(length)
	if len(buf) < need {
		panic("array.NewBoolArray: buffer too small for length")
	}
	return &BoolArray{buf: buf, length: length, validity: validity, stats: NewStats()}
}

// NewBoolArrayFromBools packs a []bool into a new canonical BoolArray.
func NewBoolArrayFromBools(values []bool, validity Validity) *BoolArray {
	buf := make([]byte, bitBytesNeeded(len(values)))
	for i, v := range values {
		if v {
			setBitLSB(buf, i)
		}
	}
	return NewBoolArray(buf, len(values), validity)
}

func (a *BoolArray) EncodingID() EncodingID { return EncodingBool }
func (a *BoolArray) DType() dtype.DType {
	return dtype.Bool(a.validity.Kind() != NonNullable)
}
func (a *BoolArray) Len() int { return a.length }
func (a *BoolArray) Children() []Array {
	if a.validity.Kind() == ArrayBacked {
		return []Array{a.validity.BoolArray()}
	}
	return nil
}
func (a *BoolArray) Buffer() []byte            { return a.buf }
func (a *BoolArray) Metadata() []byte          { return nil }
func (a *BoolArray) Stats() *Stats             { return a.stats }
func (a *BoolArray) LogicalValidity() Validity { return a.validity }
func (a *BoolArray) IntoCanonical() (Array, error) { return a, nil }

// ValueUnchecked returns the bit at position i without bounds checking or
// consulting validity; used internally and by validity's own ArrayBacked
// backing.
func (a *BoolArray) ValueUnchecked(i int) bool {
	return testBitLSB(a.buf, i)
}

// ScalarAt returns a typed null at invalid positions, else the bit value.
func (a *BoolArray) ScalarAt(i int) (scalar.Scalar, error) {
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
	return scalar.Bool(a.ValueUnchecked(i)), nil
}

// Slice returns a BoolArray over the logical window [lo, hi). It is not
// zero-copy at the byte level (bit windows rarely start byte-aligned) but
// avoids decoding through any other encoding.
func (a *BoolArray) Slice(lo, hi int) (Array, error) {
	if lo < 0 || hi > a.length || lo > hi {
		return nil, ErrBounds(hi, a.length)
	}
	n := hi - lo
	out := make([]bool, n)
	for i := 0; i < n; i++ {
		out[i] = a.ValueUnchecked(lo + i)
	}
	return NewBoolArrayFromBools(out, a.validity.Slice(lo, hi)), nil
}

// TrueCount returns the number of true bits among the array's length
// positions (validity is not consulted; callers needing the Stats.TrueCount
// semantics over valid-only positions should combine with LogicalValidity).
func (a *BoolArray) TrueCount() int {
	if v, ok := a.stats.Get(TrueCount); ok {
		return v.(int)
	}
	n := 0
	for i := 0; i < a.length; i++ {
		if a.ValueUnchecked(i) {
			n++
		}
	}
	a.stats.Set(TrueCount, n)
	return n
}

// Invert flips every bit; null positions are preserved.
func (a *BoolArray) Invert() (Array, error) {
	out := make([]bool, a.length)
	for i := 0; i < a.length; i++ {
		out[i] = !a.ValueUnchecked(i)
	}
	return NewBoolArrayFromBools(out, a.validity), nil
}

// Take gathers idx.Len() positions from a.
func (a *BoolArray) Take(idx Array) (Array, error) { return genericTake(a, idx) }

// Filter keeps positions where mask is true.
func (a *BoolArray) Filter(mask Array) (Array, error) { return genericFilter(a, mask) }

// FillForward replaces each null with the most recently seen non-null.
func (a *BoolArray) FillForward() (Array, error) { return genericFillForward(a) }

// Compare evaluates op element-wise; the result is non-null with false at
// positions where either operand is null.
func (a *BoolArray) Compare(other Array, op CompareOp) (Array, error) {
	return genericCompare(a, other, op)
}

// BinaryBoolean implements And/Or/AndKleene/OrKleene. The non-Kleene
// variants propagate null whenever either operand is null; the Kleene
// variants let a dominating value (false for And, true for Or) win over a
// null on the other side.
func (a *BoolArray) BinaryBoolean(other Array, op BooleanOp) (Array, error) {
	b, ok := other.(*BoolArray)
	if !ok {
		canon, err := other.IntoCanonical()
		if err != nil {
			return nil, err
		}
		b, ok = canon.(*BoolArray)
		if !ok {
			return nil, ErrDTypeMismatch("binary_boolean", a.DType(), other.DType())
		}
	}
	if a.length != b.Len() {
		return nil, ErrLength("binary_boolean", b.Len(), a.length)
	}
	out := make([]bool, a.length)
	validBits := make([]bool, a.length)
	anyInvalid := false
	for i := 0; i < a.length; i++ {
		va, err := a.validity.IsValid(i)
		if err != nil {
			return nil, err
		}
		vb, err := b.validity.IsValid(i)
		if err != nil {
			return nil, err
		}
		av, bv := false, false
		if va {
			av = a.ValueUnchecked(i)
		}
		if vb {
			bv = b.ValueUnchecked(i)
		}
		switch op {
		case And:
			validBits[i] = va && vb
			out[i] = av && bv
		case Or:
			validBits[i] = va && vb
			out[i] = av || bv
		case AndKleene:
			switch {
			case (va && !av) || (vb && !bv):
				validBits[i] = true
				out[i] = false
			case !va || !vb:
				validBits[i] = false
			default:
				validBits[i] = true
				out[i] = true
			}
		case OrKleene:
			switch {
			case (va && av) || (vb && bv):
				validBits[i] = true
				out[i] = true
			case !va || !vb:
				validBits[i] = false
			default:
				validBits[i] = true
				out[i] = false
			}
		}
		if !validBits[i] {
			anyInvalid = true
		}
	}
	validity := NonNull()
	if anyInvalid {
		validity = FromBoolArray(NewBoolArrayFromBools(validBits, Valid()))
	} else if a.DType().Nullable() || b.DType().Nullable() {
		validity = Valid()
	}
	return NewBoolArrayFromBools(out, validity), nil
}
