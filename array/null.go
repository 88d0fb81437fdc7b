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
	"github.com/doki23/vortex/vxerr"
)

func init() {
	RegisterEncoding(EncodingNull, func(dt dtype.DType, length int, buffers [][]byte, children []Array, metadata []byte) (Array, error) {
		return NewNullArray(length), nil
	})
}

// NullArray is the canonical form of the Null dtype: no children, no
// buffer; every position is invalid.
type NullArray struct {
	length int
	stats  *Stats
}

// NewNullArray returns a NullArray of the given length.
func NewNullArray(length int) *NullArray {
	return &NullArray{length: length, stats: NewStats()}
}

func (a *NullArray) EncodingID() EncodingID       { return EncodingNull }
func (a *NullArray) DType() dtype.DType           { return dtype.Null() }
func (a *NullArray) Len() int                     { return a.length }
func (a *NullArray) Children() []Array            { return nil }
func (a *NullArray) Buffer() []byte               { return nil }
func (a *NullArray) Metadata() []byte             { return nil }
func (a *NullArray) Stats() *Stats                { return a.stats }
func (a *NullArray) LogicalValidity() Validity    { return Invalid() }
func (a *NullArray) IntoCanonical() (Array, error) { return a, nil }

// ScalarAt always returns a typed null.
func (a *NullArray) ScalarAt(i int) (scalar.Scalar, error) {
	if i < 0 || i >= a.length {
		return scalar.Scalar{}, ErrBounds(i, a.length)
	}
	return scalar.Null(dtype.Null()), nil
}

// Slice returns a shorter NullArray; always zero-copy since there is no
// payload to share.
func (a *NullArray) Slice(lo, hi int) (Array, error) {
	if lo < 0 || hi > a.length || lo > hi {
		return nil, ErrBounds(hi, a.length)
	}
	return NewNullArray(hi - lo), nil
}

// Take returns a NullArray of length idx.Len(): every gathered position is
// null regardless of index value (still bounds-checked).
func (a *NullArray) Take(idx Array) (Array, error) {
	n := idx.Len()
	for k := 0; k < n; k++ {
		iv, err := scalarAtAny(idx, k)
		if err != nil {
			return nil, err
		}
		pos, ok := iv.AsI64()
		if !ok || pos < 0 || int(pos) >= a.length {
			return nil, ErrBounds(int(pos), a.length)
		}
	}
	return NewNullArray(n), nil
}

// Filter returns a NullArray of length equal to mask's true count.
func (a *NullArray) Filter(mask Array) (Array, error) {
	if mask.Len() != a.length {
		return nil, ErrLength("filter", mask.Len(), a.length)
	}
	mb, ok := mask.(*BoolArray)
	if !ok {
		canon, err := mask.IntoCanonical()
		if err != nil {
			return nil, err
		}
		mb, ok = canon.(*BoolArray)
		if !ok {
			return nil, vxerr.E(vxerr.Unsupported, "filter: mask canonical form is not Bool")
		}
	}
	n := 0
	for i := 0; i < mb.Len(); i++ {
		valid, err := mb.LogicalValidity().IsValid(i)
		if err == nil && valid && mb.ValueUnchecked(i) {
			n++
		}
	}
	return NewNullArray(n), nil
}
