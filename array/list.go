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

func init() {
	RegisterEncoding(EncodingList, func(dt dtype.DType, length int, buffers [][]byte, children []Array, metadata []byte) (Array, error) {
		want := 2
		if dt.Nullable() {
			want = 3
		}
		if len(children) != want {
			return nil, ErrLength("list children", len(children), want)
		}
		offsets, ok := children[0].(*PrimitiveArray)
		if !ok || offsets.PType() != dtype.U64 {
			return nil, ErrDTypeMismatch("list offsets child", dt, dt)
		}
		validity := NonNull()
		if dt.Nullable() {
			b, ok := children[2].(*BoolArray)
			if !ok {
				return nil, ErrDTypeMismatch("list validity child", dt, dt)
			}
			validity = FromBoolArray(b)
		}
		return NewListArray(offsets, children[1], length, validity), nil
	})
}

// ListArray is the canonical physical form of the List dtype: a
// monotonically non-decreasing U64 offsets child of length list_len+1, an
// elements child of length last-offset, and validity. A valid empty list
// has offsets[i] == offsets[i+1].
type ListArray struct {
	offsets  *PrimitiveArray
	elements Array
	length   int
	validity Validity
	stats    *Stats
}

// NewListArray returns a ListArray. offsets must have length+1 elements.
func NewListArray(offsets *PrimitiveArray, elements Array, length int, validity Validity) *ListArray {
	if offsets.Len() != length+1 {
		panic("array.NewListArray: offsets length must be length+1")
	}
	return &ListArray{offsets: offsets, elements: elements, length: length, validity: validity, stats: NewStats()}
}

func (a *ListArray) EncodingID() EncodingID { return EncodingList }
func (a *ListArray) DType() dtype.DType {
	return dtype.List(a.elements.DType(), a.validity.Kind() != NonNullable)
}
func (a *ListArray) Len() int { return a.length }
func (a *ListArray) Children() []Array {
	out := []Array{a.offsets, a.elements}
	if a.validity.Kind() == ArrayBacked {
		out = append(out, a.validity.BoolArray())
	}
	return out
}
func (a *ListArray) Buffer() []byte            { return nil }
func (a *ListArray) Metadata() []byte          { return nil }
func (a *ListArray) Stats() *Stats             { return a.stats }
func (a *ListArray) LogicalValidity() Validity { return a.validity }
func (a *ListArray) IntoCanonical() (Array, error) { return a, nil }

// Bounds returns the [start, end) element-child window for logical list i.
func (a *ListArray) Bounds(i int) (int, int) {
	return int(a.offsets.U64At(i)), int(a.offsets.U64At(i + 1))
}

// ScalarAt returns a list-valued scalar ([]scalar.Scalar, possibly empty)
// or a typed null if position i is invalid.
func (a *ListArray) ScalarAt(i int) (scalar.Scalar, error) {
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
	start, end := a.Bounds(i)
	out := make([]scalar.Scalar, 0, end-start)
	for j := start; j < end; j++ {
		s, err := scalarAtAny(a.elements, j)
		if err != nil {
			return scalar.Scalar{}, err
		}
		out = append(out, s)
	}
	return scalar.New(a.DType(), out), nil
}

// Slice returns a ListArray over the logical window [lo, hi). The
// offsets child is re-sliced (zero-copy); the elements child is left
// whole and re-addressed through the rebased offsets window, avoiding a
// copy of the (possibly large) elements array.
func (a *ListArray) Slice(lo, hi int) (Array, error) {
	if lo < 0 || hi > a.length || lo > hi {
		return nil, ErrBounds(hi, a.length)
	}
	offSlice, err := a.offsets.Slice(lo, hi+1)
	if err != nil {
		return nil, err
	}
	return &ListArray{
		offsets:  offSlice.(*PrimitiveArray),
		elements: a.elements,
		length:   hi - lo,
		validity: a.validity.Slice(lo, hi),
		stats:    NewStats(),
	}, nil
}

// Take gathers idx.Len() positions from a.
func (a *ListArray) Take(idx Array) (Array, error) { return genericTake(a, idx) }

// Filter keeps positions where mask is true.
func (a *ListArray) Filter(mask Array) (Array, error) { return genericFilter(a, mask) }
