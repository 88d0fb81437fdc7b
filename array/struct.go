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
	RegisterEncoding(EncodingStruct, func(dt dtype.DType, length int, buffers [][]byte, children []Array, metadata []byte) (Array, error) {
		names := dt.FieldNames()
		if len(children) != len(names) && len(children) != len(names)+1 {
			return nil, ErrLength("struct children", len(children), len(names))
		}
		validity := NonNull()
		fields := children
		if dt.Nullable() {
			b, ok := children[len(children)-1].(*BoolArray)
			if !ok {
				return nil, ErrDTypeMismatch("struct validity child", dt, dt)
			}
			validity = FromBoolArray(b)
			fields = children[:len(children)-1]
		}
		return NewStructArray(names, fields, length, validity), nil
	})
}

// StructArray is the canonical physical form of the Struct dtype: one
// child array per field, all sharing the struct's length, plus validity.
type StructArray struct {
	names    []string
	fields   []Array
	length   int
	validity Validity
	stats    *Stats
}

// NewStructArray returns a StructArray; len(names) must equal len(fields)
// and every field must have length == length.
func NewStructArray(names []string, fields []Array, length int, validity Validity) *StructArray {
	if len(names) != len(fields) {
		panic("array.NewStructArray: names/fields length mismatch")
	}
	for _, f := range fields {
		if f.Len() != length {
			panic("array.NewStructArray: field length does not match struct length")
		}
	}
	return &StructArray{names: names, fields: fields, length: length, validity: validity, stats: NewStats()}
}

func (a *StructArray) EncodingID() EncodingID { return EncodingStruct }
func (a *StructArray) DType() dtype.DType {
	types := make([]dtype.DType, len(a.fields))
	for i, f := range a.fields {
		types[i] = f.DType()
	}
	return dtype.Struct(a.names, types, a.validity.Kind() != NonNullable)
}
func (a *StructArray) Len() int { return a.length }
func (a *StructArray) Children() []Array {
	out := append([]Array(nil), a.fields...)
	if a.validity.Kind() == ArrayBacked {
		out = append(out, a.validity.BoolArray())
	}
	return out
}
func (a *StructArray) Buffer() []byte            { return nil }
func (a *StructArray) Metadata() []byte          { return nil }
func (a *StructArray) Stats() *Stats             { return a.stats }
func (a *StructArray) LogicalValidity() Validity { return a.validity }
func (a *StructArray) IntoCanonical() (Array, error) { return a, nil }

// Field returns the child array for the named field, or nil if absent.
func (a *StructArray) Field(name string) Array {
	for i, n := range a.names {
		if n == name {
			return a.fields[i]
		}
	}
	return nil
}

// ScalarAt returns a struct-valued scalar (one field scalar per field, in
// field order) or a typed null if position i is invalid.
func (a *StructArray) ScalarAt(i int) (scalar.Scalar, error) {
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
	fieldScalars := make([]scalar.Scalar, len(a.fields))
	for fi, f := range a.fields {
		s, err := scalarAtAny(f, i)
		if err != nil {
			return scalar.Scalar{}, err
		}
		fieldScalars[fi] = s
	}
	return scalar.New(a.DType(), fieldScalars), nil
}

// Slice slices every field and the validity child to the same window;
// zero-copy whenever the fields' own Slice is.
func (a *StructArray) Slice(lo, hi int) (Array, error) {
	if lo < 0 || hi > a.length || lo > hi {
		return nil, ErrBounds(hi, a.length)
	}
	sliced := make([]Array, len(a.fields))
	for i, f := range a.fields {
		s, err := sliceAny(f, lo, hi)
		if err != nil {
			return nil, err
		}
		sliced[i] = s
	}
	return NewStructArray(a.names, sliced, hi-lo, a.validity.Slice(lo, hi)), nil
}

// Take gathers idx.Len() positions from a.
func (a *StructArray) Take(idx Array) (Array, error) { return genericTake(a, idx) }

// Filter keeps positions where mask is true.
func (a *StructArray) Filter(mask Array) (Array, error) { return genericFilter(a, mask) }

// scalarAtAny and sliceAny are small local helpers that use the
// ScalarAtter/Slicer interfaces directly, canonicalize and retry on a
// decline, and report Unsupported if the canonical form declines too;
// callers outside this package should go through package compute. They
// duplicate compute's rule locally because importing compute here would
// create an import cycle.
func scalarAtAny(a Array, i int) (scalar.Scalar, error) {
	if sa, ok := a.(ScalarAtter); ok {
		return sa.ScalarAt(i)
	}
	canon, err := a.IntoCanonical()
	if err != nil {
		return scalar.Scalar{}, err
	}
	if sa, ok := canon.(ScalarAtter); ok {
		return sa.ScalarAt(i)
	}
	return scalar.Scalar{}, vxerr.E(vxerr.Unsupported, "scalar_at: no implementation for encoding %d or its canonical form", a.EncodingID())
}

func sliceAny(a Array, lo, hi int) (Array, error) {
	if s, ok := a.(Slicer); ok {
		return s.Slice(lo, hi)
	}
	canon, err := a.IntoCanonical()
	if err != nil {
		return nil, err
	}
	if s, ok := canon.(Slicer); ok {
		return s.Slice(lo, hi)
	}
	return nil, vxerr.E(vxerr.Unsupported, "slice: no implementation for encoding %d or its canonical form", a.EncodingID())
}
