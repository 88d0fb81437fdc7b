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

// Package dtype describes the logical type system of Vortex arrays: a
// closed sum of variants where nullability is part of the type itself.
package dtype

import "fmt"

// PType enumerates the primitive physical numeric types. Width and
// signedness of PType drive bit-packing, FastLanes unpack strides, and
// frame-of-reference arithmetic throughout the encoding packages.
type PType uint8

const (
	U8 PType = iota
	U16
	U32
	U64
	I8
	I16
	I32
	I64
	F16
	F32
	F64
)

func (p PType) String() string {
	switch p {
	case U8:
		return "u8"
	case U16:
		return "u16"
	case U32:
		return "u32"
	case U64:
		return "u64"
	case I8:
		return "i8"
	case I16:
		return "i16"
	case I32:
		return "i32"
	case I64:
		return "i64"
	case F16:
		return "f16"
	case F32:
		return "f32"
	case F64:
		return "f64"
	default:
		return "ptype(?)"
	}
}

// BitWidth returns the in-memory width of one element of p, in bits.
func (p PType) BitWidth() int {
	switch p {
	case U8, I8:
		return 8
	case U16, I16, F16:
		return 16
	case U32, I32, F32:
		return 32
	case U64, I64, F64:
		return 64
	}
	panic("unreachable ptype")
}

// IsSigned reports whether p is one of the signed integer types.
func (p PType) IsSigned() bool {
	switch p {
	case I8, I16, I32, I64:
		return true
	default:
		return false
	}
}

// IsFloat reports whether p is one of the floating-point types.
func (p PType) IsFloat() bool {
	switch p {
	case F16, F32, F64:
		return true
	default:
		return false
	}
}

// Unsigned returns the unsigned PType of the same bit width as p. FastLanes
// bit-packing is always implemented over the unsigned variant of the
// declared primitive type; signed values are reinterpreted during
// pack/unpack.
func (p PType) Unsigned() PType {
	switch p {
	case I8:
		return U8
	case I16:
		return U16
	case I32:
		return U32
	case I64:
		return U64
	default:
		return p
	}
}

// Kind is the tag of the DType sum type.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindPrimitive
	KindUtf8
	KindBinary
	KindStruct
	KindList
	KindExtension
)

// DType is a logically-typed, nullability-carrying description of an
// array's elements. It is a closed sum: exactly one of the fields below is
// meaningful, selected by Kind.
type DType struct {
	kind      Kind
	nullable  bool
	ptype     PType    // KindPrimitive
	fields    []string // KindStruct
	children  []DType  // KindStruct (aligned with fields) or KindList (len 1, the element type)
	extName   string   // KindExtension
	extStore  *DType   // KindExtension: storage dtype
	extMeta   []byte   // KindExtension
}

// Null is the singleton null dtype.
func Null() DType { return DType{kind: KindNull} }

// Bool returns the boolean dtype with the given nullability.
func Bool(nullable bool) DType { return DType{kind: KindBool, nullable: nullable} }

// Primitive returns a numeric dtype of the given physical type and
// nullability.
func Primitive(p PType, nullable bool) DType {
	return DType{kind: KindPrimitive, ptype: p, nullable: nullable}
}

// Utf8 returns the UTF-8 string dtype.
func Utf8(nullable bool) DType { return DType{kind: KindUtf8, nullable: nullable} }

// Binary returns the raw-bytes dtype.
func Binary(nullable bool) DType { return DType{kind: KindBinary, nullable: nullable} }

// Struct returns a struct dtype with one field dtype per name. The two
// slices must be the same length.
func Struct(names []string, fieldTypes []DType, nullable bool) DType {
	if len(names) != len(fieldTypes) {
		panic("dtype.Struct: names and fieldTypes length mismatch")
	}
	return DType{kind: KindStruct, fields: names, children: fieldTypes, nullable: nullable}
}

// List returns a list dtype whose elements have the given dtype.
func List(element DType, nullable bool) DType {
	return DType{kind: KindList, children: []DType{element}, nullable: nullable}
}

// Extension returns an extension dtype carrying an opaque name, an
// underlying storage dtype, and opaque metadata.
func Extension(name string, storage DType, metadata []byte) DType {
	return DType{kind: KindExtension, extName: name, extStore: &storage, extMeta: metadata}
}

// Kind returns the sum-type tag.
func (d DType) Kind() Kind { return d.kind }

// Nullable reports whether positions of this dtype may be invalid. It is
// always false for Null (every position of Null is invalid by definition,
// tracked separately via Validity, not via this flag).
func (d DType) Nullable() bool { return d.nullable }

// PType returns the physical numeric type; only meaningful when
// Kind() == KindPrimitive.
func (d DType) PType() PType { return d.ptype }

// FieldNames returns the struct field names; only meaningful when
// Kind() == KindStruct.
func (d DType) FieldNames() []string { return d.fields }

// FieldTypes returns the struct field dtypes; only meaningful when
// Kind() == KindStruct.
func (d DType) FieldTypes() []DType { return d.children }

// Element returns the list element dtype; only meaningful when
// Kind() == KindList.
func (d DType) Element() DType { return d.children[0] }

// ExtensionName, ExtensionStorage and ExtensionMetadata are only meaningful
// when Kind() == KindExtension.
func (d DType) ExtensionName() string      { return d.extName }
func (d DType) ExtensionStorage() DType    { return *d.extStore }
func (d DType) ExtensionMetadata() []byte  { return d.extMeta }

// AsNonNullable returns d with Nullable() forced to false. Patch values are
// never themselves null, so patch value arrays are built against
// base.DType().AsNonNullable().
func (d DType) AsNonNullable() DType {
	d.nullable = false
	return d
}

// AsNullable returns d with Nullable() forced to true.
func (d DType) AsNullable() DType {
	d.nullable = true
	return d
}

// Equal reports whether d and o describe the same logical type, including
// nullability.
func (d DType) Equal(o DType) bool {
	if d.kind != o.kind || d.nullable != o.nullable {
		return false
	}
	switch d.kind {
	case KindPrimitive:
		return d.ptype == o.ptype
	case KindStruct:
		if len(d.fields) != len(o.fields) {
			return false
		}
		for i := range d.fields {
			if d.fields[i] != o.fields[i] || !d.children[i].Equal(o.children[i]) {
				return false
			}
		}
		return true
	case KindList:
		return d.Element().Equal(o.Element())
	case KindExtension:
		return d.extName == o.extName && d.extStore.Equal(*o.extStore)
	default:
		return true
	}
}

func (d DType) String() string {
	suffix := ""
	if d.nullable {
		suffix = "?"
	}
	switch d.kind {
	case KindNull:
		return "null"
	case KindBool:
		return "bool" + suffix
	case KindPrimitive:
		return d.ptype.String() + suffix
	case KindUtf8:
		return "utf8" + suffix
	case KindBinary:
		return "binary" + suffix
	case KindStruct:
		return fmt.Sprintf("struct(%v)%s", d.fields, suffix)
	case KindList:
		return fmt.Sprintf("list(%s)%s", d.Element(), suffix)
	case KindExtension:
		return fmt.Sprintf("ext(%s)%s", d.extName, suffix)
	default:
		return "dtype(?)"
	}
}
