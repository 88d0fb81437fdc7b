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

package vfile

import (
	"reflect"
	"testing"

	"github.com/doki23/vortex/dtype"
)

func TestSchemaEncodeDecodeRoundTripsPrimitives(t *testing.T) {
	s := Schema{
		Names:  []string{"id", "name", "score"},
		DTypes: []dtype.DType{dtype.Primitive(dtype.I64, false), dtype.Utf8(true), dtype.Primitive(dtype.F64, true)},
	}
	got, err := DecodeSchema(EncodeSchema(s))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got.Names, s.Names) {
		t.Errorf("Names = %v, want %v", got.Names, s.Names)
	}
	for i := range s.DTypes {
		if got.DTypes[i].Kind() != s.DTypes[i].Kind() {
			t.Errorf("DTypes[%d].Kind() = %v, want %v", i, got.DTypes[i].Kind(), s.DTypes[i].Kind())
		}
		if got.DTypes[i].Nullable() != s.DTypes[i].Nullable() {
			t.Errorf("DTypes[%d].Nullable() = %v, want %v", i, got.DTypes[i].Nullable(), s.DTypes[i].Nullable())
		}
	}
}

func TestSchemaEncodeDecodeRoundTripsNestedStruct(t *testing.T) {
	inner := dtype.Struct([]string{"x", "y"}, []dtype.DType{
		dtype.Primitive(dtype.I32, false),
		dtype.Primitive(dtype.I32, true),
	}, false)
	s := Schema{
		Names:  []string{"point", "tags"},
		DTypes: []dtype.DType{inner, dtype.List(dtype.Utf8(false), true)},
	}
	got, err := DecodeSchema(EncodeSchema(s))
	if err != nil {
		t.Fatal(err)
	}
	if got.DTypes[0].Kind() != dtype.KindStruct {
		t.Fatalf("DTypes[0].Kind() = %v, want struct", got.DTypes[0].Kind())
	}
	if !reflect.DeepEqual(got.DTypes[0].FieldNames(), []string{"x", "y"}) {
		t.Errorf("nested struct field names = %v, want [x y]", got.DTypes[0].FieldNames())
	}
	if got.DTypes[1].Kind() != dtype.KindList {
		t.Fatalf("DTypes[1].Kind() = %v, want list", got.DTypes[1].Kind())
	}
	if got.DTypes[1].Element().Kind() != dtype.KindUtf8 {
		t.Errorf("list element kind = %v, want utf8", got.DTypes[1].Element().Kind())
	}
}

func TestSchemaEncodeDecodeRoundTripsExtension(t *testing.T) {
	ext := dtype.Extension("timestamp_ms", dtype.Primitive(dtype.I64, false), []byte("utc"))
	s := Schema{Names: []string{"ts"}, DTypes: []dtype.DType{ext}}
	got, err := DecodeSchema(EncodeSchema(s))
	if err != nil {
		t.Fatal(err)
	}
	if got.DTypes[0].ExtensionName() != "timestamp_ms" {
		t.Errorf("ExtensionName() = %q, want timestamp_ms", got.DTypes[0].ExtensionName())
	}
	if string(got.DTypes[0].ExtensionMetadata()) != "utc" {
		t.Errorf("ExtensionMetadata() = %q, want utc", got.DTypes[0].ExtensionMetadata())
	}
}

func TestDecodeSchemaRejectsTruncatedInput(t *testing.T) {
	s := Schema{Names: []string{"a"}, DTypes: []dtype.DType{dtype.Primitive(dtype.I64, false)}}
	encoded := EncodeSchema(s)
	if _, err := DecodeSchema(encoded[:len(encoded)-2]); err == nil {
		t.Fatal("expected truncated schema bytes to fail decoding")
	}
}
