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

package dtype

import "testing"

func TestPTypeBitWidth(t *testing.T) {
	cases := []struct {
		p PType
		w int
	}{
		{U8, 8}, {I8, 8},
		{U16, 16}, {I16, 16}, {F16, 16},
		{U32, 32}, {I32, 32}, {F32, 32},
		{U64, 64}, {I64, 64}, {F64, 64},
	}
	for _, c := range cases {
		if got := c.p.BitWidth(); got != c.w {
			t.Errorf("%s.BitWidth() = %d, want %d", c.p, got, c.w)
		}
	}
}

func TestPTypeUnsigned(t *testing.T) {
	cases := []struct{ in, want PType }{
		{I8, U8}, {I16, U16}, {I32, U32}, {I64, U64},
		{U8, U8}, {F32, F32},
	}
	for _, c := range cases {
		if got := c.in.Unsigned(); got != c.want {
			t.Errorf("%s.Unsigned() = %s, want %s", c.in, got, c.want)
		}
	}
}

func TestPTypeIsSignedIsFloat(t *testing.T) {
	for _, p := range []PType{I8, I16, I32, I64} {
		if !p.IsSigned() {
			t.Errorf("%s: expected IsSigned", p)
		}
		if p.IsFloat() {
			t.Errorf("%s: did not expect IsFloat", p)
		}
	}
	for _, p := range []PType{F16, F32, F64} {
		if p.IsSigned() {
			t.Errorf("%s: did not expect IsSigned", p)
		}
		if !p.IsFloat() {
			t.Errorf("%s: expected IsFloat", p)
		}
	}
	for _, p := range []PType{U8, U16, U32, U64} {
		if p.IsSigned() || p.IsFloat() {
			t.Errorf("%s: expected neither signed nor float", p)
		}
	}
}

func TestNullableRoundTrip(t *testing.T) {
	d := Primitive(I32, false)
	if d.Nullable() {
		t.Fatal("expected non-nullable")
	}
	n := d.AsNullable()
	if !n.Nullable() {
		t.Fatal("AsNullable did not set nullable")
	}
	if n.AsNonNullable().Nullable() {
		t.Fatal("AsNonNullable did not clear nullable")
	}
	// original unaffected (value semantics)
	if d.Nullable() {
		t.Fatal("AsNullable mutated the receiver")
	}
}

func TestEqual(t *testing.T) {
	a := Struct([]string{"x", "y"}, []DType{Primitive(I32, false), Utf8(true)}, false)
	b := Struct([]string{"x", "y"}, []DType{Primitive(I32, false), Utf8(true)}, false)
	c := Struct([]string{"x", "y"}, []DType{Primitive(I32, false), Utf8(false)}, false)
	if !a.Equal(b) {
		t.Error("expected a.Equal(b)")
	}
	if a.Equal(c) {
		t.Error("did not expect a.Equal(c)")
	}

	l1 := List(Primitive(F64, true), false)
	l2 := List(Primitive(F64, true), false)
	l3 := List(Primitive(F64, false), false)
	if !l1.Equal(l2) {
		t.Error("expected l1.Equal(l2)")
	}
	if l1.Equal(l3) {
		t.Error("did not expect l1.Equal(l3), element nullability differs")
	}

	ext1 := Extension("geo.point", Primitive(F64, false), []byte{1})
	ext2 := Extension("geo.point", Primitive(F64, false), []byte{2})
	if !ext1.Equal(ext2) {
		t.Error("expected extension equality to ignore metadata bytes")
	}
}

func TestStructPanicsOnLengthMismatch(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on mismatched names/fieldTypes length")
		}
	}()
	Struct([]string{"a", "b"}, []DType{Primitive(I32, false)}, false)
}

func TestString(t *testing.T) {
	cases := []struct {
		d    DType
		want string
	}{
		{Null(), "null"},
		{Bool(false), "bool"},
		{Bool(true), "bool?"},
		{Primitive(I64, false), "i64"},
		{Primitive(F32, true), "f32?"},
		{Utf8(false), "utf8"},
		{Binary(true), "binary?"},
	}
	for _, c := range cases {
		if got := c.d.String(); got != c.want {
			t.Errorf("String() = %q, want %q", got, c.want)
		}
	}
}
