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

package scalar

import (
	"math"
	"testing"

	"github.com/doki23/vortex/dtype"
)

func TestNullIsInvalid(t *testing.T) {
	s := Null(dtype.Primitive(dtype.I32, false))
	if s.Valid {
		t.Fatal("Null() scalar must be Valid == false")
	}
	if !s.DT.Nullable() {
		t.Fatal("Null() should force the dtype nullable")
	}
}

func TestAsF64(t *testing.T) {
	cases := []struct {
		s    Scalar
		want float64
		ok   bool
	}{
		{F64(3.5), 3.5, true},
		{I64(7), 7, true},
		{New(dtype.Primitive(dtype.U32, false), uint32(9)), 9, true},
		{Bool(true), 0, false},
		{Null(dtype.Primitive(dtype.F64, false)), 0, false},
	}
	for i, c := range cases {
		got, ok := c.s.AsF64()
		if ok != c.ok {
			t.Errorf("case %d: ok = %v, want %v", i, ok, c.ok)
			continue
		}
		if ok && got != c.want {
			t.Errorf("case %d: AsF64() = %v, want %v", i, got, c.want)
		}
	}
}

func TestAsI64AsU64(t *testing.T) {
	s := F64(3.9)
	i, ok := s.AsI64()
	if !ok || i != 3 {
		t.Fatalf("AsI64() = (%d, %v), want (3, true)", i, ok)
	}
	u, ok := s.AsU64()
	if !ok || u != 3 {
		t.Fatalf("AsU64() = (%d, %v), want (3, true)", u, ok)
	}
	if _, ok := Bool(true).AsI64(); ok {
		t.Fatal("Bool scalar should not convert via AsI64")
	}
}

func TestEqual(t *testing.T) {
	a := I64(5)
	b := I64(5)
	c := I64(6)
	if !a.Equal(b) {
		t.Error("expected a.Equal(b)")
	}
	if a.Equal(c) {
		t.Error("did not expect a.Equal(c)")
	}

	nullA := Null(dtype.Primitive(dtype.I64, true))
	nullB := Null(dtype.Primitive(dtype.I64, true))
	if !nullA.Equal(nullB) {
		t.Error("two null scalars of the same dtype should be equal regardless of Value")
	}

	nan1 := F64(math.NaN())
	nan2 := F64(math.NaN())
	if nan1.Equal(nan2) {
		t.Error("NaN scalar must not equal NaN scalar, matching IEEE-754")
	}
}

func TestString(t *testing.T) {
	if got, want := I64(42).String(), "42"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	null := Null(dtype.Bool(true))
	if got := null.String(); got == "" {
		t.Error("null scalar String() should not be empty")
	}
}
