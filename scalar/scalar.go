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

// Package scalar holds the single-value result type of scalar_at and the
// payload of Constant arrays.
package scalar

import (
	"fmt"
	"math"

	"github.com/doki23/vortex/dtype"
)

// Scalar is a logical-dtype-tagged value. A null scalar carries Valid ==
// false and an arbitrary (unused) Value.
type Scalar struct {
	DT    dtype.DType
	Valid bool
	// Value holds the payload, interpreted according to DT.Kind():
	// KindBool -> bool, KindPrimitive -> one of the Go numeric types
	// matching DT.PType() bit width/signedness, KindUtf8 -> string,
	// KindBinary -> []byte, KindStruct -> []Scalar (field order),
	// KindList -> []Scalar.
	Value any
}

// Null returns an invalid (SQL-null) scalar of dtype dt.
func Null(dt dtype.DType) Scalar {
	return Scalar{DT: dt.AsNullable(), Valid: false}
}

// New returns a valid scalar of dtype dt wrapping value.
func New(dt dtype.DType, value any) Scalar {
	return Scalar{DT: dt, Valid: true, Value: value}
}

// Bool returns a valid boolean scalar.
func Bool(v bool) Scalar { return New(dtype.Bool(false), v) }

// F64 returns a value, treated as the float64 Value of a F64 Primitive
// scalar; numeric kernels downcast to the requested ptype as needed.
func F64(v float64) Scalar { return New(dtype.Primitive(dtype.F64, false), v) }

// I64 returns a valid I64 primitive scalar.
func I64(v int64) Scalar { return New(dtype.Primitive(dtype.I64, false), v) }

// U64 returns a valid U64 primitive scalar.
func U64(v uint64) Scalar { return New(dtype.Primitive(dtype.U64, false), v) }

// AsF64 converts the scalar's numeric Value to float64, for encodings
// (ALP, frame-of-reference) that operate uniformly on float math.
func (s Scalar) AsF64() (float64, bool) {
	if !s.Valid {
		return 0, false
	}
	switch v := s.Value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case int16:
		return float64(v), true
	case int8:
		return float64(v), true
	case uint64:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint8:
		return float64(v), true
	default:
		return 0, false
	}
}

// AsI64 converts the scalar's numeric Value to int64, truncating floats.
func (s Scalar) AsI64() (int64, bool) {
	if !s.Valid {
		return 0, false
	}
	switch v := s.Value.(type) {
	case int64:
		return v, true
	case int32:
		return int64(v), true
	case int16:
		return int64(v), true
	case int8:
		return int64(v), true
	case uint64:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint8:
		return int64(v), true
	case float64:
		return int64(v), true
	case float32:
		return int64(v), true
	default:
		return 0, false
	}
}

// AsU64 converts the scalar's numeric Value to uint64.
func (s Scalar) AsU64() (uint64, bool) {
	i, ok := s.AsI64()
	if !ok {
		return 0, false
	}
	return uint64(i), true
}

// Equal reports whether two scalars have the same dtype kind, validity,
// and (if valid) equal values. It is used by compare's Eq operator and by
// tests; NaN != NaN, matching IEEE-754 float comparison.
func (s Scalar) Equal(o Scalar) bool {
	if s.Valid != o.Valid {
		return false
	}
	if !s.Valid {
		return true
	}
	switch a := s.Value.(type) {
	case float64:
		b, ok := o.Value.(float64)
		return ok && a == b && !math.IsNaN(a)
	case float32:
		b, ok := o.Value.(float32)
		return ok && a == b && !math.IsNaN(float64(a))
	default:
		return s.Value == o.Value
	}
}

func (s Scalar) String() string {
	if !s.Valid {
		return fmt.Sprintf("null(%s)", s.DT)
	}
	return fmt.Sprintf("%v", s.Value)
}
