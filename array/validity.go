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

import "github.com/doki23/vortex/vxerr"

// ValidityKind tags the closed sum of ways an array may expose validity.
type ValidityKind uint8

const (
	// AllValid means every position is valid; no invalid positions exist.
	AllValid ValidityKind = iota
	// AllInvalid means every position is invalid (e.g. a NullArray).
	AllInvalid
	// NonNullable means the logical dtype forbids invalid positions; this
	// is stronger than AllValid in that it is also a static guarantee.
	NonNullable
	// ArrayBacked means validity is the bit-pattern of an explicit Bool
	// array child.
	ArrayBacked
)

// Validity is the computed-or-declared validity of an array. Every
// encoding derives its exposed validity solely from one of these forms: a
// declared validity child, or the encoding's stated rule.
type Validity struct {
	kind  ValidityKind
	array *BoolArray // only meaningful when kind == ArrayBacked
}

// Valid returns the AllValid validity.
func Valid() Validity { return Validity{kind: AllValid} }

// Invalid returns the AllInvalid validity.
func Invalid() Validity { return Validity{kind: AllInvalid} }

// NonNull returns the NonNullable validity.
func NonNull() Validity { return Validity{kind: NonNullable} }

// FromBoolArray returns an ArrayBacked validity backed by b, where a true
// bit means valid.
func FromBoolArray(b *BoolArray) Validity {
	return Validity{kind: ArrayBacked, array: b}
}

// Kind returns the validity's sum-type tag.
func (v Validity) Kind() ValidityKind { return v.kind }

// BoolArray returns the backing array; only meaningful when
// Kind() == ArrayBacked.
func (v Validity) BoolArray() *BoolArray { return v.array }

// IsValid reports whether logical position i is valid.
func (v Validity) IsValid(i int) (bool, error) {
	switch v.kind {
	case AllValid, NonNullable:
		return true, nil
	case AllInvalid:
		return false, nil
	case ArrayBacked:
		if i < 0 || i >= v.array.Len() {
			return false, vxerr.E(vxerr.OutOfBounds, "validity index %d out of bounds (len %d)", i, v.array.Len())
		}
		return v.array.ValueUnchecked(i), nil
	default:
		return false, vxerr.E(vxerr.InvalidArgument, "unknown validity kind %d", v.kind)
	}
}

// NullCount returns the number of invalid positions out of length total
// positions.
func (v Validity) NullCount(length int) int {
	switch v.kind {
	case AllValid, NonNullable:
		return 0
	case AllInvalid:
		return length
	case ArrayBacked:
		trues := v.array.TrueCount()
		return v.array.Len() - trues
	default:
		return 0
	}
}

// Slice restricts validity to the logical window [lo, hi).
func (v Validity) Slice(lo, hi int) Validity {
	if v.kind != ArrayBacked {
		return v
	}
	sliced, err := v.array.Slice(lo, hi)
	if err != nil {
		// Slice on a BoolArray cannot fail for a well-formed [lo,hi]; a
		// caller-supplied out-of-range window is a contract violation
		// already checked by the caller of Validity.Slice.
		panic(err)
	}
	return FromBoolArray(sliced.(*BoolArray))
}
