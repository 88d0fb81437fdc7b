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

// Package array defines the uniform logical/physical array representation
// and the encoding registry/VTable dispatch mechanism. Every encoding
// (canonical or compressed) implements the Array interface plus whichever
// optional kernel interfaces (ScalarAtter, Slicer, Taker, ...) it can;
// package compute looks those up by type assertion and falls back to
// canonicalization when an encoding declines an operation.
package array

import (
	"sync"

	"github.com/doki23/vortex/dtype"
	"github.com/doki23/vortex/scalar"
)

// EncodingID is the stable 16-bit identifier every encoding declares, used
// both for runtime dispatch and for the on-disk Layout.encoding field.
type EncodingID uint16

const (
	EncodingNull EncodingID = iota
	EncodingBool
	EncodingPrimitive
	EncodingVarBin
	EncodingStruct
	EncodingList
	EncodingConstant
	EncodingBitPacked
	EncodingFrameOfReference
	EncodingRunEnd
	EncodingALP
	EncodingALPRD
	EncodingSparse
	EncodingChunked
	EncodingRoaringBool
	EncodingRoaringInt
)

// Array is the common interface every encoding implements. The payload
// behind it (children, buffer, metadata, stats) is encoding-specific;
// compute kernels interact with it only through this interface and the
// optional kernel interfaces declared below.
type Array interface {
	// EncodingID returns the stable id of the physical encoding.
	EncodingID() EncodingID
	// DType returns the logical dtype, nullability included.
	DType() dtype.DType
	// Len returns the semantic number of logical elements.
	Len() int
	// Children returns this array's child arrays, for the child-visitor
	// hook. Composite encodings (Struct, List, Chunked) return their
	// children here; an array-backed validity's Bool array is included as
	// a child; an encoding with neither returns nil.
	Children() []Array
	// Buffer returns the opaque byte payload, or nil if this encoding has
	// none.
	Buffer() []byte
	// Metadata returns the small scalar-parameter blob for this array
	// instance (e.g. bit width, offset, reference scalar encoding).
	Metadata() []byte
	// Stats returns this array's (possibly empty, lazily populated) stat
	// set.
	Stats() *Stats
	// LogicalValidity returns the computed validity view of this array.
	LogicalValidity() Validity
	// IntoCanonical decodes this array into the unique canonical physical
	// form for its DType. IntoCanonical is total: every encoding must
	// implement it, even if only by delegating to a child.
	IntoCanonical() (Array, error)
}

// ScalarAtter is implemented by encodings with a specialized scalar_at.
type ScalarAtter interface {
	ScalarAt(i int) (scalar.Scalar, error)
}

// Slicer is implemented by encodings with a specialized, ideally zero-copy
// slice.
type Slicer interface {
	Slice(lo, hi int) (Array, error)
}

// Taker is implemented by encodings with a specialized take.
type Taker interface {
	Take(idx Array) (Array, error)
}

// TakeUncheckedTaker is implemented by encodings offering an unchecked
// fast path that elides the bounds check; callers that pass out-of-range
// indices here invoke undefined behavior.
type TakeUncheckedTaker interface {
	TakeUnchecked(idx Array) (Array, error)
}

// Filterer is implemented by encodings with a specialized filter.
type Filterer interface {
	Filter(mask Array) (Array, error)
}

// CompareOp enumerates the comparison operators accepted by Comparer.
type CompareOp uint8

const (
	Eq CompareOp = iota
	NotEq
	Lt
	LtEq
	Gt
	GtEq
)

// Comparer is implemented by encodings with a specialized compare.
type Comparer interface {
	Compare(other Array, op CompareOp) (Array, error)
}

// NumericOp enumerates the binary_numeric operators.
type NumericOp uint8

const (
	Add NumericOp = iota
	Sub
	Mul
	Div
)

// BinaryNumericer is implemented by encodings with a specialized
// binary_numeric.
type BinaryNumericer interface {
	BinaryNumeric(other Array, op NumericOp) (Array, error)
}

// BooleanOp enumerates the binary_boolean operators.
type BooleanOp uint8

const (
	And BooleanOp = iota
	Or
	AndKleene
	OrKleene
)

// BinaryBooleaner is implemented by encodings with a specialized
// binary_boolean.
type BinaryBooleaner interface {
	BinaryBoolean(other Array, op BooleanOp) (Array, error)
}

// Side selects which edge search_sorted anchors to when duplicate values
// are present.
type Side uint8

const (
	Left Side = iota
	Right
)

// SearchResult is the Index/Found tag search_sorted returns.
type SearchResult struct {
	Index int
	Found bool
}

// SearchSorteder is implemented by encodings with a specialized
// search_sorted; the array must be sorted.
type SearchSorteder interface {
	SearchSorted(value scalar.Scalar, side Side) (SearchResult, error)
}

// Caster is implemented by encodings with a specialized cast. Only
// same-kind (numeric-to-numeric) casts are supported.
type Caster interface {
	Cast(dt dtype.DType) (Array, error)
}

// Inverter is implemented by Bool-kind encodings with a specialized
// invert.
type Inverter interface {
	Invert() (Array, error)
}

// FillForwarder is implemented by encodings with a specialized
// fill_forward.
type FillForwarder interface {
	FillForward() (Array, error)
}

// LikeOptions configures the Like kernel's glob-ish matching.
type LikeOptions struct {
	// CaseInsensitive requests ASCII case-insensitive matching.
	CaseInsensitive bool
}

// LikeMatcher is implemented by Utf8-kind encodings with a specialized
// like.
type LikeMatcher interface {
	Like(pattern string, opts LikeOptions) (Array, error)
}

// decoderRegistry maps an EncodingID to the function that decodes a
// serialized array from a file-format layout payload. Each encoding
// package registers itself from an init() func, the same pattern the
// standard library's image package uses for format registration.
var (
	registryMu sync.RWMutex
	registry   = map[EncodingID]DecodeFunc{}
)

// DecodeFunc reconstructs an Array of the given dtype and length from a
// leaf/composite layout's buffers, children, and metadata. children have
// already been decoded recursively by the caller (the file reader).
type DecodeFunc func(dt dtype.DType, length int, buffers [][]byte, children []Array, metadata []byte) (Array, error)

// RegisterEncoding associates id with the function used to decode arrays
// of that encoding from file-format layouts. It panics on duplicate
// registration, matching image.RegisterFormat's contract.
func RegisterEncoding(id EncodingID, fn DecodeFunc) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[id]; exists {
		panic("array: duplicate encoding registration")
	}
	registry[id] = fn
}

// Decode looks up id's registered DecodeFunc and invokes it.
func Decode(id EncodingID, dt dtype.DType, length int, buffers [][]byte, children []Array, metadata []byte) (Array, error) {
	registryMu.RLock()
	fn, ok := registry[id]
	registryMu.RUnlock()
	if !ok {
		return nil, ErrUnknownEncoding(id)
	}
	return fn(dt, length, buffers, children, metadata)
}
