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
	"encoding/binary"

	"github.com/doki23/vortex/dtype"
	"github.com/doki23/vortex/scalar"
	"github.com/doki23/vortex/vxerr"
)

// viewSize is the fixed width, in bytes, of one View entry: either
// length:u32|prefix:u8[4]|bufferIndex:u32|offset:u32, or
// length:u32|inline:u8[12].
const viewSize = 16

// inlineThreshold is the maximum string length stored entirely inline in
// a View entry.
const inlineThreshold = 12

func init() {
	RegisterEncoding(EncodingVarBin, func(dt dtype.DType, length int, buffers [][]byte, children []Array, metadata []byte) (Array, error) {
		if len(buffers) == 0 {
			return nil, ErrLength("varbin decode", 0, 1)
		}
		validity := NonNull()
		if dt.Nullable() {
			if len(children) != 1 {
				return nil, ErrLength("varbin validity child", len(children), 1)
			}
			b, ok := children[0].(*BoolArray)
			if !ok {
				return nil, ErrDTypeMismatch("varbin validity child", dt, dt)
			}
			validity = FromBoolArray(b)
		}
		return &VarBinArray{
			isUtf8:      dt.Kind() == dtype.KindUtf8,
			views:       buffers[0],
			dataBuffers: buffers[1:],
			length:      length,
			validity:    validity,
			stats:       NewStats(),
		}, nil
	})
}

// VarBinArray is the canonical physical form of Utf8 and Binary: a
// fixed-width View-entry buffer indexing one or more variable-width data
// buffers.
type VarBinArray struct {
	isUtf8      bool
	views       []byte
	dataBuffers [][]byte
	length      int
	validity    Validity
	stats       *Stats
}

func (a *VarBinArray) EncodingID() EncodingID { return EncodingVarBin }
func (a *VarBinArray) DType() dtype.DType {
	nullable := a.validity.Kind() != NonNullable
	if a.isUtf8 {
		return dtype.Utf8(nullable)
	}
	return dtype.Binary(nullable)
}
func (a *VarBinArray) Len() int { return a.length }
func (a *VarBinArray) Children() []Array {
	if a.validity.Kind() == ArrayBacked {
		return []Array{a.validity.BoolArray()}
	}
	return nil
}
func (a *VarBinArray) Buffer() []byte   { return a.views }
func (a *VarBinArray) Buffers() [][]byte {
	out := make([][]byte, 0, 1+len(a.dataBuffers))
	out = append(out, a.views)
	return append(out, a.dataBuffers...)
}
func (a *VarBinArray) Metadata() []byte          { return nil }
func (a *VarBinArray) Stats() *Stats             { return a.stats }
func (a *VarBinArray) LogicalValidity() Validity { return a.validity }
func (a *VarBinArray) IntoCanonical() (Array, error) { return a, nil }

// BytesAt returns the raw bytes for position i without consulting
// validity.
func (a *VarBinArray) BytesAt(i int) []byte {
	entry := a.views[i*viewSize : (i+1)*viewSize]
	n := binary.LittleEndian.Uint32(entry[0:4])
	if n <= inlineThreshold {
		return entry[4 : 4+n]
	}
	bufIdx := binary.LittleEndian.Uint32(entry[8:12])
	off := binary.LittleEndian.Uint32(entry[12:16])
	return a.dataBuffers[bufIdx][off : off+n]
}

// ScalarAt returns a typed null at invalid positions, else the decoded
// string/bytes value.
func (a *VarBinArray) ScalarAt(i int) (scalar.Scalar, error) {
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
	raw := a.BytesAt(i)
	if a.isUtf8 {
		return scalar.New(a.DType(), string(raw)), nil
	}
	cp := append([]byte(nil), raw...)
	return scalar.New(a.DType(), cp), nil
}

// Slice returns a VarBinArray over the logical window [lo, hi); the view
// entries are re-sliced without copying and the underlying data buffers
// are shared.
func (a *VarBinArray) Slice(lo, hi int) (Array, error) {
	if lo < 0 || hi > a.length || lo > hi {
		return nil, ErrBounds(hi, a.length)
	}
	return &VarBinArray{
		isUtf8:      a.isUtf8,
		views:       a.views[lo*viewSize : hi*viewSize],
		dataBuffers: a.dataBuffers,
		length:      hi - lo,
		validity:    a.validity.Slice(lo, hi),
		stats:       NewStats(),
	}, nil
}

// Take gathers idx.Len() positions from a.
func (a *VarBinArray) Take(idx Array) (Array, error) { return genericTake(a, idx) }

// Filter keeps positions where mask is true.
func (a *VarBinArray) Filter(mask Array) (Array, error) { return genericFilter(a, mask) }

// FillForward replaces each null with the most recently seen non-null.
func (a *VarBinArray) FillForward() (Array, error) { return genericFillForward(a) }

// Compare evaluates op element-wise (lexicographic for ordered
// comparisons); the result is non-null with false wherever either operand
// is null.
func (a *VarBinArray) Compare(other Array, op CompareOp) (Array, error) {
	return genericCompare(a, other, op)
}

// Like matches pattern (SQL-style '%' = any run of characters, '_' = any
// single character) against every Utf8 position; non-Utf8 arrays are
// Unsupported. Null positions produce a false (not null) bit, matching
// compare's null convention.
func (a *VarBinArray) Like(pattern string, opts LikeOptions) (Array, error) {
	if !a.isUtf8 {
		return nil, vxerr.E(vxerr.Unsupported, "like: only defined over utf8 arrays")
	}
	out := make([]bool, a.length)
	for i := 0; i < a.length; i++ {
		valid, err := a.validity.IsValid(i)
		if err != nil {
			return nil, err
		}
		if !valid {
			continue
		}
		out[i] = likeMatch(string(a.BytesAt(i)), pattern, opts.CaseInsensitive)
	}
	return NewBoolArrayFromBools(out, NonNull()), nil
}

// likeMatch implements SQL LIKE semantics with '%' and '_' wildcards via
// a standard O(len(s)*len(pattern)) dynamic-programming table.
func likeMatch(s, pattern string, caseInsensitive bool) bool {
	if caseInsensitive {
		s = toLowerASCII(s)
		pattern = toLowerASCII(pattern)
	}
	sr := []rune(s)
	pr := []rune(pattern)
	n, m := len(sr), len(pr)
	dp := make([][]bool, n+1)
	for i := range dp {
		dp[i] = make([]bool, m+1)
	}
	dp[0][0] = true
	for j := 1; j <= m; j++ {
		if pr[j-1] == '%' {
			dp[0][j] = dp[0][j-1]
		}
	}
	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			switch pr[j-1] {
			case '%':
				dp[i][j] = dp[i-1][j] || dp[i][j-1]
			case '_':
				dp[i][j] = dp[i-1][j-1]
			default:
				dp[i][j] = dp[i-1][j-1] && sr[i-1] == pr[j-1]
			}
		}
	}
	return dp[n][m]
}

func toLowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// VarBinBuilder incrementally constructs a canonical Utf8/Binary array,
// grounded on vortex-array/src/builders/utf8.rs: push values one at a
// time, then Finish to obtain the array. Small values are stored inline;
// larger ones are appended to a single growing data buffer.
type VarBinBuilder struct {
	isUtf8  bool
	views   []byte
	data    []byte
	valid   []bool
	any     bool // true once AppendNull has been called
	length  int
}

// NewVarBinBuilder returns a builder for the given kind (utf8 or binary).
func NewVarBinBuilder(isUtf8 bool) *VarBinBuilder {
	return &VarBinBuilder{isUtf8: isUtf8}
}

// Append adds a valid value.
func (b *VarBinBuilder) Append(v []byte) {
	var entry [viewSize]byte
	binary.LittleEndian.PutUint32(entry[0:4], uint32(len(v)))
	if len(v) <= inlineThreshold {
		copy(entry[4:4+len(v)], v)
	} else {
		copy(entry[4:8], v[:4])
		binary.LittleEndian.PutUint32(entry[8:12], 0)
		binary.LittleEndian.PutUint32(entry[12:16], uint32(len(b.data)))
		b.data = append(b.data, v...)
	}
	b.views = append(b.views, entry[:]...)
	b.valid = append(b.valid, true)
	b.length++
}

// AppendString is a convenience wrapper around Append for Utf8 builders.
func (b *VarBinBuilder) AppendString(s string) { b.Append([]byte(s)) }

// AppendNull adds an invalid (null) position.
func (b *VarBinBuilder) AppendNull() {
	var entry [viewSize]byte
	b.views = append(b.views, entry[:]...)
	b.valid = append(b.valid, false)
	b.any = true
	b.length++
}

// Finish returns the built array. If AppendNull was never called the
// result is non-nullable.
func (b *VarBinBuilder) Finish() *VarBinArray {
	validity := Validity(NonNull())
	if b.any {
		validity = FromBoolArray(NewBoolArrayFromBools(b.valid, NonNull()))
	}
	var dataBuffers [][]byte
	if len(b.data) > 0 {
		dataBuffers = [][]byte{b.data}
	}
	return &VarBinArray{
		isUtf8:      b.isUtf8,
		views:       b.views,
		dataBuffers: dataBuffers,
		length:      b.length,
		validity:    validity,
		stats:       NewStats(),
	}
}
