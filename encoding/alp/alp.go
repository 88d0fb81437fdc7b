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

// Package alp implements Adaptive Lossless floating Point encoding: each
// float is represented as round(x * 10^e * 10^f) for one fixed (e, f)
// pair chosen for the whole array, with an integer array plus patches
// for values that do not round-trip exactly.
package alp

import (
	"math"

	"github.com/doki23/vortex/array"
	"github.com/doki23/vortex/dtype"
	"github.com/doki23/vortex/patches"
	"github.com/doki23/vortex/scalar"
	"github.com/doki23/vortex/vxerr"
)

// exponents10 holds powers of ten up to the range ALP needs for f32/f64
// fraction digits.
var exponents10 = [...]float64{
	1e0, 1e1, 1e2, 1e3, 1e4, 1e5, 1e6, 1e7, 1e8, 1e9,
	1e10, 1e11, 1e12, 1e13, 1e14, 1e15, 1e16, 1e17, 1e18,
}

func pow10(e int) float64 {
	if e >= 0 && e < len(exponents10) {
		return exponents10[e]
	}
	return math.Pow(10, float64(e))
}

func init() {
	array.RegisterEncoding(array.EncodingALP, func(dt dtype.DType, length int, buffers [][]byte, children []array.Array, metadata []byte) (array.Array, error) {
		if len(metadata) < 2 {
			return nil, vxerr.E(vxerr.InvalidSerde, "alp decode: metadata too short")
		}
		if len(children) < 1 {
			return nil, vxerr.E(vxerr.InvalidSerde, "alp decode: expected integers child")
		}
		ints, ok := children[0].(*array.PrimitiveArray)
		if !ok {
			return nil, vxerr.E(vxerr.InvalidSerde, "alp decode: integers child must be primitive")
		}
		e := int(int8(metadata[0]))
		f := int(int8(metadata[1]))
		var pat *patches.Patches
		ci := 1
		if len(children) > ci {
			indicesArr, ok := children[ci].(*array.PrimitiveArray)
			if ok && indicesArr.PType() == dtype.U64 {
				ci++
				valuesArr := children[ci]
				indices := make([]uint64, indicesArr.Len())
				for i := range indices {
					indices[i] = indicesArr.U64At(i)
				}
				var err error
				pat, err = patches.New(length, indices, valuesArr)
				if err != nil {
					return nil, err
				}
			}
		}
		return NewArray(dt.PType(), ints, e, f, pat), nil
	})
}

// Array is the ALP encoding.
type Array struct {
	ptype   dtype.PType // F32 or F64
	ints    *array.PrimitiveArray
	e, f    int
	patches *patches.Patches
	stats   *array.Stats
}

// NewArray constructs an ALP array. ints holds round(x*10^e*10^f) as
// signed integers (I32 for F32, I64 for F64).
func NewArray(ptype dtype.PType, ints *array.PrimitiveArray, e, f int, pat *patches.Patches) *Array {
	return &Array{ptype: ptype, ints: ints, e: e, f: f, patches: pat, stats: array.NewStats()}
}

func (a *Array) EncodingID() array.EncodingID { return array.EncodingALP }
func (a *Array) DType() dtype.DType {
	return dtype.Primitive(a.ptype, a.ints.DType().Nullable())
}
func (a *Array) Len() int { return a.ints.Len() }
func (a *Array) Children() []array.Array {
	out := []array.Array{a.ints}
	if a.patches != nil {
		idx := make([]uint64, a.patches.Len())
		copy(idx, a.patches.Indices)
		buf := make([]byte, 0, len(idx)*8)
		for _, v := range idx {
			buf = array.AppendRawU64(buf, dtype.U64, v)
		}
		out = append(out, array.NewPrimitiveArray(dtype.U64, buf, len(idx), array.NonNull()), a.patches.Values)
	}
	return out
}
func (a *Array) Buffer() []byte      { return nil }
func (a *Array) Stats() *array.Stats { return a.stats }
func (a *Array) LogicalValidity() array.Validity { return a.ints.LogicalValidity() }

func (a *Array) Metadata() []byte {
	return []byte{byte(int8(a.e)), byte(int8(a.f))}
}

func (a *Array) decodeOne(i int) (scalar.Scalar, error) {
	s, err := a.ints.ScalarAt(i)
	if err != nil {
		return scalar.Scalar{}, err
	}
	if !s.Valid {
		return scalar.Null(a.DType()), nil
	}
	raw, _ := s.AsI64()
	x := float64(raw) / pow10(a.e) / pow10(a.f)
	if a.ptype == dtype.F32 {
		return scalar.New(a.DType(), float32(x)), nil
	}
	return scalar.New(a.DType(), x), nil
}

// ScalarAt decodes position i, then applies any overriding patch.
func (a *Array) ScalarAt(i int) (scalar.Scalar, error) {
	if i < 0 || i >= a.Len() {
		return scalar.Scalar{}, array.ErrBounds(i, a.Len())
	}
	if a.patches != nil {
		if s, ok, err := a.patches.GetPatched(uint64(i)); err != nil {
			return scalar.Scalar{}, err
		} else if ok {
			return s, nil
		}
	}
	return a.decodeOne(i)
}

// Slice re-slices the integers child and re-bases patches.
func (a *Array) Slice(lo, hi int) (array.Array, error) {
	s, err := a.ints.Slice(lo, hi)
	if err != nil {
		return nil, err
	}
	var newPatches *patches.Patches
	if a.patches != nil {
		p, err := a.patches.Slice(lo, hi)
		if err != nil {
			return nil, err
		}
		newPatches = p
	}
	return NewArray(a.ptype, s.(*array.PrimitiveArray), a.e, a.f, newPatches), nil
}

func idxToU64s(idx array.Array) ([]uint64, error) {
	n := idx.Len()
	out := make([]uint64, n)
	for k := 0; k < n; k++ {
		var s scalar.Scalar
		var err error
		if sa, ok := idx.(array.ScalarAtter); ok {
			s, err = sa.ScalarAt(k)
		} else {
			canon, cErr := idx.IntoCanonical()
			if cErr != nil {
				return nil, cErr
			}
			sa, ok := canon.(array.ScalarAtter)
			if !ok {
				return nil, vxerr.E(vxerr.Unsupported, "alp: index array has no scalar_at")
			}
			s, err = sa.ScalarAt(k)
		}
		if err != nil {
			return nil, err
		}
		u, ok := s.AsI64()
		if !ok || u < 0 {
			return nil, vxerr.E(vxerr.InvalidArgument, "alp: index %d is negative or non-integer", k)
		}
		out[k] = uint64(u)
	}
	return out, nil
}

func maskToBools(mask array.Array) ([]bool, error) {
	mb, ok := mask.(*array.BoolArray)
	if !ok {
		canon, err := mask.IntoCanonical()
		if err != nil {
			return nil, err
		}
		mb, ok = canon.(*array.BoolArray)
		if !ok {
			return nil, vxerr.E(vxerr.Unsupported, "alp: mask canonical form is not bool")
		}
	}
	out := make([]bool, mb.Len())
	for i := range out {
		valid, err := mb.LogicalValidity().IsValid(i)
		out[i] = err == nil && valid && mb.ValueUnchecked(i)
	}
	return out, nil
}

// Take gathers idx.Len() positions from the integers child and rebases
// patches onto the gathered indices.
func (a *Array) Take(idx array.Array) (array.Array, error) {
	u64, err := idxToU64s(idx)
	if err != nil {
		return nil, err
	}
	taken, err := a.ints.Take(idx)
	if err != nil {
		return nil, err
	}
	var newPatches *patches.Patches
	if a.patches != nil {
		newPatches, err = a.patches.Take(u64)
		if err != nil {
			return nil, err
		}
	}
	return NewArray(a.ptype, taken.(*array.PrimitiveArray), a.e, a.f, newPatches), nil
}

// Filter keeps positions where mask is true.
func (a *Array) Filter(mask array.Array) (array.Array, error) {
	bools, err := maskToBools(mask)
	if err != nil {
		return nil, err
	}
	filtered, err := a.ints.Filter(mask)
	if err != nil {
		return nil, err
	}
	var newPatches *patches.Patches
	if a.patches != nil {
		newPatches, err = a.patches.Filter(bools)
		if err != nil {
			return nil, err
		}
	}
	return NewArray(a.ptype, filtered.(*array.PrimitiveArray), a.e, a.f, newPatches), nil
}

// IntoCanonical decodes every position (honoring patches) into a dense
// PrimitiveArray of the logical float ptype.
func (a *Array) IntoCanonical() (array.Array, error) {
	n := a.Len()
	width := a.ptype.BitWidth() / 8
	buf := make([]byte, n*width)
	validBits := make([]bool, n)
	anyInvalid := false
	for i := 0; i < n; i++ {
		s, err := a.ScalarAt(i)
		if err != nil {
			return nil, err
		}
		if !s.Valid {
			anyInvalid = true
			continue
		}
		validBits[i] = true
		var bits uint64
		if a.ptype == dtype.F32 {
			bits = uint64(math.Float32bits(s.Value.(float32)))
		} else {
			bits = math.Float64bits(s.Value.(float64))
		}
		copy(buf[i*width:(i+1)*width], encodeLE(bits, width))
	}
	validity := array.NonNull()
	if anyInvalid {
		validity = array.FromBoolArray(array.NewBoolArrayFromBools(validBits, array.Valid()))
	} else if a.DType().Nullable() {
		validity = array.Valid()
	}
	return array.NewPrimitiveArray(a.ptype, buf, n, validity), nil
}

func encodeLE(v uint64, width int) []byte {
	out := make([]byte, width)
	for i := 0; i < width; i++ {
		out[i] = byte(v >> (8 * i))
	}
	return out
}

// Encode picks a fixed (e, f) that round-trips the most values among the
// small candidate grid ALP papers use, then returns the rounded integers
// plus the list of (index, value) exceptions that fail to round-trip
// exactly.
func Encode(values []float64, isF32 bool) (e, f int, ints []int64, exceptionIdx []int, exceptionVal []float64) {
	bestScore := -1
	for ce := 0; ce <= 18; ce++ {
		for cf := 0; cf <= 18-ce; cf++ {
			score := 0
			for _, x := range values {
				encoded := math.Round(x * pow10(ce) * pow10(cf))
				decoded := encoded / pow10(ce) / pow10(cf)
				if decoded == x {
					score++
				}
			}
			if score > bestScore {
				bestScore = score
				e, f = ce, cf
			}
		}
	}
	ints = make([]int64, len(values))
	for i, x := range values {
		encoded := math.Round(x * pow10(e) * pow10(f))
		ints[i] = int64(encoded)
		decoded := encoded / pow10(e) / pow10(f)
		if decoded != x {
			exceptionIdx = append(exceptionIdx, i)
			exceptionVal = append(exceptionVal, x)
		}
	}
	return e, f, ints, exceptionIdx, exceptionVal
}
