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
	"math"

	"github.com/doki23/vortex/dtype"
	"github.com/doki23/vortex/scalar"
	"github.com/doki23/vortex/vxerr"
)

// This file gives every canonical encoding (Null, Bool, Primitive, VarBin,
// Struct, List) the kernels that compute.* falls back to once an encoding
// declines an operation. Per the fallback rule, a canonical kernel must
// not itself decline, so these are implemented generically in terms of
// ScalarAt plus a dtype-directed builder (scalarsToArray), the same
// "gather scalars, rebuild typed" shape the donor's scalarAtAny/sliceAny
// local dispatch already uses one level up.

// BuildFromScalars rebuilds a canonical array of dtype dt from a flat
// list of scalars, one per logical position. It is the exported entry
// point other packages (e.g. encoding/chunked's Rechunk) use to
// materialize a gathered sequence of scalars back into a typed array.
func BuildFromScalars(dt dtype.DType, scalars []scalar.Scalar) (Array, error) {
	return scalarsToArray(dt, scalars)
}

// scalarsToArray rebuilds a canonical array of dtype dt from a flat list
// of scalars, one per logical position. It is the inverse of repeatedly
// calling ScalarAt.
func scalarsToArray(dt dtype.DType, scalars []scalar.Scalar) (Array, error) {
	switch dt.Kind() {
	case dtype.KindNull:
		return NewNullArray(len(scalars)), nil
	case dtype.KindBool:
		vals := make([]bool, len(scalars))
		validBits := make([]bool, len(scalars))
		anyInvalid := false
		for i, s := range scalars {
			validBits[i] = s.Valid
			if s.Valid {
				vals[i] = s.Value.(bool)
			} else {
				anyInvalid = true
			}
		}
		return NewBoolArrayFromBools(vals, resolveValidity(dt, anyInvalid, validBits)), nil
	case dtype.KindPrimitive:
		p := dt.PType()
		width := p.BitWidth() / 8
		buf := make([]byte, len(scalars)*width)
		validBits := make([]bool, len(scalars))
		anyInvalid := false
		for i, s := range scalars {
			validBits[i] = s.Valid
			if !s.Valid {
				anyInvalid = true
				continue
			}
			u := reinterpretToU64(p, s.Value)
			copy(buf[i*width:], AppendRawU64(nil, p, u))
		}
		return NewPrimitiveArray(p, buf, len(scalars), resolveValidity(dt, anyInvalid, validBits)), nil
	case dtype.KindUtf8, dtype.KindBinary:
		b := NewVarBinBuilder(dt.Kind() == dtype.KindUtf8)
		for _, s := range scalars {
			if !s.Valid {
				b.AppendNull()
				continue
			}
			switch v := s.Value.(type) {
			case string:
				b.AppendString(v)
			case []byte:
				b.Append(v)
			}
		}
		return b.Finish(), nil
	case dtype.KindStruct:
		names := dt.FieldNames()
		fieldTypes := dt.FieldTypes()
		fieldScalars := make([][]scalar.Scalar, len(names))
		for fi := range fieldScalars {
			fieldScalars[fi] = make([]scalar.Scalar, len(scalars))
		}
		validBits := make([]bool, len(scalars))
		anyInvalid := false
		for i, s := range scalars {
			validBits[i] = s.Valid
			if !s.Valid {
				anyInvalid = true
				for fi := range fieldTypes {
					fieldScalars[fi][i] = scalar.Null(fieldTypes[fi])
				}
				continue
			}
			vals := s.Value.([]scalar.Scalar)
			for fi := range vals {
				fieldScalars[fi][i] = vals[fi]
			}
		}
		fields := make([]Array, len(names))
		for fi := range fields {
			f, err := scalarsToArray(fieldTypes[fi], fieldScalars[fi])
			if err != nil {
				return nil, err
			}
			fields[fi] = f
		}
		return NewStructArray(names, fields, len(scalars), resolveValidity(dt, anyInvalid, validBits)), nil
	case dtype.KindList:
		elemType := dt.Element()
		var elemScalars []scalar.Scalar
		offsets := make([]uint64, len(scalars)+1)
		validBits := make([]bool, len(scalars))
		anyInvalid := false
		for i, s := range scalars {
			validBits[i] = s.Valid
			if s.Valid {
				elemScalars = append(elemScalars, s.Value.([]scalar.Scalar)...)
			} else {
				anyInvalid = true
			}
			offsets[i+1] = uint64(len(elemScalars))
		}
		elemArray, err := scalarsToArray(elemType, elemScalars)
		if err != nil {
			return nil, err
		}
		offBuf := make([]byte, 0, len(offsets)*8)
		for _, o := range offsets {
			offBuf = AppendRawU64(offBuf, dtype.U64, o)
		}
		offArray := NewPrimitiveArray(dtype.U64, offBuf, len(offsets), NonNull())
		return NewListArray(offArray, elemArray, len(scalars), resolveValidity(dt, anyInvalid, validBits)), nil
	default:
		return nil, vxerr.E(vxerr.Unsupported, "scalarsToArray: unsupported dtype kind %v", dt.Kind())
	}
}

func resolveValidity(dt dtype.DType, anyInvalid bool, validBits []bool) Validity {
	if anyInvalid {
		return FromBoolArray(NewBoolArrayFromBools(validBits, Valid()))
	}
	if dt.Nullable() {
		return Valid()
	}
	return NonNull()
}

// genericTake gathers a.ScalarAt(idx[k]) for every k and rebuilds a
// canonical array of a's dtype.
func genericTake(a Array, idx Array) (Array, error) {
	n := idx.Len()
	out := make([]scalar.Scalar, n)
	for k := 0; k < n; k++ {
		iv, err := scalarAtAny(idx, k)
		if err != nil {
			return nil, err
		}
		pos, ok := iv.AsI64()
		if !ok {
			return nil, vxerr.E(vxerr.InvalidArgument, "take: index array must hold integer values")
		}
		if pos < 0 || int(pos) >= a.Len() {
			return nil, ErrBounds(int(pos), a.Len())
		}
		s, err := scalarAtAny(a, int(pos))
		if err != nil {
			return nil, err
		}
		out[k] = s
	}
	return scalarsToArray(a.DType(), out)
}

// genericFilter keeps the positions of a where mask is true (a null mask
// position is treated as excluded, not included).
func genericFilter(a Array, mask Array) (Array, error) {
	if mask.Len() != a.Len() {
		return nil, ErrLength("filter", mask.Len(), a.Len())
	}
	mb, ok := mask.(*BoolArray)
	if !ok {
		canon, err := mask.IntoCanonical()
		if err != nil {
			return nil, err
		}
		mb, ok = canon.(*BoolArray)
		if !ok {
			return nil, vxerr.E(vxerr.Unsupported, "filter: mask canonical form is not Bool")
		}
	}
	var out []scalar.Scalar
	for i := 0; i < mb.Len(); i++ {
		valid, err := mb.LogicalValidity().IsValid(i)
		if err != nil {
			return nil, err
		}
		if !valid || !mb.ValueUnchecked(i) {
			continue
		}
		s, err := scalarAtAny(a, i)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return scalarsToArray(a.DType(), out)
}

// genericFillForward implements fill_forward in terms of ScalarAt: each
// null becomes the most recently seen non-null; if none exists yet the
// position remains null.
func genericFillForward(a Array) (Array, error) {
	n := a.Len()
	out := make([]scalar.Scalar, n)
	var last scalar.Scalar
	haveLast := false
	for i := 0; i < n; i++ {
		s, err := scalarAtAny(a, i)
		if err != nil {
			return nil, err
		}
		if s.Valid {
			out[i] = s
			last = s
			haveLast = true
		} else if haveLast {
			out[i] = last
		} else {
			out[i] = s
		}
	}
	return scalarsToArray(a.DType(), out)
}

// genericCompare implements compare in terms of ScalarAt: the result is a
// non-null Bool array, with false (not null) wherever either operand is
// null, matching the compare kernel's contract.
func genericCompare(a, b Array, op CompareOp) (Array, error) {
	if a.Len() != b.Len() {
		return nil, ErrLength("compare", b.Len(), a.Len())
	}
	n := a.Len()
	out := make([]bool, n)
	for i := 0; i < n; i++ {
		sa, err := scalarAtAny(a, i)
		if err != nil {
			return nil, err
		}
		sb, err := scalarAtAny(b, i)
		if err != nil {
			return nil, err
		}
		out[i] = compareScalars(sa, sb, op)
	}
	return NewBoolArrayFromBools(out, NonNull()), nil
}

func compareScalars(a, b scalar.Scalar, op CompareOp) bool {
	if !a.Valid || !b.Valid {
		return false
	}
	switch op {
	case Eq:
		return a.Equal(b)
	case NotEq:
		return !a.Equal(b)
	}
	// Ordered comparisons: numeric types compare as float64; strings and
	// bytes compare lexicographically; bool treats false < true.
	if af, ok := a.AsF64(); ok {
		bf, _ := b.AsF64()
		return orderedCompare(af, bf, op)
	}
	switch av := a.Value.(type) {
	case string:
		bv, _ := b.Value.(string)
		return orderedCompareOrdered(av < bv, av == bv, op)
	case []byte:
		bv, _ := b.Value.([]byte)
		cmp := compareBytes(av, bv)
		return orderedCompareOrdered(cmp < 0, cmp == 0, op)
	case bool:
		bv, _ := b.Value.(bool)
		return orderedCompare(boolToF(av), boolToF(bv), op)
	default:
		return false
	}
}

func boolToF(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func compareBytes(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

func orderedCompare(a, b float64, op CompareOp) bool {
	switch op {
	case Lt:
		return a < b
	case LtEq:
		return a <= b
	case Gt:
		return a > b
	case GtEq:
		return a >= b
	default:
		return false
	}
}

func orderedCompareOrdered(less, equal bool, op CompareOp) bool {
	switch op {
	case Lt:
		return less
	case LtEq:
		return less || equal
	case Gt:
		return !less && !equal
	case GtEq:
		return !less
	default:
		return false
	}
}

// truncateSigned masks r to the bit width of p, preserving p's
// two's-complement representation.
func truncateSigned(p dtype.PType, r int64) uint64 {
	switch p {
	case dtype.I8:
		return uint64(uint8(int8(r)))
	case dtype.I16:
		return uint64(uint16(int16(r)))
	case dtype.I32:
		return uint64(uint32(int32(r)))
	default:
		return uint64(r)
	}
}

// truncateUnsigned masks r to the bit width of p.
func truncateUnsigned(p dtype.PType, r uint64) uint64 {
	switch p {
	case dtype.U8:
		return r & 0xFF
	case dtype.U16:
		return r & 0xFFFF
	case dtype.U32:
		return r & 0xFFFFFFFF
	default:
		return r
	}
}

// numericBinOp applies op to a pair of already-widened float operand
// values and returns the float64 result; callers convert it to ptype p's
// bit pattern with floatBits.
func numericBinOp(p dtype.PType, x, y float64, op NumericOp) (float64, error) {
	switch op {
	case Add:
		return x + y, nil
	case Sub:
		return x - y, nil
	case Mul:
		return x * y, nil
	case Div:
		if y == 0 {
			return 0, vxerr.E(vxerr.ComputeError, "binary_numeric: division by zero")
		}
		return x / y, nil
	default:
		return 0, vxerr.E(vxerr.Unsupported, "binary_numeric: unknown op %d", op)
	}
}

// intBinOp applies op over int64 operands, returning an error on
// division by zero.
func intBinOp(x, y int64, op NumericOp) (int64, error) {
	switch op {
	case Add:
		return x + y, nil
	case Sub:
		return x - y, nil
	case Mul:
		return x * y, nil
	case Div:
		if y == 0 {
			return 0, vxerr.E(vxerr.ComputeError, "binary_numeric: division by zero")
		}
		return x / y, nil
	default:
		return 0, vxerr.E(vxerr.Unsupported, "binary_numeric: unknown op %d", op)
	}
}

func uintBinOp(x, y uint64, op NumericOp) (uint64, error) {
	switch op {
	case Add:
		return x + y, nil
	case Sub:
		return x - y, nil
	case Mul:
		return x * y, nil
	case Div:
		if y == 0 {
			return 0, vxerr.E(vxerr.ComputeError, "binary_numeric: division by zero")
		}
		return x / y, nil
	default:
		return 0, vxerr.E(vxerr.Unsupported, "binary_numeric: unknown op %d", op)
	}
}

func floatBits(p dtype.PType, f float64) uint64 {
	if p == dtype.F32 {
		return uint64(math.Float32bits(float32(f)))
	}
	return math.Float64bits(f)
}
