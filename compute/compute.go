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

// Package compute implements encoding-aware kernel dispatch: each kernel
// looks up the operation on the array's encoding, and falls back to
// canonicalizing and retrying against the canonical encoding when the
// encoding declines.
package compute

import (
	"errors"

	"github.com/doki23/vortex/array"
	"github.com/doki23/vortex/dtype"
	"github.com/doki23/vortex/scalar"
	"github.com/doki23/vortex/vxerr"
)

// ScalarAt implements the scalar_at kernel.
func ScalarAt(a array.Array, i int) (scalar.Scalar, error) {
	if i < 0 || i >= a.Len() {
		return scalar.Scalar{}, array.ErrBounds(i, a.Len())
	}
	if sa, ok := a.(array.ScalarAtter); ok {
		return sa.ScalarAt(i)
	}
	canon, err := canonicalize(a)
	if err != nil {
		return scalar.Scalar{}, err
	}
	sa, ok := canon.(array.ScalarAtter)
	if !ok {
		return scalar.Scalar{}, unsupported("scalar_at", a)
	}
	return sa.ScalarAt(i)
}

// Slice implements the slice kernel: zero-copy where possible, else
// canonicalize-and-retry.
func Slice(a array.Array, lo, hi int) (array.Array, error) {
	if lo < 0 || hi > a.Len() || lo > hi {
		return nil, array.ErrBounds(hi, a.Len())
	}
	if s, ok := a.(array.Slicer); ok {
		return s.Slice(lo, hi)
	}
	canon, err := canonicalize(a)
	if err != nil {
		return nil, err
	}
	s, ok := canon.(array.Slicer)
	if !ok {
		return nil, unsupported("slice", a)
	}
	return s.Slice(lo, hi)
}

// Take implements the take kernel: idx must be an integer array whose
// values are all < a.Len().
func Take(a array.Array, idx array.Array) (array.Array, error) {
	if t, ok := a.(array.Taker); ok {
		return t.Take(idx)
	}
	canon, err := canonicalize(a)
	if err != nil {
		return nil, err
	}
	t, ok := canon.(array.Taker)
	if !ok {
		return nil, unsupported("take", a)
	}
	return t.Take(idx)
}

// TakeUnchecked implements take's unchecked fast path, eliding the bounds
// check; callers that pass out-of-range indices invoke undefined
// behavior.
func TakeUnchecked(a array.Array, idx array.Array) (array.Array, error) {
	if t, ok := a.(array.TakeUncheckedTaker); ok {
		return t.TakeUnchecked(idx)
	}
	return Take(a, idx)
}

// Filter implements the filter kernel. Implementations MAY canonicalize
// when mask's selectivity exceeds a threshold; that decision is made by
// each encoding's own Filter method, not here.
func Filter(a array.Array, mask array.Array) (array.Array, error) {
	if mask.Len() != a.Len() {
		return nil, array.ErrLength("filter", mask.Len(), a.Len())
	}
	if f, ok := a.(array.Filterer); ok {
		return f.Filter(mask)
	}
	canon, err := canonicalize(a)
	if err != nil {
		return nil, err
	}
	f, ok := canon.(array.Filterer)
	if !ok {
		return nil, unsupported("filter", a)
	}
	return f.Filter(mask)
}

// Compare implements the compare kernel: left is tried first, then right;
// if both decline, both operands are canonicalized and the canonical
// kernel runs.
func Compare(a, b array.Array, op array.CompareOp) (array.Array, error) {
	if a.Len() != b.Len() {
		return nil, array.ErrLength("compare", b.Len(), a.Len())
	}
	if c, ok := a.(array.Comparer); ok {
		if r, err := c.Compare(b, op); err == nil || !isUnsupported(err) {
			return r, err
		}
	}
	if c, ok := b.(array.Comparer); ok {
		if r, err := c.Compare(a, invertSide(op)); err == nil || !isUnsupported(err) {
			return r, err
		}
	}
	ca, err := canonicalize(a)
	if err != nil {
		return nil, err
	}
	cb, err := canonicalize(b)
	if err != nil {
		return nil, err
	}
	c, ok := ca.(array.Comparer)
	if !ok {
		return nil, unsupported("compare", a)
	}
	return c.Compare(cb, op)
}

// invertSide lets Compare retry with the operands swapped while preserving
// the original kernel's semantics (a<b becomes b>a, etc). For Eq/NotEq the
// operator is symmetric and is returned unchanged; for ordered comparisons
// swapping operands requires flipping the operator sense.
func invertSide(op array.CompareOp) array.CompareOp {
	switch op {
	case array.Lt:
		return array.Gt
	case array.LtEq:
		return array.GtEq
	case array.Gt:
		return array.Lt
	case array.GtEq:
		return array.LtEq
	default:
		return op
	}
}

// BinaryNumeric implements binary_numeric: both operands must be
// Primitive of the same ptype and length; result nullability is the
// disjunction of the operands' nullability.
func BinaryNumeric(a, b array.Array, op array.NumericOp) (array.Array, error) {
	if a.Len() != b.Len() {
		return nil, array.ErrLength("binary_numeric", b.Len(), a.Len())
	}
	if a.DType().Kind() != dtype.KindPrimitive || b.DType().Kind() != dtype.KindPrimitive {
		return nil, vxerr.E(vxerr.MismatchedTypes, "binary_numeric: both operands must be primitive")
	}
	if a.DType().PType() != b.DType().PType() {
		return nil, vxerr.E(vxerr.MismatchedTypes, "binary_numeric: ptype mismatch %s != %s", a.DType().PType(), b.DType().PType())
	}
	if n, ok := a.(array.BinaryNumericer); ok {
		if r, err := n.BinaryNumeric(b, op); err == nil || !isUnsupported(err) {
			return r, err
		}
	}
	if n, ok := b.(array.BinaryNumericer); ok && (op == array.Add || op == array.Mul) {
		if r, err := n.BinaryNumeric(a, swapNumeric(op)); err == nil || !isUnsupported(err) {
			return r, err
		}
	}
	ca, err := canonicalize(a)
	if err != nil {
		return nil, err
	}
	cb, err := canonicalize(b)
	if err != nil {
		return nil, err
	}
	n, ok := ca.(array.BinaryNumericer)
	if !ok {
		return nil, unsupported("binary_numeric", a)
	}
	return n.BinaryNumeric(cb, op)
}

func swapNumeric(op array.NumericOp) array.NumericOp {
	// Invoking the right operand's kernel computes b op a. BinaryNumeric
	// only does so for Add/Mul, which are commutative, so the operator
	// itself is unchanged; Sub/Div never reach the right operand's kernel.
	return op
}

// DivScalar computes a / scalar, routed through Div. An earlier
// implementation of this routine routed the division through Mul; that
// was a bug and is not reproduced here.
func DivScalar(a array.Array, s scalar.Scalar) (array.Array, error) {
	rhs := array.NewConstantArray(s, a.Len())
	return BinaryNumeric(a, rhs, array.Div)
}

// BinaryBoolean implements binary_boolean: both operands must be Bool and
// the same length.
func BinaryBoolean(a, b array.Array, op array.BooleanOp) (array.Array, error) {
	if a.Len() != b.Len() {
		return nil, array.ErrLength("binary_boolean", b.Len(), a.Len())
	}
	if a.DType().Kind() != dtype.KindBool || b.DType().Kind() != dtype.KindBool {
		return nil, vxerr.E(vxerr.MismatchedTypes, "binary_boolean: both operands must be bool")
	}
	if n, ok := a.(array.BinaryBooleaner); ok {
		if r, err := n.BinaryBoolean(b, op); err == nil || !isUnsupported(err) {
			return r, err
		}
	}
	if n, ok := b.(array.BinaryBooleaner); ok {
		if r, err := n.BinaryBoolean(a, op); err == nil || !isUnsupported(err) {
			return r, err
		}
	}
	ca, err := canonicalize(a)
	if err != nil {
		return nil, err
	}
	cb, err := canonicalize(b)
	if err != nil {
		return nil, err
	}
	n, ok := ca.(array.BinaryBooleaner)
	if !ok {
		return nil, unsupported("binary_boolean", a)
	}
	return n.BinaryBoolean(cb, op)
}

// SearchSorted implements search_sorted: a must be sorted.
func SearchSorted(a array.Array, value scalar.Scalar, side array.Side) (array.SearchResult, error) {
	if s, ok := a.(array.SearchSorteder); ok {
		return s.SearchSorted(value, side)
	}
	canon, err := canonicalize(a)
	if err != nil {
		return array.SearchResult{}, err
	}
	s, ok := canon.(array.SearchSorteder)
	if !ok {
		return array.SearchResult{}, unsupported("search_sorted", a)
	}
	return s.SearchSorted(value, side)
}

// Cast implements the cast kernel: only same-kind (numeric-to-numeric)
// casts are supported.
func Cast(a array.Array, dt dtype.DType) (array.Array, error) {
	if c, ok := a.(array.Caster); ok {
		return c.Cast(dt)
	}
	canon, err := canonicalize(a)
	if err != nil {
		return nil, err
	}
	c, ok := canon.(array.Caster)
	if !ok {
		return nil, unsupported("cast", a)
	}
	return c.Cast(dt)
}

// Invert implements the invert kernel (Bool only): NULL maps to NULL,
// true and false swap. It is an involution on non-null booleans.
func Invert(a array.Array) (array.Array, error) {
	if inv, ok := a.(array.Inverter); ok {
		return inv.Invert()
	}
	canon, err := canonicalize(a)
	if err != nil {
		return nil, err
	}
	inv, ok := canon.(array.Inverter)
	if !ok {
		return nil, unsupported("invert", a)
	}
	return inv.Invert()
}

// FillForward implements the fill_forward kernel: every null becomes the
// most recent preceding non-null; if none exists the result remains null.
func FillForward(a array.Array) (array.Array, error) {
	if ff, ok := a.(array.FillForwarder); ok {
		return ff.FillForward()
	}
	canon, err := canonicalize(a)
	if err != nil {
		return nil, err
	}
	ff, ok := canon.(array.FillForwarder)
	if !ok {
		return nil, unsupported("fill_forward", a)
	}
	return ff.FillForward()
}

// Like implements the like kernel (Utf8 glob-ish matching).
func Like(a array.Array, pattern string, opts array.LikeOptions) (array.Array, error) {
	if lm, ok := a.(array.LikeMatcher); ok {
		return lm.Like(pattern, opts)
	}
	canon, err := canonicalize(a)
	if err != nil {
		return nil, err
	}
	lm, ok := canon.(array.LikeMatcher)
	if !ok {
		return nil, unsupported("like", a)
	}
	return lm.Like(pattern, opts)
}

func canonicalize(a array.Array) (array.Array, error) {
	c, err := a.IntoCanonical()
	if err != nil {
		return nil, vxerr.Wrap(vxerr.ComputeError, err)
	}
	return c, nil
}

func unsupported(op string, a array.Array) error {
	return vxerr.E(vxerr.Unsupported, "%s: no implementation for encoding %d or its canonical form", op, a.EncodingID())
}

func isUnsupported(err error) bool {
	return err != nil && errors.Is(err, vxerr.Unsupported)
}
