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

// Package ree implements the run-ends encoding: a monotonically
// increasing U64 array of exclusive run-end offsets, paired with one
// values entry per run.
package ree

import (
	"sort"

	"github.com/doki23/vortex/array"
	"github.com/doki23/vortex/dtype"
	"github.com/doki23/vortex/scalar"
	"github.com/doki23/vortex/vxerr"
)

func init() {
	array.RegisterEncoding(array.EncodingRunEnd, func(dt dtype.DType, length int, buffers [][]byte, children []array.Array, metadata []byte) (array.Array, error) {
		if len(children) < 2 {
			return nil, vxerr.E(vxerr.InvalidSerde, "ree decode: expected run_ends and values children")
		}
		runEnds, ok := children[0].(*array.PrimitiveArray)
		if !ok || runEnds.PType() != dtype.U64 {
			return nil, vxerr.E(vxerr.InvalidSerde, "ree decode: run_ends child must be u64 primitive")
		}
		return NewArray(runEnds, children[1], length)
	})
}

// Array is the run-ends encoding: logical position i belongs to run
// sort.Search(runEnds, i+1), whose value is values.ScalarAt(that run
// index). A run's own validity comes from values' validity, so a single
// null run covers every logical position within it.
type Array struct {
	runEnds *array.PrimitiveArray // len() == number of runs, strictly increasing, last >= offset+length
	values  array.Array           // len() == number of runs
	length  int
	offset  int // logical offset into the (runEnds, values) pair, for zero-copy slicing
	stats   *array.Stats
}

// NewArray validates and constructs a run-ends array covering exactly
// length logical positions.
func NewArray(runEnds *array.PrimitiveArray, values array.Array, length int) (*Array, error) {
	if runEnds.Len() != values.Len() {
		return nil, vxerr.E(vxerr.InvalidArgument, "ree: %d run_ends but %d values", runEnds.Len(), values.Len())
	}
	prev := uint64(0)
	for i := 0; i < runEnds.Len(); i++ {
		e := runEnds.U64At(i)
		if e <= prev && i > 0 {
			return nil, vxerr.E(vxerr.InvalidArgument, "ree: run_ends not strictly increasing at %d", i)
		}
		prev = e
	}
	if runEnds.Len() > 0 && runEnds.U64At(runEnds.Len()-1) < uint64(length) {
		return nil, vxerr.E(vxerr.InvalidArgument, "ree: last run_end %d < length %d", runEnds.U64At(runEnds.Len()-1), length)
	}
	return &Array{runEnds: runEnds, values: values, length: length, stats: array.NewStats()}, nil
}

func (a *Array) EncodingID() array.EncodingID      { return array.EncodingRunEnd }
func (a *Array) DType() dtype.DType                { return a.values.DType() }
func (a *Array) Len() int                          { return a.length }
func (a *Array) Children() []array.Array           { return []array.Array{a.runEnds, a.values} }
func (a *Array) Buffer() []byte                    { return nil }
func (a *Array) Metadata() []byte                  { return nil }
func (a *Array) Stats() *array.Stats               { return a.stats }

func (a *Array) LogicalValidity() array.Validity {
	// A run-ends array's own validity is synthesized from runs: it is
	// equivalent to materializing each run's validity length times.
	// Callers needing a precise per-position Validity should canonicalize.
	v := a.values.LogicalValidity()
	if v.Kind() == array.NonNullable || v.Kind() == array.AllValid {
		return array.NonNull()
	}
	if v.Kind() == array.AllInvalid {
		return array.Invalid()
	}
	bools := make([]bool, a.length)
	for i := 0; i < a.length; i++ {
		valid, err := v.IsValid(a.findRun(i))
		if err == nil && valid {
			bools[i] = true
		}
	}
	return array.FromBoolArray(array.NewBoolArrayFromBools(bools, array.Valid()))
}

// findRun returns the run index owning logical position i (already
// offset-adjusted).
func (a *Array) findRun(i int) int {
	target := uint64(i + a.offset + 1)
	return sort.Search(a.runEnds.Len(), func(j int) bool { return a.runEnds.U64At(j) >= target })
}

// ScalarAt finds the run containing i via a binary search over run_ends
// and returns that run's value.
func (a *Array) ScalarAt(i int) (scalar.Scalar, error) {
	if i < 0 || i >= a.length {
		return scalar.Scalar{}, array.ErrBounds(i, a.length)
	}
	run := a.findRun(i)
	if sa, ok := a.values.(array.ScalarAtter); ok {
		return sa.ScalarAt(run)
	}
	canon, err := a.values.IntoCanonical()
	if err != nil {
		return scalar.Scalar{}, err
	}
	sa, ok := canon.(array.ScalarAtter)
	if !ok {
		return scalar.Scalar{}, vxerr.E(vxerr.Unsupported, "ree: values encoding has no scalar_at")
	}
	return sa.ScalarAt(run)
}

// Slice adjusts the logical offset without touching run_ends or values,
// leaving run lookups a binary search over the unmodified run_ends with
// a shifted target (zero-copy).
func (a *Array) Slice(lo, hi int) (array.Array, error) {
	if lo < 0 || hi > a.length || lo > hi {
		return nil, array.ErrBounds(hi, a.length)
	}
	return &Array{runEnds: a.runEnds, values: a.values, length: hi - lo, offset: a.offset + lo, stats: array.NewStats()}, nil
}

// IntoCanonical re-expands every run to its full length, producing a
// canonical encoding over the logical dtype.
func (a *Array) IntoCanonical() (array.Array, error) {
	switch a.DType().Kind() {
	case dtype.KindBool:
		out := make([]bool, a.length)
		validBits := make([]bool, a.length)
		anyInvalid := false
		for i := 0; i < a.length; i++ {
			s, err := a.ScalarAt(i)
			if err != nil {
				return nil, err
			}
			validBits[i] = s.Valid
			if !s.Valid {
				anyInvalid = true
				continue
			}
			out[i] = s.Value.(bool)
		}
		validity := array.NonNull()
		if anyInvalid {
			validity = array.FromBoolArray(array.NewBoolArrayFromBools(validBits, array.Valid()))
		} else if a.DType().Nullable() {
			validity = array.Valid()
		}
		return array.NewBoolArrayFromBools(out, validity), nil
	default:
		// Generic path: map every logical position to its run index
		// and rebuild via Take against the values array,
		// delegating the physical layout decision to values' own
		// canonical form.
		idx := make([]uint64, a.length)
		for i := 0; i < a.length; i++ {
			idx[i] = uint64(a.findRun(i))
		}
		idxBuf := make([]byte, 0, len(idx)*8)
		for _, v := range idx {
			idxBuf = array.AppendRawU64(idxBuf, dtype.U64, v)
		}
		idxArray := array.NewPrimitiveArray(dtype.U64, idxBuf, len(idx), array.NonNull())
		if t, ok := a.values.(array.Taker); ok {
			return t.Take(idxArray)
		}
		canon, err := a.values.IntoCanonical()
		if err != nil {
			return nil, err
		}
		t, ok := canon.(array.Taker)
		if !ok {
			return nil, vxerr.E(vxerr.Unsupported, "ree: values canonical form has no take")
		}
		return t.Take(idxArray)
	}
}

func scalarAtIdx(a array.Array, i int) (scalar.Scalar, error) {
	if sa, ok := a.(array.ScalarAtter); ok {
		return sa.ScalarAt(i)
	}
	canon, err := a.IntoCanonical()
	if err != nil {
		return scalar.Scalar{}, err
	}
	sa, ok := canon.(array.ScalarAtter)
	if !ok {
		return scalar.Scalar{}, vxerr.E(vxerr.Unsupported, "ree: index array has no scalar_at")
	}
	return sa.ScalarAt(i)
}

// takeValues gathers runIdx (a U64 index array of run numbers) out of
// a.values, canonicalizing values first if it declines Take directly.
func (a *Array) takeValues(runIdx *array.PrimitiveArray) (array.Array, error) {
	if t, ok := a.values.(array.Taker); ok {
		return t.Take(runIdx)
	}
	canon, err := a.values.IntoCanonical()
	if err != nil {
		return nil, err
	}
	t, ok := canon.(array.Taker)
	if !ok {
		return nil, vxerr.E(vxerr.Unsupported, "ree: values encoding has no take")
	}
	return t.Take(runIdx)
}

// Take resolves each requested logical position to its owning run, then
// gathers the (much shorter) per-run values array once via a single
// Take call.
func (a *Array) Take(idx array.Array) (array.Array, error) {
	n := idx.Len()
	runIdx := make([]uint64, n)
	for k := 0; k < n; k++ {
		iv, err := scalarAtIdx(idx, k)
		if err != nil {
			return nil, err
		}
		pos, ok := iv.AsI64()
		if !ok || pos < 0 || int(pos) >= a.length {
			return nil, array.ErrBounds(int(pos), a.length)
		}
		runIdx[k] = uint64(a.findRun(int(pos)))
	}
	buf := make([]byte, 0, n*8)
	for _, v := range runIdx {
		buf = array.AppendRawU64(buf, dtype.U64, v)
	}
	idxArray := array.NewPrimitiveArray(dtype.U64, buf, n, array.NonNull())
	return a.takeValues(idxArray)
}

// Filter keeps positions where mask is true, mapping each surviving
// position to its run and gathering values with a single Take.
func (a *Array) Filter(mask array.Array) (array.Array, error) {
	if mask.Len() != a.length {
		return nil, array.ErrLength("filter", mask.Len(), a.length)
	}
	mb, ok := mask.(*array.BoolArray)
	if !ok {
		canon, err := mask.IntoCanonical()
		if err != nil {
			return nil, err
		}
		mb, ok = canon.(*array.BoolArray)
		if !ok {
			return nil, vxerr.E(vxerr.Unsupported, "ree: filter mask canonical form is not bool")
		}
	}
	var runIdx []uint64
	for i := 0; i < a.length; i++ {
		valid, err := mb.LogicalValidity().IsValid(i)
		if err == nil && valid && mb.ValueUnchecked(i) {
			runIdx = append(runIdx, uint64(a.findRun(i)))
		}
	}
	buf := make([]byte, 0, len(runIdx)*8)
	for _, v := range runIdx {
		buf = array.AppendRawU64(buf, dtype.U64, v)
	}
	idxArray := array.NewPrimitiveArray(dtype.U64, buf, len(runIdx), array.NonNull())
	return a.takeValues(idxArray)
}

// Encode computes run_ends and run-start indices for a sequence of
// length n given an equality predicate eq(i, j) deciding whether
// positions i and j belong to the same run. Callers gather run values
// via Take(runStarts) against the original array.
func Encode(n int, eq func(i, j int) bool) (runEnds []uint64, runStarts []int) {
	if n == 0 {
		return nil, nil
	}
	start := 0
	for i := 1; i <= n; i++ {
		if i == n || !eq(start, i) {
			runEnds = append(runEnds, uint64(i))
			runStarts = append(runStarts, start)
			start = i
		}
	}
	return runEnds, runStarts
}
