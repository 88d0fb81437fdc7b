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

// Package patches implements the sparse-override abstraction that
// bit-packed, ALP/ALP-RD, and other encodings use to store exceptions
// over a base sequence.
package patches

import (
	"sort"

	"github.com/doki23/vortex/array"
	"github.com/doki23/vortex/dtype"
	"github.com/doki23/vortex/scalar"
	"github.com/doki23/vortex/vxerr"
)

// Patches is { array_len, indices, values }: indices strictly increasing,
// each index < array_len, values.Len() == indices.Len(), and
// values.DType() == base.DType().AsNonNullable() (patch values are never
// themselves null).
type Patches struct {
	ArrayLen int
	Indices  []uint64 // strictly increasing
	Values   array.Array
}

// New validates and returns a Patches value.
func New(arrayLen int, indices []uint64, values array.Array) (*Patches, error) {
	if len(indices) != values.Len() {
		return nil, vxerr.E(vxerr.InvalidArgument, "patches: %d indices but %d values", len(indices), values.Len())
	}
	for i := range indices {
		if i > 0 && indices[i] <= indices[i-1] {
			return nil, vxerr.E(vxerr.InvalidArgument, "patches: indices not strictly increasing at %d", i)
		}
		if indices[i] >= uint64(arrayLen) {
			return nil, vxerr.E(vxerr.OutOfBounds, "patches: index %d >= array_len %d", indices[i], arrayLen)
		}
	}
	return &Patches{ArrayLen: arrayLen, Indices: indices, Values: values}, nil
}

// Len returns the number of patched positions.
func (p *Patches) Len() int { return len(p.Indices) }

// search returns the position in p.Indices equal to idx, or -1.
func (p *Patches) search(idx uint64) int {
	lo, hi := 0, len(p.Indices)
	for lo < hi {
		mid := (lo + hi) / 2
		if p.Indices[mid] < idx {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(p.Indices) && p.Indices[lo] == idx {
		return lo
	}
	return -1
}

// GetPatched returns the patched value at logical index i, if any, via a
// binary search over Indices followed by scalar_at on Values.
func (p *Patches) GetPatched(i uint64) (scalar.Scalar, bool, error) {
	j := p.search(i)
	if j < 0 {
		return scalar.Scalar{}, false, nil
	}
	s, err := scalarAt(p.Values, j)
	if err != nil {
		return scalar.Scalar{}, false, err
	}
	return s, true, nil
}

// Filter reindexes the patches that survive a boolean mask, same as
// filtering the base array: a patch at original index i survives iff
// mask[i] is true, and its new index is the number of set mask bits
// before i.
func (p *Patches) Filter(mask []bool) (*Patches, error) {
	if len(mask) != p.ArrayLen {
		return nil, vxerr.E(vxerr.InvalidArgument, "patches.Filter: mask length %d != array_len %d", len(mask), p.ArrayLen)
	}
	// prefix[i] = number of true bits in mask[:i]
	prefix := make([]int, len(mask)+1)
	for i, v := range mask {
		prefix[i+1] = prefix[i]
		if v {
			prefix[i+1]++
		}
	}
	var newIndices []uint64
	var keep []int
	for pos, idx := range p.Indices {
		if mask[idx] {
			newIndices = append(newIndices, uint64(prefix[idx]))
			keep = append(keep, pos)
		}
	}
	newValues, err := takeIndices(p.Values, keep)
	if err != nil {
		return nil, err
	}
	return &Patches{ArrayLen: prefix[len(mask)], Indices: newIndices, Values: newValues}, nil
}

// Slice restricts patches to the window [lo, hi), rebasing surviving
// indices to be relative to lo.
func (p *Patches) Slice(lo, hi int) (*Patches, error) {
	if lo < 0 || hi > p.ArrayLen || lo > hi {
		return nil, vxerr.E(vxerr.OutOfBounds, "patches.Slice: [%d,%d) out of [0,%d)", lo, hi, p.ArrayLen)
	}
	start := sort.Search(len(p.Indices), func(i int) bool { return p.Indices[i] >= uint64(lo) })
	end := sort.Search(len(p.Indices), func(i int) bool { return p.Indices[i] >= uint64(hi) })
	newIndices := make([]uint64, end-start)
	for i := start; i < end; i++ {
		newIndices[i-start] = p.Indices[i] - uint64(lo)
	}
	keep := make([]int, end-start)
	for i := range keep {
		keep[i] = start + i
	}
	newValues, err := takeIndices(p.Values, keep)
	if err != nil {
		return nil, err
	}
	return &Patches{ArrayLen: hi - lo, Indices: newIndices, Values: newValues}, nil
}

// Take scatters a gather of arbitrary (possibly repeated, possibly
// out-of-order) logical indices into a new set of patches keyed by
// position in idx, one entry per idx element that lands on a patched
// source position.
func (p *Patches) Take(idx []uint64) (*Patches, error) {
	var newIndices []uint64
	var keep []int
	for newPos, srcIdx := range idx {
		if srcIdx >= uint64(p.ArrayLen) {
			return nil, vxerr.E(vxerr.OutOfBounds, "patches.Take: index %d >= array_len %d", srcIdx, p.ArrayLen)
		}
		if j := p.search(srcIdx); j >= 0 {
			newIndices = append(newIndices, uint64(newPos))
			keep = append(keep, j)
		}
	}
	newValues, err := takeIndices(p.Values, keep)
	if err != nil {
		return nil, err
	}
	return &Patches{ArrayLen: len(idx), Indices: newIndices, Values: newValues}, nil
}

// PatchMetadata is the stored (offset, width) pair used when serializing
// patches to the on-disk form.
type PatchMetadata struct {
	Offset uint64
	Width  uint64
}

// ToMetadata returns the stored offset/width metadata for a patches set
// over an array of the given length: offset is the first patched index (0
// if none), width is the span covered.
func (p *Patches) ToMetadata(length int) PatchMetadata {
	if len(p.Indices) == 0 {
		return PatchMetadata{}
	}
	first := p.Indices[0]
	last := p.Indices[len(p.Indices)-1]
	return PatchMetadata{Offset: first, Width: last - first + 1}
}

// ApplyToBase overwrites positions of base (given as a mutable unsigned
// scratch buffer of per-element values) with the patch values, in place,
// applying the patches idempotently: applying twice equals applying once
// because every write targets the same index with the same source value.
func ApplyToBase(base []uint64, p *Patches) error {
	for j, idx := range p.Indices {
		s, err := scalarAt(p.Values, j)
		if err != nil {
			return err
		}
		u, ok := s.AsU64()
		if !ok {
			return vxerr.E(vxerr.ComputeError, "patches.ApplyToBase: non-numeric patch value")
		}
		if idx >= uint64(len(base)) {
			return vxerr.E(vxerr.OutOfBounds, "patches.ApplyToBase: index %d >= len %d", idx, len(base))
		}
		base[idx] = u
	}
	return nil
}

func scalarAt(a array.Array, i int) (scalar.Scalar, error) {
	if sa, ok := a.(array.ScalarAtter); ok {
		return sa.ScalarAt(i)
	}
	canon, err := a.IntoCanonical()
	if err != nil {
		return scalar.Scalar{}, err
	}
	sa, ok := canon.(array.ScalarAtter)
	if !ok {
		return scalar.Scalar{}, vxerr.E(vxerr.Unsupported, "patches: canonical form has no scalar_at")
	}
	return sa.ScalarAt(i)
}

func takeIndices(a array.Array, idx []int) (array.Array, error) {
	u64 := make([]uint64, len(idx))
	for i, v := range idx {
		u64[i] = uint64(v)
	}
	idxArray := array.NewPrimitiveArray(dtype.U64, u64ToBytes(u64), len(u64), array.NonNull())
	if t, ok := a.(array.Taker); ok {
		return t.Take(idxArray)
	}
	canon, err := a.IntoCanonical()
	if err != nil {
		return nil, err
	}
	t, ok := canon.(array.Taker)
	if !ok {
		return nil, vxerr.E(vxerr.Unsupported, "patches: canonical form has no take")
	}
	return t.Take(idxArray)
}

func u64ToBytes(v []uint64) []byte {
	buf := make([]byte, 0, len(v)*8)
	for _, x := range v {
		buf = array.AppendRawU64(buf, dtype.U64, x)
	}
	return buf
}
