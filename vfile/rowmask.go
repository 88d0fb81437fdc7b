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

package vfile

import "github.com/doki23/vortex/array"

// RowMask binds a [Begin, End) absolute row range to a bitmap of which
// rows within that range are selected.
type RowMask struct {
	Begin, End uint64
	Selected   *array.BoolArray
}

// FullRowMask returns a mask over [begin, end) with every row selected.
func FullRowMask(begin, end uint64) RowMask {
	n := int(end - begin)
	bits := make([]bool, n)
	for i := range bits {
		bits[i] = true
	}
	return RowMask{Begin: begin, End: end, Selected: array.NewBoolArrayFromBools(bits, array.NonNull())}
}

// TrueCount returns the number of selected rows in the mask.
func (m RowMask) TrueCount() int { return m.Selected.TrueCount() }

// MasksFromSplits pre-intersects a user-provided mask with split, the
// split set's derived ranges, producing one RowMask per split range —
// the split accumulator's "pre-intersect a user-provided mask with the
// split set before streaming masks downstream" step.
func MasksFromSplits(ranges []Buffer, userMask RowMask) ([]RowMask, error) {
	out := make([]RowMask, len(ranges))
	for i, r := range ranges {
		lo := int(r.Begin - userMask.Begin)
		hi := int(r.End - userMask.Begin)
		sliced, err := userMask.Selected.Slice(lo, hi)
		if err != nil {
			return nil, err
		}
		out[i] = RowMask{Begin: r.Begin, End: r.End, Selected: sliced.(*array.BoolArray)}
	}
	return out, nil
}
