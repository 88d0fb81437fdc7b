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

// ErrUnknownEncoding reports that id has no registered decoder.
func ErrUnknownEncoding(id EncodingID) error {
	return vxerr.E(vxerr.InvalidSerde, "unknown encoding id %d", id)
}

// ErrLength reports a length mismatch between two operands, or between an
// operand and an expected length.
func ErrLength(context string, got, want int) error {
	return vxerr.E(vxerr.InvalidArgument, "%s: length %d, expected %d", context, got, want)
}

// ErrBounds reports an out-of-range index.
func ErrBounds(i, length int) error {
	return vxerr.E(vxerr.OutOfBounds, "index %d out of bounds (len %d)", i, length)
}

// ErrDTypeMismatch reports that two operands disagree on dtype where
// equality was required.
func ErrDTypeMismatch(context string, a, b interface{ String() string }) error {
	return vxerr.E(vxerr.MismatchedTypes, "%s: %s != %s", context, a.String(), b.String())
}
