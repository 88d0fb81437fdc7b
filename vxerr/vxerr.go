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

// Package vxerr defines the typed error kinds shared by the array, compute,
// and file-reader packages.
package vxerr

import (
	"errors"
	"fmt"
)

// Kind is one of the typed error categories that compute kernels, encoding
// constructors, and the file reader return instead of an untyped error.
type Kind error

// The fixed set of error kinds. Use errors.Is(err, vxerr.OutOfBounds) etc.
// to classify an error returned from this module.
var (
	// InvalidArgument indicates malformed arguments to a constructor or
	// kernel: a length mismatch, a bad dtype, an out-of-range index passed
	// to take.
	InvalidArgument Kind = errors.New("invalid argument")
	// MismatchedTypes indicates operands disagree on dtype or ptype where
	// equality was required.
	MismatchedTypes Kind = errors.New("mismatched types")
	// OutOfBounds indicates an index at or beyond a length.
	OutOfBounds Kind = errors.New("out of bounds")
	// Unsupported indicates no kernel implementation exists and
	// canonicalization also declined.
	Unsupported Kind = errors.New("unsupported")
	// InvalidSerde indicates footer/layout parsing or an encoding-id lookup
	// failure.
	InvalidSerde Kind = errors.New("invalid serialized data")
	// IoError wraps an underlying ReadAt failure, propagated without
	// remapping.
	IoError Kind = errors.New("io error")
	// ComputeError indicates a numeric cast failure or an overflow where
	// one was not permitted.
	ComputeError Kind = errors.New("compute error")
)

// E builds an error of the given kind, wrapping it so that errors.Is(err,
// kind) holds and %w-chaining through multiple layers keeps working.
func E(kind Kind, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// Wrap attaches kind to an existing error without discarding it.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", kind, err)
}
