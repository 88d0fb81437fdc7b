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

package vxerr

import (
	"errors"
	"testing"
)

func TestEClassifiesWithErrorsIs(t *testing.T) {
	err := E(OutOfBounds, "index %d >= length %d", 5, 3)
	if !errors.Is(err, OutOfBounds) {
		t.Fatal("errors.Is(err, OutOfBounds) should hold")
	}
	if errors.Is(err, Unsupported) {
		t.Fatal("errors.Is(err, Unsupported) should not hold")
	}
	if got, want := err.Error(), "out of bounds: index 5 >= length 3"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestWrapPreservesBothLayers(t *testing.T) {
	inner := errors.New("disk read failed")
	wrapped := Wrap(IoError, inner)
	if !errors.Is(wrapped, IoError) {
		t.Fatal("errors.Is(wrapped, IoError) should hold")
	}
	if !errors.Is(wrapped, inner) {
		t.Fatal("errors.Is(wrapped, inner) should hold: Wrap must not discard the original error")
	}
}

func TestWrapNilIsNil(t *testing.T) {
	if Wrap(ComputeError, nil) != nil {
		t.Fatal("Wrap(kind, nil) should return nil")
	}
}

func TestKindsAreDistinct(t *testing.T) {
	kinds := []Kind{InvalidArgument, MismatchedTypes, OutOfBounds, Unsupported, InvalidSerde, IoError, ComputeError}
	for i := range kinds {
		for j := range kinds {
			if i == j {
				continue
			}
			if errors.Is(kinds[i], kinds[j]) {
				t.Errorf("kind %d unexpectedly matches kind %d", i, j)
			}
		}
	}
}
