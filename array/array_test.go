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
	"errors"
	"testing"

	"github.com/doki23/vortex/dtype"
	"github.com/doki23/vortex/vxerr"
)

// a private test-only encoding id, well clear of every registered id.
const testEncodingID EncodingID = 60000

func TestRegisterAndDecode(t *testing.T) {
	RegisterEncoding(testEncodingID, func(dt dtype.DType, length int, buffers [][]byte, children []Array, metadata []byte) (Array, error) {
		return NewBoolArrayFromBools(make([]bool, length), NonNull()), nil
	})
	got, err := Decode(testEncodingID, dtype.Bool(false), 4, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got.Len() != 4 {
		t.Fatalf("decoded array Len() = %d, want 4", got.Len())
	}
}

func TestRegisterEncodingPanicsOnDuplicate(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate registration")
		}
	}()
	fn := func(dt dtype.DType, length int, buffers [][]byte, children []Array, metadata []byte) (Array, error) {
		return nil, nil
	}
	RegisterEncoding(EncodingBool, fn)
}

func TestDecodeUnknownEncoding(t *testing.T) {
	_, err := Decode(EncodingID(59999), dtype.Bool(false), 1, nil, nil, nil)
	if !errors.Is(err, vxerr.InvalidSerde) {
		t.Fatalf("expected InvalidSerde, got %v", err)
	}
}

func TestErrBounds(t *testing.T) {
	err := ErrBounds(5, 3)
	if !errors.Is(err, vxerr.OutOfBounds) {
		t.Fatal("ErrBounds should classify as OutOfBounds")
	}
}

func TestErrLength(t *testing.T) {
	err := ErrLength("take", 2, 3)
	if !errors.Is(err, vxerr.InvalidArgument) {
		t.Fatal("ErrLength should classify as InvalidArgument")
	}
}

func TestErrDTypeMismatch(t *testing.T) {
	err := ErrDTypeMismatch("compare", dtype.Primitive(dtype.I32, false), dtype.Primitive(dtype.F64, false))
	if !errors.Is(err, vxerr.MismatchedTypes) {
		t.Fatal("ErrDTypeMismatch should classify as MismatchedTypes")
	}
}
