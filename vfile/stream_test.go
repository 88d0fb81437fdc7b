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

import (
	"bytes"
	"context"
	"testing"

	"github.com/doki23/vortex/array"
	"github.com/doki23/vortex/dtype"
	"github.com/doki23/vortex/scalar"
)

// buildSingleColumnFile writes a one-field file containing values as an
// I64 primitive column, returning the encoded bytes.
func buildSingleColumnFile(t *testing.T, values []int64) []byte {
	t.Helper()
	var raw []byte
	for _, v := range values {
		raw = array.AppendRawU64(raw, dtype.I64, uint64(v))
	}
	schema := Schema{Names: []string{"score"}, DTypes: []dtype.DType{dtype.Primitive(dtype.I64, false)}}
	footer := Footer{
		RowCount: uint64(len(values)),
		Layout: Layout{
			Encoding: uint16(array.EncodingPrimitive),
			Buffers:  []Buffer{{Begin: 0, End: uint64(len(raw))}},
			Length:   uint64(len(values)),
		},
	}
	var buf bytes.Buffer
	buf.Write(raw)
	base := int64(buf.Len())
	if _, err := WriteFile(&buf, base, EncodeSchema(schema), footer); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestOpenStreamReadsFooterAndSchema(t *testing.T) {
	data := buildSingleColumnFile(t, []int64{1, 2, 3})
	s, err := OpenStream(&MemFile{Data: data}, "f", DefaultReaderConfig())
	if err != nil {
		t.Fatal(err)
	}
	if s.Footer.RowCount != 3 {
		t.Errorf("RowCount = %d, want 3", s.Footer.RowCount)
	}
	if len(s.Schema.Names) != 1 || s.Schema.Names[0] != "score" {
		t.Errorf("Schema.Names = %v, want [score]", s.Schema.Names)
	}
}

func TestStreamReadColumnDecodesValues(t *testing.T) {
	data := buildSingleColumnFile(t, []int64{10, 20, 30})
	s, err := OpenStream(&MemFile{Data: data}, "f", DefaultReaderConfig())
	if err != nil {
		t.Fatal(err)
	}
	arr, err := s.ReadColumn(context.Background(), "score")
	if err != nil {
		t.Fatal(err)
	}
	pa := arr.(*array.PrimitiveArray)
	want := []uint64{10, 20, 30}
	for i, w := range want {
		sc, err := pa.ScalarAt(i)
		if err != nil {
			t.Fatal(err)
		}
		got, _ := sc.AsU64()
		if got != w {
			t.Errorf("ScalarAt(%d) = %d, want %d", i, got, w)
		}
	}
}

func TestStreamReadColumnRejectsUnknownField(t *testing.T) {
	data := buildSingleColumnFile(t, []int64{1})
	s, err := OpenStream(&MemFile{Data: data}, "f", DefaultReaderConfig())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.ReadColumn(context.Background(), "nope"); err == nil {
		t.Fatal("expected an unknown field name to error")
	}
}

func TestStreamReadAllFilteredAppliesThreshold(t *testing.T) {
	data := buildSingleColumnFile(t, []int64{5, 15, 25, 35})
	s, err := OpenStream(&MemFile{Data: data}, "f", DefaultReaderConfig())
	if err != nil {
		t.Fatal(err)
	}
	filtered, err := s.ReadAllFiltered(context.Background(), "score", array.Gt, scalar.I64(20))
	if err != nil {
		t.Fatal(err)
	}
	if filtered.Len() != 2 {
		t.Fatalf("filtered.Len() = %d, want 2 (rows > 20)", filtered.Len())
	}
}

func TestStreamReadAllWrapsPlainColumnAsChunked(t *testing.T) {
	data := buildSingleColumnFile(t, []int64{1, 2, 3})
	s, err := OpenStream(&MemFile{Data: data}, "f", DefaultReaderConfig())
	if err != nil {
		t.Fatal(err)
	}
	arr, err := s.ReadAll(context.Background(), "score")
	if err != nil {
		t.Fatal(err)
	}
	if arr.EncodingID() != array.EncodingChunked {
		t.Errorf("ReadAll EncodingID() = %v, want EncodingChunked", arr.EncodingID())
	}
	if arr.Len() != 3 {
		t.Errorf("ReadAll Len() = %d, want 3", arr.Len())
	}
}
