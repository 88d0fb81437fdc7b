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
	"testing"
)

func sampleFooter() Footer {
	return Footer{
		RowCount: 42,
		Layout: Layout{
			Encoding: 7,
			Buffers:  []Buffer{{Begin: 0, End: 100}},
			Length:   42,
			Metadata: []byte{1, 2, 3},
			Children: []Layout{
				{Encoding: 1, Buffers: []Buffer{{Begin: 100, End: 150}}, Length: 20},
				{Encoding: 1, Buffers: []Buffer{{Begin: 150, End: 200}}, Length: 22},
			},
		},
	}
}

func TestFooterEncodeDecodeRoundTrips(t *testing.T) {
	f := sampleFooter()
	encoded := EncodeFooter(f)
	decoded, err := DecodeFooter(encoded)
	if err != nil {
		t.Fatal(err)
	}
	if decoded.RowCount != f.RowCount {
		t.Errorf("RowCount = %d, want %d", decoded.RowCount, f.RowCount)
	}
	if decoded.Layout.Encoding != f.Layout.Encoding {
		t.Errorf("Layout.Encoding = %d, want %d", decoded.Layout.Encoding, f.Layout.Encoding)
	}
	if len(decoded.Layout.Children) != 2 {
		t.Fatalf("Layout.Children len = %d, want 2", len(decoded.Layout.Children))
	}
	if decoded.Layout.Children[1].Length != 22 {
		t.Errorf("Children[1].Length = %d, want 22", decoded.Layout.Children[1].Length)
	}
	if !bytes.Equal(decoded.Layout.Metadata, f.Layout.Metadata) {
		t.Errorf("Metadata = %v, want %v", decoded.Layout.Metadata, f.Layout.Metadata)
	}
}

func TestDecodeFooterRejectsTruncatedInput(t *testing.T) {
	f := sampleFooter()
	encoded := EncodeFooter(f)
	if _, err := DecodeFooter(encoded[:len(encoded)-5]); err == nil {
		t.Fatal("expected truncated footer bytes to fail decoding")
	}
}

func TestWriteFileAndReadFooterRoundTrip(t *testing.T) {
	schema := []byte("schema-bytes")
	f := sampleFooter()
	var buf bytes.Buffer
	n, err := WriteFile(&buf, 0, schema, f)
	if err != nil {
		t.Fatal(err)
	}
	if n != int64(buf.Len()) {
		t.Errorf("WriteFile reported %d bytes, buffer has %d", n, buf.Len())
	}
	src := &MemFile{Data: buf.Bytes()}
	gotFooter, gotSchema, err := ReadFooter(src)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(gotSchema, schema) {
		t.Errorf("schema = %q, want %q", gotSchema, schema)
	}
	if gotFooter.RowCount != f.RowCount {
		t.Errorf("RowCount = %d, want %d", gotFooter.RowCount, f.RowCount)
	}
}

func TestReadFooterRejectsBadMagic(t *testing.T) {
	schema := []byte("schema")
	f := sampleFooter()
	var buf bytes.Buffer
	if _, err := WriteFile(&buf, 0, schema, f); err != nil {
		t.Fatal(err)
	}
	data := buf.Bytes()
	data[len(data)-1] = 'X'
	src := &MemFile{Data: data}
	if _, _, err := ReadFooter(src); err == nil {
		t.Fatal("expected corrupted magic to be rejected")
	}
}

func TestReadFooterRejectsFileTooSmall(t *testing.T) {
	src := &MemFile{Data: []byte("short")}
	if _, _, err := ReadFooter(src); err == nil {
		t.Fatal("expected a file smaller than the trailer to be rejected")
	}
}
