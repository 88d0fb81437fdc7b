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

// Package vfile implements the file-reader pipeline: footer/layout
// parsing, split accumulation, row masks, a buffered layout reader that
// batches byte-range fetches through a shared message cache, and the
// layered split/mask/array stream that backs ReadAll.
//
// The on-disk footer format here is hand-written binary encode/decode
// rather than FlatBuffers-generated code (code generation from a schema
// compiler is out of scope).
package vfile

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/doki23/vortex/vxerr"
)

// Magic is the fixed 4-byte trailer identifying a Vortex file.
const Magic = "VTXF"

// DefaultInitialReadSize is the default ReaderConfig.InitialReadSize
// (8 MiB). ReadFooter does not use it: it reads the fixed-size trailer,
// then exactly the footer and schema ranges the trailer points at.
const DefaultInitialReadSize = 8 << 20

// Buffer is an absolute byte range within the file.
type Buffer struct {
	Begin uint64
	End   uint64
}

// Len returns the byte length of the range.
func (b Buffer) Len() int64 { return int64(b.End - b.Begin) }

// Layout is one node of the footer's encoding tree: an encoding id, its
// buffers (absolute file ranges), child layouts, a logical length, and a
// small metadata blob, mirroring array.Array's own
// (EncodingID, Buffer, Children, Metadata) shape but for on-disk
// descriptors rather than in-memory arrays.
type Layout struct {
	Encoding uint16
	Buffers  []Buffer
	Children []Layout
	Length   uint64
	Metadata []byte
}

// Footer is the root of a Vortex file's metadata: the total row count and
// the top-level layout describing how to read it.
type Footer struct {
	RowCount uint64
	Layout   Layout
}

// Postscript records where the schema and footer begin, read from the
// fixed-size trailer at the end of the file.
type Postscript struct {
	SchemaOffset uint64
	FooterOffset uint64
}

// postscriptSize is the encoded byte size of a Postscript (two uint64s).
const postscriptSize = 16

// trailerSize is the fixed-size suffix following footer bytes:
// postscript, postscript-len:u32, magic.
const trailerSize = postscriptSize + 4 + len(Magic)

func encodeBuffer(w *bytes.Buffer, b Buffer) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], b.Begin)
	w.Write(tmp[:])
	binary.LittleEndian.PutUint64(tmp[:], b.End)
	w.Write(tmp[:])
}

func decodeBuffer(r *bytes.Reader) (Buffer, error) {
	var tmp [8]byte
	if _, err := io.ReadFull(r, tmp[:]); err != nil {
		return Buffer{}, vxerr.E(vxerr.InvalidSerde, "buffer: %v", err)
	}
	begin := binary.LittleEndian.Uint64(tmp[:])
	if _, err := io.ReadFull(r, tmp[:]); err != nil {
		return Buffer{}, vxerr.E(vxerr.InvalidSerde, "buffer: %v", err)
	}
	end := binary.LittleEndian.Uint64(tmp[:])
	return Buffer{Begin: begin, End: end}, nil
}

func encodeLayout(w *bytes.Buffer, l Layout) {
	var tmp [8]byte
	binary.LittleEndian.PutUint16(tmp[:2], l.Encoding)
	w.Write(tmp[:2])
	binary.LittleEndian.PutUint32(tmp[:4], uint32(len(l.Buffers)))
	w.Write(tmp[:4])
	for _, b := range l.Buffers {
		encodeBuffer(w, b)
	}
	binary.LittleEndian.PutUint32(tmp[:4], uint32(len(l.Children)))
	w.Write(tmp[:4])
	for _, c := range l.Children {
		encodeLayout(w, c)
	}
	binary.LittleEndian.PutUint64(tmp[:8], l.Length)
	w.Write(tmp[:8])
	binary.LittleEndian.PutUint32(tmp[:4], uint32(len(l.Metadata)))
	w.Write(tmp[:4])
	w.Write(l.Metadata)
}

func decodeLayout(r *bytes.Reader) (Layout, error) {
	var l Layout
	var tmp [8]byte
	if _, err := io.ReadFull(r, tmp[:2]); err != nil {
		return l, vxerr.E(vxerr.InvalidSerde, "layout encoding: %v", err)
	}
	l.Encoding = binary.LittleEndian.Uint16(tmp[:2])
	if _, err := io.ReadFull(r, tmp[:4]); err != nil {
		return l, vxerr.E(vxerr.InvalidSerde, "layout buffer count: %v", err)
	}
	nbuf := binary.LittleEndian.Uint32(tmp[:4])
	l.Buffers = make([]Buffer, nbuf)
	for i := range l.Buffers {
		b, err := decodeBuffer(r)
		if err != nil {
			return l, err
		}
		l.Buffers[i] = b
	}
	if _, err := io.ReadFull(r, tmp[:4]); err != nil {
		return l, vxerr.E(vxerr.InvalidSerde, "layout child count: %v", err)
	}
	nchild := binary.LittleEndian.Uint32(tmp[:4])
	l.Children = make([]Layout, nchild)
	for i := range l.Children {
		c, err := decodeLayout(r)
		if err != nil {
			return l, err
		}
		l.Children[i] = c
	}
	if _, err := io.ReadFull(r, tmp[:8]); err != nil {
		return l, vxerr.E(vxerr.InvalidSerde, "layout length: %v", err)
	}
	l.Length = binary.LittleEndian.Uint64(tmp[:8])
	if _, err := io.ReadFull(r, tmp[:4]); err != nil {
		return l, vxerr.E(vxerr.InvalidSerde, "layout metadata length: %v", err)
	}
	mlen := binary.LittleEndian.Uint32(tmp[:4])
	l.Metadata = make([]byte, mlen)
	if _, err := io.ReadFull(r, l.Metadata); err != nil {
		return l, vxerr.E(vxerr.InvalidSerde, "layout metadata: %v", err)
	}
	return l, nil
}

// EncodeFooter serializes a Footer to its binary representation.
func EncodeFooter(f Footer) []byte {
	var buf bytes.Buffer
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], f.RowCount)
	buf.Write(tmp[:])
	encodeLayout(&buf, f.Layout)
	return buf.Bytes()
}

// DecodeFooter parses a Footer from its binary representation.
func DecodeFooter(data []byte) (Footer, error) {
	r := bytes.NewReader(data)
	var tmp [8]byte
	if _, err := io.ReadFull(r, tmp[:]); err != nil {
		return Footer{}, vxerr.E(vxerr.InvalidSerde, "footer row_count: %v", err)
	}
	rowCount := binary.LittleEndian.Uint64(tmp[:])
	layout, err := decodeLayout(r)
	if err != nil {
		return Footer{}, err
	}
	return Footer{RowCount: rowCount, Layout: layout}, nil
}

// WriteFile writes schema bytes, footer bytes, and the fixed trailer
// (postscript, postscript-len, magic) to w, returning the total bytes
// written. The schema and footer offsets written into the postscript are
// absolute file offsets, computed from base (the absolute file offset w
// is positioned at).
func WriteFile(w io.Writer, base int64, schema []byte, footer Footer) (int64, error) {
	var written int64
	n, err := w.Write(schema)
	written += int64(n)
	if err != nil {
		return written, err
	}
	schemaOffset := uint64(base)
	footerOffset := uint64(base) + uint64(n)

	footerBytes := EncodeFooter(footer)
	n, err = w.Write(footerBytes)
	written += int64(n)
	if err != nil {
		return written, err
	}

	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], schemaOffset)
	if n, err = w.Write(tmp[:]); err != nil {
		return written + int64(n), err
	}
	written += int64(n)
	binary.LittleEndian.PutUint64(tmp[:], footerOffset)
	if n, err = w.Write(tmp[:]); err != nil {
		return written + int64(n), err
	}
	written += int64(n)

	var tmp4 [4]byte
	binary.LittleEndian.PutUint32(tmp4[:], postscriptSize)
	if n, err = w.Write(tmp4[:]); err != nil {
		return written + int64(n), err
	}
	written += int64(n)

	n, err = io.WriteString(w, Magic)
	written += int64(n)
	return written, err
}

// ReadFooter reads the trailing postscript from src, then the footer and
// schema bytes it points at, returning the parsed Footer and the raw
// schema bytes.
func ReadFooter(src ReadAt) (Footer, []byte, error) {
	size, err := src.Size()
	if err != nil {
		return Footer{}, nil, vxerr.E(vxerr.IoError, "size: %v", err)
	}
	if size < trailerSize {
		return Footer{}, nil, vxerr.E(vxerr.InvalidSerde, "file too small to contain a trailer")
	}
	tail, err := src.ReadByteRange(size-trailerSize, trailerSize)
	if err != nil {
		return Footer{}, nil, vxerr.E(vxerr.IoError, "%v", err)
	}
	if string(tail[trailerSize-len(Magic):]) != Magic {
		return Footer{}, nil, vxerr.E(vxerr.InvalidSerde, "bad magic")
	}
	psLen := binary.LittleEndian.Uint32(tail[postscriptSize : postscriptSize+4])
	if psLen != postscriptSize {
		return Footer{}, nil, vxerr.E(vxerr.InvalidSerde, "unexpected postscript length %d", psLen)
	}
	schemaOffset := binary.LittleEndian.Uint64(tail[0:8])
	footerOffset := binary.LittleEndian.Uint64(tail[8:16])

	footerLen := int64(size) - trailerSize - int64(footerOffset)
	if footerLen < 0 {
		return Footer{}, nil, vxerr.E(vxerr.InvalidSerde, "negative footer length")
	}
	footerBytes, err := src.ReadByteRange(int64(footerOffset), footerLen)
	if err != nil {
		return Footer{}, nil, vxerr.E(vxerr.IoError, "%v", err)
	}
	footer, err := DecodeFooter(footerBytes)
	if err != nil {
		return Footer{}, nil, err
	}

	schemaLen := int64(footerOffset) - int64(schemaOffset)
	if schemaLen < 0 {
		return Footer{}, nil, vxerr.E(vxerr.InvalidSerde, "negative schema length")
	}
	schema, err := src.ReadByteRange(int64(schemaOffset), schemaLen)
	if err != nil {
		return Footer{}, nil, vxerr.E(vxerr.IoError, "%v", err)
	}
	return footer, schema, nil
}
