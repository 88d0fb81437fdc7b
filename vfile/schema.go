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
	"encoding/binary"
	"io"

	"github.com/doki23/vortex/dtype"
	"github.com/doki23/vortex/vxerr"
)

// Schema is the top-level column list: one name and one dtype per
// top-level field, serialized ahead of the footer per the file format's
// [schema bytes | footer bytes | ...] layout.
type Schema struct {
	Names  []string
	DTypes []dtype.DType
}

func encodeString(w *bytes.Buffer, s string) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], uint32(len(s)))
	w.Write(tmp[:])
	w.WriteString(s)
}

func decodeString(r *bytes.Reader) (string, error) {
	var tmp [4]byte
	if _, err := io.ReadFull(r, tmp[:]); err != nil {
		return "", vxerr.E(vxerr.InvalidSerde, "string length: %v", err)
	}
	n := binary.LittleEndian.Uint32(tmp[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", vxerr.E(vxerr.InvalidSerde, "string bytes: %v", err)
	}
	return string(buf), nil
}

func encodeDType(w *bytes.Buffer, d dtype.DType) {
	var tmp [1]byte
	tmp[0] = byte(d.Kind())
	w.Write(tmp[:])
	if d.Nullable() {
		tmp[0] = 1
	} else {
		tmp[0] = 0
	}
	w.Write(tmp[:])
	switch d.Kind() {
	case dtype.KindPrimitive:
		tmp[0] = byte(d.PType())
		w.Write(tmp[:])
	case dtype.KindStruct:
		names := d.FieldNames()
		fields := d.FieldTypes()
		var n [4]byte
		binary.LittleEndian.PutUint32(n[:], uint32(len(names)))
		w.Write(n[:])
		for i := range names {
			encodeString(w, names[i])
			encodeDType(w, fields[i])
		}
	case dtype.KindList:
		encodeDType(w, d.Element())
	case dtype.KindExtension:
		encodeString(w, d.ExtensionName())
		encodeDType(w, d.ExtensionStorage())
		meta := d.ExtensionMetadata()
		var n [4]byte
		binary.LittleEndian.PutUint32(n[:], uint32(len(meta)))
		w.Write(n[:])
		w.Write(meta)
	}
}

func decodeDType(r *bytes.Reader) (dtype.DType, error) {
	var tmp [1]byte
	if _, err := io.ReadFull(r, tmp[:]); err != nil {
		return dtype.DType{}, vxerr.E(vxerr.InvalidSerde, "dtype kind: %v", err)
	}
	kind := dtype.Kind(tmp[0])
	if _, err := io.ReadFull(r, tmp[:]); err != nil {
		return dtype.DType{}, vxerr.E(vxerr.InvalidSerde, "dtype nullable: %v", err)
	}
	nullable := tmp[0] != 0
	switch kind {
	case dtype.KindNull:
		return dtype.Null(), nil
	case dtype.KindBool:
		return dtype.Bool(nullable), nil
	case dtype.KindPrimitive:
		if _, err := io.ReadFull(r, tmp[:]); err != nil {
			return dtype.DType{}, vxerr.E(vxerr.InvalidSerde, "dtype ptype: %v", err)
		}
		return dtype.Primitive(dtype.PType(tmp[0]), nullable), nil
	case dtype.KindUtf8:
		return dtype.Utf8(nullable), nil
	case dtype.KindBinary:
		return dtype.Binary(nullable), nil
	case dtype.KindStruct:
		var n4 [4]byte
		if _, err := io.ReadFull(r, n4[:]); err != nil {
			return dtype.DType{}, vxerr.E(vxerr.InvalidSerde, "dtype field count: %v", err)
		}
		count := binary.LittleEndian.Uint32(n4[:])
		names := make([]string, count)
		fields := make([]dtype.DType, count)
		for i := range names {
			name, err := decodeString(r)
			if err != nil {
				return dtype.DType{}, err
			}
			ft, err := decodeDType(r)
			if err != nil {
				return dtype.DType{}, err
			}
			names[i] = name
			fields[i] = ft
		}
		return dtype.Struct(names, fields, nullable), nil
	case dtype.KindList:
		elem, err := decodeDType(r)
		if err != nil {
			return dtype.DType{}, err
		}
		return dtype.List(elem, nullable), nil
	case dtype.KindExtension:
		name, err := decodeString(r)
		if err != nil {
			return dtype.DType{}, err
		}
		storage, err := decodeDType(r)
		if err != nil {
			return dtype.DType{}, err
		}
		var n4 [4]byte
		if _, err := io.ReadFull(r, n4[:]); err != nil {
			return dtype.DType{}, vxerr.E(vxerr.InvalidSerde, "dtype ext metadata length: %v", err)
		}
		meta := make([]byte, binary.LittleEndian.Uint32(n4[:]))
		if _, err := io.ReadFull(r, meta); err != nil {
			return dtype.DType{}, vxerr.E(vxerr.InvalidSerde, "dtype ext metadata: %v", err)
		}
		return dtype.Extension(name, storage, meta), nil
	default:
		return dtype.DType{}, vxerr.E(vxerr.InvalidSerde, "unknown dtype kind %d", kind)
	}
}

// EncodeSchema serializes a Schema to its binary representation.
func EncodeSchema(s Schema) []byte {
	var buf bytes.Buffer
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(s.Names)))
	buf.Write(n[:])
	for i := range s.Names {
		encodeString(&buf, s.Names[i])
		encodeDType(&buf, s.DTypes[i])
	}
	return buf.Bytes()
}

// DecodeSchema parses a Schema from its binary representation.
func DecodeSchema(data []byte) (Schema, error) {
	r := bytes.NewReader(data)
	var n [4]byte
	if _, err := io.ReadFull(r, n[:]); err != nil {
		return Schema{}, vxerr.E(vxerr.InvalidSerde, "schema field count: %v", err)
	}
	count := binary.LittleEndian.Uint32(n[:])
	s := Schema{Names: make([]string, count), DTypes: make([]dtype.DType, count)}
	for i := range s.Names {
		name, err := decodeString(r)
		if err != nil {
			return Schema{}, err
		}
		dt, err := decodeDType(r)
		if err != nil {
			return Schema{}, err
		}
		s.Names[i] = name
		s.DTypes[i] = dt
	}
	return s, nil
}
