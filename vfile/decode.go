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
	"github.com/doki23/vortex/array"
	"github.com/doki23/vortex/dtype"
	"github.com/doki23/vortex/vxerr"
)

// childDTypes derives the dtype each of l's children must be decoded
// against, mirroring the Children() shape each encoding package builds
// in memory (e.g. encoding/chunked.Array.Children returns
// [offsets, chunk0, chunk1, ...]; Struct returns one child per field).
// The footer only stores an encoding id per node, so the parent's
// dtype plus the encoding id is enough to reconstruct this without
// carrying redundant per-child type tags on disk.
func childDTypes(encoding uint16, dt dtype.DType, nchildren int) ([]dtype.DType, error) {
	switch array.EncodingID(encoding) {
	case array.EncodingNull, array.EncodingBool, array.EncodingPrimitive,
		array.EncodingVarBin, array.EncodingConstant,
		array.EncodingRoaringBool, array.EncodingRoaringInt:
		if nchildren != 0 {
			return nil, vxerr.E(vxerr.InvalidSerde, "leaf encoding %d has %d children", encoding, nchildren)
		}
		return nil, nil
	case array.EncodingStruct:
		fields := dt.FieldTypes()
		if len(fields) != nchildren {
			return nil, vxerr.E(vxerr.InvalidSerde, "struct encoding: %d fields but %d children", len(fields), nchildren)
		}
		return fields, nil
	case array.EncodingList:
		if nchildren != 2 {
			return nil, vxerr.E(vxerr.InvalidSerde, "list encoding: expected 2 children, got %d", nchildren)
		}
		return []dtype.DType{dtype.Primitive(dtype.U32, false), dt.Element()}, nil
	case array.EncodingBitPacked:
		out := make([]dtype.DType, nchildren)
		if nchildren > 0 {
			out[0] = dtype.Primitive(dtype.U64, false)
		}
		if nchildren > 1 {
			out[1] = dt.AsNonNullable()
		}
		return out, nil
	case array.EncodingFrameOfReference:
		if nchildren != 1 {
			return nil, vxerr.E(vxerr.InvalidSerde, "forencoding: expected 1 child, got %d", nchildren)
		}
		return []dtype.DType{dtype.Primitive(dt.PType().Unsigned(), dt.Nullable())}, nil
	case array.EncodingRunEnd:
		if nchildren != 2 {
			return nil, vxerr.E(vxerr.InvalidSerde, "ree: expected 2 children, got %d", nchildren)
		}
		return []dtype.DType{dtype.Primitive(dtype.U64, false), dt}, nil
	case array.EncodingALP, array.EncodingALPRD:
		out := make([]dtype.DType, nchildren)
		intPType := dtype.I32
		if dt.PType() == dtype.F64 {
			intPType = dtype.I64
		}
		if nchildren > 0 {
			out[0] = dtype.Primitive(intPType, dt.Nullable())
		}
		if nchildren > 1 {
			out[1] = dtype.Primitive(dtype.U64, false)
		}
		if nchildren > 2 {
			out[2] = dt.AsNonNullable()
		}
		return out, nil
	case array.EncodingSparse:
		out := make([]dtype.DType, nchildren)
		if nchildren > 0 {
			out[0] = dtype.Primitive(dtype.U64, false)
		}
		if nchildren > 1 {
			out[1] = dt.AsNonNullable()
		}
		return out, nil
	case array.EncodingChunked:
		out := make([]dtype.DType, nchildren)
		if nchildren > 0 {
			out[0] = dtype.Primitive(dtype.U64, false)
		}
		for i := 1; i < nchildren; i++ {
			out[i] = dt
		}
		return out, nil
	default:
		return nil, vxerr.E(vxerr.InvalidSerde, "unknown encoding id %d", encoding)
	}
}

// DecodeLayout reconstructs an in-memory array.Array from a Layout node,
// fetching each buffer range through cache (populating it on miss) and
// recursively decoding children before invoking the encoding's
// registered DecodeFunc.
func DecodeLayout(l Layout, dt dtype.DType, path string, src ReadAt, cache *MessageCache) (array.Array, error) {
	buffers := make([][]byte, len(l.Buffers))
	for i, b := range l.Buffers {
		data, err := fetchBuffer(path, b, src, cache)
		if err != nil {
			return nil, err
		}
		buffers[i] = data
	}
	childTypes, err := childDTypes(l.Encoding, dt, len(l.Children))
	if err != nil {
		return nil, err
	}
	children := make([]array.Array, len(l.Children))
	for i, c := range l.Children {
		child, err := DecodeLayout(c, childTypes[i], path, src, cache)
		if err != nil {
			return nil, err
		}
		children[i] = child
	}
	return array.Decode(array.EncodingID(l.Encoding), dt, int(l.Length), buffers, children, l.Metadata)
}

func fetchBuffer(path string, b Buffer, src ReadAt, cache *MessageCache) ([]byte, error) {
	id := NewMessageID(path, b)
	if data, ok := cache.Get(id); ok {
		return data, nil
	}
	data, err := src.ReadByteRange(int64(b.Begin), b.Len())
	if err != nil {
		return nil, vxerr.E(vxerr.IoError, "%v", err)
	}
	cache.Insert(id, data)
	return data, nil
}
