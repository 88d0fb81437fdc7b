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
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/doki23/vortex/vxerr"
)

var (
	zstdEncoderOnce sync.Once
	zstdEncoder     *zstd.Encoder
	zstdDecoderOnce sync.Once
	zstdDecoder     *zstd.Decoder
)

func encoder() *zstd.Encoder {
	zstdEncoderOnce.Do(func() {
		zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	})
	return zstdEncoder
}

func decoder() *zstd.Decoder {
	zstdDecoderOnce.Do(func() {
		zstdDecoder, _ = zstd.NewReader(nil)
	})
	return zstdDecoder
}

// CompressBuffer zstd-compresses a serialized buffer for on-disk
// storage.
func CompressBuffer(data []byte) []byte {
	return encoder().EncodeAll(data, nil)
}

// DecompressBuffer reverses CompressBuffer.
func DecompressBuffer(data []byte) ([]byte, error) {
	out, err := decoder().DecodeAll(data, nil)
	if err != nil {
		return nil, vxerr.E(vxerr.InvalidSerde, "zstd decompress: %v", err)
	}
	return out, nil
}

// CompressedReadAt wraps a ReadAt whose buffer ranges were each
// individually zstd-compressed with CompressBuffer, transparently
// decompressing every fetched range. Size() still reports the
// underlying (compressed) file size, since footer/layout byte ranges
// already address compressed offsets.
type CompressedReadAt struct {
	Inner ReadAt
}

func (c *CompressedReadAt) ReadByteRange(pos, length int64) ([]byte, error) {
	raw, err := c.Inner.ReadByteRange(pos, length)
	if err != nil {
		return nil, err
	}
	return DecompressBuffer(raw)
}

func (c *CompressedReadAt) Size() (int64, error) { return c.Inner.Size() }
