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
	"os"

	"github.com/doki23/vortex/vxerr"
)

// ReadAt is the source abstraction the file reader pulls bytes from.
// Implementations must return bytes that exactly equal file content at
// [pos, pos+len); local-file implementations use positional reads,
// network implementations should issue a single HTTP range request per
// call.
type ReadAt interface {
	ReadByteRange(pos, length int64) ([]byte, error)
	Size() (int64, error)
}

// LocalFile is a ReadAt backed by a positional-read *os.File.
type LocalFile struct {
	f *os.File
}

// OpenLocalFile opens path for positional reads.
func OpenLocalFile(path string) (*LocalFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, vxerr.E(vxerr.IoError, "%v", err)
	}
	return &LocalFile{f: f}, nil
}

// Close releases the underlying file descriptor.
func (l *LocalFile) Close() error { return l.f.Close() }

// ReadByteRange issues a single positional read via (*os.File).ReadAt.
func (l *LocalFile) ReadByteRange(pos, length int64) ([]byte, error) {
	buf := make([]byte, length)
	n, err := l.f.ReadAt(buf, pos)
	if err != nil && int64(n) != length {
		return nil, vxerr.E(vxerr.IoError, "read_byte_range(%d,%d): %v", pos, length, err)
	}
	return buf[:n], nil
}

// Size returns the file's current size.
func (l *LocalFile) Size() (int64, error) {
	fi, err := l.f.Stat()
	if err != nil {
		return 0, vxerr.E(vxerr.IoError, "%v", err)
	}
	return fi.Size(), nil
}

// MemFile is a ReadAt backed by an in-memory byte slice, used in tests
// and by callers that already hold the whole file in memory.
type MemFile struct {
	Data []byte
}

func (m *MemFile) ReadByteRange(pos, length int64) ([]byte, error) {
	if pos < 0 || length < 0 || pos+length > int64(len(m.Data)) {
		return nil, vxerr.E(vxerr.IoError, "read_byte_range(%d,%d) out of range (size %d)", pos, length, len(m.Data))
	}
	return m.Data[pos : pos+length], nil
}

func (m *MemFile) Size() (int64, error) { return int64(len(m.Data)), nil }
