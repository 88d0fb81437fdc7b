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
	"encoding/binary"
	"sync"

	"golang.org/x/crypto/blake2b"
)

// MessageID identifies a fetched (path, byte-range) pair by content key:
// a blake2b-256 digest of the source path and the absolute range.
type MessageID [32]byte

// NewMessageID computes the cache key for a byte range read from path.
func NewMessageID(path string, b Buffer) MessageID {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(path))
	var tmp [16]byte
	binary.LittleEndian.PutUint64(tmp[:8], b.Begin)
	binary.LittleEndian.PutUint64(tmp[8:], b.End)
	h.Write(tmp[:])
	var id MessageID
	copy(id[:], h.Sum(nil))
	return id
}

// MessageCache maps MessageID to fetched bytes. Insertion is
// last-writer-wins; every writer is expected to write identical content
// for the same key (byte-range identity), so a racing duplicate fetch
// is harmless. Mutation never holds the lock across I/O.
type MessageCache struct {
	mu      sync.RWMutex
	entries map[MessageID][]byte
	budget  int64 // configured byte budget; recorded only, Insert never evicts
	size    int64
}

// NewMessageCache constructs an empty cache recording the given byte
// budget. The budget is not enforced: retained bytes are unbounded
// whatever its value.
func NewMessageCache(budget int64) *MessageCache {
	return &MessageCache{entries: make(map[MessageID][]byte), budget: budget}
}

// Get returns the cached bytes for id, if present.
func (c *MessageCache) Get(id MessageID) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.entries[id]
	return b, ok
}

// Insert stores data under id. If the cache is over budget afterward, no
// eviction is attempted here (the driver is expected to bound
// outstanding fetches itself via ReaderConfig.MaxConcurrentFetches); this
// cache is an append-only dedup layer, not an LRU.
func (c *MessageCache) Insert(id MessageID, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[id]; ok {
		return
	}
	c.entries[id] = data
	c.size += int64(len(data))
}

// Size reports the current total bytes retained.
func (c *MessageCache) Size() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.size
}
