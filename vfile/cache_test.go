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

import "testing"

func TestMessageIDIsStableAndRangeSensitive(t *testing.T) {
	a := NewMessageID("/x/data.vtx", Buffer{Begin: 0, End: 10})
	b := NewMessageID("/x/data.vtx", Buffer{Begin: 0, End: 10})
	if a != b {
		t.Error("NewMessageID must be deterministic for identical (path, range)")
	}
	c := NewMessageID("/x/data.vtx", Buffer{Begin: 0, End: 11})
	if a == c {
		t.Error("NewMessageID must differ when the byte range differs")
	}
	d := NewMessageID("/y/data.vtx", Buffer{Begin: 0, End: 10})
	if a == d {
		t.Error("NewMessageID must differ when the path differs")
	}
}

func TestMessageCacheGetMiss(t *testing.T) {
	c := NewMessageCache(0)
	if _, ok := c.Get(NewMessageID("p", Buffer{Begin: 0, End: 1})); ok {
		t.Error("Get on an empty cache must report a miss")
	}
}

func TestMessageCacheInsertAndGet(t *testing.T) {
	c := NewMessageCache(0)
	id := NewMessageID("p", Buffer{Begin: 0, End: 3})
	c.Insert(id, []byte{1, 2, 3})
	data, ok := c.Get(id)
	if !ok {
		t.Fatal("expected a hit after Insert")
	}
	if len(data) != 3 || data[0] != 1 {
		t.Errorf("Get() = %v, want [1 2 3]", data)
	}
	if c.Size() != 3 {
		t.Errorf("Size() = %d, want 3", c.Size())
	}
}

func TestMessageCacheInsertIsFirstWriterWins(t *testing.T) {
	c := NewMessageCache(0)
	id := NewMessageID("p", Buffer{Begin: 0, End: 3})
	c.Insert(id, []byte{1, 2, 3})
	c.Insert(id, []byte{9, 9, 9})
	data, _ := c.Get(id)
	if data[0] != 1 {
		t.Errorf("second Insert must not overwrite an existing entry, got %v", data)
	}
	if c.Size() != 3 {
		t.Errorf("Size() = %d, want 3 (size must not double-count a duplicate insert)", c.Size())
	}
}
