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
	"context"
	"testing"
)

// sumOp is a two-round OpFunc: the first call asks for the one buffer
// it needs, the second call sums the fetched bytes once the cache holds
// it.
func sumOp(path string, rng Buffer) OpFunc[struct{}, int] {
	return func(cache *MessageCache, _ struct{}) (int, []FetchMessage, bool, error) {
		data, ok := cache.Get(NewMessageID(path, rng))
		if !ok {
			return 0, []FetchMessage{{Path: path, Range: rng}}, false, nil
		}
		sum := 0
		for _, b := range data {
			sum += int(b)
		}
		return sum, nil, true, nil
	}
}

func TestBufferedLayoutReaderFetchesThenCompletes(t *testing.T) {
	src := &MemFile{Data: []byte{1, 2, 3, 4, 5}}
	reader := &BufferedLayoutReader[struct{}, int]{
		Source: src,
		Cache:  NewMessageCache(0),
		Config: DefaultReaderConfig(),
		Op:     sumOp("f", Buffer{Begin: 1, End: 4}),
	}
	got, err := reader.Read(context.Background(), struct{}{})
	if err != nil {
		t.Fatal(err)
	}
	if got != 2+3+4 {
		t.Errorf("Read() = %d, want %d", got, 2+3+4)
	}
}

func TestBufferedLayoutReaderReusesCache(t *testing.T) {
	src := &MemFile{Data: []byte{1, 2, 3, 4, 5}}
	cache := NewMessageCache(0)
	rng := Buffer{Begin: 0, End: 5}
	cache.Insert(NewMessageID("f", rng), src.Data)
	calls := 0
	op := func(c *MessageCache, _ struct{}) (int, []FetchMessage, bool, error) {
		calls++
		data, ok := c.Get(NewMessageID("f", rng))
		if !ok {
			t.Fatal("expected a pre-warmed cache hit")
		}
		return len(data), nil, true, nil
	}
	reader := &BufferedLayoutReader[struct{}, int]{
		Source: src, Cache: cache, Config: DefaultReaderConfig(), Op: op,
	}
	got, err := reader.Read(context.Background(), struct{}{})
	if err != nil {
		t.Fatal(err)
	}
	if got != 5 {
		t.Errorf("Read() = %d, want 5", got)
	}
	if calls != 1 {
		t.Errorf("Op called %d times, want 1 (no fetch needed when cache is pre-warmed)", calls)
	}
}

func TestBufferedLayoutReaderStalledOperationErrors(t *testing.T) {
	src := &MemFile{Data: []byte{1, 2, 3}}
	stalled := func(*MessageCache, struct{}) (int, []FetchMessage, bool, error) {
		return 0, nil, false, nil
	}
	reader := &BufferedLayoutReader[struct{}, int]{
		Source: src, Cache: NewMessageCache(0), Config: DefaultReaderConfig(), Op: stalled,
	}
	if _, err := reader.Read(context.Background(), struct{}{}); err == nil {
		t.Fatal("expected an error when the operation reports not-done with no pending fetch")
	}
}

func TestBufferedLayoutReaderPropagatesOpError(t *testing.T) {
	src := &MemFile{Data: []byte{1, 2, 3}}
	boom := errTest{"boom"}
	failing := func(*MessageCache, struct{}) (int, []FetchMessage, bool, error) {
		return 0, nil, false, boom
	}
	reader := &BufferedLayoutReader[struct{}, int]{
		Source: src, Cache: NewMessageCache(0), Config: DefaultReaderConfig(), Op: failing,
	}
	_, err := reader.Read(context.Background(), struct{}{})
	if err != boom {
		t.Errorf("Read() error = %v, want %v", err, boom)
	}
}

func TestBufferedLayoutReaderRespectsCancelledContext(t *testing.T) {
	src := &MemFile{Data: []byte{1, 2, 3}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	reader := &BufferedLayoutReader[struct{}, int]{
		Source: src, Cache: NewMessageCache(0), Config: DefaultReaderConfig(),
		Op: sumOp("f", Buffer{Begin: 0, End: 3}),
	}
	if _, err := reader.Read(ctx, struct{}{}); err == nil {
		t.Fatal("expected a cancelled context to abort the drive loop")
	}
}

type errTest struct{ s string }

func (e errTest) Error() string { return e.s }
