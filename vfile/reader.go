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
	"sync"

	"github.com/doki23/vortex/vxerr"
)

// FetchMessage is one outstanding (path, byte-range) request an
// operation needs satisfied before it can make progress.
type FetchMessage struct {
	Path  string
	Range Buffer
}

// OpFunc is one step of a BufferedLayoutReader operation: given an
// already-populated MessageCache, it either completes with out (done ==
// true), or reports the additional byte ranges it needs fetched before
// it can be re-invoked (done == false, len(more) > 0). Returning
// done == false with no pending messages is a driver stall and is
// reported as an error.
type OpFunc[In, Out any] func(cache *MessageCache, item In) (out Out, more []FetchMessage, done bool, err error)

// BufferedLayoutReader drives a single OpFunc to completion against a
// ReadAt source, batching and deduplicating outstanding byte-range
// fetches through a shared MessageCache. It is a generic driver,
// parameterized over whatever operation (row-mask resolution, array
// decode, ...) needs to repeatedly fetch-then-reinvoke until done.
type BufferedLayoutReader[In, Out any] struct {
	Source ReadAt
	Cache  *MessageCache
	Config ReaderConfig
	Op     OpFunc[In, Out]
}

// Read drives Op to completion for item, fetching whatever byte ranges
// it requests along the way. Cancelling ctx aborts the drive loop and
// skips fetches that have not started yet; a ReadByteRange call already
// issued runs to completion and is waited for.
func (r *BufferedLayoutReader[In, Out]) Read(ctx context.Context, item In) (Out, error) {
	var zero Out
	for {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		out, more, done, err := r.Op(r.Cache, item)
		if err != nil {
			return zero, err
		}
		if done {
			return out, nil
		}
		if len(more) == 0 {
			return zero, vxerr.E(vxerr.InvalidArgument, "buffered layout reader: operation stalled with no pending fetch")
		}
		if err := r.fetchAll(ctx, more); err != nil {
			return zero, err
		}
	}
}

func (r *BufferedLayoutReader[In, Out]) fetchAll(ctx context.Context, msgs []FetchMessage) error {
	limit := r.Config.MaxConcurrentFetches
	if limit <= 0 {
		limit = 1
	}
	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup
	errs := make(chan error, len(msgs))
	for _, m := range msgs {
		id := NewMessageID(m.Path, m.Range)
		if _, ok := r.Cache.Get(id); ok {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(m FetchMessage, id MessageID) {
			defer wg.Done()
			defer func() { <-sem }()
			if ctx.Err() != nil {
				return
			}
			data, err := r.Source.ReadByteRange(int64(m.Range.Begin), m.Range.Len())
			if err != nil {
				errs <- vxerr.E(vxerr.IoError, "fetch %s[%d:%d]: %v", m.Path, m.Range.Begin, m.Range.End, err)
				return
			}
			r.Cache.Insert(id, data)
		}(m, id)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			return err
		}
	}
	return ctx.Err()
}
