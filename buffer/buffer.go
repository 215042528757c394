/*
 * Copyright (c) 2020 Siemens AG
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy of
 * this software and associated documentation files (the "Software"), to deal in
 * the Software without restriction, including without limitation the rights to
 * use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
 * the Software, and to permit persons to whom the Software is furnished to do so,
 * subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
 * FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
 * COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
 * IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
 * CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
 *
 * Author(s): Jonas Plum
 */

// Package buffer implements an unbounded priority buffer with filtered
// receivers.
//
// Messages are delivered highest priority first. Messages of equal priority
// keep their arrival order. Several consumers can share one Buffer and each
// receive only the messages their predicate accepts.
package buffer

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// ErrClosed is returned by Send on a closed buffer and by Receive once a
// closed buffer holds no acceptable message.
var ErrClosed = errors.New("buffer closed")

// Higher reports whether a must be delivered before b.
type Higher[T any] func(a, b T) bool

// Buffer is a priority ordered message buffer. The zero value is not usable,
// create buffers with New.
type Buffer[T any] struct {
	higher Higher[T]

	mu      sync.Mutex
	entries []T
	signal  chan struct{}
	closed  bool
}

// New creates an empty buffer ordered by higher.
func New[T any](higher Higher[T]) *Buffer[T] {
	return &Buffer[T]{
		higher: higher,
		signal: make(chan struct{}),
	}
}

// Send enqueues v. It never blocks.
func (b *Buffer[T]) Send(v T) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}

	// insert after all entries that are not lower than v
	i := sort.Search(len(b.entries), func(i int) bool {
		return b.higher(v, b.entries[i])
	})
	var zero T
	b.entries = append(b.entries, zero)
	copy(b.entries[i+1:], b.entries[i:])
	b.entries[i] = v

	b.broadcast()
	return nil
}

// Receive blocks until a message is available and returns the one with the
// highest priority.
func (b *Buffer[T]) Receive(ctx context.Context) (T, error) {
	return b.ReceiveFunc(ctx, nil)
}

// ReceiveFunc blocks until a message accepted by accept is available and
// returns the accepted message with the highest priority. A nil accept takes
// every message.
func (b *Buffer[T]) ReceiveFunc(ctx context.Context, accept func(T) bool) (T, error) {
	for {
		b.mu.Lock()
		if v, ok := b.take(accept); ok {
			b.mu.Unlock()
			return v, nil
		}
		if b.closed {
			b.mu.Unlock()
			var zero T
			return zero, ErrClosed
		}
		signal := b.signal
		b.mu.Unlock()

		select {
		case <-signal:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// TryReceive returns the highest priority message accepted by accept without
// blocking.
func (b *Buffer[T]) TryReceive(accept func(T) bool) (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.take(accept)
}

// Len returns the number of buffered messages.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Count returns the number of buffered messages accepted by accept.
func (b *Buffer[T]) Count(accept func(T) bool) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if accept == nil {
		return len(b.entries)
	}
	n := 0
	for _, e := range b.entries {
		if accept(e) {
			n++
		}
	}
	return n
}

// Close rejects further sends and wakes all receivers. Buffered messages can
// still be received.
func (b *Buffer[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.broadcast()
}

// take must be called with b.mu held.
func (b *Buffer[T]) take(accept func(T) bool) (T, bool) {
	var zero T
	for i, e := range b.entries {
		if accept != nil && !accept(e) {
			continue
		}
		copy(b.entries[i:], b.entries[i+1:])
		b.entries[len(b.entries)-1] = zero
		b.entries = b.entries[:len(b.entries)-1]
		return e, true
	}
	return zero, false
}

// broadcast must be called with b.mu held.
func (b *Buffer[T]) broadcast() {
	close(b.signal)
	b.signal = make(chan struct{})
}
