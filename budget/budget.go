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

// Package budget provides the byte budgets that throttle the import pipeline.
//
// A Semaphore hands out byte charges against a fixed capacity. Callers that
// ask for more than is currently available are parked in FIFO order until
// enough bytes are released. The pipeline uses one Semaphore for temporary
// data kept on disk and one for temporary data kept in memory.
package budget

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Semaphore is a cooperative counting semaphore measured in bytes.
type Semaphore struct {
	name string

	mu        sync.Mutex
	weighted  *semaphore.Weighted
	capacity  int64
	available int64
	peak      int64
	acquired  int64
	released  int64
}

// New creates a Semaphore with the given capacity in bytes.
func New(name string, capacity int64) *Semaphore {
	s := &Semaphore{name: name}
	s.SetCapacity(capacity)
	return s
}

// SetCapacity sets the byte budget. It must be called before the first
// Acquire; charges handed out under a previous capacity are forgotten.
func (s *Semaphore) SetCapacity(capacity int64) {
	if capacity < 1 {
		capacity = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.weighted = semaphore.NewWeighted(capacity)
	s.capacity = capacity
	s.available = capacity
	s.peak = 0
}

// Name returns the name the semaphore was created with.
func (s *Semaphore) Name() string {
	return s.name
}

// Acquire reserves n bytes and returns the charge that must later be passed
// to Release. Requests larger than the capacity are clamped to the capacity.
// The call blocks until the bytes are available; it only fails when ctx is
// done first.
func (s *Semaphore) Acquire(ctx context.Context, n int64) (int64, error) {
	if n <= 0 {
		return 0, nil
	}

	s.mu.Lock()
	w := s.weighted
	if n > s.capacity {
		n = s.capacity
	}
	s.mu.Unlock()

	if err := w.Acquire(ctx, n); err != nil {
		return 0, err
	}

	s.mu.Lock()
	s.available -= n
	s.acquired += n
	if charged := s.capacity - s.available; charged > s.peak {
		s.peak = charged
	}
	s.mu.Unlock()
	return n, nil
}

// TryAcquire reserves n bytes without blocking. It reports false when the
// budget is exhausted.
func (s *Semaphore) TryAcquire(n int64) (int64, bool) {
	if n <= 0 {
		return 0, true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if n > s.capacity {
		n = s.capacity
	}
	if !s.weighted.TryAcquire(n) {
		return 0, false
	}
	s.available -= n
	s.acquired += n
	if charged := s.capacity - s.available; charged > s.peak {
		s.peak = charged
	}
	return n, true
}

// Release gives back a charge returned by Acquire or TryAcquire and wakes the
// oldest waiter if it now fits.
func (s *Semaphore) Release(n int64) {
	if n <= 0 {
		return
	}
	s.mu.Lock()
	s.available += n
	s.released += n
	w := s.weighted
	s.mu.Unlock()
	w.Release(n)
}

// Capacity returns the configured budget.
func (s *Semaphore) Capacity() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capacity
}

// Available returns the number of bytes not currently charged.
func (s *Semaphore) Available() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.available
}

// Charged returns the number of bytes currently charged.
func (s *Semaphore) Charged() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capacity - s.available
}

// Peak returns the largest number of bytes charged at the same time.
func (s *Semaphore) Peak() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peak
}

// Status is a snapshot of the semaphore counters.
type Status struct {
	Name      string
	Capacity  int64
	Available int64
	Peak      int64
	Acquired  int64
	Released  int64
}

// Status returns a snapshot of the semaphore counters.
func (s *Semaphore) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Name:      s.name,
		Capacity:  s.capacity,
		Available: s.available,
		Peak:      s.peak,
		Acquired:  s.acquired,
		Released:  s.released,
	}
}
