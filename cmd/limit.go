// Copyright (c) 2019 Siemens AG
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
// the Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
// FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
// COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
// IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
// CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
//
// Author(s): Jonas Plum

package cmd

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/forensicanalysis/artifactimport/budget"
	"github.com/forensicanalysis/artifactimport/importer"
)

// defaultOpenInputs is the number of input files open at the same time.
const defaultOpenInputs = 256

// inputLimiter bounds the number of open input files. A slot is taken
// before an input is opened and given back when the agent notifies the
// input item, its stream is closed by then.
type inputLimiter struct {
	slots *budget.Semaphore
	open  sync.Map
	next  importer.Notifier
}

func newInputLimiter(n int, next importer.Notifier) *inputLimiter {
	if n <= 0 {
		n = defaultOpenInputs
	}
	return &inputLimiter{slots: budget.New("inputs", int64(n)), next: next}
}

// acquire waits for a free slot.
func (l *inputLimiter) acquire(ctx context.Context) error {
	_, err := l.slots.Acquire(ctx, 1)
	return err
}

// track binds the slot taken last to the item id.
func (l *inputLimiter) track(id uuid.UUID) {
	l.open.Store(id, struct{}{})
}

// release gives back the slot of the item id. Unknown ids are ignored.
func (l *inputLimiter) release(id uuid.UUID) {
	if _, ok := l.open.LoadAndDelete(id); ok {
		l.slots.Release(1)
	}
}

// abandon gives back a slot that was never tracked.
func (l *inputLimiter) abandon() {
	l.slots.Release(1)
}

func (l *inputLimiter) Notify(n importer.Notification) {
	l.release(n.Item.ID)
	l.next.Notify(n)
}
