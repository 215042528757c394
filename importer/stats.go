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

package importer

import (
	"sync"
)

// counters holds concurrently updated counts, grouped by a category like
// "action" or "format".
type counters struct {
	sync.RWMutex
	counts map[string]map[string]int64
}

func newCounters() *counters {
	return &counters{
		counts: map[string]map[string]int64{},
	}
}

func (c *counters) add(group, key string) {
	c.Lock()
	if _, ok := c.counts[group]; !ok {
		c.counts[group] = map[string]int64{}
	}
	c.counts[group][key]++
	c.Unlock()
}

func (c *counters) get(group, key string) int64 {
	c.RLock()
	defer c.RUnlock()
	return c.counts[group][key]
}

// all returns a copy of all counts.
func (c *counters) all() map[string]map[string]int64 {
	c.RLock()
	defer c.RUnlock()
	cp := make(map[string]map[string]int64, len(c.counts))
	for group, keys := range c.counts {
		cp[group] = make(map[string]int64, len(keys))
		for key, n := range keys {
			cp[group][key] = n
		}
	}
	return cp
}
