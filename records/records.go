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

// Package records turns binary artifacts like event logs and registry hives
// into a sequence of JSON records.
//
// Parsers for the binary formats live outside this module and are plugged in
// through a Registry.
package records

import (
	"bufio"
	"bytes"
	"io"
	"sync"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

// ErrNoRecordReader is returned for kinds without a registered Factory.
var ErrNoRecordReader = errors.New("no record reader")

// Walker iterates the records of one artifact. Next returns io.EOF after the
// last record.
type Walker interface {
	Next() ([]byte, error)
}

// Factory creates a Walker reading from r.
type Factory func(r io.Reader) (Walker, error)

// Registry maps artifact kinds to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// Register sets the factory for kind.
func (r *Registry) Register(kind string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = f
}

// Open creates a Walker for an artifact of the given kind.
func (r *Registry) Open(kind string, rd io.Reader) (Walker, error) {
	r.mu.RLock()
	f, ok := r.factories[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.Wrap(ErrNoRecordReader, kind)
	}
	return f(rd)
}

type jsonLines struct {
	scanner *bufio.Scanner
}

// JSONLines reads one JSON object per line, as written by most artifact
// parsers. Empty lines are skipped.
func JSONLines(r io.Reader) (Walker, error) {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 64*1024), 16*1024*1024)
	return &jsonLines{scanner: s}, nil
}

func (j *jsonLines) Next() ([]byte, error) {
	for j.scanner.Scan() {
		line := bytes.TrimSpace(j.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if !gjson.ValidBytes(line) {
			return nil, errors.Errorf("invalid record %q", truncate(line, 40))
		}
		return append([]byte(nil), line...), nil
	}
	if err := j.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
