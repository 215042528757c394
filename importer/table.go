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
	"strings"

	"github.com/pkg/errors"

	"github.com/forensicanalysis/artifactimport/tableout"
)

// Disposition decides what happens to an existing table on start.
type Disposition int

const (
	AsIs Disposition = iota
	Truncate
	CreateNew
)

// ParseDisposition parses "asis", "truncate" or "createnew".
func ParseDisposition(s string) (Disposition, error) {
	switch strings.ToLower(strings.ReplaceAll(s, "_", "")) {
	case "", "asis":
		return AsIs, nil
	case "truncate":
		return Truncate, nil
	case "createnew":
		return CreateNew, nil
	}
	return AsIs, errors.Errorf("unknown disposition %q", s)
}

// TableDescription configures a destination table.
type TableDescription struct {
	Name        string
	Disposition Disposition
	// Concurrency is the number of SQL agents writing to the table.
	Concurrency int
	Schema      tableout.Schema
	Compress    bool
	TableLock   bool
	Before      string
	After       string
}
