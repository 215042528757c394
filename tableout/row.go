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

package tableout

import (
	"encoding/hex"
	"strconv"
	"time"

	"github.com/google/uuid"
)

type value struct {
	typ  ColumnType
	null bool
	s    string
	i    int64
	b    []byte
}

func (v value) text() string {
	switch {
	case v.null:
		return ""
	case v.typ == Integer:
		return strconv.FormatInt(v.i, 10)
	case v.typ == Bytes:
		return hex.EncodeToString(v.b)
	}
	return v.s
}

// rowBuffer collects the values of the current row.
type rowBuffer struct {
	schema Schema
	values []value
	rows   int64
}

func (r *rowBuffer) add(v value) error {
	if len(r.values) >= len(r.schema) {
		return ErrColumnCount
	}
	r.values = append(r.values, v)
	return nil
}

func (r *rowBuffer) WriteString(s string) error {
	return r.add(value{typ: String, s: s})
}

func (r *rowBuffer) WriteInteger(i int64) error {
	return r.add(value{typ: Integer, i: i})
}

func (r *rowBuffer) WriteFileTime(t time.Time) error {
	if t.IsZero() {
		return r.WriteNothing()
	}
	return r.add(value{typ: FileTime, s: t.UTC().Format(time.RFC3339Nano)})
}

func (r *rowBuffer) WriteGUID(id uuid.UUID) error {
	return r.add(value{typ: GUID, s: id.String()})
}

func (r *rowBuffer) WriteBytes(b []byte) error {
	return r.add(value{typ: Bytes, b: b})
}

func (r *rowBuffer) WriteNothing() error {
	return r.add(value{null: true})
}

func (r *rowBuffer) AbandonRow() error {
	r.values = r.values[:0]
	return nil
}

func (r *rowBuffer) Rows() int64 {
	return r.rows
}

// complete pads the row with nulls and returns it. The buffer is empty
// afterwards.
func (r *rowBuffer) complete() []value {
	for len(r.values) < len(r.schema) {
		r.values = append(r.values, value{null: true})
	}
	row := r.values
	r.values = make([]value, 0, len(r.schema))
	return row
}
