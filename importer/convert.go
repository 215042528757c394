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
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/hex"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/forensicanalysis/artifactimport/tableout"
)

// maxRecordErrors is the number of unreadable records after which a record
// import is abandoned.
const maxRecordErrors = 100

var bom = []byte{0xef, 0xbb, 0xbf}

// fileTimeEpoch is the Unix time of the FILETIME epoch 1601-01-01 in 100ns
// intervals.
const fileTimeEpoch = 116444736000000000

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"01/02/2006 15:04:05",
	"1/2/2006 3:04:05 PM",
	"2006-01-02",
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// importCSV writes the rows of a CSV item to the table. Columns are matched
// to the header case-insensitively. Without a table schema every header
// column becomes a string column. Rows with unparsable values are skipped.
func (s *SQLAgent) importCSV(item *Item) error {
	table := s.desc.Name
	cr := &countingReader{r: item.Stream}
	br := bufio.NewReader(cr)
	if b, err := br.Peek(len(bom)); err == nil && bytes.Equal(b, bom) {
		br.Discard(len(bom)) // nolint:errcheck
	}

	r := csv.NewReader(br)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.ReuseRecord = true

	header, err := r.Read()
	if err == io.EOF {
		item.BytesExtracted = cr.n
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "could not read header")
	}

	schema := s.desc.Schema
	if len(schema) == 0 {
		for _, name := range header {
			schema = append(schema, tableout.Column{Name: strings.TrimSpace(name), Type: tableout.String})
		}
		if err := s.sink.CreateTable(table, schema); err != nil {
			return err
		}
	}

	index, err := headerIndex(header, schema)
	if err != nil {
		return err
	}

	w, err := s.sink.OpenWriter(table, schema)
	if err != nil {
		return err
	}

	rowErrors := 0
	for line := 2; ; line++ {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				rowErrors++
				continue
			}
			w.Close() // nolint:errcheck
			return err
		}

		if err := writeRecord(w, schema, index, record); err != nil {
			rowErrors++
			s.logger.Debug("row skipped", zap.String("item", item.FullName), zap.Int("line", line), zap.Error(err))
			if err := w.AbandonRow(); err != nil {
				w.Close() // nolint:errcheck
				return err
			}
			continue
		}
		if err := w.WriteEndOfLine(); err != nil {
			if errors.Is(err, tableout.ErrRowRejected) {
				rowErrors++
				s.logger.Debug("row rejected", zap.String("item", item.FullName), zap.Int("line", line), zap.Error(err))
				continue
			}
			w.Close() // nolint:errcheck
			return err
		}
	}

	item.LinesImported = w.Rows()
	item.BytesExtracted = cr.n
	if rowErrors > 0 {
		s.logger.Warn("rows skipped", zap.String("item", item.FullName), zap.Int("rows", rowErrors))
	}
	return w.Close()
}

// headerIndex maps every schema column to its position in the header, or
// -1 if the header has no such column.
func headerIndex(header []string, schema tableout.Schema) ([]int, error) {
	positions := map[string]int{}
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(name))
		if _, ok := positions[key]; !ok {
			positions[key] = i
		}
	}

	index := make([]int, len(schema))
	found := false
	for i, col := range schema {
		pos, ok := positions[strings.ToLower(col.Name)]
		if !ok {
			index[i] = -1
			continue
		}
		index[i] = pos
		found = true
	}
	if !found {
		return nil, errors.New("no table column in header")
	}
	return index, nil
}

func writeRecord(w tableout.Writer, schema tableout.Schema, index []int, record []string) error {
	for i, col := range schema {
		pos := index[i]
		if pos < 0 || pos >= len(record) || record[pos] == "" {
			if err := w.WriteNothing(); err != nil {
				return err
			}
			continue
		}
		if err := writeValue(w, col.Type, record[pos]); err != nil {
			return errors.Wrapf(err, "column %s", col.Name)
		}
	}
	return nil
}

// importRecords writes the records of an event log or registry hive to the
// table. Column values are looked up by their path in the JSON record.
func (s *SQLAgent) importRecords(item *Item, kind string) error {
	schema := s.desc.Schema
	if len(schema) == 0 {
		return errors.Errorf("table %s has no schema", s.desc.Name)
	}

	cr := &countingReader{r: item.Stream}
	walker, err := s.agent.records.Open(kind, cr)
	if err != nil {
		return err
	}

	w, err := s.sink.OpenWriter(s.desc.Name, schema)
	if err != nil {
		return err
	}

	recordErrors := 0
	for {
		rec, err := walker.Next()
		if err == io.EOF {
			break
		}
		if err == nil {
			err = writeJSON(w, schema, rec)
			if err != nil {
				if aerr := w.AbandonRow(); aerr != nil {
					w.Close() // nolint:errcheck
					return aerr
				}
			}
		}
		if err == nil {
			err = w.WriteEndOfLine()
			if err != nil && !errors.Is(err, tableout.ErrRowRejected) {
				w.Close() // nolint:errcheck
				return err
			}
		}
		if err != nil {
			recordErrors++
			if recordErrors > maxRecordErrors {
				w.Close() // nolint:errcheck
				return errors.Wrapf(err, "too many invalid records")
			}
			continue
		}
	}

	item.LinesImported = w.Rows()
	item.BytesExtracted = cr.n
	if recordErrors > 0 {
		s.logger.Warn("records skipped", zap.String("item", item.FullName), zap.Int("records", recordErrors))
	}
	return w.Close()
}

func writeJSON(w tableout.Writer, schema tableout.Schema, rec []byte) error {
	for _, col := range schema {
		p := col.Path
		if p == "" {
			p = col.Name
		}
		res := gjson.GetBytes(rec, p)
		if !res.Exists() || res.Type == gjson.Null {
			if err := w.WriteNothing(); err != nil {
				return err
			}
			continue
		}
		if err := writeResult(w, col.Type, res); err != nil {
			return errors.Wrapf(err, "column %s", col.Name)
		}
	}
	return nil
}

func writeResult(w tableout.Writer, typ tableout.ColumnType, res gjson.Result) error {
	switch {
	case typ == tableout.Integer && res.Type == gjson.Number:
		return w.WriteInteger(res.Int())
	case typ == tableout.Integer && res.Type == gjson.True:
		return w.WriteInteger(1)
	case typ == tableout.Integer && res.Type == gjson.False:
		return w.WriteInteger(0)
	case typ == tableout.FileTime && res.Type == gjson.Number:
		return w.WriteFileTime(fromFileTime(res.Int()))
	case typ == tableout.String:
		return w.WriteString(res.String())
	}
	return writeValue(w, typ, res.String())
}

// writeValue parses s as a value of the column type and writes it.
func writeValue(w tableout.Writer, typ tableout.ColumnType, s string) error {
	switch typ {
	case tableout.Integer:
		i, err := parseInteger(s)
		if err != nil {
			return err
		}
		return w.WriteInteger(i)
	case tableout.FileTime:
		t, err := parseTime(s)
		if err != nil {
			return err
		}
		return w.WriteFileTime(t)
	case tableout.GUID:
		id, err := uuid.Parse(strings.Trim(strings.TrimSpace(s), "{}"))
		if err != nil {
			return err
		}
		return w.WriteGUID(id)
	case tableout.Bytes:
		b, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
		if err != nil {
			b = []byte(s)
		}
		return w.WriteBytes(b)
	default:
		return w.WriteString(s)
	}
}

// parseInteger parses decimal and 0x prefixed hexadecimal integers.
func parseInteger(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if len(s) > 2 && (s[:2] == "0x" || s[:2] == "0X") {
		u, err := strconv.ParseUint(s[2:], 16, 64)
		return int64(u), err
	}
	return strconv.ParseInt(s, 10, 64)
}

// parseTime parses the common timestamp layouts of artifact files and
// FILETIME values.
func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	if ft, err := strconv.ParseInt(s, 10, 64); err == nil {
		return fromFileTime(ft), nil
	}
	return time.Time{}, errors.Errorf("invalid time %q", s)
}

func fromFileTime(ft int64) time.Time {
	if ft == 0 {
		return time.Time{}
	}
	return time.Unix(0, (ft-fileTimeEpoch)*100).UTC()
}
