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

// Package report writes the CSV audit trail of an import: one row per
// admitted item, failed items included.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fatih/structs"
	"github.com/pkg/errors"
	"github.com/stoewer/go-strcase"

	"github.com/forensicanalysis/artifactimport/importer"
)

// Row is one line of the report.
type Row struct {
	ComputerName   string
	InputFile      string
	Name           string
	FullName       string
	Action         string
	SystemType     string
	Timestamp      time.Time `structs:",omitnested"`
	Start          time.Time `structs:",omitnested"`
	End            time.Time `structs:",omitnested"`
	Destination    string
	BytesExtracted int64
	LinesImported  int64
	Result         string
}

// NewRow creates the report row of a notification. Destination is the table
// of imported items and the output file of extracted items.
func NewRow(n importer.Notification) Row {
	item := n.Item
	destination := item.OutputFile
	if n.Table != "" {
		destination = n.Table
	}
	return Row{
		ComputerName:   item.ComputerName,
		InputFile:      item.InputFile,
		Name:           item.Name,
		FullName:       item.FullName,
		Action:         n.Action.String(),
		SystemType:     item.SystemType,
		Timestamp:      item.Timestamp,
		Start:          item.ImportStart,
		End:            item.ImportEnd,
		Destination:    destination,
		BytesExtracted: item.BytesExtracted,
		LinesImported:  item.LinesImported,
		Result:         n.Result(),
	}
}

// Header returns the snake case column names.
func Header() []string {
	var header []string
	for _, name := range structs.Names(Row{}) {
		header = append(header, strcase.SnakeCase(name))
	}
	return header
}

// Record returns the values of the row as strings.
func (r Row) Record() []string {
	var record []string
	for _, v := range structs.Values(r) {
		switch v := v.(type) {
		case time.Time:
			if v.IsZero() {
				record = append(record, "")
			} else {
				record = append(record, v.UTC().Format(time.RFC3339Nano))
			}
		default:
			record = append(record, fmt.Sprint(v))
		}
	}
	return record
}

// Report is an importer.Notifier that writes a row per notification.
type Report struct {
	mu  sync.Mutex
	w   *csv.Writer
	err error
}

// New creates a report and writes the header to w.
func New(w io.Writer) (*Report, error) {
	r := &Report{w: csv.NewWriter(w)}
	if err := r.w.Write(Header()); err != nil {
		return nil, errors.Wrap(err, "could not write report header")
	}
	return r, nil
}

// Notify writes the row of n. The first write error is kept and returned by
// Flush.
func (r *Report) Notify(n importer.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return
	}
	r.err = r.w.Write(NewRow(n).Record())
}

// Flush writes buffered rows.
func (r *Report) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.w.Flush()
	if r.err != nil {
		return r.err
	}
	return r.w.Error()
}
