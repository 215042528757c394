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

// Package tableout writes rows into destination tables.
//
// An Output is parsed from an output location and hands out one Sink
// per consumer. A Sink manages the tables of the destination and opens
// Writers that append rows to one table. The destination is either a SQLite
// database or a directory of CSV files.
package tableout

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

var (
	// ErrStatementsUnsupported is returned by sinks that cannot execute SQL.
	ErrStatementsUnsupported = errors.New("statements are not supported by this output")
	// ErrColumnCount is returned when a row has more values than the table
	// has columns.
	ErrColumnCount = errors.New("too many values for row")
	// ErrRowRejected is returned by WriteEndOfLine when the destination
	// refused the row. The row is not written, the writer stays usable.
	ErrRowRejected = errors.New("row rejected")
)

// ColumnType is the type of a table column.
type ColumnType int

const (
	String ColumnType = iota
	Integer
	FileTime
	GUID
	Bytes
)

var columnTypes = map[string]ColumnType{
	"string":   String,
	"integer":  Integer,
	"filetime": FileTime,
	"guid":     GUID,
	"bytes":    Bytes,
}

// ParseColumnType parses a column type name like "string" or "filetime".
func ParseColumnType(s string) (ColumnType, error) {
	t, ok := columnTypes[strings.ToLower(s)]
	if !ok {
		return 0, errors.Errorf("unknown column type %q", s)
	}
	return t, nil
}

func (t ColumnType) String() string {
	for name, ct := range columnTypes {
		if ct == t {
			return name
		}
	}
	return "unknown"
}

// Column describes one column of a table.
type Column struct {
	Name string
	Type ColumnType
	// Path locates the value of the column in a JSON record.
	Path string
}

// Schema is the ordered column list of a table.
type Schema []Column

// Names returns the column names.
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, c := range s {
		names[i] = c.Name
	}
	return names
}

// Writer appends rows to a table. Values are written column by column and
// committed with WriteEndOfLine. Missing trailing values are written as null.
type Writer interface {
	WriteString(s string) error
	WriteInteger(i int64) error
	WriteFileTime(t time.Time) error
	WriteGUID(id uuid.UUID) error
	WriteBytes(b []byte) error
	WriteNothing() error
	// WriteEndOfLine writes the current row. Errors wrapping ErrRowRejected
	// concern this row only.
	WriteEndOfLine() error
	// AbandonRow discards the values of the current row.
	AbandonRow() error
	// Rows returns the number of rows written.
	Rows() int64
	Close() error
}

// Sink is a connection to a table destination.
type Sink interface {
	IsTablePresent(table string) (bool, error)
	CreateTable(table string, schema Schema) error
	DropTable(table string) error
	TruncateTable(table string) error
	ExecuteStatement(statement string) error
	OpenWriter(table string, schema Schema) (Writer, error)
	Close() error
}

// Options configure an Output.
type Options struct {
	// Compress gzips CSV files.
	Compress bool
	// BusyTimeout is the time a SQLite connection waits for a lock.
	BusyTimeout time.Duration
	// TableLock keeps the SQLite write transaction of a writer open until
	// it is closed instead of committing in batches.
	TableLock bool
}

// Output is a parsed output location.
type Output struct {
	location string
	fs       afero.Fs
	kind     kind
	opts     Options

	csv *csvNames
}

type kind int

const (
	sqliteOutput kind = iota
	csvOutput
)

// Parse parses an output location. Paths ending in .db, .sqlite or
// .sqlite3 and paths prefixed with "sqlite:" are SQLite databases, all other
// paths are directories that receive CSV files. Directories are created in fs.
func Parse(location string, fs afero.Fs, opts Options) (*Output, error) {
	if location == "" {
		return nil, errors.New("empty output location")
	}
	if opts.BusyTimeout == 0 {
		opts.BusyTimeout = time.Minute
	}

	o := &Output{location: location, fs: fs, opts: opts}
	lower := strings.ToLower(location)
	switch {
	case strings.HasPrefix(lower, "sqlite:"):
		o.location = location[len("sqlite:"):]
		o.kind = sqliteOutput
	case strings.HasSuffix(lower, ".db"), strings.HasSuffix(lower, ".sqlite"), strings.HasSuffix(lower, ".sqlite3"):
		o.kind = sqliteOutput
	default:
		o.kind = csvOutput
		if err := fs.MkdirAll(location, 0750); err != nil {
			return nil, errors.Wrap(err, "could not create output directory")
		}
		o.csv = &csvNames{}
	}
	return o, nil
}

// String returns the location of the output.
func (o *Output) String() string {
	return o.location
}

// ForTable returns a copy of the output with table specific options. The
// copy shares the CSV file names with o.
func (o *Output) ForTable(compress, tableLock bool) *Output {
	cp := *o
	cp.opts.Compress = compress
	cp.opts.TableLock = tableLock
	return &cp
}

// Connect opens a new Sink. Every consumer uses its own Sink.
func (o *Output) Connect() (Sink, error) {
	if o.kind == sqliteOutput {
		return connectSQLite(o.location, o.opts)
	}
	return &csvSink{dir: o.location, fs: o.fs, compress: o.opts.Compress, names: o.csv}, nil
}
