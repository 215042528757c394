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
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// csvNames serializes the choice of file names among the sinks of an Output.
type csvNames struct {
	sync.Mutex
}

type csvSink struct {
	dir      string
	fs       afero.Fs
	compress bool
	names    *csvNames
}

func (s *csvSink) ext() string {
	if s.compress {
		return ".csv.gz"
	}
	return ".csv"
}

// tableFiles returns the files of table, named table.csv or table_N.csv.
func (s *csvSink) tableFiles(table string) ([]string, error) {
	infos, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		return nil, err
	}
	ext := s.ext()
	var files []string
	for _, info := range infos {
		name := info.Name()
		if info.IsDir() || !strings.HasSuffix(name, ext) {
			continue
		}
		base := strings.TrimSuffix(name, ext)
		if base == table {
			files = append(files, filepath.Join(s.dir, name))
			continue
		}
		if suffix := strings.TrimPrefix(base, table+"_"); suffix != base {
			if _, err := strconv.Atoi(suffix); err == nil {
				files = append(files, filepath.Join(s.dir, name))
			}
		}
	}
	return files, nil
}

func (s *csvSink) IsTablePresent(table string) (bool, error) {
	files, err := s.tableFiles(table)
	return len(files) > 0, err
}

// CreateTable does nothing, every writer creates its own file.
func (s *csvSink) CreateTable(string, Schema) error {
	return nil
}

func (s *csvSink) DropTable(table string) error {
	s.names.Lock()
	defer s.names.Unlock()

	files, err := s.tableFiles(table)
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := s.fs.Remove(f); err != nil {
			return err
		}
	}
	return nil
}

func (s *csvSink) TruncateTable(table string) error {
	return s.DropTable(table)
}

func (s *csvSink) ExecuteStatement(string) error {
	return ErrStatementsUnsupported
}

func (s *csvSink) OpenWriter(table string, schema Schema) (Writer, error) {
	f, err := s.create(table)
	if err != nil {
		return nil, err
	}

	w := &csvWriter{rowBuffer: rowBuffer{schema: schema}, file: f}
	var out io.Writer = f
	if s.compress {
		w.gz = gzip.NewWriter(f)
		out = w.gz
	}
	w.csv = csv.NewWriter(out)
	if err := w.csv.Write(schema.Names()); err != nil {
		w.Close() // nolint:errcheck
		return nil, err
	}
	return w, nil
}

// create creates a new file for table, adding a counter to the name if the
// table already has files.
func (s *csvSink) create(table string) (afero.File, error) {
	s.names.Lock()
	defer s.names.Unlock()

	ext := s.ext()
	name := filepath.Join(s.dir, table+ext)
	exists, err := afero.Exists(s.fs, name)
	if err != nil {
		return nil, err
	}
	for i := 1; exists; i++ {
		name = filepath.Join(s.dir, fmt.Sprintf("%s_%d%s", table, i, ext))
		exists, err = afero.Exists(s.fs, name)
		if err != nil {
			return nil, err
		}
	}

	f, err := s.fs.Create(name)
	return f, errors.Wrapf(err, "could not create %s", name)
}

func (s *csvSink) Close() error {
	return nil
}

type csvWriter struct {
	rowBuffer
	file afero.File
	gz   *gzip.Writer
	csv  *csv.Writer
}

func (w *csvWriter) WriteEndOfLine() error {
	row := w.complete()
	record := make([]string, len(row))
	for i, v := range row {
		record[i] = v.text()
	}
	if err := w.csv.Write(record); err != nil {
		return err
	}
	w.rows++
	return nil
}

func (w *csvWriter) Close() error {
	w.csv.Flush()
	err := w.csv.Error()
	if w.gz != nil {
		if gerr := w.gz.Close(); err == nil {
			err = gerr
		}
	}
	if ferr := w.file.Close(); err == nil {
		err = ferr
	}
	return err
}
