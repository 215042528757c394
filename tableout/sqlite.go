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
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"crawshaw.io/sqlite"
	"crawshaw.io/sqlite/sqlitex"
	"github.com/pkg/errors"
)

// batchSize is the number of rows inserted per transaction.
const batchSize = 1000

var sqlTypes = map[ColumnType]string{
	String:   "TEXT",
	Integer:  "INTEGER",
	FileTime: "TEXT",
	GUID:     "TEXT",
	Bytes:    "BLOB",
}

type sqliteSink struct {
	conn      *sqlite.Conn
	tableLock bool
}

func connectSQLite(url string, opts Options) (*sqliteSink, error) {
	if url != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(url), 0750); err != nil {
			return nil, err
		}
	}
	conn, err := sqlite.OpenConn(url, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open %s", url)
	}
	conn.SetBusyTimeout(opts.BusyTimeout)
	return &sqliteSink{conn: conn, tableLock: opts.TableLock}, nil
}

func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (s *sqliteSink) exec(query string) error {
	stmt, err := s.conn.Prepare(query)
	if err != nil {
		return errors.Wrapf(err, "could not prepare statement %s", query)
	}
	if _, err = stmt.Step(); err != nil {
		stmt.Finalize() // nolint:errcheck
		return errors.Wrapf(err, "could not exec statement %s", query)
	}
	return stmt.Finalize()
}

func (s *sqliteSink) IsTablePresent(table string) (bool, error) {
	stmt, err := s.conn.Prepare("SELECT count(*) AS n FROM sqlite_master WHERE type = 'table' AND name = $name")
	if err != nil {
		return false, err
	}
	stmt.SetText("$name", table)
	if _, err := stmt.Step(); err != nil {
		stmt.Finalize() // nolint:errcheck
		return false, err
	}
	n := stmt.GetInt64("n")
	return n > 0, stmt.Finalize()
}

func (s *sqliteSink) CreateTable(table string, schema Schema) error {
	if len(schema) == 0 {
		return errors.Errorf("table %s has no columns", table)
	}
	var columns []string
	for _, c := range schema {
		columns = append(columns, fmt.Sprintf("%s %s", quote(c.Name), sqlTypes[c.Type]))
	}
	return s.exec(fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quote(table), strings.Join(columns, ", ")))
}

func (s *sqliteSink) DropTable(table string) error {
	return s.exec("DROP TABLE IF EXISTS " + quote(table))
}

func (s *sqliteSink) TruncateTable(table string) error {
	return s.exec("DELETE FROM " + quote(table))
}

// ExecuteStatement runs one or more semicolon separated statements in a
// savepoint.
func (s *sqliteSink) ExecuteStatement(statement string) error {
	return errors.Wrap(sqlitex.ExecScript(s.conn, statement), "statement failed")
}

func (s *sqliteSink) OpenWriter(table string, schema Schema) (Writer, error) {
	if len(schema) == 0 {
		return nil, errors.Errorf("table %s has no columns", table)
	}
	var columns, params []string
	for _, c := range schema {
		columns = append(columns, quote(c.Name))
		params = append(params, "?")
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quote(table), strings.Join(columns, ", "), strings.Join(params, ", ")) // #nosec
	stmt, err := s.conn.Prepare(query)
	if err != nil {
		return nil, errors.Wrapf(err, "could not prepare statement %s", query)
	}
	return &sqliteWriter{
		rowBuffer: rowBuffer{schema: schema},
		sink:      s,
		stmt:      stmt,
	}, nil
}

func (s *sqliteSink) Close() error {
	return s.conn.Close()
}

type sqliteWriter struct {
	rowBuffer
	sink    *sqliteSink
	stmt    *sqlite.Stmt
	inTx    bool
	pending int
}

func (w *sqliteWriter) WriteEndOfLine() error {
	row := w.complete()

	if !w.inTx {
		if err := w.sink.exec("BEGIN IMMEDIATE"); err != nil {
			return err
		}
		w.inTx = true
	}

	for i, v := range row {
		param := i + 1
		switch {
		case v.null:
			w.stmt.BindNull(param)
		case v.typ == Integer:
			w.stmt.BindInt64(param, v.i)
		case v.typ == Bytes:
			w.stmt.BindBytes(param, v.b)
		default:
			w.stmt.BindText(param, v.s)
		}
	}
	_, err := w.stmt.Step()
	w.stmt.Reset()         // nolint:errcheck
	w.stmt.ClearBindings() // nolint:errcheck
	if err != nil {
		if w.inTx && w.sink.conn.GetAutocommit() {
			// RAISE(ROLLBACK) ended the transaction with this row.
			w.inTx = false
			w.pending = 0
		}
		if rejected(err) {
			return errors.Wrap(ErrRowRejected, err.Error())
		}
		return err
	}

	w.rows++
	w.pending++
	if !w.sink.tableLock && w.pending >= batchSize {
		return w.commit()
	}
	return nil
}

// rejected reports whether a failed step refused the row only. Constraint
// violations and trigger aborts undo the row and keep the transaction open.
func rejected(err error) bool {
	switch sqlite.ErrCode(err) & 0xff {
	case sqlite.SQLITE_CONSTRAINT, sqlite.SQLITE_MISMATCH:
		return true
	}
	return false
}

func (w *sqliteWriter) commit() error {
	if !w.inTx {
		return nil
	}
	w.inTx = false
	w.pending = 0
	return w.sink.exec("COMMIT")
}

func (w *sqliteWriter) Close() error {
	err := w.commit()
	if ferr := w.stmt.Finalize(); err == nil {
		err = ferr
	}
	return err
}
