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
	"context"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/forensicanalysis/artifactimport/tableout"
)

// ErrNoTable is the failure of imports into tables that were not declared.
var ErrNoTable = errors.New("no such table")

// catchAllKey routes imports into undeclared tables.
const catchAllKey = "*"

// SQLAgent imports the items of one table. A table has one or more SQL
// agents, the first one prepares and finalizes the table.
type SQLAgent struct {
	agent  *Agent
	desc   *TableDescription
	id     int
	key    string
	logger *zap.Logger
	sink   tableout.Sink

	stats    *counters
	items    atomic.Int64
	lines    atomic.Int64
	rejected atomic.Int64
}

func newSQLAgent(a *Agent, desc *TableDescription, id int) *SQLAgent {
	key := catchAllKey
	if desc != nil {
		key = desc.Name
	}
	return &SQLAgent{
		agent:  a,
		desc:   desc,
		id:     id,
		key:    key,
		logger: a.logger.With(zap.String("table", key), zap.Int("sql_agent", id)),
		stats:  newCounters(),
	}
}

// Table returns the name of the table, or "*" for the agent that rejects
// imports into undeclared tables.
func (s *SQLAgent) Table() string {
	return s.key
}

// Initialize connects the agent to out. The first agent of a table applies
// the disposition and runs the before statement.
func (s *SQLAgent) Initialize(out *tableout.Output) error {
	if s.desc == nil {
		return nil
	}

	sink, err := out.ForTable(s.desc.Compress, s.desc.TableLock).Connect()
	if err != nil {
		return err
	}
	s.sink = sink
	if s.id != 0 {
		return nil
	}

	if err := s.prepare(); err != nil {
		return err
	}
	s.statement("before", s.desc.Before)
	return nil
}

func (s *SQLAgent) prepare() error {
	table := s.desc.Name
	present, err := s.sink.IsTablePresent(table)
	if err != nil {
		return err
	}

	switch s.desc.Disposition {
	case CreateNew:
		if present {
			if err := s.sink.DropTable(table); err != nil {
				return err
			}
		}
	case Truncate:
		if present {
			if err := s.sink.TruncateTable(table); err != nil {
				return err
			}
		}
	}

	if len(s.desc.Schema) == 0 {
		return nil
	}
	return s.sink.CreateTable(table, s.desc.Schema)
}

// statement runs a configured statement. Failures are logged only.
func (s *SQLAgent) statement(name, statement string) {
	if statement == "" {
		return
	}
	if err := s.sink.ExecuteStatement(statement); err != nil {
		s.logger.Warn("statement failed", zap.String("statement", name), zap.Error(err))
		return
	}
	s.logger.Debug("statement executed", zap.String("statement", name))
}

func (s *SQLAgent) accept(m Message) bool {
	return m.key == s.key
}

func (s *SQLAgent) acceptWork(m Message) bool {
	return m.key == s.key && m.Type != RequestComplete
}

// Run imports items until it receives its Complete message. Items still
// queued for the table are imported before Run returns. When ctx is
// canceled the queued items fail.
func (s *SQLAgent) Run(ctx context.Context) error {
	queue := s.agent.sqlQueue
	for {
		m, err := queue.ReceiveFunc(ctx, s.accept)
		if err != nil {
			for {
				m, ok := queue.TryReceive(s.acceptWork)
				if !ok {
					return nil
				}
				s.agent.complete(s.notification(m.Item, err))
			}
		}

		if m.Type == RequestComplete {
			for {
				m, ok := queue.TryReceive(s.acceptWork)
				if !ok {
					return nil
				}
				s.process(m)
			}
		}
		s.process(m)
	}
}

func (s *SQLAgent) notification(item *Item, err error) Notification {
	n := Success(ActionImport, item)
	if err != nil {
		n = Failure(ActionImport, item, err)
	}
	n.Table = item.Table()
	return n
}

func (s *SQLAgent) process(m Message) {
	item := m.Item
	item.ImportStart = time.Now().UTC()
	s.items.Add(1)

	var err error
	if s.sink == nil {
		err = errors.Wrap(ErrNoTable, item.Table())
	} else {
		err = s.importItem(item)
	}
	item.ImportEnd = time.Now().UTC()

	s.stats.add("format", m.format.String())
	if err != nil {
		s.rejected.Add(1)
		err = errors.Wrapf(err, "could not import %s", item.FullName)
	} else {
		s.lines.Add(item.LinesImported)
	}
	s.agent.complete(s.notification(item, err))
}

func (s *SQLAgent) importItem(item *Item) error {
	if err := item.Rewind(); err != nil {
		return err
	}
	switch f := item.Format(); f {
	case CSV:
		return s.importCSV(item)
	case EventLog, RegistryHive:
		return s.importRecords(item, f.String())
	default:
		return errors.Errorf("%s items cannot be imported", f)
	}
}

// Finalize runs the after statement of the table. It is called once all
// agents of the table returned from Run.
func (s *SQLAgent) Finalize() {
	if s.desc == nil || s.sink == nil || s.id != 0 {
		return
	}
	s.statement("after", s.desc.After)
}

// Close closes the table connection.
func (s *SQLAgent) Close() error {
	if s.sink == nil {
		return nil
	}
	err := s.sink.Close()
	s.sink = nil
	return err
}

// LogStatistics logs the processed items of the agent.
func (s *SQLAgent) LogStatistics() {
	if s.items.Load() == 0 {
		return
	}
	s.logger.Info("sql agent statistics",
		zap.Int64("items", s.items.Load()),
		zap.Int64("rejected", s.rejected.Load()),
		zap.Int64("lines", s.lines.Load()),
		zap.Any("formats", s.stats.all()["format"]),
	)
}
