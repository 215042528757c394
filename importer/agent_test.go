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
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"crawshaw.io/sqlite"
	"github.com/klauspost/compress/zip"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mozilla.org/pkcs7"
	"go.uber.org/zap/zaptest"

	"github.com/forensicanalysis/artifactimport/records"
	"github.com/forensicanalysis/artifactimport/stream"
	"github.com/forensicanalysis/artifactimport/tableout"
)

const sampleCSV = "Name,Size,Created\n" +
	"a.txt,1,2020-01-02T03:04:05Z\n" +
	"b.txt,2,2020-01-02 03:04:05\n" +
	"c.txt,3,\n"

var sampleSchema = tableout.Schema{
	{Name: "name", Type: tableout.String},
	{Name: "size", Type: tableout.Integer},
	{Name: "created", Type: tableout.FileTime},
}

type harness struct {
	agent     *Agent
	collector *Collector
	input     afero.Fs
	extract   afero.Fs
	tables    afero.Fs
	done      chan error
	sent      int
}

func start(t *testing.T, def *Definition, descs []TableDescription, opts ...Option) *harness {
	t.Helper()
	tables := afero.NewMemMapFs()
	out, err := tableout.Parse("/tables", tables, tableout.Options{})
	require.NoError(t, err)
	h := startOutput(t, out, def, descs, opts...)
	h.tables = tables
	return h
}

// startOutput starts an agent that imports into out.
func startOutput(t *testing.T, out *tableout.Output, def *Definition, descs []TableDescription, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		collector: &Collector{},
		input:     afero.NewMemMapFs(),
		extract:   afero.NewMemMapFs(),
		done:      make(chan error, 1),
	}

	opts = append([]Option{
		WithLogger(zaptest.NewLogger(t)),
		WithDefinition(def),
		WithNotifier(h.collector),
		WithIdleCompletion(false),
		WithPollInterval(5 * time.Millisecond),
	}, opts...)
	h.agent = New(opts...)
	require.NoError(t, h.agent.InitializeOutputs(Outputs{
		Extract: h.extract,
		Import:  out,
		TempFS:  afero.NewMemMapFs(),
		TempDir: "/tmp",
	}))
	require.NoError(t, h.agent.InitializeTables(descs))

	go func() {
		h.done <- h.agent.Run(context.Background())
	}()
	return h
}

func (h *harness) send(t *testing.T, fullName string, content []byte) *Item {
	t.Helper()
	h.sent++
	f, err := stream.Create(h.input, fmt.Sprintf("/input/%d/%s", h.sent, path.Base(fullName)))
	require.NoError(t, err)
	_, err = f.Write(content)
	require.NoError(t, err)
	require.NoError(t, stream.Rewind(f))

	item := h.agent.NewItem(fullName, f)
	item.InputFile = fullName
	item.ComputerName = "ws1"
	require.NoError(t, h.agent.SendRequest(context.Background(), NewRequest(Triage(item), item)))
	return item
}

// finish completes the flow and returns the notifications by item name.
func (h *harness) finish(t *testing.T) map[string]Notification {
	t.Helper()
	require.NoError(t, h.agent.SendRequest(context.Background(), Complete()))
	select {
	case err := <-h.done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("agent did not stop")
	}

	assert.Equal(t, Stopped, h.agent.State())
	assert.Equal(t, int64(0), h.agent.InProgress())

	notifications := h.collector.Notifications()
	assert.Equal(t, h.agent.Admitted(), int64(len(notifications)))

	file, mem := h.agent.Budgets()
	assert.Equal(t, int64(0), file.Charged())
	assert.Equal(t, int64(0), mem.Charged())

	byName := map[string]Notification{}
	for _, n := range notifications {
		_, dup := byName[n.Item.FullName]
		assert.False(t, dup, "%s notified twice", n.Item.FullName)
		byName[n.Item.FullName] = n
	}
	return byName
}

func (h *harness) read(t *testing.T, fs afero.Fs, name string) string {
	t.Helper()
	b, err := afero.ReadFile(fs, name)
	require.NoError(t, err)
	return string(b)
}

func zipArchive(t *testing.T, members map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range members {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = io.WriteString(f, content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func assertNotification(t *testing.T, byName map[string]Notification, name string, action Action, failed bool) Notification {
	t.Helper()
	n, ok := byName[name]
	require.True(t, ok, "no notification for %s", name)
	assert.Equal(t, action, n.Action, name)
	assert.Equal(t, failed, n.Failed(), "%s: %v", name, n.Err())
	return n
}

func TestTriage(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    RequestType
	}{
		{"collect.p7b", "x", RequestExpand},
		{"collect.zip", "PK", RequestExpand},
		{"keep.zip", "PK", RequestExtract},
		{"collect.cab", "MSCF", RequestExtract},
		{"sample.csv", "a\n", RequestImport},
		{"data.tmp.csv", "a\n", RequestIgnore},
		{"notes.txt", "x", RequestExtract},
		{"image.bin", "x", RequestIgnore},
		{"settings.xml", "<x/>", RequestIgnore},
		{"empty.csv", "", RequestIgnore},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := memStream(t, []byte(tt.content))
			defer s.Close()
			assert.Equal(t, tt.want, Triage(NewItem(testDefinition, tt.name, s)))
		})
	}
}

func TestUnwrappedName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"collect.p7b", "collect.7z"},
		{"host/collect.zip.P7B", "host/collect.zip"},
		{"collect", "collect.7z"},
		{"collect.7z", "collect.7z"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, unwrappedName(tt.in), tt.in)
	}
}

func TestAgent_Route(t *testing.T) {
	h := start(t, testDefinition, []TableDescription{{Name: "T", Schema: sampleSchema}})

	h.send(t, "host/readme.txt", []byte("hello"))
	h.send(t, "host/data.tmp.csv", []byte(sampleCSV))
	h.send(t, "host/sample.csv", []byte(sampleCSV))
	h.send(t, "host/image.bin", []byte{0, 1, 2})

	byName := h.finish(t)
	require.Len(t, byName, 4)

	n := assertNotification(t, byName, "host/readme.txt", ActionExtract, false)
	assert.Equal(t, "/host/readme.txt", n.Item.OutputFile)
	assert.Equal(t, int64(5), n.Item.BytesExtracted)
	assert.Equal(t, "hello", h.read(t, h.extract, "/host/readme.txt"))

	assertNotification(t, byName, "host/data.tmp.csv", ActionIgnore, false)
	assertNotification(t, byName, "host/image.bin", ActionIgnore, false)

	n = assertNotification(t, byName, "host/sample.csv", ActionImport, false)
	assert.Equal(t, "T", n.Table)
	assert.Equal(t, int64(3), n.Item.LinesImported)
	assert.Equal(t, int64(len(sampleCSV)), n.Item.BytesExtracted)
	assert.False(t, n.Item.ImportEnd.Before(n.Item.ImportStart))
	assert.Equal(t,
		"name,size,created\n"+
			"a.txt,1,2020-01-02T03:04:05Z\n"+
			"b.txt,2,2020-01-02T03:04:05Z\n"+
			"c.txt,3,\n",
		h.read(t, h.tables, "/tables/T.csv"))
}

func TestAgent_Expand(t *testing.T) {
	nested := zipArchive(t, map[string]string{"deep/x.txt": "nested"})
	outer := zipArchive(t, map[string]string{
		"logs/sample.csv": sampleCSV,
		"logs/empty.csv":  "",
		"notes/a.txt":     "a",
		"notes/b.txt":     "bb",
		"nested.zip":      string(nested),
		"keep.zip":        string(nested),
	})

	h := start(t, testDefinition, []TableDescription{{Name: "T", Schema: sampleSchema}})
	h.send(t, "collect.zip", outer)
	byName := h.finish(t)

	assertNotification(t, byName, "collect.zip", ActionExpand, false)
	assertNotification(t, byName, "collect.zip/nested.zip", ActionExpand, false)
	assertNotification(t, byName, "collect.zip/logs/empty.csv", ActionIgnore, false)
	assertNotification(t, byName, "collect.zip/keep.zip", ActionExtract, false)
	n := assertNotification(t, byName, "collect.zip/logs/sample.csv", ActionImport, false)
	assert.Equal(t, int64(3), n.Item.LinesImported)
	assert.Equal(t, "ws1", n.Item.ComputerName)
	assert.Equal(t, "collect.zip", n.Item.InputFile)

	assertNotification(t, byName, "collect.zip/notes/a.txt", ActionExtract, false)
	assertNotification(t, byName, "collect.zip/nested.zip/deep/x.txt", ActionExtract, false)
	assert.Len(t, byName, 8)

	assert.Equal(t, "bb", h.read(t, h.extract, "/collect.zip/notes/b.txt"))
	assert.Equal(t, "nested", h.read(t, h.extract, "/collect.zip/nested.zip/deep/x.txt"))
	assert.Equal(t, string(nested), h.read(t, h.extract, "/collect.zip/keep.zip"))
}

func TestAgent_Envelope(t *testing.T) {
	payload, err := os.ReadFile("../archive/testdata/sample.7z")
	require.NoError(t, err)
	sd, err := pkcs7.NewSignedData(payload)
	require.NoError(t, err)
	envelope, err := sd.Finish()
	require.NoError(t, err)

	h := start(t, testDefinition, []TableDescription{{Name: "T", Schema: sampleSchema}})
	h.send(t, "collect.p7b", envelope)
	byName := h.finish(t)

	require.Len(t, byName, 4)
	n := assertNotification(t, byName, "collect.p7b", ActionExpand, false)
	assert.Equal(t, int64(len(payload)), n.Item.BytesExtracted)
	n = assertNotification(t, byName, "collect.7z", ActionExpand, false)
	assert.Equal(t, int64(len(sampleCSV)+len("hello")), n.Item.BytesExtracted)
	n = assertNotification(t, byName, "collect.7z/sample.csv", ActionImport, false)
	assert.Equal(t, int64(3), n.Item.LinesImported)
	assertNotification(t, byName, "collect.7z/notes/a.txt", ActionExtract, false)
	assert.Equal(t, "hello", h.read(t, h.extract, "/collect.7z/notes/a.txt"))
}

func TestAgent_EnvelopeInvalid(t *testing.T) {
	h := start(t, testDefinition, nil)
	h.send(t, "broken.p7b", []byte("not a pkcs7 structure"))
	byName := h.finish(t)

	require.Len(t, byName, 1)
	assertNotification(t, byName, "broken.p7b", ActionExpand, true)
}

func TestAgent_CorruptArchive(t *testing.T) {
	h := start(t, testDefinition, nil)
	h.send(t, "broken.zip", []byte("PK\x03\x04 truncated"))
	byName := h.finish(t)

	require.Len(t, byName, 1)
	assertNotification(t, byName, "broken.zip", ActionExpand, true)
}

func TestAgent_ArchiveWithoutExtractor(t *testing.T) {
	def := &Definition{Rules: []Rule{{Action: ActionExtract, NameMatch: "*.cab"}}}
	h := start(t, def, nil)
	h.send(t, "collect.cab", []byte("MSCF\x00\x00\x00\x00"))
	byName := h.finish(t)

	require.Len(t, byName, 1)
	assertNotification(t, byName, "collect.cab", ActionExtract, false)
	assert.Equal(t, "MSCF\x00\x00\x00\x00", h.read(t, h.extract, "/collect.cab"))
}

func TestAgent_ExpandSkipsIgnoredMembers(t *testing.T) {
	outer := zipArchive(t, map[string]string{
		"image.bin":  strings.Repeat("\x00", 64<<10),
		"skip.tmp":   strings.Repeat("t", 4<<10),
		"sample.csv": sampleCSV,
	})

	h := start(t, testDefinition, []TableDescription{{Name: "T", Schema: sampleSchema}},
		WithBudget(1<<20, 1<<20, 1<<10))
	h.send(t, "collect.zip", outer)
	byName := h.finish(t)

	require.Len(t, byName, 4)
	assertNotification(t, byName, "collect.zip", ActionExpand, false)
	assertNotification(t, byName, "collect.zip/image.bin", ActionIgnore, false)
	assertNotification(t, byName, "collect.zip/skip.tmp", ActionIgnore, false)
	n := assertNotification(t, byName, "collect.zip/sample.csv", ActionImport, false)
	assert.Equal(t, int64(3), n.Item.LinesImported)

	file, mem := h.agent.Budgets()
	assert.Equal(t, int64(0), file.Peak())
	assert.Equal(t, int64(len(sampleCSV)), mem.Peak())
}

func TestAgent_RowRejected(t *testing.T) {
	db := filepath.Join(t.TempDir(), "import.db")
	out, err := tableout.Parse(db, afero.NewOsFs(), tableout.Options{})
	require.NoError(t, err)

	descs := []TableDescription{{
		Name:   "T",
		Schema: sampleSchema,
		Before: "CREATE TRIGGER rej BEFORE INSERT ON T WHEN NEW.size = 2 BEGIN SELECT RAISE(ABORT,'rejected'); END",
	}}
	h := startOutput(t, out, testDefinition, descs)
	h.send(t, "sample.csv", []byte(sampleCSV))
	byName := h.finish(t)

	n := assertNotification(t, byName, "sample.csv", ActionImport, false)
	assert.Equal(t, int64(2), n.Item.LinesImported)

	conn, err := sqlite.OpenConn(db, 0)
	require.NoError(t, err)
	defer conn.Close()

	var names []string
	stmt := conn.Prep("SELECT name FROM T ORDER BY name")
	for {
		row, err := stmt.Step()
		require.NoError(t, err)
		if !row {
			break
		}
		names = append(names, stmt.GetText("name"))
	}
	assert.Equal(t, []string{"a.txt", "c.txt"}, names)
}

func TestAgent_ForwardAfterStop(t *testing.T) {
	c := &Collector{}
	a := New(WithDefinition(testDefinition), WithNotifier(c), WithIdleCompletion(false))
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()

	a.forward(NewItem(testDefinition, "collect.zip/a.txt", memStream(t, []byte("x"))))

	require.Len(t, c.Notifications(), 1)
	n := c.Notifications()[0]
	assert.Equal(t, ActionExtract, n.Action)
	assert.ErrorIs(t, n.Err(), ErrAgentStopped)
	assert.Equal(t, int64(1), a.Admitted())
	assert.Equal(t, int64(0), a.InProgress())
}

func TestAgent_UndeclaredTable(t *testing.T) {
	def := &Definition{Rules: []Rule{{Action: ActionImport, NameMatch: "*.csv", Table: "missing"}}}
	h := start(t, def, nil)
	h.send(t, "sample.csv", []byte(sampleCSV))
	byName := h.finish(t)

	n := assertNotification(t, byName, "sample.csv", ActionImport, true)
	assert.ErrorIs(t, n.Err(), ErrNoTable)
}

func TestAgent_NoExtractOutput(t *testing.T) {
	c := &Collector{}
	a := New(WithDefinition(testDefinition), WithNotifier(c), WithIdleCompletion(false))
	require.NoError(t, a.InitializeOutputs(Outputs{TempFS: afero.NewMemMapFs(), TempDir: "/tmp"}))

	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background()) }()

	s := memStream(t, []byte("x"))
	item := a.NewItem("a.txt", s)
	require.NoError(t, a.SendRequest(context.Background(), NewRequest(Triage(item), item)))
	require.NoError(t, a.SendRequest(context.Background(), Complete()))
	require.NoError(t, <-done)

	require.Len(t, c.Notifications(), 1)
	assert.ErrorIs(t, c.Notifications()[0].Err(), ErrNoExtractOutput)
}

func TestAgent_CSVWithoutSchema(t *testing.T) {
	h := start(t, testDefinition, []TableDescription{{Name: "T", Disposition: CreateNew}})
	h.send(t, "sample.csv", []byte("\xef\xbb\xbfUser,Host\nalice,ws1\n\"bob\",ws2\n"))
	byName := h.finish(t)

	n := assertNotification(t, byName, "sample.csv", ActionImport, false)
	assert.Equal(t, int64(2), n.Item.LinesImported)
	assert.Equal(t, "User,Host\nalice,ws1\nbob,ws2\n", h.read(t, h.tables, "/tables/T.csv"))
}

func TestAgent_CSVBadRows(t *testing.T) {
	h := start(t, testDefinition, []TableDescription{{Name: "T", Schema: sampleSchema}})
	h.send(t, "sample.csv", []byte("name,size\nok,1\nbad,notanumber\nalso ok,2\n"))
	byName := h.finish(t)

	n := assertNotification(t, byName, "sample.csv", ActionImport, false)
	assert.Equal(t, int64(2), n.Item.LinesImported)
	assert.Equal(t, "name,size,created\nok,1,\nalso ok,2,\n", h.read(t, h.tables, "/tables/T.csv"))
}

func TestAgent_CSVHeaderMismatch(t *testing.T) {
	h := start(t, testDefinition, []TableDescription{{Name: "T", Schema: sampleSchema}})
	h.send(t, "sample.csv", []byte("foo,bar\n1,2\n"))
	byName := h.finish(t)

	assertNotification(t, byName, "sample.csv", ActionImport, true)
}

// eventLog reads the test event log format: the magic line followed by JSON
// lines.
func eventLog(r io.Reader) (records.Walker, error) {
	br := bufio.NewReader(r)
	if _, err := br.ReadString('\n'); err != nil {
		return nil, err
	}
	return records.JSONLines(br)
}

func TestAgent_Records(t *testing.T) {
	registry := records.NewRegistry()
	registry.Register(EventLog.String(), eventLog)

	descs := []TableDescription{{
		Name: "events",
		Schema: tableout.Schema{
			{Name: "event_id", Type: tableout.Integer, Path: "EventID"},
			{Name: "computer", Type: tableout.String, Path: "System.Computer"},
			{Name: "time", Type: tableout.FileTime, Path: "TimeCreated"},
		},
	}}
	h := start(t, testDefinition, descs, WithRecords(registry))

	log := "ElfFile\n" +
		`{"EventID":4624,"System":{"Computer":"ws1"},"TimeCreated":"2021-03-04T05:06:07Z"}` + "\n" +
		"garbage\n" +
		`{"EventID":"0x10","System":{"Computer":"ws2"},"TimeCreated":132593079670000000}` + "\n"
	h.send(t, "Security.evtx", []byte(log))
	byName := h.finish(t)

	n := assertNotification(t, byName, "Security.evtx", ActionImport, false)
	assert.Equal(t, "events", n.Table)
	assert.Equal(t, int64(2), n.Item.LinesImported)
	assert.Equal(t,
		"event_id,computer,time\n"+
			"4624,ws1,2021-03-04T05:06:07Z\n"+
			"16,ws2,2021-03-04T05:06:07Z\n",
		h.read(t, h.tables, "/tables/events.csv"))
}

func TestAgent_RecordsWithoutReader(t *testing.T) {
	descs := []TableDescription{{Name: "events", Schema: tableout.Schema{{Name: "id", Type: tableout.Integer}}}}
	h := start(t, testDefinition, descs)
	h.send(t, "Security.evtx", []byte("ElfFile\n"))
	byName := h.finish(t)

	n := assertNotification(t, byName, "Security.evtx", ActionImport, true)
	assert.ErrorIs(t, n.Err(), records.ErrNoRecordReader)
}

func TestAgent_Concurrency(t *testing.T) {
	members := map[string]string{}
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		members["notes/"+name+".txt"] = strings.Repeat(name, 40)
	}
	descs := []TableDescription{{Name: "T", Schema: sampleSchema, Concurrency: 3}}
	h := start(t, testDefinition, descs, WithBudget(1<<20, 64, 1<<10))

	h.send(t, "collect.zip", zipArchive(t, members))
	for _, name := range []string{"1", "2", "3", "4", "5", "6"} {
		h.send(t, "host"+name+"/sample.csv", []byte(sampleCSV))
	}
	byName := h.finish(t)
	assert.Len(t, byName, 1+len(members)+6)

	for name, content := range members {
		assertNotification(t, byName, "collect.zip/"+name, ActionExtract, false)
		assert.Equal(t, content, h.read(t, h.extract, "/collect.zip/"+name))
	}

	var lines int64
	for name, n := range byName {
		if strings.HasSuffix(name, ".csv") {
			assert.False(t, n.Failed(), "%s: %v", name, n.Err())
			lines += n.Item.LinesImported
		}
	}
	assert.Equal(t, int64(18), lines)

	_, mem := h.agent.Budgets()
	assert.LessOrEqual(t, mem.Peak(), mem.Capacity())
	assert.Equal(t, int64(40), mem.Peak())
}

func TestAgent_UniqueExtractNames(t *testing.T) {
	h := start(t, testDefinition, nil)
	h.send(t, "a/readme.txt", []byte("first"))
	h.send(t, "b/../a/readme.txt", []byte("second"))
	h.finish(t)

	got := []string{
		h.read(t, h.extract, "/a/readme.txt"),
		h.read(t, h.extract, "/a/readme_1.txt"),
	}
	assert.ElementsMatch(t, []string{"first", "second"}, got)
}

func TestAgent_IdleCompletion(t *testing.T) {
	c := &Collector{}
	a := New(WithDefinition(testDefinition), WithNotifier(c), WithPollInterval(5*time.Millisecond))
	require.NoError(t, a.InitializeOutputs(Outputs{Extract: afero.NewMemMapFs(), TempFS: afero.NewMemMapFs(), TempDir: "/tmp"}))

	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background()) }()

	item := a.NewItem("a.txt", memStream(t, []byte("x")))
	require.NoError(t, a.SendRequest(context.Background(), NewRequest(Triage(item), item)))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("agent did not complete on idle")
	}
	assert.Len(t, c.Notifications(), 1)

	item = a.NewItem("b.txt", memStream(t, []byte("y")))
	assert.ErrorIs(t, a.SendRequest(context.Background(), NewRequest(Triage(item), item)), ErrAgentStopped)
	assert.ErrorIs(t, a.SendRequest(context.Background(), Complete()), ErrAgentStopped)
}

func TestAgent_Canceled(t *testing.T) {
	c := &Collector{}
	a := New(WithDefinition(testDefinition), WithNotifier(c), WithIdleCompletion(false), WithPollInterval(5*time.Millisecond))
	require.NoError(t, a.InitializeOutputs(Outputs{Extract: afero.NewMemMapFs(), TempFS: afero.NewMemMapFs(), TempDir: "/tmp"}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(10 * time.Second):
		t.Fatal("agent did not stop")
	}
	assert.Equal(t, Stopped, a.State())
}

func TestAgent_RunWithoutOutputs(t *testing.T) {
	assert.ErrorIs(t, New().Run(context.Background()), ErrNotInitialized)
}

func TestAgent_InitializeTables(t *testing.T) {
	a := New()
	require.NoError(t, a.InitializeOutputs(Outputs{TempFS: afero.NewMemMapFs(), TempDir: "/tmp"}))
	assert.Error(t, a.InitializeTables([]TableDescription{{Name: "T"}}))

	out, err := tableout.Parse("/tables", afero.NewMemMapFs(), tableout.Options{})
	require.NoError(t, err)
	require.NoError(t, a.InitializeOutputs(Outputs{Import: out, TempFS: afero.NewMemMapFs(), TempDir: "/tmp"}))
	assert.Error(t, a.InitializeTables([]TableDescription{{Name: "T"}, {Name: "T"}}))
	assert.Error(t, a.InitializeTables([]TableDescription{{}}))
	assert.NoError(t, a.InitializeTables([]TableDescription{{Name: "T", Concurrency: 2}}))
	assert.Len(t, a.sqlAgents, 2)
}
