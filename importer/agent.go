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
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/forensicanalysis/artifactimport/archive"
	"github.com/forensicanalysis/artifactimport/budget"
	"github.com/forensicanalysis/artifactimport/buffer"
	"github.com/forensicanalysis/artifactimport/envelope"
	"github.com/forensicanalysis/artifactimport/records"
	"github.com/forensicanalysis/artifactimport/stream"
	"github.com/forensicanalysis/artifactimport/tableout"
)

var (
	// ErrAgentStopped is returned for requests sent to a stopped agent.
	ErrAgentStopped = errors.New("agent stopped")
	// ErrNotInitialized is returned by Run before InitializeOutputs.
	ErrNotInitialized = errors.New("outputs not initialized")
	// ErrNoExtractOutput is the failure of extract requests without extract
	// output.
	ErrNoExtractOutput = errors.New("no extract output")
)

const (
	defaultFileBytes    = 4 << 30
	defaultMemBytes     = 512 << 20
	defaultMemThreshold = 4 << 20
	defaultPollInterval = time.Second
)

// State is the lifecycle state of an Agent.
type State int32

const (
	Created State = iota
	Running
	Draining
	Stopped
)

func (s State) String() string {
	return [...]string{"created", "running", "draining", "stopped"}[s]
}

// Outputs are the destinations of an Agent.
type Outputs struct {
	// Extract receives extracted items. Extraction fails without it.
	Extract afero.Fs
	// Import receives imported tables. Imports fail without it.
	Import *tableout.Output
	// TempFS and TempDir hold temporary streams that do not fit in memory.
	TempFS  afero.Fs
	TempDir string
}

// Agent triages items, expands archives and envelopes, extracts items and
// feeds imports to its SQL agents.
type Agent struct {
	logger       *zap.Logger
	definition   *Definition
	notifier     Notifier
	opener       *envelope.Opener
	records      *records.Registry
	password     string
	fileBudget   *budget.Semaphore
	memBudget    *budget.Semaphore
	memThreshold int64
	pollInterval time.Duration
	idleComplete bool

	outputs      Outputs
	outputsReady bool
	extractMu    sync.Mutex

	queue     *buffer.Buffer[Message]
	sqlQueue  *buffer.Buffer[Message]
	tables    map[string][]*SQLAgent
	sqlAgents []*SQLAgent
	catchAll  *SQLAgent

	// mu orders admissions against the decision to stop
	mu     sync.RWMutex
	closed bool
	state  atomic.Int32

	inProgress atomic.Int64
	admitted   atomic.Int64
	stats      *counters
	tasks      sync.WaitGroup
}

// Option configures an Agent.
type Option func(*Agent)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Agent) {
		a.logger = logger
	}
}

// WithDefinition sets the rules items are routed by.
func WithDefinition(def *Definition) Option {
	return func(a *Agent) {
		a.definition = def
	}
}

// WithNotifier sets the receiver of the notifications.
func WithNotifier(n Notifier) Option {
	return func(a *Agent) {
		a.notifier = n
	}
}

// WithBudget sets the number of bytes temporary streams may use on disk and
// in memory. Streams larger than memThreshold are kept on disk.
func WithBudget(fileBytes, memBytes, memThreshold int64) Option {
	return func(a *Agent) {
		a.fileBudget.SetCapacity(fileBytes)
		a.memBudget.SetCapacity(memBytes)
		a.memThreshold = memThreshold
	}
}

// WithPollInterval sets the interval the agent checks for idleness.
func WithPollInterval(d time.Duration) Option {
	return func(a *Agent) {
		a.pollInterval = d
	}
}

// WithIdleCompletion controls whether the agent completes on its own once it
// was idle for a poll interval. Producers that send Complete themselves
// disable it.
func WithIdleCompletion(enabled bool) Option {
	return func(a *Agent) {
		a.idleComplete = enabled
	}
}

// WithOpener sets the envelope opener.
func WithOpener(o *envelope.Opener) Option {
	return func(a *Agent) {
		a.opener = o
	}
}

// WithRecords sets the readers for event logs and registry hives.
func WithRecords(r *records.Registry) Option {
	return func(a *Agent) {
		a.records = r
	}
}

// WithPassword sets the archive password used when no rule has one.
func WithPassword(password string) Option {
	return func(a *Agent) {
		a.password = password
	}
}

// New creates an Agent.
func New(opts ...Option) *Agent {
	a := &Agent{
		logger:       zap.NewNop(),
		definition:   &Definition{},
		notifier:     NotifierFunc(func(Notification) {}),
		opener:       envelope.New(),
		records:      records.NewRegistry(),
		fileBudget:   budget.New("file", defaultFileBytes),
		memBudget:    budget.New("memory", defaultMemBytes),
		memThreshold: defaultMemThreshold,
		pollInterval: defaultPollInterval,
		idleComplete: true,
		queue:        buffer.New(higher),
		sqlQueue:     buffer.New(higher),
		tables:       map[string][]*SQLAgent{},
		stats:        newCounters(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.catchAll = newSQLAgent(a, nil, 0)
	return a
}

// NewItem creates an item routed by the rules of the agent.
func (a *Agent) NewItem(fullName string, s stream.Stream) *Item {
	return NewItem(a.definition, fullName, s)
}

// InitializeOutputs prepares the outputs. It must be called before Run.
func (a *Agent) InitializeOutputs(outs Outputs) error {
	if outs.TempFS == nil {
		outs.TempFS = afero.NewOsFs()
	}
	if outs.TempDir == "" {
		outs.TempDir = os.TempDir()
	}
	if err := outs.TempFS.MkdirAll(outs.TempDir, 0750); err != nil {
		return errors.Wrap(err, "could not create temp directory")
	}
	if outs.Extract != nil {
		if err := outs.Extract.MkdirAll("/", 0750); err != nil {
			return errors.Wrap(err, "could not create extract output")
		}
	}
	a.outputs = outs
	a.outputsReady = true
	return nil
}

// InitializeTables starts the SQL agents of every table. The first agent of
// a table prepares it according to its disposition.
func (a *Agent) InitializeTables(descs []TableDescription) error {
	if len(descs) > 0 && a.outputs.Import == nil {
		return errors.New("tables require an import output")
	}

	var started []*SQLAgent
	fail := func(err error) error {
		for _, s := range started {
			s.Close() // nolint:errcheck
		}
		return err
	}

	tables := map[string][]*SQLAgent{}
	for i := range descs {
		desc := descs[i]
		if desc.Name == "" {
			return fail(errors.Errorf("table %d has no name", i))
		}
		if _, ok := tables[desc.Name]; ok {
			return fail(errors.Errorf("table %s declared twice", desc.Name))
		}
		if desc.Concurrency < 1 {
			desc.Concurrency = 1
		}
		for id := 0; id < desc.Concurrency; id++ {
			s := newSQLAgent(a, &desc, id)
			if err := s.Initialize(a.outputs.Import); err != nil {
				return fail(errors.Wrapf(err, "could not initialize table %s", desc.Name))
			}
			started = append(started, s)
			tables[desc.Name] = append(tables[desc.Name], s)
		}
	}

	a.tables = tables
	a.sqlAgents = started
	return nil
}

// State returns the lifecycle state.
func (a *Agent) State() State {
	return State(a.state.Load())
}

func (a *Agent) setState(s State) {
	a.state.Store(int32(s))
	a.logger.Debug("agent state", zap.Stringer("state", s))
}

// Budgets returns the file and the memory byte budget.
func (a *Agent) Budgets() (file, mem *budget.Semaphore) {
	return a.fileBudget, a.memBudget
}

// Admitted returns the number of admitted items.
func (a *Agent) Admitted() int64 {
	return a.admitted.Load()
}

// InProgress returns the number of admitted items without notification.
func (a *Agent) InProgress() int64 {
	return a.inProgress.Load()
}

// Triage returns the request an item needs according to its format and the
// rules matching its name.
func Triage(item *Item) RequestType {
	if item.IsToIgnore() {
		return RequestIgnore
	}
	switch f := item.Format(); {
	case f == Envelopped:
		return RequestExpand
	case f == Archive:
		if item.IsToExpand() && archive.Supported(archive.KindOf(item.Name)) {
			return RequestExpand
		}
		return RequestExtract
	case f.Importable() && item.IsToImport():
		return RequestImport
	case item.IsToExtract():
		return RequestExtract
	}
	return RequestIgnore
}

// SendRequest admits a request. Temporary streams are charged against the
// file or the memory budget first, which blocks while the budget is
// exhausted. Complete requests are queued without charge.
func (a *Agent) SendRequest(ctx context.Context, m Message) error {
	if m.Type == RequestComplete {
		a.mu.RLock()
		defer a.mu.RUnlock()
		if a.closed {
			return ErrAgentStopped
		}
		return a.queue.Send(m)
	}
	if m.Item == nil {
		return errors.New("request without item")
	}

	a.mu.RLock()
	closed := a.closed
	a.mu.RUnlock()
	if closed {
		return ErrAgentStopped
	}

	if err := a.charge(ctx, m.Item); err != nil {
		return err
	}
	return a.admit(m)
}

// admit counts the item as in progress and routes it. The item must already
// be charged.
func (a *Agent) admit(m Message) error {
	a.mu.RLock()
	if a.closed {
		a.mu.RUnlock()
		a.release(m.Item)
		return ErrAgentStopped
	}
	a.inProgress.Add(1)
	a.admitted.Add(1)
	n, done := a.route(m)
	a.mu.RUnlock()

	if done {
		a.complete(n)
	}
	return nil
}

// route queues m for the agent or the SQL agents. It returns a notification
// for items that need no further work.
func (a *Agent) route(m Message) (Notification, bool) {
	item := m.Item
	if m.Type != RequestIgnore {
		m.Type = Triage(item)
	}
	m.format = item.Format()
	a.stats.add("format", m.format.String())

	switch m.Type {
	case RequestIgnore:
		return Success(ActionIgnore, item), true
	case RequestImport:
		m.key = a.tableKey(item.Table())
		if err := a.sqlQueue.Send(m); err != nil {
			return Failure(ActionImport, item, err), true
		}
		return Notification{}, false
	}

	if err := a.queue.Send(m); err != nil {
		return Failure(ActionUnknown, item, err), true
	}
	return Notification{}, false
}

func (a *Agent) tableKey(table string) string {
	if _, ok := a.tables[table]; ok {
		return table
	}
	return catchAllKey
}

// forward admits an item produced by the agent itself. Items the agent no
// longer admits fail.
func (a *Agent) forward(item *Item) {
	t := Triage(item)
	if err := a.admit(NewRequest(t, item)); err != nil {
		a.fail(item, t.action(), err)
	}
}

// fail admits an item that could not be produced and completes it.
func (a *Agent) fail(item *Item, action Action, err error) {
	a.settle(Failure(action, item, err))
}

// settle admits an item that needs no further work and completes it.
func (a *Agent) settle(n Notification) {
	a.inProgress.Add(1)
	a.admitted.Add(1)
	a.complete(n)
}

// ignoredByName reports whether item is ignored whatever its content. Only
// name based rules are consulted, item needs no stream.
func ignoredByName(item *Item) bool {
	if item.IsToIgnore() {
		return true
	}
	switch FormatOf(item.Name) {
	case Envelopped, Archive:
		return false
	}
	return !item.IsToImport() && !item.IsToExtract()
}

// Run processes requests until a Complete request arrives and all admitted
// items are done, or until ctx is canceled. SQL agents are completed and
// finalized before Run returns.
func (a *Agent) Run(ctx context.Context) error {
	if !a.outputsReady {
		return ErrNotInitialized
	}
	a.setState(Running)

	var g errgroup.Group
	for _, s := range append(a.sqlAgents, a.catchAll) {
		s := s
		g.Go(func() error {
			return s.Run(ctx)
		})
	}

	err := a.loop(ctx)
	a.tasks.Wait()

	if err != nil {
		a.drain(a.queue)
		a.sqlQueue.Close()
	} else {
		for _, s := range append(a.sqlAgents, a.catchAll) {
			if serr := a.sqlQueue.Send(Message{Type: RequestComplete, key: s.key}); serr != nil {
				a.logger.Error("could not complete sql agent", zap.Error(serr))
			}
		}
	}
	if gerr := g.Wait(); err == nil {
		err = gerr
	}
	a.drain(a.sqlQueue)

	for _, s := range a.sqlAgents {
		s.Finalize()
		if cerr := s.Close(); cerr != nil {
			a.logger.Warn("could not close table output", zap.String("table", s.key), zap.Error(cerr))
		}
	}

	a.setState(Stopped)
	a.LogStatistics()
	return err
}

func (a *Agent) loop(ctx context.Context) error {
	draining := false
	for {
		rctx, cancel := context.WithTimeout(ctx, a.pollInterval)
		m, err := a.queue.Receive(rctx)
		cancel()

		switch {
		case err == nil && m.Type == RequestComplete:
			if !draining {
				draining = true
				a.setState(Draining)
			}
		case err == nil:
			a.dispatch(ctx, m)
			continue
		case ctx.Err() != nil:
			a.mu.Lock()
			a.closed = true
			a.mu.Unlock()
			return ctx.Err()
		}

		if draining {
			if a.tryStop() {
				return nil
			}
		} else if a.idleComplete && a.admitted.Load() > 0 && a.idle() {
			a.logger.Debug("agent idle, completing")
			if err := a.queue.Send(Complete()); err != nil {
				return err
			}
		}
	}
}

// drain fails the requests left in q.
func (a *Agent) drain(q *buffer.Buffer[Message]) {
	for {
		m, ok := q.TryReceive(isWork)
		if !ok {
			return
		}
		a.complete(Failure(m.Type.action(), m.Item, ErrAgentStopped))
	}
}

func isWork(m Message) bool {
	return m.Type != RequestComplete
}

func (a *Agent) idle() bool {
	return a.inProgress.Load() == 0 && a.queue.Count(isWork) == 0
}

// tryStop closes the agent for admissions if no work is left.
func (a *Agent) tryStop() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.idle() {
		return false
	}
	a.closed = true
	return true
}

// dispatch processes m in its own goroutine.
func (a *Agent) dispatch(ctx context.Context, m Message) {
	a.tasks.Add(1)
	go func() {
		defer a.tasks.Done()

		item := m.Item
		item.ImportStart = time.Now().UTC()
		switch {
		case m.Type == RequestExpand && m.format == Envelopped:
			a.unwrapItem(ctx, item)
		case m.Type == RequestExpand:
			a.expandItem(ctx, item)
		case m.Type == RequestExtract:
			a.extractItem(item)
		default:
			a.complete(Failure(ActionUnknown, item, errors.Errorf("unexpected %s request", m.Type)))
		}
	}()
}

// complete ends the processing of an item. It runs once per item: the stream
// is closed, the charge released and the notification sent.
func (a *Agent) complete(n Notification) {
	item := n.Item
	if !item.done.CompareAndSwap(false, true) {
		return
	}

	if err := item.CloseStream(); err != nil {
		a.logger.Debug("could not close stream", zap.String("item", item.FullName), zap.Error(err))
	}
	a.release(item)
	if item.ImportEnd.IsZero() {
		item.ImportEnd = time.Now().UTC()
	}

	a.stats.add("action", n.Action.String())
	if n.Failed() {
		a.stats.add("result", "failed")
		a.logger.Warn("item failed",
			zap.String("item", item.FullName), zap.Stringer("action", n.Action), zap.Error(n.Err()))
	} else {
		a.stats.add("result", "succeeded")
	}

	a.notifier.Notify(n)
	a.inProgress.Add(-1)
}

// charge reserves budget for a temporary stream that is not charged yet.
func (a *Agent) charge(ctx context.Context, item *Item) error {
	if item.Charged() > 0 {
		return nil
	}
	tmp, ok := item.Stream.(*stream.Temporary)
	if !ok {
		return nil
	}
	size, err := tmp.Size()
	if err != nil {
		return err
	}
	if tmp.FileBacked() {
		item.FileBytesCharged, err = a.fileBudget.Acquire(ctx, size)
	} else {
		item.MemBytesCharged, err = a.memBudget.Acquire(ctx, size)
	}
	return err
}

// recharge adjusts the charge of an item to the actual size and backing of
// its temporary stream. The old charge is given back before waiting.
func (a *Agent) recharge(ctx context.Context, item *Item) error {
	tmp, ok := item.Stream.(*stream.Temporary)
	if !ok {
		return nil
	}
	size, err := tmp.Size()
	if err != nil {
		return err
	}
	if tmp.FileBacked() {
		if item.MemBytesCharged == 0 && item.FileBytesCharged >= min(size, a.fileBudget.Capacity()) {
			return nil
		}
	} else if item.FileBytesCharged == 0 && item.MemBytesCharged >= min(size, a.memBudget.Capacity()) {
		return nil
	}

	a.release(item)
	return a.charge(ctx, item)
}

func (a *Agent) release(item *Item) {
	a.fileBudget.Release(item.FileBytesCharged)
	a.memBudget.Release(item.MemBytesCharged)
	item.FileBytesCharged = 0
	item.MemBytesCharged = 0
}

// newTemporary creates a charged temporary stream for expected bytes.
func (a *Agent) newTemporary(ctx context.Context, expected int64) (*stream.Temporary, int64, int64, error) {
	sem := a.memBudget
	if expected > a.memThreshold {
		sem = a.fileBudget
	}
	n, err := sem.Acquire(ctx, expected)
	if err != nil {
		return nil, 0, 0, err
	}
	tmp, err := stream.NewTemporary(a.outputs.TempFS, a.outputs.TempDir, expected, a.memThreshold)
	if err != nil {
		sem.Release(n)
		return nil, 0, 0, err
	}
	if sem == a.fileBudget {
		return tmp, n, 0, nil
	}
	return tmp, 0, n, nil
}

// expandItem extracts the members of an archive into temporary streams and
// admits every member as a new item. The archive gives back its charge
// first, members are charged while they are extracted.
func (a *Agent) expandItem(ctx context.Context, item *Item) {
	extractor, err := archive.For(item.Stream, item.Name)
	if err == nil {
		err = item.Rewind()
	}
	if err != nil {
		a.complete(Failure(ActionExpand, item, err))
		return
	}

	password := item.Password()
	if password == "" {
		password = a.password
	}

	a.release(item)

	pending := map[stream.Stream]*Item{}
	err = extractor.Extract(ctx, item.Stream, archive.Options{
		Password: password,
		Include: func(m archive.Member) bool {
			child := item.child(path.Join(item.FullName, m.Name), nil)
			if !ignoredByName(child) {
				return true
			}
			a.settle(Success(ActionIgnore, child))
			return false
		},
		Create: func(ctx context.Context, m archive.Member) (stream.Stream, error) {
			tmp, fileN, memN, err := a.newTemporary(ctx, m.Size)
			if err != nil {
				return nil, err
			}
			child := item.child(path.Join(item.FullName, m.Name), tmp)
			child.FileBytesCharged, child.MemBytesCharged = fileN, memN
			pending[tmp] = child
			return tmp, nil
		},
		Done: func(m archive.Member, dst stream.Stream, err error) {
			child := pending[dst]
			delete(pending, dst)

			if err == nil {
				err = a.recharge(ctx, child)
			}
			if err == nil {
				child.BytesExtracted, err = dst.Size()
			}
			if err != nil {
				a.fail(child, ActionExpand, err)
				return
			}
			item.BytesExtracted += child.BytesExtracted
			a.forward(child)
		},
	})
	for _, child := range pending {
		a.fail(child, ActionExpand, errors.New("member was not extracted"))
	}

	if err != nil {
		a.complete(Failure(ActionExpand, item, errors.Wrapf(err, "could not expand %s", item.FullName)))
		return
	}
	a.complete(Success(ActionExpand, item))
}

// unwrapItem writes the payload of an envelope into a temporary stream and
// admits it as a new item.
func (a *Agent) unwrapItem(ctx context.Context, item *Item) {
	size, err := item.Stream.Size()
	if err == nil {
		err = item.Rewind()
	}
	if err != nil {
		a.complete(Failure(ActionExpand, item, err))
		return
	}

	a.release(item)

	tmp, fileN, memN, err := a.newTemporary(ctx, size)
	if err != nil {
		a.complete(Failure(ActionExpand, item, err))
		return
	}
	child := item.child(unwrappedName(item.FullName), tmp)
	child.FileBytesCharged, child.MemBytesCharged = fileN, memN

	n, err := a.opener.Open(item.Stream, tmp)
	if err == nil {
		err = a.recharge(ctx, child)
	}
	if err == nil {
		err = child.Rewind()
	}
	if err != nil {
		child.CloseStream() // nolint:errcheck
		a.release(child)
		a.complete(Failure(ActionExpand, item, errors.Wrapf(err, "could not unwrap %s", item.FullName)))
		return
	}

	item.BytesExtracted = n
	a.forward(child)
	a.complete(Success(ActionExpand, item))
}

// unwrappedName removes the envelope extension. Payloads without extension
// are archives.
func unwrappedName(name string) string {
	if strings.EqualFold(path.Ext(name), ".p7b") {
		name = name[:len(name)-len(".p7b")]
	}
	if path.Ext(name) == "" {
		name += ".7z"
	}
	return name
}

// extractItem writes an item to the extract output at its relative path.
func (a *Agent) extractItem(item *Item) {
	fs := a.outputs.Extract
	if fs == nil {
		a.complete(Failure(ActionExtract, item, ErrNoExtractOutput))
		return
	}

	n, name, err := a.store(fs, item)
	if err != nil {
		a.complete(Failure(ActionExtract, item, errors.Wrapf(err, "could not extract %s", item.FullName)))
		return
	}
	item.OutputFile = name
	item.BytesExtracted = n
	a.complete(Success(ActionExtract, item))
}

func (a *Agent) store(fs afero.Fs, item *Item) (int64, string, error) {
	if err := item.Rewind(); err != nil {
		return 0, "", err
	}

	name, err := a.reserve(fs, path.Clean("/"+filepath.ToSlash(item.FullName)))
	if err != nil {
		return 0, "", err
	}

	if tmp, ok := item.Stream.(*stream.Temporary); ok {
		n, err := tmp.MoveTo(fs, name)
		return n, name, err
	}

	dst, err := stream.Create(fs, name)
	if err != nil {
		return 0, "", err
	}
	n, err := stream.CopyTo(dst, item.Stream)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	return n, name, err
}

// reserve creates an empty file at name, or at name with a counter if name
// is taken, and returns its name.
func (a *Agent) reserve(fs afero.Fs, name string) (string, error) {
	a.extractMu.Lock()
	defer a.extractMu.Unlock()

	if err := fs.MkdirAll(path.Dir(name), 0750); err != nil {
		return "", err
	}

	i := 1
	ext := path.Ext(name)
	base := name[:len(name)-len(ext)]
	unique := name
	exists, err := afero.Exists(fs, unique)
	if err != nil {
		return "", err
	}
	for exists {
		unique = fmt.Sprintf("%s_%d%s", base, i, ext)
		i++
		exists, err = afero.Exists(fs, unique)
		if err != nil {
			return "", err
		}
	}

	f, err := fs.Create(unique)
	if err != nil {
		return "", err
	}
	return unique, f.Close()
}

// LogStatistics logs the processed items of the agent and of every SQL
// agent.
func (a *Agent) LogStatistics() {
	counts := a.stats.all()
	a.logger.Info("import agent statistics",
		zap.Int64("admitted", a.admitted.Load()),
		zap.Int64("in_progress", a.inProgress.Load()),
		zap.Any("actions", counts["action"]),
		zap.Any("formats", counts["format"]),
		zap.Any("results", counts["result"]),
	)
	for _, s := range append(a.sqlAgents, a.catchAll) {
		s.LogStatistics()
	}
}
