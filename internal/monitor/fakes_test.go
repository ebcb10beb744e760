package monitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/tagwatch-core/internal/catalog"
	"github.com/nerrad567/tagwatch-core/internal/engine"
)

// =============================================================================
// Fake transport
// =============================================================================

var errDialRefused = errors.New("connection refused")

// fakeDialer hands out fakeConns and records every dial.
type fakeDialer struct {
	mu        sync.Mutex
	endpoints []string
	conns     []*fakeConn

	// failures is the number of upcoming dials that fail.
	failures int
	// failEndpoints always fail.
	failEndpoints map[string]bool
	// badNodes fail to attach as monitored items.
	badNodes map[string]bool
	// cancelErr is returned by every subscription Cancel.
	cancelErr error

	// order records teardown steps across all conns.
	order []string
}

func (d *fakeDialer) Dial(_ context.Context, endpoint string) (ClientConn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.endpoints = append(d.endpoints, endpoint)
	if d.failEndpoints[endpoint] {
		return nil, errDialRefused
	}
	if d.failures > 0 {
		d.failures--
		return nil, errDialRefused
	}
	c := &fakeConn{dialer: d, endpoint: endpoint}
	c.state.Store(int32(StateConnected))
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) record(step string) {
	d.mu.Lock()
	d.order = append(d.order, step)
	d.mu.Unlock()
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.endpoints)
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[i]
}

func (d *fakeDialer) connCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

// openConns counts conns that were dialled and never closed.
func (d *fakeDialer) openConns() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.conns {
		if c.closed.Load() == 0 {
			n++
		}
	}
	return n
}

type fakeConn struct {
	dialer   *fakeDialer
	endpoint string
	state    atomic.Int32
	closed   atomic.Int32

	mu   sync.Mutex
	subs []*fakeSub
}

func (c *fakeConn) Subscribe(_ context.Context, params SubscriptionParams) (Subscription, error) {
	s := &fakeSub{conn: c, params: params, samples: make(chan Sample, 16)}
	c.mu.Lock()
	c.subs = append(c.subs, s)
	c.mu.Unlock()
	return s, nil
}

func (c *fakeConn) State() ConnState { return ConnState(c.state.Load()) }

func (c *fakeConn) Close(context.Context) error {
	c.closed.Add(1)
	c.dialer.record("close")
	return nil
}

func (c *fakeConn) sub() *fakeSub {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.subs) == 0 {
		return nil
	}
	return c.subs[0]
}

// fakeSub never closes its sample channel, like a transport whose callbacks
// keep firing after teardown has begun.
type fakeSub struct {
	conn      *fakeConn
	params    SubscriptionParams
	samples   chan Sample
	cancelled atomic.Int32

	mu    sync.Mutex
	items []MonitoredItem
}

func (s *fakeSub) Monitor(_ context.Context, item MonitoredItem) error {
	if s.conn.dialer.badNodes[item.NodeID] {
		return errors.New("BadNodeIdUnknown")
	}
	s.mu.Lock()
	s.items = append(s.items, item)
	s.mu.Unlock()
	return nil
}

func (s *fakeSub) Samples() <-chan Sample { return s.samples }

func (s *fakeSub) Cancel(context.Context) error {
	s.cancelled.Add(1)
	s.conn.dialer.record("cancel")
	return s.conn.dialer.cancelErr
}

func (s *fakeSub) itemCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// handleFor returns the client handle used for nodeID.
func (s *fakeSub) handleFor(t *testing.T, nodeID string) uint32 {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range s.items {
		if it.NodeID == nodeID {
			return it.Handle
		}
	}
	t.Fatalf("node %s not monitored", nodeID)
	return 0
}

// gatedDialer blocks every dial until release is closed.
type gatedDialer struct {
	*fakeDialer
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedDialer(d *fakeDialer) *gatedDialer {
	return &gatedDialer{fakeDialer: d, entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedDialer) Dial(ctx context.Context, endpoint string) (ClientConn, error) {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	return g.fakeDialer.Dial(ctx, endpoint)
}

// =============================================================================
// Fake config source
// =============================================================================

type memorySource struct {
	mu    sync.Mutex
	conns map[int64]catalog.Connection
	tags  map[int64][]catalog.Tag
	rules map[int64][]catalog.Rule
}

func newMemorySource() *memorySource {
	return &memorySource{
		conns: make(map[int64]catalog.Connection),
		tags:  make(map[int64][]catalog.Tag),
		rules: make(map[int64][]catalog.Rule),
	}
}

func (m *memorySource) addConnection(c catalog.Connection, tags ...catalog.Tag) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conns[c.ID] = c
	m.tags[c.ID] = tags
}

func (m *memorySource) ListEnabledConnections(context.Context) ([]catalog.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []catalog.Connection
	for _, c := range m.conns {
		if c.Enabled {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memorySource) GetConnection(_ context.Context, id int64) (catalog.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conns[id]
	if !ok {
		return catalog.Connection{}, catalog.ErrConnectionNotFound
	}
	return c, nil
}

func (m *memorySource) ListTagsForConnection(_ context.Context, id int64) ([]catalog.Tag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tags[id], nil
}

func (m *memorySource) ListEnabledRulesForTag(_ context.Context, tagID int64) ([]catalog.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rules[tagID], nil
}

// gatedSource holds its first GetConnection after the record has been read
// until release is closed. Later reads pass straight through.
type gatedSource struct {
	*memorySource
	read    chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func newGatedSource(m *memorySource) *gatedSource {
	return &gatedSource{memorySource: m, read: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedSource) GetConnection(ctx context.Context, id int64) (catalog.Connection, error) {
	c, err := g.memorySource.GetConnection(ctx, id)
	if g.calls.Add(1) == 1 {
		close(g.read)
		<-g.release
	}
	return c, err
}

// =============================================================================
// Fake evaluator and logger
// =============================================================================

type failingEvaluator struct {
	err error
}

func (f failingEvaluator) Evaluate(context.Context, int64, float64) ([]engine.Alarm, error) {
	return nil, f.err
}

type logEntry struct {
	level string
	msg   string
}

type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) add(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level, msg})
}

func (l *recordingLogger) Debug(msg string, _ ...any) { l.add("debug", msg) }
func (l *recordingLogger) Info(msg string, _ ...any)  { l.add("info", msg) }
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.add("warn", msg) }
func (l *recordingLogger) Error(msg string, _ ...any) { l.add("error", msg) }

// at returns the messages logged at level.
func (l *recordingLogger) at(level string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, e := range l.entries {
		if e.level == level {
			out = append(out, e.msg)
		}
	}
	return out
}

// =============================================================================
// Recording sink and status hook
// =============================================================================

type published struct {
	event   string
	payload any
}

type recordingSink struct {
	mu     sync.Mutex
	events []published
}

func (r *recordingSink) Publish(event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, published{event, payload})
}

func (r *recordingSink) named(event string) []published {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []published
	for _, p := range r.events {
		if p.event == event {
			out = append(out, p)
		}
	}
	return out
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type statusCall struct {
	id        int64
	connected bool
}

type statusRecorder struct {
	mu    sync.Mutex
	calls []statusCall
}

func (s *statusRecorder) hook(_ context.Context, id int64, connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, statusCall{id, connected})
}

func (s *statusRecorder) last() (statusCall, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.calls) == 0 {
		return statusCall{}, false
	}
	return s.calls[len(s.calls)-1], true
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
