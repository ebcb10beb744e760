package monitor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/tagwatch-core/internal/catalog"
	"github.com/nerrad567/tagwatch-core/internal/events"
	"github.com/nerrad567/tagwatch-core/internal/infrastructure/logging"
	"github.com/nerrad567/tagwatch-core/internal/infrastructure/metrics"
	"github.com/nerrad567/tagwatch-core/internal/infrastructure/retry"
)

// defaultHealthInterval is how often a live session polls its transport state.
const defaultHealthInterval = 5 * time.Second

// ConfigSource is the read-only catalog view the manager needs.
// catalog.Source satisfies it.
type ConfigSource interface {
	ListEnabledConnections(ctx context.Context) ([]catalog.Connection, error)
	GetConnection(ctx context.Context, id int64) (catalog.Connection, error)
	ListTagsForConnection(ctx context.Context, connectionID int64) ([]catalog.Tag, error)
}

// Logger defines the logging interface for the manager and its sessions.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// withAttrs binds attrs to every call on base. A *logging.Logger binds them
// on its handler; other loggers are wrapped.
func withAttrs(base Logger, attrs ...any) Logger {
	if l, ok := base.(*logging.Logger); ok {
		return l.With(attrs...)
	}
	return attrLogger{base: base, attrs: attrs}
}

// attrLogger prepends fixed attributes to every call.
type attrLogger struct {
	base  Logger
	attrs []any
}

func (l attrLogger) join(args []any) []any {
	return append(append(make([]any, 0, len(l.attrs)+len(args)), l.attrs...), args...)
}

func (l attrLogger) Debug(msg string, args ...any) { l.base.Debug(msg, l.join(args)...) }
func (l attrLogger) Info(msg string, args ...any)  { l.base.Info(msg, l.join(args)...) }
func (l attrLogger) Warn(msg string, args ...any)  { l.base.Warn(msg, l.join(args)...) }
func (l attrLogger) Error(msg string, args ...any) { l.base.Error(msg, l.join(args)...) }

// StatusFunc is told whenever a connection's observed state changes. It is
// how the status mirror reaches persistent storage.
type StatusFunc func(ctx context.Context, id int64, connected bool)

// Options configures a Manager. Zero values fall back to defaults.
type Options struct {
	Logger       Logger
	Metrics      *metrics.Metrics
	Subscription SubscriptionParams

	// Retry governs opening a session. Zero value means a single attempt.
	Retry retry.Policy

	// HealthInterval is how often live sessions poll their transport state.
	// Negative disables polling.
	HealthInterval time.Duration

	OnStatus StatusFunc
}

// Manager owns the session registry.
type Manager struct {
	source    ConfigSource
	dialer    Dialer
	evaluator Evaluator
	sink      events.Sink

	logger         Logger
	metrics        *metrics.Metrics
	params         SubscriptionParams
	retry          retry.Policy
	healthInterval time.Duration
	onStatus       StatusFunc

	locks  *keyedMutex
	closed atomic.Bool

	mu       sync.RWMutex
	sessions map[int64]*Session
}

// NewManager wires a manager. sink may be nil, in which case events are
// discarded.
func NewManager(source ConfigSource, dialer Dialer, evaluator Evaluator, sink events.Sink, opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	if sink == nil {
		sink = events.Discard
	}
	if opts.Subscription == (SubscriptionParams{}) {
		opts.Subscription = DefaultSubscriptionParams()
	}
	if opts.Retry.MaxAttempts < 1 {
		opts.Retry = retry.Once()
	}
	if opts.HealthInterval == 0 {
		opts.HealthInterval = defaultHealthInterval
	}

	return &Manager{
		source:         source,
		dialer:         dialer,
		evaluator:      evaluator,
		sink:           sink,
		logger:         opts.Logger,
		metrics:        opts.Metrics,
		params:         opts.Subscription,
		retry:          opts.Retry,
		healthInterval: opts.HealthInterval,
		onStatus:       opts.OnStatus,
		locks:          newKeyedMutex(),
		sessions:       make(map[int64]*Session),
	}
}

// StartAll creates a session for every enabled connection. A connection
// that fails to start is logged and skipped; only a failure to list the
// connections is returned.
func (m *Manager) StartAll(ctx context.Context) error {
	conns, err := m.source.ListEnabledConnections(ctx)
	if err != nil {
		return fmt.Errorf("listing enabled connections: %w", err)
	}
	if len(conns) == 0 {
		m.logger.Info("no enabled connections")
		return nil
	}

	started := 0
	for _, conn := range conns {
		if err := m.CreateConnection(ctx, conn); err != nil {
			m.logger.Error("connection start failed", "connection_id", conn.ID, "name", conn.Name, "error", err)
			continue
		}
		if m.IsActive(conn.ID) {
			started++
		}
	}
	m.logger.Info("connections started", "enabled", len(conns), "active", started)
	return nil
}

// CreateConnection replaces any live session for conn.ID with a new one.
//
// A connection with no tags leaves nothing registered and returns nil.
func (m *Manager) CreateConnection(ctx context.Context, conn catalog.Connection) error {
	if m.closed.Load() {
		return ErrManagerClosed
	}
	unlock := m.locks.Lock(conn.ID)
	defer unlock()

	m.stopLocked(ctx, conn.ID)
	return m.createLocked(ctx, conn)
}

// StopConnection tears down the session for id, if any. Teardown errors are
// logged; the registry entry is removed regardless.
func (m *Manager) StopConnection(ctx context.Context, id int64) {
	unlock := m.locks.Lock(id)
	defer unlock()

	m.stopLocked(ctx, id)
}

// AddNewConnection re-reads connection id and starts it when it is enabled
// and not already active.
func (m *Manager) AddNewConnection(ctx context.Context, id int64) error {
	if m.closed.Load() {
		return ErrManagerClosed
	}
	unlock := m.locks.Lock(id)
	defer unlock()

	if m.IsActive(id) {
		return nil
	}
	conn, err := m.source.GetConnection(ctx, id)
	if err != nil {
		return fmt.Errorf("reading connection %d: %w", id, err)
	}
	if !conn.Enabled {
		m.logger.Debug("connection disabled, not starting", "connection_id", id)
		return nil
	}
	return m.createLocked(ctx, conn)
}

// UpdateConnection applies changes to the stored record and restarts the
// session. A disabled result only stops it. Settings cannot be changed on a
// live session, so the restart happens even when enabled stays true.
func (m *Manager) UpdateConnection(ctx context.Context, id int64, changes catalog.ConnectionChanges) error {
	if m.closed.Load() {
		return ErrManagerClosed
	}
	unlock := m.locks.Lock(id)
	defer unlock()

	conn, err := m.source.GetConnection(ctx, id)
	if err != nil {
		return fmt.Errorf("reading connection %d: %w", id, err)
	}
	conn = changes.Apply(conn)

	m.stopLocked(ctx, id)
	if !conn.Enabled {
		return nil
	}
	return m.createLocked(ctx, conn)
}

// Close stops every live session and rejects further starts.
func (m *Manager) Close(ctx context.Context) {
	m.closed.Store(true)
	for _, id := range m.ActiveConnections() {
		m.StopConnection(ctx, id)
	}
}

// IsActive reports whether a session is registered for id.
func (m *Manager) IsActive(id int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sessions[id]
	return ok
}

// Status returns the observed connected state for id. It is false when no
// session is registered.
func (m *Manager) Status(id int64) bool {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	return ok && s.Connected()
}

// ActiveConnections returns the ids of all registered sessions in ascending
// order.
func (m *Manager) ActiveConnections() []int64 {
	m.mu.RLock()
	ids := make([]int64, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// createLocked opens the client, reads the tags and starts a session. The
// caller holds the id lock and has already stopped any previous session.
func (m *Manager) createLocked(ctx context.Context, conn catalog.Connection) error {
	logger := withAttrs(m.logger, "connection_id", conn.ID, "connection", conn.Name)

	policy := m.retry
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.Warn("session open failed, retrying", "attempt", attempt, "delay", delay, "error", err)
	}

	client, err := retry.DoValue(ctx, policy, func(ctx context.Context) (ClientConn, error) {
		return m.dialer.Dial(ctx, conn.EndpointURL)
	})
	if err != nil {
		m.metrics.SessionOpened(metrics.ResultFailure)
		m.reportStatus(conn.ID, false)
		logger.Error("session open failed", "endpoint", conn.EndpointURL, "error", err)
		return fmt.Errorf("%w: %s: %w", ErrSessionOpen, conn.Name, err)
	}
	if m.closed.Load() {
		m.closeClient(ctx, client, logger)
		return ErrManagerClosed
	}

	tags, err := m.source.ListTagsForConnection(ctx, conn.ID)
	if err != nil {
		m.closeClient(ctx, client, logger)
		m.metrics.SessionOpened(metrics.ResultFailure)
		return fmt.Errorf("listing tags for connection %d: %w", conn.ID, err)
	}
	if len(tags) == 0 {
		m.closeClient(ctx, client, logger)
		m.metrics.SessionOpened(metrics.ResultNoTags)
		logger.Warn("connection has no tags, nothing to monitor")
		return nil
	}

	session, err := startSession(ctx, conn, client, tags, m.params, sessionDeps{
		evaluator:      m.evaluator,
		sink:           m.sink,
		logger:         logger,
		metrics:        m.metrics,
		healthInterval: m.healthInterval,
		onState:        m.reportStatus,
	})
	if err != nil {
		m.closeClient(ctx, client, logger)
		m.metrics.SessionOpened(metrics.ResultFailure)
		return err
	}

	// Close flags the manager before it lists sessions, so an insert either
	// lands where Close will see it or observes the flag here.
	m.mu.Lock()
	if m.closed.Load() {
		m.mu.Unlock()
		_ = session.stop(ctx) //nolint:errcheck // Logged by the session
		return ErrManagerClosed
	}
	m.sessions[conn.ID] = session
	m.mu.Unlock()

	m.metrics.SessionOpened(metrics.ResultSuccess)
	m.metrics.SessionStarted(session.ItemCount())
	m.reportStatus(conn.ID, session.Connected())
	return nil
}

// stopLocked removes and stops the session for id. The caller holds the id
// lock.
func (m *Manager) stopLocked(ctx context.Context, id int64) {
	m.mu.Lock()
	session, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return
	}
	_ = session.stop(ctx) //nolint:errcheck // Logged by the session
	m.metrics.SessionStopped(session.ItemCount())
	m.reportStatus(id, false)
}

func (m *Manager) closeClient(ctx context.Context, client ClientConn, logger Logger) {
	if err := client.Close(ctx); err != nil {
		logger.Warn("session close failed", "error", err)
	}
}

func (m *Manager) reportStatus(id int64, connected bool) {
	if m.onStatus == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), statusTimeout)
	defer cancel()
	m.onStatus(ctx, id, connected)
}

// statusTimeout bounds a single status hook call.
const statusTimeout = 5 * time.Second
