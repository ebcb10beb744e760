package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/tagwatch-core/internal/catalog"
	"github.com/nerrad567/tagwatch-core/internal/engine"
	"github.com/nerrad567/tagwatch-core/internal/events"
	"github.com/nerrad567/tagwatch-core/internal/infrastructure/metrics"
)

// Evaluator runs the rules for a tag against a new value.
type Evaluator interface {
	Evaluate(ctx context.Context, tagID int64, value float64) ([]engine.Alarm, error)
}

// sessionDeps are the collaborators a Session publishes through. They are
// shared with the Manager that created it.
type sessionDeps struct {
	evaluator      Evaluator
	sink           events.Sink
	logger         Logger
	metrics        *metrics.Metrics
	healthInterval time.Duration
	onState        func(id int64, connected bool)
}

// Session is the live state for one connection: the open client, its
// subscription group and the goroutine draining samples.
type Session struct {
	conn   catalog.Connection
	client ClientConn
	sub    Subscription
	tags   map[uint32]catalog.Tag
	deps   sessionDeps
	logger Logger

	connected atomic.Bool
	stopping  atomic.Bool
	stopOnce  sync.Once

	cancel context.CancelFunc
	done   chan struct{}
}

// startSession creates the subscription group on an open client, attaches
// one monitored item per tag and starts the sample loop.
//
// A tag that fails to attach is logged and skipped; items already attached
// stay in place. If no tag attaches at all the subscription is cancelled and
// ErrNoMonitoredItems returned. The caller still owns client on error.
func startSession(ctx context.Context, conn catalog.Connection, client ClientConn, tags []catalog.Tag, params SubscriptionParams, deps sessionDeps) (*Session, error) {
	logger := deps.logger
	sub, err := client.Subscribe(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSubscribe, conn.Name, err)
	}

	monitored := make(map[uint32]catalog.Tag, len(tags))
	for i, tag := range tags {
		handle := uint32(i + 1) //nolint:gosec // tag counts are far below 2^32
		if err := sub.Monitor(ctx, MonitoredItem{Handle: handle, NodeID: tag.NodeID}); err != nil {
			logger.Warn("monitored item failed",
				"tag_id", tag.ID,
				"tag", tag.Name,
				"node_id", tag.NodeID,
				"error", err,
			)
			continue
		}
		monitored[handle] = tag
	}

	if len(monitored) == 0 {
		if cerr := sub.Cancel(ctx); cerr != nil {
			logger.Warn("subscription cancel failed", "error", cerr)
		}
		return nil, fmt.Errorf("%w: %s (%d tags)", ErrNoMonitoredItems, conn.Name, len(tags))
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	s := &Session{
		conn:   conn,
		client: client,
		sub:    sub,
		tags:   monitored,
		deps:   deps,
		logger: logger,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.connected.Store(client.State() == StateConnected)

	go s.run(loopCtx)

	logger.Info("session started",
		"endpoint", conn.EndpointURL,
		"monitored_items", len(monitored),
		"failed_items", len(tags)-len(monitored),
	)
	return s, nil
}

// Connection returns the record the session was started from.
func (s *Session) Connection() catalog.Connection {
	return s.conn
}

// Connected reports the last observed transport state.
func (s *Session) Connected() bool {
	return s.connected.Load()
}

// ItemCount returns the number of monitored items.
func (s *Session) ItemCount() int {
	return len(s.tags)
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)

	var health <-chan time.Time
	if s.deps.healthInterval > 0 {
		ticker := time.NewTicker(s.deps.healthInterval)
		defer ticker.Stop()
		health = ticker.C
	}

	samples := s.sub.Samples()
	for {
		select {
		case <-ctx.Done():
			return
		case <-health:
			s.checkHealth()
		case sample, ok := <-samples:
			if !ok {
				if !s.stopping.Load() {
					s.logger.Warn("subscription closed unexpectedly")
					s.setConnected(false)
				}
				return
			}
			if s.stopping.Load() {
				return
			}
			s.handleSample(ctx, sample)
		}
	}
}

func (s *Session) checkHealth() {
	s.setConnected(s.client.State() == StateConnected)
}

func (s *Session) setConnected(v bool) {
	if s.connected.Swap(v) == v {
		return
	}
	s.logger.Info("session state changed", "connected", v)
	if s.deps.onState != nil && !s.stopping.Load() {
		s.deps.onState(s.conn.ID, v)
	}
}

// handleSample publishes the live value, evaluates rules and publishes any
// alarms. Failures affect only this sample.
func (s *Session) handleSample(ctx context.Context, sample Sample) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("sample handler panic recovered", "handle", sample.Handle, "panic", r)
		}
	}()

	tag, ok := s.tags[sample.Handle]
	if !ok {
		s.logger.Debug("sample for unknown handle", "handle", sample.Handle)
		return
	}

	value, err := ToFloat(sample.Value)
	if err != nil {
		s.logger.Warn("sample skipped", "tag_id", tag.ID, "tag", tag.Name, "error", err)
		return
	}

	s.setConnected(true)
	s.deps.metrics.SampleReceived(s.conn.ID)

	s.deps.sink.Publish(events.EventLiveData, events.LiveData{
		TagID:      tag.ID,
		TagName:    tag.Name,
		Value:      value,
		Unit:       tag.Unit,
		SourceID:   s.conn.ID,
		SourceName: s.conn.Name,
	})

	alarms, err := s.deps.evaluator.Evaluate(ctx, tag.ID, value)
	if err != nil {
		if s.stopping.Load() || ctx.Err() != nil {
			s.logger.Debug("rule evaluation interrupted by stop", "tag_id", tag.ID, "error", err)
			return
		}
		s.logger.Error("rule evaluation failed", "tag_id", tag.ID, "error", err)
		return
	}
	for _, alarm := range alarms {
		if s.stopping.Load() {
			return
		}
		s.deps.sink.Publish(events.EventAlarm, alarm)
	}
}

// stop tears the session down in order: sample loop, subscription group,
// client. Errors are logged and returned joined; the session is unusable
// afterwards either way. Only the first call does any work.
func (s *Session) stop(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		s.stopping.Store(true)
		s.cancel()
		<-s.done

		var errs []error
		if cerr := s.sub.Cancel(ctx); cerr != nil {
			s.logger.Warn("subscription cancel failed", "error", cerr)
			errs = append(errs, fmt.Errorf("cancelling subscription: %w", cerr))
		}
		if cerr := s.client.Close(ctx); cerr != nil {
			s.logger.Warn("session close failed", "error", cerr)
			errs = append(errs, fmt.Errorf("closing session: %w", cerr))
		}
		s.connected.Store(false)
		s.logger.Info("session stopped")
		err = errors.Join(errs...)
	})
	return err
}
