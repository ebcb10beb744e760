package events

import (
	"sync"
)

// DefaultQueueSize is used when AsyncOptions.QueueSize is not positive.
const DefaultQueueSize = 1024

// Publisher is a sink that can fail, e.g. a broker client.
type Publisher interface {
	Publish(event string, payload any) error
}

// DropCounter records dropped events. *metrics.Metrics satisfies it.
type DropCounter interface {
	EventDropped(sink string)
}

// AsyncOptions configures an AsyncSink.
type AsyncOptions struct {
	QueueSize int
	Logger    Logger
	Drops     DropCounter
}

type queued struct {
	event   string
	payload any
}

// AsyncSink decouples a Publisher from the caller with a bounded queue and a
// single worker goroutine. Publish never blocks: when the queue is full the
// event is dropped and counted under the sink's name.
type AsyncSink struct {
	name   string
	target Publisher
	logger Logger
	drops  DropCounter

	mu     sync.RWMutex
	closed bool
	queue  chan queued
	done   chan struct{}
}

// NewAsyncSink starts the worker and returns the sink. Call Close to drain
// and stop it.
func NewAsyncSink(name string, target Publisher, opts AsyncOptions) *AsyncSink {
	size := opts.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	s := &AsyncSink{
		name:   name,
		target: target,
		logger: logger,
		drops:  opts.Drops,
		queue:  make(chan queued, size),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

// Name returns the label used for logs and the drop counter.
func (s *AsyncSink) Name() string {
	return s.name
}

// Publish implements Sink.
func (s *AsyncSink) Publish(event string, payload any) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		s.drop(event)
		return
	}

	select {
	case s.queue <- queued{event: event, payload: payload}:
	default:
		s.drop(event)
	}
}

func (s *AsyncSink) drop(event string) {
	if s.drops != nil {
		s.drops.EventDropped(s.name)
	}
	s.logger.Debug("event dropped", "sink", s.name, "event", event)
}

// Close stops accepting events, delivers what is already queued and waits
// for the worker to exit.
func (s *AsyncSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSinkClosed
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	<-s.done
	return nil
}

func (s *AsyncSink) run() {
	defer close(s.done)
	for item := range s.queue {
		s.deliver(item)
	}
}

func (s *AsyncSink) deliver(item queued) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("event publisher panic recovered", "sink", s.name, "event", item.event, "panic", r)
		}
	}()
	if err := s.target.Publish(item.event, item.payload); err != nil {
		s.logger.Warn("event publish failed", "sink", s.name, "event", item.event, "error", err)
	}
}
