package monitor

import (
	"context"
	"errors"
	"testing"

	"github.com/nerrad567/tagwatch-core/internal/events"
)

// newTestSession starts a session on a fake client with the given evaluator.
func newTestSession(t *testing.T, evaluator Evaluator, logger Logger) (*Session, *fakeSub) {
	t.Helper()
	ctx := context.Background()
	client, err := (&fakeDialer{}).Dial(ctx, endpointA)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	s, err := startSession(ctx, boilerConnection(), client, boilerTags(), DefaultSubscriptionParams(), sessionDeps{
		evaluator:      evaluator,
		sink:           &recordingSink{},
		logger:         logger,
		healthInterval: -1,
	})
	if err != nil {
		t.Fatalf("startSession() error = %v", err)
	}
	t.Cleanup(func() { _ = s.stop(context.Background()) })
	return s, client.(*fakeConn).sub()
}

func TestSession_EvaluationErrorLogLevel(t *testing.T) {
	errStore := errors.New("rules table unavailable")

	tests := []struct {
		name      string
		evalErr   error
		stopping  bool
		cancelled bool
		wantLevel string
	}{
		{name: "live session", evalErr: errStore, wantLevel: "error"},
		{name: "stopping session", evalErr: context.Canceled, stopping: true, wantLevel: "debug"},
		{name: "cancelled loop context", evalErr: context.Canceled, cancelled: true, wantLevel: "debug"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := &recordingLogger{}
			s, sub := newTestSession(t, failingEvaluator{err: tt.evalErr}, logger)
			handle := sub.handleFor(t, "ns=2;s=Pressure")

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			if tt.cancelled {
				cancel()
			}
			if tt.stopping {
				s.stopping.Store(true)
			}
			s.handleSample(ctx, Sample{Handle: handle, Value: 4.2})

			errs := logger.at("error")
			if tt.wantLevel == "error" {
				if len(errs) != 1 || errs[0] != "rule evaluation failed" {
					t.Errorf("error messages = %v, want [rule evaluation failed]", errs)
				}
				return
			}
			if len(errs) != 0 {
				t.Errorf("error messages = %v, want none", errs)
			}
			found := false
			for _, msg := range logger.at("debug") {
				if msg == "rule evaluation interrupted by stop" {
					found = true
				}
			}
			if !found {
				t.Errorf("debug messages = %v, want rule evaluation interrupted by stop", logger.at("debug"))
			}
		})
	}
}

func TestSession_LiveDataPublishedBeforeEvaluationError(t *testing.T) {
	s, sub := newTestSession(t, failingEvaluator{err: errors.New("boom")}, noopLogger{})
	sink := s.deps.sink.(*recordingSink)

	s.handleSample(context.Background(), Sample{Handle: sub.handleFor(t, "ns=2;s=InTemp"), Value: 19.0})

	if got := len(sink.named(events.EventLiveData)); got != 1 {
		t.Errorf("liveData events = %d, want 1", got)
	}
	if got := len(sink.named(events.EventAlarm)); got != 0 {
		t.Errorf("alarm events = %d, want 0", got)
	}
}
