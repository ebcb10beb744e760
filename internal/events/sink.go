package events

// Event names.
const (
	EventLiveData = "liveData"
	EventAlarm    = "alarm"
)

// Sink receives published events. Publish must not block for long and never
// reports failure to the caller.
type Sink interface {
	Publish(event string, payload any)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(event string, payload any)

// Publish calls f.
func (f SinkFunc) Publish(event string, payload any) { f(event, payload) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(string, any) {})

// Logger is the subset of logging.Logger used by sinks.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// LiveData is the payload of a liveData event.
type LiveData struct {
	TagID      int64   `json:"tagId"`
	TagName    string  `json:"tagName"`
	Value      float64 `json:"value"`
	Unit       string  `json:"unit"`
	SourceID   int64   `json:"sourceId"`
	SourceName string  `json:"sourceName"`
}

// Fanout publishes every event to each sink in order. A sink that panics is
// logged and skipped; the others still receive the event.
type Fanout struct {
	sinks  []Sink
	logger Logger
}

// NewFanout returns a Fanout over sinks. Nil sinks are ignored.
func NewFanout(logger Logger, sinks ...Sink) *Fanout {
	if logger == nil {
		logger = noopLogger{}
	}
	f := &Fanout{logger: logger}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

// Publish implements Sink.
func (f *Fanout) Publish(event string, payload any) {
	for i, s := range f.sinks {
		f.publishOne(i, s, event, payload)
	}
}

// Len returns the number of sinks.
func (f *Fanout) Len() int {
	return len(f.sinks)
}

func (f *Fanout) publishOne(i int, s Sink, event string, payload any) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("event sink panic recovered", "sink", i, "event", event, "panic", r)
		}
	}()
	s.Publish(event, payload)
}
