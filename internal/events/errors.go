package events

import "errors"

var (
	// ErrSinkClosed is returned by AsyncSink.Close when called twice.
	ErrSinkClosed = errors.New("events: sink closed")

	// ErrUnroutable is returned by broker publishers for payloads they
	// cannot derive a topic from.
	ErrUnroutable = errors.New("events: no route for payload")
)
