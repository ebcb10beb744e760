package monitor

import "errors"

var (
	// ErrSessionOpen is returned when the transport session cannot be opened.
	ErrSessionOpen = errors.New("monitor: session open failed")

	// ErrSubscribe is returned when the subscription group cannot be created.
	ErrSubscribe = errors.New("monitor: subscription failed")

	// ErrNoMonitoredItems is returned when every tag of a connection failed
	// to attach as a monitored item.
	ErrNoMonitoredItems = errors.New("monitor: no tag could be monitored")

	// ErrManagerClosed is returned by operations after Close.
	ErrManagerClosed = errors.New("monitor: manager closed")

	// ErrUnsupportedValue is returned for samples that have no numeric form.
	ErrUnsupportedValue = errors.New("monitor: unsupported sample value")
)
