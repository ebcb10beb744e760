// Package monitor keeps one live OPC UA session per enabled connection.
//
// A Manager owns the registry of Sessions, keyed by connection id. Each
// Session holds one subscription with a monitored item per tag and a single
// goroutine that drains the subscription's sample channel:
//
//	sample → liveData event → Evaluator.Evaluate → alarm events
//
// Management operations for the same connection id are serialised by a
// keyed lock, so replacing a session (stop, then create) is atomic with
// respect to other callers targeting that id. Operations on different ids
// run in parallel.
//
// Stopping a session cancels its loop before the subscription is cancelled
// and the client closed; samples still queued at that point are discarded.
package monitor
