// Package events defines where the monitor's output goes.
//
// The core depends on one contract, Sink, with a fire-and-forget Publish.
// Two events exist:
//
//   - "liveData": one per received sample, payload LiveData
//   - "alarm":    one per fired rule, payload engine.Alarm
//
// Concrete sinks are composed at startup:
//
//	hub (WebSocket UI)  ─┐
//	AsyncSink(MQTT)     ─┼─ Fanout ← monitor
//	AsyncSink(NATS)     ─┘
//
// Broker-backed sinks are wrapped in an AsyncSink so a slow or unreachable
// broker never stalls the sample loop. When the queue is full the event is
// dropped and counted.
package events
