package api

import (
	"net/http"
	"runtime"
	"time"
)

const bytesPerMB = 1024 * 1024

// SystemMetrics is the JSON operator snapshot served at /api/v1/metrics.
// Prometheus counters live on the scrape endpoint instead.
type SystemMetrics struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeMetrics `json:"runtime"`
	WebSocket     WSMetrics      `json:"websocket"`
	Brokers       BrokerMetrics  `json:"brokers"`
	Sessions      SessionMetrics `json:"sessions"`
	Cache         CacheMetrics   `json:"cache"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// BrokerMetrics reports the outbound relays. A nil field means the relay
// is not configured.
type BrokerMetrics struct {
	MQTT *bool `json:"mqtt_connected,omitempty"`
	NATS *bool `json:"nats_connected,omitempty"`
}

// SessionMetrics summarises the live OPC UA sessions.
type SessionMetrics struct {
	Active      int     `json:"active"`
	Connections []int64 `json:"connection_ids"`
}

// CacheMetrics describes the live value cache.
type CacheMetrics struct {
	Tags int `json:"tags"`
}

// handleMetrics returns a system metrics snapshot.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	active := s.manager.ActiveConnections()
	if active == nil {
		active = []int64{}
	}

	m := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / bytesPerMB,
			MemoryTotalMB: float64(memStats.TotalAlloc) / bytesPerMB,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{ConnectedClients: s.Hub().ClientCount()},
		Brokers: BrokerMetrics{
			MQTT: brokerConnected(s.mqtt),
			NATS: brokerConnected(s.nats),
		},
		Sessions: SessionMetrics{Active: len(active), Connections: active},
	}
	if s.live != nil {
		m.Cache.Tags = s.live.Len()
	}

	writeJSON(w, http.StatusOK, m)
}

func brokerConnected(b BrokerStatus) *bool {
	if b == nil {
		return nil
	}
	v := b.IsConnected()
	return &v
}
