package api

import (
	"net/http"
	"sort"
	"time"
)

// liveValue is one entry of the live value snapshot.
type liveValue struct {
	TagID int64   `json:"tag_id"`
	Value float64 `json:"value"`
}

// handleLiveValues returns the last value seen for every tag, ordered by tag id.
func (s *Server) handleLiveValues(w http.ResponseWriter, _ *http.Request) {
	values := []liveValue{}
	if s.live != nil {
		for id, v := range s.live.Snapshot() {
			values = append(values, liveValue{TagID: id, Value: v})
		}
	}
	sort.Slice(values, func(i, j int) bool { return values[i].TagID < values[j].TagID })

	writeJSON(w, http.StatusOK, map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"values":    values,
		"count":     len(values),
	})
}
