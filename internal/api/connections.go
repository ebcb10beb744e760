package api

import (
	"net/http"

	"github.com/nerrad567/tagwatch-core/internal/catalog"
)

// connectionResponse is a stored connection with its live session state.
// Status comes from the manager rather than the stored mirror so a read
// never lags behind the session.
type connectionResponse struct {
	catalog.Connection
	Active       bool   `json:"active"`
	SessionError string `json:"session_error,omitempty"`
}

// createConnectionRequest is the body of POST /connections.
type createConnectionRequest struct {
	Name        string `json:"name"`
	EndpointURL string `json:"endpoint_url"`
	Description string `json:"description"`
	Enabled     *bool  `json:"enabled"`
}

func (s *Server) connectionView(c catalog.Connection, sessionErr error) connectionResponse {
	c.Status = s.manager.Status(c.ID)
	resp := connectionResponse{Connection: c, Active: s.manager.IsActive(c.ID)}
	if sessionErr != nil {
		resp.SessionError = sessionErr.Error()
	}
	return resp
}

// handleListConnections returns every configured connection.
func (s *Server) handleListConnections(w http.ResponseWriter, r *http.Request) {
	conns, err := s.store.ListConnections(r.Context())
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	out := make([]connectionResponse, 0, len(conns))
	for _, c := range conns {
		out = append(out, s.connectionView(c, nil))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"connections": out,
		"count":       len(out),
	})
}

// handleCreateConnection stores a connection and, when enabled, opens its
// session. A session failure is reported alongside the created record.
func (s *Server) handleCreateConnection(w http.ResponseWriter, r *http.Request) {
	var req createConnectionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	conn := catalog.Connection{
		Name:        req.Name,
		EndpointURL: req.EndpointURL,
		Description: req.Description,
		Enabled:     req.Enabled == nil || *req.Enabled,
	}
	if err := s.store.CreateConnection(r.Context(), &conn); err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.logger.Info("connection created", "connection_id", conn.ID, "name", conn.Name)

	var sessionErr error
	if conn.Enabled {
		sessionErr = s.manager.AddNewConnection(r.Context(), conn.ID)
		if sessionErr != nil {
			s.logger.Warn("session not opened", "connection_id", conn.ID, "error", sessionErr)
		}
	}
	writeJSON(w, http.StatusCreated, s.connectionView(conn, sessionErr))
}

// handleGetConnection returns one connection.
func (s *Server) handleGetConnection(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeBadRequest(w, "invalid connection id")
		return
	}

	conn, err := s.store.GetConnection(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.connectionView(conn, nil))
}

// handleUpdateConnection applies a partial update and reconciles the
// session with the result.
func (s *Server) handleUpdateConnection(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeBadRequest(w, "invalid connection id")
		return
	}

	var changes catalog.ConnectionChanges
	if err := decodeJSON(r, &changes); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	conn, err := s.store.GetConnection(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	conn = changes.Apply(conn)
	if err := s.store.UpdateConnection(r.Context(), &conn); err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.logger.Info("connection updated", "connection_id", id, "enabled", conn.Enabled)

	sessionErr := s.manager.UpdateConnection(r.Context(), id, changes)
	if sessionErr != nil {
		s.logger.Warn("session not reopened", "connection_id", id, "error", sessionErr)
	}
	writeJSON(w, http.StatusOK, s.connectionView(conn, sessionErr))
}

// handleDeleteConnection stops the session before removing the record, so
// no sample is processed for a connection that no longer exists.
func (s *Server) handleDeleteConnection(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeBadRequest(w, "invalid connection id")
		return
	}

	if _, err := s.store.GetConnection(r.Context(), id); err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	s.manager.StopConnection(r.Context(), id)
	if err := s.store.DeleteConnection(r.Context(), id); err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.logger.Info("connection deleted", "connection_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// handleRestartConnection tears the session down and opens a new one with
// the stored definition and tag list.
func (s *Server) handleRestartConnection(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeBadRequest(w, "invalid connection id")
		return
	}

	conn, err := s.store.GetConnection(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	if !conn.Enabled {
		writeError(w, http.StatusConflict, ErrCodeConflict, "connection is disabled")
		return
	}

	sessionErr := s.manager.CreateConnection(r.Context(), conn)
	if sessionErr != nil {
		s.logger.Warn("session restart failed", "connection_id", id, "error", sessionErr)
	}
	writeJSON(w, http.StatusOK, s.connectionView(conn, sessionErr))
}
