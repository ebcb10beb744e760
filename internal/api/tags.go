package api

import (
	"context"
	"net/http"

	"github.com/nerrad567/tagwatch-core/internal/catalog"
)

// createTagRequest is the body of POST /connections/{id}/tags.
type createTagRequest struct {
	Name   string `json:"tag_name"`
	NodeID string `json:"node_id"`
	Unit   string `json:"unit"`
}

// handleListTags returns the tags of one connection.
func (s *Server) handleListTags(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeBadRequest(w, "invalid connection id")
		return
	}

	if _, err := s.store.GetConnection(r.Context(), id); err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	tags, err := s.store.ListTagsForConnection(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	if tags == nil {
		tags = []catalog.Tag{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tags":  tags,
		"count": len(tags),
	})
}

// handleCreateTag adds a tag and restarts the connection's session so the
// new node is monitored.
func (s *Server) handleCreateTag(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeBadRequest(w, "invalid connection id")
		return
	}

	var req createTagRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if _, err := s.store.GetConnection(r.Context(), id); err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	tag := catalog.Tag{
		ConnectionID: id,
		Name:         req.Name,
		NodeID:       req.NodeID,
		Unit:         req.Unit,
	}
	if err := s.store.CreateTag(r.Context(), &tag); err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.logger.Info("tag created", "tag_id", tag.ID, "connection_id", id, "node_id", tag.NodeID)

	s.refreshSession(r.Context(), id)
	writeJSON(w, http.StatusCreated, tag)
}

// handleGetTag returns one tag.
func (s *Server) handleGetTag(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeBadRequest(w, "invalid tag id")
		return
	}

	tag, err := s.store.GetTag(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tag)
}

// handleDeleteTag removes a tag and the rules on it, then restarts the
// owning session.
func (s *Server) handleDeleteTag(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeBadRequest(w, "invalid tag id")
		return
	}

	tag, err := s.store.GetTag(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	if err := s.store.DeleteTag(r.Context(), id); err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.logger.Info("tag deleted", "tag_id", id, "connection_id", tag.ConnectionID)

	s.refreshSession(r.Context(), tag.ConnectionID)
	w.WriteHeader(http.StatusNoContent)
}

// refreshSession reopens the session for connID so it reads the current
// tag list. A connection without a session (no tags before, or a failed
// open) is started if enabled.
func (s *Server) refreshSession(ctx context.Context, connID int64) {
	var err error
	if s.manager.IsActive(connID) {
		var conn catalog.Connection
		conn, err = s.store.GetConnection(ctx, connID)
		if err == nil {
			err = s.manager.CreateConnection(ctx, conn)
		}
	} else {
		err = s.manager.AddNewConnection(ctx, connID)
	}
	if err != nil {
		s.logger.Warn("session refresh failed", "connection_id", connID, "error", err)
	}
}
