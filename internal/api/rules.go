package api

import (
	"net/http"

	"github.com/nerrad567/tagwatch-core/internal/catalog"
)

// Rules are read per sample, so none of these handlers touch sessions.

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.store.ListRules(r.Context())
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	if rules == nil {
		rules = []catalog.Rule{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"rules": rules,
		"count": len(rules),
	})
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	rule, ok := s.decodeRule(w, r)
	if !ok {
		return
	}
	if err := s.store.CreateRule(r.Context(), &rule); err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.logger.Info("rule created", "rule_id", rule.ID, "tag_id", rule.TagID, "logic_type", rule.LogicType())
	writeJSON(w, http.StatusCreated, rule)
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeBadRequest(w, "invalid rule id")
		return
	}

	rule, err := s.store.GetRule(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// handleUpdateRule replaces a rule definition.
func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeBadRequest(w, "invalid rule id")
		return
	}

	rule, ok := s.decodeRule(w, r)
	if !ok {
		return
	}
	rule.ID = id
	if err := s.store.UpdateRule(r.Context(), &rule); err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.logger.Info("rule updated", "rule_id", id)
	writeJSON(w, http.StatusOK, rule)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeBadRequest(w, "invalid rule id")
		return
	}

	if err := s.store.DeleteRule(r.Context(), id); err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.logger.Info("rule deleted", "rule_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// decodeRule reads a RuleInput body and builds the rule, writing the 400
// itself on failure.
func (s *Server) decodeRule(w http.ResponseWriter, r *http.Request) (catalog.Rule, bool) {
	var in catalog.RuleInput
	if err := decodeJSON(r, &in); err != nil {
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return catalog.Rule{}, false
	}
	rule, err := in.Rule()
	if err != nil {
		s.writeStoreError(w, r, err)
		return catalog.Rule{}, false
	}
	return rule, true
}
