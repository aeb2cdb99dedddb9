package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/credbud/internal/domain"
)

// ListPolicies handles GET /api/policies.
func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}

	rules, err := h.repo.ListPolicyRules(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if rules == nil {
		rules = []*domain.PolicyRule{}
	}

	loaded := 0
	if h.engine != nil {
		loaded = h.engine.RulesCount()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"policies": rules,
		"count":    len(rules),
		"loaded":   loaded,
	})
}

// CreatePolicy handles POST /api/policies. An existing rule with the same
// ID is replaced.
func (h *Handler) CreatePolicy(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}
	if h.engine == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "policy engine not available"})
		return
	}

	var rule domain.PolicyRule
	if err := decodeValid(r, policySchema, &rule); err != nil {
		writeError(w, r, err)
		return
	}
	if rule.Name == "" {
		rule.Name = rule.ID
	}

	if err := h.engine.ValidateRule(&rule); err != nil {
		writeError(w, r, &ValidationError{Details: []string{err.Error()}})
		return
	}
	if err := h.repo.SavePolicyRule(r.Context(), &rule); err != nil {
		writeError(w, r, err)
		return
	}

	if rule.Enabled {
		if err := h.engine.LoadRule(&rule); err != nil {
			writeError(w, r, err)
			return
		}
	} else {
		h.engine.UnloadRule(rule.ID)
	}

	slog.Info("policy rule saved", "rule_id", rule.ID, "enabled", rule.Enabled, "user_id", GetUserID(r.Context()))
	writeJSON(w, http.StatusCreated, rule)
}

// DeletePolicy handles DELETE /api/policies/{id}.
func (h *Handler) DeletePolicy(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.repo.DeletePolicyRule(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	if h.engine != nil {
		h.engine.UnloadRule(id)
	}

	w.WriteHeader(http.StatusNoContent)
}

// ReloadPolicies handles POST /api/policies/reload and swaps the engine's
// rule set for the stored one.
func (h *Handler) ReloadPolicies(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}
	if h.engine == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "policy engine not available"})
		return
	}

	rules, err := h.repo.ListPolicyRules(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.engine.ReloadRules(rules); err != nil {
		writeError(w, r, &ValidationError{Details: []string{err.Error()}})
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"count": h.engine.RulesCount()})
}
