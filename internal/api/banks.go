package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/credbud/internal/banks"
)

// ListBanks handles GET /api/banks.
func (h *Handler) ListBanks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.catalog.All())
}

// TopBanks handles GET /api/banks/top, the n lowest interest rates.
func (h *Handler) TopBanks(w http.ResponseWriter, r *http.Request) {
	n := 2
	if s := r.URL.Query().Get("n"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 {
			writeError(w, r, &ValidationError{Details: []string{"n must be a positive integer"}})
			return
		}
		n = v
	}
	writeJSON(w, http.StatusOK, h.catalog.Top(n))
}

// TrustedBanks handles GET /api/banks/trusted.
func (h *Handler) TrustedBanks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.catalog.Trusted(banks.TrustedAbove))
}

// GetBank handles GET /api/banks/{id}.
func (h *Handler) GetBank(w http.ResponseWriter, r *http.Request) {
	b, ok := h.catalog.Get(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
		return
	}
	writeJSON(w, http.StatusOK, b)
}
