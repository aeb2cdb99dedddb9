package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/opensource-finance/credbud/internal/assessment"
	"github.com/opensource-finance/credbud/internal/domain"
)

// queuedNote marks applications waiting for the worker.
const queuedNote = "Queued for automated scoring"

// ApplyForLoan handles POST /api/loans.
func (h *Handler) ApplyForLoan(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}
	ctx := r.Context()
	userID := GetUserID(ctx)

	var req domain.LoanRequest
	if err := decodeValid(r, loanSchema, &req); err != nil {
		writeError(w, r, err)
		return
	}

	if h.velocity != nil {
		if _, err := h.velocity.Track(ctx, userID); err != nil {
			writeError(w, r, err)
			return
		}
	}

	app := &domain.LoanApplication{
		ID:     uuid.New().String(),
		Status: domain.LoanPending,
	}
	req.Apply(app)

	if h.opts.Async && h.pipeline != nil {
		app.Feedback = domain.Feedback{Note: queuedNote}
		if err := h.repo.SaveLoan(ctx, userID, app); err != nil {
			writeError(w, r, err)
			return
		}
		if err := h.pipeline.PublishSubmitted(ctx, userID, app); err != nil {
			slog.Error("failed to queue loan", "loan_id", app.ID, "error", err)
			writeError(w, r, fmt.Errorf("failed to queue loan: %w", err))
			return
		}
		writeJSON(w, http.StatusAccepted, app)
		return
	}

	if err := h.score(r, userID, app); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.repo.SaveLoan(ctx, userID, app); err != nil {
		writeError(w, r, err)
		return
	}
	if h.pipeline != nil {
		h.pipeline.PublishDecision(ctx, userID, app)
	}

	writeJSON(w, http.StatusCreated, app)
}

// score assesses app in place.
func (h *Handler) score(r *http.Request, userID string, app *domain.LoanApplication) error {
	if h.pipeline != nil {
		_, err := h.pipeline.ScoreLoan(r.Context(), userID, app)
		return err
	}
	a, err := h.processor.AssessLoan(r.Context(), userID, app.Request())
	if err != nil {
		return err
	}
	a.Apply(app)
	return nil
}

// ListLoans handles GET /api/loans.
func (h *Handler) ListLoans(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}

	var filter domain.LoanFilter
	if s := r.URL.Query().Get("status"); s != "" {
		filter.Status = domain.LoanStatus(s)
		if !filter.Status.Valid() {
			writeError(w, r, &ValidationError{Details: []string{"unknown status " + strconv.Quote(s)}})
			return
		}
	}
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, r, &ValidationError{Details: []string{"limit must be a non-negative integer"}})
			return
		}
		filter.Limit = n
	}

	loans, err := h.repo.ListLoans(r.Context(), GetUserID(r.Context()), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if loans == nil {
		loans = []*domain.LoanApplication{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"loans": loans,
		"count": len(loans),
	})
}

// LoanStats handles GET /api/loans/stats.
func (h *Handler) LoanStats(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}

	stats, err := h.repo.LoanStatistics(r.Context(), GetUserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// GetLoan handles GET /api/loans/{id}.
func (h *Handler) GetLoan(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}

	app, err := h.repo.GetLoan(r.Context(), GetUserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

// UpdateLoan handles PUT /api/loans/{id}. The application is scored again
// when any field the scorer or policies read has changed.
func (h *Handler) UpdateLoan(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}
	ctx := r.Context()
	userID := GetUserID(ctx)

	app, err := h.repo.GetLoan(ctx, userID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req domain.LoanRequest
	if err := decodeValid(r, loanSchema, &req); err != nil {
		writeError(w, r, err)
		return
	}

	rescore := scoredFieldsChanged(app.Request(), req)
	req.Apply(app)
	if rescore {
		if err := h.score(r, userID, app); err != nil {
			writeError(w, r, err)
			return
		}
	}

	if err := h.repo.UpdateLoan(ctx, userID, app); err != nil {
		writeError(w, r, err)
		return
	}
	if rescore && h.pipeline != nil {
		h.pipeline.PublishDecision(ctx, userID, app)
	}

	writeJSON(w, http.StatusOK, app)
}

func scoredFieldsChanged(old, next domain.LoanRequest) bool {
	old.Purpose, next.Purpose = "", ""
	return old != next
}

// DeleteLoan handles DELETE /api/loans/{id}.
func (h *Handler) DeleteLoan(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}

	if err := h.repo.DeleteLoan(r.Context(), GetUserID(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type scoreResponse struct {
	*assessment.Assessment
	Reasons  []string  `json:"reasons,omitempty"`
	ScoredAt time.Time `json:"scoredAt"`
	TraceID  string    `json:"traceId,omitempty"`
}

// ScorePreview handles POST /api/score. Nothing is stored.
func (h *Handler) ScorePreview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req domain.LoanRequest
	if err := decodeValid(r, loanSchema, &req); err != nil {
		writeError(w, r, err)
		return
	}

	a, err := h.processor.AssessLoan(ctx, GetUserID(ctx), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, scoreResponse{
		Assessment: a,
		Reasons:    assessment.Reasons(a.Findings),
		ScoredAt:   time.Now().UTC(),
		TraceID:    GetTraceID(ctx),
	})
}
