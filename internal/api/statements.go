package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/opensource-finance/credbud/internal/assessment"
	"github.com/opensource-finance/credbud/internal/behavior"
	"github.com/opensource-finance/credbud/internal/cache"
	"github.com/opensource-finance/credbud/internal/domain"
	"github.com/opensource-finance/credbud/internal/ingest"
	"github.com/opensource-finance/credbud/internal/metrics"
)

// multipartOverhead covers form boundaries and headers around the file.
const multipartOverhead = 64 << 10

type uploadResponse struct {
	Statement *domain.Statement         `json:"statement"`
	Behavior  *domain.FinancialBehavior `json:"behavior,omitempty"`
	Skipped   int                       `json:"skippedRows"`
}

// UploadStatement handles POST /api/statements with a multipart "file" field.
func (h *Handler) UploadStatement(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}
	ctx := r.Context()
	userID := GetUserID(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes+multipartOverhead)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, ingest.ErrTooLarge)
			return
		}
		writeError(w, r, &ValidationError{Details: []string{"multipart field \"file\" is required"}})
		return
	}
	defer file.Close()

	res, err := h.parser.Parse(ctx, header.Filename, file)
	if err != nil {
		format, _ := ingest.DetectFormat(header.Filename)
		metrics.StatementsAnalyzed.WithLabelValues(string(format), metrics.OutcomeFailed).Inc()
		writeError(w, r, err)
		return
	}

	stmt := &domain.Statement{
		ID:       uuid.New().String(),
		FileName: header.Filename,
		Format:   string(res.Format),
		Status:   domain.StatementPending,
		Rows:     res.Rows,
	}
	if err := h.repo.SaveStatement(ctx, userID, stmt); err != nil {
		writeError(w, r, err)
		return
	}

	if h.cache != nil {
		if err := h.cache.Delete(ctx, userID, cache.BehaviorKey); err != nil {
			slog.Warn("failed to invalidate behaviour cache", "user_id", userID, "error", err)
		}
	}

	if h.opts.Async && h.pipeline != nil {
		if err := h.pipeline.PublishUploaded(ctx, userID, stmt); err != nil {
			writeError(w, r, fmt.Errorf("failed to queue statement: %w", err))
			return
		}
		writeJSON(w, http.StatusAccepted, uploadResponse{Statement: summary(stmt), Skipped: res.Skipped})
		return
	}

	var fb *domain.FinancialBehavior
	if h.pipeline != nil {
		fb, err = h.pipeline.AnalyzeStatement(ctx, userID, stmt)
		if err != nil {
			writeError(w, r, err)
			return
		}
	} else {
		report := h.processor.AnalyzeStatement(stmt.Rows)
		now := time.Now().UTC()
		stmt.Analysis = &report
		stmt.AnalyzedAt = &now
		stmt.Status = domain.StatementAnalyzed

		fb = assessment.ToBehavior(userID, stmt.ID, report)
		if err := h.repo.UpsertBehavior(ctx, userID, fb); err != nil {
			writeError(w, r, err)
			return
		}
		if err := h.repo.SaveStatement(ctx, userID, stmt); err != nil {
			writeError(w, r, err)
			return
		}
	}

	writeJSON(w, http.StatusCreated, uploadResponse{Statement: summary(stmt), Behavior: fb, Skipped: res.Skipped})
}

// summary returns a copy without rows and with the total score rounded
// for display.
func summary(stmt *domain.Statement) *domain.Statement {
	out := *stmt
	out.Rows = nil
	if stmt.Analysis != nil {
		report := *stmt.Analysis
		report.TotalScore = behavior.RoundScore(report.TotalScore)
		out.Analysis = &report
	}
	return &out
}

// ListStatements handles GET /api/statements.
func (h *Handler) ListStatements(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}

	stmts, err := h.repo.ListStatements(r.Context(), GetUserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]*domain.Statement, len(stmts))
	for i, s := range stmts {
		out[i] = summary(s)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"statements": out,
		"count":      len(out),
	})
}

// GetStatement handles GET /api/statements/{id}, including parsed rows.
func (h *Handler) GetStatement(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}

	stmt, err := h.repo.GetStatement(r.Context(), GetUserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := summary(stmt)
	out.Rows = stmt.Rows
	writeJSON(w, http.StatusOK, out)
}

// GetBehavior handles GET /api/behavior. The summary is served from cache
// and filled from the repository on a miss.
func (h *Handler) GetBehavior(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}
	ctx := r.Context()
	userID := GetUserID(ctx)

	if h.cache != nil {
		fb, err := h.cache.GetBehavior(ctx, userID)
		if err != nil {
			slog.Warn("behaviour cache read failed", "user_id", userID, "error", err)
		} else if fb != nil {
			w.Header().Set("X-Cache", "hit")
			writeJSON(w, http.StatusOK, fb)
			return
		}
	}

	fb, err := h.repo.GetBehavior(ctx, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if h.cache != nil {
		if err := h.cache.SetBehavior(ctx, userID, fb, h.opts.BehaviorTTL); err != nil {
			slog.Warn("failed to cache behaviour", "user_id", userID, "error", err)
		}
	}

	w.Header().Set("X-Cache", "miss")
	writeJSON(w, http.StatusOK, fb)
}
