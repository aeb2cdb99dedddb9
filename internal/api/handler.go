package api

import (
	"net/http"
	"time"

	"github.com/opensource-finance/credbud/internal/assessment"
	"github.com/opensource-finance/credbud/internal/banks"
	"github.com/opensource-finance/credbud/internal/domain"
	"github.com/opensource-finance/credbud/internal/ingest"
	"github.com/opensource-finance/credbud/internal/rules"
	"github.com/opensource-finance/credbud/internal/velocity"
	"github.com/opensource-finance/credbud/internal/worker"
)

// Dependencies are the components the handlers call into.
// Cache, Bus, Velocity and Catalog may be nil.
type Dependencies struct {
	Repo      domain.Repository
	Cache     domain.Cache
	Bus       domain.EventBus
	Engine    *rules.Engine
	Processor *assessment.Processor
	Pipeline  *worker.Worker
	Velocity  *velocity.Service
	Catalog   *banks.Catalog
}

// Options tune handler behaviour.
type Options struct {
	Version string

	// Async stores uploads and applications and leaves the work to the worker.
	Async bool

	MaxUploadBytes int64
	BehaviorTTL    time.Duration
}

// Handler holds dependencies for API handlers.
type Handler struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	engine    *rules.Engine
	processor *assessment.Processor
	pipeline  *worker.Worker
	velocity  *velocity.Service
	catalog   *banks.Catalog
	parser    *ingest.Parser
	opts      Options
}

// NewHandler creates a new API handler.
func NewHandler(deps Dependencies, opts Options) *Handler {
	if deps.Processor == nil {
		deps.Processor = assessment.NewProcessor(nil, deps.Engine)
	}
	if deps.Catalog == nil {
		deps.Catalog = banks.Default()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = domain.DefaultConfig().Upload.MaxBytes
	}
	if opts.BehaviorTTL <= 0 {
		opts.BehaviorTTL = time.Hour
	}
	if deps.Pipeline == nil && deps.Bus != nil {
		deps.Pipeline = worker.NewWorker(deps.Bus, deps.Repo, deps.Cache, deps.Processor, opts.BehaviorTTL)
	}

	return &Handler{
		repo:      deps.Repo,
		cache:     deps.Cache,
		bus:       deps.Bus,
		engine:    deps.Engine,
		processor: deps.Processor,
		pipeline:  deps.Pipeline,
		velocity:  deps.Velocity,
		catalog:   deps.Catalog,
		parser:    ingest.NewParser(opts.MaxUploadBytes),
		opts:      opts,
	}
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.opts.Version,
	})
}

// Ready reports whether the storage and pipeline are wired.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil || h.pipeline == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"ready": "false",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// requireRepo writes 503 when no repository is configured.
func (h *Handler) requireRepo(w http.ResponseWriter) bool {
	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "repository not available"})
		return false
	}
	return true
}
