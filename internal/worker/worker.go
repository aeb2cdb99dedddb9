// Package worker runs statement analysis and loan scoring off the request
// path. The same pipeline backs the synchronous handlers.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/credbud/internal/assessment"
	"github.com/opensource-finance/credbud/internal/domain"
	"github.com/opensource-finance/credbud/internal/metrics"
)

// Worker consumes pipeline topics from the EventBus.
type Worker struct {
	bus         domain.EventBus
	repo        domain.Repository
	cache       domain.Cache
	processor   *assessment.Processor
	behaviorTTL time.Duration

	mu            sync.Mutex
	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewWorker creates a worker. cache may be nil.
func NewWorker(bus domain.EventBus, repo domain.Repository, cache domain.Cache, processor *assessment.Processor, behaviorTTL time.Duration) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	if behaviorTTL <= 0 {
		behaviorTTL = time.Hour
	}
	return &Worker{
		bus:         bus,
		repo:        repo,
		cache:       cache,
		processor:   processor,
		behaviorTTL: behaviorTTL,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start subscribes to statement uploads and loan submissions.
func (w *Worker) Start() error {
	handlers := map[string]domain.MessageHandler{
		domain.TopicStatementUploaded: w.handleStatementUploaded,
		domain.TopicLoanSubmitted:     w.handleLoanSubmitted,
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for topic, handler := range handlers {
		sub, err := w.bus.Subscribe(w.ctx, topic, instrument(topic, handler))
		if err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
		}
		w.subscriptions = append(w.subscriptions, sub)
	}

	slog.Info("worker started", "topics", len(w.subscriptions))
	return nil
}

func instrument(topic string, next domain.MessageHandler) domain.MessageHandler {
	return func(ctx context.Context, msg *domain.Message) error {
		err := next(ctx, msg)
		result := metrics.OutcomeOK
		if err != nil {
			result = metrics.OutcomeFailed
		}
		metrics.WorkerJobs.WithLabelValues(topic, result).Inc()
		return err
	}
}

func (w *Worker) handleStatementUploaded(ctx context.Context, msg *domain.Message) error {
	var event domain.StatementEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		slog.Error("failed to parse statement event", "message_id", msg.ID, "error", err)
		return err
	}

	stmt, err := w.repo.GetStatement(ctx, msg.UserID, event.StatementID)
	if err != nil {
		return fmt.Errorf("failed to load statement %s: %w", event.StatementID, err)
	}

	_, err = w.AnalyzeStatement(ctx, msg.UserID, stmt)
	return err
}

// AnalyzeStatement analyzes stored rows, saves the report on the statement,
// replaces the user's behaviour summary and publishes behavior.analyzed.
func (w *Worker) AnalyzeStatement(ctx context.Context, userID string, stmt *domain.Statement) (*domain.FinancialBehavior, error) {
	start := time.Now()

	report := w.processor.AnalyzeStatement(stmt.Rows)
	now := time.Now().UTC()
	stmt.Analysis = &report
	stmt.AnalyzedAt = &now
	stmt.Status = domain.StatementAnalyzed
	stmt.Error = ""

	fb := assessment.ToBehavior(userID, stmt.ID, report)
	if err := w.repo.UpsertBehavior(ctx, userID, fb); err != nil {
		stmt.Status = domain.StatementFailed
		stmt.Error = "failed to store behaviour summary"
		if serr := w.repo.SaveStatement(ctx, userID, stmt); serr != nil {
			slog.Error("failed to mark statement failed", "statement_id", stmt.ID, "error", serr)
		}
		metrics.StatementsAnalyzed.WithLabelValues(stmt.Format, metrics.OutcomeFailed).Inc()
		return nil, fmt.Errorf("failed to upsert behaviour: %w", err)
	}

	if err := w.repo.SaveStatement(ctx, userID, stmt); err != nil {
		metrics.StatementsAnalyzed.WithLabelValues(stmt.Format, metrics.OutcomeFailed).Inc()
		return nil, fmt.Errorf("failed to save statement: %w", err)
	}

	if w.cache != nil {
		if err := w.cache.SetBehavior(ctx, userID, fb, w.behaviorTTL); err != nil {
			slog.Warn("failed to cache behaviour", "user_id", userID, "error", err)
		}
	}

	metrics.StatementsAnalyzed.WithLabelValues(stmt.Format, metrics.OutcomeOK).Inc()
	metrics.BehaviorRatings.WithLabelValues(string(report.Rating)).Inc()

	w.publish(ctx, userID, domain.TopicBehaviorAnalyzed, domain.StatementEvent{
		StatementID: stmt.ID,
		Rating:      string(fb.Rating),
		TotalScore:  fb.TotalScore,
	})

	slog.Info("statement analyzed",
		"statement_id", stmt.ID,
		"user_id", userID,
		"rows", len(stmt.Rows),
		"rating", report.Rating,
		"total_score", fb.TotalScore,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return fb, nil
}

func (w *Worker) handleLoanSubmitted(ctx context.Context, msg *domain.Message) error {
	var event domain.LoanEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		slog.Error("failed to parse loan event", "message_id", msg.ID, "error", err)
		return err
	}

	app, err := w.repo.GetLoan(ctx, msg.UserID, event.LoanID)
	if err != nil {
		return fmt.Errorf("failed to load loan %s: %w", event.LoanID, err)
	}

	if _, err := w.ScoreLoan(ctx, msg.UserID, app); err != nil {
		return err
	}
	if err := w.repo.UpdateLoan(ctx, msg.UserID, app); err != nil {
		return fmt.Errorf("failed to update loan %s: %w", app.ID, err)
	}
	w.PublishDecision(ctx, msg.UserID, app)
	return nil
}

// ScoreLoan assesses app in place. Persisting the application is left
// to the caller.
func (w *Worker) ScoreLoan(ctx context.Context, userID string, app *domain.LoanApplication) (*assessment.Assessment, error) {
	a, err := w.processor.AssessLoan(ctx, userID, app.Request())
	if err != nil {
		slog.Error("loan assessment failed", "loan_id", app.ID, "error", err)
		return nil, err
	}
	a.Apply(app)
	Record(a)

	slog.Info("loan scored",
		"loan_id", app.ID,
		"user_id", userID,
		"status", app.Status,
		"score", app.MLScore,
		"findings", len(a.Findings),
		"duration_ms", a.DecisionMs,
	)
	return a, nil
}

// PublishDecision announces a stored decision on loan.decided.
func (w *Worker) PublishDecision(ctx context.Context, userID string, app *domain.LoanApplication) {
	w.publish(ctx, userID, domain.TopicLoanDecided, domain.LoanEvent{
		LoanID: app.ID,
		Status: app.Status,
		Score:  app.MLScore,
	})
}

// PublishSubmitted hands a stored application to the worker.
func (w *Worker) PublishSubmitted(ctx context.Context, userID string, app *domain.LoanApplication) error {
	return w.publishErr(ctx, userID, domain.TopicLoanSubmitted, domain.LoanEvent{LoanID: app.ID})
}

// PublishUploaded hands a stored statement to the worker.
func (w *Worker) PublishUploaded(ctx context.Context, userID string, stmt *domain.Statement) error {
	return w.publishErr(ctx, userID, domain.TopicStatementUploaded, domain.StatementEvent{StatementID: stmt.ID})
}

// Record updates the scoring metrics for an assessment.
func Record(a *assessment.Assessment) {
	metrics.LoansScored.WithLabelValues(string(a.Status)).Inc()
	metrics.LoanScore.Observe(a.Score.Probability)
	for _, f := range a.Findings {
		metrics.PolicyFindings.WithLabelValues(f.RuleID, f.Outcome).Inc()
	}
}

func (w *Worker) publish(ctx context.Context, userID, topic string, event any) {
	if err := w.publishErr(ctx, userID, topic, event); err != nil {
		slog.Error("failed to publish event", "topic", topic, "user_id", userID, "error", err)
	}
}

func (w *Worker) publishErr(ctx context.Context, userID, topic string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", topic, err)
	}
	return w.bus.Publish(ctx, userID, topic, payload)
}

// Stop gracefully stops all subscriptions.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	slog.Info("worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
