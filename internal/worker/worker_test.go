package worker

import (
	"context"
	"encoding/json"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/credbud/internal/assessment"
	"github.com/opensource-finance/credbud/internal/behavior"
	"github.com/opensource-finance/credbud/internal/bus"
	"github.com/opensource-finance/credbud/internal/cache"
	"github.com/opensource-finance/credbud/internal/domain"
	"github.com/opensource-finance/credbud/internal/repository"
	"github.com/opensource-finance/credbud/internal/rules"
)

func newRepo(t *testing.T) *repository.SQLRepository {
	t.Helper()
	tmpFile, err := os.CreateTemp("", "worker-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := repository.New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: tmpPath})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func newProcessor(t *testing.T) *assessment.Processor {
	t.Helper()
	engine, err := rules.NewEngine(nil, 2)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	if err := engine.LoadRules(rules.DefaultPolicies()); err != nil {
		t.Fatalf("failed to load rules: %v", err)
	}
	return assessment.NewProcessor(nil, engine)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timeout waiting for condition")
}

func date(s string) *time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return &t
}

func TestStartAndStop(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	w := NewWorker(eventBus, nil, nil, newProcessor(t), 0)
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	stats := w.GetStats()
	if stats.SubscriptionCount != 2 {
		t.Errorf("expected 2 subscriptions, got %d", stats.SubscriptionCount)
	}

	if err := w.Stop(); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
	if stats := w.GetStats(); stats.SubscriptionCount != 0 {
		t.Errorf("expected 0 subscriptions after stop, got %d", stats.SubscriptionCount)
	}
}

func TestStatementUploaded(t *testing.T) {
	ctx := context.Background()
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()
	repo := newRepo(t)
	lru := cache.NewLRUCache(100)
	defer lru.Close()

	w := NewWorker(eventBus, repo, lru, newProcessor(t), time.Minute)
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	var analyzed atomic.Pointer[domain.StatementEvent]
	_, err := eventBus.Subscribe(ctx, domain.TopicBehaviorAnalyzed, func(ctx context.Context, msg *domain.Message) error {
		var ev domain.StatementEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			return err
		}
		analyzed.Store(&ev)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	stmt := &domain.Statement{
		ID:       "stmt-001",
		FileName: "jan.csv",
		Format:   "csv",
		Status:   domain.StatementPending,
		Rows: []behavior.TransactionRow{
			{Date: date("2024-01-01"), Amount: 5000, Type: behavior.TxCredit, Description: "Salary"},
			{Date: date("2024-01-02"), Amount: -50, Type: behavior.TxDebit, Description: "Grocery Store"},
			{Date: date("2024-01-03"), Amount: -25, Type: behavior.TxDebit, Description: "Restaurant"},
		},
	}
	if err := repo.SaveStatement(ctx, "user-001", stmt); err != nil {
		t.Fatalf("SaveStatement failed: %v", err)
	}

	payload, _ := json.Marshal(domain.StatementEvent{StatementID: stmt.ID})
	if err := eventBus.Publish(ctx, "user-001", domain.TopicStatementUploaded, payload); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	waitFor(t, func() bool { return analyzed.Load() != nil })

	ev := analyzed.Load()
	if ev.StatementID != "stmt-001" || ev.Rating != string(behavior.RatingGood) || ev.TotalScore != 10 {
		t.Errorf("unexpected event: %+v", ev)
	}

	stored, err := repo.GetStatement(ctx, "user-001", "stmt-001")
	if err != nil {
		t.Fatalf("GetStatement failed: %v", err)
	}
	if stored.Status != domain.StatementAnalyzed {
		t.Errorf("expected analyzed, got %s", stored.Status)
	}
	if stored.Analysis == nil || stored.Analysis.TotalIncome != 5000 {
		t.Errorf("expected stored analysis, got %+v", stored.Analysis)
	}

	fb, err := repo.GetBehavior(ctx, "user-001")
	if err != nil {
		t.Fatalf("GetBehavior failed: %v", err)
	}
	if fb.StatementID != "stmt-001" || !fb.StableInflow {
		t.Errorf("unexpected behaviour: %+v", fb)
	}

	cached, err := lru.GetBehavior(ctx, "user-001")
	if err != nil || cached == nil {
		t.Fatalf("expected cached behaviour, got %v, %v", cached, err)
	}
	if cached.Rating != behavior.RatingGood {
		t.Errorf("expected cached rating Good, got %s", cached.Rating)
	}
}

func TestLoanSubmitted(t *testing.T) {
	ctx := context.Background()
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()
	repo := newRepo(t)

	w := NewWorker(eventBus, repo, nil, newProcessor(t), 0)
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	var decided atomic.Pointer[domain.LoanEvent]
	eventBus.Subscribe(ctx, domain.TopicLoanDecided, func(ctx context.Context, msg *domain.Message) error {
		var ev domain.LoanEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			return err
		}
		decided.Store(&ev)
		return nil
	})

	app := &domain.LoanApplication{
		ID:              "loan-001",
		AmountRequested: 10000,
		TotalAssets:     5000000,
		MonthlyIncome:   2000000.0 / 12,
		Status:          domain.LoanPending,
	}
	if err := repo.SaveLoan(ctx, "user-001", app); err != nil {
		t.Fatalf("SaveLoan failed: %v", err)
	}

	payload, _ := json.Marshal(domain.LoanEvent{LoanID: app.ID})
	if err := eventBus.Publish(ctx, "user-001", domain.TopicLoanSubmitted, payload); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	waitFor(t, func() bool { return decided.Load() != nil })

	if ev := decided.Load(); ev.LoanID != "loan-001" || ev.Status != domain.LoanApproved {
		t.Errorf("unexpected event: %+v", ev)
	}

	// The update lands after the publish; poll for it.
	waitFor(t, func() bool {
		stored, err := repo.GetLoan(ctx, "user-001", "loan-001")
		return err == nil && stored.Status == domain.LoanApproved
	})

	stored, _ := repo.GetLoan(ctx, "user-001", "loan-001")
	if stored.Feedback.Note != assessment.Note {
		t.Errorf("expected feedback note, got %q", stored.Feedback.Note)
	}
	if len(stored.Feedback.Findings) != len(rules.DefaultPolicies()) {
		t.Errorf("expected %d findings, got %d", len(rules.DefaultPolicies()), len(stored.Feedback.Findings))
	}
	if stored.AcceptanceRate <= 70 {
		t.Errorf("expected acceptance rate above 70, got %.2f", stored.AcceptanceRate)
	}
}

func TestLoanSubmittedUnknownLoan(t *testing.T) {
	eventBus := bus.NewChannelBus(10)
	defer eventBus.Close()

	w := NewWorker(eventBus, newRepo(t), nil, newProcessor(t), 0)
	payload, _ := json.Marshal(domain.LoanEvent{LoanID: "missing"})
	err := w.handleLoanSubmitted(context.Background(), &domain.Message{UserID: "user-001", Payload: payload})
	if err == nil {
		t.Error("expected error for unknown loan")
	}

	err = w.handleStatementUploaded(context.Background(), &domain.Message{UserID: "user-001", Payload: []byte("{")})
	if err == nil {
		t.Error("expected error for malformed payload")
	}
}
