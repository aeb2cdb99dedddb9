package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/credbud/internal/assessment"
	"github.com/opensource-finance/credbud/internal/bus"
	"github.com/opensource-finance/credbud/internal/cache"
	"github.com/opensource-finance/credbud/internal/domain"
	"github.com/opensource-finance/credbud/internal/repository"
	"github.com/opensource-finance/credbud/internal/rules"
	"github.com/opensource-finance/credbud/internal/velocity"
	"github.com/opensource-finance/credbud/internal/worker"
)

const statementCSV = "Date,Description,Amount\n" +
	"2024-01-01,Salary,5000\n" +
	"2024-01-02,Grocery Store,-50\n" +
	"2024-01-03,Restaurant,-25\n"

var (
	strongLoan = map[string]any{
		"amountRequested": 10000,
		"numDebts":        0,
		"totalDebtAmount": 0,
		"monthlyEmis":     0,
		"totalAssets":     5000000,
		"monthlyIncome":   2000000.0 / 12,
		"purpose":         "home renovation",
	}
	weakLoan = map[string]any{
		"amountRequested": 1000000,
		"numDebts":        10,
		"totalDebtAmount": 1000000,
		"monthlyEmis":     100000,
		"totalAssets":     0,
		"monthlyIncome":   10000.0 / 12,
	}
)

type testEnv struct {
	server *Server
	repo   *repository.SQLRepository
	worker *worker.Worker
}

// newTestEnv wires a server over a temporary SQLite database,
// an in-memory cache and a channel bus.
func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "api-test-*.db")
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

	lru := cache.NewLRUCache(100)
	t.Cleanup(func() { lru.Close() })

	channelBus := bus.NewChannelBus(100)
	t.Cleanup(func() { channelBus.Close() })

	vel := velocity.NewService(repo, lru, time.Hour, 3)

	engine, err := rules.NewEngine(vel.RecentApplications, 4)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	if err := engine.LoadRules(rules.DefaultPolicies()); err != nil {
		t.Fatalf("failed to load rules: %v", err)
	}

	processor := assessment.NewProcessor(nil, engine)
	pipeline := worker.NewWorker(channelBus, repo, lru, processor, time.Hour)
	if opts.Async {
		if err := pipeline.Start(); err != nil {
			t.Fatalf("failed to start worker: %v", err)
		}
		t.Cleanup(func() { pipeline.Stop() })
	}

	if opts.Version == "" {
		opts.Version = "test-v1"
	}

	cfg := domain.ServerConfig{
		Host:        "localhost",
		Port:        8080,
		CORSOrigins: []string{"http://localhost:5173"},
	}
	server := NewServer(cfg, Dependencies{
		Repo:      repo,
		Cache:     lru,
		Bus:       channelBus,
		Engine:    engine,
		Processor: processor,
		Pipeline:  pipeline,
		Velocity:  vel,
	}, opts)

	return &testEnv{server: server, repo: repo, worker: pipeline}
}

func (e *testEnv) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(UserIDHeader, userID)
	}

	rr := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) upload(t *testing.T, userID, fileName, content string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	part.Write([]byte(content))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/statements", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(UserIDHeader, userID)

	rr := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to parse response %q: %v", rr.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, rr.Code, rr.Body.String())
	}
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t, Options{})

	rr := env.do(t, http.MethodGet, "/health", "", nil)
	expectStatus(t, rr, http.StatusOK)
	health := decode[map[string]string](t, rr)
	if health["status"] != "healthy" {
		t.Errorf("expected healthy, got %s", health["status"])
	}
	if health["version"] != "test-v1" {
		t.Errorf("expected version test-v1, got %s", health["version"])
	}

	rr = env.do(t, http.MethodGet, "/ready", "", nil)
	expectStatus(t, rr, http.StatusOK)

	bare := NewServer(domain.ServerConfig{}, Dependencies{}, Options{})
	rr = httptest.NewRecorder()
	bare.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without a repository, got %d", rr.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.do(t, http.MethodGet, "/health", "", nil)

	rr := env.do(t, http.MethodGet, "/metrics", "", nil)
	expectStatus(t, rr, http.StatusOK)
	if !strings.Contains(rr.Body.String(), "credbud_http_requests_total") {
		t.Error("expected request counter in metrics output")
	}
}

func TestUserRequired(t *testing.T) {
	env := newTestEnv(t, Options{})

	for _, path := range []string{"/api/loans", "/api/statements", "/api/behavior", "/api/policies"} {
		rr := env.do(t, http.MethodGet, path, "", nil)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", path, rr.Code)
		}
	}
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t, Options{})

	req := httptest.NewRequest(http.MethodOptions, "/api/loans", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rr := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Errorf("expected 204 for preflight, got %d", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("expected allowed origin echoed, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	rr = httptest.NewRecorder()
	env.server.Router().ServeHTTP(rr, req)
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("expected no CORS header for unknown origin, got %q", got)
	}
}

func TestUsers(t *testing.T) {
	env := newTestEnv(t, Options{})

	t.Run("RegisterAndFetch", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/api/users", "user-001", map[string]any{
			"email":    "Asha@Example.com",
			"fullName": "Asha Rao",
			"cityTier": 1,
		})
		expectStatus(t, rr, http.StatusCreated)

		rr = env.do(t, http.MethodGet, "/api/users/me", "user-001", nil)
		expectStatus(t, rr, http.StatusOK)
		user := decode[domain.User](t, rr)
		if user.Email != "asha@example.com" {
			t.Errorf("expected normalized email, got %s", user.Email)
		}
		if user.CityTier != 1 {
			t.Errorf("expected city tier 1, got %d", user.CityTier)
		}
	})

	t.Run("EmailTaken", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/api/users", "user-002", map[string]any{"email": "asha@example.com"})
		expectStatus(t, rr, http.StatusConflict)
	})

	t.Run("InvalidEmail", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/api/users", "user-002", map[string]any{"email": "nope"})
		expectStatus(t, rr, http.StatusBadRequest)
	})

	t.Run("UnknownProfile", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/api/users/me", "user-404", nil)
		expectStatus(t, rr, http.StatusNotFound)
	})
}

func TestLoanLifecycle(t *testing.T) {
	env := newTestEnv(t, Options{})

	rr := env.do(t, http.MethodPost, "/api/loans", "user-001", strongLoan)
	expectStatus(t, rr, http.StatusCreated)
	app := decode[domain.LoanApplication](t, rr)

	if app.ID == "" {
		t.Fatal("expected loan ID")
	}
	if app.Status != domain.LoanApproved {
		t.Errorf("expected approved, got %s", app.Status)
	}
	if app.Feedback.Note != assessment.Note {
		t.Errorf("expected note %q, got %q", assessment.Note, app.Feedback.Note)
	}
	if len(app.Feedback.Findings) != len(rules.DefaultPolicies()) {
		t.Errorf("expected %d findings, got %d", len(rules.DefaultPolicies()), len(app.Feedback.Findings))
	}

	t.Run("Get", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/api/loans/"+app.ID, "user-001", nil)
		expectStatus(t, rr, http.StatusOK)
		got := decode[domain.LoanApplication](t, rr)
		if got.AcceptanceRate != app.AcceptanceRate {
			t.Errorf("expected acceptance %.4f, got %.4f", app.AcceptanceRate, got.AcceptanceRate)
		}
	})

	t.Run("OtherUserSeesNotFound", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/api/loans/"+app.ID, "user-002", nil)
		expectStatus(t, rr, http.StatusNotFound)
	})

	t.Run("PurposeOnlyUpdateKeepsScore", func(t *testing.T) {
		body := map[string]any{}
		for k, v := range strongLoan {
			body[k] = v
		}
		body["purpose"] = "education"

		rr := env.do(t, http.MethodPut, "/api/loans/"+app.ID, "user-001", body)
		expectStatus(t, rr, http.StatusOK)
		got := decode[domain.LoanApplication](t, rr)
		if got.Purpose != "education" {
			t.Errorf("expected purpose education, got %s", got.Purpose)
		}
		if got.Status != domain.LoanApproved {
			t.Errorf("expected approved, got %s", got.Status)
		}
	})

	t.Run("UpdateRescores", func(t *testing.T) {
		rr := env.do(t, http.MethodPut, "/api/loans/"+app.ID, "user-001", weakLoan)
		expectStatus(t, rr, http.StatusOK)
		got := decode[domain.LoanApplication](t, rr)
		if got.Status != domain.LoanRejected {
			t.Errorf("expected rejected after rescoring, got %s", got.Status)
		}
	})

	t.Run("ListAndStats", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/api/loans", "user-001", strongLoan)
		expectStatus(t, rr, http.StatusCreated)

		rr = env.do(t, http.MethodGet, "/api/loans", "user-001", nil)
		expectStatus(t, rr, http.StatusOK)
		list := decode[struct {
			Loans []domain.LoanApplication `json:"loans"`
			Count int                      `json:"count"`
		}](t, rr)
		if list.Count != 2 {
			t.Errorf("expected 2 loans, got %d", list.Count)
		}

		rr = env.do(t, http.MethodGet, "/api/loans?status=rejected", "user-001", nil)
		expectStatus(t, rr, http.StatusOK)
		filtered := decode[map[string]any](t, rr)
		if filtered["count"] != float64(1) {
			t.Errorf("expected 1 rejected loan, got %v", filtered["count"])
		}

		rr = env.do(t, http.MethodGet, "/api/loans?status=bogus", "user-001", nil)
		expectStatus(t, rr, http.StatusBadRequest)

		rr = env.do(t, http.MethodGet, "/api/loans/stats", "user-001", nil)
		expectStatus(t, rr, http.StatusOK)
		stats := decode[domain.LoanStats](t, rr)
		if stats.Total != 2 || stats.Approved != 1 || stats.Rejected != 1 {
			t.Errorf("unexpected stats %+v", stats)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		rr := env.do(t, http.MethodDelete, "/api/loans/"+app.ID, "user-002", nil)
		expectStatus(t, rr, http.StatusNotFound)

		rr = env.do(t, http.MethodDelete, "/api/loans/"+app.ID, "user-001", nil)
		expectStatus(t, rr, http.StatusNoContent)

		rr = env.do(t, http.MethodGet, "/api/loans/"+app.ID, "user-001", nil)
		expectStatus(t, rr, http.StatusNotFound)
	})
}

func TestApplyForLoanValidation(t *testing.T) {
	env := newTestEnv(t, Options{})

	tests := []struct {
		name string
		body any
	}{
		{"InvalidJSON", "not-json"},
		{"MissingFields", map[string]any{"amountRequested": 1000}},
		{"ZeroAmount", map[string]any{
			"amountRequested": 0, "numDebts": 0, "totalDebtAmount": 0,
			"monthlyEmis": 0, "totalAssets": 0, "monthlyIncome": 1000,
		}},
		{"NegativeIncome", map[string]any{
			"amountRequested": 1000, "numDebts": 0, "totalDebtAmount": 0,
			"monthlyEmis": 0, "totalAssets": 0, "monthlyIncome": -1,
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, "/api/loans", "user-001", tt.body)
			expectStatus(t, rr, http.StatusBadRequest)
			body := decode[errorBody](t, rr)
			if body.Error == "" {
				t.Error("expected error message")
			}
		})
	}
}

func TestApplicationVelocityLimit(t *testing.T) {
	env := newTestEnv(t, Options{})

	for i := 0; i < 3; i++ {
		rr := env.do(t, http.MethodPost, "/api/loans", "user-busy", strongLoan)
		expectStatus(t, rr, http.StatusCreated)
	}

	rr := env.do(t, http.MethodPost, "/api/loans", "user-busy", strongLoan)
	expectStatus(t, rr, http.StatusTooManyRequests)

	rr = env.do(t, http.MethodPost, "/api/loans", "user-calm", strongLoan)
	expectStatus(t, rr, http.StatusCreated)
}

func TestScorePreview(t *testing.T) {
	env := newTestEnv(t, Options{})

	rr := env.do(t, http.MethodPost, "/api/score", "user-001", weakLoan)
	expectStatus(t, rr, http.StatusOK)

	resp := decode[struct {
		Status         domain.LoanStatus `json:"status"`
		AcceptanceRate float64           `json:"acceptanceRate"`
		Reasons        []string          `json:"reasons"`
	}](t, rr)
	if resp.Status != domain.LoanRejected {
		t.Errorf("expected rejected, got %s", resp.Status)
	}
	if resp.AcceptanceRate >= 30 {
		t.Errorf("expected acceptance below 30, got %.2f", resp.AcceptanceRate)
	}
	if len(resp.Reasons) == 0 {
		t.Error("expected policy reasons for a weak applicant")
	}

	rr = env.do(t, http.MethodGet, "/api/loans", "user-001", nil)
	if decode[map[string]any](t, rr)["count"] != float64(0) {
		t.Error("score preview must not store an application")
	}
}

func TestStatements(t *testing.T) {
	env := newTestEnv(t, Options{})

	rr := env.do(t, http.MethodGet, "/api/behavior", "user-001", nil)
	expectStatus(t, rr, http.StatusNotFound)

	rr = env.upload(t, "user-001", "jan.csv", statementCSV)
	expectStatus(t, rr, http.StatusCreated)
	resp := decode[uploadResponse](t, rr)

	if resp.Statement.Status != domain.StatementAnalyzed {
		t.Errorf("expected analyzed, got %s", resp.Statement.Status)
	}
	if resp.Statement.Rows != nil {
		t.Error("upload response should not echo rows")
	}
	if resp.Statement.Analysis == nil || resp.Statement.Analysis.TotalScore != 10 {
		t.Fatalf("expected total score 10, got %+v", resp.Statement.Analysis)
	}
	if resp.Behavior == nil || resp.Behavior.Rating != "Good" {
		t.Fatalf("expected Good behaviour, got %+v", resp.Behavior)
	}

	t.Run("BehaviorServedFromCache", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/api/behavior", "user-001", nil)
		expectStatus(t, rr, http.StatusOK)
		if rr.Header().Get("X-Cache") != "hit" {
			t.Errorf("expected cache hit, got %q", rr.Header().Get("X-Cache"))
		}
		fb := decode[domain.FinancialBehavior](t, rr)
		if fb.StatementID != resp.Statement.ID {
			t.Errorf("expected statement %s, got %s", resp.Statement.ID, fb.StatementID)
		}
	})

	t.Run("BehaviorFilledFromRepository", func(t *testing.T) {
		env.server.Handler().cache.Delete(context.Background(), "user-001", cache.BehaviorKey)

		rr := env.do(t, http.MethodGet, "/api/behavior", "user-001", nil)
		expectStatus(t, rr, http.StatusOK)
		if rr.Header().Get("X-Cache") != "miss" {
			t.Errorf("expected cache miss, got %q", rr.Header().Get("X-Cache"))
		}

		rr = env.do(t, http.MethodGet, "/api/behavior", "user-001", nil)
		if rr.Header().Get("X-Cache") != "hit" {
			t.Error("expected the miss to fill the cache")
		}
	})

	t.Run("ListAndGet", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/api/statements", "user-001", nil)
		expectStatus(t, rr, http.StatusOK)
		if decode[map[string]any](t, rr)["count"] != float64(1) {
			t.Error("expected one statement")
		}

		rr = env.do(t, http.MethodGet, "/api/statements/"+resp.Statement.ID, "user-001", nil)
		expectStatus(t, rr, http.StatusOK)
		stmt := decode[domain.Statement](t, rr)
		if len(stmt.Rows) != 3 {
			t.Errorf("expected 3 rows, got %d", len(stmt.Rows))
		}

		rr = env.do(t, http.MethodGet, "/api/statements/"+resp.Statement.ID, "user-002", nil)
		expectStatus(t, rr, http.StatusNotFound)
	})

	t.Run("UnsupportedFormat", func(t *testing.T) {
		rr := env.upload(t, "user-001", "notes.txt", "hello")
		expectStatus(t, rr, http.StatusBadRequest)
	})

	t.Run("UnreadableFile", func(t *testing.T) {
		rr := env.upload(t, "user-001", "bad.csv", "Date,Description\n2024-01-01,x\n")
		expectStatus(t, rr, http.StatusBadRequest)
	})

	t.Run("MissingFile", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/api/statements", "user-001", "{}")
		expectStatus(t, rr, http.StatusBadRequest)
	})
}

func TestStatementTooLarge(t *testing.T) {
	env := newTestEnv(t, Options{MaxUploadBytes: 64})

	rr := env.upload(t, "user-001", "big.csv", statementCSV+strings.Repeat("2024-01-04,Misc,-1\n", 10))
	expectStatus(t, rr, http.StatusRequestEntityTooLarge)
}

func TestPolicies(t *testing.T) {
	env := newTestEnv(t, Options{})

	rule := map[string]any{
		"id":         "large-request",
		"name":       "Large request",
		"expression": "amount_requested > 500000.0 ? 1.0 : 0.0",
		"enabled":    true,
		"bands": []map[string]any{
			{"upperLimit": 1, "outcome": ".pass", "reason": "Within limits"},
			{"lowerLimit": 1, "outcome": ".review", "reason": "Large request"},
		},
	}

	rr := env.do(t, http.MethodPost, "/api/policies", "admin", rule)
	expectStatus(t, rr, http.StatusCreated)

	rr = env.do(t, http.MethodGet, "/api/policies", "admin", nil)
	expectStatus(t, rr, http.StatusOK)
	list := decode[map[string]any](t, rr)
	wantLoaded := float64(len(rules.DefaultPolicies()) + 1)
	if list["loaded"] != wantLoaded {
		t.Errorf("expected %v loaded rules, got %v", wantLoaded, list["loaded"])
	}
	if list["count"] != float64(1) {
		t.Errorf("expected 1 stored rule, got %v", list["count"])
	}

	t.Run("FindingAppearsOnScore", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/api/score", "user-001", weakLoan)
		expectStatus(t, rr, http.StatusOK)
		a := decode[assessment.Assessment](t, rr)
		for _, f := range a.Findings {
			if f.RuleID == "large-request" {
				if f.Outcome != domain.OutcomeReview {
					t.Errorf("expected .review, got %s", f.Outcome)
				}
				return
			}
		}
		t.Error("expected a finding from the new rule")
	})

	t.Run("InvalidExpression", func(t *testing.T) {
		bad := map[string]any{"id": "broken", "expression": "amount_requested >", "enabled": true}
		rr := env.do(t, http.MethodPost, "/api/policies", "admin", bad)
		expectStatus(t, rr, http.StatusBadRequest)
	})

	t.Run("InvalidID", func(t *testing.T) {
		bad := map[string]any{"id": "Has Spaces", "expression": "1.0"}
		rr := env.do(t, http.MethodPost, "/api/policies", "admin", bad)
		expectStatus(t, rr, http.StatusBadRequest)
	})

	t.Run("Reload", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/api/policies/reload", "admin", nil)
		expectStatus(t, rr, http.StatusOK)
		if decode[map[string]int](t, rr)["count"] != 1 {
			t.Error("expected reload to keep only stored rules")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		rr := env.do(t, http.MethodDelete, "/api/policies/large-request", "admin", nil)
		expectStatus(t, rr, http.StatusNoContent)
		if env.server.Handler().engine.RulesCount() != 0 {
			t.Error("expected deleted rule to be unloaded")
		}

		rr = env.do(t, http.MethodDelete, "/api/policies/large-request", "admin", nil)
		expectStatus(t, rr, http.StatusNotFound)
	})
}

func TestBanks(t *testing.T) {
	env := newTestEnv(t, Options{})

	rr := env.do(t, http.MethodGet, "/api/banks", "", nil)
	expectStatus(t, rr, http.StatusOK)
	if n := len(decode[[]domain.Bank](t, rr)); n != 6 {
		t.Errorf("expected 6 banks, got %d", n)
	}

	rr = env.do(t, http.MethodGet, "/api/banks/top", "", nil)
	expectStatus(t, rr, http.StatusOK)
	top := decode[[]domain.Bank](t, rr)
	if len(top) != 2 || top[0].Name != "SBI" {
		t.Errorf("unexpected top banks %+v", top)
	}

	rr = env.do(t, http.MethodGet, "/api/banks/top?n=zero", "", nil)
	expectStatus(t, rr, http.StatusBadRequest)

	rr = env.do(t, http.MethodGet, "/api/banks/trusted", "", nil)
	expectStatus(t, rr, http.StatusOK)
	for _, b := range decode[[]domain.Bank](t, rr) {
		if b.TrustScore <= 9.5 {
			t.Errorf("%s should not be trusted with score %.1f", b.Name, b.TrustScore)
		}
	}

	rr = env.do(t, http.MethodGet, "/api/banks/1", "", nil)
	expectStatus(t, rr, http.StatusOK)

	rr = env.do(t, http.MethodGet, "/api/banks/99", "", nil)
	expectStatus(t, rr, http.StatusNotFound)
}

func TestAsyncPipeline(t *testing.T) {
	env := newTestEnv(t, Options{Async: true})

	rr := env.do(t, http.MethodPost, "/api/loans", "user-001", strongLoan)
	expectStatus(t, rr, http.StatusAccepted)
	app := decode[domain.LoanApplication](t, rr)
	if app.Status != domain.LoanPending {
		t.Errorf("expected pending while queued, got %s", app.Status)
	}

	waitFor(t, func() bool {
		stored, err := env.repo.GetLoan(context.Background(), "user-001", app.ID)
		return err == nil && stored.Status == domain.LoanApproved
	})

	rr = env.upload(t, "user-001", "jan.csv", statementCSV)
	expectStatus(t, rr, http.StatusAccepted)
	resp := decode[uploadResponse](t, rr)
	if resp.Statement.Status != domain.StatementPending {
		t.Errorf("expected pending statement, got %s", resp.Statement.Status)
	}

	waitFor(t, func() bool {
		stmt, err := env.repo.GetStatement(context.Background(), "user-001", resp.Statement.ID)
		return err == nil && stmt.Status == domain.StatementAnalyzed
	})

	rr = env.do(t, http.MethodGet, "/api/behavior", "user-001", nil)
	expectStatus(t, rr, http.StatusOK)
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
