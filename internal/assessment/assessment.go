// Package assessment turns loan requests and statements into decisions.
// It combines the credit scorer with the policy engine and is shared by
// the HTTP handlers and the background worker.
package assessment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/credbud/internal/behavior"
	"github.com/opensource-finance/credbud/internal/domain"
	"github.com/opensource-finance/credbud/internal/rules"
	"github.com/opensource-finance/credbud/internal/scoring"
)

// Note is stored on every automatically scored application.
const Note = "Automated scoring applied"

// Processor scores applications and analyzes statements.
type Processor struct {
	scorer *scoring.Scorer
	engine *rules.Engine

	// EscalateOnFail moves an application to under_review when any
	// policy finding is .fail. The scored decision is never changed.
	EscalateOnFail bool
}

// NewProcessor creates a processor. A nil scorer uses the default model;
// a nil engine skips policy evaluation.
func NewProcessor(scorer *scoring.Scorer, engine *rules.Engine) *Processor {
	if scorer == nil {
		scorer = scoring.DefaultScorer()
	}
	return &Processor{scorer: scorer, engine: engine}
}

// Assessment is the outcome of scoring one application.
type Assessment struct {
	Score          scoring.ScoreResult    `json:"score"`
	AcceptanceRate float64                `json:"acceptanceRate"`
	Status         domain.LoanStatus      `json:"status"`
	Findings       []domain.PolicyFinding `json:"findings,omitempty"`
	Feedback       domain.Feedback        `json:"feedback"`
	DecisionMs     int64                  `json:"decisionMs"`
}

// Score runs the credit scorer alone.
func (p *Processor) Score(req domain.LoanRequest) scoring.ScoreResult {
	return p.scorer.Score(Features(req))
}

// AssessLoan scores a request and evaluates the loaded policy rules.
func (p *Processor) AssessLoan(ctx context.Context, userID string, req domain.LoanRequest) (*Assessment, error) {
	start := time.Now()

	result := p.Score(req)
	a := &Assessment{
		Score:          result,
		AcceptanceRate: result.Probability * 100,
		Status:         StatusFor(result.Decision),
	}

	if p.engine != nil {
		findings, err := p.engine.EvaluateAll(ctx, &rules.Input{
			UserID:      userID,
			Request:     req,
			Probability: result.Probability,
			Decision:    result.Decision,
		})
		if err != nil {
			return nil, fmt.Errorf("policy evaluation failed: %w", err)
		}
		a.Findings = findings
	}

	if p.EscalateOnFail && HasFailure(a.Findings) {
		a.Status = domain.LoanUnderReview
	}

	a.Feedback = domain.Feedback{Note: Note, Findings: a.Findings}
	a.DecisionMs = time.Since(start).Milliseconds()
	return a, nil
}

// Apply writes the assessment onto an application.
func (a *Assessment) Apply(app *domain.LoanApplication) {
	app.MLScore = a.Score.Probability
	app.AcceptanceRate = a.AcceptanceRate
	app.Status = a.Status
	app.Feedback = a.Feedback
}

// AnalyzeStatement runs the behaviour analysis over parsed rows.
func (p *Processor) AnalyzeStatement(rows []behavior.TransactionRow) behavior.Report {
	return behavior.Analyze(rows)
}

// Features maps a request onto the scorer's six inputs.
func Features(req domain.LoanRequest) scoring.RawFeatures {
	return scoring.FeaturesFromApplication(
		req.MonthlyIncome,
		req.TotalAssets,
		req.TotalDebtAmount,
		req.NumDebts,
		req.MonthlyEMIs,
		req.AmountRequested,
	)
}

// StatusFor maps a scorer decision to a stored status.
func StatusFor(d scoring.Decision) domain.LoanStatus {
	switch d {
	case scoring.DecisionApproved:
		return domain.LoanApproved
	case scoring.DecisionRejected:
		return domain.LoanRejected
	default:
		return domain.LoanPending
	}
}

// ToBehavior builds the per-user behaviour summary from a report.
func ToBehavior(userID, statementID string, report behavior.Report) *domain.FinancialBehavior {
	scores := make(map[behavior.Category]float64, len(report.CategoryScores))
	for k, v := range report.CategoryScores {
		scores[k] = v
	}
	return &domain.FinancialBehavior{
		ID:                      uuid.New().String(),
		UserID:                  userID,
		StatementID:             statementID,
		TotalScore:              behavior.RoundScore(report.TotalScore),
		Rating:                  report.Rating,
		CategoryScores:          scores,
		LiquidityResilienceDays: report.LiquidityResilienceDays,
		StableInflow:            report.StableInflow,
		UpdatedAt:               time.Now().UTC(),
	}
}

// HasFailure reports whether any finding is .fail.
func HasFailure(findings []domain.PolicyFinding) bool {
	for _, f := range findings {
		if f.Outcome == domain.OutcomeFail {
			return true
		}
	}
	return false
}

// Reasons extracts the reasons of review and fail findings.
func Reasons(findings []domain.PolicyFinding) []string {
	var reasons []string
	for _, f := range findings {
		if f.Outcome == domain.OutcomeFail || f.Outcome == domain.OutcomeReview {
			if f.Reason != "" {
				reasons = append(reasons, f.Reason)
			}
		}
	}
	return reasons
}
