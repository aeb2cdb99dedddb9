package domain

import (
	"time"

	"github.com/opensource-finance/credbud/internal/behavior"
)

// StatementStatus tracks analysis of an uploaded statement.
type StatementStatus string

const (
	StatementPending  StatementStatus = "pending"
	StatementAnalyzed StatementStatus = "analyzed"
	StatementFailed   StatementStatus = "failed"
)

// Statement is an uploaded bank statement and its analysis.
type Statement struct {
	ID         string                    `json:"id"`
	UserID     string                    `json:"userId"`
	FileName   string                    `json:"fileName"`
	Format     string                    `json:"format"`
	Status     StatementStatus           `json:"status"`
	RowCount   int                       `json:"rowCount"`
	Rows       []behavior.TransactionRow `json:"rows,omitempty"`
	Analysis   *behavior.Report          `json:"analysis,omitempty"`
	Error      string                    `json:"error,omitempty"`
	CreatedAt  time.Time                 `json:"createdAt"`
	AnalyzedAt *time.Time                `json:"analyzedAt,omitempty"`
}

// FinancialBehavior is the latest behaviour summary for a user.
// There is at most one per user; each analysis replaces it.
type FinancialBehavior struct {
	ID                      string                        `json:"id"`
	UserID                  string                        `json:"userId"`
	StatementID             string                        `json:"statementId,omitempty"`
	TotalScore              float64                       `json:"totalScore"`
	Rating                  behavior.Rating               `json:"rating"`
	CategoryScores          map[behavior.Category]float64 `json:"categoryScores"`
	LiquidityResilienceDays int                           `json:"liquidityResilienceDays"`
	StableInflow            bool                          `json:"stableInflow"`
	UpdatedAt               time.Time                     `json:"updatedAt"`
}
