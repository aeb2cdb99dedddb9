package domain

import "time"

// LoanStatus is the lifecycle state of an application.
type LoanStatus string

const (
	LoanPending     LoanStatus = "pending"
	LoanApproved    LoanStatus = "approved"
	LoanRejected    LoanStatus = "rejected"
	LoanUnderReview LoanStatus = "under_review"
)

// Valid reports whether s is a known status.
func (s LoanStatus) Valid() bool {
	switch s {
	case LoanPending, LoanApproved, LoanRejected, LoanUnderReview:
		return true
	}
	return false
}

// LoanApplication is a scored request for credit.
type LoanApplication struct {
	ID              string  `json:"id"`
	UserID          string  `json:"userId"`
	AmountRequested float64 `json:"amountRequested"`
	NumDebts        int     `json:"numDebts"`
	TotalDebtAmount float64 `json:"totalDebtAmount"`
	MonthlyEMIs     float64 `json:"monthlyEmis"`
	TotalAssets     float64 `json:"totalAssets"`
	MonthlyIncome   float64 `json:"monthlyIncome"`
	Purpose         string  `json:"purpose,omitempty"`
	TermMonths      int     `json:"termMonths,omitempty"`

	// Scoring output
	MLScore        float64    `json:"mlScore"`
	AcceptanceRate float64    `json:"acceptanceRate"`
	Status         LoanStatus `json:"status"`
	Feedback       Feedback   `json:"feedback"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Feedback explains how a decision was reached.
type Feedback struct {
	Note     string          `json:"note"`
	Findings []PolicyFinding `json:"findings,omitempty"`
}

// LoanRequest carries the applicant-supplied fields of an application.
type LoanRequest struct {
	AmountRequested float64 `json:"amountRequested"`
	NumDebts        int     `json:"numDebts"`
	TotalDebtAmount float64 `json:"totalDebtAmount"`
	MonthlyEMIs     float64 `json:"monthlyEmis"`
	TotalAssets     float64 `json:"totalAssets"`
	MonthlyIncome   float64 `json:"monthlyIncome"`
	Purpose         string  `json:"purpose,omitempty"`
	TermMonths      int     `json:"termMonths,omitempty"`
}

// Apply copies the request fields onto an application.
func (r LoanRequest) Apply(app *LoanApplication) {
	app.AmountRequested = r.AmountRequested
	app.NumDebts = r.NumDebts
	app.TotalDebtAmount = r.TotalDebtAmount
	app.MonthlyEMIs = r.MonthlyEMIs
	app.TotalAssets = r.TotalAssets
	app.MonthlyIncome = r.MonthlyIncome
	app.Purpose = r.Purpose
	app.TermMonths = r.TermMonths
}

// Request returns the applicant-supplied fields of app.
func (app *LoanApplication) Request() LoanRequest {
	return LoanRequest{
		AmountRequested: app.AmountRequested,
		NumDebts:        app.NumDebts,
		TotalDebtAmount: app.TotalDebtAmount,
		MonthlyEMIs:     app.MonthlyEMIs,
		TotalAssets:     app.TotalAssets,
		MonthlyIncome:   app.MonthlyIncome,
		Purpose:         app.Purpose,
		TermMonths:      app.TermMonths,
	}
}

// LoanFilter narrows ListLoans. Zero values match everything.
type LoanFilter struct {
	Status LoanStatus
	Limit  int
}

// LoanStats summarizes a user's applications.
type LoanStats struct {
	Total        int     `json:"total"`
	Pending      int     `json:"pending"`
	Approved     int     `json:"approved"`
	Rejected     int     `json:"rejected"`
	UnderReview  int     `json:"underReview"`
	ApprovalRate float64 `json:"approvalRate"`
}
