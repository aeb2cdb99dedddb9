package domain

import "time"

// PolicyRule is an operator-defined CEL check run against scored applications.
type PolicyRule struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Expression  string       `json:"expression"`
	Bands       []PolicyBand `json:"bands"`
	Enabled     bool         `json:"enabled"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// PolicyBand maps a score range to an outcome. Limits are
// inclusive-lower, exclusive-upper; nil means unbounded.
type PolicyBand struct {
	LowerLimit *float64 `json:"lowerLimit,omitempty"`
	UpperLimit *float64 `json:"upperLimit,omitempty"`
	Outcome    string   `json:"outcome"`
	Reason     string   `json:"reason"`
}

// PolicyFinding is the result of one rule on one application.
type PolicyFinding struct {
	RuleID  string  `json:"ruleId"`
	Outcome string  `json:"outcome"`
	Score   float64 `json:"score"`
	Reason  string  `json:"reason"`
}

// Policy outcomes
const (
	OutcomePass   = ".pass"
	OutcomeReview = ".review"
	OutcomeFail   = ".fail"
	OutcomeError  = ".err"
)
