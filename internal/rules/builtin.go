package rules

import "github.com/opensource-finance/credbud/internal/domain"

func limit(v float64) *float64 { return &v }

// DefaultPolicies are seeded into an empty policy table on first start.
func DefaultPolicies() []*domain.PolicyRule {
	return []*domain.PolicyRule{
		{
			ID:          "emi-burden",
			Name:        "EMI burden",
			Description: "Share of monthly income already committed to EMIs",
			Expression:  "emi_to_income",
			Enabled:     true,
			Bands: []domain.PolicyBand{
				{UpperLimit: limit(0.4), Outcome: domain.OutcomePass, Reason: "EMIs within 40% of income"},
				{LowerLimit: limit(0.4), UpperLimit: limit(0.6), Outcome: domain.OutcomeReview, Reason: "EMIs between 40% and 60% of income"},
				{LowerLimit: limit(0.6), Outcome: domain.OutcomeFail, Reason: "EMIs above 60% of income"},
			},
		},
		{
			ID:          "loan-to-income",
			Name:        "Loan to income",
			Description: "Requested amount relative to annual income",
			Expression:  "loan_to_income",
			Enabled:     true,
			Bands: []domain.PolicyBand{
				{UpperLimit: limit(3), Outcome: domain.OutcomePass, Reason: "Request within 3x annual income"},
				{LowerLimit: limit(3), UpperLimit: limit(5), Outcome: domain.OutcomeReview, Reason: "Request between 3x and 5x annual income"},
				{LowerLimit: limit(5), Outcome: domain.OutcomeFail, Reason: "Request above 5x annual income"},
			},
		},
		{
			ID:          "application-velocity",
			Name:        "Application velocity",
			Description: "Applications submitted in the velocity window",
			Expression:  "recent_applications",
			Enabled:     true,
			Bands: []domain.PolicyBand{
				{UpperLimit: limit(4), Outcome: domain.OutcomePass, Reason: "Normal application frequency"},
				{LowerLimit: limit(4), UpperLimit: limit(8), Outcome: domain.OutcomeReview, Reason: "Frequent applications"},
				{LowerLimit: limit(8), Outcome: domain.OutcomeFail, Reason: "Unusually many applications"},
			},
		},
		{
			ID:          "asset-coverage",
			Name:        "Asset coverage",
			Description: "Declared assets cover the requested amount",
			Expression:  "total_assets >= amount_requested",
			Enabled:     true,
			Bands: []domain.PolicyBand{
				{LowerLimit: limit(1), Outcome: domain.OutcomePass, Reason: "Assets cover the request"},
				{UpperLimit: limit(1), Outcome: domain.OutcomeReview, Reason: "Assets below requested amount"},
			},
		},
	}
}
