package domain

// Bank is a lender listed in the marketplace catalog.
type Bank struct {
	ID             string  `json:"id" yaml:"id"`
	Name           string  `json:"name" yaml:"name"`
	InterestRate   float64 `json:"interestRate" yaml:"interest_rate"`
	MaxLoanAmount  float64 `json:"maxLoanAmount" yaml:"max_loan_amount"`
	MinCreditScore int     `json:"minCreditScore" yaml:"min_credit_score"`
	TrustScore     float64 `json:"trustScore" yaml:"trust_score"`
	ProcessingFee  float64 `json:"processingFee" yaml:"processing_fee"`
	Tenure         string  `json:"tenure" yaml:"tenure"`
	Rating         float64 `json:"rating" yaml:"rating"`
	Reviews        int     `json:"reviews" yaml:"reviews"`
	ApprovalTime   string  `json:"approvalTime" yaml:"approval_time"`
	LogoURL        string  `json:"logoUrl" yaml:"logo_url"`
}
