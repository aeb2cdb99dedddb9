package scoring

import (
	"fmt"
	"math"
)

// Decision is the outcome derived from a probability.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionPending  Decision = "pending"
	DecisionRejected Decision = "rejected"
)

// Decision thresholds. Values exactly on a threshold resolve to pending.
const (
	ApproveAbove = 0.7
	RejectBelow  = 0.3
)

// Model holds the calibration constants of the logistic scorer.
type Model struct {
	Weights [NumFeatures]float64 `json:"weights" yaml:"weights"`
	Bounds  [NumFeatures]Bound   `json:"bounds" yaml:"bounds"`
	Shift   float64              `json:"shift" yaml:"shift"`
	Scale   float64              `json:"scale" yaml:"scale"`
}

// DefaultModel returns the production calibration.
func DefaultModel() Model {
	return Model{
		Weights: [NumFeatures]float64{0.15, 0.20, -0.15, -0.10, -0.20, -0.20},
		Bounds: [NumFeatures]Bound{
			AnnualIncome:    {Min: 10000, Max: 2000000},
			TotalAssets:     {Min: 0, Max: 5000000},
			TotalDebt:       {Min: 0, Max: 1000000},
			DebtCount:       {Min: 0, Max: 10},
			MonthlyEMI:      {Min: 0, Max: 100000},
			AmountRequested: {Min: 10000, Max: 1000000},
		},
		Shift: 0.1,
		Scale: 5,
	}
}

// ScoreResult is the probability of approval and the decision it implies.
type ScoreResult struct {
	Probability float64  `json:"probability"`
	Decision    Decision `json:"decision"`
}

// Scorer predicts approval probability. It holds no mutable state and is
// safe for concurrent use.
type Scorer struct {
	model      Model
	normalizer *Normalizer
}

// NewScorer validates model and builds a Scorer.
func NewScorer(model Model) (*Scorer, error) {
	for i, w := range model.Weights {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, &ConfigurationError{Field: "weights." + FeatureName(i), Reason: "weight must be finite"}
		}
	}
	if math.IsNaN(model.Shift) || math.IsInf(model.Shift, 0) {
		return nil, &ConfigurationError{Field: "shift", Reason: "shift must be finite"}
	}
	if !(model.Scale > 0) || math.IsInf(model.Scale, 0) {
		return nil, &ConfigurationError{Field: "scale", Reason: fmt.Sprintf("scale must be positive, got %v", model.Scale)}
	}

	normalizer, err := NewNormalizer(model.Bounds)
	if err != nil {
		return nil, err
	}
	return &Scorer{model: model, normalizer: normalizer}, nil
}

var defaultScorer = mustScorer(DefaultModel())

func mustScorer(m Model) *Scorer {
	s, err := NewScorer(m)
	if err != nil {
		panic(err)
	}
	return s
}

// DefaultScorer returns the shared scorer built from DefaultModel.
func DefaultScorer() *Scorer {
	return defaultScorer
}

// Model returns the calibration in use.
func (s *Scorer) Model() Model {
	return s.model
}

// Linear returns the weighted sum of the normalized features.
func (s *Scorer) Linear(raw RawFeatures) float64 {
	norm := s.normalizer.Normalize(raw)
	var sum float64
	for i, v := range norm {
		sum += s.model.Weights[i] * v
	}
	return sum
}

// Predict returns the approval probability for raw.
func (s *Scorer) Predict(raw RawFeatures) float64 {
	return logistic(s.model.Scale * (s.Linear(raw) + s.model.Shift))
}

// Score predicts and derives the decision in one call.
func (s *Scorer) Score(raw RawFeatures) ScoreResult {
	p := s.Predict(raw)
	return ScoreResult{Probability: p, Decision: DecisionFor(p)}
}

// DecisionFor maps a probability to a decision. NaN maps to pending.
func DecisionFor(p float64) Decision {
	switch {
	case p > ApproveAbove:
		return DecisionApproved
	case p < RejectBelow:
		return DecisionRejected
	default:
		return DecisionPending
	}
}

func logistic(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
