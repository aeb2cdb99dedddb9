// Package scoring implements the credit scoring model used for loan applications.
package scoring

import (
	"fmt"
	"math"
)

// Feature indexes into RawFeatures and NormalizedFeatures.
const (
	AnnualIncome = iota
	TotalAssets
	TotalDebt
	DebtCount
	MonthlyEMI
	AmountRequested

	NumFeatures
)

var featureNames = [NumFeatures]string{
	"annual_income",
	"total_assets",
	"total_debt",
	"debt_count",
	"monthly_emi",
	"amount_requested",
}

// FeatureName returns the snake_case name of a feature index.
func FeatureName(i int) string {
	if i < 0 || i >= NumFeatures {
		return fmt.Sprintf("feature_%d", i)
	}
	return featureNames[i]
}

// RawFeatures is the ordered input vector for a single scoring call.
type RawFeatures [NumFeatures]float64

// NormalizedFeatures holds RawFeatures mapped into [0,1].
type NormalizedFeatures [NumFeatures]float64

// FeaturesFromApplication builds the scoring vector from intake values.
// Income is supplied monthly and annualized here.
func FeaturesFromApplication(monthlyIncome, totalAssets, totalDebt float64, numDebts int, monthlyEMI, amountRequested float64) RawFeatures {
	return RawFeatures{
		AnnualIncome:    monthlyIncome * 12,
		TotalAssets:     totalAssets,
		TotalDebt:       totalDebt,
		DebtCount:       float64(numDebts),
		MonthlyEMI:      monthlyEMI,
		AmountRequested: amountRequested,
	}
}

// Bound is the min-max range used to normalize one feature.
type Bound struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// ConfigurationError reports malformed model constants.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("scoring configuration: %s: %s", e.Field, e.Reason)
}

func (b Bound) validate(field string) error {
	if math.IsNaN(b.Min) || math.IsNaN(b.Max) || math.IsInf(b.Min, 0) || math.IsInf(b.Max, 0) {
		return &ConfigurationError{Field: field, Reason: "bound must be finite"}
	}
	if b.Max <= b.Min {
		return &ConfigurationError{Field: field, Reason: fmt.Sprintf("max %v must exceed min %v", b.Max, b.Min)}
	}
	return nil
}

// Normalize maps value into [0,1] using bound.
func Normalize(value float64, bound Bound) (float64, error) {
	if err := bound.validate("bound"); err != nil {
		return 0, err
	}
	return scale(value, bound), nil
}

func scale(value float64, b Bound) float64 {
	if math.IsNaN(value) {
		return 0
	}
	return clamp((value-b.Min)/(b.Max-b.Min), 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Normalizer applies a validated set of bounds to feature vectors.
type Normalizer struct {
	bounds [NumFeatures]Bound
}

// NewNormalizer validates every bound up front.
func NewNormalizer(bounds [NumFeatures]Bound) (*Normalizer, error) {
	for i, b := range bounds {
		if err := b.validate(FeatureName(i)); err != nil {
			return nil, err
		}
	}
	return &Normalizer{bounds: bounds}, nil
}

// Normalize maps every component of raw into [0,1].
func (n *Normalizer) Normalize(raw RawFeatures) NormalizedFeatures {
	var out NormalizedFeatures
	for i, v := range raw {
		out[i] = scale(v, n.bounds[i])
	}
	return out
}
