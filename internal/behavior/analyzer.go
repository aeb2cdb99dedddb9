package behavior

import (
	"math"
	"strings"
	"time"
)

// TxType tells whether a row moved money in or out.
type TxType string

const (
	TxCredit  TxType = "credit"
	TxDebit   TxType = "debit"
	TxUnknown TxType = "unknown"
)

// ParseTxType accepts the spellings found in bank exports.
func ParseTxType(s string) TxType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "credit", "cr", "c", "deposit":
		return TxCredit
	case "debit", "dr", "d", "withdrawal":
		return TxDebit
	default:
		return TxUnknown
	}
}

// TransactionRow is one line of a bank statement.
type TransactionRow struct {
	Date        *time.Time `json:"date,omitempty"`
	Description string     `json:"description"`
	Amount      float64    `json:"amount"`
	Type        TxType     `json:"type"`
	Balance     *float64   `json:"balance,omitempty"`
	Category    Category   `json:"category,omitempty"`
}

// Rating is the coarse bucket a total score falls into.
type Rating string

const (
	RatingGood    Rating = "Good"
	RatingAverage Rating = "Average"
	RatingBad     Rating = "Bad"
)

// Analysis constants.
const (
	baseScore           = 5.0
	maxScore            = 10.0
	neutralCategory     = 5.0
	ratioWeight         = 20.0
	defaultResilience   = 30
	goodRatingThreshold = 7.0
	avgRatingThreshold  = 4.0
)

// Period is the date span covered by a report.
type Period struct {
	From *time.Time `json:"from,omitempty"`
	To   *time.Time `json:"to,omitempty"`
}

// Report summarizes savings, spending mix and liquidity of a statement.
type Report struct {
	TotalIncome             float64              `json:"totalIncome"`
	TotalExpense            float64              `json:"totalExpense"`
	SavingsRate             float64              `json:"savingsRate"`
	TotalScore              float64              `json:"totalScore"`
	Rating                  Rating               `json:"rating"`
	CategoryScores          map[Category]float64 `json:"categoryScores"`
	LiquidityResilienceDays int                  `json:"liquidityResilienceDays"`
	StableInflow            bool                 `json:"stableInflow"`
	TransactionCount        int                  `json:"transactionCount"`
	Period                  Period               `json:"period"`
}

// Categorized returns a copy of rows with a category on every row.
// Rows that already carry a category keep it.
func Categorized(rows []TransactionRow) []TransactionRow {
	out := make([]TransactionRow, len(rows))
	for i, r := range rows {
		if r.Category == "" {
			r.Category = Categorize(r.Description)
		}
		out[i] = r
	}
	return out
}

// Analyze builds a Report over the whole batch. Amounts are taken as
// magnitudes; the row type decides whether they count as income or expense.
func Analyze(rows []TransactionRow) Report {
	rows = Categorized(rows)

	var income, expense float64
	debitByCategory := make(map[Category]float64)
	var debitSeen []Category
	var from, to *time.Time

	for i := range rows {
		r := &rows[i]
		amt := magnitude(r.Amount)

		switch r.Type {
		case TxCredit:
			income += amt
		case TxDebit:
			expense += amt
			if _, ok := debitByCategory[r.Category]; !ok {
				debitSeen = append(debitSeen, r.Category)
			}
			debitByCategory[r.Category] += amt
		}

		if r.Date != nil {
			if from == nil || r.Date.Before(*from) {
				from = r.Date
			}
			if to == nil || r.Date.After(*to) {
				to = r.Date
			}
		}
	}

	report := Report{
		TotalIncome:      income,
		TotalExpense:     expense,
		StableInflow:     income > 0,
		TransactionCount: len(rows),
		CategoryScores:   make(map[Category]float64, len(debitSeen)),
		Period:           Period{From: copyTime(from), To: copyTime(to)},
	}

	if income > 0 {
		report.SavingsRate = (income - expense) / income
	}
	report.TotalScore = clamp(baseScore+report.SavingsRate*10, 0, maxScore)
	report.Rating = RatingFor(report.TotalScore)

	for _, cat := range debitSeen {
		ratio := 0.0
		if expense > 0 {
			ratio = debitByCategory[cat] / expense
		}
		report.CategoryScores[cat] = categoryScore(cat, ratio)
	}

	if from != nil && to != nil {
		report.LiquidityResilienceDays = resilienceDays(income, expense, wholeDays(*from, *to))
	}

	return report
}

// RatingFor buckets a total score.
func RatingFor(score float64) Rating {
	switch {
	case score >= goodRatingThreshold:
		return RatingGood
	case score >= avgRatingThreshold:
		return RatingAverage
	default:
		return RatingBad
	}
}

func categoryScore(cat Category, ratio float64) float64 {
	switch cat {
	case CategoryInvestments:
		return math.Min(maxScore, ratio*ratioWeight)
	case CategoryLoan:
		return math.Max(0, maxScore-ratio*ratioWeight)
	default:
		return neutralCategory
	}
}

func resilienceDays(income, expense float64, days int) int {
	if days <= 0 {
		return 0
	}
	daily := expense / float64(days)
	if daily <= 0 {
		return defaultResilience
	}
	return int(math.Floor((income - expense) / daily))
}

// wholeDays counts complete days between two instants.
func wholeDays(from, to time.Time) int {
	return int(to.Sub(from) / (24 * time.Hour))
}

func magnitude(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Abs(v)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// RoundScore rounds a score to one decimal place for presentation.
func RoundScore(v float64) float64 {
	return math.Round(v*10) / 10
}
