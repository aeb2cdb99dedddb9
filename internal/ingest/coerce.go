package ingest

import (
	"strconv"
	"strings"
	"time"

	"github.com/opensource-finance/credbud/internal/behavior"
)

var dateLayouts = []string{
	"2006-01-02",
	"02-01-2006",
	"01/02/2006",
	"02/01/2006",
	"1/2/2006",
	"2/1/2006",
	"2006/01/02",
	"02 Jan 2006",
	"02 January 2006",
	"02-Jan-2006",
	"Jan 2, 2006",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// ParseDate tries the known statement layouts in order. US month-first
// layouts win over day-first ones for ambiguous dates.
func ParseDate(s string) (*time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, true
		}
	}
	return nil, false
}

var amountReplacer = strings.NewReplacer(",", "", "$", "", "₹", "", "€", "", "£", "", " ", "", "\u00a0", "")

// ParseAmount cleans currency formatting and parses a signed number.
// "(12.50)" is read as -12.50. A trailing CR or DR is returned as a type hint.
func ParseAmount(s string) (float64, behavior.TxType, bool) {
	s = strings.TrimSpace(s)
	hint := behavior.TxUnknown

	upper := strings.ToUpper(s)
	switch {
	case strings.HasSuffix(upper, "CR"):
		hint = behavior.TxCredit
		s = s[:len(s)-2]
	case strings.HasSuffix(upper, "DR"):
		hint = behavior.TxDebit
		s = s[:len(s)-2]
	}

	s = amountReplacer.Replace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "Rs."), "INR")

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	if s == "" || s == "-" {
		return 0, hint, false
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, hint, false
	}
	if negative {
		v = -v
	}
	return v, hint, true
}

// inferType decides credit or debit for a tabular row.
func inferType(typeCell string, hint behavior.TxType, amount float64) behavior.TxType {
	if t := behavior.ParseTxType(typeCell); t != behavior.TxUnknown {
		return t
	}
	if hint != behavior.TxUnknown {
		return hint
	}
	switch {
	case amount < 0:
		return behavior.TxDebit
	case amount > 0:
		return behavior.TxCredit
	default:
		return behavior.TxUnknown
	}
}
