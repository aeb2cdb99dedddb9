package ingest

import (
	"strings"

	"github.com/opensource-finance/credbud/internal/behavior"
)

type column int

const (
	colDate column = iota
	colDescription
	colAmount
	colDebit
	colCredit
	colType
	colBalance
	colCategory
	numColumns
)

// Header aliases seen in bank exports, matched case-insensitively.
var columnAliases = [numColumns][]string{
	colDate:        {"date", "transaction date", "txn date", "value date", "posting date"},
	colDescription: {"description", "particulars", "narration", "details", "remarks", "memo"},
	colAmount:      {"amount", "transaction amount", "amt"},
	colDebit:       {"debit", "withdrawal", "withdrawal amt", "debit amount"},
	colCredit:      {"credit", "deposit amt", "credit amount"},
	colType:        {"type", "transaction type", "cr/dr", "dr/cr"},
	colBalance:     {"balance", "closing balance", "running balance"},
	colCategory:    {"category"},
}

type layout [numColumns]int

func resolveHeader(header []string) layout {
	var l layout
	for i := range l {
		l[i] = -1
	}
	for idx, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		for col, aliases := range columnAliases {
			if l[col] >= 0 {
				continue
			}
			for _, alias := range aliases {
				if name == alias {
					l[col] = idx
					break
				}
			}
		}
	}
	return l
}

func (l layout) hasAmount() bool {
	return l[colAmount] >= 0 || l[colDebit] >= 0 || l[colCredit] >= 0
}

func (l layout) cell(record []string, col column) string {
	i := l[col]
	if i < 0 || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

// rowsFromTable maps a header plus records into transaction rows.
// Blank records are skipped; unreadable cells fall back to zero values.
func rowsFromTable(format Format, header []string, records [][]string) (*Result, error) {
	l := resolveHeader(header)
	if !l.hasAmount() {
		return nil, &FormatError{
			Format: format,
			Reason: "no amount, debit or credit column in header " + strings.Join(header, ","),
		}
	}

	res := &Result{Rows: make([]behavior.TransactionRow, 0, len(records))}
	for _, rec := range records {
		if isBlank(rec) {
			res.Skipped++
			continue
		}
		res.Rows = append(res.Rows, l.row(rec))
	}
	return res, nil
}

func (l layout) row(rec []string) behavior.TransactionRow {
	row := behavior.TransactionRow{
		Description: l.cell(rec, colDescription),
		Category:    behavior.Category(l.cell(rec, colCategory)),
	}

	if d, ok := ParseDate(l.cell(rec, colDate)); ok {
		row.Date = d
	}
	if b, _, ok := ParseAmount(l.cell(rec, colBalance)); ok {
		row.Balance = &b
	}

	typeCell := l.cell(rec, colType)
	amount, hint, ok := ParseAmount(l.cell(rec, colAmount))
	if !ok {
		// Split debit/credit columns.
		if d, _, dok := ParseAmount(l.cell(rec, colDebit)); dok && d != 0 {
			amount, hint = -abs(d), behavior.TxDebit
		} else if c, _, cok := ParseAmount(l.cell(rec, colCredit)); cok && c != 0 {
			amount, hint = abs(c), behavior.TxCredit
		}
	}

	row.Amount = amount
	row.Type = inferType(typeCell, hint, amount)
	return row
}

func isBlank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
