package ingest

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/aclindsa/ofxgo"
	"github.com/opensource-finance/credbud/internal/behavior"
)

var (
	severityFix = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	// SGML exports sometimes drop the closing bracket of a bare tag line.
	openTagFix = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

func preprocessOFX(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")
	content = severityFix.ReplaceAllStringFunc(content, strings.ToUpper)
	return openTagFix.ReplaceAllString(content, "$1>")
}

func parseOFX(data []byte) (*Result, error) {
	resp, err := ofxgo.ParseResponse(strings.NewReader(preprocessOFX(string(data))))
	if err != nil {
		return nil, &FormatError{Format: FormatOFX, Reason: "cannot parse response", Err: err}
	}

	res := &Result{}
	var statements int

	for _, msg := range resp.Bank {
		stmt, ok := msg.(*ofxgo.StatementResponse)
		if !ok || stmt.BankTranList == nil {
			continue
		}
		statements++
		for _, tx := range stmt.BankTranList.Transactions {
			res.Rows = append(res.Rows, convertOFX(tx))
		}
	}

	for _, msg := range resp.CreditCard {
		stmt, ok := msg.(*ofxgo.CCStatementResponse)
		if !ok || stmt.BankTranList == nil {
			continue
		}
		statements++
		for _, tx := range stmt.BankTranList.Transactions {
			res.Rows = append(res.Rows, convertOFX(tx))
		}
	}

	if statements == 0 {
		return nil, &FormatError{Format: FormatOFX, Reason: "no bank or credit card statements"}
	}

	slog.Debug("ofx statements read", "statements", statements, "transactions", len(res.Rows))
	return res, nil
}

// convertOFX maps one OFX transaction. OFX amounts are negative for money out.
func convertOFX(tx ofxgo.Transaction) behavior.TransactionRow {
	amount, _ := tx.TrnAmt.Float64()

	row := behavior.TransactionRow{
		Description: ofxDescription(tx),
		Amount:      amount,
		Type:        behavior.TxCredit,
	}
	if amount < 0 {
		row.Type = behavior.TxDebit
	}

	if !tx.DtPosted.IsZero() {
		posted := tx.DtPosted.Time
		row.Date = &posted
	}
	return row
}

func ofxDescription(tx ofxgo.Transaction) string {
	if tx.Payee != nil && tx.Payee.Name != "" {
		return strings.TrimSpace(string(tx.Payee.Name))
	}
	name := strings.TrimSpace(string(tx.Name))
	memo := strings.TrimSpace(string(tx.Memo))
	if name == "" {
		return memo
	}
	if memo != "" && memo != name {
		return name + " " + memo
	}
	return name
}
