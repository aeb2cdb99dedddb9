package ingest

import (
	"bytes"

	"github.com/xuri/excelize/v2"
)

// parseXLSX reads the first worksheet of a workbook.
func parseXLSX(data []byte) (*Result, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, &FormatError{Format: FormatXLSX, Reason: "cannot open workbook", Err: err}
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, &FormatError{Format: FormatXLSX, Reason: "workbook has no sheets"}
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, &FormatError{Format: FormatXLSX, Reason: "cannot read sheet " + sheet, Err: err}
	}

	// Skip leading blank rows before the header.
	for len(rows) > 0 && isBlank(rows[0]) {
		rows = rows[1:]
	}
	if len(rows) == 0 {
		return nil, &FormatError{Format: FormatXLSX, Reason: "sheet " + sheet + " is empty"}
	}

	return rowsFromTable(FormatXLSX, rows[0], rows[1:])
}
