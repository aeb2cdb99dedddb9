package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
)

func parseCSV(data []byte) (*Result, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, &FormatError{Format: FormatCSV, Reason: "cannot read header", Err: err}
	}

	var records [][]string
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &FormatError{Format: FormatCSV, Reason: "malformed record", Err: err}
		}
		records = append(records, rec)
	}

	return rowsFromTable(FormatCSV, header, records)
}
