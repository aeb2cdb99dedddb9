// Package ingest turns uploaded bank statements into transaction rows.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/opensource-finance/credbud/internal/behavior"
)

// DefaultMaxBytes is the upload size limit applied when none is configured.
const DefaultMaxBytes int64 = 5 << 20

// Format identifies the statement file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatOFX  Format = "ofx"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrTooLarge          = errors.New("file exceeds size limit")
)

// FormatError reports content that could not be turned into rows at all.
type FormatError struct {
	Format Format
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	msg := fmt.Sprintf("invalid %s statement: %s", e.Format, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// Result is a parsed statement.
type Result struct {
	Format  Format                    `json:"format"`
	Rows    []behavior.TransactionRow `json:"rows"`
	Skipped int                       `json:"skipped"`
}

// Parser reads statements up to a size limit.
type Parser struct {
	maxBytes int64
}

// NewParser creates a parser. A non-positive limit uses DefaultMaxBytes.
func NewParser(maxBytes int64) *Parser {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Parser{maxBytes: maxBytes}
}

// DetectFormat picks the format from the file extension.
func DetectFormat(fileName string) (Format, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	case ".ofx", ".qfx":
		return FormatOFX, nil
	case ".xls":
		return "", fmt.Errorf("%w: legacy .xls workbooks must be saved as .xlsx", ErrUnsupportedFormat)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(fileName))
	}
}

// Parse reads r fully and dispatches on the extension of fileName.
func (p *Parser) Parse(ctx context.Context, fileName string, r io.Reader) (*Result, error) {
	format, err := DetectFormat(fileName)
	if err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(r, p.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read statement: %w", err)
	}
	if int64(len(data)) > p.maxBytes {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, p.maxBytes)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return ParseBytes(format, data)
}

// ParseBytes parses already-loaded content of a known format.
func ParseBytes(format Format, data []byte) (*Result, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &FormatError{Format: format, Reason: "file is empty"}
	}

	var res *Result
	var err error
	switch format {
	case FormatCSV:
		res, err = parseCSV(data)
	case FormatXLSX:
		res, err = parseXLSX(data)
	case FormatOFX:
		res, err = parseOFX(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, err
	}

	res.Format = format
	slog.Debug("statement parsed",
		"format", format,
		"rows", len(res.Rows),
		"skipped", res.Skipped,
	)
	return res, nil
}
