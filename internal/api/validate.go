package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/opensource-finance/credbud/internal/ingest"
	"github.com/opensource-finance/credbud/internal/repository"
	"github.com/opensource-finance/credbud/internal/velocity"
	"github.com/xeipuuv/gojsonschema"
)

const maxJSONBody = 1 << 20

var (
	loanSchema = gojsonschema.NewStringLoader(`{
	"type": "object",
	"required": ["amountRequested", "numDebts", "totalDebtAmount", "monthlyEmis", "totalAssets", "monthlyIncome"],
	"properties": {
		"amountRequested": {"type": "number", "exclusiveMinimum": 0},
		"numDebts":        {"type": "integer", "minimum": 0},
		"totalDebtAmount": {"type": "number", "minimum": 0},
		"monthlyEmis":     {"type": "number", "minimum": 0},
		"totalAssets":     {"type": "number", "minimum": 0},
		"monthlyIncome":   {"type": "number", "minimum": 0},
		"purpose":         {"type": "string", "maxLength": 200},
		"termMonths":      {"type": "integer", "minimum": 0, "maximum": 480}
	}
}`)

	userSchema = gojsonschema.NewStringLoader(`{
	"type": "object",
	"required": ["email"],
	"properties": {
		"email":    {"type": "string", "format": "email", "maxLength": 254},
		"fullName": {"type": "string", "maxLength": 200},
		"phone":    {"type": "string", "maxLength": 32},
		"cityTier": {"type": "integer", "minimum": 0, "maximum": 3}
	}
}`)

	policySchema = gojsonschema.NewStringLoader(`{
	"type": "object",
	"required": ["id", "expression"],
	"properties": {
		"id":          {"type": "string", "pattern": "^[a-z0-9][a-z0-9-]{0,63}$"},
		"name":        {"type": "string"},
		"description": {"type": "string"},
		"expression":  {"type": "string", "minLength": 1},
		"enabled":     {"type": "boolean"},
		"bands": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["outcome"],
				"properties": {
					"lowerLimit": {"type": ["number", "null"]},
					"upperLimit": {"type": ["number", "null"]},
					"outcome":    {"enum": [".pass", ".review", ".fail"]},
					"reason":     {"type": "string"}
				}
			}
		}
	}
}`)
)

// ValidationError lists the schema violations of a request body.
type ValidationError struct {
	Details []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Details, "; ")
}

// decodeValid reads a JSON body, checks it against schema and decodes it into dst.
func decodeValid(r *http.Request, schema gojsonschema.JSONLoader, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxJSONBody+1))
	if err != nil {
		return fmt.Errorf("failed to read body: %w", err)
	}
	if len(body) > maxJSONBody {
		return &ValidationError{Details: []string{"request body too large"}}
	}
	if !json.Valid(body) {
		return &ValidationError{Details: []string{"invalid JSON request body"}}
	}

	result, err := gojsonschema.Validate(schema, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return &ValidationError{Details: []string{err.Error()}}
	}
	if !result.Valid() {
		details := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			details[i] = desc.String()
		}
		return &ValidationError{Details: details}
	}

	return json.Unmarshal(body, dst)
}

type errorBody struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError maps domain errors to HTTP status codes.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *ValidationError
	var ferr *ingest.FormatError

	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation failed", Details: verr.Details})
	case errors.As(err, &ferr):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: ferr.Error()})
	case errors.Is(err, ingest.ErrUnsupportedFormat):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	case errors.Is(err, repository.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	case errors.Is(err, repository.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	case errors.Is(err, repository.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody{Error: "already exists"})
	case errors.Is(err, ingest.ErrTooLarge):
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: err.Error()})
	case errors.Is(err, velocity.ErrLimitExceeded):
		writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "too many applications, try again later"})
	default:
		slog.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"trace_id", GetTraceID(r.Context()),
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal server error"})
	}
}
