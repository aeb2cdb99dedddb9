package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/credbud/internal/behavior"
	"github.com/opensource-finance/credbud/internal/domain"
)

// SaveStatement inserts a statement or updates its analysis state.
// An existing statement of another user is never overwritten.
func (r *SQLRepository) SaveStatement(ctx context.Context, userID string, stmt *domain.Statement) error {
	if err := requireUser(userID); err != nil {
		return err
	}
	if stmt.ID == "" {
		return fmt.Errorf("%w: statement id is required", ErrInvalidInput)
	}

	rows := stmt.Rows
	if rows == nil {
		rows = []behavior.TransactionRow{}
	}
	rowData, err := marshalText(rows)
	if err != nil {
		return fmt.Errorf("failed to encode statement rows: %w", err)
	}

	var analysis sql.NullString
	if stmt.Analysis != nil {
		encoded, err := marshalText(stmt.Analysis)
		if err != nil {
			return fmt.Errorf("failed to encode analysis: %w", err)
		}
		analysis = sql.NullString{String: encoded, Valid: true}
	}

	var analyzedAt sql.NullTime
	if stmt.AnalyzedAt != nil {
		analyzedAt = sql.NullTime{Time: stmt.AnalyzedAt.UTC(), Valid: true}
	}

	if stmt.CreatedAt.IsZero() {
		stmt.CreatedAt = time.Now().UTC()
	}
	stmt.UserID = userID
	stmt.RowCount = len(stmt.Rows)

	query := `
		INSERT INTO statements (
			id, user_id, file_name, format, status, row_count, row_data, analysis, error, created_at, analyzed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			row_count = excluded.row_count,
			row_data = excluded.row_data,
			analysis = excluded.analysis,
			error = excluded.error,
			analyzed_at = excluded.analyzed_at
		WHERE statements.user_id = excluded.user_id
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query),
		stmt.ID, userID, stmt.FileName, stmt.Format, string(stmt.Status), stmt.RowCount,
		rowData, analysis, stmt.Error, stmt.CreatedAt, analyzedAt,
	)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

// GetStatement retrieves a statement with its rows.
func (r *SQLRepository) GetStatement(ctx context.Context, userID string, stmtID string) (*domain.Statement, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}

	query := `
		SELECT id, user_id, file_name, format, status, row_count, row_data, analysis, error, created_at, analyzed_at
		FROM statements
		WHERE user_id = ? AND id = ?
	`

	var stmt domain.Statement
	var rowData string
	var status string
	var analysis, errMsg sql.NullString
	var analyzedAt sql.NullTime

	err := r.db.QueryRowContext(ctx, r.rebind(query), userID, stmtID).Scan(
		&stmt.ID, &stmt.UserID, &stmt.FileName, &stmt.Format, &status, &stmt.RowCount,
		&rowData, &analysis, &errMsg, &stmt.CreatedAt, &analyzedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	stmt.Status = domain.StatementStatus(status)
	stmt.Error = errMsg.String
	if err := unmarshalText(rowData, &stmt.Rows); err != nil {
		return nil, fmt.Errorf("failed to parse rows of statement %s: %w", stmt.ID, err)
	}
	if err := decodeAnalysis(&stmt, analysis, analyzedAt); err != nil {
		return nil, err
	}
	return &stmt, nil
}

// ListStatements returns the user's statements, newest first, without rows.
func (r *SQLRepository) ListStatements(ctx context.Context, userID string) ([]*domain.Statement, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}

	query := `
		SELECT id, user_id, file_name, format, status, row_count, analysis, error, created_at, analyzed_at
		FROM statements
		WHERE user_id = ?
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	statements := make([]*domain.Statement, 0)
	for rows.Next() {
		var stmt domain.Statement
		var status string
		var analysis, errMsg sql.NullString
		var analyzedAt sql.NullTime

		if err := rows.Scan(
			&stmt.ID, &stmt.UserID, &stmt.FileName, &stmt.Format, &status, &stmt.RowCount,
			&analysis, &errMsg, &stmt.CreatedAt, &analyzedAt,
		); err != nil {
			return nil, err
		}

		stmt.Status = domain.StatementStatus(status)
		stmt.Error = errMsg.String
		if err := decodeAnalysis(&stmt, analysis, analyzedAt); err != nil {
			return nil, err
		}
		statements = append(statements, &stmt)
	}
	return statements, rows.Err()
}

func decodeAnalysis(stmt *domain.Statement, analysis sql.NullString, analyzedAt sql.NullTime) error {
	if analysis.Valid && analysis.String != "" {
		var report behavior.Report
		if err := unmarshalText(analysis.String, &report); err != nil {
			return fmt.Errorf("failed to parse analysis of statement %s: %w", stmt.ID, err)
		}
		stmt.Analysis = &report
	}
	if analyzedAt.Valid {
		t := analyzedAt.Time
		stmt.AnalyzedAt = &t
	}
	return nil
}
