package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/opensource-finance/credbud/internal/domain"
)

const loanColumns = `
	id, user_id, amount_requested, num_debts, total_debt_amount, monthly_emis,
	total_assets, monthly_income, purpose, term_months, ml_score, acceptance_rate,
	status, feedback, created_at, updated_at`

// SaveLoan stores a new application owned by userID.
func (r *SQLRepository) SaveLoan(ctx context.Context, userID string, app *domain.LoanApplication) error {
	if err := requireUser(userID); err != nil {
		return err
	}
	if app.ID == "" {
		return fmt.Errorf("%w: loan id is required", ErrInvalidInput)
	}

	feedback, err := marshalText(app.Feedback)
	if err != nil {
		return fmt.Errorf("failed to encode feedback: %w", err)
	}

	now := time.Now().UTC()
	if app.CreatedAt.IsZero() {
		app.CreatedAt = now
	}
	app.UpdatedAt = now
	app.UserID = userID

	query := `
		INSERT INTO loan_applications (` + loanColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		app.ID, userID, app.AmountRequested, app.NumDebts, app.TotalDebtAmount, app.MonthlyEMIs,
		app.TotalAssets, app.MonthlyIncome, app.Purpose, app.TermMonths, app.MLScore, app.AcceptanceRate,
		string(app.Status), feedback, app.CreatedAt, app.UpdatedAt,
	)
	return r.mapWriteError(err)
}

// UpdateLoan rewrites an application. Only the owner can update it.
func (r *SQLRepository) UpdateLoan(ctx context.Context, userID string, app *domain.LoanApplication) error {
	if err := requireUser(userID); err != nil {
		return err
	}

	feedback, err := marshalText(app.Feedback)
	if err != nil {
		return fmt.Errorf("failed to encode feedback: %w", err)
	}
	app.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE loan_applications SET
			amount_requested = ?, num_debts = ?, total_debt_amount = ?, monthly_emis = ?,
			total_assets = ?, monthly_income = ?, purpose = ?, term_months = ?,
			ml_score = ?, acceptance_rate = ?, status = ?, feedback = ?, updated_at = ?
		WHERE user_id = ? AND id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query),
		app.AmountRequested, app.NumDebts, app.TotalDebtAmount, app.MonthlyEMIs,
		app.TotalAssets, app.MonthlyIncome, app.Purpose, app.TermMonths,
		app.MLScore, app.AcceptanceRate, string(app.Status), feedback, app.UpdatedAt,
		userID, app.ID,
	)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

// GetLoan retrieves an application owned by userID.
func (r *SQLRepository) GetLoan(ctx context.Context, userID string, loanID string) (*domain.LoanApplication, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}

	query := `SELECT ` + loanColumns + ` FROM loan_applications WHERE user_id = ? AND id = ?`
	return scanLoan(r.db.QueryRowContext(ctx, r.rebind(query), userID, loanID))
}

// ListLoans returns the user's applications, newest first.
func (r *SQLRepository) ListLoans(ctx context.Context, userID string, filter domain.LoanFilter) ([]*domain.LoanApplication, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}

	query := `SELECT ` + loanColumns + ` FROM loan_applications WHERE user_id = ?`
	args := []any{userID}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	loans := make([]*domain.LoanApplication, 0)
	for rows.Next() {
		app, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		loans = append(loans, app)
	}
	return loans, rows.Err()
}

// DeleteLoan removes an application owned by userID.
func (r *SQLRepository) DeleteLoan(ctx context.Context, userID string, loanID string) error {
	if err := requireUser(userID); err != nil {
		return err
	}

	query := `DELETE FROM loan_applications WHERE user_id = ? AND id = ?`
	result, err := r.db.ExecContext(ctx, r.rebind(query), userID, loanID)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

// LoanStatistics counts the user's applications per status.
// ApprovalRate is a percentage rounded to two decimals.
func (r *SQLRepository) LoanStatistics(ctx context.Context, userID string) (*domain.LoanStats, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}

	query := `
		SELECT status, COUNT(*)
		FROM loan_applications
		WHERE user_id = ?
		GROUP BY status
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := &domain.LoanStats{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats.Total += count
		switch domain.LoanStatus(status) {
		case domain.LoanPending:
			stats.Pending = count
		case domain.LoanApproved:
			stats.Approved = count
		case domain.LoanRejected:
			stats.Rejected = count
		case domain.LoanUnderReview:
			stats.UnderReview = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if stats.Total > 0 {
		rate := float64(stats.Approved) / float64(stats.Total) * 100
		stats.ApprovalRate = math.Round(rate*100) / 100
	}
	return stats, nil
}

// CountLoansSince counts applications the user created at or after since.
func (r *SQLRepository) CountLoansSince(ctx context.Context, userID string, since time.Time) (int, error) {
	if err := requireUser(userID); err != nil {
		return 0, err
	}

	query := `SELECT COUNT(*) FROM loan_applications WHERE user_id = ? AND created_at >= ?`
	var count int
	if err := r.db.QueryRowContext(ctx, r.rebind(query), userID, since.UTC()).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func scanLoan(row rowScanner) (*domain.LoanApplication, error) {
	var app domain.LoanApplication
	var purpose sql.NullString
	var status, feedback string

	err := row.Scan(
		&app.ID, &app.UserID, &app.AmountRequested, &app.NumDebts, &app.TotalDebtAmount, &app.MonthlyEMIs,
		&app.TotalAssets, &app.MonthlyIncome, &purpose, &app.TermMonths, &app.MLScore, &app.AcceptanceRate,
		&status, &feedback, &app.CreatedAt, &app.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	app.Purpose = purpose.String
	app.Status = domain.LoanStatus(status)
	if err := unmarshalText(feedback, &app.Feedback); err != nil {
		return nil, fmt.Errorf("failed to parse feedback for loan %s: %w", app.ID, err)
	}
	return &app, nil
}

func requireAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
