package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/credbud/internal/behavior"
	"github.com/opensource-finance/credbud/internal/domain"
)

// UpsertBehavior replaces the user's behaviour summary.
func (r *SQLRepository) UpsertBehavior(ctx context.Context, userID string, fb *domain.FinancialBehavior) error {
	if err := requireUser(userID); err != nil {
		return err
	}

	scores, err := marshalText(fb.CategoryScores)
	if err != nil {
		return fmt.Errorf("failed to encode category scores: %w", err)
	}
	if fb.ID == "" {
		fb.ID = uuid.New().String()
	}
	fb.UserID = userID
	fb.UpdatedAt = time.Now().UTC()

	query := `
		INSERT INTO financial_behavior (
			user_id, id, statement_id, total_score, rating, category_scores,
			liquidity_resilience_days, stable_inflow, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			statement_id = excluded.statement_id,
			total_score = excluded.total_score,
			rating = excluded.rating,
			category_scores = excluded.category_scores,
			liquidity_resilience_days = excluded.liquidity_resilience_days,
			stable_inflow = excluded.stable_inflow,
			updated_at = excluded.updated_at
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		userID, fb.ID, fb.StatementID, fb.TotalScore, string(fb.Rating), scores,
		fb.LiquidityResilienceDays, boolToInt(fb.StableInflow), fb.UpdatedAt,
	)
	return err
}

// GetBehavior retrieves the user's behaviour summary.
func (r *SQLRepository) GetBehavior(ctx context.Context, userID string) (*domain.FinancialBehavior, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}

	query := `
		SELECT id, user_id, statement_id, total_score, rating, category_scores,
			   liquidity_resilience_days, stable_inflow, updated_at
		FROM financial_behavior
		WHERE user_id = ?
	`

	var fb domain.FinancialBehavior
	var statementID sql.NullString
	var rating, scores string
	var stable int

	err := r.db.QueryRowContext(ctx, r.rebind(query), userID).Scan(
		&fb.ID, &fb.UserID, &statementID, &fb.TotalScore, &rating, &scores,
		&fb.LiquidityResilienceDays, &stable, &fb.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	fb.StatementID = statementID.String
	fb.Rating = behavior.Rating(rating)
	fb.StableInflow = stable == 1
	if err := unmarshalText(scores, &fb.CategoryScores); err != nil {
		return nil, fmt.Errorf("failed to parse category scores: %w", err)
	}
	return &fb, nil
}
