package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/opensource-finance/credbud/internal/domain"
)

// SavePolicyRule creates or replaces a policy rule.
func (r *SQLRepository) SavePolicyRule(ctx context.Context, rule *domain.PolicyRule) error {
	if rule.ID == "" {
		return fmt.Errorf("%w: rule id is required", ErrInvalidInput)
	}

	bands, err := marshalText(rule.Bands)
	if err != nil {
		return fmt.Errorf("failed to encode bands: %w", err)
	}

	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	query := `
		INSERT INTO policy_rules (
			id, name, description, expression, bands, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			bands = excluded.bands,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, rule.Name, rule.Description, rule.Expression, bands,
		boolToInt(rule.Enabled), rule.CreatedAt, rule.UpdatedAt,
	)
	return err
}

// ListPolicyRules returns every rule, enabled or not, ordered by name.
func (r *SQLRepository) ListPolicyRules(ctx context.Context) ([]*domain.PolicyRule, error) {
	query := `
		SELECT id, name, description, expression, bands, enabled, created_at, updated_at
		FROM policy_rules
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rules := make([]*domain.PolicyRule, 0)
	for rows.Next() {
		var rule domain.PolicyRule
		var description sql.NullString
		var bands string
		var enabled int

		if err := rows.Scan(
			&rule.ID, &rule.Name, &description, &rule.Expression, &bands, &enabled,
			&rule.CreatedAt, &rule.UpdatedAt,
		); err != nil {
			return nil, err
		}

		rule.Description = description.String
		rule.Enabled = enabled == 1
		if err := unmarshalText(bands, &rule.Bands); err != nil {
			return nil, fmt.Errorf("failed to parse bands for rule %s: %w", rule.ID, err)
		}
		rules = append(rules, &rule)
	}
	return rules, rows.Err()
}

// DeletePolicyRule removes a rule.
func (r *SQLRepository) DeletePolicyRule(ctx context.Context, ruleID string) error {
	query := `DELETE FROM policy_rules WHERE id = ?`
	result, err := r.db.ExecContext(ctx, r.rebind(query), ruleID)
	if err != nil {
		return err
	}
	return requireAffected(result)
}
