package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// CategoryRuleRepo stores learned merchant pattern rules.
type CategoryRuleRepo struct{ db *sql.DB }

func NewCategoryRuleRepo(db *sql.DB) *CategoryRuleRepo { return &CategoryRuleRepo{db: db} }

// UpsertCategoryRule records a confirmation of pattern -> categoryID. Repeated
// confirmations of the same mapping increment match_count; a different
// category replaces the mapping and restarts the count.
func (r *CategoryRuleRepo) UpsertCategoryRule(ctx context.Context, userID, pattern, categoryID string) (CategoryRule, error) {
	row := r.db.QueryRowContext(ctx, `
	INSERT INTO category_rules(id, user_id, pattern, category_id, match_count, created_at, updated_at)
	VALUES(?, ?, ?, ?, 1, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	ON CONFLICT(user_id, pattern) DO UPDATE SET
	 match_count = CASE WHEN category_rules.category_id = excluded.category_id
	                    THEN category_rules.match_count + 1 ELSE 1 END,
	 category_id = excluded.category_id,
	 updated_at = CURRENT_TIMESTAMP
	RETURNING id, user_id, pattern, category_id, match_count, created_at, updated_at
	`, uuid.NewString(), userID, pattern, categoryID)
	var cr CategoryRule
	if err := row.Scan(&cr.ID, &cr.UserID, &cr.Pattern, &cr.CategoryID, &cr.MatchCount, &cr.CreatedAt, &cr.UpdatedAt); err != nil {
		return CategoryRule{}, fmt.Errorf("upsert category rule: %w", err)
	}
	return cr, nil
}

func (r *CategoryRuleRepo) FindCategoryRule(ctx context.Context, userID, pattern string) (*CategoryRule, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT id, user_id, pattern, category_id, match_count, created_at, updated_at
	FROM category_rules WHERE user_id = ? AND pattern = ?
	`, userID, pattern)
	var cr CategoryRule
	if err := row.Scan(&cr.ID, &cr.UserID, &cr.Pattern, &cr.CategoryID, &cr.MatchCount, &cr.CreatedAt, &cr.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &cr, nil
}

// ListCategoryRules returns the user's rules, most confirmed first.
func (r *CategoryRuleRepo) ListCategoryRules(ctx context.Context, userID string) ([]CategoryRule, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, user_id, pattern, category_id, match_count, created_at, updated_at
	FROM category_rules WHERE user_id = ?
	ORDER BY match_count DESC, pattern
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CategoryRule
	for rows.Next() {
		var cr CategoryRule
		if err := rows.Scan(&cr.ID, &cr.UserID, &cr.Pattern, &cr.CategoryID, &cr.MatchCount, &cr.CreatedAt, &cr.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, cr)
	}
	return out, rows.Err()
}
