package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jask/stmtsync/internal/database/repository"
)

const ruleColumns = `id, user_id, pattern, category_id, match_count, created_at, updated_at`

func (s *Store) UpsertCategoryRule(ctx context.Context, userID, pattern, categoryID string) (repository.CategoryRule, error) {
	row := s.Pool.QueryRow(ctx, `
	INSERT INTO category_rules(id, user_id, pattern, category_id, match_count)
	VALUES($1, $2, $3, $4, 1)
	ON CONFLICT (user_id, pattern) DO UPDATE SET
	 match_count = CASE WHEN category_rules.category_id = EXCLUDED.category_id
	                    THEN category_rules.match_count + 1 ELSE 1 END,
	 category_id = EXCLUDED.category_id,
	 updated_at = now()
	RETURNING `+ruleColumns, uuid.NewString(), userID, pattern, categoryID)
	cr, err := scanRule(row)
	if err != nil {
		return repository.CategoryRule{}, fmt.Errorf("upsert category rule: %w", err)
	}
	return cr, nil
}

func (s *Store) FindCategoryRule(ctx context.Context, userID, pattern string) (*repository.CategoryRule, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+ruleColumns+` FROM category_rules WHERE user_id = $1 AND pattern = $2`, userID, pattern)
	cr, err := scanRule(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &cr, nil
}

func (s *Store) ListCategoryRules(ctx context.Context, userID string) ([]repository.CategoryRule, error) {
	rows, err := s.Pool.Query(ctx, `
	SELECT `+ruleColumns+` FROM category_rules WHERE user_id = $1
	ORDER BY match_count DESC, pattern
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []repository.CategoryRule
	for rows.Next() {
		cr, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cr)
	}
	return out, rows.Err()
}

func scanRule(row pgx.Row) (repository.CategoryRule, error) {
	var cr repository.CategoryRule
	err := row.Scan(&cr.ID, &cr.UserID, &cr.Pattern, &cr.CategoryID, &cr.MatchCount, &cr.CreatedAt, &cr.UpdatedAt)
	return cr, err
}
