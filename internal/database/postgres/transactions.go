package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/jask/stmtsync/internal/database/repository"
)

const transactionColumns = `id, user_id, account_id, amount::text, direction, currency, date, raw_description,
 clean_description, merchant_name, category_id, category_source, notes, capture_method, capture_confidence,
 idempotency_key, installment_group_id, installment_index, installment_total, reconciled_into_id,
 created_at, updated_at`

func (s *Store) InsertTransaction(ctx context.Context, t repository.Transaction) error {
	_, err := s.Pool.Exec(ctx, `
	INSERT INTO transactions(id, user_id, account_id, amount, direction, currency, date, raw_description,
	 clean_description, merchant_name, category_id, category_source, notes, capture_method, capture_confidence,
	 idempotency_key, installment_group_id, installment_index, installment_total, reconciled_into_id)
	VALUES($1, $2, $3, $4::text::numeric, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`,
		t.ID, t.UserID, t.AccountID, t.Amount.String(), string(t.Direction), t.Currency, t.Date,
		t.RawDescription, t.CleanDescription, t.MerchantName, t.CategoryID, sourceArg(t.CategorySource), t.Notes,
		t.CaptureMethod, t.CaptureConfidence, t.IdempotencyKey, t.InstallmentGroupID, t.InstallmentIndex,
		t.InstallmentTotal, t.ReconciledIntoID)
	if err != nil {
		return mapInsertErr(err, "insert transaction")
	}
	return nil
}

// FindCandidates filters amount server-side with the same 0.0001 tolerance
// the sqlite store applies in memory.
func (s *Store) FindCandidates(ctx context.Context, accountID string, dir repository.Direction, amount decimal.Decimal, from, to time.Time) ([]repository.Transaction, error) {
	rows, err := s.Pool.Query(ctx, `
	SELECT `+transactionColumns+`
	FROM transactions
	WHERE account_id = $1 AND direction = $2 AND date BETWEEN $3 AND $4
	  AND reconciled_into_id IS NULL
	  AND abs(amount - $5::text::numeric) <= 0.0001
	ORDER BY date, id
	`, accountID, string(dir), from, to, amount.String())
	if err != nil {
		return nil, fmt.Errorf("find candidates: %w", err)
	}
	defer rows.Close()

	var out []repository.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) GetTransaction(ctx context.Context, userID, id string) (*repository.Transaction, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1 AND user_id = $2`, id, userID)
	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (s *Store) MarkReconciled(ctx context.Context, userID, id, intoID string) error {
	return markReconciled(ctx, s.Pool, userID, id, intoID)
}

func (s *Store) ApplyMerge(ctx context.Context, userID, keepID, reconciledID string, patch repository.MetadataPatch) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
	UPDATE transactions
	SET category_id = $1, category_source = $2, notes = $3, capture_method = $4, updated_at = now()
	WHERE id = $5 AND user_id = $6
	`, patch.CategoryID, sourceArg(patch.CategorySource), patch.Notes, patch.CaptureMethod, keepID, userID)
	if err != nil {
		return fmt.Errorf("apply merge metadata: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	if err := markReconciled(ctx, tx, userID, reconciledID, keepID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) SetCategory(ctx context.Context, userID, id, categoryID string, source repository.CategorySource) error {
	tag, err := s.Pool.Exec(ctx, `
	UPDATE transactions SET category_id = $1, category_source = $2, updated_at = now()
	WHERE id = $3 AND user_id = $4
	`, categoryID, sourceArg(source), id, userID)
	if err != nil {
		return fmt.Errorf("set category: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// querier is satisfied by both the pool and an open transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func markReconciled(ctx context.Context, q querier, userID, id, intoID string) error {
	tag, err := q.Exec(ctx, `
	UPDATE transactions SET reconciled_into_id = $1, updated_at = now()
	WHERE id = $2 AND user_id = $3 AND reconciled_into_id IS NULL
	`, intoID, id, userID)
	if err != nil {
		return fmt.Errorf("mark reconciled: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM transactions WHERE id = $1 AND user_id = $2)`, id, userID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return repository.ErrNotFound
	}
	return repository.ErrAlreadyReconciled
}

func scanTransaction(row pgx.Row) (repository.Transaction, error) {
	var t repository.Transaction
	var amount, direction string
	var source *string
	if err := row.Scan(&t.ID, &t.UserID, &t.AccountID, &amount, &direction, &t.Currency, &t.Date,
		&t.RawDescription, &t.CleanDescription, &t.MerchantName, &t.CategoryID, &source, &t.Notes,
		&t.CaptureMethod, &t.CaptureConfidence, &t.IdempotencyKey, &t.InstallmentGroupID,
		&t.InstallmentIndex, &t.InstallmentTotal, &t.ReconciledIntoID, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return repository.Transaction{}, err
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return repository.Transaction{}, fmt.Errorf("transaction %s amount: %w", t.ID, err)
	}
	t.Amount = d
	t.Direction = repository.Direction(direction)
	if source != nil {
		t.CategorySource = repository.CategorySource(*source)
	}
	return t, nil
}

func sourceArg(s repository.CategorySource) *string {
	if s == "" {
		return nil
	}
	v := string(s)
	return &v
}
