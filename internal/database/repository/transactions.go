package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// amountTolerance is the largest absolute difference still treated as the
// same amount.
var amountTolerance = decimal.New(1, -4)

const transactionColumns = `id, user_id, account_id, amount, direction, currency, date, raw_description,
 clean_description, merchant_name, category_id, category_source, notes, capture_method, capture_confidence,
 idempotency_key, installment_group_id, installment_index, installment_total, reconciled_into_id,
 created_at, updated_at`

// TransactionRepo handles transactions.
type TransactionRepo struct {
	db *sql.DB
}

func NewTransactionRepo(db *sql.DB) *TransactionRepo { return &TransactionRepo{db: db} }

// InsertTransaction stores t. A collision on (user_id, idempotency_key)
// yields ErrDuplicate.
func (r *TransactionRepo) InsertTransaction(ctx context.Context, t Transaction) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO transactions(`+transactionColumns+`)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	`,
		t.ID, t.UserID, t.AccountID, t.Amount.String(), string(t.Direction), t.Currency, t.Date.Format(time.DateOnly),
		t.RawDescription, t.CleanDescription, t.MerchantName, t.CategoryID, nullableSource(t.CategorySource), t.Notes,
		t.CaptureMethod, t.CaptureConfidence, t.IdempotencyKey, t.InstallmentGroupID, t.InstallmentIndex,
		t.InstallmentTotal, t.ReconciledIntoID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// FindCandidates lists unreconciled records of the account with the given
// direction and amount whose date falls inside [from, to].
func (r *TransactionRepo) FindCandidates(ctx context.Context, accountID string, dir Direction, amount decimal.Decimal, from, to time.Time) ([]Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT `+transactionColumns+`
	FROM transactions
	WHERE account_id = ? AND direction = ? AND date >= ? AND date <= ? AND reconciled_into_id IS NULL
	ORDER BY date, id
	`, accountID, string(dir), from.Format(time.DateOnly), to.Format(time.DateOnly))
	if err != nil {
		return nil, fmt.Errorf("find candidates: %w", err)
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		if t.Amount.Sub(amount).Abs().GreaterThan(amountTolerance) {
			continue
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *TransactionRepo) GetTransaction(ctx context.Context, userID, id string) (*Transaction, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ? AND user_id = ?`, id, userID)
	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// ListByAccount returns the account's transactions, newest first.
func (r *TransactionRepo) ListByAccount(ctx context.Context, userID, accountID string) ([]Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT `+transactionColumns+`
	FROM transactions WHERE user_id = ? AND account_id = ?
	ORDER BY date DESC, created_at DESC, id
	`, userID, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// MarkReconciled points id at intoID. A record can only be reconciled once.
func (r *TransactionRepo) MarkReconciled(ctx context.Context, userID, id, intoID string) error {
	return markReconciled(ctx, r.db, userID, id, intoID)
}

// ApplyMerge writes the merged metadata onto keepID and retires reconciledID
// in a single transaction.
func (r *TransactionRepo) ApplyMerge(ctx context.Context, userID, keepID, reconciledID string, patch MetadataPatch) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
	UPDATE transactions
	SET category_id = ?, category_source = ?, notes = ?, capture_method = ?, updated_at = CURRENT_TIMESTAMP
	WHERE id = ? AND user_id = ?
	`, patch.CategoryID, nullableSource(patch.CategorySource), patch.Notes, patch.CaptureMethod, keepID, userID)
	if err != nil {
		return fmt.Errorf("apply merge metadata: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if err := markReconciled(ctx, tx, userID, reconciledID, keepID); err != nil {
		return err
	}
	return tx.Commit()
}

// SetCategory assigns categoryID to the user's transaction id.
func (r *TransactionRepo) SetCategory(ctx context.Context, userID, id, categoryID string, source CategorySource) error {
	res, err := r.db.ExecContext(ctx, `
	UPDATE transactions SET category_id = ?, category_source = ?, updated_at = CURRENT_TIMESTAMP
	WHERE id = ? AND user_id = ?
	`, categoryID, nullableSource(source), id, userID)
	if err != nil {
		return fmt.Errorf("set category: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func markReconciled(ctx context.Context, db execQuerier, userID, id, intoID string) error {
	res, err := db.ExecContext(ctx, `
	UPDATE transactions SET reconciled_into_id = ?, updated_at = CURRENT_TIMESTAMP
	WHERE id = ? AND user_id = ? AND reconciled_into_id IS NULL
	`, intoID, id, userID)
	if err != nil {
		return fmt.Errorf("mark reconciled: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	var exists int
	err = db.QueryRowContext(ctx, `SELECT 1 FROM transactions WHERE id = ? AND user_id = ?`, id, userID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return ErrAlreadyReconciled
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row scanner) (Transaction, error) {
	var t Transaction
	var direction, date string
	var clean, merchant, category, source, notes, idem, group, reconciled sql.NullString
	var confidence sql.NullFloat64
	var instIdx, instTotal sql.NullInt64
	if err := row.Scan(&t.ID, &t.UserID, &t.AccountID, &t.Amount, &direction, &t.Currency, &date,
		&t.RawDescription, &clean, &merchant, &category, &source, &notes, &t.CaptureMethod, &confidence,
		&idem, &group, &instIdx, &instTotal, &reconciled, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return Transaction{}, err
	}
	d, err := time.Parse(time.DateOnly, date)
	if err != nil {
		return Transaction{}, fmt.Errorf("transaction %s date: %w", t.ID, err)
	}
	t.Date = d
	t.Direction = Direction(direction)
	t.CleanDescription = nullString(clean)
	t.MerchantName = nullString(merchant)
	t.CategoryID = nullString(category)
	if source.Valid {
		t.CategorySource = CategorySource(source.String)
	}
	t.Notes = nullString(notes)
	t.IdempotencyKey = nullString(idem)
	t.InstallmentGroupID = nullString(group)
	t.ReconciledIntoID = nullString(reconciled)
	if confidence.Valid {
		t.CaptureConfidence = &confidence.Float64
	}
	t.InstallmentIndex = nullInt(instIdx)
	t.InstallmentTotal = nullInt(instTotal)
	return t, nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullInt(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	v := int(ni.Int64)
	return &v
}

func nullableSource(s CategorySource) interface{} {
	if s == "" {
		return nil
	}
	return string(s)
}
