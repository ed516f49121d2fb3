package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const snapshotColumns = `id, user_id, account_id, period_from, period_to, statement_type, currency, source_filename,
 previous_balance, final_balance, total_credits, total_debits, purchases_and_charges, interest_charged,
 credit_limit, available_credit, interest_rate, late_interest_rate, total_payment_due, minimum_payment,
 payment_due_date, transaction_count, imported_count, skipped_count, created_at, updated_at`

// SnapshotRepo handles statement snapshots.
type SnapshotRepo struct{ db *sql.DB }

func NewSnapshotRepo(db *sql.DB) *SnapshotRepo { return &SnapshotRepo{db: db} }

// LatestSnapshot returns the most recent snapshot of the account whose period
// starts before the given date, or nil when there is none.
func (r *SnapshotRepo) LatestSnapshot(ctx context.Context, accountID string, before time.Time) (*StatementSnapshot, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT `+snapshotColumns+`
	FROM statement_snapshots
	WHERE account_id = ? AND period_from < ?
	ORDER BY period_to DESC, period_from DESC
	LIMIT 1
	`, accountID, before.Format(time.DateOnly))
	s, err := scanSnapshot(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}
	return &s, nil
}

// UpsertSnapshot creates the period row or overwrites it in place on re-import.
func (r *SnapshotRepo) UpsertSnapshot(ctx context.Context, s StatementSnapshot) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO statement_snapshots(`+snapshotColumns+`)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	ON CONFLICT(account_id, period_from, period_to) DO UPDATE SET
	 statement_type=excluded.statement_type,
	 currency=excluded.currency,
	 source_filename=excluded.source_filename,
	 previous_balance=excluded.previous_balance,
	 final_balance=excluded.final_balance,
	 total_credits=excluded.total_credits,
	 total_debits=excluded.total_debits,
	 purchases_and_charges=excluded.purchases_and_charges,
	 interest_charged=excluded.interest_charged,
	 credit_limit=excluded.credit_limit,
	 available_credit=excluded.available_credit,
	 interest_rate=excluded.interest_rate,
	 late_interest_rate=excluded.late_interest_rate,
	 total_payment_due=excluded.total_payment_due,
	 minimum_payment=excluded.minimum_payment,
	 payment_due_date=excluded.payment_due_date,
	 transaction_count=excluded.transaction_count,
	 imported_count=excluded.imported_count,
	 skipped_count=excluded.skipped_count,
	 updated_at=CURRENT_TIMESTAMP
	`,
		s.ID, s.UserID, s.AccountID, s.PeriodFrom.Format(time.DateOnly), s.PeriodTo.Format(time.DateOnly),
		s.StatementType, s.Currency, s.SourceFilename,
		s.PreviousBalance, s.FinalBalance, s.TotalCredits, s.TotalDebits, s.PurchasesAndCharges, s.InterestCharged,
		s.CreditLimit, s.AvailableCredit, s.InterestRate, s.LateInterestRate, s.TotalPaymentDue, s.MinimumPayment,
		nullableDate(s.PaymentDueDate), s.TransactionCount, s.ImportedCount, s.SkippedCount)
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}

func scanSnapshot(row scanner) (StatementSnapshot, error) {
	var s StatementSnapshot
	var from, to string
	var due sql.NullString
	var prev, final, credits, debits, purchases, interest decimal.NullDecimal
	var limit, available, rate, lateRate, paymentDue, minimum decimal.NullDecimal
	if err := row.Scan(&s.ID, &s.UserID, &s.AccountID, &from, &to, &s.StatementType, &s.Currency, &s.SourceFilename,
		&prev, &final, &credits, &debits, &purchases, &interest,
		&limit, &available, &rate, &lateRate, &paymentDue, &minimum,
		&due, &s.TransactionCount, &s.ImportedCount, &s.SkippedCount, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return StatementSnapshot{}, err
	}
	var err error
	if s.PeriodFrom, err = time.Parse(time.DateOnly, from); err != nil {
		return StatementSnapshot{}, err
	}
	if s.PeriodTo, err = time.Parse(time.DateOnly, to); err != nil {
		return StatementSnapshot{}, err
	}
	if due.Valid {
		d, err := time.Parse(time.DateOnly, due.String)
		if err != nil {
			return StatementSnapshot{}, err
		}
		s.PaymentDueDate = &d
	}
	s.PreviousBalance = nullDecimal(prev)
	s.FinalBalance = nullDecimal(final)
	s.TotalCredits = nullDecimal(credits)
	s.TotalDebits = nullDecimal(debits)
	s.PurchasesAndCharges = nullDecimal(purchases)
	s.InterestCharged = nullDecimal(interest)
	s.CreditLimit = nullDecimal(limit)
	s.AvailableCredit = nullDecimal(available)
	s.InterestRate = nullDecimal(rate)
	s.LateInterestRate = nullDecimal(lateRate)
	s.TotalPaymentDue = nullDecimal(paymentDue)
	s.MinimumPayment = nullDecimal(minimum)
	return s, nil
}

func nullDecimal(nd decimal.NullDecimal) *decimal.Decimal {
	if !nd.Valid {
		return nil
	}
	d := nd.Decimal
	return &d
}

func nullableDate(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Format(time.DateOnly)
}
