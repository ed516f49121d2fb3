package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/jask/stmtsync/internal/database/repository"
)

const snapshotColumns = `id, user_id, account_id, period_from, period_to, statement_type, currency, source_filename,
 previous_balance::text, final_balance::text, total_credits::text, total_debits::text, purchases_and_charges::text,
 interest_charged::text, credit_limit::text, available_credit::text, interest_rate::text, late_interest_rate::text,
 total_payment_due::text, minimum_payment::text, payment_due_date, transaction_count, imported_count, skipped_count,
 created_at, updated_at`

func (s *Store) LatestSnapshot(ctx context.Context, accountID string, before time.Time) (*repository.StatementSnapshot, error) {
	row := s.Pool.QueryRow(ctx, `
	SELECT `+snapshotColumns+`
	FROM statement_snapshots
	WHERE account_id = $1 AND period_from < $2
	ORDER BY period_to DESC, period_from DESC
	LIMIT 1
	`, accountID, before)
	snap, err := scanSnapshot(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}
	return &snap, nil
}

func (s *Store) UpsertSnapshot(ctx context.Context, snap repository.StatementSnapshot) error {
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	_, err := s.Pool.Exec(ctx, `
	INSERT INTO statement_snapshots(id, user_id, account_id, period_from, period_to, statement_type, currency,
	 source_filename, previous_balance, final_balance, total_credits, total_debits, purchases_and_charges,
	 interest_charged, credit_limit, available_credit, interest_rate, late_interest_rate, total_payment_due,
	 minimum_payment, payment_due_date, transaction_count, imported_count, skipped_count)
	VALUES($1, $2, $3, $4, $5, $6, $7, $8,
	 $9::text::numeric, $10::text::numeric, $11::text::numeric, $12::text::numeric, $13::text::numeric,
	 $14::text::numeric, $15::text::numeric, $16::text::numeric, $17::text::numeric, $18::text::numeric,
	 $19::text::numeric, $20::text::numeric, $21, $22, $23, $24)
	ON CONFLICT (account_id, period_from, period_to) DO UPDATE SET
	 statement_type = EXCLUDED.statement_type,
	 currency = EXCLUDED.currency,
	 source_filename = EXCLUDED.source_filename,
	 previous_balance = EXCLUDED.previous_balance,
	 final_balance = EXCLUDED.final_balance,
	 total_credits = EXCLUDED.total_credits,
	 total_debits = EXCLUDED.total_debits,
	 purchases_and_charges = EXCLUDED.purchases_and_charges,
	 interest_charged = EXCLUDED.interest_charged,
	 credit_limit = EXCLUDED.credit_limit,
	 available_credit = EXCLUDED.available_credit,
	 interest_rate = EXCLUDED.interest_rate,
	 late_interest_rate = EXCLUDED.late_interest_rate,
	 total_payment_due = EXCLUDED.total_payment_due,
	 minimum_payment = EXCLUDED.minimum_payment,
	 payment_due_date = EXCLUDED.payment_due_date,
	 transaction_count = EXCLUDED.transaction_count,
	 imported_count = EXCLUDED.imported_count,
	 skipped_count = EXCLUDED.skipped_count,
	 updated_at = now()
	`,
		snap.ID, snap.UserID, snap.AccountID, snap.PeriodFrom, snap.PeriodTo, snap.StatementType, snap.Currency,
		snap.SourceFilename,
		numericArg(snap.PreviousBalance), numericArg(snap.FinalBalance), numericArg(snap.TotalCredits),
		numericArg(snap.TotalDebits), numericArg(snap.PurchasesAndCharges), numericArg(snap.InterestCharged),
		numericArg(snap.CreditLimit), numericArg(snap.AvailableCredit), numericArg(snap.InterestRate),
		numericArg(snap.LateInterestRate), numericArg(snap.TotalPaymentDue), numericArg(snap.MinimumPayment),
		snap.PaymentDueDate, snap.TransactionCount, snap.ImportedCount, snap.SkippedCount)
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}

func scanSnapshot(row pgx.Row) (repository.StatementSnapshot, error) {
	var snap repository.StatementSnapshot
	var prev, final, credits, debits, purchases, interest *string
	var limit, available, rate, lateRate, paymentDue, minimum *string
	if err := row.Scan(&snap.ID, &snap.UserID, &snap.AccountID, &snap.PeriodFrom, &snap.PeriodTo,
		&snap.StatementType, &snap.Currency, &snap.SourceFilename,
		&prev, &final, &credits, &debits, &purchases, &interest,
		&limit, &available, &rate, &lateRate, &paymentDue, &minimum,
		&snap.PaymentDueDate, &snap.TransactionCount, &snap.ImportedCount, &snap.SkippedCount,
		&snap.CreatedAt, &snap.UpdatedAt); err != nil {
		return repository.StatementSnapshot{}, err
	}
	targets := []struct {
		src *string
		dst **decimal.Decimal
	}{
		{prev, &snap.PreviousBalance}, {final, &snap.FinalBalance}, {credits, &snap.TotalCredits},
		{debits, &snap.TotalDebits}, {purchases, &snap.PurchasesAndCharges}, {interest, &snap.InterestCharged},
		{limit, &snap.CreditLimit}, {available, &snap.AvailableCredit}, {rate, &snap.InterestRate},
		{lateRate, &snap.LateInterestRate}, {paymentDue, &snap.TotalPaymentDue}, {minimum, &snap.MinimumPayment},
	}
	for _, tg := range targets {
		if tg.src == nil {
			continue
		}
		d, err := decimal.NewFromString(*tg.src)
		if err != nil {
			return repository.StatementSnapshot{}, fmt.Errorf("snapshot %s: %w", snap.ID, err)
		}
		*tg.dst = &d
	}
	return snap, nil
}

func numericArg(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}
