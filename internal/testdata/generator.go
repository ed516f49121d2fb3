package testdata

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jask/stmtsync/internal/database/repository"
)

// Ledger is what Seed writes to.
type Ledger interface {
	UpsertAccount(ctx context.Context, a repository.Account) error
	InsertTransaction(ctx context.Context, t repository.Transaction) error
}

// Options controls Seed. A zero Now means time.Now.
type Options struct {
	UserID string
	Count  int
	Seed   int64
	Now    time.Time
}

type sample struct {
	desc     string
	merchant string
	category string
	dir      repository.Direction
	min, max int64
}

var samples = []sample{
	{"EXITO CALLE 80", "Exito", "groceries", repository.DirectionOutflow, 20000, 250000},
	{"RAPPI*RESTAURANTE", "Rappi", "takeaway", repository.DirectionOutflow, 15000, 90000},
	{"NETFLIX.COM", "Netflix", "subscriptions", repository.DirectionOutflow, 26900, 44900},
	{"UBER *TRIP", "Uber", "transport", repository.DirectionOutflow, 8000, 60000},
	{"JUAN VALDEZ CAFE", "Juan Valdez", "coffee", repository.DirectionOutflow, 6000, 25000},
	{"NOMINA ACME SAS", "", "salary", repository.DirectionInflow, 3500000, 3500000},
}

// Seed creates a sample account and a month of manually captured
// transactions with user-assigned categories, so a later statement import
// has something to reconcile against. It returns the account id.
func Seed(ctx context.Context, ledger Ledger, opts Options) (string, error) {
	if opts.UserID == "" {
		return "", fmt.Errorf("seed: user id is required")
	}
	if opts.Count <= 0 {
		opts.Count = 20
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	rng := rand.New(rand.NewSource(opts.Seed))

	acct := repository.Account{
		ID:          uuid.NewString(),
		UserID:      opts.UserID,
		Name:        "Sample Savings",
		Institution: "Sample Bank",
		AccountType: "savings",
	}
	if err := ledger.UpsertAccount(ctx, acct); err != nil {
		return "", err
	}

	for i := 0; i < opts.Count; i++ {
		s := samples[rng.Intn(len(samples))]
		amount := s.min
		if s.max > s.min {
			amount += rng.Int63n(s.max - s.min)
		}
		category := s.category
		source := repository.CategorySourceUserCreated
		if rng.Intn(5) == 0 {
			source = repository.CategorySourceUserOverride
		}
		tx := repository.Transaction{
			ID:             uuid.NewString(),
			UserID:         opts.UserID,
			AccountID:      acct.ID,
			Amount:         decimal.New(amount, 0),
			Direction:      s.dir,
			Currency:       "COP",
			Date:           today.AddDate(0, 0, -rng.Intn(30)),
			RawDescription: s.desc,
			CategoryID:     &category,
			CategorySource: source,
			CaptureMethod:  repository.CaptureManual,
		}
		if s.merchant != "" {
			m := s.merchant
			tx.MerchantName = &m
		}
		if err := ledger.InsertTransaction(ctx, tx); err != nil {
			return "", fmt.Errorf("seed transaction %d: %w", i, err)
		}
	}
	return acct.ID, nil
}
