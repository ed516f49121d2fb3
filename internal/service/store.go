package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jask/stmtsync/internal/database/repository"
)

// Store is the persistence the import pipeline runs against. Both the sqlite
// and postgres stores satisfy it; tests use an in-memory fake.
type Store interface {
	FindCandidates(ctx context.Context, accountID string, dir repository.Direction, amount decimal.Decimal, from, to time.Time) ([]repository.Transaction, error)
	InsertTransaction(ctx context.Context, t repository.Transaction) error
	GetTransaction(ctx context.Context, userID, id string) (*repository.Transaction, error)
	ApplyMerge(ctx context.Context, userID, keepID, reconciledID string, patch repository.MetadataPatch) error
	MarkReconciled(ctx context.Context, userID, id, intoID string) error
	SetCategory(ctx context.Context, userID, id, categoryID string, source repository.CategorySource) error
	LatestSnapshot(ctx context.Context, accountID string, before time.Time) (*repository.StatementSnapshot, error)
	UpsertSnapshot(ctx context.Context, s repository.StatementSnapshot) error
	RuleStore
}

// RuleStore persists learned category rules.
type RuleStore interface {
	UpsertCategoryRule(ctx context.Context, userID, pattern, categoryID string) (repository.CategoryRule, error)
	FindCategoryRule(ctx context.Context, userID, pattern string) (*repository.CategoryRule, error)
	ListCategoryRules(ctx context.Context, userID string) ([]repository.CategoryRule, error)
}

// ReviewQueue keeps ambiguous matches until someone decides on them.
type ReviewQueue interface {
	Add(ctx context.Context, pr repository.PendingReview) error
	ListPending(ctx context.Context, userID string) ([]repository.PendingReview, error)
	IsPending(ctx context.Context, userID, transactionID, candidateID string) (bool, error)
	Close(ctx context.Context, userID, transactionID, chosenCandidateID string) error
}

// AccountWriter creates or renames accounts.
type AccountWriter interface {
	UpsertAccount(ctx context.Context, a repository.Account) error
}
