package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/jask/stmtsync/internal/database/repository"
)

// CategorizeResult reports a confirmed categorization.
type CategorizeResult struct {
	Updated      int
	RulesLearned int
	Warnings     []string
}

// Categorize assigns categoryID to every listed transaction as a user
// override and learns merchant rules from them. All ids are loaded before
// anything is written; an unknown id fails the call. Rule learning is best
// effort and never undoes the category writes.
func (s *ImportService) Categorize(ctx context.Context, userID string, transactionIDs []string, categoryID string) (CategorizeResult, error) {
	var res CategorizeResult
	categoryID = strings.TrimSpace(categoryID)
	if userID == "" || categoryID == "" {
		return res, &ValidationError{Issues: []Issue{{Index: -1, Field: "category", Reason: "user and category are required"}}}
	}
	if len(transactionIDs) == 0 {
		return res, &ValidationError{Issues: []Issue{{Index: -1, Field: "transactions", Reason: "at least one transaction is required"}}}
	}

	txs := make([]repository.Transaction, 0, len(transactionIDs))
	seen := make(map[string]struct{}, len(transactionIDs))
	for _, id := range transactionIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		t, err := s.Store.GetTransaction(ctx, userID, id)
		if err != nil {
			return res, fmt.Errorf("load transaction %s: %w", id, err)
		}
		txs = append(txs, *t)
	}

	srcs := make([]RuleSource, 0, len(txs))
	for _, t := range txs {
		if err := s.Store.SetCategory(ctx, userID, t.ID, categoryID, repository.CategorySourceUserOverride); err != nil {
			return res, fmt.Errorf("categorize %s: %w", t.ID, err)
		}
		res.Updated++
		srcs = append(srcs, SourceOf(t))
	}

	if s.Rules == nil {
		return res, nil
	}
	learned, err := s.Rules.LearnBulk(ctx, userID, srcs, categoryID)
	res.RulesLearned = learned
	if err != nil {
		orDiscard(s.Logger).Warn("rule learning failed", "user", userID, "category", categoryID, "err", err)
		for _, e := range unjoin(err) {
			res.Warnings = append(res.Warnings, fmt.Sprintf("rule learning: %v", e))
		}
	}
	return res, nil
}

func unjoin(err error) []error {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return []error{err}
}
