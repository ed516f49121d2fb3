package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jask/stmtsync/internal/database/repository"
	"github.com/jask/stmtsync/internal/reconcile"
)

var (
	// ErrNoReviewQueue is returned by review operations when no queue is wired.
	ErrNoReviewQueue = errors.New("review queue not configured")
	// ErrNotReviewable rejects a merge of two records that cannot be the
	// same transaction or were never offered as a pair.
	ErrNotReviewable = errors.New("candidate is not a reviewable duplicate")
)

// PendingReview groups the open candidates of one imported transaction.
type PendingReview struct {
	TransactionID string
	Candidates    []repository.PendingReview
}

// PendingReviews lists the user's open reviews in the order they were queued.
func (s *ImportService) PendingReviews(ctx context.Context, userID string) ([]PendingReview, error) {
	if s.Reviews == nil {
		return nil, ErrNoReviewQueue
	}
	rows, err := s.Reviews.ListPending(ctx, userID)
	if err != nil {
		return nil, err
	}
	var out []PendingReview
	index := make(map[string]int)
	for _, r := range rows {
		i, ok := index[r.TransactionID]
		if !ok {
			i = len(out)
			index[r.TransactionID] = i
			out = append(out, PendingReview{TransactionID: r.TransactionID})
		}
		out[i].Candidates = append(out[i].Candidates, r)
	}
	return out, nil
}

// ResolveReview confirms that the imported transaction duplicates
// candidateID. The candidate is retired into the imported record, which
// takes over its metadata under the usual merge rules.
func (s *ImportService) ResolveReview(ctx context.Context, userID, transactionID, candidateID string) (reconcile.MergeResult, error) {
	imported, err := s.Store.GetTransaction(ctx, userID, transactionID)
	if err != nil {
		return reconcile.MergeResult{}, fmt.Errorf("load imported transaction: %w", err)
	}
	manual, err := s.Store.GetTransaction(ctx, userID, candidateID)
	if err != nil {
		return reconcile.MergeResult{}, fmt.Errorf("load candidate: %w", err)
	}
	if imported.ReconciledIntoID != nil || manual.ReconciledIntoID != nil {
		return reconcile.MergeResult{}, repository.ErrAlreadyReconciled
	}
	if err := s.checkReviewable(ctx, userID, *imported, *manual); err != nil {
		return reconcile.MergeResult{}, err
	}

	// A category the statement itself carried counts as the imported side's;
	// one filled in from a rule does not outrank a person's choice.
	var importedCategory *string
	if imported.CategorySource == repository.CategorySourceImport {
		importedCategory = imported.CategoryID
	}
	merged := reconcile.MergeMetadata(reconcile.MergeInputFor(*manual, importedCategory, imported.Notes))
	if merged.CategoryID == nil && imported.CategoryID != nil {
		merged.CategoryID = imported.CategoryID
		merged.CategorySource = imported.CategorySource
	}
	if err := s.Store.ApplyMerge(ctx, userID, imported.ID, manual.ID, merged.Patch()); err != nil {
		return reconcile.MergeResult{}, fmt.Errorf("apply merge: %w", err)
	}

	logger := orDiscard(s.Logger).With("user", userID)
	if s.Reviews != nil {
		if err := s.Reviews.Close(ctx, userID, transactionID, candidateID); err != nil {
			logger.Warn("close review failed", "transaction", transactionID, "err", err)
		}
	}
	if merged.CarriedManualCategory {
		_ = s.learn(ctx, logger, userID, SourceOf(*manual), *merged.CategoryID)
	}
	return merged, nil
}

// checkReviewable holds a manual merge to the same hard gates the scorer
// applies and, when a queue is wired, to the pairs it offered.
func (s *ImportService) checkReviewable(ctx context.Context, userID string, imported, manual repository.Transaction) error {
	if imported.ID == manual.ID {
		return fmt.Errorf("%w: a transaction cannot be merged into itself", ErrNotReviewable)
	}
	if reconcile.Score(asImported(imported), manual) == nil {
		return fmt.Errorf("%w: %s and %s differ in account, direction, amount or date", ErrNotReviewable, imported.ID, manual.ID)
	}
	if s.Reviews == nil {
		return nil
	}
	pending, err := s.Reviews.IsPending(ctx, userID, imported.ID, manual.ID)
	if err != nil {
		return fmt.Errorf("check pending review: %w", err)
	}
	if !pending {
		return fmt.Errorf("%w: no open review links %s to %s", ErrNotReviewable, imported.ID, manual.ID)
	}
	return nil
}

func asImported(t repository.Transaction) repository.ImportedTransaction {
	return repository.ImportedTransaction{
		AccountID:      t.AccountID,
		Amount:         t.Amount,
		Direction:      t.Direction,
		Currency:       t.Currency,
		Date:           t.Date,
		RawDescription: t.RawDescription,
	}
}

// Dismiss records that the imported transaction duplicates none of its
// candidates.
func (s *ImportService) Dismiss(ctx context.Context, userID, transactionID string) error {
	if s.Reviews == nil {
		return ErrNoReviewQueue
	}
	return s.Reviews.Close(ctx, userID, transactionID, "")
}
