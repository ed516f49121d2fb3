package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jask/stmtsync/internal/database/repository"
)

// memStore is an in-memory Store and ReviewQueue.
type memStore struct {
	mu        sync.Mutex
	txs       map[string]repository.Transaction
	order     []string
	snapshots map[string]repository.StatementSnapshot
	rules     map[string]repository.CategoryRule
	reviews   []repository.PendingReview

	findErr     map[string]error // by account id
	insertErr   map[string]error // by raw description
	snapshotErr error
	ruleErr     error
	findCalls   int
}

func newMemStore() *memStore {
	return &memStore{
		txs:       make(map[string]repository.Transaction),
		snapshots: make(map[string]repository.StatementSnapshot),
		rules:     make(map[string]repository.CategoryRule),
		findErr:   make(map[string]error),
		insertErr: make(map[string]error),
	}
}

func (m *memStore) FindCandidates(_ context.Context, accountID string, dir repository.Direction, amount decimal.Decimal, from, to time.Time) ([]repository.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.findCalls++
	if err := m.findErr[accountID]; err != nil {
		return nil, err
	}
	var out []repository.Transaction
	for _, id := range m.order {
		t := m.txs[id]
		if t.AccountID != accountID || t.Direction != dir || t.ReconciledIntoID != nil {
			continue
		}
		if t.Date.Before(from) || t.Date.After(to) {
			continue
		}
		if t.Amount.Sub(amount).Abs().GreaterThan(decimal.New(1, -4)) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (m *memStore) InsertTransaction(_ context.Context, t repository.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.insertErr[t.RawDescription]; err != nil {
		return err
	}
	if t.IdempotencyKey != nil {
		for _, existing := range m.txs {
			if existing.UserID == t.UserID && existing.IdempotencyKey != nil && *existing.IdempotencyKey == *t.IdempotencyKey {
				return repository.ErrDuplicate
			}
		}
	}
	m.txs[t.ID] = t
	m.order = append(m.order, t.ID)
	return nil
}

func (m *memStore) GetTransaction(_ context.Context, userID, id string) (*repository.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.txs[id]
	if !ok || t.UserID != userID {
		return nil, repository.ErrNotFound
	}
	return &t, nil
}

func (m *memStore) ApplyMerge(ctx context.Context, userID, keepID, reconciledID string, patch repository.MetadataPatch) error {
	m.mu.Lock()
	keep, ok := m.txs[keepID]
	if !ok || keep.UserID != userID {
		m.mu.Unlock()
		return repository.ErrNotFound
	}
	if r, ok := m.txs[reconciledID]; ok && r.ReconciledIntoID != nil {
		m.mu.Unlock()
		return repository.ErrAlreadyReconciled
	}
	keep.CategoryID = patch.CategoryID
	keep.CategorySource = patch.CategorySource
	keep.Notes = patch.Notes
	keep.CaptureMethod = patch.CaptureMethod
	m.txs[keepID] = keep
	m.mu.Unlock()
	return m.MarkReconciled(ctx, userID, reconciledID, keepID)
}

func (m *memStore) MarkReconciled(_ context.Context, userID, id, intoID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.txs[id]
	if !ok || t.UserID != userID {
		return repository.ErrNotFound
	}
	if t.ReconciledIntoID != nil {
		return repository.ErrAlreadyReconciled
	}
	t.ReconciledIntoID = &intoID
	m.txs[id] = t
	return nil
}

func (m *memStore) SetCategory(_ context.Context, userID, id, categoryID string, source repository.CategorySource) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.txs[id]
	if !ok || t.UserID != userID {
		return repository.ErrNotFound
	}
	t.CategoryID = &categoryID
	t.CategorySource = source
	m.txs[id] = t
	return nil
}

func snapshotKey(accountID string, from, to time.Time) string {
	return accountID + "|" + from.Format(time.DateOnly) + "|" + to.Format(time.DateOnly)
}

func (m *memStore) LatestSnapshot(_ context.Context, accountID string, before time.Time) (*repository.StatementSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *repository.StatementSnapshot
	for _, s := range m.snapshots {
		if s.AccountID != accountID || !s.PeriodFrom.Before(before) {
			continue
		}
		if best == nil || s.PeriodTo.After(best.PeriodTo) {
			c := s
			best = &c
		}
	}
	return best, nil
}

func (m *memStore) UpsertSnapshot(_ context.Context, s repository.StatementSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snapshotErr != nil {
		return m.snapshotErr
	}
	m.snapshots[snapshotKey(s.AccountID, s.PeriodFrom, s.PeriodTo)] = s
	return nil
}

func (m *memStore) UpsertCategoryRule(_ context.Context, userID, pattern, categoryID string) (repository.CategoryRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ruleErr != nil {
		return repository.CategoryRule{}, m.ruleErr
	}
	key := userID + "|" + pattern
	r, ok := m.rules[key]
	switch {
	case !ok:
		r = repository.CategoryRule{ID: uuid.NewString(), UserID: userID, Pattern: pattern, CategoryID: categoryID, MatchCount: 1}
	case r.CategoryID == categoryID:
		r.MatchCount++
	default:
		r.CategoryID = categoryID
		r.MatchCount = 1
	}
	m.rules[key] = r
	return r, nil
}

func (m *memStore) FindCategoryRule(_ context.Context, userID, pattern string) (*repository.CategoryRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[userID+"|"+pattern]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *memStore) ListCategoryRules(_ context.Context, userID string) ([]repository.CategoryRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []repository.CategoryRule
	for _, r := range m.rules {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MatchCount != out[j].MatchCount {
			return out[i].MatchCount > out[j].MatchCount
		}
		return out[i].Pattern < out[j].Pattern
	})
	return out, nil
}

func (m *memStore) Add(_ context.Context, pr repository.PendingReview) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.reviews {
		if r.TransactionID == pr.TransactionID && r.CandidateID == pr.CandidateID {
			return nil
		}
	}
	m.reviews = append(m.reviews, pr)
	return nil
}

func (m *memStore) ListPending(_ context.Context, userID string) ([]repository.PendingReview, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []repository.PendingReview
	for _, r := range m.reviews {
		if r.UserID == userID && r.Status == repository.ReviewPending {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) IsPending(_ context.Context, userID, transactionID, candidateID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.reviews {
		if r.UserID == userID && r.TransactionID == transactionID && r.CandidateID == candidateID && r.Status == repository.ReviewPending {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) Close(_ context.Context, userID, transactionID, chosenCandidateID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.reviews {
		if r.UserID != userID || r.TransactionID != transactionID || r.Status != repository.ReviewPending {
			continue
		}
		if r.CandidateID == chosenCandidateID {
			m.reviews[i].Status = repository.ReviewMerged
		} else {
			m.reviews[i].Status = repository.ReviewDismissed
		}
	}
	return nil
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.txs)
}

func (m *memStore) get(id string) repository.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.txs[id]
}
