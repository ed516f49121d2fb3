package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/jask/stmtsync/internal/database/repository"
	"github.com/jask/stmtsync/internal/fingerprint"
	"github.com/jask/stmtsync/internal/reconcile"
	"github.com/jask/stmtsync/internal/snapshot"
)

// DefaultWorkers bounds concurrent candidate lookups when Workers is unset.
const DefaultWorkers = 4

// StatementMeta is the summary block of one statement in a batch.
type StatementMeta struct {
	AccountID      string
	PeriodFrom     time.Time
	PeriodTo       time.Time
	StatementType  string
	Currency       string
	SourceFilename string

	PreviousBalance     *decimal.Decimal
	FinalBalance        *decimal.Decimal
	TotalCredits        *decimal.Decimal
	TotalDebits         *decimal.Decimal
	PurchasesAndCharges *decimal.Decimal
	InterestCharged     *decimal.Decimal

	CreditLimit      *decimal.Decimal
	AvailableCredit  *decimal.Decimal
	InterestRate     *decimal.Decimal
	LateInterestRate *decimal.Decimal
	TotalPaymentDue  *decimal.Decimal
	MinimumPayment   *decimal.Decimal
	PaymentDueDate   *time.Time
}

func (m StatementMeta) covers(t repository.ImportedTransaction) bool {
	return t.AccountID == m.AccountID && !t.Date.Before(m.PeriodFrom) && !t.Date.After(m.PeriodTo)
}

// ImportBatch is one unit of import work for a single user.
type ImportBatch struct {
	UserID       string
	Provider     string
	Transactions []repository.ImportedTransaction
	Statements   []StatementMeta
}

// AccountUpdate summarizes what one statement changed for its account.
type AccountUpdate struct {
	AccountID     string
	PeriodFrom    time.Time
	PeriodTo      time.Time
	IsFirstImport bool
	Diffs         []snapshot.FieldDiff
	FinalBalance  *decimal.Decimal
}

// Decisions tallies reconciliation tiers over a batch.
type Decisions struct {
	AutoMerged int
	Review     int
	NoMatch    int
}

// ReviewItem is an imported line stored as new that may duplicate one of
// Candidates.
type ReviewItem struct {
	Index         int
	TransactionID string
	Candidates    []reconcile.Match
}

// ImportResult reports a batch. ErrorCount counts items that were not
// written; an item written whose follow-up reconcile step failed is counted
// as imported and listed in PerItemErrors.
type ImportResult struct {
	ImportedCount  int
	SkippedCount   int
	ErrorCount     int
	PerItemErrors  []ItemError
	AccountUpdates []AccountUpdate
	Decisions      Decisions
	Reviews        []ReviewItem
	Warnings       []string
}

// ImportService merges parsed statement batches into the ledger.
type ImportService struct {
	Store   Store
	Rules   *CategoryRuleService // optional
	Reviews ReviewQueue          // optional
	Logger  *log.Logger
	Metrics *Metrics

	Workers          int
	AnomalyThreshold decimal.Decimal
	// SuggestCategories fills uncategorized lines from learned rules.
	SuggestCategories bool
}

type itemOutcome int

const (
	outcomePending itemOutcome = iota
	outcomeWasImported
	outcomeWasSkipped
	outcomeWasErrored
)

// candidateSet is the phase one result for one line.
type candidateSet struct {
	ranking reconcile.Ranking
	byID    map[string]repository.Transaction
	err     error
}

// Import validates the batch, reconciles every line against the ledger,
// writes the results and refreshes statement snapshots. Per-item failures
// land in the result; the returned error is reserved for invalid batches and
// cancellation, in which case the partial result is still returned.
func (s *ImportService) Import(ctx context.Context, batch ImportBatch) (ImportResult, error) {
	var res ImportResult
	if err := validateBatch(batch); err != nil {
		return res, err
	}
	logger := orDiscard(s.Logger).With("user", batch.UserID)
	start := time.Now()
	defer func() { s.Metrics.observeBatch(time.Since(start).Seconds()) }()

	sets, err := s.collectCandidates(ctx, batch.Transactions)
	if err != nil {
		return res, fmt.Errorf("import cancelled before writes: %w", err)
	}

	outcomes := make([]itemOutcome, len(batch.Transactions))
	claimed := make(map[string]struct{})
	queued := make(map[string]struct{})
	for i, item := range batch.Transactions {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("import cancelled after %d of %d items: %w", i, len(batch.Transactions), err)
		}
		outcomes[i] = s.importItem(ctx, logger, batch, i, item, sets[i], claimed, queued, &res)
		switch outcomes[i] {
		case outcomeWasImported:
			s.Metrics.item(outcomeImported)
		case outcomeWasSkipped:
			s.Metrics.item(outcomeSkipped)
		case outcomeWasErrored:
			s.Metrics.item(outcomeErrored)
		}
	}

	for _, meta := range batch.Statements {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("import cancelled during snapshot update: %w", err)
		}
		res.AccountUpdates = append(res.AccountUpdates, s.updateSnapshot(ctx, logger, batch, meta, outcomes, &res))
	}

	logger.Info("import finished",
		"imported", res.ImportedCount,
		"skipped", res.SkippedCount,
		"errors", res.ErrorCount,
		"auto_merged", res.Decisions.AutoMerged,
		"review", res.Decisions.Review,
		"took", time.Since(start).Round(time.Millisecond))
	return res, nil
}

// collectCandidates fetches and ranks candidates for every line before any
// write happens, so lines of this batch never match each other.
func (s *ImportService) collectCandidates(ctx context.Context, items []repository.ImportedTransaction) ([]candidateSet, error) {
	sets := make([]candidateSet, len(items))
	g, gctx := errgroup.WithContext(ctx)
	workers := s.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	g.SetLimit(workers)
	for i, item := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			from := item.Date.AddDate(0, 0, -reconcile.MaxDayDistance)
			to := item.Date.AddDate(0, 0, reconcile.MaxDayDistance)
			cands, err := s.Store.FindCandidates(gctx, item.AccountID, item.Direction, item.Amount, from, to)
			if err != nil {
				// One failed lookup must not cancel the others.
				sets[i].err = err
				return nil
			}
			byID := make(map[string]repository.Transaction, len(cands))
			for _, c := range cands {
				byID[c.ID] = c
			}
			sets[i] = candidateSet{ranking: reconcile.Rank(item, cands), byID: byID}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return sets, nil
}

func (s *ImportService) importItem(
	ctx context.Context,
	logger *log.Logger,
	batch ImportBatch,
	i int,
	item repository.ImportedTransaction,
	set candidateSet,
	claimed map[string]struct{},
	queued map[string]struct{},
	res *ImportResult,
) itemOutcome {
	if set.err != nil {
		res.ErrorCount++
		res.PerItemErrors = append(res.PerItemErrors, itemError(i, StageCandidates, set.err))
		return outcomeWasErrored
	}

	rec := newRecord(batch, item)
	ranking := set.ranking.Without(claimed)
	decision := reconcile.NoMatch
	if ranking.Best != nil {
		decision = ranking.Best.Decision
	}
	if decision == reconcile.AutoMerge {
		if _, held := queued[ranking.Best.CandidateID]; held {
			// An earlier line of this batch awaits review against this candidate.
			decision = reconcile.Review
			ranking.Ranked[0].Decision = reconcile.Review
		}
	}

	var manual *repository.Transaction
	var merged reconcile.MergeResult
	if decision == reconcile.AutoMerge {
		m := set.byID[ranking.Best.CandidateID]
		manual = &m
		merged = reconcile.MergeMetadata(reconcile.MergeInputFor(m, item.CategoryID, item.Notes))
		rec.CategoryID = merged.CategoryID
		rec.CategorySource = merged.CategorySource
		rec.Notes = merged.Notes
		rec.CaptureMethod = merged.CaptureMethod
		if rec.MerchantName == nil {
			rec.MerchantName = m.MerchantName
		}
		if rec.CleanDescription == nil {
			rec.CleanDescription = m.CleanDescription
		}
	}
	if rec.CategoryID == nil {
		s.suggestCategory(ctx, logger, batch.UserID, &rec)
	}

	if err := s.Store.InsertTransaction(ctx, rec); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			res.SkippedCount++
			return outcomeWasSkipped
		}
		res.ErrorCount++
		res.PerItemErrors = append(res.PerItemErrors, itemError(i, StageInsert, err))
		return outcomeWasErrored
	}
	res.ImportedCount++
	s.Metrics.decision(decision)

	switch decision {
	case reconcile.AutoMerge:
		res.Decisions.AutoMerged++
		claimed[manual.ID] = struct{}{}
		if err := s.Store.MarkReconciled(ctx, batch.UserID, manual.ID, rec.ID); err != nil {
			res.PerItemErrors = append(res.PerItemErrors, itemError(i, StageMerge, err))
			logger.Warn("mark reconciled failed", "transaction", rec.ID, "candidate", manual.ID, "err", err)
			return outcomeWasImported
		}
		if merged.CarriedManualCategory {
			if err := s.learn(ctx, logger, batch.UserID, SourceOf(*manual), *merged.CategoryID); err != nil {
				res.Warnings = append(res.Warnings, fmt.Sprintf("rule learning for item %d: %v", i, err))
			}
		}
	case reconcile.Review:
		res.Decisions.Review++
		res.Reviews = append(res.Reviews, ReviewItem{Index: i, TransactionID: rec.ID, Candidates: ranking.Ranked})
		for _, m := range ranking.Ranked {
			queued[m.CandidateID] = struct{}{}
		}
		s.queueReview(ctx, logger, batch.UserID, rec.ID, ranking.Ranked, res)
	default:
		res.Decisions.NoMatch++
	}
	return outcomeWasImported
}

func newRecord(batch ImportBatch, item repository.ImportedTransaction) repository.Transaction {
	rec := repository.Transaction{
		ID:                uuid.NewString(),
		UserID:            batch.UserID,
		AccountID:         item.AccountID,
		Amount:            item.Amount,
		Direction:         item.Direction,
		Currency:          item.Currency,
		Date:              item.Date,
		RawDescription:    item.RawDescription,
		CategoryID:        item.CategoryID,
		Notes:             item.Notes,
		CaptureMethod:     repository.CaptureStatementImport,
		CaptureConfidence: item.Confidence,
	}
	if item.CategoryID != nil {
		rec.CategorySource = repository.CategorySourceImport
	}

	key := fingerprint.KeyInput{
		Provider:              batch.Provider,
		ProviderTransactionID: item.ProviderTransactionID,
		Date:                  item.Date,
		Amount:                item.Amount,
		RawDescription:        item.RawDescription,
	}
	if inst, ok := fingerprint.ParseInstallments(item.Installments); ok {
		index, total := inst.Index, inst.Total
		key.InstallmentIndex = &index
		rec.InstallmentIndex = &index
		rec.InstallmentTotal = &total
		if inst.Series() {
			group := fingerprint.InstallmentGroupID(item.AccountID, item.RawDescription, item.Amount)
			rec.InstallmentGroupID = &group
		}
	}
	k := fingerprint.IdempotencyKey(key)
	rec.IdempotencyKey = &k
	return rec
}

func (s *ImportService) suggestCategory(ctx context.Context, logger *log.Logger, userID string, rec *repository.Transaction) {
	if !s.SuggestCategories || s.Rules == nil {
		return
	}
	sug, err := s.Rules.Suggest(ctx, userID, SourceOf(*rec))
	if err != nil {
		logger.Warn("category suggestion failed", "err", err)
		return
	}
	if sug == nil {
		return
	}
	cat := sug.CategoryID
	rec.CategoryID = &cat
	rec.CategorySource = repository.CategorySourceRule
}

// learn feeds a confirmed categorization into the rule store. Failures are
// logged and never undo the write that triggered them.
func (s *ImportService) learn(ctx context.Context, logger *log.Logger, userID string, src RuleSource, categoryID string) error {
	if s.Rules == nil {
		return nil
	}
	if _, err := s.Rules.Learn(ctx, userID, src, categoryID); err != nil {
		logger.Warn("rule learning failed", "category", categoryID, "err", err)
		return err
	}
	return nil
}

func (s *ImportService) queueReview(ctx context.Context, logger *log.Logger, userID, transactionID string, ranked []reconcile.Match, res *ImportResult) {
	if s.Reviews == nil {
		return
	}
	for _, m := range ranked {
		pr := repository.PendingReview{
			ID:            uuid.NewString(),
			UserID:        userID,
			TransactionID: transactionID,
			CandidateID:   m.CandidateID,
			Score:         m.Score,
			Status:        repository.ReviewPending,
		}
		if err := s.Reviews.Add(ctx, pr); err != nil {
			logger.Warn("queue review failed", "transaction", transactionID, "candidate", m.CandidateID, "err", err)
			res.Warnings = append(res.Warnings, fmt.Sprintf("queue review of %s: %v", transactionID, err))
			return
		}
	}
}

func (s *ImportService) updateSnapshot(
	ctx context.Context,
	logger *log.Logger,
	batch ImportBatch,
	meta StatementMeta,
	outcomes []itemOutcome,
	res *ImportResult,
) AccountUpdate {
	curr := repository.StatementSnapshot{
		UserID:              batch.UserID,
		AccountID:           meta.AccountID,
		PeriodFrom:          meta.PeriodFrom,
		PeriodTo:            meta.PeriodTo,
		StatementType:       meta.StatementType,
		Currency:            meta.Currency,
		SourceFilename:      meta.SourceFilename,
		PreviousBalance:     meta.PreviousBalance,
		FinalBalance:        meta.FinalBalance,
		TotalCredits:        meta.TotalCredits,
		TotalDebits:         meta.TotalDebits,
		PurchasesAndCharges: meta.PurchasesAndCharges,
		InterestCharged:     meta.InterestCharged,
		CreditLimit:         meta.CreditLimit,
		AvailableCredit:     meta.AvailableCredit,
		InterestRate:        meta.InterestRate,
		LateInterestRate:    meta.LateInterestRate,
		TotalPaymentDue:     meta.TotalPaymentDue,
		MinimumPayment:      meta.MinimumPayment,
		PaymentDueDate:      meta.PaymentDueDate,
	}
	for i, item := range batch.Transactions {
		if !meta.covers(item) {
			continue
		}
		curr.TransactionCount++
		switch outcomes[i] {
		case outcomeWasImported:
			curr.ImportedCount++
		case outcomeWasSkipped:
			curr.SkippedCount++
		}
	}

	update := AccountUpdate{
		AccountID:    meta.AccountID,
		PeriodFrom:   meta.PeriodFrom,
		PeriodTo:     meta.PeriodTo,
		FinalBalance: meta.FinalBalance,
	}
	prev, err := s.Store.LatestSnapshot(ctx, meta.AccountID, meta.PeriodFrom)
	if err != nil {
		logger.Warn("load previous snapshot failed", "account", meta.AccountID, "err", err)
		res.Warnings = append(res.Warnings, fmt.Sprintf("previous snapshot of %s: %v", meta.AccountID, err))
		prev = nil
	}
	update.IsFirstImport = prev == nil
	update.Diffs = snapshot.Diff(prev, curr, snapshot.Options{AnomalyThreshold: s.AnomalyThreshold})
	for _, d := range update.Diffs {
		if d.Anomalous {
			logger.Info("statement field moved sharply", "account", meta.AccountID, "field", d.Field,
				"previous", d.Previous, "current", d.Current)
		}
	}

	if err := s.Store.UpsertSnapshot(ctx, curr); err != nil {
		logger.Warn("snapshot upsert failed", "account", meta.AccountID, "err", err)
		res.Warnings = append(res.Warnings, fmt.Sprintf("snapshot of %s %s: %v", meta.AccountID, meta.PeriodFrom.Format(time.DateOnly), err))
	}
	return update
}

func validateBatch(b ImportBatch) error {
	var issues []Issue
	if b.UserID == "" {
		issues = append(issues, Issue{Index: -1, Field: "user", Reason: "required"})
	}
	for i, t := range b.Transactions {
		if t.AccountID == "" {
			issues = append(issues, Issue{Index: i, Field: "account", Reason: "required"})
		}
		if !t.Direction.Valid() {
			issues = append(issues, Issue{Index: i, Field: "direction", Reason: fmt.Sprintf("unknown direction %q", t.Direction)})
		}
		if t.Amount.IsNegative() {
			issues = append(issues, Issue{Index: i, Field: "amount", Reason: "must not be negative"})
		}
		if t.Date.IsZero() {
			issues = append(issues, Issue{Index: i, Field: "date", Reason: "required"})
		}
		if t.Currency == "" {
			issues = append(issues, Issue{Index: i, Field: "currency", Reason: "required"})
		}
	}
	for i, m := range b.Statements {
		if m.AccountID == "" {
			issues = append(issues, Issue{Index: -1, Field: fmt.Sprintf("statements[%d].account", i), Reason: "required"})
		}
		if m.PeriodFrom.IsZero() || m.PeriodTo.IsZero() || m.PeriodTo.Before(m.PeriodFrom) {
			issues = append(issues, Issue{Index: -1, Field: fmt.Sprintf("statements[%d].period", i), Reason: "invalid period"})
		}
	}
	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

func orDiscard(l *log.Logger) *log.Logger {
	if l == nil {
		return log.New(io.Discard)
	}
	return l
}
