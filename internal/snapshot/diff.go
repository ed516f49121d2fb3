// Package snapshot compares consecutive statement summaries of an account.
package snapshot

import (
	"github.com/shopspring/decimal"

	"github.com/jask/stmtsync/internal/database/repository"
)

// Kind classifies one field of a diff.
type Kind string

const (
	// Compared fields are reported by both statements.
	Compared Kind = "compared"
	// New fields appear for the first time in the current statement.
	New Kind = "new"
	// Missing fields were reported before but not anymore.
	Missing Kind = "missing"
)

// DefaultAnomalyThreshold flags changes of half the previous value or more.
var DefaultAnomalyThreshold = decimal.RequireFromString("0.5")

// FieldDiff is the change of one numeric field between two statements.
type FieldDiff struct {
	Field         string
	Kind          Kind
	Previous      *decimal.Decimal
	Current       *decimal.Decimal
	Delta         *decimal.Decimal
	RelativeDelta *decimal.Decimal // nil when Previous is zero
	Anomalous     bool
}

// Options tunes Diff. The zero value uses DefaultAnomalyThreshold.
type Options struct {
	AnomalyThreshold decimal.Decimal
}

type field struct {
	name string
	get  func(s *repository.StatementSnapshot) *decimal.Decimal
}

func count(n int) *decimal.Decimal {
	d := decimal.NewFromInt(int64(n))
	return &d
}

var fields = []field{
	{"previous_balance", func(s *repository.StatementSnapshot) *decimal.Decimal { return s.PreviousBalance }},
	{"final_balance", func(s *repository.StatementSnapshot) *decimal.Decimal { return s.FinalBalance }},
	{"total_credits", func(s *repository.StatementSnapshot) *decimal.Decimal { return s.TotalCredits }},
	{"total_debits", func(s *repository.StatementSnapshot) *decimal.Decimal { return s.TotalDebits }},
	{"purchases_and_charges", func(s *repository.StatementSnapshot) *decimal.Decimal { return s.PurchasesAndCharges }},
	{"interest_charged", func(s *repository.StatementSnapshot) *decimal.Decimal { return s.InterestCharged }},
	{"credit_limit", func(s *repository.StatementSnapshot) *decimal.Decimal { return s.CreditLimit }},
	{"available_credit", func(s *repository.StatementSnapshot) *decimal.Decimal { return s.AvailableCredit }},
	{"interest_rate", func(s *repository.StatementSnapshot) *decimal.Decimal { return s.InterestRate }},
	{"late_interest_rate", func(s *repository.StatementSnapshot) *decimal.Decimal { return s.LateInterestRate }},
	{"total_payment_due", func(s *repository.StatementSnapshot) *decimal.Decimal { return s.TotalPaymentDue }},
	{"minimum_payment", func(s *repository.StatementSnapshot) *decimal.Decimal { return s.MinimumPayment }},
	{"transaction_count", func(s *repository.StatementSnapshot) *decimal.Decimal { return count(s.TransactionCount) }},
	{"imported_count", func(s *repository.StatementSnapshot) *decimal.Decimal { return count(s.ImportedCount) }},
	{"skipped_count", func(s *repository.StatementSnapshot) *decimal.Decimal { return count(s.SkippedCount) }},
}

// Diff reports every numeric field present in either snapshot, in a fixed
// field order. With no previous snapshot every populated field is New.
func Diff(prev *repository.StatementSnapshot, curr repository.StatementSnapshot, opts Options) []FieldDiff {
	threshold := opts.AnomalyThreshold
	if threshold.IsZero() {
		threshold = DefaultAnomalyThreshold
	}

	var out []FieldDiff
	for _, f := range fields {
		cv := f.get(&curr)
		var pv *decimal.Decimal
		if prev != nil {
			pv = f.get(prev)
		}
		switch {
		case pv == nil && cv == nil:
			continue
		case pv == nil:
			out = append(out, FieldDiff{Field: f.name, Kind: New, Current: cv})
		case cv == nil:
			out = append(out, FieldDiff{Field: f.name, Kind: Missing, Previous: pv})
		default:
			out = append(out, compare(f.name, *pv, *cv, threshold))
		}
	}
	return out
}

func compare(name string, prev, curr, threshold decimal.Decimal) FieldDiff {
	delta := curr.Sub(prev)
	fd := FieldDiff{Field: name, Kind: Compared, Previous: &prev, Current: &curr, Delta: &delta}
	if prev.IsZero() {
		return fd
	}
	rel := delta.DivRound(prev.Abs(), 8).Round(4)
	fd.RelativeDelta = &rel
	fd.Anomalous = rel.Abs().GreaterThanOrEqual(threshold)
	return fd
}

// Changed returns the compared fields whose value moved, plus every new or
// missing field.
func Changed(diffs []FieldDiff) []FieldDiff {
	var out []FieldDiff
	for _, d := range diffs {
		if d.Kind != Compared || !d.Delta.IsZero() {
			out = append(out, d)
		}
	}
	return out
}
