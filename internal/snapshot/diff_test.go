package snapshot

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/jask/stmtsync/internal/database/repository"
)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func byField(diffs []FieldDiff) map[string]FieldDiff {
	out := make(map[string]FieldDiff, len(diffs))
	for _, d := range diffs {
		out[d.Field] = d
	}
	return out
}

func TestDiffFirstImport(t *testing.T) {
	t.Parallel()
	curr := repository.StatementSnapshot{FinalBalance: dec("100"), TransactionCount: 4}

	diffs := Diff(nil, curr, Options{})
	got := byField(diffs)
	require.Len(t, diffs, 4) // final_balance and the three counts
	require.Equal(t, New, got["final_balance"].Kind)
	require.True(t, got["final_balance"].Current.Equal(decimal.NewFromInt(100)))
	require.Equal(t, New, got["transaction_count"].Kind)
}

func TestDiffComparedNewMissing(t *testing.T) {
	t.Parallel()
	prev := repository.StatementSnapshot{
		FinalBalance:   dec("1000.00"),
		MinimumPayment: dec("50000"),
		InterestRate:   dec("0.0250"),
		CreditLimit:    dec("0"),
	}
	curr := repository.StatementSnapshot{
		FinalBalance:    dec("1250.00"),
		MinimumPayment:  dec("120000"),
		CreditLimit:     dec("5000000"),
		AvailableCredit: dec("4000000"),
	}

	got := byField(Diff(&prev, curr, Options{}))

	fb := got["final_balance"]
	require.Equal(t, Compared, fb.Kind)
	require.True(t, fb.Delta.Equal(decimal.RequireFromString("250")))
	require.True(t, fb.RelativeDelta.Equal(decimal.RequireFromString("0.25")))
	require.False(t, fb.Anomalous)

	mp := got["minimum_payment"]
	require.True(t, mp.RelativeDelta.Equal(decimal.RequireFromString("1.4")))
	require.True(t, mp.Anomalous)

	cl := got["credit_limit"]
	require.Equal(t, Compared, cl.Kind)
	require.Nil(t, cl.RelativeDelta)
	require.False(t, cl.Anomalous)

	require.Equal(t, New, got["available_credit"].Kind)
	require.Nil(t, got["available_credit"].Previous)

	ir := got["interest_rate"]
	require.Equal(t, Missing, ir.Kind)
	require.Nil(t, ir.Current)
	require.True(t, ir.Previous.Equal(decimal.RequireFromString("0.025")))

	_, reported := got["total_debits"]
	require.False(t, reported)
}

func TestDiffNegativeBaseAndThreshold(t *testing.T) {
	t.Parallel()
	prev := repository.StatementSnapshot{FinalBalance: dec("-200")}
	curr := repository.StatementSnapshot{FinalBalance: dec("-300")}

	fb := byField(Diff(&prev, curr, Options{}))["final_balance"]
	require.True(t, fb.RelativeDelta.Equal(decimal.RequireFromString("-0.5")))
	require.True(t, fb.Anomalous)

	fb = byField(Diff(&prev, curr, Options{AnomalyThreshold: decimal.RequireFromString("0.75")}))["final_balance"]
	require.False(t, fb.Anomalous)
}

func TestDiffRelativeRounding(t *testing.T) {
	t.Parallel()
	prev := repository.StatementSnapshot{TotalDebits: dec("3")}
	curr := repository.StatementSnapshot{TotalDebits: dec("4")}
	td := byField(Diff(&prev, curr, Options{}))["total_debits"]
	require.Equal(t, "0.3333", td.RelativeDelta.String())
}

func TestDiffOrderIsStable(t *testing.T) {
	t.Parallel()
	prev := repository.StatementSnapshot{FinalBalance: dec("1"), PreviousBalance: dec("1"), MinimumPayment: dec("1")}
	curr := repository.StatementSnapshot{FinalBalance: dec("2"), PreviousBalance: dec("2"), MinimumPayment: dec("2")}
	var names []string
	for _, d := range Diff(&prev, curr, Options{}) {
		names = append(names, d.Field)
	}
	require.Equal(t, []string{
		"previous_balance", "final_balance", "minimum_payment",
		"transaction_count", "imported_count", "skipped_count",
	}, names)
}

func TestChanged(t *testing.T) {
	t.Parallel()
	prev := repository.StatementSnapshot{FinalBalance: dec("1"), TransactionCount: 3}
	curr := repository.StatementSnapshot{FinalBalance: dec("1"), TransactionCount: 5, CreditLimit: dec("10")}
	var names []string
	for _, d := range Changed(Diff(&prev, curr, Options{})) {
		names = append(names, d.Field)
	}
	require.Equal(t, []string{"credit_limit", "transaction_count"}, names)
}
