package reconcile

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/jask/stmtsync/internal/database/repository"
)

func strPtr(s string) *string { return &s }

func date(d int) time.Time { return time.Date(2025, 1, d, 0, 0, 0, 0, time.UTC) }

func imported(day int, desc string) repository.ImportedTransaction {
	return repository.ImportedTransaction{
		AccountID:      "acc1",
		Amount:         decimal.NewFromInt(50000),
		Direction:      repository.DirectionOutflow,
		Currency:       "COP",
		Date:           date(day),
		RawDescription: desc,
	}
}

func existing(id string, day int, desc string) repository.Transaction {
	return repository.Transaction{
		ID:             id,
		AccountID:      "acc1",
		Amount:         decimal.NewFromInt(50000),
		Direction:      repository.DirectionOutflow,
		Currency:       "COP",
		Date:           date(day),
		RawDescription: desc,
		CaptureMethod:  repository.CaptureManual,
	}
}

func TestScoreIneligiblePairs(t *testing.T) {
	t.Parallel()
	in := imported(15, "RAPPI BOGOTA")

	reconciled := existing("a", 15, "RAPPI BOGOTA")
	reconciled.ReconciledIntoID = strPtr("other")

	otherAccount := existing("b", 15, "RAPPI BOGOTA")
	otherAccount.AccountID = "acc2"

	otherDirection := existing("c", 15, "RAPPI BOGOTA")
	otherDirection.Direction = repository.DirectionInflow

	otherAmount := existing("d", 15, "RAPPI BOGOTA")
	otherAmount.Amount = decimal.RequireFromString("50000.001")

	tooFar := existing("e", 19, "RAPPI BOGOTA")

	for _, c := range []repository.Transaction{reconciled, otherAccount, otherDirection, otherAmount, tooFar} {
		require.Nil(t, Score(in, c), "candidate %s", c.ID)
	}

	withinTolerance := existing("f", 18, "RAPPI BOGOTA")
	withinTolerance.Amount = decimal.RequireFromString("50000.0001")
	require.NotNil(t, Score(in, withinTolerance))
}

func TestScoreExamples(t *testing.T) {
	t.Parallel()

	m := Score(imported(15, "RAPPI MCDONALDS"), existing("a", 14, "RAPPI MCDONALDS"))
	require.NotNil(t, m)
	require.Equal(t, 1.0, m.Score)
	require.Equal(t, AutoMerge, m.Decision)
	require.Equal(t, 1, m.DaysDiff)

	m = Score(imported(15, "RAPPI MCDONALDS"), existing("b", 18, "gasolina terpel"))
	require.NotNil(t, m)
	require.Equal(t, 0.65, m.Score)
	require.Equal(t, NoMatch, m.Decision)
	require.Equal(t, 0.0, m.TextSimilarity)

	// Half the tokens shared, same day: 0.55 + 0.20 + 0.125.
	m = Score(imported(15, "RAPPI MCDONALDS"), existing("c", 15, "rappi restaurante"))
	require.NotNil(t, m)
	require.Equal(t, 0.875, m.Score)
	require.Equal(t, Review, m.Decision)
}

func TestScoreUsesMerchantAndCleanDescription(t *testing.T) {
	t.Parallel()
	e := existing("a", 15, "")
	e.MerchantName = strPtr("Rappi")
	e.CleanDescription = strPtr("McDonalds")

	m := Score(imported(15, "COMPRA RAPPI MCDONALDS"), e)
	require.NotNil(t, m)
	require.Equal(t, 1.0, m.TextSimilarity)
	require.Equal(t, AutoMerge, m.Decision)
}

func TestScoreMonotonic(t *testing.T) {
	t.Parallel()
	descs := []string{"alpha beta gamma delta", "alpha beta gamma zeta", "alpha beta eta zeta", "alpha theta eta zeta", "iota theta eta zeta"}
	for day := 15; day <= 18; day++ {
		prev := 2.0
		for _, d := range descs {
			m := Score(imported(15, "alpha beta gamma delta"), existing("x", day, d))
			require.NotNil(t, m)
			require.LessOrEqual(t, m.Score, prev, "day %d desc %q", day, d)
			prev = m.Score
		}
	}
	for _, d := range descs {
		prev := 2.0
		for day := 15; day <= 18; day++ {
			m := Score(imported(15, "alpha beta gamma delta"), existing("x", day, d))
			require.NotNil(t, m)
			require.LessOrEqual(t, m.Score, prev, "day %d desc %q", day, d)
			prev = m.Score
		}
	}
}

func TestTextSimilarity(t *testing.T) {
	t.Parallel()
	require.Equal(t, 0.0, TextSimilarity("", ""))
	require.Equal(t, 0.0, TextSimilarity("rappi", ""))
	require.Equal(t, 1.0, TextSimilarity("rappi bogota", "rappi bogota"))
	require.Equal(t, 1.0, TextSimilarity("bogota rappi", "rappi bogota"))
	require.InDelta(t, 1.0/3.0, TextSimilarity("rappi", "rappi mcdonalds bogota"), 1e-9)
}

func TestDayDistanceIgnoresTimeOfDay(t *testing.T) {
	t.Parallel()
	a := time.Date(2025, 1, 15, 23, 59, 0, 0, time.UTC)
	b := time.Date(2025, 1, 16, 0, 1, 0, 0, time.UTC)
	require.Equal(t, 1, DayDistance(a, b))
	require.Equal(t, 1, DayDistance(b, a))
	require.Equal(t, 0, DayDistance(a, date(15)))
}

func TestRankOrdersAndBreaksTiesByID(t *testing.T) {
	t.Parallel()
	r := Rank(imported(15, "RAPPI MCDONALDS"), []repository.Transaction{
		existing("b", 15, "gasolina"),
		existing("a", 15, "gasolina"),
		existing("z", 15, "RAPPI MCDONALDS"),
		existing("far", 20, "RAPPI MCDONALDS"),
	})
	require.NotNil(t, r.Best)
	require.Equal(t, "z", r.Best.CandidateID)
	require.Equal(t, AutoMerge, r.Best.Decision)
	require.Len(t, r.Ranked, 3)
	require.Equal(t, []string{"z", "a", "b"}, []string{r.Ranked[0].CandidateID, r.Ranked[1].CandidateID, r.Ranked[2].CandidateID})
}

func TestRankEmpty(t *testing.T) {
	t.Parallel()
	r := Rank(imported(15, "RAPPI"), nil)
	require.Nil(t, r.Best)
	require.Empty(t, r.Ranked)
}

func TestDecideAmbiguityDowngrade(t *testing.T) {
	t.Parallel()
	r := Decide([]Match{
		{CandidateID: "a", Score: 0.95},
		{CandidateID: "b", Score: 0.90},
	})
	require.Equal(t, Review, r.Best.Decision)
	require.Equal(t, Review, r.Ranked[0].Decision)
	require.Equal(t, AutoMerge, r.Ranked[1].Decision)

	// Exactly at the margin still counts as ambiguous.
	r = Decide([]Match{{CandidateID: "a", Score: 1.0}, {CandidateID: "b", Score: 0.92}})
	require.Equal(t, Review, r.Best.Decision)

	r = Decide([]Match{{CandidateID: "a", Score: 1.0}, {CandidateID: "b", Score: 0.65}})
	require.Equal(t, AutoMerge, r.Best.Decision)

	r = Decide([]Match{{CandidateID: "a", Score: 0.70}, {CandidateID: "b", Score: 0.65}})
	require.Equal(t, NoMatch, r.Best.Decision)
}

func TestRankingWithoutClaimed(t *testing.T) {
	t.Parallel()
	r := Decide([]Match{
		{CandidateID: "a", Score: 0.95},
		{CandidateID: "b", Score: 0.90},
	})
	require.Equal(t, Review, r.Best.Decision)

	rest := r.Without(map[string]struct{}{"a": {}})
	require.Equal(t, "b", rest.Best.CandidateID)
	require.Equal(t, AutoMerge, rest.Best.Decision)

	none := r.Without(map[string]struct{}{"a": {}, "b": {}})
	require.Nil(t, none.Best)
}

func TestMergeMetadata(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name         string
		in           MergeInput
		wantCategory *string
		wantSource   repository.CategorySource
		wantNotes    *string
		wantCarried  bool
	}{
		{
			name:         "user category carried",
			in:           MergeInput{ManualCategoryID: strPtr("food"), ManualSource: repository.CategorySourceUserCreated},
			wantCategory: strPtr("food"),
			wantSource:   repository.CategorySourceUserCreated,
			wantCarried:  true,
		},
		{
			name:         "override carried",
			in:           MergeInput{ManualCategoryID: strPtr("food"), ManualSource: repository.CategorySourceUserOverride},
			wantCategory: strPtr("food"),
			wantSource:   repository.CategorySourceUserOverride,
			wantCarried:  true,
		},
		{
			name: "system default dropped",
			in:   MergeInput{ManualCategoryID: strPtr("misc"), ManualSource: repository.CategorySourceSystemDefault},
		},
		{
			name: "rule dropped",
			in:   MergeInput{ManualCategoryID: strPtr("misc"), ManualSource: repository.CategorySourceRule},
		},
		{
			name:         "imported category wins",
			in:           MergeInput{ManualCategoryID: strPtr("food"), ManualSource: repository.CategorySourceUserCreated, ImportedCategoryID: strPtr("travel")},
			wantCategory: strPtr("travel"),
			wantSource:   repository.CategorySourceImport,
		},
		{
			name:      "imported notes preferred",
			in:        MergeInput{ManualNotes: strPtr("manual"), ImportedNotes: strPtr("statement")},
			wantNotes: strPtr("statement"),
		},
		{
			name:      "manual notes fallback",
			in:        MergeInput{ManualNotes: strPtr("manual")},
			wantNotes: strPtr("manual"),
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := MergeMetadata(tc.in)
			require.Equal(t, tc.wantCategory, got.CategoryID)
			require.Equal(t, tc.wantSource, got.CategorySource)
			require.Equal(t, tc.wantNotes, got.Notes)
			require.Equal(t, tc.wantCarried, got.CarriedManualCategory)
			require.Equal(t, repository.CaptureStatementImport, got.CaptureMethod)
		})
	}
}

func BenchmarkRank(b *testing.B) {
	cands := make([]repository.Transaction, 50)
	for i := range cands {
		cands[i] = existing(fmt.Sprintf("c%02d", i), 13+i%5, "RAPPI MCDONALDS BOGOTA")
	}
	in := imported(15, "COMPRA EN RAPPI*MCDONALDS BOGOTA 12345")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Rank(in, cands)
	}
}
