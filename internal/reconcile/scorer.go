// Package reconcile decides whether a statement line duplicates a record the
// user already entered by hand, and how the two records' metadata combine.
package reconcile

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jask/stmtsync/internal/database/repository"
	"github.com/jask/stmtsync/internal/textnorm"
)

// Decision is the reconciliation tier of a candidate.
type Decision string

const (
	AutoMerge Decision = "AUTO_MERGE"
	Review    Decision = "REVIEW"
	NoMatch   Decision = "NO_MATCH"
)

const (
	// MaxDayDistance is the widest date gap still considered a candidate.
	MaxDayDistance = 3

	baseScore      = 0.55
	nearDateBonus  = 0.20
	farDateBonus   = 0.10
	textWeight     = 0.25
	autoMergeScore = 0.90
	reviewScore    = 0.75
)

var amountTolerance = decimal.New(1, -4)

// Match is the score of one existing record against an imported line.
type Match struct {
	CandidateID    string
	Score          float64
	Decision       Decision
	DaysDiff       int
	TextSimilarity float64
}

// Score rates existing as a duplicate of imported. It returns nil when the
// pair can never be the same transaction.
func Score(imported repository.ImportedTransaction, existing repository.Transaction) *Match {
	if existing.ReconciledIntoID != nil {
		return nil
	}
	if existing.AccountID != imported.AccountID || existing.Direction != imported.Direction {
		return nil
	}
	if existing.Amount.Sub(imported.Amount).Abs().GreaterThan(amountTolerance) {
		return nil
	}
	days := DayDistance(imported.Date, existing.Date)
	if days > MaxDayDistance {
		return nil
	}

	sim := TextSimilarity(
		textnorm.Normalize(imported.RawDescription),
		textnorm.Normalize(existing.RawDescription, deref(existing.MerchantName), deref(existing.CleanDescription)),
	)
	score := baseScore + textWeight*sim
	switch {
	case days <= 1:
		score += nearDateBonus
	case days <= MaxDayDistance:
		score += farDateBonus
	}
	score = round4(score)
	return &Match{
		CandidateID:    existing.ID,
		Score:          score,
		Decision:       decisionFor(score),
		DaysDiff:       days,
		TextSimilarity: round4(sim),
	}
}

// TextSimilarity is the token overlap of two normalized strings divided by
// the size of the larger token set.
func TextSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	ta, tb := textnorm.Tokens(a), textnorm.Tokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	shared := 0
	for tok := range ta {
		if _, ok := tb[tok]; ok {
			shared++
		}
	}
	return float64(shared) / float64(max(len(ta), len(tb)))
}

// DayDistance counts calendar days between a and b, ignoring time of day.
func DayDistance(a, b time.Time) int {
	d := civilDay(a) - civilDay(b)
	if d < 0 {
		d = -d
	}
	return int(d)
}

func civilDay(t time.Time) int64 {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400
}

func decisionFor(score float64) Decision {
	switch {
	case score >= autoMergeScore:
		return AutoMerge
	case score >= reviewScore:
		return Review
	default:
		return NoMatch
	}
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
