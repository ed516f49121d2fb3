package reconcile

import (
	"sort"

	"github.com/jask/stmtsync/internal/database/repository"
)

// AmbiguityMargin is how close the runner-up may score before the best match
// needs a human to confirm it.
const AmbiguityMargin = 0.08

// Ranking is the ordered outcome of scoring every candidate of one line.
// Best is nil when nothing qualified.
type Ranking struct {
	Best   *Match
	Ranked []Match
}

// Rank scores every candidate against imported and orders the survivors by
// score, then candidate id.
func Rank(imported repository.ImportedTransaction, candidates []repository.Transaction) Ranking {
	ranked := make([]Match, 0, len(candidates))
	for _, c := range candidates {
		if m := Score(imported, c); m != nil {
			ranked = append(ranked, *m)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].CandidateID < ranked[j].CandidateID
	})
	return Decide(ranked)
}

// Decide applies the decision policy to an already ordered list. Decisions
// are recomputed from scores, so it can be re-run after candidates are
// removed from a ranking.
func Decide(ranked []Match) Ranking {
	if len(ranked) == 0 {
		return Ranking{}
	}
	out := make([]Match, len(ranked))
	for i, m := range ranked {
		m.Decision = decisionFor(m.Score)
		out[i] = m
	}
	if out[0].Decision != NoMatch && len(out) > 1 && out[0].Score-out[1].Score <= AmbiguityMargin+1e-9 {
		out[0].Decision = Review
	}
	best := out[0]
	return Ranking{Best: &best, Ranked: out}
}

// Without returns the ranking minus the given candidates, with the policy
// re-applied.
func (r Ranking) Without(claimed map[string]struct{}) Ranking {
	if len(claimed) == 0 {
		return r
	}
	kept := make([]Match, 0, len(r.Ranked))
	for _, m := range r.Ranked {
		if _, taken := claimed[m.CandidateID]; !taken {
			kept = append(kept, m)
		}
	}
	return Decide(kept)
}
