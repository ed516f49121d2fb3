package service

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/charmbracelet/log"
	"github.com/dgraph-io/ristretto"

	"github.com/jask/stmtsync/internal/database/repository"
	"github.com/jask/stmtsync/internal/textnorm"
)

// MinSuggestSimilarity is the lowest pattern similarity a fuzzy suggestion
// may have.
const MinSuggestSimilarity = 0.80

// RuleSource is the text of a transaction a rule is learned from or
// matched against.
type RuleSource struct {
	MerchantName     string
	CleanDescription string
	RawDescription   string
}

// SourceOf returns the rule source text of a stored transaction.
func SourceOf(t repository.Transaction) RuleSource {
	src := RuleSource{RawDescription: t.RawDescription}
	if t.MerchantName != nil {
		src.MerchantName = *t.MerchantName
	}
	if t.CleanDescription != nil {
		src.CleanDescription = *t.CleanDescription
	}
	return src
}

func (r RuleSource) pattern() (string, bool) {
	return textnorm.ExtractPattern(r.MerchantName, r.CleanDescription, r.RawDescription)
}

// Suggestion is a category proposed by a learned rule.
type Suggestion struct {
	CategoryID string
	Pattern    string
	MatchCount int
	Similarity float64
}

// CategoryRuleService learns merchant pattern rules from confirmed
// categorizations and suggests categories from them.
type CategoryRuleService struct {
	Store   RuleStore
	Logger  *log.Logger
	Metrics *Metrics

	cache *ristretto.Cache
}

func NewCategoryRuleService(store RuleStore, logger *log.Logger) (*CategoryRuleService, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10000,
		MaxCost:     10000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("rule cache: %w", err)
	}
	return &CategoryRuleService{Store: store, Logger: orDiscard(logger), cache: cache}, nil
}

func (s *CategoryRuleService) Close() {
	s.cache.Close()
}

func ruleCacheKey(userID, pattern string) string {
	return userID + "|" + pattern
}

// Learn records that src was categorized as categoryID. It returns nil when
// src yields no usable pattern.
func (s *CategoryRuleService) Learn(ctx context.Context, userID string, src RuleSource, categoryID string) (*repository.CategoryRule, error) {
	pattern, ok := src.pattern()
	if !ok {
		return nil, nil
	}
	rule, err := s.Store.UpsertCategoryRule(ctx, userID, pattern, categoryID)
	if err != nil {
		return nil, err
	}
	s.cache.Del(ruleCacheKey(userID, pattern))
	s.Metrics.ruleLearned()
	s.Logger.Debug("category rule learned", "pattern", pattern, "category", categoryID, "matches", rule.MatchCount)
	return &rule, nil
}

// LearnBulk applies Learn to every source and reports how many rules were
// written. Failures do not stop the remaining sources.
func (s *CategoryRuleService) LearnBulk(ctx context.Context, userID string, srcs []RuleSource, categoryID string) (int, error) {
	var errs []error
	learned := 0
	for _, src := range srcs {
		rule, err := s.Learn(ctx, userID, src, categoryID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if rule != nil {
			learned++
		}
	}
	return learned, errors.Join(errs...)
}

// Suggest looks up the rule for src's pattern, falling back to the closest
// learned pattern. It returns nil when nothing is close enough.
func (s *CategoryRuleService) Suggest(ctx context.Context, userID string, src RuleSource) (*Suggestion, error) {
	pattern, ok := src.pattern()
	if !ok {
		return nil, nil
	}
	key := ruleCacheKey(userID, pattern)
	if v, found := s.cache.Get(key); found {
		rule := v.(repository.CategoryRule)
		return &Suggestion{CategoryID: rule.CategoryID, Pattern: rule.Pattern, MatchCount: rule.MatchCount, Similarity: 1}, nil
	}

	rule, err := s.Store.FindCategoryRule(ctx, userID, pattern)
	if err != nil {
		return nil, fmt.Errorf("find rule: %w", err)
	}
	if rule != nil {
		s.cache.Set(key, *rule, 1)
		return &Suggestion{CategoryID: rule.CategoryID, Pattern: rule.Pattern, MatchCount: rule.MatchCount, Similarity: 1}, nil
	}

	rules, err := s.Store.ListCategoryRules(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	var best *Suggestion
	for _, r := range rules {
		sim := patternSimilarity(pattern, r.Pattern)
		if sim < MinSuggestSimilarity {
			continue
		}
		if best == nil || sim > best.Similarity || (sim == best.Similarity && r.MatchCount > best.MatchCount) {
			best = &Suggestion{CategoryID: r.CategoryID, Pattern: r.Pattern, MatchCount: r.MatchCount, Similarity: sim}
		}
	}
	return best, nil
}

// Rules lists the user's rules, most confirmed first.
func (s *CategoryRuleService) Rules(ctx context.Context, userID string) ([]repository.CategoryRule, error) {
	return s.Store.ListCategoryRules(ctx, userID)
}

func patternSimilarity(a, b string) float64 {
	n := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if n == 0 {
		return 0
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(n)
}
