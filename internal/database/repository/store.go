package repository

import "database/sql"

// Store bundles the sqlite repositories the import pipeline writes through.
type Store struct {
	*TransactionRepo
	*SnapshotRepo
	*CategoryRuleRepo
	*AccountRepo

	reviews *ReviewRepo
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		TransactionRepo:  NewTransactionRepo(db),
		SnapshotRepo:     NewSnapshotRepo(db),
		CategoryRuleRepo: NewCategoryRuleRepo(db),
		AccountRepo:      NewAccountRepo(db),
		reviews:          NewReviewRepo(db),
	}
}

// Reviews returns the pending review queue backed by the same database.
func (s *Store) Reviews() *ReviewRepo { return s.reviews }
