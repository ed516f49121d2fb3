package repository

import (
	"context"
	"database/sql"
)

// ReviewRepo persists imported transactions awaiting a duplicate decision.
type ReviewRepo struct{ db *sql.DB }

func NewReviewRepo(db *sql.DB) *ReviewRepo { return &ReviewRepo{db: db} }

func (r *ReviewRepo) Add(ctx context.Context, pr PendingReview) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO pending_reviews(id, user_id, transaction_id, candidate_id, score, status, created_at)
	VALUES(?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	ON CONFLICT(transaction_id, candidate_id) DO NOTHING
	`, pr.ID, pr.UserID, pr.TransactionID, pr.CandidateID, pr.Score, pr.Status)
	return err
}

// ListPending returns open reviews grouped by transaction, best candidate first.
func (r *ReviewRepo) ListPending(ctx context.Context, userID string) ([]PendingReview, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, user_id, transaction_id, candidate_id, score, status, created_at
	FROM pending_reviews WHERE user_id = ? AND status = ?
	ORDER BY created_at ASC, transaction_id, score DESC, candidate_id
	`, userID, ReviewPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PendingReview
	for rows.Next() {
		var pr PendingReview
		if err := rows.Scan(&pr.ID, &pr.UserID, &pr.TransactionID, &pr.CandidateID, &pr.Score, &pr.Status, &pr.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, pr)
	}
	return out, rows.Err()
}

// Close settles every open review of transactionID. The chosen candidate, if
// any, is marked merged and the rest dismissed.
// IsPending reports whether candidateID is still an open review of
// transactionID.
func (r *ReviewRepo) IsPending(ctx context.Context, userID, transactionID, candidateID string) (bool, error) {
	var exists int
	err := r.db.QueryRowContext(ctx, `
	SELECT EXISTS(SELECT 1 FROM pending_reviews
	 WHERE user_id = ? AND transaction_id = ? AND candidate_id = ? AND status = ?)
	`, userID, transactionID, candidateID, ReviewPending).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists == 1, nil
}

func (r *ReviewRepo) Close(ctx context.Context, userID, transactionID, chosenCandidateID string) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE pending_reviews
	SET status = CASE WHEN candidate_id = ? THEN ? ELSE ? END
	WHERE user_id = ? AND transaction_id = ? AND status = ?
	`, chosenCandidateID, ReviewMerged, ReviewDismissed, userID, transactionID, ReviewPending)
	return err
}
