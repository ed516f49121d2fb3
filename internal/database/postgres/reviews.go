package postgres

import (
	"context"

	"github.com/jask/stmtsync/internal/database/repository"
)

// Reviews exposes the pending review queue stored alongside transactions.
type Reviews struct{ s *Store }

func (s *Store) Reviews() *Reviews { return &Reviews{s: s} }

func (r *Reviews) Add(ctx context.Context, pr repository.PendingReview) error {
	_, err := r.s.Pool.Exec(ctx, `
	INSERT INTO pending_reviews(id, user_id, transaction_id, candidate_id, score, status)
	VALUES($1, $2, $3, $4, $5, $6)
	ON CONFLICT (transaction_id, candidate_id) DO NOTHING
	`, pr.ID, pr.UserID, pr.TransactionID, pr.CandidateID, pr.Score, pr.Status)
	return err
}

func (r *Reviews) ListPending(ctx context.Context, userID string) ([]repository.PendingReview, error) {
	rows, err := r.s.Pool.Query(ctx, `
	SELECT id, user_id, transaction_id, candidate_id, score, status, created_at
	FROM pending_reviews WHERE user_id = $1 AND status = $2
	ORDER BY created_at, transaction_id, score DESC, candidate_id
	`, userID, repository.ReviewPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []repository.PendingReview
	for rows.Next() {
		var pr repository.PendingReview
		if err := rows.Scan(&pr.ID, &pr.UserID, &pr.TransactionID, &pr.CandidateID, &pr.Score, &pr.Status, &pr.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, pr)
	}
	return out, rows.Err()
}

func (r *Reviews) IsPending(ctx context.Context, userID, transactionID, candidateID string) (bool, error) {
	var exists bool
	err := r.s.Pool.QueryRow(ctx, `
	SELECT EXISTS(SELECT 1 FROM pending_reviews
	 WHERE user_id = $1 AND transaction_id = $2 AND candidate_id = $3 AND status = $4)
	`, userID, transactionID, candidateID, repository.ReviewPending).Scan(&exists)
	return exists, err
}

func (r *Reviews) Close(ctx context.Context, userID, transactionID, chosenCandidateID string) error {
	_, err := r.s.Pool.Exec(ctx, `
	UPDATE pending_reviews
	SET status = CASE WHEN candidate_id = $1 THEN $2 ELSE $3 END
	WHERE user_id = $4 AND transaction_id = $5 AND status = $6
	`, chosenCandidateID, repository.ReviewMerged, repository.ReviewDismissed, userID, transactionID, repository.ReviewPending)
	return err
}
