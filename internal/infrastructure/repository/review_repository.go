package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sourcehub/sourcehub/internal/domain"
	"go.uber.org/zap"
)

const (
	insertReviewQuery = `
INSERT INTO reviews(id, pull_request_id, reviewer_id, state, body)
VALUES ($1, $2, $3, $4, $5)
RETURNING created_at;`

	// Only the most recent review per reviewer counts toward aggregation;
	// earlier reviews by the same reviewer are superseded.
	selectLatestReviewsQuery = `
SELECT DISTINCT ON (reviewer_id)
       id, pull_request_id, reviewer_id, state, body, created_at
FROM reviews
WHERE pull_request_id = $1
ORDER BY reviewer_id, created_at DESC, id DESC;`

	dismissApprovalsQuery = `
DELETE FROM reviews
WHERE pull_request_id = $1 AND state = 'APPROVED';`
)

type ReviewRepository struct {
	db  *pgxpool.Pool
	log *zap.Logger
}

func NewReviewRepository(db *pgxpool.Pool, log *zap.Logger) *ReviewRepository {
	return &ReviewRepository{
		db:  db,
		log: log,
	}
}

func (r *ReviewRepository) Create(ctx context.Context, review *domain.Review) error {
	err := r.db.QueryRow(ctx, insertReviewQuery,
		review.Id, review.PullRequestId, review.ReviewerId, review.State, review.Body,
	).Scan(&review.CreatedAt)
	if err != nil {
		r.log.Error("failed to insert review",
			zap.String("pr_id", review.PullRequestId),
			zap.String("reviewer_id", review.ReviewerId),
			zap.Error(err),
		)
		return handleDBError(err)
	}

	r.log.Info("review submitted",
		zap.String("pr_id", review.PullRequestId),
		zap.String("reviewer_id", review.ReviewerId),
		zap.String("state", string(review.State)),
	)
	return nil
}

// LatestByReviewer returns the newest review of each reviewer on the PR.
func (r *ReviewRepository) LatestByReviewer(ctx context.Context, prId string) ([]*domain.Review, error) {
	rows, err := r.db.Query(ctx, selectLatestReviewsQuery, prId)
	if err != nil {
		return nil, handleDBError(err)
	}
	defer rows.Close()

	var reviews []*domain.Review
	for rows.Next() {
		review := &domain.Review{}
		err := rows.Scan(
			&review.Id,
			&review.PullRequestId,
			&review.ReviewerId,
			&review.State,
			&review.Body,
			&review.CreatedAt,
		)
		if err != nil {
			return nil, handleDBError(err)
		}
		reviews = append(reviews, review)
	}
	return reviews, rows.Err()
}

// DismissApprovals drops approving reviews after new commits land on the
// source branch, for rules with dismiss_stale_reviews.
func (r *ReviewRepository) DismissApprovals(ctx context.Context, prId string) error {
	cmdTag, err := r.db.Exec(ctx, dismissApprovalsQuery, prId)
	if err != nil {
		return handleDBError(err)
	}

	if cmdTag.RowsAffected() > 0 {
		r.log.Info("stale approvals dismissed",
			zap.String("pr_id", prId),
			zap.Int64("dismissed", cmdTag.RowsAffected()),
		)
	}
	return nil
}
