package usecase

import (
	"context"

	"github.com/google/uuid"
	"github.com/sourcehub/sourcehub/internal/domain"
	"github.com/sourcehub/sourcehub/internal/events"
	"go.uber.org/zap"
)

// ReviewService records reviews and dismisses stale approvals on pushes.
type ReviewService struct {
	reviews ReviewRepository
	prs     PrRepository
	store   *RepoService
	sink    events.Sink
	log     *zap.Logger
}

func NewReviewService(reviews ReviewRepository, prs PrRepository, store *RepoService, sink events.Sink, log *zap.Logger) *ReviewService {
	return &ReviewService{
		reviews: reviews,
		prs:     prs,
		store:   store,
		sink:    sink,
		log:     log,
	}
}

func (s *ReviewService) Submit(ctx context.Context, prId, reviewerId string, state domain.ReviewState, body string) (*domain.Review, error) {
	switch state {
	case domain.ReviewApproved, domain.ReviewChangesRequested, domain.ReviewCommented:
	default:
		return nil, ErrInvalidInput
	}

	pr, err := s.prs.GetById(ctx, prId)
	if err != nil {
		return nil, ErrPrNotFound
	}
	if pr.State != domain.PrStateOpen {
		return nil, ErrPrNotOpen
	}

	review := &domain.Review{
		Id:            uuid.NewString(),
		PullRequestId: prId,
		ReviewerId:    reviewerId,
		State:         state,
		Body:          body,
	}
	if err := s.reviews.Create(ctx, review); err != nil {
		return nil, err
	}

	s.sink.Publish(events.Event{
		Kind:      events.KindReviewSubmitted,
		ProjectId: pr.ProjectId,
		ActorId:   reviewerId,
		Payload: map[string]string{
			"pr_id": prId,
			"state": string(state),
		},
	})
	return review, nil
}

// DismissStaleForPush drops approvals on open PRs whose source branch just
// received commits, when the target's protection rule asks for it.
func (s *ReviewService) DismissStaleForPush(ctx context.Context, projectId, sourceBranch string) {
	prs, err := s.prs.ListOpenBySource(ctx, projectId, sourceBranch)
	if err != nil {
		s.log.Warn("stale review scan failed",
			zap.String("project_id", projectId),
			zap.String("branch", sourceBranch),
			zap.Error(err),
		)
		return
	}

	for _, pr := range prs {
		rule, err := s.store.MatchingRule(ctx, projectId, pr.TargetBranch)
		if err != nil || rule == nil || !rule.DismissStaleReviews {
			continue
		}
		if err := s.reviews.DismissApprovals(ctx, pr.Id); err != nil {
			s.log.Warn("approval dismissal failed",
				zap.String("pr_id", pr.Id),
				zap.Error(err),
			)
		}
	}
}
