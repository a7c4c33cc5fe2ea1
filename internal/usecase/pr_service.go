package usecase

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sourcehub/sourcehub/internal/domain"
	"github.com/sourcehub/sourcehub/internal/events"
	"github.com/sourcehub/sourcehub/internal/infrastructure/repository"
	"go.uber.org/zap"
)

// PrService handles pull request lifecycle outside of merging.
type PrService struct {
	prs   PrRepository
	store *RepoService
	sink  events.Sink
	log   *zap.Logger
}

func NewPrService(prs PrRepository, store *RepoService, sink events.Sink, log *zap.Logger) *PrService {
	return &PrService{
		prs:   prs,
		store: store,
		sink:  sink,
		log:   log,
	}
}

func (s *PrService) Create(ctx context.Context, projectId, authorId, title, body, sourceBranch, targetBranch string) (*domain.PullRequest, error) {
	if title == "" || sourceBranch == "" || targetBranch == "" || sourceBranch == targetBranch {
		return nil, ErrInvalidInput
	}

	repo, err := s.store.GetRepositoryByProject(ctx, projectId)
	if err != nil {
		return nil, err
	}

	// Both branches must exist before a PR can reference them.
	if _, err := s.store.ResolveRef(ctx, repo.Id, sourceBranch); err != nil {
		return nil, err
	}
	if _, err := s.store.ResolveRef(ctx, repo.Id, targetBranch); err != nil {
		return nil, err
	}

	pr := &domain.PullRequest{
		Id:           uuid.NewString(),
		ProjectId:    projectId,
		Title:        title,
		Body:         body,
		AuthorId:     authorId,
		SourceBranch: sourceBranch,
		TargetBranch: targetBranch,
	}
	if err := s.prs.Create(ctx, pr); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}

	s.sink.Publish(events.Event{
		Kind:      events.KindPrOpened,
		ProjectId: projectId,
		ActorId:   authorId,
		Payload:   map[string]string{"pr_id": pr.Id},
	})
	return pr, nil
}

func (s *PrService) GetById(ctx context.Context, prId string) (*domain.PullRequest, error) {
	pr, err := s.prs.GetById(ctx, prId)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPrNotFound
		}
		return nil, err
	}
	return pr, nil
}

// GetDiff computes the target...source diff shown on the PR view.
func (s *PrService) GetDiff(ctx context.Context, pr *domain.PullRequest) ([]domain.DiffFile, error) {
	repo, err := s.store.GetRepositoryByProject(ctx, pr.ProjectId)
	if err != nil {
		return nil, err
	}
	return s.store.Diff(ctx, repo.Id, pr.TargetBranch, pr.SourceBranch)
}

func (s *PrService) ListByProject(ctx context.Context, projectId string) ([]*domain.PullRequest, error) {
	return s.prs.ListByProject(ctx, projectId)
}

func (s *PrService) Close(ctx context.Context, prId string) (*domain.PullRequest, error) {
	if err := s.prs.Close(ctx, prId); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, WrapError(ErrAlreadyExists, err)
		}
		return nil, err
	}
	return s.GetById(ctx, prId)
}
