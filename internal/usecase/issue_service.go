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

type IssueRepository interface {
	Create(ctx context.Context, issue *domain.Issue) error
	GetById(ctx context.Context, issueId string) (*domain.Issue, error)
	ListByProject(ctx context.Context, projectId string) ([]*domain.Issue, error)
	Close(ctx context.Context, issueId string) error
}

type IssueService struct {
	issues IssueRepository
	sink   events.Sink
	log    *zap.Logger
}

func NewIssueService(issues IssueRepository, sink events.Sink, log *zap.Logger) *IssueService {
	return &IssueService{
		issues: issues,
		sink:   sink,
		log:    log,
	}
}

func (s *IssueService) Create(ctx context.Context, projectId, authorId, title, body string) (*domain.Issue, error) {
	if title == "" {
		return nil, ErrInvalidInput
	}

	issue := &domain.Issue{
		Id:        uuid.NewString(),
		ProjectId: projectId,
		Title:     title,
		Body:      body,
		AuthorId:  authorId,
	}
	if err := s.issues.Create(ctx, issue); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}

	s.sink.Publish(events.Event{
		Kind:      events.KindIssueOpened,
		ProjectId: projectId,
		ActorId:   authorId,
		Payload:   map[string]string{"issue_id": issue.Id},
	})
	return issue, nil
}

func (s *IssueService) GetById(ctx context.Context, issueId string) (*domain.Issue, error) {
	issue, err := s.issues.GetById(ctx, issueId)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrIssueNotFound
		}
		return nil, err
	}
	return issue, nil
}

func (s *IssueService) Close(ctx context.Context, issueId string) (*domain.Issue, error) {
	if err := s.issues.Close(ctx, issueId); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, WrapError(ErrAlreadyExists, err)
		}
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrIssueNotFound
		}
		return nil, err
	}

	issue, err := s.issues.GetById(ctx, issueId)
	if err != nil {
		return nil, err
	}
	return issue, nil
}

func (s *IssueService) ListByProject(ctx context.Context, projectId string) ([]*domain.Issue, error) {
	return s.issues.ListByProject(ctx, projectId)
}
