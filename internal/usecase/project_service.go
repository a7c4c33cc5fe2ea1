package usecase

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sourcehub/sourcehub/internal/domain"
	"github.com/sourcehub/sourcehub/internal/infrastructure/repository"
	"go.uber.org/zap"
)

type ProjectRepository interface {
	Create(ctx context.Context, p *domain.Project, repoId string) error
	GetById(ctx context.Context, projectId string) (*domain.Project, error)
	UpdateSettings(ctx context.Context, p *domain.Project) error
}

type MemberWriter interface {
	UpsertMember(ctx context.Context, projectId, userId string, role domain.Role) error
	DeleteMember(ctx context.Context, projectId, userId string) error
	UpsertTeamGrant(ctx context.Context, teamId, projectId string, role domain.Role) error
	DeleteTeamGrant(ctx context.Context, teamId, projectId string) error
}

// ProjectService owns project lifecycle, settings, membership and
// protection-rule administration. Every grant mutation evicts the
// permission cache before the call returns.
type ProjectService struct {
	projects    ProjectRepository
	members     MemberWriter
	access      *AccessService
	store       *RepoService
	protections ProtectionRepository
	log         *zap.Logger
}

func NewProjectService(
	projects ProjectRepository,
	members MemberWriter,
	access *AccessService,
	store *RepoService,
	protections ProtectionRepository,
	log *zap.Logger,
) *ProjectService {
	return &ProjectService{
		projects:    projects,
		members:     members,
		access:      access,
		store:       store,
		protections: protections,
		log:         log,
	}
}

// Create provisions the project, its repository row, the owner grant and
// the initialized default branch with a root commit.
func (s *ProjectService) Create(ctx context.Context, name, ownerId string, visibility domain.Visibility, defaultBranch string) (*domain.Project, error) {
	if name == "" || ownerId == "" {
		return nil, ErrInvalidInput
	}
	if defaultBranch == "" {
		defaultBranch = "main"
	}
	if !ValidBranchName(defaultBranch) {
		return nil, ErrBadBranchName
	}
	if visibility == "" {
		visibility = domain.VisibilityPrivate
	}

	project := &domain.Project{
		Id:             uuid.NewString(),
		Name:           name,
		OwnerId:        ownerId,
		Visibility:     visibility,
		DefaultBranch:  defaultBranch,
		AllowSelfMerge: true,
	}
	repoId := uuid.NewString()

	if err := s.projects.Create(ctx, project, repoId); err != nil {
		return nil, err
	}
	if err := s.store.InitRepository(ctx, repoId, defaultBranch, ownerId); err != nil {
		return nil, err
	}

	s.log.Info("project provisioned",
		zap.String("project_id", project.Id),
		zap.String("repository_id", repoId),
	)
	return project, nil
}

func (s *ProjectService) GetById(ctx context.Context, projectId string) (*domain.Project, error) {
	project, err := s.projects.GetById(ctx, projectId)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}
	return project, nil
}

func (s *ProjectService) UpdateSettings(ctx context.Context, p *domain.Project) error {
	if p.RequireApprovals < 0 {
		return ErrInvalidInput
	}
	if !ValidBranchName(p.DefaultBranch) {
		return ErrBadBranchName
	}

	// The repository row mirrors default_branch for the git surface;
	// repoint it first so a missing branch rejects the whole update.
	if err := s.store.SetDefaultBranch(ctx, p.Id, p.DefaultBranch); err != nil {
		return err
	}

	if err := s.projects.UpdateSettings(ctx, p); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrProjectNotFound
		}
		return err
	}
	return nil
}

// AddMember sets a direct grant and evicts the cached role before returning.
func (s *ProjectService) AddMember(ctx context.Context, projectId, userId string, role domain.Role) error {
	if !role.Valid() {
		return ErrInvalidInput
	}
	if err := s.members.UpsertMember(ctx, projectId, userId, role); err != nil {
		if errors.Is(err, repository.ErrInvalidInput) {
			return WrapError(ErrInvalidInput, err)
		}
		return err
	}

	s.access.Invalidate(userId, projectId)
	return nil
}

func (s *ProjectService) RemoveMember(ctx context.Context, projectId, userId string) error {
	if err := s.members.DeleteMember(ctx, projectId, userId); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	s.access.Invalidate(userId, projectId)
	return nil
}

// SetTeamGrant updates the team-level grant and evicts every current team
// member before returning.
func (s *ProjectService) SetTeamGrant(ctx context.Context, teamId, projectId string, role domain.Role) error {
	if !role.Valid() {
		return ErrInvalidInput
	}
	if err := s.members.UpsertTeamGrant(ctx, teamId, projectId, role); err != nil {
		if errors.Is(err, repository.ErrInvalidInput) {
			return WrapError(ErrInvalidInput, err)
		}
		return err
	}

	return s.access.InvalidateTeamGrant(ctx, teamId, projectId)
}

func (s *ProjectService) RemoveTeamGrant(ctx context.Context, teamId, projectId string) error {
	if err := s.members.DeleteTeamGrant(ctx, teamId, projectId); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrProjectNotFound
		}
		return err
	}

	return s.access.InvalidateTeamGrant(ctx, teamId, projectId)
}

func (s *ProjectService) CreateProtectionRule(ctx context.Context, rule *domain.BranchProtectionRule) error {
	if rule.BranchPattern == "" || rule.RequiredApprovingReviews < 0 {
		return ErrInvalidInput
	}
	rule.Id = uuid.NewString()

	if err := s.protections.Create(ctx, rule); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return WrapError(ErrRuleExists, err)
		}
		return err
	}
	return nil
}

func (s *ProjectService) ListProtectionRules(ctx context.Context, projectId string) ([]*domain.BranchProtectionRule, error) {
	return s.protections.List(ctx, projectId, "")
}

func (s *ProjectService) DeleteProtectionRule(ctx context.Context, projectId, pattern string) error {
	if err := s.protections.Delete(ctx, projectId, pattern); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrProjectNotFound
		}
		return err
	}
	return nil
}
