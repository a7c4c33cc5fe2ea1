package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/sourcehub/sourcehub/internal/cache"
	"github.com/sourcehub/sourcehub/internal/domain"
	"github.com/sourcehub/sourcehub/internal/infrastructure/repository"
	"go.uber.org/zap"
)

type MemberRepository interface {
	DirectRole(ctx context.Context, projectId, userId string) (domain.Role, error)
	TeamRoles(ctx context.Context, userId, projectId string) ([]domain.Role, error)
	TeamMembers(ctx context.Context, teamId string) ([]string, error)
}

type projectReader interface {
	GetById(ctx context.Context, projectId string) (*domain.Project, error)
}

// AccessService computes the effective role of a principal on a project.
// Results are cached with a TTL; mutating callers must invalidate before
// returning. The TTL alone is not enough for a permission change to land.
type AccessService struct {
	members  MemberRepository
	projects projectReader
	store    cache.Store
	ttl      time.Duration
	log      *zap.Logger
}

func NewAccessService(members MemberRepository, projects projectReader, store cache.Store, ttl time.Duration, log *zap.Logger) *AccessService {
	return &AccessService{
		members:  members,
		projects: projects,
		store:    store,
		ttl:      ttl,
		log:      log,
	}
}

// EffectiveRole returns the highest-privilege grant reachable through the
// direct or team path, "" when the principal has no access. An anonymous
// principal (empty userId) only ever gets public read.
func (s *AccessService) EffectiveRole(ctx context.Context, userId, projectId string) (domain.Role, error) {
	if userId != "" {
		if role, ok := s.store.Get(cache.Key(userId, projectId)); ok {
			return role, nil
		}
	}

	role, err := s.computeRole(ctx, userId, projectId)
	if err != nil {
		return "", err
	}

	if userId != "" && role != "" {
		s.store.Set(cache.Key(userId, projectId), role, s.ttl)
	}
	return role, nil
}

func (s *AccessService) computeRole(ctx context.Context, userId, projectId string) (domain.Role, error) {
	if userId != "" {
		direct, err := s.members.DirectRole(ctx, projectId, userId)
		switch {
		case err == nil:
			return s.maxWithTeamRoles(ctx, userId, projectId, direct)
		case errors.Is(err, repository.ErrNotFound):
			// fall through to the team path
		default:
			return "", err
		}

		teamRole, err := s.maxWithTeamRoles(ctx, userId, projectId, "")
		if err != nil {
			return "", err
		}
		if teamRole != "" {
			return teamRole, nil
		}
	}

	// No grant: PUBLIC projects are readable, PRIVATE ones are invisible.
	project, err := s.projects.GetById(ctx, projectId)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrProjectNotFound
		}
		return "", err
	}
	if project.Visibility == domain.VisibilityPublic {
		return domain.RoleViewer, nil
	}
	return "", nil
}

func (s *AccessService) maxWithTeamRoles(ctx context.Context, userId, projectId string, base domain.Role) (domain.Role, error) {
	teamRoles, err := s.members.TeamRoles(ctx, userId, projectId)
	if err != nil {
		return "", err
	}

	best := base
	for _, role := range teamRoles {
		if best == "" {
			best = role
			continue
		}
		best = domain.MaxRole(best, role)
	}
	return best, nil
}

// Invalidate evicts the cached role for one (user, project) pair. Callers
// mutating membership must call this before answering their own caller.
func (s *AccessService) Invalidate(userId, projectId string) {
	s.store.Delete(cache.Key(userId, projectId))
	s.log.Debug("permission cache invalidated",
		zap.String("user_id", userId),
		zap.String("project_id", projectId),
	)
}

// InvalidateTeamGrant evicts every current member of the team for the
// project. Enumerates membership at eviction time.
func (s *AccessService) InvalidateTeamGrant(ctx context.Context, teamId, projectId string) error {
	userIds, err := s.members.TeamMembers(ctx, teamId)
	if err != nil {
		return err
	}
	for _, userId := range userIds {
		s.store.Delete(cache.Key(userId, projectId))
	}

	s.log.Debug("team grant cache invalidated",
		zap.String("team_id", teamId),
		zap.String("project_id", projectId),
		zap.Int("members", len(userIds)),
	)
	return nil
}
