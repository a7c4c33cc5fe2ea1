package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/sourcehub/sourcehub/internal/domain"
	"github.com/sourcehub/sourcehub/internal/gitwire"
	"github.com/sourcehub/sourcehub/internal/infrastructure/repository"
	"go.uber.org/zap"
)

// RefAdvertisement is the ref listing sent on info/refs: HEAD's target
// first, then branches in name order.
type RefAdvertisement struct {
	DefaultBranch string
	Branches      []*domain.Branch
}

// RefResult reports the outcome of one receive-pack command in the shape
// of git's report-status: ok or ng with a reason.
type RefResult struct {
	Ref    string
	Ok     bool
	Reason string
}

// GitService backs the Smart HTTP endpoints with the ref/commit graph.
type GitService struct {
	store   *RepoService
	reviews *ReviewService
	log     *zap.Logger
}

func NewGitService(store *RepoService, reviews *ReviewService, log *zap.Logger) *GitService {
	return &GitService{
		store:   store,
		reviews: reviews,
		log:     log,
	}
}

// Advertisement lists the repository's refs for the discovery response.
func (s *GitService) Advertisement(ctx context.Context, repoId string) (*RefAdvertisement, error) {
	repo, err := s.store.GetRepository(ctx, repoId)
	if err != nil {
		return nil, err
	}

	branches, err := s.store.ListBranches(ctx, repoId)
	if err != nil {
		return nil, err
	}

	sort.Slice(branches, func(i, j int) bool {
		// HEAD's target branch leads, per the http-protocol ordering
		switch {
		case branches[i].Name == repo.DefaultBranch:
			return true
		case branches[j].Name == repo.DefaultBranch:
			return false
		default:
			return branches[i].Name < branches[j].Name
		}
	})

	return &RefAdvertisement{
		DefaultBranch: repo.DefaultBranch,
		Branches:      branches,
	}, nil
}

// ApplyCommands executes the ref updates of a receive-pack request one by
// one. Per-ref failures are reported, not propagated: a losing CAS yields
// an ng non-fast-forward entry and the remaining commands still run.
func (s *GitService) ApplyCommands(ctx context.Context, projectId, repoId string, commands []gitwire.RefCommand) []RefResult {
	results := make([]RefResult, 0, len(commands))
	for _, cmd := range commands {
		result := s.applyCommand(ctx, projectId, repoId, cmd)
		results = append(results, result)

		if result.Ok && !cmd.IsDelete() {
			s.reviews.DismissStaleForPush(ctx, projectId, cmd.BranchName())
		}
	}
	return results
}

func (s *GitService) applyCommand(ctx context.Context, projectId, repoId string, cmd gitwire.RefCommand) RefResult {
	name := cmd.BranchName()
	if name == "" {
		return ng(cmd, "unsupported ref")
	}

	switch {
	case cmd.IsDelete():
		if err := s.store.DeleteBranch(ctx, projectId, repoId, name); err != nil {
			return ngErr(cmd, err)
		}
		return ok(cmd)

	case cmd.IsCreate():
		// The pushed tip must already exist in the commit graph.
		if _, err := s.store.ResolveRef(ctx, repoId, cmd.New); err != nil {
			return ng(cmd, "unknown commit")
		}
		if _, err := s.store.CreateBranch(ctx, repoId, name, cmd.New); err != nil {
			var domainErr *DomainError
			if errors.As(err, &domainErr) && domainErr.Code == "CONFLICT" {
				return ng(cmd, "branch already exists")
			}
			return ngErr(cmd, err)
		}
		return ok(cmd)

	default:
		return s.updateRef(ctx, projectId, repoId, name, cmd)
	}
}

func (s *GitService) updateRef(ctx context.Context, projectId, repoId, name string, cmd gitwire.RefCommand) RefResult {
	branch, err := s.store.branches.GetByName(ctx, repoId, name)
	if err != nil {
		return ng(cmd, "unknown ref")
	}
	if _, err := s.store.commits.GetByHash(ctx, repoId, cmd.New); err != nil {
		return ng(cmd, "unknown commit")
	}

	fastForward, err := s.store.IsAncestor(ctx, repoId, cmd.Old, cmd.New)
	if err != nil {
		return ngErr(cmd, err)
	}

	if !fastForward {
		rule, err := s.store.MatchingRule(ctx, projectId, name)
		if err != nil {
			return ngErr(cmd, err)
		}
		if rule == nil || !rule.AllowForcePushes {
			return ng(cmd, "non-fast-forward")
		}
		if branch.HeadCommit != cmd.Old {
			return ng(cmd, "non-fast-forward")
		}
		if err := s.store.branches.ForceSetHead(ctx, branch.Id, cmd.New); err != nil {
			return ngErr(cmd, err)
		}
		s.log.Info("forced ref update",
			zap.String("repository_id", repoId),
			zap.String("ref", cmd.Ref),
		)
		return ok(cmd)
	}

	// CAS from the hash the client observed; a concurrent winner makes
	// this a non-fast-forward for us.
	if err := s.store.branches.AdvanceHead(ctx, branch.Id, cmd.Old, cmd.New); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return ng(cmd, "non-fast-forward")
		}
		return ngErr(cmd, err)
	}
	return ok(cmd)
}

// PackSnapshot encodes the commits reachable from the given tips (all
// branch heads when empty). The store is a pluggable ref+commit graph, so
// the payload is its snapshot encoding rather than a packfile.
func (s *GitService) PackSnapshot(ctx context.Context, repoId string, tips []string) ([]byte, error) {
	if len(tips) == 0 {
		branches, err := s.store.ListBranches(ctx, repoId)
		if err != nil {
			return nil, err
		}
		for _, b := range branches {
			tips = append(tips, b.HeadCommit)
		}
	}

	seen := map[string]bool{}
	var commits []*domain.Commit
	queue := append([]string(nil), tips...)
	for len(queue) > 0 {
		hash := queue[0]
		queue = queue[1:]
		if hash == "" || seen[hash] {
			continue
		}
		seen[hash] = true

		c, err := s.store.commits.GetByHash(ctx, repoId, hash)
		if err != nil {
			return nil, translateRepoErr(err)
		}
		commits = append(commits, c)
		if c.ParentHash != nil {
			queue = append(queue, *c.ParentHash)
		}
		if c.SecondParent != nil {
			queue = append(queue, *c.SecondParent)
		}
	}

	return json.Marshal(commits)
}

func ok(cmd gitwire.RefCommand) RefResult {
	return RefResult{Ref: cmd.Ref, Ok: true}
}

func ng(cmd gitwire.RefCommand, reason string) RefResult {
	return RefResult{Ref: cmd.Ref, Reason: reason}
}

func ngErr(cmd gitwire.RefCommand, err error) RefResult {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		switch domainErr.Code {
		case "CONFLICT":
			return ng(cmd, "non-fast-forward")
		case "FORBIDDEN":
			return ng(cmd, "protected branch")
		case "BAD_REQUEST":
			return ng(cmd, "invalid ref name")
		case "NOT_FOUND":
			return ng(cmd, "unknown ref")
		}
	}
	return ng(cmd, fmt.Sprintf("internal error: %v", err))
}
