package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/sourcehub/sourcehub/internal/domain"
	"github.com/sourcehub/sourcehub/internal/events"
	"github.com/sourcehub/sourcehub/internal/infrastructure/repository"
	"go.uber.org/zap"
)

type PrRepository interface {
	Create(ctx context.Context, pr *domain.PullRequest) error
	GetById(ctx context.Context, prId string) (*domain.PullRequest, error)
	ListByProject(ctx context.Context, projectId string) ([]*domain.PullRequest, error)
	ListOpenBySource(ctx context.Context, projectId, sourceBranch string) ([]*domain.PullRequest, error)
	MarkMerged(ctx context.Context, prId string, strategy domain.MergeStrategy, mergedBy, mergeCommit string) error
	Close(ctx context.Context, prId string) error
}

type ReviewRepository interface {
	Create(ctx context.Context, review *domain.Review) error
	LatestByReviewer(ctx context.Context, prId string) ([]*domain.Review, error)
	DismissApprovals(ctx context.Context, prId string) error
}

// Verdict is the result of a merge precondition check. Reasons are
// enumerable codes, not free text.
type Verdict struct {
	Allowed bool          `json:"allowed"`
	Reasons []MergeReason `json:"reasons,omitempty"`
}

// MergeService validates merge preconditions and executes one of the three
// integration strategies against the repository store.
type MergeService struct {
	prs      PrRepository
	reviews  ReviewRepository
	projects projectReader
	store    *RepoService
	branches BranchRepository
	commits  CommitRepository
	sink     events.Sink
	log      *zap.Logger
}

func NewMergeService(
	prs PrRepository,
	reviews ReviewRepository,
	projects projectReader,
	store *RepoService,
	branches BranchRepository,
	commits CommitRepository,
	sink events.Sink,
	log *zap.Logger,
) *MergeService {
	return &MergeService{
		prs:      prs,
		reviews:  reviews,
		projects: projects,
		store:    store,
		branches: branches,
		commits:  commits,
		sink:     sink,
		log:      log,
	}
}

// CanMerge collects every blocking condition so the caller can render the
// full list at once.
func (s *MergeService) CanMerge(ctx context.Context, pr *domain.PullRequest, actorId string) (Verdict, error) {
	project, err := s.projects.GetById(ctx, pr.ProjectId)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Verdict{}, ErrProjectNotFound
		}
		return Verdict{}, err
	}

	var reasons []MergeReason

	if pr.State != domain.PrStateOpen {
		reasons = append(reasons, MergeReason{Code: ReasonPrNotOpen})
	}

	latest, err := s.reviews.LatestByReviewer(ctx, pr.Id)
	if err != nil {
		return Verdict{}, err
	}

	approvals := 0
	changesRequested := false
	ownerApproved := false
	for _, review := range latest {
		switch review.State {
		case domain.ReviewApproved:
			approvals++
			if review.ReviewerId == project.OwnerId {
				ownerApproved = true
			}
		case domain.ReviewChangesRequested:
			changesRequested = true
		}
	}

	if changesRequested {
		reasons = append(reasons, MergeReason{Code: ReasonChangesRequested})
	}

	rule, err := s.store.MatchingRule(ctx, pr.ProjectId, pr.TargetBranch)
	if err != nil {
		return Verdict{}, err
	}

	// The stricter of project-level and rule-level requirements applies.
	required := project.RequireApprovals
	if rule != nil && rule.RequiredApprovingReviews > required {
		required = rule.RequiredApprovingReviews
	}
	if approvals < required {
		reasons = append(reasons, MergeReason{
			Code:      ReasonInsufficientApprovals,
			Approvals: approvals,
			Required:  required,
		})
	}

	if !project.AllowSelfMerge && actorId == pr.AuthorId {
		reasons = append(reasons, MergeReason{Code: ReasonSelfMergeDisallowed})
	}

	ownerRequired := project.RequireReviewFromOwner || (rule != nil && rule.RequireCodeOwnerReview)
	if ownerRequired && !ownerApproved {
		reasons = append(reasons, MergeReason{Code: ReasonOwnerReviewRequired})
	}

	return Verdict{Allowed: len(reasons) == 0, Reasons: reasons}, nil
}

// Merge re-validates preconditions, executes the strategy and records the
// result on the PR. A concurrent target move surfaces as CONFLICT with the
// PR left untouched; the engine never retries on its own.
func (s *MergeService) Merge(ctx context.Context, prId string, strategy domain.MergeStrategy, actorId string) (*domain.PullRequest, error) {
	pr, err := s.prs.GetById(ctx, prId)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPrNotFound
		}
		return nil, err
	}

	verdict, err := s.CanMerge(ctx, pr, actorId)
	if err != nil {
		return nil, err
	}
	if !verdict.Allowed {
		return nil, &MergeBlockedError{Reasons: verdict.Reasons}
	}

	repo, err := s.store.GetRepositoryByProject(ctx, pr.ProjectId)
	if err != nil {
		return nil, err
	}

	source, err := s.branches.GetByName(ctx, repo.Id, pr.SourceBranch)
	if err != nil {
		return nil, translateRepoErr(err)
	}
	target, err := s.branches.GetByName(ctx, repo.Id, pr.TargetBranch)
	if err != nil {
		return nil, translateRepoErr(err)
	}

	var mergeCommit string
	switch strategy {
	case domain.StrategyMerge:
		mergeCommit, err = s.mergeCommit(ctx, pr, repo.Id, source, target)
	case domain.StrategySquash:
		mergeCommit, err = s.squash(ctx, pr, repo.Id, source, target, actorId)
	case domain.StrategyRebase:
		mergeCommit, err = s.rebase(ctx, repo.Id, source, target)
	default:
		return nil, WrapError(ErrInvalidInput, fmt.Errorf("unknown merge strategy %q", strategy))
	}
	if err != nil {
		return nil, err
	}

	if err := s.prs.MarkMerged(ctx, pr.Id, strategy, actorId, mergeCommit); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, WrapError(ErrNonFastForward, err)
		}
		return nil, err
	}

	s.sink.Publish(events.Event{
		Kind:      events.KindPrMerged,
		ProjectId: pr.ProjectId,
		ActorId:   actorId,
		Payload: map[string]string{
			"pr_id":        pr.Id,
			"strategy":     string(strategy),
			"merge_commit": mergeCommit,
		},
	})

	s.log.Info("PR merge executed",
		zap.String("pr_id", pr.Id),
		zap.String("strategy", string(strategy)),
		zap.String("merge_commit", mergeCommit),
	)

	return s.prs.GetById(ctx, pr.Id)
}

// mergeCommit creates a two-parent commit on the target whose tree is the
// source tree.
func (s *MergeService) mergeCommit(ctx context.Context, pr *domain.PullRequest, repoId string, source, target *domain.Branch) (string, error) {
	sourceHead, err := s.commits.GetByHash(ctx, repoId, source.HeadCommit)
	if err != nil {
		return "", translateRepoErr(err)
	}

	message := fmt.Sprintf("Merge branch %q into %q", pr.SourceBranch, pr.TargetBranch)
	targetHead := target.HeadCommit
	commit := NewCommitObject(repoId, target.Id, pr.AuthorId, message, &targetHead, &source.HeadCommit, sourceHead.Files)

	if err := s.commits.AppendToBranch(ctx, commit, target.Id, targetHead); err != nil {
		return "", translateRepoErr(err)
	}
	return commit.Hash, nil
}

// squash creates a single-parent commit carrying the cumulative source
// changes since divergence, with the PR title and body as the message.
func (s *MergeService) squash(ctx context.Context, pr *domain.PullRequest, repoId string, source, target *domain.Branch, actorId string) (string, error) {
	base, err := s.store.MergeBase(ctx, repoId, target.HeadCommit, source.HeadCommit)
	if err != nil {
		return "", err
	}

	baseCommit, err := s.commits.GetByHash(ctx, repoId, base)
	if err != nil {
		return "", translateRepoErr(err)
	}
	sourceHead, err := s.commits.GetByHash(ctx, repoId, source.HeadCommit)
	if err != nil {
		return "", translateRepoErr(err)
	}
	targetHead, err := s.commits.GetByHash(ctx, repoId, target.HeadCommit)
	if err != nil {
		return "", translateRepoErr(err)
	}

	files := overlayChanges(baseCommit.Files, sourceHead.Files, targetHead.Files)
	message := pr.Title
	if pr.Body != "" {
		message += "\n\n" + pr.Body
	}

	head := target.HeadCommit
	commit := NewCommitObject(repoId, target.Id, actorId, message, &head, nil, files)
	if err := s.commits.AppendToBranch(ctx, commit, target.Id, head); err != nil {
		return "", translateRepoErr(err)
	}
	return commit.Hash, nil
}

// rebase recreates each source commit since divergence on top of the target
// head, preserving authorship, then fast-forwards the target to the last
// recreated commit.
func (s *MergeService) rebase(ctx context.Context, repoId string, source, target *domain.Branch) (string, error) {
	base, err := s.store.MergeBase(ctx, repoId, target.HeadCommit, source.HeadCommit)
	if err != nil {
		return "", err
	}

	chain, err := s.store.CommitsSince(ctx, repoId, base, source.HeadCommit)
	if err != nil {
		return "", err
	}
	if len(chain) == 0 {
		return target.HeadCommit, nil
	}

	observedHead := target.HeadCommit
	current, err := s.commits.GetByHash(ctx, repoId, observedHead)
	if err != nil {
		return "", translateRepoErr(err)
	}

	files := current.Files
	parentHash := observedHead
	prevFiles := map[string]string{}
	if baseCommit, err := s.commits.GetByHash(ctx, repoId, base); err == nil {
		prevFiles = baseCommit.Files
	}

	var last *domain.Commit
	for _, original := range chain {
		files = overlayChanges(prevFiles, original.Files, files)
		parent := parentHash
		recreated := NewCommitObject(repoId, target.Id, original.AuthorId, original.Message, &parent, nil, files)
		if err := s.commits.Insert(ctx, recreated); err != nil {
			return "", translateRepoErr(err)
		}
		parentHash = recreated.Hash
		prevFiles = original.Files
		last = recreated
	}

	// Fast-forward; a concurrent target move loses the CAS and the
	// recreated commits stay unreferenced.
	if err := s.branches.AdvanceHead(ctx, target.Id, observedHead, last.Hash); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return "", WrapError(ErrNonFastForward, err)
		}
		return "", err
	}
	return last.Hash, nil
}

// overlayChanges applies the base→next delta on top of onto.
func overlayChanges(base, next, onto map[string]string) map[string]string {
	out := make(map[string]string, len(onto))
	for p, content := range onto {
		out[p] = content
	}
	for p, content := range next {
		if base[p] != content {
			out[p] = content
		}
	}
	for p := range base {
		if _, kept := next[p]; !kept {
			delete(out, p)
		}
	}
	return out
}
