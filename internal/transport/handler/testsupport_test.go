package handler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcehub/sourcehub/internal/cache"
	"github.com/sourcehub/sourcehub/internal/domain"
	"github.com/sourcehub/sourcehub/internal/events"
	"github.com/sourcehub/sourcehub/internal/infrastructure/repository"
	"github.com/sourcehub/sourcehub/internal/usecase"
	"go.uber.org/zap"
)

// In-memory collaborators for handler tests. The usecase layer is real;
// only the persistence edge is faked.

type nopSink struct{}

func (nopSink) Publish(events.Event) {}

type stubVerifier struct{}

func (stubVerifier) VerifyPassword(ctx context.Context, usernameOrEmail, password string) (string, error) {
	if usernameOrEmail == "alice" && password == "secret" {
		return "u1", nil
	}
	return "", errors.New("bad credentials")
}

func (stubVerifier) VerifyToken(ctx context.Context, token string) (string, error) {
	switch token {
	case "member-token":
		return "u1", nil
	case "viewer-token":
		return "u2", nil
	}
	return "", errors.New("bad token")
}

// stubMembers maps user ids to fixed direct roles.
type stubMembers struct {
	roles map[string]domain.Role
}

func (s stubMembers) DirectRole(ctx context.Context, projectId, userId string) (domain.Role, error) {
	role, ok := s.roles[userId]
	if !ok {
		return "", repository.ErrNotFound
	}
	return role, nil
}

func (s stubMembers) TeamRoles(ctx context.Context, userId, projectId string) ([]domain.Role, error) {
	return nil, nil
}

func (s stubMembers) TeamMembers(ctx context.Context, teamId string) ([]string, error) {
	return nil, nil
}

type stubProjects struct {
	project *domain.Project
}

func (s stubProjects) GetById(ctx context.Context, projectId string) (*domain.Project, error) {
	if s.project == nil || s.project.Id != projectId {
		return nil, repository.ErrNotFound
	}
	return s.project, nil
}

type fakeRepoRepo struct {
	repos map[string]*domain.Repository
}

func (f *fakeRepoRepo) GetById(ctx context.Context, repoId string) (*domain.Repository, error) {
	repo, ok := f.repos[repoId]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return repo, nil
}

func (f *fakeRepoRepo) GetByProjectId(ctx context.Context, projectId string) (*domain.Repository, error) {
	for _, repo := range f.repos {
		if repo.ProjectId == projectId {
			return repo, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeRepoRepo) SetDefaultBranch(ctx context.Context, repoId, branch string) error {
	repo, ok := f.repos[repoId]
	if !ok {
		return repository.ErrNotFound
	}
	repo.DefaultBranch = branch
	return nil
}

type fakeBranchRepo struct {
	mu   sync.Mutex
	byId map[string]*domain.Branch
}

func (f *fakeBranchRepo) Create(ctx context.Context, b *domain.Branch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.byId {
		if existing.RepositoryId == b.RepositoryId && existing.Name == b.Name {
			return repository.ErrAlreadyExists
		}
	}
	clone := *b
	f.byId[b.Id] = &clone
	return nil
}

func (f *fakeBranchRepo) GetByName(ctx context.Context, repoId, name string) (*domain.Branch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.byId {
		if b.RepositoryId == repoId && b.Name == name {
			clone := *b
			return &clone, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeBranchRepo) ListByRepository(ctx context.Context, repoId string) ([]*domain.Branch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Branch
	for _, b := range f.byId {
		if b.RepositoryId == repoId {
			clone := *b
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (f *fakeBranchRepo) AdvanceHead(ctx context.Context, branchId, observed, next string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.byId[branchId]
	if !ok {
		return repository.ErrNotFound
	}
	if b.HeadCommit != observed {
		return repository.ErrConflict
	}
	b.HeadCommit = next
	return nil
}

func (f *fakeBranchRepo) ForceSetHead(ctx context.Context, branchId, next string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.byId[branchId]
	if !ok {
		return repository.ErrNotFound
	}
	b.HeadCommit = next
	return nil
}

func (f *fakeBranchRepo) Delete(ctx context.Context, repoId, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, b := range f.byId {
		if b.RepositoryId == repoId && b.Name == name {
			delete(f.byId, id)
			return nil
		}
	}
	return repository.ErrNotFound
}

type fakeCommitRepo struct {
	mu       sync.Mutex
	commits  map[string]*domain.Commit
	branches *fakeBranchRepo
}

func (f *fakeCommitRepo) AppendToBranch(ctx context.Context, c *domain.Commit, branchId, observedHead string) error {
	if err := f.branches.AdvanceHead(ctx, branchId, observedHead, c.Hash); err != nil {
		return err
	}
	return f.Insert(ctx, c)
}

func (f *fakeCommitRepo) Insert(ctx context.Context, c *domain.Commit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits[c.RepositoryId+"/"+c.Hash] = c
	return nil
}

func (f *fakeCommitRepo) GetByHash(ctx context.Context, repoId, hash string) (*domain.Commit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.commits[repoId+"/"+hash]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return c, nil
}

type fakeProtectionRepo struct {
	rules []*domain.BranchProtectionRule
}

func (f *fakeProtectionRepo) Create(ctx context.Context, rule *domain.BranchProtectionRule) error {
	f.rules = append(f.rules, rule)
	return nil
}

func (f *fakeProtectionRepo) List(ctx context.Context, projectId, pattern string) ([]*domain.BranchProtectionRule, error) {
	var out []*domain.BranchProtectionRule
	for _, rule := range f.rules {
		if rule.ProjectId == projectId {
			out = append(out, rule)
		}
	}
	return out, nil
}

func (f *fakeProtectionRepo) Delete(ctx context.Context, projectId, pattern string) error {
	return nil
}

type fakePrRepo struct {
	mu  sync.Mutex
	prs map[string]*domain.PullRequest
}

func (f *fakePrRepo) Create(ctx context.Context, pr *domain.PullRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	pr.Number = len(f.prs) + 1
	pr.State = domain.PrStateOpen
	clone := *pr
	f.prs[pr.Id] = &clone
	return nil
}

func (f *fakePrRepo) GetById(ctx context.Context, prId string) (*domain.PullRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pr, ok := f.prs[prId]
	if !ok {
		return nil, repository.ErrNotFound
	}
	clone := *pr
	return &clone, nil
}

func (f *fakePrRepo) ListByProject(ctx context.Context, projectId string) ([]*domain.PullRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.PullRequest
	for _, pr := range f.prs {
		if pr.ProjectId == projectId {
			clone := *pr
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (f *fakePrRepo) ListOpenBySource(ctx context.Context, projectId, sourceBranch string) ([]*domain.PullRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.PullRequest
	for _, pr := range f.prs {
		if pr.ProjectId == projectId && pr.SourceBranch == sourceBranch && pr.State == domain.PrStateOpen {
			clone := *pr
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (f *fakePrRepo) MarkMerged(ctx context.Context, prId string, strategy domain.MergeStrategy, mergedBy, mergeCommit string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	pr, ok := f.prs[prId]
	if !ok {
		return repository.ErrNotFound
	}
	if pr.State != domain.PrStateOpen {
		return repository.ErrConflict
	}
	now := time.Now()
	pr.State = domain.PrStateMerged
	pr.MergeStrategy = &strategy
	pr.MergedAt = &now
	pr.MergedBy = &mergedBy
	pr.MergeCommit = &mergeCommit
	return nil
}

func (f *fakePrRepo) Close(ctx context.Context, prId string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	pr, ok := f.prs[prId]
	if !ok {
		return repository.ErrNotFound
	}
	if pr.State != domain.PrStateOpen {
		return repository.ErrConflict
	}
	pr.State = domain.PrStateClosed
	return nil
}

type fakeReviewRepo struct {
	mu      sync.Mutex
	reviews []*domain.Review
}

func (f *fakeReviewRepo) Create(ctx context.Context, review *domain.Review) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	review.CreatedAt = time.Now()
	f.reviews = append(f.reviews, review)
	return nil
}

func (f *fakeReviewRepo) LatestByReviewer(ctx context.Context, prId string) ([]*domain.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	latest := map[string]*domain.Review{}
	for _, review := range f.reviews {
		if review.PullRequestId != prId {
			continue
		}
		latest[review.ReviewerId] = review
	}
	var out []*domain.Review
	for _, review := range latest {
		out = append(out, review)
	}
	return out, nil
}

func (f *fakeReviewRepo) DismissApprovals(ctx context.Context, prId string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.reviews[:0]
	for _, review := range f.reviews {
		if review.PullRequestId == prId && review.State == domain.ReviewApproved {
			continue
		}
		kept = append(kept, review)
	}
	f.reviews = kept
	return nil
}

// env wires real services over the fakes around one seeded project.
type env struct {
	projectId string
	repoId    string
	project   *domain.Project

	auth    *usecase.AuthService
	access  *usecase.AccessService
	store   *usecase.RepoService
	git     *usecase.GitService
	prs     *usecase.PrService
	reviews *usecase.ReviewService
	merges  *usecase.MergeService

	branches *fakeBranchRepo
	commits  *fakeCommitRepo
	prRepo   *fakePrRepo
	rules    *fakeProtectionRepo
}

// newEnv seeds one private project whose repository has an initialized
// "main" branch. u1 is MEMBER, u2 VIEWER, everyone else has no grant.
func newEnv() *env {
	log := zap.NewNop()
	projectId := uuid.NewString()
	repoId := uuid.NewString()

	project := &domain.Project{
		Id:               projectId,
		Name:             "demo",
		OwnerId:          "owner",
		Visibility:       domain.VisibilityPrivate,
		DefaultBranch:    "main",
		RequireApprovals: 1,
		AllowSelfMerge:   true,
	}

	repos := &fakeRepoRepo{repos: map[string]*domain.Repository{
		repoId: {Id: repoId, ProjectId: projectId, DefaultBranch: "main", Initialized: true},
	}}
	branches := &fakeBranchRepo{byId: map[string]*domain.Branch{}}
	commits := &fakeCommitRepo{commits: map[string]*domain.Commit{}, branches: branches}
	rules := &fakeProtectionRepo{}
	prRepo := &fakePrRepo{prs: map[string]*domain.PullRequest{}}
	reviewRepo := &fakeReviewRepo{}

	members := stubMembers{roles: map[string]domain.Role{
		"u1":    domain.RoleMember,
		"u2":    domain.RoleViewer,
		"owner": domain.RoleOwner,
	}}

	store := usecase.NewRepoService(repos, branches, commits, rules, log)
	if err := store.InitRepository(context.Background(), repoId, "main", "owner"); err != nil {
		panic(err)
	}

	auth := usecase.NewAuthService(stubVerifier{}, log)
	access := usecase.NewAccessService(members, stubProjects{project: project}, cache.NewMemoryStore(), time.Minute, log)
	prService := usecase.NewPrService(prRepo, store, nopSink{}, log)
	reviewService := usecase.NewReviewService(reviewRepo, prRepo, store, nopSink{}, log)
	mergeService := usecase.NewMergeService(prRepo, reviewRepo, stubProjects{project: project}, store, branches, commits, nopSink{}, log)
	gitService := usecase.NewGitService(store, reviewService, log)

	return &env{
		projectId: projectId,
		repoId:    repoId,
		project:   project,
		auth:      auth,
		access:    access,
		store:     store,
		git:       gitService,
		prs:       prService,
		reviews:   reviewService,
		merges:    mergeService,
		branches:  branches,
		commits:   commits,
		prRepo:    prRepo,
		rules:     rules,
	}
}
