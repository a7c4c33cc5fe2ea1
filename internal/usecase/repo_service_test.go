package usecase

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/sourcehub/sourcehub/internal/domain"
	"github.com/sourcehub/sourcehub/internal/events"
	"github.com/sourcehub/sourcehub/internal/infrastructure/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// In-memory graph fakes. Mock-based expectations are a poor fit for the
// traversal-heavy operations, so these back the store tests and the merge
// strategy tests with a real (if tiny) commit graph.

type nopSink struct{}

func (nopSink) Publish(events.Event) {}

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
	mu       sync.Mutex
	byId     map[string]*domain.Branch
	advances int

	// forced error for the next AdvanceHead call
	advanceErr error
}

func newFakeBranchRepo() *fakeBranchRepo {
	return &fakeBranchRepo{byId: map[string]*domain.Branch{}}
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
	if f.advanceErr != nil {
		err := f.advanceErr
		f.advanceErr = nil
		return err
	}
	b, ok := f.byId[branchId]
	if !ok {
		return repository.ErrNotFound
	}
	if b.HeadCommit != observed {
		return repository.ErrConflict
	}
	b.HeadCommit = next
	f.advances++
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

func newFakeCommitRepo(branches *fakeBranchRepo) *fakeCommitRepo {
	return &fakeCommitRepo{commits: map[string]*domain.Commit{}, branches: branches}
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
	for _, existing := range f.rules {
		if existing.ProjectId == rule.ProjectId && existing.BranchPattern == rule.BranchPattern {
			return repository.ErrAlreadyExists
		}
	}
	f.rules = append(f.rules, rule)
	return nil
}

func (f *fakeProtectionRepo) List(ctx context.Context, projectId, pattern string) ([]*domain.BranchProtectionRule, error) {
	var out []*domain.BranchProtectionRule
	for _, rule := range f.rules {
		if rule.ProjectId != projectId {
			continue
		}
		if pattern != "" && rule.BranchPattern != pattern {
			continue
		}
		out = append(out, rule)
	}
	return out, nil
}

func (f *fakeProtectionRepo) Delete(ctx context.Context, projectId, pattern string) error {
	for i, rule := range f.rules {
		if rule.ProjectId == projectId && rule.BranchPattern == pattern {
			f.rules = append(f.rules[:i], f.rules[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

type storeFixture struct {
	service     *RepoService
	repos       *fakeRepoRepo
	branches    *fakeBranchRepo
	commits     *fakeCommitRepo
	protections *fakeProtectionRepo
	repoId      string
	projectId   string
}

// newStoreFixture seeds a repository with an initialized "main" branch.
func newStoreFixture(t *testing.T) *storeFixture {
	t.Helper()

	repoId := uuid.NewString()
	projectId := uuid.NewString()
	repos := &fakeRepoRepo{repos: map[string]*domain.Repository{
		repoId: {Id: repoId, ProjectId: projectId, DefaultBranch: "main", Initialized: true},
	}}
	branches := newFakeBranchRepo()
	commits := newFakeCommitRepo(branches)
	protections := &fakeProtectionRepo{}

	service := NewRepoService(repos, branches, commits, protections, zap.NewNop())
	require.NoError(t, service.InitRepository(context.Background(), repoId, "main", "founder"))

	return &storeFixture{
		service:     service,
		repos:       repos,
		branches:    branches,
		commits:     commits,
		protections: protections,
		repoId:      repoId,
		projectId:   projectId,
	}
}

func TestValidBranchName(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"main", true},
		{"feature/test-validation", true},
		{"release/v1.2.3", true},
		{"a/b/c", true},
		{"under_score", true},
		{"", false},
		{"feature//x", false},
		{"/leading", false},
		{"trailing/", false},
		{"with space", false},
		{"til~de", false},
		{"car^et", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, ValidBranchName(tt.name))
		})
	}
}

func TestRepoService_Commit_AppendsAndAdvancesHead(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()

	commit, err := f.service.Commit(ctx, f.repoId, "main", map[string]string{"a.txt": "hello\n"}, "add a", "u1")
	require.NoError(t, err)

	branch, err := f.branches.GetByName(ctx, f.repoId, "main")
	require.NoError(t, err)
	assert.Equal(t, commit.Hash, branch.HeadCommit)
	assert.Equal(t, "hello\n", commit.Files["a.txt"])
}

func TestRepoService_Commit_EmptyContentDeletesFile(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()

	_, err := f.service.Commit(ctx, f.repoId, "main", map[string]string{"a.txt": "x\n", "b.txt": "y\n"}, "seed", "u1")
	require.NoError(t, err)

	commit, err := f.service.Commit(ctx, f.repoId, "main", map[string]string{"a.txt": ""}, "drop a", "u1")
	require.NoError(t, err)

	assert.NotContains(t, commit.Files, "a.txt")
	assert.Equal(t, "y\n", commit.Files["b.txt"])
}

func TestRepoService_Commit_ConflictWhenHeadMoved(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()

	f.branches.advanceErr = repository.ErrConflict

	_, err := f.service.Commit(ctx, f.repoId, "main", map[string]string{"a.txt": "x\n"}, "racy", "u1")
	require.Error(t, err)

	var domainErr *DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "CONFLICT", domainErr.Code)
}

func TestRepoService_CreateBranch_InvalidName(t *testing.T) {
	f := newStoreFixture(t)

	_, err := f.service.CreateBranch(context.Background(), f.repoId, "feature//x", "")
	require.Error(t, err)

	var domainErr *DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "BAD_REQUEST", domainErr.Code)
}

func TestRepoService_CreateBranch_Duplicate(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()

	_, err := f.service.CreateBranch(ctx, f.repoId, "feature/a", "")
	require.NoError(t, err)

	_, err = f.service.CreateBranch(ctx, f.repoId, "feature/a", "")
	require.Error(t, err)

	var domainErr *DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "CONFLICT", domainErr.Code)
}

func TestRepoService_DeleteBranch_DefaultRefused(t *testing.T) {
	f := newStoreFixture(t)

	err := f.service.DeleteBranch(context.Background(), f.projectId, f.repoId, "main")
	require.Error(t, err)

	var domainErr *DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "FORBIDDEN", domainErr.Code)
}

func TestRepoService_DeleteBranch_ProtectedRefused(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()

	_, err := f.service.CreateBranch(ctx, f.repoId, "release/v1", "")
	require.NoError(t, err)
	f.protections.rules = append(f.protections.rules, &domain.BranchProtectionRule{
		ProjectId:     f.projectId,
		BranchPattern: "release/*",
	})

	err = f.service.DeleteBranch(ctx, f.projectId, f.repoId, "release/v1")
	require.Error(t, err)

	var domainErr *DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "FORBIDDEN", domainErr.Code)
}

func TestRepoService_SetDefaultBranch_RepointsRepository(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()

	_, err := f.service.CreateBranch(ctx, f.repoId, "dev", "")
	require.NoError(t, err)
	require.NoError(t, f.service.SetDefaultBranch(ctx, f.projectId, "dev"))

	repo, err := f.service.GetRepository(ctx, f.repoId)
	require.NoError(t, err)
	assert.Equal(t, "dev", repo.DefaultBranch)

	// the deletion guard follows the new default
	err = f.service.DeleteBranch(ctx, f.projectId, f.repoId, "dev")
	require.Error(t, err)
	var domainErr *DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "FORBIDDEN", domainErr.Code)

	require.NoError(t, f.service.DeleteBranch(ctx, f.projectId, f.repoId, "main"))
}

func TestRepoService_SetDefaultBranch_UnknownBranch(t *testing.T) {
	f := newStoreFixture(t)

	err := f.service.SetDefaultBranch(context.Background(), f.projectId, "ghost")
	require.Error(t, err)

	var domainErr *DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "NOT_FOUND", domainErr.Code)

	repo, err := f.service.GetRepository(context.Background(), f.repoId)
	require.NoError(t, err)
	assert.Equal(t, "main", repo.DefaultBranch)
}

func TestRepoService_MergeBaseAndAncestry(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()

	a, err := f.service.Commit(ctx, f.repoId, "main", map[string]string{"a.txt": "1\n"}, "a", "u1")
	require.NoError(t, err)

	_, err = f.service.CreateBranch(ctx, f.repoId, "feature", a.Hash)
	require.NoError(t, err)

	b, err := f.service.Commit(ctx, f.repoId, "main", map[string]string{"a.txt": "2\n"}, "b", "u1")
	require.NoError(t, err)
	c, err := f.service.Commit(ctx, f.repoId, "feature", map[string]string{"f.txt": "x\n"}, "c", "u2")
	require.NoError(t, err)

	base, err := f.service.MergeBase(ctx, f.repoId, b.Hash, c.Hash)
	require.NoError(t, err)
	assert.Equal(t, a.Hash, base)

	isAncestor, err := f.service.IsAncestor(ctx, f.repoId, a.Hash, b.Hash)
	require.NoError(t, err)
	assert.True(t, isAncestor)

	isAncestor, err = f.service.IsAncestor(ctx, f.repoId, b.Hash, c.Hash)
	require.NoError(t, err)
	assert.False(t, isAncestor)
}

func TestRepoService_MatchingRule_ExactWinsOverGlob(t *testing.T) {
	f := newStoreFixture(t)

	glob := &domain.BranchProtectionRule{ProjectId: f.projectId, BranchPattern: "release/*", RequiredApprovingReviews: 1}
	exact := &domain.BranchProtectionRule{ProjectId: f.projectId, BranchPattern: "release/v1", RequiredApprovingReviews: 3}
	f.protections.rules = []*domain.BranchProtectionRule{glob, exact}

	rule, err := f.service.MatchingRule(context.Background(), f.projectId, "release/v1")
	require.NoError(t, err)
	require.NotNil(t, rule)
	assert.Equal(t, 3, rule.RequiredApprovingReviews)

	rule, err = f.service.MatchingRule(context.Background(), f.projectId, "release/v2")
	require.NoError(t, err)
	require.NotNil(t, rule)
	assert.Equal(t, 1, rule.RequiredApprovingReviews)

	rule, err = f.service.MatchingRule(context.Background(), f.projectId, "main")
	require.NoError(t, err)
	assert.Nil(t, rule)
}

func TestDiffSnapshots(t *testing.T) {
	from := map[string]string{
		"changed.txt": "a\nb\nc\n",
		"gone.txt":    "bye\n",
	}
	to := map[string]string{
		"changed.txt": "a\nx\nc\n",
		"new.txt":     "hi\n",
	}

	diff := DiffSnapshots(from, to)
	byPath := map[string]domain.DiffFile{}
	for _, file := range diff {
		byPath[file.Path] = file
	}

	require.Len(t, diff, 3)

	changed := byPath["changed.txt"]
	require.Len(t, changed.Added, 1)
	require.Len(t, changed.Removed, 1)
	assert.Equal(t, domain.LineRange{Start: 2, End: 3}, changed.Added[0])
	assert.Equal(t, domain.LineRange{Start: 2, End: 3}, changed.Removed[0])

	added := byPath["new.txt"]
	assert.NotEmpty(t, added.Added)
	assert.Empty(t, added.Removed)

	removed := byPath["gone.txt"]
	assert.Empty(t, removed.Added)
	assert.NotEmpty(t, removed.Removed)
}

func TestDiffSnapshots_IdenticalFilesSkipped(t *testing.T) {
	snapshot := map[string]string{"same.txt": "unchanged\n"}
	assert.Empty(t, DiffSnapshots(snapshot, snapshot))
}
