package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/hexops/gotextdiff/span"
	"github.com/sourcehub/sourcehub/internal/domain"
	"github.com/sourcehub/sourcehub/internal/infrastructure/repository"
	"go.uber.org/zap"
)

// Branch names: letters, digits, '-', '_', '.' with '/' as separator.
// Rejects a leading '/', empty segments ('//') and a trailing '/'.
var branchNameRe = regexp.MustCompile(`^[A-Za-z0-9._-]+(/[A-Za-z0-9._-]+)*$`)

type RepoRepository interface {
	GetById(ctx context.Context, repoId string) (*domain.Repository, error)
	GetByProjectId(ctx context.Context, projectId string) (*domain.Repository, error)
	SetDefaultBranch(ctx context.Context, repoId, branch string) error
}

type BranchRepository interface {
	Create(ctx context.Context, b *domain.Branch) error
	GetByName(ctx context.Context, repoId, name string) (*domain.Branch, error)
	ListByRepository(ctx context.Context, repoId string) ([]*domain.Branch, error)
	AdvanceHead(ctx context.Context, branchId, observed, next string) error
	ForceSetHead(ctx context.Context, branchId, next string) error
	Delete(ctx context.Context, repoId, name string) error
}

type CommitRepository interface {
	AppendToBranch(ctx context.Context, c *domain.Commit, branchId, observedHead string) error
	Insert(ctx context.Context, c *domain.Commit) error
	GetByHash(ctx context.Context, repoId, hash string) (*domain.Commit, error)
}

type ProtectionRepository interface {
	Create(ctx context.Context, rule *domain.BranchProtectionRule) error
	List(ctx context.Context, projectId, pattern string) ([]*domain.BranchProtectionRule, error)
	Delete(ctx context.Context, projectId, pattern string) error
}

// RepoService is the per-project ref and commit graph: branch lifecycle,
// commit appends with compare-and-swap head advance, and diff computation.
type RepoService struct {
	repos       RepoRepository
	branches    BranchRepository
	commits     CommitRepository
	protections ProtectionRepository
	log         *zap.Logger
}

func NewRepoService(
	repos RepoRepository,
	branches BranchRepository,
	commits CommitRepository,
	protections ProtectionRepository,
	log *zap.Logger,
) *RepoService {
	return &RepoService{
		repos:       repos,
		branches:    branches,
		commits:     commits,
		protections: protections,
		log:         log,
	}
}

func ValidBranchName(name string) bool {
	return branchNameRe.MatchString(name)
}

func (s *RepoService) GetRepository(ctx context.Context, repoId string) (*domain.Repository, error) {
	repo, err := s.repos.GetById(ctx, repoId)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRepositoryNotFound
		}
		return nil, err
	}
	if !repo.Initialized {
		return nil, ErrRepositoryNotFound
	}
	return repo, nil
}

func (s *RepoService) GetRepositoryByProject(ctx context.Context, projectId string) (*domain.Repository, error) {
	repo, err := s.repos.GetByProjectId(ctx, projectId)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRepositoryNotFound
		}
		return nil, err
	}
	return repo, nil
}

// InitRepository creates the default branch with an empty root commit.
// Called once from project creation.
func (s *RepoService) InitRepository(ctx context.Context, repoId, defaultBranch, authorId string) error {
	branchId := uuid.NewString()
	root := newCommit(repoId, branchId, authorId, "initial commit", nil, nil, map[string]string{})

	if err := s.commits.Insert(ctx, root); err != nil {
		return err
	}

	return s.branches.Create(ctx, &domain.Branch{
		Id:           branchId,
		RepositoryId: repoId,
		Name:         defaultBranch,
		HeadCommit:   root.Hash,
	})
}

// SetDefaultBranch repoints the repository's default branch to an
// existing branch. The ref advertisement and the branch-deletion guard
// read the repository row, so it must follow the project setting.
func (s *RepoService) SetDefaultBranch(ctx context.Context, projectId, branch string) error {
	repo, err := s.GetRepositoryByProject(ctx, projectId)
	if err != nil {
		return err
	}
	if repo.DefaultBranch == branch {
		return nil
	}
	if _, err := s.branches.GetByName(ctx, repo.Id, branch); err != nil {
		return translateRepoErr(err)
	}
	return s.repos.SetDefaultBranch(ctx, repo.Id, branch)
}

// CreateBranch validates the name grammar and branches off fromCommit
// (the repository default branch head when empty).
func (s *RepoService) CreateBranch(ctx context.Context, repoId, name, fromCommit string) (*domain.Branch, error) {
	if !ValidBranchName(name) {
		return nil, WrapError(ErrBadBranchName, fmt.Errorf("name %q", name))
	}

	repo, err := s.GetRepository(ctx, repoId)
	if err != nil {
		return nil, err
	}

	if fromCommit == "" {
		head, err := s.branches.GetByName(ctx, repoId, repo.DefaultBranch)
		if err != nil {
			return nil, translateRepoErr(err)
		}
		fromCommit = head.HeadCommit
	} else if _, err := s.commits.GetByHash(ctx, repoId, fromCommit); err != nil {
		return nil, translateRepoErr(err)
	}

	branch := &domain.Branch{
		Id:           uuid.NewString(),
		RepositoryId: repoId,
		Name:         name,
		HeadCommit:   fromCommit,
	}
	if err := s.branches.Create(ctx, branch); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return nil, WrapError(ErrBranchExists, err)
		}
		return nil, err
	}
	return branch, nil
}

func (s *RepoService) ListBranches(ctx context.Context, repoId string) ([]*domain.Branch, error) {
	if _, err := s.GetRepository(ctx, repoId); err != nil {
		return nil, err
	}
	return s.branches.ListByRepository(ctx, repoId)
}

// DeleteBranch refuses to drop the default branch and honors
// allow_deletions of a matching protection rule.
func (s *RepoService) DeleteBranch(ctx context.Context, projectId, repoId, name string) error {
	repo, err := s.GetRepository(ctx, repoId)
	if err != nil {
		return err
	}
	if name == repo.DefaultBranch {
		return WrapError(ErrForbidden, fmt.Errorf("cannot delete default branch %q", name))
	}

	rule, err := s.MatchingRule(ctx, projectId, name)
	if err != nil {
		return err
	}
	if rule != nil && !rule.AllowDeletions {
		return WrapError(ErrForbidden, fmt.Errorf("branch %q is protected", name))
	}

	return translateRepoErr(s.branches.Delete(ctx, repoId, name))
}

// Commit appends a commit whose parent is the branch head the caller
// observed, then advances the head by compare-and-swap. A concurrent
// advance surfaces as CONFLICT and nothing is written.
func (s *RepoService) Commit(ctx context.Context, repoId, branchName string, changes map[string]string, message, authorId string) (*domain.Commit, error) {
	branch, err := s.branches.GetByName(ctx, repoId, branchName)
	if err != nil {
		return nil, translateRepoErr(err)
	}

	parent, err := s.commits.GetByHash(ctx, repoId, branch.HeadCommit)
	if err != nil {
		return nil, translateRepoErr(err)
	}

	// Changed files overlay the parent snapshot; empty content deletes.
	files := make(map[string]string, len(parent.Files)+len(changes))
	for p, content := range parent.Files {
		files[p] = content
	}
	for p, content := range changes {
		if content == "" {
			delete(files, p)
			continue
		}
		files[p] = content
	}

	commit := newCommit(repoId, branch.Id, authorId, message, &parent.Hash, nil, files)
	if err := s.commits.AppendToBranch(ctx, commit, branch.Id, parent.Hash); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, WrapError(ErrNonFastForward, err)
		}
		return nil, err
	}
	return commit, nil
}

// ResolveRef resolves a branch name or a commit hash to a commit.
func (s *RepoService) ResolveRef(ctx context.Context, repoId, ref string) (*domain.Commit, error) {
	if branch, err := s.branches.GetByName(ctx, repoId, ref); err == nil {
		ref = branch.HeadCommit
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	commit, err := s.commits.GetByHash(ctx, repoId, ref)
	if err != nil {
		return nil, translateRepoErr(err)
	}
	return commit, nil
}

// Diff produces the per-file changed line ranges between two refs.
func (s *RepoService) Diff(ctx context.Context, repoId, fromRef, toRef string) ([]domain.DiffFile, error) {
	from, err := s.ResolveRef(ctx, repoId, fromRef)
	if err != nil {
		return nil, err
	}
	to, err := s.ResolveRef(ctx, repoId, toRef)
	if err != nil {
		return nil, err
	}
	return DiffSnapshots(from.Files, to.Files), nil
}

// MergeBase finds the closest common first-parent ancestor of two commits.
func (s *RepoService) MergeBase(ctx context.Context, repoId, aHash, bHash string) (string, error) {
	seen := map[string]bool{}
	for hash := aHash; hash != ""; {
		seen[hash] = true
		c, err := s.commits.GetByHash(ctx, repoId, hash)
		if err != nil {
			return "", translateRepoErr(err)
		}
		if c.ParentHash == nil {
			break
		}
		hash = *c.ParentHash
	}

	for hash := bHash; hash != ""; {
		if seen[hash] {
			return hash, nil
		}
		c, err := s.commits.GetByHash(ctx, repoId, hash)
		if err != nil {
			return "", translateRepoErr(err)
		}
		if c.ParentHash == nil {
			break
		}
		hash = *c.ParentHash
	}
	return "", WrapError(ErrInvalidInput, errors.New("no common ancestor"))
}

// CommitsSince returns the first-parent chain from base (exclusive) up to
// head (inclusive), oldest first.
func (s *RepoService) CommitsSince(ctx context.Context, repoId, baseHash, headHash string) ([]*domain.Commit, error) {
	var chain []*domain.Commit
	for hash := headHash; hash != "" && hash != baseHash; {
		c, err := s.commits.GetByHash(ctx, repoId, hash)
		if err != nil {
			return nil, translateRepoErr(err)
		}
		chain = append(chain, c)
		if c.ParentHash == nil {
			break
		}
		hash = *c.ParentHash
	}

	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// IsAncestor reports whether ancestor is reachable from descendant over
// parent edges (both parents of merge commits).
func (s *RepoService) IsAncestor(ctx context.Context, repoId, ancestor, descendant string) (bool, error) {
	queue := []string{descendant}
	seen := map[string]bool{}
	for len(queue) > 0 {
		hash := queue[0]
		queue = queue[1:]
		if hash == ancestor {
			return true, nil
		}
		if seen[hash] {
			continue
		}
		seen[hash] = true

		c, err := s.commits.GetByHash(ctx, repoId, hash)
		if err != nil {
			return false, translateRepoErr(err)
		}
		if c.ParentHash != nil {
			queue = append(queue, *c.ParentHash)
		}
		if c.SecondParent != nil {
			queue = append(queue, *c.SecondParent)
		}
	}
	return false, nil
}

// MatchingRule returns the protection rule whose pattern matches the
// branch, nil when unprotected. Exact match wins over glob patterns.
func (s *RepoService) MatchingRule(ctx context.Context, projectId, branchName string) (*domain.BranchProtectionRule, error) {
	rules, err := s.protections.List(ctx, projectId, "")
	if err != nil {
		return nil, err
	}

	var matched *domain.BranchProtectionRule
	for _, rule := range rules {
		if rule.BranchPattern == branchName {
			return rule, nil
		}
		if ok, _ := path.Match(rule.BranchPattern, branchName); ok && matched == nil {
			matched = rule
		}
	}
	return matched, nil
}

// NewCommitObject builds an unsaved commit for the merge engine.
func NewCommitObject(repoId, branchId, authorId, message string, parent, secondParent *string, files map[string]string) *domain.Commit {
	return newCommit(repoId, branchId, authorId, message, parent, secondParent, files)
}

func newCommit(repoId, branchId, authorId, message string, parent, secondParent *string, files map[string]string) *domain.Commit {
	contentHash := snapshotHash(files)

	h := sha256.New()
	if parent != nil {
		h.Write([]byte(*parent))
	}
	if secondParent != nil {
		h.Write([]byte(*secondParent))
	}
	h.Write([]byte(contentHash))
	h.Write([]byte(message))
	h.Write([]byte(authorId))
	h.Write([]byte(strconv.FormatInt(time.Now().UnixNano(), 10)))

	return &domain.Commit{
		Hash:         hex.EncodeToString(h.Sum(nil)),
		RepositoryId: repoId,
		BranchId:     branchId,
		AuthorId:     authorId,
		Message:      message,
		ContentHash:  contentHash,
		ParentHash:   parent,
		SecondParent: secondParent,
		Files:        files,
	}
}

func snapshotHash(files map[string]string) string {
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	h := sha256.New()
	for _, p := range paths {
		h.Write([]byte(p))
		h.Write([]byte{0})
		h.Write([]byte(files[p]))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// DiffSnapshots computes per-file added/removed line ranges between two
// file snapshots using myers edits.
func DiffSnapshots(from, to map[string]string) []domain.DiffFile {
	paths := map[string]bool{}
	for p := range from {
		paths[p] = true
	}
	for p := range to {
		paths[p] = true
	}

	sorted := make([]string, 0, len(paths))
	for p := range paths {
		sorted = append(sorted, p)
	}
	sort.Strings(sorted)

	var out []domain.DiffFile
	for _, p := range sorted {
		before, after := from[p], to[p]
		if before == after {
			continue
		}

		edits := myers.ComputeEdits(span.URIFromPath(p), before, after)
		unified := gotextdiff.ToUnified(p, p, before, edits)
		file := domain.DiffFile{Path: p}

		for _, hunk := range unified.Hunks {
			fromLine, toLine := hunk.FromLine, hunk.ToLine
			var added, removed *domain.LineRange
			for _, line := range hunk.Lines {
				switch line.Kind {
				case gotextdiff.Insert:
					if added == nil {
						file.Added = append(file.Added, domain.LineRange{Start: toLine, End: toLine})
						added = &file.Added[len(file.Added)-1]
					}
					added.End = toLine + 1
					toLine++
					removed = nil
				case gotextdiff.Delete:
					if removed == nil {
						file.Removed = append(file.Removed, domain.LineRange{Start: fromLine, End: fromLine})
						removed = &file.Removed[len(file.Removed)-1]
					}
					removed.End = fromLine + 1
					fromLine++
					added = nil
				default:
					fromLine++
					toLine++
					added, removed = nil, nil
				}
			}
		}
		out = append(out, file)
	}
	return out
}

func translateRepoErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return WrapError(ErrBranchNotFound, err)
	case errors.Is(err, repository.ErrConflict):
		return WrapError(ErrNonFastForward, err)
	case errors.Is(err, repository.ErrAlreadyExists):
		return WrapError(ErrAlreadyExists, err)
	}
	return err
}
