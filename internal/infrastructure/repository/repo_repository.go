package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sourcehub/sourcehub/internal/domain"
	"go.uber.org/zap"
)

const (
	selectRepoQuery = `
SELECT id, project_id, default_branch, storage_usage, initialized
FROM repositories
WHERE id = $1;`

	selectRepoByProjectQuery = `
SELECT id, project_id, default_branch, storage_usage, initialized
FROM repositories
WHERE project_id = $1;`

	updateDefaultBranchQuery = `
UPDATE repositories
SET default_branch = $2
WHERE id = $1;`
)

type RepoRepository struct {
	db  *pgxpool.Pool
	log *zap.Logger
}

func NewRepoRepository(db *pgxpool.Pool, log *zap.Logger) *RepoRepository {
	return &RepoRepository{
		db:  db,
		log: log,
	}
}

func (r *RepoRepository) GetById(ctx context.Context, repoId string) (*domain.Repository, error) {
	return scanRepo(r.db.QueryRow(ctx, selectRepoQuery, repoId))
}

func (r *RepoRepository) GetByProjectId(ctx context.Context, projectId string) (*domain.Repository, error) {
	return scanRepo(r.db.QueryRow(ctx, selectRepoByProjectQuery, projectId))
}

func (r *RepoRepository) SetDefaultBranch(ctx context.Context, repoId, branch string) error {
	cmdTag, err := r.db.Exec(ctx, updateDefaultBranchQuery, repoId, branch)
	if err != nil {
		return handleDBError(err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanRepo(row rowScanner) (*domain.Repository, error) {
	repo := &domain.Repository{}
	err := row.Scan(
		&repo.Id,
		&repo.ProjectId,
		&repo.DefaultBranch,
		&repo.StorageUsage,
		&repo.Initialized,
	)
	if err != nil {
		return nil, handleDBError(err)
	}
	return repo, nil
}
