package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sourcehub/sourcehub/internal/domain"
	"go.uber.org/zap"
)

const (
	insertBranchQuery = `
INSERT INTO branches(id, repository_id, name, head_commit)
VALUES ($1, $2, $3, $4)
RETURNING created_at;`

	selectBranchQuery = `
SELECT id, repository_id, name, head_commit, created_at
FROM branches
WHERE repository_id = $1 AND name = $2;`

	selectBranchesQuery = `
SELECT id, repository_id, name, head_commit, created_at
FROM branches
WHERE repository_id = $1
ORDER BY name;`

	// Compare-and-swap head advance. Zero rows means the head moved
	// concurrently and the caller must re-fetch and retry.
	advanceHeadQuery = `
UPDATE branches
SET head_commit = $3
WHERE id = $1 AND head_commit = $2;`

	forceSetHeadQuery = `
UPDATE branches
SET head_commit = $2
WHERE id = $1;`

	deleteBranchQuery = `
DELETE FROM branches
WHERE repository_id = $1 AND name = $2;`
)

type BranchRepository struct {
	db  *pgxpool.Pool
	log *zap.Logger
}

func NewBranchRepository(db *pgxpool.Pool, log *zap.Logger) *BranchRepository {
	return &BranchRepository{
		db:  db,
		log: log,
	}
}

func (r *BranchRepository) Create(ctx context.Context, b *domain.Branch) error {
	err := r.db.QueryRow(ctx, insertBranchQuery, b.Id, b.RepositoryId, b.Name, b.HeadCommit).
		Scan(&b.CreatedAt)
	if err != nil {
		r.log.Error("failed to insert branch",
			zap.String("repository_id", b.RepositoryId),
			zap.String("name", b.Name),
			zap.Error(err),
		)
		return handleDBError(err)
	}

	r.log.Info("branch created",
		zap.String("repository_id", b.RepositoryId),
		zap.String("name", b.Name),
	)
	return nil
}

func (r *BranchRepository) GetByName(ctx context.Context, repoId, name string) (*domain.Branch, error) {
	return scanBranch(r.db.QueryRow(ctx, selectBranchQuery, repoId, name))
}

func (r *BranchRepository) ListByRepository(ctx context.Context, repoId string) ([]*domain.Branch, error) {
	rows, err := r.db.Query(ctx, selectBranchesQuery, repoId)
	if err != nil {
		return nil, handleDBError(err)
	}
	defer rows.Close()

	var branches []*domain.Branch
	for rows.Next() {
		b := &domain.Branch{}
		err := rows.Scan(&b.Id, &b.RepositoryId, &b.Name, &b.HeadCommit, &b.CreatedAt)
		if err != nil {
			return nil, handleDBError(err)
		}
		branches = append(branches, b)
	}
	return branches, rows.Err()
}

// AdvanceHead moves the branch head from observed to next, failing with
// ErrConflict when another writer advanced the head first.
func (r *BranchRepository) AdvanceHead(ctx context.Context, branchId, observed, next string) error {
	cmdTag, err := r.db.Exec(ctx, advanceHeadQuery, branchId, observed, next)
	if err != nil {
		return handleDBError(err)
	}
	if cmdTag.RowsAffected() == 0 {
		r.log.Warn("branch head CAS lost",
			zap.String("branch_id", branchId),
			zap.String("observed", observed),
		)
		return ErrConflict
	}
	return nil
}

// ForceSetHead overwrites the head unconditionally. Only reachable when a
// protection rule allows force pushes.
func (r *BranchRepository) ForceSetHead(ctx context.Context, branchId, next string) error {
	cmdTag, err := r.db.Exec(ctx, forceSetHeadQuery, branchId, next)
	if err != nil {
		return handleDBError(err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *BranchRepository) Delete(ctx context.Context, repoId, name string) error {
	cmdTag, err := r.db.Exec(ctx, deleteBranchQuery, repoId, name)
	if err != nil {
		return handleDBError(err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}

	r.log.Info("branch deleted",
		zap.String("repository_id", repoId),
		zap.String("name", name),
	)
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBranch(row rowScanner) (*domain.Branch, error) {
	b := &domain.Branch{}
	err := row.Scan(&b.Id, &b.RepositoryId, &b.Name, &b.HeadCommit, &b.CreatedAt)
	if err != nil {
		return nil, handleDBError(err)
	}
	return b, nil
}
