package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sourcehub/sourcehub/internal/domain"
	"go.uber.org/zap"
)

const (
	insertCommitQuery = `
INSERT INTO commits(hash, repository_id, branch_id, author_id, message,
                    content_hash, parent_hash, second_parent, files)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING created_at;`

	selectCommitQuery = `
SELECT hash, repository_id, branch_id, author_id, message,
       content_hash, parent_hash, second_parent, files, created_at
FROM commits
WHERE repository_id = $1 AND hash = $2;`

	advanceHeadTxQuery = `
UPDATE branches
SET head_commit = $3
WHERE id = $1 AND head_commit = $2;`

	addStorageUsageQuery = `
UPDATE repositories
SET storage_usage = storage_usage + $2
WHERE id = $1;`
)

type CommitRepository struct {
	db  *pgxpool.Pool
	log *zap.Logger
}

func NewCommitRepository(db *pgxpool.Pool, log *zap.Logger) *CommitRepository {
	return &CommitRepository{
		db:  db,
		log: log,
	}
}

// AppendToBranch inserts the commit and advances the branch head from
// observedHead in one transaction. A lost CAS rolls the insert back, so a
// losing writer leaves no partial state behind.
func (r *CommitRepository) AppendToBranch(ctx context.Context, c *domain.Commit, branchId, observedHead string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return handleDBError(err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, insertCommitQuery,
		c.Hash, c.RepositoryId, c.BranchId, c.AuthorId, c.Message,
		c.ContentHash, c.ParentHash, c.SecondParent, c.Files,
	).Scan(&c.CreatedAt)
	if err != nil {
		r.log.Error("failed to insert commit",
			zap.String("repository_id", c.RepositoryId),
			zap.String("hash", c.Hash),
			zap.Error(err),
		)
		return handleDBError(err)
	}

	cmdTag, err := tx.Exec(ctx, advanceHeadTxQuery, branchId, observedHead, c.Hash)
	if err != nil {
		return handleDBError(err)
	}
	if cmdTag.RowsAffected() == 0 {
		r.log.Warn("commit append lost head CAS",
			zap.String("branch_id", branchId),
			zap.String("observed", observedHead),
		)
		return ErrConflict
	}

	var size int64
	for path, content := range c.Files {
		size += int64(len(path) + len(content))
	}
	if _, err := tx.Exec(ctx, addStorageUsageQuery, c.RepositoryId, size); err != nil {
		return handleDBError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return handleDBError(err)
	}

	r.log.Info("commit appended",
		zap.String("repository_id", c.RepositoryId),
		zap.String("branch_id", branchId),
		zap.String("hash", c.Hash),
	)
	return nil
}

// Insert stores a commit without touching any branch head. Used when
// recreating commits during a rebase before the final fast-forward.
func (r *CommitRepository) Insert(ctx context.Context, c *domain.Commit) error {
	err := r.db.QueryRow(ctx, insertCommitQuery,
		c.Hash, c.RepositoryId, c.BranchId, c.AuthorId, c.Message,
		c.ContentHash, c.ParentHash, c.SecondParent, c.Files,
	).Scan(&c.CreatedAt)
	if err != nil {
		return handleDBError(err)
	}
	return nil
}

func (r *CommitRepository) GetByHash(ctx context.Context, repoId, hash string) (*domain.Commit, error) {
	c := &domain.Commit{}
	err := r.db.QueryRow(ctx, selectCommitQuery, repoId, hash).Scan(
		&c.Hash,
		&c.RepositoryId,
		&c.BranchId,
		&c.AuthorId,
		&c.Message,
		&c.ContentHash,
		&c.ParentHash,
		&c.SecondParent,
		&c.Files,
		&c.CreatedAt,
	)
	if err != nil {
		return nil, handleDBError(err)
	}
	return c, nil
}
