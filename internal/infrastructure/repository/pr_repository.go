package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sourcehub/sourcehub/internal/domain"
	"go.uber.org/zap"
)

const (
	insertPrQuery = `
INSERT INTO pull_requests(id, project_id, number, title, body, author_id,
                          source_branch, target_branch)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING state, created_at;`

	selectPrQuery = `
SELECT id, project_id, number, title, body, author_id,
       source_branch, target_branch, state, merge_strategy,
       merged_at, merged_by, merge_commit, created_at
FROM pull_requests
WHERE id = $1;`

	selectPrsByProjectQuery = `
SELECT id, project_id, number, title, body, author_id,
       source_branch, target_branch, state, merge_strategy,
       merged_at, merged_by, merge_commit, created_at
FROM pull_requests
WHERE project_id = $1
ORDER BY number DESC;`

	selectOpenPrsBySourceQuery = `
SELECT id, project_id, number, title, body, author_id,
       source_branch, target_branch, state, merge_strategy,
       merged_at, merged_by, merge_commit, created_at
FROM pull_requests
WHERE project_id = $1 AND source_branch = $2 AND state = 'OPEN';`

	// State-guarded transition; zero rows means the PR left OPEN concurrently.
	markMergedQuery = `
UPDATE pull_requests
SET state = 'MERGED',
    merge_strategy = $2,
    merged_at = CURRENT_TIMESTAMP,
    merged_by = $3,
    merge_commit = $4
WHERE id = $1 AND state = 'OPEN';`

	closePrQuery = `
UPDATE pull_requests
SET state = 'CLOSED'
WHERE id = $1 AND state = 'OPEN';`

	countPrsQuery = `
SELECT COUNT(*), COALESCE(MAX(number), 0) FROM pull_requests
WHERE project_id = $1;`
)

type PrRepository struct {
	db  *pgxpool.Pool
	log *zap.Logger
}

func NewPrRepository(db *pgxpool.Pool, log *zap.Logger) *PrRepository {
	return &PrRepository{
		db:  db,
		log: log,
	}
}

// Create allocates the PR number and inserts the row in one transaction,
// so the sequence stays gapless even when an insert fails.
func (r *PrRepository) Create(ctx context.Context, pr *domain.PullRequest) error {
	r.log.Info("create PR started",
		zap.String("project_id", pr.ProjectId),
		zap.String("author_id", pr.AuthorId),
	)

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return handleDBError(err)
	}
	defer tx.Rollback(ctx)

	number, err := allocateNumber(ctx, tx, pr.ProjectId, KindPullRequest)
	if err != nil {
		r.log.Error("failed to allocate PR number",
			zap.String("project_id", pr.ProjectId),
			zap.Error(err),
		)
		return err
	}
	pr.Number = number

	err = tx.QueryRow(ctx, insertPrQuery,
		pr.Id, pr.ProjectId, pr.Number, pr.Title, pr.Body, pr.AuthorId,
		pr.SourceBranch, pr.TargetBranch,
	).Scan(&pr.State, &pr.CreatedAt)
	if err != nil {
		r.log.Error("failed to insert PR",
			zap.String("project_id", pr.ProjectId),
			zap.Int("number", pr.Number),
			zap.Error(err),
		)
		return handleDBError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return handleDBError(err)
	}

	r.log.Info("PR created",
		zap.String("pr_id", pr.Id),
		zap.Int("number", pr.Number),
	)
	return nil
}

func (r *PrRepository) GetById(ctx context.Context, prId string) (*domain.PullRequest, error) {
	return scanPr(r.db.QueryRow(ctx, selectPrQuery, prId))
}

func (r *PrRepository) ListByProject(ctx context.Context, projectId string) ([]*domain.PullRequest, error) {
	return r.list(ctx, selectPrsByProjectQuery, projectId)
}

// ListOpenBySource finds open PRs whose source branch just received a push,
// used for stale review dismissal.
func (r *PrRepository) ListOpenBySource(ctx context.Context, projectId, sourceBranch string) ([]*domain.PullRequest, error) {
	return r.list(ctx, selectOpenPrsBySourceQuery, projectId, sourceBranch)
}

func (r *PrRepository) list(ctx context.Context, query string, args ...any) ([]*domain.PullRequest, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, handleDBError(err)
	}
	defer rows.Close()

	var prs []*domain.PullRequest
	for rows.Next() {
		pr, err := scanPr(rows)
		if err != nil {
			return nil, err
		}
		prs = append(prs, pr)
	}
	return prs, rows.Err()
}

func (r *PrRepository) MarkMerged(ctx context.Context, prId string, strategy domain.MergeStrategy, mergedBy, mergeCommit string) error {
	cmdTag, err := r.db.Exec(ctx, markMergedQuery, prId, strategy, mergedBy, mergeCommit)
	if err != nil {
		r.log.Error("failed to mark PR merged", zap.String("pr_id", prId), zap.Error(err))
		return handleDBError(err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrConflict
	}

	r.log.Info("PR merged",
		zap.String("pr_id", prId),
		zap.String("strategy", string(strategy)),
		zap.String("merged_by", mergedBy),
	)
	return nil
}

func (r *PrRepository) Close(ctx context.Context, prId string) error {
	cmdTag, err := r.db.Exec(ctx, closePrQuery, prId)
	if err != nil {
		return handleDBError(err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

// CountAndMax reports count(*) and max(number), the pair the gapless
// numbering invariant is checked against.
func (r *PrRepository) CountAndMax(ctx context.Context, projectId string) (int, int, error) {
	var count, max int
	err := r.db.QueryRow(ctx, countPrsQuery, projectId).Scan(&count, &max)
	if err != nil {
		return 0, 0, handleDBError(err)
	}
	return count, max, nil
}

func scanPr(row rowScanner) (*domain.PullRequest, error) {
	pr := &domain.PullRequest{}
	err := row.Scan(
		&pr.Id,
		&pr.ProjectId,
		&pr.Number,
		&pr.Title,
		&pr.Body,
		&pr.AuthorId,
		&pr.SourceBranch,
		&pr.TargetBranch,
		&pr.State,
		&pr.MergeStrategy,
		&pr.MergedAt,
		&pr.MergedBy,
		&pr.MergeCommit,
		&pr.CreatedAt,
	)
	if err != nil {
		return nil, handleDBError(err)
	}
	return pr, nil
}
