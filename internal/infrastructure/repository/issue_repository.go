package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sourcehub/sourcehub/internal/domain"
	"go.uber.org/zap"
)

const (
	insertIssueQuery = `
INSERT INTO issues(id, project_id, number, title, body, author_id)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING state, created_at;`

	selectIssueQuery = `
SELECT id, project_id, number, title, body, author_id, state, created_at, closed_at
FROM issues
WHERE id = $1;`

	selectIssuesByProjectQuery = `
SELECT id, project_id, number, title, body, author_id, state, created_at, closed_at
FROM issues
WHERE project_id = $1
ORDER BY number DESC;`

	closeIssueQuery = `
UPDATE issues
SET state = 'CLOSED',
    closed_at = CURRENT_TIMESTAMP
WHERE id = $1 AND state = 'OPEN';`

	countIssuesQuery = `
SELECT COUNT(*), COALESCE(MAX(number), 0) FROM issues
WHERE project_id = $1;`
)

type IssueRepository struct {
	db  *pgxpool.Pool
	log *zap.Logger
}

func NewIssueRepository(db *pgxpool.Pool, log *zap.Logger) *IssueRepository {
	return &IssueRepository{
		db:  db,
		log: log,
	}
}

// Create allocates the issue number and inserts the row in one transaction
// to keep numbering gapless under concurrent creators.
func (r *IssueRepository) Create(ctx context.Context, issue *domain.Issue) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return handleDBError(err)
	}
	defer tx.Rollback(ctx)

	number, err := allocateNumber(ctx, tx, issue.ProjectId, KindIssue)
	if err != nil {
		r.log.Error("failed to allocate issue number",
			zap.String("project_id", issue.ProjectId),
			zap.Error(err),
		)
		return err
	}
	issue.Number = number

	err = tx.QueryRow(ctx, insertIssueQuery,
		issue.Id, issue.ProjectId, issue.Number, issue.Title, issue.Body, issue.AuthorId,
	).Scan(&issue.State, &issue.CreatedAt)
	if err != nil {
		r.log.Error("failed to insert issue",
			zap.String("project_id", issue.ProjectId),
			zap.Int("number", issue.Number),
			zap.Error(err),
		)
		return handleDBError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return handleDBError(err)
	}

	r.log.Info("issue created",
		zap.String("issue_id", issue.Id),
		zap.Int("number", issue.Number),
	)
	return nil
}

func (r *IssueRepository) GetById(ctx context.Context, issueId string) (*domain.Issue, error) {
	return scanIssue(r.db.QueryRow(ctx, selectIssueQuery, issueId))
}

func (r *IssueRepository) ListByProject(ctx context.Context, projectId string) ([]*domain.Issue, error) {
	rows, err := r.db.Query(ctx, selectIssuesByProjectQuery, projectId)
	if err != nil {
		return nil, handleDBError(err)
	}
	defer rows.Close()

	var issues []*domain.Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		issues = append(issues, issue)
	}
	return issues, rows.Err()
}

func (r *IssueRepository) Close(ctx context.Context, issueId string) error {
	cmdTag, err := r.db.Exec(ctx, closeIssueQuery, issueId)
	if err != nil {
		return handleDBError(err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrConflict
	}

	r.log.Info("issue closed", zap.String("issue_id", issueId))
	return nil
}

func (r *IssueRepository) CountAndMax(ctx context.Context, projectId string) (int, int, error) {
	var count, max int
	err := r.db.QueryRow(ctx, countIssuesQuery, projectId).Scan(&count, &max)
	if err != nil {
		return 0, 0, handleDBError(err)
	}
	return count, max, nil
}

func scanIssue(row rowScanner) (*domain.Issue, error) {
	issue := &domain.Issue{}
	err := row.Scan(
		&issue.Id,
		&issue.ProjectId,
		&issue.Number,
		&issue.Title,
		&issue.Body,
		&issue.AuthorId,
		&issue.State,
		&issue.CreatedAt,
		&issue.ClosedAt,
	)
	if err != nil {
		return nil, handleDBError(err)
	}
	return issue, nil
}
