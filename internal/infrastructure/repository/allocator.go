package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Entity kinds with per-project numbering.
const (
	KindIssue       = "issue"
	KindPullRequest = "pull_request"
)

const (
	// Single-statement increment-and-read. The row lock taken by UPDATE
	// serializes concurrent allocations for the same project and kind;
	// a read-then-write split would lose numbers under concurrency.
	nextIssueNumberQuery = `
UPDATE projects
SET next_issue_number = next_issue_number + 1
WHERE id = $1
RETURNING next_issue_number;`

	nextPrNumberQuery = `
UPDATE projects
SET next_pr_number = next_pr_number + 1
WHERE id = $1
RETURNING next_pr_number;`
)

type queryExecutor interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// SequenceAllocator hands out unique, strictly increasing, gapless
// per-project numbers for issues and pull requests.
type SequenceAllocator struct {
	db  *pgxpool.Pool
	log *zap.Logger
}

func NewSequenceAllocator(db *pgxpool.Pool, log *zap.Logger) *SequenceAllocator {
	return &SequenceAllocator{
		db:  db,
		log: log,
	}
}

func (a *SequenceAllocator) Next(ctx context.Context, projectId, kind string) (int, error) {
	number, err := allocateNumber(ctx, a.db, projectId, kind)
	if err != nil {
		a.log.Error("number allocation failed",
			zap.String("project_id", projectId),
			zap.String("kind", kind),
			zap.Error(err),
		)
		return 0, err
	}
	return number, nil
}

// allocateNumber runs the increment-and-read against exec, which is either
// the pool or an open transaction when the caller inserts the numbered row
// atomically with the allocation.
func allocateNumber(ctx context.Context, exec queryExecutor, projectId, kind string) (int, error) {
	var query string
	switch kind {
	case KindIssue:
		query = nextIssueNumberQuery
	case KindPullRequest:
		query = nextPrNumberQuery
	default:
		return 0, fmt.Errorf("%w: unknown sequence kind %q", ErrInvalidInput, kind)
	}

	var number int
	if err := exec.QueryRow(ctx, query, projectId).Scan(&number); err != nil {
		return 0, handleDBError(err)
	}
	return number, nil
}
