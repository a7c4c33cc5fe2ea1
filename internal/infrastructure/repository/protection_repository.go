package repository

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sourcehub/sourcehub/internal/domain"
	"go.uber.org/zap"
)

const (
	upsertRuleQuery = `
INSERT INTO branch_protection_rules(
    id, project_id, branch_pattern, require_pull_request,
    required_approving_reviews, dismiss_stale_reviews, require_code_owner_review,
    allow_force_pushes, allow_deletions, require_status_checks, required_status_checks)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);`

	deleteRuleQuery = `
DELETE FROM branch_protection_rules
WHERE project_id = $1 AND branch_pattern = $2;`
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type ProtectionRepository struct {
	db  *pgxpool.Pool
	log *zap.Logger
}

func NewProtectionRepository(db *pgxpool.Pool, log *zap.Logger) *ProtectionRepository {
	return &ProtectionRepository{
		db:  db,
		log: log,
	}
}

func (r *ProtectionRepository) Create(ctx context.Context, rule *domain.BranchProtectionRule) error {
	_, err := r.db.Exec(ctx, upsertRuleQuery,
		rule.Id, rule.ProjectId, rule.BranchPattern, rule.RequirePullRequest,
		rule.RequiredApprovingReviews, rule.DismissStaleReviews, rule.RequireCodeOwnerReview,
		rule.AllowForcePushes, rule.AllowDeletions, rule.RequireStatusChecks, rule.RequiredStatusChecks,
	)
	if err != nil {
		r.log.Error("failed to insert protection rule",
			zap.String("project_id", rule.ProjectId),
			zap.String("pattern", rule.BranchPattern),
			zap.Error(err),
		)
		return handleDBError(err)
	}

	r.log.Info("protection rule created",
		zap.String("project_id", rule.ProjectId),
		zap.String("pattern", rule.BranchPattern),
	)
	return nil
}

// List returns the project's rules; with pattern != "" only that exact rule.
func (r *ProtectionRepository) List(ctx context.Context, projectId, pattern string) ([]*domain.BranchProtectionRule, error) {
	builder := psql.Select(
		"id", "project_id", "branch_pattern", "require_pull_request",
		"required_approving_reviews", "dismiss_stale_reviews", "require_code_owner_review",
		"allow_force_pushes", "allow_deletions", "require_status_checks", "required_status_checks",
	).
		From("branch_protection_rules").
		Where(sq.Eq{"project_id": projectId}).
		OrderBy("branch_pattern")
	if pattern != "" {
		builder = builder.Where(sq.Eq{"branch_pattern": pattern})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, handleDBError(err)
	}
	defer rows.Close()

	var rules []*domain.BranchProtectionRule
	for rows.Next() {
		rule := &domain.BranchProtectionRule{}
		err := rows.Scan(
			&rule.Id,
			&rule.ProjectId,
			&rule.BranchPattern,
			&rule.RequirePullRequest,
			&rule.RequiredApprovingReviews,
			&rule.DismissStaleReviews,
			&rule.RequireCodeOwnerReview,
			&rule.AllowForcePushes,
			&rule.AllowDeletions,
			&rule.RequireStatusChecks,
			&rule.RequiredStatusChecks,
		)
		if err != nil {
			return nil, handleDBError(err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func (r *ProtectionRepository) Delete(ctx context.Context, projectId, pattern string) error {
	cmdTag, err := r.db.Exec(ctx, deleteRuleQuery, projectId, pattern)
	if err != nil {
		return handleDBError(err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}

	r.log.Info("protection rule deleted",
		zap.String("project_id", projectId),
		zap.String("pattern", pattern),
	)
	return nil
}
