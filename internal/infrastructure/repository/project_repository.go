package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sourcehub/sourcehub/internal/domain"
	"go.uber.org/zap"
)

const (
	insertProjectQuery = `
INSERT INTO projects(id, name, owner_id, visibility, default_branch,
                     require_approvals, allow_self_merge, require_review_from_owner)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING created_at;`

	insertRepositoryQuery = `
INSERT INTO repositories(id, project_id, default_branch, initialized)
VALUES ($1, $2, $3, true);`

	insertOwnerGrantQuery = `
INSERT INTO project_members(project_id, user_id, role)
VALUES ($1, $2, 'OWNER');`

	selectProjectQuery = `
SELECT id, name, owner_id, visibility, default_branch,
       require_approvals, allow_self_merge, require_review_from_owner,
       next_issue_number, next_pr_number, created_at
FROM projects
WHERE id = $1;`

	updateProjectSettingsQuery = `
UPDATE projects
SET visibility = $2,
    default_branch = $3,
    require_approvals = $4,
    allow_self_merge = $5,
    require_review_from_owner = $6
WHERE id = $1;`
)

type ProjectRepository struct {
	db  *pgxpool.Pool
	log *zap.Logger
}

func NewProjectRepository(db *pgxpool.Pool, log *zap.Logger) *ProjectRepository {
	return &ProjectRepository{
		db:  db,
		log: log,
	}
}

// Create inserts the project, its repository row and the owner grant in one
// transaction. Branch and root commit initialization happens in the commit
// repository within the same request.
func (r *ProjectRepository) Create(ctx context.Context, p *domain.Project, repoId string) error {
	r.log.Info("create project started",
		zap.String("project_id", p.Id),
		zap.String("owner_id", p.OwnerId),
	)

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return handleDBError(err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, insertProjectQuery,
		p.Id, p.Name, p.OwnerId, p.Visibility, p.DefaultBranch,
		p.RequireApprovals, p.AllowSelfMerge, p.RequireReviewFromOwner,
	).Scan(&p.CreatedAt)
	if err != nil {
		r.log.Error("failed to insert project", zap.String("project_id", p.Id), zap.Error(err))
		return handleDBError(err)
	}

	if _, err := tx.Exec(ctx, insertRepositoryQuery, repoId, p.Id, p.DefaultBranch); err != nil {
		r.log.Error("failed to insert repository", zap.String("project_id", p.Id), zap.Error(err))
		return handleDBError(err)
	}

	if _, err := tx.Exec(ctx, insertOwnerGrantQuery, p.Id, p.OwnerId); err != nil {
		r.log.Error("failed to insert owner grant", zap.String("project_id", p.Id), zap.Error(err))
		return handleDBError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return handleDBError(err)
	}

	r.log.Info("project created", zap.String("project_id", p.Id))
	return nil
}

func (r *ProjectRepository) GetById(ctx context.Context, projectId string) (*domain.Project, error) {
	p := &domain.Project{}
	err := r.db.QueryRow(ctx, selectProjectQuery, projectId).Scan(
		&p.Id,
		&p.Name,
		&p.OwnerId,
		&p.Visibility,
		&p.DefaultBranch,
		&p.RequireApprovals,
		&p.AllowSelfMerge,
		&p.RequireReviewFromOwner,
		&p.NextIssueNumber,
		&p.NextPrNumber,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, handleDBError(err)
	}
	return p, nil
}

func (r *ProjectRepository) UpdateSettings(ctx context.Context, p *domain.Project) error {
	cmdTag, err := r.db.Exec(ctx, updateProjectSettingsQuery,
		p.Id, p.Visibility, p.DefaultBranch,
		p.RequireApprovals, p.AllowSelfMerge, p.RequireReviewFromOwner,
	)
	if err != nil {
		r.log.Error("failed to update project settings", zap.String("project_id", p.Id), zap.Error(err))
		return handleDBError(err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}

	r.log.Info("project settings updated", zap.String("project_id", p.Id))
	return nil
}
