package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sourcehub/sourcehub/internal/domain"
	"go.uber.org/zap"
)

const (
	selectDirectRoleQuery = `
SELECT role FROM project_members
WHERE project_id = $1 AND user_id = $2;`

	selectTeamRolesQuery = `
SELECT tpg.role
FROM team_members tm
JOIN team_project_grants tpg ON tpg.team_id = tm.team_id
WHERE tm.user_id = $1 AND tpg.project_id = $2;`

	upsertMemberQuery = `
INSERT INTO project_members(project_id, user_id, role)
VALUES ($1, $2, $3)
ON CONFLICT (project_id, user_id) DO UPDATE SET role = EXCLUDED.role;`

	deleteMemberQuery = `
DELETE FROM project_members
WHERE project_id = $1 AND user_id = $2;`

	selectTeamMembersQuery = `
SELECT user_id FROM team_members
WHERE team_id = $1;`

	upsertTeamGrantQuery = `
INSERT INTO team_project_grants(team_id, project_id, role)
VALUES ($1, $2, $3)
ON CONFLICT (team_id, project_id) DO UPDATE SET role = EXCLUDED.role;`

	deleteTeamGrantQuery = `
DELETE FROM team_project_grants
WHERE team_id = $1 AND project_id = $2;`
)

type MemberRepository struct {
	db  *pgxpool.Pool
	log *zap.Logger
}

func NewMemberRepository(db *pgxpool.Pool, log *zap.Logger) *MemberRepository {
	return &MemberRepository{
		db:  db,
		log: log,
	}
}

// DirectRole returns the direct grant for the user, ErrNotFound when none exists.
func (r *MemberRepository) DirectRole(ctx context.Context, projectId, userId string) (domain.Role, error) {
	var role domain.Role
	err := r.db.QueryRow(ctx, selectDirectRoleQuery, projectId, userId).Scan(&role)
	if err != nil {
		return "", handleDBError(err)
	}
	return role, nil
}

// TeamRoles returns every role the user holds on the project through
// team membership plus a team-level grant.
func (r *MemberRepository) TeamRoles(ctx context.Context, userId, projectId string) ([]domain.Role, error) {
	rows, err := r.db.Query(ctx, selectTeamRolesQuery, userId, projectId)
	if err != nil {
		return nil, handleDBError(err)
	}
	defer rows.Close()

	var roles []domain.Role
	for rows.Next() {
		var role domain.Role
		if err := rows.Scan(&role); err != nil {
			return nil, handleDBError(err)
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (r *MemberRepository) UpsertMember(ctx context.Context, projectId, userId string, role domain.Role) error {
	if _, err := r.db.Exec(ctx, upsertMemberQuery, projectId, userId, role); err != nil {
		r.log.Error("failed to upsert member",
			zap.String("project_id", projectId),
			zap.String("user_id", userId),
			zap.Error(err),
		)
		return handleDBError(err)
	}

	r.log.Info("member grant set",
		zap.String("project_id", projectId),
		zap.String("user_id", userId),
		zap.String("role", string(role)),
	)
	return nil
}

func (r *MemberRepository) DeleteMember(ctx context.Context, projectId, userId string) error {
	cmdTag, err := r.db.Exec(ctx, deleteMemberQuery, projectId, userId)
	if err != nil {
		return handleDBError(err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}

	r.log.Info("member grant removed",
		zap.String("project_id", projectId),
		zap.String("user_id", userId),
	)
	return nil
}

// TeamMembers lists user ids of the current team membership, used for
// cache eviction fan-out on team grant mutations.
func (r *MemberRepository) TeamMembers(ctx context.Context, teamId string) ([]string, error) {
	rows, err := r.db.Query(ctx, selectTeamMembersQuery, teamId)
	if err != nil {
		return nil, handleDBError(err)
	}
	defer rows.Close()

	var userIds []string
	for rows.Next() {
		var userId string
		if err := rows.Scan(&userId); err != nil {
			return nil, handleDBError(err)
		}
		userIds = append(userIds, userId)
	}
	return userIds, rows.Err()
}

func (r *MemberRepository) UpsertTeamGrant(ctx context.Context, teamId, projectId string, role domain.Role) error {
	if _, err := r.db.Exec(ctx, upsertTeamGrantQuery, teamId, projectId, role); err != nil {
		r.log.Error("failed to upsert team grant",
			zap.String("team_id", teamId),
			zap.String("project_id", projectId),
			zap.Error(err),
		)
		return handleDBError(err)
	}

	r.log.Info("team grant set",
		zap.String("team_id", teamId),
		zap.String("project_id", projectId),
		zap.String("role", string(role)),
	)
	return nil
}

func (r *MemberRepository) DeleteTeamGrant(ctx context.Context, teamId, projectId string) error {
	cmdTag, err := r.db.Exec(ctx, deleteTeamGrantQuery, teamId, projectId)
	if err != nil {
		return handleDBError(err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}

	r.log.Info("team grant removed",
		zap.String("team_id", teamId),
		zap.String("project_id", projectId),
	)
	return nil
}
