package handler

import (
	"context"

	"github.com/sourcehub/sourcehub/internal/domain"
	"github.com/sourcehub/sourcehub/internal/transport/middleware"
	"github.com/sourcehub/sourcehub/internal/usecase"
)

// requireRole gates a handler on the caller's effective role in the
// project. Callers with no access at all get the same FORBIDDEN as
// callers below the minimum, so private projects do not leak existence
// through status codes.
func requireRole(ctx context.Context, access *usecase.AccessService, projectId string, min domain.Role) (string, error) {
	principal := middleware.Principal(ctx)
	if principal == "" {
		return "", usecase.ErrAuthenticationRequired
	}

	role, err := access.EffectiveRole(ctx, principal, projectId)
	if err != nil {
		return "", err
	}
	if role == "" || !role.AtLeast(min) {
		return "", usecase.ErrForbidden
	}
	return principal, nil
}
