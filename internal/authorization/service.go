package authorization

import (
	"context"
	"errors"
)

// Roles carried in the access token.
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
)

type Service interface {
	// Authorize checks that userID, acting with role, may perform action on object.
	Authorize(ctx context.Context, userID string, role string, object string, action string) error
}

var (
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidRole   = errors.New("invalid_role")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
	ErrForbidden     = errors.New("forbidden")
)

// HighestRole picks the strongest known role from a token's role list.
func HighestRole(roles []string) string {
	best, bestRank := "", 0
	for _, role := range roles {
		if rank := roleRank(role); rank > bestRank {
			best, bestRank = normalizeRole(role), rank
		}
	}
	return best
}

func roleRank(role string) int {
	switch normalizeRole(role) {
	case RoleOwner:
		return 3
	case RoleAdmin:
		return 2
	case RoleMember:
		return 1
	default:
		return 0
	}
}
