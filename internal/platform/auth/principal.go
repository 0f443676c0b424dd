package auth

import (
	"context"
)

// Role is an account's single role.
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

var validRoles = map[Role]bool{
	RolePatient: true,
	RoleDoctor:  true,
	RoleAdmin:   true,
}

func (r Role) Valid() bool { return validRoles[r] }

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID int64
	Role   Role
}

func (p Principal) Is(role Role) bool { return p.Role == role }

type contextKey string

const principalKey contextKey = "principal"

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the authenticated caller, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}
