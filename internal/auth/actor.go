package auth

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Role is the caller's tagged variant. Permission gates switch on it
// instead of comparing free-form strings.
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RolePatient, RoleDoctor, RoleAdmin:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Actor is the identity the external provider vouched for.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

func (a Actor) IsPatient(id uuid.UUID) bool { return a.Role == RolePatient && a.ID == id }
func (a Actor) IsDoctor(id uuid.UUID) bool  { return a.Role == RoleDoctor && a.ID == id }
func (a Actor) IsAdmin() bool               { return a.Role == RoleAdmin }

type actorKey struct{}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFrom returns the actor stored by the authentication middleware.
func ActorFrom(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}
