package domain

import (
	"context"
	"errors"
)

// Actor is the authenticated principal behind an operation.
type Actor struct {
	ID    string
	Email string
	Role  Role
}

// Role represents an actor's access level
type Role string

const (
	// RoleAdmin has full access to all operations
	RoleAdmin Role = "admin"

	// RoleOperator runs finance operations: approvals, refunds and arbitration
	RoleOperator Role = "operator"

	// RoleClient funds milestones and may cancel or dispute them
	RoleClient Role = "client"

	// RoleVendor delivers milestones and files payment requests
	RoleVendor Role = "vendor"

	// RoleViewer can only view resources, no mutations
	RoleViewer Role = "viewer"
)

var validRoles = map[Role]bool{
	RoleAdmin:    true,
	RoleOperator: true,
	RoleClient:   true,
	RoleVendor:   true,
	RoleViewer:   true,
}

// IsValid checks if the role is a valid role
func (r Role) IsValid() bool {
	return validRoles[r]
}

// CanOperate checks if the role may move money directly and arbitrate disputes
func (r Role) CanOperate() bool {
	return r == RoleAdmin || r == RoleOperator
}

// CanViewAll checks if the role may read records it is not a party to
func (r Role) CanViewAll() bool {
	return r.CanOperate() || r == RoleViewer
}

// CanManageAccounts checks if the role can manage accounts
func (r Role) CanManageAccounts() bool {
	return r == RoleAdmin
}

// Authentication errors
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("insufficient role for this operation")
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// SystemActorID identifies work done by the service itself.
const SystemActorID = "system"

// SystemActor is the actor used when authentication is disabled.
func SystemActor() *Actor {
	return &Actor{ID: SystemActorID, Role: RoleAdmin}
}

type actorContextKey struct{}

// ContextWithActor returns a copy of ctx carrying actor.
func ContextWithActor(ctx context.Context, actor *Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor set by the transport layer.
func ActorFromContext(ctx context.Context) (*Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(*Actor)
	return actor, ok && actor != nil
}

// RequireActor returns the context actor or ErrUnauthorized.
func RequireActor(ctx context.Context) (*Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return nil, ErrUnauthorized
	}
	return actor, nil
}

// RequireOperator returns the context actor if it may operate on money directly.
func RequireOperator(ctx context.Context) (*Actor, error) {
	actor, err := RequireActor(ctx)
	if err != nil {
		return nil, err
	}
	if !actor.Role.CanOperate() {
		return nil, ErrForbidden
	}
	return actor, nil
}
