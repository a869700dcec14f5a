// Package access resolves the calling actor from a bearer credential and
// decides which finding operations each role may perform.
package access

import (
	"context"
	"slices"

	"github.com/sitesafe/hsetrack/internal/errors"
	"github.com/sitesafe/hsetrack/internal/logger"
)

// Role is the caller's organizational role.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleHSE        Role = "hse"
	RoleManagement Role = "management"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleHSE, RoleManagement:
		return true
	}
	return false
}

// Actor is the authenticated caller of one request.
type Actor struct {
	ID   string
	Role Role
}

// Action names a guarded operation.
type Action string

const (
	ActionRead      Action = "finding:read"
	ActionCreate    Action = "finding:create"
	ActionAttach    Action = "finding:attach"
	ActionVerify    Action = "finding:verify"
	ActionSetStatus Action = "finding:set_status"
)

var policy = map[Action][]Role{
	ActionRead:      {RoleAdmin, RoleHSE, RoleManagement},
	ActionCreate:    {RoleAdmin, RoleHSE, RoleManagement},
	ActionAttach:    {RoleAdmin, RoleHSE, RoleManagement},
	ActionVerify:    {RoleAdmin},
	ActionSetStatus: {RoleAdmin, RoleHSE},
}

// Allowed reports whether actor may perform action. Unknown actions are
// denied.
func Allowed(actor Actor, action Action) bool {
	return slices.Contains(policy[action], actor.Role)
}

// Authorize returns an authorization error when actor may not perform
// action.
func Authorize(actor Actor, action Action) error {
	if Allowed(actor, action) {
		return nil
	}
	return errors.Newf("role %q may not perform %s", actor.Role, action).
		Component("access").
		Category(errors.CategoryAuthorization).
		Context("actor_id", actor.ID).
		Context("role", string(actor.Role)).
		Context("action", string(action)).
		Build()
}

// CredentialVerifier turns an externally issued credential into an Actor.
type CredentialVerifier interface {
	Verify(ctx context.Context, credential string) (Actor, error)
}

// GetLogger returns the access module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("access")
}
