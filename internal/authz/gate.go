// Package authz decides route access from the store's current-user slot.
package authz

import (
	"slices"

	"storefront-sync/internal/domain"
	"storefront-sync/internal/store"
)

// Verdict is the outcome of an access check.
type Verdict string

const (
	// Pending: the session check has not settled yet; render a spinner.
	Pending Verdict = "pending"
	Allow   Verdict = "allow"
	// Deny: signed in but the role is not allowed.
	Deny Verdict = "deny"
	// RedirectLogin: no session.
	RedirectLogin Verdict = "redirect"
)

const (
	LoginPath        = "/login"
	UnauthorizedPath = "/unauthorized"
)

// Decision is a verdict plus where to send the user, if anywhere.
type Decision struct {
	Verdict  Verdict `json:"verdict"`
	Redirect string  `json:"redirect,omitempty"`
	Role     string  `json:"role,omitempty"`
}

// Decide evaluates access for a current-user status and slot. An empty role
// list admits any signed-in user.
func Decide(status store.Status, user *domain.User, roles []domain.Role) Decision {
	if status.Loading || (!status.Loaded && status.Error == nil) {
		return Decision{Verdict: Pending}
	}
	if user == nil || status.Error != nil {
		return Decision{Verdict: RedirectLogin, Redirect: LoginPath}
	}
	if len(roles) > 0 && !slices.Contains(roles, user.Role) {
		return Decision{Verdict: Deny, Redirect: UnauthorizedPath, Role: string(user.Role)}
	}
	return Decision{Verdict: Allow, Role: string(user.Role)}
}

// Gate reads the current user from a store.
type Gate struct {
	store *store.Store
}

// NewGate creates a gate over s.
func NewGate(s *store.Store) *Gate {
	return &Gate{store: s}
}

// Check decides access for the store's current state.
func (g *Gate) Check(roles ...domain.Role) Decision {
	status, user := g.store.Session()
	return Decide(status, user, roles)
}
