// internal/guard/guard.go
package guard

import (
	"marketapp/internal/identity"
	"marketapp/internal/models"
)

// Kind is the outcome of an authorization check for a requested view.
type Kind int

const (
	// Pending: the identity service is still loading; render a neutral
	// state and do not redirect.
	Pending Kind = iota
	// Allow: render the requested view.
	Allow
	// RedirectLogin: nobody is logged in.
	RedirectLogin
	// RedirectHome: logged in but blocked, wrong role, or unapproved.
	RedirectHome
)

type Decision struct {
	Kind   Kind
	Target string // redirect destination, empty for Pending/Allow
}

// Authorizer is the slice of the identity service the guard needs.
type Authorizer interface {
	Loading() bool
	Current() *models.Principal
	Can(identity.Capability) bool
}

// Guard sits between a navigation request and a protected view. It is
// synchronous and never performs I/O; all state comes from the identity
// service.
type Guard struct {
	auth Authorizer
}

func New(auth Authorizer) *Guard {
	return &Guard{auth: auth}
}

// Authorize decides whether the requested capability may be rendered.
// While the identity service is loading the answer is always Pending,
// even for a request that would otherwise redirect.
func (g *Guard) Authorize(cap identity.Capability) Decision {
	if g.auth.Loading() {
		return Decision{Kind: Pending}
	}
	if g.auth.Can(cap) {
		return Decision{Kind: Allow}
	}
	if g.auth.Current() == nil {
		return Decision{Kind: RedirectLogin, Target: "/login"}
	}
	return Decision{Kind: RedirectHome, Target: "/"}
}
