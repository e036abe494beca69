// internal/guard/guard_test.go
package guard

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"marketapp/internal/identity"
	"marketapp/internal/models"
)

// fakeAuth is a hand-rolled identity service double.
type fakeAuth struct {
	loading   bool
	principal *models.Principal
}

func (f *fakeAuth) Loading() bool              { return f.loading }
func (f *fakeAuth) Current() *models.Principal { return f.principal }
func (f *fakeAuth) Can(cap identity.Capability) bool {
	return identity.Allowed(f.principal, cap)
}

func TestAuthorizePendingWhileLoading(t *testing.T) {
	// Even an unauthenticated request must not redirect during the
	// loading window.
	g := New(&fakeAuth{loading: true})
	d := g.Authorize(identity.CapAdminUsers)
	assert.Equal(t, Pending, d.Kind)
	assert.Empty(t, d.Target)
}

func TestAuthorizeRedirectsToLoginWithoutPrincipal(t *testing.T) {
	g := New(&fakeAuth{})
	d := g.Authorize(identity.CapBuyerOrders)
	assert.Equal(t, RedirectLogin, d.Kind)
	assert.Equal(t, "/login", d.Target)
}

func TestAuthorizeRedirectsHomeOnRoleMismatch(t *testing.T) {
	g := New(&fakeAuth{principal: &models.Principal{ID: "b", Role: models.RoleBuyer}})
	d := g.Authorize(identity.CapAdminUsers)
	assert.Equal(t, RedirectHome, d.Kind)
	assert.Equal(t, "/", d.Target)
}

func TestAuthorizeRedirectsHomeWhenBlocked(t *testing.T) {
	g := New(&fakeAuth{principal: &models.Principal{ID: "b", Role: models.RoleBuyer, IsBlocked: true}})
	d := g.Authorize(identity.CapBuyerOrders)
	assert.Equal(t, RedirectHome, d.Kind)
}

func TestAuthorizeRedirectsHomeForUnapprovedEnterprise(t *testing.T) {
	g := New(&fakeAuth{principal: &models.Principal{
		ID: "e", Role: models.RoleEnterprise, EnterpriseStatus: models.EnterprisePending,
	}})
	d := g.Authorize(identity.CapEnterpriseOrders)
	assert.Equal(t, RedirectHome, d.Kind)
}

func TestAuthorizeAllows(t *testing.T) {
	g := New(&fakeAuth{principal: &models.Principal{
		ID: "e", Role: models.RoleEnterprise, EnterpriseStatus: models.EnterpriseApproved,
	}})
	d := g.Authorize(identity.CapEnterpriseOrders)
	assert.Equal(t, Allow, d.Kind)
	assert.Empty(t, d.Target)
}
