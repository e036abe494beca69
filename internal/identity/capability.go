// internal/identity/capability.go
package identity

import "marketapp/internal/models"

// Capability names a protected view or action. Views ask "may I render
// this" through Can; they never re-derive role logic themselves.
type Capability string

const (
	CapDashboard          Capability = "dashboard"
	CapAdminUsers         Capability = "admin.users"
	CapAdminOrders        Capability = "admin.orders"
	CapAdminStats         Capability = "admin.stats"
	CapBuyerProducts      Capability = "buyer.products"
	CapBuyerOrders        Capability = "buyer.orders"
	CapEnterpriseProducts Capability = "enterprise.products"
	CapEnterpriseOrders   Capability = "enterprise.orders"
)

type capabilityRule struct {
	roles        []models.Role // empty: any authenticated role
	approvedOnly bool          // enterprise principals must be approved
}

var capabilityRules = map[Capability]capabilityRule{
	CapDashboard:          {},
	CapAdminUsers:         {roles: []models.Role{models.RoleAdmin}},
	CapAdminOrders:        {roles: []models.Role{models.RoleAdmin}},
	CapAdminStats:         {roles: []models.Role{models.RoleAdmin}},
	CapBuyerProducts:      {roles: []models.Role{models.RoleBuyer}},
	CapBuyerOrders:        {roles: []models.Role{models.RoleBuyer}},
	CapEnterpriseProducts: {roles: []models.Role{models.RoleEnterprise}, approvedOnly: true},
	CapEnterpriseOrders:   {roles: []models.Role{models.RoleEnterprise}, approvedOnly: true},
}

// Allowed evaluates a capability for a principal. Order matters: no
// principal, then blocked, then role, then enterprise approval.
func Allowed(p *models.Principal, cap Capability) bool {
	if p == nil {
		return false
	}
	if p.IsBlocked {
		return false
	}
	rule, ok := capabilityRules[cap]
	if !ok {
		return false
	}
	if len(rule.roles) > 0 {
		match := false
		for _, r := range rule.roles {
			if p.Role == r {
				match = true
				break
			}
		}
		if !match {
			return false
		}
	}
	if rule.approvedOnly && p.Role == models.RoleEnterprise && p.EnterpriseStatus != models.EnterpriseApproved {
		return false
	}
	return true
}

// HomeRoute is the post-login destination for a principal: admins land
// on user management, approved enterprises on their products, buyers on
// the catalogue. Pending or rejected enterprises go home until an admin
// acts.
func HomeRoute(p *models.Principal) string {
	if p == nil {
		return "/login"
	}
	switch p.Role {
	case models.RoleAdmin:
		return "/admin/users"
	case models.RoleEnterprise:
		if p.EnterpriseStatus == models.EnterpriseApproved {
			return "/enterprise/products"
		}
		return "/"
	default:
		return "/buyer/products"
	}
}
