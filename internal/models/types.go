// internal/models/types.go
package models

import "time"

// Role is fixed at registration and never changes from the client's
// point of view.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleEnterprise Role = "enterprise"
	RoleBuyer      Role = "buyer"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleEnterprise, RoleBuyer:
		return true
	}
	return false
}

// EnterpriseStatus is only meaningful for enterprise accounts; it is the
// empty string for everyone else.
type EnterpriseStatus string

const (
	EnterprisePending  EnterpriseStatus = "pending"
	EnterpriseApproved EnterpriseStatus = "approved"
	EnterpriseRejected EnterpriseStatus = "rejected"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderApproved  OrderStatus = "approved"
	OrderRejected  OrderStatus = "rejected"
	OrderShipped   OrderStatus = "shipped"
	OrderDelivered OrderStatus = "delivered"
	OrderCancelled OrderStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed out of s.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderRejected, OrderDelivered, OrderCancelled:
		return true
	}
	return false
}

// Credential is the persisted proof of authentication: the bearer token
// plus the claim snapshot the login response carried. It is the one JSON
// blob the session store owns.
type Credential struct {
	Token            string           `json:"token"`
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	Email            string           `json:"email,omitempty"`
	Role             Role             `json:"role"`
	EnterpriseStatus EnterpriseStatus `json:"enterpriseStatus,omitempty"`
	IsBlocked        bool             `json:"isBlocked"`
}

// Principal is the authenticated user's view of itself, derived from the
// credential at initialize/login time.
type Principal struct {
	ID               string
	Name             string
	Email            string
	Role             Role
	EnterpriseStatus EnterpriseStatus
	IsBlocked        bool
	TokenExpiry      time.Time
}

// PrincipalPatch is a partial server-pushed update to the current
// principal (e.g. an admin approving the enterprise account). Role and
// ID are deliberately absent; they never change.
type PrincipalPatch struct {
	Name             *string
	EnterpriseStatus *EnterpriseStatus
	IsBlocked        *bool
}

// User is an account as the admin listing returns it.
type User struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	Email            string           `json:"email"`
	Role             Role             `json:"role"`
	EnterpriseStatus EnterpriseStatus `json:"enterpriseStatus,omitempty"`
	IsBlocked        bool             `json:"isBlocked"`
}

// OrderItem is one line of an order. Name and PriceAtOrder are snapshots
// taken when the order was placed; later product edits do not touch them.
type OrderItem struct {
	ID                string  `json:"id"`
	ProductRef        string  `json:"productId"`
	Name              string  `json:"name"`
	Quantity          int     `json:"quantity"`
	PriceAtOrder      float64 `json:"priceAtOrder"`
	AssignedWarehouse string  `json:"assignedWarehouse,omitempty"`
}

// Order is a purchase transaction between a buyer and an enterprise. The
// backend owns it; copies held here are caches. TotalAmount is fixed at
// creation and never recomputed.
type Order struct {
	ID            string      `json:"id"`
	BuyerRef      string      `json:"buyerId"`
	EnterpriseRef string      `json:"enterpriseId"`
	TotalAmount   float64     `json:"totalAmount"`
	Status        OrderStatus `json:"status"`
	OrderDate     time.Time   `json:"orderDate"`
	Items         []OrderItem `json:"items"`
}
