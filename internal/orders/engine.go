// internal/orders/engine.go
package orders

import (
	"context"
	"fmt"
	"log/slog"

	"marketapp/internal/models"
)

// Gateway is the slice of the backend the engine calls. The backend is
// the authoritative enforcer; every check here is advisory, done before
// a request is sent so the user gets immediate feedback.
type Gateway interface {
	MyOrders(ctx context.Context) ([]models.Order, error)
	EnterpriseOrders(ctx context.Context) ([]models.Order, error)
	AllOrders(ctx context.Context, buyerID, enterpriseID string) ([]models.Order, error)
	CreateOrder(ctx context.Context, items []models.OrderItem, totalAmount float64) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID string, status models.OrderStatus, items []models.OrderItem) (*models.Order, error)
}

type transitionKey struct {
	from models.OrderStatus
	to   models.OrderStatus
}

// transitionTable maps each legal (from, to) pair to the roles that may
// request it. Rejected, delivered and cancelled are terminal: no key
// leads out of them.
var transitionTable = map[transitionKey][]models.Role{
	{models.OrderPending, models.OrderApproved}:   {models.RoleEnterprise},
	{models.OrderPending, models.OrderRejected}:   {models.RoleEnterprise, models.RoleAdmin},
	{models.OrderPending, models.OrderCancelled}:  {models.RoleAdmin},
	{models.OrderApproved, models.OrderShipped}:   {models.RoleAdmin},
	{models.OrderApproved, models.OrderCancelled}: {models.RoleEnterprise, models.RoleAdmin},
	{models.OrderShipped, models.OrderDelivered}:  {models.RoleAdmin},
	{models.OrderShipped, models.OrderCancelled}:  {models.RoleAdmin},
}

// TransitionAllowed reports whether the status change itself is in the
// table, regardless of actor.
func TransitionAllowed(from, to models.OrderStatus) bool {
	_, ok := transitionTable[transitionKey{from, to}]
	return ok
}

// ActorAllowed reports whether role may request the (from, to) change.
func ActorAllowed(from, to models.OrderStatus, role models.Role) bool {
	roles, ok := transitionTable[transitionKey{from, to}]
	if !ok {
		return false
	}
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// Engine enforces the order status state machine in front of the
// gateway.
type Engine struct {
	gw Gateway
}

func NewEngine(gw Gateway) *Engine {
	return &Engine{gw: gw}
}

// AssignWarehouse returns a copy of items with one item's draft
// warehouse updated. The persisted order is untouched until
// ProposeTransition submits the draft.
func AssignWarehouse(items []models.OrderItem, itemID, warehouse string) []models.OrderItem {
	out := make([]models.OrderItem, len(items))
	copy(out, items)
	for i := range out {
		if out[i].ID == itemID {
			out[i].AssignedWarehouse = warehouse
		}
	}
	return out
}

// MergeAssignments folds a map of itemID -> warehouse into a copy of
// the items.
func MergeAssignments(items []models.OrderItem, assignments map[string]string) []models.OrderItem {
	out := make([]models.OrderItem, len(items))
	copy(out, items)
	for i := range out {
		if wh, ok := assignments[out[i].ID]; ok {
			out[i].AssignedWarehouse = wh
		}
	}
	return out
}

// Total sums quantity * priceAtOrder over the items. It is computed once
// at creation; placed orders never recompute it.
func Total(items []models.OrderItem) float64 {
	var total float64
	for _, it := range items {
		total += float64(it.Quantity) * it.PriceAtOrder
	}
	return total
}

// ProposeTransition validates the requested status change and, only if
// valid, submits it. On success the returned order reflects the
// backend's authoritative state; the local copy transitions only after
// the gateway confirms.
//
// Validation order: transition table, then actor role, then ownership,
// then the warehouse precondition for approval. Failures before the
// gateway call send no request at all.
func (e *Engine) ProposeTransition(ctx context.Context, actor *models.Principal, order models.Order, target models.OrderStatus, assignments map[string]string) (*models.Order, error) {
	if !TransitionAllowed(order.Status, target) {
		return nil, &models.InvalidTransitionError{From: order.Status, To: target}
	}
	if actor == nil {
		return nil, &models.AuthorizationError{Capability: "order transition"}
	}
	if !ActorAllowed(order.Status, target, actor.Role) {
		return nil, &models.AuthorizationError{Capability: fmt.Sprintf("%s order as %s", target, actor.Role)}
	}
	// Enterprises only act on their own orders; admins see everything.
	if actor.Role == models.RoleEnterprise && order.EnterpriseRef != "" && order.EnterpriseRef != actor.ID {
		return nil, &models.AuthorizationError{Capability: "order of another enterprise"}
	}

	items := MergeAssignments(order.Items, assignments)
	var payload []models.OrderItem
	if target == models.OrderApproved {
		for _, it := range items {
			if it.AssignedWarehouse == "" {
				return nil, &models.ValidationError{
					Message: "all items must have an assigned warehouse before approving the order",
				}
			}
		}
		payload = items
	}

	updated, err := e.gw.UpdateOrderStatus(ctx, order.ID, target, payload)
	if err != nil {
		return nil, err
	}
	slog.Info("order status updated", "order_id", order.ID, "from", order.Status, "to", target)
	if updated != nil {
		return updated, nil
	}
	// Backends that reply with just a message: reflect the confirmed
	// change on the local copy.
	order.Status = target
	order.Items = items
	return &order, nil
}

// Place creates a new order from the draft items. The total is the sum
// of the line subtotals at this moment; later product price changes do
// not touch it.
func (e *Engine) Place(ctx context.Context, items []models.OrderItem) (*models.Order, error) {
	if len(items) == 0 {
		return nil, &models.ValidationError{Message: "order must contain at least one item"}
	}
	for _, it := range items {
		if it.Quantity <= 0 {
			return nil, &models.ValidationError{Message: "item quantity must be a positive integer"}
		}
		if it.PriceAtOrder < 0 {
			return nil, &models.ValidationError{Message: "item price must not be negative"}
		}
	}
	return e.gw.CreateOrder(ctx, items, Total(items))
}

// ListMine returns the buyer's own orders.
func (e *Engine) ListMine(ctx context.Context) ([]models.Order, error) {
	return e.gw.MyOrders(ctx)
}

// ListEnterprise returns orders addressed to the calling enterprise.
func (e *Engine) ListEnterprise(ctx context.Context) ([]models.Order, error) {
	return e.gw.EnterpriseOrders(ctx)
}

// ListAll is the admin view, optionally filtered by buyer and/or
// enterprise. Plain query passthrough, no state machine logic.
func (e *Engine) ListAll(ctx context.Context, buyerID, enterpriseID string) ([]models.Order, error) {
	return e.gw.AllOrders(ctx, buyerID, enterpriseID)
}
