// internal/orders/engine_test.go
package orders

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketapp/internal/models"
)

// recordingGateway captures what the engine submits; a nil update
// response exercises the message-only backend path.
type recordingGateway struct {
	updateCalls  int
	lastStatus   models.OrderStatus
	lastItems    []models.OrderItem
	updateResult *models.Order
	updateErr    error

	createCalls int
	lastTotal   float64
}

func (g *recordingGateway) MyOrders(context.Context) ([]models.Order, error)         { return nil, nil }
func (g *recordingGateway) EnterpriseOrders(context.Context) ([]models.Order, error) { return nil, nil }
func (g *recordingGateway) AllOrders(context.Context, string, string) ([]models.Order, error) {
	return nil, nil
}

func (g *recordingGateway) CreateOrder(ctx context.Context, items []models.OrderItem, total float64) (*models.Order, error) {
	g.createCalls++
	g.lastTotal = total
	return &models.Order{ID: "o1", Status: models.OrderPending, TotalAmount: total, Items: items}, nil
}

func (g *recordingGateway) UpdateOrderStatus(ctx context.Context, orderID string, status models.OrderStatus, items []models.OrderItem) (*models.Order, error) {
	g.updateCalls++
	g.lastStatus = status
	g.lastItems = items
	return g.updateResult, g.updateErr
}

func enterprise(id string) *models.Principal {
	return &models.Principal{ID: id, Role: models.RoleEnterprise, EnterpriseStatus: models.EnterpriseApproved}
}

func admin() *models.Principal {
	return &models.Principal{ID: "adm", Role: models.RoleAdmin}
}

func pendingOrder() models.Order {
	return models.Order{
		ID:            "o1",
		BuyerRef:      "b1",
		EnterpriseRef: "e1",
		Status:        models.OrderPending,
		Items: []models.OrderItem{
			{ID: "i1", Name: "widget", Quantity: 2, PriceAtOrder: 10},
			{ID: "i2", Name: "gadget", Quantity: 1, PriceAtOrder: 5},
		},
	}
}

func TestProposeTransitionRejectsPairsOutsideTable(t *testing.T) {
	gw := &recordingGateway{}
	e := NewEngine(gw)

	// pending -> shipped is not in the table.
	_, err := e.ProposeTransition(context.Background(), admin(), pendingOrder(), models.OrderShipped, nil)
	var inv *models.InvalidTransitionError
	require.ErrorAs(t, err, &inv)
	assert.Equal(t, models.OrderPending, inv.From)
	assert.Equal(t, models.OrderShipped, inv.To)
	assert.Zero(t, gw.updateCalls, "no request may be sent")
}

func TestProposeTransitionRejectsTerminalStates(t *testing.T) {
	gw := &recordingGateway{}
	e := NewEngine(gw)
	for _, from := range []models.OrderStatus{models.OrderRejected, models.OrderDelivered, models.OrderCancelled} {
		o := pendingOrder()
		o.Status = from
		_, err := e.ProposeTransition(context.Background(), admin(), o, models.OrderCancelled, nil)
		var inv *models.InvalidTransitionError
		assert.ErrorAs(t, err, &inv, "from %s", from)
	}
	assert.Zero(t, gw.updateCalls)
}

func TestProposeTransitionRejectsWrongActor(t *testing.T) {
	gw := &recordingGateway{}
	e := NewEngine(gw)

	// Only the owning enterprise may approve.
	buyer := &models.Principal{ID: "b1", Role: models.RoleBuyer}
	_, err := e.ProposeTransition(context.Background(), buyer, pendingOrder(), models.OrderApproved,
		map[string]string{"i1": "main", "i2": "main"})
	var authz *models.AuthorizationError
	require.ErrorAs(t, err, &authz)

	// Admins cannot approve either.
	_, err = e.ProposeTransition(context.Background(), admin(), pendingOrder(), models.OrderApproved,
		map[string]string{"i1": "main", "i2": "main"})
	require.ErrorAs(t, err, &authz)
	assert.Zero(t, gw.updateCalls)
}

func TestProposeTransitionRejectsForeignEnterprise(t *testing.T) {
	gw := &recordingGateway{}
	e := NewEngine(gw)

	_, err := e.ProposeTransition(context.Background(), enterprise("someone-else"), pendingOrder(),
		models.OrderRejected, nil)
	var authz *models.AuthorizationError
	require.ErrorAs(t, err, &authz)
	assert.Zero(t, gw.updateCalls)
}

func TestProposeTransitionApprovalNeedsWarehouses(t *testing.T) {
	gw := &recordingGateway{}
	e := NewEngine(gw)

	// One item left unassigned.
	_, err := e.ProposeTransition(context.Background(), enterprise("e1"), pendingOrder(),
		models.OrderApproved, map[string]string{"i1": "main"})
	var val *models.ValidationError
	require.ErrorAs(t, err, &val)
	assert.Zero(t, gw.updateCalls, "no request may be sent")
}

func TestProposeTransitionApprovalSubmitsMergedItems(t *testing.T) {
	gw := &recordingGateway{}
	e := NewEngine(gw)

	order := pendingOrder()
	updated, err := e.ProposeTransition(context.Background(), enterprise("e1"), order,
		models.OrderApproved, map[string]string{"i1": "main", "i2": "east"})
	require.NoError(t, err)
	require.NotNil(t, updated)

	assert.Equal(t, 1, gw.updateCalls)
	assert.Equal(t, models.OrderApproved, gw.lastStatus)
	require.Len(t, gw.lastItems, 2)
	assert.Equal(t, "main", gw.lastItems[0].AssignedWarehouse)
	assert.Equal(t, "east", gw.lastItems[1].AssignedWarehouse)

	// The local copy transitions only after the gateway confirms.
	assert.Equal(t, models.OrderApproved, updated.Status)
	assert.Equal(t, models.OrderPending, order.Status, "caller's copy untouched")
}

func TestProposeTransitionPrefersAuthoritativeOrder(t *testing.T) {
	authoritative := &models.Order{ID: "o1", Status: models.OrderShipped}
	gw := &recordingGateway{updateResult: authoritative}
	e := NewEngine(gw)

	o := pendingOrder()
	o.Status = models.OrderApproved
	updated, err := e.ProposeTransition(context.Background(), admin(), o, models.OrderShipped, nil)
	require.NoError(t, err)
	assert.Same(t, authoritative, updated)
}

func TestProposeTransitionPassesGatewayErrorsThrough(t *testing.T) {
	// The backend rejecting a transition is treated like a client-side
	// rejection: surfaced, nothing crashed, prior state intact.
	gw := &recordingGateway{updateErr: &models.GatewayError{StatusCode: 400, Message: "Cannot change order status"}}
	e := NewEngine(gw)

	o := pendingOrder()
	o.Status = models.OrderApproved
	_, err := e.ProposeTransition(context.Background(), admin(), o, models.OrderShipped, nil)
	var ge *models.GatewayError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, 400, ge.StatusCode)
}

func TestRejectAndCancelActors(t *testing.T) {
	gw := &recordingGateway{}
	e := NewEngine(gw)
	ctx := context.Background()

	// pending -> rejected: enterprise or admin.
	_, err := e.ProposeTransition(ctx, enterprise("e1"), pendingOrder(), models.OrderRejected, nil)
	require.NoError(t, err)
	_, err = e.ProposeTransition(ctx, admin(), pendingOrder(), models.OrderRejected, nil)
	require.NoError(t, err)

	// approved -> cancelled: enterprise or admin.
	o := pendingOrder()
	o.Status = models.OrderApproved
	_, err = e.ProposeTransition(ctx, enterprise("e1"), o, models.OrderCancelled, nil)
	require.NoError(t, err)
	_, err = e.ProposeTransition(ctx, admin(), o, models.OrderCancelled, nil)
	require.NoError(t, err)

	// pending -> cancelled: admin only.
	_, err = e.ProposeTransition(ctx, enterprise("e1"), pendingOrder(), models.OrderCancelled, nil)
	var authz *models.AuthorizationError
	require.ErrorAs(t, err, &authz)
}

func TestAssignWarehouseIsPure(t *testing.T) {
	items := pendingOrder().Items
	out := AssignWarehouse(items, "i1", "main")
	assert.Equal(t, "main", out[0].AssignedWarehouse)
	assert.Empty(t, items[0].AssignedWarehouse, "input slice untouched")

	// Unknown item id changes nothing.
	same := AssignWarehouse(items, "nope", "main")
	assert.Equal(t, items, same)
}

func TestTotal(t *testing.T) {
	items := []models.OrderItem{
		{Quantity: 2, PriceAtOrder: 10},
		{Quantity: 1, PriceAtOrder: 5},
	}
	assert.Equal(t, 25.0, Total(items))
	assert.Zero(t, Total(nil))
}

func TestPlaceValidatesAndComputesTotal(t *testing.T) {
	gw := &recordingGateway{}
	e := NewEngine(gw)
	ctx := context.Background()

	_, err := e.Place(ctx, nil)
	var val *models.ValidationError
	require.ErrorAs(t, err, &val)

	_, err = e.Place(ctx, []models.OrderItem{{Quantity: 0, PriceAtOrder: 1}})
	require.ErrorAs(t, err, &val)

	_, err = e.Place(ctx, []models.OrderItem{{Quantity: 1, PriceAtOrder: -1}})
	require.ErrorAs(t, err, &val)
	assert.Zero(t, gw.createCalls)

	order, err := e.Place(ctx, []models.OrderItem{
		{ProductRef: "p1", Quantity: 2, PriceAtOrder: 10},
		{ProductRef: "p2", Quantity: 1, PriceAtOrder: 5},
	})
	require.NoError(t, err)
	assert.Equal(t, 25.0, order.TotalAmount)
	assert.Equal(t, 25.0, gw.lastTotal)
}
