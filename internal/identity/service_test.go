// internal/identity/service_test.go
package identity

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketapp/internal/gateway"
	"marketapp/internal/models"
	"marketapp/internal/session"
)

// fakeGateway implements gateway.API with canned auth responses. Order
// endpoints are never reached from the identity service.
type fakeGateway struct {
	loginCred    models.Credential
	loginErr     error
	loginCalls   int
	registerCred *models.Credential
	registerMsg  string
	registerErr  error
}

func (f *fakeGateway) Login(ctx context.Context, email, password string) (models.Credential, error) {
	f.loginCalls++
	if f.loginErr != nil {
		return models.Credential{}, f.loginErr
	}
	return f.loginCred, nil
}

func (f *fakeGateway) Register(ctx context.Context, in gateway.RegisterInput) (*models.Credential, string, error) {
	return f.registerCred, f.registerMsg, f.registerErr
}

func (f *fakeGateway) ListUsers(context.Context) ([]models.User, error) { return nil, nil }
func (f *fakeGateway) UpdateUserStatus(context.Context, string, gateway.UserStatusPatch) (string, error) {
	return "", nil
}
func (f *fakeGateway) MyOrders(context.Context) ([]models.Order, error)         { return nil, nil }
func (f *fakeGateway) EnterpriseOrders(context.Context) ([]models.Order, error) { return nil, nil }
func (f *fakeGateway) AllOrders(context.Context, string, string) ([]models.Order, error) {
	return nil, nil
}
func (f *fakeGateway) CreateOrder(context.Context, []models.OrderItem, float64) (*models.Order, error) {
	return nil, nil
}
func (f *fakeGateway) UpdateOrderStatus(context.Context, string, models.OrderStatus, []models.OrderItem) (*models.Order, error) {
	return nil, nil
}

func token(t *testing.T, id string, role models.Role, ttl time.Duration) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":   id,
		"role": string(role),
		"name": "Test User",
		"exp":  time.Now().Add(ttl).Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return tok
}

func newService(t *testing.T, gw gateway.API) (*Service, session.Store) {
	t.Helper()
	store := session.NewFileStore(filepath.Join(t.TempDir(), "session.json"))
	return New(gw, store), store
}

func TestInitializeWithoutSession(t *testing.T) {
	svc, _ := newService(t, &fakeGateway{})
	assert.True(t, svc.Loading())

	require.NoError(t, svc.Initialize(context.Background()))
	assert.False(t, svc.Loading())
	assert.Nil(t, svc.Current())
}

func TestInitializeRestoresSession(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t, &fakeGateway{})
	cred := models.Credential{
		Token: token(t, "u1", models.RoleBuyer, time.Hour),
		ID:    "u1",
		Name:  "Ann",
		Role:  models.RoleBuyer,
	}
	require.NoError(t, store.Save(ctx, cred))

	require.NoError(t, svc.Initialize(ctx))
	p := svc.Current()
	require.NotNil(t, p)
	assert.Equal(t, "u1", p.ID)
	assert.Equal(t, models.RoleBuyer, p.Role)
	assert.False(t, p.TokenExpiry.IsZero())
}

func TestInitializeClearsExpiredSession(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t, &fakeGateway{})
	cred := models.Credential{
		Token: token(t, "u1", models.RoleBuyer, -time.Hour),
		ID:    "u1",
		Role:  models.RoleBuyer,
	}
	require.NoError(t, store.Save(ctx, cred))

	err := svc.Initialize(ctx)
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.False(t, svc.Loading())
	assert.Nil(t, svc.Current())

	_, ok, loadErr := store.Load(ctx)
	require.NoError(t, loadErr)
	assert.False(t, ok, "expired credential should be cleared")
}

func TestLoginPersistsBeforePrincipalVisible(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{loginCred: models.Credential{
		Token:            token(t, "u2", models.RoleEnterprise, time.Hour),
		ID:               "u2",
		Name:             "Acme",
		Role:             models.RoleEnterprise,
		EnterpriseStatus: models.EnterpriseApproved,
	}}
	svc, store := newService(t, gw)
	require.NoError(t, svc.Initialize(ctx))

	p, err := svc.Login(ctx, "acme@example.com", "pw")
	require.NoError(t, err)
	require.NotNil(t, p)

	// A dependent Can check sequenced after Login observes the new state.
	assert.True(t, svc.Can(CapEnterpriseOrders))

	stored, ok, err := store.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "u2", stored.ID)
}

func TestLoginFailureLeavesPrincipalUnchanged(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{loginErr: &models.GatewayError{StatusCode: 400, Message: "Invalid credentials"}}
	svc, _ := newService(t, gw)
	require.NoError(t, svc.Initialize(ctx))

	_, err := svc.Login(ctx, "ann@example.com", "wrong")
	var authErr *models.AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "Invalid credentials", authErr.Reason)
	assert.Equal(t, 1, gw.loginCalls)
	assert.Nil(t, svc.Current())
}

func TestRegisterEnterpriseSetsNoPrincipal(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{registerMsg: "pending admin approval"}
	svc, store := newService(t, gw)
	require.NoError(t, svc.Initialize(ctx))

	p, msg, err := svc.Register(ctx, gateway.RegisterInput{
		Name: "Acme", Email: "acme@example.com", Password: "pw", Role: models.RoleEnterprise,
	})
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.Equal(t, "pending admin approval", msg)
	assert.Nil(t, svc.Current())

	_, ok, err := store.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRegisterBuyerBehavesLikeLogin(t *testing.T) {
	ctx := context.Background()
	cred := models.Credential{
		Token: token(t, "u3", models.RoleBuyer, time.Hour),
		ID:    "u3",
		Role:  models.RoleBuyer,
	}
	gw := &fakeGateway{registerCred: &cred}
	svc, _ := newService(t, gw)
	require.NoError(t, svc.Initialize(ctx))

	p, _, err := svc.Register(ctx, gateway.RegisterInput{
		Name: "Ben", Email: "ben@example.com", Password: "pw", Role: models.RoleBuyer,
	})
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.True(t, svc.Can(CapBuyerOrders))
}

func TestLogoutIsIdempotent(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{loginCred: models.Credential{
		Token: token(t, "u1", models.RoleBuyer, time.Hour), ID: "u1", Role: models.RoleBuyer,
	}}
	svc, _ := newService(t, gw)
	require.NoError(t, svc.Initialize(ctx))
	_, err := svc.Login(ctx, "a@b.c", "pw")
	require.NoError(t, err)

	svc.Logout(ctx)
	assert.Nil(t, svc.Current())
	svc.Logout(ctx)
	assert.Nil(t, svc.Current())
}

func TestMergePatchUpdatesAndPersists(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{loginCred: models.Credential{
		Token:            token(t, "e1", models.RoleEnterprise, time.Hour),
		ID:               "e1",
		Role:             models.RoleEnterprise,
		EnterpriseStatus: models.EnterprisePending,
	}}
	svc, store := newService(t, gw)
	require.NoError(t, svc.Initialize(ctx))
	_, err := svc.Login(ctx, "e@x.c", "pw")
	require.NoError(t, err)
	assert.False(t, svc.Can(CapEnterpriseOrders))

	approved := models.EnterpriseApproved
	require.NoError(t, svc.MergePatch(ctx, models.PrincipalPatch{EnterpriseStatus: &approved}))

	p := svc.Current()
	require.NotNil(t, p)
	assert.Equal(t, models.EnterpriseApproved, p.EnterpriseStatus)
	assert.Equal(t, "e1", p.ID)
	assert.Equal(t, models.RoleEnterprise, p.Role)
	assert.True(t, svc.Can(CapEnterpriseOrders))

	stored, ok, err := store.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.EnterpriseApproved, stored.EnterpriseStatus)
}

func TestMergePatchWhileLoggedOutIsNoop(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, &fakeGateway{})
	require.NoError(t, svc.Initialize(ctx))

	blocked := true
	require.NoError(t, svc.MergePatch(ctx, models.PrincipalPatch{IsBlocked: &blocked}))
	assert.Nil(t, svc.Current())
}
