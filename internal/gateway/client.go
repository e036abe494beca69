// internal/gateway/client.go
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"marketapp/internal/models"
	"marketapp/internal/session"
)

// API is the backend surface the rest of the app consumes. The backend
// is the sole source of truth; everything returned here is a cache.
type API interface {
	Login(ctx context.Context, email, password string) (models.Credential, error)
	Register(ctx context.Context, in RegisterInput) (*models.Credential, string, error)

	ListUsers(ctx context.Context) ([]models.User, error)
	UpdateUserStatus(ctx context.Context, userID string, patch UserStatusPatch) (string, error)

	MyOrders(ctx context.Context) ([]models.Order, error)
	EnterpriseOrders(ctx context.Context) ([]models.Order, error)
	AllOrders(ctx context.Context, buyerID, enterpriseID string) ([]models.Order, error)
	CreateOrder(ctx context.Context, items []models.OrderItem, totalAmount float64) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID string, status models.OrderStatus, items []models.OrderItem) (*models.Order, error)
}

type RegisterInput struct {
	Name     string      `json:"name"`
	Email    string      `json:"email"`
	Password string      `json:"password"`
	Role     models.Role `json:"role"`
}

// UserStatusPatch mirrors PUT /admin/users/:id/status. Nil fields are
// omitted from the request.
type UserStatusPatch struct {
	EnterpriseStatus *models.EnterpriseStatus `json:"enterpriseStatus,omitempty"`
	IsBlocked        *bool                    `json:"isBlocked,omitempty"`
}

// Client is the HTTP implementation of API.
type Client struct {
	baseURL string
	http    *http.Client
}

var _ API = (*Client)(nil)

// New builds a client against baseURL. The session store backs the
// bearer-token transport; public calls simply have no token to attach.
func New(baseURL string, timeout time.Duration, store session.Store) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   timeout,
			Transport: &authTransport{store: store},
		},
	}
}

// serverMessage is the error/info envelope the backend uses.
type serverMessage struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (m serverMessage) text() string {
	if m.Message != "" {
		return m.Message
	}
	return m.Error
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		buf = bytes.NewBuffer(data)
	} else {
		buf = &bytes.Buffer{}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &models.GatewayError{Message: "no response from server", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var sm serverMessage
		_ = json.NewDecoder(resp.Body).Decode(&sm)
		msg := sm.text()
		if msg == "" {
			msg = resp.Status
		}
		slog.Debug("gateway request failed", "method", method, "path", path, "status", resp.StatusCode, "msg", msg)
		if resp.StatusCode == http.StatusUnauthorized {
			return &models.AuthenticationError{Reason: msg}
		}
		return &models.GatewayError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &models.GatewayError{StatusCode: resp.StatusCode, Message: "malformed response body", Err: err}
	}
	return nil
}

func (c *Client) Login(ctx context.Context, email, password string) (models.Credential, error) {
	in := map[string]string{"email": email, "password": password}
	var cred models.Credential
	if err := c.do(ctx, http.MethodPost, "/auth/login", in, &cred); err != nil {
		return models.Credential{}, err
	}
	return cred, nil
}

// Register returns the credential for roles that are live immediately,
// or just the server message for enterprise accounts awaiting approval.
func (c *Client) Register(ctx context.Context, in RegisterInput) (*models.Credential, string, error) {
	var out struct {
		models.Credential
		Message string `json:"message"`
	}
	if err := c.do(ctx, http.MethodPost, "/auth/register", in, &out); err != nil {
		return nil, "", err
	}
	if out.Token == "" {
		return nil, out.Message, nil
	}
	return &out.Credential, out.Message, nil
}

func (c *Client) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := c.do(ctx, http.MethodGet, "/admin/users", nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (c *Client) UpdateUserStatus(ctx context.Context, userID string, patch UserStatusPatch) (string, error) {
	var out serverMessage
	path := fmt.Sprintf("/admin/users/%s/status", url.PathEscape(userID))
	if err := c.do(ctx, http.MethodPut, path, patch, &out); err != nil {
		return "", err
	}
	return out.text(), nil
}

func (c *Client) MyOrders(ctx context.Context) ([]models.Order, error) {
	return c.listOrders(ctx, "/orders/my-orders")
}

func (c *Client) EnterpriseOrders(ctx context.Context) ([]models.Order, error) {
	return c.listOrders(ctx, "/orders/enterprise-orders")
}

func (c *Client) AllOrders(ctx context.Context, buyerID, enterpriseID string) ([]models.Order, error) {
	q := url.Values{}
	if buyerID != "" {
		q.Set("buyerId", buyerID)
	}
	if enterpriseID != "" {
		q.Set("enterpriseId", enterpriseID)
	}
	path := "/orders/all"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	return c.listOrders(ctx, path)
}

func (c *Client) listOrders(ctx context.Context, path string) ([]models.Order, error) {
	var orders []models.Order
	if err := c.do(ctx, http.MethodGet, path, nil, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (c *Client) CreateOrder(ctx context.Context, items []models.OrderItem, totalAmount float64) (*models.Order, error) {
	in := map[string]any{"items": items, "totalAmount": totalAmount}
	var order models.Order
	if err := c.do(ctx, http.MethodPost, "/orders", in, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *Client) UpdateOrderStatus(ctx context.Context, orderID string, status models.OrderStatus, items []models.OrderItem) (*models.Order, error) {
	in := map[string]any{"status": status}
	if len(items) > 0 {
		in["items"] = items
	}
	var out struct {
		Message string        `json:"message"`
		Order   *models.Order `json:"order"`
	}
	path := fmt.Sprintf("/orders/%s/status", url.PathEscape(orderID))
	if err := c.do(ctx, http.MethodPut, path, in, &out); err != nil {
		return nil, err
	}
	return out.Order, nil
}
