// internal/gateway/gatewaytest/server.go

// Package gatewaytest is an in-memory stand-in for the marketplace
// backend, used by tests and local development. It is authoritative the
// way the real backend is: it re-validates every order transition and
// the warehouse precondition even though the client checks them first.
package gatewaytest

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"marketapp/internal/models"
	"marketapp/internal/orders"
)

type userRecord struct {
	models.User
	passwordHash string
}

// Product exists so tests can change a price after an order is placed
// and observe that the order's snapshot does not move.
type Product struct {
	ID           string
	EnterpriseID string
	Name         string
	Price        float64
}

// Server implements the backend REST surface of the client. It is safe
// for concurrent use.
type Server struct {
	mu       sync.Mutex
	secret   []byte
	tokenTTL time.Duration
	users    map[string]*userRecord
	products map[string]*Product
	orders   map[string]*models.Order
	router   chi.Router
}

func NewServer() *Server {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		panic(err)
	}
	s := &Server{
		secret:   secret,
		tokenTTL: time.Hour,
		users:    make(map[string]*userRecord),
		products: make(map[string]*Product),
		orders:   make(map[string]*models.Order),
	}

	r := chi.NewRouter()
	r.Post("/auth/login", s.handleLogin)
	r.Post("/auth/register", s.handleRegister)
	r.Group(func(pr chi.Router) {
		pr.Use(s.requireAuth)
		pr.With(s.requireRole(models.RoleAdmin)).Get("/admin/users", s.handleListUsers)
		pr.With(s.requireRole(models.RoleAdmin)).Put("/admin/users/{id}/status", s.handleUserStatus)
		pr.With(s.requireRole(models.RoleBuyer)).Get("/orders/my-orders", s.handleMyOrders)
		pr.With(s.requireRole(models.RoleEnterprise)).Get("/orders/enterprise-orders", s.handleEnterpriseOrders)
		pr.With(s.requireRole(models.RoleAdmin)).Get("/orders/all", s.handleAllOrders)
		pr.With(s.requireRole(models.RoleBuyer)).Post("/orders", s.handleCreateOrder)
		pr.Put("/orders/{id}/status", s.handleOrderStatus)
	})
	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ---------- seeding and test hooks ----------

// SeedUser registers an account directly, bypassing the HTTP surface.
func (s *Server) SeedUser(name, email, password string, role models.Role, status models.EnterpriseStatus, blocked bool) models.User {
	phc, err := hashPassword(password, testArgonParams())
	if err != nil {
		panic(err)
	}
	u := models.User{
		ID:        uuid.NewString(),
		Name:      name,
		Email:     email,
		Role:      role,
		IsBlocked: blocked,
	}
	if role == models.RoleEnterprise {
		u.EnterpriseStatus = status
	}
	s.mu.Lock()
	s.users[u.ID] = &userRecord{User: u, passwordHash: phc}
	s.mu.Unlock()
	return u
}

func (s *Server) SeedProduct(enterpriseID, name string, price float64) Product {
	p := Product{ID: uuid.NewString(), EnterpriseID: enterpriseID, Name: name, Price: price}
	s.mu.Lock()
	s.products[p.ID] = &p
	s.mu.Unlock()
	return p
}

// SetProductPrice changes a product's current price. Placed orders keep
// their priceAtOrder snapshots.
func (s *Server) SetProductPrice(productID string, price float64) {
	s.mu.Lock()
	if p, ok := s.products[productID]; ok {
		p.Price = price
	}
	s.mu.Unlock()
}

// SeedOrder inserts an order directly.
func (s *Server) SeedOrder(o models.Order) models.Order {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.Status == "" {
		o.Status = models.OrderPending
	}
	if o.OrderDate.IsZero() {
		o.OrderDate = time.Now().UTC()
	}
	for i := range o.Items {
		if o.Items[i].ID == "" {
			o.Items[i].ID = uuid.NewString()
		}
	}
	s.mu.Lock()
	cp := o
	s.orders[o.ID] = &cp
	s.mu.Unlock()
	return o
}

// Order returns a snapshot of a stored order.
func (s *Server) Order(id string) (models.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return models.Order{}, false
	}
	return *o, true
}

// IssueToken mints a token with an arbitrary TTL; negative TTLs produce
// already-expired tokens for expiry tests.
func (s *Server) IssueToken(userID string, ttl time.Duration) string {
	s.mu.Lock()
	u, ok := s.users[userID]
	s.mu.Unlock()
	if !ok {
		panic("gatewaytest: unknown user " + userID)
	}
	return s.signToken(u.User, ttl)
}

func (s *Server) signToken(u models.User, ttl time.Duration) string {
	claims := jwt.MapClaims{
		"id":   u.ID,
		"role": string(u.Role),
		"name": u.Name,
		"exp":  time.Now().Add(ttl).Unix(),
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		panic(err)
	}
	return tok
}

func (s *Server) credential(u models.User, token string) models.Credential {
	return models.Credential{
		Token:            token,
		ID:               u.ID,
		Name:             u.Name,
		Email:            u.Email,
		Role:             u.Role,
		EnterpriseStatus: u.EnterpriseStatus,
		IsBlocked:        u.IsBlocked,
	}
}

// ---------- helpers ----------

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func message(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

// ---------- auth ----------

type ctxKeyUser struct{}

func contextWithUser(ctx context.Context, u models.User) context.Context {
	return context.WithValue(ctx, ctxKeyUser{}, u)
}

func userFromContext(ctx context.Context) (models.User, bool) {
	u, ok := ctx.Value(ctxKeyUser{}).(models.User)
	return u, ok
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		const prefix = "Bearer "
		h := r.Header.Get("Authorization")
		if len(h) <= len(prefix) || h[:len(prefix)] != prefix {
			message(w, http.StatusUnauthorized, "Missing token")
			return
		}
		claims := jwt.MapClaims{}
		_, err := jwt.ParseWithClaims(h[len(prefix):], claims, func(t *jwt.Token) (any, error) {
			return s.secret, nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil {
			message(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}
		id, _ := claims["id"].(string)
		s.mu.Lock()
		rec, ok := s.users[id]
		s.mu.Unlock()
		if !ok {
			message(w, http.StatusUnauthorized, "Unknown account")
			return
		}
		if rec.IsBlocked {
			message(w, http.StatusForbidden, "Your account has been blocked. Please contact an administrator.")
			return
		}
		ctx := contextWithUser(r.Context(), rec.User)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requireRole(role models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, ok := userFromContext(r.Context())
			if !ok || u.Role != role {
				message(w, http.StatusForbidden, "You do not have permission to perform this action.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ---------- handlers ----------

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		message(w, http.StatusBadRequest, "bad json")
		return
	}
	s.mu.Lock()
	var rec *userRecord
	for _, u := range s.users {
		if u.Email == body.Email {
			rec = u
			break
		}
	}
	s.mu.Unlock()
	if rec == nil || !verifyPassword(body.Password, rec.passwordHash) {
		message(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	token := s.signToken(rec.User, s.tokenTTL)
	writeJSON(w, http.StatusOK, s.credential(rec.User, token))
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name     string      `json:"name"`
		Email    string      `json:"email"`
		Password string      `json:"password"`
		Role     models.Role `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		message(w, http.StatusBadRequest, "bad json")
		return
	}
	if body.Name == "" || body.Email == "" || body.Password == "" || !body.Role.Valid() {
		message(w, http.StatusBadRequest, "Missing or invalid registration fields")
		return
	}
	s.mu.Lock()
	for _, u := range s.users {
		if u.Email == body.Email {
			s.mu.Unlock()
			message(w, http.StatusConflict, "An account with this email already exists")
			return
		}
	}
	s.mu.Unlock()

	status := models.EnterpriseStatus("")
	if body.Role == models.RoleEnterprise {
		status = models.EnterprisePending
	}
	u := s.SeedUser(body.Name, body.Email, body.Password, body.Role, status, false)

	if body.Role == models.RoleEnterprise {
		message(w, http.StatusCreated, "Registration successful. Your enterprise account is pending admin approval.")
		return
	}
	token := s.signToken(u, s.tokenTTL)
	writeJSON(w, http.StatusCreated, s.credential(u, token))
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u.User)
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUserStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body struct {
		EnterpriseStatus *models.EnterpriseStatus `json:"enterpriseStatus"`
		IsBlocked        *bool                    `json:"isBlocked"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		message(w, http.StatusBadRequest, "bad json")
		return
	}
	s.mu.Lock()
	rec, ok := s.users[id]
	if !ok {
		s.mu.Unlock()
		message(w, http.StatusNotFound, "User not found")
		return
	}
	if body.EnterpriseStatus != nil && rec.Role == models.RoleEnterprise {
		rec.EnterpriseStatus = *body.EnterpriseStatus
	}
	if body.IsBlocked != nil {
		rec.IsBlocked = *body.IsBlocked
	}
	s.mu.Unlock()
	message(w, http.StatusOK, "User status updated")
}

func (s *Server) handleMyOrders(w http.ResponseWriter, r *http.Request) {
	u, _ := userFromContext(r.Context())
	s.listOrders(w, func(o *models.Order) bool { return o.BuyerRef == u.ID })
}

func (s *Server) handleEnterpriseOrders(w http.ResponseWriter, r *http.Request) {
	u, _ := userFromContext(r.Context())
	s.listOrders(w, func(o *models.Order) bool { return o.EnterpriseRef == u.ID })
}

func (s *Server) handleAllOrders(w http.ResponseWriter, r *http.Request) {
	buyerID := r.URL.Query().Get("buyerId")
	enterpriseID := r.URL.Query().Get("enterpriseId")
	s.listOrders(w, func(o *models.Order) bool {
		if buyerID != "" && o.BuyerRef != buyerID {
			return false
		}
		if enterpriseID != "" && o.EnterpriseRef != enterpriseID {
			return false
		}
		return true
	})
}

func (s *Server) listOrders(w http.ResponseWriter, keep func(*models.Order) bool) {
	s.mu.Lock()
	out := make([]models.Order, 0, len(s.orders))
	for _, o := range s.orders {
		if keep(o) {
			out = append(out, *o)
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	u, _ := userFromContext(r.Context())
	var body struct {
		Items       []models.OrderItem `json:"items"`
		TotalAmount float64            `json:"totalAmount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.Items) == 0 {
		message(w, http.StatusBadRequest, "Order must contain at least one item")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	order := models.Order{
		ID:        uuid.NewString(),
		BuyerRef:  u.ID,
		Status:    models.OrderPending,
		OrderDate: time.Now().UTC(),
	}
	for _, it := range body.Items {
		if it.Quantity <= 0 {
			message(w, http.StatusBadRequest, "Item quantity must be a positive integer")
			return
		}
		it.ID = uuid.NewString()
		it.AssignedWarehouse = ""
		// Snapshot name and price from the catalogue when the product is
		// known; the submitted values are only a fallback.
		if p, ok := s.products[it.ProductRef]; ok {
			it.Name = p.Name
			it.PriceAtOrder = p.Price
			if order.EnterpriseRef == "" {
				order.EnterpriseRef = p.EnterpriseID
			}
		}
		order.TotalAmount += float64(it.Quantity) * it.PriceAtOrder
		order.Items = append(order.Items, it)
	}
	cp := order
	s.orders[order.ID] = &cp
	writeJSON(w, http.StatusCreated, order)
}

func (s *Server) handleOrderStatus(w http.ResponseWriter, r *http.Request) {
	u, _ := userFromContext(r.Context())
	id := chi.URLParam(r, "id")
	var body struct {
		Status models.OrderStatus `json:"status"`
		Items  []models.OrderItem `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		message(w, http.StatusBadRequest, "bad json")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		message(w, http.StatusNotFound, "Order not found")
		return
	}
	// Authoritative re-validation: the client's own checks are advisory.
	if !orders.TransitionAllowed(order.Status, body.Status) {
		message(w, http.StatusBadRequest,
			"Cannot change order status from "+string(order.Status)+" to "+string(body.Status))
		return
	}
	if !orders.ActorAllowed(order.Status, body.Status, u.Role) {
		message(w, http.StatusForbidden, "You do not have permission to perform this action.")
		return
	}
	if u.Role == models.RoleEnterprise && order.EnterpriseRef != u.ID {
		message(w, http.StatusForbidden, "This order belongs to another enterprise.")
		return
	}

	if body.Status == models.OrderApproved {
		assigned := make(map[string]string, len(body.Items))
		for _, it := range body.Items {
			assigned[it.ID] = it.AssignedWarehouse
		}
		merged := make([]models.OrderItem, len(order.Items))
		copy(merged, order.Items)
		for i := range merged {
			if wh, ok := assigned[merged[i].ID]; ok && wh != "" {
				merged[i].AssignedWarehouse = wh
			}
			if merged[i].AssignedWarehouse == "" {
				message(w, http.StatusBadRequest,
					"All items must have an assigned warehouse before approving the order.")
				return
			}
		}
		order.Items = merged
	}

	order.Status = body.Status
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Order status updated to " + string(body.Status),
		"order":   order,
	})
}
