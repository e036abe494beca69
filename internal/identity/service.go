// internal/identity/service.go
package identity

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"marketapp/internal/gateway"
	"marketapp/internal/models"
	"marketapp/internal/session"
)

// ErrSessionExpired is returned by Initialize when a persisted
// credential was found but its token has already expired. The
// credential is cleared before returning; the caller should invite the
// user to log in again.
var ErrSessionExpired = errors.New("session expired, please log in again")

// Service is the single source of truth for who the current principal
// is and what they may do. One instance is wired through the app by
// reference; there is no ambient global.
type Service struct {
	gw    gateway.API
	store session.Store

	mu        sync.RWMutex
	principal *models.Principal
	cred      models.Credential
	loaded    bool
}

func New(gw gateway.API, store session.Store) *Service {
	return &Service{gw: gw, store: store}
}

// Initialize loads the persisted credential and derives the current
// principal. Until it returns, the service is in its loading phase and
// consumers must treat the principal as indeterminate. Expired
// credentials are cleared and reported via ErrSessionExpired.
func (s *Service) Initialize(ctx context.Context) error {
	defer func() {
		s.mu.Lock()
		s.loaded = true
		s.mu.Unlock()
	}()

	cred, ok, err := s.store.Load(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if session.IsExpired(cred, time.Now()) {
		if err := s.store.Clear(ctx); err != nil {
			slog.Warn("failed to clear expired credential", "err", err)
		}
		return ErrSessionExpired
	}

	s.mu.Lock()
	s.cred = cred
	s.principal = principalFromCredential(cred)
	s.mu.Unlock()
	return nil
}

// Loading reports whether Initialize has not yet completed.
func (s *Service) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.loaded
}

// Current returns a copy of the current principal, or nil.
func (s *Service) Current() *models.Principal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.principal == nil {
		return nil
	}
	p := *s.principal
	return &p
}

// Can evaluates a capability against the current principal.
func (s *Service) Can(cap Capability) bool {
	return Allowed(s.Current(), cap)
}

// Token returns the raw bearer token, empty when logged out.
func (s *Service) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cred.Token
}

// Login authenticates against the backend. The credential is persisted
// before the principal becomes visible, so a Can check issued after
// Login returns always observes the new state.
func (s *Service) Login(ctx context.Context, email, password string) (*models.Principal, error) {
	cred, err := s.gw.Login(ctx, email, password)
	if err != nil {
		var ge *models.GatewayError
		if errors.As(err, &ge) && ge.StatusCode != 0 {
			return nil, &models.AuthenticationError{Reason: ge.Message}
		}
		return nil, err
	}
	if err := s.adopt(ctx, cred); err != nil {
		return nil, err
	}
	slog.Info("logged in", "user_id", cred.ID, "role", cred.Role)
	return s.Current(), nil
}

// Register creates an account. Enterprise accounts need admin approval
// before first use, so no principal is set for them; the server message
// is returned instead. Other roles behave like Login.
func (s *Service) Register(ctx context.Context, in gateway.RegisterInput) (*models.Principal, string, error) {
	cred, message, err := s.gw.Register(ctx, in)
	if err != nil {
		return nil, "", err
	}
	if in.Role == models.RoleEnterprise || cred == nil {
		return nil, message, nil
	}
	if err := s.adopt(ctx, *cred); err != nil {
		return nil, "", err
	}
	slog.Info("registered", "user_id", cred.ID, "role", cred.Role)
	return s.Current(), message, nil
}

// Logout clears the persisted credential and the principal. It requires
// no network round-trip and succeeds unconditionally; a store failure is
// logged but the in-memory principal is gone either way.
func (s *Service) Logout(ctx context.Context) {
	if err := s.store.Clear(ctx); err != nil {
		slog.Warn("failed to clear session store on logout", "err", err)
	}
	s.mu.Lock()
	s.cred = models.Credential{}
	s.principal = nil
	s.mu.Unlock()
	slog.Info("logged out")
}

// MergePatch applies a partial server-pushed update to the current
// principal and re-persists it. Role and ID never change. Calling it
// while logged out is a no-op.
func (s *Service) MergePatch(ctx context.Context, patch models.PrincipalPatch) error {
	s.mu.Lock()
	if s.principal == nil {
		s.mu.Unlock()
		return nil
	}
	if patch.Name != nil {
		s.principal.Name = *patch.Name
		s.cred.Name = *patch.Name
	}
	if patch.EnterpriseStatus != nil && s.principal.Role == models.RoleEnterprise {
		s.principal.EnterpriseStatus = *patch.EnterpriseStatus
		s.cred.EnterpriseStatus = *patch.EnterpriseStatus
	}
	if patch.IsBlocked != nil {
		s.principal.IsBlocked = *patch.IsBlocked
		s.cred.IsBlocked = *patch.IsBlocked
	}
	cred := s.cred
	s.mu.Unlock()

	return s.store.Save(ctx, cred)
}

// StartExpiryWatcher periodically checks the current token and forces a
// logout once it expires mid-session. It stops when ctx is done.
func (s *Service) StartExpiryWatcher(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.mu.RLock()
				cred := s.cred
				active := s.principal != nil
				s.mu.RUnlock()
				if active && session.IsExpired(cred, time.Now()) {
					slog.Info("session token expired, logging out")
					s.Logout(ctx)
				}
			}
		}
	}()
}

func (s *Service) adopt(ctx context.Context, cred models.Credential) error {
	if err := s.store.Save(ctx, cred); err != nil {
		return err
	}
	s.mu.Lock()
	s.cred = cred
	s.principal = principalFromCredential(cred)
	s.mu.Unlock()
	return nil
}

// principalFromCredential builds the principal from the stored blob,
// filling gaps (id, name) from token claims when the login response did
// not carry them.
func principalFromCredential(cred models.Credential) *models.Principal {
	p := &models.Principal{
		ID:          cred.ID,
		Name:        cred.Name,
		Email:       cred.Email,
		Role:        cred.Role,
		IsBlocked:   cred.IsBlocked,
		TokenExpiry: session.Expiry(cred.Token),
	}
	if cred.Role == models.RoleEnterprise {
		p.EnterpriseStatus = cred.EnterpriseStatus
	}
	if claims, err := session.DecodeClaims(cred.Token); err == nil {
		if p.ID == "" {
			p.ID = claims.ID
		}
		if p.Name == "" {
			p.Name = claims.Name
		}
		if p.Role == "" {
			p.Role = claims.Role
		}
	}
	return p
}
