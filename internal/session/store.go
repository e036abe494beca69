// internal/session/store.go
package session

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"marketapp/internal/models"
)

// Store persists the single session credential across process restarts.
// Exactly one credential exists at a time; Save overwrites it.
//
// Load returns ok=false for both "nothing stored" and "stored but
// malformed"; in the malformed case the corrupt entry is purged as a
// side effect so the next Load is clean.
type Store interface {
	Load(ctx context.Context) (models.Credential, bool, error)
	Save(ctx context.Context, cred models.Credential) error
	Clear(ctx context.Context) error
}

// Claims is the subset of token claims the client reads. The token is
// decoded without signature verification: the client only uses claims
// as a cache of its own identity, the backend re-checks everything.
type Claims struct {
	ID   string
	Name string
	Role models.Role
	Exp  int64 // seconds since epoch; 0 when the claim is absent
}

// DecodeClaims extracts claims from a bearer token without verifying it.
func DecodeClaims(token string) (Claims, error) {
	mc := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, mc); err != nil {
		return Claims{}, err
	}
	var c Claims
	if v, ok := mc["id"].(string); ok {
		c.ID = v
	}
	if v, ok := mc["name"].(string); ok {
		c.Name = v
	}
	if v, ok := mc["role"].(string); ok {
		c.Role = models.Role(v)
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		c.Exp = exp.Unix()
	}
	return c, nil
}

// IsExpired reports whether the credential's embedded expiry claim is in
// the past. Claims carry seconds; the comparison is done in milliseconds
// (exp * 1000 < now-millis). A token that cannot be decoded counts as
// expired. A token without an exp claim never expires.
func IsExpired(cred models.Credential, now time.Time) bool {
	c, err := DecodeClaims(cred.Token)
	if err != nil {
		return true
	}
	if c.Exp == 0 {
		return false
	}
	return c.Exp*1000 < now.UnixMilli()
}

// Expiry returns the token's expiry instant, zero when absent.
func Expiry(token string) time.Time {
	c, err := DecodeClaims(token)
	if err != nil || c.Exp == 0 {
		return time.Time{}
	}
	return time.Unix(c.Exp, 0)
}
