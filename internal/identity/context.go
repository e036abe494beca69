// internal/identity/context.go
package identity

import (
	"context"

	"marketapp/internal/models"
)

type ctxKeyPrincipal struct{}

// WithPrincipal attaches a principal to the context, mostly so log
// records can be enriched with who triggered the operation.
func WithPrincipal(ctx context.Context, p *models.Principal) context.Context {
	return context.WithValue(ctx, ctxKeyPrincipal{}, p)
}

// PrincipalFromContext returns the principal from context if set.
func PrincipalFromContext(ctx context.Context) (*models.Principal, bool) {
	p, ok := ctx.Value(ctxKeyPrincipal{}).(*models.Principal)
	if !ok || p == nil {
		return nil, false
	}
	return p, true
}
