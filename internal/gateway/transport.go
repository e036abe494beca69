// internal/gateway/transport.go
package gateway

import (
	"net/http"

	"github.com/google/uuid"

	"marketapp/internal/session"
)

// authTransport decorates outgoing requests with the persisted bearer
// token and an X-Request-ID. It reads the session store on every request
// so a login or logout in the same process is picked up immediately.
type authTransport struct {
	store session.Store
	next  http.RoundTripper
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	if cred, ok, _ := t.store.Load(req.Context()); ok {
		out.Header.Set("Authorization", "Bearer "+cred.Token)
	}
	if out.Header.Get("X-Request-ID") == "" {
		out.Header.Set("X-Request-ID", uuid.NewString())
	}
	next := t.next
	if next == nil {
		next = http.DefaultTransport
	}
	return next.RoundTrip(out)
}
