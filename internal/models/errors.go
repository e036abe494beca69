// internal/models/errors.go
package models

import (
	"errors"
	"fmt"
)

var (
	ErrNoSession = errors.New("no session")
)

// AuthenticationError: bad credentials or an expired token. Recovered by
// forcing logout and sending the user back to login.
type AuthenticationError struct {
	Reason string
}

func (e *AuthenticationError) Error() string {
	if e.Reason == "" {
		return "authentication failed"
	}
	return "authentication failed: " + e.Reason
}

// AuthorizationError: authenticated but not allowed. No data is mutated.
type AuthorizationError struct {
	Capability string
}

func (e *AuthorizationError) Error() string {
	if e.Capability == "" {
		return "not authorized"
	}
	return "not authorized: " + e.Capability
}

// InvalidTransitionError rejects an order status change the transition
// table does not contain. Raised client-side before any request is sent.
type InvalidTransitionError struct {
	From OrderStatus
	To   OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid order transition: %s -> %s", e.From, e.To)
}

// ValidationError is a client-side precondition failure (e.g. an item
// without an assigned warehouse). No request is sent.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// GatewayError is a network failure or a non-2xx backend response. The
// server-supplied message is passed through when available.
type GatewayError struct {
	StatusCode int // 0 when the server could not be reached
	Message    string
	Err        error
}

func (e *GatewayError) Error() string {
	if e.StatusCode == 0 {
		return "gateway unreachable: " + e.Message
	}
	return fmt.Sprintf("gateway error (%d): %s", e.StatusCode, e.Message)
}

func (e *GatewayError) Unwrap() error { return e.Err }
