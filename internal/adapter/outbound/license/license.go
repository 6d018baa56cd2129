// Package license defines the gateway's interface onto the license-status
// collaborator. The real license service is an external system outside this
// scope; Stub satisfies the interface for operators who haven't wired one
// in yet.
package license

import (
	"context"
	"time"
)

// Status is the license-status document the gateway façade's /license
// route reports verbatim.
type Status struct {
	Valid     bool      `json:"valid"`
	Plan      string    `json:"plan,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
	Message   string    `json:"message,omitempty"`
}

// Checker reports the current license status. Implementations may call out
// to a remote licensing service; callers should treat Check as
// network-bound and pass a context with a deadline.
type Checker interface {
	Check(ctx context.Context) (Status, error)
}

// Stub is a Checker that always reports an unrestricted license, for
// deployments that haven't integrated a real licensing backend. It never
// makes a network call.
type Stub struct{}

// NewStub builds a Stub Checker.
func NewStub() Stub { return Stub{} }

// Check always succeeds and reports an unrestricted license.
func (Stub) Check(ctx context.Context) (Status, error) {
	return Status{
		Valid:   true,
		Plan:    "unrestricted",
		Message: "no license backend configured; all features enabled",
	}, nil
}
