// Package manager drives the OAuth2 credential lifecycle of a module: it
// issues authorization requirements, processes callbacks, persists tokens on
// client events, reconciles entities and deauthorizes.
package manager

import (
	"context"

	"github.com/pilab-dev/frigg/domain"
	"github.com/pilab-dev/frigg/requester"
)

// Module is one provider integration.
type Module interface {
	Name() string
	// NewAPI builds a client. tokens is nil for an unauthenticated client.
	NewAPI(tokens *requester.Tokens, delegate requester.Delegate) API
}

// API is the client a Manager drives.
type API interface {
	requester.Notifier

	AuthorizationURL() string
	SetState(state string)
	IsAuthenticated() bool
	ExchangeCode(ctx context.Context, params domain.CallbackParams) error
	// TestAuth performs one authenticated request.
	TestAuth(ctx context.Context) error
	// EntityDetails identifies the external account the tokens belong to.
	EntityDetails(ctx context.Context, params domain.CallbackParams) (*domain.EntityDetails, error)
}

// CredentialIdentifier is implemented by clients that can name the external
// account a credential belongs to, such as a HubSpot portal or QBO realm.
type CredentialIdentifier interface {
	CredentialExternalID(ctx context.Context) (string, error)
}

// State is the lifecycle position of a Manager.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthorizationRequested
	StateAuthenticated
	StateDeauthorized
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthorizationRequested:
		return "authorization_requested"
	case StateAuthenticated:
		return "authenticated"
	case StateDeauthorized:
		return "deauthorized"
	default:
		return "unknown"
	}
}
