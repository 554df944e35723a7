package requester

import (
	"context"
	"time"
)

// Event is a lifecycle notification sent by an API client to its delegate.
type Event int

const (
	// EventTokenUpdated fires after new tokens were stored on the client.
	EventTokenUpdated Event = iota + 1
	// EventTokenDeauthorized fires when the provider revoked the grant.
	EventTokenDeauthorized
	// EventInvalidAuth fires when the client can no longer authenticate.
	EventInvalidAuth
)

func (e Event) String() string {
	switch e {
	case EventTokenUpdated:
		return "TOKEN_UPDATE"
	case EventTokenDeauthorized:
		return "TOKEN_DEAUTHORIZED"
	case EventInvalidAuth:
		return "INVALID_AUTH"
	default:
		return "UNKNOWN"
	}
}

// Tokens is the credential material held by a client.
type Tokens struct {
	AccessToken        string
	RefreshToken       string
	AccessTokenExpire  *time.Time
	RefreshTokenExpire *time.Time
	// ExternalID names the provider account the tokens are scoped to, such
	// as a QBO realm. Empty for providers with user-wide tokens.
	ExternalID string
}

// Notifier is the client side of a notification.
type Notifier interface {
	Tokens() Tokens
}

// Delegate receives client lifecycle events.
type Delegate interface {
	ReceiveNotification(ctx context.Context, notifier Notifier, event Event) error
}

// DelegateFunc adapts a function to Delegate.
type DelegateFunc func(ctx context.Context, notifier Notifier, event Event) error

func (f DelegateFunc) ReceiveNotification(ctx context.Context, notifier Notifier, event Event) error {
	return f(ctx, notifier, event)
}
