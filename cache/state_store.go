package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrStateNotFound is returned for unknown, expired or already consumed states.
var ErrStateNotFound = errors.New("state not found")

// StateEntry binds an issued OAuth state to the user and module that
// requested authorization.
type StateEntry struct {
	UserID    string    `json:"user_id"`
	Module    string    `json:"module"`
	CreatedAt time.Time `json:"created_at"`
}

// StateStore issues single-use OAuth state values.
type StateStore interface {
	Issue(ctx context.Context, entry StateEntry) (string, error)
	// Consume returns the entry and removes it, so a state validates once.
	Consume(ctx context.Context, state string) (*StateEntry, error)
}

// NewState returns a fresh opaque state value.
func NewState() string {
	return uuid.NewString()
}

// HashState hashes a state value, so stores never key on the raw value.
func HashState(state string) string {
	sum := sha256.Sum256([]byte(state))
	return hex.EncodeToString(sum[:])
}
