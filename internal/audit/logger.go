package audit

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Actions recorded for module connections.
const (
	ActionAuthorize        = "authorize"
	ActionDeauthorize      = "deauthorize"
	ActionInvalidateAuth   = "invalidate_auth"
	ActionConflictDetected = "conflict_detected"
)

// Event represents an audit log event.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Module    string    `json:"module"`
	Action    string    `json:"action"`
	User      string    `json:"user,omitempty"`
	Target    string    `json:"target,omitempty"` // entity or credential id
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
}

var (
	mu          sync.Mutex
	auditLogger = zerolog.New(os.Stdout)
)

// SetOutput redirects audit events, which go to stdout by default.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	auditLogger = zerolog.New(w)
}

// Log records an audit event. A nil err marks the action successful.
func Log(module, action, user, target string, err error) {
	event := Event{
		Timestamp: time.Now().UTC(),
		Module:    module,
		Action:    action,
		User:      user,
		Target:    target,
		Success:   err == nil,
	}
	if err != nil {
		event.Error = err.Error()
	}

	mu.Lock()
	defer mu.Unlock()
	auditLogger.Log().Interface("audit_event", event).Msg("")
}
