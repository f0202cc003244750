package sessions

import (
	"errors"
	"fmt"
)

var (
	ErrActiveSessionExists = errors.New("cashier already has an active session")
	ErrNoActiveSession     = errors.New("no active session")
	ErrSessionClosed       = errors.New("session already closed")
	ErrSessionNotFound     = errors.New("session not found")
)

// ErrCorruptedSession marks a persisted terminal state whose session payload
// is missing. It is treated exactly like having no session.
var ErrCorruptedSession = fmt.Errorf("corrupted session state: %w", ErrNoActiveSession)
