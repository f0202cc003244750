package sessions

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// State is the login payload a terminal persists between restarts.
type State struct {
	CashierID  string      `json:"cashierId"`
	TerminalID string      `json:"terminalId,omitempty"`
	Session    *SessionRef `json:"session"`
}

// SessionRef is the part of State that points at the open drawer session.
type SessionRef struct {
	ID               uuid.UUID `json:"id"`
	OpeningCashCents int64     `json:"openingCashCents"`
	LoginTime        time.Time `json:"loginTime"`
}

// SessionID returns the referenced session, or ErrCorruptedSession when the
// nested session is missing. The state is never repaired here.
func (s *State) SessionID() (uuid.UUID, error) {
	if s == nil || s.Session == nil || s.Session.ID == uuid.Nil {
		return uuid.Nil, ErrCorruptedSession
	}
	return s.Session.ID, nil
}

// ParseState decodes a persisted payload. Structural damage is reported as
// ErrCorruptedSession alongside whatever could be decoded.
func ParseState(raw []byte) (*State, error) {
	var s State
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, ErrCorruptedSession
	}
	if _, err := s.SessionID(); err != nil {
		return &s, err
	}
	return &s, nil
}

// Encode serializes s for persistence.
func (s State) Encode() ([]byte, error) {
	return json.Marshal(s)
}
