package sessions

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/counterpos/pkg/db/models"
	"github.com/angelmondragon/counterpos/pkg/enums"
)

// SessionDTO is the drawer session as the terminal sees it. Closing figures
// are present only once the session is closed.
type SessionDTO struct {
	ID                  uuid.UUID           `json:"id"`
	CashierID           string              `json:"cashierId"`
	TerminalID          *string             `json:"terminalId,omitempty"`
	Status              enums.SessionStatus `json:"status"`
	OpeningCashCents    int64               `json:"openingCashCents"`
	ClosingCashCents    *int64              `json:"closingCashCents,omitempty"`
	ExpectedCashCents   *int64              `json:"expectedCashCents,omitempty"`
	CashDifferenceCents *int64              `json:"cashDifferenceCents,omitempty"`
	Notes               *string             `json:"notes,omitempty"`
	LoginTime           time.Time           `json:"loginTime"`
	LogoutTime          *time.Time          `json:"logoutTime,omitempty"`
}

func ToDTO(s models.CashierSession) SessionDTO {
	return SessionDTO{
		ID:                  s.ID,
		CashierID:           s.CashierID,
		TerminalID:          s.TerminalID,
		Status:              s.Status,
		OpeningCashCents:    s.OpeningCashCents,
		ClosingCashCents:    s.ClosingCashCents,
		ExpectedCashCents:   s.ExpectedCashCents,
		CashDifferenceCents: s.CashDifferenceCents,
		Notes:               s.Notes,
		LoginTime:           s.LoginTime,
		LogoutTime:          s.LogoutTime,
	}
}

func ToDTOs(rows []models.CashierSession) []SessionDTO {
	out := make([]SessionDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, ToDTO(row))
	}
	return out
}

// NewState builds the terminal login payload for an opened session.
func NewState(s models.CashierSession, terminalID string) State {
	return State{
		CashierID:  s.CashierID,
		TerminalID: terminalID,
		Session: &SessionRef{
			ID:               s.ID,
			OpeningCashCents: s.OpeningCashCents,
			LoginTime:        s.LoginTime,
		},
	}
}
