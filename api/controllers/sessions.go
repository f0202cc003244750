package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/counterpos/api/middleware"
	"github.com/angelmondragon/counterpos/api/responses"
	"github.com/angelmondragon/counterpos/api/validators"
	"github.com/angelmondragon/counterpos/internal/sessions"
	"github.com/angelmondragon/counterpos/pkg/db/models"
	"github.com/angelmondragon/counterpos/pkg/enums"
	pkgerrors "github.com/angelmondragon/counterpos/pkg/errors"
	"github.com/angelmondragon/counterpos/pkg/logger"
)

// SessionManager is the drawer session surface the API drives.
type SessionManager interface {
	Open(ctx context.Context, in sessions.OpenInput) (*models.CashierSession, error)
	Close(ctx context.Context, sessionID uuid.UUID, countedCashCents int64, notes string) (*models.CashierSession, error)
	Get(ctx context.Context, sessionID uuid.UUID) (*models.CashierSession, error)
	Resume(ctx context.Context, state *sessions.State) (*models.CashierSession, error)
	Stats(ctx context.Context, sessionID uuid.UUID) (*sessions.Stats, error)
	List(ctx context.Context, cashierID string, status enums.SessionStatus, limit int) ([]models.CashierSession, error)
}

// TerminalState persists the login payload per terminal.
type TerminalState interface {
	SaveState(ctx context.Context, terminalID string, state sessions.State) error
	LoadState(ctx context.Context, terminalID string) (*sessions.State, error)
	ClearState(ctx context.Context, terminalID string) error
}

type openSessionRequest struct {
	OpeningCashCents int64 `json:"openingCashCents" validate:"gte=0"`
}

type closeSessionRequest struct {
	CountedCashCents int64  `json:"countedCashCents" validate:"gte=0"`
	Notes            string `json:"notes" validate:"max=500"`
}

type currentSessionResponse struct {
	Session sessions.SessionDTO `json:"session"`
	Stats   *sessions.Stats     `json:"stats"`
}

// SessionOpen starts a drawer session for the calling cashier and records it
// as the terminal's login state.
func SessionOpen(svc SessionManager, terminals TerminalState, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || terminals == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "session service unavailable"))
			return
		}
		ctx := r.Context()
		cashierID := middleware.CashierIDFromContext(ctx)
		terminalID := middleware.TerminalIDFromContext(ctx)

		var payload openSessionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		session, err := svc.Open(ctx, sessions.OpenInput{
			CashierID:        cashierID,
			TerminalID:       terminalID,
			OpeningCashCents: payload.OpeningCashCents,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if err := terminals.SaveState(ctx, terminalID, sessions.NewState(*session, terminalID)); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, sessions.ToDTO(*session))
	}
}

// SessionCurrent resumes the terminal's persisted session. A corrupted or
// stale login state is reported as no session and left untouched.
func SessionCurrent(svc SessionManager, terminals TerminalState, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || terminals == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "session service unavailable"))
			return
		}
		ctx := r.Context()

		session, err := currentSession(ctx, svc, terminals)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		stats, err := svc.Stats(ctx, session.ID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, currentSessionResponse{Session: sessions.ToDTO(*session), Stats: stats})
	}
}

// SessionClose reconciles the drawer and logs the terminal out.
func SessionClose(svc SessionManager, terminals TerminalState, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || terminals == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "session service unavailable"))
			return
		}
		ctx := r.Context()

		sessionID, err := validators.ParseURLUUID(r, "sessionID")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var payload closeSessionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if err := requireOwnSession(ctx, svc, sessionID); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		session, err := svc.Close(ctx, sessionID, payload.CountedCashCents, payload.Notes)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if err := terminals.ClearState(ctx, owningTerminal(ctx, session)); err != nil && logg != nil {
			logg.Error(ctx, "clear terminal state", err)
		}

		responses.WriteSuccess(w, sessions.ToDTO(*session))
	}
}

// SessionStats returns the running totals for one of the cashier's sessions.
func SessionStats(svc SessionManager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "session service unavailable"))
			return
		}
		ctx := r.Context()

		sessionID, err := validators.ParseURLUUID(r, "sessionID")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if err := requireOwnSession(ctx, svc, sessionID); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		stats, err := svc.Stats(ctx, sessionID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, stats)
	}
}

// SessionList lists the cashier's sessions, newest first.
func SessionList(svc SessionManager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "session service unavailable"))
			return
		}
		ctx := r.Context()

		var status enums.SessionStatus
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			parsed, err := enums.ParseSessionStatus(raw)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			status = parsed
		}
		limit, err := validators.ParseQueryInt(r, "limit", 20, 1, 100)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		rows, err := svc.List(ctx, middleware.CashierIDFromContext(ctx), status, limit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, sessions.ToDTOs(rows))
	}
}

// currentSession resolves the terminal's login state into an active session
// owned by the calling cashier.
func currentSession(ctx context.Context, svc SessionManager, terminals TerminalState) (*models.CashierSession, error) {
	state, err := terminals.LoadState(ctx, middleware.TerminalIDFromContext(ctx))
	if err != nil {
		return nil, err
	}
	if state.CashierID != middleware.CashierIDFromContext(ctx) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, sessions.ErrNoActiveSession, "terminal is logged in by another cashier")
	}
	return svc.Resume(ctx, state)
}

func requireOwnSession(ctx context.Context, svc SessionManager, sessionID uuid.UUID) error {
	session, err := svc.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.CashierID != middleware.CashierIDFromContext(ctx) {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, sessions.ErrSessionNotFound, "session not found").
			WithDetails(map[string]any{"sessionId": sessionID.String()})
	}
	return nil
}

// owningTerminal is the till the session was opened on, falling back to the
// requesting terminal for sessions opened without one.
func owningTerminal(ctx context.Context, session *models.CashierSession) string {
	if session.TerminalID != nil && strings.TrimSpace(*session.TerminalID) != "" {
		return *session.TerminalID
	}
	return middleware.TerminalIDFromContext(ctx)
}
