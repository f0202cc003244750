package sessions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/counterpos/pkg/db"
	"github.com/angelmondragon/counterpos/pkg/db/models"
	"github.com/angelmondragon/counterpos/pkg/enums"
	pkgerrors "github.com/angelmondragon/counterpos/pkg/errors"
	"github.com/angelmondragon/counterpos/pkg/logger"
	"github.com/angelmondragon/counterpos/pkg/metrics"
	"github.com/angelmondragon/counterpos/pkg/outbox"
	"github.com/angelmondragon/counterpos/pkg/outbox/payloads"
)

// Names the partial unique index as reported by postgres and sqlite respectively.
const (
	activeSessionIndex  = "ux_cashier_sessions_active"
	activeSessionColumn = "cashier_sessions.cashier_id"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// OpenInput starts a drawer session.
type OpenInput struct {
	CashierID        string
	TerminalID       string
	OpeningCashCents int64
}

// Manager runs the cashier session state machine: a cashier has at most one
// active session, and closing freezes the reconciliation figures.
type Manager struct {
	db      *gorm.DB
	tx      txRunner
	outbox  outbox.Emitter
	metrics *metrics.POSMetrics
	logg    *logger.Logger
	now     func() time.Time
}

type ManagerParams struct {
	DB      *gorm.DB
	Tx      txRunner
	Outbox  outbox.Emitter
	Metrics *metrics.POSMetrics
	Logger  *logger.Logger
	Clock   func() time.Time
}

func NewManager(p ManagerParams) (*Manager, error) {
	if p.DB == nil {
		return nil, fmt.Errorf("db required")
	}
	if p.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if p.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	clock := p.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Manager{
		db:      p.DB,
		tx:      p.Tx,
		outbox:  p.Outbox,
		metrics: p.Metrics,
		logg:    p.Logger,
		now:     func() time.Time { return clock().UTC() },
	}, nil
}

// Open creates an active session. It fails with ErrActiveSessionExists when
// the cashier already has one; the partial unique index enforces the same rule
// for writers that race past the read.
func (m *Manager) Open(ctx context.Context, in OpenInput) (*models.CashierSession, error) {
	in.CashierID = strings.TrimSpace(in.CashierID)
	if in.CashierID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cashier id is required")
	}
	if in.OpeningCashCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "opening cash must not be negative")
	}

	session := &models.CashierSession{
		ID:               uuid.New(),
		CashierID:        in.CashierID,
		Status:           enums.SessionStatusActive,
		OpeningCashCents: in.OpeningCashCents,
		LoginTime:        m.now(),
	}
	if t := strings.TrimSpace(in.TerminalID); t != "" {
		session.TerminalID = &t
	}

	err := m.tx.WithTx(ctx, func(tx *gorm.DB) error {
		existing, err := findActive(ctx, tx, in.CashierID)
		if err != nil {
			return err
		}
		if existing != nil {
			return activeExists(existing.ID)
		}
		if err := tx.WithContext(ctx).Create(session).Error; err != nil {
			if db.IsUniqueViolation(err, activeSessionIndex) || db.IsUniqueViolation(err, activeSessionColumn) {
				return activeExists(uuid.Nil)
			}
			return err
		}
		return m.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSessionOpened,
			AggregateType: enums.AggregateCashierSession,
			AggregateID:   session.ID,
			Actor:         &outbox.ActorRef{CashierID: in.CashierID, TerminalID: in.TerminalID},
			Data: payloads.SessionOpenedEvent{
				SessionID:        session.ID,
				CashierID:        in.CashierID,
				OpeningCashCents: in.OpeningCashCents,
			},
		})
	})
	if err != nil {
		return nil, persistence(err, "open session")
	}

	m.metrics.IncSession("opened")
	if m.logg != nil {
		lctx := m.logg.WithSessionID(m.logg.WithCashierID(ctx, in.CashierID), session.ID.String())
		m.logg.Info(lctx, "cashier session opened")
	}
	return session, nil
}

// Close freezes expected cash (opening cash plus completed cash sales) and the
// difference to the counted amount, then marks the session closed.
func (m *Manager) Close(ctx context.Context, sessionID uuid.UUID, countedCashCents int64, notes string) (*models.CashierSession, error) {
	if countedCashCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "counted cash must not be negative")
	}

	var session models.CashierSession
	err := m.tx.WithTx(ctx, func(tx *gorm.DB) error {
		current, err := getSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if current.Status != enums.SessionStatusActive {
			return pkgerrors.Wrap(pkgerrors.CodeStateConflict, ErrSessionClosed, "session already closed").
				WithDetails(map[string]any{"sessionId": sessionID.String()})
		}

		cashSales, err := sumSales(ctx, tx, sessionID, enums.PaymentMethodCash)
		if err != nil {
			return err
		}
		expected := current.OpeningCashCents + cashSales
		diff := countedCashCents - expected
		logout := m.now()

		updates := map[string]any{
			"status":                enums.SessionStatusClosed,
			"closing_cash_cents":    countedCashCents,
			"expected_cash_cents":   expected,
			"cash_difference_cents": diff,
			"logout_time":           logout,
		}
		if n := strings.TrimSpace(notes); n != "" {
			updates["notes"] = n
		}
		res := tx.WithContext(ctx).
			Model(&models.CashierSession{}).
			Where("id = ? AND status = ?", sessionID, enums.SessionStatusActive).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return pkgerrors.Wrap(pkgerrors.CodeStateConflict, ErrSessionClosed, "session already closed")
		}

		reloaded, err := getSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		session = *reloaded

		return m.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSessionClosed,
			AggregateType: enums.AggregateCashierSession,
			AggregateID:   sessionID,
			Actor:         &outbox.ActorRef{CashierID: current.CashierID},
			Data: payloads.SessionClosedEvent{
				SessionID:           sessionID,
				CashierID:           current.CashierID,
				ExpectedCashCents:   expected,
				ClosingCashCents:    countedCashCents,
				CashDifferenceCents: diff,
			},
		})
	})
	if err != nil {
		return nil, persistence(err, "close session")
	}

	m.metrics.IncSession("closed")
	if m.logg != nil {
		lctx := m.logg.WithFields(ctx, map[string]any{
			"session_id":            sessionID.String(),
			"cashier_id":            session.CashierID,
			"cash_difference_cents": derefInt64(session.CashDifferenceCents),
		})
		m.logg.Info(lctx, "cashier session closed")
	}
	return &session, nil
}

// Get loads a session by id.
func (m *Manager) Get(ctx context.Context, sessionID uuid.UUID) (*models.CashierSession, error) {
	return getSession(ctx, m.db, sessionID)
}

// Active returns the cashier's active session or ErrNoActiveSession.
func (m *Manager) Active(ctx context.Context, cashierID string) (*models.CashierSession, error) {
	session, err := findActive(ctx, m.db, cashierID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, noActiveSession(cashierID)
	}
	return session, nil
}

// RequireActive checks that sessionID is active and owned by cashierID.
func (m *Manager) RequireActive(ctx context.Context, sessionID uuid.UUID, cashierID string) (*models.CashierSession, error) {
	return RequireActiveTx(ctx, m.db, sessionID, cashierID)
}

// RequireActiveTx is RequireActive on an explicit connection or transaction.
func RequireActiveTx(ctx context.Context, conn *gorm.DB, sessionID uuid.UUID, cashierID string) (*models.CashierSession, error) {
	if sessionID == uuid.Nil {
		return nil, noActiveSession(cashierID)
	}
	var session models.CashierSession
	err := conn.WithContext(ctx).Where("id = ?", sessionID).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, noActiveSession(cashierID)
	}
	if err != nil {
		return nil, err
	}
	if session.Status != enums.SessionStatusActive || session.CashierID != cashierID {
		return nil, noActiveSession(cashierID)
	}
	return &session, nil
}

// Resume validates a persisted terminal state against the store. A state with
// no nested session yields ErrCorruptedSession.
func (m *Manager) Resume(ctx context.Context, state *State) (*models.CashierSession, error) {
	sessionID, err := state.SessionID()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "no active session")
	}
	return m.RequireActive(ctx, sessionID, state.CashierID)
}

// List returns sessions newest first, optionally for one cashier.
func (m *Manager) List(ctx context.Context, cashierID string, status enums.SessionStatus, limit int) ([]models.CashierSession, error) {
	query := m.db.WithContext(ctx).Model(&models.CashierSession{})
	if cashierID != "" {
		query = query.Where("cashier_id = ?", cashierID)
	}
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []models.CashierSession
	if err := query.Order("login_time DESC").Order("id DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func findActive(ctx context.Context, conn *gorm.DB, cashierID string) (*models.CashierSession, error) {
	var session models.CashierSession
	err := conn.WithContext(ctx).
		Where("cashier_id = ? AND status = ?", cashierID, enums.SessionStatusActive).
		Order("login_time DESC").
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func getSession(ctx context.Context, conn *gorm.DB, id uuid.UUID) (*models.CashierSession, error) {
	var session models.CashierSession
	err := conn.WithContext(ctx).Where("id = ?", id).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, ErrSessionNotFound, "session not found").
			WithDetails(map[string]any{"sessionId": id.String()})
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func activeExists(existing uuid.UUID) error {
	details := map[string]any{}
	if existing != uuid.Nil {
		details["sessionId"] = existing.String()
	}
	return pkgerrors.Wrap(pkgerrors.CodeConflict, ErrActiveSessionExists, "cashier already has an active session").
		WithDetails(details)
}

func noActiveSession(cashierID string) error {
	return pkgerrors.Wrap(pkgerrors.CodeConflict, ErrNoActiveSession, "no active session").
		WithDetails(map[string]any{"cashierId": cashierID})
}

func persistence(err error, op string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodePersistence, err, op)
}

func derefInt64(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
