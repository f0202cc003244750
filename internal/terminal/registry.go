package terminal

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/angelmondragon/counterpos/internal/cart"
	"github.com/angelmondragon/counterpos/internal/sessions"
	pkgerrors "github.com/angelmondragon/counterpos/pkg/errors"
	"github.com/angelmondragon/counterpos/pkg/logger"
	"github.com/angelmondragon/counterpos/pkg/redis"
)

const DefaultStateTTL = 24 * time.Hour

var ErrTerminalRequired = errors.New("terminal id required")

// Registry owns the per-terminal context: the open cart and the persisted
// login state. Carts live in process memory; login state goes to redis when
// a cache is configured so a restarted process can resume the drawer session.
type Registry struct {
	mu     sync.Mutex
	carts  map[string]*cart.Cart
	states map[string][]byte

	store redis.Cache
	ttl   time.Duration
	logg  *logger.Logger
}

// NewRegistry returns a registry. A nil store keeps login state in memory.
func NewRegistry(store redis.Cache, ttl time.Duration, logg *logger.Logger) *Registry {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &Registry{
		carts:  map[string]*cart.Cart{},
		states: map[string][]byte{},
		store:  store,
		ttl:    ttl,
		logg:   logg,
	}
}

// Cart returns the terminal's cart, creating an empty one on first use.
func (r *Registry) Cart(terminalID string) (*cart.Cart, error) {
	terminalID, err := normalize(terminalID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.carts[terminalID]
	if !ok {
		c = cart.New()
		r.carts[terminalID] = c
	}
	return c, nil
}

// SaveState persists the terminal's login payload.
func (r *Registry) SaveState(ctx context.Context, terminalID string, state sessions.State) error {
	terminalID, err := normalize(terminalID)
	if err != nil {
		return err
	}
	state.TerminalID = terminalID
	raw, err := state.Encode()
	if err != nil {
		return err
	}
	if r.store != nil {
		if err := r.store.Set(ctx, r.key(terminalID), string(raw), r.ttl); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist terminal state")
		}
		return nil
	}
	r.mu.Lock()
	r.states[terminalID] = raw
	r.mu.Unlock()
	return nil
}

// LoadState returns the terminal's login payload. A terminal with no payload
// yields ErrNoActiveSession; a damaged one yields ErrCorruptedSession together
// with whatever could be decoded.
func (r *Registry) LoadState(ctx context.Context, terminalID string) (*sessions.State, error) {
	terminalID, err := normalize(terminalID)
	if err != nil {
		return nil, err
	}
	var raw []byte
	if r.store != nil {
		value, err := r.store.Get(ctx, r.key(terminalID))
		if redis.IsMiss(err) {
			return nil, noSession(terminalID)
		}
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load terminal state")
		}
		raw = []byte(value)
	} else {
		r.mu.Lock()
		stored, ok := r.states[terminalID]
		r.mu.Unlock()
		if !ok {
			return nil, noSession(terminalID)
		}
		raw = stored
	}

	state, err := sessions.ParseState(raw)
	if err != nil {
		if r.logg != nil {
			r.logg.Warn(r.logg.WithTerminalID(ctx, terminalID), "terminal.corrupted_state")
		}
		return state, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "no active session").
			WithDetails(map[string]any{"terminalId": terminalID})
	}
	return state, nil
}

// ClearState forgets the terminal's login payload and empties its cart.
func (r *Registry) ClearState(ctx context.Context, terminalID string) error {
	terminalID, err := normalize(terminalID)
	if err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.states, terminalID)
	c, ok := r.carts[terminalID]
	r.mu.Unlock()
	if ok {
		c.Clear()
	}
	if r.store != nil {
		if err := r.store.Del(ctx, r.key(terminalID)); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear terminal state")
		}
	}
	return nil
}

func (r *Registry) key(terminalID string) string {
	return r.store.CacheKey("terminal", terminalID, "state")
}

func normalize(terminalID string) (string, error) {
	terminalID = strings.TrimSpace(terminalID)
	if terminalID == "" {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, ErrTerminalRequired, "terminal id required")
	}
	return terminalID, nil
}

func noSession(terminalID string) error {
	return pkgerrors.Wrap(pkgerrors.CodeConflict, sessions.ErrNoActiveSession, "no active session").
		WithDetails(map[string]any{"terminalId": terminalID})
}
