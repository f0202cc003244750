package middleware

import (
	"context"
	"net/http"

	"github.com/angelmondragon/counterpos/api/responses"
	"github.com/angelmondragon/counterpos/api/validators"
	pkgerrors "github.com/angelmondragon/counterpos/pkg/errors"
	"github.com/angelmondragon/counterpos/pkg/logger"
)

type contextKey string

const (
	ctxCashierID  contextKey = "cashier_id"
	ctxTerminalID contextKey = "terminal_id"

	CashierHeader  = "X-Cashier-Id"
	TerminalHeader = "X-Terminal-Id"

	maxIdentifierLen = 64
)

func CashierIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxCashierID).(string); ok {
		return v
	}
	return ""
}

func TerminalIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxTerminalID).(string); ok {
		return v
	}
	return ""
}

// WithCashierID injects the cashier identifier into the context.
func WithCashierID(ctx context.Context, cashierID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxCashierID, cashierID)
}

// WithTerminalID injects the terminal identifier into the context for downstream handlers.
func WithTerminalID(ctx context.Context, terminalID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxTerminalID, terminalID)
}

// Terminal requires the cashier and terminal headers every register request
// carries and moves them onto the context and the request logger. Values that
// are not plain identifiers count as missing.
func Terminal(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cashierID := validators.SanitizeToken(r.Header.Get(CashierHeader), maxIdentifierLen)
			terminalID := validators.SanitizeToken(r.Header.Get(TerminalHeader), maxIdentifierLen)
			if cashierID == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "cashier header missing"))
				return
			}
			if terminalID == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "terminal header missing").WithDetails(map[string]any{"header": TerminalHeader}))
				return
			}

			ctx := WithTerminalID(WithCashierID(r.Context(), cashierID), terminalID)
			if logg != nil {
				ctx = logg.WithCashierID(ctx, cashierID)
				ctx = logg.WithTerminalID(ctx, terminalID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
