package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/counterpos/api/middleware"
	"github.com/angelmondragon/counterpos/api/responses"
	"github.com/angelmondragon/counterpos/api/validators"
	"github.com/angelmondragon/counterpos/internal/cart"
	"github.com/angelmondragon/counterpos/internal/checkout"
	"github.com/angelmondragon/counterpos/internal/promotions"
	"github.com/angelmondragon/counterpos/internal/sales"
	"github.com/angelmondragon/counterpos/pkg/enums"
	pkgerrors "github.com/angelmondragon/counterpos/pkg/errors"
	"github.com/angelmondragon/counterpos/pkg/logger"
)

// Checkouts commits carts as sales.
type Checkouts interface {
	Checkout(ctx context.Context, in checkout.Input) (*checkout.Receipt, error)
}

type checkoutRequest struct {
	PaymentMethod string     `json:"paymentMethod" validate:"required,oneof=cash card mobile credit"`
	CustomerID    *uuid.UUID `json:"customerId"`
}

type receiptResponse struct {
	Sale       sales.SaleDTO                `json:"sale"`
	Summary    cart.Summary                 `json:"summary"`
	Promotions promotions.ApplicationResult `json:"promotions"`
}

// Checkout sells the terminal's cart under the cashier's active session. The
// session comes from the terminal's login state, never from the request body.
func Checkout(svc Checkouts, carts Carts, sessionsSvc SessionManager, terminals TerminalState, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || carts == nil || sessionsSvc == nil || terminals == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		ctx := r.Context()
		cashierID := middleware.CashierIDFromContext(ctx)
		terminalID := middleware.TerminalIDFromContext(ctx)

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		session, err := currentSession(ctx, sessionsSvc, terminals)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		c, err := carts.Cart(terminalID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		receipt, err := svc.Checkout(ctx, checkout.Input{
			Cart:          c,
			PaymentMethod: enums.PaymentMethod(payload.PaymentMethod),
			CustomerID:    payload.CustomerID,
			SessionID:     session.ID,
			CashierID:     cashierID,
			TerminalID:    terminalID,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, receiptResponse{
			Sale:       sales.ToDTO(*receipt.Sale),
			Summary:    receipt.Summary,
			Promotions: receipt.Promotions,
		})
	}
}
