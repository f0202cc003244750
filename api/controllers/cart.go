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
	"github.com/angelmondragon/counterpos/pkg/db/models"
	pkgerrors "github.com/angelmondragon/counterpos/pkg/errors"
	"github.com/angelmondragon/counterpos/pkg/logger"
)

// Carts hands out the cart bound to a terminal.
type Carts interface {
	Cart(terminalID string) (*cart.Cart, error)
}

// ProductReader looks up the catalog snapshot a cart line is built from.
type ProductReader interface {
	GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

// Quoter prices a cart against today's promotions.
type Quoter interface {
	Quote(ctx context.Context, c *cart.Cart) (*cart.Summary, error)
}

type addCartItemRequest struct {
	ProductID           uuid.UUID `json:"productId" validate:"required"`
	Quantity            int       `json:"quantity" validate:"omitempty,min=1,max=9999"`
	ManualDiscountCents int64     `json:"manualDiscountCents" validate:"gte=0"`
}

type cartDiscountRequest struct {
	ManualDiscountCents int64 `json:"manualDiscountCents" validate:"gte=0"`
}

// CartGet returns the terminal's cart priced with the promotions in effect today.
func CartGet(carts Carts, quoter Quoter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := terminalCart(w, r, carts, quoter, logg)
		if !ok {
			return
		}
		writeQuote(w, r, c, quoter, logg)
	}
}

// CartAddItem snapshots the product's live price and stock into the cart.
func CartAddItem(carts Carts, products ProductReader, quoter Quoter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := terminalCart(w, r, carts, quoter, logg)
		if !ok {
			return
		}
		ctx := r.Context()
		if products == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog unavailable"))
			return
		}

		var payload addCartItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if payload.Quantity == 0 {
			payload.Quantity = 1
		}

		product, err := products.GetProduct(ctx, payload.ProductID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if !product.IsActive {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeConflict, checkout.ErrProductUnavailable, "product is not available").
				WithDetails(map[string]any{"productId": product.ID.String()}))
			return
		}

		err = c.Add(cart.Product{
			ID:             product.ID,
			Name:           product.Name,
			UnitPriceCents: product.SellingPriceCents,
			StockQuantity:  product.StockQuantity,
		}, payload.Quantity, payload.ManualDiscountCents)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		writeQuote(w, r, c, quoter, logg)
	}
}

// CartDecrementItem takes one unit off a line, dropping it at zero.
func CartDecrementItem(carts Carts, quoter Quoter, logg *logger.Logger) http.HandlerFunc {
	return cartLineMutation(carts, quoter, logg, func(c *cart.Cart, productID uuid.UUID, _ *http.Request) error {
		return c.Decrement(productID)
	})
}

// CartRemoveItem drops a line entirely.
func CartRemoveItem(carts Carts, quoter Quoter, logg *logger.Logger) http.HandlerFunc {
	return cartLineMutation(carts, quoter, logg, func(c *cart.Cart, productID uuid.UUID, _ *http.Request) error {
		return c.Remove(productID)
	})
}

// CartSetDiscount replaces a line's manual discount.
func CartSetDiscount(carts Carts, quoter Quoter, logg *logger.Logger) http.HandlerFunc {
	return cartLineMutation(carts, quoter, logg, func(c *cart.Cart, productID uuid.UUID, r *http.Request) error {
		var payload cartDiscountRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return err
		}
		return c.SetManualDiscount(productID, payload.ManualDiscountCents)
	})
}

// CartClear empties the terminal's cart.
func CartClear(carts Carts, quoter Quoter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := terminalCart(w, r, carts, quoter, logg)
		if !ok {
			return
		}
		c.Clear()
		writeQuote(w, r, c, quoter, logg)
	}
}

func cartLineMutation(carts Carts, quoter Quoter, logg *logger.Logger, mutate func(*cart.Cart, uuid.UUID, *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := terminalCart(w, r, carts, quoter, logg)
		if !ok {
			return
		}
		productID, err := validators.ParseURLUUID(r, "productID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := mutate(c, productID, r); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeQuote(w, r, c, quoter, logg)
	}
}

func terminalCart(w http.ResponseWriter, r *http.Request, carts Carts, quoter Quoter, logg *logger.Logger) (*cart.Cart, bool) {
	if carts == nil || quoter == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
		return nil, false
	}
	c, err := carts.Cart(middleware.TerminalIDFromContext(r.Context()))
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return nil, false
	}
	return c, true
}

func writeQuote(w http.ResponseWriter, r *http.Request, c *cart.Cart, quoter Quoter, logg *logger.Logger) {
	summary, err := quoter.Quote(r.Context(), c)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	responses.WriteSuccess(w, summary)
}
