package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/counterpos/api/middleware"
	"github.com/angelmondragon/counterpos/api/responses"
	"github.com/angelmondragon/counterpos/api/validators"
	"github.com/angelmondragon/counterpos/internal/catalog"
	"github.com/angelmondragon/counterpos/internal/stock"
	"github.com/angelmondragon/counterpos/pkg/db/models"
	"github.com/angelmondragon/counterpos/pkg/enums"
	pkgerrors "github.com/angelmondragon/counterpos/pkg/errors"
	"github.com/angelmondragon/counterpos/pkg/logger"
)

// StockLedger is the manual side of the stock ledger.
type StockLedger interface {
	Receive(ctx context.Context, productID uuid.UUID, quantity int, reason, createdBy string) (*models.StockMovement, error)
	Remove(ctx context.Context, productID uuid.UUID, quantity int, reason, createdBy string) (*models.StockMovement, error)
	SetCount(ctx context.Context, productID uuid.UUID, counted int, reason, createdBy string) (*models.StockMovement, error)
	History(ctx context.Context, productID uuid.UUID, movementType enums.StockMovementType, limit int) ([]models.StockMovement, error)
	Verify(ctx context.Context, productID uuid.UUID) (*stock.Verification, error)
}

type stockQuantityRequest struct {
	Quantity int    `json:"quantity" validate:"gt=0"`
	Reason   string `json:"reason" validate:"max=255"`
}

type stockCountRequest struct {
	Counted *int   `json:"counted" validate:"required,gte=0"`
	Reason  string `json:"reason" validate:"required,max=255"`
}

// StockReceive books a delivery onto the shelf.
func StockReceive(ledger StockLedger, logg *logger.Logger) http.HandlerFunc {
	return stockQuantityChange(ledger, logg, func(ctx context.Context, productID uuid.UUID, p stockQuantityRequest, by string) (*models.StockMovement, error) {
		return ledger.Receive(ctx, productID, p.Quantity, p.Reason, by)
	})
}

// StockRemove writes off damaged or lost units. A reason is required.
func StockRemove(ledger StockLedger, logg *logger.Logger) http.HandlerFunc {
	return stockQuantityChange(ledger, logg, func(ctx context.Context, productID uuid.UUID, p stockQuantityRequest, by string) (*models.StockMovement, error) {
		return ledger.Remove(ctx, productID, p.Quantity, p.Reason, by)
	})
}

// StockCount records a physical count as an adjustment for the difference.
func StockCount(ledger StockLedger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ledger == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stock ledger unavailable"))
			return
		}
		ctx := r.Context()

		productID, err := validators.ParseURLUUID(r, "productID")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var payload stockCountRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		movement, err := ledger.SetCount(ctx, productID, *payload.Counted, payload.Reason, middleware.CashierIDFromContext(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if movement == nil {
			responses.WriteSuccess(w, map[string]any{"productId": productID, "changed": false})
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, stock.ToDTO(*movement))
	}
}

// StockHistory lists a product's movements, newest first.
func StockHistory(ledger StockLedger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ledger == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stock ledger unavailable"))
			return
		}
		ctx := r.Context()

		productID, err := validators.ParseURLUUID(r, "productID")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var movementType enums.StockMovementType
		if raw := strings.TrimSpace(r.URL.Query().Get("type")); raw != "" {
			parsed, err := enums.ParseStockMovementType(raw)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid movement type"))
				return
			}
			movementType = parsed
		}
		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 500)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		rows, err := ledger.History(ctx, productID, movementType, limit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, stock.ToDTOs(rows))
	}
}

// StockVerify compares the stored counter with the sum of movements.
func StockVerify(ledger StockLedger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ledger == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stock ledger unavailable"))
			return
		}
		productID, err := validators.ParseURLUUID(r, "productID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		v, err := ledger.Verify(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, v)
	}
}

// StockLow lists active products at or below their reorder level.
func StockLow(repo catalog.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog unavailable"))
			return
		}
		rows, err := repo.ListLowStock(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, catalog.ToDTOs(rows))
	}
}

func stockQuantityChange(ledger StockLedger, logg *logger.Logger, apply func(context.Context, uuid.UUID, stockQuantityRequest, string) (*models.StockMovement, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ledger == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stock ledger unavailable"))
			return
		}
		ctx := r.Context()

		productID, err := validators.ParseURLUUID(r, "productID")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var payload stockQuantityRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		movement, err := apply(ctx, productID, payload, middleware.CashierIDFromContext(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, stock.ToDTO(*movement))
	}
}
