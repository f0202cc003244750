package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/counterpos/api/middleware"
	"github.com/angelmondragon/counterpos/api/responses"
	"github.com/angelmondragon/counterpos/api/validators"
	"github.com/angelmondragon/counterpos/internal/sales"
	"github.com/angelmondragon/counterpos/pkg/db/models"
	"github.com/angelmondragon/counterpos/pkg/enums"
	pkgerrors "github.com/angelmondragon/counterpos/pkg/errors"
	"github.com/angelmondragon/counterpos/pkg/logger"
	"github.com/angelmondragon/counterpos/pkg/pagination"
)

type reverseSaleRequest struct {
	Reason string `json:"reason" validate:"max=255"`
}

// SalesList pages through sales, newest first. `to` is an inclusive calendar date.
func SalesList(svc sales.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sales service unavailable"))
			return
		}
		ctx := r.Context()

		filter, err := parseSalesFilter(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		page, err := svc.List(ctx, filter, pagination.Params{Limit: limit, Cursor: r.URL.Query().Get("cursor")})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, pagination.Page[sales.SaleDTO]{
			Items:      sales.ToDTOs(page.Items),
			NextCursor: page.NextCursor,
		})
	}
}

func SaleGet(svc sales.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sales service unavailable"))
			return
		}
		saleID, err := validators.ParseURLUUID(r, "saleID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sale, err := svc.Get(r.Context(), saleID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, sales.ToDTO(*sale))
	}
}

// SaleRefund returns a completed sale's goods to stock.
func SaleRefund(svc sales.Service, logg *logger.Logger) http.HandlerFunc {
	return saleReversal(svc, logg, enums.SaleStatusRefunded)
}

// SaleVoid cancels a completed sale entered by mistake.
func SaleVoid(svc sales.Service, logg *logger.Logger) http.HandlerFunc {
	return saleReversal(svc, logg, enums.SaleStatusVoided)
}

func saleReversal(svc sales.Service, logg *logger.Logger, target enums.SaleStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sales service unavailable"))
			return
		}
		ctx := r.Context()

		saleID, err := validators.ParseURLUUID(r, "saleID")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var payload reverseSaleRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		in := sales.ReverseInput{
			SaleID:    saleID,
			Reason:    payload.Reason,
			CashierID: middleware.CashierIDFromContext(ctx),
		}
		var sale *models.Sale
		if target == enums.SaleStatusRefunded {
			sale, err = svc.Refund(ctx, in)
		} else {
			sale, err = svc.Void(ctx, in)
		}
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, sales.ToDTO(*sale))
	}
}

func parseSalesFilter(r *http.Request) (sales.Filter, error) {
	var filter sales.Filter
	q := r.URL.Query()

	if raw := strings.TrimSpace(q.Get("sessionId")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return filter, pkgerrors.New(pkgerrors.CodeValidation, "invalid identifier").WithDetails(map[string]any{"field": "sessionId"})
		}
		filter.SessionID = &id
	}
	filter.CashierID = strings.TrimSpace(q.Get("cashierId"))
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		status, err := enums.ParseSaleStatus(raw)
		if err != nil {
			return filter, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status")
		}
		filter.Status = status
	}

	from, err := validators.ParseQueryDate(r, "from")
	if err != nil {
		return filter, err
	}
	filter.From = from
	to, err := validators.ParseQueryDate(r, "to")
	if err != nil {
		return filter, err
	}
	if to != nil {
		end := to.Add(24 * time.Hour)
		filter.To = &end
	}
	return filter, nil
}
