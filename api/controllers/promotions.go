package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/counterpos/api/responses"
	"github.com/angelmondragon/counterpos/api/validators"
	"github.com/angelmondragon/counterpos/internal/promotions"
	"github.com/angelmondragon/counterpos/pkg/enums"
	pkgerrors "github.com/angelmondragon/counterpos/pkg/errors"
	"github.com/angelmondragon/counterpos/pkg/logger"
)

type createPromotionRequest struct {
	Name        string          `json:"name" validate:"required,max=200"`
	Description string          `json:"description" validate:"max=1000"`
	Type        string          `json:"type" validate:"required,oneof=price_discount quantity_discount pack_discount"`
	StartDate   string          `json:"startDate" validate:"required"`
	EndDate     string          `json:"endDate" validate:"required"`
	ProductIDs  []uuid.UUID     `json:"productIds" validate:"required,min=1"`
	Rule        json.RawMessage `json:"rule" validate:"required"`
}

type promotionStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active inactive"`
}

// PromotionCreate registers a promotion. The rule object is decoded against
// the promotion type, so a pack rule posted as a price discount is rejected.
func PromotionCreate(svc promotions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "promotion service unavailable"))
			return
		}
		ctx := r.Context()

		var payload createPromotionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		kind := enums.PromotionType(payload.Type)
		rule, err := promotions.DecodeRule(kind, string(payload.Rule))
		if err != nil {
			responses.WriteError(ctx, logg, w, invalidRule(err))
			return
		}

		view, err := svc.Create(ctx, promotions.CreateInput{
			Name:        payload.Name,
			Description: payload.Description,
			Type:        kind,
			StartDate:   payload.StartDate,
			EndDate:     payload.EndDate,
			ProductIDs:  payload.ProductIDs,
			Rule:        rule,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, view)
	}
}

func PromotionList(svc promotions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "promotion service unavailable"))
			return
		}
		views, err := svc.List(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, views)
	}
}

func PromotionGet(svc promotions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "promotion service unavailable"))
			return
		}
		promotionID, err := validators.ParseURLUUID(r, "promotionID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.Get(r.Context(), promotionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// PromotionSetStatus switches a promotion on or off. Expiry is computed from
// the dates and never stored.
func PromotionSetStatus(svc promotions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "promotion service unavailable"))
			return
		}
		ctx := r.Context()

		promotionID, err := validators.ParseURLUUID(r, "promotionID")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var payload promotionStatusRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		view, err := svc.SetStatus(ctx, promotionID, enums.PromotionStatus(payload.Status))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

func invalidRule(err error) error {
	msg := err.Error()
	if errors.Is(err, promotions.ErrInvalidRule) {
		msg = strings.TrimPrefix(msg, promotions.ErrInvalidRule.Error()+": ")
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid promotion rule").
		WithDetails(map[string]any{"rule": msg})
}
