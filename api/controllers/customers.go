package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/counterpos/api/responses"
	"github.com/angelmondragon/counterpos/api/validators"
	"github.com/angelmondragon/counterpos/internal/customers"
	"github.com/angelmondragon/counterpos/pkg/db/models"
	pkgerrors "github.com/angelmondragon/counterpos/pkg/errors"
	"github.com/angelmondragon/counterpos/pkg/logger"
)

// CustomerAccounts is the read and registration side of customer credit.
type CustomerAccounts interface {
	Create(ctx context.Context, name, phone string) (*models.Customer, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Customer, error)
	List(ctx context.Context, withDebt bool) ([]models.Customer, error)
	Transactions(ctx context.Context, customerID uuid.UUID, limit int) ([]models.CustomerTransaction, error)
}

type createCustomerRequest struct {
	Name  string `json:"name" validate:"required,max=200"`
	Phone string `json:"phone" validate:"omitempty,max=32"`
}

func CustomerCreate(accounts CustomerAccounts, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if accounts == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "customer accounts unavailable"))
			return
		}
		var payload createCustomerRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		c, err := accounts.Create(r.Context(), payload.Name, payload.Phone)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, customers.ToDTO(*c))
	}
}

// CustomerList lists customers by name; withDebt=true keeps only those who owe.
func CustomerList(accounts CustomerAccounts, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if accounts == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "customer accounts unavailable"))
			return
		}
		withDebt := strings.EqualFold(r.URL.Query().Get("withDebt"), "true")
		rows, err := accounts.List(r.Context(), withDebt)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, customers.ToDTOs(rows))
	}
}

func CustomerGet(accounts CustomerAccounts, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if accounts == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "customer accounts unavailable"))
			return
		}
		customerID, err := validators.ParseURLUUID(r, "customerID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		c, err := accounts.Get(r.Context(), customerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, customers.ToDTO(*c))
	}
}

// CustomerTransactions returns the customer's balance history, newest first.
func CustomerTransactions(accounts CustomerAccounts, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if accounts == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "customer accounts unavailable"))
			return
		}
		ctx := r.Context()

		customerID, err := validators.ParseURLUUID(r, "customerID")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 500)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if _, err := accounts.Get(ctx, customerID); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		rows, err := accounts.Transactions(ctx, customerID, limit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, customers.ToTransactionDTOs(rows))
	}
}
