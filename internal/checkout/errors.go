package checkout

import (
	"errors"

	pkgerrors "github.com/angelmondragon/counterpos/pkg/errors"
)

var (
	ErrEmptyCart              = errors.New("cart is empty")
	ErrCreditRequiresCustomer = errors.New("credit sales require a customer")
	ErrInvalidPaymentMethod   = errors.New("invalid payment method")
	ErrProductUnavailable     = errors.New("product unavailable")
)

func emptyCart() error {
	return pkgerrors.Wrap(pkgerrors.CodeValidation, ErrEmptyCart, "cart is empty")
}

// outcome labels a checkout attempt for metrics.
func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, ErrCreditRequiresCustomer), errors.Is(err, ErrInvalidPaymentMethod):
		return "invalid"
	case pkgerrors.Is(err, pkgerrors.CodeValidation):
		return "invalid"
	case pkgerrors.Is(err, pkgerrors.CodeConflict), pkgerrors.Is(err, pkgerrors.CodeNotFound):
		return "rejected"
	default:
		return "error"
	}
}
