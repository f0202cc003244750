package stock

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/counterpos/pkg/errors"
)

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrReasonRequired    = errors.New("reason required")
	ErrInvalidMovement   = errors.New("invalid stock movement")
	ErrProductNotFound   = errors.New("product not found")
)

// StockError reports a movement that would take a product below zero.
type StockError struct {
	ProductID   uuid.UUID
	ProductName string
	Requested   int
	Available   int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", e.ProductName, e.Requested, e.Available)
}

func (e *StockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// AsAPIError wraps e with the conflict code and the fields a terminal shows.
func (e *StockError) AsAPIError() *pkgerrors.Error {
	return pkgerrors.Wrap(pkgerrors.CodeConflict, e, "insufficient stock").
		WithDetails(map[string]any{
			"productId":   e.ProductID.String(),
			"productName": e.ProductName,
			"requested":   e.Requested,
			"available":   e.Available,
		})
}

func invalidMovement(msg string) error {
	return pkgerrors.Wrap(pkgerrors.CodeValidation, ErrInvalidMovement, msg)
}
