package customers

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/counterpos/pkg/db/models"
	"github.com/angelmondragon/counterpos/pkg/enums"
)

type CustomerDTO struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Phone          *string   `json:"phone,omitempty"`
	TotalDebtCents int64     `json:"totalDebtCents"`
}

type TransactionDTO struct {
	ID                uuid.UUID                     `json:"id"`
	Type              enums.CustomerTransactionType `json:"type"`
	AmountCents       int64                         `json:"amountCents"`
	BalanceAfterCents int64                         `json:"balanceAfterCents"`
	ReferenceType     *string                       `json:"referenceType,omitempty"`
	ReferenceID       *uuid.UUID                    `json:"referenceId,omitempty"`
	Description       *string                       `json:"description,omitempty"`
	CreatedAt         time.Time                     `json:"createdAt"`
}

func ToDTO(c models.Customer) CustomerDTO {
	return CustomerDTO{ID: c.ID, Name: c.Name, Phone: c.Phone, TotalDebtCents: c.TotalDebtCents}
}

func ToDTOs(rows []models.Customer) []CustomerDTO {
	out := make([]CustomerDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, ToDTO(row))
	}
	return out
}

func ToTransactionDTOs(rows []models.CustomerTransaction) []TransactionDTO {
	out := make([]TransactionDTO, 0, len(rows))
	for _, t := range rows {
		out = append(out, TransactionDTO{
			ID:                t.ID,
			Type:              t.Type,
			AmountCents:       t.AmountCents,
			BalanceAfterCents: t.BalanceAfterCents,
			ReferenceType:     t.ReferenceType,
			ReferenceID:       t.ReferenceID,
			Description:       t.Description,
			CreatedAt:         t.CreatedAt,
		})
	}
	return out
}
