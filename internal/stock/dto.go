package stock

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/counterpos/pkg/db/models"
	"github.com/angelmondragon/counterpos/pkg/enums"
)

type MovementDTO struct {
	ID            uuid.UUID               `json:"id"`
	ProductID     uuid.UUID               `json:"productId"`
	Type          enums.StockMovementType `json:"type"`
	Quantity      int                     `json:"quantity"`
	PreviousStock int                     `json:"previousStock"`
	NewStock      int                     `json:"newStock"`
	ReferenceID   *uuid.UUID              `json:"referenceId,omitempty"`
	ReferenceType *string                 `json:"referenceType,omitempty"`
	Reason        *string                 `json:"reason,omitempty"`
	CreatedBy     *string                 `json:"createdBy,omitempty"`
	CreatedAt     time.Time               `json:"createdAt"`
}

func ToDTO(m models.StockMovement) MovementDTO {
	return MovementDTO{
		ID:            m.ID,
		ProductID:     m.ProductID,
		Type:          m.Type,
		Quantity:      m.Quantity,
		PreviousStock: m.PreviousStock,
		NewStock:      m.NewStock,
		ReferenceID:   m.ReferenceID,
		ReferenceType: m.ReferenceType,
		Reason:        m.Reason,
		CreatedBy:     m.CreatedBy,
		CreatedAt:     m.CreatedAt,
	}
}

func ToDTOs(rows []models.StockMovement) []MovementDTO {
	out := make([]MovementDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, ToDTO(row))
	}
	return out
}
