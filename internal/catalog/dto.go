package catalog

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/counterpos/pkg/db/models"
)

// ProductDTO is the terminal-facing product view.
type ProductDTO struct {
	ID                uuid.UUID `json:"id"`
	SKU               string    `json:"sku"`
	Name              string    `json:"name"`
	SellingPriceCents int64     `json:"sellingPriceCents"`
	StockQuantity     int       `json:"stockQuantity"`
	ReorderLevel      int       `json:"reorderLevel"`
	LowStock          bool      `json:"lowStock"`
	IsActive          bool      `json:"isActive"`
}

func ToDTO(p models.Product) ProductDTO {
	return ProductDTO{
		ID:                p.ID,
		SKU:               p.SKU,
		Name:              p.Name,
		SellingPriceCents: p.SellingPriceCents,
		StockQuantity:     p.StockQuantity,
		ReorderLevel:      p.ReorderLevel,
		LowStock:          p.StockQuantity <= p.ReorderLevel,
		IsActive:          p.IsActive,
	}
}

func ToDTOs(rows []models.Product) []ProductDTO {
	out := make([]ProductDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, ToDTO(row))
	}
	return out
}
