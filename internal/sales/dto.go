package sales

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/counterpos/pkg/db/models"
	"github.com/angelmondragon/counterpos/pkg/enums"
)

// SaleDTO is the receipt-facing view of a sale.
type SaleDTO struct {
	ID             uuid.UUID           `json:"id"`
	InvoiceNumber  string              `json:"invoiceNumber"`
	SubtotalCents  int64               `json:"subtotalCents"`
	DiscountCents  int64               `json:"discountCents"`
	TotalCents     int64               `json:"totalCents"`
	PaymentMethod  enums.PaymentMethod `json:"paymentMethod"`
	CustomerID     *uuid.UUID          `json:"customerId,omitempty"`
	CashierID      string              `json:"cashierId"`
	SessionID      uuid.UUID           `json:"sessionId"`
	Status         enums.SaleStatus    `json:"status"`
	ReversalReason *string             `json:"reversalReason,omitempty"`
	ReversedAt     *time.Time          `json:"reversedAt,omitempty"`
	SaleDate       time.Time           `json:"saleDate"`
	Items          []SaleItemDTO       `json:"items"`
}

type SaleItemDTO struct {
	ProductID           uuid.UUID  `json:"productId"`
	ProductName         string     `json:"productName"`
	Quantity            int        `json:"quantity"`
	UnitPriceCents      int64      `json:"unitPriceCents"`
	ManualDiscountCents int64      `json:"manualDiscountCents"`
	PromoDiscountCents  int64      `json:"promoDiscountCents"`
	PromotionID         *uuid.UUID `json:"promotionId,omitempty"`
	DiscountCents       int64      `json:"discountCents"`
	TotalCents          int64      `json:"totalCents"`
}

func ToDTO(s models.Sale) SaleDTO {
	out := SaleDTO{
		ID:             s.ID,
		InvoiceNumber:  s.InvoiceNumber,
		SubtotalCents:  s.SubtotalCents,
		DiscountCents:  s.DiscountCents,
		TotalCents:     s.TotalCents,
		PaymentMethod:  s.PaymentMethod,
		CustomerID:     s.CustomerID,
		CashierID:      s.CashierID,
		SessionID:      s.SessionID,
		Status:         s.Status,
		ReversalReason: s.ReversalReason,
		ReversedAt:     s.ReversedAt,
		SaleDate:       s.SaleDate,
		Items:          make([]SaleItemDTO, 0, len(s.Items)),
	}
	for _, item := range s.Items {
		out.Items = append(out.Items, SaleItemDTO{
			ProductID:           item.ProductID,
			ProductName:         item.ProductName,
			Quantity:            item.Quantity,
			UnitPriceCents:      item.UnitPriceCents,
			ManualDiscountCents: item.ManualDiscountCents,
			PromoDiscountCents:  item.PromoDiscountCents,
			PromotionID:         item.PromotionID,
			DiscountCents:       item.DiscountCents,
			TotalCents:          item.TotalCents,
		})
	}
	return out
}

func ToDTOs(rows []models.Sale) []SaleDTO {
	out := make([]SaleDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, ToDTO(row))
	}
	return out
}
