package cart

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/counterpos/internal/promotions"
)

// LineView is a line with its resolved promotion applied.
type LineView struct {
	Line
	PromotionID        *uuid.UUID `json:"promotionId,omitempty"`
	PromotionName      string     `json:"promotionName,omitempty"`
	PromoDiscountCents int64      `json:"promoDiscountCents"`
	LineTotalCents     int64      `json:"lineTotalCents"`
}

// Summary is the priced view of a set of lines.
type Summary struct {
	Lines               []LineView `json:"lines"`
	SubtotalCents       int64      `json:"subtotalCents"`
	ManualDiscountCents int64      `json:"manualDiscountCents"`
	PromoSavingsCents   int64      `json:"promoSavingsCents"`
	TotalCents          int64      `json:"totalCents"`
}

// ToPromotionLines maps cart lines to resolver input.
func ToPromotionLines(lines []Line) []promotions.Line {
	out := make([]promotions.Line, 0, len(lines))
	for _, l := range lines {
		out = append(out, promotions.Line{
			ProductID:           l.ProductID,
			UnitPriceCents:      l.UnitPriceCents,
			Quantity:            l.Quantity,
			ManualDiscountCents: l.ManualDiscountCents,
		})
	}
	return out
}

// Totals prices lines against a resolver result. TotalCents equals the sum of
// line grosses less the result's total savings.
func Totals(lines []Line, result promotions.ApplicationResult) Summary {
	sum := Summary{Lines: make([]LineView, 0, len(lines))}
	for _, l := range lines {
		view := LineView{Line: l}
		if res, ok := result.For(l.ProductID); ok {
			id := res.PromotionID
			view.PromotionID = &id
			view.PromotionName = res.PromotionName
			view.PromoDiscountCents = res.DiscountCents
		}
		view.LineTotalCents = l.Gross() - view.PromoDiscountCents
		sum.SubtotalCents += l.UnitPriceCents * int64(l.Quantity)
		sum.ManualDiscountCents += l.ManualDiscountCents
		sum.PromoSavingsCents += view.PromoDiscountCents
		sum.TotalCents += view.LineTotalCents
		sum.Lines = append(sum.Lines, view)
	}
	return sum
}
