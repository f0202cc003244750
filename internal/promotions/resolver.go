package promotions

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/counterpos/pkg/enums"
)

// Line is the resolver's view of a cart line.
type Line struct {
	ProductID           uuid.UUID
	UnitPriceCents      int64
	Quantity            int
	ManualDiscountCents int64
}

// Gross is the line amount after the manual discount and before promotions.
func (l Line) Gross() int64 {
	gross := l.UnitPriceCents*int64(l.Quantity) - l.ManualDiscountCents
	if gross < 0 {
		return 0
	}
	return gross
}

// Result is the winning promotion for one line.
type Result struct {
	ProductID     uuid.UUID           `json:"productId"`
	PromotionID   uuid.UUID           `json:"promotionId"`
	PromotionName string              `json:"promotionName"`
	PromotionType enums.PromotionType `json:"promotionType"`
	DiscountCents int64               `json:"discountCents"`
}

// ApplicationResult holds one entry per discounted line, in line order.
type ApplicationResult struct {
	ItemDiscounts     []Result `json:"itemDiscounts"`
	TotalSavingsCents int64    `json:"totalSavingsCents"`
}

// DiscountFor returns the promotion discount resolved for productID, or zero.
func (r ApplicationResult) DiscountFor(productID uuid.UUID) int64 {
	if res, ok := r.For(productID); ok {
		return res.DiscountCents
	}
	return 0
}

// For returns the result entry for productID.
func (r ApplicationResult) For(productID uuid.UUID) (Result, bool) {
	for _, res := range r.ItemDiscounts {
		if res.ProductID == productID {
			return res, true
		}
	}
	return Result{}, false
}

// Resolve picks at most one promotion per line: the effective-active promotion
// targeting the product with the largest discount, ties going to the lowest id.
// Discounts are clamped to the line gross and zero discounts are omitted.
// Resolve has no side effects.
func Resolve(lines []Line, promos []Promotion, date time.Time) ApplicationResult {
	active := make([]Promotion, 0, len(promos))
	for _, p := range promos {
		if p.Rule != nil && p.EffectiveStatus(date) == EffectiveActive {
			active = append(active, p)
		}
	}

	result := ApplicationResult{ItemDiscounts: []Result{}}
	for _, line := range lines {
		if line.Quantity < 1 {
			continue
		}
		gross := line.Gross()
		if gross == 0 {
			continue
		}

		var best *Promotion
		var bestAmount int64
		for i := range active {
			p := &active[i]
			if !p.Targets(line.ProductID) {
				continue
			}
			amount := p.Rule.discount(line)
			if amount > gross {
				amount = gross
			}
			if amount <= 0 {
				continue
			}
			if best == nil || amount > bestAmount || (amount == bestAmount && p.ID.String() < best.ID.String()) {
				best = p
				bestAmount = amount
			}
		}
		if best == nil {
			continue
		}
		result.ItemDiscounts = append(result.ItemDiscounts, Result{
			ProductID:     line.ProductID,
			PromotionID:   best.ID,
			PromotionName: best.Name,
			PromotionType: best.Type(),
			DiscountCents: bestAmount,
		})
		result.TotalSavingsCents += bestAmount
	}
	return result
}
