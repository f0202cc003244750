package promotions

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/counterpos/pkg/enums"
)

var today = time.Date(2026, 10, 18, 15, 0, 0, 0, time.UTC)

func promo(id string, rule Rule, products ...uuid.UUID) Promotion {
	return Promotion{
		ID:         uuid.MustParse(id),
		Name:       "promo " + id[:4],
		Status:     enums.PromotionStatusActive,
		StartDate:  "2026-10-01",
		EndDate:    "2026-10-31",
		ProductIDs: products,
		Rule:       rule,
	}
}

func fixedQty(min int, cents int64) QuantityDiscount {
	return QuantityDiscount{MinQuantity: min, DiscountType: enums.DiscountTypeFixed, Value: decimal.NewFromInt(cents)}
}

func TestResolveWithoutPromotions(t *testing.T) {
	p := uuid.New()
	res := Resolve([]Line{{ProductID: p, UnitPriceCents: 100, Quantity: 2}}, nil, today)
	assert.Empty(t, res.ItemDiscounts)
	assert.Zero(t, res.TotalSavingsCents)
}

func TestResolveQuantityDiscountThreshold(t *testing.T) {
	p := uuid.New()
	promos := []Promotion{promo("00000000-0000-0000-0000-000000000001", fixedQty(2, 20), p)}

	below := Resolve([]Line{{ProductID: p, UnitPriceCents: 100, Quantity: 1}}, promos, today)
	assert.Empty(t, below.ItemDiscounts)

	met := Resolve([]Line{{ProductID: p, UnitPriceCents: 100, Quantity: 2}}, promos, today)
	require.Len(t, met.ItemDiscounts, 1)
	assert.Equal(t, int64(20), met.DiscountFor(p))
	assert.Equal(t, int64(20), met.TotalSavingsCents)

	// All-or-nothing: more units above the threshold do not multiply the discount.
	above := Resolve([]Line{{ProductID: p, UnitPriceCents: 100, Quantity: 5}}, promos, today)
	assert.Equal(t, int64(20), above.DiscountFor(p))
}

func TestResolveQuantityPercentageUsesLineGross(t *testing.T) {
	p := uuid.New()
	rule := QuantityDiscount{MinQuantity: 3, DiscountType: enums.DiscountTypePercentage, Value: decimal.NewFromInt(10)}
	res := Resolve([]Line{{ProductID: p, UnitPriceCents: 250, Quantity: 3, ManualDiscountCents: 50}},
		[]Promotion{promo("00000000-0000-0000-0000-000000000001", rule)}, today)
	assert.Equal(t, int64(70), res.DiscountFor(p))
}

func TestResolvePriceDiscountFixedAndPercentage(t *testing.T) {
	p := uuid.New()
	fixed := PriceDiscount{DiscountType: enums.DiscountTypeFixed, Value: decimal.NewFromInt(15)}
	res := Resolve([]Line{{ProductID: p, UnitPriceCents: 100, Quantity: 3}},
		[]Promotion{promo("00000000-0000-0000-0000-000000000001", fixed, p)}, today)
	assert.Equal(t, int64(45), res.DiscountFor(p))

	capCents := int64(30)
	pct := PriceDiscount{DiscountType: enums.DiscountTypePercentage, Value: decimal.NewFromInt(50), MaxDiscountCents: &capCents}
	res = Resolve([]Line{{ProductID: p, UnitPriceCents: 199, Quantity: 2}},
		[]Promotion{promo("00000000-0000-0000-0000-000000000002", pct, p)}, today)
	assert.Equal(t, int64(60), res.DiscountFor(p))

	half := PriceDiscount{DiscountType: enums.DiscountTypePercentage, Value: decimal.RequireFromString("12.5")}
	res = Resolve([]Line{{ProductID: p, UnitPriceCents: 99, Quantity: 1}},
		[]Promotion{promo("00000000-0000-0000-0000-000000000003", half, p)}, today)
	assert.Equal(t, int64(12), res.DiscountFor(p))
}

func TestResolvePackDiscountIgnoresRemainder(t *testing.T) {
	p := uuid.New()
	rule := PackDiscount{PackSize: 3, DiscountCents: 50}
	res := Resolve([]Line{{ProductID: p, UnitPriceCents: 100, Quantity: 7}},
		[]Promotion{promo("00000000-0000-0000-0000-000000000001", rule, p)}, today)
	assert.Equal(t, int64(100), res.DiscountFor(p))

	none := Resolve([]Line{{ProductID: p, UnitPriceCents: 100, Quantity: 2}},
		[]Promotion{promo("00000000-0000-0000-0000-000000000001", rule, p)}, today)
	assert.Empty(t, none.ItemDiscounts)
}

func TestResolvePicksLargestDiscountPerLine(t *testing.T) {
	p := uuid.New()
	small := promo("00000000-0000-0000-0000-000000000001", fixedQty(1, 10), p)
	large := promo("00000000-0000-0000-0000-000000000002", PackDiscount{PackSize: 2, DiscountCents: 40}, p)

	res := Resolve([]Line{{ProductID: p, UnitPriceCents: 100, Quantity: 2}}, []Promotion{small, large}, today)
	require.Len(t, res.ItemDiscounts, 1)
	assert.Equal(t, large.ID, res.ItemDiscounts[0].PromotionID)
	assert.Equal(t, int64(40), res.TotalSavingsCents)
}

func TestResolveTieBreaksOnLowestID(t *testing.T) {
	p := uuid.New()
	a := promo("aaaaaaaa-0000-0000-0000-000000000000", fixedQty(1, 25), p)
	b := promo("bbbbbbbb-0000-0000-0000-000000000000", fixedQty(1, 25), p)

	for _, order := range [][]Promotion{{a, b}, {b, a}} {
		res := Resolve([]Line{{ProductID: p, UnitPriceCents: 100, Quantity: 1}}, order, today)
		require.Len(t, res.ItemDiscounts, 1)
		assert.Equal(t, a.ID, res.ItemDiscounts[0].PromotionID)
	}
}

func TestResolveClampsToLineGross(t *testing.T) {
	p := uuid.New()
	res := Resolve([]Line{{ProductID: p, UnitPriceCents: 100, Quantity: 2, ManualDiscountCents: 150}},
		[]Promotion{promo("00000000-0000-0000-0000-000000000001", fixedQty(1, 500))}, today)
	assert.Equal(t, int64(50), res.DiscountFor(p))
}

func TestResolveSkipsNonActivePromotions(t *testing.T) {
	p := uuid.New()
	inactive := promo("00000000-0000-0000-0000-000000000001", fixedQty(1, 10), p)
	inactive.Status = enums.PromotionStatusInactive
	expired := promo("00000000-0000-0000-0000-000000000002", fixedQty(1, 10), p)
	expired.EndDate = "2026-10-17"
	scheduled := promo("00000000-0000-0000-0000-000000000003", fixedQty(1, 10), p)
	scheduled.StartDate = "2026-10-19"
	other := promo("00000000-0000-0000-0000-000000000004", fixedQty(1, 10), uuid.New())

	res := Resolve([]Line{{ProductID: p, UnitPriceCents: 100, Quantity: 1}},
		[]Promotion{inactive, expired, scheduled, other}, today)
	assert.Empty(t, res.ItemDiscounts)
}

func TestResolveIsIdempotent(t *testing.T) {
	p, q := uuid.New(), uuid.New()
	lines := []Line{
		{ProductID: p, UnitPriceCents: 100, Quantity: 4},
		{ProductID: q, UnitPriceCents: 250, Quantity: 1},
	}
	promos := []Promotion{
		promo("00000000-0000-0000-0000-000000000001", PackDiscount{PackSize: 2, DiscountCents: 30}, p),
		promo("00000000-0000-0000-0000-000000000002", PriceDiscount{DiscountType: enums.DiscountTypePercentage, Value: decimal.NewFromInt(10)}),
	}
	first := Resolve(lines, promos, today)
	second := Resolve(lines, promos, today)
	assert.Equal(t, first, second)
	assert.Equal(t, int64(60+25), first.TotalSavingsCents)
	assert.Equal(t, p, first.ItemDiscounts[0].ProductID)
}

func TestEffectiveStatus(t *testing.T) {
	p := promo("00000000-0000-0000-0000-000000000001", fixedQty(1, 10))
	assert.Equal(t, EffectiveActive, p.EffectiveStatus(today))

	p.StartDate, p.EndDate = "2026-10-18", "2026-10-18"
	assert.Equal(t, EffectiveActive, p.EffectiveStatus(today))

	p.EndDate = "2026-10-17"
	p.StartDate = "2026-10-01"
	assert.Equal(t, EffectiveExpired, p.EffectiveStatus(today))

	p.StartDate, p.EndDate = "2026-11-01", "2026-11-30"
	assert.Equal(t, EffectiveScheduled, p.EffectiveStatus(today))

	p.Status = enums.PromotionStatusInactive
	assert.Equal(t, EffectiveInactive, p.EffectiveStatus(today))
}
