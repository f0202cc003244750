package promotions

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/counterpos/pkg/db/models"
	"github.com/angelmondragon/counterpos/pkg/enums"
)

func TestDecodeRuleByType(t *testing.T) {
	rule, err := DecodeRule(enums.PromotionTypeQuantityDiscount, `{"min_quantity":2,"discount_type":"fixed","discount_value":20}`)
	require.NoError(t, err)
	qd, ok := rule.(QuantityDiscount)
	require.True(t, ok)
	assert.Equal(t, 2, qd.MinQuantity)
	assert.True(t, qd.Value.Equal(decimal.NewFromInt(20)))

	rule, err = DecodeRule(enums.PromotionTypePackDiscount, `{"pack_size":6,"discount_cents":120}`)
	require.NoError(t, err)
	assert.Equal(t, PackDiscount{PackSize: 6, DiscountCents: 120}, rule)

	_, err = DecodeRule("bogo", `{}`)
	assert.True(t, errors.Is(err, ErrUnknownPromotionType))

	_, err = DecodeRule(enums.PromotionTypePriceDiscount, `{"discount_type":`)
	assert.True(t, errors.Is(err, ErrInvalidRule))
}

func TestModelConversionKeepsRuleAndScope(t *testing.T) {
	product := uuid.New()
	p := Promotion{
		ID:         uuid.New(),
		Name:       "Weekend",
		Status:     enums.PromotionStatusActive,
		StartDate:  "2026-10-01",
		EndDate:    "2026-10-31",
		ProductIDs: []uuid.UUID{product},
		Rule:       PriceDiscount{DiscountType: enums.DiscountTypePercentage, Value: decimal.RequireFromString("12.5")},
	}
	row, err := ToModel(p)
	require.NoError(t, err)
	assert.Equal(t, enums.PromotionTypePriceDiscount, row.Type)
	require.Len(t, row.Products, 1)

	back, err := FromModel(row)
	require.NoError(t, err)
	assert.Equal(t, p.ProductIDs, back.ProductIDs)
	pd := back.Rule.(PriceDiscount)
	assert.True(t, pd.Value.Equal(decimal.RequireFromString("12.5")))

	_, err = FromModel(models.Promotion{ID: uuid.New(), Type: "bogo", Rule: "{}"})
	require.Error(t, err)
}

func TestValidateRule(t *testing.T) {
	require.NoError(t, ValidateRule(PackDiscount{PackSize: 3, DiscountCents: 10}))
	require.NoError(t, ValidateRule(fixedQty(2, 20)))

	err := ValidateRule(PackDiscount{PackSize: 1, DiscountCents: 0})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidRule))
	assert.Contains(t, err.Error(), "PackSize")
	assert.Contains(t, err.Error(), "DiscountCents")

	err = ValidateRule(PriceDiscount{DiscountType: enums.DiscountTypePercentage, Value: decimal.NewFromInt(150)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at most 100")

	err = ValidateRule(QuantityDiscount{MinQuantity: 0, DiscountType: "bogus", Value: decimal.Zero})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not supported")
	assert.Contains(t, err.Error(), "must be positive")

	require.Error(t, ValidateRule(nil))
}
