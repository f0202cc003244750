package promotions

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"github.com/angelmondragon/counterpos/pkg/enums"
)

var (
	ErrUnknownPromotionType = errors.New("unknown promotion type")
	ErrInvalidRule          = errors.New("invalid promotion rule")
)

var hundred = decimal.NewFromInt(100)

var ruleValidator = validator.New()

// Rule is the closed set of promotion parameter records. Only the three types
// in this file implement it.
type Rule interface {
	Type() enums.PromotionType
	// discount returns the raw discount for a line before clamping.
	discount(line Line) int64
}

// PriceDiscount reduces the unit price by a fixed amount or a percentage,
// scaled by quantity. MaxDiscountCents caps the per-unit reduction of a percentage rule.
type PriceDiscount struct {
	DiscountType     enums.DiscountType `json:"discount_type" validate:"required"`
	Value            decimal.Decimal    `json:"discount_value"`
	MaxDiscountCents *int64             `json:"max_discount_cents,omitempty" validate:"omitempty,gt=0"`
}

// QuantityDiscount applies to the whole line once the quantity reaches
// MinQuantity. Fixed values are cents off the line; percentages apply to the line gross.
type QuantityDiscount struct {
	MinQuantity  int                `json:"min_quantity" validate:"gte=1"`
	DiscountType enums.DiscountType `json:"discount_type" validate:"required"`
	Value        decimal.Decimal    `json:"discount_value"`
}

// PackDiscount grants DiscountCents for every complete group of PackSize units.
type PackDiscount struct {
	PackSize      int   `json:"pack_size" validate:"gte=2"`
	DiscountCents int64 `json:"discount_cents" validate:"gt=0"`
}

func (PriceDiscount) Type() enums.PromotionType    { return enums.PromotionTypePriceDiscount }
func (QuantityDiscount) Type() enums.PromotionType { return enums.PromotionTypeQuantityDiscount }
func (PackDiscount) Type() enums.PromotionType     { return enums.PromotionTypePackDiscount }

func (r PriceDiscount) discount(line Line) int64 {
	var perUnit int64
	switch r.DiscountType {
	case enums.DiscountTypePercentage:
		perUnit = percentOf(line.UnitPriceCents, r.Value)
		if r.MaxDiscountCents != nil && perUnit > *r.MaxDiscountCents {
			perUnit = *r.MaxDiscountCents
		}
	default:
		perUnit = r.Value.Round(0).IntPart()
	}
	if perUnit > line.UnitPriceCents {
		perUnit = line.UnitPriceCents
	}
	return perUnit * int64(line.Quantity)
}

func (r QuantityDiscount) discount(line Line) int64 {
	if line.Quantity < r.MinQuantity {
		return 0
	}
	if r.DiscountType == enums.DiscountTypePercentage {
		return percentOf(line.Gross(), r.Value)
	}
	return r.Value.Round(0).IntPart()
}

func (r PackDiscount) discount(line Line) int64 {
	if r.PackSize <= 0 {
		return 0
	}
	return int64(line.Quantity/r.PackSize) * r.DiscountCents
}

// percentOf rounds half away from zero to whole cents.
func percentOf(cents int64, pct decimal.Decimal) int64 {
	return decimal.NewFromInt(cents).Mul(pct).Div(hundred).Round(0).IntPart()
}

// ValidateRule checks the parameters of rule and returns every problem found.
func ValidateRule(rule Rule) error {
	if rule == nil {
		return fmt.Errorf("%w: rule is required", ErrInvalidRule)
	}
	var errs error
	if err := ruleValidator.Struct(rule); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs = multierr.Append(errs, fmt.Errorf("%s failed %s", fe.Field(), fe.Tag()))
			}
		} else {
			errs = multierr.Append(errs, err)
		}
	}
	switch r := rule.(type) {
	case PriceDiscount:
		errs = multierr.Append(errs, validateAmount(r.DiscountType, r.Value))
	case QuantityDiscount:
		errs = multierr.Append(errs, validateAmount(r.DiscountType, r.Value))
	}
	if errs != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRule, errs)
	}
	return nil
}

func validateAmount(kind enums.DiscountType, value decimal.Decimal) error {
	var errs error
	if !kind.IsValid() {
		errs = multierr.Append(errs, fmt.Errorf("discount_type %q is not supported", kind))
	}
	if !value.IsPositive() {
		errs = multierr.Append(errs, errors.New("discount_value must be positive"))
	}
	if kind == enums.DiscountTypePercentage && value.GreaterThan(hundred) {
		errs = multierr.Append(errs, errors.New("discount_value must be at most 100 for percentages"))
	}
	if kind == enums.DiscountTypeFixed && !value.Equal(value.Truncate(0)) {
		errs = multierr.Append(errs, errors.New("discount_value must be whole cents for fixed discounts"))
	}
	return errs
}

// EncodeRule serializes rule for the promotions.rule column.
func EncodeRule(rule Rule) (string, error) {
	raw, err := json.Marshal(rule)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// DecodeRule parses the stored parameters for the given promotion type.
func DecodeRule(kind enums.PromotionType, raw string) (Rule, error) {
	switch kind {
	case enums.PromotionTypePriceDiscount:
		var r PriceDiscount
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
		}
		return r, nil
	case enums.PromotionTypeQuantityDiscount:
		var r QuantityDiscount
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
		}
		return r, nil
	case enums.PromotionTypePackDiscount:
		var r PackDiscount
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
		}
		return r, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownPromotionType, kind)
}
