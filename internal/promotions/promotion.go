package promotions

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/counterpos/pkg/db/models"
	"github.com/angelmondragon/counterpos/pkg/enums"
)

// DateLayout is the calendar-date format used for promotion windows.
const DateLayout = "2006-01-02"

// EffectiveStatus is derived from the stored status and the evaluation date.
type EffectiveStatus string

const (
	EffectiveActive    EffectiveStatus = "active"
	EffectiveInactive  EffectiveStatus = "inactive"
	EffectiveExpired   EffectiveStatus = "expired"
	EffectiveScheduled EffectiveStatus = "scheduled"
)

// Promotion is the decoded, engine-facing view of a promotions row.
type Promotion struct {
	ID          uuid.UUID             `json:"id"`
	Name        string                `json:"name"`
	Description string                `json:"description,omitempty"`
	Status      enums.PromotionStatus `json:"status"`
	StartDate   string                `json:"startDate"`
	EndDate     string                `json:"endDate"`
	ProductIDs  []uuid.UUID           `json:"productIds"`
	Rule        Rule                  `json:"-"`
}

func (p Promotion) Type() enums.PromotionType {
	if p.Rule == nil {
		return ""
	}
	return p.Rule.Type()
}

// EffectiveStatus evaluates the promotion on the calendar day of date.
// Dates compare lexically because both sides use DateLayout.
func (p Promotion) EffectiveStatus(date time.Time) EffectiveStatus {
	today := date.Format(DateLayout)
	switch {
	case p.Status == enums.PromotionStatusInactive:
		return EffectiveInactive
	case p.EndDate < today:
		return EffectiveExpired
	case p.StartDate > today:
		return EffectiveScheduled
	default:
		return EffectiveActive
	}
}

// Targets reports whether the promotion applies to productID. An empty
// product list targets every product.
func (p Promotion) Targets(productID uuid.UUID) bool {
	if len(p.ProductIDs) == 0 {
		return true
	}
	for _, id := range p.ProductIDs {
		if id == productID {
			return true
		}
	}
	return false
}

// FromModel decodes a stored row and its product scope.
func FromModel(row models.Promotion) (Promotion, error) {
	rule, err := DecodeRule(row.Type, row.Rule)
	if err != nil {
		return Promotion{}, fmt.Errorf("promotion %s: %w", row.ID, err)
	}
	p := Promotion{
		ID:        row.ID,
		Name:      row.Name,
		Status:    row.Status,
		StartDate: row.StartDate,
		EndDate:   row.EndDate,
		Rule:      rule,
	}
	if row.Description != nil {
		p.Description = *row.Description
	}
	for _, link := range row.Products {
		p.ProductIDs = append(p.ProductIDs, link.ProductID)
	}
	sort.Slice(p.ProductIDs, func(i, j int) bool {
		return p.ProductIDs[i].String() < p.ProductIDs[j].String()
	})
	return p, nil
}

// ToModel encodes p for persistence.
func ToModel(p Promotion) (models.Promotion, error) {
	raw, err := EncodeRule(p.Rule)
	if err != nil {
		return models.Promotion{}, err
	}
	row := models.Promotion{
		ID:        p.ID,
		Name:      p.Name,
		Type:      p.Type(),
		Status:    p.Status,
		StartDate: p.StartDate,
		EndDate:   p.EndDate,
		Rule:      raw,
	}
	if p.Description != "" {
		desc := p.Description
		row.Description = &desc
	}
	for _, productID := range p.ProductIDs {
		row.Products = append(row.Products, models.PromotionProduct{PromotionID: p.ID, ProductID: productID})
	}
	return row, nil
}
