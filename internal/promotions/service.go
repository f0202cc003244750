package promotions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/counterpos/pkg/enums"
	pkgerrors "github.com/angelmondragon/counterpos/pkg/errors"
	"github.com/angelmondragon/counterpos/pkg/logger"
	"github.com/angelmondragon/counterpos/pkg/outbox"
	"github.com/angelmondragon/counterpos/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type invalidator interface {
	Invalidate(ctx context.Context, date time.Time)
}

// Service administers promotions on behalf of back-office collaborators.
// The engine itself only reads them through Source.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*View, error)
	SetStatus(ctx context.Context, id uuid.UUID, status enums.PromotionStatus) (*View, error)
	Get(ctx context.Context, id uuid.UUID) (*View, error)
	List(ctx context.Context) ([]View, error)
	ListActive(ctx context.Context, date time.Time) ([]Promotion, error)
}

// CreateInput carries a new promotion. Exactly one rule record must match Type.
type CreateInput struct {
	Name        string
	Description string
	Type        enums.PromotionType
	StartDate   string
	EndDate     string
	ProductIDs  []uuid.UUID
	Rule        Rule
}

// View is a promotion with its status evaluated for the current day.
type View struct {
	Promotion
	Type            enums.PromotionType `json:"type"`
	EffectiveStatus EffectiveStatus     `json:"effectiveStatus"`
	Rule            Rule                `json:"rule"`
}

type service struct {
	tx     txRunner
	repo   Repository
	source Source
	outbox outbox.Emitter
	logg   *logger.Logger
	now    func() time.Time
}

type ServiceParams struct {
	Tx       txRunner
	Repo     Repository
	Source   Source
	Outbox   outbox.Emitter
	Logger   *logger.Logger
	Location *time.Location
	Clock    func() time.Time
}

func NewService(p ServiceParams) (Service, error) {
	if p.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if p.Repo == nil {
		return nil, fmt.Errorf("promotion repository required")
	}
	if p.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if p.Source == nil {
		p.Source = NewSource(p.Repo, nil, 0, p.Logger)
	}
	loc := p.Location
	if loc == nil {
		loc = time.UTC
	}
	clock := p.Clock
	if clock == nil {
		clock = time.Now
	}
	return &service{
		tx:     p.Tx,
		repo:   p.Repo,
		source: p.Source,
		outbox: p.Outbox,
		logg:   p.Logger,
		now:    func() time.Time { return clock().In(loc) },
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*View, error) {
	if err := validateCreate(input); err != nil {
		return nil, err
	}

	p := Promotion{
		ID:          uuid.New(),
		Name:        strings.TrimSpace(input.Name),
		Description: strings.TrimSpace(input.Description),
		Status:      enums.PromotionStatusActive,
		StartDate:   input.StartDate,
		EndDate:     input.EndDate,
		ProductIDs:  dedupe(input.ProductIDs),
		Rule:        input.Rule,
	}
	row, err := ToModel(p)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid promotion rule")
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, &row); err != nil {
			return err
		}
		return s.emitChanged(ctx, tx, p.ID, p.Status)
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "create promotion")
	}
	s.invalidate(ctx)
	if s.logg != nil {
		s.logg.Info(s.logg.WithField(ctx, "promotion_id", p.ID.String()), "promotion created")
	}
	view := s.view(p)
	return &view, nil
}

func (s *service) SetStatus(ctx context.Context, id uuid.UUID, status enums.PromotionStatus) (*View, error) {
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid promotion status").
			WithDetails(map[string]any{"status": status})
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).UpdateStatus(ctx, id, status); err != nil {
			return err
		}
		return s.emitChanged(ctx, tx, id, status)
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "update promotion status")
	}
	s.invalidate(ctx)
	return s.Get(ctx, id)
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*View, error) {
	row, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	p, err := FromModel(*row)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode promotion")
	}
	view := s.view(p)
	return &view, nil
}

func (s *service) List(ctx context.Context) ([]View, error) {
	rows, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]View, 0, len(rows))
	for _, row := range rows {
		p, err := FromModel(row)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode promotion")
		}
		out = append(out, s.view(p))
	}
	return out, nil
}

func (s *service) ListActive(ctx context.Context, date time.Time) ([]Promotion, error) {
	return s.source.ListActive(ctx, date)
}

func (s *service) view(p Promotion) View {
	return View{
		Promotion:       p,
		Type:            p.Type(),
		EffectiveStatus: p.EffectiveStatus(s.now()),
		Rule:            p.Rule,
	}
}

func (s *service) emitChanged(ctx context.Context, tx *gorm.DB, id uuid.UUID, status enums.PromotionStatus) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPromotionChanged,
		AggregateType: enums.AggregatePromotion,
		AggregateID:   id,
		Data:          payloads.PromotionChangedEvent{PromotionID: id, Status: status},
	})
}

func (s *service) invalidate(ctx context.Context) {
	if inv, ok := s.source.(invalidator); ok {
		inv.Invalidate(ctx, s.now())
	}
}

func validateCreate(input CreateInput) error {
	details := map[string]any{}
	if strings.TrimSpace(input.Name) == "" {
		details["name"] = "is required"
	}
	start, serr := time.Parse(DateLayout, input.StartDate)
	if serr != nil {
		details["startDate"] = "must be YYYY-MM-DD"
	}
	end, eerr := time.Parse(DateLayout, input.EndDate)
	if eerr != nil {
		details["endDate"] = "must be YYYY-MM-DD"
	}
	if serr == nil && eerr == nil && end.Before(start) {
		details["endDate"] = "must not be before startDate"
	}
	if input.Rule == nil {
		details["rule"] = "is required"
	} else {
		if input.Type != "" && input.Rule.Type() != input.Type {
			details["type"] = fmt.Sprintf("rule is %s", input.Rule.Type())
		}
		if err := ValidateRule(input.Rule); err != nil {
			details["rule"] = strings.TrimPrefix(err.Error(), ErrInvalidRule.Error()+": ")
		}
	}
	if len(details) > 0 {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, errors.New("invalid promotion"), "invalid promotion").
			WithDetails(details)
	}
	return nil
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
