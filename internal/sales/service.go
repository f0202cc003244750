package sales

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/counterpos/internal/stock"
	"github.com/angelmondragon/counterpos/pkg/db/models"
	"github.com/angelmondragon/counterpos/pkg/enums"
	pkgerrors "github.com/angelmondragon/counterpos/pkg/errors"
	"github.com/angelmondragon/counterpos/pkg/logger"
	"github.com/angelmondragon/counterpos/pkg/metrics"
	"github.com/angelmondragon/counterpos/pkg/outbox"
	"github.com/angelmondragon/counterpos/pkg/outbox/payloads"
	"github.com/angelmondragon/counterpos/pkg/pagination"
)

const (
	DefaultRefundReason = "Customer Return"
	DefaultVoidReason   = "Transaction Voided"
)

var (
	ErrSaleNotFound    = errors.New("sale not found")
	ErrAlreadyReversed = errors.New("sale already reversed")
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// StockAppender is the ledger write path reversals restock through.
type StockAppender interface {
	Append(ctx context.Context, tx *gorm.DB, in stock.MovementInput) (*models.StockMovement, error)
}

// DebtReverser takes a reversed credit sale off the customer's balance.
type DebtReverser interface {
	ReverseDebt(ctx context.Context, tx *gorm.DB, customerID uuid.UUID, amountCents int64, saleID uuid.UUID, reason string) (*models.CustomerTransaction, error)
}

// Service exposes sale lookups and reversals.
type Service interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Sale, error)
	List(ctx context.Context, filter Filter, params pagination.Params) (pagination.Page[models.Sale], error)
	Refund(ctx context.Context, in ReverseInput) (*models.Sale, error)
	Void(ctx context.Context, in ReverseInput) (*models.Sale, error)
}

// ReverseInput identifies the sale to reverse and who is reversing it.
type ReverseInput struct {
	SaleID    uuid.UUID
	Reason    string
	CashierID string
}

type service struct {
	repo    Repository
	tx      txRunner
	stock   StockAppender
	debts   DebtReverser
	outbox  outbox.Emitter
	metrics *metrics.POSMetrics
	logg    *logger.Logger
	now     func() time.Time
}

type ServiceParams struct {
	Repo    Repository
	Tx      txRunner
	Stock   StockAppender
	Debts   DebtReverser
	Outbox  outbox.Emitter
	Metrics *metrics.POSMetrics
	Logger  *logger.Logger
	Clock   func() time.Time
}

func NewService(p ServiceParams) (Service, error) {
	if p.Repo == nil {
		return nil, fmt.Errorf("sales repository required")
	}
	if p.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if p.Stock == nil {
		return nil, fmt.Errorf("stock ledger required")
	}
	if p.Debts == nil {
		return nil, fmt.Errorf("customer accounts required")
	}
	if p.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	clock := p.Clock
	if clock == nil {
		clock = time.Now
	}
	return &service{
		repo:    p.Repo,
		tx:      p.Tx,
		stock:   p.Stock,
		debts:   p.Debts,
		outbox:  p.Outbox,
		metrics: p.Metrics,
		logg:    p.Logger,
		now:     func() time.Time { return clock().UTC() },
	}, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Sale, error) {
	return s.repo.Get(ctx, id)
}

func (s *service) List(ctx context.Context, filter Filter, params pagination.Params) (pagination.Page[models.Sale], error) {
	if filter.From != nil && filter.To != nil && !filter.From.Before(*filter.To) {
		return pagination.Page[models.Sale]{}, pkgerrors.New(pkgerrors.CodeValidation, "from must be before to")
	}
	return s.repo.List(ctx, filter, params)
}

// Refund reverses a completed sale after the goods came back.
func (s *service) Refund(ctx context.Context, in ReverseInput) (*models.Sale, error) {
	if strings.TrimSpace(in.Reason) == "" {
		in.Reason = DefaultRefundReason
	}
	return s.reverse(ctx, in, enums.SaleStatusRefunded)
}

// Void reverses a sale entered by mistake.
func (s *service) Void(ctx context.Context, in ReverseInput) (*models.Sale, error) {
	if strings.TrimSpace(in.Reason) == "" {
		in.Reason = DefaultVoidReason
	}
	return s.reverse(ctx, in, enums.SaleStatusVoided)
}

// reverse moves a completed sale to status. Every item goes back on the shelf
// through a return movement, and a credit sale's debt is reversed, all in
// the same transaction as the status change.
func (s *service) reverse(ctx context.Context, in ReverseInput, status enums.SaleStatus) (*models.Sale, error) {
	reason := strings.TrimSpace(in.Reason)
	var reversed *models.Sale
	restocked := 0

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		sale, err := repo.Get(ctx, in.SaleID)
		if err != nil {
			return err
		}
		if sale.Status != enums.SaleStatusCompleted {
			return alreadyReversed(sale)
		}

		ok, err := repo.MarkReversed(ctx, sale.ID, status, reason, s.now())
		if err != nil {
			return err
		}
		if !ok {
			return alreadyReversed(sale)
		}

		saleID := sale.ID
		for _, item := range sale.Items {
			if _, err := s.stock.Append(ctx, tx, stock.MovementInput{
				ProductID:     item.ProductID,
				Type:          enums.StockMovementReturn,
				Quantity:      item.Quantity,
				ReferenceID:   &saleID,
				ReferenceType: stock.ReferenceSale,
				Reason:        reason,
				CreatedBy:     in.CashierID,
			}); err != nil {
				return err
			}
			restocked += item.Quantity
		}

		if sale.PaymentMethod == enums.PaymentMethodCredit && sale.CustomerID != nil && sale.TotalCents > 0 {
			if _, err := s.debts.ReverseDebt(ctx, tx, *sale.CustomerID, sale.TotalCents, sale.ID, reason); err != nil {
				return err
			}
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSaleReversed,
			AggregateType: enums.AggregateSale,
			AggregateID:   sale.ID,
			Actor:         &outbox.ActorRef{CashierID: in.CashierID},
			Data: payloads.SaleReversedEvent{
				SaleID:     sale.ID,
				Status:     status,
				Reason:     reason,
				TotalCents: sale.TotalCents,
				Restocked:  restocked,
			},
		}); err != nil {
			return err
		}

		reversed, err = repo.Get(ctx, sale.ID)
		return err
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "reverse sale")
	}

	s.metrics.IncReversal(string(status))
	if s.logg != nil {
		lctx := s.logg.WithFields(s.logg.WithSaleID(ctx, reversed.ID.String()), map[string]any{
			"status":          string(status),
			"restocked_units": restocked,
		})
		s.logg.Info(lctx, "sale reversed")
	}
	return reversed, nil
}

func alreadyReversed(sale *models.Sale) error {
	return pkgerrors.Wrap(pkgerrors.CodeStateConflict, ErrAlreadyReversed, "sale already "+string(sale.Status)).
		WithDetails(map[string]any{"saleId": sale.ID.String(), "status": string(sale.Status)})
}
