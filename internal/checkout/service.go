package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/counterpos/internal/cart"
	"github.com/angelmondragon/counterpos/internal/catalog"
	"github.com/angelmondragon/counterpos/internal/promotions"
	"github.com/angelmondragon/counterpos/internal/sales"
	"github.com/angelmondragon/counterpos/internal/sessions"
	"github.com/angelmondragon/counterpos/internal/stock"
	"github.com/angelmondragon/counterpos/pkg/db/models"
	"github.com/angelmondragon/counterpos/pkg/enums"
	pkgerrors "github.com/angelmondragon/counterpos/pkg/errors"
	"github.com/angelmondragon/counterpos/pkg/logger"
	"github.com/angelmondragon/counterpos/pkg/metrics"
	"github.com/angelmondragon/counterpos/pkg/outbox"
	"github.com/angelmondragon/counterpos/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// SessionGate reports whether a session may take sales for a cashier.
type SessionGate interface {
	RequireActive(ctx context.Context, sessionID uuid.UUID, cashierID string) (*models.CashierSession, error)
}

// StockAppender is the stock ledger's in-transaction write path.
type StockAppender interface {
	Append(ctx context.Context, tx *gorm.DB, in stock.MovementInput) (*models.StockMovement, error)
}

// Customers resolves credit customers and posts their debt.
type Customers interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Customer, error)
	PostDebt(ctx context.Context, tx *gorm.DB, customerID uuid.UUID, amountCents int64, saleID uuid.UUID) (*models.CustomerTransaction, error)
}

// Input is one checkout request.
type Input struct {
	Cart          *cart.Cart
	PaymentMethod enums.PaymentMethod
	CustomerID    *uuid.UUID
	SessionID     uuid.UUID
	CashierID     string
	TerminalID    string
}

// Receipt is the committed sale and the pricing it was built from.
type Receipt struct {
	Sale       *models.Sale                 `json:"sale"`
	Summary    cart.Summary                 `json:"summary"`
	Promotions promotions.ApplicationResult `json:"promotions"`
}

// Service turns carts into sales.
type Service interface {
	Checkout(ctx context.Context, in Input) (*Receipt, error)
	Quote(ctx context.Context, c *cart.Cart) (*cart.Summary, error)
}

type service struct {
	tx         txRunner
	catalog    catalog.Repository
	promotions promotions.Source
	sessions   SessionGate
	stock      StockAppender
	sales      sales.Repository
	customers  Customers
	outbox     outbox.Emitter
	metrics    *metrics.POSMetrics
	logg       *logger.Logger
	loc        *time.Location
	now        func() time.Time
}

type ServiceParams struct {
	Tx         txRunner
	Catalog    catalog.Repository
	Promotions promotions.Source
	Sessions   SessionGate
	Stock      StockAppender
	Sales      sales.Repository
	Customers  Customers
	Outbox     outbox.Emitter
	Metrics    *metrics.POSMetrics
	Logger     *logger.Logger
	Location   *time.Location
	Clock      func() time.Time
}

// NewService builds the checkout service.
func NewService(p ServiceParams) (Service, error) {
	if p.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if p.Catalog == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if p.Promotions == nil {
		return nil, fmt.Errorf("promotion source required")
	}
	if p.Sessions == nil {
		return nil, fmt.Errorf("session gate required")
	}
	if p.Stock == nil {
		return nil, fmt.Errorf("stock ledger required")
	}
	if p.Sales == nil {
		return nil, fmt.Errorf("sales repository required")
	}
	if p.Customers == nil {
		return nil, fmt.Errorf("customer accounts required")
	}
	if p.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
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
		tx:         p.Tx,
		catalog:    p.Catalog,
		promotions: p.Promotions,
		sessions:   p.Sessions,
		stock:      p.Stock,
		sales:      p.Sales,
		customers:  p.Customers,
		outbox:     p.Outbox,
		metrics:    p.Metrics,
		logg:       p.Logger,
		loc:        loc,
		now:        clock,
	}, nil
}

// Quote prices the cart against today's promotions without touching storage.
func (s *service) Quote(ctx context.Context, c *cart.Cart) (*cart.Summary, error) {
	if c == nil {
		return nil, emptyCart()
	}
	today := s.now().In(s.loc)
	promos, err := s.promotions.ListActive(ctx, today)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "load promotions")
	}
	lines := c.Lines()
	summary := cart.Totals(lines, promotions.Resolve(cart.ToPromotionLines(lines), promos, today))
	return &summary, nil
}

// Checkout validates the request, then in one transaction re-reads live
// stock, prices and the active promotions (uncached), resolves promotions,
// decrements stock, persists the sale
// and posts credit. The cart is cleared only after the commit; on any error it
// is left as it was.
func (s *service) Checkout(ctx context.Context, in Input) (receipt *Receipt, err error) {
	started := time.Now()
	defer func() {
		s.metrics.ObserveCheckout(outcome(err), time.Since(started))
	}()

	if err := s.precheck(ctx, in); err != nil {
		return nil, err
	}

	now := s.now()
	today := now.In(s.loc)

	hold := in.Cart.Checkout()
	lines := hold.Lines()
	if len(lines) == 0 {
		hold.Release()
		return nil, emptyCart()
	}

	saleID := uuid.New()
	var (
		sale    *models.Sale
		summary cart.Summary
		result  promotions.ApplicationResult
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := sessions.RequireActiveTx(ctx, tx, in.SessionID, in.CashierID); err != nil {
			return err
		}

		live, costs, err := s.liveLines(ctx, tx, lines)
		if err != nil {
			return err
		}

		promos, err := s.promotions.ListActiveTx(ctx, tx, today)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "load promotions")
		}
		result = promotions.Resolve(cart.ToPromotionLines(live), promos, today)
		summary = cart.Totals(live, result)

		sale = buildSale(saleID, in, summary, costs, now.UTC(), today)
		if err := s.sales.WithTx(tx).Create(ctx, sale); err != nil {
			return err
		}

		for _, item := range sale.Items {
			if _, err := s.stock.Append(ctx, tx, stock.MovementInput{
				ProductID:     item.ProductID,
				Type:          enums.StockMovementOut,
				Quantity:      -item.Quantity,
				ReferenceID:   &saleID,
				ReferenceType: stock.ReferenceSale,
				Reason:        "Sale",
				CreatedBy:     in.CashierID,
			}); err != nil {
				return err
			}
		}

		if in.PaymentMethod == enums.PaymentMethodCredit && sale.TotalCents > 0 {
			if _, err := s.customers.PostDebt(ctx, tx, *in.CustomerID, sale.TotalCents, saleID); err != nil {
				return err
			}
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSaleCompleted,
			AggregateType: enums.AggregateSale,
			AggregateID:   saleID,
			Actor:         &outbox.ActorRef{CashierID: in.CashierID, TerminalID: in.TerminalID},
			OccurredAt:    sale.SaleDate,
			Data: payloads.SaleCompletedEvent{
				SaleID:        saleID,
				InvoiceNumber: sale.InvoiceNumber,
				SessionID:     in.SessionID,
				CashierID:     in.CashierID,
				CustomerID:    in.CustomerID,
				PaymentMethod: in.PaymentMethod,
				ItemCount:     len(sale.Items),
				DiscountCents: sale.DiscountCents,
				TotalCents:    sale.TotalCents,
				SaleDate:      sale.SaleDate,
			},
		})
	})
	if err != nil {
		hold.Release()
		err = s.failure(err)
		s.logFailure(ctx, in, err)
		return nil, err
	}

	if cerr := hold.Complete(); cerr != nil && s.logg != nil {
		s.logg.Warn(ctx, "checkout.cart_already_released")
	}

	s.metrics.AddRevenue(string(in.PaymentMethod), sale.TotalCents)
	if s.logg != nil {
		lctx := s.logg.WithFields(s.logg.WithSaleID(ctx, saleID.String()), map[string]any{
			"invoice_number": sale.InvoiceNumber,
			"session_id":     in.SessionID.String(),
			"cashier_id":     in.CashierID,
			"payment_method": string(in.PaymentMethod),
			"total_cents":    sale.TotalCents,
		})
		s.logg.Info(lctx, "sale completed")
	}

	return &Receipt{Sale: sale, Summary: summary, Promotions: result}, nil
}

// precheck rejects requests that must fail before any mutation.
func (s *service) precheck(ctx context.Context, in Input) error {
	if in.Cart == nil || in.Cart.IsEmpty() {
		return emptyCart()
	}
	if !in.PaymentMethod.IsValid() {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, ErrInvalidPaymentMethod, "invalid payment method").
			WithDetails(map[string]any{"paymentMethod": string(in.PaymentMethod)})
	}
	if in.PaymentMethod == enums.PaymentMethodCredit && (in.CustomerID == nil || *in.CustomerID == uuid.Nil) {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, ErrCreditRequiresCustomer, "credit sales require a customer")
	}
	if _, err := s.sessions.RequireActive(ctx, in.SessionID, in.CashierID); err != nil {
		return err
	}
	if in.CustomerID != nil && *in.CustomerID != uuid.Nil {
		if _, err := s.customers.Get(ctx, *in.CustomerID); err != nil {
			return err
		}
	}
	return nil
}

// liveLines re-reads every product inside tx and reprices the held lines at
// the current selling price. It also returns each product's current cost.
// Insufficient stock fails with *stock.StockError.
func (s *service) liveLines(ctx context.Context, tx *gorm.DB, lines []cart.Line) ([]cart.Line, map[uuid.UUID]int64, error) {
	ids := make([]uuid.UUID, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}
	products, err := s.catalog.WithTx(tx).GetProducts(ctx, ids)
	if err != nil {
		return nil, nil, err
	}

	live := make([]cart.Line, 0, len(lines))
	costs := make(map[uuid.UUID]int64, len(lines))
	for _, l := range lines {
		p, ok := products[l.ProductID]
		if !ok || !p.IsActive {
			return nil, nil, pkgerrors.Wrap(pkgerrors.CodeConflict, ErrProductUnavailable, "product no longer available").
				WithDetails(map[string]any{"productId": l.ProductID.String(), "productName": l.ProductName})
		}
		if p.StockQuantity < l.Quantity {
			return nil, nil, &stock.StockError{
				ProductID:   p.ID,
				ProductName: p.Name,
				Requested:   l.Quantity,
				Available:   p.StockQuantity,
			}
		}
		l.ProductName = p.Name
		l.UnitPriceCents = p.SellingPriceCents
		l.MaxQuantity = p.StockQuantity
		if gross := l.UnitPriceCents * int64(l.Quantity); l.ManualDiscountCents > gross {
			l.ManualDiscountCents = gross
		}
		live = append(live, l)
		costs[p.ID] = p.CostPriceCents
	}
	return live, costs, nil
}

func (s *service) failure(err error) error {
	var stockErr *stock.StockError
	if errors.As(err, &stockErr) {
		return stockErr.AsAPIError()
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "checkout failed")
}

func (s *service) logFailure(ctx context.Context, in Input, err error) {
	if s.logg == nil {
		return
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"session_id":     in.SessionID.String(),
		"cashier_id":     in.CashierID,
		"payment_method": string(in.PaymentMethod),
	})
	if pkgerrors.Is(err, pkgerrors.CodePersistence) {
		s.logg.Error(ctx, "checkout failed", err)
		return
	}
	s.logg.Warn(ctx, "checkout.rejected")
}

// buildSale freezes the priced lines into a sale. Each item's discount is its
// manual discount plus its promotion discount.
func buildSale(id uuid.UUID, in Input, summary cart.Summary, costs map[uuid.UUID]int64, at, local time.Time) *models.Sale {
	sale := &models.Sale{
		ID:            id,
		InvoiceNumber: sales.InvoiceNumber(local, id),
		PaymentMethod: in.PaymentMethod,
		CustomerID:    in.CustomerID,
		CashierID:     in.CashierID,
		SessionID:     in.SessionID,
		Status:        enums.SaleStatusCompleted,
		SaleDate:      at,
		Items:         make([]models.SaleItem, 0, len(summary.Lines)),
	}
	for _, l := range summary.Lines {
		gross := l.UnitPriceCents * int64(l.Quantity)
		discount := l.ManualDiscountCents + l.PromoDiscountCents
		sale.Items = append(sale.Items, models.SaleItem{
			ID:                  uuid.New(),
			SaleID:              id,
			ProductID:           l.ProductID,
			ProductName:         l.ProductName,
			Quantity:            l.Quantity,
			UnitPriceCents:      l.UnitPriceCents,
			CostPriceCents:      costs[l.ProductID],
			ManualDiscountCents: l.ManualDiscountCents,
			PromoDiscountCents:  l.PromoDiscountCents,
			PromotionID:         l.PromotionID,
			DiscountCents:       discount,
			TotalCents:          gross - discount,
		})
		sale.SubtotalCents += gross
		sale.DiscountCents += discount
	}
	sale.TotalCents = sale.SubtotalCents - sale.DiscountCents
	return sale
}
