package stock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/counterpos/pkg/db/models"
	"github.com/angelmondragon/counterpos/pkg/enums"
	pkgerrors "github.com/angelmondragon/counterpos/pkg/errors"
	"github.com/angelmondragon/counterpos/pkg/logger"
	"github.com/angelmondragon/counterpos/pkg/metrics"
	"github.com/angelmondragon/counterpos/pkg/outbox"
	"github.com/angelmondragon/counterpos/pkg/outbox/payloads"
)

const ReferenceSale = "sale"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// MovementInput describes one signed change to a product's stock.
type MovementInput struct {
	ProductID     uuid.UUID
	Type          enums.StockMovementType
	Quantity      int
	ReferenceID   *uuid.UUID
	ReferenceType string
	Reason        string
	CreatedBy     string
}

// Ledger is the only writer of products.stock_quantity. Every change appends
// a movement and updates the counter in the same transaction.
type Ledger struct {
	db      *gorm.DB
	tx      txRunner
	outbox  outbox.Emitter
	metrics *metrics.POSMetrics
	logg    *logger.Logger
}

type LedgerParams struct {
	DB      *gorm.DB
	Tx      txRunner
	Outbox  outbox.Emitter
	Metrics *metrics.POSMetrics
	Logger  *logger.Logger
}

func NewLedger(p LedgerParams) (*Ledger, error) {
	if p.DB == nil {
		return nil, fmt.Errorf("db required")
	}
	if p.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if p.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &Ledger{db: p.DB, tx: p.Tx, outbox: p.Outbox, metrics: p.Metrics, logg: p.Logger}, nil
}

// Append writes in inside tx. The counter update is guarded so it can never
// take stock below zero; a losing writer gets a *StockError.
func (l *Ledger) Append(ctx context.Context, tx *gorm.DB, in MovementInput) (*models.StockMovement, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	if err := validate(in); err != nil {
		return nil, err
	}

	product, err := lockProduct(ctx, tx, in.ProductID)
	if err != nil {
		return nil, err
	}
	if product.StockQuantity+in.Quantity < 0 {
		return nil, &StockError{
			ProductID:   product.ID,
			ProductName: product.Name,
			Requested:   -in.Quantity,
			Available:   product.StockQuantity,
		}
	}

	res := tx.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND stock_quantity = ? AND stock_quantity + ? >= 0", product.ID, product.StockQuantity, in.Quantity).
		Updates(map[string]any{
			"stock_quantity": gorm.Expr("stock_quantity + ?", in.Quantity),
			"updated_at":     time.Now().UTC(),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		current, cerr := lockProduct(ctx, tx, in.ProductID)
		if cerr != nil {
			return nil, cerr
		}
		return nil, &StockError{
			ProductID:   current.ID,
			ProductName: current.Name,
			Requested:   -in.Quantity,
			Available:   current.StockQuantity,
		}
	}

	movement := &models.StockMovement{
		ID:            uuid.New(),
		ProductID:     product.ID,
		Type:          in.Type,
		Quantity:      in.Quantity,
		PreviousStock: product.StockQuantity,
		NewStock:      product.StockQuantity + in.Quantity,
		ReferenceID:   in.ReferenceID,
		ReferenceType: optional(in.ReferenceType),
		Reason:        optional(in.Reason),
		CreatedBy:     optional(in.CreatedBy),
	}
	if err := tx.WithContext(ctx).Create(movement).Error; err != nil {
		return nil, err
	}

	if movement.PreviousStock > product.ReorderLevel && movement.NewStock <= product.ReorderLevel {
		if err := l.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventStockBelowReorder,
			AggregateType: enums.AggregateProduct,
			AggregateID:   product.ID,
			Data: payloads.StockBelowReorderEvent{
				ProductID:    product.ID,
				ProductName:  product.Name,
				Stock:        movement.NewStock,
				ReorderLevel: product.ReorderLevel,
			},
		}); err != nil {
			return nil, err
		}
	}

	l.metrics.IncStockMovement(string(in.Type))
	return movement, nil
}

// RecordMovement appends a manual movement in its own transaction.
func (l *Ledger) RecordMovement(ctx context.Context, in MovementInput) (*models.StockMovement, error) {
	var movement *models.StockMovement
	err := l.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		movement, err = l.appendManual(ctx, tx, in)
		return err
	})
	if err != nil {
		return nil, normalize(err)
	}
	l.logMovement(ctx, movement)
	return movement, nil
}

// Receive books incoming goods.
func (l *Ledger) Receive(ctx context.Context, productID uuid.UUID, quantity int, reason, createdBy string) (*models.StockMovement, error) {
	return l.RecordMovement(ctx, MovementInput{
		ProductID: productID,
		Type:      enums.StockMovementIn,
		Quantity:  quantity,
		Reason:    reason,
		CreatedBy: createdBy,
	})
}

// Remove takes damaged or lost goods out of stock. It never clamps: removing
// more than is on hand fails with *StockError.
func (l *Ledger) Remove(ctx context.Context, productID uuid.UUID, quantity int, reason, createdBy string) (*models.StockMovement, error) {
	if quantity < 1 {
		return nil, invalidMovement("quantity must be at least 1")
	}
	if strings.TrimSpace(reason) == "" {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, ErrReasonRequired, "reason is required to remove stock")
	}
	return l.RecordMovement(ctx, MovementInput{
		ProductID: productID,
		Type:      enums.StockMovementOut,
		Quantity:  -quantity,
		Reason:    reason,
		CreatedBy: createdBy,
	})
}

// SetCount records a physical count as an adjustment of the difference.
// A count equal to the current stock writes nothing and returns nil.
func (l *Ledger) SetCount(ctx context.Context, productID uuid.UUID, counted int, reason, createdBy string) (*models.StockMovement, error) {
	if counted < 0 {
		return nil, invalidMovement("counted quantity must not be negative")
	}
	if strings.TrimSpace(reason) == "" {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, ErrReasonRequired, "reason is required for adjustments")
	}
	var movement *models.StockMovement
	err := l.tx.WithTx(ctx, func(tx *gorm.DB) error {
		product, err := lockProduct(ctx, tx, productID)
		if err != nil {
			return err
		}
		delta := counted - product.StockQuantity
		if delta == 0 {
			return nil
		}
		movement, err = l.appendManual(ctx, tx, MovementInput{
			ProductID: productID,
			Type:      enums.StockMovementAdjustment,
			Quantity:  delta,
			Reason:    reason,
			CreatedBy: createdBy,
		})
		return err
	})
	if err != nil {
		return nil, normalize(err)
	}
	if movement != nil {
		l.logMovement(ctx, movement)
	}
	return movement, nil
}

func (l *Ledger) appendManual(ctx context.Context, tx *gorm.DB, in MovementInput) (*models.StockMovement, error) {
	movement, err := l.Append(ctx, tx, in)
	if err != nil {
		return nil, err
	}
	reason := ""
	if movement.Reason != nil {
		reason = *movement.Reason
	}
	err = l.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventStockAdjusted,
		AggregateType: enums.AggregateProduct,
		AggregateID:   movement.ProductID,
		Data: payloads.StockAdjustedEvent{
			ProductID:     movement.ProductID,
			MovementID:    movement.ID,
			Type:          movement.Type,
			Quantity:      movement.Quantity,
			PreviousStock: movement.PreviousStock,
			NewStock:      movement.NewStock,
			Reason:        reason,
		},
	})
	if err != nil {
		return nil, err
	}
	return movement, nil
}

// Verification compares the materialized counter with the ledger sum.
type Verification struct {
	ProductID     uuid.UUID `json:"productId"`
	StockQuantity int       `json:"stockQuantity"`
	LedgerSum     int       `json:"ledgerSum"`
	Consistent    bool      `json:"consistent"`
}

// Verify recomputes the product's stock from its movements.
func (l *Ledger) Verify(ctx context.Context, productID uuid.UUID) (*Verification, error) {
	var product models.Product
	err := l.db.WithContext(ctx).Where("id = ?", productID).First(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, productNotFound(productID)
	}
	if err != nil {
		return nil, err
	}
	var sum int
	err = l.db.WithContext(ctx).
		Model(&models.StockMovement{}).
		Where("product_id = ?", productID).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&sum).Error
	if err != nil {
		return nil, err
	}
	return &Verification{
		ProductID:     productID,
		StockQuantity: product.StockQuantity,
		LedgerSum:     sum,
		Consistent:    sum == product.StockQuantity,
	}, nil
}

// History lists a product's movements, newest first.
func (l *Ledger) History(ctx context.Context, productID uuid.UUID, movementType enums.StockMovementType, limit int) ([]models.StockMovement, error) {
	query := l.db.WithContext(ctx).Where("product_id = ?", productID)
	if movementType != "" {
		query = query.Where("type = ?", movementType)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []models.StockMovement
	if err := query.Order("created_at DESC").Order("id DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (l *Ledger) logMovement(ctx context.Context, m *models.StockMovement) {
	if l.logg == nil || m == nil {
		return
	}
	ctx = l.logg.WithFields(l.logg.WithProductID(ctx, m.ProductID.String()), map[string]any{
		"movement_id":    m.ID.String(),
		"movement_type":  m.Type,
		"quantity":       m.Quantity,
		"previous_stock": m.PreviousStock,
		"new_stock":      m.NewStock,
	})
	l.logg.Info(ctx, "stock movement recorded")
}

func lockProduct(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Product, error) {
	query := tx.WithContext(ctx)
	if tx.Dialector.Name() != "sqlite" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var product models.Product
	err := query.Where("id = ?", id).First(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, productNotFound(id)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func validate(in MovementInput) error {
	if in.ProductID == uuid.Nil {
		return invalidMovement("product id is required")
	}
	if !in.Type.IsValid() {
		return invalidMovement(fmt.Sprintf("unknown movement type %q", in.Type))
	}
	if in.Quantity == 0 {
		return invalidMovement("quantity must not be zero")
	}
	switch in.Type {
	case enums.StockMovementOut:
		if in.Quantity > 0 {
			return invalidMovement("out movements must be negative")
		}
	case enums.StockMovementIn, enums.StockMovementReturn:
		if in.Quantity < 0 {
			return invalidMovement(fmt.Sprintf("%s movements must be positive", in.Type))
		}
	case enums.StockMovementAdjustment:
		if strings.TrimSpace(in.Reason) == "" {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, ErrReasonRequired, "reason is required for adjustments")
		}
	}
	return nil
}

// normalize maps ledger failures to coded errors for callers outside a checkout.
func normalize(err error) error {
	var stockErr *StockError
	if errors.As(err, &stockErr) {
		return stockErr.AsAPIError()
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "record stock movement")
}

func productNotFound(id uuid.UUID) error {
	return pkgerrors.Wrap(pkgerrors.CodeNotFound, ErrProductNotFound, "product not found").
		WithDetails(map[string]any{"productId": id.String()})
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
