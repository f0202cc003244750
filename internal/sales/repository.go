package sales

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/counterpos/pkg/db/models"
	"github.com/angelmondragon/counterpos/pkg/enums"
	pkgerrors "github.com/angelmondragon/counterpos/pkg/errors"
	"github.com/angelmondragon/counterpos/pkg/pagination"
)

// Filter narrows a sales listing. Zero values mean no constraint.
type Filter struct {
	SessionID *uuid.UUID
	CashierID string
	Status    enums.SaleStatus
	From      *time.Time
	To        *time.Time
}

// Repository persists sales and their frozen line items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, sale *models.Sale) error
	Get(ctx context.Context, id uuid.UUID) (*models.Sale, error)
	List(ctx context.Context, filter Filter, params pagination.Params) (pagination.Page[models.Sale], error)
	MarkReversed(ctx context.Context, id uuid.UUID, status enums.SaleStatus, reason string, at time.Time) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a sales repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Create inserts the sale together with its Items.
func (r *repository) Create(ctx context.Context, sale *models.Sale) error {
	if sale.ID == uuid.Nil {
		sale.ID = uuid.New()
	}
	for i := range sale.Items {
		if sale.Items[i].ID == uuid.Nil {
			sale.Items[i].ID = uuid.New()
		}
		sale.Items[i].SaleID = sale.ID
	}
	return r.db.WithContext(ctx).Create(sale).Error
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (*models.Sale, error) {
	var sale models.Sale
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("product_name ASC").Order("id ASC") }).
		Where("id = ?", id).
		First(&sale).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, ErrSaleNotFound, "sale not found").
			WithDetails(map[string]any{"saleId": id.String()})
	}
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

// List returns sales newest first using a (sale_date, id) keyset cursor.
func (r *repository) List(ctx context.Context, filter Filter, params pagination.Params) (pagination.Page[models.Sale], error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return pagination.Page[models.Sale]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	q := r.db.WithContext(ctx).Model(&models.Sale{}).Preload("Items")
	if filter.SessionID != nil {
		q = q.Where("session_id = ?", *filter.SessionID)
	}
	if filter.CashierID != "" {
		q = q.Where("cashier_id = ?", filter.CashierID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.From != nil {
		q = q.Where("sale_date >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		q = q.Where("sale_date < ?", filter.To.UTC())
	}
	if cursor != nil {
		q = q.Where("(sale_date < ?) OR (sale_date = ? AND id < ?)", cursor.At, cursor.At, cursor.ID)
	}

	var rows []models.Sale
	if err := q.Order("sale_date DESC").Order("id DESC").Limit(pagination.LimitWithBuffer(params.Limit)).Find(&rows).Error; err != nil {
		return pagination.Page[models.Sale]{}, err
	}
	return pagination.Build(rows, params.Limit, func(s models.Sale) pagination.Cursor {
		return pagination.Cursor{At: s.SaleDate, ID: s.ID}
	}), nil
}

// MarkReversed moves a completed sale to status. It reports false when the
// sale was no longer completed.
func (r *repository) MarkReversed(ctx context.Context, id uuid.UUID, status enums.SaleStatus, reason string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Sale{}).
		Where("id = ? AND status = ?", id, enums.SaleStatusCompleted).
		Updates(map[string]any{
			"status":          status,
			"reversal_reason": reason,
			"reversed_at":     at,
			"updated_at":      at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
