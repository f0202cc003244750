package promotions

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/counterpos/pkg/db/models"
	"github.com/angelmondragon/counterpos/pkg/enums"
	pkgerrors "github.com/angelmondragon/counterpos/pkg/errors"
)

var ErrPromotionNotFound = errors.New("promotion not found")

// Repository persists promotions and their product scope.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, row *models.Promotion) error
	Get(ctx context.Context, id uuid.UUID) (*models.Promotion, error)
	List(ctx context.Context) ([]models.Promotion, error)
	ListActive(ctx context.Context, date string) ([]models.Promotion, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.PromotionStatus) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, row *models.Promotion) error {
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	for i := range row.Products {
		row.Products[i].PromotionID = row.ID
	}
	return r.db.WithContext(ctx).Create(row).Error
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (*models.Promotion, error) {
	var row models.Promotion
	err := r.db.WithContext(ctx).Preload("Products").Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, ErrPromotionNotFound, "promotion not found")
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) List(ctx context.Context) ([]models.Promotion, error) {
	var rows []models.Promotion
	err := r.db.WithContext(ctx).
		Preload("Products").
		Order("start_date DESC").
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ListActive returns promotions whose stored status is active and whose
// window contains date (YYYY-MM-DD).
func (r *repository) ListActive(ctx context.Context, date string) ([]models.Promotion, error) {
	var rows []models.Promotion
	err := r.db.WithContext(ctx).
		Preload("Products").
		Where("status = ?", enums.PromotionStatusActive).
		Where("start_date <= ? AND end_date >= ?", date, date).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.PromotionStatus) error {
	res := r.db.WithContext(ctx).
		Model(&models.Promotion{}).
		Where("id = ?", id).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, ErrPromotionNotFound, "promotion not found")
	}
	return nil
}
