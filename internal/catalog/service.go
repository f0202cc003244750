package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/counterpos/internal/stock"
	"github.com/angelmondragon/counterpos/pkg/db"
	"github.com/angelmondragon/counterpos/pkg/db/models"
	"github.com/angelmondragon/counterpos/pkg/enums"
	pkgerrors "github.com/angelmondragon/counterpos/pkg/errors"
	"github.com/angelmondragon/counterpos/pkg/logger"
)

const initialStockReason = "Initial stock"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// StockAppender is the ledger write path opening stock goes through.
type StockAppender interface {
	Append(ctx context.Context, tx *gorm.DB, in stock.MovementInput) (*models.StockMovement, error)
}

// CreateInput registers a product. InitialStock is received through the
// ledger so the counter always equals the sum of movements.
type CreateInput struct {
	SKU               string
	Name              string
	SellingPriceCents int64
	CostPriceCents    int64
	ReorderLevel      int
	InitialStock      int
	CreatedBy         string
}

// Service is the write side of the catalog.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Product, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) (*models.Product, error)
}

type service struct {
	tx    txRunner
	repo  Repository
	stock StockAppender
	logg  *logger.Logger
}

type ServiceParams struct {
	Tx     txRunner
	Repo   Repository
	Stock  StockAppender
	Logger *logger.Logger
}

func NewService(p ServiceParams) (Service, error) {
	if p.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if p.Repo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if p.Stock == nil {
		return nil, fmt.Errorf("stock ledger required")
	}
	return &service{tx: p.Tx, repo: p.Repo, stock: p.Stock, logg: p.Logger}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Product, error) {
	if err := validateCreate(input); err != nil {
		return nil, err
	}

	product := models.Product{
		ID:                uuid.New(),
		SKU:               strings.TrimSpace(input.SKU),
		Name:              strings.TrimSpace(input.Name),
		SellingPriceCents: input.SellingPriceCents,
		CostPriceCents:    input.CostPriceCents,
		ReorderLevel:      input.ReorderLevel,
		IsActive:          true,
	}

	var created *models.Product
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Create(ctx, &product); err != nil {
			if db.IsUniqueViolation(err, "sku") {
				return pkgerrors.New(pkgerrors.CodeConflict, "sku already exists").
					WithDetails(map[string]any{"sku": product.SKU})
			}
			return err
		}
		if input.InitialStock > 0 {
			_, err := s.stock.Append(ctx, tx, stock.MovementInput{
				ProductID: product.ID,
				Type:      enums.StockMovementIn,
				Quantity:  input.InitialStock,
				Reason:    initialStockReason,
				CreatedBy: input.CreatedBy,
			})
			if err != nil {
				return err
			}
		}
		reloaded, err := repo.GetProduct(ctx, product.ID)
		if err != nil {
			return err
		}
		created = reloaded
		return nil
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "create product")
	}

	if s.logg != nil {
		lctx := s.logg.WithFields(ctx, map[string]any{
			"product_id":    created.ID.String(),
			"sku":           created.SKU,
			"initial_stock": input.InitialStock,
		})
		s.logg.Info(lctx, "product created")
	}
	return created, nil
}

// SetActive hides or restores a product. Inactive products stay on past
// sales but cannot be added to a cart or checked out.
func (s *service) SetActive(ctx context.Context, id uuid.UUID, active bool) (*models.Product, error) {
	var updated *models.Product
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.GetProduct(ctx, id); err != nil {
			return err
		}
		if err := tx.WithContext(ctx).Model(&models.Product{}).Where("id = ?", id).Update("is_active", active).Error; err != nil {
			return err
		}
		reloaded, err := repo.GetProduct(ctx, id)
		if err != nil {
			return err
		}
		updated = reloaded
		return nil
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "update product")
	}
	return updated, nil
}

func validateCreate(input CreateInput) error {
	details := map[string]string{}
	if strings.TrimSpace(input.SKU) == "" {
		details["sku"] = "is required"
	}
	if strings.TrimSpace(input.Name) == "" {
		details["name"] = "is required"
	}
	if input.SellingPriceCents <= 0 {
		details["sellingPriceCents"] = "must be greater than 0"
	}
	if input.CostPriceCents < 0 {
		details["costPriceCents"] = "must not be negative"
	}
	if input.ReorderLevel < 0 {
		details["reorderLevel"] = "must not be negative"
	}
	if input.InitialStock < 0 {
		details["initialStock"] = "must not be negative"
	}
	if len(details) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid product").WithDetails(details)
	}
	return nil
}
