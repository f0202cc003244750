package cron

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/counterpos/internal/stock"
	"github.com/angelmondragon/counterpos/pkg/db/models"
	"github.com/angelmondragon/counterpos/pkg/logger"
	"github.com/angelmondragon/counterpos/pkg/metrics"
)

type productLister interface {
	List(ctx context.Context, includeInactive bool) ([]models.Product, error)
}

type ledgerVerifier interface {
	Verify(ctx context.Context, productID uuid.UUID) (*stock.Verification, error)
}

type StockReconcileJobParams struct {
	Logger   *logger.Logger
	Products productLister
	Ledger   ledgerVerifier
	Metrics  *metrics.JobMetrics
}

// NewStockReconcileJob checks every product's stored stock against the sum of
// its movements. Drift is reported, never corrected.
func NewStockReconcileJob(params StockReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Products == nil {
		return nil, errors.New("product lister required")
	}
	if params.Ledger == nil {
		return nil, errors.New("stock ledger required")
	}
	return &stockReconcileJob{
		logg:     params.Logger,
		products: params.Products,
		ledger:   params.Ledger,
		metrics:  params.Metrics,
	}, nil
}

type stockReconcileJob struct {
	logg     *logger.Logger
	products productLister
	ledger   ledgerVerifier
	metrics  *metrics.JobMetrics
}

func (j *stockReconcileJob) Name() string { return "stock-reconcile" }

func (j *stockReconcileJob) Run(ctx context.Context) error {
	products, err := j.products.List(ctx, true)
	if err != nil {
		return fmt.Errorf("list products: %w", err)
	}

	var (
		drifted int
		errs    error
	)
	for _, product := range products {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		check, err := j.ledger.Verify(ctx, product.ID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("verify %s: %w", product.ID, err))
			continue
		}
		if check.Consistent {
			continue
		}
		drifted++
		j.logg.Warn(j.logg.WithFields(j.logg.WithProductID(ctx, product.ID.String()), map[string]any{
			"stock_quantity": check.StockQuantity,
			"ledger_sum":     check.LedgerSum,
		}), "stock quantity disagrees with movement ledger")
	}

	j.metrics.SetStockDrift(drifted)
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"products_checked": len(products),
		"products_drifted": drifted,
	}), "stock reconcile complete")
	return errs
}
