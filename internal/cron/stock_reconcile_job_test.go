package cron

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/counterpos/internal/stock"
	"github.com/angelmondragon/counterpos/pkg/db/models"
	"github.com/angelmondragon/counterpos/pkg/logger"
	"github.com/angelmondragon/counterpos/pkg/metrics"
)

type fakeProducts struct {
	rows []models.Product
	err  error
}

func (f fakeProducts) List(context.Context, bool) ([]models.Product, error) {
	return f.rows, f.err
}

type fakeVerifier struct {
	drift map[uuid.UUID]int
	fail  map[uuid.UUID]bool
}

func (f fakeVerifier) Verify(_ context.Context, productID uuid.UUID) (*stock.Verification, error) {
	if f.fail[productID] {
		return nil, errors.New("verify failed")
	}
	off := f.drift[productID]
	return &stock.Verification{
		ProductID:     productID,
		StockQuantity: 10 + off,
		LedgerSum:     10,
		Consistent:    off == 0,
	}, nil
}

func TestStockReconcileJobCountsDriftedProducts(t *testing.T) {
	clean, drifted, broken := uuid.New(), uuid.New(), uuid.New()
	reg := prometheus.NewRegistry()
	job, err := NewStockReconcileJob(StockReconcileJobParams{
		Logger:   logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Products: fakeProducts{rows: []models.Product{{ID: clean}, {ID: drifted}, {ID: broken}}},
		Ledger: fakeVerifier{
			drift: map[uuid.UUID]int{drifted: 3},
			fail:  map[uuid.UUID]bool{broken: true},
		},
		Metrics: metrics.NewJobMetrics(reg),
	})
	require.NoError(t, err)

	err = job.Run(context.Background())
	require.Error(t, err, "verification failures surface after the full pass")

	families, err := reg.Gather()
	require.NoError(t, err)
	var gauge float64
	for _, family := range families {
		if family.GetName() == "pos_stock_ledger_drift_products" {
			gauge = family.GetMetric()[0].GetGauge().GetValue()
		}
	}
	assert.Equal(t, float64(1), gauge)
}

func TestStockReconcileJobFailsWhenListingFails(t *testing.T) {
	job, err := NewStockReconcileJob(StockReconcileJobParams{
		Logger:   logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Products: fakeProducts{err: errors.New("db down")},
		Ledger:   fakeVerifier{},
	})
	require.NoError(t, err)
	assert.Error(t, job.Run(context.Background()))
}

func TestStockReconcileJobRequiresCollaborators(t *testing.T) {
	_, err := NewStockReconcileJob(StockReconcileJobParams{
		Logger: logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	assert.Error(t, err)
}
