package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/counterpos/pkg/db/dbtest"
	"github.com/angelmondragon/counterpos/pkg/db/models"
	pkgerrors "github.com/angelmondragon/counterpos/pkg/errors"
)

func seedProduct(t *testing.T, repo Repository, sku string, stock, reorder int, active bool) models.Product {
	t.Helper()
	p := models.Product{
		SKU:               sku,
		Name:              "Product " + sku,
		SellingPriceCents: 500,
		CostPriceCents:    300,
		StockQuantity:     stock,
		ReorderLevel:      reorder,
		IsActive:          active,
	}
	require.NoError(t, repo.Create(context.Background(), &p))
	return p
}

func TestGetProductAndNotFound(t *testing.T) {
	repo := NewRepository(dbtest.Open(t).DB())
	ctx := context.Background()
	p := seedProduct(t, repo, "SKU-1", 4, 1, true)

	got, err := repo.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Product SKU-1", got.Name)
	assert.Equal(t, 4, got.StockQuantity)

	_, err = repo.GetProduct(ctx, uuid.New())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProductNotFound))
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}

func TestGetProductsReturnsKnownIDs(t *testing.T) {
	repo := NewRepository(dbtest.Open(t).DB())
	a := seedProduct(t, repo, "A", 1, 0, true)
	b := seedProduct(t, repo, "B", 2, 0, true)

	got, err := repo.GetProducts(context.Background(), []uuid.UUID{a.ID, b.ID, uuid.New()})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, 2, got[b.ID].StockQuantity)

	empty, err := repo.GetProducts(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestInactiveProductPersistsFalseFlag(t *testing.T) {
	repo := NewRepository(dbtest.Open(t).DB())
	p := seedProduct(t, repo, "OFF", 1, 0, false)

	got, err := repo.GetBySKU(context.Background(), "OFF")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.False(t, got.IsActive)

	active, err := repo.List(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := repo.List(context.Background(), true)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestListLowStock(t *testing.T) {
	repo := NewRepository(dbtest.Open(t).DB())
	seedProduct(t, repo, "PLENTY", 50, 5, true)
	low := seedProduct(t, repo, "LOW", 2, 5, true)
	out := seedProduct(t, repo, "OUT", 0, 1, true)
	seedProduct(t, repo, "RETIRED", 0, 3, false)

	rows, err := repo.ListLowStock(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, out.ID, rows[0].ID)
	assert.Equal(t, low.ID, rows[1].ID)
	assert.True(t, ToDTO(rows[1]).LowStock)
}

func TestDuplicateSKURejected(t *testing.T) {
	repo := NewRepository(dbtest.Open(t).DB())
	seedProduct(t, repo, "DUP", 1, 0, true)
	dup := models.Product{SKU: "DUP", Name: "again", IsActive: true}
	require.Error(t, repo.Create(context.Background(), &dup))
}
