package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/counterpos/internal/stock"
	"github.com/angelmondragon/counterpos/pkg/db"
	"github.com/angelmondragon/counterpos/pkg/db/dbtest"
	pkgerrors "github.com/angelmondragon/counterpos/pkg/errors"
	"github.com/angelmondragon/counterpos/pkg/outbox"
)

func newService(t *testing.T) (Service, *stock.Ledger, *db.Client) {
	t.Helper()
	client := dbtest.Open(t)
	ledger, err := stock.NewLedger(stock.LedgerParams{
		DB:     client.DB(),
		Tx:     client,
		Outbox: outbox.NewService(outbox.NewRepository(client.DB()), nil),
	})
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{Tx: client, Repo: NewRepository(client.DB()), Stock: ledger})
	require.NoError(t, err)
	return svc, ledger, client
}

func TestCreateReceivesInitialStockThroughLedger(t *testing.T) {
	svc, ledger, _ := newService(t)
	ctx := context.Background()

	p, err := svc.Create(ctx, CreateInput{
		SKU:               " COLA-330 ",
		Name:              "Cola 330ml",
		SellingPriceCents: 150,
		CostPriceCents:    90,
		ReorderLevel:      5,
		InitialStock:      24,
		CreatedBy:         "cashier-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "COLA-330", p.SKU)
	assert.Equal(t, 24, p.StockQuantity)
	assert.True(t, p.IsActive)

	v, err := ledger.Verify(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, v.Consistent)
	assert.Equal(t, 24, v.LedgerSum)
}

func TestCreateWithoutStockWritesNoMovement(t *testing.T) {
	svc, _, client := newService(t)

	p, err := svc.Create(context.Background(), CreateInput{SKU: "BREAD", Name: "Bread", SellingPriceCents: 200})
	require.NoError(t, err)
	assert.Equal(t, 0, p.StockQuantity)

	var count int64
	require.NoError(t, client.DB().Table("stock_movements").Where("product_id = ?", p.ID).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCreateRejectsDuplicateSKUAndBadInput(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{SKU: "DUP", Name: "First", SellingPriceCents: 100, InitialStock: 3})
	require.NoError(t, err)

	_, err = svc.Create(ctx, CreateInput{SKU: "DUP", Name: "Second", SellingPriceCents: 100, InitialStock: 3})
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeConflict))

	_, err = svc.Create(ctx, CreateInput{SKU: "", Name: "", SellingPriceCents: 0, InitialStock: -1})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	details, ok := typed.Details().(map[string]string)
	require.True(t, ok)
	assert.Contains(t, details, "sku")
	assert.Contains(t, details, "initialStock")
}

func TestSetActiveHidesProductFromListing(t *testing.T) {
	svc, _, client := newService(t)
	ctx := context.Background()
	repo := NewRepository(client.DB())

	p, err := svc.Create(ctx, CreateInput{SKU: "TEA", Name: "Tea", SellingPriceCents: 300, InitialStock: 2})
	require.NoError(t, err)

	updated, err := svc.SetActive(ctx, p.ID, false)
	require.NoError(t, err)
	assert.False(t, updated.IsActive)

	rows, err := repo.List(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, rows)

	rows, err = repo.List(ctx, true)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
