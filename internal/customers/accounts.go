package customers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/counterpos/pkg/db/models"
	"github.com/angelmondragon/counterpos/pkg/enums"
	pkgerrors "github.com/angelmondragon/counterpos/pkg/errors"
)

const ReferenceSale = "sale"

var (
	ErrCustomerNotFound = errors.New("customer not found")
	ErrInvalidAmount    = errors.New("invalid amount")
)

// Accounts keeps customer balances. Every balance change appends a
// customer_transactions row recording the balance it produced.
type Accounts struct {
	db *gorm.DB
}

func NewAccounts(db *gorm.DB) (*Accounts, error) {
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	return &Accounts{db: db}, nil
}

// Create registers a customer with a zero balance.
func (a *Accounts) Create(ctx context.Context, name, phone string) (*models.Customer, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer name is required")
	}
	c := &models.Customer{ID: uuid.New(), Name: name}
	if p := strings.TrimSpace(phone); p != "" {
		c.Phone = &p
	}
	if err := a.db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "create customer")
	}
	return c, nil
}

// Get loads a customer by id.
func (a *Accounts) Get(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	return GetTx(ctx, a.db, id)
}

// GetTx is Get on an explicit connection or transaction.
func GetTx(ctx context.Context, conn *gorm.DB, id uuid.UUID) (*models.Customer, error) {
	var c models.Customer
	err := conn.WithContext(ctx).Where("id = ?", id).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, ErrCustomerNotFound, "customer not found").
			WithDetails(map[string]any{"customerId": id.String()})
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// List returns customers by name; withDebt keeps only those owing money.
func (a *Accounts) List(ctx context.Context, withDebt bool) ([]models.Customer, error) {
	q := a.db.WithContext(ctx).Model(&models.Customer{})
	if withDebt {
		q = q.Where("total_debt_cents > 0")
	}
	var rows []models.Customer
	if err := q.Order("name ASC").Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// PostDebt adds a credit sale to the customer's balance inside tx.
func (a *Accounts) PostDebt(ctx context.Context, tx *gorm.DB, customerID uuid.UUID, amountCents int64, saleID uuid.UUID) (*models.CustomerTransaction, error) {
	return a.apply(ctx, tx, customerID, enums.CustomerTransactionDebt, amountCents, saleID, "")
}

// ReverseDebt takes a reversed credit sale back off the balance inside tx.
func (a *Accounts) ReverseDebt(ctx context.Context, tx *gorm.DB, customerID uuid.UUID, amountCents int64, saleID uuid.UUID, reason string) (*models.CustomerTransaction, error) {
	return a.apply(ctx, tx, customerID, enums.CustomerTransactionReversal, -amountCents, saleID, reason)
}

// Transactions lists a customer's ledger newest first.
func (a *Accounts) Transactions(ctx context.Context, customerID uuid.UUID, limit int) ([]models.CustomerTransaction, error) {
	if _, err := a.Get(ctx, customerID); err != nil {
		return nil, err
	}
	q := a.db.WithContext(ctx).Where("customer_id = ?", customerID).Order("created_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []models.CustomerTransaction
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (a *Accounts) apply(ctx context.Context, tx *gorm.DB, customerID uuid.UUID, kind enums.CustomerTransactionType, delta int64, saleID uuid.UUID, description string) (*models.CustomerTransaction, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	if delta == 0 || (kind == enums.CustomerTransactionDebt) != (delta > 0) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, ErrInvalidAmount, "amount must be positive")
	}

	res := tx.WithContext(ctx).
		Model(&models.Customer{}).
		Where("id = ?", customerID).
		Updates(map[string]any{
			"total_debt_cents": gorm.Expr("total_debt_cents + ?", delta),
			"updated_at":       time.Now().UTC(),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, ErrCustomerNotFound, "customer not found").
			WithDetails(map[string]any{"customerId": customerID.String()})
	}

	customer, err := GetTx(ctx, tx, customerID)
	if err != nil {
		return nil, err
	}

	ref := ReferenceSale
	entry := &models.CustomerTransaction{
		ID:                uuid.New(),
		CustomerID:        customerID,
		Type:              kind,
		AmountCents:       delta,
		BalanceAfterCents: customer.TotalDebtCents,
		ReferenceType:     &ref,
		ReferenceID:       &saleID,
	}
	if d := strings.TrimSpace(description); d != "" {
		entry.Description = &d
	}
	if err := tx.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, err
	}
	return entry, nil
}
