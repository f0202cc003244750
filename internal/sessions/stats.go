package sessions

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/counterpos/pkg/db/models"
	"github.com/angelmondragon/counterpos/pkg/enums"
)

// Stats are the session's running totals, derived from its completed sales.
type Stats struct {
	SessionID         uuid.UUID                     `json:"sessionId"`
	SalesCount        int64                         `json:"salesCount"`
	RevenueCents      int64                         `json:"revenueCents"`
	CashRevenueCents  int64                         `json:"cashRevenueCents"`
	ByMethodCents     map[enums.PaymentMethod]int64 `json:"byMethodCents"`
	AverageOrderCents int64                         `json:"averageOrderCents"`
	ProfitCents       int64                         `json:"profitCents"`
	ReversedCount     int64                         `json:"reversedCount"`
	ExpectedCashCents int64                         `json:"expectedCashCents"`
}

type methodTotal struct {
	PaymentMethod enums.PaymentMethod
	Count         int64
	Total         int64
}

// Stats aggregates the session's sales by query; nothing is kept as a counter.
func (m *Manager) Stats(ctx context.Context, sessionID uuid.UUID) (*Stats, error) {
	session, err := getSession(ctx, m.db, sessionID)
	if err != nil {
		return nil, err
	}

	var rows []methodTotal
	err = m.db.WithContext(ctx).
		Model(&models.Sale{}).
		Select("payment_method, COUNT(*) AS count, COALESCE(SUM(total_cents), 0) AS total").
		Where("session_id = ? AND status = ?", sessionID, enums.SaleStatusCompleted).
		Group("payment_method").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	stats := &Stats{SessionID: sessionID, ByMethodCents: map[enums.PaymentMethod]int64{}}
	for _, row := range rows {
		stats.SalesCount += row.Count
		stats.RevenueCents += row.Total
		stats.ByMethodCents[row.PaymentMethod] = row.Total
	}
	stats.CashRevenueCents = stats.ByMethodCents[enums.PaymentMethodCash]
	if stats.SalesCount > 0 {
		stats.AverageOrderCents = stats.RevenueCents / stats.SalesCount
	}

	var cost int64
	err = m.db.WithContext(ctx).
		Table("sale_items").
		Joins("JOIN sales ON sales.id = sale_items.sale_id").
		Where("sales.session_id = ? AND sales.status = ?", sessionID, enums.SaleStatusCompleted).
		Select("COALESCE(SUM(sale_items.cost_price_cents * sale_items.quantity), 0)").
		Scan(&cost).Error
	if err != nil {
		return nil, err
	}
	stats.ProfitCents = stats.RevenueCents - cost

	err = m.db.WithContext(ctx).
		Model(&models.Sale{}).
		Where("session_id = ? AND status IN ?", sessionID, []enums.SaleStatus{enums.SaleStatusRefunded, enums.SaleStatusVoided}).
		Count(&stats.ReversedCount).Error
	if err != nil {
		return nil, err
	}

	if session.ExpectedCashCents != nil {
		stats.ExpectedCashCents = *session.ExpectedCashCents
	} else {
		stats.ExpectedCashCents = session.OpeningCashCents + stats.CashRevenueCents
	}
	return stats, nil
}

func sumSales(ctx context.Context, conn *gorm.DB, sessionID uuid.UUID, method enums.PaymentMethod) (int64, error) {
	var total int64
	err := conn.WithContext(ctx).
		Model(&models.Sale{}).
		Where("session_id = ? AND status = ? AND payment_method = ?", sessionID, enums.SaleStatusCompleted, method).
		Select("COALESCE(SUM(total_cents), 0)").
		Scan(&total).Error
	return total, err
}
