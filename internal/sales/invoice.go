package sales

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// InvoiceNumber derives the printed receipt number from the sale date (in the
// store's location) and the sale id.
func InvoiceNumber(saleDate time.Time, id uuid.UUID) string {
	suffix := strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:8])
	return "INV-" + saleDate.Format("20060102") + "-" + suffix
}
