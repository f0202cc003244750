package cart

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/angelmondragon/counterpos/internal/promotions"
	pkgerrors "github.com/angelmondragon/counterpos/pkg/errors"
)

var (
	ErrAtMaxStock       = errors.New("quantity exceeds available stock")
	ErrInvalidQuantity  = errors.New("quantity must be at least 1")
	ErrInvalidDiscount  = errors.New("manual discount out of range")
	ErrLineNotFound     = errors.New("product not in cart")
	ErrCheckoutFinished = errors.New("checkout already finished")
)

// Product is the catalog snapshot a line is built from.
type Product struct {
	ID             uuid.UUID
	Name           string
	UnitPriceCents int64
	StockQuantity  int
}

// Line is one product in the cart. UnitPriceCents and MaxQuantity are
// captured when the line is first added.
type Line struct {
	ProductID           uuid.UUID `json:"productId"`
	ProductName         string    `json:"productName"`
	UnitPriceCents      int64     `json:"unitPriceCents"`
	Quantity            int       `json:"quantity"`
	ManualDiscountCents int64     `json:"manualDiscountCents"`
	MaxQuantity         int       `json:"maxQuantity"`
}

// Gross is unit price times quantity less the manual discount.
func (l Line) Gross() int64 {
	return l.UnitPriceCents*int64(l.Quantity) - l.ManualDiscountCents
}

// Cart is an in-memory, per-terminal collection of lines. It is safe for
// concurrent use; while a checkout holds the cart every mutation waits.
type Cart struct {
	mu    sync.Mutex
	lines []Line
}

func New() *Cart {
	return &Cart{}
}

// Add merges quantity into the product's line or creates one. A positive
// manualDiscount replaces the line's discount. The cart is left unchanged on error.
func (c *Cart) Add(p Product, quantity int, manualDiscount int64) error {
	if quantity < 1 {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, ErrInvalidQuantity, "quantity must be at least 1")
	}
	if manualDiscount < 0 {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, ErrInvalidDiscount, "manual discount must not be negative")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.indexOf(p.ID)
	line := Line{
		ProductID:      p.ID,
		ProductName:    p.Name,
		UnitPriceCents: p.UnitPriceCents,
		MaxQuantity:    p.StockQuantity,
	}
	if idx >= 0 {
		line = c.lines[idx]
		line.MaxQuantity = p.StockQuantity
	}
	line.Quantity += quantity
	if manualDiscount > 0 {
		line.ManualDiscountCents = manualDiscount
	}

	if line.Quantity > line.MaxQuantity {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, ErrAtMaxStock, "quantity exceeds available stock").
			WithDetails(map[string]any{
				"productId":   p.ID.String(),
				"productName": line.ProductName,
				"available":   line.MaxQuantity,
			})
	}
	if line.ManualDiscountCents > line.UnitPriceCents*int64(line.Quantity) {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, ErrInvalidDiscount, "manual discount exceeds line amount")
	}

	if idx >= 0 {
		c.lines[idx] = line
	} else {
		c.lines = append(c.lines, line)
	}
	return nil
}

// SetManualDiscount replaces the manual discount on an existing line.
func (c *Cart) SetManualDiscount(productID uuid.UUID, cents int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.indexOf(productID)
	if idx < 0 {
		return lineNotFound(productID)
	}
	line := c.lines[idx]
	if cents < 0 || cents > line.UnitPriceCents*int64(line.Quantity) {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, ErrInvalidDiscount, "manual discount out of range")
	}
	c.lines[idx].ManualDiscountCents = cents
	return nil
}

// Decrement lowers the line by one unit and drops it at zero.
func (c *Cart) Decrement(productID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.indexOf(productID)
	if idx < 0 {
		return lineNotFound(productID)
	}
	if c.lines[idx].Quantity <= 1 {
		c.removeAt(idx)
		return nil
	}
	line := &c.lines[idx]
	line.Quantity--
	if max := line.UnitPriceCents * int64(line.Quantity); line.ManualDiscountCents > max {
		line.ManualDiscountCents = max
	}
	return nil
}

func (c *Cart) Remove(productID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.indexOf(productID)
	if idx < 0 {
		return lineNotFound(productID)
	}
	c.removeAt(idx)
	return nil
}

func (c *Cart) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = nil
}

// Lines returns a copy of the lines in insertion order.
func (c *Cart) Lines() []Line {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.copyLines()
}

func (c *Cart) IsEmpty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lines) == 0
}

// PromotionLines converts the cart into resolver input.
func (c *Cart) PromotionLines() []promotions.Line {
	return ToPromotionLines(c.Lines())
}

// LineTotal is the line gross less its resolved promotion discount.
func (c *Cart) LineTotal(productID uuid.UUID, result promotions.ApplicationResult) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.indexOf(productID)
	if idx < 0 {
		return 0, lineNotFound(productID)
	}
	return c.lines[idx].Gross() - result.DiscountFor(productID), nil
}

// GrandTotal is the sum of line grosses less the total promotion savings.
func (c *Cart) GrandTotal(result promotions.ApplicationResult) int64 {
	return Totals(c.Lines(), result).TotalCents
}

// Checkout takes exclusive hold of the cart until Complete or Release is called.
func (c *Cart) Checkout() *Hold {
	c.mu.Lock()
	return &Hold{cart: c, lines: c.copyLines()}
}

// Hold is an in-flight checkout's exclusive view of a cart.
type Hold struct {
	cart  *Cart
	lines []Line
	done  bool
}

// Lines are the lines captured when the hold was taken.
func (h *Hold) Lines() []Line {
	return h.lines
}

// Complete clears the cart and releases it. Call only after the sale committed.
func (h *Hold) Complete() error {
	if h.done {
		return ErrCheckoutFinished
	}
	h.done = true
	h.cart.lines = nil
	h.cart.mu.Unlock()
	return nil
}

// Release gives the cart back unchanged. It is a no-op after Complete.
func (h *Hold) Release() {
	if h.done {
		return
	}
	h.done = true
	h.cart.mu.Unlock()
}

func (c *Cart) indexOf(productID uuid.UUID) int {
	for i := range c.lines {
		if c.lines[i].ProductID == productID {
			return i
		}
	}
	return -1
}

func (c *Cart) removeAt(idx int) {
	c.lines = append(c.lines[:idx], c.lines[idx+1:]...)
}

func (c *Cart) copyLines() []Line {
	out := make([]Line, len(c.lines))
	copy(out, c.lines)
	return out
}

func lineNotFound(productID uuid.UUID) error {
	return pkgerrors.Wrap(pkgerrors.CodeNotFound, ErrLineNotFound, "product not in cart").
		WithDetails(map[string]any{"productId": productID.String()})
}
