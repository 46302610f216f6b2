package cart

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/Zhima-Mochi/minishop-cart/internal/domain/inventory"
	"github.com/shopspring/decimal"
)

// LineItem is one product and its quantity. Display attributes are copied
// from the catalog when the product is first added.
type LineItem struct {
	ProductID int             `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Image     string          `json:"image,omitempty"`
	Amount    int             `json:"amount"`
}

// NewLineItem starts a line for p with a single unit.
func NewLineItem(p inventory.Product) LineItem {
	return LineItem{
		ProductID: p.ID,
		Name:      p.Name,
		Price:     p.Price,
		Image:     p.Image,
		Amount:    1,
	}
}

func (i LineItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Amount)))
}

// Cart is an immutable, insertion-ordered set of line items keyed by product id.
// Every mutation returns a new Cart and leaves the receiver untouched.
type Cart struct {
	items []LineItem
}

// New builds a cart, rejecting duplicate product ids and non-positive amounts.
func New(items ...LineItem) (Cart, error) {
	var c Cart
	for _, it := range items {
		next, err := c.Append(it)
		if err != nil {
			return Cart{}, err
		}
		c = next
	}
	return c, nil
}

// Items returns a copy of the lines in insertion order.
func (c Cart) Items() []LineItem {
	return slices.Clone(c.items)
}

func (c Cart) Len() int { return len(c.items) }

func (c Cart) IsEmpty() bool { return len(c.items) == 0 }

// Count is the number of units across all lines.
func (c Cart) Count() int {
	n := 0
	for _, it := range c.items {
		n += it.Amount
	}
	return n
}

func (c Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, it := range c.items {
		total = total.Add(it.Subtotal())
	}
	return total
}

func (c Cart) Find(productID int) (LineItem, bool) {
	if i := c.index(productID); i >= 0 {
		return c.items[i], true
	}
	return LineItem{}, false
}

func (c Cart) Append(item LineItem) (Cart, error) {
	if item.Amount <= 0 {
		return c, ErrInvalidQuantity
	}
	if c.index(item.ProductID) >= 0 {
		return c, fmt.Errorf("%w: %d", ErrAlreadyInCart, item.ProductID)
	}
	items := make([]LineItem, 0, len(c.items)+1)
	items = append(items, c.items...)
	return Cart{items: append(items, item)}, nil
}

func (c Cart) Remove(productID int) (Cart, error) {
	i := c.index(productID)
	if i < 0 {
		return c, fmt.Errorf("%w: %d", ErrNotFound, productID)
	}
	return Cart{items: slices.Delete(slices.Clone(c.items), i, i+1)}, nil
}

// WithAmount replaces the amount of one line in place; other lines keep their position.
func (c Cart) WithAmount(productID, amount int) (Cart, error) {
	if amount <= 0 {
		return c, ErrInvalidQuantity
	}
	i := c.index(productID)
	if i < 0 {
		return c, fmt.Errorf("%w: %d", ErrNotFound, productID)
	}
	items := slices.Clone(c.items)
	items[i].Amount = amount
	return Cart{items: items}, nil
}

// Retain keeps the lines for which keep returns true.
func (c Cart) Retain(keep func(LineItem) bool) Cart {
	items := make([]LineItem, 0, len(c.items))
	for _, it := range c.items {
		if keep(it) {
			items = append(items, it)
		}
	}
	return Cart{items: items}
}

func (c Cart) index(productID int) int {
	return slices.IndexFunc(c.items, func(it LineItem) bool { return it.ProductID == productID })
}

// MarshalJSON encodes the cart as a plain array of lines.
func (c Cart) MarshalJSON() ([]byte, error) {
	if c.items == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(c.items)
}

func (c *Cart) UnmarshalJSON(data []byte) error {
	var items []LineItem
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	decoded, err := New(items...)
	if err != nil {
		return err
	}
	*c = decoded
	return nil
}
