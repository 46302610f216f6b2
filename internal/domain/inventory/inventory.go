package inventory

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound          = errors.New("inventory: product not found")
	ErrInvalidQuantity   = errors.New("inventory: quantity must be zero or greater")
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrUnavailable marks transport failures talking to the inventory service.
	ErrUnavailable = errors.New("inventory: service unavailable")
)

// Product is the catalog entry served by the inventory service.
type Product struct {
	ID    int             `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	Image string          `json:"image,omitempty"`
}

// Stock is a point-in-time snapshot of how many units of a product remain.
type Stock struct {
	ProductID int `json:"id"`
	Amount    int `json:"amount"`
}

func NewStock(productID, amount int) (Stock, error) {
	if amount < 0 {
		return Stock{}, ErrInvalidQuantity
	}
	return Stock{ProductID: productID, Amount: amount}, nil
}

// Covers reports whether the snapshot can satisfy a request for amount units.
func (s Stock) Covers(amount int) bool {
	return amount <= s.Amount
}

// Deduct returns the stock left after taking quantity units.
func (s Stock) Deduct(quantity int) (Stock, error) {
	if quantity <= 0 {
		return s, ErrInvalidQuantity
	}
	if !s.Covers(quantity) {
		return s, ErrInsufficientStock
	}
	s.Amount -= quantity
	return s, nil
}

// StatusError is returned when the inventory service answers with a non-success status.
type StatusError struct {
	Endpoint string
	Code     int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("inventory: %s: unexpected status %d %s", e.Endpoint, e.Code, http.StatusText(e.Code))
}

// Is lets errors.Is(err, ErrNotFound) match a 404 answer.
func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.Code == http.StatusNotFound
}
