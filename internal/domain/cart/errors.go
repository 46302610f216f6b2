package cart

import "errors"

var (
	ErrNotFound             = errors.New("cart: product not in cart")
	ErrAlreadyInCart        = errors.New("cart: product already in cart")
	ErrOutOfStock           = errors.New("cart: requested quantity is out of stock")
	ErrInvalidQuantity      = errors.New("cart: amount must be greater than zero")
	ErrInventoryUnavailable = errors.New("cart: inventory unavailable")
	ErrEmptyCart            = errors.New("cart: cart is empty")
	ErrPersistence          = errors.New("cart: persist failed")
	ErrCheckoutIncomplete   = errors.New("cart: checkout incomplete")
)
