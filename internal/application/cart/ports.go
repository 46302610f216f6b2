package cart

import (
	"context"

	domcart "github.com/Zhima-Mochi/minishop-cart/internal/domain/cart"
	"github.com/Zhima-Mochi/minishop-cart/internal/domain/inventory"
)

// InventoryService is the remote catalog and stock endpoint.
type InventoryService interface {
	GetProduct(ctx context.Context, productID int) (inventory.Product, error)
	GetStock(ctx context.Context, productID int) (inventory.Stock, error)
	PutStock(ctx context.Context, stock inventory.Stock) (inventory.Stock, error)
}

// KeyValueStore persists the serialized cart under a single key.
// Get returns kv.ErrNotFound when nothing was stored yet.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Notifier delivers user-facing messages. Calls are fire-and-forget.
type Notifier interface {
	Error(ctx context.Context, message string)
	Success(ctx context.Context, message string)
}

// Listener observes every committed cart. It runs while the store holds its
// write lock and must not call the store's mutating methods.
type Listener func(items []domcart.LineItem)

// UpdateProductAmount asks for an absolute quantity of one product.
type UpdateProductAmount struct {
	ProductID int
	Amount    int
}
