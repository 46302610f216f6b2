package inventory

import (
	"context"
)

// Catalog is the storage behind the reference inventory service.
type Catalog interface {
	Products(ctx context.Context) ([]Product, error)
	Product(ctx context.Context, id int) (Product, error)
	Stock(ctx context.Context, productID int) (Stock, error)
	SetStock(ctx context.Context, stock Stock) error
}
