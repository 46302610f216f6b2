package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	domain "github.com/Zhima-Mochi/minishop-cart/internal/domain/inventory"
)

// Seed is the on-disk shape of a catalog: a products list and a stock list,
// matching the fake API the storefront was developed against.
type Seed struct {
	Products []domain.Product `json:"products"`
	Stock    []domain.Stock   `json:"stock"`
}

// Catalog is an in-memory domain.Catalog.
type Catalog struct {
	mu       sync.RWMutex
	products map[int]domain.Product
	stock    map[int]domain.Stock
}

var _ domain.Catalog = (*Catalog)(nil)

func NewCatalog(seed Seed) (*Catalog, error) {
	c := &Catalog{
		products: make(map[int]domain.Product, len(seed.Products)),
		stock:    make(map[int]domain.Stock, len(seed.Stock)),
	}
	for _, p := range seed.Products {
		c.products[p.ID] = p
	}
	for _, s := range seed.Stock {
		if _, ok := c.products[s.ProductID]; !ok {
			return nil, fmt.Errorf("memory: stock for unknown product %d: %w", s.ProductID, domain.ErrNotFound)
		}
		if s.Amount < 0 {
			return nil, fmt.Errorf("memory: stock for product %d: %w", s.ProductID, domain.ErrInvalidQuantity)
		}
		c.stock[s.ProductID] = s
	}
	return c, nil
}

// ReadSeed decodes a seed document.
func ReadSeed(r io.Reader) (Seed, error) {
	var seed Seed
	if err := json.NewDecoder(r).Decode(&seed); err != nil {
		return Seed{}, fmt.Errorf("memory: decode seed: %w", err)
	}
	return seed, nil
}

// LoadCatalog builds a catalog from the seed file at path.
func LoadCatalog(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("memory: open seed: %w", err)
	}
	defer f.Close()

	seed, err := ReadSeed(f)
	if err != nil {
		return nil, err
	}
	return NewCatalog(seed)
}

func (c *Catalog) Products(ctx context.Context) ([]domain.Product, error) {
	_ = ctx

	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]domain.Product, 0, len(c.products))
	for _, p := range c.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (c *Catalog) Product(ctx context.Context, id int) (domain.Product, error) {
	_ = ctx

	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.products[id]
	if !ok {
		return domain.Product{}, domain.ErrNotFound
	}
	return p, nil
}

// Stock returns the product's stock. Known products without a stock entry have none left.
func (c *Catalog) Stock(ctx context.Context, productID int) (domain.Stock, error) {
	_ = ctx

	c.mu.RLock()
	defer c.mu.RUnlock()

	if s, ok := c.stock[productID]; ok {
		return s, nil
	}
	if _, ok := c.products[productID]; ok {
		return domain.Stock{ProductID: productID}, nil
	}
	return domain.Stock{}, domain.ErrNotFound
}

func (c *Catalog) SetStock(ctx context.Context, stock domain.Stock) error {
	_ = ctx
	if stock.Amount < 0 {
		return domain.ErrInvalidQuantity
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.products[stock.ProductID]; !ok {
		return domain.ErrNotFound
	}
	c.stock[stock.ProductID] = stock
	return nil
}
