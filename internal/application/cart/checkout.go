package cart

import (
	"context"
	"errors"
	"fmt"

	domcart "github.com/Zhima-Mochi/minishop-cart/internal/domain/cart"
	"github.com/Zhima-Mochi/minishop-cart/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// Receipt lists what a checkout purchased and what stayed in the cart.
type Receipt struct {
	Purchased []domcart.LineItem
	Failed    []domcart.LineItem
	Total     decimal.Decimal
}

// CheckOut decrements stock for every line and waits for all of them. Lines
// that were purchased leave the cart; lines that failed stay and the returned
// error wraps ErrCheckoutIncomplete together with each item's failure. When
// the reduced cart cannot be written it still becomes current, and the error
// wraps ErrPersistence next to the receipt of what was bought.
func (s *Store) CheckOut(ctx context.Context) (*Receipt, error) {
	var receipt *Receipt
	err := s.instrument(ctx, useCaseCheckOut, "CheckOut", 0, func(ctx context.Context, logger observability.Logger) error {
		s.mu.Lock()
		defer s.mu.Unlock()

		current := s.Cart()
		if current.IsEmpty() {
			s.notifier.Error(ctx, MsgCheckoutFailed)
			return fmt.Errorf("cart: checkout: %w", domcart.ErrEmptyCart)
		}

		items := current.Items()
		results := make([]error, len(items))
		var g errgroup.Group
		g.SetLimit(s.checkoutConcurrency)
		for i, item := range items {
			g.Go(func() error {
				results[i] = s.purchase(ctx, item)
				return nil
			})
		}
		_ = g.Wait()

		receipt = &Receipt{Total: decimal.Zero}
		failed := make(map[int]struct{})
		var itemErrs error
		for i, item := range items {
			if results[i] != nil {
				failed[item.ProductID] = struct{}{}
				receipt.Failed = append(receipt.Failed, item)
				itemErrs = multierr.Append(itemErrs, results[i])
				logger.Warn("checkout_item_failed",
					observability.F("product_id", item.ProductID),
					observability.F("amount", item.Amount),
					observability.F("error", results[i]),
				)
				continue
			}
			receipt.Purchased = append(receipt.Purchased, item)
			receipt.Total = receipt.Total.Add(item.Subtotal())
		}

		if len(receipt.Purchased) > 0 {
			next := current.Retain(func(it domcart.LineItem) bool {
				_, keep := failed[it.ProductID]
				return keep
			})
			// Stock is already gone for the purchased lines, so the cart moves
			// forward even when it cannot be written.
			if err := s.persist(ctx, next); err != nil {
				logger.Error("checkout_persist_failed",
					observability.F("purchased", len(receipt.Purchased)),
					observability.F("error", err),
				)
				s.apply(ctx, next)
				s.notifier.Error(ctx, MsgCheckoutFailed)
				if itemErrs != nil {
					return fmt.Errorf("cart: checkout: %w: %w: %w", err, domcart.ErrCheckoutIncomplete, itemErrs)
				}
				return fmt.Errorf("cart: checkout: %w", err)
			}
			s.apply(ctx, next)
		}

		if itemErrs != nil {
			s.notifier.Error(ctx, MsgCheckoutFailed)
			return fmt.Errorf("cart: checkout: %w: %w", domcart.ErrCheckoutIncomplete, itemErrs)
		}

		s.notifier.Success(ctx, MsgCheckoutDone)
		return nil
	})
	return receipt, err
}

// purchase reads the current stock of one line and writes it back decremented.
func (s *Store) purchase(ctx context.Context, item domcart.LineItem) error {
	stock, err := s.inventory.GetStock(ctx, item.ProductID)
	if err != nil {
		return fmt.Errorf("product %d: %w: %w", item.ProductID, domcart.ErrInventoryUnavailable, err)
	}
	left, err := stock.Deduct(item.Amount)
	if errors.Is(err, inventory.ErrInsufficientStock) {
		return fmt.Errorf("product %d: %w", item.ProductID, domcart.ErrOutOfStock)
	}
	if err != nil {
		return fmt.Errorf("product %d: %w", item.ProductID, err)
	}
	left.ProductID = item.ProductID
	if _, err := s.inventory.PutStock(ctx, left); err != nil {
		return fmt.Errorf("product %d: %w: %w", item.ProductID, domcart.ErrInventoryUnavailable, err)
	}
	return nil
}
