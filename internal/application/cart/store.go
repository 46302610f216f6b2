package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	domcart "github.com/Zhima-Mochi/minishop-cart/internal/domain/cart"
	"github.com/Zhima-Mochi/minishop-cart/internal/domain/inventory"
	domoutbox "github.com/Zhima-Mochi/minishop-cart/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/kv"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultKey is the persistence key of the storefront cart.
	DefaultKey = "@RocketShoes:cart"

	storeService               = "cart-store"
	spanPrefix                 = "UC."
	useCaseAddProduct          = "cart.add_product"
	useCaseRemoveProduct       = "cart.remove_product"
	useCaseUpdateAmount        = "cart.update_product_amount"
	useCaseCheckOut            = "cart.checkout"
	publishPeer                = "outbox"
	endpointChanged            = "cart.changed"
	publishTimeout             = 300 * time.Millisecond
	defaultCheckoutConcurrency = 8
)

// Store owns one cart. Mutations are serialized; each one either commits a new
// persisted cart or leaves the previous one in place and emits an error notice.
type Store struct {
	key                 string
	inventory           InventoryService
	kv                  KeyValueStore
	notifier            Notifier
	publisher           domoutbox.Publisher
	checkoutConcurrency int

	mu      sync.Mutex
	current atomic.Pointer[domcart.Cart]

	listenersMu  sync.RWMutex
	listeners    map[int]Listener
	nextListener int

	log          observability.Logger
	tracer       observability.Tracer
	reqCounter   observability.Counter
	durHistogram observability.Histogram
	extCounter   observability.Counter
	extHistogram observability.Histogram
}

type Option func(*Store)

// WithKey overrides DefaultKey.
func WithKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

// WithPublisher mirrors committed carts onto an event bus.
func WithPublisher(p domoutbox.Publisher) Option {
	return func(s *Store) { s.publisher = p }
}

// WithCheckoutConcurrency caps the number of line items processed at once during checkout.
func WithCheckoutConcurrency(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.checkoutConcurrency = n
		}
	}
}

// NewStore restores the cart persisted under the store key. A missing or
// unreadable blob starts an empty cart.
func NewStore(ctx context.Context, inv InventoryService, store KeyValueStore, notifier Notifier, tel observability.Observability, opts ...Option) *Store {
	tel = observability.Or(tel)
	metrics := tel.Metrics()
	s := &Store{
		key:                 DefaultKey,
		inventory:           inv,
		kv:                  store,
		notifier:            notifier,
		checkoutConcurrency: defaultCheckoutConcurrency,
		listeners:           make(map[int]Listener),
		tracer:              tel.Tracer(),
		reqCounter:          metrics.Counter(observability.MUsecaseRequests),
		durHistogram:        metrics.Histogram(observability.MUsecaseDuration),
		extCounter:          metrics.Counter(observability.MExternalRequests),
		extHistogram:        metrics.Histogram(observability.MExternalRequestDuration),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.notifier == nil {
		s.notifier = nopNotifier{}
	}
	s.log = tel.Logger().With(
		observability.F("service", storeService),
		observability.F("cart_key", s.key),
	)

	restored := s.restore(ctx)
	s.current.Store(&restored)
	return s
}

func (s *Store) restore(ctx context.Context) domcart.Cart {
	logger := logctx.FromOr(ctx, s.log)
	blob, err := s.kv.Get(ctx, s.key)
	if errors.Is(err, kv.ErrNotFound) {
		logger.Debug("cart_restore_empty")
		return domcart.Cart{}
	}
	if err != nil {
		logger.Warn("cart_restore_failed", observability.F("error", err))
		return domcart.Cart{}
	}
	var c domcart.Cart
	if err := json.Unmarshal(blob, &c); err != nil {
		logger.Warn("cart_restore_corrupt", observability.F("error", err))
		return domcart.Cart{}
	}
	logger.Info("cart_restored", observability.F("lines", c.Len()))
	return c
}

// Key is the persistence key this store writes to.
func (s *Store) Key() string { return s.key }

// Cart returns the current committed cart.
func (s *Store) Cart() domcart.Cart {
	return *s.current.Load()
}

// Items returns a copy of the current lines in insertion order.
func (s *Store) Items() []domcart.LineItem {
	return s.Cart().Items()
}

// Subscribe registers l for every committed cart and returns a func that removes it.
func (s *Store) Subscribe(l Listener) func() {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = l
	return func() {
		s.listenersMu.Lock()
		defer s.listenersMu.Unlock()
		delete(s.listeners, id)
	}
}

// AddProduct adds one unit of productID. A product already in the cart goes
// through the same path as UpdateProductAmount with its amount plus one.
func (s *Store) AddProduct(ctx context.Context, productID int) error {
	return s.instrument(ctx, useCaseAddProduct, "AddProduct", productID, func(ctx context.Context, logger observability.Logger) error {
		s.mu.Lock()
		defer s.mu.Unlock()

		current := s.Cart()
		if existing, ok := current.Find(productID); ok {
			logger.Debug("cart_product_present", observability.F("amount", existing.Amount))
			return s.updateAmount(ctx, current, productID, existing.Amount+1)
		}

		product, err := s.inventory.GetProduct(ctx, productID)
		if err != nil {
			s.notifier.Error(ctx, MsgAddFailed)
			return fmt.Errorf("cart: add product %d: %w: %w", productID, domcart.ErrInventoryUnavailable, err)
		}
		product.ID = productID

		inStock, err := s.hasStock(ctx, productID, 1)
		if err != nil {
			s.notifier.Error(ctx, MsgAddFailed)
			return fmt.Errorf("cart: add product %d: %w: %w", productID, domcart.ErrInventoryUnavailable, err)
		}
		if !inStock {
			return fmt.Errorf("cart: add product %d: %w", productID, domcart.ErrOutOfStock)
		}

		next, err := current.Append(domcart.NewLineItem(product))
		if err != nil {
			s.notifier.Error(ctx, MsgAddFailed)
			return fmt.Errorf("cart: add product %d: %w", productID, err)
		}
		if err := s.commit(ctx, next); err != nil {
			s.notifier.Error(ctx, MsgAddFailed)
			return fmt.Errorf("cart: add product %d: %w", productID, err)
		}
		return nil
	})
}

// RemoveProduct drops the line for productID. Removing a product that is not
// in the cart is an error.
func (s *Store) RemoveProduct(ctx context.Context, productID int) error {
	return s.instrument(ctx, useCaseRemoveProduct, "RemoveProduct", productID, func(ctx context.Context, _ observability.Logger) error {
		s.mu.Lock()
		defer s.mu.Unlock()

		next, err := s.Cart().Remove(productID)
		if err != nil {
			s.notifier.Error(ctx, MsgRemoveFailed)
			return fmt.Errorf("cart: remove product: %w", err)
		}
		if err := s.commit(ctx, next); err != nil {
			s.notifier.Error(ctx, MsgRemoveFailed)
			return fmt.Errorf("cart: remove product %d: %w", productID, err)
		}
		return nil
	})
}

// UpdateProductAmount sets the quantity of a product already in the cart after
// checking it against current stock.
func (s *Store) UpdateProductAmount(ctx context.Context, req UpdateProductAmount) error {
	return s.instrument(ctx, useCaseUpdateAmount, "UpdateProductAmount", req.ProductID, func(ctx context.Context, _ observability.Logger) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.updateAmount(ctx, s.Cart(), req.ProductID, req.Amount)
	})
}

// updateAmount expects s.mu to be held.
func (s *Store) updateAmount(ctx context.Context, current domcart.Cart, productID, amount int) error {
	if amount <= 0 {
		s.notifier.Error(ctx, MsgUpdateFailed)
		return fmt.Errorf("cart: update product %d: %w", productID, domcart.ErrInvalidQuantity)
	}
	if _, ok := current.Find(productID); !ok {
		s.notifier.Error(ctx, MsgUpdateFailed)
		return fmt.Errorf("cart: update product: %w: %d", domcart.ErrNotFound, productID)
	}

	inStock, err := s.hasStock(ctx, productID, amount)
	if err != nil {
		s.notifier.Error(ctx, MsgUpdateFailed)
		return fmt.Errorf("cart: update product %d: %w: %w", productID, domcart.ErrInventoryUnavailable, err)
	}
	if !inStock {
		return fmt.Errorf("cart: update product %d: %w", productID, domcart.ErrOutOfStock)
	}

	next, err := current.WithAmount(productID, amount)
	if err != nil {
		s.notifier.Error(ctx, MsgUpdateFailed)
		return fmt.Errorf("cart: update product %d: %w", productID, err)
	}
	if err := s.commit(ctx, next); err != nil {
		s.notifier.Error(ctx, MsgUpdateFailed)
		return fmt.Errorf("cart: update product %d: %w", productID, err)
	}
	return nil
}

// hasStock reports whether amount units of productID are available. A
// non-success answer from the inventory counts as out of stock; transport
// failures are returned so the caller can report its own notice. The result
// may be stale by the time the caller commits.
func (s *Store) hasStock(ctx context.Context, productID, amount int) (bool, error) {
	logger := logctx.FromOr(ctx, s.log)
	stock, err := s.inventory.GetStock(ctx, productID)

	var statusErr *inventory.StatusError
	switch {
	case errors.As(err, &statusErr):
		logger.Info("stock_check_rejected", observability.F("status_code", statusErr.Code))
		s.notifier.Error(ctx, MsgOutOfStock)
		return false, nil
	case err != nil:
		return false, err
	case !stock.Covers(amount):
		logger.Info("stock_insufficient",
			observability.F("requested", amount),
			observability.F("available", stock.Amount),
		)
		s.notifier.Error(ctx, MsgOutOfStock)
		return false, nil
	}
	return true, nil
}

// commit persists next and only then makes it the current cart. It expects s.mu to be held.
func (s *Store) commit(ctx context.Context, next domcart.Cart) error {
	if err := s.persist(ctx, next); err != nil {
		return err
	}
	s.apply(ctx, next)
	return nil
}

func (s *Store) persist(ctx context.Context, next domcart.Cart) error {
	blob, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("%w: encode: %w", domcart.ErrPersistence, err)
	}
	if err := s.kv.Set(ctx, s.key, blob); err != nil {
		return fmt.Errorf("%w: %w", domcart.ErrPersistence, err)
	}
	return nil
}

// apply makes next the current cart, notifies listeners and publishes the
// change. It expects s.mu to be held.
func (s *Store) apply(ctx context.Context, next domcart.Cart) {
	s.current.Store(&next)

	s.listenersMu.RLock()
	for _, l := range s.listeners {
		s.notifyListener(ctx, l, next.Items())
	}
	s.listenersMu.RUnlock()

	if err := s.publish(ctx, endpointChanged, domcart.NewChangedEvent(s.key, next)); err != nil {
		logctx.FromOr(ctx, s.log).Warn("cart_event_publish_failed",
			observability.F("event", endpointChanged),
			observability.F("error", err),
		)
	}
}

// notifyListener runs after the change is committed, so a panicking listener
// is logged and never fails the operation.
func (s *Store) notifyListener(ctx context.Context, l Listener, items []domcart.LineItem) {
	defer func() {
		if r := recover(); r != nil {
			logctx.FromOr(ctx, s.log).Error("cart_listener_panic",
				observability.F("panic", r),
				observability.F("stack", string(debug.Stack())),
			)
		}
	}()
	l(items)
}

func (s *Store) publish(ctx context.Context, endpoint string, event domoutbox.Event) error {
	if s.publisher == nil || event == nil {
		return nil
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	start := time.Now()
	err := s.publisher.Publish(pubCtx, event)
	outcome := "success"
	if err != nil {
		outcome = "error"
	} else if pubCtx.Err() != nil {
		outcome = "canceled"
		err = pubCtx.Err()
	}
	cancel()

	s.extCounter.Add(1,
		observability.L("peer", publishPeer),
		observability.L("endpoint", endpoint),
		observability.L("outcome", outcome),
	)
	s.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("peer", publishPeer),
		observability.L("endpoint", endpoint),
	)
	return err
}

// instrument wraps one use case in a span, the use case metrics and a single
// use_case_done log line.
func (s *Store) instrument(ctx context.Context, useCase, spanName string, productID int, fn func(ctx context.Context, logger observability.Logger) error) (err error) {
	ctx, span := s.tracer.Start(ctx, spanPrefix+spanName,
		attribute.String("use_case", useCase),
		attribute.String("cart.key", s.key),
		attribute.Int("product.id", productID),
	)
	fields := []observability.Field{observability.F("use_case", useCase)}
	if productID != 0 {
		fields = append(fields, observability.F("product_id", productID))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			observability.F("trace_id", sc.TraceID().String()),
			observability.F("span_id", sc.SpanID().String()),
		)
	}
	ctx, logger := logctx.Enrich(ctx, s.log, fields...)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			s.notifier.Error(ctx, failureMessage(useCase))
			err = fmt.Errorf("cart: %s: panic: %v", useCase, r)
		}

		outcome, statusText := "success", "OK"
		if err != nil {
			outcome, statusText = "error", statusFromError(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, statusText)
		} else {
			span.SetStatus(codes.Ok, statusText)
		}
		span.End()

		latency := time.Since(start).Seconds()
		s.reqCounter.Add(1,
			observability.L("use_case", useCase),
			observability.L("outcome", outcome),
		)
		s.durHistogram.Observe(latency,
			observability.L("use_case", useCase),
		)

		doneFields := []observability.Field{
			observability.F("outcome", outcome),
			observability.F("status", statusText),
			observability.F("latency_seconds", latency),
			observability.F("lines", s.Cart().Len()),
		}
		if err != nil {
			doneFields = append(doneFields, observability.F("error", err.Error()))
		}
		logger.Info("use_case_done", doneFields...)
	}()

	return fn(ctx, logger)
}

func statusFromError(err error) string {
	switch {
	case errors.Is(err, domcart.ErrInvalidQuantity):
		return "INVALID_QUANTITY"
	case errors.Is(err, domcart.ErrOutOfStock):
		return "OUT_OF_STOCK"
	case errors.Is(err, domcart.ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, domcart.ErrEmptyCart):
		return "EMPTY_CART"
	case errors.Is(err, domcart.ErrCheckoutIncomplete):
		return "CHECKOUT_INCOMPLETE"
	case errors.Is(err, domcart.ErrInventoryUnavailable):
		return "INVENTORY_UNAVAILABLE"
	case errors.Is(err, domcart.ErrPersistence):
		return "PERSIST_FAILED"
	default:
		return "FAILED"
	}
}

func failureMessage(useCase string) string {
	switch useCase {
	case useCaseAddProduct:
		return MsgAddFailed
	case useCaseRemoveProduct:
		return MsgRemoveFailed
	case useCaseUpdateAmount:
		return MsgUpdateFailed
	default:
		return MsgCheckoutFailed
	}
}

type nopNotifier struct{}

func (nopNotifier) Error(context.Context, string)   {}
func (nopNotifier) Success(context.Context, string) {}
