package cart

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"

	domcart "github.com/Zhima-Mochi/minishop-cart/internal/domain/cart"
	"github.com/Zhima-Mochi/minishop-cart/internal/domain/inventory"
	domoutbox "github.com/Zhima-Mochi/minishop-cart/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/kv"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// ---- fakes ----

type fakeInventory struct {
	mu         sync.Mutex
	products   map[int]inventory.Product
	stock      map[int]int
	productErr error
	stockErr   map[int]error
	putErr     map[int]error
	puts       []inventory.Stock
}

func newFakeInventory() *fakeInventory {
	return &fakeInventory{
		products: map[int]inventory.Product{},
		stock:    map[int]int{},
		stockErr: map[int]error{},
		putErr:   map[int]error{},
	}
}

func (f *fakeInventory) withProduct(id int, name string, price int64, stock int) *fakeInventory {
	f.products[id] = inventory.Product{ID: id, Name: name, Price: decimal.NewFromInt(price)}
	f.stock[id] = stock
	return f
}

func (f *fakeInventory) GetProduct(_ context.Context, id int) (inventory.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.productErr != nil {
		return inventory.Product{}, f.productErr
	}
	p, ok := f.products[id]
	if !ok {
		return inventory.Product{}, &inventory.StatusError{Endpoint: "products", Code: http.StatusNotFound}
	}
	return p, nil
}

func (f *fakeInventory) GetStock(_ context.Context, id int) (inventory.Stock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.stockErr[id]; err != nil {
		return inventory.Stock{}, err
	}
	amount, ok := f.stock[id]
	if !ok {
		return inventory.Stock{}, &inventory.StatusError{Endpoint: "stock", Code: http.StatusNotFound}
	}
	return inventory.Stock{ProductID: id, Amount: amount}, nil
}

func (f *fakeInventory) PutStock(_ context.Context, s inventory.Stock) (inventory.Stock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.putErr[s.ProductID]; err != nil {
		return inventory.Stock{}, err
	}
	f.stock[s.ProductID] = s.Amount
	f.puts = append(f.puts, s)
	return s, nil
}

func (f *fakeInventory) stockOf(id int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stock[id]
}

type notice struct {
	level   domcart.NoticeLevel
	message string
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []notice
}

func (n *recordingNotifier) Error(_ context.Context, msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice{domcart.NoticeError, msg})
}

func (n *recordingNotifier) Success(_ context.Context, msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice{domcart.NoticeSuccess, msg})
}

func (n *recordingNotifier) errors() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, x := range n.notices {
		if x.level == domcart.NoticeError {
			out = append(out, x.message)
		}
	}
	return out
}

type failingKV struct {
	*kv.Memory
	err error
}

func (f *failingKV) Set(context.Context, string, []byte) error { return f.err }

type unreadableKV struct {
	*kv.Memory
	err error
}

func (u *unreadableKV) Get(context.Context, string) ([]byte, error) { return nil, u.err }

type recordingPublisher struct {
	mu     sync.Mutex
	events []domoutbox.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e domoutbox.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

// ---- helpers ----

type fixture struct {
	inv      *fakeInventory
	kv       *kv.Memory
	notifier *recordingNotifier
	store    *Store
}

func newFixture(t *testing.T, inv *fakeInventory, seed string, opts ...Option) *fixture {
	t.Helper()
	mem := kv.NewMemory()
	if seed != "" {
		require.NoError(t, mem.Set(context.Background(), DefaultKey, []byte(seed)))
	}
	n := &recordingNotifier{}
	return &fixture{
		inv:      inv,
		kv:       mem,
		notifier: n,
		store:    NewStore(context.Background(), inv, mem, n, nil, opts...),
	}
}

func (f *fixture) persisted(t *testing.T) []domcart.LineItem {
	t.Helper()
	blob, err := f.kv.Get(context.Background(), DefaultKey)
	require.NoError(t, err)
	var c domcart.Cart
	require.NoError(t, json.Unmarshal(blob, &c))
	return c.Items()
}

func amounts(items []domcart.LineItem) map[int]int {
	out := make(map[int]int, len(items))
	for _, it := range items {
		out[it.ProductID] = it.Amount
	}
	return out
}

func productIDs(items []domcart.LineItem) []int {
	out := make([]int, 0, len(items))
	for _, it := range items {
		out = append(out, it.ProductID)
	}
	return out
}

// ---- AddProduct ----

func TestAddProduct_EmptyCartAddsOneUnitWithCatalogAttributes(t *testing.T) {
	f := newFixture(t, newFakeInventory().withProduct(1, "Shoe", 10, 5), "")

	require.NoError(t, f.store.AddProduct(context.Background(), 1))

	items := f.store.Items()
	require.Len(t, items, 1)
	require.Equal(t, 1, items[0].ProductID)
	require.Equal(t, "Shoe", items[0].Name)
	require.True(t, items[0].Price.Equal(decimal.NewFromInt(10)))
	require.Equal(t, 1, items[0].Amount)
	require.Empty(t, f.notifier.notices)

	persisted := f.persisted(t)
	require.Equal(t, map[int]int{1: 1}, amounts(persisted))
	require.Equal(t, "Shoe", persisted[0].Name)
	require.True(t, persisted[0].Price.Equal(decimal.NewFromInt(10)))
}

func TestAddProduct_ExistingLineIncrementsAmount(t *testing.T) {
	f := newFixture(t, newFakeInventory().withProduct(1, "Shoe", 10, 5), `[{"id":1,"name":"Shoe","price":10,"amount":2}]`)

	require.NoError(t, f.store.AddProduct(context.Background(), 1))

	require.Equal(t, map[int]int{1: 3}, amounts(f.store.Items()))
	require.Equal(t, map[int]int{1: 3}, amounts(f.persisted(t)))
}

func TestAddProduct_ExistingLineOutOfStock(t *testing.T) {
	f := newFixture(t, newFakeInventory().withProduct(1, "Shoe", 10, 3), `[{"id":1,"name":"Shoe","price":10,"amount":3}]`)

	err := f.store.AddProduct(context.Background(), 1)

	require.ErrorIs(t, err, domcart.ErrOutOfStock)
	require.Equal(t, map[int]int{1: 3}, amounts(f.store.Items()))
	require.Equal(t, []string{MsgOutOfStock}, f.notifier.errors())
}

func TestAddProduct_ProductLookupFailureLeavesCartUntouched(t *testing.T) {
	f := newFixture(t, newFakeInventory(), "")

	err := f.store.AddProduct(context.Background(), 7)

	require.ErrorIs(t, err, domcart.ErrInventoryUnavailable)
	require.ErrorIs(t, err, inventory.ErrNotFound)
	require.Empty(t, f.store.Items())
	require.Equal(t, []string{MsgAddFailed}, f.notifier.errors())

	_, getErr := f.kv.Get(context.Background(), DefaultKey)
	require.ErrorIs(t, getErr, kv.ErrNotFound)
}

func TestAddProduct_NoStockReportsOutOfStockOnly(t *testing.T) {
	f := newFixture(t, newFakeInventory().withProduct(1, "Shoe", 10, 0), "")

	err := f.store.AddProduct(context.Background(), 1)

	require.ErrorIs(t, err, domcart.ErrOutOfStock)
	require.Empty(t, f.store.Items())
	require.Equal(t, []string{MsgOutOfStock}, f.notifier.errors())
}

func TestAddProduct_StockStatusErrorCountsAsOutOfStock(t *testing.T) {
	inv := newFakeInventory().withProduct(1, "Shoe", 10, 5)
	inv.stockErr[1] = &inventory.StatusError{Endpoint: "stock", Code: http.StatusInternalServerError}
	f := newFixture(t, inv, "")

	err := f.store.AddProduct(context.Background(), 1)

	require.ErrorIs(t, err, domcart.ErrOutOfStock)
	require.Equal(t, []string{MsgOutOfStock}, f.notifier.errors())
}

func TestAddProduct_StockTransportFailureReportsAddFailed(t *testing.T) {
	inv := newFakeInventory().withProduct(1, "Shoe", 10, 5)
	inv.stockErr[1] = inventory.ErrUnavailable
	f := newFixture(t, inv, "")

	err := f.store.AddProduct(context.Background(), 1)

	require.ErrorIs(t, err, domcart.ErrInventoryUnavailable)
	require.Empty(t, f.store.Items())
	require.Equal(t, []string{MsgAddFailed}, f.notifier.errors())
}

func TestAddProduct_PersistFailureKeepsPreviousState(t *testing.T) {
	inv := newFakeInventory().withProduct(1, "Shoe", 10, 5)
	n := &recordingNotifier{}
	store := NewStore(context.Background(), inv, &failingKV{Memory: kv.NewMemory(), err: errors.New("disk full")}, n, nil)

	err := store.AddProduct(context.Background(), 1)

	require.ErrorIs(t, err, domcart.ErrPersistence)
	require.Empty(t, store.Items())
	require.Equal(t, []string{MsgAddFailed}, n.errors())
}

// ---- UpdateProductAmount ----

func TestUpdateProductAmount_NonPositiveIsRejected(t *testing.T) {
	for _, amount := range []int{0, -3} {
		f := newFixture(t, newFakeInventory().withProduct(1, "Shoe", 10, 5), `[{"id":1,"name":"Shoe","price":10,"amount":2}]`)

		err := f.store.UpdateProductAmount(context.Background(), UpdateProductAmount{ProductID: 1, Amount: amount})

		require.ErrorIs(t, err, domcart.ErrInvalidQuantity)
		require.Equal(t, map[int]int{1: 2}, amounts(f.store.Items()))
		require.Equal(t, []string{MsgUpdateFailed}, f.notifier.errors())
	}
}

func TestUpdateProductAmount_AboveStockIsRejected(t *testing.T) {
	f := newFixture(t, newFakeInventory().withProduct(1, "Shoe", 10, 3), `[{"id":1,"name":"Shoe","price":10,"amount":2}]`)

	err := f.store.UpdateProductAmount(context.Background(), UpdateProductAmount{ProductID: 1, Amount: 10})

	require.ErrorIs(t, err, domcart.ErrOutOfStock)
	require.Equal(t, map[int]int{1: 2}, amounts(f.store.Items()))
	require.Equal(t, []string{MsgOutOfStock}, f.notifier.errors())
}

func TestUpdateProductAmount_ReplacesInPlace(t *testing.T) {
	inv := newFakeInventory().
		withProduct(1, "Shoe", 10, 5).
		withProduct(2, "Boot", 20, 5).
		withProduct(3, "Sock", 1, 5)
	f := newFixture(t, inv, `[{"id":1,"amount":1},{"id":2,"amount":1},{"id":3,"amount":1}]`)

	require.NoError(t, f.store.UpdateProductAmount(context.Background(), UpdateProductAmount{ProductID: 2, Amount: 4}))

	require.Equal(t, []int{1, 2, 3}, productIDs(f.store.Items()))
	require.Equal(t, map[int]int{1: 1, 2: 4, 3: 1}, amounts(f.store.Items()))
	require.Equal(t, []int{1, 2, 3}, productIDs(f.persisted(t)))
	require.Equal(t, map[int]int{1: 1, 2: 4, 3: 1}, amounts(f.persisted(t)))
}

func TestUpdateProductAmount_ProductNotInCart(t *testing.T) {
	f := newFixture(t, newFakeInventory().withProduct(1, "Shoe", 10, 5), "")

	err := f.store.UpdateProductAmount(context.Background(), UpdateProductAmount{ProductID: 1, Amount: 2})

	require.ErrorIs(t, err, domcart.ErrNotFound)
	require.Empty(t, f.store.Items())
	require.Equal(t, []string{MsgUpdateFailed}, f.notifier.errors())
}

// ---- RemoveProduct ----

func TestRemoveProduct_AbsentIsNotFound(t *testing.T) {
	f := newFixture(t, newFakeInventory(), "")

	err := f.store.RemoveProduct(context.Background(), 99)

	require.ErrorIs(t, err, domcart.ErrNotFound)
	require.Empty(t, f.store.Items())
	require.Equal(t, []string{MsgRemoveFailed}, f.notifier.errors())
}

func TestRemoveProduct_LastLineEmptiesCart(t *testing.T) {
	f := newFixture(t, newFakeInventory(), `[{"id":1,"amount":1}]`)

	require.NoError(t, f.store.RemoveProduct(context.Background(), 1))

	require.Empty(t, f.store.Items())
	require.Empty(t, f.persisted(t))
	blob, err := f.kv.Get(context.Background(), DefaultKey)
	require.NoError(t, err)
	require.JSONEq(t, `[]`, string(blob))
}

func TestRemoveProduct_KeepsOthersInOrder(t *testing.T) {
	f := newFixture(t, newFakeInventory(), `[{"id":1,"amount":1},{"id":2,"amount":2},{"id":3,"amount":3}]`)

	require.NoError(t, f.store.RemoveProduct(context.Background(), 2))

	require.Equal(t, []int{1, 3}, productIDs(f.store.Items()))
	require.Equal(t, map[int]int{1: 1, 3: 3}, amounts(f.persisted(t)))
}

// ---- restore / observers ----

func TestNewStore_CorruptBlobStartsEmpty(t *testing.T) {
	f := newFixture(t, newFakeInventory(), `{not json`)
	require.Empty(t, f.store.Items())
}

func TestNewStore_RejectedLinesStartEmpty(t *testing.T) {
	for name, blob := range map[string]string{
		"zero amount":   `[{"id":1,"amount":0}]`,
		"duplicate ids": `[{"id":1,"amount":1},{"id":1,"amount":2}]`,
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, newFakeInventory().withProduct(1, "Shoe", 10, 5), blob)

			require.Empty(t, f.store.Items())

			require.NoError(t, f.store.AddProduct(context.Background(), 1))
			require.Equal(t, map[int]int{1: 1}, amounts(f.persisted(t)))
		})
	}
}

func TestNewStore_UnreadableBackendStartsEmpty(t *testing.T) {
	mem := kv.NewMemory()
	require.NoError(t, mem.Set(context.Background(), DefaultKey, []byte(`[{"id":1,"amount":2}]`)))

	store := NewStore(context.Background(), newFakeInventory(), &unreadableKV{Memory: mem, err: errors.New("connection refused")}, nil, nil)

	require.Empty(t, store.Items())
}

func TestNewStore_CustomKey(t *testing.T) {
	mem := kv.NewMemory()
	require.NoError(t, mem.Set(context.Background(), "shop:cart:abc", []byte(`[{"id":5,"amount":2}]`)))

	store := NewStore(context.Background(), newFakeInventory(), mem, nil, nil, WithKey("shop:cart:abc"))

	require.Equal(t, "shop:cart:abc", store.Key())
	require.Equal(t, map[int]int{5: 2}, amounts(store.Items()))
}

func TestSubscribe_ReceivesCommittedCarts(t *testing.T) {
	pub := &recordingPublisher{}
	f := newFixture(t, newFakeInventory().withProduct(1, "Shoe", 10, 5), "", WithPublisher(pub))

	var seen [][]domcart.LineItem
	unsubscribe := f.store.Subscribe(func(items []domcart.LineItem) {
		seen = append(seen, items)
	})

	require.NoError(t, f.store.AddProduct(context.Background(), 1))
	require.Error(t, f.store.RemoveProduct(context.Background(), 2))
	unsubscribe()
	require.NoError(t, f.store.RemoveProduct(context.Background(), 1))

	require.Len(t, seen, 1)
	require.Equal(t, map[int]int{1: 1}, amounts(seen[0]))

	require.Len(t, pub.events, 2)
	changed, ok := pub.events[0].(domcart.ChangedEvent)
	require.True(t, ok)
	require.Equal(t, DefaultKey, changed.Key)
	require.Equal(t, 1, changed.Count)
}

func TestSubscribe_PanickingListenerDoesNotFailCommit(t *testing.T) {
	f := newFixture(t, newFakeInventory().withProduct(1, "Shoe", 10, 5), "")

	var after []domcart.LineItem
	f.store.Subscribe(func([]domcart.LineItem) { panic("listener bug") })
	f.store.Subscribe(func(items []domcart.LineItem) { after = items })

	require.NoError(t, f.store.AddProduct(context.Background(), 1))

	require.Equal(t, map[int]int{1: 1}, amounts(f.store.Items()))
	require.Equal(t, map[int]int{1: 1}, amounts(f.persisted(t)))
	require.Equal(t, map[int]int{1: 1}, amounts(after))
	require.Empty(t, f.notifier.errors())
}

func TestAddProduct_ConcurrentCallsAreSerialized(t *testing.T) {
	f := newFixture(t, newFakeInventory().withProduct(1, "Shoe", 10, 100), "")

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = f.store.AddProduct(context.Background(), 1)
		}()
	}
	wg.Wait()

	require.Equal(t, map[int]int{1: 10}, amounts(f.store.Items()))
	require.Equal(t, map[int]int{1: 10}, amounts(f.persisted(t)))
}

// ---- CheckOut ----

func TestCheckOut_EmptyCart(t *testing.T) {
	f := newFixture(t, newFakeInventory(), "")

	receipt, err := f.store.CheckOut(context.Background())

	require.ErrorIs(t, err, domcart.ErrEmptyCart)
	require.Nil(t, receipt)
	require.Equal(t, []string{MsgCheckoutFailed}, f.notifier.errors())
}

func TestCheckOut_DecrementsStockAndClearsCart(t *testing.T) {
	inv := newFakeInventory().
		withProduct(1, "Shoe", 10, 5).
		withProduct(2, "Boot", 20, 2)
	f := newFixture(t, inv, `[{"id":1,"price":10,"amount":2},{"id":2,"price":20,"amount":2}]`)

	receipt, err := f.store.CheckOut(context.Background())

	require.NoError(t, err)
	require.Len(t, receipt.Purchased, 2)
	require.Empty(t, receipt.Failed)
	require.True(t, receipt.Total.Equal(decimal.NewFromInt(60)), receipt.Total.String())
	require.Equal(t, 3, inv.stockOf(1))
	require.Equal(t, 0, inv.stockOf(2))
	require.Empty(t, f.store.Items())
	require.Empty(t, f.persisted(t))
	require.Equal(t, []notice{{domcart.NoticeSuccess, MsgCheckoutDone}}, f.notifier.notices)
}

func TestCheckOut_PartialFailureKeepsFailedLines(t *testing.T) {
	inv := newFakeInventory().
		withProduct(1, "Shoe", 10, 5).
		withProduct(2, "Boot", 20, 1).
		withProduct(3, "Sock", 1, 5)
	inv.putErr[3] = inventory.ErrUnavailable
	f := newFixture(t, inv, `[{"id":1,"price":10,"amount":1},{"id":2,"price":20,"amount":2},{"id":3,"price":1,"amount":1}]`,
		WithCheckoutConcurrency(2))

	receipt, err := f.store.CheckOut(context.Background())

	require.ErrorIs(t, err, domcart.ErrCheckoutIncomplete)
	require.ErrorIs(t, err, domcart.ErrOutOfStock)
	require.ErrorIs(t, err, domcart.ErrInventoryUnavailable)
	require.Equal(t, []int{1}, productIDs(receipt.Purchased))
	require.Equal(t, []int{2, 3}, productIDs(receipt.Failed))
	require.True(t, receipt.Total.Equal(decimal.NewFromInt(10)))

	require.Equal(t, 4, inv.stockOf(1))
	require.Equal(t, 1, inv.stockOf(2))
	require.Equal(t, []int{2, 3}, productIDs(f.store.Items()))
	require.Equal(t, []int{2, 3}, productIDs(f.persisted(t)))
	require.Equal(t, []string{MsgCheckoutFailed}, f.notifier.errors())
}

func TestCheckOut_AllFailedLeavesCartUnchanged(t *testing.T) {
	inv := newFakeInventory()
	inv.stockErr[1] = inventory.ErrUnavailable
	f := newFixture(t, inv, `[{"id":1,"amount":1}]`)

	receipt, err := f.store.CheckOut(context.Background())

	require.ErrorIs(t, err, domcart.ErrCheckoutIncomplete)
	require.Empty(t, receipt.Purchased)
	require.Equal(t, []int{1}, productIDs(f.store.Items()))
}

func TestCheckOut_PersistFailureStillDropsPurchasedLines(t *testing.T) {
	inv := newFakeInventory().withProduct(1, "Shoe", 10, 5)
	mem := kv.NewMemory()
	require.NoError(t, mem.Set(context.Background(), DefaultKey, []byte(`[{"id":1,"price":10,"amount":2}]`)))
	n := &recordingNotifier{}
	store := NewStore(context.Background(), inv, &failingKV{Memory: mem, err: errors.New("disk full")}, n, nil)

	receipt, err := store.CheckOut(context.Background())

	require.ErrorIs(t, err, domcart.ErrPersistence)
	require.NotErrorIs(t, err, domcart.ErrCheckoutIncomplete)
	require.Equal(t, []int{1}, productIDs(receipt.Purchased))
	require.True(t, receipt.Total.Equal(decimal.NewFromInt(20)))
	require.Equal(t, 3, inv.stockOf(1))
	require.Empty(t, store.Items())
	require.Equal(t, []string{MsgCheckoutFailed}, n.errors())

	// A retry must not buy the same lines again.
	_, err = store.CheckOut(context.Background())

	require.ErrorIs(t, err, domcart.ErrEmptyCart)
	require.Equal(t, 3, inv.stockOf(1))
	require.Len(t, inv.puts, 1)
}

func TestCheckOut_PersistFailureWithFailedLines(t *testing.T) {
	inv := newFakeInventory().
		withProduct(1, "Shoe", 10, 5).
		withProduct(2, "Boot", 20, 0)
	mem := kv.NewMemory()
	require.NoError(t, mem.Set(context.Background(), DefaultKey, []byte(`[{"id":1,"amount":1},{"id":2,"amount":1}]`)))
	store := NewStore(context.Background(), inv, &failingKV{Memory: mem, err: errors.New("disk full")}, nil, nil)

	receipt, err := store.CheckOut(context.Background())

	require.ErrorIs(t, err, domcart.ErrPersistence)
	require.ErrorIs(t, err, domcart.ErrCheckoutIncomplete)
	require.ErrorIs(t, err, domcart.ErrOutOfStock)
	require.Equal(t, []int{1}, productIDs(receipt.Purchased))
	require.Equal(t, []int{2}, productIDs(store.Items()))
}
