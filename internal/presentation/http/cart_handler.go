package httppresentation

import (
	"context"
	"net/http"

	appcart "github.com/Zhima-Mochi/minishop-cart/internal/application/cart"
	domcart "github.com/Zhima-Mochi/minishop-cart/internal/domain/cart"
	"github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/notify"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability"
	"github.com/shopspring/decimal"
)

const (
	componentCartHandler = "cart_http"
	headerSession        = "X-Cart-Session"
)

// StoreProvider leases the cart store for a shopper session until release is called.
type StoreProvider interface {
	Acquire(ctx context.Context, session string) (store *appcart.Store, release func(), err error)
}

type CartHandler struct {
	stores StoreProvider
	router router
}

func NewCartHandler(stores StoreProvider, logger observability.Logger, tel observability.Observability) *CartHandler {
	if logger == nil {
		logger = observability.Or(tel).Logger()
	}
	return &CartHandler{
		stores: stores,
		router: newRouter(logger.With(observability.F("component", componentCartHandler)), tel),
	}
}

// Register mounts the cart routes on mux.
func (h *CartHandler) Register(mux *http.ServeMux) {
	h.router.handle(mux, http.MethodGet, "/cart", h.handleGetCart)
	h.router.handle(mux, http.MethodPost, "/cart/items", h.handleAddProduct)
	h.router.handle(mux, http.MethodPut, "/cart/items/{id}", h.handleUpdateAmount)
	h.router.handle(mux, http.MethodDelete, "/cart/items/{id}", h.handleRemoveProduct)
	h.router.handle(mux, http.MethodPost, "/cart/checkout", h.handleCheckOut)
	h.router.handle(mux, http.MethodGet, "/health", handleHealth)
}

func (h *CartHandler) Router() http.Handler {
	mux := http.NewServeMux()
	h.Register(mux)
	return mux
}

type cartResponse struct {
	Items   []domcart.LineItem `json:"items"`
	Total   decimal.Decimal    `json:"total"`
	Count   int                `json:"count"`
	Notices []notify.Notice    `json:"notices,omitempty"`
	Receipt *receiptResponse   `json:"receipt,omitempty"`
	Error   string             `json:"error,omitempty"`
}

type receiptResponse struct {
	Purchased []domcart.LineItem `json:"purchased"`
	Failed    []domcart.LineItem `json:"failed"`
	Total     decimal.Decimal    `json:"total"`
}

type addProductRequest struct {
	ProductID int `json:"product_id"`
}

type updateAmountRequest struct {
	Amount int `json:"amount"`
}

func (h *CartHandler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	store, release, err := h.stores.Acquire(r.Context(), r.Header.Get(headerSession))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	defer release()
	writeJSON(w, http.StatusOK, newCartResponse(store.Cart(), nil))
}

func (h *CartHandler) handleAddProduct(w http.ResponseWriter, r *http.Request) {
	var req addProductRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	h.mutate(w, r, http.StatusCreated, func(ctx context.Context, store *appcart.Store) error {
		return store.AddProduct(ctx, req.ProductID)
	})
}

func (h *CartHandler) handleUpdateAmount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	var req updateAmountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	h.mutate(w, r, http.StatusOK, func(ctx context.Context, store *appcart.Store) error {
		return store.UpdateProductAmount(ctx, appcart.UpdateProductAmount{ProductID: id, Amount: req.Amount})
	})
}

func (h *CartHandler) handleRemoveProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	h.mutate(w, r, http.StatusOK, func(ctx context.Context, store *appcart.Store) error {
		return store.RemoveProduct(ctx, id)
	})
}

func (h *CartHandler) handleCheckOut(w http.ResponseWriter, r *http.Request) {
	var receipt *appcart.Receipt
	h.mutate(w, r, http.StatusOK, func(ctx context.Context, store *appcart.Store) error {
		var err error
		receipt, err = store.CheckOut(ctx)
		return err
	}, func(resp *cartResponse) {
		if receipt != nil {
			resp.Receipt = &receiptResponse{
				Purchased: nonNil(receipt.Purchased),
				Failed:    nonNil(receipt.Failed),
				Total:     receipt.Total,
			}
		}
	})
}

// mutate runs op against the session's store and answers with the resulting
// cart plus every notice emitted while op ran.
func (h *CartHandler) mutate(
	w http.ResponseWriter,
	r *http.Request,
	okStatus int,
	op func(ctx context.Context, store *appcart.Store) error,
	decorate ...func(*cartResponse),
) {
	store, release, err := h.stores.Acquire(r.Context(), r.Header.Get(headerSession))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	defer release()

	ctx, collector := notify.WithCollector(r.Context())
	opErr := op(ctx, store)

	resp := newCartResponse(store.Cart(), collector.Notices())
	for _, d := range decorate {
		d(&resp)
	}
	status := okStatus
	if opErr != nil {
		status = statusFor(opErr)
		resp.Error = opErr.Error()
	}
	writeJSON(w, status, resp)
}

func newCartResponse(c domcart.Cart, notices []notify.Notice) cartResponse {
	return cartResponse{
		Items:   nonNil(c.Items()),
		Total:   c.Total(),
		Count:   c.Count(),
		Notices: notices,
	}
}

func nonNil(items []domcart.LineItem) []domcart.LineItem {
	if items == nil {
		return []domcart.LineItem{}
	}
	return items
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
