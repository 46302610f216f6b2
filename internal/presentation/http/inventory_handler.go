package httppresentation

import (
	"fmt"
	"net/http"

	"github.com/Zhima-Mochi/minishop-cart/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability"
)

const componentInventoryHandler = "inventory_http"

// InventoryHandler serves the catalog and stock endpoints the cart store consumes.
type InventoryHandler struct {
	catalog inventory.Catalog
	router  router
}

func NewInventoryHandler(catalog inventory.Catalog, logger observability.Logger, tel observability.Observability) *InventoryHandler {
	if logger == nil {
		logger = observability.Or(tel).Logger()
	}
	return &InventoryHandler{
		catalog: catalog,
		router:  newRouter(logger.With(observability.F("component", componentInventoryHandler)), tel),
	}
}

func (h *InventoryHandler) Register(mux *http.ServeMux) {
	h.router.handle(mux, http.MethodGet, "/products", h.handleListProducts)
	h.router.handle(mux, http.MethodGet, "/products/{id}", h.handleGetProduct)
	h.router.handle(mux, http.MethodGet, "/stock/{id}", h.handleGetStock)
	h.router.handle(mux, http.MethodPut, "/stock/{id}", h.handlePutStock)
	h.router.handle(mux, http.MethodGet, "/health", handleHealth)
}

func (h *InventoryHandler) Router() http.Handler {
	mux := http.NewServeMux()
	h.Register(mux)
	return mux
}

func (h *InventoryHandler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.Products(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (h *InventoryHandler) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	product, err := h.catalog.Product(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (h *InventoryHandler) handleGetStock(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	stock, err := h.catalog.Stock(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stock)
}

// handlePutStock replaces the stock record. The id in the path wins over the body.
func (h *InventoryHandler) handlePutStock(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	var body inventory.Stock
	if err := decodeJSON(w, r, &body); err != nil {
		writeDomainError(w, err)
		return
	}
	if body.ProductID != 0 && body.ProductID != id {
		writeDomainError(w, fmt.Errorf("%w: body id %d does not match path id %d", errBadRequest, body.ProductID, id))
		return
	}
	stock, err := inventory.NewStock(id, body.Amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := h.catalog.SetStock(r.Context(), stock); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stock)
}
