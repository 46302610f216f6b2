// Package inventoryapi is the HTTP client for the catalog and stock endpoints.
package inventoryapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Zhima-Mochi/minishop-cart/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability/logctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	peer             = "inventory"
	endpointProduct  = "products"
	endpointStock    = "stock"
	endpointPutStock = "stock.put"
	maxBodyBytes     = 1 << 20
	defaultTimeout   = 5 * time.Second
)

type Client struct {
	base         *url.URL
	http         *http.Client
	log          observability.Logger
	extCounter   observability.Counter
	extHistogram observability.Histogram
}

// New builds a client for baseURL. timeout bounds every request; zero selects 5s.
// Requests run in a client span and carry the caller's trace context.
func New(baseURL string, timeout time.Duration, tel observability.Observability) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("inventory: base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("inventory: base url %q must be http or https", baseURL)
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	tel = observability.Or(tel)
	return &Client{
		base:         base,
		http:         &http.Client{Timeout: timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)},
		log:          tel.Logger().With(observability.F("component", "inventory_client")),
		extCounter:   tel.Metrics().Counter(observability.MExternalRequests),
		extHistogram: tel.Metrics().Histogram(observability.MExternalRequestDuration),
	}, nil
}

func (c *Client) GetProduct(ctx context.Context, productID int) (inventory.Product, error) {
	var p inventory.Product
	err := c.do(ctx, endpointProduct, http.MethodGet, c.url("products", productID), nil, &p)
	return p, err
}

func (c *Client) GetStock(ctx context.Context, productID int) (inventory.Stock, error) {
	var s inventory.Stock
	err := c.do(ctx, endpointStock, http.MethodGet, c.url("stock", productID), nil, &s)
	return s, err
}

// PutStock overwrites the stock level of stock.ProductID.
func (c *Client) PutStock(ctx context.Context, stock inventory.Stock) (inventory.Stock, error) {
	var out inventory.Stock
	err := c.do(ctx, endpointPutStock, http.MethodPut, c.url("stock", stock.ProductID), stock, &out)
	return out, err
}

func (c *Client) url(collection string, id int) string {
	return c.base.JoinPath(collection, strconv.Itoa(id)).String()
}

func (c *Client) do(ctx context.Context, endpoint, method, target string, body, dst any) (err error) {
	start := time.Now()
	outcome := "success"
	defer func() {
		if err != nil {
			outcome = "error"
			var statusErr *inventory.StatusError
			if errors.As(err, &statusErr) {
				outcome = "status_" + strconv.Itoa(statusErr.Code)
			}
			logctx.FromOr(ctx, c.log).Warn("inventory_request_failed",
				observability.F("endpoint", endpoint),
				observability.F("method", method),
				observability.F("url", target),
				observability.F("error", err),
			)
		}
		c.extCounter.Add(1,
			observability.L("peer", peer),
			observability.L("endpoint", endpoint),
			observability.L("outcome", outcome),
		)
		c.extHistogram.Observe(time.Since(start).Seconds(),
			observability.L("peer", peer),
			observability.L("endpoint", endpoint),
		)
	}()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("inventory: %s: encode: %w", endpoint, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("inventory: %s: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("inventory: %s: %w: %w", endpoint, inventory.ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return &inventory.StatusError{Endpoint: endpoint, Code: resp.StatusCode}
	}
	if dst == nil {
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(dst); err != nil {
		return fmt.Errorf("inventory: %s: decode: %w: %w", endpoint, inventory.ErrUnavailable, err)
	}
	return nil
}
