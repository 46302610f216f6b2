package inventoryapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Zhima-Mochi/minishop-cart/internal/domain/inventory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL+"/api", time.Second, nil)
	require.NoError(t, err)
	return c
}

func TestClient_GetProductAndStock(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/products/1", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id":1,"name":"Shoe","price":10,"image":"shoe.jpg"}`))
	})
	mux.HandleFunc("GET /api/stock/1", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id":1,"amount":5}`))
	})
	c := newTestClient(t, mux)

	p, err := c.GetProduct(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, "Shoe", p.Name)
	require.True(t, p.Price.Equal(decimal.NewFromInt(10)))

	s, err := c.GetStock(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, inventory.Stock{ProductID: 1, Amount: 5}, s)
}

func TestClient_NonSuccessStatusIsStatusError(t *testing.T) {
	c := newTestClient(t, http.NotFoundHandler())

	_, err := c.GetStock(context.Background(), 42)
	var statusErr *inventory.StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusNotFound, statusErr.Code)
	require.ErrorIs(t, err, inventory.ErrNotFound)
	require.NotErrorIs(t, err, inventory.ErrUnavailable)
}

func TestClient_TransportFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c, err := New(base, 200*time.Millisecond, nil)
	require.NoError(t, err)

	_, err = c.GetProduct(context.Background(), 1)
	require.ErrorIs(t, err, inventory.ErrUnavailable)
}

func TestClient_PutStockSendsBody(t *testing.T) {
	var got inventory.Stock
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /api/stock/3", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(got)
	})
	c := newTestClient(t, mux)

	out, err := c.PutStock(context.Background(), inventory.Stock{ProductID: 3, Amount: 7})
	require.NoError(t, err)
	require.Equal(t, inventory.Stock{ProductID: 3, Amount: 7}, got)
	require.Equal(t, got, out)
}

func TestClient_PropagatesTraceContext(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	var got string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("traceparent")
		_, _ = w.Write([]byte(`{"id":1,"amount":5}`))
	}))

	_, err = c.GetStock(ctx, 1)

	require.NoError(t, err)
	require.Contains(t, got, traceID.String())
}

func TestNew_RejectsBadBaseURL(t *testing.T) {
	_, err := New("ftp://example.com", 0, nil)
	require.Error(t, err)
}
