package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	appcart "github.com/Zhima-Mochi/minishop-cart/internal/application/cart"
	"github.com/Zhima-Mochi/minishop-cart/internal/config"
	"github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/inventoryapi"
	"github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/kv"
	"github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/notify"
	"github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/outbox"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability"
	httppresentation "github.com/Zhima-Mochi/minishop-cart/internal/presentation/http"
)

type serveCmd struct {
	config.Serve `embed:""`
}

func (c *serveCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, cli, "cart")
	if err != nil {
		return err
	}
	defer rt.close(context.Background())

	store, closeStore, err := kv.Open(ctx, c.Storage.Options())
	if err != nil {
		rt.system.Error("kv_open_failed", observability.F("backend", c.Storage.Backend), observability.F("error", err))
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			rt.system.Warn("kv_close_error", observability.F("error", err))
		}
	}()

	client, err := inventoryapi.New(c.InventoryURL, c.InventoryTimeout, rt.tel)
	if err != nil {
		return err
	}

	// In-memory event bus carrying cart changes and notices to the worker.
	bus := outbox.NewBus(rt.system)
	appcart.NewWorker(bus, rt.tel, rt.system).Start()
	bus.Start(ctx)
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), c.ShutdownTimeout)
		defer cancel()
		bus.Stop(stopCtx)
	}()

	notifier := notify.Multi(
		notify.Contextual(),
		notify.Log(rt.system, rt.tel),
		notify.Bus(bus, rt.system),
	)
	sessions := appcart.NewSessions(c.CartKey, c.SessionTTL, func(ctx context.Context, key string) *appcart.Store {
		return appcart.NewStore(ctx, client, store, notifier, rt.tel,
			appcart.WithKey(key),
			appcart.WithPublisher(bus),
			appcart.WithCheckoutConcurrency(c.CheckoutConcurrency),
		)
	})
	sessions.Start()
	defer sessions.Stop()

	// Restore the default cart eagerly so a corrupt blob is logged at boot.
	_, release, err := sessions.Acquire(ctx, "")
	if err != nil {
		return err
	}
	release()

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", rt.metricsHandler())
	httppresentation.NewCartHandler(sessions, rt.system, rt.tel).Register(mux)

	rt.system.Info("cart_service_configured",
		observability.F("inventory_url", c.InventoryURL),
		observability.F("kv_backend", c.Storage.Backend),
		observability.F("cart_key", c.CartKey),
	)
	return rt.serveHTTP(ctx, c.Addr, mux, c.ShutdownTimeout)
}
