package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Zhima-Mochi/minishop-cart/internal/config"
	"github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability"
	httppresentation "github.com/Zhima-Mochi/minishop-cart/internal/presentation/http"
)

type inventoryCmd struct {
	config.Inventory `embed:""`
}

func (c *inventoryCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, cli, "inventory")
	if err != nil {
		return err
	}
	defer rt.close(context.Background())

	catalog, err := memory.LoadCatalog(c.Seed)
	if err != nil {
		rt.system.Error("inventory_seed_failed", observability.F("seed", c.Seed), observability.F("error", err))
		return err
	}
	products, _ := catalog.Products(ctx)
	rt.system.Info("inventory_seeded", observability.F("seed", c.Seed), observability.F("products", len(products)))

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", rt.metricsHandler())
	httppresentation.NewInventoryHandler(catalog, rt.system, rt.tel).Register(mux)

	return rt.serveHTTP(ctx, c.Addr, mux, c.ShutdownTimeout)
}
