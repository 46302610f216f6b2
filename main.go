package main

import (
	"github.com/Zhima-Mochi/minishop-cart/internal/config"
	"github.com/alecthomas/kong"
	"github.com/shopspring/decimal"
)

// CLI is the root command line. Global flags configure logging and telemetry
// for whichever service is started.
type CLI struct {
	Log       config.Log       `embed:"" prefix:"log-"`
	Telemetry config.Telemetry `embed:"" prefix:"otel-"`

	Serve     serveCmd     `cmd:"" default:"withargs" help:"Run the cart service."`
	Inventory inventoryCmd `cmd:"" help:"Run the reference inventory service."`
}

func main() {
	// Prices travel as JSON numbers, the way the catalog serves them.
	decimal.MarshalJSONWithoutQuotes = true

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("minishop-cart"),
		kong.Description("Shopping cart service backed by an inventory API."),
		kong.UsageOnError(),
		kong.Bind(&cli),
	)
	kctx.FatalIfErrorf(kctx.Run())
}
