package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/observability/oteltrace"
	"github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/observability/telemetry"
	"github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability"
	"github.com/Zhima-Mochi/minishop-cart/internal/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// runtime holds the process-wide logging, metrics and tracing setup.
type runtime struct {
	base     *zap.Logger
	system   observability.Logger
	tel      observability.Observability
	registry *prometheus.Registry

	shutdownTracing func(context.Context) error
}

func newRuntime(ctx context.Context, cli *CLI, component string) (*runtime, error) {
	base, err := logging.NewLogger(logging.Options{
		Service: cli.Telemetry.Service,
		Env:     cli.Telemetry.Env,
		Level:   cli.Log.Level,
		File:    cli.Log.File,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	base = base.With(zap.String("component", component))
	zap.ReplaceGlobals(base)

	shutdownTracing, err := oteltrace.Setup(ctx, cli.Telemetry.Service, cli.Telemetry.OTLPEndpoint, cli.Telemetry.OTLPInsecure)
	if err != nil {
		_ = base.Sync()
		return nil, fmt.Errorf("tracing: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	counters, histograms := prometrics.Instruments(prometrics.New(registry, "", ""))

	return &runtime{
		base:            base,
		system:          zaplogger.New(logging.WithTrace(base, logging.SystemTraceID, logging.SystemSpanID)),
		tel:             telemetry.New(oteltrace.New(cli.Telemetry.Service), zaplogger.New(base), counters, histograms),
		registry:        registry,
		shutdownTracing: shutdownTracing,
	}, nil
}

func (rt *runtime) metricsHandler() http.Handler {
	return promhttp.HandlerFor(rt.registry, promhttp.HandlerOpts{Registry: rt.registry})
}

func (rt *runtime) close(ctx context.Context) {
	if err := rt.shutdownTracing(ctx); err != nil {
		rt.system.Warn("tracing_shutdown_error", observability.F("error", err))
	}
	_ = rt.base.Sync()
}

// serveHTTP runs an HTTP server until ctx is cancelled, then shuts it down
// within shutdownTimeout.
func (rt *runtime) serveHTTP(ctx context.Context, addr string, handler http.Handler, shutdownTimeout time.Duration) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		rt.system.Info("http_server_start", observability.F("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			rt.system.Error("http_server_error", observability.F("error", err))
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		rt.system.Error("http_server_shutdown_error", observability.F("error", err))
		return err
	}
	rt.system.Info("http_server_stopped")
	return nil
}
