// Package config declares the command-line and environment configuration for
// the cart and inventory services. Structs are parsed with kong; every flag
// also reads an environment variable.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/kv"
)

// Log configures the zap base logger.
type Log struct {
	Level string `help:"Minimum log level." default:"info" enum:"debug,info,warn,error" env:"LOG_LEVEL"`
	File  string `help:"Also write JSON logs to this file." env:"LOG_FILE"`
}

// Telemetry configures service identity and trace export.
type Telemetry struct {
	Service      string `help:"Service name attached to logs, metrics and traces." default:"minishop-cart" env:"SERVICE_NAME"`
	Env          string `help:"Deployment environment." default:"dev" env:"ENV"`
	OTLPEndpoint string `help:"OTLP/HTTP trace collector host:port. Tracing export is off when empty." env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure bool   `help:"Use plain HTTP for the OTLP exporter." env:"OTEL_EXPORTER_OTLP_INSECURE"`
}

// Storage selects where serialized carts live.
type Storage struct {
	Backend     string `help:"Cart persistence backend." default:"file" enum:"memory,file,redis,postgres" env:"KV_BACKEND"`
	Dir         string `help:"Directory for the file backend." default:".cart-data" env:"KV_DIR"`
	RedisAddr   string `help:"Redis address or redis:// URL." default:"localhost:6379" env:"KV_REDIS_ADDR"`
	PostgresDSN string `help:"Postgres connection string." env:"KV_POSTGRES_DSN"`
}

func (s Storage) Options() kv.Options {
	return kv.Options{
		Backend:     s.Backend,
		Dir:         s.Dir,
		RedisAddr:   s.RedisAddr,
		PostgresDSN: s.PostgresDSN,
	}
}

func (s Storage) Validate() error {
	switch s.Backend {
	case kv.BackendFile:
		if strings.TrimSpace(s.Dir) == "" {
			return errors.New("config: --kv-dir is required for the file backend")
		}
	case kv.BackendRedis:
		if strings.TrimSpace(s.RedisAddr) == "" {
			return errors.New("config: --kv-redis-addr is required for the redis backend")
		}
	case kv.BackendPostgres:
		if strings.TrimSpace(s.PostgresDSN) == "" {
			return errors.New("config: --kv-postgres-dsn is required for the postgres backend")
		}
	}
	return nil
}

// Serve configures the cart HTTP service.
type Serve struct {
	Addr                string        `help:"Listen address." default:":8080" env:"CART_ADDR"`
	InventoryURL        string        `help:"Base URL of the inventory service." default:"http://localhost:3333" env:"INVENTORY_URL"`
	InventoryTimeout    time.Duration `help:"Timeout for each inventory request." default:"5s" env:"INVENTORY_TIMEOUT"`
	CartKey             string        `help:"Persistence key of the default cart." default:"@RocketShoes:cart" env:"CART_KEY"`
	SessionTTL          time.Duration `help:"Idle time before a session cart is dropped from memory." default:"30m" env:"CART_SESSION_TTL"`
	CheckoutConcurrency int           `help:"Maximum concurrent stock updates per checkout." default:"8" env:"CART_CHECKOUT_CONCURRENCY"`
	ShutdownTimeout     time.Duration `help:"Graceful shutdown deadline." default:"10s" env:"SHUTDOWN_TIMEOUT"`

	Storage Storage `embed:"" prefix:"kv-"`
}

func (s Serve) Validate() error {
	u, err := url.Parse(s.InventoryURL)
	if err != nil {
		return fmt.Errorf("config: --inventory-url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("config: --inventory-url %q must be http or https", s.InventoryURL)
	}
	if strings.TrimSpace(s.CartKey) == "" {
		return errors.New("config: --cart-key must not be empty")
	}
	if s.SessionTTL <= 0 {
		return errors.New("config: --session-ttl must be positive")
	}
	if s.CheckoutConcurrency < 1 {
		return errors.New("config: --checkout-concurrency must be at least 1")
	}
	return s.Storage.Validate()
}

// Inventory configures the reference inventory service.
type Inventory struct {
	Addr            string        `help:"Listen address." default:":3333" env:"INVENTORY_ADDR"`
	Seed            string        `help:"JSON file with the products and stock lists." default:"data/inventory.json" env:"INVENTORY_SEED"`
	ShutdownTimeout time.Duration `help:"Graceful shutdown deadline." default:"10s" env:"SHUTDOWN_TIMEOUT"`
}
