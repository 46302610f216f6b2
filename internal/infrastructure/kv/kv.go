// Package kv holds the persistence backends for serialized carts. Every
// backend stores one opaque blob per key and reports absent keys as ErrNotFound.
package kv

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var ErrNotFound = errors.New("kv: key not found")

const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

const redisPingAttempts = 5

// Store is implemented by every backend.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Options selects and configures a backend.
type Options struct {
	Backend     string
	Dir         string
	RedisAddr   string
	PostgresDSN string
}

// Open connects the configured backend. The returned close func is never nil.
func Open(ctx context.Context, opts Options) (Store, func() error, error) {
	noop := func() error { return nil }
	switch opts.Backend {
	case BackendMemory, "":
		return NewMemory(), noop, nil
	case BackendFile:
		f, err := NewFile(opts.Dir)
		if err != nil {
			return nil, noop, err
		}
		return f, noop, nil
	case BackendRedis:
		r := NewRedis(opts.RedisAddr)
		if err := r.Ping(ctx, redisPingAttempts); err != nil {
			_ = r.Close()
			return nil, noop, err
		}
		return r, r.Close, nil
	case BackendPostgres:
		p, err := OpenPostgres(ctx, opts.PostgresDSN)
		if err != nil {
			return nil, noop, err
		}
		return p, p.Close, nil
	default:
		return nil, noop, fmt.Errorf("kv: unknown backend %q", opts.Backend)
	}
}

func validateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("kv: key is required")
	}
	return nil
}
