// Package notify implements the cart Notifier: request-scoped collection for
// HTTP responses, structured logs, and mirroring onto the event bus.
package notify

import (
	"context"
	"sync"
	"time"

	domcart "github.com/Zhima-Mochi/minishop-cart/internal/domain/cart"
	domoutbox "github.com/Zhima-Mochi/minishop-cart/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability/logctx"
)

const publishTimeout = 300 * time.Millisecond

// Notice is one user-facing message.
type Notice struct {
	Level   domcart.NoticeLevel `json:"level"`
	Message string              `json:"message"`
}

// Sink is the notifier contract shared with the cart store.
type Sink interface {
	Error(ctx context.Context, message string)
	Success(ctx context.Context, message string)
}

type funcSink func(ctx context.Context, level domcart.NoticeLevel, message string)

func (f funcSink) Error(ctx context.Context, message string) {
	f(ctx, domcart.NoticeError, message)
}

func (f funcSink) Success(ctx context.Context, message string) {
	f(ctx, domcart.NoticeSuccess, message)
}

// Collector gathers the notices emitted while serving one request.
type Collector struct {
	mu      sync.Mutex
	notices []Notice
}

func (c *Collector) add(n Notice) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notices = append(c.notices, n)
}

// Notices returns the collected notices in emission order.
func (c *Collector) Notices() []Notice {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Notice(nil), c.notices...)
}

type collectorKey struct{}

// WithCollector attaches a fresh collector to ctx.
func WithCollector(ctx context.Context) (context.Context, *Collector) {
	c := &Collector{}
	return context.WithValue(ctx, collectorKey{}, c), c
}

func collectorFrom(ctx context.Context) *Collector {
	if ctx == nil {
		return nil
	}
	c, _ := ctx.Value(collectorKey{}).(*Collector)
	return c
}

// Contextual appends notices to the collector carried by ctx, if any.
func Contextual() Sink {
	return funcSink(func(ctx context.Context, level domcart.NoticeLevel, message string) {
		if c := collectorFrom(ctx); c != nil {
			c.add(Notice{Level: level, Message: message})
		}
	})
}

// Log writes every notice as a cart_notice entry and counts it.
func Log(logger observability.Logger, tel observability.Observability) Sink {
	if logger == nil {
		logger = observability.NopLogger()
	}
	notices := observability.Or(tel).Metrics().Counter(observability.MCartNotices)
	return funcSink(func(ctx context.Context, level domcart.NoticeLevel, message string) {
		notices.Add(1, observability.L("level", string(level)))
		log := logctx.FromOr(ctx, logger)
		if level == domcart.NoticeError {
			log.Warn("cart_notice", observability.F("level", level), observability.F("message", message))
			return
		}
		log.Info("cart_notice", observability.F("level", level), observability.F("message", message))
	})
}

// Bus publishes every notice as a cart.notice event. Publish failures are logged and dropped.
func Bus(publisher domoutbox.Publisher, logger observability.Logger) Sink {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return funcSink(func(ctx context.Context, level domcart.NoticeLevel, message string) {
		if publisher == nil {
			return
		}
		pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
		defer cancel()
		if err := publisher.Publish(pubCtx, domcart.NewNoticeEvent(level, message)); err != nil {
			logctx.FromOr(ctx, logger).Warn("cart_notice_publish_failed", observability.F("error", err))
		}
	})
}

// Multi fans every notice out to all sinks in order.
func Multi(sinks ...Sink) Sink {
	return funcSink(func(ctx context.Context, level domcart.NoticeLevel, message string) {
		for _, s := range sinks {
			if s == nil {
				continue
			}
			if level == domcart.NoticeError {
				s.Error(ctx, message)
			} else {
				s.Success(ctx, message)
			}
		}
	})
}
