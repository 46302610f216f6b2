package cart

import (
	"context"
	"time"

	domcart "github.com/Zhima-Mochi/minishop-cart/internal/domain/cart"
	domoutbox "github.com/Zhima-Mochi/minishop-cart/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability/logctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	workerService        = "cart_worker"
	useCaseWorkerChanged = "cart.worker.changed"
	useCaseWorkerNotice  = "cart.worker.notice"
)

// Worker consumes cart events off the bus and records them as activity.
type Worker struct {
	subscriber domoutbox.Subscriber
	tel        observability.Observability

	log          observability.Logger
	reqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}
}

func NewWorker(subscriber domoutbox.Subscriber, tel observability.Observability, logger observability.Logger) *Worker {
	tel = observability.Or(tel)
	if logger == nil {
		logger = tel.Logger()
	}
	return &Worker{
		subscriber:   subscriber,
		tel:          tel,
		log:          logger.With(observability.F("service", workerService)),
		reqCounter:   tel.Metrics().Counter(observability.MUsecaseRequests),
		durHistogram: tel.Metrics().Histogram(observability.MUsecaseDuration),
	}
}

func (w *Worker) Start() {
	if w.subscriber == nil {
		return
	}
	w.subscriber.Subscribe(domcart.ChangedEvent{}.EventName(), w.handleChanged)
	w.subscriber.Subscribe(domcart.NoticeEvent{}.EventName(), w.handleNotice)
}

func (w *Worker) handleChanged(ctx context.Context, e domoutbox.Event) error {
	evt, ok := e.(domcart.ChangedEvent)
	if !ok {
		w.count(useCaseWorkerChanged, "ignored")
		return nil
	}
	return w.handle(ctx, useCaseWorkerChanged, "CartChanged", e, func(logger observability.Logger) {
		logger.Info("cart_changed",
			observability.F("cart_key", evt.Key),
			observability.F("lines", len(evt.Items)),
			observability.F("count", evt.Count),
			observability.F("total", evt.Total.StringFixed(2)),
			observability.F("lag_seconds", time.Since(evt.OccurredAt).Seconds()),
		)
	})
}

func (w *Worker) handleNotice(ctx context.Context, e domoutbox.Event) error {
	evt, ok := e.(domcart.NoticeEvent)
	if !ok {
		w.count(useCaseWorkerNotice, "ignored")
		return nil
	}
	return w.handle(ctx, useCaseWorkerNotice, "CartNotice", e, func(logger observability.Logger) {
		logger.Debug("cart_notice_received",
			observability.F("level", evt.Level),
			observability.F("message", evt.Message),
		)
	})
}

func (w *Worker) handle(ctx context.Context, useCase, spanName string, e domoutbox.Event, record func(observability.Logger)) error {
	ctx, span := w.tel.Tracer().Start(ctx, spanPrefix+spanName,
		attribute.String("use_case", useCase),
		attribute.String("event", e.EventName()),
	)
	start := time.Now()

	logger := logctx.FromOr(ctx, w.log).With(
		observability.F("use_case", useCase),
		observability.F("event", e.EventName()),
	)
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		logger = logger.With(
			observability.F("trace_id", sc.TraceID().String()),
			observability.F("span_id", sc.SpanID().String()),
		)
	}

	record(logger)

	lat := time.Since(start).Seconds()
	w.observe(useCase, "success", lat)
	logger.Debug("use_case_done",
		observability.F("outcome", "success"),
		observability.F("status", "OK"),
		observability.F("latency_seconds", lat),
	)
	span.SetStatus(codes.Ok, "OK")
	span.End()
	return nil
}

func (w *Worker) count(useCase, outcome string) {
	w.reqCounter.Add(1,
		observability.L("use_case", useCase),
		observability.L("outcome", outcome),
	)
}

func (w *Worker) observe(useCase, outcome string, latencySeconds float64) {
	w.count(useCase, outcome)
	w.durHistogram.Observe(latencySeconds, observability.L("use_case", useCase))
}
