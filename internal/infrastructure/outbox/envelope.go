package outbox

import (
	"context"

	domoutbox "github.com/Zhima-Mochi/minishop-cart/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability/logctx"
	"go.opentelemetry.io/otel/trace"
)

// envelope carries an event through the queue together with the identity of
// the publish and the span that published it.
type envelope struct {
	event domoutbox.Event
	id    string
	span  trace.SpanContext
}

// withEventContext prepares the handler context for one delivery: the
// publisher's span becomes the remote parent and a logger carrying event_id,
// event and trace identifiers is injected.
func withEventContext(ctx context.Context, base observability.Logger, env envelope) (context.Context, observability.Logger) {
	fields := []observability.Field{
		observability.F("event_id", env.id),
		observability.F("event", env.event.EventName()),
	}
	if env.span.IsValid() {
		ctx = trace.ContextWithRemoteSpanContext(ctx, env.span)
		fields = append(fields,
			observability.F("trace_id", env.span.TraceID().String()),
			observability.F("span_id", env.span.SpanID().String()),
		)
	}
	logger := base.With(fields...)
	return logctx.With(ctx, logger), logger
}
