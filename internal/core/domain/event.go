package domain

import "context"

// Event types recorded through the sink.
const (
	EventCall         = "call"
	EventBreakerState = "breaker_state"
	EventAlert        = "alert"
)

// EventSink receives fire-and-forget observability events. Implementations
// must never let a recording failure surface to the caller of the underlying
// API operation; they log and move on.
type EventSink interface {
	Record(ctx context.Context, eventType string, attrs map[string]any)
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) Record(ctx context.Context, eventType string, attrs map[string]any) {}

// MultiSink fans out to several sinks.
type MultiSink []EventSink

func (m MultiSink) Record(ctx context.Context, eventType string, attrs map[string]any) {
	for _, s := range m {
		s.Record(ctx, eventType, attrs)
	}
}
