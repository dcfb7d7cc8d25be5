package redis

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

const (
	eventRingKey = "merchgate:events"
	eventRingMax = 1000
)

// EventRing keeps the most recent observability events in a capped Redis
// list. It implements domain.EventSink; recording failures are logged and
// swallowed so they never fail the underlying call.
type EventRing struct {
	client *Client
	log    *slog.Logger
}

// NewEventRing creates an event ring over the client.
func NewEventRing(client *Client, log *slog.Logger) *EventRing {
	if log == nil {
		log = slog.Default()
	}
	return &EventRing{client: client, log: log}
}

// Record pushes one event onto the ring, trimming to the cap.
func (r *EventRing) Record(ctx context.Context, eventType string, attrs map[string]any) {
	entry := map[string]any{
		"type": eventType,
		"at":   time.Now().UTC().Format(time.RFC3339Nano),
	}
	for k, v := range attrs {
		entry[k] = v
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		r.log.Warn("Failed to encode event", "type", eventType, "error", err)
		return
	}

	pipe := r.client.rdb.Pipeline()
	pipe.LPush(ctx, eventRingKey, raw)
	pipe.LTrim(ctx, eventRingKey, 0, eventRingMax-1)
	if _, err := pipe.Exec(ctx); err != nil {
		r.log.Warn("Failed to record event", "type", eventType, "error", err)
	}
}

// Recent returns up to n of the newest events, newest first.
func (r *EventRing) Recent(ctx context.Context, n int64) ([]map[string]any, error) {
	raws, err := r.client.rdb.LRange(ctx, eventRingKey, 0, n-1).Result()
	if err != nil {
		return nil, err
	}

	events := make([]map[string]any, 0, len(raws))
	for _, raw := range raws {
		var e map[string]any
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			continue
		}
		events = append(events, e)
	}
	return events, nil
}
