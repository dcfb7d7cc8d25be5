package postgres

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dtnghia/merchgate/internal/core/domain"
	"github.com/dtnghia/merchgate/internal/resilience/alert"
)

// AlertRow is one persisted alert.
type AlertRow struct {
	ID        string    `db:"id"`
	Rule      string    `db:"rule"`
	Severity  string    `db:"severity"`
	Provider  string    `db:"provider"`
	Message   string    `db:"message"`
	Value     float64   `db:"value"`
	CreatedAt time.Time `db:"created_at"`
}

// EventStore is the durable half of the event sink: call events and alerts
// land in Postgres for later analysis. It implements domain.EventSink.
type EventStore struct {
	db  *DB
	log *slog.Logger
}

// NewEventStore creates an event store over the connection pool.
func NewEventStore(db *DB, log *slog.Logger) *EventStore {
	if log == nil {
		log = slog.Default()
	}
	return &EventStore{db: db, log: log}
}

// Record persists one observability event. Failures are logged, never
// propagated: the sink must not fail the underlying call.
func (s *EventStore) Record(ctx context.Context, eventType string, attrs map[string]any) {
	raw, err := json.Marshal(attrs)
	if err != nil {
		s.log.Warn("Failed to encode event attrs", "type", eventType, "error", err)
		return
	}

	provider, _ := attrs["provider"].(string)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO call_events (id, event_type, provider, attrs, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		uuid.NewString(), eventType, provider, raw, time.Now().UTC(),
	)
	if err != nil {
		s.log.Warn("Failed to persist event", "type", eventType, "error", err)
	}
}

// InsertAlert persists one raised alert.
func (s *EventStore) InsertAlert(ctx context.Context, a alert.Alert) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (id, rule, severity, provider, message, value, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.NewString(), a.Rule, string(a.Severity), a.Provider, a.Message, a.Value, a.At.UTC(),
	)
	return err
}

// RecentAlerts returns the newest alerts, newest first.
func (s *EventStore) RecentAlerts(ctx context.Context, limit int) ([]AlertRow, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []AlertRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, rule, severity, provider, message, value, created_at
		 FROM alerts ORDER BY created_at DESC LIMIT $1`, limit)
	return rows, err
}

var _ domain.EventSink = (*EventStore)(nil)
