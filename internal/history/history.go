// Package history keeps an append-only sqlite log of what the client saw and
// did: zone telemetry updates, issued commands, reconnects and absorbed pump
// errors. Auth and system state itself is never persisted; a restart
// re-discovers everything from the cloud.
package history

import (
	"context"
	"database/sql"
	"time"
)

// Event types recorded by the daemon.
const (
	TypeTelemetry = "TELEMETRY"
	TypeCommand   = "COMMAND"
	TypeReconnect = "RECONNECT"
	TypeError     = "ERROR"
)

// Event is a single log entry.
type Event struct {
	ID          string    `json:"id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Metadata    any       `json:"metadata,omitempty"`
}

// Filter narrows a listing by inclusive time range and/or type; zero values
// mean no bound.
type Filter struct {
	From time.Time
	To   time.Time
	Type string
}

// Store is the append-only event log contract.
type Store interface {
	Append(ctx context.Context, e Event) error
	List(ctx context.Context, f Filter) ([]Event, error)
}

// Repository aggregates the storage-layer contracts.
type Repository struct {
	Events Store
}

func New(db *sql.DB) *Repository {
	return &Repository{
		Events: NewEventSQLite(db),
	}
}
