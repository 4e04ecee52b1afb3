package service

import (
	"context"

	"github.com/lukezbihlyj/icomfort-go/internal/history"
	"github.com/lukezbihlyj/icomfort-go/internal/icomfort"
)

// Authorization issues and verifies tokens for the local API.
type Authorization interface {
	SignIn(username, password string) (string, error)
	ParseToken(accessToken string) (string, error)
}

// Monitoring exposes read-only snapshots of the cloud client's data model.
type Monitoring interface {
	Systems() []icomfort.SystemState
	Zones() []icomfort.ZoneState
	Zone(id string) (icomfort.ZoneState, bool)
}

// Control issues commands against a zone by its external identifier.
type Control interface {
	SetMode(ctx context.Context, zoneID string, mode string) error
	SetTemperature(ctx context.Context, zoneID string, hsp, csp *float64) error
	SetFan(ctx context.Context, zoneID string, mode string) error
}

// EventLog exposes the append-only history with filtered access.
type EventLog interface {
	List(ctx context.Context, f history.Filter) ([]history.Event, error)
}

// Service aggregates all sub-services consumed by the HTTP layer.
type Service struct {
	Authorization
	Monitoring
	Control
	EventLog
}

// NewService wires the cloud client and storage layer into concrete services.
func NewService(client *icomfort.Client, repos *history.Repository, auth AuthConfig) *Service {
	zones := NewZoneService(client, repos.Events)
	return &Service{
		Authorization: NewAuthService(auth),
		Monitoring:    zones,
		Control:       zones,
		EventLog:      NewEventLogService(repos.Events),
	}
}
