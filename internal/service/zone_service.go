package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/lukezbihlyj/icomfort-go/internal/history"
	"github.com/lukezbihlyj/icomfort-go/internal/icomfort"
)

// ErrZoneNotFound is returned for commands or lookups against an unknown or
// not-yet-active zone.
var ErrZoneNotFound = errors.New("zone not found")

// zoneClient is the slice of the cloud client the zone service needs;
// narrowed for testability.
type zoneClient interface {
	Systems() []icomfort.SystemState
	Zones() []*icomfort.Zone
	ZoneByID(id string) (*icomfort.Zone, bool)
	SetHVACMode(ctx context.Context, zone *icomfort.Zone, mode icomfort.HVACMode) error
	SetTemperature(ctx context.Context, zone *icomfort.Zone, sp icomfort.Setpoints) error
	SetFanMode(ctx context.Context, zone *icomfort.Zone, mode icomfort.FanMode) error
}

// ZoneService adapts the cloud client for the HTTP layer and records issued
// commands into the history log. Command failures still propagate to the
// caller; only the history write is best-effort.
type ZoneService struct {
	client zoneClient
	events history.Store
}

func NewZoneService(client zoneClient, events history.Store) *ZoneService {
	return &ZoneService{client: client, events: events}
}

func (s *ZoneService) Systems() []icomfort.SystemState {
	return s.client.Systems()
}

func (s *ZoneService) Zones() []icomfort.ZoneState {
	zones := s.client.Zones()
	out := make([]icomfort.ZoneState, 0, len(zones))
	for _, z := range zones {
		out = append(out, z.Snapshot())
	}
	return out
}

func (s *ZoneService) Zone(id string) (icomfort.ZoneState, bool) {
	z, ok := s.client.ZoneByID(id)
	if !ok || !z.Active() {
		return icomfort.ZoneState{}, false
	}
	return z.Snapshot(), true
}

func (s *ZoneService) SetMode(ctx context.Context, zoneID string, mode string) error {
	z, ok := s.client.ZoneByID(zoneID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrZoneNotFound, zoneID)
	}
	if err := s.client.SetHVACMode(ctx, z, icomfort.HVACMode(mode)); err != nil {
		return err
	}
	s.record(ctx, zoneID, "hvac mode set to "+mode, map[string]any{"mode": mode})
	return nil
}

func (s *ZoneService) SetTemperature(ctx context.Context, zoneID string, hsp, csp *float64) error {
	z, ok := s.client.ZoneByID(zoneID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrZoneNotFound, zoneID)
	}
	if err := s.client.SetTemperature(ctx, z, icomfort.Setpoints{Hsp: hsp, Csp: csp}); err != nil {
		return err
	}
	meta := map[string]any{}
	if hsp != nil {
		meta["hsp"] = *hsp
	}
	if csp != nil {
		meta["csp"] = *csp
	}
	s.record(ctx, zoneID, "setpoints changed", meta)
	return nil
}

func (s *ZoneService) SetFan(ctx context.Context, zoneID string, mode string) error {
	z, ok := s.client.ZoneByID(zoneID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrZoneNotFound, zoneID)
	}
	if err := s.client.SetFanMode(ctx, z, icomfort.FanMode(mode)); err != nil {
		return err
	}
	s.record(ctx, zoneID, "fan mode set to "+mode, map[string]any{"fan_mode": mode})
	return nil
}

func (s *ZoneService) record(ctx context.Context, zoneID, desc string, meta map[string]any) {
	if s.events == nil {
		return
	}
	meta["zone"] = zoneID
	_ = s.events.Append(ctx, history.Event{
		Type:        history.TypeCommand,
		Description: desc,
		Metadata:    meta,
	})
}
