package icomfort

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/lukezbihlyj/icomfort-go/internal/logger"
)

// DeviceClient is the capability set an integration layer consumes. The
// modern (S30/E30) family implements it here; the legacy family has its own
// endpoint scheme and a much simpler request/response poller behind the same
// contract.
type DeviceClient interface {
	ServerConnect(ctx context.Context) error
	Initialize(ctx context.Context) error
	Systems() []SystemState
	Zones() []*Zone
	OnUpdate(fn func(ZoneState))
	StartMessagePump(onError func(error))
	SetHVACMode(ctx context.Context, zone *Zone, mode HVACMode) error
	SetTemperature(ctx context.Context, zone *Zone, sp Setpoints) error
	SetFanMode(ctx context.Context, zone *Zone, mode FanMode) error
	Shutdown()
}

// Setpoints carries an optional heating and/or cooling setpoint in the
// zone's native Fahrenheit scale; the Celsius mirror is computed on write.
type Setpoints struct {
	Hsp *float64
	Csp *float64
}

// Client is the account-level client for one iComfort account: it owns the
// auth session, the discovered systems, the observer list, and the message
// pump. Construct with New, connect with ServerConnect, then start the pump.
type Client struct {
	cfg   Config
	log   *logger.Logger
	tr    *transport
	auth  *authSession
	stats PumpStats

	mu        sync.RWMutex
	systems   map[string]*System
	observers []func(ZoneState)

	pumpMu  sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}

	stateMu  sync.Mutex
	state    pumpState
	failures int
}

var _ DeviceClient = (*Client)(nil)

// New builds a Client. stats may be nil.
func New(cfg Config, log *logger.Logger, stats PumpStats) *Client {
	cfg = cfg.withDefaults()
	if stats == nil {
		stats = noopStats{}
	}
	tr := newTransport(cfg.RequestTimeout, log.Named("transport"))
	return &Client{
		cfg:     cfg,
		log:     log,
		tr:      tr,
		auth:    newAuthSession(&cfg, tr, log.Named("auth")),
		stats:   stats,
		systems: make(map[string]*System),
		state:   stateDisconnected,
	}
}

// ServerConnect performs the certificate exchange and credential login, and
// populates the system collection from the returned home enumeration.
func (c *Client) ServerConnect(ctx context.Context) error {
	if err := c.auth.authenticate(ctx); err != nil {
		return err
	}
	homes, err := c.auth.login(ctx, c.cfg.Email, c.cfg.Password)
	if err != nil {
		return err
	}
	c.mergeHomes(homes)
	return nil
}

// mergeHomes folds a home enumeration into the system collection. Existing
// systems are kept as-is; systems are never destroyed during a session.
func (c *Client) mergeHomes(homes []homeEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, h := range homes {
		for _, s := range h.Systems {
			if s.SysID == "" {
				continue
			}
			if _, ok := c.systems[s.SysID]; !ok {
				c.systems[s.SysID] = newSystem(s.SysID)
				c.log.Infow("system_discovered", "sys_id", s.SysID, "home_id", h.HomeID)
			}
		}
	}
}

// refresh redoes the full handshake and re-merges the home enumeration.
func (c *Client) refresh(ctx context.Context) error {
	homes, err := c.auth.forceRefresh(ctx, c.cfg.Email, c.cfg.Password)
	if err != nil {
		return err
	}
	c.mergeHomes(homes)
	return nil
}

// subscribeAll subscribes to every known system.
func (c *Client) subscribeAll(ctx context.Context) error {
	for _, sys := range c.systemList() {
		if err := c.subscribe(ctx, sys.SysID()); err != nil {
			return fmt.Errorf("subscribe %s: %w", sys.SysID(), err)
		}
	}
	return nil
}

func (c *Client) systemList() []*System {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*System, 0, len(c.systems))
	for _, s := range c.systems {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].sysID < out[j].sysID })
	return out
}

func (c *Client) systemBySysID(sysID string) *System {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.systems[sysID]
}

// Systems returns snapshots of all known systems.
func (c *Client) Systems() []SystemState {
	list := c.systemList()
	out := make([]SystemState, 0, len(list))
	for _, s := range list {
		out = append(out, s.Snapshot())
	}
	return out
}

// Zones returns the currently-known active zones across all systems, ordered
// by system id then zone index.
func (c *Client) Zones() []*Zone {
	var out []*Zone
	for _, s := range c.systemList() {
		out = append(out, s.ActiveZones()...)
	}
	return out
}

// ZoneByID resolves a zone by its derived external identifier. Inactive
// placeholders resolve too; callers filter on Active when it matters.
func (c *Client) ZoneByID(id string) (*Zone, bool) {
	for _, s := range c.systemList() {
		s.mu.RLock()
		for _, z := range s.zones {
			if z.ID() == id {
				s.mu.RUnlock()
				return z, true
			}
		}
		s.mu.RUnlock()
	}
	return nil, false
}

// OnUpdate registers an observer invoked with a snapshot of each updated
// active zone. Observers run on the pump goroutine; a panicking observer is
// isolated and logged so it cannot block the others or the pump.
func (c *Client) OnUpdate(fn func(ZoneState)) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	c.observers = append(c.observers, fn)
	c.mu.Unlock()
}

func (c *Client) notify(zs ZoneState) {
	c.mu.RLock()
	observers := make([]func(ZoneState), len(c.observers))
	copy(observers, c.observers)
	c.mu.RUnlock()

	for _, fn := range observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.log.Errorw("observer_panic", "zone", zs.ID, "panic", r)
				}
			}()
			fn(zs)
		}()
	}
}

// SetHVACMode publishes an operating-mode change for a zone, written to the
// zone's manual-mode schedule slot.
func (c *Client) SetHVACMode(ctx context.Context, zone *Zone, mode HVACMode) error {
	if zone == nil {
		return fmt.Errorf("%w: nil zone", ErrBadParameters)
	}
	if !validHVACMode(mode) {
		return fmt.Errorf("%w: unknown hvac mode %q", ErrBadParameters, mode)
	}
	period := map[string]any{"systemMode": string(mode)}
	data := schedulePayload(c.manualScheduleID(zone.Index()), period)
	return c.publish(ctx, zone.SystemID(), data)
}

// SetTemperature publishes new setpoints for a zone. Values are Fahrenheit;
// the Celsius mirror is computed here so both scales stay consistent.
func (c *Client) SetTemperature(ctx context.Context, zone *Zone, sp Setpoints) error {
	if zone == nil {
		return fmt.Errorf("%w: nil zone", ErrBadParameters)
	}
	if sp.Hsp == nil && sp.Csp == nil {
		return fmt.Errorf("%w: no setpoint given", ErrBadParameters)
	}
	period := map[string]any{}
	if sp.Hsp != nil {
		period["hsp"] = *sp.Hsp
		period["hspC"] = FToC(*sp.Hsp)
	}
	if sp.Csp != nil {
		period["csp"] = *sp.Csp
		period["cspC"] = FToC(*sp.Csp)
	}
	data := schedulePayload(c.manualScheduleID(zone.Index()), period)
	return c.publish(ctx, zone.SystemID(), data)
}

// SetFanMode publishes a fan-mode change for a zone.
func (c *Client) SetFanMode(ctx context.Context, zone *Zone, mode FanMode) error {
	if zone == nil {
		return fmt.Errorf("%w: nil zone", ErrBadParameters)
	}
	if !validFanMode(mode) {
		return fmt.Errorf("%w: unknown fan mode %q", ErrBadParameters, mode)
	}
	period := map[string]any{"fanMode": string(mode)}
	data := schedulePayload(c.manualScheduleID(zone.Index()), period)
	return c.publish(ctx, zone.SystemID(), data)
}

// Shutdown stops the pump if running and clears all in-memory auth and
// system state. Idempotent.
func (c *Client) Shutdown() {
	c.pumpMu.Lock()
	if c.running {
		close(c.stop)
		<-c.done
		c.running = false
	}
	c.pumpMu.Unlock()

	c.auth.clear()

	c.mu.Lock()
	c.systems = make(map[string]*System)
	c.observers = nil
	c.mu.Unlock()

	c.setState(stateDisconnected)
	c.log.Infow("client_shutdown")
}
