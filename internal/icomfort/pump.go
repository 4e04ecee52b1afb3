package icomfort

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Pump states.
type pumpState int

const (
	stateDisconnected pumpState = iota
	stateAuthenticating
	statePolling
	stateReconnecting
)

func (s pumpState) String() string {
	switch s {
	case stateDisconnected:
		return "disconnected"
	case stateAuthenticating:
		return "authenticating"
	case statePolling:
		return "polling"
	case stateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// UpdateMessage is one queued message retrieved from the service. SenderID
// identifies the originating system.
type UpdateMessage struct {
	MessageID   string          `json:"MessageID"`
	SenderID    string          `json:"SenderID"`
	MessageType string          `json:"MessageType"`
	Data        *UpdateFragment `json:"Data,omitempty"`
}

type retrieveResponse struct {
	Messages []UpdateMessage `json:"messages"`
}

// StartMessagePump begins the background poll loop and returns immediately.
// onError, if non-nil, is invoked for every absorbed or terminal-cycle error;
// the pump itself never stops because of errors, only Shutdown stops it.
func (c *Client) StartMessagePump(onError func(error)) {
	c.pumpMu.Lock()
	defer c.pumpMu.Unlock()
	if c.running {
		return
	}
	c.running = true
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	go c.runPump(c.stop, c.done, onError)
}

func (c *Client) setState(s pumpState) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if c.state != s {
		c.log.Infow("pump_state", "from", c.state.String(), "to", s.String())
	}
	c.state = s
}

func (c *Client) getState() pumpState {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

func (c *Client) resetFailures() {
	c.stateMu.Lock()
	c.failures = 0
	c.stateMu.Unlock()
}

func (c *Client) bumpFailures() int {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.failures++
	return c.failures
}

// report routes an absorbed error to the log and the optional caller
// callback. A panicking callback is isolated like any other observer.
func (c *Client) report(onError func(error), err error) {
	c.log.Errorw("pump_error", "state", c.getState().String(), "err", err)
	if onError == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.log.Errorw("error_callback_panic", "panic", r)
		}
	}()
	onError(err)
}

// runPump is the control loop. One cycle per poll interval; no two cycles
// ever run concurrently for the same client. Shutdown is cooperative: the
// stop channel is observed at the top of each iteration and at the sleep
// boundary, never mid-call.
func (c *Client) runPump(stop, done chan struct{}, onError func(error)) {
	defer close(done)
	ctx := context.Background()
	c.setState(stateAuthenticating)

	for {
		select {
		case <-stop:
			return
		default:
		}

		switch c.getState() {
		case stateDisconnected, stateAuthenticating:
			c.setState(stateAuthenticating)
			if err := c.connectAndSubscribe(ctx); err != nil {
				c.report(onError, err)
			} else {
				c.setState(statePolling)
				continue
			}

		case statePolling:
			c.stats.Cycle()
			if err := c.pumpCycle(ctx); err != nil {
				c.stats.CycleFailure()
				c.report(onError, err)
				if errors.Is(err, ErrUnauthorized) {
					// Rejected token short-circuits straight to reconnect,
					// regardless of the consecutive-failure counter.
					c.setState(stateReconnecting)
					c.resetFailures()
				} else if c.bumpFailures() >= c.cfg.FailureThreshold {
					c.setState(stateReconnecting)
					c.resetFailures()
				}
			} else {
				c.resetFailures()
			}

		case stateReconnecting:
			c.stats.Reconnect()
			if err := c.reconnect(ctx); err != nil {
				// Keep retrying on the normal cadence; never give up.
				c.report(onError, err)
			} else {
				c.setState(statePolling)
				c.resetFailures()
				continue
			}
		}

		if !c.sleepOrStop(stop, c.cfg.PollInterval) {
			return
		}
	}
}

func (c *Client) sleepOrStop(stop chan struct{}, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-stop:
		return false
	case <-t.C:
		return true
	}
}

// connectAndSubscribe brings a fresh or stale session to the polling state.
// An already-valid session is reused rather than re-handshaken.
func (c *Client) connectAndSubscribe(ctx context.Context) error {
	if c.auth.needsRefresh() {
		if err := c.refresh(ctx); err != nil {
			return err
		}
	}
	return c.subscribeAll(ctx)
}

// reconnect redoes the full handshake and re-subscribes every known system.
func (c *Client) reconnect(ctx context.Context) error {
	if err := c.refresh(ctx); err != nil {
		return err
	}
	return c.subscribeAll(ctx)
}

// pumpCycle is one poll iteration: proactive refresh when the token is inside
// its expiry buffer, then one bounded fetch of queued messages routed into
// the data model. Zero messages is not an error.
func (c *Client) pumpCycle(ctx context.Context) error {
	if c.auth.needsRefresh() {
		c.log.Infow("token_refresh_proactive")
		if err := c.refresh(ctx); err != nil {
			return fmt.Errorf("proactive refresh: %w", err)
		}
	}

	msgs, err := c.retrieveMessages(ctx)
	if err != nil {
		return err
	}
	for i := range msgs {
		c.routeMessage(&msgs[i])
	}
	c.stats.MessagesRouted(len(msgs))
	return nil
}

// retrieveMessages performs a single bounded fetch: oldest-to-newest, capped
// message count, no long-poll wait.
func (c *Client) retrieveMessages(ctx context.Context) ([]UpdateMessage, error) {
	token := c.auth.token()
	if token == "" {
		return nil, fmt.Errorf("%w: no bearer token held", ErrUnauthorized)
	}

	q := url.Values{}
	q.Set("Direction", "Oldest-to-Newest")
	q.Set("MessageCount", fmt.Sprintf("%d", c.cfg.MessageBatch))
	q.Set("StartTime", "1")
	q.Set("LongPollingTimeout", "0")
	u := c.cfg.RetrieveURL + "/" + url.PathEscape(c.cfg.ClientID) + "?" + q.Encode()

	headers := map[string]string{"Authorization": token}
	resp, err := c.tr.do(ctx, http.MethodGet, u, headers, nil)
	if err != nil {
		return nil, err
	}
	if err := classifyStatus("retrieve", resp); err != nil {
		return nil, err
	}

	var rr retrieveResponse
	if err := json.Unmarshal(resp.body, &rr); err != nil {
		return nil, fmt.Errorf("%w: malformed retrieve body: %v", ErrComms, err)
	}
	return rr.Messages, nil
}

// routeMessage applies one message's fragments to the data model and
// notifies observers for every zone that is active after its merge.
func (c *Client) routeMessage(msg *UpdateMessage) {
	if msg.Data == nil {
		return
	}
	sys := c.systemBySysID(msg.SenderID)
	if sys == nil {
		// Systems only come into existence through home enumeration.
		c.log.Debugw("message_for_unknown_system", "sender", msg.SenderID)
		return
	}

	sys.applyFragment(msg.Data.System)

	for i := range msg.Data.Zones {
		zf := &msg.Data.Zones[i]
		zone := sys.getOrCreateZone(zf.ID)
		if zone.applyFragment(zf) {
			snap := zone.Snapshot()
			c.stats.ZoneSample(snap.ID, snap.Temperature, snap.Humidity)
			c.notify(snap)
		}
	}
}

// Initialize subscribes to all known systems and then drives the poll cycle
// itself until every system has at least one active zone or the initialize
// timeout elapses. Timeout is not an error: the client proceeds with a
// warning and data fills in as it arrives.
func (c *Client) Initialize(ctx context.Context) error {
	if err := c.subscribeAll(ctx); err != nil {
		return err
	}

	wait := c.cfg.PollInterval
	if wait > time.Second {
		wait = time.Second
	}
	deadline := time.Now().Add(c.cfg.InitializeTimeout)

	for {
		if c.allSystemsActive() {
			c.log.Infow("initialize_complete")
			return nil
		}
		if time.Now().After(deadline) {
			c.log.Warnw("initialize_timeout", "timeout", c.cfg.InitializeTimeout)
			return nil
		}
		if err := c.pumpCycle(ctx); err != nil {
			// Absorbed: initialization keeps polling until the deadline.
			c.log.Warnw("initialize_cycle_error", "err", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (c *Client) allSystemsActive() bool {
	systems := c.systemList()
	if len(systems) == 0 {
		return false
	}
	for _, s := range systems {
		if len(s.ActiveZones()) == 0 {
			return false
		}
	}
	return true
}
