package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lukezbihlyj/icomfort-go/internal/history"
	"github.com/lukezbihlyj/icomfort-go/internal/icomfort"
	"github.com/lukezbihlyj/icomfort-go/internal/logger"
	"github.com/lukezbihlyj/icomfort-go/internal/service"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const goodToken = "good-token"

// fakeAuth accepts one credential pair and one bearer token.
type fakeAuth struct{}

func (fakeAuth) SignIn(username, password string) (string, error) {
	if username == "admin" && password == "secret" {
		return goodToken, nil
	}
	return "", service.ErrInvalidCredentials
}

func (fakeAuth) ParseToken(accessToken string) (string, error) {
	if accessToken == goodToken {
		return "admin", nil
	}
	return "", service.ErrInvalidToken
}

// fakeMonitoring serves canned snapshots.
type fakeMonitoring struct {
	systems []icomfort.SystemState
	zones   []icomfort.ZoneState
}

func (f *fakeMonitoring) Systems() []icomfort.SystemState { return f.systems }
func (f *fakeMonitoring) Zones() []icomfort.ZoneState     { return f.zones }

func (f *fakeMonitoring) Zone(id string) (icomfort.ZoneState, bool) {
	for _, z := range f.zones {
		if z.ID == id {
			return z, true
		}
	}
	return icomfort.ZoneState{}, false
}

// fakeControl records the last command and returns a scripted error.
type fakeControl struct {
	err      error
	lastZone string
	lastMode string
	lastHsp  *float64
	lastCsp  *float64
	lastFan  string
}

func (f *fakeControl) SetMode(_ context.Context, zoneID, mode string) error {
	f.lastZone, f.lastMode = zoneID, mode
	return f.err
}

func (f *fakeControl) SetTemperature(_ context.Context, zoneID string, hsp, csp *float64) error {
	f.lastZone, f.lastHsp, f.lastCsp = zoneID, hsp, csp
	return f.err
}

func (f *fakeControl) SetFan(_ context.Context, zoneID, mode string) error {
	f.lastZone, f.lastFan = zoneID, mode
	return f.err
}

// fakeEventLog captures the filter it was asked for.
type fakeEventLog struct {
	events []history.Event
	err    error
	filter history.Filter
}

func (f *fakeEventLog) List(_ context.Context, flt history.Filter) ([]history.Event, error) {
	f.filter = flt
	return f.events, f.err
}

type testEnv struct {
	router  *gin.Engine
	control *fakeControl
	monitor *fakeMonitoring
	logs    *fakeEventLog
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		control: &fakeControl{},
		monitor: &fakeMonitoring{},
		logs:    &fakeEventLog{},
	}
	services := &service.Service{
		Authorization: fakeAuth{},
		Monitoring:    env.monitor,
		Control:       env.control,
		EventLog:      env.logs,
	}
	h := NewHandler(services, logger.Get(logger.ErrorLevel).Named(t.Name()), nil)
	env.router = h.InitRoutes()
	return env
}

func (e *testEnv) request(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	w := env.request(t, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestSignIn(t *testing.T) {
	env := newTestEnv(t)

	t.Run("valid credentials", func(t *testing.T) {
		w := env.request(t, http.MethodPost, "/auth/sign-in", "",
			map[string]string{"username": "admin", "password": "secret"})
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", w.Code, w.Body)
		}
		var resp map[string]string
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp["token"] != goodToken {
			t.Fatalf("token = %q", resp["token"])
		}
	})

	t.Run("bad credentials", func(t *testing.T) {
		w := env.request(t, http.MethodPost, "/auth/sign-in", "",
			map[string]string{"username": "admin", "password": "guess"})
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d", w.Code)
		}
	})

	t.Run("missing fields", func(t *testing.T) {
		w := env.request(t, http.MethodPost, "/auth/sign-in", "",
			map[string]string{"username": "admin"})
		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d", w.Code)
		}
	})
}

func TestTokenMiddleware(t *testing.T) {
	env := newTestEnv(t)

	t.Run("missing header", func(t *testing.T) {
		w := env.request(t, http.MethodGet, "/api/v1/zones", "", nil)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d", w.Code)
		}
	})

	t.Run("malformed header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/zones", nil)
		req.Header.Set("Authorization", "Token abc")
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d", w.Code)
		}
	})

	t.Run("invalid token", func(t *testing.T) {
		w := env.request(t, http.MethodGet, "/api/v1/zones", "forged", nil)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d", w.Code)
		}
	})

	t.Run("valid token passes through", func(t *testing.T) {
		w := env.request(t, http.MethodGet, "/api/v1/zones", goodToken, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
	})
}

func TestGetZones(t *testing.T) {
	env := newTestEnv(t)
	env.monitor.zones = []icomfort.ZoneState{
		{ID: "SYS1_0", Active: true, Temperature: 70},
		{ID: "SYS1_1", Active: true, Temperature: 68},
	}

	w := env.request(t, http.MethodGet, "/api/v1/zones", goodToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var zones []icomfort.ZoneState
	if err := json.Unmarshal(w.Body.Bytes(), &zones); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(zones) != 2 || zones[0].ID != "SYS1_0" {
		t.Fatalf("unexpected zones: %+v", zones)
	}
}

func TestGetZone(t *testing.T) {
	env := newTestEnv(t)
	env.monitor.zones = []icomfort.ZoneState{{ID: "SYS1_0", Active: true, Temperature: 70}}

	t.Run("known zone", func(t *testing.T) {
		w := env.request(t, http.MethodGet, "/api/v1/zones/SYS1_0", goodToken, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
	})

	t.Run("unknown zone", func(t *testing.T) {
		w := env.request(t, http.MethodGet, "/api/v1/zones/GHOST_9", goodToken, nil)
		if w.Code != http.StatusNotFound {
			t.Fatalf("status = %d", w.Code)
		}
	})
}

func TestSetTemperature(t *testing.T) {
	t.Run("dispatches setpoints", func(t *testing.T) {
		env := newTestEnv(t)
		w := env.request(t, http.MethodPost, "/api/v1/zones/SYS1_1/temperature", goodToken,
			map[string]float64{"hsp": 68})
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", w.Code, w.Body)
		}
		if env.control.lastZone != "SYS1_1" || env.control.lastHsp == nil || *env.control.lastHsp != 68 || env.control.lastCsp != nil {
			t.Fatalf("command not forwarded: %+v", env.control)
		}
	})

	t.Run("unknown zone maps to 404", func(t *testing.T) {
		env := newTestEnv(t)
		env.control.err = service.ErrZoneNotFound
		w := env.request(t, http.MethodPost, "/api/v1/zones/GHOST_0/temperature", goodToken,
			map[string]float64{"hsp": 68})
		if w.Code != http.StatusNotFound {
			t.Fatalf("status = %d", w.Code)
		}
	})

	t.Run("bad parameters map to 400", func(t *testing.T) {
		env := newTestEnv(t)
		env.control.err = icomfort.ErrBadParameters
		w := env.request(t, http.MethodPost, "/api/v1/zones/SYS1_0/temperature", goodToken,
			map[string]float64{})
		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d", w.Code)
		}
	})

	t.Run("cloud rejection maps to 502", func(t *testing.T) {
		env := newTestEnv(t)
		env.control.err = icomfort.ErrUnauthorized
		w := env.request(t, http.MethodPost, "/api/v1/zones/SYS1_0/temperature", goodToken,
			map[string]float64{"hsp": 68})
		if w.Code != http.StatusBadGateway {
			t.Fatalf("status = %d", w.Code)
		}
	})
}

func TestSetModeAndFan(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(t, http.MethodPost, "/api/v1/zones/SYS1_0/mode", goodToken,
		map[string]string{"mode": "heat"})
	if w.Code != http.StatusOK || env.control.lastMode != "heat" {
		t.Fatalf("mode: status=%d lastMode=%q", w.Code, env.control.lastMode)
	}

	w = env.request(t, http.MethodPost, "/api/v1/zones/SYS1_0/fan", goodToken,
		map[string]string{"mode": "circulate"})
	if w.Code != http.StatusOK || env.control.lastFan != "circulate" {
		t.Fatalf("fan: status=%d lastFan=%q", w.Code, env.control.lastFan)
	}

	// Missing body field fails binding before the service is reached.
	w = env.request(t, http.MethodPost, "/api/v1/zones/SYS1_0/mode", goodToken, map[string]string{})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("binding: status = %d", w.Code)
	}
}

func TestGetLogs(t *testing.T) {
	env := newTestEnv(t)
	env.logs.events = []history.Event{{ID: "e1", Type: history.TypeCommand, Description: "setpoints changed"}}

	t.Run("filters parsed", func(t *testing.T) {
		w := env.request(t, http.MethodGet,
			"/api/v1/logs?from=2026-08-24T00:00:00Z&to=2026-08-24T23:59:59Z&type=COMMAND", goodToken, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		want := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
		if !env.logs.filter.From.Equal(want) || env.logs.filter.Type != "COMMAND" {
			t.Fatalf("filter not forwarded: %+v", env.logs.filter)
		}
		var events []history.Event
		if err := json.Unmarshal(w.Body.Bytes(), &events); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(events) != 1 || events[0].ID != "e1" {
			t.Fatalf("unexpected events: %+v", events)
		}
	})

	t.Run("invalid bound rejected", func(t *testing.T) {
		w := env.request(t, http.MethodGet, "/api/v1/logs?from=yesterday", goodToken, nil)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d", w.Code)
		}
	})

	t.Run("store failure maps to 500", func(t *testing.T) {
		env.logs.err = errors.New("locked")
		w := env.request(t, http.MethodGet, "/api/v1/logs", goodToken, nil)
		if w.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d", w.Code)
		}
		env.logs.err = nil
	})
}
