package icomfort

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/lukezbihlyj/icomfort-go/internal/logger"
)

func testLogger() *logger.Logger {
	return logger.Get(logger.ErrorLevel)
}

func newTestClient(t *testing.T, cfg Config) *Client {
	t.Helper()
	return New(cfg, testLogger().Named(t.Name()), nil)
}

// cloudCounts is a copy of the fake's call counters, safe to compare.
type cloudCounts struct {
	auth, login, requestData, retrieve, publish int
}

// fakeCloud stands in for the five service endpoints. Scripted responses are
// consumed in order; once a script runs out the endpoint answers with its
// happy-path default.
type fakeCloud struct {
	t   *testing.T
	srv *httptest.Server

	sysID string

	mu     sync.Mutex
	counts cloudCounts

	authFailures     int      // initial certificate exchanges to reject with 500
	retrieveStatuses []int    // per-call status overrides
	retrieveBodies   []string // per-call body overrides
	publishStatus    int      // 0 means 200

	lastLoginForm     url.Values
	lastLoginAuth     string
	requestDataBodies [][]byte
	lastPublishBody   []byte
	lastPublishAuth   string
}

func newFakeCloud(t *testing.T) *fakeCloud {
	t.Helper()
	f := &fakeCloud{t: t, sysID: "SYS1"}

	mux := http.NewServeMux()
	mux.HandleFunc("/authenticate", f.handleAuthenticate)
	mux.HandleFunc("/login", f.handleLogin)
	mux.HandleFunc("/retrieve/", f.handleRetrieve)
	mux.HandleFunc("/requestData", f.handleRequestData)
	mux.HandleFunc("/publish", f.handlePublish)

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

// clientConfig points a Client at the fake with intervals small enough for
// tests to converge quickly.
func (f *fakeCloud) clientConfig() Config {
	return Config{
		Email:             "user@example.com",
		Password:          "hunter2",
		ClientID:          "test-client",
		AuthenticateURL:   f.srv.URL + "/authenticate",
		LoginURL:          f.srv.URL + "/login",
		RetrieveURL:       f.srv.URL + "/retrieve",
		RequestDataURL:    f.srv.URL + "/requestData",
		PublishURL:        f.srv.URL + "/publish",
		PollInterval:      10 * time.Millisecond,
		RequestTimeout:    2 * time.Second,
		InitializeTimeout: 2 * time.Second,
	}
}

func (f *fakeCloud) snapshot() cloudCounts {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts
}

func (f *fakeCloud) handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.counts.auth++
	call := f.counts.auth
	reject := call <= f.authFailures
	f.mu.Unlock()

	if reject {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintf(w, "certificate rejected #%d", call)
		return
	}
	fmt.Fprintf(w, `{"serverAssigned":{"security":{"certificateToken":{"encoded":"cert-token-%d"}}}}`, call)
}

func (f *fakeCloud) handleLogin(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	form, _ := url.ParseQuery(string(body))

	f.mu.Lock()
	f.counts.login++
	call := f.counts.login
	f.lastLoginForm = form
	f.lastLoginAuth = r.Header.Get("Authorization")
	sysID := f.sysID
	f.mu.Unlock()

	expires := time.Now().Add(8 * time.Hour).UTC().Format(time.RFC3339)
	fmt.Fprintf(w, `{
		"ServerAssignedRoot":{"serverAssigned":{"security":{"userToken":{"encoded":"user-token-%d","expires":"%s"}}}},
		"readyHomes":{"homes":[{"homeId":1,"systems":[{"id":0,"sysId":"%s"}]}]}
	}`, call, expires, sysID)
}

func (f *fakeCloud) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.counts.retrieve++
	status := http.StatusOK
	if len(f.retrieveStatuses) > 0 {
		status = f.retrieveStatuses[0]
		f.retrieveStatuses = f.retrieveStatuses[1:]
	}
	respBody := `{"messages":[]}`
	if len(f.retrieveBodies) > 0 {
		respBody = f.retrieveBodies[0]
		f.retrieveBodies = f.retrieveBodies[1:]
	}
	f.mu.Unlock()

	if status != http.StatusOK {
		w.WriteHeader(status)
		return
	}
	_, _ = io.WriteString(w, respBody)
}

func (f *fakeCloud) handleRequestData(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.counts.requestData++
	f.requestDataBodies = append(f.requestDataBodies, body)
	f.mu.Unlock()
	_, _ = io.WriteString(w, "{}")
}

func (f *fakeCloud) handlePublish(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.counts.publish++
	f.lastPublishBody = body
	f.lastPublishAuth = r.Header.Get("Authorization")
	status := f.publishStatus
	f.mu.Unlock()

	if status != 0 && status != http.StatusOK {
		w.WriteHeader(status)
		return
	}
	_, _ = io.WriteString(w, "{}")
}

// waitFor polls cond until it holds or the timeout elapses.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", timeout, msg)
}
