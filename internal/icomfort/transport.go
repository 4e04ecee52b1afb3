package icomfort

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lukezbihlyj/icomfort-go/internal/logger"
)

// wireResponse is what a single HTTP exchange produced: the status code, the
// raw body, and a best-effort JSON decode of it (nil when the body is not
// valid JSON). Callers that need typed data unmarshal the raw body themselves.
type wireResponse struct {
	status int
	body   []byte
	parsed any
}

// transport is the single funnel for outbound HTTP. It owns the request
// timeout and normalizes every transport-level failure (DNS, TLS, timeout,
// connection refused) into an error wrapping ErrComms, so nothing above it
// ever inspects a *url.Error.
type transport struct {
	http *http.Client
	log  *logger.Logger
}

func newTransport(timeout time.Duration, log *logger.Logger) *transport {
	return &transport{
		http: &http.Client{Timeout: timeout},
		log:  log,
	}
}

// do performs one timed call. A non-nil error always wraps ErrComms and means
// no usable response exists; non-2xx statuses are returned to the caller for
// classification, not treated as errors here.
func (t *transport) do(ctx context.Context, method, url string, headers map[string]string, body []byte) (*wireResponse, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("%w: build %s %s: %v", ErrComms, method, url, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := t.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrComms, method, url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s %s: %v", ErrComms, method, url, err)
	}

	wr := &wireResponse{status: resp.StatusCode, body: raw}
	if len(raw) > 0 {
		var parsed any
		if jsonErr := json.Unmarshal(raw, &parsed); jsonErr == nil {
			wr.parsed = parsed
		}
	}

	t.log.Debugw("http_call", "method", method, "url", url, "status", resp.StatusCode, "bytes", len(raw))
	return wr, nil
}

// bodyExcerpt trims a response body for inclusion in error detail.
func bodyExcerpt(body []byte) string {
	const maxExcerpt = 200
	s := string(body)
	if len(s) > maxExcerpt {
		return s[:maxExcerpt] + "..."
	}
	return s
}
