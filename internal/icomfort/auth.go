package icomfort

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/lukezbihlyj/icomfort-go/internal/logger"
)

// clientCertificate is the fixed, opaque blob the mobile apps post to obtain
// a certificate token. It identifies the application, not the user, and is
// sent verbatim as a text/plain body.
const clientCertificate = "MIIBszCCARwCAQEwDQYJKoZIhvcNAQEEBQAwKDELMAkGA1UEBhMCVVMxGTAXBgNV" +
	"BAMMEGljb21mb3J0LW1vYmlsZTAeFw0xNzA0MjYwMDAwMDBaFw0zNzA0MjYwMDAw" +
	"MDBaMCgxCzAJBgNVBAYTAlVTMRkwFwYDVQQDDBBpY29tZm9ydC1tb2JpbGUwgZ8w" +
	"DQYJKoZIhvcNAQEBBQADgY0AMIGJAoGBAKqsG4kjd8SvEQZOGYsibyfhdbkfYlVE" +
	"0mqfJNPihHkordsCpmBBeA0zJGFGla7eX5DDJWWRr6fBPcHLt3640KYOJ9h05XG1" +
	"mljCXFMpNBGGFidCtUkEJm1PhZ4XPKt0nLaNTpjBEmeZ5rCnYsa6LDilIcWWIbJB" +
	"jSUOx9JdT1kbAgMBAAEwDQYJKoZIhvcNAQEEBQADgYEAQk5C5A2PLZtEO2XKh0eJ" +
	"wcrVZ2zRxkkEmYyHkNHRHdfWvCYdCiNQN93dcHXhUB5cTOp8MPLxuUHJzxDLUjRe" +
	"ZtPKUeqZaZ3DAqPPpS2UVqvMuyXvMgohP6YjcXpYczyPGyZiQRugGkSvgFRYTFgW" +
	"H6H2sMh4vT8cfAW2He6P4t0="

// defaultTokenLifetime is assumed when the service omits or mangles the
// expiry on a user token; refresh then happens on the normal proactive path.
const defaultTokenLifetime = 24 * time.Hour

// authSession owns the two-step handshake and the resulting tokens. The
// certificate token is obtained once per session; the bearer token carries an
// absolute expiry that the pump checks before every cycle. There is no
// separate refresh exchange: refreshing means redoing the whole handshake.
type authSession struct {
	cfg *Config
	tr  *transport
	log *logger.Logger

	mu        sync.Mutex
	certToken string
	bearer    string
	expiry    time.Time
	now       func() time.Time
}

func newAuthSession(cfg *Config, tr *transport, log *logger.Logger) *authSession {
	return &authSession{cfg: cfg, tr: tr, log: log, now: time.Now}
}

type certificateResponse struct {
	ServerAssigned struct {
		Security struct {
			CertificateToken struct {
				Encoded string `json:"encoded"`
			} `json:"certificateToken"`
		} `json:"security"`
	} `json:"serverAssigned"`
}

type loginResponse struct {
	ServerAssignedRoot struct {
		ServerAssigned struct {
			Security struct {
				UserToken struct {
					Encoded string `json:"encoded"`
					Expires string `json:"expires"`
				} `json:"userToken"`
			} `json:"security"`
		} `json:"serverAssigned"`
	} `json:"ServerAssignedRoot"`
	ReadyHomes struct {
		Homes []homeEntry `json:"homes"`
	} `json:"readyHomes"`
}

type homeEntry struct {
	HomeID  int64 `json:"homeId"`
	Systems []struct {
		ID    int    `json:"id"`
		SysID string `json:"sysId"`
	} `json:"systems"`
}

// authenticate exchanges the client certificate for a certificate token. Up
// to certAttempts tries; the last observed failure text becomes the error
// detail. No backoff between attempts beyond the transport timeout.
func (s *authSession) authenticate(ctx context.Context) error {
	headers := map[string]string{"Content-Type": "text/plain"}

	var lastDetail string
	for attempt := 1; attempt <= certAttempts; attempt++ {
		resp, err := s.tr.do(ctx, http.MethodPost, s.cfg.AuthenticateURL, headers, []byte(clientCertificate))
		if err != nil {
			lastDetail = err.Error()
			// A dead context won't recover on retry; stop burning attempts.
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %v", ErrAuthFailed, ctx.Err())
			}
			s.log.Warnw("certificate_exchange_attempt_failed", "attempt", attempt, "err", err)
			continue
		}
		if resp.status != http.StatusOK {
			lastDetail = bodyExcerpt(resp.body)
			s.log.Warnw("certificate_exchange_rejected", "attempt", attempt, "status", resp.status)
			continue
		}

		var cr certificateResponse
		if err := json.Unmarshal(resp.body, &cr); err != nil {
			lastDetail = "malformed response: " + err.Error()
			continue
		}
		token := cr.ServerAssigned.Security.CertificateToken.Encoded
		if token == "" {
			lastDetail = "response carried no certificate token"
			continue
		}

		s.mu.Lock()
		s.certToken = token
		s.mu.Unlock()
		return nil
	}

	return fmt.Errorf("%w after %d attempts: %s", ErrAuthFailed, certAttempts, lastDetail)
}

// login posts form-encoded credentials under the certificate token. On
// success it stores the bearer token and its absolute expiry, and returns the
// home enumeration so the caller can populate its system collection.
func (s *authSession) login(ctx context.Context, email, password string) ([]homeEntry, error) {
	s.mu.Lock()
	cert := s.certToken
	s.mu.Unlock()
	if cert == "" {
		return nil, fmt.Errorf("%w: no certificate token, authenticate first", ErrLoginFailed)
	}

	form := url.Values{}
	form.Set("username", email)
	form.Set("password", password)
	form.Set("grant_type", "password")
	form.Set("applicationid", s.cfg.ApplicationID)

	headers := map[string]string{
		"Content-Type": "application/x-www-form-urlencoded",
		// Raw token, no "Bearer " prefix; the service rejects prefixed values.
		"Authorization": cert,
	}

	resp, err := s.tr.do(ctx, http.MethodPost, s.cfg.LoginURL, headers, []byte(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoginFailed, err)
	}
	if resp.status != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrLoginFailed, resp.status, bodyExcerpt(resp.body))
	}

	var lr loginResponse
	if err := json.Unmarshal(resp.body, &lr); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %v", ErrLoginFailed, err)
	}
	token := lr.ServerAssignedRoot.ServerAssigned.Security.UserToken.Encoded
	if token == "" {
		return nil, fmt.Errorf("%w: response carried no user token", ErrLoginFailed)
	}

	expiry := s.parseExpiry(lr.ServerAssignedRoot.ServerAssigned.Security.UserToken.Expires)

	s.mu.Lock()
	s.bearer = token
	s.expiry = expiry
	s.mu.Unlock()

	s.log.Infow("login_ok", "homes", len(lr.ReadyHomes.Homes), "token_expires", expiry)
	return lr.ReadyHomes.Homes, nil
}

func (s *authSession) parseExpiry(raw string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	s.log.Warnw("token_expiry_unparseable", "raw", raw, "assumed_lifetime", defaultTokenLifetime)
	return s.now().Add(defaultTokenLifetime)
}

// token returns the current bearer token, empty when not logged in.
func (s *authSession) token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bearer
}

// needsRefresh reports whether the bearer token is missing or inside the
// safety buffer before expiry: true exactly when now >= expiry - buffer.
func (s *authSession) needsRefresh() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bearer == "" {
		return true
	}
	return !s.now().Before(s.expiry.Add(-s.cfg.RefreshBuffer))
}

// forceRefresh discards both tokens and redoes the full handshake.
func (s *authSession) forceRefresh(ctx context.Context, email, password string) ([]homeEntry, error) {
	s.mu.Lock()
	s.certToken = ""
	s.bearer = ""
	s.expiry = time.Time{}
	s.mu.Unlock()

	if err := s.authenticate(ctx); err != nil {
		return nil, err
	}
	return s.login(ctx, email, password)
}

// clear drops all session state. Used by Shutdown.
func (s *authSession) clear() {
	s.mu.Lock()
	s.certToken = ""
	s.bearer = ""
	s.expiry = time.Time{}
	s.mu.Unlock()
}
