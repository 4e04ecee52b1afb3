package icomfort

import "errors"

// Error taxonomy for the client. Every failure returned by this package wraps
// exactly one of these sentinels, so callers branch with errors.Is.
var (
	// ErrAuthFailed: the certificate exchange exhausted its retries.
	ErrAuthFailed = errors.New("certificate exchange failed")

	// ErrLoginFailed: credentials rejected or the login response was malformed.
	ErrLoginFailed = errors.New("login failed")

	// ErrUnauthorized: bearer token missing or rejected by the service.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrComms: transport-level failure (timeout, DNS, TLS, refused) or a
	// non-2xx response with no more specific classification.
	ErrComms = errors.New("communication error")

	// ErrBadParameters: malformed command input; never raised by the poll path.
	ErrBadParameters = errors.New("bad parameters")
)
