package gateway

import "errors"

// Sentinel errors for the gateway service layer. The API layer maps these
// onto HTTP statuses; anything not matched is a downstream failure and
// surfaces as a generic 500.
var (
	// Validation failures. User-correctable, 400.
	ErrInvalidEmail  = errors.New("invalid email address")
	ErrInvalidName   = errors.New("name must be at least 2 characters")
	ErrInvalidFormat = errors.New("format must be print or digital")

	// ErrBotCheckFailed means the challenge token was missing, rejected,
	// or unverifiable while the gate was configured. 400.
	ErrBotCheckFailed = errors.New("bot verification failed")

	// ErrBadSignature covers missing or mismatched signed parameters.
	// Deliberately vague: callers learn nothing about which part failed. 400.
	ErrBadSignature = errors.New("invalid signature")

	// ErrRateLimited covers both the IP window and the per-email
	// cool-down. 429.
	ErrRateLimited = errors.New("rate limited")

	// ErrSuppressed means the recipient previously bounced, complained,
	// or unsubscribed. Terminal, not retryable. 400.
	ErrSuppressed = errors.New("recipient is suppressed")

	// ErrNotConfigured means a required deployment option (signing
	// secret, sender or operator address) is missing. 500, logged loudly.
	ErrNotConfigured = errors.New("gateway is not configured")
)
