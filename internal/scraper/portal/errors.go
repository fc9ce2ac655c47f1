package portal

import (
	"errors"
	"fmt"
)

var (
	ErrGateUnreachable         = errors.New("login portal unreachable")
	ErrIdentifierFieldNotFound = errors.New("login field not found")
	ErrPasswordFieldNotFound   = errors.New("password field not found")
	ErrChallengeRequired       = errors.New("mfa or captcha required")
	ErrPostLoginTimeout        = errors.New("post-login redirect timed out")
	ErrDownloadFailed          = errors.New("invoice download failed")

	ErrSessionUnavailable = errors.New("browser session unavailable")
	ErrDiscoveryFailed    = errors.New("invoice discovery failed")
)

// Kind strings are stable and safe to hand to API clients.
var kinds = []struct {
	err  error
	kind string
}{
	{ErrGateUnreachable, "gate_unreachable"},
	{ErrIdentifierFieldNotFound, "login_field_not_found"},
	{ErrPasswordFieldNotFound, "password_field_not_found"},
	{ErrChallengeRequired, "mfa_or_captcha_required"},
	{ErrPostLoginTimeout, "post_login_timeout"},
	{ErrDownloadFailed, "invoice_download_failed"},
	{ErrSessionUnavailable, "session_unavailable"},
	{ErrDiscoveryFailed, "discovery_failed"},
}

// KindOf maps an error to its machine-readable kind, or "unknown".
func KindOf(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "unknown"
}

// IsRetryable reports whether re-invoking the whole pipeline may help.
// Challenges are never retried: they need a human.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrChallengeRequired):
		return false
	case errors.Is(err, ErrGateUnreachable),
		errors.Is(err, ErrPostLoginTimeout),
		errors.Is(err, ErrSessionUnavailable),
		errors.Is(err, ErrDiscoveryFailed):
		return true
	default:
		return false
	}
}

// ScraperError provides detailed error context
type ScraperError struct {
	Portal    PortalCode
	Operation string
	Cause     error
	Details   string
}

func (e *ScraperError) Error() string {
	if e.Details == "" {
		return fmt.Sprintf("[%s] %s failed: %v", e.Portal, e.Operation, e.Cause)
	}
	return fmt.Sprintf("[%s] %s failed: %v - %s", e.Portal, e.Operation, e.Cause, e.Details)
}

func (e *ScraperError) Unwrap() error {
	return e.Cause
}

// Kind is the machine-readable kind of the underlying cause.
func (e *ScraperError) Kind() string {
	return KindOf(e.Cause)
}
