package alphavantage

import "fmt"

// ErrQuotaExceeded indicates the provider rejected a request because the API
// quota was exhausted. It is a backoff signal, not a permanent failure: the
// caller should wait one full quota window before retrying.
type ErrQuotaExceeded struct {
	Message string
}

func (e ErrQuotaExceeded) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("alphavantage: rate limit exceeded: %s", e.Message)
	}
	return "alphavantage: rate limit exceeded"
}

// QuotaExceeded marks this error as the provider's quota signal. Callers
// detect it structurally (errors.As against an interface) so they never
// depend on provider-specific response text.
func (e ErrQuotaExceeded) QuotaExceeded() bool { return true }

// ErrInvalidAPIKey indicates the configured API key was rejected.
type ErrInvalidAPIKey struct{}

func (e ErrInvalidAPIKey) Error() string {
	return "alphavantage: invalid or missing API key"
}

// ErrSymbolNotFound indicates the provider has no data for a symbol.
type ErrSymbolNotFound struct {
	Symbol string
}

func (e ErrSymbolNotFound) Error() string {
	return fmt.Sprintf("alphavantage: no data for symbol %s", e.Symbol)
}
