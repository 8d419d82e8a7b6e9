package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// TransientError wraps an error that is safe to retry (e.g., 429, 5xx, network timeout).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps an error as transient with an optional HTTP status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// anthropicTransientTypes are the retryable error types in Anthropic API
// error bodies. The SDK renders the body into the error string, so a
// substring check sees them even through eris wrapping.
var anthropicTransientTypes = []string{
	"rate_limit_error", // 429
	"api_error",        // 500
	"overloaded_error", // 529
}

// httpTransientStatusLines match the "<code> <reason>" fragment the
// Anthropic SDK and net/http embed in error strings.
var httpTransientStatusLines = []string{
	"408 request timeout",
	"429 too many requests",
	"500 internal server error",
	"502 bad gateway",
	"503 service unavailable",
	"504 gateway timeout",
}

// networkTransientPatterns cover connection-level failures below the
// HTTP layer, seen on both the Anthropic and Mistral OCR calls.
var networkTransientPatterns = []string{
	"connection reset by peer",
	"broken pipe",
	"no such host",
	"tls handshake timeout",
	"i/o timeout",
}

// IsTransient returns true if the error (or any error in its chain) is a
// TransientError, or if it matches the transient failure shapes this
// system sees: Anthropic API rate limits and overloads, retryable HTTP
// status lines, and connection-level network errors.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	// Check for explicit TransientError in chain.
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	// Check for network-level transient errors.
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	// Connection reset / refused / DNS.
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// String-based heuristics for wrapped errors from HTTP clients.
	msg := strings.ToLower(err.Error())
	for _, p := range anthropicTransientTypes {
		if strings.Contains(msg, p) {
			return true
		}
	}
	for _, p := range httpTransientStatusLines {
		if strings.Contains(msg, p) {
			return true
		}
	}
	for _, p := range networkTransientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsTransientHTTPStatus returns true if the HTTP status code indicates a
// transient server-side issue that is safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, // Request Timeout
		429, // Too Many Requests
		500, // Internal Server Error
		502, // Bad Gateway
		503, // Service Unavailable
		504, // Gateway Timeout
		529: // Overloaded (Anthropic)
		return true
	default:
		return false
	}
}
