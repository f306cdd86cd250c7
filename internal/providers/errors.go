package providers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrUnknownBackend is returned when a backend name is not registered.
	ErrUnknownBackend = errors.New("unknown backend")

	// ErrEmptyModel is returned when a request names no model.
	ErrEmptyModel = errors.New("model is required")
)

// UnavailableError reports a temporary refusal from the backend, such as an
// overloaded server (503) or a rate limit (429).
type UnavailableError struct {
	Backend    string
	StatusCode int
	Message    string
	RetryAfter time.Duration
}

func (e *UnavailableError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s temporarily unavailable (status %d): %s", e.Backend, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s temporarily unavailable (status %d)", e.Backend, e.StatusCode)
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	var unavailable *UnavailableError
	if errors.As(err, &unavailable) {
		return true
	}
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "temporarily unavailable")
}

func transientStatus(code int) bool {
	return code == http.StatusServiceUnavailable || code == http.StatusTooManyRequests
}

func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
