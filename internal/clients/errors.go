package clients

import (
	"net/http"

	"github.com/pkg/errors"
)

var (
	// ErrNetworkFailure transient failure: transport error or 5xx.
	ErrNetworkFailure = errors.New("network failure")
	// ErrRateLimited remote API answered 429.
	ErrRateLimited = errors.New("rate limited")
	// ErrNotAuthenticated remote API answered 401. Aborts whole flows.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrNotFound remote API answered 404.
	ErrNotFound = errors.New("not found")
	// ErrRequestFailed any other non-2xx answer.
	ErrRequestFailed = errors.New("request failed")
)

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrNetworkFailure)
}

func statusError(status int, body string) error {
	switch {
	case status == http.StatusTooManyRequests:
		return errors.Wrapf(ErrRateLimited, "status %d", status)
	case status == http.StatusUnauthorized:
		return errors.Wrapf(ErrNotAuthenticated, "status %d", status)
	case status == http.StatusNotFound:
		return errors.Wrapf(ErrNotFound, "status %d", status)
	case status >= http.StatusInternalServerError:
		return errors.Wrapf(ErrNetworkFailure, "status %d: %s", status, body)
	default:
		return errors.Wrapf(ErrRequestFailed, "status %d: %s", status, body)
	}
}
