package remote

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigInvalid is returned before any network call when credentials are missing
	ErrConfigInvalid = errors.New("remote store configuration incomplete")

	// ErrRateLimited is returned when every attempt was answered with 429
	ErrRateLimited = errors.New("remote store rate limit exceeded")

	// ErrRemoteUnavailable covers transport failures and 5xx answers after all retries
	ErrRemoteUnavailable = errors.New("remote store unavailable")
)

// StatusError is a non-success answer from the remote store
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote store error (%d): %s", e.Code, e.Body)
}
