// Package errors holds the sentinel errors shared by every service and the
// mapping from errors to HTTP status codes used by the HTTP front ends.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Framing and protocol failures.
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrTruncatedFrame   = errors.New("truncated frame")
	ErrFrameTooLarge    = errors.New("frame exceeds maximum size")
	ErrProtocol         = errors.New("protocol error")
	// ErrRequestNotSent marks failures where no byte of the request reached
	// the peer, so sending it again cannot duplicate its effect.
	ErrRequestNotSent = errors.New("request not sent")
)

// Service level failures.
var (
	ErrShardUnavailable    = errors.New("shard unavailable")
	ErrStatsUnavailable    = errors.New("statistics unavailable")
	ErrTimeout             = errors.New("operation timed out")
	ErrInvalidInput        = errors.New("invalid input")
	ErrIdempotencyConflict = errors.New("idempotency key already used")
	ErrRateLimited         = errors.New("rate limit exceeded")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInternal            = errors.New("internal error")
)

// RemoteError is an `E` reply received from a peer service. Message is the
// peer's text verbatim.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string { return e.Message }

// Remote wraps a peer error message.
func Remote(message string) error {
	return &RemoteError{Message: message}
}

// IsRemote reports whether err carries an `E` reply from a peer.
func IsRemote(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}

// Protocolf builds an error matching ErrProtocol.
func Protocolf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrProtocol, fmt.Sprintf(format, args...))
}

// AppError pins an HTTP status to a sentinel.
type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{Err: sentinel, Message: message, StatusCode: statusCode}
}

func (e *AppError) Error() string {
	if e.Message == "" {
		return e.Err.Error()
	}
	return e.Err.Error() + ": " + e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

var statusBySentinel = []struct {
	sentinel error
	status   int
}{
	{ErrIdempotencyConflict, http.StatusConflict},
	{ErrInvalidInput, http.StatusBadRequest},
	{ErrRateLimited, http.StatusTooManyRequests},
	{ErrUnauthorized, http.StatusUnauthorized},
	{ErrShardUnavailable, http.StatusServiceUnavailable},
	{ErrStatsUnavailable, http.StatusServiceUnavailable},
	{ErrTimeout, http.StatusServiceUnavailable},
	{ErrProtocol, http.StatusBadGateway},
	{ErrConnectionClosed, http.StatusBadGateway},
	{ErrRequestNotSent, http.StatusServiceUnavailable},
}

// HTTPStatusCode maps err to a response status. An AppError's own status
// wins; unknown errors are 500.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	for _, s := range statusBySentinel {
		if errors.Is(err, s.sentinel) {
			return s.status
		}
	}
	return http.StatusInternalServerError
}
