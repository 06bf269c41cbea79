package pvs

import (
	"errors"
	"fmt"
	"net/http"

	"pvs_monitor/internal/models"
)

var (
	ErrDetectionDegraded = errors.New("capability detection degraded")
	ErrTransportTimeout  = errors.New("transport timeout")
	ErrConnectionFailure = errors.New("connection failure")
	ErrMalformedQuery    = errors.New("malformed variable query")
	ErrMalformedResponse = errors.New("malformed device response")
	ErrSessionRejected   = errors.New("session rejected by device")
	ErrNotInitialized    = errors.New("monitor not initialized")
)

// StatusError is a non-2xx response from the device.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d from %s", e.Code, e.URL)
}

// Unwrap classifies the status so callers can use errors.Is on the sentinels.
func (e *StatusError) Unwrap() error {
	switch {
	case e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden:
		return ErrSessionRejected
	case e.Code >= 500:
		return ErrConnectionFailure
	default:
		return nil
	}
}

// AuthenticationError is a failed login against the local API.
type AuthenticationError struct {
	StatusCode int
	Reason     string
}

func (e *AuthenticationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("authentication failed: status %d: %s", e.StatusCode, e.Reason)
	}
	return "authentication failed: " + e.Reason
}

// SetupError is returned by Initialize when no protocol could be established.
type SetupError struct {
	Host string
	Err  error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("pvs setup failed for %s: %v", e.Host, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

// PollError is returned by Poll when a cycle produced no usable data.
type PollError struct {
	Protocol models.Protocol
	Err      error
}

func (e *PollError) Error() string {
	return fmt.Sprintf("pvs poll failed (%s): %v", e.Protocol, e.Err)
}

func (e *PollError) Unwrap() error { return e.Err }

// IsAuthFailure reports whether err came from a failed login or a repeated session rejection.
func IsAuthFailure(err error) bool {
	var authErr *AuthenticationError
	return errors.As(err, &authErr)
}

// IsTransient reports whether err is a transport-level failure worth another round-trip.
func IsTransient(err error) bool {
	if err == nil || IsAuthFailure(err) {
		return false
	}
	if errors.Is(err, ErrMalformedQuery) || errors.Is(err, ErrMalformedResponse) {
		return false
	}
	return errors.Is(err, ErrTransportTimeout) || errors.Is(err, ErrConnectionFailure)
}
