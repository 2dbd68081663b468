// Package apperrors standardizes the error taxonomy surfaced by the engine.
package apperrors

import (
	"context"
	"errors"
	"net"
)

// Standardized engine errors
var (
	// ErrNetwork covers timeouts and refused connections. Canonical data is
	// retained when a fetch fails this way; the caller shows a retry banner.
	ErrNetwork = errors.New("network error")

	// ErrAuthorization is a 401/403-class failure, fatal to the current view.
	ErrAuthorization = errors.New("authorization failed")

	// ErrValidation is a 400/422-class failure local to one action attempt.
	ErrValidation = errors.New("validation failed")

	// ErrChannel indicates the realtime channel is unavailable.
	ErrChannel = errors.New("realtime channel unavailable")

	// ErrStaleResponse marks a snapshot superseded by a newer request.
	// Never user-visible; discarded silently.
	ErrStaleResponse = errors.New("stale response")

	// ErrSubmissionInFlight rejects a submit while another is unsettled.
	ErrSubmissionInFlight = errors.New("submission already in flight")

	// ErrSubmissionThrottled absorbs accidental repeated submits.
	ErrSubmissionThrottled = errors.New("submission throttled")

	ErrRecordNotFound = errors.New("record not found")
	ErrServer         = errors.New("server error")
)

// ClassifyStatus maps an HTTP status code onto the taxonomy.
func ClassifyStatus(code int) error {
	switch {
	case code == 401 || code == 403:
		return ErrAuthorization
	case code == 404:
		return ErrRecordNotFound
	case code == 400 || code == 422:
		return ErrValidation
	case code >= 500:
		return ErrServer
	default:
		return nil
	}
}

// IsTransient reports whether an error is worth retrying.
func IsTransient(err error) bool {
	if errors.Is(err, ErrNetwork) || errors.Is(err, ErrChannel) || errors.Is(err, ErrServer) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// IsTimeout reports whether an error is a bounded-interval expiry rather than
// a server response.
func IsTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
