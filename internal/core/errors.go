package core

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConnectionParameters rejects a connect request before any
	// network I/O happens. Never retried.
	ErrInvalidConnectionParameters = errors.New("invalid connection parameters")

	// ErrReconnectExhausted is terminal: the reconnect attempt cap was reached
	// and the flow must be restarted manually.
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")

	ErrMediaAccessDenied       = errors.New("media access denied")
	ErrDeviceNotFound          = errors.New("device not found")
	ErrDeviceUnavailable       = errors.New("device unavailable")
	ErrConstraintUnsatisfied   = errors.New("capture constraints unsatisfied")
	ErrDeviceEnumerationFailed = errors.New("device enumeration failed")

	// ErrAlreadyDisconnected is benign; redundant disconnects are expected
	// during teardown and are absorbed by callers.
	ErrAlreadyDisconnected = errors.New("session already disconnected")
)

// PublishFailedError reports a non-fatal publish failure for one track kind.
// The session stays connected; a later reconcile may retry.
type PublishFailedError struct {
	Kind TrackKind
	Err  error
}

func (e *PublishFailedError) Error() string {
	return fmt.Sprintf("publish %s failed: %v", e.Kind, e.Err)
}

func (e *PublishFailedError) Unwrap() error { return e.Err }

// DuplicatePublicationError is returned by a transport when the track is
// already published. Expected under concurrent reconciliation; callers adopt
// Existing instead of failing.
type DuplicatePublicationError struct {
	Existing Publication
}

func (e *DuplicatePublicationError) Error() string {
	return fmt.Sprintf("track %s already published", e.Existing.TrackID())
}
