package stream

import "errors"

var (
	// ErrSourceUnavailable means the capture source could not be opened.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrNoActiveSession means the viewer has no running stream session.
	ErrNoActiveSession = errors.New("no active session")

	// ErrSessionClosed means the session has stopped or failed and will
	// produce no further frames.
	ErrSessionClosed = errors.New("session closed")
)
