package session

import "errors"

var (
	// ErrLockBusy means another frame for the same session is in flight.
	// The caller should drop the frame, not wait.
	ErrLockBusy = errors.New("session busy")
	// ErrThrottled means the frame arrived before the per-session minimum
	// interval elapsed.
	ErrThrottled = errors.New("session throttled")
	// ErrDuplicateFrame means the frame bytes hash to the same value as
	// the previously accepted frame.
	ErrDuplicateFrame = errors.New("duplicate frame")

	ErrNoObservation = errors.New("no observation recorded for session")
	ErrNoSolution    = errors.New("no solution recorded for session")
	ErrNoGuide       = errors.New("no active guide for session")
)
