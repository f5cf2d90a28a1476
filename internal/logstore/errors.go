package logstore

import (
	"errors"
	"fmt"
)

var (
	// ErrStreamNotFound is returned when reading a stream that has no records.
	ErrStreamNotFound = errors.New("stream not found")

	// ErrWrongExpectedVersion is the target of every optimistic concurrency
	// conflict; match it with errors.Is.
	ErrWrongExpectedVersion = errors.New("wrong expected version")

	ErrSubscriptionExists   = errors.New("persistent subscription already exists")
	ErrSubscriptionNotFound = errors.New("persistent subscription not found")
	ErrSubscriptionClosed   = errors.New("persistent subscription closed")

	// ErrNotInFlight is returned when settling a record that was not
	// delivered by this subscription or was already settled.
	ErrNotInFlight = errors.New("record is not awaiting settlement")
)

// WrongExpectedVersionError describes a rejected append.
type WrongExpectedVersionError struct {
	Stream   string
	Expected ExpectedRevision
	// Actual is the stream's revision at the time of the append, -1 if absent.
	Actual int64
}

func (e *WrongExpectedVersionError) Error() string {
	return fmt.Sprintf("append to %s: expected revision %s, actual %d", e.Stream, e.Expected, e.Actual)
}

func (e *WrongExpectedVersionError) Unwrap() error {
	return ErrWrongExpectedVersion
}
