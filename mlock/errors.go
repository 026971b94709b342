package mlock

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrLockExists indicates a live lease is held by another owner and the
	// caller requested a non-blocking acquire. Use errors.As to recover the
	// current holder's identity via *LockExistsError.
	ErrLockExists = errors.New("mlock: lock exists")

	// ErrAcquireTimeout indicates a blocking Acquire with a finite timeout
	// elapsed without acquiring the lock.
	ErrAcquireTimeout = errors.New("mlock: acquire timeout")
)

// LockExistsError carries the identity of the current holder alongside
// ErrLockExists so callers can report who holds the lock.
type LockExistsError struct {
	Key       string
	Host      string
	PID       int
	ExpiresAt time.Time
}

func (e *LockExistsError) Error() string {
	return fmt.Sprintf("mlock: lock %q held by host %s pid %d, expires at %s",
		e.Key, e.Host, e.PID, e.ExpiresAt.Format(time.RFC3339))
}

func (e *LockExistsError) Unwrap() error { return ErrLockExists }

// TimeOffsetError reports that the local clock disagrees with the database
// server's clock by more than the configured maximum offset. Fatal to the
// acquire attempt that raised it; the caller should fix its clock.
type TimeOffsetError struct {
	Offset    time.Duration
	MaxOffset time.Duration
}

func (e *TimeOffsetError) Error() string {
	return fmt.Sprintf("mlock: local clock offset %s exceeds max offset %s", e.Offset, e.MaxOffset)
}
