package mlock

import "time"

// retryAllowed is the pure decision function behind a blocking Acquire's
// retry loop. It depends only on whether the caller wants to block, when
// the attempt sequence started, how many attempts have been made, and an
// optional timeout — "now" is threaded in explicitly, rather than read
// from the system clock internally, purely so the function stays a pure
// function of its inputs and is trivial to table-test.
func retryAllowed(blocking bool, start, now time.Time, timeout *time.Duration, count int) bool {
	if !blocking {
		return count == 0
	}
	if timeout == nil {
		return true
	}
	return now.Sub(start) <= *timeout
}
