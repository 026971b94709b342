package mlock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryAllowed_NonBlocking(t *testing.T) {
	start := time.Now()
	assert.True(t, retryAllowed(false, start, start, nil, 0), "first attempt is always allowed")
	assert.False(t, retryAllowed(false, start, start, nil, 1), "non-blocking never retries")
}

func TestRetryAllowed_BlockingNoTimeout(t *testing.T) {
	start := time.Now()
	later := start.Add(time.Hour)
	assert.True(t, retryAllowed(true, start, start, nil, 0))
	assert.True(t, retryAllowed(true, start, later, nil, 50), "no timeout means retry forever")
}

func TestRetryAllowed_BlockingWithTimeout(t *testing.T) {
	start := time.Now()
	timeout := 2 * time.Second

	assert.True(t, retryAllowed(true, start, start.Add(time.Second), &timeout, 3))
	assert.True(t, retryAllowed(true, start, start.Add(2*time.Second), &timeout, 3), "deadline itself still allowed")
	assert.False(t, retryAllowed(true, start, start.Add(3*time.Second), &timeout, 3), "past the deadline")
}
