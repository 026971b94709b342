package mlock

import "time"

const (
	// DefaultCollection is the collection name used when a Manager is
	// constructed standalone, outside of an Elector.
	DefaultCollection = "mongolocker"

	defaultMaxOffset     = 500 * time.Millisecond
	defaultStep          = 250 * time.Millisecond
	timeCheckCacheWindow = 10 * time.Minute
)

type config struct {
	collection   string
	timeParanoid bool
	maxOffset    time.Duration
}

// Option configures a Manager at construction time.
type Option func(*config)

// WithCollection overrides the default lock collection name.
func WithCollection(name string) Option {
	return func(c *config) { c.collection = name }
}

// WithTimeParanoid enables the clock-skew sanity check on Acquire.
func WithTimeParanoid(enabled bool) Option {
	return func(c *config) { c.timeParanoid = enabled }
}

// WithMaxOffset overrides the maximum tolerated local/server clock offset.
func WithMaxOffset(d time.Duration) Option {
	return func(c *config) { c.maxOffset = d }
}

type acquireConfig struct {
	blocking bool
	timeout  *time.Duration
	step     time.Duration
	force    bool
}

// AcquireOption configures a single Acquire call.
type AcquireOption func(*acquireConfig)

// WithBlocking controls whether Acquire retries on contention (the
// default) or fails immediately with ErrLockExists.
func WithBlocking(blocking bool) AcquireOption {
	return func(c *acquireConfig) { c.blocking = blocking }
}

// WithTimeout bounds a blocking Acquire's total wait. Combining this with
// WithBlocking(false) is a usage error.
func WithTimeout(d time.Duration) AcquireOption {
	return func(c *acquireConfig) { c.timeout = &d }
}

// WithStep overrides the delay between retry attempts (default 250ms).
func WithStep(d time.Duration) AcquireOption {
	return func(c *acquireConfig) { c.step = d }
}

// WithForce makes Acquire replace any existing document unconditionally,
// regardless of current owner or liveness. Breaks mutual exclusion if
// misused.
func WithForce(force bool) AcquireOption {
	return func(c *acquireConfig) { c.force = force }
}

type releaseConfig struct {
	force bool
}

// ReleaseOption configures a single Release call.
type ReleaseOption func(*releaseConfig)

// WithForceRelease makes Release delete the document unconditionally,
// regardless of which uuid currently owns it. Tears down another owner's
// live lease; breaks mutual exclusion if misused.
func WithForceRelease(force bool) ReleaseOption {
	return func(c *releaseConfig) { c.force = force }
}
