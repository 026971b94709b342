package election

import "time"

const defaultTTL = 15 * time.Second

// Callbacks are the embedder-supplied hooks an Elector invokes on state
// transitions and on every poll cycle. Every field is optional; a nil
// callback is simply skipped. A callback that panics or returns is never
// allowed to desynchronize the poll loop — Elector recovers and logs.
type Callbacks struct {
	// OnLeader fires once, the poll cycle leadership is acquired.
	OnLeader func()
	// OnLeaderLoss fires once, the poll cycle leadership is lost or
	// voluntarily released.
	OnLeaderLoss func()
	// OnLoop fires at the end of every poll cycle, leader or not.
	OnLoop func()
}

type electorConfig struct {
	ttl          time.Duration
	callbacks    Callbacks
	appVersion   string
	reportStatus bool
	collection   string
	statusColl   string
	pollObserver func(time.Duration)
}

// Option configures an Elector at construction time.
type Option func(*electorConfig)

// WithTTL overrides the default 15s lease TTL. Leaders poll at half this
// interval so a healthy leader renews its lease roughly twice per window.
func WithTTL(d time.Duration) Option {
	return func(c *electorConfig) { c.ttl = d }
}

// WithCallbacks registers the embedder's leadership transition hooks.
func WithCallbacks(cb Callbacks) Option {
	return func(c *electorConfig) { c.callbacks = cb }
}

// WithAppVersion stamps every StatusDoc this instance reports with the
// given version string, for fleet-wide version visibility.
func WithAppVersion(v string) Option {
	return func(c *electorConfig) { c.appVersion = v }
}

// WithReportStatus toggles heartbeat reporting. Disabling it stops the
// Elector from writing to the status collection at all; cluster_detail
// will then never see this instance.
func WithReportStatus(enabled bool) Option {
	return func(c *electorConfig) { c.reportStatus = enabled }
}

// WithLockCollection overrides the collection name backing the lease
// document (default "elector.locks").
func WithLockCollection(name string) Option {
	return func(c *electorConfig) { c.collection = name }
}

// WithStatusCollection overrides the collection name backing StatusDoc
// heartbeats (default "elector.leader_status").
func WithStatusCollection(name string) Option {
	return func(c *electorConfig) { c.statusColl = name }
}

// WithPollObserver registers a hook called with the wall-clock duration of
// every poll cycle, for instrumentation that cares about latency rather
// than just leadership transitions.
func WithPollObserver(fn func(time.Duration)) Option {
	return func(c *electorConfig) { c.pollObserver = fn }
}
