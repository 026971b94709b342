// Package mongoelect is the thin public surface over package mlock and
// package election: constructors with sensible defaults, plus scoped
// helpers for the common "hold this lock for a block of code" and "run
// until someone else should lead" usage patterns. Embedders that need
// finer control should use mlock and election directly.
package mongoelect

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/fleetctl/mongoelect/election"
	"github.com/fleetctl/mongoelect/mlock"
)

// NewLock constructs a standalone mutual-exclusion lock on key within db,
// with the given lease TTL. This is package mlock's Manager with no
// election machinery layered on top.
func NewLock(ctx context.Context, key string, db *mongo.Database, ttl time.Duration, opts ...mlock.Option) (*mlock.Manager, error) {
	return mlock.New(ctx, db, key, ttl, opts...)
}

// NewElector constructs a leader elector for key within db. Callers use
// Start/Stop directly for long-lived processes, or RunElected below for a
// process whose entire job is to hold this one leadership.
func NewElector(ctx context.Context, key string, db *mongo.Database, opts ...election.Option) (*election.Elector, error) {
	return election.New(ctx, db, key, opts...)
}

// WithLock acquires key, runs fn, and releases the lock regardless of
// fn's outcome. A thin rename of (*mlock.Manager).Do for callers that
// don't otherwise need a Manager handle.
func WithLock(ctx context.Context, key string, db *mongo.Database, ttl time.Duration, fn func(ctx context.Context) error, acquireOpts ...mlock.AcquireOption) error {
	lock, err := mlock.New(ctx, db, key, ttl)
	if err != nil {
		return err
	}
	return lock.Do(ctx, fn, acquireOpts...)
}

// RunElected runs an elector for key for as long as ctx is live, invoking
// onLeader when this instance becomes leader and onLeaderLoss when it
// stops being leader, then stops the elector and releases leadership
// before returning. Intended for a process dedicated to contending for one
// leadership and doing its elected work entirely inside the callbacks.
func RunElected(ctx context.Context, key string, db *mongo.Database, onLeader, onLeaderLoss func(), opts ...election.Option) error {
	opts = append(opts, election.WithCallbacks(election.Callbacks{
		OnLeader:     onLeader,
		OnLeaderLoss: onLeaderLoss,
	}))
	elector, err := election.New(ctx, db, key, opts...)
	if err != nil {
		return err
	}
	return elector.Do(ctx)
}
