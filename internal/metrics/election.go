package metrics

import (
	"time"

	"github.com/fleetctl/mongoelect/election"
)

// WrapCallbacks returns a copy of cb that records IsLeader and
// LeaderChanges for key alongside whatever the embedder's own hooks do,
// so instrumentation never depends on the embedder remembering to call
// into this package itself.
func WrapCallbacks(key string, cb election.Callbacks) election.Callbacks {
	onLeader := cb.OnLeader
	onLeaderLoss := cb.OnLeaderLoss

	return election.Callbacks{
		OnLeader: func() {
			IsLeader.WithLabelValues(key).Set(1)
			LeaderChanges.WithLabelValues(key, DirectionAcquired).Inc()
			if onLeader != nil {
				onLeader()
			}
		},
		OnLeaderLoss: func() {
			IsLeader.WithLabelValues(key).Set(0)
			LeaderChanges.WithLabelValues(key, DirectionLost).Inc()
			if onLeaderLoss != nil {
				onLeaderLoss()
			}
		},
		OnLoop: cb.OnLoop,
	}
}

// PollObserver returns an election.WithPollObserver-compatible hook that
// records a PollDuration sample for key on every cycle.
func PollObserver(key string) func(time.Duration) {
	return func(d time.Duration) {
		PollDuration.WithLabelValues(key).Observe(d.Seconds())
	}
}
