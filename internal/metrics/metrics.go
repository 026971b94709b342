// Package metrics publishes the Prometheus metrics an embedder scrapes to
// observe leader election from the outside, without reading election
// package internals directly.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IsLeader reports whether this instance currently holds leadership for
	// a key. 1 while leading, 0 otherwise.
	IsLeader = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "mongoelect",
			Name:      "is_leader",
			Help:      "Whether this instance currently holds leadership (1) or not (0)",
		},
		[]string{"key"},
	)

	// LeaderChanges tracks every transition into or out of leadership.
	LeaderChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mongoelect",
			Name:      "leader_changes_total",
			Help:      "Total leadership transitions observed by this instance",
		},
		[]string{"key", "direction"}, // direction: acquired, lost
	)

	// PollDuration tracks how long each poll cycle takes end to end,
	// including the touch/acquire attempt and the status upsert.
	PollDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mongoelect",
			Name:      "poll_duration_seconds",
			Help:      "Time to execute one elector poll cycle",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"key"},
	)

	// ClusterMembers tracks the number of live instances reporting status
	// for a key, as last observed via cluster_detail.
	ClusterMembers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "mongoelect",
			Name:      "cluster_members",
			Help:      "Number of instances currently reporting a heartbeat for this key",
		},
		[]string{"key"},
	)
)

// Direction labels for LeaderChanges.
const (
	DirectionAcquired = "acquired"
	DirectionLost     = "lost"
)
