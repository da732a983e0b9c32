// Copyright 2024 The Shardbridge Authors.
//
// Use of this software is governed by the Shardbridge Software License
// included in the /LICENSE file.

// Package metrics exposes the placement connection manager's Prometheus
// counters. PCM has no metrics of its own beyond these; every counter
// here corresponds to a specific decision-table rule or FailureReaper
// outcome so an operator can tell which conflict class is firing.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// PCM bundles the counters a placement.Manager reports through. The
// zero value is not usable; construct with NewPCM and register the
// result with a prometheus.Registerer.
type PCM struct {
	ConflictsTotal        *prometheus.CounterVec
	SecondaryReadersTotal prometheus.Counter
	PlacementsInvalidated prometheus.Counter
	ShardCommitFailures   *prometheus.CounterVec
	NothingCommittedTotal prometheus.Counter
}

// NewPCM constructs a fresh, unregistered PCM metric bundle.
func NewPCM() *PCM {
	return &PCM{
		ConflictsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pcm",
			Name:      "conflicts_total",
			Help:      "Connection acquisition conflicts raised by the policy engine, by rule.",
		}, []string{"rule"}),
		SecondaryReadersTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pcm",
			Name:      "secondary_readers_total",
			Help:      "Number of times a placement gained a secondary reader connection.",
		}),
		PlacementsInvalidated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pcm",
			Name:      "placements_invalidated_total",
			Help:      "Number of placements transitioned FINALIZED -> INACTIVE by the failure reaper.",
		}),
		ShardCommitFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pcm",
			Name:      "shard_commit_failures_total",
			Help:      "Shards where every modifying connection failed, by commit phase.",
		}, []string{"phase"}),
		NothingCommittedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pcm",
			Name:      "nothing_committed_total",
			Help:      "Post-commit checks where zero shards succeeded.",
		}),
	}
}

// MustRegister registers every collector in the bundle with r, panicking
// on duplicate registration the way the corpus's own metrics setup code
// does at startup.
func (m *PCM) MustRegister(r prometheus.Registerer) {
	r.MustRegister(
		m.ConflictsTotal,
		m.SecondaryReadersTotal,
		m.PlacementsInvalidated,
		m.ShardCommitFailures,
		m.NothingCommittedTotal,
	)
}
