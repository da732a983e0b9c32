// Copyright 2024 The Shardbridge Authors.
//
// Use of this software is governed by the Shardbridge Software License
// included in the /LICENSE file.

// Package catalog defines the metadata-catalog boundary FailureReaper
// consumes to load a placement's persisted state and to transition it
// out of service. PCM never queries the catalog for planning purposes;
// this interface exists solely for the FINALIZED -> INACTIVE transition.
package catalog

import "context"

// State is a placement's persisted lifecycle state. The catalog owns
// the full state machine; PCM only ever reads Finalized and writes
// Inactive.
type State int

const (
	StateUnknown State = iota
	StateFinalized
	StateInactive
)

func (s State) String() string {
	switch s {
	case StateFinalized:
		return "FINALIZED"
	case StateInactive:
		return "INACTIVE"
	default:
		return "UNKNOWN"
	}
}

// GroupPlacement is the subset of a catalog placement row FailureReaper
// needs.
type GroupPlacement struct {
	ShardID     int64
	PlacementID int64
	State       State
}

// Catalog is the metadata store PCM delegates persisted state
// transitions to.
type Catalog interface {
	// LoadGroupPlacement returns the current persisted row for
	// (shardID, placementID).
	LoadGroupPlacement(ctx context.Context, shardID, placementID int64) (GroupPlacement, error)

	// UpdatePlacementState transitions placementID to newState. Callers
	// (FailureReaper) only ever invoke this after confirming the
	// current state is StateFinalized.
	UpdatePlacementState(ctx context.Context, placementID int64, newState State) error
}
