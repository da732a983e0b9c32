// Copyright 2024 The Shardbridge Authors.
//
// Use of this software is governed by the Shardbridge Software License
// included in the /LICENSE file.

// Package placement implements the placement connection manager: the
// per-transaction decision engine that chooses which physical worker
// connection serves each shard placement access, so that a single
// coordinator transaction never deadlocks against itself and never
// fails to see its own uncommitted writes.
//
// A Manager is built once per process (NewManager) and reset between
// transactions (ResetAll); everything it tracks lives only for the
// duration of one transaction.
package placement

import "github.com/shardbridge/pcm/pkg/workerpool"

// PlacementID identifies a physical shard replica, assigned by the
// metadata catalog.
type PlacementID int64

// ShardID identifies a logical partition of a distributed table.
type ShardID int64

// InvalidShardID is the sentinel used for a dummy placement created
// when a SELECT prunes to zero shards. Accesses against it never touch
// PolicyEngine; see AcquireConnection.
const InvalidShardID ShardID = 0

// PartitionMethod says how a distributed table's placements are
// distributed, which in turn decides whether a placement joins a
// ColocationEntry.
type PartitionMethod int

const (
	// PartitionAppend and PartitionRange tables are never co-located.
	PartitionAppend PartitionMethod = iota
	PartitionRange
	// PartitionHash tables are co-located by (node, colocation group,
	// hash-range lower bound).
	PartitionHash
	// PartitionNone marks a reference table: one logical shard,
	// replicated to every node, treated as hash-partitioned for
	// colocation purposes.
	PartitionNone
)

// isColocated reports whether m participates in a ColocationEntry.
func (m PartitionMethod) isColocated() bool {
	return m == PartitionHash || m == PartitionNone
}

// Placement describes one physical replica the planner wants to touch.
// It is supplied by the caller (the query planner) on every access;
// PCM does not cache or validate it beyond using it as a lookup key.
type Placement struct {
	ID      PlacementID
	ShardID ShardID

	NodeName string
	NodePort uint16

	PartitionMethod PartitionMethod

	// ColocationGroupID and RepresentativeValue are only meaningful
	// when PartitionMethod.isColocated(); RepresentativeValue is the
	// lower bound of the placement's hash range (or 0 for a reference
	// table's single shard).
	ColocationGroupID   uint32
	RepresentativeValue uint32
}

// AccessType classifies a single placement access.
type AccessType int

const (
	AccessSelect AccessType = iota
	AccessDML
	AccessDDL
)

func (a AccessType) String() string {
	switch a {
	case AccessDML:
		return "DML"
	case AccessDDL:
		return "DDL"
	default:
		return "SELECT"
	}
}

// Access pairs a placement with the kind of statement about to run
// against it. AccessList order is part of the contract: rule 4 in the
// decision table fires against whichever modifying connection was
// locked in first, so callers must present accesses in the same
// deterministic order the batch will execute in.
type Access struct {
	Placement  Placement
	AccessType AccessType
}

// AccessListFromFlags derives a single AccessType from flags and applies
// it to every placement: FOR_DDL implies DDL, else FOR_DML implies DML,
// else SELECT.
func AccessListFromFlags(flags workerpool.Flags, placements []Placement) []Access {
	accessType := AccessSelect
	if flags&workerpool.ForDDL != 0 {
		accessType = AccessDDL
	} else if flags&workerpool.ForDML != 0 {
		accessType = AccessDML
	}

	accesses := make([]Access, len(placements))
	for i, p := range placements {
		accesses[i] = Access{Placement: p, AccessType: accessType}
	}
	return accesses
}
