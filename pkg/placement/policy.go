// Copyright 2024 The Shardbridge Authors.
//
// Use of this software is governed by the Shardbridge Software License
// included in the /LICENSE file.

package placement

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/shardbridge/pcm/pkg/workerpool"
)

// AcquireConnection is PolicyEngine's single entry point: given a batch
// of placement accesses that will execute together, it returns the one
// connection that batch must run on, establishing a new one through the
// pool if nothing already in use can serve it.
//
// accessList's order is part of the contract: callers that batch
// accesses must present them in the deterministic order the batch will
// execute in, since rule 4 below fires against whichever modifying
// connection was locked in first.
func (m *Manager) AcquireConnection(ctx context.Context, flags workerpool.Flags, accessList []Access, user string) (workerpool.Conn, error) {
	if len(accessList) == 0 {
		return nil, errors.AssertionFailedf("AcquireConnection called with an empty access list")
	}

	// A SELECT that pruned to zero shards is represented by a dummy
	// placement carrying the invalid shard id; it never participates in
	// bookkeeping and falls through to whatever connection is chosen
	// for the rest of the batch.
	live := make([]Access, 0, len(accessList))
	for _, a := range accessList {
		if a.Placement.ShardID == InvalidShardID {
			continue
		}
		live = append(live, a)
	}

	entries := make([]*PlacementEntry, len(live))
	var chosen workerpool.Conn
	lockedIn := false

	// Pass 1 - choose a connection.
	for i, access := range live {
		pe := m.findOrCreatePlacementEntry(access.Placement)
		entries[i] = pe

		newChosen, newLockedIn, err := m.evaluateAccess(pe, access.AccessType, flags, user, chosen, lockedIn)
		if err != nil {
			return nil, err
		}
		chosen = newChosen
		lockedIn = newLockedIn
	}

	if chosen == nil {
		first := accessList[0].Placement
		conn, err := m.pool.StartConnection(ctx, flags, first.NodeName, first.NodePort)
		if err != nil {
			return nil, err
		}
		if err := m.pool.FinishConnectionEstablishment(ctx, conn); err != nil {
			return nil, err
		}
		chosen = conn
	}

	// Pass 2 - record the assignment.
	for i, access := range live {
		m.assign(entries[i], access.AccessType, chosen, user)
	}

	return chosen, nil
}

// evaluateAccess implements the Pass-1 decision table for a single
// access. It returns the (possibly unchanged) chosen connection and
// lockedIn flag, or an error if the access conflicts.
func (m *Manager) evaluateAccess(
	pe *PlacementEntry,
	accessType AccessType,
	flags workerpool.Flags,
	user string,
	chosen workerpool.Conn,
	lockedIn bool,
) (newChosen workerpool.Conn, newLockedIn bool, err error) {
	pc := pe.primary
	ce := pe.colocationLink

	switch {
	case pc.Conn == nil:
		// Rule 1: no constraint from this placement.
		return chosen, lockedIn, nil

	case accessType == AccessDDL && pe.hasSecondaryReaders:
		// Rule 2.
		return nil, false, m.conflict("ddl_after_multiread", errDDLAfterMultiRead(pe.id))

	case accessType == AccessDDL && ce != nil && ce.hasSecondaryReaders:
		// Rule 3.
		return nil, false, m.conflict("ddl_after_colocated_multiread", errDDLAfterColocatedMultiRead(pe.id))

	case lockedIn && pc.hadWrite() && pc.Conn != chosen:
		// Rule 4.
		return nil, false, m.conflict("modified_over_multiple_connections", errModifiedOverMultipleConnections())

	case canReuse(pc, flags, user):
		// Rule 5.
		return pc.Conn, lockedIn || pc.hadWrite(), nil

	case pc.HadDDL:
		// Rule 6.
		return nil, false, m.conflict("ddl_on_busy_connection", errDDLOnBusyConnection(pe.id))

	case pc.HadDML:
		// Rule 7.
		return nil, false, m.conflict("dml_on_busy_connection", errDMLOnBusyConnection(pe.id))

	case accessType == AccessDDL:
		// Rule 8.
		return nil, false, m.conflict("parallel_ddl_forbidden", errParallelDDLForbidden())

	default:
		// Rule 9: existing connection, only reads, not reusable, not
		// DDL. Pass 2 allocates an alternate connection and records the
		// secondary reader.
		return chosen, lockedIn, nil
	}
}

// conflict increments ConflictsTotal for rule before returning err
// unchanged, letting evaluateAccess's callers stay one-liners.
func (m *Manager) conflict(rule string, err error) error {
	if m.metrics != nil {
		m.metrics.ConflictsTotal.WithLabelValues(rule).Inc()
	}
	return err
}

// canReuse implements the reuse predicate: a primary reference may be
// reused only if it has a live, non-exclusively-claimed connection
// under the same user, and the caller has not forced a fresh one.
func canReuse(pc *ConnectionReference, flags workerpool.Flags, user string) bool {
	if pc.Conn == nil {
		return false
	}
	if pc.Conn.ClaimedExclusively() {
		return false
	}
	if flags&workerpool.ForceNewConnection != 0 {
		return false
	}
	if pc.User != user {
		return false
	}
	return true
}

// assign implements Pass 2 for a single (placement entry, access).
func (m *Manager) assign(pe *PlacementEntry, accessType AccessType, chosen workerpool.Conn, user string) {
	pc := pe.primary

	switch {
	case pc.Conn == chosen:
		// Already correct.

	case pc.Conn == nil:
		pc.Conn = chosen
		pc.User = user
		pc.HadDML = false
		pc.HadDDL = false
		m.addBacklink(chosen, pc)

	default:
		if accessType != AccessSelect {
			pc.Conn = chosen
			pc.User = user
		}
		pe.hasSecondaryReaders = true
		if m.metrics != nil {
			m.metrics.SecondaryReadersTotal.Inc()
		}
		if pe.colocationLink != nil {
			pe.colocationLink.hasSecondaryReaders = true
		}
	}

	if accessType == AccessDDL {
		pc.HadDDL = true
	}
	if accessType == AccessDML {
		pc.HadDML = true
	}
}

func (m *Manager) addBacklink(conn workerpool.Conn, ref *ConnectionReference) {
	m.connBacklinks[conn] = append(m.connBacklinks[conn], ref)
}

// findOrCreatePlacementEntry implements FindOrCreatePlacementEntry: it
// finds or creates the PlacementEntry for p, aliasing a shared
// ConnectionReference from p's ColocationEntry when p is co-located,
// and always records the shard association used by FailureReaper.
func (m *Manager) findOrCreatePlacementEntry(p Placement) *PlacementEntry {
	pe, found := m.placements[p.ID]
	if !found {
		pe = &PlacementEntry{id: p.ID}

		if p.PartitionMethod.isColocated() {
			key := colocationKeyFor(p)
			ce, ok := m.colocations[key]
			if !ok {
				ce = &ColocationEntry{key: key, primary: &ConnectionReference{}}
				m.colocations[key] = ce
			}
			pe.primary = ce.primary
			pe.colocationLink = ce
		} else {
			pe.primary = &ConnectionReference{}
		}

		m.placements[p.ID] = pe
	}

	m.associatePlacementWithShard(pe, p.ShardID)
	return pe
}

// associatePlacementWithShard implements AssociatePlacementWithShard,
// with de-duplication handled by ShardEntry.add in O(1) rather than the
// original's O(n) list scan.
func (m *Manager) associatePlacementWithShard(pe *PlacementEntry, shardID ShardID) {
	se, ok := m.shards[shardID]
	if !ok {
		se = newShardEntry(shardID)
		m.shards[shardID] = se
	}
	se.add(pe)
}
