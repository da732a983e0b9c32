// Copyright 2024 The Shardbridge Authors.
//
// Use of this software is governed by the Shardbridge Software License
// included in the /LICENSE file.

package placement

import (
	"context"
	"testing"

	"github.com/shardbridge/pcm/internal/testutil"
	"github.com/shardbridge/pcm/pkg/workerpool"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestManager(t *testing.T, pool *testutil.FakePool) *Manager {
	t.Helper()
	cat := testutil.NewFakeCatalog()
	return NewManager(pool, cat, nil, zap.NewNop(), Config{})
}

func plainPlacement(id PlacementID, shard ShardID) Placement {
	return Placement{
		ID:              id,
		ShardID:         shard,
		NodeName:        "worker1",
		NodePort:        5432,
		PartitionMethod: PartitionAppend,
	}
}

func hashPlacement(id PlacementID, shard ShardID, node string, colocationGroup, repValue uint32) Placement {
	return Placement{
		ID:                  id,
		ShardID:             shard,
		NodeName:            node,
		NodePort:            5432,
		PartitionMethod:     PartitionHash,
		ColocationGroupID:   colocationGroup,
		RepresentativeValue: repValue,
	}
}

// Scenario 1: reuse.
func TestAcquireConnection_Reuse(t *testing.T) {
	pool := testutil.NewFakePool()
	mgr := newTestManager(t, pool)
	ctx := context.Background()

	access := []Access{{Placement: plainPlacement(42, 1), AccessType: AccessSelect}}

	c1, err := mgr.AcquireConnection(ctx, 0, access, "alice")
	require.NoError(t, err)

	c2, err := mgr.AcquireConnection(ctx, 0, access, "alice")
	require.NoError(t, err)

	require.Same(t, c1, c2)
	require.Equal(t, 1, pool.Calls())
	require.False(t, mgr.placements[42].hasSecondaryReaders)
}

// Scenario 2: a different user can't reuse the primary connection, so a
// fresh one is obtained from the pool for this access; because the
// access is a SELECT, PE.primary itself is left pointing at the
// original connection (only a write would force a replacement), and
// the placement gains a secondary reader.
func TestAcquireConnection_DifferentUserGetsFreshConnection(t *testing.T) {
	pool := testutil.NewFakePool()
	mgr := newTestManager(t, pool)
	ctx := context.Background()

	access := func() []Access {
		return []Access{{Placement: plainPlacement(42, 1), AccessType: AccessSelect}}
	}

	c1, err := mgr.AcquireConnection(ctx, 0, access(), "alice")
	require.NoError(t, err)

	c2, err := mgr.AcquireConnection(ctx, 0, access(), "bob")
	require.NoError(t, err)

	require.NotSame(t, c1, c2)
	require.Equal(t, 2, pool.Calls())

	pe := mgr.placements[42]
	require.Same(t, c1, pe.primary.Conn)
	require.True(t, pe.hasSecondaryReaders)
	require.False(t, pe.primary.HadDML)
	require.False(t, pe.primary.HadDDL)
}

// Scenario 3: DDL after a placement was read over multiple connections
// is rejected (rule 2).
func TestAcquireConnection_DDLAfterMultiReadRejected(t *testing.T) {
	pool := testutil.NewFakePool()
	mgr := newTestManager(t, pool)
	ctx := context.Background()

	sel := func() []Access {
		return []Access{{Placement: plainPlacement(42, 1), AccessType: AccessSelect}}
	}

	_, err := mgr.AcquireConnection(ctx, 0, sel(), "alice")
	require.NoError(t, err)
	_, err = mgr.AcquireConnection(ctx, workerpool.ForceNewConnection, sel(), "alice")
	require.NoError(t, err)
	require.True(t, mgr.placements[42].hasSecondaryReaders)

	ddl := []Access{{Placement: plainPlacement(42, 1), AccessType: AccessDDL}}
	_, err = mgr.AcquireConnection(ctx, workerpool.ForDDL, ddl, "alice")
	require.Error(t, err)
	require.Contains(t, err.Error(), "cannot perform DDL on placement 42")
	require.Contains(t, err.Error(), "read over multiple connections")
}

// Scenario 4: a placement modified on one connection conflicts with a
// second placement already modified on a different connection (rule 4).
func TestAcquireConnection_WriteThenDifferentWriterRejected(t *testing.T) {
	pool := testutil.NewFakePool()
	mgr := newTestManager(t, pool)
	ctx := context.Background()

	dmlPE7 := []Access{{Placement: plainPlacement(7, 1), AccessType: AccessDML}}
	_, err := mgr.AcquireConnection(ctx, workerpool.ForDML, dmlPE7, "alice")
	require.NoError(t, err)

	dmlPE9 := []Access{{Placement: plainPlacement(9, 2), AccessType: AccessDML}}
	_, err = mgr.AcquireConnection(ctx, workerpool.ForDML|workerpool.ForceNewConnection, dmlPE9, "alice")
	require.NoError(t, err)

	// Now a batch touching both 7 and 9 together must fail: 7's
	// connection is locked in first (order matters), 9's primary
	// connection differs and already had a write.
	both := []Access{
		{Placement: plainPlacement(7, 1), AccessType: AccessDML},
		{Placement: plainPlacement(9, 2), AccessType: AccessDML},
	}
	_, err = mgr.AcquireConnection(ctx, workerpool.ForDML, both, "alice")
	require.Error(t, err)
	require.Contains(t, err.Error(), "modified over multiple connections")
}

// Scenario 5: co-located DML exclusivity - two placements in the same
// colocation family share one ConnectionReference, so a write on one
// through a fresh connection while the shared reference still carries
// HadDML from the other's connection is rejected (rule 7).
func TestAcquireConnection_ColocatedDMLExclusivity(t *testing.T) {
	pool := testutil.NewFakePool()
	mgr := newTestManager(t, pool)
	ctx := context.Background()

	a := hashPlacement(100, 10, "worker1", 5, 1000)
	b := hashPlacement(101, 11, "worker1", 5, 1000)

	dmlA := []Access{{Placement: a, AccessType: AccessDML}}
	c1, err := mgr.AcquireConnection(ctx, workerpool.ForDML, dmlA, "alice")
	require.NoError(t, err)

	require.Same(t, mgr.placements[100].colocationLink, mgr.placements[101].colocationLink)
	ce := mgr.placements[100].colocationLink
	require.True(t, ce.primary.HadDML)

	// B, same connection: allowed (reuse).
	dmlB := []Access{{Placement: b, AccessType: AccessDML}}
	c2, err := mgr.AcquireConnection(ctx, workerpool.ForDML, dmlB, "alice")
	require.NoError(t, err)
	require.Same(t, c1, c2)
	require.Same(t, mgr.placements[100].colocationLink, mgr.placements[101].colocationLink)

	// B again, forcing a brand new connection: the shared reference
	// still has HadDML set from the connection actually in use, so this
	// must be rejected by rule 7.
	_, err = mgr.AcquireConnection(ctx, workerpool.ForDML|workerpool.ForceNewConnection, dmlB, "alice")
	require.Error(t, err)
	require.Contains(t, err.Error(), "DML has been executed on a connection that is in use")
}

func TestAcquireConnection_ForceNewConnectionBypassesReuse(t *testing.T) {
	pool := testutil.NewFakePool()
	mgr := newTestManager(t, pool)
	ctx := context.Background()

	access := plainPlacement(1, 1)
	sel := []Access{{Placement: access, AccessType: AccessSelect}}

	c1, err := mgr.AcquireConnection(ctx, 0, sel, "alice")
	require.NoError(t, err)
	c2, err := mgr.AcquireConnection(ctx, workerpool.ForceNewConnection, sel, "alice")
	require.NoError(t, err)

	require.NotSame(t, c1, c2)
	require.True(t, mgr.placements[1].hasSecondaryReaders)
}

func TestAcquireConnection_InvalidShardIDFallsThrough(t *testing.T) {
	pool := testutil.NewFakePool()
	mgr := newTestManager(t, pool)
	ctx := context.Background()

	dummy := Placement{ID: 999, ShardID: InvalidShardID, NodeName: "worker1", NodePort: 5432}
	access := []Access{{Placement: dummy, AccessType: AccessSelect}}

	conn, err := mgr.AcquireConnection(ctx, 0, access, "alice")
	require.NoError(t, err)
	require.NotNil(t, conn)
	require.Empty(t, mgr.placements)
	require.Empty(t, mgr.shards)
}

func TestResetAll_ClearsEverything(t *testing.T) {
	pool := testutil.NewFakePool()
	mgr := newTestManager(t, pool)
	ctx := context.Background()

	access := []Access{{Placement: plainPlacement(1, 1), AccessType: AccessSelect}}
	_, err := mgr.AcquireConnection(ctx, 0, access, "alice")
	require.NoError(t, err)
	require.NotEmpty(t, mgr.placements)

	mgr.ResetAll()

	require.Empty(t, mgr.placements)
	require.Empty(t, mgr.colocations)
	require.Empty(t, mgr.shards)
	require.Empty(t, mgr.connBacklinks)
}

func TestOnConnectionClosed_NullsBacklinks(t *testing.T) {
	pool := testutil.NewFakePool()
	mgr := newTestManager(t, pool)
	ctx := context.Background()

	access := []Access{{Placement: plainPlacement(1, 1), AccessType: AccessDML}}
	conn, err := mgr.AcquireConnection(ctx, workerpool.ForDML, access, "alice")
	require.NoError(t, err)

	mgr.OnConnectionClosed(conn)

	pe := mgr.placements[1]
	require.Nil(t, pe.primary.Conn)
	require.True(t, pe.primary.HadDML, "history preserved by default")
}

func TestOnConnectionClosed_ResetPrimaryOnCloseClearsHistory(t *testing.T) {
	pool := testutil.NewFakePool()
	cat := testutil.NewFakeCatalog()
	mgr := NewManager(pool, cat, nil, zap.NewNop(), Config{ResetPrimaryOnClose: true})
	ctx := context.Background()

	access := []Access{{Placement: plainPlacement(1, 1), AccessType: AccessDML}}
	conn, err := mgr.AcquireConnection(ctx, workerpool.ForDML, access, "alice")
	require.NoError(t, err)

	mgr.OnConnectionClosed(conn)

	pe := mgr.placements[1]
	require.Nil(t, pe.primary.Conn)
	require.False(t, pe.primary.HadDML)
}
