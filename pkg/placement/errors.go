// Copyright 2024 The Shardbridge Authors.
//
// Use of this software is governed by the Shardbridge Software License
// included in the /LICENSE file.

package placement

import "github.com/shardbridge/pcm/pkg/pgcode"

func errDDLAfterMultiRead(id PlacementID) error {
	return pgcode.Newf(pgcode.ActiveSQLTransaction,
		"cannot perform DDL on placement %d, which has been read over multiple connections", id)
}

func errDDLAfterColocatedMultiRead(id PlacementID) error {
	return pgcode.Newf(pgcode.ActiveSQLTransaction,
		"cannot perform DDL on placement %d since a co-located placement has been read over multiple connections", id)
}

func errModifiedOverMultipleConnections() error {
	return pgcode.Newf(pgcode.ActiveSQLTransaction,
		"cannot perform query with placements that were modified over multiple connections")
}

func errDDLOnBusyConnection(id PlacementID) error {
	return pgcode.Newf(pgcode.ActiveSQLTransaction,
		"cannot establish a new connection for placement %d, since DDL has been executed on a connection that is in use", id)
}

func errDMLOnBusyConnection(id PlacementID) error {
	return pgcode.Newf(pgcode.ActiveSQLTransaction,
		"cannot establish a new connection for placement %d, since DML has been executed on a connection that is in use", id)
}

func errParallelDDLForbidden() error {
	return pgcode.Newf(pgcode.ActiveSQLTransaction,
		"cannot perform a parallel DDL command because multiple placements have been accessed over the same connection")
}

func errShardUnreachable(id ShardID) error {
	return pgcode.Newf(pgcode.Internal, "could not make changes to shard %d on any node", id)
}

func errShardUnreachablePostCommit(id ShardID) error {
	return pgcode.Newf(pgcode.Internal, "could not commit transaction for shard %d on any active node", id)
}

func errNothingCommitted() error {
	return pgcode.Newf(pgcode.Internal, "could not commit transaction on any active node")
}
