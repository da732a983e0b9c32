// Copyright 2024 The Shardbridge Authors.
//
// Use of this software is governed by the Shardbridge Software License
// included in the /LICENSE file.

package placement

import "github.com/shardbridge/pcm/pkg/workerpool"

// ConnectionReference is the association between a placement (or a
// co-located family of placements) and a live connection within the
// current transaction. Two PlacementEntry's colocationLink field may
// point at the same ColocationEntry, and in that case both share the
// very same *ConnectionReference by pointer identity: writing HadDML on
// it is observed by both placements, which is exactly how DML
// exclusivity is enforced across co-located tables.
type ConnectionReference struct {
	// User is the role this connection was established under. A
	// connection may only be reused by an access under the same role.
	User string

	// Conn is nil until a connection has been assigned, and is reset to
	// nil by Manager.OnConnectionClosed if the pool closes it early.
	// Deliberately never reset by anything else; see the doc comment on
	// Manager.OnConnectionClosed for what happens to HadDML/HadDDL then.
	Conn workerpool.Conn

	HadDML bool
	HadDDL bool
}

// hadWrite reports whether this reference has ever carried a DML or DDL
// access in the current transaction.
func (r *ConnectionReference) hadWrite() bool {
	return r.HadDML || r.HadDDL
}
