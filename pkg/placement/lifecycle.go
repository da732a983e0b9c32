// Copyright 2024 The Shardbridge Authors.
//
// Use of this software is governed by the Shardbridge Software License
// included in the /LICENSE file.

package placement

import (
	"github.com/shardbridge/pcm/pkg/workerpool"
	"go.uber.org/zap"
)

// OnXactCommit and OnXactAbort are the transaction-end hooks the
// coordinator's commit orchestrator invokes; both simply reset all
// state, since a placement/colocation/shard entry's lifetime is exactly
// one transaction.
func (m *Manager) OnXactCommit() { m.ResetAll() }
func (m *Manager) OnXactAbort()  { m.ResetAll() }

// OnConnectionClosed handles the pool closing a connection before
// transaction end (idle timeout, pool shrink). Every ConnectionReference
// that pointed at conn has its Conn field nulled; the owning
// PlacementEntry's primary pointer itself is left in place, unmodified,
// so no colocation sharing is disturbed.
//
// Citus's placement_connection.c additionally leaves HadDML/HadDDL set
// on the now-connectionless reference, an artifact of the fields simply
// not being touched by the close path. Config.ResetPrimaryOnClose picks
// which behavior this Manager exposes: left false, a reference's write
// history survives its connection being closed, and FailureReaper
// counts the placement as a failed modification (a write with no
// connection); set true, HadDML/HadDDL are cleared here and those
// writes are no longer counted. Neither setting changes the next
// access, since pc.Conn == nil always satisfies rule 1.
func (m *Manager) OnConnectionClosed(conn workerpool.Conn) {
	refs, ok := m.connBacklinks[conn]
	if !ok {
		return
	}

	for _, ref := range refs {
		ref.Conn = nil
		if m.cfg.ResetPrimaryOnClose {
			ref.HadDML = false
			ref.HadDDL = false
		}
	}
	delete(m.connBacklinks, conn)

	m.log.Warn("worker connection closed mid-transaction",
		zap.Int("references_severed", len(refs)),
		zap.String("node", conn.NodeName()))
}
