// Copyright 2024 The Shardbridge Authors.
//
// Use of this software is governed by the Shardbridge Software License
// included in the /LICENSE file.

// Package workerpool defines the connection-pool boundary the placement
// connection manager consumes but does not implement: opening, health
// checking, and closing the physical connections to worker nodes is
// someone else's job (see package placement's design notes). This
// package supplies the interface PCM depends on, and one real backing
// implementation over pgx.
package workerpool

import "context"

// Flags mirrors the bit-flags a caller passes down to
// placement.AcquireConnection; the pool-specific bits (everything
// beyond ForDML/ForDDL/ForceNewConnection) are opaque to PCM and are
// forwarded unchanged to StartConnection.
type Flags uint32

const (
	// ForDML marks the batch of accesses as containing a write.
	ForDML Flags = 1 << iota
	// ForDDL marks the batch as containing schema-modifying statements.
	ForDDL
	// ForceNewConnection disables connection reuse for this acquisition.
	ForceNewConnection
)

// Conn is a live connection to a single worker node, as tracked by the
// pool. PCM only ever reads ClaimedExclusively and RemoteTxFailed; it
// never mutates either.
type Conn interface {
	// ClaimedExclusively reports whether some other part of the system
	// (e.g. a cursor holding the connection open across statements) has
	// taken exclusive ownership, making it unsafe for PCM to hand the
	// same connection to a second batch of accesses.
	ClaimedExclusively() bool

	// RemoteTxFailed reports whether the remote transaction protocol
	// running on this connection observed a failure. FailureReaper
	// consults this at commit time.
	RemoteTxFailed() bool

	// NodeName and NodePort identify which worker this connection
	// belongs to, for diagnostics.
	NodeName() string
	NodePort() uint16
}

// Pool is the subset of the external connection pool that PCM calls
// into. A production pool additionally health-checks, multiplexes and
// closes connections; none of that is PCM's concern.
type Pool interface {
	// StartConnection begins establishing a connection to host:port
	// under the given flags, returning as soon as it is safe to start
	// using it for planning (the pool may still be finishing the
	// handshake in the background).
	StartConnection(ctx context.Context, flags Flags, host string, port uint16) (Conn, error)

	// FinishConnectionEstablishment blocks until conn is fully usable.
	FinishConnectionEstablishment(ctx context.Context, conn Conn) error
}
