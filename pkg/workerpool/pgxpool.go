// Copyright 2024 The Shardbridge Authors.
//
// Use of this software is governed by the Shardbridge Software License
// included in the /LICENSE file.

package workerpool

import (
	"context"
	"fmt"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGXPool is the production Pool: each worker node gets its own
// *pgxpool.Pool, lazily created on first use and reused across
// transactions. Placements in this system are physical Postgres
// backends, so the wire protocol PCM ultimately rides on is Postgres's
// own — pgx/v5 is the driver for it.
type PGXPool struct {
	mu    sync.Mutex
	pools map[string]*pgxpool.Pool

	// dsnTemplate is applied with fmt.Sprintf(dsnTemplate, host, port) to
	// build a connection string for a worker; it must include %s and %d
	// verbs for host and port respectively (plus any fixed credentials).
	dsnTemplate string
}

// NewPGXPool returns a PGXPool that dials workers using dsnTemplate, a
// printf template taking (host, port).
func NewPGXPool(dsnTemplate string) *PGXPool {
	return &PGXPool{
		pools:       make(map[string]*pgxpool.Pool),
		dsnTemplate: dsnTemplate,
	}
}

// pgxConn adapts a checked-out pgxpool connection to the workerpool.Conn
// interface. claimedExclusively and remoteTxFailed are set by the
// caller's transaction protocol, which is out of PCM's scope; PGXPool
// merely carries the flags PCM reads.
type pgxConn struct {
	*pgxpool.Conn

	nodeName string
	nodePort uint16

	mu                 sync.Mutex
	claimedExclusively bool
	remoteTxFailed     bool
}

func (c *pgxConn) ClaimedExclusively() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.claimedExclusively
}

func (c *pgxConn) RemoteTxFailed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remoteTxFailed
}

func (c *pgxConn) NodeName() string { return c.nodeName }
func (c *pgxConn) NodePort() uint16 { return c.nodePort }

// MarkRemoteTxFailed lets the caller's remote-transaction protocol
// record that a commit/prepare on this connection failed, so
// FailureReaper's next pass sees it.
func (c *pgxConn) MarkRemoteTxFailed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remoteTxFailed = true
}

// SetClaimedExclusively lets the caller (e.g. a cursor holding the
// connection open across statement boundaries) mark it unavailable for
// reuse by a later, unrelated batch of accesses.
func (c *pgxConn) SetClaimedExclusively(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.claimedExclusively = v
}

func (p *PGXPool) poolFor(ctx context.Context, host string, port uint16) (*pgxpool.Pool, error) {
	key := fmt.Sprintf("%s:%d", host, port)

	p.mu.Lock()
	defer p.mu.Unlock()

	if existing, ok := p.pools[key]; ok {
		return existing, nil
	}

	dsn := fmt.Sprintf(p.dsnTemplate, host, port)
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "opening pool for worker %s", key)
	}
	p.pools[key] = pool
	return pool, nil
}

// StartConnection implements Pool.
func (p *PGXPool) StartConnection(ctx context.Context, flags Flags, host string, port uint16) (Conn, error) {
	pool, err := p.poolFor(ctx, host, port)
	if err != nil {
		return nil, err
	}
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "acquiring connection to %s:%d", host, port)
	}
	return &pgxConn{Conn: conn, nodeName: host, nodePort: port}, nil
}

// FinishConnectionEstablishment implements Pool. pgxpool.Acquire has
// already fully established the connection by the time StartConnection
// returns, so this is a ping to surface a dead connection early rather
// than at first use.
func (p *PGXPool) FinishConnectionEstablishment(ctx context.Context, conn Conn) error {
	pc, ok := conn.(*pgxConn)
	if !ok {
		return errors.AssertionFailedf("FinishConnectionEstablishment given non-pgx connection %T", conn)
	}
	return pc.Conn.Ping(ctx)
}

// Close releases every per-worker pool. Call once at process shutdown.
func (p *PGXPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, pool := range p.pools {
		pool.Close()
	}
	p.pools = make(map[string]*pgxpool.Pool)
}
