// Copyright 2024 The Shardbridge Authors.
//
// Use of this software is governed by the Shardbridge Software License
// included in the /LICENSE file.

// Package testutil holds small hand-rolled fakes for the two external
// collaborators PCM depends on (the connection pool and the metadata
// catalog): no mocking framework, just enough behavior to drive package
// tests.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/shardbridge/pcm/pkg/workerpool"
)

// FakeConn is an in-memory workerpool.Conn a test can flip flags on
// directly.
type FakeConn struct {
	mu sync.Mutex

	Name string
	Port uint16

	Exclusive bool
	TxFailed  bool
}

func (c *FakeConn) ClaimedExclusively() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Exclusive
}

func (c *FakeConn) RemoteTxFailed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.TxFailed
}

func (c *FakeConn) NodeName() string { return c.Name }
func (c *FakeConn) NodePort() uint16 { return c.Port }

// SetTxFailed marks the connection's remote transaction as failed, for
// FailureReaper tests to observe.
func (c *FakeConn) SetTxFailed(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.TxFailed = v
}

// FakePool hands out a fresh *FakeConn per StartConnection call and
// counts how many times it was asked to, so tests can assert on
// pool-call counts (e.g. "reuse means zero pool calls").
type FakePool struct {
	mu       sync.Mutex
	Started  int
	NextName func(host string, port uint16) string
}

// NewFakePool returns a ready-to-use FakePool.
func NewFakePool() *FakePool {
	return &FakePool{}
}

func (p *FakePool) StartConnection(_ context.Context, _ workerpool.Flags, host string, port uint16) (workerpool.Conn, error) {
	p.mu.Lock()
	p.Started++
	n := p.Started
	p.mu.Unlock()

	name := fmt.Sprintf("%s-conn-%d", host, n)
	if p.NextName != nil {
		name = p.NextName(host, port)
	}
	return &FakeConn{Name: name, Port: port}, nil
}

func (p *FakePool) FinishConnectionEstablishment(_ context.Context, _ workerpool.Conn) error {
	return nil
}

// Calls reports how many connections FakePool has started so far.
func (p *FakePool) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Started
}
