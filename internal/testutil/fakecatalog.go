// Copyright 2024 The Shardbridge Authors.
//
// Use of this software is governed by the Shardbridge Software License
// included in the /LICENSE file.

package testutil

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/shardbridge/pcm/pkg/catalog"
)

// FakeCatalog is an in-memory catalog.Catalog seeded directly by tests.
type FakeCatalog struct {
	mu   sync.Mutex
	rows map[int64]catalog.GroupPlacement
}

// NewFakeCatalog returns an empty catalog; use Seed to populate rows.
func NewFakeCatalog() *FakeCatalog {
	return &FakeCatalog{rows: make(map[int64]catalog.GroupPlacement)}
}

// Seed installs a row for placementID.
func (c *FakeCatalog) Seed(shardID, placementID int64, state catalog.State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows[placementID] = catalog.GroupPlacement{
		ShardID:     shardID,
		PlacementID: placementID,
		State:       state,
	}
}

// State returns the current state of placementID for test assertions.
func (c *FakeCatalog) State(placementID int64) catalog.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rows[placementID].State
}

func (c *FakeCatalog) LoadGroupPlacement(_ context.Context, _ int64, placementID int64) (catalog.GroupPlacement, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	row, ok := c.rows[placementID]
	if !ok {
		return catalog.GroupPlacement{}, errors.Newf("no catalog row for placement %d", placementID)
	}
	return row, nil
}

func (c *FakeCatalog) UpdatePlacementState(_ context.Context, placementID int64, newState catalog.State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	row, ok := c.rows[placementID]
	if !ok {
		return errors.Newf("no catalog row for placement %d", placementID)
	}
	row.State = newState
	c.rows[placementID] = row
	return nil
}
