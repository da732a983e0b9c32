// Copyright 2024 The Shardbridge Authors.
//
// Use of this software is governed by the Shardbridge Software License
// included in the /LICENSE file.

package catalog

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGCatalog persists placement state in the coordinator's own
// pg_dist_placement table, the way the original Citus catalog does; it
// is a thin wrapper around a single pgxpool.Pool to the coordinator's
// local database (as opposed to workerpool.PGXPool, which dials the
// worker nodes).
type PGCatalog struct {
	pool *pgxpool.Pool
}

// NewPGCatalog wraps an already-open pool to the coordinator database.
func NewPGCatalog(pool *pgxpool.Pool) *PGCatalog {
	return &PGCatalog{pool: pool}
}

func stateToText(s State) string {
	switch s {
	case StateFinalized:
		return "finalized"
	case StateInactive:
		return "inactive"
	default:
		return "unknown"
	}
}

func textToState(s string) State {
	switch s {
	case "finalized":
		return StateFinalized
	case "inactive":
		return StateInactive
	default:
		return StateUnknown
	}
}

// LoadGroupPlacement implements Catalog.
func (c *PGCatalog) LoadGroupPlacement(ctx context.Context, shardID, placementID int64) (GroupPlacement, error) {
	row := c.pool.QueryRow(ctx,
		`SELECT shardid, shardstate FROM pg_dist_placement WHERE placementid = $1`,
		placementID)

	var loadedShardID int64
	var stateText string
	if err := row.Scan(&loadedShardID, &stateText); err != nil {
		return GroupPlacement{}, errors.Wrapf(err, "loading catalog row for placement %d", placementID)
	}

	return GroupPlacement{
		ShardID:     loadedShardID,
		PlacementID: placementID,
		State:       textToState(stateText),
	}, nil
}

// UpdatePlacementState implements Catalog.
func (c *PGCatalog) UpdatePlacementState(ctx context.Context, placementID int64, newState State) error {
	tag, err := c.pool.Exec(ctx,
		`UPDATE pg_dist_placement SET shardstate = $1 WHERE placementid = $2`,
		stateToText(newState), placementID)
	if err != nil {
		return errors.Wrapf(err, "updating placement %d to state %s", placementID, newState)
	}
	if tag.RowsAffected() == 0 {
		return errors.Newf("no catalog row for placement %d", placementID)
	}
	return nil
}
