// Copyright 2024 The Shardbridge Authors.
//
// Use of this software is governed by the Shardbridge Software License
// included in the /LICENSE file.

package placement

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/shardbridge/pcm/pkg/catalog"
	"github.com/shardbridge/pcm/pkg/pgcode"
	"go.uber.org/zap"
)

// CheckPreCommit implements FailureReaper's pre-commit pass. It walks
// every shard touched in the current transaction and, for any shard
// where every modifying connection failed, raises a fatal error before
// the coordinator asks any worker to commit. Shards where at least one
// modifying connection is healthy have their failed placements
// transitioned FINALIZED -> INACTIVE through the catalog.
func (m *Manager) CheckPreCommit(ctx context.Context) error {
	for _, se := range m.shards {
		ok, err := m.checkShardPlacements(ctx, se)
		if err != nil {
			return err
		}
		if !ok {
			if m.metrics != nil {
				m.metrics.ShardCommitFailures.WithLabelValues("pre-commit").Inc()
			}
			return errShardUnreachable(se.id)
		}
	}
	return nil
}

// CheckPostCommit implements FailureReaper's post-commit pass. The
// severity of a per-shard all-replicas-failed condition depends on
// using2PC: with 2PC, rollback is still possible so it is fatal exactly
// like the pre-commit case; without 2PC some remote commits may already
// be irrevocably applied, so it is only a warning. Regardless of
// using2PC, if not a single shard succeeded the whole transaction is
// treated as fatal, since there is nothing left to have partially
// committed.
func (m *Manager) CheckPostCommit(ctx context.Context, using2PC bool) error {
	var attempts, successes int

	for _, se := range m.shards {
		attempts++
		ok, err := m.checkShardPlacements(ctx, se)
		if err != nil {
			return err
		}
		if ok {
			successes++
			continue
		}

		if m.metrics != nil {
			m.metrics.ShardCommitFailures.WithLabelValues("post-commit").Inc()
		}

		shardErr := errShardUnreachablePostCommit(se.id)
		if using2PC {
			return shardErr
		}
		m.log.Warn("shard could not be committed on any active node",
			zap.Int64("shard_id", int64(se.id)),
			zap.Stringer("severity", pgcode.SeverityWarning))
	}

	if attempts > 0 && successes == 0 {
		if m.metrics != nil {
			m.metrics.NothingCommittedTotal.Inc()
		}
		return errNothingCommitted()
	}
	return nil
}

// checkShardPlacements is CheckShardPlacements: it classifies every
// modifying PlacementEntry of se as ok or failed, and returns false iff
// there was at least one modifying placement and every single one of
// them failed. On success it also drives the FINALIZED -> INACTIVE
// catalog transition for every placement it marked failed.
func (m *Manager) checkShardPlacements(ctx context.Context, se *ShardEntry) (bool, error) {
	var failures, successes int

	for _, pe := range se.placements {
		pc := pe.primary
		if !pc.hadWrite() {
			continue
		}

		if pc.Conn == nil || pc.Conn.RemoteTxFailed() {
			pe.failed = true
			failures++
		} else {
			successes++
		}
	}

	if failures > 0 && successes == 0 {
		return false, nil
	}

	for _, pe := range se.placements {
		if !pe.failed {
			continue
		}
		if err := m.invalidateIfFinalized(ctx, se.id, pe.id); err != nil {
			return false, err
		}
	}

	return true, nil
}

func (m *Manager) invalidateIfFinalized(ctx context.Context, shardID ShardID, placementID PlacementID) error {
	row, err := m.catalog.LoadGroupPlacement(ctx, int64(shardID), int64(placementID))
	if err != nil {
		return errors.Wrapf(err, "loading catalog state for placement %d", placementID)
	}

	// Only a FINALIZED placement is ours to invalidate; any other state
	// means some other actor already owns the transition.
	if row.State != catalog.StateFinalized {
		return nil
	}

	if err := m.catalog.UpdatePlacementState(ctx, int64(placementID), catalog.StateInactive); err != nil {
		return pgcode.Wrapf(err, pgcode.Internal, "invalidating placement %d", placementID)
	}

	m.log.Warn("invalidated placement after commit failure",
		zap.Int64("shard_id", int64(shardID)),
		zap.Int64("placement_id", int64(placementID)))

	if m.metrics != nil {
		m.metrics.PlacementsInvalidated.Inc()
	}
	return nil
}
