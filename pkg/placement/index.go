// Copyright 2024 The Shardbridge Authors.
//
// Use of this software is governed by the Shardbridge Software License
// included in the /LICENSE file.

package placement

import (
	"github.com/shardbridge/pcm/pkg/catalog"
	"github.com/shardbridge/pcm/pkg/metrics"
	"github.com/shardbridge/pcm/pkg/workerpool"
	"go.uber.org/zap"
)

// PlacementEntry is per-placement bookkeeping, keyed by placement id.
// Its lifetime is exactly one transaction.
type PlacementEntry struct {
	id PlacementID

	// primary is never nil once a PlacementEntry exists; it may be
	// shared by reference with every other PlacementEntry in the same
	// ColocationEntry.
	primary *ConnectionReference

	hasSecondaryReaders bool
	failed              bool

	// colocationLink is non-nil iff this placement's PartitionMethod is
	// hash-partitioned or a reference table.
	colocationLink *ColocationEntry
}

// ColocationEntry is per co-located-family bookkeeping, keyed by
// (node, colocation group, representative value).
type ColocationEntry struct {
	key colocationKey

	primary             *ConnectionReference
	hasSecondaryReaders bool
}

type colocationKey struct {
	nodeName            string
	nodePort            uint16
	colocationGroupID   uint32
	representativeValue uint32
}

func colocationKeyFor(p Placement) colocationKey {
	return colocationKey{
		nodeName:            p.NodeName,
		nodePort:            p.NodePort,
		colocationGroupID:   p.ColocationGroupID,
		representativeValue: p.RepresentativeValue,
	}
}

// ShardEntry tracks every PlacementEntry touched for a shard in the
// current transaction, for use only by FailureReaper at commit time.
type ShardEntry struct {
	id ShardID

	placements []*PlacementEntry
	seen       map[PlacementID]struct{}
}

func newShardEntry(id ShardID) *ShardEntry {
	return &ShardEntry{id: id, seen: make(map[PlacementID]struct{})}
}

func (s *ShardEntry) add(pe *PlacementEntry) {
	if _, ok := s.seen[pe.id]; ok {
		return
	}
	s.seen[pe.id] = struct{}{}
	s.placements = append(s.placements, pe)
}

// Config tunes Manager behavior at construction time.
type Config struct {
	// ResetPrimaryOnClose controls what OnConnectionClosed does to a
	// PlacementEntry's primary reference beyond nulling its Conn field.
	// Left false, the reference keeps HadDML/HadDDL after its connection
	// closes, so FailureReaper counts that placement as a failed
	// modification at commit time. Set true, both flags are cleared at
	// close and the placement's earlier writes are no longer counted.
	// Either way the next access to the placement matches rule 1
	// (Conn == nil) and Pass 2 claims the reference afresh, so this
	// setting does not change which accesses conflict.
	ResetPrimaryOnClose bool
}

// Manager holds the three per-transaction indices plus the arena of
// connection backlinks used to null out dangling primaries when the
// pool closes a connection early. One Manager is created per process
// (NewManager) and is reset between transactions (ResetAll); it is not
// safe for concurrent use, matching the single-threaded-per-backend
// contract the placement connection manager operates under.
type Manager struct {
	cfg     Config
	pool    workerpool.Pool
	catalog catalog.Catalog
	metrics *metrics.PCM
	log     *zap.Logger

	placements  map[PlacementID]*PlacementEntry
	colocations map[colocationKey]*ColocationEntry
	shards      map[ShardID]*ShardEntry

	// connBacklinks is a side table from connection identity to every
	// ConnectionReference pointing at it, so OnConnectionClosed can null
	// them out without threading a raw back-pointer through
	// workerpool.Conn (which would make that interface depend on this
	// package).
	connBacklinks map[workerpool.Conn][]*ConnectionReference
}

// NewManager performs Lifecycle's process-startup initialization: the
// three indices are created once, empty.
func NewManager(pool workerpool.Pool, cat catalog.Catalog, m *metrics.PCM, log *zap.Logger, cfg Config) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	mgr := &Manager{
		cfg:     cfg,
		pool:    pool,
		catalog: cat,
		metrics: m,
		log:     log,
	}
	mgr.initIndices()
	return mgr
}

func (m *Manager) initIndices() {
	m.placements = make(map[PlacementID]*PlacementEntry)
	m.colocations = make(map[colocationKey]*ColocationEntry)
	m.shards = make(map[ShardID]*ShardEntry)
	m.connBacklinks = make(map[workerpool.Conn][]*ConnectionReference)
}

// ResetAll clears every index wholesale. Called by OnXactCommit and
// OnXactAbort; after it returns, a fresh transaction starts from empty
// state.
func (m *Manager) ResetAll() {
	m.initIndices()
}
