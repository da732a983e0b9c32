// Copyright 2024 The Shardbridge Authors.
//
// Use of this software is governed by the Shardbridge Software License
// included in the /LICENSE file.

// pcmdemo drives a placement.Manager through a scripted batch of
// placement accesses against a fake worker pool and catalog, printing
// the connection assignment each batch resolves to. It exists to let a
// human watch the decision table fire without wiring up a real cluster.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/shardbridge/pcm/internal/testutil"
	"github.com/shardbridge/pcm/pkg/catalog"
	"github.com/shardbridge/pcm/pkg/metrics"
	"github.com/shardbridge/pcm/pkg/placement"
	"github.com/shardbridge/pcm/pkg/workerpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	command := &cobra.Command{
		Use:           "pcmdemo",
		Short:         "pcmdemo exercises the placement connection manager against a scripted workload.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	command.AddCommand(newRunCommand())
	return command
}

func newRunCommand() *cobra.Command {
	var resetPrimaryOnClose bool
	var using2PC bool

	command := &cobra.Command{
		Use:   "run",
		Short: "Run the built-in scripted batch of accesses and print the resulting connection assignments.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScript(cmd.Context(), resetPrimaryOnClose, using2PC)
		},
	}
	command.Flags().BoolVar(&resetPrimaryOnClose, "reset-primary-on-close", false,
		"clear a placement's write history when its connection closes mid-transaction")
	command.Flags().BoolVar(&using2PC, "two-pc", true,
		"treat a fully-failed shard as fatal at post-commit time rather than a warning")
	return command
}

// scriptedBatch is one call to AcquireConnection in the demo script.
type scriptedBatch struct {
	label   string
	flags   workerpool.Flags
	access  []placement.Access
	user    string
	failure bool // mark the resulting connection's remote tx failed, for the FailureReaper pass
}

func runScript(ctx context.Context, resetPrimaryOnClose, using2PC bool) error {
	log, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	pool := testutil.NewFakePool()
	cat := testutil.NewFakeCatalog()
	pcmMetrics := metrics.NewPCM()
	mgr := placement.NewManager(pool, cat, pcmMetrics, log, placement.Config{
		ResetPrimaryOnClose: resetPrimaryOnClose,
	})

	orders := placement.Placement{ID: 1, ShardID: 100, NodeName: "worker-a", NodePort: 5432}
	ordersReplica := placement.Placement{ID: 2, ShardID: 100, NodeName: "worker-a", NodePort: 5432}
	cat.Seed(100, 1, catalog.StateFinalized)
	cat.Seed(100, 2, catalog.StateFinalized)

	script := []scriptedBatch{
		{
			label:  "alice inserts into orders",
			flags:  workerpool.ForDML,
			access: []placement.Access{{Placement: orders, AccessType: placement.AccessDML}},
			user:   "alice",
		},
		{
			label:  "alice re-reads orders on the same connection",
			flags:  0,
			access: []placement.Access{{Placement: orders, AccessType: placement.AccessSelect}},
			user:   "alice",
		},
		{
			label:  "bob reads orders concurrently",
			flags:  0,
			access: []placement.Access{{Placement: orders, AccessType: placement.AccessSelect}},
			user:   "bob",
		},
		{
			label:   "alice's replica write later fails",
			flags:   workerpool.ForDML | workerpool.ForceNewConnection,
			access:  []placement.Access{{Placement: ordersReplica, AccessType: placement.AccessDML}},
			user:    "alice",
			failure: true,
		},
	}

	for _, batch := range script {
		conn, err := mgr.AcquireConnection(ctx, batch.flags, batch.access, batch.user)
		if err != nil {
			fmt.Printf("%-40s -> error: %v\n", batch.label, err)
			continue
		}
		fmt.Printf("%-40s -> %s:%d\n", batch.label, conn.NodeName(), conn.NodePort())
		if batch.failure {
			conn.(*testutil.FakeConn).SetTxFailed(true)
		}
	}

	if err := mgr.CheckPreCommit(ctx); err != nil {
		fmt.Printf("pre-commit check: %v\n", err)
	} else {
		fmt.Println("pre-commit check: ok")
	}

	if err := mgr.CheckPostCommit(ctx, using2PC); err != nil {
		fmt.Printf("post-commit check: %v\n", err)
	} else {
		fmt.Println("post-commit check: ok")
	}

	mgr.OnXactCommit()
	return nil
}
