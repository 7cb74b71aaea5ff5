// Package node composes the services that make up one node: the PoA
// block producer, the gas price controller and its DA cost source, run
// concurrently on a shared task group (spec.md §5: "composed via a task
// runner"). The group.Go fan-out and shared-ctx cancellation follow the
// *errgroup.Group-driven worker fan-out pattern (workLoop/runLoop/
// taskLoop/resultLoop, each as a group.Go member) used elsewhere in the
// retrieved pack for composing a multi-loop service.
package node

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/chainforge/corenode/dacost"
	"github.com/chainforge/corenode/gasprice"
	"github.com/chainforge/corenode/producer"
	"github.com/chainforge/corenode/xlog"
)

// Supervisor runs a node's long-lived services together: if any one
// exits with an error, the others are cancelled and Run unwinds.
type Supervisor struct {
	Producer *producer.Loop
	GasPrice *gasprice.Controller
	DaSource *dacost.Source
	Log      xlog.Logger
}

// Run blocks until ctx is cancelled or a service returns a non-nil
// error. It always waits for every configured service to return before
// returning itself, so callers never observe a partially-torn-down node.
func (s *Supervisor) Run(ctx context.Context) error {
	group, gctx := errgroup.WithContext(ctx)

	if s.Producer != nil {
		group.Go(func() error {
			return s.Producer.Run(gctx)
		})
	}
	if s.GasPrice != nil {
		group.Go(func() error {
			return s.GasPrice.Run(gctx)
		})
	}
	if s.DaSource != nil {
		group.Go(func() error {
			s.DaSource.Run(gctx)
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		if s.Log != nil {
			s.Log.Error("node: a supervised service exited with an error", "err", err)
		}
		return err
	}
	return nil
}
