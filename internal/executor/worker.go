package executor

import (
	"context"

	"github.com/vk/recipegrid/internal/ctxlog"
)

// worker is the core processing loop for a single concurrent worker. Builds
// run with ctx so a failure elsewhere does not interrupt them; runCtx only
// stops further dispatch.
func (e *Executor) worker(ctx, runCtx context.Context, readyChan chan *task, cancel context.CancelFunc, workerID int) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Worker started.", "workerID", workerID)

	for t := range readyChan {
		workerLogger := logger.With("workerID", workerID, "node", t.node.String())

		if runCtx.Err() != nil {
			workerLogger.Debug("Run stopped, skipping node.")
			e.skip(ctx, t, runCtx.Err())
			continue
		}

		t.setState(Running)
		if !t.node.IsExternal() {
			workerLogger.Info("Building.", "recipe", t.node.Command.Recipe, "variant", t.node.Command.Variant.String())
			if err := e.runner.Run(ctxlog.With(ctx, "recipe", t.node.Command.Recipe), t.node.Command); err != nil {
				workerLogger.Error("Build failed.", "error", err)
				e.fail(t, &BuildError{Recipe: t.node.Command.Recipe, Variant: t.node.Command.Variant, Err: err})
				cancel()
				e.skipDependents(ctx, t)
				e.wg.Done()
				continue
			}
		}

		workerLogger.Debug("Node succeeded.")
		t.setState(Done)

		for _, dependent := range t.dependents {
			if dependent.depCount.Add(-1) == 0 {
				workerLogger.Debug("Unlocking dependent node.", "dependent", dependent.node.String())
				readyChan <- dependent
			}
		}

		e.wg.Done()
	}
	logger.Debug("Worker finished.", "workerID", workerID)
}
