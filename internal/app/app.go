package app

import (
	"context"

	"golang.org/x/sync/errgroup"

	"tradepulse/internal/logger"
)

// Run serves HTTP and the reconciliation loop until ctx is cancelled,
// then closes the store.
func (a *App) Run(ctx context.Context) error {
	defer func() {
		if err := a.store.Close(); err != nil {
			logger.Warnf("app: closing store: %v", err)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("app: http listening on %s", a.server.Addr())
		return a.server.Start(gctx)
	})
	if a.reconcile != nil {
		g.Go(func() error {
			logger.Infof("app: reconciliation loop enabled (interval=%s)", a.cfg.Reconcile.Interval())
			return a.reconcile.Run(gctx)
		})
	} else {
		logger.Infof("app: reconciliation loop disabled")
	}
	return g.Wait()
}
