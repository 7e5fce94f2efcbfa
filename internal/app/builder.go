// Package app wires configuration, storage, services, and transport
// into one runnable process.
package app

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"tradepulse/internal/config"
	"tradepulse/internal/ingest"
	"tradepulse/internal/observ"
	"tradepulse/internal/pkg/retry"
	"tradepulse/internal/projector"
	"tradepulse/internal/query"
	"tradepulse/internal/reconcile"
	"tradepulse/internal/store"
	"tradepulse/internal/store/gormstore"
	httpapi "tradepulse/internal/transport/http"
)

// App holds the wired process components.
type App struct {
	cfg       *config.Config
	store     store.EventStore
	server    *httpapi.Server
	reconcile *reconcile.Service
}

// New builds the full application from config. The store is opened here;
// Run closes it on shutdown.
func New(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: nil config")
	}
	st, err := gormstore.NewGormStore(cfg.Store.Path, retry.Policy{
		Attempts: cfg.Store.RetryAttempts,
		Backoff:  cfg.Store.RetryBackoff(),
	})
	if err != nil {
		return nil, fmt.Errorf("open event store: %w", err)
	}
	proj, err := projector.New(cfg.App.ReportTimezone)
	if err != nil {
		st.Close()
		return nil, err
	}
	metrics := observ.New(prometheus.DefaultRegisterer)

	ingestSvc := ingest.NewService(st, metrics, cfg.Store.OpTimeout())
	querySvc := query.NewService(st, proj, cfg.Store.OpTimeout())

	server, err := httpapi.NewServer(httpapi.ServerConfig{
		Addr:          cfg.App.HTTPAddr,
		Ingest:        ingestSvc,
		Queries:       querySvc,
		RatePerSecond: cfg.Ingest.RatePerSecond,
		RateBurst:     cfg.Ingest.RateBurst,
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	a := &App{cfg: cfg, store: st, server: server}
	if cfg.Reconcile.Enabled {
		a.reconcile = reconcile.NewService(st, proj, reconcile.Config{
			Interval:       cfg.Reconcile.Interval(),
			Staleness:      cfg.Reconcile.Staleness(),
			QuoteMaxAge:    cfg.Reconcile.QuoteMaxAge(),
			Confidence:     cfg.Reconcile.Confidence,
			OpTimeout:      cfg.Store.OpTimeout(),
			RunImmediately: cfg.Reconcile.RunImmediately,
		}, metrics)
	}
	return a, nil
}
