package main

import (
	"context"
	"fmt"

	"github.com/jwaldner/wheelhouse/internal/config"
	"github.com/jwaldner/wheelhouse/internal/factors"
	"github.com/jwaldner/wheelhouse/internal/journal"
	"github.com/jwaldner/wheelhouse/internal/logger"
	"github.com/jwaldner/wheelhouse/internal/portfolio"
	"github.com/jwaldner/wheelhouse/internal/providers"
	"github.com/jwaldner/wheelhouse/internal/providers/alpaca"
	"github.com/jwaldner/wheelhouse/internal/providers/clickhouse"
	"github.com/jwaldner/wheelhouse/internal/providers/fixture"
	"github.com/jwaldner/wheelhouse/internal/scanner"
	"github.com/jwaldner/wheelhouse/internal/services"
)

// app holds everything a command needs; close releases it
type app struct {
	manager   *providers.ProviderManager
	store     *portfolio.Store
	scanner   *scanner.Scanner
	watchlist *services.WatchlistService
	journal   *journal.Journal // nil when scan.journal is off
}

func newProvider(ctx context.Context, pc config.ProviderConfig) (providers.MarketProvider, error) {
	switch pc.Kind {
	case "clickhouse":
		return clickhouse.Open(ctx, pc.ClickHouseDSN, pc.ClickHouseTable, pc.FactorTable)
	case "alpaca":
		return alpaca.NewAlpacaProvider(pc.Alpaca.APIKey, pc.Alpaca.SecretKey, pc.Alpaca.DataURL, pc.Alpaca.TradingURL), nil
	default:
		return fixture.NewProvider(pc.FixtureDir), nil
	}
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	provider, err := newProvider(ctx, cfg.Provider)
	if err != nil {
		return nil, fmt.Errorf("open %s provider: %w", cfg.Provider.Kind, err)
	}
	logger.Info.Printf("📡 Market data provider: %s", provider.GetProviderName())

	manager := providers.NewProviderManager(provider, providers.ManagerOptions{
		RequestsPerSecond: cfg.Provider.RequestsPerSecond,
		Burst:             cfg.Provider.Burst,
		Timeout:           cfg.Provider.Timeout(),
		SlowRequest:       cfg.Provider.SlowRequest(),
	})

	store := portfolio.NewStore(cfg.Portfolio.File)
	// one snapshot cache per process; the API refreshes it on request
	snapshots := factors.NewCache(manager)
	a := &app{
		manager: manager,
		store:   store,
		scanner: scanner.New(manager, store, manager, scanner.Config{
			Workers:        cfg.Scan.Workers,
			Capital:        cfg.Settings.Capital,
			Health:         cfg.Settings.Health,
			Roll:           cfg.Settings.Roll,
			QuoteValuation: cfg.Scan.QuoteValuation,
			Snapshots:      snapshots,
		}),
		watchlist: services.NewWatchlistService(cfg.Watchlist),
	}

	if cfg.Scan.Journal {
		if a.journal, err = journal.Open(cfg.Journal.Dir, cfg.Journal.FilenameFormat); err != nil {
			manager.Close()
			return nil, fmt.Errorf("open journal: %w", err)
		}
	}
	return a, nil
}

func (a *app) close() {
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			logger.Warn.Printf("⚠️  journal close: %v", err)
		}
	}
	logger.Info.Printf("📊 %s", a.manager.GetPerformanceReport())
	if err := a.manager.Close(); err != nil {
		logger.Warn.Printf("⚠️  provider close: %v", err)
	}
}

// record journals a run when journaling is enabled
func (a *app) record(ctx context.Context, run journal.Run) {
	if a.journal == nil {
		return
	}
	path, err := a.journal.Save(ctx, run)
	if err != nil {
		logger.Warn.Printf("⚠️  journal save failed: %v", err)
		return
	}
	logger.Info.Printf("📝 Saved %s run to %s", run.Strategy, path)
}
