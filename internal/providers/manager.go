package providers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jwaldner/wheelhouse/internal/logger"
	"github.com/jwaldner/wheelhouse/internal/metrics"
	"github.com/jwaldner/wheelhouse/internal/models"
)

// ManagerOptions tune request pacing. Zero RequestsPerSecond disables the limiter.
type ManagerOptions struct {
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
	SlowRequest       time.Duration
}

// ProviderManager wraps a MarketProvider with rate limiting, per-request
// timeouts and slow-request logging. Its Spot/Chain/Expirations helpers turn
// provider errors into absence so one ticker never fails a batch.
type ProviderManager struct {
	provider MarketProvider
	limiter  *rate.Limiter
	opts     ManagerOptions

	mu    sync.Mutex
	stats PerformanceMetrics
}

// NewProviderManager creates a new provider manager
func NewProviderManager(provider MarketProvider, opts ManagerOptions) *ProviderManager {
	pm := &ProviderManager{provider: provider, opts: opts}
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		pm.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return pm
}

func (pm *ProviderManager) call(ctx context.Context, op, ticker string, fn func(context.Context) error) error {
	start := time.Now()
	if pm.limiter != nil {
		if err := pm.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("provider %s %s %s: rate limiter: %w", pm.provider.GetProviderName(), op, ticker, err)
		}
	}
	queued := time.Since(start)

	if pm.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, pm.opts.Timeout)
		defer cancel()
	}
	err := fn(ctx)
	elapsed := time.Since(start)

	outcome := "ok"
	switch {
	case errors.Is(err, ErrNotFound):
		outcome = "not_found"
	case err != nil:
		outcome = "error"
	}
	metrics.ProviderRequests.WithLabelValues(op, outcome).Inc()
	metrics.ProviderLatency.WithLabelValues(op).Observe(elapsed.Seconds())

	slow := pm.opts.SlowRequest > 0 && elapsed > pm.opts.SlowRequest
	pm.record(elapsed, queued, outcome, slow)

	if slow {
		logger.Warn.Printf("⚠️  SLOW REQUEST: %s %s %s took %v (queue: %v)",
			pm.provider.GetProviderName(), op, ticker, elapsed, queued)
	}
	if err != nil {
		return fmt.Errorf("provider %s %s %s: %w", pm.provider.GetProviderName(), op, ticker, err)
	}
	return nil
}

func (pm *ProviderManager) record(elapsed, queued time.Duration, outcome string, slow bool) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.stats.RequestCount++
	pm.stats.RequestDuration += elapsed
	pm.stats.QueueTime += queued
	switch outcome {
	case "error":
		pm.stats.Failures++
	case "not_found":
		pm.stats.NotFound++
	}
	if slow {
		pm.stats.SlowRequests++
	}
}

// SpotPrice returns the spot price, or false when it is unavailable
func (pm *ProviderManager) SpotPrice(ctx context.Context, ticker string) (float64, bool) {
	var spot float64
	err := pm.call(ctx, "spot", ticker, func(ctx context.Context) error {
		var err error
		spot, err = pm.provider.FetchSpotPrice(ctx, ticker)
		return err
	})
	if err != nil || spot <= 0 {
		pm.logAbsence(err, "spot price", ticker)
		return 0, false
	}
	return spot, true
}

// Expirations lists expirations, empty on error
func (pm *ProviderManager) Expirations(ctx context.Context, ticker string) []time.Time {
	var exps []time.Time
	err := pm.call(ctx, "expirations", ticker, func(ctx context.Context) error {
		var err error
		exps, err = pm.provider.ListExpirations(ctx, ticker)
		return err
	})
	if err != nil {
		pm.logAbsence(err, "expirations", ticker)
		return nil
	}
	return exps
}

// Chain fetches one expiration's chain, empty on error
func (pm *ProviderManager) Chain(ctx context.Context, ticker string, expiration time.Time) []models.OptionQuote {
	var quotes []models.OptionQuote
	err := pm.call(ctx, "chain", ticker, func(ctx context.Context) error {
		var err error
		quotes, err = pm.provider.FetchChain(ctx, ticker, expiration)
		return err
	})
	if err != nil {
		pm.logAbsence(err, "chain "+expiration.Format("2006-01-02"), ticker)
		return nil
	}
	return quotes
}

// FetchFactorSnapshot satisfies factors.SnapshotFetcher. A missing snapshot is
// returned as nil without error so the cache remembers the absence; transport
// errors are returned so the next lookup retries.
func (pm *ProviderManager) FetchFactorSnapshot(ctx context.Context, ticker string) (*models.FactorSnapshot, error) {
	var snap *models.FactorSnapshot
	err := pm.call(ctx, "snapshot", ticker, func(ctx context.Context) error {
		var err error
		snap, err = pm.provider.FetchFactorSnapshot(ctx, ticker)
		return err
	})
	if errors.Is(err, ErrNotFound) {
		logger.Debug.Printf("🔍 no factor snapshot for %s", ticker)
		return nil, nil
	}
	return snap, err
}

func (pm *ProviderManager) logAbsence(err error, what, ticker string) {
	if err == nil || errors.Is(err, ErrNotFound) {
		logger.Debug.Printf("🔍 no %s for %s", what, ticker)
		return
	}
	logger.Warn.Printf("⚠️  %s unavailable for %s: %v", what, ticker, err)
}

// GetProvider returns the underlying provider
func (pm *ProviderManager) GetProvider() MarketProvider {
	return pm.provider
}

// GetPerformanceStats returns averages over every request made so far
func (pm *ProviderManager) GetPerformanceStats() PerformanceMetrics {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	stats := pm.stats
	if stats.RequestCount > 0 {
		stats.RequestDuration /= time.Duration(stats.RequestCount)
		stats.QueueTime /= time.Duration(stats.RequestCount)
	}
	return stats
}

// GetPerformanceReport returns a detailed performance report
func (pm *ProviderManager) GetPerformanceReport() string {
	stats := pm.GetPerformanceStats()

	return fmt.Sprintf(`
📊 Provider Performance Report (%s)
=====================================
Requests Made:      %d
Average Queue Time: %v
Average Duration:   %v
Failures:           %d
Not Found:          %d
Slow Requests:      %d
`,
		pm.provider.GetProviderName(),
		stats.RequestCount,
		stats.QueueTime,
		stats.RequestDuration,
		stats.Failures,
		stats.NotFound,
		stats.SlowRequests,
	)
}

// Close cleans up the provider
func (pm *ProviderManager) Close() error {
	return pm.provider.Close()
}
