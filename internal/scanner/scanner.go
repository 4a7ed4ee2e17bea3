// Package scanner runs the decision engine over live market data: it fans
// out per-ticker fetches, merges the enriched tables and hands them to the
// strategy pipelines, and reviews open positions.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/jwaldner/wheelhouse/internal/capital"
	"github.com/jwaldner/wheelhouse/internal/enrich"
	"github.com/jwaldner/wheelhouse/internal/factors"
	"github.com/jwaldner/wheelhouse/internal/health"
	"github.com/jwaldner/wheelhouse/internal/journal"
	"github.com/jwaldner/wheelhouse/internal/logger"
	"github.com/jwaldner/wheelhouse/internal/metrics"
	"github.com/jwaldner/wheelhouse/internal/models"
	"github.com/jwaldner/wheelhouse/internal/pipeline"
	"github.com/jwaldner/wheelhouse/internal/roll"
	"github.com/jwaldner/wheelhouse/internal/utils"
)

// MarketData is the degraded view of a provider: absence instead of errors
type MarketData interface {
	SpotPrice(ctx context.Context, ticker string) (float64, bool)
	Expirations(ctx context.Context, ticker string) []time.Time
	Chain(ctx context.Context, ticker string, expiration time.Time) []models.OptionQuote
}

// PositionSource lists the open positions to review and to size against
type PositionSource interface {
	ListOpenPositions(ctx context.Context) ([]models.HeldPosition, error)
}

// Holdings is implemented by position sources that also track share lots
type Holdings interface {
	CoverableContracts(ctx context.Context) (map[string]int, error)
}

// ErrNoFactorSource is returned when a snapshot is requested from a scanner
// built without a snapshot fetcher
var ErrNoFactorSource = errors.New("no factor snapshot source")

// Config carries the thresholds a scanner applies
type Config struct {
	Workers        int
	Capital        capital.Settings
	Health         health.Settings
	Roll           roll.Settings
	Valuation      health.OptionValuationStrategy // nil means DecayProxy
	QuoteValuation bool

	// Snapshots is a caller-owned factor cache shared by every call. Nil
	// scopes a fresh cache to each scan or review.
	Snapshots *factors.Cache
}

// Options adjust a single scan
type Options struct {
	AvailableCash *float64 // overrides Config.Capital.AvailableCash for sizing; ignored by covered calls
	Refresh       bool     // refetch factor snapshots for the scanned tickers
}

// Report is the merged outcome of one multi-ticker scan
type Report struct {
	Strategy      models.Strategy       `json:"strategy"`
	Tickers       []string              `json:"tickers"`
	Opportunities []models.Opportunity  `json:"opportunities"`
	Steps         []pipeline.StepReport `json:"steps"`
	Skipped       map[string]int        `json:"skipped,omitempty"`
	Failed        []string              `json:"failed_tickers,omitempty"`
	Capacity      *capital.Decision     `json:"capacity,omitempty"`
	GeneratedAt   time.Time             `json:"generated_at"`
	Duration      time.Duration         `json:"duration"`
}

// Scanner is safe for concurrent use
type Scanner struct {
	market    MarketData
	positions PositionSource
	fetcher   factors.SnapshotFetcher
	cfg       Config
	optimizer *roll.Optimizer
	now       func() time.Time
}

// New creates a scanner. positions and fetcher may be nil.
func New(market MarketData, positions PositionSource, fetcher factors.SnapshotFetcher, cfg Config) *Scanner {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Scanner{
		market:    market,
		positions: positions,
		fetcher:   fetcher,
		cfg:       cfg,
		optimizer: roll.NewOptimizer(cfg.Roll, nil),
		now:       time.Now,
	}
}

// snapshots returns the shared cache, or one that lives for a single call
func (s *Scanner) snapshots() *factors.Cache {
	if s.fetcher == nil {
		return nil
	}
	if s.cfg.Snapshots != nil {
		return s.cfg.Snapshots
	}
	return factors.NewCache(s.fetcher)
}

// RefreshFactors refetches the snapshot for ticker, replacing the cached one
func (s *Scanner) RefreshFactors(ctx context.Context, ticker string) (*models.FactorSnapshot, error) {
	if s.fetcher == nil {
		return nil, ErrNoFactorSource
	}
	if s.cfg.Snapshots == nil {
		return s.fetcher.FetchFactorSnapshot(ctx, ticker)
	}
	return s.cfg.Snapshots.Refresh(ctx, ticker)
}

// ForgetFactors drops ticker from the shared cache
func (s *Scanner) ForgetFactors(ticker string) {
	if s.cfg.Snapshots != nil {
		s.cfg.Snapshots.Invalidate(ticker)
	}
}

// CachedFactors lists tickers holding a snapshot in the shared cache
func (s *Scanner) CachedFactors() []string {
	if s.cfg.Snapshots == nil {
		return nil
	}
	tickers := s.cfg.Snapshots.Tickers()
	sort.Strings(tickers)
	return tickers
}

// ScanCSP ranks cash-secured puts across tickers, sized against free capital
func (s *Scanner) ScanCSP(ctx context.Context, tickers []string, p pipeline.Params, opts Options) (Report, error) {
	if err := p.Validate(); err != nil {
		return Report{}, err
	}
	budget, decision, err := s.budget(ctx, opts)
	if err != nil {
		return Report{}, err
	}
	report, err := s.scan(ctx, models.StrategyCSP, tickers, models.Put, p, opts.Refresh, func(q []models.EnrichedQuote) (pipeline.Result, error) {
		return pipeline.CSP(q, p, budget)
	})
	report.Capacity = decision
	return report, err
}

// ScanWheel is ScanCSP restricted to discounted entries
func (s *Scanner) ScanWheel(ctx context.Context, tickers []string, p pipeline.WheelParams, opts Options) (Report, error) {
	if err := p.Validate(); err != nil {
		return Report{}, err
	}
	budget, decision, err := s.budget(ctx, opts)
	if err != nil {
		return Report{}, err
	}
	report, err := s.scan(ctx, models.StrategyWheel, tickers, models.Put, p.Params, opts.Refresh, func(q []models.EnrichedQuote) (pipeline.Result, error) {
		return pipeline.Wheel(q, p, budget)
	})
	report.Capacity = decision
	return report, err
}

// ScanCoveredCalls ranks calls to sell. With no tickers given it scans the
// tickers whose held shares can still cover a contract, and sizes each row
// by the contracts those shares cover.
func (s *Scanner) ScanCoveredCalls(ctx context.Context, tickers []string, p pipeline.CoveredCallParams, opts Options) (Report, error) {
	if err := p.Validate(); err != nil {
		return Report{}, err
	}

	var coverable map[string]int
	if h, ok := s.positions.(Holdings); ok {
		var err error
		if coverable, err = h.CoverableContracts(ctx); err != nil {
			return Report{}, fmt.Errorf("load holdings: %w", err)
		}
	}
	if len(tickers) == 0 {
		for t := range coverable {
			tickers = append(tickers, t)
		}
		sort.Strings(tickers)
	}

	report, err := s.scan(ctx, models.StrategyCC, tickers, models.Call, p.Params, opts.Refresh, func(q []models.EnrichedQuote) (pipeline.Result, error) {
		return pipeline.CoveredCall(q, p)
	})
	for i := range report.Opportunities {
		o := &report.Opportunities[i]
		if n := coverable[o.Ticker]; n > 0 {
			o.MaxContracts = n
			o.TotalPremium = o.Premium * 100 * float64(n)
		}
	}
	return report, err
}

// Capital summarizes deployed capital over the open positions
func (s *Scanner) Capital(ctx context.Context) (capital.Summary, capital.Decision, error) {
	alloc, err := s.allocator(ctx, s.cfg.Capital)
	if err != nil {
		return capital.Summary{}, capital.Decision{}, err
	}
	return alloc.Summary(), alloc.Capacity(), nil
}

// ContractCapacity reports, per strike, how many cash-secured contracts the
// configured capital still allows
func (s *Scanner) ContractCapacity(ctx context.Context, strikes []float64) ([]int, error) {
	alloc, err := s.allocator(ctx, s.cfg.Capital)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(strikes))
	for i, k := range strikes {
		out[i] = alloc.MaxContracts(k)
	}
	return out, nil
}

func (s *Scanner) allocator(ctx context.Context, settings capital.Settings) (*capital.Allocator, error) {
	var positions []models.HeldPosition
	if s.positions != nil {
		var err error
		if positions, err = s.positions.ListOpenPositions(ctx); err != nil {
			return nil, fmt.Errorf("list open positions: %w", err)
		}
	}
	return capital.New(settings, positions, s.now()), nil
}

// budget is nil when no cash is configured. A full position book zeroes the
// deployable amount so every row fails sizing.
func (s *Scanner) budget(ctx context.Context, opts Options) (*pipeline.Budget, *capital.Decision, error) {
	settings := s.cfg.Capital
	if opts.AvailableCash != nil {
		settings.AvailableCash = *opts.AvailableCash
	}
	if settings.AvailableCash <= 0 {
		return nil, nil, nil
	}

	alloc, err := s.allocator(ctx, settings)
	if err != nil {
		return nil, nil, err
	}
	decision := alloc.Capacity()
	b := alloc.Budget()
	if decision.Reason == capital.ReasonPositionLimitReached {
		b.Deployable = 0
	}
	return &b, &decision, nil
}

type tickerResult struct {
	quotes  []models.EnrichedQuote
	skipped map[string]int
	failed  bool
}

func (s *Scanner) scan(ctx context.Context, strategy models.Strategy, tickers []string, want models.OptionType,
	p pipeline.Params, refresh bool, run func([]models.EnrichedQuote) (pipeline.Result, error)) (Report, error) {

	start := time.Now()
	now := s.now()
	report := Report{Strategy: strategy, Tickers: tickers, Skipped: map[string]int{}, GeneratedAt: now}
	log := logger.WithFields(logrus.Fields{"strategy": strategy, "tickers": len(tickers)})
	log.Infof("🔍 Scanning %d tickers", len(tickers))

	cache := s.snapshots()
	results := make([]tickerResult, len(tickers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i, ticker := range tickers {
		i, ticker := i, ticker
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = s.scanTicker(gctx, cache, refresh, ticker, want, p.MinDays, p.MaxDays, now)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, fmt.Errorf("scan %s: %w", strategy, err)
	}

	var merged []models.EnrichedQuote
	for i, r := range results {
		if r.failed {
			report.Failed = append(report.Failed, tickers[i])
			continue
		}
		merged = append(merged, r.quotes...)
		for reason, n := range r.skipped {
			report.Skipped[reason] += n
		}
	}

	res, err := run(merged)
	if err != nil {
		return report, err
	}
	report.Opportunities = res.Opportunities
	report.Steps = res.Steps
	report.Duration = time.Since(start)

	for reason, n := range report.Skipped {
		metrics.EnrichSkipped.WithLabelValues(reason).Add(float64(n))
	}
	for _, step := range report.Steps {
		metrics.StepRemoved.WithLabelValues(string(strategy), step.Name).Add(float64(step.Removed))
		logger.Debug.Printf("📊 %s step %-18s in=%d removed=%d", strategy, step.Name, step.In, step.Removed)
	}
	metrics.ScanDuration.WithLabelValues(string(strategy)).Observe(report.Duration.Seconds())
	metrics.ScanOpportunities.WithLabelValues(string(strategy)).Set(float64(len(report.Opportunities)))
	metrics.TickerFailures.WithLabelValues(string(strategy)).Add(float64(len(report.Failed)))

	log.WithFields(logrus.Fields{
		"quotes":        len(merged),
		"opportunities": len(report.Opportunities),
		"failed":        len(report.Failed),
	}).Infof("✅ Scan complete in %s", report.Duration.Round(time.Millisecond))
	return report, nil
}

// scanTicker fetches and enriches one ticker. It never fails the scan:
// missing data marks the ticker failed and the rest carry on.
func (s *Scanner) scanTicker(ctx context.Context, cache *factors.Cache, refresh bool, ticker string, want models.OptionType,
	minDays, maxDays int, now time.Time) tickerResult {

	spot, ok := s.market.SpotPrice(ctx, ticker)
	if !ok {
		logger.Warn.Printf("⚠️  %s: no spot price, skipping", ticker)
		return tickerResult{failed: true}
	}

	var raw []models.OptionQuote
	for _, exp := range s.market.Expirations(ctx, ticker) {
		days := utils.DaysBetween(now, exp)
		if days < 0 || days < minDays || (maxDays > 0 && days > maxDays) {
			continue
		}
		for _, q := range s.market.Chain(ctx, ticker, exp) {
			if q.Type != want {
				continue
			}
			q.Ticker = ticker
			if q.SpotPrice <= 0 {
				q.SpotPrice = spot
			}
			raw = append(raw, q)
		}
		if ctx.Err() != nil {
			return tickerResult{failed: true}
		}
	}
	if len(raw) == 0 {
		logger.Warn.Printf("⚠️  %s: no %s quotes within %d-%d days", ticker, want, minDays, maxDays)
		return tickerResult{failed: true}
	}

	res := enrich.Enrich(raw, now)
	scoreQuotes(res.Quotes, snapshot(ctx, cache, ticker, refresh), now)
	logger.Verbose.Printf("%s: %d quotes enriched, %d skipped", ticker, len(res.Quotes), res.SkippedTotal())
	return tickerResult{quotes: res.Quotes, skipped: res.Skipped}
}

// scoreQuotes attaches factor scores when the ticker has a snapshot
func scoreQuotes(quotes []models.EnrichedQuote, snap *models.FactorSnapshot, now time.Time) {
	if snap == nil {
		return
	}
	for i := range quotes {
		q := &quotes[i]
		fs := factors.Score(snap, q.Strike, q.DaysToExpiration, q.Type, q.ProbabilityOTM, now)
		q.Scores = &fs
	}
}

func snapshot(ctx context.Context, cache *factors.Cache, ticker string, refresh bool) *models.FactorSnapshot {
	if cache == nil {
		return nil
	}
	get := cache.Get
	if refresh {
		get = cache.Refresh
	}
	snap, err := get(ctx, ticker)
	if err != nil {
		logger.Debug.Printf("%s: factor snapshot unavailable: %v", ticker, err)
		return nil
	}
	return snap
}

// JournalRun converts the report into a journal record
func (r Report) JournalRun() journal.Run {
	return journal.Run{
		Strategy:      r.Strategy,
		Timestamp:     r.GeneratedAt,
		Tickers:       r.Tickers,
		Opportunities: r.Opportunities,
		Steps:         r.Steps,
		Skipped:       r.Skipped,
	}
}

// ReviewRun wraps a position review for the journal
func ReviewRun(recs []models.PositionRecommendation, at time.Time) journal.Run {
	run := journal.Run{Strategy: journal.StrategyReview, Timestamp: at, Recommendations: recs}
	seen := map[string]bool{}
	for _, rec := range recs {
		if t := rec.Position.Ticker; !seen[t] {
			seen[t] = true
			run.Tickers = append(run.Tickers, t)
		}
	}
	return run
}
