package scanner

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwaldner/wheelhouse/internal/capital"
	"github.com/jwaldner/wheelhouse/internal/factors"
	"github.com/jwaldner/wheelhouse/internal/health"
	"github.com/jwaldner/wheelhouse/internal/models"
	"github.com/jwaldner/wheelhouse/internal/pipeline"
	"github.com/jwaldner/wheelhouse/internal/roll"
)

var now = time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

func day(n int) time.Time { return now.AddDate(0, 0, n) }

type stubMarket struct {
	spot   map[string]float64
	chains map[string]map[time.Time][]models.OptionQuote

	mu      sync.Mutex
	fetched []string
}

func (m *stubMarket) SpotPrice(_ context.Context, t string) (float64, bool) {
	v, ok := m.spot[t]
	return v, ok
}

func (m *stubMarket) Expirations(_ context.Context, t string) []time.Time {
	var out []time.Time
	for exp := range m.chains[t] {
		out = append(out, exp)
	}
	return out
}

func (m *stubMarket) Chain(_ context.Context, t string, exp time.Time) []models.OptionQuote {
	m.mu.Lock()
	m.fetched = append(m.fetched, t+"@"+exp.Format("2006-01-02"))
	m.mu.Unlock()
	return m.chains[t][exp]
}

type stubPositions struct {
	open      []models.HeldPosition
	coverable map[string]int
	err       error
}

func (p *stubPositions) ListOpenPositions(context.Context) ([]models.HeldPosition, error) {
	return p.open, p.err
}

func (p *stubPositions) CoverableContracts(context.Context) (map[string]int, error) {
	return p.coverable, p.err
}

type stubFetcher struct {
	snaps map[string]*models.FactorSnapshot
}

func (f stubFetcher) FetchFactorSnapshot(_ context.Context, t string) (*models.FactorSnapshot, error) {
	if t == "BROKEN" {
		return nil, errors.New("upstream down")
	}
	return f.snaps[t], nil
}

func put(strike, bid, iv float64, exp time.Time) models.OptionQuote {
	return models.OptionQuote{Type: models.Put, Strike: strike, Bid: bid, Ask: bid + 0.1, LastPrice: bid,
		Volume: 500, OpenInterest: 1000, ImpliedVolatility: iv, Expiration: exp}
}

func call(strike, bid, iv float64, exp time.Time) models.OptionQuote {
	q := put(strike, bid, iv, exp)
	q.Type = models.Call
	return q
}

func market() *stubMarket {
	return &stubMarket{
		spot: map[string]float64{"AAPL": 100, "MSFT": 200, "EMPTY": 50},
		chains: map[string]map[time.Time][]models.OptionQuote{
			"AAPL": {
				day(30): {put(95, 1.00, 0.30, day(30)), put(90, 0.50, 0.30, day(30)), call(105, 1.50, 0.28, day(30))},
				day(90): {put(95, 3.00, 0.30, day(90))},
			},
			"MSFT": {
				day(30): {put(190, 3.00, 0.25, day(30)), call(210, 2.00, 0.25, day(30))},
			},
		},
	}
}

func newScanner(m MarketData, pos PositionSource, cfg Config) *Scanner {
	s := New(m, pos, nil, cfg)
	s.now = func() time.Time { return now }
	return s
}

func loose() pipeline.Params {
	return pipeline.Params{MinPremium: 0.10, MaxDays: 60}
}

func TestScanCSPMergesTickers(t *testing.T) {
	m := market()
	s := newScanner(m, nil, Config{Workers: 3})

	report, err := s.ScanCSP(context.Background(), []string{"AAPL", "MSFT", "NOPE", "EMPTY"}, loose(), Options{})
	require.NoError(t, err)

	assert.Equal(t, models.StrategyCSP, report.Strategy)
	assert.Equal(t, []string{"NOPE", "EMPTY"}, report.Failed)
	assert.Nil(t, report.Capacity)
	require.Len(t, report.Opportunities, 3)
	for i, o := range report.Opportunities {
		assert.Equal(t, models.Put, o.Type)
		assert.NotEmpty(t, o.Ticker)
		assert.Greater(t, o.ProbabilityOTM, 0.0)
		if i > 0 {
			assert.GreaterOrEqual(t, report.Opportunities[i-1].Score, o.Score)
		}
	}
	assert.NotEmpty(t, report.Steps)
	assert.Equal(t, now, report.GeneratedAt)
	assert.NotContains(t, m.fetched, "AAPL@"+day(90).Format("2006-01-02"))
}

func TestScanCSPTopNAppliesAcrossTickers(t *testing.T) {
	p := loose()
	p.TopN = 1
	report, err := newScanner(market(), nil, Config{Workers: 2}).ScanCSP(context.Background(), []string{"AAPL", "MSFT"}, p, Options{})
	require.NoError(t, err)
	assert.Len(t, report.Opportunities, 1)
}

func TestScanRejectsInvalidParams(t *testing.T) {
	p := loose()
	p.TopN = -1
	_, err := newScanner(market(), nil, Config{}).ScanCSP(context.Background(), []string{"AAPL"}, p, Options{})
	assert.ErrorIs(t, err, pipeline.ErrInvalidTopN)
}

func TestScanCSPSizesAgainstCapital(t *testing.T) {
	cfg := Config{Workers: 1, Capital: capital.Settings{AvailableCash: 25000, MaxCashPerPosition: 20000, MaxPositions: 3}}
	report, err := newScanner(market(), &stubPositions{}, cfg).ScanCSP(context.Background(), []string{"AAPL", "MSFT"}, loose(), Options{})
	require.NoError(t, err)

	require.NotNil(t, report.Capacity)
	assert.True(t, report.Capacity.OK)
	for _, o := range report.Opportunities {
		assert.Greater(t, o.MaxContracts, 0)
		assert.LessOrEqual(t, o.TotalCapital, 20000.0)
	}
}

func TestScanCSPFullBookSizesNothing(t *testing.T) {
	pos := &stubPositions{open: []models.HeldPosition{{
		Ticker: "KO", Type: models.Put, Strike: 60, Contracts: 1, Strategy: models.StrategyCSP,
		Status: models.StatusOpen, Expiration: day(20),
	}}}
	cfg := Config{Workers: 1, Capital: capital.Settings{AvailableCash: 50000, MaxCashPerPosition: 20000, MaxPositions: 1}}

	report, err := newScanner(market(), pos, cfg).ScanCSP(context.Background(), []string{"AAPL"}, loose(), Options{})
	require.NoError(t, err)
	require.NotNil(t, report.Capacity)
	assert.Equal(t, capital.ReasonPositionLimitReached, report.Capacity.Reason)
	assert.Empty(t, report.Opportunities)
}

func TestScanCashOverride(t *testing.T) {
	cash := 0.0
	cfg := Config{Workers: 1, Capital: capital.Settings{AvailableCash: 50000, MaxCashPerPosition: 20000, MaxPositions: 3}}
	report, err := newScanner(market(), &stubPositions{}, cfg).ScanCSP(context.Background(), []string{"AAPL"}, loose(), Options{AvailableCash: &cash})
	require.NoError(t, err)
	assert.Nil(t, report.Capacity)
	assert.Len(t, report.Opportunities, 2)
}

func TestScanPropagatesPositionErrors(t *testing.T) {
	cfg := Config{Capital: capital.Settings{AvailableCash: 1000, MaxCashPerPosition: 1000, MaxPositions: 1}}
	_, err := newScanner(market(), &stubPositions{err: errors.New("disk")}, cfg).ScanCSP(context.Background(), []string{"AAPL"}, loose(), Options{})
	assert.Error(t, err)
}

func TestScanWheelRequiresDiscount(t *testing.T) {
	p := pipeline.WheelParams{Params: loose(), TargetEntryDiscount: 10}
	report, err := newScanner(market(), nil, Config{Workers: 2}).ScanWheel(context.Background(), []string{"AAPL", "MSFT"}, p, Options{})
	require.NoError(t, err)
	require.Len(t, report.Opportunities, 1)
	assert.Equal(t, 90.0, report.Opportunities[0].Strike)
	assert.Equal(t, models.StrategyWheel, report.Opportunities[0].Strategy)
}

func TestScanCoveredCallsDefaultsToHoldings(t *testing.T) {
	pos := &stubPositions{coverable: map[string]int{"MSFT": 2, "AAPL": 1}}
	p := pipeline.CoveredCallParams{Params: loose(), MinStrikePct: 0.9, MaxStrikePct: 1.5}

	report, err := newScanner(market(), pos, Config{Workers: 2}).ScanCoveredCalls(context.Background(), nil, p, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, report.Tickers)
	require.Len(t, report.Opportunities, 2)
	for _, o := range report.Opportunities {
		assert.Equal(t, models.Call, o.Type)
		assert.Equal(t, pos.coverable[o.Ticker], o.MaxContracts)
		assert.InDelta(t, o.Premium*100*float64(o.MaxContracts), o.TotalPremium, 1e-9)
	}
}

func TestScanAttachesFactorScores(t *testing.T) {
	snap := &models.FactorSnapshot{Ticker: "AAPL", Price: 100, SMA20: models.Float(98), SMA50: models.Float(95)}
	s := New(market(), nil, stubFetcher{snaps: map[string]*models.FactorSnapshot{"AAPL": snap}}, Config{Workers: 2})
	s.now = func() time.Time { return now }

	report, err := s.ScanCSP(context.Background(), []string{"AAPL", "MSFT"}, loose(), Options{})
	require.NoError(t, err)
	for _, o := range report.Opportunities {
		if o.Ticker == "AAPL" {
			assert.NotNil(t, o.Scores)
		} else {
			assert.Nil(t, o.Scores)
		}
	}
}

type countingFetcher struct {
	mu    sync.Mutex
	calls map[string]int
	price float64
}

func (f *countingFetcher) FetchFactorSnapshot(_ context.Context, t string) (*models.FactorSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[t]++
	return &models.FactorSnapshot{Ticker: t, Price: f.price}, nil
}

func (f *countingFetcher) count(t string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[t]
}

func TestSharedCacheReusedUntilRefreshed(t *testing.T) {
	fetcher := &countingFetcher{calls: map[string]int{}, price: 100}
	cache := factors.NewCache(fetcher)
	s := New(market(), nil, fetcher, Config{Workers: 2, Snapshots: cache})
	s.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := s.ScanCSP(ctx, []string{"AAPL"}, loose(), Options{})
	require.NoError(t, err)
	_, err = s.ScanWheel(ctx, []string{"AAPL"}, pipeline.WheelParams{Params: loose()}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, fetcher.count("AAPL"))
	assert.Equal(t, []string{"AAPL"}, s.CachedFactors())

	_, err = s.ScanCSP(ctx, []string{"AAPL"}, loose(), Options{Refresh: true})
	require.NoError(t, err)
	assert.Equal(t, 2, fetcher.count("AAPL"))

	fetcher.price = 120
	snap, err := s.RefreshFactors(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 120.0, snap.Price)
	assert.Equal(t, 3, fetcher.count("AAPL"))

	cached, err := cache.Get(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 120.0, cached.Price)

	s.ForgetFactors("AAPL")
	assert.Empty(t, s.CachedFactors())
}

func TestPerCallCacheWithoutSharedCache(t *testing.T) {
	fetcher := &countingFetcher{calls: map[string]int{}, price: 100}
	s := New(market(), nil, fetcher, Config{Workers: 2})
	s.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		_, err := s.ScanCSP(context.Background(), []string{"AAPL"}, loose(), Options{})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, fetcher.count("AAPL"))
	assert.Nil(t, s.CachedFactors())

	_, err := New(market(), nil, nil, Config{}).RefreshFactors(context.Background(), "AAPL")
	assert.ErrorIs(t, err, ErrNoFactorSource)
}

func TestScanCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newScanner(market(), nil, Config{Workers: 1}).ScanCSP(ctx, []string{"AAPL", "MSFT"}, loose(), Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCapitalSummary(t *testing.T) {
	pos := &stubPositions{open: []models.HeldPosition{{
		Ticker: "KO", Type: models.Put, Strike: 60, Contracts: 2, Strategy: models.StrategyCSP,
		Status: models.StatusOpen, Expiration: day(20),
	}}}
	cfg := Config{Capital: capital.Settings{AvailableCash: 40000, MaxCashPerPosition: 20000, ReserveCash: 2000, MaxPositions: 4}}

	summary, decision, err := newScanner(market(), pos, cfg).Capital(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12000.0, summary.TotalDeployed)
	assert.Equal(t, 26000.0, summary.Available)
	assert.True(t, decision.OK)
	assert.Equal(t, 3, decision.SlotsLeft)
}

func TestContractCapacity(t *testing.T) {
	pos := &stubPositions{open: []models.HeldPosition{{
		Ticker: "KO", Type: models.Put, Strike: 60, Contracts: 2, Strategy: models.StrategyCSP,
		Status: models.StatusOpen, Expiration: day(20),
	}}}
	cfg := Config{Capital: capital.Settings{AvailableCash: 40000, MaxCashPerPosition: 20000, ReserveCash: 2000, MaxPositions: 4}}

	got, err := newScanner(market(), pos, cfg).ContractCapacity(context.Background(), []float64{60, 150, 300})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 1, 0}, got)

	pos.err = errors.New("book unavailable")
	_, err = newScanner(market(), pos, cfg).ContractCapacity(context.Background(), []float64{60})
	assert.Error(t, err)
}

func held(strike float64, entryAgo, expiresIn int) models.HeldPosition {
	return models.HeldPosition{
		ID: "p1", Ticker: "AAPL", Type: models.Put, Strike: strike, Contracts: 1,
		EntryPremium: 2.00, EntryDate: day(-entryAgo), Expiration: day(expiresIn),
		Strategy: models.StrategyCSP, Status: models.StatusOpen,
	}
}

func reviewConfig() Config {
	return Config{Workers: 2, Health: health.DefaultSettings(), Roll: roll.DefaultSettings()}
}

func TestReviewAssignmentRisk(t *testing.T) {
	m := &stubMarket{spot: map[string]float64{"AAPL": 95}}
	recs, err := newScanner(m, &stubPositions{open: []models.HeldPosition{held(100, 27, 3)}}, reviewConfig()).ReviewPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, models.ActionCloseEarly, recs[0].Action)
	assert.Equal(t, 5, recs[0].Urgency)
	assert.Nil(t, recs[0].Roll)
}

func TestReviewMissingSpotIsNeutral(t *testing.T) {
	m := &stubMarket{spot: map[string]float64{}}
	recs, err := newScanner(m, &stubPositions{open: []models.HeldPosition{held(100, 10, 30)}}, reviewConfig()).ReviewPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 0.0, recs[0].CurrentSpot)
	assert.Equal(t, 50.0, recs[0].CurrentProbability)
	assert.Equal(t, models.ConfidenceLow, recs[0].Confidence)
}

func TestReviewRollAttachesBestCandidate(t *testing.T) {
	m := &stubMarket{
		spot: map[string]float64{"AAPL": 105},
		chains: map[string]map[time.Time][]models.OptionQuote{"AAPL": {
			day(10): {put(100, 0.90, 0.30, day(10))},
			day(45): {put(100, 3.00, 0.30, day(45)), put(95, 2.00, 0.30, day(45)), put(120, 9.00, 0.30, day(45))},
		}},
	}
	recs, err := newScanner(m, &stubPositions{open: []models.HeldPosition{held(100, 20, 10)}}, reviewConfig()).ReviewPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)

	rec := recs[0]
	assert.Equal(t, models.ActionRoll, rec.Action)
	require.NotNil(t, rec.Roll)
	assert.LessOrEqual(t, rec.Roll.NewStrike, 105.0)
	assert.Equal(t, day(45), rec.Roll.NewExpiration)
	assert.InDelta(t, 1.40, rec.Roll.CloseCost, 1e-9)

	var verdict bool
	for _, r := range rec.SupportingReasons {
		if strings.HasPrefix(r, "roll_vs_close=") {
			verdict = true
		}
	}
	assert.True(t, verdict)
}

func TestReviewQuoteValuation(t *testing.T) {
	m := &stubMarket{
		spot: map[string]float64{"AAPL": 110},
		chains: map[string]map[time.Time][]models.OptionQuote{"AAPL": {
			day(30): {put(100, 0.40, 0.30, day(30))},
		}},
	}
	cfg := reviewConfig()
	cfg.QuoteValuation = true
	recs, err := newScanner(m, &stubPositions{open: []models.HeldPosition{held(100, 15, 30)}}, cfg).ReviewPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.InDelta(t, 0.45, recs[0].CurrentOptionValue, 1e-9)
	assert.InDelta(t, 155.0, recs[0].UnrealizedPnL, 1e-9)
}

func TestNearestVolatility(t *testing.T) {
	chain := []models.OptionQuote{
		put(90, 1, 0.40, day(30)),
		put(99, 1, 0.31, day(30)),
		put(100, 1, 0, day(30)),
		call(100, 1, 0.20, day(30)),
	}
	assert.Equal(t, 0.31, nearestVolatility(chain, held(100, 1, 30)))
	assert.Equal(t, 0.0, nearestVolatility(nil, held(100, 1, 30)))
}
