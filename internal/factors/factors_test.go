package factors

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwaldner/wheelhouse/internal/models"
)

var now = time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC)

func f(v float64) *float64 { return models.Float(v) }

func uptrend() *models.FactorSnapshot {
	return &models.FactorSnapshot{
		Ticker:        "TICK",
		Price:         120,
		PreviousClose: f(118),
		SMA20:         f(110),
		SMA50:         f(100),
		Low52:         f(50),
		High52:        f(150),
		Volume:        f(3e6),
		AvgVolume:     f(1e6),
	}
}

func TestTechnical(t *testing.T) {
	assert.Equal(t, 95.0, Technical(uptrend(), 100, models.Put))
	assert.Equal(t, 90.0, Technical(uptrend(), 100, models.Call))

	down := &models.FactorSnapshot{
		Price:  80,
		SMA20:  f(90),
		SMA50:  f(100),
		Low52:  f(75),
		High52: f(150),
	}
	assert.Equal(t, 10.0, Technical(down, 90, models.Put))

	selloff := uptrend()
	selloff.PreviousClose = f(125)
	assert.Equal(t, 85.0, Technical(selloff, 100, models.Put))

	assert.Equal(t, 50.0, Technical(nil, 100, models.Put))
}

func TestFundamental(t *testing.T) {
	strong := &models.FactorSnapshot{
		TrailingPE:     f(22),
		ForwardPE:      f(20),
		ProfitMargin:   f(0.30),
		ROE:            f(0.25),
		RevenueGrowth:  f(0.25),
		EarningsGrowth: f(0.20),
		DebtToEquity:   f(0),
		Beta:           f(1.0),
	}
	assert.Equal(t, 100.0, Fundamental(strong))

	// forward P/E only counts when trailing P/E is also present
	partial := &models.FactorSnapshot{ForwardPE: f(20), DebtToEquity: f(0)}
	assert.Equal(t, 60.0, Fundamental(partial))

	weak := &models.FactorSnapshot{
		TrailingPE:     f(80),
		ForwardPE:      f(60),
		ProfitMargin:   f(0.01),
		ROE:            f(0.01),
		RevenueGrowth:  f(-0.1),
		EarningsGrowth: f(-0.2),
		DebtToEquity:   f(250),
		Beta:           f(2.0),
	}
	assert.Equal(t, 0.0, Fundamental(weak))
}

func TestSentiment(t *testing.T) {
	bull := &models.FactorSnapshot{Price: 100, RecommendationMean: f(1.8), TargetMeanPrice: f(130), NumAnalysts: f(40)}
	assert.Equal(t, 90.0, Sentiment(bull))

	bear := &models.FactorSnapshot{Price: 100, RecommendationMean: f(4.8), TargetMeanPrice: f(85), NumAnalysts: f(3)}
	assert.Equal(t, 10.0, Sentiment(bear))

	hold := &models.FactorSnapshot{Price: 100, RecommendationMean: f(3.0)}
	assert.Equal(t, 50.0, Sentiment(hold))
}

func TestEventRisk(t *testing.T) {
	at := func(days int) *models.FactorSnapshot {
		d := now.AddDate(0, 0, days)
		return &models.FactorSnapshot{NextEarnings: &d}
	}
	assert.Equal(t, 70.0, EventRisk(at(5), 30, now))
	assert.Equal(t, 80.0, EventRisk(at(10), 30, now))
	assert.Equal(t, 90.0, EventRisk(at(20), 30, now))
	assert.Equal(t, 100.0, EventRisk(at(40), 30, now))
	assert.Equal(t, 100.0, EventRisk(at(-2), 30, now))
	assert.Equal(t, 100.0, EventRisk(&models.FactorSnapshot{}, 30, now))
	assert.Equal(t, 50.0, EventRisk(nil, 30, now))
}

func TestCompositeAndAdjustment(t *testing.T) {
	assert.InDelta(t, 100.0, Composite(100, 100, 100, 100), 1e-9)
	assert.InDelta(t, 15.0, Adjustment(100), 1e-9)
	assert.InDelta(t, -15.0, Adjustment(0), 1e-9)
	assert.InDelta(t, 0.0, Adjustment(50), 1e-9)
}

func TestScoreWithoutSnapshotIsNeutral(t *testing.T) {
	fs := Score(nil, 95, 30, models.Put, 72.5, now)
	assert.Equal(t, 50.0, fs.Technical)
	assert.Equal(t, 50.0, fs.Fundamental)
	assert.Equal(t, 50.0, fs.Sentiment)
	assert.Equal(t, 50.0, fs.EventRisk)
	assert.Equal(t, 72.5, fs.EnhancedProbability)
	assert.Equal(t, models.ConfidenceLow, fs.Confidence)
}

func TestScoreClampsEnhancedProbability(t *testing.T) {
	snap := uptrend()
	snap.TrailingPE = f(22)
	snap.ForwardPE = f(20)
	snap.ProfitMargin = f(0.30)
	snap.DebtToEquity = f(10)
	snap.RecommendationMean = f(1.5)
	snap.TargetMeanPrice = f(150)

	fs := Score(snap, 100, 30, models.Put, 95, now)
	require.Greater(t, fs.Composite, 80.0)
	assert.InDelta(t, Adjustment(fs.Composite), fs.Adjustment, 1e-9)
	assert.Equal(t, 100.0, fs.EnhancedProbability)
	assert.Equal(t, models.ConfidenceHigh, fs.Confidence)

	unknown := Score(snap, 100, 30, models.Put, 0, now)
	assert.Zero(t, unknown.EnhancedProbability)
}

func TestConfidence(t *testing.T) {
	assert.Equal(t, models.ConfidenceMedium, ConfidenceOf(&models.FactorSnapshot{SMA50: f(100)}))
	assert.Equal(t, models.ConfidenceLow, ConfidenceOf(&models.FactorSnapshot{TrailingPE: f(20)}))
	assert.Equal(t, models.ConfidenceLow, ConfidenceOf(nil))
}

type countingFetcher struct {
	calls atomic.Int32
	fail  bool
}

func (c *countingFetcher) FetchFactorSnapshot(ctx context.Context, ticker string) (*models.FactorSnapshot, error) {
	c.calls.Add(1)
	if c.fail {
		return nil, errors.New("upstream down")
	}
	if ticker == "NONE" {
		return nil, nil
	}
	return &models.FactorSnapshot{Ticker: ticker, Price: 100}, nil
}

func TestCacheFetchesOncePerTicker(t *testing.T) {
	fetcher := &countingFetcher{}
	cache := NewCache(fetcher)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap, err := cache.Get(ctx, "AAPL")
			assert.NoError(t, err)
			assert.Equal(t, "AAPL", snap.Ticker)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), fetcher.calls.Load())

	_, err := cache.Refresh(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, int32(2), fetcher.calls.Load())

	snap, err := cache.Get(ctx, "NONE")
	require.NoError(t, err)
	assert.Nil(t, snap)
	_, _ = cache.Get(ctx, "NONE")
	assert.Equal(t, int32(3), fetcher.calls.Load())

	assert.ElementsMatch(t, []string{"AAPL", "NONE"}, cache.Tickers())

	cache.Invalidate("AAPL")
	_, _ = cache.Get(ctx, "AAPL")
	assert.Equal(t, int32(4), fetcher.calls.Load())
}

func TestCacheDoesNotStoreErrors(t *testing.T) {
	fetcher := &countingFetcher{fail: true}
	cache := NewCache(fetcher)

	_, err := cache.Get(context.Background(), "MSFT")
	require.Error(t, err)
	_, err = cache.Get(context.Background(), "MSFT")
	require.Error(t, err)
	assert.Equal(t, int32(2), fetcher.calls.Load())
	assert.Empty(t, cache.Tickers())

	fetcher.fail = false
	snap, err := cache.Refresh(context.Background(), "MSFT")
	require.NoError(t, err)
	assert.Equal(t, "MSFT", snap.Ticker)
	assert.Equal(t, []string{"MSFT"}, cache.Tickers())
}
