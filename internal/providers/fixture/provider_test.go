package fixture

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwaldner/wheelhouse/internal/models"
	"github.com/jwaldner/wheelhouse/internal/providers"
)

var _ providers.MarketProvider = (*Provider)(nil)

func TestFetchChain(t *testing.T) {
	p := NewProvider("testdata")
	fetched := time.Date(2025, 12, 16, 15, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return fetched }

	exps, err := p.ListExpirations(context.Background(), "aapl")
	require.NoError(t, err)
	require.Len(t, exps, 2)
	assert.Equal(t, "2026-01-16", exps[0].Format(dateLayout))

	quotes, err := p.FetchChain(context.Background(), "AAPL", exps[0])
	require.NoError(t, err)
	require.Len(t, quotes, 11)

	q := quotes[0]
	assert.Equal(t, models.Put, q.Type)
	assert.Equal(t, 250.0, q.Strike)
	assert.Equal(t, 272.225, q.SpotPrice)
	assert.Equal(t, int64(29354), q.OpenInterest)
	require.NotNil(t, q.Delta)
	assert.Equal(t, -0.10, *q.Delta)
	assert.Equal(t, fetched, q.FetchedAt)

	feb, err := p.FetchChain(context.Background(), "AAPL", exps[1])
	require.NoError(t, err)
	assert.Nil(t, feb[0].Delta)
}

func TestMissingDataIsNotFound(t *testing.T) {
	p := NewProvider("testdata")
	ctx := context.Background()

	_, err := p.FetchSpotPrice(ctx, "ZZZZ")
	assert.ErrorIs(t, err, providers.ErrNotFound)

	_, err = p.FetchChain(ctx, "AAPL", time.Date(2030, 1, 18, 0, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, providers.ErrNotFound)

	_, err = p.FetchFactorSnapshot(ctx, "NOSNAP")
	assert.ErrorIs(t, err, providers.ErrNotFound)
}

func TestFactorSnapshot(t *testing.T) {
	snap, err := NewProvider("testdata").FetchFactorSnapshot(context.Background(), "AAPL")
	require.NoError(t, err)

	assert.Equal(t, "AAPL", snap.Ticker)
	assert.Equal(t, 272.225, snap.Price)
	require.NotNil(t, snap.SMA50)
	assert.Equal(t, 259.75, *snap.SMA50)
	require.NotNil(t, snap.NextEarnings)
	assert.Equal(t, "2026-01-29", snap.NextEarnings.Format(dateLayout))
}

func TestTickers(t *testing.T) {
	got, err := NewProvider("testdata").Tickers()
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "NOSNAP"}, got)
}
