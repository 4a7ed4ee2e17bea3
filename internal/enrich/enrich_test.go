package enrich

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwaldner/wheelhouse/internal/models"
)

var now = time.Date(2025, time.March, 3, 10, 0, 0, 0, time.UTC)

func quote(typ models.OptionType, strike float64) models.OptionQuote {
	return models.OptionQuote{
		Ticker:            "TICK",
		Type:              typ,
		Strike:            strike,
		Expiration:        now.AddDate(0, 0, 30),
		Bid:               1.00,
		Ask:               1.20,
		LastPrice:         1.10,
		ImpliedVolatility: 0.30,
		SpotPrice:         100,
	}
}

func TestEnrichDerivedFields(t *testing.T) {
	res := Enrich([]models.OptionQuote{quote(models.Put, 95)}, now)
	require.Len(t, res.Quotes, 1)

	q := res.Quotes[0]
	assert.Equal(t, 30, q.DaysToExpiration)
	assert.InDelta(t, 0.20, q.BidAskSpread, 1e-9)
	assert.InDelta(t, 18.18, q.SpreadPct, 0.01)
	assert.InDelta(t, 0.95, q.MoneynessRatio, 1e-9)
	assert.InDelta(t, -5.0, q.DistancePct, 1e-9)
	assert.Equal(t, models.OTM, q.Moneyness)
	assert.InDelta(t, 1.10, q.MidPrice, 1e-9)
	assert.Greater(t, q.ProbabilityOTM, 50.0)
	assert.False(t, q.LowConfidence)
	assert.Zero(t, res.SkippedTotal())
}

func TestEnrichRejectsMalformed(t *testing.T) {
	badStrike := quote(models.Put, 0)
	badIV := quote(models.Put, 95)
	badIV.ImpliedVolatility = math.NaN()
	expired := quote(models.Call, 105)
	expired.Expiration = now.AddDate(0, 0, -1)
	noSpot := quote(models.Call, 105)
	noSpot.SpotPrice = 0

	in := []models.OptionQuote{badStrike, badIV, expired, noSpot, quote(models.Call, 105)}
	res := Enrich(in, now)

	assert.Len(t, res.Quotes, 1)
	assert.Equal(t, 1, res.Skipped[SkipInvalidStrike])
	assert.Equal(t, 1, res.Skipped[SkipInvalidVolatility])
	assert.Equal(t, 1, res.Skipped[SkipExpired])
	assert.Equal(t, 1, res.Skipped[SkipMissingSpot])
	assert.Equal(t, 4, res.SkippedTotal())
	assert.Equal(t, 0.0, in[0].Strike, "input must not be mutated")
}

func TestEnrichRejectsNonFiniteSpot(t *testing.T) {
	inf := quote(models.Put, 95)
	inf.SpotPrice = math.Inf(1)
	nan := quote(models.Put, 95)
	nan.SpotPrice = math.NaN()

	res := Enrich([]models.OptionQuote{inf, nan, quote(models.Put, 95)}, now)

	require.Len(t, res.Quotes, 1)
	assert.Equal(t, 2, res.Skipped[SkipMissingSpot])
	assert.InDelta(t, 0.95, res.Quotes[0].MoneynessRatio, 1e-9)
}

func TestEnrichExpiringTodayIsLowConfidence(t *testing.T) {
	q := quote(models.Put, 95)
	q.Expiration = now
	res := Enrich([]models.OptionQuote{q}, now)
	require.Len(t, res.Quotes, 1)
	assert.Zero(t, res.Quotes[0].DaysToExpiration)
	assert.Zero(t, res.Quotes[0].ProbabilityOTM)
	assert.True(t, res.Quotes[0].LowConfidence)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, models.ITM, Classify(models.Put, 105, 100))
	assert.Equal(t, models.OTM, Classify(models.Put, 95, 100))
	assert.Equal(t, models.ITM, Classify(models.Call, 95, 100))
	assert.Equal(t, models.OTM, Classify(models.Call, 105, 100))
	assert.Equal(t, models.ATM, Classify(models.Call, 100, 100))
}

func TestEnrichEmpty(t *testing.T) {
	res := Enrich(nil, now)
	assert.Empty(t, res.Quotes)
	assert.Zero(t, res.SkippedTotal())
}
