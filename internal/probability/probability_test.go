package probability

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jwaldner/wheelhouse/internal/models"
)

func TestOTMBounds(t *testing.T) {
	cases := []struct {
		spot, strike, iv float64
		days             int
	}{
		{100, 95, 0.30, 30},
		{100, 150, 0.80, 5},
		{100, 50, 0.10, 365},
		{12.5, 12.5, 1.5, 1},
	}
	for _, c := range cases {
		for _, typ := range []models.OptionType{models.Put, models.Call} {
			p := OTM(c.spot, c.strike, c.iv, c.days, typ)
			assert.GreaterOrEqual(t, p, 0.0)
			assert.LessOrEqual(t, p, 100.0)
		}
	}
}

func TestOTMAtTheMoneySumsToHundred(t *testing.T) {
	put := OTM(100, 100, 0.35, 45, models.Put)
	call := OTM(100, 100, 0.35, 45, models.Call)
	assert.InDelta(t, 100.0, put+call, 1e-9)
}

func TestLowVolatilityFallsBack(t *testing.T) {
	assert.Equal(t, FallbackVolatility, EffectiveVolatility(0.05))
	assert.Equal(t, 0.25, EffectiveVolatility(0.25))

	stale := OTM(100, 95, 0.05, 30, models.Put)
	assert.Equal(t, OTM(100, 95, 0.45, 30, models.Put), stale)
	assert.Greater(t, stale, 50.0)
	assert.Less(t, stale, 100.0)
	assert.InDelta(t, 67.8, stale, 0.5)
}

func TestOTMDegenerateInputs(t *testing.T) {
	assert.Zero(t, OTM(100, 95, 0.3, 0, models.Put))
	assert.Zero(t, OTM(100, 95, 0.3, -3, models.Put))
	assert.Zero(t, OTM(0, 95, 0.3, 30, models.Put))
	assert.Zero(t, OTM(100, 0, 0.3, 30, models.Call))
	assert.Zero(t, OTM(100, 95, math.NaN(), 30, models.Put))
	assert.Zero(t, OTM(100, 95, math.Inf(1), 30, models.Put))
}

func TestReturns(t *testing.T) {
	assert.InDelta(t, 12.81, AnnualizedReturn(1.00, 95, 30), 0.01)
	assert.InDelta(t, 1.0526, MonthlyReturn(1.00, 95, 30), 0.001)
	assert.Zero(t, AnnualizedReturn(1, 95, 0))
	assert.Zero(t, MonthlyReturn(1, 0, 30))
}
