package health

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwaldner/wheelhouse/internal/models"
)

var now = time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC)

type fixedValue float64

func (f fixedValue) Value(models.HeldPosition, float64, int) float64 { return float64(f) }

func put(strike float64, daysLeft, daysHeld int) models.HeldPosition {
	return models.HeldPosition{
		Ticker:       "TICK",
		Type:         models.Put,
		Strike:       strike,
		Expiration:   now.AddDate(0, 0, daysLeft),
		EntryDate:    now.AddDate(0, 0, -daysHeld),
		Contracts:    1,
		EntryPremium: 2.00,
		Strategy:     models.StrategyCSP,
		Status:       models.StatusOpen,
	}
}

func state(spot float64) MarketState {
	return MarketState{Spot: spot, ImpliedVolatility: 0.30}
}

func TestITMNearExpiryClosesWithTopUrgency(t *testing.T) {
	e := NewEngine(DefaultSettings(), nil)
	rec := e.Analyze(put(90, 5, 25), state(80), now)

	assert.Equal(t, models.ITM, rec.Moneyness)
	assert.Equal(t, models.ActionCloseEarly, rec.Action)
	assert.Equal(t, 5, rec.Urgency)
	assert.NotEmpty(t, rec.SupportingReasons)
}

func TestAssignmentRuleBeatsProfitRule(t *testing.T) {
	e := NewEngine(DefaultSettings(), fixedValue(0.40))
	rec := e.Analyze(put(90, 5, 25), state(80), now)

	assert.InDelta(t, 80.0, rec.PnLPct, 1e-9)
	assert.Equal(t, models.ActionCloseEarly, rec.Action)
	assert.Equal(t, 5, rec.Urgency)
	assert.Contains(t, rec.PrimaryReason, "ITM")
}

func TestDecisionPriority(t *testing.T) {
	entryProb := 70.0
	cases := []struct {
		name      string
		position  models.HeldPosition
		spot      float64
		value     float64
		entryProb *float64
		action    models.Action
		urgency   int
	}{
		{"aggressive target", put(90, 30, 10), 120, 0.40, nil, models.ActionCloseEarly, 4},
		{"standard target inside force-close window", put(90, 15, 20), 120, 0.80, nil, models.ActionCloseEarly, 3},
		{"probability below floor", put(100, 40, 5), 95, 1.80, nil, models.ActionCloseEarly, 5},
		{"roll near expiry without profit", put(90, 15, 20), 120, 1.60, nil, models.ActionRoll, 3},
		{"conditions drifted", put(90, 40, 5), 120, 1.60, &entryProb, models.ActionAdjustTargets, 2},
		{"hold", put(90, 40, 5), 120, 1.60, nil, models.ActionHold, 1},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			p := c.position
			p.EntryProbability = c.entryProb
			rec := NewEngine(DefaultSettings(), fixedValue(c.value)).Analyze(p, state(c.spot), now)
			assert.Equal(t, c.action, rec.Action)
			assert.Equal(t, c.urgency, rec.Urgency)
			assert.NotEmpty(t, rec.PrimaryReason)
		})
	}
}

func TestMissingSpotDegradesToNeutral(t *testing.T) {
	rec := NewEngine(DefaultSettings(), fixedValue(1.60)).Analyze(put(90, 5, 25), MarketState{}, now)
	assert.Equal(t, 50.0, rec.CurrentProbability)
	assert.Equal(t, models.ConfidenceLow, rec.Confidence)
	assert.Empty(t, rec.Moneyness)
	assert.Equal(t, models.ActionRoll, rec.Action)
}

func TestPnLAndDrift(t *testing.T) {
	p := put(90, 30, 10)
	p.Contracts = 2
	entryProb, entryTech := 90.0, 80.0
	p.EntryProbability = &entryProb
	p.EntryTechnical = &entryTech

	rec := NewEngine(DefaultSettings(), fixedValue(1.50)).Analyze(p, state(100), now)
	assert.InDelta(t, 100.0, rec.UnrealizedPnL, 1e-9)
	assert.InDelta(t, 25.0, rec.PnLPct, 1e-9)
	require.NotNil(t, rec.ProbabilityDelta)
	assert.InDelta(t, rec.CurrentProbability-90, *rec.ProbabilityDelta, 1e-9)
	require.NotNil(t, rec.TechnicalDelta)
	assert.InDelta(t, 50.0-80.0, *rec.TechnicalDelta, 1e-9)
	assert.Nil(t, rec.CompositeDelta)
	assert.Equal(t, 30, rec.DaysRemaining)
	assert.Equal(t, 10, rec.DaysHeld)
}

func TestScore(t *testing.T) {
	score, status := Score(80, 35, 85, 100, 100)
	assert.Equal(t, 100.0, score)
	assert.Equal(t, models.Healthy, status)

	score, status = Score(30, 20, 65, 50, 50)
	assert.Equal(t, 60.0, score)
	assert.Equal(t, models.Warning, status)

	score, status = Score(-50, 3, 30, 0, 0)
	assert.Equal(t, 20.0, score)
	assert.Equal(t, models.Critical, status)

	score, _ = Score(-400, 3, 30, 0, 0)
	assert.Equal(t, 10.0, score)
}

func TestMoneynessBand(t *testing.T) {
	e := NewEngine(DefaultSettings(), nil)
	call := put(100, 30, 5)
	call.Type = models.Call

	assert.Equal(t, models.ATM, e.moneyness(put(100, 30, 5), 101.5))
	assert.Equal(t, models.ITM, e.moneyness(put(100, 30, 5), 95))
	assert.Equal(t, models.OTM, e.moneyness(put(100, 30, 5), 105))
	assert.Equal(t, models.ITM, e.moneyness(call, 105))
	assert.Equal(t, models.OTM, e.moneyness(call, 95))
}

func TestRiskFactors(t *testing.T) {
	earnings := now.AddDate(0, 0, 10)
	p := put(90, 6, 20)
	entryTech := 90.0
	p.EntryTechnical = &entryTech

	rec := NewEngine(DefaultSettings(), fixedValue(1.90)).Analyze(p, MarketState{
		Spot:              120,
		ImpliedVolatility: 0.3,
		Snapshot:          &models.FactorSnapshot{Price: 120, NextEarnings: &earnings},
	}, now)

	assert.Contains(t, rec.RiskFactors, "Earnings in 10 days")
	assert.Contains(t, rec.RiskFactors, "Only 6 days to expiration")
	assert.Contains(t, rec.RiskFactors, "Technical score declined 35 points")
}

func TestTargets(t *testing.T) {
	rec := NewEngine(DefaultSettings(), fixedValue(0.40)).Analyze(put(90, 30, 3), state(120), now)
	tg := rec.Targets
	assert.InDelta(t, 0.50, tg.Aggressive, 1e-9)
	assert.InDelta(t, 1.00, tg.Standard, 1e-9)
	assert.InDelta(t, 1.40, tg.Conservative, 1e-9)
	assert.InDelta(t, 3.00, tg.StopLoss, 1e-9)
	assert.InDelta(t, 0.40, tg.SuggestedClose, 1e-9)
	assert.Equal(t, 4, tg.CanCloseAfterDays)
}

func TestDecayProxy(t *testing.T) {
	p := put(90, 15, 15)
	assert.InDelta(t, 2*math.Sqrt(0.5), DecayProxy{}.Value(p, 100, 15), 1e-9)
	assert.InDelta(t, 10.0, DecayProxy{}.Value(p, 80, 0), 1e-9)
	assert.Zero(t, DecayProxy{}.Value(p, 95, -1))

	noEntry := p
	noEntry.EntryDate = time.Time{}
	assert.InDelta(t, 1.0, DecayProxy{}.Value(noEntry, 100, 15), 1e-9)
}

func TestQuotedValueFallsBack(t *testing.T) {
	p := put(90, 15, 15)
	key := QuoteKey("TICK", models.Put, 90, p.Expiration.Format("2006-01-02"))
	q := QuotedValue{Quotes: map[string]float64{key: 0.75}, Fallback: fixedValue(9)}
	assert.Equal(t, 0.75, q.Value(p, 100, 15))

	other := put(85, 15, 15)
	assert.Equal(t, 9.0, q.Value(other, 100, 15))
}

func TestValidate(t *testing.T) {
	require.NoError(t, DefaultSettings().Validate())
	s := DefaultSettings()
	s.AggressiveTargetPct = 40
	assert.ErrorIs(t, s.Validate(), ErrInvalidSettings)
}
