// Package enrich derives per-contract analytics (mid price, days to expiry,
// out-of-the-money probability, moneyness) from raw option quotes and drops
// quotes that cannot be priced.
package enrich

import (
	"math"
	"time"

	"github.com/jwaldner/wheelhouse/internal/models"
	"github.com/jwaldner/wheelhouse/internal/probability"
	"github.com/jwaldner/wheelhouse/internal/utils"
)

// Skip reasons reported in Result.Skipped
const (
	SkipInvalidStrike     = "invalid_strike"
	SkipInvalidVolatility = "invalid_volatility"
	SkipMissingSpot       = "missing_spot"
	SkipExpired           = "expired"
)

// Result is the enriched table plus per-reason counts of rejected quotes
type Result struct {
	Quotes  []models.EnrichedQuote
	Skipped map[string]int
}

// SkippedTotal sums all rejection counts
func (r Result) SkippedTotal() int {
	n := 0
	for _, c := range r.Skipped {
		n += c
	}
	return n
}

// Enrich derives per-contract analytics for every valid quote. The input
// slice is never modified; malformed or expired quotes are counted and dropped.
func Enrich(quotes []models.OptionQuote, now time.Time) Result {
	res := Result{
		Quotes:  make([]models.EnrichedQuote, 0, len(quotes)),
		Skipped: map[string]int{},
	}

	for _, q := range quotes {
		if reason := validate(q, now); reason != "" {
			res.Skipped[reason]++
			continue
		}
		res.Quotes = append(res.Quotes, Quote(q, now))
	}
	return res
}

// Quote enriches a single, already validated quote
func Quote(q models.OptionQuote, now time.Time) models.EnrichedQuote {
	days := utils.DaysToExpiration(now, q.Expiration)

	eq := models.EnrichedQuote{
		OptionQuote:      q,
		DaysToExpiration: days,
		BidAskSpread:     q.Ask - q.Bid,
		MoneynessRatio:   q.Strike / q.SpotPrice,
		DistancePct:      (q.Strike - q.SpotPrice) / q.SpotPrice * 100,
		Moneyness:        Classify(q.Type, q.Strike, q.SpotPrice),
		MidPrice:         (q.Bid + q.Ask) / 2,
	}
	if q.LastPrice > 0 {
		eq.SpreadPct = eq.BidAskSpread / q.LastPrice * 100
	}

	eq.ProbabilityOTM = probability.OTM(q.SpotPrice, q.Strike, q.ImpliedVolatility, days, q.Type)
	eq.LowConfidence = days == 0 || eq.ProbabilityOTM == 0 ||
		q.ImpliedVolatility < probability.MinReliableVolatility
	return eq
}

// Classify returns ITM/OTM by strike vs spot; only exact equality is ATM
func Classify(t models.OptionType, strike, spot float64) models.Moneyness {
	switch {
	case strike == spot:
		return models.ATM
	case t == models.Call && strike < spot, t == models.Put && strike > spot:
		return models.ITM
	default:
		return models.OTM
	}
}

func validate(q models.OptionQuote, now time.Time) string {
	switch {
	case q.Strike <= 0 || math.IsNaN(q.Strike) || math.IsInf(q.Strike, 0):
		return SkipInvalidStrike
	case math.IsNaN(q.ImpliedVolatility) || math.IsInf(q.ImpliedVolatility, 0) || q.ImpliedVolatility < 0:
		return SkipInvalidVolatility
	case q.SpotPrice <= 0 || math.IsNaN(q.SpotPrice) || math.IsInf(q.SpotPrice, 0):
		return SkipMissingSpot
	case utils.DaysBetween(now, q.Expiration) < 0:
		return SkipExpired
	}
	return ""
}
