// Package factors scores a ticker's technical, fundamental, sentiment and
// event-risk picture and blends it with the closed-form probability.
//
// Every sub-score starts from a neutral 50 (event risk from 100), accumulates
// signed point adjustments and is clamped to [0, 100]. A missing snapshot
// degrades to neutral scores and leaves the base probability untouched.
package factors

import (
	"math"
	"time"

	"github.com/jwaldner/wheelhouse/internal/models"
	"github.com/jwaldner/wheelhouse/internal/utils"
)

const (
	neutral = 50.0

	weightTechnical   = 0.35
	weightFundamental = 0.25
	weightSentiment   = 0.20
	weightEventRisk   = 0.20

	// MaxAdjustment is the largest probability shift, in percentage points
	MaxAdjustment = 15.0
)

// has mirrors a truthiness check: present and non-zero
func has(v *float64) bool {
	return v != nil && *v != 0
}

// Technical scores trend, momentum, range position, volume and, for puts,
// the strike's cushion below spot.
func Technical(snap *models.FactorSnapshot, strike float64, optionType models.OptionType) float64 {
	if snap == nil || snap.Price <= 0 {
		return neutral
	}

	score := neutral
	current := snap.Price

	if has(snap.SMA20) && has(snap.SMA50) {
		sma20, sma50 := *snap.SMA20, *snap.SMA50
		switch {
		case current > sma20 && sma20 > sma50:
			score += 15
		case current > sma20 && sma20 < sma50:
			score += 5
		case current < sma20 && sma20 > sma50:
			score -= 5
		case current < sma20 && sma20 < sma50:
			score -= 15
		}
	}

	if has(snap.SMA50) {
		pct := (current - *snap.SMA50) / *snap.SMA50 * 100
		switch {
		case pct > 10:
			score += 10
		case pct > 5:
			score += 5
		case pct < -10:
			score -= 10
		case pct < -5:
			score -= 5
		}
	}

	if has(snap.Low52) && has(snap.High52) && *snap.High52 != *snap.Low52 {
		pos := (current - *snap.Low52) / (*snap.High52 - *snap.Low52) * 100
		switch {
		case pos > 80:
			score += 5
		case pos > 60:
			score += 10
		case pos > 40:
			score += 5
		case pos < 20:
			score -= 5
		}
	}

	if has(snap.Volume) && has(snap.AvgVolume) && *snap.Volume / *snap.AvgVolume > 1.5 && has(snap.PreviousClose) {
		if current > *snap.PreviousClose {
			score += 5
		} else {
			score -= 5
		}
	}

	if optionType == models.Put {
		distance := (current - strike) / current * 100
		switch {
		case distance > 10:
			score += 5
		case distance > 5:
			score += 3
		case distance < -5:
			score -= 10
		}
	}

	return clamp(score)
}

// Fundamental scores valuation, profitability, growth, leverage and beta
func Fundamental(snap *models.FactorSnapshot) float64 {
	if snap == nil {
		return neutral
	}
	score := neutral

	if has(snap.TrailingPE) && has(snap.ForwardPE) {
		pe := *snap.ForwardPE
		switch {
		case pe >= 15 && pe <= 30:
			score += 10
		case pe < 15:
			score += 5
		case pe > 50:
			score -= 10
		case pe > 35:
			score -= 5
		}
	}

	if has(snap.ProfitMargin) {
		switch m := *snap.ProfitMargin; {
		case m > 0.25:
			score += 10
		case m > 0.15:
			score += 5
		case m < 0.05:
			score -= 10
		}
	}

	if has(snap.ROE) {
		switch roe := *snap.ROE; {
		case roe > 0.20:
			score += 5
		case roe > 0.10:
			score += 3
		case roe < 0.05:
			score -= 5
		}
	}

	if has(snap.RevenueGrowth) {
		switch g := *snap.RevenueGrowth; {
		case g > 0.20:
			score += 5
		case g > 0.10:
			score += 3
		case g < 0:
			score -= 5
		}
	}

	if has(snap.EarningsGrowth) {
		switch g := *snap.EarningsGrowth; {
		case g > 0.15:
			score += 5
		case g < 0:
			score -= 5
		}
	}

	// zero leverage is a real value here, not missing data
	if snap.DebtToEquity != nil {
		switch de := *snap.DebtToEquity; {
		case de < 50:
			score += 10
		case de < 100:
			score += 5
		case de > 200:
			score -= 10
		case de > 150:
			score -= 5
		}
	}

	if has(snap.Beta) {
		switch b := *snap.Beta; {
		case b >= 0.8 && b <= 1.2:
			score += 5
		case b > 1.5:
			score -= 5
		}
	}

	return clamp(score)
}

// Sentiment scores analyst consensus, target upside and coverage breadth
func Sentiment(snap *models.FactorSnapshot) float64 {
	if snap == nil {
		return neutral
	}
	score := neutral

	if has(snap.RecommendationMean) {
		switch r := *snap.RecommendationMean; {
		case r < 2.0:
			score += 20
		case r < 2.5:
			score += 10
		case r < 3.5:
		case r < 4.5:
			score -= 10
		default:
			score -= 20
		}
	}

	if has(snap.TargetMeanPrice) && snap.Price != 0 {
		upside := (*snap.TargetMeanPrice - snap.Price) / snap.Price * 100
		switch {
		case upside > 20:
			score += 15
		case upside > 10:
			score += 10
		case upside > 0:
			score += 5
		case upside < -10:
			score -= 15
		}
	}

	if has(snap.NumAnalysts) {
		switch n := *snap.NumAnalysts; {
		case n > 30:
			score += 5
		case n > 15:
			score += 3
		case n < 5:
			score -= 5
		}
	}

	return clamp(score)
}

// EventRisk is inverted: 100 means no scheduled event inside the option's life
func EventRisk(snap *models.FactorSnapshot, daysToExpiration int, now time.Time) float64 {
	if snap == nil {
		return neutral
	}
	score := 100.0

	if snap.NextEarnings != nil {
		days := utils.DaysBetween(now, *snap.NextEarnings)
		if days >= 0 && days <= daysToExpiration {
			switch {
			case days < 7:
				score -= 30
			case days < 14:
				score -= 20
			default:
				score -= 10
			}
		}
	}

	return clamp(score)
}

// Composite weights the four sub-scores
func Composite(technical, fundamental, sentiment, eventRisk float64) float64 {
	return technical*weightTechnical +
		fundamental*weightFundamental +
		sentiment*weightSentiment +
		eventRisk*weightEventRisk
}

// Adjustment converts a composite score into probability points
func Adjustment(composite float64) float64 {
	return ((composite - neutral) / neutral) * MaxAdjustment
}

// ConfidenceOf grades how complete the snapshot is
func ConfidenceOf(snap *models.FactorSnapshot) models.Confidence {
	switch {
	case snap == nil:
		return models.ConfidenceLow
	case has(snap.SMA50) && has(snap.TrailingPE) && has(snap.RecommendationMean):
		return models.ConfidenceHigh
	case has(snap.SMA50):
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}

// Score runs all four sub-scores for one contract and applies the composite
// adjustment to baseProb. A zero baseProb is treated as unknown and left as is.
func Score(snap *models.FactorSnapshot, strike float64, dte int, optionType models.OptionType, baseProb float64, now time.Time) models.FactorScores {
	if snap == nil {
		return models.FactorScores{
			Technical:           neutral,
			Fundamental:         neutral,
			Sentiment:           neutral,
			EventRisk:           neutral,
			Composite:           neutral,
			BaseProbability:     baseProb,
			EnhancedProbability: baseProb,
			Confidence:          models.ConfidenceLow,
		}
	}

	fs := models.FactorScores{
		Technical:       Technical(snap, strike, optionType),
		Fundamental:     Fundamental(snap),
		Sentiment:       Sentiment(snap),
		EventRisk:       EventRisk(snap, dte, now),
		BaseProbability: baseProb,
		Confidence:      ConfidenceOf(snap),
	}
	fs.Composite = Composite(fs.Technical, fs.Fundamental, fs.Sentiment, fs.EventRisk)
	fs.Adjustment = Adjustment(fs.Composite)

	if baseProb != 0 {
		fs.EnhancedProbability = clamp(baseProb + fs.Adjustment)
	}
	return fs
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}
