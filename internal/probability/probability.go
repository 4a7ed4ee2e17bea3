// Package probability holds the closed-form probability model used across
// the scanner: probability of an option finishing out of the money, plus
// return arithmetic shared by the strategy pipelines.
package probability

import (
	"math"

	"github.com/jwaldner/wheelhouse/internal/models"
)

const (
	// MinReliableVolatility is the floor below which quoted IV is treated as stale
	MinReliableVolatility = 0.10
	// FallbackVolatility replaces unreliable IV, typically seen when markets are closed
	FallbackVolatility = 0.45

	daysPerYear  = 365.0
	daysPerMonth = 30.0
)

// EffectiveVolatility returns the volatility actually fed to the model
func EffectiveVolatility(iv float64) float64 {
	if iv < MinReliableVolatility {
		return FallbackVolatility
	}
	return iv
}

// NormCDF is the standard normal cumulative distribution function
func NormCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}

// OTM returns the probability (0-100) that an option expires out of the money.
// It never fails: invalid inputs or non-finite intermediate values yield 0.
func OTM(spot, strike, iv float64, days int, optionType models.OptionType) float64 {
	if days <= 0 || spot <= 0 || strike <= 0 || math.IsNaN(iv) || math.IsInf(iv, 0) {
		return 0
	}

	sigma := EffectiveVolatility(iv)
	t := float64(days) / daysPerYear

	d1 := (math.Log(spot/strike) + 0.5*sigma*sigma*t) / (sigma * math.Sqrt(t))
	if math.IsNaN(d1) || math.IsInf(d1, 0) {
		return 0
	}

	var p float64
	if optionType == models.Call {
		p = NormCDF(-d1)
	} else {
		p = NormCDF(d1)
	}

	p *= 100
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return 0
	}
	return clamp(p, 0, 100)
}

// AnnualizedReturn is premium/capital scaled to a year, as a percentage
func AnnualizedReturn(premium, capital float64, days int) float64 {
	if days <= 0 || capital <= 0 {
		return 0
	}
	return (premium / capital) * (daysPerYear / float64(days)) * 100
}

// MonthlyReturn is premium/capital scaled to a 30-day month, as a percentage
func MonthlyReturn(premium, capital float64, days int) float64 {
	if days <= 0 || capital <= 0 {
		return 0
	}
	return (premium / capital) * (daysPerMonth / float64(days)) * 100
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
