package health

import (
	"math"

	"github.com/jwaldner/wheelhouse/internal/models"
	"github.com/jwaldner/wheelhouse/internal/utils"
)

// OptionValuationStrategy estimates what it would cost today to buy back a
// short option. The health engine depends only on this interface.
type OptionValuationStrategy interface {
	Value(p models.HeldPosition, spot float64, daysRemaining int) float64
}

// DecayProxy approximates the option value as entry premium scaled by the
// square root of the fraction of its life remaining. It is not a pricer.
type DecayProxy struct{}

func (DecayProxy) Value(p models.HeldPosition, spot float64, daysRemaining int) float64 {
	if daysRemaining <= 0 {
		return Intrinsic(p.Type, p.Strike, spot)
	}

	totalDays := utils.DaysBetween(p.EntryDate, p.Expiration)
	if p.EntryDate.IsZero() || totalDays <= 0 {
		return p.EntryPremium * 0.5
	}

	remaining := math.Min(1, float64(daysRemaining)/float64(totalDays))
	return math.Max(0, p.EntryPremium*math.Sqrt(remaining))
}

// Intrinsic is the exercise value of an option at spot
func Intrinsic(t models.OptionType, strike, spot float64) float64 {
	if spot <= 0 {
		return 0
	}
	if t == models.Put {
		return math.Max(0, strike-spot)
	}
	return math.Max(0, spot-strike)
}

// QuotedValue values a position from a live quote mid, falling back to
// another strategy when no quote is available.
type QuotedValue struct {
	Quotes   map[string]float64 // keyed by QuoteKey
	Fallback OptionValuationStrategy
}

// QuoteKey identifies a contract in QuotedValue.Quotes
func QuoteKey(ticker string, t models.OptionType, strike float64, expiration string) string {
	return ticker + "|" + string(t) + "|" + expiration + "|" + utils.FormatPrice(strike)
}

func (q QuotedValue) Value(p models.HeldPosition, spot float64, daysRemaining int) float64 {
	key := QuoteKey(p.Ticker, p.Type, p.Strike, p.Expiration.Format("2006-01-02"))
	if v, ok := q.Quotes[key]; ok && v >= 0 {
		return v
	}
	if q.Fallback == nil {
		return DecayProxy{}.Value(p, spot, daysRemaining)
	}
	return q.Fallback.Value(p, spot, daysRemaining)
}
