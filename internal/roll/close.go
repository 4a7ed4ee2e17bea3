package roll

import (
	"fmt"
	"math"

	"github.com/jwaldner/wheelhouse/internal/health"
	"github.com/jwaldner/wheelhouse/internal/models"
)

// MoneynessDecay estimates the buy-back cost as a share of entry premium keyed
// on a moneyness ratio (spot/strike for puts, strike/spot for calls): 70% at
// 1.0 and above, 50% from 0.95, 30% below. Expired options cost their
// intrinsic value.
type MoneynessDecay struct{}

func (MoneynessDecay) Value(p models.HeldPosition, spot float64, daysRemaining int) float64 {
	if daysRemaining <= 0 {
		return health.Intrinsic(p.Type, p.Strike, spot)
	}
	if spot <= 0 || p.Strike <= 0 {
		return p.EntryPremium * 0.5
	}

	ratio := spot / p.Strike
	if p.Type == models.Call {
		ratio = p.Strike / spot
	}

	factor := 0.7
	switch {
	case ratio < 0.95:
		factor = 0.3
	case ratio < 1.0:
		factor = 0.5
	}
	return math.Max(0, p.EntryPremium*factor)
}

// Verdict is ROLL or CLOSE
type Verdict string

const (
	VerdictRoll  Verdict = "ROLL"
	VerdictClose Verdict = "CLOSE"
)

// Comparison weighs rolling into a candidate against closing now
type Comparison struct {
	Recommendation Verdict  `json:"recommendation"`
	CloseBenefit   float64  `json:"close_benefit"`
	RollBenefit    float64  `json:"roll_benefit"`
	NetAdvantage   float64  `json:"net_advantage"`
	Reasoning      []string `json:"reasoning"`
}

// CompareRollVsClose recommends a roll when the candidate scores at least 50
func CompareRollVsClose(p models.HeldPosition, c models.RollCandidate, currentPnL float64) Comparison {
	rollBenefit := c.NetCredit * 100 * float64(p.Contracts)
	cmp := Comparison{
		CloseBenefit: currentPnL,
		RollBenefit:  rollBenefit,
		NetAdvantage: rollBenefit - currentPnL,
	}

	switch {
	case c.Score >= 70:
		cmp.Recommendation = VerdictRoll
		cmp.Reasoning = []string{
			fmt.Sprintf("Excellent roll opportunity (score: %.0f/100)", c.Score),
			fmt.Sprintf("Additional $%.0f premium potential", rollBenefit),
		}
	case c.Score >= 50:
		cmp.Recommendation = VerdictRoll
		cmp.Reasoning = []string{fmt.Sprintf("Good roll opportunity (score: %.0f/100)", c.Score)}
	default:
		cmp.Recommendation = VerdictClose
		cmp.Reasoning = []string{
			"Roll opportunity marginal: consider closing",
			fmt.Sprintf("Current profit: $%.2f", currentPnL),
		}
	}
	return cmp
}
