// Package roll searches later expirations for a replacement of a short option
// position and scores each (strike, expiration) candidate.
package roll

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/jwaldner/wheelhouse/internal/health"
	"github.com/jwaldner/wheelhouse/internal/models"
	"github.com/jwaldner/wheelhouse/internal/probability"
	"github.com/jwaldner/wheelhouse/internal/utils"
)

var (
	// ErrInvalidTopN is returned for a negative candidate cap
	ErrInvalidTopN = errors.New("roll top_n must not be negative")
	// ErrInvalidSettings wraps other validation failures
	ErrInvalidSettings = errors.New("invalid roll settings")
)

// Settings bound the candidate search
type Settings struct {
	MinCredit         float64 `yaml:"min_net_credit" json:"min_net_credit"`
	MaxExpirations    int     `yaml:"max_expirations" json:"max_expirations"`
	StrikeBandPct     float64 `yaml:"strike_band_pct" json:"strike_band_pct"`
	SameStrikePct     float64 `yaml:"same_strike_pct" json:"same_strike_pct"`
	TimeExtensionDays int     `yaml:"time_extension_days" json:"time_extension_days"`
	TopN              int     `yaml:"top_n" json:"top_n"`
}

func DefaultSettings() Settings {
	return Settings{
		MinCredit:         0.25,
		MaxExpirations:    6,
		StrikeBandPct:     5,
		SameStrikePct:     2,
		TimeExtensionDays: 7,
		TopN:              5,
	}
}

func (s Settings) Validate() error {
	switch {
	case s.TopN < 0:
		return ErrInvalidTopN
	case s.MaxExpirations < 0 || s.StrikeBandPct < 0 || s.SameStrikePct < 0 || s.TimeExtensionDays < 0:
		return fmt.Errorf("%w: values must not be negative", ErrInvalidSettings)
	}
	return nil
}

// Chain is the enriched chain for one candidate expiration
type Chain struct {
	Expiration time.Time
	Quotes     []models.EnrichedQuote
}

// Optimizer ranks roll candidates for a position
type Optimizer struct {
	settings  Settings
	closeCost health.OptionValuationStrategy
}

// NewOptimizer uses MoneynessDecay for close cost when closeCost is nil
func NewOptimizer(settings Settings, closeCost health.OptionValuationStrategy) *Optimizer {
	if closeCost == nil {
		closeCost = MoneynessDecay{}
	}
	return &Optimizer{settings: settings, closeCost: closeCost}
}

// Settings returns the thresholds in use
func (o *Optimizer) Settings() Settings {
	return o.settings
}

// FutureExpirations keeps expirations strictly after current, earliest first,
// capped at the configured count.
func (o *Optimizer) FutureExpirations(current time.Time, available []time.Time) []time.Time {
	var out []time.Time
	for _, exp := range available {
		if utils.DaysBetween(current, exp) > 0 {
			out = append(out, exp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	if o.settings.MaxExpirations > 0 && len(out) > o.settings.MaxExpirations {
		out = out[:o.settings.MaxExpirations]
	}
	return out
}

// Candidates returns the best roll candidates, highest score first. A
// missing spot or an empty chain set yields no candidates.
func (o *Optimizer) Candidates(p models.HeldPosition, spot float64, chains []Chain, now time.Time) ([]models.RollCandidate, error) {
	if err := o.settings.Validate(); err != nil {
		return nil, err
	}
	if spot <= 0 || p.Strike <= 0 {
		return nil, nil
	}

	allowed := map[string]bool{}
	var exps []time.Time
	for _, c := range chains {
		exps = append(exps, c.Expiration)
	}
	for _, exp := range o.FutureExpirations(p.Expiration, exps) {
		allowed[exp.Format("2006-01-02")] = true
	}

	closeCost := o.closeCost.Value(p, spot, utils.DaysBetween(now, p.Expiration))
	band := o.settings.StrikeBandPct / 100

	var out []models.RollCandidate
	for _, chain := range chains {
		if !allowed[chain.Expiration.Format("2006-01-02")] {
			continue
		}
		for _, q := range chain.Quotes {
			if q.Type != p.Type || q.Strike <= 0 {
				continue
			}
			if p.Type == models.Put && q.Strike > p.Strike*(1+band) {
				continue
			}
			if p.Type == models.Call && q.Strike < p.Strike*(1-band) {
				continue
			}

			premium := q.Bid
			if premium <= 0 {
				premium = q.LastPrice
			}
			if premium <= 0 {
				continue
			}

			net := premium - closeCost
			if net < o.settings.MinCredit {
				continue
			}

			c := models.RollCandidate{
				CurrentStrike:     p.Strike,
				CurrentExpiration: p.Expiration,
				CloseCost:         closeCost,
				NewStrike:         q.Strike,
				NewExpiration:     chain.Expiration,
				NewPremium:        premium,
				NewDays:           q.DaysToExpiration,
				NetCredit:         net,
				RollType:          o.Classify(p, q.Strike, chain.Expiration),
				AnnualizedReturn:  probability.AnnualizedReturn(premium, q.Strike, q.DaysToExpiration),
				ProbabilityOTM:    q.ProbabilityOTM,
			}
			c.Score = ImprovementScore(c.NetCredit, c.AnnualizedReturn, c.ProbabilityOTM, c.RollType)
			c.Reasoning = Reasoning(c)
			out = append(out, c)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if o.settings.TopN > 0 && len(out) > o.settings.TopN {
		out = out[:o.settings.TopN]
	}
	return out, nil
}

// Classify names a roll by how strike and expiration move
func (o *Optimizer) Classify(p models.HeldPosition, newStrike float64, newExpiration time.Time) models.RollType {
	extended := utils.DaysBetween(p.Expiration, newExpiration) > o.settings.TimeExtensionDays
	diff := (newStrike - p.Strike) / p.Strike

	pick := func(out, in models.RollType) models.RollType {
		if extended {
			return out
		}
		return in
	}

	switch {
	case math.Abs(diff) < o.settings.SameStrikePct/100:
		return pick(models.RollOut, models.RollSame)
	case newStrike < p.Strike:
		return pick(models.RollOutAndDown, models.RollDown)
	default:
		return pick(models.RollOutAndUp, models.RollUp)
	}
}

var typePreference = map[models.RollType]float64{
	models.RollOutAndDown: 10,
	models.RollOut:        9,
	models.RollDown:       8,
	models.RollOutAndUp:   7,
	models.RollSame:       6,
	models.RollUp:         5,
}

// ImprovementScore is credit (40) + return (30) + probability (20) + roll type (10), capped at 100
func ImprovementScore(netCredit, annualReturn, probOTM float64, rollType models.RollType) float64 {
	score := math.Min(40, netCredit/1.5*40)

	switch {
	case annualReturn >= 40:
		score += 30
	case annualReturn >= 30:
		score += 25
	case annualReturn >= 20:
		score += 20
	default:
		score += annualReturn / 20 * 20
	}

	score += probOTM / 100 * 20

	if pref, ok := typePreference[rollType]; ok {
		score += pref
	} else {
		score += 5
	}
	return math.Min(100, score)
}

var typeDescription = map[models.RollType]string{
	models.RollOutAndDown: "Safer strike with more time",
	models.RollOut:        "More time for premium decay",
	models.RollDown:       "Safer strike",
	models.RollOutAndUp:   "Higher strike with more time",
	models.RollUp:         "Higher strike",
	models.RollSame:       "Same strike",
}

// Reasoning renders a candidate as a " | " separated summary
func Reasoning(c models.RollCandidate) string {
	parts := []string{
		fmt.Sprintf("Collect $%.2f net credit", c.NetCredit),
		fmt.Sprintf("New annual return: %.1f%%", c.AnnualizedReturn),
		fmt.Sprintf("Probability OTM: %.0f%%", c.ProbabilityOTM),
		fmt.Sprintf("Extends %d days", c.NewDays),
	}
	if d, ok := typeDescription[c.RollType]; ok {
		parts = append(parts, d)
	}
	return strings.Join(parts, " | ")
}
