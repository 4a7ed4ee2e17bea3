package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTopN is returned for a negative result cap
	ErrInvalidTopN = errors.New("top_n must not be negative")
	// ErrInvalidParams wraps every other parameter validation failure
	ErrInvalidParams = errors.New("invalid pipeline parameters")
)

// Params are the filters shared by every strategy pipeline. Nil pointers and
// zero liquidity minimums disable the corresponding filter.
type Params struct {
	MinPremium        float64  `yaml:"min_premium" json:"min_premium"`
	MinAnnualReturn   float64  `yaml:"min_annual_return" json:"min_annual_return"`
	MinDays           int      `yaml:"min_days" json:"min_days"`
	MaxDays           int      `yaml:"max_days" json:"max_days"`
	TopN              int      `yaml:"top_n" json:"top_n"` // 0 keeps everything
	MinVolume         int64    `yaml:"min_volume" json:"min_volume"`
	MinOpenInterest   int64    `yaml:"min_open_interest" json:"min_open_interest"`
	Tickers           []string `yaml:"tickers" json:"tickers,omitempty"` // allow-list
	MinDelta          *float64 `yaml:"min_delta" json:"min_delta,omitempty"`
	MaxDelta          *float64 `yaml:"max_delta" json:"max_delta,omitempty"`
	MinProbabilityOTM *float64 `yaml:"min_prob_otm" json:"min_prob_otm,omitempty"`

	// Prefer the factor-adjusted probability when a quote was scored
	UseEnhancedProbability bool `yaml:"use_enhanced_probability" json:"use_enhanced_probability"`
}

// CoveredCallParams adds the strike sanity band around spot
type CoveredCallParams struct {
	Params       `yaml:",inline"`
	MinStrikePct float64 `yaml:"min_strike_pct" json:"min_strike_pct"`
	MaxStrikePct float64 `yaml:"max_strike_pct" json:"max_strike_pct"`
}

// WheelParams adds the entry discount the wheel waits for
type WheelParams struct {
	Params              `yaml:",inline"`
	TargetEntryDiscount float64 `yaml:"target_entry_discount" json:"target_entry_discount"`
}

// Budget caps position sizing for cash-secured strategies
type Budget struct {
	Deployable     float64 // cash that may be committed in total
	MaxPerPosition float64 // cash that may be committed to one position
}

// MaxContracts is how many cash-secured contracts at strike fit under both caps
func (b Budget) MaxContracts(strike float64) int {
	perContract := strike * sharesPerContract
	if perContract <= 0 {
		return 0
	}
	contracts := int(b.MaxPerPosition / perContract)
	if byTotal := int(b.Deployable / perContract); byTotal < contracts {
		contracts = byTotal
	}
	if contracts < 0 {
		return 0
	}
	return contracts
}

func ptr(v float64) *float64 { return &v }

// DefaultCSPParams tunes for 20-60 DTE puts closed early at 50% profit
func DefaultCSPParams() Params {
	return Params{
		MinPremium:             0.50,
		MinAnnualReturn:        12.0,
		MinDays:                20,
		MaxDays:                60,
		TopN:                   20,
		MinVolume:              100,
		MinOpenInterest:        100,
		MaxDelta:               ptr(-0.30),
		MinProbabilityOTM:      ptr(65.0),
		UseEnhancedProbability: true,
	}
}

func DefaultCoveredCallParams() CoveredCallParams {
	return CoveredCallParams{
		Params: Params{
			MinPremium:             0.50,
			MinAnnualReturn:        15.0,
			MaxDays:                45,
			TopN:                   20,
			UseEnhancedProbability: true,
		},
		MinStrikePct: 0.95,
		MaxStrikePct: 1.50,
	}
}

func DefaultWheelParams() WheelParams {
	p := DefaultCSPParams()
	p.MinAnnualReturn = 20.0
	p.MaxDays = 45
	return WheelParams{Params: p, TargetEntryDiscount: 5.0}
}

// Validate fails fast on contract violations
func (p Params) Validate() error {
	switch {
	case p.TopN < 0:
		return ErrInvalidTopN
	case p.MinPremium < 0 || p.MinAnnualReturn < 0:
		return fmt.Errorf("%w: minimums must not be negative", ErrInvalidParams)
	case p.MinDays < 0 || p.MaxDays < 0:
		return fmt.Errorf("%w: day bounds must not be negative", ErrInvalidParams)
	case p.MaxDays > 0 && p.MinDays > p.MaxDays:
		return fmt.Errorf("%w: min_days %d exceeds max_days %d", ErrInvalidParams, p.MinDays, p.MaxDays)
	case p.MinDelta != nil && p.MaxDelta != nil && *p.MinDelta > *p.MaxDelta:
		return fmt.Errorf("%w: min_delta exceeds max_delta", ErrInvalidParams)
	case p.MinProbabilityOTM != nil && (*p.MinProbabilityOTM < 0 || *p.MinProbabilityOTM > 100):
		return fmt.Errorf("%w: min_prob_otm must be within 0-100", ErrInvalidParams)
	}
	return nil
}

func (p CoveredCallParams) Validate() error {
	if err := p.Params.Validate(); err != nil {
		return err
	}
	if p.MinStrikePct < 0 || (p.MaxStrikePct > 0 && p.MaxStrikePct < p.MinStrikePct) {
		return fmt.Errorf("%w: strike band %.2f-%.2f", ErrInvalidParams, p.MinStrikePct, p.MaxStrikePct)
	}
	return nil
}

func (p WheelParams) Validate() error {
	if err := p.Params.Validate(); err != nil {
		return err
	}
	if p.TargetEntryDiscount < 0 {
		return fmt.Errorf("%w: target_entry_discount must not be negative", ErrInvalidParams)
	}
	return nil
}
