// Package capital tracks cash committed to open positions and decides
// whether a new position fits the account's limits.
package capital

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jwaldner/wheelhouse/internal/models"
	"github.com/jwaldner/wheelhouse/internal/pipeline"
	"github.com/jwaldner/wheelhouse/internal/utils"
)

// ErrInvalidSettings wraps capital settings validation failures
var ErrInvalidSettings = errors.New("invalid capital settings")

// Reason explains a CanOpen decision
type Reason string

const (
	ReasonOK                   Reason = "ok"
	ReasonPositionLimitReached Reason = "position_limit_reached"
	ReasonInsufficientCapital  Reason = "insufficient_capital"
)

// Settings are the account-level limits
type Settings struct {
	AvailableCash      float64 `yaml:"available_cash" json:"available_cash"`
	MaxCashPerPosition float64 `yaml:"max_cash_per_position" json:"max_cash_per_position"`
	ReserveCash        float64 `yaml:"reserve_cash" json:"reserve_cash"`
	MaxPositions       int     `yaml:"max_positions" json:"max_positions"`
}

func DefaultSettings() Settings {
	return Settings{
		AvailableCash:      38000,
		MaxCashPerPosition: 30000,
		ReserveCash:        3000,
		MaxPositions:       4,
	}
}

func (s Settings) Validate() error {
	if s.AvailableCash < 0 || s.MaxCashPerPosition < 0 || s.ReserveCash < 0 || s.MaxPositions < 0 {
		return fmt.Errorf("%w: values must not be negative", ErrInvalidSettings)
	}
	return nil
}

// PositionCapital is the capital tied up by one open position
type PositionCapital struct {
	Ticker        string          `json:"ticker"`
	Strategy      models.Strategy `json:"strategy"`
	Strike        float64         `json:"strike"`
	Expiration    time.Time       `json:"expiration"`
	Contracts     int             `json:"contracts"`
	Deployed      float64         `json:"capital_deployed"`
	DaysRemaining int             `json:"days_remaining"`
}

// Summary is the deployed/available picture for a set of open positions
type Summary struct {
	TotalDeployed  float64                     `json:"total_deployed"`
	ByStrategy     map[models.Strategy]float64 `json:"by_strategy"`
	ByTicker       map[string]float64          `json:"by_ticker"`
	Concentration  map[string]float64          `json:"concentration_pct"`
	PositionCount  int                         `json:"position_count"`
	Positions      []PositionCapital           `json:"positions"`
	Deployable     float64                     `json:"total_available"` // cash less reserve
	Available      float64                     `json:"remaining_for_new"`
	RemainingSlots int                         `json:"positions_available"`
	Settings       Settings                    `json:"settings"`
}

// Decision answers whether a new position may be opened
type Decision struct {
	OK            bool    `json:"can_open_new"`
	Reason        Reason  `json:"reason"`
	MaxNewCapital float64 `json:"max_new_capital"`
	SlotsLeft     int     `json:"positions_slots_left"`
}

// Allocator is an immutable view of capital over a snapshot of open positions
type Allocator struct {
	settings Settings
	summary  Summary
}

// CapitalRequired is the cash a position secures. Covered calls are backed
// by shares already owned and need none.
func CapitalRequired(p models.HeldPosition) float64 {
	if p.Strategy == models.StrategyCC {
		return 0
	}
	return p.Strike * 100 * float64(p.Contracts)
}

// New summarizes the open positions among positions
func New(settings Settings, positions []models.HeldPosition, now time.Time) *Allocator {
	total := decimal.Zero
	byStrategy := map[models.Strategy]decimal.Decimal{}
	byTicker := map[string]decimal.Decimal{}

	s := Summary{
		ByStrategy:    map[models.Strategy]float64{},
		ByTicker:      map[string]float64{},
		Concentration: map[string]float64{},
		Settings:      settings,
	}

	for _, p := range positions {
		if p.Status == models.StatusClosed {
			continue
		}
		required := CapitalRequired(p)
		amount := decimal.NewFromFloat(required)
		total = total.Add(amount)
		byStrategy[p.Strategy] = byStrategy[p.Strategy].Add(amount)
		byTicker[p.Ticker] = byTicker[p.Ticker].Add(amount)

		s.PositionCount++
		s.Positions = append(s.Positions, PositionCapital{
			Ticker:        p.Ticker,
			Strategy:      p.Strategy,
			Strike:        p.Strike,
			Expiration:    p.Expiration,
			Contracts:     p.Contracts,
			Deployed:      required,
			DaysRemaining: utils.DaysBetween(now, p.Expiration),
		})
	}

	s.TotalDeployed = total.InexactFloat64()
	for k, v := range byStrategy {
		s.ByStrategy[k] = v.InexactFloat64()
	}
	for k, v := range byTicker {
		s.ByTicker[k] = v.InexactFloat64()
		if total.IsPositive() {
			s.Concentration[k] = v.Div(total).Mul(decimal.NewFromInt(100)).InexactFloat64()
		}
	}
	sort.SliceStable(s.Positions, func(i, j int) bool {
		return s.Positions[i].Deployed > s.Positions[j].Deployed
	})

	deployable := decimal.NewFromFloat(settings.AvailableCash).Sub(decimal.NewFromFloat(settings.ReserveCash))
	s.Deployable = deployable.InexactFloat64()
	s.Available = decimal.Max(decimal.Zero, deployable.Sub(total)).InexactFloat64()
	s.RemainingSlots = settings.MaxPositions - s.PositionCount
	if s.RemainingSlots < 0 {
		s.RemainingSlots = 0
	}

	return &Allocator{settings: settings, summary: s}
}

// Summary returns the computed capital picture
func (a *Allocator) Summary() Summary {
	return a.summary
}

// Available is cash less reserve less deployed, floored at zero
func (a *Allocator) Available() float64 {
	return a.summary.Available
}

// MaxNewPositionSize is the lesser of remaining capital and the per-position cap
func (a *Allocator) MaxNewPositionSize() float64 {
	if a.summary.Available < a.settings.MaxCashPerPosition {
		return a.summary.Available
	}
	return a.settings.MaxCashPerPosition
}

// Capacity reports whether any new position can be opened at all
func (a *Allocator) Capacity() Decision {
	return a.CanOpen(0)
}

// CanOpen checks a new position needing size dollars of cash
func (a *Allocator) CanOpen(size float64) Decision {
	d := Decision{SlotsLeft: a.summary.RemainingSlots}
	switch {
	case a.summary.RemainingSlots <= 0:
		d.Reason = ReasonPositionLimitReached
	case a.summary.Available <= 0 || size > a.MaxNewPositionSize():
		d.Reason = ReasonInsufficientCapital
	default:
		d.OK = true
		d.Reason = ReasonOK
		d.MaxNewCapital = a.MaxNewPositionSize()
	}
	return d
}

// MaxContracts is how many cash-secured contracts at strike still fit
func (a *Allocator) MaxContracts(strike float64) int {
	return a.Budget().MaxContracts(strike)
}

// Budget sizes new opportunities against what is left in the account
func (a *Allocator) Budget() pipeline.Budget {
	return pipeline.Budget{
		Deployable:     a.summary.Available,
		MaxPerPosition: a.settings.MaxCashPerPosition,
	}
}
