// Package health grades open short-option positions and recommends what to
// do with each one: hold, close early, roll or adjust targets.
package health

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jwaldner/wheelhouse/internal/factors"
	"github.com/jwaldner/wheelhouse/internal/models"
	"github.com/jwaldner/wheelhouse/internal/probability"
	"github.com/jwaldner/wheelhouse/internal/utils"
)

// ErrInvalidSettings wraps health settings validation failures
var ErrInvalidSettings = errors.New("invalid health settings")

// Settings are the profit-taking and risk thresholds of the decision procedure
type Settings struct {
	AggressiveTargetPct   float64 `yaml:"aggressive_target_pct" json:"aggressive_target_pct"`
	StandardTargetPct     float64 `yaml:"standard_target_pct" json:"standard_target_pct"`
	ConservativeTargetPct float64 `yaml:"conservative_target_pct" json:"conservative_target_pct"`
	StopLossPct           float64 `yaml:"stop_loss_pct" json:"stop_loss_pct"`
	ForceCloseDTE         int     `yaml:"force_close_dte" json:"force_close_dte"`
	MinHoldDays           int     `yaml:"min_hold_days" json:"min_hold_days"`
	AssignmentRiskDays    int     `yaml:"assignment_risk_days" json:"assignment_risk_days"`
	ProbabilityWarning    float64 `yaml:"min_prob_otm_warning" json:"min_prob_otm_warning"`
	Sensitivity           float64 `yaml:"sensitivity" json:"sensitivity"`
	ATMBandPct            float64 `yaml:"atm_band_pct" json:"atm_band_pct"`
	ProbabilityDropWarn   float64 `yaml:"prob_drop_warning" json:"prob_drop_warning"`
	EarningsWarningDays   int     `yaml:"earnings_warning_days" json:"earnings_warning_days"`
	TechnicalDropWarn     float64 `yaml:"technical_score_drop" json:"technical_score_drop"`
	ExpiryWarningDays     int     `yaml:"expiry_warning_days" json:"expiry_warning_days"`
}

func DefaultSettings() Settings {
	return Settings{
		AggressiveTargetPct:   75,
		StandardTargetPct:     50,
		ConservativeTargetPct: 30,
		StopLossPct:           -50,
		ForceCloseDTE:         21,
		MinHoldDays:           7,
		AssignmentRiskDays:    7,
		ProbabilityWarning:    45,
		Sensitivity:           15,
		ATMBandPct:            2,
		ProbabilityDropWarn:   10,
		EarningsWarningDays:   14,
		TechnicalDropWarn:     15,
		ExpiryWarningDays:     7,
	}
}

func (s Settings) Validate() error {
	switch {
	case s.StandardTargetPct <= 0 || s.AggressiveTargetPct < s.StandardTargetPct:
		return fmt.Errorf("%w: aggressive target %.0f must be at least standard target %.0f",
			ErrInvalidSettings, s.AggressiveTargetPct, s.StandardTargetPct)
	case s.AggressiveTargetPct > 100:
		return fmt.Errorf("%w: profit targets are percentages of max profit", ErrInvalidSettings)
	case s.ForceCloseDTE < 0 || s.MinHoldDays < 0 || s.AssignmentRiskDays < 0:
		return fmt.Errorf("%w: day thresholds must not be negative", ErrInvalidSettings)
	case s.ProbabilityWarning < 0 || s.ProbabilityWarning > 100:
		return fmt.Errorf("%w: min_prob_otm_warning must be within 0-100", ErrInvalidSettings)
	case s.Sensitivity < 0:
		return fmt.Errorf("%w: sensitivity must not be negative", ErrInvalidSettings)
	}
	return nil
}

// MarketState is everything the engine needs about the present
type MarketState struct {
	Spot              float64                // 0 when unavailable
	ImpliedVolatility float64                // 0 lets the model fall back
	Snapshot          *models.FactorSnapshot // nil when unavailable
}

// Engine produces a fresh recommendation per call; it holds no per-position state
type Engine struct {
	settings  Settings
	valuation OptionValuationStrategy
}

// NewEngine uses DecayProxy when valuation is nil
func NewEngine(settings Settings, valuation OptionValuationStrategy) *Engine {
	if valuation == nil {
		valuation = DecayProxy{}
	}
	return &Engine{settings: settings, valuation: valuation}
}

// Settings returns the thresholds in use
func (e *Engine) Settings() Settings {
	return e.settings
}

// Analyze grades one open position against the current market state
func (e *Engine) Analyze(p models.HeldPosition, state MarketState, now time.Time) models.PositionRecommendation {
	rec := models.PositionRecommendation{
		Position:      p,
		CurrentSpot:   state.Spot,
		DaysRemaining: utils.DaysBetween(now, p.Expiration),
	}
	if !p.EntryDate.IsZero() {
		rec.DaysHeld = utils.DaysBetween(p.EntryDate, now)
	}

	rec.CurrentOptionValue = e.valuation.Value(p, state.Spot, rec.DaysRemaining)

	totalPremium := p.EntryPremium * 100 * float64(p.Contracts)
	rec.UnrealizedPnL = (p.EntryPremium - rec.CurrentOptionValue) * 100 * float64(p.Contracts)
	if totalPremium > 0 {
		rec.PnLPct = rec.UnrealizedPnL / totalPremium * 100
	}

	e.probabilityAnalysis(&rec, state, now)

	rec.HealthScore, rec.HealthStatus = Score(rec.PnLPct, rec.DaysRemaining, rec.CurrentProbability, rec.TechnicalScore, rec.CompositeScore)
	rec.Moneyness = e.moneyness(p, state.Spot)
	rec.RiskFactors = e.riskFactors(rec, state.Snapshot, now)
	rec.Action, rec.Urgency, rec.PrimaryReason, rec.SupportingReasons = e.Decide(rec)
	rec.Targets = e.targets(rec)
	return rec
}

func (e *Engine) probabilityAnalysis(rec *models.PositionRecommendation, state MarketState, now time.Time) {
	p := rec.Position
	if state.Spot <= 0 {
		// no market data: neutral, and never a risk trigger on its own
		rec.CurrentProbability = 50
		rec.TechnicalScore = 50
		rec.CompositeScore = 50
		rec.Confidence = models.ConfidenceLow
		return
	}

	days := rec.DaysRemaining
	if days < 0 {
		days = 0
	}
	base := probability.OTM(state.Spot, p.Strike, state.ImpliedVolatility, days, p.Type)
	fs := factors.Score(state.Snapshot, p.Strike, days, p.Type, base, now)

	rec.CurrentProbability = fs.EnhancedProbability
	rec.TechnicalScore = fs.Technical
	rec.CompositeScore = fs.Composite
	rec.Confidence = fs.Confidence

	if delta, ok := change(rec.CurrentProbability, p.EntryProbability); ok {
		rec.ProbabilityDelta = &delta
	}
	if delta, ok := change(rec.TechnicalScore, p.EntryTechnical); ok {
		rec.TechnicalDelta = &delta
	}
	if delta, ok := change(rec.CompositeScore, p.EntryComposite); ok {
		rec.CompositeDelta = &delta
	}
}

func change(current float64, entry *float64) (float64, bool) {
	if entry == nil || *entry == 0 {
		return 0, false
	}
	return current - *entry, true
}

// Score is the 0-100 health score: profit captured (30), time remaining (25),
// safety margin (25) and market conditions (20).
func Score(pnlPct float64, daysRemaining int, probOTM, technical, composite float64) (float64, models.HealthStatus) {
	var score float64

	switch {
	case pnlPct >= 75:
		score += 30
	case pnlPct >= 50:
		score += 25
	case pnlPct >= 25:
		score += 20
	case pnlPct >= 0:
		score += 15
	default:
		score += math.Max(0, 15+pnlPct/10)
	}

	switch {
	case daysRemaining > 30:
		score += 25
	case daysRemaining > 21:
		score += 20
	case daysRemaining > 14:
		score += 15
	case daysRemaining > 7:
		score += 10
	default:
		score += 5
	}

	switch {
	case probOTM >= 80:
		score += 25
	case probOTM >= 70:
		score += 20
	case probOTM >= 60:
		score += 15
	case probOTM >= 50:
		score += 10
	default:
		score += 5
	}

	score += (technical + composite) / 2 / 100 * 20

	switch {
	case score >= 80:
		return score, models.Healthy
	case score >= 60:
		return score, models.Warning
	default:
		return score, models.Critical
	}
}

func (e *Engine) moneyness(p models.HeldPosition, spot float64) models.Moneyness {
	if spot <= 0 || p.Strike <= 0 {
		return ""
	}
	if math.Abs(spot-p.Strike)/p.Strike*100 < e.settings.ATMBandPct {
		return models.ATM
	}
	itm := spot < p.Strike
	if p.Type == models.Call {
		itm = spot > p.Strike
	}
	if itm {
		return models.ITM
	}
	return models.OTM
}

func (e *Engine) riskFactors(rec models.PositionRecommendation, snap *models.FactorSnapshot, now time.Time) []string {
	risks := []string{}
	s := e.settings

	if rec.ProbabilityDelta != nil && *rec.ProbabilityDelta < -s.ProbabilityDropWarn {
		risks = append(risks, fmt.Sprintf("Probability dropped %.1f%%", math.Abs(*rec.ProbabilityDelta)))
	}
	if snap != nil && snap.NextEarnings != nil {
		if days := utils.DaysBetween(now, *snap.NextEarnings); days > 0 && days <= s.EarningsWarningDays {
			risks = append(risks, fmt.Sprintf("Earnings in %d days", days))
		}
	}
	if rec.DaysRemaining <= s.ExpiryWarningDays {
		risks = append(risks, fmt.Sprintf("Only %d days to expiration", rec.DaysRemaining))
	}
	if rec.TechnicalDelta != nil && *rec.TechnicalDelta < -s.TechnicalDropWarn {
		risks = append(risks, fmt.Sprintf("Technical score declined %.0f points", math.Abs(*rec.TechnicalDelta)))
	}
	return risks
}

// Decide runs the decision procedure in strict priority order; the first
// matching rule wins.
func (e *Engine) Decide(rec models.PositionRecommendation) (models.Action, int, string, []string) {
	s := e.settings
	pnl := rec.PnLPct
	days := rec.DaysRemaining
	prob := rec.CurrentProbability

	if rec.Moneyness == models.ITM && days < s.AssignmentRiskDays {
		return models.ActionCloseEarly, 5,
			fmt.Sprintf("Position ITM with only %d days left: assignment risk high", days),
			[]string{
				fmt.Sprintf("Spot %.2f vs strike %.2f", rec.CurrentSpot, rec.Position.Strike),
				fmt.Sprintf("Days remaining: %d", days),
			}
	}

	if pnl >= s.AggressiveTargetPct {
		return models.ActionCloseEarly, 4,
			fmt.Sprintf("Hit aggressive profit target (%.0f%% >= %.0f%%)", pnl, s.AggressiveTargetPct),
			[]string{
				fmt.Sprintf("Unrealized P&L: $%.2f", rec.UnrealizedPnL),
				fmt.Sprintf("Days remaining: %d", days),
			}
	}

	if pnl >= s.StandardTargetPct && days <= s.ForceCloseDTE {
		return models.ActionCloseEarly, 3,
			fmt.Sprintf("Hit standard target (%.0f%%) with %d days remaining", pnl, days),
			[]string{
				fmt.Sprintf("Force-close threshold: %d DTE", s.ForceCloseDTE),
				fmt.Sprintf("Unrealized P&L: $%.2f", rec.UnrealizedPnL),
			}
	}

	if prob < s.ProbabilityWarning {
		return models.ActionCloseEarly, 5,
			fmt.Sprintf("Probability OTM at %.0f%% (below %.0f%% floor)", prob, s.ProbabilityWarning),
			[]string{
				fmt.Sprintf("Probability OTM: %.1f%%", prob),
				fmt.Sprintf("Unrealized P&L: %.0f%%", pnl),
			}
	}

	if days <= s.ForceCloseDTE && pnl < s.StandardTargetPct {
		return models.ActionRoll, 3,
			fmt.Sprintf("Approaching %d DTE with only %.0f%% profit", s.ForceCloseDTE, pnl),
			[]string{
				fmt.Sprintf("Days remaining: %d", days),
				fmt.Sprintf("Standard target: %.0f%%", s.StandardTargetPct),
			}
	}

	probDelta, techDelta := deref(rec.ProbabilityDelta), deref(rec.TechnicalDelta)
	if math.Abs(probDelta) > s.Sensitivity || math.Abs(techDelta) > s.Sensitivity {
		return models.ActionAdjustTargets, 2,
			"Market conditions changed significantly",
			[]string{
				fmt.Sprintf("Probability changed %+.1f%%", probDelta),
				fmt.Sprintf("Technical score changed %+.0f points", techDelta),
			}
	}

	return models.ActionHold, 1, "Position healthy: continue monitoring",
		[]string{
			fmt.Sprintf("Health score: %.0f/100 (%s)", rec.HealthScore, rec.HealthStatus),
			fmt.Sprintf("Current P&L: %.0f%% (target: %.0f%%)", pnl, s.StandardTargetPct),
			fmt.Sprintf("Probability OTM: %.0f%%", prob),
			fmt.Sprintf("%d days remaining", days),
		}
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func (e *Engine) targets(rec models.PositionRecommendation) models.ProfitTargets {
	s := e.settings
	premium := rec.Position.EntryPremium

	t := models.ProfitTargets{
		Aggressive:   premium * (1 - s.AggressiveTargetPct/100),
		Standard:     premium * (1 - s.StandardTargetPct/100),
		Conservative: premium * (1 - s.ConservativeTargetPct/100),
		StopLoss:     premium * (1 + math.Abs(s.StopLossPct)/100),
	}
	switch {
	case rec.PnLPct >= s.AggressiveTargetPct:
		t.SuggestedClose = rec.CurrentOptionValue
	case rec.PnLPct >= s.StandardTargetPct:
		t.SuggestedClose = t.Standard
	}
	if wait := s.MinHoldDays - rec.DaysHeld; wait > 0 {
		t.CanCloseAfterDays = wait
	}
	return t
}
