package models

import "time"

// PositionStatus is open or closed
type PositionStatus string

const (
	StatusOpen   PositionStatus = "open"
	StatusClosed PositionStatus = "closed"
)

// Action is the recommended next step for a held position
type Action string

const (
	ActionHold          Action = "HOLD"
	ActionCloseEarly    Action = "CLOSE_EARLY"
	ActionRoll          Action = "ROLL"
	ActionAdjustTargets Action = "ADJUST_TARGETS"
)

// HealthStatus buckets a 0-100 health score
type HealthStatus string

const (
	Healthy  HealthStatus = "healthy"
	Warning  HealthStatus = "warning"
	Critical HealthStatus = "critical"
)

// RollType describes how a roll moves strike and expiration
type RollType string

const (
	RollSame       RollType = "same"
	RollOut        RollType = "out"
	RollUp         RollType = "up"
	RollDown       RollType = "down"
	RollOutAndUp   RollType = "out_and_up"
	RollOutAndDown RollType = "out_and_down"
)

// HeldPosition is a short option position owned by the portfolio store
type HeldPosition struct {
	ID           string         `json:"id" yaml:"id"`
	Ticker       string         `json:"ticker" yaml:"ticker"`
	Type         OptionType     `json:"option_type" yaml:"option_type"`
	Strike       float64        `json:"strike" yaml:"strike"`
	Expiration   time.Time      `json:"expiration" yaml:"expiration"`
	Contracts    int            `json:"contracts" yaml:"contracts"`
	EntryPremium float64        `json:"entry_premium" yaml:"entry_premium"`
	EntryDate    time.Time      `json:"entry_date" yaml:"entry_date"`
	Strategy     Strategy       `json:"strategy" yaml:"strategy"`
	Status       PositionStatus `json:"status" yaml:"status"`

	// Values recorded at entry, used for drift detection
	EntryProbability *float64 `json:"entry_prob_otm,omitempty" yaml:"entry_prob_otm,omitempty"`
	EntryTechnical   *float64 `json:"entry_technical_score,omitempty" yaml:"entry_technical_score,omitempty"`
	EntryComposite   *float64 `json:"entry_composite_score,omitempty" yaml:"entry_composite_score,omitempty"`

	ClosedDate   *time.Time `json:"close_date,omitempty" yaml:"close_date,omitempty"`
	ClosePremium *float64   `json:"close_premium,omitempty" yaml:"close_premium,omitempty"`
	RealizedPnL  *float64   `json:"realized_pnl,omitempty" yaml:"realized_pnl,omitempty"`
	Outcome      Outcome    `json:"outcome,omitempty" yaml:"outcome,omitempty"`
	Notes        string     `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// Outcome records how a closed option ended
type Outcome string

const (
	OutcomeExpired    Outcome = "expired"
	OutcomeAssigned   Outcome = "assigned"
	OutcomeBoughtBack Outcome = "bought_back"
)

// StockPosition is a share lot that can back covered calls
type StockPosition struct {
	Ticker    string    `json:"ticker" yaml:"ticker"`
	Shares    int       `json:"shares" yaml:"shares"`
	CostBasis float64   `json:"cost_basis" yaml:"cost_basis"` // per share
	Acquired  time.Time `json:"acquired" yaml:"acquired"`
	Notes     string    `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// ProfitTargets are buy-back prices for closing a short option
type ProfitTargets struct {
	Aggressive        float64 `json:"aggressive_target_price"`
	Standard          float64 `json:"standard_target_price"`
	Conservative      float64 `json:"conservative_target_price"`
	StopLoss          float64 `json:"stop_loss_price"`
	SuggestedClose    float64 `json:"suggested_close_price"`
	CanCloseAfterDays int     `json:"can_close_after_days"`
}

// PositionRecommendation is the one-shot output of the health engine
type PositionRecommendation struct {
	Position HeldPosition `json:"position"`

	CurrentSpot        float64 `json:"current_spot"`
	CurrentOptionValue float64 `json:"current_option_value"`
	DaysRemaining      int     `json:"days_remaining"`
	DaysHeld           int     `json:"days_held"`
	UnrealizedPnL      float64 `json:"unrealized_pnl"`
	PnLPct             float64 `json:"pnl_pct"`

	CurrentProbability float64    `json:"current_prob_otm"`
	ProbabilityDelta   *float64   `json:"prob_change,omitempty"`
	TechnicalScore     float64    `json:"technical_score"`
	CompositeScore     float64    `json:"composite_score"`
	TechnicalDelta     *float64   `json:"technical_change,omitempty"`
	CompositeDelta     *float64   `json:"composite_change,omitempty"`
	Confidence         Confidence `json:"confidence"`

	HealthScore  float64      `json:"health_score"`
	HealthStatus HealthStatus `json:"health_status"`
	Moneyness    Moneyness    `json:"moneyness"`

	Action            Action   `json:"action"`
	Urgency           int      `json:"urgency"`
	PrimaryReason     string   `json:"primary_reason"`
	SupportingReasons []string `json:"supporting_reasons"`
	RiskFactors       []string `json:"risk_factors"`

	Targets ProfitTargets  `json:"profit_targets"`
	Roll    *RollCandidate `json:"roll,omitempty"`
}

// RollCandidate is one scored (strike, expiration) replacement for a held position
type RollCandidate struct {
	CurrentStrike     float64   `json:"current_strike"`
	CurrentExpiration time.Time `json:"current_expiration"`
	CloseCost         float64   `json:"close_cost"`

	NewStrike     float64   `json:"new_strike"`
	NewExpiration time.Time `json:"new_expiration"`
	NewPremium    float64   `json:"new_premium"`
	NewDays       int       `json:"new_days"`

	NetCredit        float64  `json:"net_credit"`
	RollType         RollType `json:"roll_type"`
	AnnualizedReturn float64  `json:"new_annual_return"`
	ProbabilityOTM   float64  `json:"new_prob_otm"`
	Score            float64  `json:"improvement_score"`
	Reasoning        string   `json:"reasoning"`
}
