package models

import "time"

// OptionType is either a put or a call
type OptionType string

const (
	Put  OptionType = "put"
	Call OptionType = "call"
)

// Moneyness classifies a strike relative to spot
type Moneyness string

const (
	ITM Moneyness = "ITM"
	ATM Moneyness = "ATM"
	OTM Moneyness = "OTM"
)

// Strategy tags an opportunity or a held position
type Strategy string

const (
	StrategyCSP   Strategy = "csp"
	StrategyCC    Strategy = "cc"
	StrategyWheel Strategy = "wheel"
)

// PriceSource records which quote field produced the effective premium
type PriceSource string

const (
	SourceBid     PriceSource = "bid"
	SourceLast    PriceSource = "last"
	SourceHalfAsk PriceSource = "ask/2"
)

// OptionQuote is an immutable market snapshot of a single contract
type OptionQuote struct {
	Ticker            string     `json:"ticker" yaml:"ticker"`
	Type              OptionType `json:"option_type" yaml:"option_type"`
	Strike            float64    `json:"strike" yaml:"strike"`
	Expiration        time.Time  `json:"expiration" yaml:"expiration"`
	Bid               float64    `json:"bid" yaml:"bid"`
	Ask               float64    `json:"ask" yaml:"ask"`
	LastPrice         float64    `json:"last_price" yaml:"last_price"`
	Volume            int64      `json:"volume" yaml:"volume"`
	OpenInterest      int64      `json:"open_interest" yaml:"open_interest"`
	ImpliedVolatility float64    `json:"implied_volatility" yaml:"implied_volatility"` // decimal, 0.30 = 30%
	Delta             *float64   `json:"delta,omitempty" yaml:"delta,omitempty"`       // signed; puts are negative
	SpotPrice         float64    `json:"underlying_price" yaml:"underlying_price"`
	FetchedAt         time.Time  `json:"fetch_timestamp" yaml:"fetch_timestamp"`
}

// EnrichedQuote is an OptionQuote plus per-contract analytics
type EnrichedQuote struct {
	OptionQuote
	DaysToExpiration int       `json:"days_to_expiration"`
	BidAskSpread     float64   `json:"bid_ask_spread"`
	SpreadPct        float64   `json:"bid_ask_spread_pct"` // spread as % of last trade
	MoneynessRatio   float64   `json:"moneyness"`          // strike / spot
	DistancePct      float64   `json:"distance_pct"`       // (strike - spot) / spot * 100
	Moneyness        Moneyness `json:"moneyness_class"`
	MidPrice         float64   `json:"mid_price"`
	ProbabilityOTM   float64   `json:"prob_otm"`
	LowConfidence    bool      `json:"low_confidence,omitempty"`

	// Filled by the factor scorer when a snapshot is available
	Scores *FactorScores `json:"scores,omitempty"`
}

// Opportunity is an enriched quote that survived a strategy pipeline
type Opportunity struct {
	EnrichedQuote
	Strategy         Strategy    `json:"strategy"`
	Premium          float64     `json:"premium"`
	PriceSource      PriceSource `json:"price_source"`
	CapitalRequired  float64     `json:"capital_required"`
	AnnualizedReturn float64     `json:"annualized_return"`
	MonthlyReturn    float64     `json:"monthly_return"`

	// Cash-secured put fields
	NetEntryPrice    float64 `json:"net_entry_price,omitempty"`
	DiscountFromSpot float64 `json:"discount_from_spot,omitempty"`
	IncomeReturn     float64 `json:"income_return,omitempty"`
	CushionPct       float64 `json:"cushion_pct,omitempty"`

	// Covered call fields
	MaxProfit          float64 `json:"max_profit,omitempty"`
	MaxProfitPct       float64 `json:"max_profit_pct,omitempty"`
	DownsideProtection float64 `json:"downside_protection,omitempty"`
	Breakeven          float64 `json:"breakeven,omitempty"`

	// Sizing, set only when a cash budget was supplied
	MaxContracts int     `json:"max_contracts,omitempty"`
	TotalCapital float64 `json:"total_capital,omitempty"`
	TotalPremium float64 `json:"total_premium,omitempty"`

	Score float64 `json:"score"`
}

// ProbabilityKnown reports whether the opportunity carries a usable probability
func (o Opportunity) ProbabilityKnown() bool {
	return o.ProbabilityOTM > 0
}
