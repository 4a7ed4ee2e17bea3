package models

import "time"

// Confidence grades how complete a factor snapshot was
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// FactorSnapshot is the per-ticker technical and fundamental bundle.
// Optional fields are pointers; a nil pointer means the data source had nothing.
type FactorSnapshot struct {
	Ticker        string   `json:"ticker" yaml:"ticker"`
	Price         float64  `json:"current_price" yaml:"current_price"`
	PreviousClose *float64 `json:"previous_close,omitempty" yaml:"previous_close,omitempty"`

	SMA20  *float64 `json:"sma_20,omitempty" yaml:"sma_20,omitempty"`
	SMA50  *float64 `json:"sma_50,omitempty" yaml:"sma_50,omitempty"`
	SMA200 *float64 `json:"sma_200,omitempty" yaml:"sma_200,omitempty"`

	Low52  *float64 `json:"low_52w,omitempty" yaml:"low_52w,omitempty"`
	High52 *float64 `json:"high_52w,omitempty" yaml:"high_52w,omitempty"`

	Volume    *float64 `json:"volume,omitempty" yaml:"volume,omitempty"`
	AvgVolume *float64 `json:"avg_volume,omitempty" yaml:"avg_volume,omitempty"`
	Beta      *float64 `json:"beta,omitempty" yaml:"beta,omitempty"`

	TrailingPE     *float64 `json:"trailing_pe,omitempty" yaml:"trailing_pe,omitempty"`
	ForwardPE      *float64 `json:"forward_pe,omitempty" yaml:"forward_pe,omitempty"`
	ProfitMargin   *float64 `json:"profit_margins,omitempty" yaml:"profit_margins,omitempty"` // decimal
	ROE            *float64 `json:"roe,omitempty" yaml:"roe,omitempty"`                       // decimal
	RevenueGrowth  *float64 `json:"revenue_growth,omitempty" yaml:"revenue_growth,omitempty"` // decimal
	EarningsGrowth *float64 `json:"earnings_growth,omitempty" yaml:"earnings_growth,omitempty"`
	DebtToEquity   *float64 `json:"debt_to_equity,omitempty" yaml:"debt_to_equity,omitempty"`

	RecommendationMean *float64 `json:"recommendation_mean,omitempty" yaml:"recommendation_mean,omitempty"` // 1 strong buy .. 5 strong sell
	TargetMeanPrice    *float64 `json:"target_mean_price,omitempty" yaml:"target_mean_price,omitempty"`
	NumAnalysts        *float64 `json:"num_analysts,omitempty" yaml:"num_analysts,omitempty"`

	NextEarnings *time.Time `json:"next_earnings,omitempty" yaml:"next_earnings,omitempty"`
}

// FactorScores is the output of the factor scorer for one contract
type FactorScores struct {
	Technical           float64    `json:"technical_score"`
	Fundamental         float64    `json:"fundamental_score"`
	Sentiment           float64    `json:"sentiment_score"`
	EventRisk           float64    `json:"event_risk_score"`
	Composite           float64    `json:"composite_score"`
	Adjustment          float64    `json:"adjustment"`
	BaseProbability     float64    `json:"black_scholes_prob_otm"`
	EnhancedProbability float64    `json:"enhanced_prob_otm"`
	Confidence          Confidence `json:"confidence"`
}

// Float returns a pointer to v, for building snapshots in code and tests
func Float(v float64) *float64 {
	return &v
}
