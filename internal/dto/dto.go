package dto

import (
	"time"

	"github.com/jwaldner/wheelhouse/internal/capital"
	"github.com/jwaldner/wheelhouse/internal/models"
	"github.com/jwaldner/wheelhouse/internal/pipeline"
)

// ScanRequest is the body of POST /api/scan/{strategy}. Every field is
// optional; zero values fall back to the configured settings.
type ScanRequest struct {
	Tickers         []string `json:"tickers"`
	Preset          string   `json:"preset"`
	TopN            *int     `json:"top_n"`
	MinAnnualReturn *float64 `json:"min_annual_return"`
	MinDays         *int     `json:"min_days"`
	MaxDays         *int     `json:"max_days"`
	MinProbability  *float64 `json:"min_prob_otm"`
	AvailableCash   *float64 `json:"available_cash"`
	Refresh         bool     `json:"refresh"` // refetch factor snapshots before scoring
}

// Apply overlays the request's overrides on p
func (r *ScanRequest) Apply(p *pipeline.Params) {
	if r.TopN != nil {
		p.TopN = *r.TopN
	}
	if r.MinAnnualReturn != nil {
		p.MinAnnualReturn = *r.MinAnnualReturn
	}
	if r.MinDays != nil {
		p.MinDays = *r.MinDays
	}
	if r.MaxDays != nil {
		p.MaxDays = *r.MaxDays
	}
	if r.MinProbability != nil {
		v := *r.MinProbability
		p.MinProbabilityOTM = &v
	}
}

// ScanResponse wraps a completed scan
type ScanResponse struct {
	Strategy      models.Strategy       `json:"strategy"`
	Source        string                `json:"ticker_source"`
	Tickers       []string              `json:"tickers"`
	Opportunities []models.Opportunity  `json:"opportunities"`
	Steps         []pipeline.StepReport `json:"steps"`
	Skipped       map[string]int        `json:"skipped,omitempty"`
	Failed        []string              `json:"failed_tickers,omitempty"`
	Capacity      *capital.Decision     `json:"capacity,omitempty"`
	JournalID     string                `json:"journal_id,omitempty"`
	GeneratedAt   time.Time             `json:"generated_at"`
	DurationMS    int64                 `json:"duration_ms"`
}

// ReviewResponse lists the recommendations for every open position
type ReviewResponse struct {
	Recommendations []models.PositionRecommendation `json:"recommendations"`
	ByAction        map[models.Action]int           `json:"by_action"`
	GeneratedAt     time.Time                       `json:"generated_at"`
}

// MarketResponse is the market clock
type MarketResponse struct {
	Status  string    `json:"status"`
	Message string    `json:"message"`
	IsOpen  bool      `json:"is_open"`
	Time    time.Time `json:"time"`
}

// HealthResponse reports service liveness and provider stats
type HealthResponse struct {
	Status   string `json:"status"`
	Provider string `json:"provider"`
	Requests int64  `json:"provider_requests"`
	Failures int64  `json:"provider_failures"`
}

// FactorsResponse lists the tickers whose factor snapshots are cached
type FactorsResponse struct {
	Tickers []string `json:"tickers"`
}

// RefreshResponse is the outcome of POST /api/factors/{ticker}/refresh
type RefreshResponse struct {
	Ticker   string                 `json:"ticker"`
	Found    bool                   `json:"found"`
	Snapshot *models.FactorSnapshot `json:"snapshot,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
