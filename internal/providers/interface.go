package providers

import (
	"context"
	"errors"
	"time"

	"github.com/jwaldner/wheelhouse/internal/models"
)

// ErrNotFound reports that the source has no data for the request. The
// manager treats it as absence rather than failure.
var ErrNotFound = errors.New("market data not found")

// PerformanceMetrics tracks timing for provider operations
type PerformanceMetrics struct {
	RequestDuration time.Duration `json:"request_duration"`
	QueueTime       time.Duration `json:"queue_time"` // time waiting for the rate limiter
	RequestCount    int64         `json:"request_count"`
	Failures        int64         `json:"failures"`
	NotFound        int64         `json:"not_found"`
	SlowRequests    int64         `json:"slow_requests"`
}

// MarketProvider defines the interface for market data providers
type MarketProvider interface {
	// ListExpirations returns the option expirations listed for ticker
	ListExpirations(ctx context.Context, ticker string) ([]time.Time, error)

	// FetchChain returns every put and call quote for one expiration
	FetchChain(ctx context.Context, ticker string, expiration time.Time) ([]models.OptionQuote, error)

	// FetchSpotPrice returns the latest underlying price
	FetchSpotPrice(ctx context.Context, ticker string) (float64, error)

	// FetchFactorSnapshot returns technical and fundamental data for ticker
	FetchFactorSnapshot(ctx context.Context, ticker string) (*models.FactorSnapshot, error)

	// GetProviderName returns the name of the provider (e.g., "fixture", "clickhouse")
	GetProviderName() string

	// Close cleans up any resources (connections, files, etc.)
	Close() error
}
