package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/jwaldner/wheelhouse/internal/capital"
	"github.com/jwaldner/wheelhouse/internal/config"
	"github.com/jwaldner/wheelhouse/internal/dto"
	"github.com/jwaldner/wheelhouse/internal/journal"
	"github.com/jwaldner/wheelhouse/internal/logger"
	"github.com/jwaldner/wheelhouse/internal/models"
	"github.com/jwaldner/wheelhouse/internal/pipeline"
	"github.com/jwaldner/wheelhouse/internal/providers"
	"github.com/jwaldner/wheelhouse/internal/scanner"
	"github.com/jwaldner/wheelhouse/internal/services"
	"github.com/jwaldner/wheelhouse/internal/utils"
)

// Scanner is the part of *scanner.Scanner the API drives
type Scanner interface {
	ScanCSP(ctx context.Context, tickers []string, p pipeline.Params, opts scanner.Options) (scanner.Report, error)
	ScanWheel(ctx context.Context, tickers []string, p pipeline.WheelParams, opts scanner.Options) (scanner.Report, error)
	ScanCoveredCalls(ctx context.Context, tickers []string, p pipeline.CoveredCallParams, opts scanner.Options) (scanner.Report, error)
	ReviewPositions(ctx context.Context) ([]models.PositionRecommendation, error)
	Capital(ctx context.Context) (capital.Summary, capital.Decision, error)
	RefreshFactors(ctx context.Context, ticker string) (*models.FactorSnapshot, error)
	ForgetFactors(ticker string)
	CachedFactors() []string
}

// Recorder persists runs; *journal.Journal satisfies it
type Recorder interface {
	Save(ctx context.Context, run journal.Run) (string, error)
}

// ProviderStats reports on the market data source
type ProviderStats interface {
	GetProvider() providers.MarketProvider
	GetPerformanceStats() providers.PerformanceMetrics
}

// OptionsHandler serves the scan, review and capital API
type OptionsHandler struct {
	scanner   Scanner
	watchlist *services.WatchlistService
	settings  config.Settings
	journal   Recorder // nil disables recording
	stats     ProviderStats
	now       func() time.Time
}

func NewOptionsHandler(s Scanner, watchlist *services.WatchlistService, settings config.Settings, rec Recorder, stats ProviderStats) *OptionsHandler {
	return &OptionsHandler{
		scanner:   s,
		watchlist: watchlist,
		settings:  settings,
		journal:   rec,
		stats:     stats,
		now:       time.Now,
	}
}

// ScanHandler runs POST /api/scan/{strategy}
func (h *OptionsHandler) ScanHandler(w http.ResponseWriter, r *http.Request) {
	strategy, err := services.ParseStrategy(mux.Vars(r)["strategy"])
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	req, err := services.ParseScanRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp := dto.ScanResponse{Strategy: strategy}
	var tickers []string
	if strategy != models.StrategyCC || len(req.Tickers) > 0 || req.Preset != "" {
		sel, err := h.watchlist.Resolve(req.Tickers, req.Preset)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		tickers, resp.Source = sel.Tickers, sel.Source
	} else {
		resp.Source = "holdings"
	}

	start := time.Now()
	opts := scanner.Options{AvailableCash: req.AvailableCash, Refresh: req.Refresh}
	var report scanner.Report
	switch strategy {
	case models.StrategyCSP:
		p := h.settings.CSP
		req.Apply(&p)
		report, err = h.scanner.ScanCSP(r.Context(), tickers, p, opts)
	case models.StrategyWheel:
		p := h.settings.Wheel
		req.Apply(&p.Params)
		report, err = h.scanner.ScanWheel(r.Context(), tickers, p, opts)
	case models.StrategyCC:
		p := h.settings.CoveredCall
		req.Apply(&p.Params)
		report, err = h.scanner.ScanCoveredCalls(r.Context(), tickers, p, opts)
	}
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, pipeline.ErrInvalidTopN) || errors.Is(err, pipeline.ErrInvalidParams) {
			status = http.StatusBadRequest
		}
		logger.Error.Printf("❌ %s scan failed: %v", strategy, err)
		writeError(w, status, err)
		return
	}

	resp.Tickers = report.Tickers
	resp.Opportunities = report.Opportunities
	resp.Steps = report.Steps
	resp.Skipped = report.Skipped
	resp.Failed = report.Failed
	resp.Capacity = report.Capacity
	resp.GeneratedAt = report.GeneratedAt
	resp.DurationMS = time.Since(start).Milliseconds()
	if resp.Opportunities == nil {
		resp.Opportunities = []models.Opportunity{}
	}

	run := report.JournalRun()
	resp.JournalID = h.record(r.Context(), run)
	writeJSON(w, http.StatusOK, resp)
}

// ReviewHandler runs GET /api/positions/review
func (h *OptionsHandler) ReviewHandler(w http.ResponseWriter, r *http.Request) {
	recs, err := h.scanner.ReviewPositions(r.Context())
	if err != nil {
		logger.Error.Printf("❌ position review failed: %v", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	resp := dto.ReviewResponse{
		Recommendations: recs,
		ByAction:        map[models.Action]int{},
		GeneratedAt:     h.now(),
	}
	if resp.Recommendations == nil {
		resp.Recommendations = []models.PositionRecommendation{}
	}
	for _, rec := range recs {
		resp.ByAction[rec.Action]++
	}
	if len(recs) > 0 {
		h.record(r.Context(), scanner.ReviewRun(recs, resp.GeneratedAt))
	}
	writeJSON(w, http.StatusOK, resp)
}

// CapitalHandler runs GET /api/capital
func (h *OptionsHandler) CapitalHandler(w http.ResponseWriter, r *http.Request) {
	summary, decision, err := h.scanner.Capital(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"summary":  summary,
		"capacity": decision,
	})
}

// FactorsHandler runs GET /api/factors
func (h *OptionsHandler) FactorsHandler(w http.ResponseWriter, r *http.Request) {
	tickers := h.scanner.CachedFactors()
	if tickers == nil {
		tickers = []string{}
	}
	writeJSON(w, http.StatusOK, dto.FactorsResponse{Tickers: tickers})
}

// RefreshFactorsHandler runs POST /api/factors/{ticker}/refresh
func (h *OptionsHandler) RefreshFactorsHandler(w http.ResponseWriter, r *http.Request) {
	ticker := strings.ToUpper(strings.TrimSpace(mux.Vars(r)["ticker"]))
	snap, err := h.scanner.RefreshFactors(r.Context(), ticker)
	switch {
	case errors.Is(err, scanner.ErrNoFactorSource):
		writeError(w, http.StatusNotImplemented, err)
		return
	case err != nil:
		logger.Warn.Printf("⚠️  %s: factor refresh failed: %v", ticker, err)
		writeError(w, http.StatusBadGateway, err)
		return
	}
	logger.Info.Printf("🔄 %s: factor snapshot refreshed", ticker)
	writeJSON(w, http.StatusOK, dto.RefreshResponse{Ticker: ticker, Found: snap != nil, Snapshot: snap})
}

// ForgetFactorsHandler runs DELETE /api/factors/{ticker}
func (h *OptionsHandler) ForgetFactorsHandler(w http.ResponseWriter, r *http.Request) {
	h.scanner.ForgetFactors(strings.ToUpper(strings.TrimSpace(mux.Vars(r)["ticker"])))
	w.WriteHeader(http.StatusNoContent)
}

// MarketHandler runs GET /api/market
func (h *OptionsHandler) MarketHandler(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	status, message := utils.GetMarketStatus(now)
	writeJSON(w, http.StatusOK, dto.MarketResponse{
		Status:  string(status),
		Message: message,
		IsOpen:  utils.IsMarketOpen(now),
		Time:    now,
	})
}

// HealthHandler runs GET /api/health
func (h *OptionsHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	resp := dto.HealthResponse{Status: "ok"}
	if h.stats != nil {
		stats := h.stats.GetPerformanceStats()
		resp.Provider = h.stats.GetProvider().GetProviderName()
		resp.Requests = stats.RequestCount
		resp.Failures = stats.Failures
	}
	writeJSON(w, http.StatusOK, resp)
}

// record journals a run and returns its id, or "" when journaling is off or failed
func (h *OptionsHandler) record(ctx context.Context, run journal.Run) string {
	if h.journal == nil {
		return ""
	}
	run.ID = uuid.NewString()
	path, err := h.journal.Save(ctx, run)
	if err != nil {
		logger.Warn.Printf("⚠️  journal save failed: %v", err)
		return ""
	}
	logger.Debug.Printf("📝 journaled %s run to %s", run.Strategy, path)
	return run.ID
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error.Printf("❌ JSON encoding failed: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, dto.ErrorResponse{Error: err.Error()})
}
