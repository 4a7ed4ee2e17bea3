package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/jwaldner/wheelhouse/internal/dto"
	"github.com/jwaldner/wheelhouse/internal/models"
)

// ErrBadRequest wraps every request parsing failure
var ErrBadRequest = errors.New("bad request")

// maxBody bounds a scan request body
const maxBody = 1 << 20

// ParseStrategy maps a path segment to a scan strategy
func ParseStrategy(s string) (models.Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csp", "puts", "put":
		return models.StrategyCSP, nil
	case "cc", "calls", "call", "covered_call":
		return models.StrategyCC, nil
	case "wheel":
		return models.StrategyWheel, nil
	}
	return "", fmt.Errorf("%w: unknown strategy %q", ErrBadRequest, s)
}

// ParseScanRequest decodes an optional JSON body. An empty body is a request
// with no overrides.
func ParseScanRequest(r *http.Request) (*dto.ScanRequest, error) {
	if r.Method != http.MethodPost {
		return nil, fmt.Errorf("%w: method not allowed: %s", ErrBadRequest, r.Method)
	}

	var req dto.ScanRequest
	if r.Body != nil {
		dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
		if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: failed to decode request: %v", ErrBadRequest, err)
		}
	}

	if q := r.URL.Query().Get("tickers"); q != "" && len(req.Tickers) == 0 {
		req.Tickers = strings.Split(q, ",")
	}
	if q := r.URL.Query().Get("preset"); q != "" && req.Preset == "" {
		req.Preset = q
	}
	if q := r.URL.Query().Get("refresh"); q != "" && !req.Refresh {
		refresh, err := strconv.ParseBool(q)
		if err != nil {
			return nil, fmt.Errorf("%w: refresh must be a boolean", ErrBadRequest)
		}
		req.Refresh = refresh
	}

	switch {
	case req.TopN != nil && *req.TopN < 0:
		return nil, fmt.Errorf("%w: top_n must not be negative", ErrBadRequest)
	case req.AvailableCash != nil && *req.AvailableCash < 0:
		return nil, fmt.Errorf("%w: available_cash must not be negative", ErrBadRequest)
	case req.MinProbability != nil && (*req.MinProbability < 0 || *req.MinProbability > 100):
		return nil, fmt.Errorf("%w: min_prob_otm must be within 0-100", ErrBadRequest)
	}

	req.Tickers = CleanTickers(req.Tickers)
	return &req, nil
}
