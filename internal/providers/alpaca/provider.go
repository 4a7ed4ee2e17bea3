package alpaca

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jwaldner/wheelhouse/internal/models"
	"github.com/jwaldner/wheelhouse/internal/providers"
)

const (
	defaultDataURL    = "https://data.alpaca.markets"
	defaultTradingURL = "https://api.alpaca.markets"

	// HTTP timeout
	defaultTimeout = 30 * time.Second

	// daily bars requested for moving averages and the 52-week range
	historyDays = 400
)

// AlpacaProvider implements the MarketProvider interface for Alpaca Markets.
// Pacing is left to providers.ProviderManager.
type AlpacaProvider struct {
	apiKey     string
	secretKey  string
	dataURL    string
	tradingURL string
	httpClient *http.Client
	now        func() time.Time
}

// NewAlpacaProvider creates a new Alpaca market data provider. Empty URLs use
// the production endpoints.
func NewAlpacaProvider(apiKey, secretKey, dataURL, tradingURL string) *AlpacaProvider {
	if dataURL == "" {
		dataURL = defaultDataURL
	}
	if tradingURL == "" {
		tradingURL = defaultTradingURL
	}
	return &AlpacaProvider{
		apiKey:     apiKey,
		secretKey:  secretKey,
		dataURL:    strings.TrimRight(dataURL, "/"),
		tradingURL: strings.TrimRight(tradingURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		now:        time.Now,
	}
}

// GetProviderName returns the provider name
func (a *AlpacaProvider) GetProviderName() string {
	return "alpaca"
}

// Close cleans up resources
func (a *AlpacaProvider) Close() error {
	// Nothing to clean up for HTTP client
	return nil
}

// getJSON issues an authenticated GET and decodes the body into out
func (a *AlpacaProvider) getJSON(ctx context.Context, base, endpoint string, query url.Values, out interface{}) error {
	u := base + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("APCA-API-KEY-ID", a.apiKey)
	req.Header.Set("APCA-API-SECRET-KEY", a.secretKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("network request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", endpoint, providers.ErrNotFound)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("rate limited by API")
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("API error: %d - %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parsing %s response: %w", endpoint, err)
	}
	return nil
}

// Alpaca API response structures
type alpacaBar struct {
	Close     float64   `json:"c"`
	High      float64   `json:"h"`
	Low       float64   `json:"l"`
	Open      float64   `json:"o"`
	Timestamp time.Time `json:"t"`
	Volume    int64     `json:"v"`
}

type alpacaLatestBar struct {
	Bar    *alpacaBar `json:"bar"`
	Symbol string     `json:"symbol"`
}

type alpacaBars struct {
	Bars          []alpacaBar `json:"bars"`
	NextPageToken *string     `json:"next_page_token"`
}

type alpacaContract struct {
	Symbol         string `json:"symbol"`
	ExpirationDate string `json:"expiration_date"`
	Type           string `json:"type"`
	StrikePrice    string `json:"strike_price"`
	OpenInterest   string `json:"open_interest"`
}

type alpacaContracts struct {
	Contracts     []alpacaContract `json:"option_contracts"`
	NextPageToken *string          `json:"next_page_token"`
}

type alpacaSnapshot struct {
	LatestQuote *struct {
		Bid float64 `json:"bp"`
		Ask float64 `json:"ap"`
	} `json:"latestQuote"`
	LatestTrade *struct {
		Price float64 `json:"p"`
	} `json:"latestTrade"`
	DailyBar *struct {
		Volume int64 `json:"v"`
	} `json:"dailyBar"`
	ImpliedVolatility float64 `json:"impliedVolatility"`
	Greeks            *struct {
		Delta float64 `json:"delta"`
	} `json:"greeks"`
}

type alpacaSnapshots struct {
	Snapshots     map[string]alpacaSnapshot `json:"snapshots"`
	NextPageToken *string                   `json:"next_page_token"`
}

// FetchSpotPrice returns the close of the latest minute bar
func (a *AlpacaProvider) FetchSpotPrice(ctx context.Context, ticker string) (float64, error) {
	var resp alpacaLatestBar
	if err := a.getJSON(ctx, a.dataURL, "/v2/stocks/"+url.PathEscape(ticker)+"/bars/latest", nil, &resp); err != nil {
		return 0, err
	}
	if resp.Bar == nil || resp.Bar.Close <= 0 {
		return 0, fmt.Errorf("%s latest bar: %w", ticker, providers.ErrNotFound)
	}
	return resp.Bar.Close, nil
}

// contracts pages through the contracts endpoint
func (a *AlpacaProvider) contracts(ctx context.Context, query url.Values) ([]alpacaContract, error) {
	var out []alpacaContract
	query.Set("limit", "1000")
	for {
		var page alpacaContracts
		if err := a.getJSON(ctx, a.tradingURL, "/v2/options/contracts", query, &page); err != nil {
			return nil, err
		}
		out = append(out, page.Contracts...)
		if page.NextPageToken == nil || *page.NextPageToken == "" {
			return out, nil
		}
		query.Set("page_token", *page.NextPageToken)
	}
}

func (a *AlpacaProvider) ListExpirations(ctx context.Context, ticker string) ([]time.Time, error) {
	contracts, err := a.contracts(ctx, url.Values{
		"underlying_symbols":  {ticker},
		"expiration_date_gte": {a.now().Format("2006-01-02")},
	})
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	var out []time.Time
	for _, c := range contracts {
		if seen[c.ExpirationDate] {
			continue
		}
		exp, err := time.Parse("2006-01-02", c.ExpirationDate)
		if err != nil {
			continue
		}
		seen[c.ExpirationDate] = true
		out = append(out, exp)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s expirations: %w", ticker, providers.ErrNotFound)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

// FetchChain merges option snapshots (quotes, IV, delta) with contract open
// interest and stamps every row with the current spot.
func (a *AlpacaProvider) FetchChain(ctx context.Context, ticker string, expiration time.Time) ([]models.OptionQuote, error) {
	spot, err := a.FetchSpotPrice(ctx, ticker)
	if err != nil {
		return nil, err
	}

	exp := expiration.Format("2006-01-02")
	contracts, err := a.contracts(ctx, url.Values{
		"underlying_symbols": {ticker},
		"expiration_date":    {exp},
	})
	if err != nil {
		return nil, err
	}
	openInterest := make(map[string]int64, len(contracts))
	for _, c := range contracts {
		if oi, err := strconv.ParseInt(c.OpenInterest, 10, 64); err == nil {
			openInterest[c.Symbol] = oi
		}
	}

	query := url.Values{"expiration_date": {exp}, "limit": {"1000"}}
	fetched := a.now()
	var out []models.OptionQuote
	for {
		var page alpacaSnapshots
		if err := a.getJSON(ctx, a.dataURL, "/v1beta1/options/snapshots/"+url.PathEscape(ticker), query, &page); err != nil {
			return nil, err
		}
		for symbol, snap := range page.Snapshots {
			optType, strike, err := ParseOCCSymbol(symbol)
			if err != nil {
				continue
			}
			q := models.OptionQuote{
				Ticker:            ticker,
				Type:              optType,
				Strike:            strike,
				Expiration:        expiration,
				ImpliedVolatility: snap.ImpliedVolatility,
				OpenInterest:      openInterest[symbol],
				SpotPrice:         spot,
				FetchedAt:         fetched,
			}
			if snap.LatestQuote != nil {
				q.Bid, q.Ask = snap.LatestQuote.Bid, snap.LatestQuote.Ask
			}
			if snap.LatestTrade != nil {
				q.LastPrice = snap.LatestTrade.Price
			}
			if snap.DailyBar != nil {
				q.Volume = snap.DailyBar.Volume
			}
			if snap.Greeks != nil {
				q.Delta = models.Float(snap.Greeks.Delta)
			}
			out = append(out, q)
		}
		if page.NextPageToken == nil || *page.NextPageToken == "" {
			break
		}
		query.Set("page_token", *page.NextPageToken)
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("%s %s: %w", ticker, exp, providers.ErrNotFound)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type > out[j].Type // puts first
		}
		return out[i].Strike < out[j].Strike
	})
	return out, nil
}

// FetchFactorSnapshot derives the technical half of a snapshot from daily
// bars. Alpaca carries no fundamentals, so those fields stay nil.
func (a *AlpacaProvider) FetchFactorSnapshot(ctx context.Context, ticker string) (*models.FactorSnapshot, error) {
	now := a.now()
	query := url.Values{
		"timeframe":  {"1Day"},
		"start":      {now.AddDate(0, 0, -historyDays).Format("2006-01-02")},
		"adjustment": {"split"},
		"limit":      {"10000"},
	}
	var resp alpacaBars
	if err := a.getJSON(ctx, a.dataURL, "/v2/stocks/"+url.PathEscape(ticker)+"/bars", query, &resp); err != nil {
		return nil, err
	}
	if len(resp.Bars) == 0 {
		return nil, fmt.Errorf("%s daily bars: %w", ticker, providers.ErrNotFound)
	}
	return snapshotFromBars(ticker, resp.Bars), nil
}

// snapshotFromBars computes moving averages, the 52-week range and volume
// statistics from daily bars ordered oldest first.
func snapshotFromBars(ticker string, bars []alpacaBar) *models.FactorSnapshot {
	last := bars[len(bars)-1]
	snap := &models.FactorSnapshot{
		Ticker: ticker,
		Price:  last.Close,
		Volume: models.Float(float64(last.Volume)),
	}
	if len(bars) > 1 {
		snap.PreviousClose = models.Float(bars[len(bars)-2].Close)
	}

	sma := func(n int) *float64 {
		if len(bars) < n {
			return nil
		}
		var sum float64
		for _, b := range bars[len(bars)-n:] {
			sum += b.Close
		}
		return models.Float(sum / float64(n))
	}
	snap.SMA20, snap.SMA50, snap.SMA200 = sma(20), sma(50), sma(200)

	year := bars
	if len(year) > 252 {
		year = year[len(year)-252:]
	}
	lo, hi := year[0].Low, year[0].High
	for _, b := range year {
		if b.Low < lo {
			lo = b.Low
		}
		if b.High > hi {
			hi = b.High
		}
	}
	snap.Low52, snap.High52 = models.Float(lo), models.Float(hi)

	window := bars
	if len(window) > 20 {
		window = window[len(window)-20:]
	}
	var vol float64
	for _, b := range window {
		vol += float64(b.Volume)
	}
	snap.AvgVolume = models.Float(vol / float64(len(window)))
	return snap
}

// ParseOCCSymbol decodes an OCC option symbol such as AAPL260116P00250000
// into its type and strike.
func ParseOCCSymbol(symbol string) (models.OptionType, float64, error) {
	if len(symbol) < 16 {
		return "", 0, fmt.Errorf("occ symbol %q too short", symbol)
	}
	tail := symbol[len(symbol)-15:]
	var t models.OptionType
	switch tail[6] {
	case 'P':
		t = models.Put
	case 'C':
		t = models.Call
	default:
		return "", 0, fmt.Errorf("occ symbol %q: bad type %q", symbol, tail[6])
	}
	milli, err := strconv.ParseInt(tail[7:], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("occ symbol %q: %w", symbol, err)
	}
	return t, float64(milli) / 1000, nil
}
