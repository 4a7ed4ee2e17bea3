package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jwaldner/wheelhouse/internal/config"
)

// ErrUnknownPreset is returned for a preset name with no ticker list
var ErrUnknownPreset = errors.New("unknown watchlist preset")

// DefaultPreset is used when nothing else names tickers
const DefaultPreset = "default"

var presets = map[string][]string{
	"default": {
		"SPY", "QQQ", "AAPL", "MSFT", "GOOGL", "AMZN", "META", "TSLA", "NVDA", "AMD",
		"INTC", "AVGO", "MU", "QCOM", "CRM", "ORCL", "CRWD", "CSCO", "ANET", "JPM",
		"BAC", "GS", "MS", "C", "HD", "NKE", "PFE", "BA", "CAT", "SCCO",
	},
	"tech":     {"AAPL", "MSFT", "GOOGL", "AMZN", "META", "NVDA", "AMD", "TSLA"},
	"dividend": {"JNJ", "PG", "KO", "PEP", "MCD", "WMT", "VZ", "T"},
	"etf":      {"SPY", "QQQ", "IWM", "DIA", "VOO", "VTI", "EEM", "GLD"},
	"high_iv":  {"TSLA", "AMD", "NVDA", "GME", "AMC", "PLTR"},
	"mega_cap": {"AAPL", "MSFT", "GOOGL", "AMZN", "META", "NVDA", "BRK.B"},
}

// Presets lists the known preset names in order
func Presets() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Preset returns a copy of a preset's tickers
func Preset(name string) ([]string, error) {
	tickers, ok := presets[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
	}
	return append([]string(nil), tickers...), nil
}

// CleanTickers upper-cases, trims and de-duplicates, keeping first-seen order
func CleanTickers(tickers []string) []string {
	seen := make(map[string]bool, len(tickers))
	var out []string
	for _, t := range tickers {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// Selection is a resolved ticker list and where it came from
type Selection struct {
	Tickers []string `json:"tickers"`
	Source  string   `json:"source"`
}

// WatchlistService picks the tickers a scan runs over
type WatchlistService struct {
	config config.WatchlistConfig
}

// NewWatchlistService creates a new watchlist service
func NewWatchlistService(cfg config.WatchlistConfig) *WatchlistService {
	return &WatchlistService{config: cfg}
}

// Resolve applies, in order: explicit tickers, the requested preset, the
// configured ticker list, the configured ticker file, the configured preset,
// then the default preset.
func (s *WatchlistService) Resolve(explicit []string, preset string) (Selection, error) {
	if tickers := CleanTickers(explicit); len(tickers) > 0 {
		return Selection{Tickers: tickers, Source: fmt.Sprintf("%d requested", len(tickers))}, nil
	}
	if preset != "" {
		return presetSelection(preset)
	}
	if tickers := CleanTickers(s.config.Tickers); len(tickers) > 0 {
		return Selection{Tickers: tickers, Source: fmt.Sprintf("%d configured", len(tickers))}, nil
	}
	if s.config.File != "" {
		tickers, err := LoadTickerFile(s.config.File)
		if err != nil {
			return Selection{}, err
		}
		if len(tickers) > 0 {
			return Selection{Tickers: tickers, Source: fmt.Sprintf("%d from %s", len(tickers), s.config.File)}, nil
		}
	}
	if s.config.Preset != "" {
		return presetSelection(s.config.Preset)
	}
	return presetSelection(DefaultPreset)
}

func presetSelection(name string) (Selection, error) {
	tickers, err := Preset(name)
	if err != nil {
		return Selection{}, err
	}
	return Selection{Tickers: tickers, Source: "preset " + strings.ToLower(strings.TrimSpace(name))}, nil
}
