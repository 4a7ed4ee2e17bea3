// Package fixture serves market data from per-ticker YAML files, one file
// named <TICKER>.yaml per underlying. It backs offline scans and tests.
package fixture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/jwaldner/wheelhouse/internal/models"
	"github.com/jwaldner/wheelhouse/internal/providers"
)

const dateLayout = "2006-01-02"

type file struct {
	Ticker       string                 `yaml:"ticker"`
	Spot         float64                `yaml:"spot"`
	NextEarnings string                 `yaml:"next_earnings"`
	Snapshot     *models.FactorSnapshot `yaml:"snapshot"`
	Chains       []chain                `yaml:"chains"`
}

type chain struct {
	Expiration string  `yaml:"expiration"`
	Quotes     []quote `yaml:"quotes"`
}

type quote struct {
	Type         models.OptionType `yaml:"type"`
	Strike       float64           `yaml:"strike"`
	Bid          float64           `yaml:"bid"`
	Ask          float64           `yaml:"ask"`
	Last         float64           `yaml:"last"`
	Volume       int64             `yaml:"volume"`
	OpenInterest int64             `yaml:"open_interest"`
	IV           float64           `yaml:"iv"`
	Delta        *float64          `yaml:"delta"`
}

// Provider implements providers.MarketProvider over a fixture directory
type Provider struct {
	dir string
	now func() time.Time

	mu    sync.Mutex
	cache map[string]*file
}

func NewProvider(dir string) *Provider {
	return &Provider{dir: dir, now: time.Now, cache: map[string]*file{}}
}

func (p *Provider) GetProviderName() string {
	return "fixture"
}

func (p *Provider) Close() error {
	return nil
}

// Tickers lists every ticker with a fixture file
func (p *Provider) Tickers() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(p.dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, strings.ToUpper(strings.TrimSuffix(filepath.Base(m), ".yaml")))
	}
	sort.Strings(out)
	return out, nil
}

func (p *Provider) load(ticker string) (*file, error) {
	ticker = strings.ToUpper(ticker)

	p.mu.Lock()
	defer p.mu.Unlock()
	if f, ok := p.cache[ticker]; ok {
		return f, nil
	}

	data, err := os.ReadFile(filepath.Join(p.dir, ticker+".yaml"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", ticker, providers.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", ticker, err)
	}
	if f.Ticker == "" {
		f.Ticker = ticker
	}
	p.cache[ticker] = &f
	return &f, nil
}

func (p *Provider) ListExpirations(ctx context.Context, ticker string) ([]time.Time, error) {
	f, err := p.load(ticker)
	if err != nil {
		return nil, err
	}
	out := make([]time.Time, 0, len(f.Chains))
	for _, c := range f.Chains {
		exp, err := time.Parse(dateLayout, c.Expiration)
		if err != nil {
			return nil, fmt.Errorf("%s expiration %q: %w", ticker, c.Expiration, err)
		}
		out = append(out, exp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

func (p *Provider) FetchChain(ctx context.Context, ticker string, expiration time.Time) ([]models.OptionQuote, error) {
	f, err := p.load(ticker)
	if err != nil {
		return nil, err
	}
	want := expiration.Format(dateLayout)
	for _, c := range f.Chains {
		if c.Expiration != want {
			continue
		}
		exp, err := time.Parse(dateLayout, c.Expiration)
		if err != nil {
			return nil, err
		}
		fetched := p.now()
		out := make([]models.OptionQuote, 0, len(c.Quotes))
		for _, q := range c.Quotes {
			out = append(out, models.OptionQuote{
				Ticker:            f.Ticker,
				Type:              q.Type,
				Strike:            q.Strike,
				Expiration:        exp,
				Bid:               q.Bid,
				Ask:               q.Ask,
				LastPrice:         q.Last,
				Volume:            q.Volume,
				OpenInterest:      q.OpenInterest,
				ImpliedVolatility: q.IV,
				Delta:             q.Delta,
				SpotPrice:         f.Spot,
				FetchedAt:         fetched,
			})
		}
		return out, nil
	}
	return nil, fmt.Errorf("%s %s: %w", ticker, want, providers.ErrNotFound)
}

func (p *Provider) FetchSpotPrice(ctx context.Context, ticker string) (float64, error) {
	f, err := p.load(ticker)
	if err != nil {
		return 0, err
	}
	if f.Spot <= 0 {
		return 0, fmt.Errorf("%s spot: %w", ticker, providers.ErrNotFound)
	}
	return f.Spot, nil
}

func (p *Provider) FetchFactorSnapshot(ctx context.Context, ticker string) (*models.FactorSnapshot, error) {
	f, err := p.load(ticker)
	if err != nil {
		return nil, err
	}
	if f.Snapshot == nil {
		return nil, fmt.Errorf("%s snapshot: %w", ticker, providers.ErrNotFound)
	}
	snap := *f.Snapshot
	snap.Ticker = f.Ticker
	if snap.Price == 0 {
		snap.Price = f.Spot
	}
	if f.NextEarnings != "" {
		d, err := time.Parse(dateLayout, f.NextEarnings)
		if err != nil {
			return nil, fmt.Errorf("%s next_earnings: %w", ticker, err)
		}
		snap.NextEarnings = &d
	}
	return &snap, nil
}
