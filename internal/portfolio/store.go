// Package portfolio keeps held option positions and share lots in a YAML file.
package portfolio

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

	"github.com/google/uuid"
	"gopkg.in/yaml.v2"

	"github.com/jwaldner/wheelhouse/internal/models"
)

var (
	ErrPositionNotFound = errors.New("position not found")
	ErrAlreadyClosed    = errors.New("position already closed")
	ErrInvalidPosition  = errors.New("invalid position")
)

type document struct {
	Stocks  []models.StockPosition `yaml:"stocks"`
	Options []models.HeldPosition  `yaml:"options"`
}

// Store serializes reads and writes to one portfolio file
type Store struct {
	path string
	now  func() time.Time
	mu   sync.Mutex
}

func NewStore(path string) *Store {
	return &Store{path: path, now: time.Now}
}

func (s *Store) read() (document, error) {
	var doc document
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return doc, fmt.Errorf("read portfolio: %w", err)
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("parse portfolio %s: %w", s.path, err)
	}
	return doc, nil
}

func (s *Store) write(doc document) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// ListOpenPositions returns open option positions, earliest expiration first
func (s *Store) ListOpenPositions(ctx context.Context) ([]models.HeldPosition, error) {
	return s.list(models.StatusOpen)
}

func (s *Store) ListClosedPositions(ctx context.Context) ([]models.HeldPosition, error) {
	return s.list(models.StatusClosed)
}

func (s *Store) list(status models.PositionStatus) ([]models.HeldPosition, error) {
	s.mu.Lock()
	doc, err := s.read()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var out []models.HeldPosition
	for _, p := range doc.Options {
		if p.Status == status {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Expiration.Before(out[j].Expiration) })
	return out, nil
}

// AddOption records a newly sold option. ID, status and entry date are filled in when empty.
func (s *Store) AddOption(ctx context.Context, p models.HeldPosition) (models.HeldPosition, error) {
	p.Ticker = strings.ToUpper(strings.TrimSpace(p.Ticker))
	switch {
	case p.Ticker == "":
		return p, fmt.Errorf("%w: ticker required", ErrInvalidPosition)
	case p.Type != models.Put && p.Type != models.Call:
		return p, fmt.Errorf("%w: option type %q", ErrInvalidPosition, p.Type)
	case p.Strike <= 0 || p.Contracts <= 0 || p.EntryPremium < 0:
		return p, fmt.Errorf("%w: strike, contracts and premium must be positive", ErrInvalidPosition)
	case p.Expiration.IsZero():
		return p, fmt.Errorf("%w: expiration required", ErrInvalidPosition)
	}

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.EntryDate.IsZero() {
		p.EntryDate = s.now()
	}
	if p.Strategy == "" {
		p.Strategy = models.StrategyCSP
		if p.Type == models.Call {
			p.Strategy = models.StrategyCC
		}
	}
	p.Status = models.StatusOpen

	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.read()
	if err != nil {
		return p, err
	}
	doc.Options = append(doc.Options, p)
	return p, s.write(doc)
}

// ClosePosition marks a position closed and books realized P&L as
// (entry - close) x 100 x contracts.
func (s *Store) ClosePosition(ctx context.Context, id string, closePremium float64, outcome models.Outcome, closedAt time.Time) (models.HeldPosition, error) {
	if closedAt.IsZero() {
		closedAt = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.read()
	if err != nil {
		return models.HeldPosition{}, err
	}

	for i := range doc.Options {
		p := &doc.Options[i]
		if p.ID != id {
			continue
		}
		if p.Status == models.StatusClosed {
			return *p, fmt.Errorf("%s: %w", id, ErrAlreadyClosed)
		}
		pnl := (p.EntryPremium - closePremium) * 100 * float64(p.Contracts)
		p.Status = models.StatusClosed
		p.ClosedDate = &closedAt
		p.ClosePremium = &closePremium
		p.RealizedPnL = &pnl
		p.Outcome = outcome
		if err := s.write(doc); err != nil {
			return *p, err
		}
		return *p, nil
	}
	return models.HeldPosition{}, fmt.Errorf("%s: %w", id, ErrPositionNotFound)
}

// AddStock records a share lot
func (s *Store) AddStock(ctx context.Context, lot models.StockPosition) error {
	lot.Ticker = strings.ToUpper(strings.TrimSpace(lot.Ticker))
	if lot.Ticker == "" || lot.Shares <= 0 {
		return fmt.Errorf("%w: stock lot needs ticker and shares", ErrInvalidPosition)
	}
	if lot.Acquired.IsZero() {
		lot.Acquired = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.read()
	if err != nil {
		return err
	}
	doc.Stocks = append(doc.Stocks, lot)
	return s.write(doc)
}

// CoverableContracts maps each ticker to the number of calls its shares can
// still cover after subtracting open short calls.
func (s *Store) CoverableContracts(ctx context.Context) (map[string]int, error) {
	s.mu.Lock()
	doc, err := s.read()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	shares := map[string]int{}
	for _, lot := range doc.Stocks {
		shares[lot.Ticker] += lot.Shares
	}
	for _, p := range doc.Options {
		if p.Status == models.StatusOpen && p.Type == models.Call {
			shares[p.Ticker] -= p.Contracts * 100
		}
	}

	out := map[string]int{}
	for t, n := range shares {
		if n >= 100 {
			out[t] = n / 100
		}
	}
	return out, nil
}
