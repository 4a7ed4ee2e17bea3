package scanner

import (
	"context"
	"fmt"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jwaldner/wheelhouse/internal/enrich"
	"github.com/jwaldner/wheelhouse/internal/factors"
	"github.com/jwaldner/wheelhouse/internal/health"
	"github.com/jwaldner/wheelhouse/internal/logger"
	"github.com/jwaldner/wheelhouse/internal/metrics"
	"github.com/jwaldner/wheelhouse/internal/models"
	"github.com/jwaldner/wheelhouse/internal/roll"
)

// ReviewPositions recommends an action for every open position. Positions
// flagged ROLL carry their best roll candidate when one exists.
func (s *Scanner) ReviewPositions(ctx context.Context) ([]models.PositionRecommendation, error) {
	if s.positions == nil {
		return nil, nil
	}
	positions, err := s.positions.ListOpenPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list open positions: %w", err)
	}

	now := s.now()
	cache := s.snapshots()
	recs := make([]models.PositionRecommendation, len(positions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i, p := range positions {
		i, p := i, p
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			recs[i] = s.review(gctx, cache, p, now)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("review positions: %w", err)
	}

	for _, rec := range recs {
		metrics.Recommendations.WithLabelValues(string(rec.Action)).Inc()
		logger.Info.Printf("📋 %s %s %.2f %s: %s (urgency %d, health %.0f)",
			rec.Position.Ticker, rec.Position.Type, rec.Position.Strike,
			rec.Position.Expiration.Format("2006-01-02"), rec.Action, rec.Urgency, rec.HealthScore)
	}
	return recs, nil
}

func (s *Scanner) review(ctx context.Context, cache *factors.Cache, p models.HeldPosition, now time.Time) models.PositionRecommendation {
	state := health.MarketState{Snapshot: snapshot(ctx, cache, p.Ticker, false)}

	spot, ok := s.market.SpotPrice(ctx, p.Ticker)
	var chain []models.OptionQuote
	if ok {
		state.Spot = spot
		chain = s.market.Chain(ctx, p.Ticker, p.Expiration)
		state.ImpliedVolatility = nearestVolatility(chain, p)
	} else {
		logger.Warn.Printf("⚠️  %s: no spot price, reviewing position %s on neutral values", p.Ticker, p.ID)
	}

	rec := s.engine(p.Ticker, chain).Analyze(p, state, now)
	if rec.Action != models.ActionRoll || !ok {
		return rec
	}

	candidates, err := s.RollCandidates(ctx, p, spot)
	if err != nil {
		logger.Warn.Printf("⚠️  %s: roll search failed: %v", p.Ticker, err)
		return rec
	}
	if len(candidates) == 0 {
		rec.SupportingReasons = append(rec.SupportingReasons, "roll_candidates=0")
		return rec
	}

	best := candidates[0]
	rec.Roll = &best
	cmp := roll.CompareRollVsClose(p, best, rec.UnrealizedPnL)
	rec.SupportingReasons = append(rec.SupportingReasons,
		fmt.Sprintf("roll_vs_close=%s", cmp.Recommendation),
		fmt.Sprintf("roll_net_advantage=%.2f", cmp.NetAdvantage))
	return rec
}

// engine values positions from the held contract's quote mid when enabled
func (s *Scanner) engine(ticker string, chain []models.OptionQuote) *health.Engine {
	if !s.cfg.QuoteValuation || len(chain) == 0 {
		return health.NewEngine(s.cfg.Health, s.cfg.Valuation)
	}
	quotes := make(map[string]float64, len(chain))
	for _, q := range chain {
		if q.Bid <= 0 || q.Ask < q.Bid {
			continue
		}
		key := health.QuoteKey(ticker, q.Type, q.Strike, q.Expiration.Format("2006-01-02"))
		quotes[key] = (q.Bid + q.Ask) / 2
	}
	return health.NewEngine(s.cfg.Health, health.QuotedValue{Quotes: quotes, Fallback: s.cfg.Valuation})
}

// RollCandidates searches the expirations after p's for replacement contracts
func (s *Scanner) RollCandidates(ctx context.Context, p models.HeldPosition, spot float64) ([]models.RollCandidate, error) {
	now := s.now()
	exps := s.optimizer.FutureExpirations(p.Expiration, s.market.Expirations(ctx, p.Ticker))

	chains := make([]roll.Chain, 0, len(exps))
	for _, exp := range exps {
		var raw []models.OptionQuote
		for _, q := range s.market.Chain(ctx, p.Ticker, exp) {
			if q.Type != p.Type {
				continue
			}
			q.Ticker = p.Ticker
			if q.SpotPrice <= 0 {
				q.SpotPrice = spot
			}
			raw = append(raw, q)
		}
		chains = append(chains, roll.Chain{Expiration: exp, Quotes: enrich.Enrich(raw, now).Quotes})
	}
	return s.optimizer.Candidates(p, spot, chains, now)
}

// nearestVolatility is the implied volatility quoted closest to p's strike,
// or 0 to let the probability model fall back.
func nearestVolatility(chain []models.OptionQuote, p models.HeldPosition) float64 {
	iv, best := 0.0, math.Inf(1)
	for _, q := range chain {
		if q.Type != p.Type || q.ImpliedVolatility <= 0 {
			continue
		}
		if d := math.Abs(q.Strike - p.Strike); d < best {
			iv, best = q.ImpliedVolatility, d
		}
	}
	return iv
}
