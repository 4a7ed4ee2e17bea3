// Package clickhouse reads option quotes and factor snapshots recorded in
// ClickHouse. Quotes are append-only; the latest row per contract wins.
//
// Expected tables:
//
//	option_quotes(ts DateTime, underlying String, expiry Date, strike Float64,
//	    option_type LowCardinality(String), bid Float64, ask Float64, ltp Float64,
//	    volume UInt64, open_interest UInt64, iv Float64, delta Nullable(Float64),
//	    spot_price Float64)
//
//	factor_snapshots(ts DateTime, ticker String, price Float64, <one Nullable(Float64)
//	    column per FactorSnapshot field>, next_earnings Nullable(Date))
package clickhouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"

	"github.com/jwaldner/wheelhouse/internal/models"
	"github.com/jwaldner/wheelhouse/internal/providers"
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// ErrBadTable is returned for table names that are not plain identifiers
var ErrBadTable = errors.New("invalid clickhouse table name")

type Provider struct {
	db          *sql.DB
	quoteTable  string
	factorTable string
	now         func() time.Time
}

// Open connects with a clickhouse:// DSN and pings the server
func Open(ctx context.Context, dsn, quoteTable, factorTable string) (*Provider, error) {
	db, err := sql.Open("clickhouse", dsn)
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}
	p, err := New(db, quoteTable, factorTable)
	if err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

// New wraps an existing connection
func New(db *sql.DB, quoteTable, factorTable string) (*Provider, error) {
	for _, t := range []string{quoteTable, factorTable} {
		if !identifier.MatchString(t) {
			return nil, fmt.Errorf("%w: %q", ErrBadTable, t)
		}
	}
	return &Provider{db: db, quoteTable: quoteTable, factorTable: factorTable, now: time.Now}, nil
}

func (p *Provider) GetProviderName() string {
	return "clickhouse"
}

func (p *Provider) Close() error {
	return p.db.Close()
}

func expirationsQuery(table string) string {
	return `
		SELECT DISTINCT expiry
		FROM ` + table + `
		WHERE underlying = ?
		  AND expiry >= toDate(?)
		ORDER BY expiry`
}

func chainQuery(table string) string {
	return `
		SELECT
			strike,
			option_type,
			argMax(bid, ts),
			argMax(ask, ts),
			argMax(ltp, ts),
			argMax(volume, ts),
			argMax(open_interest, ts),
			argMax(iv, ts),
			argMax(delta, ts),
			argMax(spot_price, ts)
		FROM ` + table + `
		WHERE underlying = ?
		  AND expiry = toDate(?)
		GROUP BY strike, option_type
		ORDER BY option_type, strike`
}

func spotQuery(table string) string {
	return `
		SELECT spot_price
		FROM ` + table + `
		WHERE underlying = ?
		ORDER BY ts DESC
		LIMIT 1`
}

var factorColumns = []string{
	"price", "previous_close", "sma_20", "sma_50", "sma_200", "low_52w", "high_52w",
	"volume", "avg_volume", "beta", "trailing_pe", "forward_pe", "profit_margins", "roe",
	"revenue_growth", "earnings_growth", "debt_to_equity", "recommendation_mean",
	"target_mean_price", "num_analysts", "next_earnings",
}

func snapshotQuery(table string) string {
	return `
		SELECT ` + strings.Join(factorColumns, ", ") + `
		FROM ` + table + `
		WHERE ticker = ?
		ORDER BY ts DESC
		LIMIT 1`
}

func (p *Provider) ListExpirations(ctx context.Context, ticker string) ([]time.Time, error) {
	rows, err := p.db.QueryContext(ctx, expirationsQuery(p.quoteTable), ticker, p.now().Format("2006-01-02"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var exp time.Time
		if err := rows.Scan(&exp); err != nil {
			return nil, err
		}
		out = append(out, exp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s expirations: %w", ticker, providers.ErrNotFound)
	}
	return out, nil
}

func (p *Provider) FetchChain(ctx context.Context, ticker string, expiration time.Time) ([]models.OptionQuote, error) {
	rows, err := p.db.QueryContext(ctx, chainQuery(p.quoteTable), ticker, expiration.Format("2006-01-02"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fetched := p.now()
	out := make([]models.OptionQuote, 0)
	for rows.Next() {
		var (
			q          models.OptionQuote
			optionType string
			volume, oi uint64
			delta      sql.NullFloat64
		)
		if err := rows.Scan(
			&q.Strike,
			&optionType,
			&q.Bid,
			&q.Ask,
			&q.LastPrice,
			&volume,
			&oi,
			&q.ImpliedVolatility,
			&delta,
			&q.SpotPrice,
		); err != nil {
			return nil, err
		}
		q.Ticker = ticker
		q.Type = models.OptionType(strings.ToLower(optionType))
		q.Expiration = expiration
		q.Volume = int64(volume)
		q.OpenInterest = int64(oi)
		if delta.Valid {
			q.Delta = models.Float(delta.Float64)
		}
		q.FetchedAt = fetched
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s %s: %w", ticker, expiration.Format("2006-01-02"), providers.ErrNotFound)
	}
	return out, nil
}

func (p *Provider) FetchSpotPrice(ctx context.Context, ticker string) (float64, error) {
	var spot float64
	err := p.db.QueryRowContext(ctx, spotQuery(p.quoteTable), ticker).Scan(&spot)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && spot <= 0) {
		return 0, fmt.Errorf("%s spot: %w", ticker, providers.ErrNotFound)
	}
	return spot, err
}

func (p *Provider) FetchFactorSnapshot(ctx context.Context, ticker string) (*models.FactorSnapshot, error) {
	var (
		price    float64
		nulls    = make([]sql.NullFloat64, len(factorColumns)-2)
		earnings sql.NullTime
	)
	dest := []any{&price}
	for i := range nulls {
		dest = append(dest, &nulls[i])
	}
	dest = append(dest, &earnings)

	err := p.db.QueryRowContext(ctx, snapshotQuery(p.factorTable), ticker).Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s snapshot: %w", ticker, providers.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	snap := &models.FactorSnapshot{Ticker: ticker, Price: price}
	fields := []**float64{
		&snap.PreviousClose, &snap.SMA20, &snap.SMA50, &snap.SMA200, &snap.Low52, &snap.High52,
		&snap.Volume, &snap.AvgVolume, &snap.Beta, &snap.TrailingPE, &snap.ForwardPE,
		&snap.ProfitMargin, &snap.ROE, &snap.RevenueGrowth, &snap.EarningsGrowth,
		&snap.DebtToEquity, &snap.RecommendationMean, &snap.TargetMeanPrice, &snap.NumAnalysts,
	}
	for i, f := range fields {
		if nulls[i].Valid {
			*f = models.Float(nulls[i].Float64)
		}
	}
	if earnings.Valid {
		t := earnings.Time
		snap.NextEarnings = &t
	}
	return snap, nil
}
