package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jwaldner/wheelhouse/internal/capital"
	"github.com/jwaldner/wheelhouse/internal/journal"
	"github.com/jwaldner/wheelhouse/internal/models"
	"github.com/jwaldner/wheelhouse/internal/scanner"
)

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func table() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
}

func printReport(r scanner.Report) {
	fmt.Printf("%s scan: %d tickers, %d opportunities (%s)\n",
		strings.ToUpper(string(r.Strategy)), len(r.Tickers), len(r.Opportunities), r.Duration.Round(time.Millisecond))
	if len(r.Failed) > 0 {
		fmt.Printf("⚠️  No data: %s\n", strings.Join(r.Failed, ", "))
	}
	if r.Capacity != nil && !r.Capacity.OK {
		fmt.Printf("⚠️  New positions blocked: %s\n", r.Capacity.Reason)
	}
	if len(r.Opportunities) == 0 {
		return
	}

	w := table()
	fmt.Fprintln(w, "#\tTICKER\tSTRIKE\tEXP\tDTE\tPREMIUM\tSRC\tANNUAL%\tPROB%\tCONTRACTS\tSCORE")
	for i, o := range r.Opportunities {
		contracts := "-"
		if o.MaxContracts > 0 {
			contracts = fmt.Sprintf("%d", o.MaxContracts)
		}
		fmt.Fprintf(w, "%d\t%s\t%.2f\t%s\t%d\t%.2f\t%s\t%.1f\t%.0f\t%s\t%.1f\n",
			i+1, o.Ticker, o.Strike, o.Expiration.Format(dateLayout), o.DaysToExpiration,
			o.Premium, o.PriceSource, o.AnnualizedReturn, probability(o), contracts, o.Score)
	}
	w.Flush()
}

func probability(o models.Opportunity) float64 {
	if o.Scores != nil && o.Scores.EnhancedProbability > 0 {
		return o.Scores.EnhancedProbability
	}
	return o.ProbabilityOTM
}

func printRecommendations(recs []models.PositionRecommendation) {
	if len(recs) == 0 {
		fmt.Println("No open positions")
		return
	}
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Urgency > recs[j].Urgency })

	w := table()
	fmt.Fprintln(w, "TICKER\tTYPE\tSTRIKE\tEXP\tDTE\tP&L%\tPROB%\tHEALTH\tACTION\tURG\tREASON")
	for _, r := range recs {
		p := r.Position
		fmt.Fprintf(w, "%s\t%s\t%.2f\t%s\t%d\t%.0f\t%.0f\t%.0f %s\t%s\t%d\t%s\n",
			p.Ticker, p.Type, p.Strike, p.Expiration.Format(dateLayout), r.DaysRemaining,
			r.PnLPct, r.CurrentProbability, r.HealthScore, r.HealthStatus, r.Action, r.Urgency, r.PrimaryReason)
	}
	w.Flush()

	for _, r := range recs {
		if r.Roll == nil {
			continue
		}
		fmt.Printf("🔄 %s %.2f → %.2f %s (%s, score %.0f): %s\n", r.Position.Ticker, r.Roll.CurrentStrike,
			r.Roll.NewStrike, r.Roll.NewExpiration.Format(dateLayout), r.Roll.RollType, r.Roll.Score, r.Roll.Reasoning)
	}
}

func printCapital(s capital.Summary, d capital.Decision) {
	fmt.Printf("Deployable:  $%.2f\n", s.Deployable)
	fmt.Printf("Deployed:    $%.2f across %d positions\n", s.TotalDeployed, s.PositionCount)
	fmt.Printf("Available:   $%.2f (%d slots left)\n", s.Available, s.RemainingSlots)
	fmt.Printf("Can open:    %t (%s, max $%.2f)\n", d.OK, d.Reason, d.MaxNewCapital)

	if len(s.ByTicker) == 0 {
		return
	}
	tickers := make([]string, 0, len(s.ByTicker))
	for t := range s.ByTicker {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	w := table()
	fmt.Fprintln(w, "TICKER\tDEPLOYED\tCONCENTRATION%")
	for _, t := range tickers {
		fmt.Fprintf(w, "%s\t%.2f\t%.1f\n", t, s.ByTicker[t], s.Concentration[t])
	}
	w.Flush()
}

func printPositions(positions []models.HeldPosition) {
	if len(positions) == 0 {
		fmt.Println("No positions")
		return
	}
	w := table()
	fmt.Fprintln(w, "ID\tTICKER\tSTRATEGY\tTYPE\tSTRIKE\tEXP\tQTY\tPREMIUM\tSTATUS\tP&L")
	for _, p := range positions {
		pnl := "-"
		if p.RealizedPnL != nil {
			pnl = fmt.Sprintf("%.2f", *p.RealizedPnL)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2f\t%s\t%d\t%.2f\t%s\t%s\n",
			p.ID, p.Ticker, p.Strategy, p.Type, p.Strike, p.Expiration.Format(dateLayout),
			p.Contracts, p.EntryPremium, p.Status, pnl)
	}
	w.Flush()
}

func printEntries(entries []journal.Entry) {
	if len(entries) == 0 {
		fmt.Println("No journal runs")
		return
	}
	w := table()
	fmt.Fprintln(w, "TIME\tSTRATEGY\tROWS\tTICKERS\tFILE")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n", e.Timestamp.Format("2006-01-02 15:04:05"), e.Strategy, e.Count, len(e.Tickers), e.File)
	}
	w.Flush()
}

type strikeContracts struct {
	Strike       float64 `json:"strike"`
	MaxContracts int     `json:"max_contracts"`
}

func strikeCapacity(strikes []float64, contracts []int) []strikeContracts {
	out := make([]strikeContracts, len(strikes))
	for i, k := range strikes {
		out[i] = strikeContracts{Strike: k, MaxContracts: contracts[i]}
	}
	return out
}

func printContractCapacity(strikes []float64, contracts []int) {
	if len(strikes) == 0 {
		return
	}
	w := table()
	fmt.Fprintln(w, "STRIKE\tMAX CONTRACTS")
	for _, c := range strikeCapacity(strikes, contracts) {
		fmt.Fprintf(w, "%.2f\t%d\n", c.Strike, c.MaxContracts)
	}
	w.Flush()
}
