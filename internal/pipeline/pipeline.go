// Package pipeline turns an enriched option table into ranked strategy
// opportunities through an explicit, ordered list of named steps.
package pipeline

import (
	"sort"
	"strings"

	"github.com/jwaldner/wheelhouse/internal/models"
)

// Step is one stage of a pipeline. Apply may fill derived fields on the row
// it receives and reports whether the row survives.
type Step struct {
	Name  string
	Apply func(o *models.Opportunity) bool
}

// StepReport records how many rows a step saw and removed
type StepReport struct {
	Name    string `json:"name"`
	In      int    `json:"in"`
	Removed int    `json:"removed"`
}

// Result is the ranked output plus per-step diagnostics
type Result struct {
	Strategy      models.Strategy      `json:"strategy"`
	Opportunities []models.Opportunity `json:"opportunities"`
	Steps         []StepReport         `json:"steps"`
}

// Run pushes rows through steps in order. Rows are copied; the caller's
// quotes are never modified.
func Run(strategy models.Strategy, quotes []models.EnrichedQuote, steps []Step) ([]models.Opportunity, []StepReport) {
	rows := make([]models.Opportunity, 0, len(quotes))
	for _, q := range quotes {
		rows = append(rows, models.Opportunity{EnrichedQuote: q, Strategy: strategy})
	}

	reports := make([]StepReport, 0, len(steps))
	for _, step := range steps {
		kept := make([]models.Opportunity, 0, len(rows))
		for i := range rows {
			if step.Apply(&rows[i]) {
				kept = append(kept, rows[i])
			}
		}
		reports = append(reports, StepReport{Name: step.Name, In: len(rows), Removed: len(rows) - len(kept)})
		rows = kept
	}
	return rows, reports
}

// Rank orders opportunities by Score descending, keeping input order on ties,
// and truncates to topN when topN > 0.
func Rank(opps []models.Opportunity, topN int) []models.Opportunity {
	out := make([]models.Opportunity, len(opps))
	copy(out, opps)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	if topN > 0 && len(out) > topN {
		out = out[:topN]
	}
	return out
}

// MergeReports sums step reports with matching names, preserving first-seen order
func MergeReports(groups ...[]StepReport) []StepReport {
	var merged []StepReport
	index := map[string]int{}
	for _, group := range groups {
		for _, r := range group {
			if i, ok := index[r.Name]; ok {
				merged[i].In += r.In
				merged[i].Removed += r.Removed
				continue
			}
			index[r.Name] = len(merged)
			merged = append(merged, r)
		}
	}
	return merged
}

// Probability returns the probability a pipeline should rank and filter on
func Probability(o *models.Opportunity, useEnhanced bool) float64 {
	if useEnhanced && o.Scores != nil && o.Scores.EnhancedProbability > 0 {
		return o.Scores.EnhancedProbability
	}
	return o.ProbabilityOTM
}

func optionTypeStep(t models.OptionType) Step {
	return Step{Name: "option_type", Apply: func(o *models.Opportunity) bool {
		return o.Type == t
	}}
}

func allowListStep(tickers []string) Step {
	allowed := make(map[string]bool, len(tickers))
	for _, t := range tickers {
		allowed[strings.ToUpper(strings.TrimSpace(t))] = true
	}
	return Step{Name: "ticker_allowlist", Apply: func(o *models.Opportunity) bool {
		return allowed[strings.ToUpper(o.Ticker)]
	}}
}

func daysStep(minDays, maxDays int, exclusiveZero bool) Step {
	return Step{Name: "days_to_expiration", Apply: func(o *models.Opportunity) bool {
		d := o.DaysToExpiration
		if exclusiveZero && d <= 0 {
			return false
		}
		if d < minDays {
			return false
		}
		return maxDays <= 0 || d <= maxDays
	}}
}

func minPremiumStep(min float64) Step {
	return Step{Name: "min_premium", Apply: func(o *models.Opportunity) bool {
		return o.Premium >= min
	}}
}

func liquidityStep(minVolume, minOpenInterest int64) Step {
	return Step{Name: "liquidity", Apply: func(o *models.Opportunity) bool {
		return o.Volume >= minVolume && o.OpenInterest >= minOpenInterest
	}}
}

func minAnnualStep(min float64) Step {
	return Step{Name: "min_annual_return", Apply: func(o *models.Opportunity) bool {
		return o.AnnualizedReturn >= min
	}}
}

// deltaStep bounds the signed delta. Quotes without a delta pass.
func deltaStep(min, max *float64) Step {
	return Step{Name: "delta_band", Apply: func(o *models.Opportunity) bool {
		if o.Delta == nil {
			return true
		}
		d := *o.Delta
		if min != nil && d < *min {
			return false
		}
		return max == nil || d <= *max
	}}
}

func minProbabilityStep(min float64, useEnhanced bool) Step {
	return Step{Name: "min_probability", Apply: func(o *models.Opportunity) bool {
		return Probability(o, useEnhanced) >= min
	}}
}

// commonFilters returns the optional filters shared by all strategies, in order
func commonFilters(p Params) []Step {
	var steps []Step
	if len(p.Tickers) > 0 {
		steps = append(steps, allowListStep(p.Tickers))
	}
	return steps
}

func liquidityFilters(p Params) []Step {
	if p.MinVolume > 0 || p.MinOpenInterest > 0 {
		return []Step{liquidityStep(p.MinVolume, p.MinOpenInterest)}
	}
	return nil
}

func riskFilters(p Params) []Step {
	steps := []Step{minAnnualStep(p.MinAnnualReturn)}
	if p.MinDelta != nil || p.MaxDelta != nil {
		steps = append(steps, deltaStep(p.MinDelta, p.MaxDelta))
	}
	if p.MinProbabilityOTM != nil {
		steps = append(steps, minProbabilityStep(*p.MinProbabilityOTM, p.UseEnhancedProbability))
	}
	return steps
}
