package pipeline

import (
	"github.com/jwaldner/wheelhouse/internal/models"
	"github.com/jwaldner/wheelhouse/internal/probability"
)

const sharesPerContract = 100

// CSP ranks cash-secured put candidates. budget may be nil to skip sizing.
func CSP(quotes []models.EnrichedQuote, p Params, budget *Budget) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, err
	}

	opps, reports := Run(models.StrategyCSP, quotes, cspSteps(p, budget))
	for i := range opps {
		opps[i].Score = riskReward(&opps[i], p.UseEnhancedProbability)
	}
	return Result{
		Strategy:      models.StrategyCSP,
		Opportunities: Rank(opps, p.TopN),
		Steps:         reports,
	}, nil
}

// Wheel is the CSP pipeline restricted to entries at a discount to spot
func Wheel(quotes []models.EnrichedQuote, p WheelParams, budget *Budget) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, err
	}

	steps := cspSteps(p.Params, budget)
	target := p.TargetEntryDiscount
	steps = append(steps, Step{Name: "target_discount", Apply: func(o *models.Opportunity) bool {
		return o.DiscountFromSpot >= target
	}})

	opps, reports := Run(models.StrategyWheel, quotes, steps)
	for i := range opps {
		opps[i].Score = wheelScore(&opps[i], p.UseEnhancedProbability)
	}
	return Result{
		Strategy:      models.StrategyWheel,
		Opportunities: Rank(opps, p.TopN),
		Steps:         reports,
	}, nil
}

// CoveredCall ranks calls to sell against shares already held. Covered calls
// need no cash, so there is no sizing step.
func CoveredCall(quotes []models.EnrichedQuote, p CoveredCallParams) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, err
	}

	steps := []Step{optionTypeStep(models.Call), strikeBandStep(p.MinStrikePct, p.MaxStrikePct)}
	steps = append(steps, Step{Name: "effective_price", Apply: func(o *models.Opportunity) bool {
		switch {
		case o.Bid > 0:
			o.Premium, o.PriceSource = o.Bid, models.SourceBid
		case o.LastPrice > 0:
			o.Premium, o.PriceSource = o.LastPrice, models.SourceLast
		default:
			return false
		}
		return true
	}})
	steps = append(steps, commonFilters(p.Params)...)
	steps = append(steps, daysStep(p.MinDays, p.MaxDays, true), minPremiumStep(p.MinPremium))
	steps = append(steps, liquidityFilters(p.Params)...)
	steps = append(steps, Step{Name: "economics", Apply: coveredCallEconomics})
	steps = append(steps, riskFilters(p.Params)...)

	opps, reports := Run(models.StrategyCC, quotes, steps)
	for i := range opps {
		opps[i].Score = riskReward(&opps[i], p.UseEnhancedProbability)
	}
	return Result{
		Strategy:      models.StrategyCC,
		Opportunities: Rank(opps, p.TopN),
		Steps:         reports,
	}, nil
}

func cspSteps(p Params, budget *Budget) []Step {
	steps := []Step{optionTypeStep(models.Put), {Name: "effective_price", Apply: putPrice}}
	steps = append(steps, commonFilters(p)...)
	steps = append(steps, daysStep(p.MinDays, p.MaxDays, false), minPremiumStep(p.MinPremium))
	steps = append(steps, liquidityFilters(p)...)
	steps = append(steps, Step{Name: "economics", Apply: cspEconomics})
	steps = append(steps, riskFilters(p)...)
	if budget != nil {
		steps = append(steps, capitalStep(*budget))
	}
	return steps
}

// putPrice picks bid, then last trade, then half the ask
func putPrice(o *models.Opportunity) bool {
	switch {
	case o.Bid > 0:
		o.Premium, o.PriceSource = o.Bid, models.SourceBid
	case o.LastPrice > 0:
		o.Premium, o.PriceSource = o.LastPrice, models.SourceLast
	case o.Ask > 0:
		o.Premium, o.PriceSource = o.Ask*0.5, models.SourceHalfAsk
	default:
		return false
	}
	return true
}

func cspEconomics(o *models.Opportunity) bool {
	days := o.DaysToExpiration
	o.CapitalRequired = o.Strike * sharesPerContract
	o.AnnualizedReturn = probability.AnnualizedReturn(o.Premium, o.Strike, days)
	o.MonthlyReturn = probability.MonthlyReturn(o.Premium, o.Strike, days)
	o.NetEntryPrice = o.Strike - o.Premium
	o.DiscountFromSpot = (o.SpotPrice - o.NetEntryPrice) / o.SpotPrice * 100
	o.IncomeReturn = o.Premium / o.Strike * 100
	o.CushionPct = (o.SpotPrice - o.Strike) / o.SpotPrice * 100
	return true
}

func coveredCallEconomics(o *models.Opportunity) bool {
	days := o.DaysToExpiration
	o.CapitalRequired = o.SpotPrice * sharesPerContract
	o.AnnualizedReturn = probability.AnnualizedReturn(o.Premium, o.SpotPrice, days)
	o.MonthlyReturn = probability.MonthlyReturn(o.Premium, o.SpotPrice, days)
	o.MaxProfit = (o.Strike - o.SpotPrice) + o.Premium
	o.MaxProfitPct = o.MaxProfit / o.SpotPrice * 100
	o.DownsideProtection = o.Premium / o.SpotPrice * 100
	o.Breakeven = o.SpotPrice - o.Premium
	return true
}

// strikeBandStep drops strikes outside [spot*min, spot*max]; max <= 0 disables the cap
func strikeBandStep(min, max float64) Step {
	return Step{Name: "strike_bounds", Apply: func(o *models.Opportunity) bool {
		if o.Strike < o.SpotPrice*min {
			return false
		}
		return max <= 0 || o.Strike <= o.SpotPrice*max
	}}
}

func capitalStep(b Budget) Step {
	return Step{Name: "capital", Apply: func(o *models.Opportunity) bool {
		contracts := b.MaxContracts(o.Strike)
		if contracts <= 0 {
			return false
		}
		o.MaxContracts = contracts
		o.TotalCapital = o.Strike * sharesPerContract * float64(contracts)
		o.TotalPremium = o.Premium * sharesPerContract * float64(contracts)
		return true
	}}
}

func riskReward(o *models.Opportunity, useEnhanced bool) float64 {
	if p := Probability(o, useEnhanced); p > 0 {
		return o.AnnualizedReturn * (p / 100)
	}
	return o.AnnualizedReturn
}

func wheelScore(o *models.Opportunity, useEnhanced bool) float64 {
	p := Probability(o, useEnhanced)
	if p <= 0 {
		p = 50
	}
	return 0.4*o.AnnualizedReturn + 0.3*o.DiscountFromSpot + 0.3*p
}
