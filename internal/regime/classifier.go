// Package regime classifies each bar into a coarse market state and decides
// entry eligibility. The classifier is a pure function of the bar's indicator
// fields; rolling history is already baked into the indicators upstream.
package regime

import (
	"crypto-paper-trader/internal/market"
)

// Regime is the coarse market-state label derived from the trend score.
type Regime string

const (
	Bull  Regime = "bull"
	Range Regime = "range"
	Bear  Regime = "bear"
)

// TrendLabel is the finer direction label used by entry and exit filters.
type TrendLabel string

const (
	TrendUp       TrendLabel = "up"
	TrendDown     TrendLabel = "down"
	TrendSideways TrendLabel = "sideways"
)

// Trend score component weights: MA crossover dominates, momentum and MACD
// histogram confirm. The sum is clipped to [-1, 1].
const (
	maCrossWeight  = 0.4
	momentumWeight = 0.3
	macdWeight     = 0.3

	momentumBand = 0.005 // momentum must exceed ±0.5% to count

	bullThreshold = 0.5
	bearThreshold = 0.3

	trendUpThreshold   = 0.3
	trendDownThreshold = -0.3
)

// Assessment is the classifier output for one bar.
type Assessment struct {
	Score         float64
	Regime        Regime
	Label         TrendLabel
	EntryEligible bool
}

// EntryFilter holds the eligibility thresholds applied on top of a bull
// regime before a new position may be opened.
type EntryFilter struct {
	MaxRSI           float64 // reject overbought entries
	MinPricePosition float64 // reject entries at extreme lows of the range
}

// DefaultEntryFilter matches the production strategy settings.
func DefaultEntryFilter() EntryFilter {
	return EntryFilter{MaxRSI: 70, MinPricePosition: 0.3}
}

// Classify scores the bar's trend strength and derives regime, trend label
// and entry eligibility under the given filter.
func Classify(bar market.Bar, filter EntryFilter) Assessment {
	score := TrendScore(bar.Indicators)

	a := Assessment{
		Score:  score,
		Regime: regimeFor(score),
		Label:  labelFor(score),
	}

	ind := bar.Indicators
	a.EntryEligible = a.Regime == Bull &&
		a.Label == TrendUp &&
		market.Valid(ind.RSI14) && ind.RSI14 < filter.MaxRSI &&
		market.Valid(ind.PricePosition20) && ind.PricePosition20 > filter.MinPricePosition &&
		market.Valid(ind.MACDHist) && ind.MACDHist > 0

	return a
}

// TrendScore combines the MA crossover, short-horizon momentum and MACD
// histogram sign into a bounded trend-strength value.
func TrendScore(ind market.Indicators) float64 {
	score := 0.0

	switch {
	case ind.MACross > 0:
		score += maCrossWeight
	case ind.MACross < 0:
		score -= maCrossWeight
	}

	if market.Valid(ind.Momentum12) {
		if ind.Momentum12 > momentumBand {
			score += momentumWeight
		} else if ind.Momentum12 < -momentumBand {
			score -= momentumWeight
		}
	}

	if market.Valid(ind.MACDHist) {
		if ind.MACDHist > 0 {
			score += macdWeight
		} else if ind.MACDHist < 0 {
			score -= macdWeight
		}
	}

	if score > 1 {
		score = 1
	} else if score < -1 {
		score = -1
	}
	return score
}

func regimeFor(score float64) Regime {
	switch {
	case score > bullThreshold:
		return Bull
	case score > bearThreshold:
		return Range
	default:
		return Bear
	}
}

func labelFor(score float64) TrendLabel {
	switch {
	case score >= trendUpThreshold:
		return TrendUp
	case score <= trendDownThreshold:
		return TrendDown
	default:
		return TrendSideways
	}
}
