// Package analytics computes performance statistics over an equity curve and
// the round trips reconstructed from a trade ledger. Ratios that are
// undefined for the given sample (zero volatility, no losing bars, no
// drawdown, no completed trades) come back as NaN rather than a fabricated
// zero, so callers can tell "no data" from "flat performance".
package analytics

import (
	"math"

	"crypto-paper-trader/internal/ledger"
)

// Metrics is the summary of one simulation or live period.
type Metrics struct {
	TotalReturn      float64 `json:"total_return"`
	AnnualizedReturn float64 `json:"annualized_return"`
	AnnualizedVol    float64 `json:"annualized_vol"`
	Sharpe           float64 `json:"sharpe"`
	Sortino          float64 `json:"sortino"`
	MaxDrawdown      float64 `json:"max_drawdown"` // <= 0
	Calmar           float64 `json:"calmar"`
	WinRate          float64 `json:"win_rate"`
	ProfitFactor     float64 `json:"profit_factor"`
	Trades           int     `json:"trades"`
	TotalFees        float64 `json:"total_fees"`
}

// Analyze computes Metrics from an equity curve sampled once per bar.
// barsPerYear converts per-bar statistics to annual terms (365 for daily
// crypto bars, 8760 for hourly).
func Analyze(equity []float64, barsPerYear float64, trips []ledger.RoundTrip) Metrics {
	m := Metrics{
		TotalReturn:      math.NaN(),
		AnnualizedReturn: math.NaN(),
		AnnualizedVol:    math.NaN(),
		Sharpe:           math.NaN(),
		Sortino:          math.NaN(),
		MaxDrawdown:      0,
		Calmar:           math.NaN(),
	}

	if len(equity) >= 2 && equity[0] > 0 {
		m.TotalReturn = equity[len(equity)-1]/equity[0] - 1

		rets := returns(equity)
		mean := mean(rets)
		m.AnnualizedReturn = mean * barsPerYear
		m.AnnualizedVol = stdev(rets, mean) * math.Sqrt(barsPerYear)

		if m.AnnualizedVol > 0 {
			m.Sharpe = m.AnnualizedReturn / m.AnnualizedVol
		}
		if dv := downsideVol(rets, barsPerYear); dv > 0 {
			m.Sortino = m.AnnualizedReturn / dv
		}
		m.MaxDrawdown = maxDrawdown(equity)
		if m.MaxDrawdown < 0 {
			m.Calmar = m.AnnualizedReturn / -m.MaxDrawdown
		}
	}

	m.Trades = len(trips)
	m.WinRate, m.ProfitFactor = tripStats(trips)
	for _, t := range trips {
		m.TotalFees += t.Fees
	}
	return m
}

func returns(equity []float64) []float64 {
	rets := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		if equity[i-1] > 0 {
			rets = append(rets, equity[i]/equity[i-1]-1)
		}
	}
	return rets
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stdev(xs []float64, mean float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}

// downsideVol is the annualized standard deviation of negative returns only.
// Zero when no bar lost money, which makes Sortino NaN.
func downsideVol(rets []float64, barsPerYear float64) float64 {
	var neg []float64
	for _, r := range rets {
		if r < 0 {
			neg = append(neg, r)
		}
	}
	if len(neg) < 2 {
		return 0
	}
	return stdev(neg, mean(neg)) * math.Sqrt(barsPerYear)
}

// maxDrawdown is the worst peak-to-trough decline, as a non-positive
// fraction of the running peak.
func maxDrawdown(equity []float64) float64 {
	var dd float64
	peak := equity[0]
	for _, e := range equity {
		if e > peak {
			peak = e
		}
		if peak > 0 {
			if d := e/peak - 1; d < dd {
				dd = d
			}
		}
	}
	return dd
}

func tripStats(trips []ledger.RoundTrip) (winRate, profitFactor float64) {
	if len(trips) == 0 {
		return math.NaN(), math.NaN()
	}
	var wins int
	var grossWin, grossLoss float64
	for _, t := range trips {
		if t.Win() {
			wins++
		}
		if t.RealizedPnL > 0 {
			grossWin += t.RealizedPnL
		} else {
			grossLoss += -t.RealizedPnL
		}
	}
	winRate = float64(wins) / float64(len(trips))
	if grossLoss > 0 {
		profitFactor = grossWin / grossLoss
	} else {
		profitFactor = math.NaN()
	}
	return winRate, profitFactor
}
