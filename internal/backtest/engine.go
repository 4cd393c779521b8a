// Package backtest replays historical bar series through the lifecycle
// controller, one timestamp at a time, and summarizes the outcome. The loop
// is strictly sequential: every bar sees the portfolio exactly as the
// previous bar left it.
package backtest

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"crypto-paper-trader/internal/analytics"
	"crypto-paper-trader/internal/ledger"
	"crypto-paper-trader/internal/lifecycle"
	"crypto-paper-trader/internal/market"
	"crypto-paper-trader/internal/portfolio"
	"crypto-paper-trader/internal/risk"
	"crypto-paper-trader/internal/sizing"
)

// Config parameterizes one backtest run.
type Config struct {
	InitialCash float64
	FeeRate     float64
	BarsPerYear float64
	Strategy    lifecycle.StrategyConfig
	Risk        risk.Config
}

// DefaultConfig matches the production daily-bar setup.
func DefaultConfig() Config {
	return Config{
		InitialCash: 10000,
		FeeRate:     0.001,
		BarsPerYear: 365,
		Strategy:    lifecycle.DefaultStrategyConfig(),
		Risk:        risk.DefaultConfig(),
	}
}

// EquityPoint is one sample of the portfolio NAV.
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    float64   `json:"equity"`
}

// Result is the outcome of a run: the final portfolio, the full trade
// ledger, the NAV curve and derived statistics.
type Result struct {
	Portfolio   *portfolio.Portfolio `json:"portfolio"`
	Trades      []portfolio.Trade    `json:"trades"`
	RoundTrips  []ledger.RoundTrip   `json:"round_trips"`
	EquityCurve []EquityPoint        `json:"equity_curve"`
	Metrics     analytics.Metrics    `json:"metrics"`
}

// Engine owns the replay loop.
type Engine struct {
	cfg    Config
	logger zerolog.Logger
}

func NewEngine(cfg Config, logger zerolog.Logger) *Engine {
	return &Engine{
		cfg:    cfg,
		logger: logger.With().Str("component", "backtest").Logger(),
	}
}

// Run replays the given per-symbol bar series. Series may cover different
// date ranges; bars are merged and processed in timestamp order, and at each
// timestamp every symbol with a bar is advanced before the portfolio is
// marked to market. Remaining positions are closed at the last known price.
func (e *Engine) Run(series map[string][]market.Bar) (*Result, error) {
	if len(series) == 0 {
		return nil, fmt.Errorf("no bar series supplied")
	}

	bars := merge(series)
	if len(bars) == 0 {
		return nil, fmt.Errorf("bar series are empty")
	}

	pf := portfolio.New(e.cfg.InitialCash)
	lg := ledger.New()
	riskMgr := risk.NewManager(e.cfg.Risk, e.logger)
	ctrl := lifecycle.NewController(e.cfg.Strategy, e.cfg.FeeRate, sizing.Default(), riskMgr, lg, e.logger)

	e.logger.Info().
		Int("symbols", len(series)).
		Int("bars", len(bars)).
		Time("first", bars[0].Timestamp).
		Time("last", bars[len(bars)-1].Timestamp).
		Msg("starting replay")

	curve := make([]EquityPoint, 0, len(bars))
	prices := make(market.PriceMap)

	i := 0
	for i < len(bars) {
		ts := bars[i].Timestamp
		for i < len(bars) && bars[i].Timestamp.Equal(ts) {
			bar := bars[i]
			prices[bar.Symbol] = market.QuoteFromBar(bar)
			ctrl.OnBar(pf, bar)
			i++
		}
		pf.MarkToMarket(prices, ts)
		curve = append(curve, EquityPoint{Timestamp: ts, Equity: pf.NAV})
	}

	last := bars[len(bars)-1].Timestamp
	ctrl.CloseAll(pf, prices, last)
	pf.MarkToMarket(prices, last)
	if n := len(curve); n > 0 {
		curve[n-1].Equity = pf.NAV
	}

	equity := make([]float64, len(curve))
	for j, p := range curve {
		equity[j] = p.Equity
	}
	trips := ledger.Reconstruct(lg.Records())
	metrics := analytics.Analyze(equity, e.cfg.BarsPerYear, trips)

	e.logger.Info().
		Float64("final_nav", pf.NAV).
		Int("trades", lg.Len()).
		Int("round_trips", len(trips)).
		Msg("replay finished")

	return &Result{
		Portfolio:   pf,
		Trades:      lg.Records(),
		RoundTrips:  trips,
		EquityCurve: curve,
		Metrics:     metrics,
	}, nil
}

// merge flattens per-symbol series into one timestamp-ordered slice. Ties on
// timestamp are broken by symbol so replays are deterministic.
func merge(series map[string][]market.Bar) []market.Bar {
	var total int
	for _, bars := range series {
		total += len(bars)
	}
	out := make([]market.Bar, 0, total)
	for _, bars := range series {
		out = append(out, bars...)
	}
	sort.SliceStable(out, func(a, b int) bool {
		if !out[a].Timestamp.Equal(out[b].Timestamp) {
			return out[a].Timestamp.Before(out[b].Timestamp)
		}
		return out[a].Symbol < out[b].Symbol
	})
	return out
}
