// Package executor runs one paper-trading cycle: load account state, mark
// to market, enforce exit plans, apply the gated decision batch, and persist
// everything back. A cycle either completes and persists, or fails and
// leaves the stored state untouched.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"crypto-paper-trader/internal/gate"
	"crypto-paper-trader/internal/ledger"
	"crypto-paper-trader/internal/market"
	"crypto-paper-trader/internal/portfolio"
	"crypto-paper-trader/internal/risk"
	"crypto-paper-trader/internal/store"
)

// Config parameterizes the executor.
type Config struct {
	InitialCash     float64 // starting cash for a fresh account
	FeeRate         float64
	DefaultLeverage float64 // applied when a decision omits leverage
	TradeCSVPath    string  // optional trade log, appended per cycle
	NAVHistoryPath  string  // optional NAV history, one row per cycle
}

// DefaultConfig matches the production paper account.
func DefaultConfig() Config {
	return Config{
		InitialCash:     10000,
		FeeRate:         0.001,
		DefaultLeverage: 1,
	}
}

// CycleResult reports what one cycle did.
type CycleResult struct {
	Portfolio *portfolio.Portfolio `json:"portfolio"`
	Trades    []portfolio.Trade    `json:"trades"`
	Gate      gate.Result          `json:"gate"`
}

// Executor wires the store, the risk gate and the portfolio together.
type Executor struct {
	cfg    Config
	store  store.Store
	gate   *gate.Gate
	logger zerolog.Logger
}

func New(cfg Config, st store.Store, g *gate.Gate, logger zerolog.Logger) *Executor {
	return &Executor{
		cfg:    cfg,
		store:  st,
		gate:   g,
		logger: logger.With().Str("component", "executor").Logger(),
	}
}

// RunCycle executes one cycle against the given market snapshot and decision
// batch. State is persisted only after every step has succeeded; a failed
// cycle leaves the previous saved state in place so the next run retries
// from a consistent point.
func (e *Executor) RunCycle(ctx context.Context, prices market.PriceMap, batch gate.Batch, now time.Time) (*CycleResult, error) {
	pf := e.loadState(ctx)
	pf.MarkToMarket(prices, now)

	var trades []portfolio.Trade
	trades = append(trades, e.enforceExitPlans(pf, prices, now)...)

	res := e.gate.Validate(pf, batch.Actions)
	for _, action := range res.Approved {
		trades = append(trades, e.apply(pf, action, prices, now)...)
	}

	pf.MarkToMarket(prices, now)

	if err := e.persist(ctx, pf, trades, now); err != nil {
		return nil, err
	}

	e.logger.Info().
		Float64("nav", pf.NAV).
		Float64("cash", pf.Cash).
		Int("positions", len(pf.Positions)).
		Int("trades", len(trades)).
		Msg("cycle complete")

	return &CycleResult{Portfolio: pf, Trades: trades, Gate: res}, nil
}

// loadState restores the saved portfolio, starting fresh when no state
// exists or the saved state cannot be read.
func (e *Executor) loadState(ctx context.Context) *portfolio.Portfolio {
	pf, err := e.store.LoadPortfolio(ctx)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			e.logger.Warn().Err(err).Msg("saved state unreadable, starting fresh")
		}
		return portfolio.New(e.cfg.InitialCash)
	}
	return pf
}

// enforceExitPlans closes any position whose stop, trailing stop or target
// was reached inside the cycle's bar range. Exits run before decisions so a
// stale open instruction cannot race a stop-out.
func (e *Executor) enforceExitPlans(pf *portfolio.Portfolio, prices market.PriceMap, now time.Time) []portfolio.Trade {
	var trades []portfolio.Trade
	for _, pos := range append([]*portfolio.Position(nil), pf.Positions...) {
		q, ok := prices[pos.Symbol]
		if !ok {
			continue
		}
		v := risk.CheckPlan(pos, q)
		if !v.Triggered {
			continue
		}
		trade, err := pf.Close(pos.Symbol, v.Price, e.cfg.FeeRate, string(v.Reason), now)
		if err != nil {
			e.logger.Warn().Err(err).Str("symbol", pos.Symbol).Msg("exit-plan close failed")
			continue
		}
		trades = append(trades, trade)
		e.logger.Info().
			Str("symbol", pos.Symbol).
			Str("reason", string(v.Reason)).
			Float64("price", v.Price).
			Float64("realized_pnl", trade.RealizedPnL).
			Msg("exit plan triggered")
	}
	return trades
}

func (e *Executor) apply(pf *portfolio.Portfolio, a gate.ProposedAction, prices market.PriceMap, now time.Time) []portfolio.Trade {
	switch a.Action {
	case gate.OpenLong, gate.OpenShort:
		return e.applyOpen(pf, a, prices, now)
	case gate.ClosePosition:
		return e.applyClose(pf, a, prices, now)
	case gate.AdjustStop:
		e.applyAdjustStop(pf, a)
	case gate.Hold:
	}
	return nil
}

func (e *Executor) applyOpen(pf *portfolio.Portfolio, a gate.ProposedAction, prices market.PriceMap, now time.Time) []portfolio.Trade {
	q, ok := prices[a.Symbol]
	if !ok || q.Close <= 0 {
		e.logger.Warn().Str("symbol", a.Symbol).Msg("no price for open, skipped")
		return nil
	}

	// Opening an already-held symbol scales the existing position instead.
	if pf.Position(a.Symbol) != nil {
		trade, err := pf.ScaleIn(a.Symbol, a.PositionSizeUSD, q.Close, e.cfg.FeeRate, now)
		if err != nil {
			e.logger.Warn().Err(err).Str("symbol", a.Symbol).Msg("scale-in failed, skipped")
			return nil
		}
		return []portfolio.Trade{trade}
	}

	side := portfolio.Long
	if a.Action == gate.OpenShort {
		side = portfolio.Short
	}
	leverage := a.Leverage
	if leverage <= 0 {
		leverage = e.cfg.DefaultLeverage
	}
	var plan portfolio.ExitPlan
	if a.ExitPlan != nil {
		plan = *a.ExitPlan
	}

	pos, trade, err := pf.Open(a.Symbol, side, a.PositionSizeUSD, leverage, q.Close, e.cfg.FeeRate, plan, now)
	if err != nil {
		e.logger.Warn().Err(err).Str("symbol", a.Symbol).Msg("open failed, skipped")
		return nil
	}
	e.logger.Info().
		Str("symbol", a.Symbol).
		Str("side", string(side)).
		Float64("margin", pos.Margin).
		Float64("price", q.Close).
		Str("reason", a.EntryReason).
		Msg("position opened")
	return []portfolio.Trade{trade}
}

func (e *Executor) applyClose(pf *portfolio.Portfolio, a gate.ProposedAction, prices market.PriceMap, now time.Time) []portfolio.Trade {
	pos := pf.Position(a.Symbol)
	if pos == nil {
		e.logger.Warn().Str("symbol", a.Symbol).Msg("close requested for unknown position")
		return nil
	}
	price := pos.CurrentPrice
	if q, ok := prices[a.Symbol]; ok && q.Close > 0 {
		price = q.Close
	}
	trade, err := pf.Close(a.Symbol, price, e.cfg.FeeRate, "decision", now)
	if err != nil {
		e.logger.Warn().Err(err).Str("symbol", a.Symbol).Msg("close failed")
		return nil
	}
	return []portfolio.Trade{trade}
}

func (e *Executor) applyAdjustStop(pf *portfolio.Portfolio, a gate.ProposedAction) {
	pos := pf.Position(a.Symbol)
	if pos == nil {
		e.logger.Warn().Str("symbol", a.Symbol).Msg("stop adjustment for unknown position, ignored")
		return
	}
	if a.ExitPlan == nil {
		e.logger.Warn().Str("symbol", a.Symbol).Msg("stop adjustment without exit plan, ignored")
		return
	}
	pos.ExitPlan.Merge(*a.ExitPlan)
	e.logger.Info().
		Str("symbol", a.Symbol).
		Float64("stop_loss", pos.ExitPlan.StopLoss).
		Float64("take_profit", pos.ExitPlan.TakeProfit).
		Msg("exit plan adjusted")
}

// persist writes the cycle's artifacts. The state file is authoritative and
// goes last: if any earlier append fails, the saved state still describes
// the previous cycle and a retry re-runs this one from it.
func (e *Executor) persist(ctx context.Context, pf *portfolio.Portfolio, trades []portfolio.Trade, now time.Time) error {
	if e.cfg.TradeCSVPath != "" && len(trades) > 0 {
		if err := ledger.AppendCSVFile(e.cfg.TradeCSVPath, trades); err != nil {
			return fmt.Errorf("append trade log: %w", err)
		}
	}
	if e.cfg.NAVHistoryPath != "" {
		if err := store.AppendNAVHistory(e.cfg.NAVHistoryPath, now, pf); err != nil {
			return fmt.Errorf("append nav history: %w", err)
		}
	}
	if err := e.store.SavePortfolio(ctx, pf); err != nil {
		return fmt.Errorf("save portfolio state: %w", err)
	}
	return nil
}
