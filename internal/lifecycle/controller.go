// Package lifecycle drives positions through their state machine: flat to
// partial to full via entries and pullback scale-ins, back toward partial via
// staged take-profits, and back to flat on forced or signal exits. One
// parameterized controller replaces the per-variant entry/exit logic of the
// historical backtests; strategy variants differ only in configuration.
package lifecycle

import (
	"errors"
	"math"
	"time"

	"github.com/rs/zerolog"

	"crypto-paper-trader/internal/ledger"
	"crypto-paper-trader/internal/market"
	"crypto-paper-trader/internal/portfolio"
	"crypto-paper-trader/internal/regime"
	"crypto-paper-trader/internal/risk"
	"crypto-paper-trader/internal/sizing"
)

// State is the lifecycle state of one (portfolio, instrument) pair.
type State string

const (
	StateFlat    State = "flat"
	StatePartial State = "partial" // size below the target ceiling
	StateFull    State = "full"    // size at the ceiling, may still reduce
)

// PartialTakeProfit is one staged profit-taking rule: when the unrealized
// return on margin crosses Return, reduce the position by Reduce. Each stage
// fires at most once per open trade.
type PartialTakeProfit struct {
	Return float64 `json:"return"`
	Reduce float64 `json:"reduce"`
}

// PullbackRule defines the scale-in pattern: the prior bar dipped into the
// pullback zone and the current bar confirms recovery.
type PullbackRule struct {
	RSILow           float64 `json:"rsi_low"`            // prior-bar zone lower bound
	RSIHigh          float64 `json:"rsi_high"`           // prior-bar zone upper bound
	MaxPricePosition float64 `json:"max_price_position"` // prior bar below this
	RecoveryRSI      float64 `json:"recovery_rsi"`       // current bar above this
	RecoveryPricePos float64 `json:"recovery_price_pos"` // current bar above this
}

// StrategyConfig parameterizes one strategy variant.
type StrategyConfig struct {
	Entry              regime.EntryFilter
	ExitRSI            float64 // overbought level forcing a full exit
	Pullback           PullbackRule
	PartialTakeProfits []PartialTakeProfit
	SizeCeiling        float64 // target size as fraction of NAV, usually 1.0
	Leverage           float64
}

// DefaultStrategyConfig matches the production pullback-add variant with
// staged profit-taking at +20% and +40% return over margin.
func DefaultStrategyConfig() StrategyConfig {
	return StrategyConfig{
		Entry:   regime.DefaultEntryFilter(),
		ExitRSI: 80,
		Pullback: PullbackRule{
			RSILow:           45,
			RSIHigh:          60,
			MaxPricePosition: 0.5,
			RecoveryRSI:      55,
			RecoveryPricePos: 0.5,
		},
		PartialTakeProfits: []PartialTakeProfit{
			{Return: 0.20, Reduce: 0.30},
			{Return: 0.40, Reduce: 0.30},
		},
		SizeCeiling: 1.0,
		Leverage:    1,
	}
}

type symbolState struct {
	state          State
	fraction       float64 // committed size as fraction of NAV at commit time
	tpFired        []bool
	prevMACD       float64
	hasPrevMACD    bool
	prevInPullback bool
}

// Controller is the per-portfolio lifecycle state machine. It is not safe
// for concurrent use; the engine is bar-sequential by design.
type Controller struct {
	cfg     StrategyConfig
	feeRate float64
	sizer   *sizing.Sizer
	riskMgr *risk.Manager
	ledger  *ledger.Ledger
	logger  zerolog.Logger
	symbols map[string]*symbolState
}

// NewController wires the controller with its collaborators. The ledger
// receives exactly one record per transition side effect.
func NewController(cfg StrategyConfig, feeRate float64, sizer *sizing.Sizer, riskMgr *risk.Manager, lg *ledger.Ledger, logger zerolog.Logger) *Controller {
	return &Controller{
		cfg:     cfg,
		feeRate: feeRate,
		sizer:   sizer,
		riskMgr: riskMgr,
		ledger:  lg,
		logger:  logger.With().Str("component", "lifecycle").Logger(),
		symbols: make(map[string]*symbolState),
	}
}

// State returns the lifecycle state for a symbol.
func (c *Controller) State(symbol string) State {
	return c.state(symbol).state
}

// OnBar advances the state machine for one instrument by one bar: forced
// exits first, then staged take-profits, then scale-ins, then entries. No
// error aborts the bar; failed fills are logged and skipped.
func (c *Controller) OnBar(pf *portfolio.Portfolio, bar market.Bar) {
	st := c.state(bar.Symbol)
	assess := regime.Classify(bar, c.cfg.Entry)

	c.checkExits(pf, bar, st, assess)
	c.checkPartialTakeProfit(pf, bar, st)
	c.checkScaleIn(pf, bar, st, assess)
	c.checkEntry(pf, bar, st, assess)

	// Remember the current bar for the next bar's pullback confirmation.
	st.prevInPullback = c.inPullbackZone(bar)
	st.prevMACD = bar.Indicators.MACDHist
	st.hasPrevMACD = market.Valid(bar.Indicators.MACDHist)
}

// CloseAll exits every remaining position at its latest close, used when a
// simulation runs out of bars.
func (c *Controller) CloseAll(pf *portfolio.Portfolio, prices market.PriceMap, now time.Time) {
	for _, pos := range append([]*portfolio.Position(nil), pf.Positions...) {
		price := pos.CurrentPrice
		if q, ok := prices[pos.Symbol]; ok && q.Close > 0 {
			price = q.Close
		}
		trade, err := pf.Close(pos.Symbol, price, c.feeRate, "", now)
		if err != nil {
			c.logger.Warn().Err(err).Str("symbol", pos.Symbol).Msg("final close failed")
			continue
		}
		c.ledger.Append(trade)
		c.riskMgr.Forget(pos.Symbol)
		c.resetSymbol(pos.Symbol)
	}
}

func (c *Controller) checkExits(pf *portfolio.Portfolio, bar market.Bar, st *symbolState, assess regime.Assessment) {
	pos := pf.Position(bar.Symbol)
	if pos == nil {
		return
	}

	if v := c.riskMgr.Check(pos, bar); v.Triggered {
		c.fullExit(pf, bar, st, v.Price, string(v.Reason))
		return
	}

	if c.reversalExit(bar, assess) {
		c.fullExit(pf, bar, st, bar.Close, "")
	}
}

// reversalExit is the signal-driven full exit: the bull regime has broken
// down or the market is extremely overbought.
func (c *Controller) reversalExit(bar market.Bar, assess regime.Assessment) bool {
	if assess.Regime == regime.Bear || assess.Label != regime.TrendUp {
		return true
	}
	rsi := bar.Indicators.RSI14
	return market.Valid(rsi) && c.cfg.ExitRSI > 0 && rsi > c.cfg.ExitRSI
}

func (c *Controller) fullExit(pf *portfolio.Portfolio, bar market.Bar, st *symbolState, price float64, reason string) {
	trade, err := pf.Close(bar.Symbol, price, c.feeRate, reason, bar.Timestamp)
	if err != nil {
		c.logger.Warn().Err(err).Str("symbol", bar.Symbol).Msg("exit failed")
		return
	}
	c.ledger.Append(trade)
	c.riskMgr.Forget(bar.Symbol)
	st.reset()

	c.logger.Info().
		Str("symbol", bar.Symbol).
		Float64("price", price).
		Float64("realized_pnl", trade.RealizedPnL).
		Str("reason", reason).
		Msg("position closed")
}

func (c *Controller) checkPartialTakeProfit(pf *portfolio.Portfolio, bar market.Bar, st *symbolState) {
	pos := pf.Position(bar.Symbol)
	if pos == nil || len(c.cfg.PartialTakeProfits) == 0 {
		return
	}
	if pos.Margin <= 0 {
		return
	}

	ret := (bar.Close - pos.EntryPrice) * pos.Quantity / pos.Margin
	for i, stage := range c.cfg.PartialTakeProfits {
		if st.tpFired[i] || ret < stage.Return {
			continue
		}
		trade, err := pf.Reduce(bar.Symbol, stage.Reduce, bar.Close, c.feeRate, bar.Timestamp)
		if err != nil {
			if !errors.Is(err, portfolio.ErrPositionNotFound) {
				c.logger.Warn().Err(err).Str("symbol", bar.Symbol).Msg("partial take-profit failed")
			}
			return
		}
		st.tpFired[i] = true
		st.fraction *= 1 - stage.Reduce
		st.state = StatePartial
		c.ledger.Append(trade)

		c.logger.Info().
			Str("symbol", bar.Symbol).
			Float64("return", ret).
			Float64("reduced", stage.Reduce).
			Msg("partial take-profit")
	}
}

func (c *Controller) checkScaleIn(pf *portfolio.Portfolio, bar market.Bar, st *symbolState, assess regime.Assessment) {
	pos := pf.Position(bar.Symbol)
	if pos == nil || st.state != StatePartial {
		return
	}
	if assess.Regime != regime.Bull || assess.Label != regime.TrendUp {
		return
	}
	if !st.prevInPullback || !c.recovered(bar, st) {
		return
	}

	fr := c.sizer.Fractions(bar.Indicators.ATR14, bar.Close)
	add := math.Min(fr.Add, c.cfg.SizeCeiling-st.fraction)
	if add <= 0 {
		return
	}

	addMargin := add * pf.NAV
	if addMargin <= 0 {
		return
	}
	trade, err := pf.ScaleIn(bar.Symbol, addMargin, bar.Close, c.feeRate, bar.Timestamp)
	if err != nil {
		c.logger.Warn().Err(err).Str("symbol", bar.Symbol).Msg("scale-in skipped")
		return
	}
	c.ledger.Append(trade)
	c.riskMgr.Rescale(pf.Position(bar.Symbol), bar.Indicators.ATR14)
	st.fraction += add
	if st.fraction >= c.cfg.SizeCeiling {
		st.state = StateFull
	}

	c.logger.Info().
		Str("symbol", bar.Symbol).
		Float64("added_fraction", add).
		Float64("entry_price", pf.Position(bar.Symbol).EntryPrice).
		Msg("scaled into position")
}

func (c *Controller) checkEntry(pf *portfolio.Portfolio, bar market.Bar, st *symbolState, assess regime.Assessment) {
	if st.state != StateFlat || pf.Position(bar.Symbol) != nil {
		return
	}
	if !assess.EntryEligible {
		return
	}

	fr := c.sizer.Fractions(bar.Indicators.ATR14, bar.Close)
	entry := math.Min(fr.Entry, c.cfg.SizeCeiling)
	margin := entry * pf.NAV
	if margin <= 0 {
		return
	}

	pos, trade, err := pf.Open(bar.Symbol, portfolio.Long, margin, c.cfg.Leverage, bar.Close, c.feeRate, portfolio.ExitPlan{}, bar.Timestamp)
	if err != nil {
		c.logger.Warn().Err(err).Str("symbol", bar.Symbol).Msg("entry skipped")
		return
	}
	c.ledger.Append(trade)
	c.riskMgr.Track(pos, bar.Indicators.ATR14)

	st.fraction = entry
	st.tpFired = make([]bool, len(c.cfg.PartialTakeProfits))
	if entry >= c.cfg.SizeCeiling {
		st.state = StateFull
	} else {
		st.state = StatePartial
	}

	c.logger.Info().
		Str("symbol", bar.Symbol).
		Float64("fraction", entry).
		Float64("price", bar.Close).
		Float64("score", assess.Score).
		Msg("opened position")
}

func (c *Controller) inPullbackZone(bar market.Bar) bool {
	ind := bar.Indicators
	return market.Valid(ind.RSI14) &&
		ind.RSI14 >= c.cfg.Pullback.RSILow && ind.RSI14 <= c.cfg.Pullback.RSIHigh &&
		market.Valid(ind.PricePosition20) && ind.PricePosition20 < c.cfg.Pullback.MaxPricePosition &&
		market.Valid(ind.MACDHist) && ind.MACDHist > 0
}

func (c *Controller) recovered(bar market.Bar, st *symbolState) bool {
	ind := bar.Indicators
	return market.Valid(ind.RSI14) && ind.RSI14 > c.cfg.Pullback.RecoveryRSI &&
		market.Valid(ind.PricePosition20) && ind.PricePosition20 > c.cfg.Pullback.RecoveryPricePos &&
		st.hasPrevMACD && market.Valid(ind.MACDHist) && ind.MACDHist >= st.prevMACD
}

func (c *Controller) state(symbol string) *symbolState {
	st, ok := c.symbols[symbol]
	if !ok {
		st = &symbolState{
			state:   StateFlat,
			tpFired: make([]bool, len(c.cfg.PartialTakeProfits)),
		}
		c.symbols[symbol] = st
	}
	return st
}

func (c *Controller) resetSymbol(symbol string) {
	if st, ok := c.symbols[symbol]; ok {
		st.reset()
	}
}

func (st *symbolState) reset() {
	st.state = StateFlat
	st.fraction = 0
	for i := range st.tpFired {
		st.tpFired[i] = false
	}
}
