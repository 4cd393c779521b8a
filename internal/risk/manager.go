// Package risk owns stop-loss, take-profit and trailing-stop evaluation for
// open positions. It runs once per bar for every position, before any entry
// logic, and its verdicts force exits independent of signal state.
package risk

import (
	"github.com/rs/zerolog"

	"crypto-paper-trader/internal/market"
	"crypto-paper-trader/internal/portfolio"
)

// Reason labels why a forced exit fired. The trailing_stop label is a
// classification only: a stop that has ratcheted past the entry price closes
// the position exactly like a plain stop-loss.
type Reason string

const (
	ReasonStopLoss     Reason = "stop_loss"
	ReasonTakeProfit   Reason = "take_profit"
	ReasonTrailingStop Reason = "trailing_stop"
)

// Verdict is the outcome of one risk check. Price is the assumed fill price
// for the forced exit (the stop or target level, not the bar close).
type Verdict struct {
	Triggered bool
	Price     float64
	Reason    Reason
}

// Config parameterizes the risk manager per strategy variant.
type Config struct {
	StopATRMult     float64 // stop distance in ATR multiples, e.g. 2.0
	TrailingEnabled bool    // ratchet the stop from the best close since entry
}

// DefaultConfig matches the production strategy: 2×ATR stop, trailing on.
func DefaultConfig() Config {
	return Config{StopATRMult: 2.0, TrailingEnabled: true}
}

type trackedPosition struct {
	side       portfolio.Side
	entryPrice float64
	stop       float64
	hasStop    bool
	bestClose  float64 // highest close since entry for longs, lowest for shorts
}

// Manager tracks ATR-derived stop levels for every open position. Track a
// position on entry, Check it every bar, Forget it on close.
type Manager struct {
	cfg     Config
	tracked map[string]*trackedPosition
	logger  zerolog.Logger
}

// NewManager creates a risk manager with the given configuration.
func NewManager(cfg Config, logger zerolog.Logger) *Manager {
	return &Manager{
		cfg:     cfg,
		tracked: make(map[string]*trackedPosition),
		logger:  logger.With().Str("component", "risk").Logger(),
	}
}

// Track registers a freshly opened position. The initial stop sits
// StopATRMult ATRs on the adverse side of the entry; with no usable ATR the
// position carries no stop until a trailing ratchet supplies one.
func (m *Manager) Track(pos *portfolio.Position, atr float64) {
	tp := &trackedPosition{
		side:       pos.Side,
		entryPrice: pos.EntryPrice,
		bestClose:  pos.EntryPrice,
	}
	if market.Valid(atr) && atr > 0 {
		if pos.Side == portfolio.Long {
			tp.stop = pos.EntryPrice - m.cfg.StopATRMult*atr
		} else {
			tp.stop = pos.EntryPrice + m.cfg.StopATRMult*atr
		}
		tp.hasStop = true
	}
	m.tracked[pos.Symbol] = tp

	m.logger.Debug().
		Str("symbol", pos.Symbol).
		Str("side", string(pos.Side)).
		Float64("entry", pos.EntryPrice).
		Float64("stop", tp.stop).
		Msg("tracking position")
}

// Rescale refreshes the tracked entry after a scale-in moved the position's
// weighted-average entry price. The stop is recomputed from the new entry
// but only ever tightens; a ratcheted trailing level is never given back.
func (m *Manager) Rescale(pos *portfolio.Position, atr float64) {
	tp, ok := m.tracked[pos.Symbol]
	if !ok {
		m.Track(pos, atr)
		return
	}

	tp.entryPrice = pos.EntryPrice
	if !market.Valid(atr) || atr <= 0 {
		return
	}
	if tp.side == portfolio.Long {
		candidate := pos.EntryPrice - m.cfg.StopATRMult*atr
		if !tp.hasStop || candidate > tp.stop {
			m.logRatchet(pos.Symbol, tp.stop, candidate)
			tp.stop = candidate
			tp.hasStop = true
		}
		return
	}
	candidate := pos.EntryPrice + m.cfg.StopATRMult*atr
	if !tp.hasStop || candidate < tp.stop {
		m.logRatchet(pos.Symbol, tp.stop, candidate)
		tp.stop = candidate
		tp.hasStop = true
	}
}

// Forget drops the tracking state for a closed position.
func (m *Manager) Forget(symbol string) {
	delete(m.tracked, symbol)
}

// Tracking reports whether a symbol is currently tracked.
func (m *Manager) Tracking(symbol string) bool {
	_, ok := m.tracked[symbol]
	return ok
}

// StopLevel returns the current stop price for a tracked symbol.
func (m *Manager) StopLevel(symbol string) (float64, bool) {
	tp, ok := m.tracked[symbol]
	if !ok || !tp.hasStop {
		return 0, false
	}
	return tp.stop, true
}

// Check evaluates the bar against the tracked stop and the position's
// take-profit target. Stop evaluation takes priority: when both the stop and
// the target would trigger within the same bar, the intrabar path is assumed
// to reach the adverse extreme first. After the breach checks the trailing
// stop is ratcheted from the best favorable close, never the other way.
func (m *Manager) Check(pos *portfolio.Position, bar market.Bar) Verdict {
	tp, ok := m.tracked[pos.Symbol]
	if !ok {
		return Verdict{}
	}

	if v := m.breach(tp, pos, bar); v.Triggered {
		return v
	}

	m.ratchet(tp, pos.Symbol, bar)
	return Verdict{}
}

func (m *Manager) breach(tp *trackedPosition, pos *portfolio.Position, bar market.Bar) Verdict {
	target := pos.ExitPlan.TakeProfit

	if tp.side == portfolio.Long {
		if tp.hasStop && bar.Low <= tp.stop {
			return Verdict{Triggered: true, Price: tp.stop, Reason: m.stopReason(tp)}
		}
		if target > 0 && bar.High >= target {
			return Verdict{Triggered: true, Price: target, Reason: ReasonTakeProfit}
		}
		return Verdict{}
	}

	if tp.hasStop && bar.High >= tp.stop {
		return Verdict{Triggered: true, Price: tp.stop, Reason: m.stopReason(tp)}
	}
	if target > 0 && bar.Low <= target {
		return Verdict{Triggered: true, Price: target, Reason: ReasonTakeProfit}
	}
	return Verdict{}
}

// stopReason labels a breached stop: once the level has moved past the entry
// price it is protecting profit and reports as trailing_stop.
func (m *Manager) stopReason(tp *trackedPosition) Reason {
	if tp.side == portfolio.Long && tp.stop > tp.entryPrice {
		return ReasonTrailingStop
	}
	if tp.side == portfolio.Short && tp.stop < tp.entryPrice {
		return ReasonTrailingStop
	}
	return ReasonStopLoss
}

func (m *Manager) ratchet(tp *trackedPosition, symbol string, bar market.Bar) {
	if !m.cfg.TrailingEnabled {
		return
	}
	atr := bar.Indicators.ATR14
	if !market.Valid(atr) || atr <= 0 {
		return
	}

	if tp.side == portfolio.Long {
		if bar.Close > tp.bestClose {
			tp.bestClose = bar.Close
		}
		candidate := tp.bestClose - m.cfg.StopATRMult*atr
		if !tp.hasStop || candidate > tp.stop {
			m.logRatchet(symbol, tp.stop, candidate)
			tp.stop = candidate
			tp.hasStop = true
		}
		return
	}

	if bar.Close < tp.bestClose {
		tp.bestClose = bar.Close
	}
	candidate := tp.bestClose + m.cfg.StopATRMult*atr
	if !tp.hasStop || candidate < tp.stop {
		m.logRatchet(symbol, tp.stop, candidate)
		tp.stop = candidate
		tp.hasStop = true
	}
}

func (m *Manager) logRatchet(symbol string, old, next float64) {
	m.logger.Debug().
		Str("symbol", symbol).
		Float64("old_stop", old).
		Float64("new_stop", next).
		Msg("trailing stop moved")
}
