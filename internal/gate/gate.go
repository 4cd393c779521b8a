// Package gate validates externally proposed trading actions against hard
// risk limits before they reach the portfolio. Limit breaches reject the
// offending action; malformed but harmless actions pass through with a
// warning so one bad entry never blocks an otherwise valid batch.
package gate

import (
	"fmt"

	"github.com/rs/zerolog"

	"crypto-paper-trader/internal/portfolio"
)

// ActionKind enumerates the actions a decision batch may propose.
type ActionKind string

const (
	OpenLong      ActionKind = "open_long"
	OpenShort     ActionKind = "open_short"
	ClosePosition ActionKind = "close_position"
	AdjustStop    ActionKind = "adjust_sl"
	Hold          ActionKind = "hold"
)

// ProposedAction is one instruction from a decision batch.
type ProposedAction struct {
	Symbol          string              `json:"symbol"`
	Action          ActionKind          `json:"action"`
	Leverage        float64             `json:"leverage,omitempty"`
	PositionSizeUSD float64             `json:"position_size_usd,omitempty"`
	EntryReason     string              `json:"entry_reason,omitempty"`
	ExitPlan        *portfolio.ExitPlan `json:"exit_plan,omitempty"`
}

func (a ProposedAction) opens() bool {
	return a.Action == OpenLong || a.Action == OpenShort
}

// Limits are the hard risk constraints.
type Limits struct {
	MaxLeverage        float64 `json:"max_leverage"`
	MaxNewExposureFrac float64 `json:"max_new_exposure_frac"` // of NAV, across the batch
	MaxOpenPositions   int     `json:"max_open_positions"`
}

// DefaultLimits returns the production limits.
func DefaultLimits() Limits {
	return Limits{
		MaxLeverage:        3,
		MaxNewExposureFrac: 0.5,
		MaxOpenPositions:   3,
	}
}

// Rejection records why one action was refused.
type Rejection struct {
	Action ProposedAction `json:"action"`
	Reason string         `json:"reason"`
}

// Result is the gate's ruling on a batch. Approved actions execute in their
// original order; siblings of a rejected action are unaffected unless they
// breach a limit themselves.
type Result struct {
	Approved []ProposedAction `json:"approved"`
	Rejected []Rejection      `json:"rejected"`
	Warnings []string         `json:"warnings"`
}

// Gate applies Limits to proposed batches.
type Gate struct {
	limits Limits
	logger zerolog.Logger
}

func New(limits Limits, logger zerolog.Logger) *Gate {
	return &Gate{
		limits: limits,
		logger: logger.With().Str("component", "gate").Logger(),
	}
}

// Validate checks a batch against the current portfolio. The portfolio is
// only read; approved actions are executed by the caller.
func (g *Gate) Validate(pf *portfolio.Portfolio, actions []ProposedAction) Result {
	var res Result

	openSlots := g.limits.MaxOpenPositions - len(pf.Positions)
	var newExposure float64

	for _, a := range actions {
		switch a.Action {
		case OpenLong, OpenShort, ClosePosition, AdjustStop, Hold:
		default:
			res.warn(fmt.Sprintf("%s: unknown action %q, treated as hold", a.Symbol, a.Action))
			continue
		}

		if a.opens() {
			if a.PositionSizeUSD <= 0 {
				res.warn(fmt.Sprintf("%s: non-positive position size %.2f, skipped", a.Symbol, a.PositionSizeUSD))
				continue
			}
			if g.limits.MaxLeverage > 0 && a.Leverage > g.limits.MaxLeverage {
				res.reject(a, fmt.Sprintf("leverage %.1f exceeds limit %.1f", a.Leverage, g.limits.MaxLeverage))
				continue
			}
			if g.limits.MaxNewExposureFrac > 0 && pf.NAV > 0 &&
				(newExposure+a.PositionSizeUSD) > g.limits.MaxNewExposureFrac*pf.NAV {
				res.reject(a, fmt.Sprintf("new exposure %.2f would exceed %.0f%% of NAV %.2f",
					newExposure+a.PositionSizeUSD, g.limits.MaxNewExposureFrac*100, pf.NAV))
				continue
			}
			// Scaling into an existing position does not consume a slot.
			if pf.Position(a.Symbol) == nil {
				if g.limits.MaxOpenPositions > 0 && openSlots <= 0 {
					res.reject(a, fmt.Sprintf("open position limit %d reached", g.limits.MaxOpenPositions))
					continue
				}
				openSlots--
			}
			newExposure += a.PositionSizeUSD
		}

		res.Approved = append(res.Approved, a)
	}

	for _, r := range res.Rejected {
		g.logger.Warn().
			Str("symbol", r.Action.Symbol).
			Str("action", string(r.Action.Action)).
			Str("reason", r.Reason).
			Msg("action rejected")
	}
	for _, w := range res.Warnings {
		g.logger.Warn().Msg(w)
	}
	return res
}

func (r *Result) reject(a ProposedAction, reason string) {
	r.Rejected = append(r.Rejected, Rejection{Action: a, Reason: reason})
}

func (r *Result) warn(msg string) {
	r.Warnings = append(r.Warnings, msg)
}
