// Package portfolio owns the paper portfolio aggregate: cash, open positions,
// mark-to-market accounting and the fill arithmetic for every position
// lifecycle transition. The portfolio is a single mutable aggregate owned by
// exactly one simulation or cycle run at a time; persistence happens at the
// load/save boundary, never mid-computation.
package portfolio

import (
	"time"
)

// Side is the direction of a position.
type Side string

const (
	Long  Side = "long"
	Short Side = "short"
)

// Action is the kind of realized fill a trade record captures.
type Action string

const (
	ActionOpen         Action = "open"
	ActionScale        Action = "scale"
	ActionPartialClose Action = "partial_close"
	ActionClose        Action = "close"
)

// ExitPlan carries the optional exit levels attached to a position. The
// invalidation text is informational only and never evaluated.
type ExitPlan struct {
	TakeProfit   float64 `json:"take_profit,omitempty"`
	StopLoss     float64 `json:"stop_loss,omitempty"`
	Invalidation string  `json:"invalidation,omitempty"`
}

// Merge overlays the non-zero fields of other onto the plan. Used by
// adjust_sl actions which may update only one level.
func (p *ExitPlan) Merge(other ExitPlan) {
	if other.TakeProfit != 0 {
		p.TakeProfit = other.TakeProfit
	}
	if other.StopLoss != 0 {
		p.StopLoss = other.StopLoss
	}
	if other.Invalidation != "" {
		p.Invalidation = other.Invalidation
	}
}

// Position is one open leveraged position. Quantity is signed: positive for
// longs, negative for shorts. EntryPrice is the volume-weighted average over
// all fills. Margin is the cash committed; Notional = Margin × Leverage.
type Position struct {
	Symbol        string    `json:"symbol"`
	Side          Side      `json:"side"`
	Quantity      float64   `json:"quantity"`
	EntryPrice    float64   `json:"entry_price"`
	Leverage      float64   `json:"leverage"`
	Margin        float64   `json:"margin"`
	Notional      float64   `json:"notional"`
	CurrentPrice  float64   `json:"current_price"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	ExitPlan      ExitPlan  `json:"exit_plan"`
	OpenedAt      time.Time `json:"opened_at"`
}

// UnrealizedReturn is the unrealized P&L as a fraction of the committed
// margin. Partial take-profit thresholds are expressed against this value.
func (p *Position) UnrealizedReturn() float64 {
	if p.Margin <= 0 {
		return 0
	}
	return p.UnrealizedPnL / p.Margin
}

// Trade is one immutable realized-fill record. Quantity is the signed
// quantity delta of the fill; RealizedPnL excludes any unrealized remainder
// and is net of the fill's fee. Reason is set only for risk-triggered exits.
type Trade struct {
	ID          string    `json:"id"`
	Time        time.Time `json:"time"`
	Symbol      string    `json:"symbol"`
	Action      Action    `json:"action"`
	Side        Side      `json:"side"`
	Quantity    float64   `json:"qty"`
	Price       float64   `json:"price"`
	Notional    float64   `json:"notional"`
	Margin      float64   `json:"margin"`
	Fee         float64   `json:"fee"`
	RealizedPnL float64   `json:"realized_pnl"`
	Reason      string    `json:"reason,omitempty"`
}
