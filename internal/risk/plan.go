package risk

import (
	"crypto-paper-trader/internal/market"
	"crypto-paper-trader/internal/portfolio"
)

// CheckPlan evaluates a position's explicit exit plan against a single
// quote. This is the paper-cycle path, where positions carry take-profit and
// stop-loss levels set by the decision maker instead of ATR-tracked stops.
// The stop is checked first, matching the intrabar tie-break of Check.
func CheckPlan(pos *portfolio.Position, q market.Quote) Verdict {
	sl := pos.ExitPlan.StopLoss
	target := pos.ExitPlan.TakeProfit

	if pos.Side == portfolio.Long {
		if sl > 0 && q.Low <= sl {
			return Verdict{Triggered: true, Price: sl, Reason: planStopReason(pos, sl)}
		}
		if target > 0 && q.High >= target {
			return Verdict{Triggered: true, Price: target, Reason: ReasonTakeProfit}
		}
		return Verdict{}
	}

	if sl > 0 && q.High >= sl {
		return Verdict{Triggered: true, Price: sl, Reason: planStopReason(pos, sl)}
	}
	if target > 0 && q.Low <= target {
		return Verdict{Triggered: true, Price: target, Reason: ReasonTakeProfit}
	}
	return Verdict{}
}

// planStopReason applies the same profit-protection labeling as tracked
// stops: a stop already past the entry price reports as trailing_stop.
func planStopReason(pos *portfolio.Position, sl float64) Reason {
	if pos.Side == portfolio.Long && sl > pos.EntryPrice {
		return ReasonTrailingStop
	}
	if pos.Side == portfolio.Short && sl < pos.EntryPrice {
		return ReasonTrailingStop
	}
	return ReasonStopLoss
}
