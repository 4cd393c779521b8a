package ledger

import (
	"time"

	"crypto-paper-trader/internal/portfolio"
)

// RoundTrip is one reconstructed trade: the open/scale fills of a position
// paired FIFO with the partial_close/close fills that terminated it.
// RealizedPnL sums the net realized P&L of every leg, entry fees included.
type RoundTrip struct {
	Symbol      string
	Side        portfolio.Side
	Legs        int
	RealizedPnL float64
	Fees        float64
	OpenedAt    time.Time
	ClosedAt    time.Time
	ExitReason  string
}

// Win reports whether the trip realized a positive net P&L.
func (rt RoundTrip) Win() bool {
	return rt.RealizedPnL > 0
}

// Reconstruct pairs the ledger's fills into round trips, FIFO by timestamp
// within each instrument: every open starts a trip, scales and partial
// closes accumulate into it, and a close record terminates it. A trailing
// trip with no close record (position still open) is dropped.
func Reconstruct(records []portfolio.Trade) []RoundTrip {
	open := make(map[string]*RoundTrip)
	var trips []RoundTrip

	for _, t := range records {
		switch t.Action {
		case portfolio.ActionOpen:
			open[t.Symbol] = &RoundTrip{
				Symbol:      t.Symbol,
				Side:        t.Side,
				Legs:        1,
				RealizedPnL: t.RealizedPnL,
				Fees:        t.Fee,
				OpenedAt:    t.Time,
			}
		case portfolio.ActionScale, portfolio.ActionPartialClose:
			trip, ok := open[t.Symbol]
			if !ok {
				continue
			}
			trip.Legs++
			trip.RealizedPnL += t.RealizedPnL
			trip.Fees += t.Fee
		case portfolio.ActionClose:
			trip, ok := open[t.Symbol]
			if !ok {
				continue
			}
			trip.Legs++
			trip.RealizedPnL += t.RealizedPnL
			trip.Fees += t.Fee
			trip.ClosedAt = t.Time
			trip.ExitReason = t.Reason
			trips = append(trips, *trip)
			delete(open, t.Symbol)
		}
	}
	return trips
}
