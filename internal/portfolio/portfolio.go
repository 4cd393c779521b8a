package portfolio

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"crypto-paper-trader/internal/market"
)

// Errors returned by position lifecycle operations. Each one aborts only the
// single fill that caused it; the caller continues with the next action.
var (
	ErrInsufficientCash = errors.New("insufficient cash")
	ErrPositionExists   = errors.New("position already open for symbol")
	ErrPositionNotFound = errors.New("no open position for symbol")
	ErrInvalidSize      = errors.New("position size must be positive")
	ErrInvalidPrice     = errors.New("fill price must be positive")
	ErrInvalidFraction  = errors.New("reduce fraction must be in (0, 1)")
)

// Portfolio is the whole paper account: uncommitted cash plus the open
// positions, unique per instrument. NAV is derived and only updated by
// MarkToMarket.
type Portfolio struct {
	NAV        float64     `json:"nav"`
	Cash       float64     `json:"cash"`
	Positions  []*Position `json:"positions"`
	LastUpdate time.Time   `json:"last_update"`
}

// New creates a portfolio holding only cash.
func New(cash float64) *Portfolio {
	return &Portfolio{NAV: cash, Cash: cash, Positions: []*Position{}}
}

// Position returns the open position for symbol, or nil.
func (pf *Portfolio) Position(symbol string) *Position {
	for _, pos := range pf.Positions {
		if pos.Symbol == symbol {
			return pos
		}
	}
	return nil
}

// MarkToMarket recomputes every position's unrealized P&L from the price map
// and derives NAV = cash + Σ(margin + unrealized P&L). A position whose
// symbol is missing from the map is marked at its entry price (zero P&L)
// rather than failing the recomputation. The call is idempotent: it never
// touches cash or margin.
func (pf *Portfolio) MarkToMarket(prices market.PriceMap, now time.Time) {
	equity := pf.Cash
	for _, pos := range pf.Positions {
		price := pos.EntryPrice
		if q, ok := prices[pos.Symbol]; ok && q.Close > 0 {
			price = q.Close
		}
		pos.CurrentPrice = price
		pos.UnrealizedPnL = (price - pos.EntryPrice) * pos.Quantity
		equity += pos.Margin + pos.UnrealizedPnL
	}
	pf.NAV = equity
	pf.LastUpdate = now
}

// Open commits margin to a new position. Notional = margin × leverage, the
// fee is charged on notional, and cash is reduced by margin + fee. Opening a
// symbol that already has a position is an error; callers scale the existing
// position instead.
func (pf *Portfolio) Open(symbol string, side Side, margin, leverage, price, feeRate float64, plan ExitPlan, now time.Time) (*Position, Trade, error) {
	if margin <= 0 {
		return nil, Trade{}, ErrInvalidSize
	}
	if price <= 0 {
		return nil, Trade{}, ErrInvalidPrice
	}
	if pf.Position(symbol) != nil {
		return nil, Trade{}, fmt.Errorf("%w: %s", ErrPositionExists, symbol)
	}
	if leverage < 1 {
		leverage = 1
	}

	notional := margin * leverage
	fee := notional * feeRate
	cost := margin + fee
	if cost > pf.Cash {
		return nil, Trade{}, fmt.Errorf("%w: need %.2f, have %.2f", ErrInsufficientCash, cost, pf.Cash)
	}

	qty := notional / price
	if side == Short {
		qty = -qty
	}

	pf.Cash -= cost
	pos := &Position{
		Symbol:        symbol,
		Side:          side,
		Quantity:      qty,
		EntryPrice:    price,
		Leverage:      leverage,
		Margin:        margin,
		Notional:      notional,
		CurrentPrice:  price,
		UnrealizedPnL: -fee,
		ExitPlan:      plan,
		OpenedAt:      now,
	}
	pf.Positions = append(pf.Positions, pos)

	return pos, Trade{
		ID:          uuid.NewString(),
		Time:        now,
		Symbol:      symbol,
		Action:      ActionOpen,
		Side:        side,
		Quantity:    qty,
		Price:       price,
		Notional:    notional,
		Margin:      margin,
		Fee:         fee,
		RealizedPnL: -fee,
	}, nil
}

// ScaleIn adds margin to an existing position at the current price and
// recomputes the entry price as the notional-weighted average of the old and
// new fills.
func (pf *Portfolio) ScaleIn(symbol string, addMargin, price, feeRate float64, now time.Time) (Trade, error) {
	if addMargin <= 0 {
		return Trade{}, ErrInvalidSize
	}
	if price <= 0 {
		return Trade{}, ErrInvalidPrice
	}
	pos := pf.Position(symbol)
	if pos == nil {
		return Trade{}, fmt.Errorf("%w: %s", ErrPositionNotFound, symbol)
	}

	addNotional := addMargin * pos.Leverage
	fee := addNotional * feeRate
	cost := addMargin + fee
	if cost > pf.Cash {
		return Trade{}, fmt.Errorf("%w: need %.2f, have %.2f", ErrInsufficientCash, cost, pf.Cash)
	}

	addQty := addNotional / price
	if pos.Side == Short {
		addQty = -addQty
	}

	// Weighted-average entry over absolute quantities.
	oldAbs := math.Abs(pos.Quantity)
	newAbs := oldAbs + math.Abs(addQty)
	pos.EntryPrice = (pos.EntryPrice*oldAbs + price*math.Abs(addQty)) / newAbs

	pf.Cash -= cost
	pos.Quantity += addQty
	pos.Margin += addMargin
	pos.Notional += addNotional

	return Trade{
		ID:          uuid.NewString(),
		Time:        now,
		Symbol:      symbol,
		Action:      ActionScale,
		Side:        pos.Side,
		Quantity:    addQty,
		Price:       price,
		Notional:    addNotional,
		Margin:      addMargin,
		Fee:         fee,
		RealizedPnL: -fee,
	}, nil
}

// Reduce closes the given fraction of a position at the current price,
// releasing the proportional margin plus the realized P&L of the closed
// quantity, minus the exit fee. The position stays open with its entry price
// unchanged.
func (pf *Portfolio) Reduce(symbol string, fraction, price, feeRate float64, now time.Time) (Trade, error) {
	if fraction <= 0 || fraction >= 1 {
		return Trade{}, ErrInvalidFraction
	}
	if price <= 0 {
		return Trade{}, ErrInvalidPrice
	}
	pos := pf.Position(symbol)
	if pos == nil {
		return Trade{}, fmt.Errorf("%w: %s", ErrPositionNotFound, symbol)
	}

	closedQty := pos.Quantity * fraction
	releasedMargin := pos.Margin * fraction
	pnl := (price - pos.EntryPrice) * closedQty
	notional := math.Abs(closedQty) * price
	fee := notional * feeRate

	pf.Cash += releasedMargin + pnl - fee
	pos.Quantity -= closedQty
	pos.Margin -= releasedMargin
	pos.Notional *= 1 - fraction

	return Trade{
		ID:          uuid.NewString(),
		Time:        now,
		Symbol:      symbol,
		Action:      ActionPartialClose,
		Side:        pos.Side,
		Quantity:    -closedQty,
		Price:       price,
		Notional:    notional,
		Margin:      releasedMargin,
		Fee:         fee,
		RealizedPnL: pnl - fee,
	}, nil
}

// Close fully exits a position at the given price, returning margin plus
// realized P&L minus the exit fee to cash and removing the position. Reason
// is recorded for risk-triggered exits and left empty for signal exits.
func (pf *Portfolio) Close(symbol string, price, feeRate float64, reason string, now time.Time) (Trade, error) {
	if price <= 0 {
		return Trade{}, ErrInvalidPrice
	}
	pos := pf.Position(symbol)
	if pos == nil {
		return Trade{}, fmt.Errorf("%w: %s", ErrPositionNotFound, symbol)
	}

	pnl := (price - pos.EntryPrice) * pos.Quantity
	notional := math.Abs(pos.Quantity) * price
	fee := notional * feeRate

	pf.Cash += pos.Margin + pnl - fee
	pf.remove(symbol)

	return Trade{
		ID:          uuid.NewString(),
		Time:        now,
		Symbol:      symbol,
		Action:      ActionClose,
		Side:        pos.Side,
		Quantity:    -pos.Quantity,
		Price:       price,
		Notional:    notional,
		Margin:      pos.Margin,
		Fee:         fee,
		RealizedPnL: pnl - fee,
		Reason:      reason,
	}, nil
}

func (pf *Portfolio) remove(symbol string) {
	for i, pos := range pf.Positions {
		if pos.Symbol == symbol {
			pf.Positions = append(pf.Positions[:i], pf.Positions[i+1:]...)
			return
		}
	}
}
