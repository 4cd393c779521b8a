package portfolio

import (
	"errors"
	"math"
	"testing"
	"time"

	"crypto-paper-trader/internal/market"
)

var t0 = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func approx(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("%s = %v, want %v", name, got, want)
	}
}

func TestOpenAccounting(t *testing.T) {
	pf := New(10000)

	pos, trade, err := pf.Open("BTC", Long, 1000, 2, 50000, 0.001, ExitPlan{}, t0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	approx(t, "Notional", pos.Notional, 2000)
	approx(t, "Quantity", pos.Quantity, 0.04)
	approx(t, "Cash", pf.Cash, 8998)             // 10000 - 1000 margin - 2 fee
	approx(t, "UnrealizedPnL", pos.UnrealizedPnL, -2) // fee shows immediately
	approx(t, "trade fee", trade.Fee, 2)
	approx(t, "trade realized", trade.RealizedPnL, -2)
	if trade.Action != ActionOpen {
		t.Errorf("Action = %v, want %v", trade.Action, ActionOpen)
	}
	if trade.ID == "" {
		t.Error("trade ID empty")
	}
}

func TestOpenShortQuantityNegative(t *testing.T) {
	pf := New(10000)
	pos, _, err := pf.Open("ETH", Short, 1000, 3, 2000, 0.001, ExitPlan{}, t0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	approx(t, "Quantity", pos.Quantity, -1.5)
}

func TestOpenErrors(t *testing.T) {
	pf := New(100)

	if _, _, err := pf.Open("BTC", Long, 0, 1, 100, 0, ExitPlan{}, t0); !errors.Is(err, ErrInvalidSize) {
		t.Errorf("zero margin: %v, want ErrInvalidSize", err)
	}
	if _, _, err := pf.Open("BTC", Long, 50, 1, 0, 0, ExitPlan{}, t0); !errors.Is(err, ErrInvalidPrice) {
		t.Errorf("zero price: %v, want ErrInvalidPrice", err)
	}
	if _, _, err := pf.Open("BTC", Long, 1000, 1, 100, 0, ExitPlan{}, t0); !errors.Is(err, ErrInsufficientCash) {
		t.Errorf("over budget: %v, want ErrInsufficientCash", err)
	}

	if _, _, err := pf.Open("BTC", Long, 50, 1, 100, 0, ExitPlan{}, t0); err != nil {
		t.Fatalf("first open: %v", err)
	}
	if _, _, err := pf.Open("BTC", Long, 10, 1, 100, 0, ExitPlan{}, t0); !errors.Is(err, ErrPositionExists) {
		t.Errorf("duplicate open: %v, want ErrPositionExists", err)
	}
}

func TestMarkToMarket(t *testing.T) {
	pf := New(10000)
	pf.Open("BTC", Long, 1000, 2, 50000, 0.001, ExitPlan{}, t0)

	prices := market.PriceMap{"BTC": {Close: 51000}}
	pf.MarkToMarket(prices, t0)

	approx(t, "NAV", pf.NAV, 10038) // 8998 + 1000 + 40

	// Marking again with the same prices must not drift.
	pf.MarkToMarket(prices, t0)
	approx(t, "NAV after remark", pf.NAV, 10038)
	approx(t, "Cash untouched", pf.Cash, 8998)
}

func TestMarkToMarketMissingPriceUsesEntry(t *testing.T) {
	pf := New(10000)
	pf.Open("BTC", Long, 1000, 2, 50000, 0, ExitPlan{}, t0)

	pf.MarkToMarket(market.PriceMap{}, t0)

	pos := pf.Position("BTC")
	approx(t, "UnrealizedPnL", pos.UnrealizedPnL, 0)
	approx(t, "CurrentPrice", pos.CurrentPrice, 50000)
	approx(t, "NAV", pf.NAV, 10000)
}

func TestScaleInWeightedEntry(t *testing.T) {
	pf := New(10000)
	pf.Open("BTC", Long, 1000, 1, 100, 0, ExitPlan{}, t0)

	trade, err := pf.ScaleIn("BTC", 1200, 120, 0, t0)
	if err != nil {
		t.Fatalf("ScaleIn: %v", err)
	}

	pos := pf.Position("BTC")
	approx(t, "EntryPrice", pos.EntryPrice, 110) // 10@100 + 10@120
	approx(t, "Quantity", pos.Quantity, 20)
	approx(t, "Margin", pos.Margin, 2200)
	if trade.Action != ActionScale {
		t.Errorf("Action = %v, want %v", trade.Action, ActionScale)
	}
}

func TestScaleInErrors(t *testing.T) {
	pf := New(1000)
	if _, err := pf.ScaleIn("BTC", 100, 100, 0, t0); !errors.Is(err, ErrPositionNotFound) {
		t.Errorf("no position: %v, want ErrPositionNotFound", err)
	}

	pf.Open("BTC", Long, 900, 1, 100, 0, ExitPlan{}, t0)
	if _, err := pf.ScaleIn("BTC", 500, 100, 0, t0); !errors.Is(err, ErrInsufficientCash) {
		t.Errorf("over budget: %v, want ErrInsufficientCash", err)
	}
}

func TestReduce(t *testing.T) {
	pf := New(10000)
	pf.Open("BTC", Long, 1000, 1, 100, 0, ExitPlan{}, t0)

	trade, err := pf.Reduce("BTC", 0.3, 120, 0, t0)
	if err != nil {
		t.Fatalf("Reduce: %v", err)
	}

	pos := pf.Position("BTC")
	approx(t, "Quantity", pos.Quantity, 7)
	approx(t, "Margin", pos.Margin, 700)
	approx(t, "EntryPrice", pos.EntryPrice, 100)
	approx(t, "Cash", pf.Cash, 9360)            // 9000 + 300 margin + 60 pnl
	approx(t, "trade realized", trade.RealizedPnL, 60)
	if trade.Action != ActionPartialClose {
		t.Errorf("Action = %v, want %v", trade.Action, ActionPartialClose)
	}

	if _, err := pf.Reduce("BTC", 1.0, 120, 0, t0); !errors.Is(err, ErrInvalidFraction) {
		t.Errorf("full fraction: %v, want ErrInvalidFraction", err)
	}
}

func TestClose(t *testing.T) {
	pf := New(10000)
	pf.Open("BTC", Long, 1000, 2, 50000, 0.001, ExitPlan{}, t0)

	trade, err := pf.Close("BTC", 51000, 0.001, "stop_loss", t0)
	if err != nil {
		t.Fatalf("Close: %v", err)
	}

	// pnl 40, exit notional 0.04*51000 = 2040, fee 2.04
	approx(t, "Cash", pf.Cash, 10035.96)
	approx(t, "trade realized", trade.RealizedPnL, 37.96)
	if trade.Reason != "stop_loss" {
		t.Errorf("Reason = %q, want stop_loss", trade.Reason)
	}
	if pf.Position("BTC") != nil {
		t.Error("position still open after Close")
	}
	if len(pf.Positions) != 0 {
		t.Errorf("Positions len = %d, want 0", len(pf.Positions))
	}
}

func TestCloseShortProfit(t *testing.T) {
	pf := New(10000)
	pf.Open("ETH", Short, 1000, 1, 2000, 0, ExitPlan{}, t0)

	// qty -0.5, price falls to 1800: pnl = (1800-2000)*-0.5 = 100
	trade, err := pf.Close("ETH", 1800, 0, "", t0)
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	approx(t, "trade realized", trade.RealizedPnL, 100)
	approx(t, "Cash", pf.Cash, 10100)
}

func TestNAVIdentityAcrossLifecycle(t *testing.T) {
	// With zero fees, NAV must be conserved by every transition when the
	// mark price equals the fill price.
	pf := New(10000)
	prices := market.PriceMap{"BTC": {Close: 100}}

	pf.Open("BTC", Long, 2000, 2, 100, 0, ExitPlan{}, t0)
	pf.MarkToMarket(prices, t0)
	approx(t, "NAV after open", pf.NAV, 10000)

	pf.ScaleIn("BTC", 1000, 100, 0, t0)
	pf.MarkToMarket(prices, t0)
	approx(t, "NAV after scale", pf.NAV, 10000)

	pf.Reduce("BTC", 0.5, 100, 0, t0)
	pf.MarkToMarket(prices, t0)
	approx(t, "NAV after reduce", pf.NAV, 10000)

	pf.Close("BTC", 100, 0, "", t0)
	pf.MarkToMarket(prices, t0)
	approx(t, "NAV after close", pf.NAV, 10000)
}

func TestExitPlanMerge(t *testing.T) {
	plan := ExitPlan{TakeProfit: 55000, StopLoss: 48000, Invalidation: "close below support"}
	plan.Merge(ExitPlan{StopLoss: 50000})

	approx(t, "StopLoss", plan.StopLoss, 50000)
	approx(t, "TakeProfit", plan.TakeProfit, 55000)
	if plan.Invalidation != "close below support" {
		t.Errorf("Invalidation = %q, want preserved", plan.Invalidation)
	}
}

func TestUnrealizedReturn(t *testing.T) {
	pos := &Position{Margin: 1000, UnrealizedPnL: 250}
	approx(t, "UnrealizedReturn", pos.UnrealizedReturn(), 0.25)

	empty := &Position{}
	approx(t, "zero margin", empty.UnrealizedReturn(), 0)
}
