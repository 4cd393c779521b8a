package lifecycle

import (
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"crypto-paper-trader/internal/ledger"
	"crypto-paper-trader/internal/market"
	"crypto-paper-trader/internal/portfolio"
	"crypto-paper-trader/internal/risk"
	"crypto-paper-trader/internal/sizing"
)

var t0 = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

type fixture struct {
	ctrl *Controller
	pf   *portfolio.Portfolio
	lg   *ledger.Ledger
	rm   *risk.Manager
	day  int
}

func newFixture(cfg StrategyConfig) *fixture {
	lg := ledger.New()
	rm := risk.NewManager(risk.DefaultConfig(), zerolog.Nop())
	return &fixture{
		ctrl: NewController(cfg, 0.001, sizing.Default(), rm, lg, zerolog.Nop()),
		pf:   portfolio.New(10000),
		lg:   lg,
		rm:   rm,
	}
}

// step feeds one bar through the controller and marks the portfolio, the
// same per-bar sequence the engine runs.
func (f *fixture) step(b market.Bar) {
	b.Symbol = "BTC"
	b.Timestamp = t0.AddDate(0, 0, f.day)
	f.day++
	f.ctrl.OnBar(f.pf, b)
	f.pf.MarkToMarket(market.PriceMap{"BTC": market.QuoteFromBar(b)}, b.Timestamp)
}

// bullishBar is entry-eligible: strong trend score, RSI and price position
// inside the filter, 1% ATR.
func bullishBar(price float64) market.Bar {
	return market.Bar{
		Open: price, High: price * 1.01, Low: price * 0.99, Close: price,
		Indicators: market.Indicators{
			RSI14:           55,
			ATR14:           price * 0.01,
			MACDHist:        0.5,
			MACross:         1,
			Momentum12:      0.01,
			PricePosition20: 0.6,
		},
	}
}

func TestEntryOnEligibleBar(t *testing.T) {
	f := newFixture(DefaultStrategyConfig())
	f.step(bullishBar(100))

	pos := f.pf.Position("BTC")
	if pos == nil {
		t.Fatal("expected a position after eligible bar")
	}
	// 1% ATR bucket: 40% of 10000 NAV
	if math.Abs(pos.Margin-4000) > 1e-9 {
		t.Errorf("Margin = %v, want 4000", pos.Margin)
	}
	if f.ctrl.State("BTC") != StatePartial {
		t.Errorf("State = %v, want partial", f.ctrl.State("BTC"))
	}
	if !f.rm.Tracking("BTC") {
		t.Error("risk manager not tracking new position")
	}
	if f.lg.Len() != 1 {
		t.Errorf("ledger records = %d, want 1", f.lg.Len())
	}
}

func TestNoEntryWhenIneligible(t *testing.T) {
	f := newFixture(DefaultStrategyConfig())

	b := bullishBar(100)
	b.Indicators.RSI14 = 75 // overbought
	f.step(b)

	if f.pf.Position("BTC") != nil {
		t.Fatal("opened position on ineligible bar")
	}
	if f.ctrl.State("BTC") != StateFlat {
		t.Errorf("State = %v, want flat", f.ctrl.State("BTC"))
	}
}

func TestStopExitResetsState(t *testing.T) {
	f := newFixture(DefaultStrategyConfig())
	f.step(bullishBar(100)) // entry, stop at 100 - 2*1 = 98

	crash := bullishBar(95)
	crash.Low = 94
	crash.Indicators.MACDHist = -0.5 // not entry-eligible after the exit
	f.step(crash)

	if f.pf.Position("BTC") != nil {
		t.Fatal("position survived stop breach")
	}
	if f.ctrl.State("BTC") != StateFlat {
		t.Errorf("State = %v, want flat", f.ctrl.State("BTC"))
	}
	if f.rm.Tracking("BTC") {
		t.Error("risk manager still tracking closed position")
	}

	recs := f.lg.Records()
	last := recs[len(recs)-1]
	if last.Action != portfolio.ActionClose || last.Reason != "stop_loss" {
		t.Errorf("last record = %+v, want stop_loss close", last)
	}
	if last.Price != 98 {
		t.Errorf("fill price = %v, want stop level 98", last.Price)
	}
}

func TestReversalExitOnTrendBreak(t *testing.T) {
	f := newFixture(DefaultStrategyConfig())
	f.step(bullishBar(100))

	rev := bullishBar(100)
	rev.Indicators.MACDHist = -0.5
	rev.Indicators.Momentum12 = -0.02 // score falls to -0.2, label no longer up
	f.step(rev)

	if f.pf.Position("BTC") != nil {
		t.Fatal("position survived trend reversal")
	}
	recs := f.lg.Records()
	last := recs[len(recs)-1]
	if last.Action != portfolio.ActionClose || last.Reason != "" {
		t.Errorf("last record = %+v, want signal close with empty reason", last)
	}
}

func TestOverboughtExit(t *testing.T) {
	f := newFixture(DefaultStrategyConfig())
	f.step(bullishBar(100))

	hot := bullishBar(110)
	hot.Indicators.RSI14 = 85
	f.step(hot)

	if f.pf.Position("BTC") != nil {
		t.Fatal("position survived extreme overbought bar")
	}
}

func TestPartialTakeProfitFiresOnce(t *testing.T) {
	f := newFixture(DefaultStrategyConfig())
	f.step(bullishBar(100)) // margin 4000, qty 40

	up := bullishBar(125) // unrealized return = 25*40/4000 = 0.25
	up.Indicators.RSI14 = 65
	up.Indicators.PricePosition20 = 0.8
	up.Low = 123
	f.step(up)

	pos := f.pf.Position("BTC")
	if pos == nil {
		t.Fatal("position fully closed, want partial")
	}
	if math.Abs(pos.Quantity-28) > 1e-9 { // 40 * 0.7
		t.Errorf("Quantity = %v, want 28", pos.Quantity)
	}
	tpCount := f.lg.Len()

	// Same return level again: the first stage must not re-fire.
	f.step(up)
	if f.pf.Position("BTC") == nil {
		t.Fatal("position closed on repeat bar")
	}
	if f.lg.Len() != tpCount {
		t.Errorf("ledger grew from %d to %d, stage re-fired", tpCount, f.lg.Len())
	}
}

func TestScaleInAfterPullbackRecovery(t *testing.T) {
	f := newFixture(DefaultStrategyConfig())
	f.step(bullishBar(100)) // entry 40%

	// Pullback bar: RSI in zone, price position low, MACD still positive.
	pull := bullishBar(99)
	pull.Indicators.RSI14 = 50
	pull.Indicators.PricePosition20 = 0.4
	f.step(pull)

	marginBefore := f.pf.Position("BTC").Margin
	navBefore := f.pf.NAV

	// Recovery bar confirms: RSI and price position back up, MACD holding.
	rec := bullishBar(102)
	rec.Indicators.RSI14 = 60
	rec.Indicators.PricePosition20 = 0.6
	f.step(rec)

	pos := f.pf.Position("BTC")
	wantAdd := 0.30 * navBefore
	if math.Abs(pos.Margin-(marginBefore+wantAdd)) > 1 {
		t.Errorf("Margin = %v, want about %v", pos.Margin, marginBefore+wantAdd)
	}

	recs := f.lg.Records()
	last := recs[len(recs)-1]
	if last.Action != portfolio.ActionScale {
		t.Errorf("last record = %v, want scale", last.Action)
	}
}

func TestScaleInRefreshesTrackedStop(t *testing.T) {
	// Trailing off so any stop movement comes from the scale-in alone.
	lg := ledger.New()
	rm := risk.NewManager(risk.Config{StopATRMult: 2, TrailingEnabled: false}, zerolog.Nop())
	f := &fixture{
		ctrl: NewController(DefaultStrategyConfig(), 0.001, sizing.Default(), rm, lg, zerolog.Nop()),
		pf:   portfolio.New(10000),
		lg:   lg,
		rm:   rm,
	}

	f.step(bullishBar(100)) // entry at 100, ATR 1: stop 98
	pull := bullishBar(99)
	pull.Indicators.RSI14 = 50
	pull.Indicators.PricePosition20 = 0.4
	f.step(pull)

	rec := bullishBar(102)
	rec.Indicators.RSI14 = 60
	rec.Indicators.PricePosition20 = 0.6
	f.step(rec)

	pos := f.pf.Position("BTC")
	if pos == nil || pos.EntryPrice <= 100 {
		t.Fatalf("expected scaled position with lifted entry, got %+v", pos)
	}
	stop, ok := rm.StopLevel("BTC")
	if !ok {
		t.Fatal("no tracked stop after scale-in")
	}
	want := pos.EntryPrice - 2*rec.Indicators.ATR14
	if math.Abs(stop-want) > 1e-9 {
		t.Errorf("stop = %v, want %v from the weighted entry", stop, want)
	}
}

func TestScaleInRequiresPriorPullback(t *testing.T) {
	f := newFixture(DefaultStrategyConfig())
	f.step(bullishBar(100))

	// Recovery-shaped bar without a preceding pullback bar: no scale.
	rec := bullishBar(102)
	rec.Indicators.RSI14 = 60
	rec.Indicators.PricePosition20 = 0.6
	f.step(rec)

	if f.lg.Len() != 1 {
		t.Errorf("ledger records = %d, want entry only", f.lg.Len())
	}
}

func TestCloseAll(t *testing.T) {
	f := newFixture(DefaultStrategyConfig())
	f.step(bullishBar(100))

	f.ctrl.CloseAll(f.pf, market.PriceMap{"BTC": {Close: 105}}, t0.AddDate(0, 0, 10))

	if len(f.pf.Positions) != 0 {
		t.Fatal("positions remain after CloseAll")
	}
	if f.ctrl.State("BTC") != StateFlat {
		t.Errorf("State = %v, want flat", f.ctrl.State("BTC"))
	}
	recs := f.lg.Records()
	if recs[len(recs)-1].Price != 105 {
		t.Errorf("close price = %v, want 105", recs[len(recs)-1].Price)
	}
}
