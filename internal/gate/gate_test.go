package gate

import (
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"crypto-paper-trader/internal/portfolio"
)

func newTestGate() *Gate {
	return New(DefaultLimits(), zerolog.Nop())
}

func fundedPortfolio(positions ...string) *portfolio.Portfolio {
	pf := portfolio.New(10000)
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for _, sym := range positions {
		pf.Open(sym, portfolio.Long, 500, 1, 100, 0, portfolio.ExitPlan{}, now)
	}
	return pf
}

func TestLeverageRejected(t *testing.T) {
	g := newTestGate()
	res := g.Validate(fundedPortfolio(), []ProposedAction{
		{Symbol: "BTC", Action: OpenLong, Leverage: 5, PositionSizeUSD: 1000},
	})

	if len(res.Approved) != 0 {
		t.Errorf("approved = %d, want 0", len(res.Approved))
	}
	if len(res.Rejected) != 1 || !strings.Contains(res.Rejected[0].Reason, "leverage") {
		t.Errorf("rejected = %+v, want leverage rejection", res.Rejected)
	}
}

func TestAggregateExposureRejected(t *testing.T) {
	g := newTestGate()
	// NAV 10000, limit 50%: 3000 + 2500 pass, the next 2000 breaks the cap.
	res := g.Validate(fundedPortfolio(), []ProposedAction{
		{Symbol: "BTC", Action: OpenLong, Leverage: 2, PositionSizeUSD: 3000},
		{Symbol: "ETH", Action: OpenLong, Leverage: 2, PositionSizeUSD: 1500},
		{Symbol: "SOL", Action: OpenLong, Leverage: 2, PositionSizeUSD: 2000},
	})

	if len(res.Approved) != 2 {
		t.Fatalf("approved = %d, want 2", len(res.Approved))
	}
	if len(res.Rejected) != 1 || res.Rejected[0].Action.Symbol != "SOL" {
		t.Errorf("rejected = %+v, want SOL exposure rejection", res.Rejected)
	}
	if !strings.Contains(res.Rejected[0].Reason, "exposure") {
		t.Errorf("reason = %q", res.Rejected[0].Reason)
	}
}

func TestPositionCountCapCountsExisting(t *testing.T) {
	g := newTestGate()
	pf := fundedPortfolio("BTC", "ETH") // two existing, limit 3

	res := g.Validate(pf, []ProposedAction{
		{Symbol: "SOL", Action: OpenLong, Leverage: 1, PositionSizeUSD: 1000},
		{Symbol: "DOGE", Action: OpenLong, Leverage: 1, PositionSizeUSD: 1000},
	})

	if len(res.Approved) != 1 || res.Approved[0].Symbol != "SOL" {
		t.Errorf("approved = %+v, want SOL only", res.Approved)
	}
	if len(res.Rejected) != 1 || !strings.Contains(res.Rejected[0].Reason, "position limit") {
		t.Errorf("rejected = %+v, want position limit rejection", res.Rejected)
	}
}

func TestScaleIntoExistingDoesNotConsumeSlot(t *testing.T) {
	g := newTestGate()
	pf := fundedPortfolio("BTC", "ETH", "SOL") // at the cap

	res := g.Validate(pf, []ProposedAction{
		{Symbol: "BTC", Action: OpenLong, Leverage: 1, PositionSizeUSD: 1000},
	})

	if len(res.Approved) != 1 {
		t.Errorf("approved = %d, want 1 (scale into held symbol)", len(res.Approved))
	}
}

func TestMalformedActionsWarnAndProceed(t *testing.T) {
	g := newTestGate()
	res := g.Validate(fundedPortfolio(), []ProposedAction{
		{Symbol: "BTC", Action: "yolo", PositionSizeUSD: 1000},
		{Symbol: "ETH", Action: OpenLong, Leverage: 1, PositionSizeUSD: -5},
		{Symbol: "SOL", Action: OpenLong, Leverage: 1, PositionSizeUSD: 1000},
	})

	if len(res.Approved) != 1 || res.Approved[0].Symbol != "SOL" {
		t.Errorf("approved = %+v, want SOL only", res.Approved)
	}
	if len(res.Rejected) != 0 {
		t.Errorf("rejected = %+v, want none (malformed is a warning)", res.Rejected)
	}
	if len(res.Warnings) != 2 {
		t.Errorf("warnings = %v, want 2", res.Warnings)
	}
}

func TestMixedBatchSiblingsUnaffected(t *testing.T) {
	g := newTestGate()
	pf := fundedPortfolio("BTC")

	res := g.Validate(pf, []ProposedAction{
		{Symbol: "ETH", Action: OpenLong, Leverage: 10, PositionSizeUSD: 1000}, // leverage reject
		{Symbol: "BTC", Action: ClosePosition},
		{Symbol: "SOL", Action: OpenLong, Leverage: 2, PositionSizeUSD: 2000},
		{Symbol: "BTC", Action: Hold},
	})

	if len(res.Approved) != 3 {
		t.Fatalf("approved = %d, want 3", len(res.Approved))
	}
	if len(res.Rejected) != 1 || res.Rejected[0].Action.Symbol != "ETH" {
		t.Errorf("rejected = %+v", res.Rejected)
	}
}

func TestCloseAndHoldNeverGated(t *testing.T) {
	g := newTestGate()
	pf := fundedPortfolio("BTC", "ETH", "SOL")

	res := g.Validate(pf, []ProposedAction{
		{Symbol: "BTC", Action: ClosePosition},
		{Symbol: "ETH", Action: AdjustStop, ExitPlan: &portfolio.ExitPlan{StopLoss: 90}},
		{Symbol: "SOL", Action: Hold},
	})

	if len(res.Approved) != 3 || len(res.Rejected) != 0 {
		t.Errorf("approved = %d rejected = %d, want 3/0", len(res.Approved), len(res.Rejected))
	}
}
