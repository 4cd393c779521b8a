package ledger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"crypto-paper-trader/internal/portfolio"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func fill(action portfolio.Action, symbol string, pnl, fee float64, minute int, reason string) portfolio.Trade {
	return portfolio.Trade{
		ID:          "id-" + symbol + string(action),
		Time:        t0.Add(time.Duration(minute) * time.Minute),
		Symbol:      symbol,
		Action:      action,
		Side:        portfolio.Long,
		Quantity:    1,
		Price:       100,
		Notional:    100,
		Margin:      100,
		Fee:         fee,
		RealizedPnL: pnl,
		Reason:      reason,
	}
}

func TestAppendOrderPreserved(t *testing.T) {
	l := New()
	l.Append(fill(portfolio.ActionOpen, "BTC", -1, 1, 0, ""))
	l.Append(fill(portfolio.ActionClose, "BTC", 50, 1, 10, "stop_loss"))

	recs := l.Records()
	if len(recs) != 2 || l.Len() != 2 {
		t.Fatalf("len = %d/%d, want 2", len(recs), l.Len())
	}
	if recs[0].Action != portfolio.ActionOpen || recs[1].Action != portfolio.ActionClose {
		t.Error("records out of append order")
	}

	// Records returns a copy; mutating it must not touch the ledger.
	recs[0].Symbol = "HACKED"
	if l.Records()[0].Symbol != "BTC" {
		t.Error("Records exposed internal slice")
	}
}

func TestWriteCSVHeaderAndRows(t *testing.T) {
	l := New()
	l.Append(fill(portfolio.ActionOpen, "BTC", -1, 1, 0, ""))

	var sb strings.Builder
	if err := l.WriteCSV(&sb); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(sb.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want header + 1 row", len(lines))
	}
	wantHeader := "time,symbol,action,side,qty,price,notional,margin,fee,realized_pnl,reason"
	if lines[0] != wantHeader {
		t.Errorf("header = %q, want %q", lines[0], wantHeader)
	}
	if !strings.HasPrefix(lines[1], "2025-06-01 12:00:00,BTC,open,long,") {
		t.Errorf("row = %q", lines[1])
	}
}

func TestAppendCSVFileHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.csv")

	if err := AppendCSVFile(path, []portfolio.Trade{fill(portfolio.ActionOpen, "BTC", -1, 1, 0, "")}); err != nil {
		t.Fatalf("first append: %v", err)
	}
	if err := AppendCSVFile(path, []portfolio.Trade{fill(portfolio.ActionClose, "BTC", 50, 1, 5, "")}); err != nil {
		t.Fatalf("second append: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	content := string(data)
	if strings.Count(content, "time,symbol") != 1 {
		t.Errorf("header written more than once:\n%s", content)
	}
	if lines := strings.Split(strings.TrimSpace(content), "\n"); len(lines) != 3 {
		t.Errorf("lines = %d, want 3", len(lines))
	}
}

func TestReadCSVFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.csv")
	orig := []portfolio.Trade{
		fill(portfolio.ActionOpen, "BTC", -2, 2, 0, ""),
		fill(portfolio.ActionClose, "BTC", 37.96, 2.04, 60, "take_profit"),
	}
	if err := AppendCSVFile(path, orig); err != nil {
		t.Fatal(err)
	}

	got, err := ReadCSVFile(path)
	if err != nil {
		t.Fatalf("ReadCSVFile: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[1].RealizedPnL != 37.96 || got[1].Reason != "take_profit" {
		t.Errorf("close row = %+v", got[1])
	}
	if !got[0].Time.Equal(orig[0].Time) {
		t.Errorf("time = %v, want %v", got[0].Time, orig[0].Time)
	}
}

func TestReconstruct(t *testing.T) {
	records := []portfolio.Trade{
		fill(portfolio.ActionOpen, "BTC", -1, 1, 0, ""),
		fill(portfolio.ActionScale, "BTC", -0.5, 0.5, 10, ""),
		fill(portfolio.ActionPartialClose, "BTC", 20, 0.4, 20, ""),
		fill(portfolio.ActionClose, "BTC", 30, 0.6, 30, "trailing_stop"),
		fill(portfolio.ActionOpen, "ETH", -1, 1, 5, ""),
		fill(portfolio.ActionClose, "ETH", -10, 1, 15, "stop_loss"),
		fill(portfolio.ActionOpen, "SOL", -1, 1, 40, ""), // still open, dropped
	}

	trips := Reconstruct(records)
	if len(trips) != 2 {
		t.Fatalf("trips = %d, want 2", len(trips))
	}

	btc := trips[0]
	if btc.Symbol != "BTC" || btc.Legs != 4 {
		t.Errorf("btc trip = %+v", btc)
	}
	if btc.RealizedPnL != 48.5 {
		t.Errorf("btc pnl = %v, want 48.5", btc.RealizedPnL)
	}
	if btc.Fees != 2.5 {
		t.Errorf("btc fees = %v, want 2.5", btc.Fees)
	}
	if btc.ExitReason != "trailing_stop" || !btc.Win() {
		t.Errorf("btc exit = %q win = %v", btc.ExitReason, btc.Win())
	}

	eth := trips[1]
	if eth.Symbol != "ETH" || eth.Win() {
		t.Errorf("eth trip = %+v", eth)
	}
}

func TestReconstructIgnoresOrphanClose(t *testing.T) {
	trips := Reconstruct([]portfolio.Trade{
		fill(portfolio.ActionClose, "BTC", 10, 1, 0, ""),
	})
	if len(trips) != 0 {
		t.Errorf("trips = %d, want 0", len(trips))
	}
}
