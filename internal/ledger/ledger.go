// Package ledger is the append-only sink of realized trade fills. Records
// are never reordered or mutated after being written; downstream analysis
// reconstructs per-trade outcomes by FIFO pairing within an instrument.
package ledger

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"crypto-paper-trader/internal/portfolio"
)

// csvHeader is the column set of the trade log file, kept stable so external
// consumers can parse historical logs.
var csvHeader = []string{
	"time", "symbol", "action", "side", "qty", "price",
	"notional", "margin", "fee", "realized_pnl", "reason",
}

// Ledger accumulates trade records in append order.
type Ledger struct {
	records []portfolio.Trade
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{}
}

// Append adds one fill record. Records are immutable once appended.
func (l *Ledger) Append(t portfolio.Trade) {
	l.records = append(l.records, t)
}

// Len returns the number of records appended so far.
func (l *Ledger) Len() int {
	return len(l.records)
}

// Records returns a copy of all records in append order.
func (l *Ledger) Records() []portfolio.Trade {
	out := make([]portfolio.Trade, len(l.records))
	copy(out, l.records)
	return out
}

// WriteCSV writes the full ledger, header included, to w.
func (l *Ledger) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write trade log header: %w", err)
	}
	for _, t := range l.records {
		if err := cw.Write(row(t)); err != nil {
			return fmt.Errorf("write trade log row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// AppendCSVFile appends the given records to the trade log file, writing the
// header only when the file does not exist yet.
func AppendCSVFile(path string, trades []portfolio.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	_, statErr := os.Stat(path)
	writeHeader := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open trade log: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if writeHeader {
		if err := cw.Write(csvHeader); err != nil {
			return fmt.Errorf("write trade log header: %w", err)
		}
	}
	for _, t := range trades {
		if err := cw.Write(row(t)); err != nil {
			return fmt.Errorf("write trade log row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func row(t portfolio.Trade) []string {
	return []string{
		t.Time.UTC().Format("2006-01-02 15:04:05"),
		t.Symbol,
		string(t.Action),
		string(t.Side),
		strconv.FormatFloat(t.Quantity, 'f', -1, 64),
		strconv.FormatFloat(t.Price, 'f', -1, 64),
		strconv.FormatFloat(t.Notional, 'f', -1, 64),
		strconv.FormatFloat(t.Margin, 'f', -1, 64),
		strconv.FormatFloat(t.Fee, 'f', -1, 64),
		strconv.FormatFloat(t.RealizedPnL, 'f', -1, 64),
		t.Reason,
	}
}
