package ledger

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"crypto-paper-trader/internal/portfolio"
)

// ReadCSVFile loads a trade log written by AppendCSVFile or WriteCSV.
// Column order follows the header row, so logs from older column layouts
// still parse as long as the names match.
func ReadCSVFile(path string) ([]portfolio.Trade, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trade log: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read trade log %s: %w", path, err)
	}
	if len(rows) < 1 {
		return nil, nil
	}

	col := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		col[name] = i
	}

	trades := make([]portfolio.Trade, 0, len(rows)-1)
	for n, rec := range rows[1:] {
		t, err := parseRow(rec, col)
		if err != nil {
			return nil, fmt.Errorf("trade log %s row %d: %w", path, n+2, err)
		}
		trades = append(trades, t)
	}
	return trades, nil
}

func parseRow(rec []string, col map[string]int) (portfolio.Trade, error) {
	get := func(name string) string {
		if i, ok := col[name]; ok && i < len(rec) {
			return rec[i]
		}
		return ""
	}
	num := func(name string) (float64, error) {
		s := get(name)
		if s == "" {
			return 0, nil
		}
		return strconv.ParseFloat(s, 64)
	}

	ts, err := time.Parse("2006-01-02 15:04:05", get("time"))
	if err != nil {
		return portfolio.Trade{}, fmt.Errorf("parse time: %w", err)
	}

	t := portfolio.Trade{
		Time:   ts.UTC(),
		Symbol: get("symbol"),
		Action: portfolio.Action(get("action")),
		Side:   portfolio.Side(get("side")),
		Reason: get("reason"),
	}
	if t.Quantity, err = num("qty"); err != nil {
		return portfolio.Trade{}, fmt.Errorf("parse qty: %w", err)
	}
	if t.Price, err = num("price"); err != nil {
		return portfolio.Trade{}, fmt.Errorf("parse price: %w", err)
	}
	if t.Notional, err = num("notional"); err != nil {
		return portfolio.Trade{}, fmt.Errorf("parse notional: %w", err)
	}
	if t.Margin, err = num("margin"); err != nil {
		return portfolio.Trade{}, fmt.Errorf("parse margin: %w", err)
	}
	if t.Fee, err = num("fee"); err != nil {
		return portfolio.Trade{}, fmt.Errorf("parse fee: %w", err)
	}
	if t.RealizedPnL, err = num("realized_pnl"); err != nil {
		return portfolio.Trade{}, fmt.Errorf("parse realized_pnl: %w", err)
	}
	return t, nil
}
