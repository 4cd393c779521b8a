package market

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"time"
)

// LoadCSV reads a signal CSV file into a bar series for one instrument.
// The file must carry a header row; recognized columns are date, open, high,
// low, close, volume, rsi_14, atr_14, macd_hist, ma_cross, momentum_12,
// price_position_20, bb_pos_20 and funding_rate. Missing indicator columns
// are filled with NaN. Rows are returned sorted by timestamp.
func LoadCSV(path, symbol string) ([]Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open signal file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read signal file %s: %w", path, err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("signal file %s has no data rows", path)
	}

	col := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		col[name] = i
	}
	if _, ok := col["date"]; !ok {
		return nil, fmt.Errorf("signal file %s has no date column", path)
	}
	if _, ok := col["close"]; !ok {
		return nil, fmt.Errorf("signal file %s has no close column", path)
	}

	bars := make([]Bar, 0, len(rows)-1)
	for _, row := range rows[1:] {
		ts, err := parseTime(row[col["date"]])
		if err != nil {
			return nil, fmt.Errorf("signal file %s: %w", path, err)
		}

		b := Bar{
			Timestamp: ts,
			Symbol:    symbol,
			Open:      field(row, col, "open"),
			High:      field(row, col, "high"),
			Low:       field(row, col, "low"),
			Close:     field(row, col, "close"),
			Volume:    field(row, col, "volume"),
			Indicators: Indicators{
				RSI14:           field(row, col, "rsi_14"),
				ATR14:           field(row, col, "atr_14"),
				MACDHist:        field(row, col, "macd_hist"),
				Momentum12:      field(row, col, "momentum_12"),
				PricePosition20: field(row, col, "price_position_20"),
				BollingerPos20:  field(row, col, "bb_pos_20"),
				FundingRate:     field(row, col, "funding_rate"),
			},
		}
		if cross := field(row, col, "ma_cross"); Valid(cross) {
			if cross > 0 {
				b.Indicators.MACross = 1
			} else if cross < 0 {
				b.Indicators.MACross = -1
			}
		}
		bars = append(bars, b)
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
	return bars, nil
}

func field(row []string, col map[string]int, name string) float64 {
	i, ok := col[name]
	if !ok || i >= len(row) || row[i] == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(row[i], 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}
