package store

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"crypto-paper-trader/internal/portfolio"
)

// AppendNAVHistory appends one portfolio snapshot row to a CSV file,
// writing the header when the file is new. One row per completed cycle
// gives a coarse equity curve for live accounts.
func AppendNAVHistory(path string, ts time.Time, pf *portfolio.Portfolio) error {
	_, statErr := os.Stat(path)
	writeHeader := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open nav history: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write([]string{"time", "nav", "cash", "positions"}); err != nil {
			return fmt.Errorf("write nav history header: %w", err)
		}
	}
	row := []string{
		ts.UTC().Format("2006-01-02 15:04:05"),
		strconv.FormatFloat(pf.NAV, 'f', -1, 64),
		strconv.FormatFloat(pf.Cash, 'f', -1, 64),
		strconv.Itoa(len(pf.Positions)),
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("write nav history row: %w", err)
	}
	w.Flush()
	return w.Error()
}

// NAVSample is one row of the history file.
type NAVSample struct {
	Timestamp time.Time
	NAV       float64
}

// ReadNAVHistory loads the per-cycle NAV samples written by
// AppendNAVHistory, in file order.
func ReadNAVHistory(path string) ([]NAVSample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open nav history: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read nav history: %w", err)
	}
	if len(rows) < 2 {
		return nil, nil
	}

	samples := make([]NAVSample, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if len(row) < 2 {
			return nil, fmt.Errorf("nav history row %d: expected at least 2 fields, got %d", i+2, len(row))
		}
		ts, err := time.Parse("2006-01-02 15:04:05", row[0])
		if err != nil {
			return nil, fmt.Errorf("nav history row %d: %w", i+2, err)
		}
		nav, err := strconv.ParseFloat(row[1], 64)
		if err != nil {
			return nil, fmt.Errorf("nav history row %d: %w", i+2, err)
		}
		samples = append(samples, NAVSample{Timestamp: ts.UTC(), NAV: nav})
	}
	return samples, nil
}
