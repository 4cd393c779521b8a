// Package market defines the bar and price-snapshot types consumed by the
// simulation engine. Bars arrive from an external feed with their indicator
// fields already computed; nothing in this package fetches data.
package market

import (
	"math"
	"time"
)

// Bar is one OHLCV candle for a single instrument, plus the indicator values
// derived from it upstream. Bars are immutable and ordered per symbol.
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Symbol    string    `json:"symbol"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`

	Indicators Indicators `json:"indicators"`
}

// Indicators holds the precomputed indicator fields attached to a bar.
// A NaN value means the indicator was not available for that bar.
type Indicators struct {
	RSI14           float64 `json:"rsi_14"`
	ATR14           float64 `json:"atr_14"`
	MACDHist        float64 `json:"macd_hist"`
	MACross         int     `json:"ma_cross"`     // +1 when MA20 > MA60, -1 below, 0 unknown
	Momentum12      float64 `json:"momentum_12"`  // 12-bar rate of change
	PricePosition20 float64 `json:"price_position_20"`
	BollingerPos20  float64 `json:"bb_pos_20"`
	FundingRate     float64 `json:"funding_rate"`
}

// Quote is the per-instrument mark input for one bar or cycle.
type Quote struct {
	Close float64 `json:"close"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
}

// PriceMap maps instrument symbols to their latest quote.
type PriceMap map[string]Quote

// Valid reports whether an indicator value is present and usable.
func Valid(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// QuoteFromBar builds the mark input for a bar.
func QuoteFromBar(b Bar) Quote {
	return Quote{Close: b.Close, High: b.High, Low: b.Low}
}
