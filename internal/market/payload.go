package market

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Payload is the market snapshot consumed by one paper-trading cycle. It
// mirrors the upstream inference output: one entry per tracked coin with the
// latest bar's close/high/low.
type Payload struct {
	AsOf  time.Time     `json:"as_of"`
	Coins []CoinPayload `json:"coins"`
}

// CoinPayload carries the market data block for one instrument.
type CoinPayload struct {
	Symbol     string       `json:"symbol"`
	MarketData CoinSnapshot `json:"market_data"`
}

// CoinSnapshot is the raw per-coin market block. High and low are optional;
// missing values fall back to the close when converted to a Quote.
type CoinSnapshot struct {
	Close *float64 `json:"close"`
	High  *float64 `json:"high"`
	Low   *float64 `json:"low"`
}

// LoadPayload reads a market payload file from disk.
func LoadPayload(path string) (*Payload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read market payload: %w", err)
	}
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse market payload %s: %w", path, err)
	}
	return &p, nil
}

// Prices converts the payload to a PriceMap, skipping coins without a close.
func (p *Payload) Prices() PriceMap {
	prices := make(PriceMap, len(p.Coins))
	for _, coin := range p.Coins {
		md := coin.MarketData
		if coin.Symbol == "" || md.Close == nil {
			continue
		}
		q := Quote{Close: *md.Close, High: *md.Close, Low: *md.Close}
		if md.High != nil {
			q.High = *md.High
		}
		if md.Low != nil {
			q.Low = *md.Low
		}
		prices[coin.Symbol] = q
	}
	return prices
}
