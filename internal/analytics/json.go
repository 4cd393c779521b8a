package analytics

import (
	"encoding/json"
	"math"
)

// MarshalJSON encodes NaN sentinels as null; encoding/json rejects NaN
// outright, and null round-trips back to NaN via UnmarshalJSON.
func (m Metrics) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonMetrics{
		TotalReturn:      nanToNil(m.TotalReturn),
		AnnualizedReturn: nanToNil(m.AnnualizedReturn),
		AnnualizedVol:    nanToNil(m.AnnualizedVol),
		Sharpe:           nanToNil(m.Sharpe),
		Sortino:          nanToNil(m.Sortino),
		MaxDrawdown:      nanToNil(m.MaxDrawdown),
		Calmar:           nanToNil(m.Calmar),
		WinRate:          nanToNil(m.WinRate),
		ProfitFactor:     nanToNil(m.ProfitFactor),
		Trades:           m.Trades,
		TotalFees:        m.TotalFees,
	})
}

func (m *Metrics) UnmarshalJSON(data []byte) error {
	var jm jsonMetrics
	if err := json.Unmarshal(data, &jm); err != nil {
		return err
	}
	m.TotalReturn = nilToNaN(jm.TotalReturn)
	m.AnnualizedReturn = nilToNaN(jm.AnnualizedReturn)
	m.AnnualizedVol = nilToNaN(jm.AnnualizedVol)
	m.Sharpe = nilToNaN(jm.Sharpe)
	m.Sortino = nilToNaN(jm.Sortino)
	m.MaxDrawdown = nilToNaN(jm.MaxDrawdown)
	m.Calmar = nilToNaN(jm.Calmar)
	m.WinRate = nilToNaN(jm.WinRate)
	m.ProfitFactor = nilToNaN(jm.ProfitFactor)
	m.Trades = jm.Trades
	m.TotalFees = jm.TotalFees
	return nil
}

type jsonMetrics struct {
	TotalReturn      *float64 `json:"total_return"`
	AnnualizedReturn *float64 `json:"annualized_return"`
	AnnualizedVol    *float64 `json:"annualized_vol"`
	Sharpe           *float64 `json:"sharpe"`
	Sortino          *float64 `json:"sortino"`
	MaxDrawdown      *float64 `json:"max_drawdown"`
	Calmar           *float64 `json:"calmar"`
	WinRate          *float64 `json:"win_rate"`
	ProfitFactor     *float64 `json:"profit_factor"`
	Trades           int      `json:"trades"`
	TotalFees        float64  `json:"total_fees"`
}

func nanToNil(v float64) *float64 {
	if v != v {
		return nil
	}
	return &v
}

func nilToNaN(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}
