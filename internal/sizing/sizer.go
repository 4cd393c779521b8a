// Package sizing maps instantaneous volatility to entry and scale-in size
// fractions. Lower volatility allows a larger position for roughly the same
// dollar-volatility budget per trade.
package sizing

import "crypto-paper-trader/internal/market"

// Fractions is the pair of portfolio fractions a bucket allows: the initial
// entry size and the increment used for each scale-in.
type Fractions struct {
	Entry float64
	Add   float64
}

// Bucket is one row of the volatility table: any ATR%-of-price at or below
// MaxATRPct falls into this bucket.
type Bucket struct {
	MaxATRPct float64
	Fractions Fractions
}

// Sizer selects size fractions by ATR-as-percent-of-price bucket. Buckets
// must be ordered by ascending MaxATRPct with non-increasing fractions.
type Sizer struct {
	buckets  []Bucket
	overflow Fractions // applied above the last bucket bound
	fallback Fractions // applied when ATR or price is unusable
}

// New builds a sizer from an ordered bucket table.
func New(buckets []Bucket, overflow, fallback Fractions) *Sizer {
	return &Sizer{buckets: buckets, overflow: overflow, fallback: fallback}
}

// Default matches the production volatility table: calm markets enter at 40%
// and add 30%, choppy markets enter at 15% and add 10%.
func Default() *Sizer {
	return New(
		[]Bucket{
			{MaxATRPct: 0.015, Fractions: Fractions{Entry: 0.40, Add: 0.30}},
			{MaxATRPct: 0.03, Fractions: Fractions{Entry: 0.25, Add: 0.20}},
		},
		Fractions{Entry: 0.15, Add: 0.10},
		Fractions{Entry: 0.20, Add: 0.15},
	)
}

// Fractions returns the entry and add fractions for the given ATR and price.
// Unusable inputs (missing, zero or negative) return the safe fallback pair.
func (s *Sizer) Fractions(atr, price float64) Fractions {
	if !market.Valid(atr) || !market.Valid(price) || atr <= 0 || price <= 0 {
		return s.fallback
	}

	atrPct := atr / price
	for _, b := range s.buckets {
		if atrPct <= b.MaxATRPct {
			return b.Fractions
		}
	}
	return s.overflow
}
