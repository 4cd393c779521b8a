package sizing

import (
	"math"
	"testing"
)

func TestDefaultFractions(t *testing.T) {
	s := Default()

	tests := []struct {
		name  string
		atr   float64
		price float64
		want  Fractions
	}{
		{"calm market", 100, 10000, Fractions{Entry: 0.40, Add: 0.30}},          // 1.0%
		{"at first bound", 150, 10000, Fractions{Entry: 0.40, Add: 0.30}},       // 1.5%
		{"medium volatility", 200, 10000, Fractions{Entry: 0.25, Add: 0.20}},    // 2.0%
		{"at second bound", 300, 10000, Fractions{Entry: 0.25, Add: 0.20}},      // 3.0%
		{"high volatility", 500, 10000, Fractions{Entry: 0.15, Add: 0.10}},      // 5.0%
		{"missing atr", math.NaN(), 10000, Fractions{Entry: 0.20, Add: 0.15}},
		{"zero atr", 0, 10000, Fractions{Entry: 0.20, Add: 0.15}},
		{"zero price", 100, 0, Fractions{Entry: 0.20, Add: 0.15}},
		{"infinite price", 100, math.Inf(1), Fractions{Entry: 0.20, Add: 0.15}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Fractions(tt.atr, tt.price)
			if got != tt.want {
				t.Errorf("Fractions(%v, %v) = %+v, want %+v", tt.atr, tt.price, got, tt.want)
			}
		})
	}
}

func TestCustomBuckets(t *testing.T) {
	s := New(
		[]Bucket{{MaxATRPct: 0.02, Fractions: Fractions{Entry: 0.5, Add: 0.25}}},
		Fractions{Entry: 0.1, Add: 0.05},
		Fractions{Entry: 0.2, Add: 0.1},
	)

	if got := s.Fractions(100, 10000); got.Entry != 0.5 {
		t.Errorf("in-bucket Entry = %v, want 0.5", got.Entry)
	}
	if got := s.Fractions(500, 10000); got.Entry != 0.1 {
		t.Errorf("overflow Entry = %v, want 0.1", got.Entry)
	}
}
