package main

import (
	"flag"
	"fmt"
	"os"
	"sort"

	"crypto-paper-trader/internal/analytics"
	"crypto-paper-trader/internal/ledger"
	"crypto-paper-trader/internal/store"
)

type symbolStats struct {
	Symbol      string
	Trips       int
	Wins        int
	Losses      int
	TotalPnL    float64
	TotalFees   float64
	WinRate     float64
	AvgPnL      float64
	GrossWins   float64
	GrossLosses float64
}

func main() {
	tradesPath := flag.String("trades", "data/trades.csv", "path to the trade log CSV")
	navPath := flag.String("nav", "", "optional NAV history CSV for equity-curve metrics")
	barsPerYear := flag.Float64("bars-per-year", 365, "samples per year for annualization")
	flag.Parse()

	records, err := ledger.ReadCSVFile(*tradesPath)
	if err != nil {
		fmt.Printf("failed to read trade log: %v\n", err)
		os.Exit(1)
	}
	if len(records) == 0 {
		fmt.Println("trade log is empty")
		return
	}

	trips := ledger.Reconstruct(records)

	if *navPath != "" {
		printNAVMetrics(*navPath, *barsPerYear, trips)
	}

	if len(trips) == 0 {
		fmt.Printf("%d fills, no completed round trips yet\n", len(records))
		return
	}

	stats := make(map[string]*symbolStats)
	for _, trip := range trips {
		s, ok := stats[trip.Symbol]
		if !ok {
			s = &symbolStats{Symbol: trip.Symbol}
			stats[trip.Symbol] = s
		}
		s.Trips++
		s.TotalPnL += trip.RealizedPnL
		s.TotalFees += trip.Fees
		if trip.Win() {
			s.Wins++
			s.GrossWins += trip.RealizedPnL
		} else {
			s.Losses++
			s.GrossLosses += -trip.RealizedPnL
		}
	}

	var ordered []*symbolStats
	for _, s := range stats {
		s.WinRate = float64(s.Wins) / float64(s.Trips)
		s.AvgPnL = s.TotalPnL / float64(s.Trips)
		ordered = append(ordered, s)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].TotalPnL > ordered[j].TotalPnL
	})

	fmt.Println("📊 TRADE LOG ANALYSIS")
	fmt.Printf("   fills: %d   round trips: %d\n\n", len(records), len(trips))

	fmt.Printf("%-12s %6s %6s %8s %12s %12s %10s\n",
		"SYMBOL", "TRIPS", "WINS", "WIN%", "PNL", "AVG PNL", "FEES")
	var total symbolStats
	for _, s := range ordered {
		fmt.Printf("%-12s %6d %6d %7.1f%% %12.2f %12.2f %10.2f\n",
			s.Symbol, s.Trips, s.Wins, s.WinRate*100, s.TotalPnL, s.AvgPnL, s.TotalFees)
		total.Trips += s.Trips
		total.Wins += s.Wins
		total.TotalPnL += s.TotalPnL
		total.TotalFees += s.TotalFees
		total.GrossWins += s.GrossWins
		total.GrossLosses += s.GrossLosses
	}

	fmt.Println()
	fmt.Printf("TOTAL: %d trips, %.1f%% win rate, PnL %.2f, fees %.2f\n",
		total.Trips, float64(total.Wins)/float64(total.Trips)*100, total.TotalPnL, total.TotalFees)
	if total.GrossLosses > 0 {
		fmt.Printf("profit factor: %.2f\n", total.GrossWins/total.GrossLosses)
	} else if total.GrossWins > 0 {
		fmt.Println("profit factor: inf (no losing trips)")
	}
}

func printNAVMetrics(path string, barsPerYear float64, trips []ledger.RoundTrip) {
	samples, err := store.ReadNAVHistory(path)
	if err != nil {
		fmt.Printf("failed to read nav history: %v\n", err)
		os.Exit(1)
	}
	if len(samples) < 2 {
		fmt.Println("nav history too short for equity-curve metrics")
		return
	}

	equity := make([]float64, len(samples))
	for i, s := range samples {
		equity[i] = s.NAV
	}
	m := analytics.Analyze(equity, barsPerYear, trips)

	fmt.Println("📉 EQUITY CURVE")
	fmt.Printf("   samples: %d   %s → %s\n",
		len(samples),
		samples[0].Timestamp.Format("2006-01-02"),
		samples[len(samples)-1].Timestamp.Format("2006-01-02"))
	fmt.Printf("   total return: %.2f%%   annualized: %.2f%%   vol: %.2f%%\n",
		m.TotalReturn*100, m.AnnualizedReturn*100, m.AnnualizedVol*100)
	fmt.Printf("   sharpe: %.2f   sortino: %.2f   max drawdown: %.2f%%   calmar: %.2f\n",
		m.Sharpe, m.Sortino, m.MaxDrawdown*100, m.Calmar)
	fmt.Println()
}
