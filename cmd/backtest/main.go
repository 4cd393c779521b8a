package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"crypto-paper-trader/internal/backtest"
	"crypto-paper-trader/internal/market"
	"crypto-paper-trader/internal/store"
)

func main() {
	dataDir := flag.String("data", "data/bars", "directory of per-symbol bar CSV files (<SYMBOL>.csv)")
	symbols := flag.String("symbols", "", "comma-separated symbols to include, empty for all files in -data")
	cash := flag.Float64("cash", 10000, "initial cash")
	fee := flag.Float64("fee", 0.001, "taker fee rate")
	barsPerYear := flag.Float64("bars-per-year", 365, "bars per year for annualization")
	out := flag.String("out", "", "optional path for the full result JSON")
	archive := flag.Bool("archive", false, "archive the run to Postgres (POSTGRES_DSN)")
	label := flag.String("label", "backtest", "label for the archived run")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	_ = godotenv.Load()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).With().Timestamp().Logger()

	series, err := loadSeries(*dataDir, *symbols)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load bar data")
	}

	cfg := backtest.DefaultConfig()
	cfg.InitialCash = *cash
	cfg.FeeRate = *fee
	cfg.BarsPerYear = *barsPerYear

	engine := backtest.NewEngine(cfg, logger)
	res, err := engine.Run(series)
	if err != nil {
		logger.Fatal().Err(err).Msg("backtest failed")
	}

	printSummary(res, cfg.InitialCash)

	if *out != "" {
		if err := writeResult(*out, res); err != nil {
			logger.Fatal().Err(err).Msg("failed to write result file")
		}
		fmt.Printf("result written to %s\n", *out)
	}

	if *archive {
		if err := archiveRun(logger, *label, cfg.InitialCash, res); err != nil {
			logger.Fatal().Err(err).Msg("failed to archive run")
		}
	}
}

func loadSeries(dir, symbolList string) (map[string][]market.Bar, error) {
	series := make(map[string][]market.Bar)

	if symbolList != "" {
		for _, sym := range strings.Split(symbolList, ",") {
			sym = strings.TrimSpace(strings.ToUpper(sym))
			if sym == "" {
				continue
			}
			bars, err := market.LoadCSV(filepath.Join(dir, sym+".csv"), sym)
			if err != nil {
				return nil, err
			}
			series[sym] = bars
		}
		return series, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read data dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".csv") {
			continue
		}
		sym := strings.ToUpper(strings.TrimSuffix(e.Name(), ".csv"))
		bars, err := market.LoadCSV(filepath.Join(dir, e.Name()), sym)
		if err != nil {
			return nil, err
		}
		series[sym] = bars
	}
	return series, nil
}

func printSummary(res *backtest.Result, initialCash float64) {
	m := res.Metrics
	fmt.Println("📈 BACKTEST RESULT")
	fmt.Printf("   initial: %.2f   final: %.2f\n", initialCash, res.Portfolio.NAV)
	fmt.Printf("   total return:      %8.2f%%\n", m.TotalReturn*100)
	fmt.Printf("   annualized return: %8.2f%%\n", m.AnnualizedReturn*100)
	fmt.Printf("   annualized vol:    %8.2f%%\n", m.AnnualizedVol*100)
	fmt.Printf("   sharpe:            %8.2f\n", m.Sharpe)
	fmt.Printf("   sortino:           %8.2f\n", m.Sortino)
	fmt.Printf("   max drawdown:      %8.2f%%\n", m.MaxDrawdown*100)
	fmt.Printf("   calmar:            %8.2f\n", m.Calmar)
	fmt.Printf("   round trips: %d   win rate: %.1f%%   fees: %.2f\n",
		m.Trades, m.WinRate*100, m.TotalFees)
}

func writeResult(path string, res *backtest.Result) error {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func archiveRun(logger zerolog.Logger, label string, initialCash float64, res *backtest.Result) error {
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		return fmt.Errorf("POSTGRES_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repo, err := store.NewRepository(ctx, dsn, logger)
	if err != nil {
		return err
	}
	defer repo.Close()

	if err := repo.InitSchema(ctx); err != nil {
		return err
	}

	rec := store.RunRecord{
		Label:       label,
		InitialCash: initialCash,
		FinalNAV:    res.Portfolio.NAV,
		Metrics:     res.Metrics,
	}
	if n := len(res.EquityCurve); n > 0 {
		rec.StartDate = res.EquityCurve[0].Timestamp
		rec.EndDate = res.EquityCurve[n-1].Timestamp
	}

	runID, err := repo.SaveRun(ctx, rec, res.Trades)
	if err != nil {
		return err
	}
	fmt.Printf("archived as run %d\n", runID)
	return nil
}
