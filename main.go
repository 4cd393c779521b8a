package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"crypto-paper-trader/config"
	"crypto-paper-trader/internal/executor"
	"crypto-paper-trader/internal/gate"
	"crypto-paper-trader/internal/market"
	"crypto-paper-trader/internal/store"
)

func main() {
	// .env is optional; environment wins over config.json either way
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LoggingConfig)
	logger.Info().
		Str("backend", cfg.StoreConfig.Backend).
		Str("account", cfg.StoreConfig.Account).
		Msg("starting paper-trading cycle")

	st, cleanup, err := buildStore(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize state store")
	}
	defer cleanup()

	payload, err := market.LoadPayload(cfg.PathsConfig.MarketPayload)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.PathsConfig.MarketPayload).Msg("failed to load market payload")
	}

	batch, err := gate.LoadBatch(cfg.PathsConfig.DecisionFile)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.PathsConfig.DecisionFile).Msg("failed to load decision batch")
	}

	g := gate.New(gate.Limits{
		MaxLeverage:        cfg.GateConfig.MaxLeverage,
		MaxNewExposureFrac: cfg.GateConfig.MaxNewExposureFrac,
		MaxOpenPositions:   cfg.GateConfig.MaxOpenPositions,
	}, logger)

	exec := executor.New(executor.Config{
		InitialCash:     cfg.EngineConfig.InitialCash,
		FeeRate:         cfg.EngineConfig.FeeRate,
		DefaultLeverage: cfg.EngineConfig.DefaultLeverage,
		TradeCSVPath:    cfg.PathsConfig.TradeCSV,
		NAVHistoryPath:  cfg.PathsConfig.NAVHistory,
	}, st, g, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	now := payload.AsOf
	if now.IsZero() {
		now = time.Now().UTC()
	}

	res, err := exec.RunCycle(ctx, payload.Prices(), batch, now)
	if err != nil {
		logger.Fatal().Err(err).Msg("cycle failed")
	}

	fmt.Printf("NAV: %.2f  Cash: %.2f  Positions: %d  Trades this cycle: %d\n",
		res.Portfolio.NAV, res.Portfolio.Cash, len(res.Portfolio.Positions), len(res.Trades))
	for _, rej := range res.Gate.Rejected {
		fmt.Printf("rejected %s %s: %s\n", rej.Action.Action, rej.Action.Symbol, rej.Reason)
	}
}

func newLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.JSONFormat {
		logger = zerolog.New(os.Stderr)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	return logger.Level(level).With().Timestamp().Logger()
}

// buildStore selects the state backend. Postgres is an archive target, not
// a cycle store, so "file" and "redis" are the valid choices here.
func buildStore(cfg *config.Config, logger zerolog.Logger) (store.Store, func(), error) {
	switch cfg.StoreConfig.Backend {
	case "file", "":
		return store.NewFileStore(cfg.StoreConfig.FilePath), func() {}, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.StoreConfig.Redis.Address,
			Password: cfg.StoreConfig.Redis.Password,
			DB:       cfg.StoreConfig.Redis.DB,
		})
		s := store.NewRedisStore(client, cfg.StoreConfig.Account, logger)
		return s, func() { client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreConfig.Backend)
	}
}
