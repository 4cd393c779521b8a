package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	EngineConfig   EngineConfig   `json:"engine"`
	StrategyConfig StrategyConfig `json:"strategy"`
	RiskConfig     RiskConfig     `json:"risk"`
	GateConfig     GateConfig     `json:"gate"`
	LoggingConfig  LoggingConfig  `json:"logging"`
	StoreConfig    StoreConfig    `json:"store"`
	PathsConfig    PathsConfig    `json:"paths"`
}

// EngineConfig holds the simulation accounting parameters shared by the
// backtest engine and the paper-trading executor.
type EngineConfig struct {
	InitialCash     float64 `json:"initial_cash"`
	FeeRate         float64 `json:"fee_rate"`
	BarsPerYear     float64 `json:"bars_per_year"`
	DefaultLeverage float64 `json:"default_leverage"`
}

// StrategyConfig parameterizes the lifecycle strategy variant.
type StrategyConfig struct {
	MaxEntryRSI      float64 `json:"max_entry_rsi"`
	MinPricePosition float64 `json:"min_price_position"`
	ExitRSI          float64 `json:"exit_rsi"`
	SizeCeiling      float64 `json:"size_ceiling"`
	Leverage         float64 `json:"leverage"`
}

// RiskConfig holds stop-loss parameters.
type RiskConfig struct {
	StopATRMult     float64 `json:"stop_atr_mult"`
	TrailingEnabled bool    `json:"trailing_enabled"`
}

// GateConfig holds the hard limits applied to decision batches.
type GateConfig struct {
	MaxLeverage        float64 `json:"max_leverage"`
	MaxNewExposureFrac float64 `json:"max_new_exposure_frac"`
	MaxOpenPositions   int     `json:"max_open_positions"`
}

type LoggingConfig struct {
	Level      string `json:"level"`       // debug, info, warn, error
	JSONFormat bool   `json:"json_format"` // console writer when false
}

// StoreConfig selects the state backend for the paper-trading account.
type StoreConfig struct {
	Backend  string         `json:"backend"` // "file", "redis" or "postgres"
	Account  string         `json:"account"` // namespace for shared backends
	FilePath string         `json:"file_path"`
	Redis    RedisConfig    `json:"redis"`
	Postgres PostgresConfig `json:"postgres"`
}

type RedisConfig struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type PostgresConfig struct {
	DSN string `json:"dsn"`
}

// PathsConfig holds the data files one cycle reads and writes.
type PathsConfig struct {
	MarketPayload string `json:"market_payload"` // price snapshot JSON
	DecisionFile  string `json:"decision_file"`  // proposed action batch
	TradeCSV      string `json:"trade_csv"`      // append-only trade log
	NAVHistory    string `json:"nav_history"`    // per-cycle NAV samples
}

func Load() (*Config, error) {
	// Base config from file, overridable per-setting from the environment
	cfg, err := loadFromFile("config.json")
	if err != nil {
		cfg = &Config{}
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	// Engine config
	cfg.EngineConfig.InitialCash = getEnvFloatOrDefault("ENGINE_INITIAL_CASH", defaultFloat(cfg.EngineConfig.InitialCash, 10000))
	cfg.EngineConfig.FeeRate = getEnvFloatOrDefault("ENGINE_FEE_RATE", defaultFloat(cfg.EngineConfig.FeeRate, 0.001))
	cfg.EngineConfig.BarsPerYear = getEnvFloatOrDefault("ENGINE_BARS_PER_YEAR", defaultFloat(cfg.EngineConfig.BarsPerYear, 365))
	cfg.EngineConfig.DefaultLeverage = getEnvFloatOrDefault("ENGINE_DEFAULT_LEVERAGE", defaultFloat(cfg.EngineConfig.DefaultLeverage, 1))

	// Strategy config
	cfg.StrategyConfig.MaxEntryRSI = getEnvFloatOrDefault("STRATEGY_MAX_ENTRY_RSI", defaultFloat(cfg.StrategyConfig.MaxEntryRSI, 70))
	cfg.StrategyConfig.MinPricePosition = getEnvFloatOrDefault("STRATEGY_MIN_PRICE_POSITION", defaultFloat(cfg.StrategyConfig.MinPricePosition, 0.3))
	cfg.StrategyConfig.ExitRSI = getEnvFloatOrDefault("STRATEGY_EXIT_RSI", defaultFloat(cfg.StrategyConfig.ExitRSI, 80))
	cfg.StrategyConfig.SizeCeiling = getEnvFloatOrDefault("STRATEGY_SIZE_CEILING", defaultFloat(cfg.StrategyConfig.SizeCeiling, 1.0))
	cfg.StrategyConfig.Leverage = getEnvFloatOrDefault("STRATEGY_LEVERAGE", defaultFloat(cfg.StrategyConfig.Leverage, 1))

	// Risk config
	cfg.RiskConfig.StopATRMult = getEnvFloatOrDefault("RISK_STOP_ATR_MULT", defaultFloat(cfg.RiskConfig.StopATRMult, 2.0))
	cfg.RiskConfig.TrailingEnabled = getEnvOrDefault("RISK_TRAILING_ENABLED", "true") == "true"

	// Gate config
	cfg.GateConfig.MaxLeverage = getEnvFloatOrDefault("GATE_MAX_LEVERAGE", defaultFloat(cfg.GateConfig.MaxLeverage, 3))
	cfg.GateConfig.MaxNewExposureFrac = getEnvFloatOrDefault("GATE_MAX_NEW_EXPOSURE_FRAC", defaultFloat(cfg.GateConfig.MaxNewExposureFrac, 0.5))
	cfg.GateConfig.MaxOpenPositions = getEnvIntOrDefault("GATE_MAX_OPEN_POSITIONS", defaultInt(cfg.GateConfig.MaxOpenPositions, 3))

	// Logging config
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", defaultString(cfg.LoggingConfig.Level, "info"))
	cfg.LoggingConfig.JSONFormat = getEnvOrDefault("LOG_JSON", "true") == "true"

	// Store config
	cfg.StoreConfig.Backend = getEnvOrDefault("STORE_BACKEND", defaultString(cfg.StoreConfig.Backend, "file"))
	cfg.StoreConfig.Account = getEnvOrDefault("STORE_ACCOUNT", defaultString(cfg.StoreConfig.Account, "default"))
	cfg.StoreConfig.FilePath = getEnvOrDefault("STORE_FILE_PATH", defaultString(cfg.StoreConfig.FilePath, "data/portfolio_state.json"))
	cfg.StoreConfig.Redis.Address = getEnvOrDefault("REDIS_ADDRESS", defaultString(cfg.StoreConfig.Redis.Address, "localhost:6379"))
	cfg.StoreConfig.Redis.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.StoreConfig.Redis.Password)
	cfg.StoreConfig.Redis.DB = getEnvIntOrDefault("REDIS_DB", cfg.StoreConfig.Redis.DB)
	cfg.StoreConfig.Postgres.DSN = getEnvOrDefault("POSTGRES_DSN", cfg.StoreConfig.Postgres.DSN)

	// Paths config
	cfg.PathsConfig.MarketPayload = getEnvOrDefault("PATH_MARKET_PAYLOAD", defaultString(cfg.PathsConfig.MarketPayload, "data/market_payload.json"))
	cfg.PathsConfig.DecisionFile = getEnvOrDefault("PATH_DECISION_FILE", defaultString(cfg.PathsConfig.DecisionFile, "data/decision.json"))
	cfg.PathsConfig.TradeCSV = getEnvOrDefault("PATH_TRADE_CSV", defaultString(cfg.PathsConfig.TradeCSV, "data/trades.csv"))
	cfg.PathsConfig.NAVHistory = getEnvOrDefault("PATH_NAV_HISTORY", defaultString(cfg.PathsConfig.NAVHistory, "data/nav_history.csv"))
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func defaultString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func defaultInt(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}

func defaultFloat(v, fallback float64) float64 {
	if v == 0 {
		return fallback
	}
	return v
}
