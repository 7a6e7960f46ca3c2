package ops

import (
	"encoding/json"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/domain"
	"main/pkg/conn"
)

// Default endpoints. Empty strings disable the corresponding worker.
const (
	DefaultMarketDataAddr = ":5555"
	DefaultCommandAddr    = ":5556"
	DefaultTelemetryAddr  = ":5557"
)

// StrategyConfig parameterizes the threshold strategy.
type StrategyConfig struct {
	ID             uint32  `json:"id"`
	PriceThreshold float64 `json:"priceThreshold"`
}

// ProfilingConfig enables continuous profiling when ServerAddress is set.
type ProfilingConfig struct {
	ServerAddress string `json:"serverAddress"`
}

// ReconcileConfig enables warm-up reconciliation from postgres when
// Enabled is true.
type ReconcileConfig struct {
	Enabled  bool        `json:"enabled"`
	Postgres conn.Option `json:"postgres"`
}

// Config is the engine configuration, loaded from JSON with QUANT_*
// environment overrides.
type Config struct {
	MarketDataAddr string            `json:"marketDataAddr"`
	CommandAddr    string            `json:"commandAddr"`
	TelemetryAddr  string            `json:"telemetryAddr"`
	Risk           domain.RiskLimits `json:"risk"`
	Strategy       StrategyConfig    `json:"strategy"`
	Profiling      ProfilingConfig   `json:"profiling"`
	Reconcile      ReconcileConfig   `json:"reconcile"`
}

// Default returns a runnable local configuration.
func Default() Config {
	return Config{
		MarketDataAddr: DefaultMarketDataAddr,
		CommandAddr:    DefaultCommandAddr,
		TelemetryAddr:  DefaultTelemetryAddr,
		Risk: domain.RiskLimits{
			MaxPositionPerSymbol: 100,
			MaxDrawdown:          -1000,
		},
		Strategy: StrategyConfig{ID: 1, PriceThreshold: 0},
	}
}

// Load reads the JSON config at path (empty path keeps defaults), then
// applies environment overrides. A .env file in the working directory is
// honored when present.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrap(err, "read config")
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, errors.Wrap(err, "parse config")
		}
	}

	if err := godotenv.Load(); err != nil {
		logs.Info("no .env file, using process environment")
	}
	applyEnv(&cfg)

	return cfg, nil
}

func applyEnv(cfg *Config) {
	overrideString(&cfg.MarketDataAddr, "QUANT_MARKET_DATA_ADDR")
	overrideString(&cfg.CommandAddr, "QUANT_COMMAND_ADDR")
	overrideString(&cfg.TelemetryAddr, "QUANT_TELEMETRY_ADDR")
	overrideFloat(&cfg.Risk.MaxPositionPerSymbol, "QUANT_MAX_POSITION")
	overrideFloat(&cfg.Risk.MaxDrawdown, "QUANT_MAX_DRAWDOWN")
	overrideString(&cfg.Profiling.ServerAddress, "QUANT_PYROSCOPE_ADDR")
	overrideString(&cfg.Reconcile.Postgres.ConnString, "QUANT_RECONCILE_DSN")
	if cfg.Reconcile.Postgres.ConnString != "" {
		cfg.Reconcile.Enabled = true
	}
}

func overrideString(target *string, key string) {
	if value, ok := os.LookupEnv(key); ok {
		*target = value
	}
}

func overrideFloat(target *float64, key string) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		logs.Warnf("invalid %s=%q, keeping %.2f", key, value, *target)
		return
	}
	*target = parsed
}
