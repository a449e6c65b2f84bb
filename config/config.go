package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"perpBacktester/internal/adapters/logger"
	"perpBacktester/internal/ports"
	"perpBacktester/internal/strategy/backtesting"
)

// Config holds all application configuration.
type Config struct {
	// Binance API (klines and funding history are public; keys are optional)
	APIKey    string `envconfig:"BINANCE_API_KEY"`
	SecretKey string `envconfig:"BINANCE_API_SECRET"`
	IsTestnet bool   `envconfig:"IS_TESTNET" default:"false"`

	// Market
	Symbol   string `envconfig:"SYMBOL" default:"BTCUSDT"`
	Interval string `envconfig:"INTERVAL" default:"1h"`

	// Simulation defaults; fractions, e.g. 0.0004 = 4 bps
	InitialCapital        float64 `envconfig:"INITIAL_CAPITAL" default:"10000"`
	LeverageCap           float64 `envconfig:"LEVERAGE_CAP" default:"3"`
	MakerFeePct           float64 `envconfig:"MAKER_FEE_PCT" default:"0.0002"`
	TakerFeePct           float64 `envconfig:"TAKER_FEE_PCT" default:"0.0004"`
	SlippagePct           float64 `envconfig:"SLIPPAGE_PCT" default:"0.0005"`
	MaintenanceMarginRate float64 `envconfig:"MAINTENANCE_MARGIN_RATE" default:"0.005"`
	PeriodsPerYear        float64 `envconfig:"PERIODS_PER_YEAR" default:"8760"`
	RiskFreeRate          float64 `envconfig:"RISK_FREE_RATE" default:"0"` // Annual, used by Sharpe and Sortino

	// Database
	DBPath string `envconfig:"DB_PATH" default:"./data/backtests.db"`

	// Logging
	LogLevel logger.LogLevel `envconfig:"LOG_LEVEL" default:"INFO"`
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to process environment: %v", ports.ErrConfigurationError, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []string

	if strings.TrimSpace(c.Symbol) == "" {
		errs = append(errs, "SYMBOL must be set")
	}
	if strings.TrimSpace(c.Interval) == "" {
		errs = append(errs, "INTERVAL must be set")
	}
	if c.InitialCapital <= 0 {
		errs = append(errs, "INITIAL_CAPITAL must be positive")
	}
	if c.LeverageCap < 1 {
		errs = append(errs, "LEVERAGE_CAP must be at least 1")
	}
	if c.MakerFeePct < 0 || c.MakerFeePct >= 1 {
		errs = append(errs, "MAKER_FEE_PCT must be in [0, 1)")
	}
	if c.TakerFeePct < 0 || c.TakerFeePct >= 1 {
		errs = append(errs, "TAKER_FEE_PCT must be in [0, 1)")
	}
	if c.SlippagePct < 0 || c.SlippagePct >= 1 {
		errs = append(errs, "SLIPPAGE_PCT must be in [0, 1)")
	}
	if c.MaintenanceMarginRate < 0 || c.MaintenanceMarginRate >= 1 {
		errs = append(errs, "MAINTENANCE_MARGIN_RATE must be in [0, 1)")
	}
	if c.PeriodsPerYear <= 0 {
		errs = append(errs, "PERIODS_PER_YEAR must be positive")
	}
	if c.RiskFreeRate < 0 || c.RiskFreeRate >= 1 {
		errs = append(errs, "RISK_FREE_RATE must be in [0, 1)")
	}
	if c.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}
	if (c.APIKey == "") != (c.SecretKey == "") {
		errs = append(errs, "BINANCE_API_KEY and BINANCE_API_SECRET must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: configuration validation failed: %s", ports.ErrConfigurationError, strings.Join(errs, "; "))
	}
	return nil
}

// BacktestConfig maps the environment defaults into an engine configuration.
func (c *Config) BacktestConfig() backtesting.Config {
	cfg := backtesting.DefaultConfig()
	cfg.InitialCapital = c.InitialCapital
	cfg.LeverageCap = c.LeverageCap
	cfg.MakerFeePct = c.MakerFeePct
	cfg.TakerFeePct = c.TakerFeePct
	cfg.SlippagePct = c.SlippagePct
	cfg.MaintenanceMarginRate = c.MaintenanceMarginRate
	cfg.PeriodsPerYear = c.PeriodsPerYear
	return cfg
}
