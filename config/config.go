package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"quantbacktest/internal/adapters/logger"
	"quantbacktest/internal/strategy/backtesting"
)

// Config holds all application configuration.
type Config struct {
	// Market data
	Symbol    string
	Interval  string
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Simulation parameters
	InitialCapital    float64
	RiskPerTrade      float64
	Compounding       bool
	CommissionRate    float64
	SlippageCoeff     float64
	ImpactCoeff       float64
	LiquidityCoeff    float64
	LatencySeconds    float64
	MinConfidence     float64
	MinRiskReward     float64
	DefaultStopPct    float64
	MaxOpenPositions  int
	MaxDrawdown       float64
	HoldLimitHours    int
	UseLeverage       bool
	Leverage          float64
	MarginRequirement float64
	RiskFreeRate      float64

	// Comparison and robustness
	LookbackWindows     []int
	MonteCarloTrials    int
	MonteCarloVariation float64
	Seed                int64

	// Database
	DBPath string

	// Logging
	LogLevel logrus.Level
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string

	// Market data
	cfg.Symbol = getEnv("SYMBOL", "ETHUSDT")
	if cfg.Symbol == "" {
		errs = append(errs, "SYMBOL must be set")
	}
	cfg.Interval = getEnv("INTERVAL", "1h")
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true)

	// Simulation parameters
	cfg.InitialCapital, err = getEnvAsFloatRequired("INITIAL_CAPITAL", 10000)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid INITIAL_CAPITAL: %v", err))
	} else if cfg.InitialCapital <= 0 {
		errs = append(errs, "INITIAL_CAPITAL must be positive")
	}

	cfg.RiskPerTrade, err = getEnvAsFloatRequired("RISK_PER_TRADE", 0.01)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid RISK_PER_TRADE: %v", err))
	} else if cfg.RiskPerTrade <= 0 || cfg.RiskPerTrade > 1 {
		errs = append(errs, "RISK_PER_TRADE must be within (0.0, 1.0]")
	}

	cfg.Compounding = getEnvAsBool("COMPOUNDING", true)

	cfg.CommissionRate, err = getEnvAsFloatRequired("COMMISSION_RATE", 0.001)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid COMMISSION_RATE: %v", err))
	} else if cfg.CommissionRate < 0 {
		errs = append(errs, "COMMISSION_RATE cannot be negative")
	}

	cfg.SlippageCoeff = getEnvAsFloat("SLIPPAGE_COEFF", 1.0)
	cfg.ImpactCoeff = getEnvAsFloat("IMPACT_COEFF", 1.0)
	cfg.LiquidityCoeff = getEnvAsFloat("LIQUIDITY_COEFF", 1.0)
	cfg.LatencySeconds = getEnvAsFloat("LATENCY_SECONDS", 0.5)
	if cfg.SlippageCoeff < 0 || cfg.ImpactCoeff < 0 || cfg.LiquidityCoeff < 0 || cfg.LatencySeconds < 0 {
		errs = append(errs, "cost coefficients (SLIPPAGE_COEFF, IMPACT_COEFF, LIQUIDITY_COEFF, LATENCY_SECONDS) cannot be negative")
	}

	cfg.MinConfidence = getEnvAsFloat("MIN_CONFIDENCE", 60)
	if cfg.MinConfidence < 0 || cfg.MinConfidence > 100 {
		errs = append(errs, "MIN_CONFIDENCE must be between 0 and 100")
	}
	cfg.MinRiskReward = getEnvAsFloat("MIN_RISK_REWARD", 1.0)
	cfg.DefaultStopPct = getEnvAsFloat("DEFAULT_STOP_PCT", 0.02)
	if cfg.DefaultStopPct <= 0 || cfg.DefaultStopPct >= 1 {
		errs = append(errs, "DEFAULT_STOP_PCT must be between 0.0 and 1.0 (exclusive)")
	}

	cfg.MaxOpenPositions = getEnvAsInt("MAX_OPEN_POSITIONS", 1)
	if cfg.MaxOpenPositions <= 0 {
		errs = append(errs, "MAX_OPEN_POSITIONS must be positive")
	}

	cfg.MaxDrawdown = getEnvAsFloat("MAX_DRAWDOWN", 0.25)
	cfg.HoldLimitHours = getEnvAsInt("HOLD_LIMIT_HOURS", 7*24)
	if cfg.HoldLimitHours <= 0 {
		errs = append(errs, "HOLD_LIMIT_HOURS must be positive")
	}

	cfg.UseLeverage = getEnvAsBool("USE_LEVERAGE", false)
	cfg.Leverage = getEnvAsFloat("LEVERAGE", 1.0)
	if cfg.UseLeverage && cfg.Leverage < 1 {
		errs = append(errs, "LEVERAGE must be at least 1 when USE_LEVERAGE is enabled")
	}
	cfg.MarginRequirement = getEnvAsFloat("MARGIN_REQUIREMENT", 0.5)
	if cfg.MarginRequirement < 0 || cfg.MarginRequirement >= 1 {
		errs = append(errs, "MARGIN_REQUIREMENT must be between 0.0 and 1.0")
	}

	cfg.RiskFreeRate = getEnvAsFloat("RISK_FREE_RATE", 0.02)

	// Comparison and robustness
	cfg.LookbackWindows, err = getEnvAsIntList("LOOKBACK_WINDOWS", []int{30, 90, 180, 365})
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid LOOKBACK_WINDOWS: %v", err))
	}
	cfg.MonteCarloTrials = getEnvAsInt("MONTE_CARLO_TRIALS", 1000)
	if cfg.MonteCarloTrials <= 0 {
		errs = append(errs, "MONTE_CARLO_TRIALS must be positive")
	}
	cfg.MonteCarloVariation = getEnvAsFloat("MONTE_CARLO_VARIATION", 0.2)
	if cfg.MonteCarloVariation < 0 {
		errs = append(errs, "MONTE_CARLO_VARIATION cannot be negative")
	}
	cfg.Seed = int64(getEnvAsInt("SEED", 1))

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/bars.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Logging
	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// Backtest maps the loaded configuration onto an engine config.
func (c *Config) Backtest() backtesting.Config {
	bc := backtesting.DefaultConfig()
	bc.Symbol = c.Symbol
	bc.Interval = c.Interval
	bc.InitialCapital = c.InitialCapital
	bc.RiskPerTrade = c.RiskPerTrade
	bc.Compounding = c.Compounding
	bc.CommissionRate = c.CommissionRate
	bc.SlippageCoeff = c.SlippageCoeff
	bc.ImpactCoeff = c.ImpactCoeff
	bc.LiquidityCoeff = c.LiquidityCoeff
	bc.LatencySeconds = c.LatencySeconds
	bc.MinConfidence = c.MinConfidence
	bc.MinRiskReward = c.MinRiskReward
	bc.DefaultStopPct = c.DefaultStopPct
	bc.MaxOpenPositions = c.MaxOpenPositions
	bc.MaxDrawdown = c.MaxDrawdown
	bc.HoldLimit = time.Duration(c.HoldLimitHours) * time.Hour
	bc.UseLeverage = c.UseLeverage
	bc.Leverage = c.Leverage
	bc.MarginRequirement = c.MarginRequirement
	bc.RiskFreeRate = c.RiskFreeRate
	return bc
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsIntList(key string, defaultValue []int) ([]int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	parts := strings.Split(valueStr, ",")
	values := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid integer value '%s' for key %s: %w", p, key, err)
		}
		values = append(values, v)
	}
	return values, nil
}
