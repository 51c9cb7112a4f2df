// Package config provides configuration management for the valuation engine.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"fairvalue-engine/internal/analysis/scoring"
	"fairvalue-engine/internal/analyzer"
	"fairvalue-engine/internal/consensus"
	apperrors "fairvalue-engine/internal/errors"
	"fairvalue-engine/internal/logging"
	"fairvalue-engine/internal/marketdata"
	"fairvalue-engine/internal/ml"
	"fairvalue-engine/internal/models"
	"fairvalue-engine/internal/store"
	"fairvalue-engine/internal/valuation"
)

// Config holds all application configuration.
type Config struct {
	Valuation   valuation.Config  `mapstructure:"valuation"`
	Consensus   consensus.Config  `mapstructure:"consensus"`
	Prediction  ml.Config         `mapstructure:"prediction"`
	Scoring     scoring.Config    `mapstructure:"scoring"`
	MarketData  marketdata.Config `mapstructure:"market_data"`
	Cache       store.Config      `mapstructure:"cache"`
	Analysis    analyzer.Config   `mapstructure:"analysis"`
	Logging     logging.LogConfig `mapstructure:"logging"`
	Credentials Credentials       `mapstructure:"-" json:"-"` // Loaded separately

	// Dir is the directory the configuration was loaded from.
	Dir string `mapstructure:"-"`
}

// Credentials holds API credentials.
type Credentials struct {
	AlphaVantage AlphaVantageCredentials `mapstructure:"alphavantage"`
}

// AlphaVantageCredentials holds the Alpha Vantage API key.
type AlphaVantageCredentials struct {
	APIKey string `mapstructure:"api_key"`
}

// Default returns the built-in configuration every file value overrides.
func Default() *Config {
	return &Config{
		Valuation:  valuation.DefaultConfig(),
		Consensus:  consensus.DefaultConfig(),
		Prediction: ml.DefaultConfig(),
		Scoring:    scoring.DefaultConfig(),
		MarketData: marketdata.DefaultConfig(),
		Cache:      store.DefaultConfig(),
		Analysis:   analyzer.DefaultConfig(),
		Logging:    logging.DefaultLogConfig(),
	}
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/fairvalue"
	}
	return filepath.Join(home, ".config", "fairvalue")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory. Missing files are
// created from the commented templates and then read like any other file.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	// A .env file is optional.
	_ = godotenv.Load()

	cfg := Default()
	cfg.Dir = configDir

	if err := loadFile(configDir, "config", configTemplate, 0644, cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}
	if err := loadFile(configDir, "credentials", credentialsTemplate, 0600, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	applyEnvOverrides(cfg)
	cfg.resolvePaths()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func loadFile(configDir, name, template string, perm os.FileMode, target interface{}) error {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
		if err := writeTemplate(configDir, name, template, perm); err != nil {
			return err
		}
		if err := v.ReadInConfig(); err != nil {
			return err
		}
	}

	return v.Unmarshal(target)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ALPHAVANTAGE_API_KEY"); v != "" {
		cfg.Credentials.AlphaVantage.APIKey = v
	}
	if v := os.Getenv("FAIRVALUE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("FAIRVALUE_DB_PATH"); v != "" {
		cfg.Cache.DBPath = v
	}
}

// resolvePaths anchors a relative database path in the config directory.
func (c *Config) resolvePaths() {
	if c.Cache.DBPath != "" && !filepath.IsAbs(c.Cache.DBPath) && c.Dir != "" {
		c.Cache.DBPath = filepath.Join(c.Dir, c.Cache.DBPath)
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...interface{}) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	// Valuation assumptions
	v := c.Valuation
	for name, rate := range map[string]float64{
		"risk_free_rate":      v.RiskFreeRate,
		"equity_risk_premium": v.EquityRiskPremium,
		"cost_of_debt":        v.CostOfDebt,
		"default_tax_rate":    v.DefaultTaxRate,
		"terminal_growth":     v.TerminalGrowth,
		"discount_floor":      v.DiscountFloor,
		"discount_cap":        v.DiscountCap,
		"growth_decay":        v.GrowthDecay,
	} {
		check(inUnit(rate), "valuation.%s must be between 0 and 1, got %v", name, rate)
	}
	check(v.DiscountFloor < v.DiscountCap, "valuation.discount_floor must be below discount_cap")
	check(v.TerminalGrowth < v.DiscountFloor, "valuation.terminal_growth must be below discount_floor")
	check(v.FCFGrowthMin <= v.FCFGrowthMax, "valuation.fcf_growth_min must not exceed fcf_growth_max")
	check(v.EPSGrowthMin <= v.EPSGrowthMax, "valuation.eps_growth_min must not exceed eps_growth_max")
	check(v.ProjectionYears > 0, "valuation.projection_years must be positive")
	check(v.EPSWindow > 0, "valuation.eps_window must be positive")
	check(v.OutlierSigma > 0, "valuation.outlier_sigma must be positive")
	check(inUnit(v.MaxOutlierFraction), "valuation.max_outlier_fraction must be between 0 and 1")
	check(v.SensitivitySteps > 1, "valuation.sensitivity_steps must be at least 2")

	// Consensus weights
	w := c.Consensus.Weights
	check(w.DCF >= 0 && w.EarningsMultiple >= 0 && w.NAV >= 0 && w.DDM >= 0, "consensus.weights must be non-negative")
	check(w.DCF+w.EarningsMultiple+w.NAV+w.DDM > 0, "consensus.weights must not all be zero")
	check(c.Consensus.MaxPositionPercent > 0 && c.Consensus.MaxPositionPercent <= 1,
		"consensus.max_position_percent must be in (0, 1]")
	check(inUnit(c.Consensus.MinConfidence), "consensus.min_confidence must be between 0 and 1")

	// Prediction
	p := c.Prediction
	check(p.MinRows > 0, "prediction.min_rows must be positive")
	check(p.TrainSplit > 0 && p.TrainSplit < 1, "prediction.train_split must be in (0, 1)")
	check(p.MLPWeight >= 0 && p.ForestWeight >= 0 && p.MLPWeight+p.ForestWeight > 0,
		"prediction blend weights must be non-negative and not both zero")
	check(p.Features.VarianceThreshold >= 0, "prediction.features.variance_threshold must be non-negative")
	check(len(p.MLP.Hidden) > 0, "prediction.mlp.hidden must name at least one layer")
	check(p.MLP.Epochs > 0 && p.MLP.LearningRate > 0, "prediction.mlp epochs and learning_rate must be positive")
	check(p.Forest.Trees > 0 && p.Forest.MaxDepth > 0, "prediction.forest trees and max_depth must be positive")

	// Scoring
	for name, sw := range map[string]models.ScoreWeights{"value": c.Scoring.Value, "growth": c.Scoring.Growth} {
		check(sw.Fundamental >= 0 && sw.Technical >= 0 && sw.Valuation >= 0, "scoring.%s weights must be non-negative", name)
		check(sw.Sum() > 0, "scoring.%s weights must not all be zero", name)
	}
	check(inUnit(c.Scoring.SmoothingAlpha), "scoring.smoothing_alpha must be between 0 and 1")

	// Market data
	m := c.MarketData
	check(m.Throttle >= 0, "market_data.throttle must be non-negative")
	check(m.HistoryDays > 0, "market_data.history_days must be positive")
	check(m.Timeout > 0, "market_data.timeout must be positive")
	check(m.Retry.MaxAttempts > 0, "market_data.retry.max_attempts must be positive")
	check(m.Retry.InitialDelay >= 0 && m.Retry.MaxDelay >= m.Retry.InitialDelay,
		"market_data.retry delays must satisfy 0 <= initial_delay <= max_delay")
	check(inUnit(m.Retry.Jitter), "market_data.retry.jitter must be between 0 and 1")
	check(m.Breaker.FailureThreshold > 0 && m.Breaker.Timeout > 0,
		"market_data.breaker failure_threshold and timeout must be positive")

	// Cache
	check(c.Cache.DBPath != "", "cache.db_path is required")
	check(c.Cache.PriceTTL > 0 && c.Cache.PayloadTTL > 0, "cache TTLs must be positive")
	check(c.Cache.PriceTTL <= c.Cache.PayloadTTL, "cache.price_ttl must not exceed payload_ttl")

	// Analysis
	check(c.Analysis.Workers > 0, "analysis.workers must be positive")
	check(c.Analysis.HistoryDays > 0, "analysis.history_days must be positive")
	if c.Analysis.DefaultQuality != "" {
		_, err := consensus.ParseQuality(c.Analysis.DefaultQuality)
		check(err == nil, "analysis.default_quality %q is not a quality tier", c.Analysis.DefaultQuality)
	}

	// Logging
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level %q must be debug, info, warn or error", c.Logging.Level))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", apperrors.ErrConfigInvalid, errors.Join(errs...))
	}
	return nil
}

// HasAlphaVantage reports whether a fundamentals API key is configured.
func (c *Config) HasAlphaVantage() bool {
	return c.Credentials.AlphaVantage.APIKey != ""
}

func inUnit(v float64) bool {
	return v >= 0 && v <= 1
}
