// Package cli provides the command-line interface for the valuation engine.
package cli

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"fairvalue-engine/internal/analysis/scoring"
	"fairvalue-engine/internal/analyzer"
	"fairvalue-engine/internal/config"
	"fairvalue-engine/internal/consensus"
	"fairvalue-engine/internal/logging"
	"fairvalue-engine/internal/marketdata"
	"fairvalue-engine/internal/ml"
	"fairvalue-engine/internal/store"
	"fairvalue-engine/internal/valuation"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2026-10-01"
)

// App holds the application dependencies. Everything past the configuration
// is built on first use so that config and version commands never touch the
// network or the database.
type App struct {
	Config *config.Config
	Logger zerolog.Logger

	// Provider overrides the production market-data composite when set.
	Provider marketdata.Provider

	once     sync.Once
	initErr  error
	store    *store.SQLiteStore
	analyzer *analyzer.Analyzer
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&App{Logger: logging.NewLogger()})
}

func newRootCmd(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fairvalue",
		Short: "Fair Value Engine - intrinsic value, prediction and recommendation CLI",
		Long: `fairvalue estimates a company's intrinsic value per share with several
valuation methods, blends them into a consensus with a margin of safety,
forecasts next-day return with an ML ensemble and merges everything into a
scored BUY/HOLD/SELL recommendation.

Configuration lives in ~/.config/fairvalue (config.toml, credentials.toml).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if app.Config == nil {
				dir, _ := cmd.Flags().GetString("config")
				cfg, err := config.Load(dir)
				if err != nil {
					return err
				}
				app.Config = cfg
				app.Logger = logging.NewLoggerWithConfig(cfg.Logging)
			}

			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.Close()
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/fairvalue)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	addAnalysisCommands(rootCmd, app)
	addFeedbackCommands(rootCmd, app)

	return rootCmd
}

// Analyzer builds the pipeline on first use.
func (a *App) Analyzer(cmd *cobra.Command) (*analyzer.Analyzer, error) {
	a.once.Do(func() {
		a.initErr = a.build(cmd)
	})
	return a.analyzer, a.initErr
}

// Store returns the report store, building the pipeline when needed.
func (a *App) Store(cmd *cobra.Command) (store.DataStore, error) {
	if _, err := a.Analyzer(cmd); err != nil {
		return nil, err
	}
	return a.store, nil
}

func (a *App) build(cmd *cobra.Command) error {
	cfg := a.Config

	db, err := store.NewSQLiteStore(cfg.Cache.DBPath)
	if err != nil {
		return fmt.Errorf("opening report store: %w", err)
	}
	a.store = db
	a.Logger.Debug().Str("path", cfg.Cache.DBPath).Msg("SQLite store initialized")

	profile := cfg.Scoring.Profile()
	if stored, err := db.LatestWeightProfile(cmd.Context()); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to read stored weight profile, using configured weights")
	} else if stored != nil {
		profile = stored.Profile
		a.Logger.Debug().Str("profile", stored.ID).Msg("Using adapted weight profile")
	}

	provider := a.Provider
	if provider == nil {
		if !cfg.HasAlphaVantage() {
			a.Logger.Warn().Msg("No Alpha Vantage key configured, fundamentals come from Yahoo only")
		}
		provider = marketdata.New(cfg.MarketData, cfg.Credentials.AlphaVantage.APIKey, a.Logger)
	}

	a.analyzer = analyzer.New(cfg.Analysis, analyzer.Dependencies{
		Provider:  provider,
		Cache:     db,
		CacheTTL:  cfg.Cache,
		Valuation: valuation.NewEngine(cfg.Valuation, a.Logger),
		Blender:   consensus.NewBlender(cfg.Consensus, a.Logger),
		Ensemble:  ml.NewEnsemble(cfg.Prediction, a.Logger),
		Scorer:    scoring.NewScorer(profile, a.Logger),
	}, a.Logger)
	return nil
}

// Close releases the store.
func (a *App) Close() error {
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	return err
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			}
			output.Printf("Fair Value Engine v%s\n", Version)
			output.Dim("Build date: %s", BuildDate)
			return nil
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{"path": app.Config.Dir})
			}
			output.Println(app.Config.Dir)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration files",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("Configuration is valid")
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Valuation")
	output.Field("Risk-free rate", "%.2f%%", cfg.Valuation.RiskFreeRate*100)
	output.Field("Equity risk premium", "%.2f%%", cfg.Valuation.EquityRiskPremium*100)
	output.Field("Terminal growth", "%.2f%%", cfg.Valuation.TerminalGrowth*100)
	output.Field("Discount rate bounds", "%.0f%% - %.0f%%", cfg.Valuation.DiscountFloor*100, cfg.Valuation.DiscountCap*100)
	output.Field("Projection years", "%d", cfg.Valuation.ProjectionYears)
	output.Println()

	w := cfg.Consensus.Weights
	output.Bold("Consensus")
	output.Field("Method weights", "dcf %.2f  earnings %.2f  nav %.2f  ddm %.2f", w.DCF, w.EarningsMultiple, w.NAV, w.DDM)
	output.Field("Max position", "%.1f%%", cfg.Consensus.MaxPositionPercent*100)
	output.Println()

	output.Bold("Prediction")
	output.Field("Blend", "mlp %.2f  forest %.2f", cfg.Prediction.MLPWeight, cfg.Prediction.ForestWeight)
	output.Field("MLP hidden layers", "%v", cfg.Prediction.MLP.Hidden)
	output.Field("Forest", "%d trees, depth %d", cfg.Prediction.Forest.Trees, cfg.Prediction.Forest.MaxDepth)
	output.Println()

	output.Bold("Scoring")
	output.Field("Value weights", "%s", formatWeights(cfg.Scoring.Value))
	output.Field("Growth weights", "%s", formatWeights(cfg.Scoring.Growth))
	output.Field("Smoothing alpha", "%.2f", cfg.Scoring.SmoothingAlpha)
	output.Println()

	output.Bold("Market Data")
	output.Field("Alpha Vantage", "%v", cfg.HasAlphaVantage())
	output.Field("Throttle", "%s", cfg.MarketData.Throttle)
	output.Field("Retry attempts", "%d", cfg.MarketData.Retry.MaxAttempts)
	output.Println()

	output.Bold("Cache")
	output.Field("Database", "%s", cfg.Cache.DBPath)
	output.Field("Price TTL", "%s", cfg.Cache.PriceTTL)
	output.Field("Payload TTL", "%s", cfg.Cache.PayloadTTL)
}
