package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Fair Value Engine Configuration

[valuation]
# Cost of equity = risk_free_rate + beta * equity_risk_premium
risk_free_rate = 0.035
equity_risk_premium = 0.05
cost_of_debt = 0.05
# Used when the source reports no effective tax rate
default_tax_rate = 0.21
terminal_growth = 0.025
# WACC is clamped to [discount_floor, discount_cap]
discount_floor = 0.07
discount_cap = 0.20
# Projected FCF growth decays by this factor each year, never below growth_floor
growth_decay = 0.8
growth_floor = 0.02
fcf_growth_min = 0.02
fcf_growth_max = 0.25
default_fcf_growth = 0.05
projection_years = 5
# Dividend-discount model
dividend_growth = 0.03
dividend_spread = 0.02
# Earnings-multiple model
eps_window = 10
eps_growth_min = -0.10
eps_growth_max = 0.20
default_eps_growth = 0.05
outlier_sigma = 3.0
max_outlier_fraction = 0.4
full_history_years = 5
# Points per axis of the discount/growth sensitivity grid
sensitivity_steps = 5

[consensus]
# Largest position as a fraction of the portfolio
max_position_percent = 0.05
# Consensus confidence below which position sizing warns
min_confidence = 0.4

[consensus.weights]
dcf = 0.5
earnings_multiple = 0.25
nav = 0.15
ddm = 0.10

[prediction]
min_rows = 30
train_split = 0.8
mlp_weight = 0.6
forest_weight = 0.4

[prediction.features]
ma_windows = [5, 10, 20, 50]
channel_windows = [10, 20]
volume_windows = [5, 20]
rsi_period = 14
roc_period = 10
variance_threshold = 1e-4
workers = 4

[prediction.mlp]
hidden = [64, 32]
epochs = 200
batch_size = 32
learning_rate = 0.001
alpha = 0.01
patience = 10
seed = 42

[prediction.forest]
trees = 100
max_depth = 8
min_samples_split = 5
min_samples_leaf = 2
seed = 42

[scoring]
# Weight given to observed feedback on each adaptation
smoothing_alpha = 0.3

[scoring.value]
fundamental = 0.6
technical = 0.2
valuation = 0.2

[scoring.growth]
fundamental = 0.5
technical = 0.3
valuation = 0.2

[market_data]
# Minimum interval between requests to one source
throttle = "2s"
history_days = 365
timeout = "30s"
alphavantage_url = "https://www.alphavantage.co"

[market_data.retry]
max_attempts = 3
initial_delay = "1s"
max_delay = "30s"
backoff_factor = 2.0
jitter = 0.5

[market_data.breaker]
failure_threshold = 5
success_threshold = 1
timeout = "60s"

[cache]
# Relative paths are resolved against this directory
db_path = "fairvalue.db"
# Reports are served as is within price_ttl and repriced within payload_ttl
price_ttl = "30m"
payload_ttl = "24h"

[analysis]
workers = 4
history_days = 365
# High, Medium, Low or Speculative
default_quality = "Medium"

[logging]
# debug, info, warn, error
level = "info"
console = true
file = true
max_size = 50
max_backups = 5
max_age = 30
`

const credentialsTemplate = `# Fair Value Engine Credentials
# WARNING: Keep this file secure! Do not commit to version control.

[alphavantage]
# Fundamentals source. Without a key only Yahoo price data is used.
api_key = ""
`

// Templates returns the template file names and contents.
func Templates() map[string]string {
	return map[string]string{
		"config.toml":      configTemplate,
		"credentials.toml": credentialsTemplate,
	}
}

func writeTemplate(configDir, name, template string, perm os.FileMode) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, name+".toml")
	if err := os.WriteFile(path, []byte(template), perm); err != nil {
		return fmt.Errorf("writing %s template: %w", name, err)
	}
	return nil
}
