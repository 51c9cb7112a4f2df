// Package store persists cached analysis reports, recommendation feedback and
// adapted weight profiles.
package store

import (
	"context"
	"time"

	"fairvalue-engine/internal/analysis/scoring"
	"fairvalue-engine/internal/models"
)

// DataStore defines the interface for data persistence.
type DataStore interface {
	// Report cache
	GetReport(ctx context.Context, symbol string) (*CachedReport, error)
	PutReport(ctx context.Context, report *models.Report) error
	DeleteReport(ctx context.Context, symbol string) error
	ClearReports(ctx context.Context) (int64, error)

	// Feedback
	RecordFeedback(ctx context.Context, fb Feedback) (Feedback, error)
	ListFeedback(ctx context.Context, filter FeedbackFilter) ([]Feedback, error)
	FeedbackImportance(ctx context.Context) (models.ScoreWeights, int, error)

	// Weight profiles
	SaveWeightProfile(ctx context.Context, profile scoring.WeightProfile, samples int) (*StoredProfile, error)
	LatestWeightProfile(ctx context.Context) (*StoredProfile, error)

	// Lifecycle
	Close() error
}

// Config is the [cache] configuration section.
type Config struct {
	DBPath     string        `mapstructure:"db_path"`
	PriceTTL   time.Duration `mapstructure:"price_ttl"`
	PayloadTTL time.Duration `mapstructure:"payload_ttl"`
}

// DefaultConfig returns a 30 minute price TTL and a 24 hour payload TTL.
func DefaultConfig() Config {
	return Config{
		DBPath:     "fairvalue.db",
		PriceTTL:   30 * time.Minute,
		PayloadTTL: 24 * time.Hour,
	}
}

// Freshness classifies a cached report against the two TTLs.
type Freshness string

const (
	// Fresh reports are served as is.
	Fresh Freshness = "fresh"
	// StalePrice reports keep their payload but need a new price.
	StalePrice Freshness = "stale_price"
	// Expired reports are recomputed.
	Expired Freshness = "expired"
)

// CachedReport is a report read back from the cache.
type CachedReport struct {
	Report   *models.Report
	StoredAt time.Time
}

// Freshness reports how the cached entry should be used at now.
func (c *CachedReport) Freshness(now time.Time, cfg Config) Freshness {
	if c == nil || c.Report == nil || now.Sub(c.Report.GeneratedAt) >= cfg.PayloadTTL {
		return Expired
	}
	if now.Sub(c.Report.PricedAt) >= cfg.PriceTTL {
		return StalePrice
	}
	return Fresh
}

// Feedback records whether the user acted on a recommendation.
type Feedback struct {
	ID               string                      `json:"id" csv:"id"`
	Symbol           string                      `json:"symbol" csv:"symbol"`
	Action           models.RecommendationAction `json:"action" csv:"action"`
	Acted            bool                        `json:"acted" csv:"acted"`
	FundamentalScore float64                     `json:"fundamental_score" csv:"fundamental_score"`
	TechnicalScore   float64                     `json:"technical_score" csv:"technical_score"`
	ValuationScore   float64                     `json:"valuation_score" csv:"valuation_score"`
	FinalScore       float64                     `json:"final_score" csv:"final_score"`
	CreatedAt        time.Time                   `json:"created_at" csv:"created_at"`
}

// FeedbackFromScore fills a feedback record from an integrated score.
func FeedbackFromScore(symbol string, s models.IntegratedScore, acted bool) Feedback {
	return Feedback{
		Symbol:           symbol,
		Action:           s.Recommendation.Action,
		Acted:            acted,
		FundamentalScore: s.FundamentalScore,
		TechnicalScore:   s.TechnicalScore,
		ValuationScore:   s.ValuationScore,
		FinalScore:       s.FinalScore,
	}
}

// FeedbackFilter represents filters for querying feedback.
type FeedbackFilter struct {
	Symbol string
	Acted  *bool
	Since  time.Time
	Limit  int
}

// StoredProfile is a persisted weight profile.
type StoredProfile struct {
	ID        string                `json:"id"`
	Profile   scoring.WeightProfile `json:"profile"`
	Samples   int                   `json:"samples"`
	CreatedAt time.Time             `json:"created_at"`
}
