package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/vmihailenco/msgpack/v5"

	"fairvalue-engine/internal/analysis/scoring"
	apperrors "fairvalue-engine/internal/errors"
	"fairvalue-engine/internal/models"
)

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-based data store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrDatabaseError, "failed to open database: %v", err)
	}

	// Configure connection pool for concurrent access
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, apperrors.Wrapf(apperrors.ErrDatabaseError, "failed to initialize schema: %v", err)
	}
	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Serialized reports keyed by symbol
	CREATE TABLE IF NOT EXISTS reports (
		symbol TEXT PRIMARY KEY,
		payload BLOB NOT NULL,
		generated_at DATETIME NOT NULL,
		priced_at DATETIME NOT NULL,
		stored_at DATETIME NOT NULL
	);

	-- Whether the user acted on a recommendation
	CREATE TABLE IF NOT EXISTS feedback (
		id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		action TEXT NOT NULL,
		acted INTEGER NOT NULL,
		fundamental_score REAL NOT NULL,
		technical_score REAL NOT NULL,
		valuation_score REAL NOT NULL,
		final_score REAL NOT NULL,
		created_at DATETIME NOT NULL
	);

	-- Adapted weight profiles, newest wins
	CREATE TABLE IF NOT EXISTS weight_profiles (
		id TEXT PRIMARY KEY,
		profile TEXT NOT NULL,
		samples INTEGER NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_feedback_symbol ON feedback(symbol);
	CREATE INDEX IF NOT EXISTS idx_feedback_created ON feedback(created_at);
	CREATE INDEX IF NOT EXISTS idx_weight_profiles_created ON weight_profiles(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ============================================================================
// Report Cache Methods
// ============================================================================

// GetReport returns the cached report for symbol or ErrCacheMiss.
func (s *SQLiteStore) GetReport(ctx context.Context, symbol string) (*CachedReport, error) {
	var payload []byte
	var storedAt time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT payload, stored_at FROM reports WHERE symbol = ?
	`, normalize(symbol)).Scan(&payload, &storedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrCacheMiss
	}
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrDatabaseError, "failed to get report: %v", err)
	}

	report, err := decodeReport(payload)
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrCacheMiss, "undecodable cached report for %s: %v", symbol, err)
	}
	return &CachedReport{Report: report, StoredAt: storedAt}, nil
}

// PutReport stores or replaces the cached report for its symbol.
func (s *SQLiteStore) PutReport(ctx context.Context, report *models.Report) error {
	if report == nil || report.Symbol == "" {
		return apperrors.NewValidationError("report", report, "report with a symbol is required")
	}
	payload, err := encodeReport(report)
	if err != nil {
		return apperrors.Wrapf(apperrors.ErrDatabaseError, "failed to encode report: %v", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO reports (symbol, payload, generated_at, priced_at, stored_at)
		VALUES (?, ?, ?, ?, ?)
	`, normalize(report.Symbol), payload, report.GeneratedAt.UTC(), report.PricedAt.UTC(), time.Now().UTC())
	if err != nil {
		return apperrors.Wrapf(apperrors.ErrDatabaseError, "failed to store report: %v", err)
	}
	return nil
}

// DeleteReport removes one cached report.
func (s *SQLiteStore) DeleteReport(ctx context.Context, symbol string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM reports WHERE symbol = ?`, normalize(symbol)); err != nil {
		return apperrors.Wrapf(apperrors.ErrDatabaseError, "failed to delete report: %v", err)
	}
	return nil
}

// ClearReports removes every cached report and returns how many were removed.
func (s *SQLiteStore) ClearReports(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM reports`)
	if err != nil {
		return 0, apperrors.Wrapf(apperrors.ErrDatabaseError, "failed to clear reports: %v", err)
	}
	rows, _ := result.RowsAffected()
	return rows, nil
}

func encodeReport(r *models.Report) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeReport(payload []byte) (*models.Report, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(payload))
	dec.SetCustomStructTag("json")
	var r models.Report
	if err := dec.Decode(&r); err != nil {
		return nil, err
	}
	return &r, nil
}

// ============================================================================
// Feedback Methods
// ============================================================================

// RecordFeedback stores a feedback record, assigning its ID and timestamp.
func (s *SQLiteStore) RecordFeedback(ctx context.Context, fb Feedback) (Feedback, error) {
	if fb.Symbol == "" {
		return fb, apperrors.NewValidationError("symbol", fb.Symbol, "symbol is required")
	}
	if fb.ID == "" {
		fb.ID = uuid.New().String()
	}
	if fb.CreatedAt.IsZero() {
		fb.CreatedAt = time.Now().UTC()
	}
	fb.Symbol = normalize(fb.Symbol)

	acted := 0
	if fb.Acted {
		acted = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feedback (id, symbol, action, acted, fundamental_score, technical_score, valuation_score, final_score, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, fb.ID, fb.Symbol, fb.Action, acted, fb.FundamentalScore, fb.TechnicalScore, fb.ValuationScore, fb.FinalScore, fb.CreatedAt)
	if err != nil {
		return fb, apperrors.Wrapf(apperrors.ErrDatabaseError, "failed to record feedback: %v", err)
	}
	return fb, nil
}

// ListFeedback returns feedback newest first.
func (s *SQLiteStore) ListFeedback(ctx context.Context, filter FeedbackFilter) ([]Feedback, error) {
	query := `
		SELECT id, symbol, action, acted, fundamental_score, technical_score, valuation_score, final_score, created_at
		FROM feedback WHERE 1=1
	`
	var args []interface{}

	if filter.Symbol != "" {
		query += " AND symbol = ?"
		args = append(args, normalize(filter.Symbol))
	}
	if filter.Acted != nil {
		query += " AND acted = ?"
		if *filter.Acted {
			args = append(args, 1)
		} else {
			args = append(args, 0)
		}
	}
	if !filter.Since.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, filter.Since.UTC())
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrDatabaseError, "failed to query feedback: %v", err)
	}
	defer rows.Close()

	var out []Feedback
	for rows.Next() {
		var fb Feedback
		var acted int
		if err := rows.Scan(&fb.ID, &fb.Symbol, &fb.Action, &acted, &fb.FundamentalScore, &fb.TechnicalScore,
			&fb.ValuationScore, &fb.FinalScore, &fb.CreatedAt); err != nil {
			return nil, apperrors.Wrapf(apperrors.ErrDatabaseError, "failed to scan feedback: %v", err)
		}
		fb.Acted = acted == 1
		out = append(out, fb)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrDatabaseError, "error iterating feedback: %v", err)
	}
	return out, nil
}

// FeedbackImportance returns the mean component scores of recommendations the
// user acted on, and how many records contributed.
func (s *SQLiteStore) FeedbackImportance(ctx context.Context) (models.ScoreWeights, int, error) {
	var n int
	var f, t, v sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), AVG(fundamental_score), AVG(technical_score), AVG(valuation_score)
		FROM feedback WHERE acted = 1
	`).Scan(&n, &f, &t, &v)
	if err != nil {
		return models.ScoreWeights{}, 0, apperrors.Wrapf(apperrors.ErrDatabaseError, "failed to aggregate feedback: %v", err)
	}
	return models.ScoreWeights{Fundamental: f.Float64, Technical: t.Float64, Valuation: v.Float64}, n, nil
}

// ============================================================================
// Weight Profile Methods
// ============================================================================

// SaveWeightProfile stores a new weight profile version.
func (s *SQLiteStore) SaveWeightProfile(ctx context.Context, profile scoring.WeightProfile, samples int) (*StoredProfile, error) {
	raw, err := json.Marshal(profile)
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrDatabaseError, "failed to encode weight profile: %v", err)
	}

	stored := &StoredProfile{
		ID:        uuid.New().String(),
		Profile:   profile,
		Samples:   samples,
		CreatedAt: time.Now().UTC(),
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO weight_profiles (id, profile, samples, created_at) VALUES (?, ?, ?, ?)
	`, stored.ID, string(raw), samples, stored.CreatedAt)
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrDatabaseError, "failed to save weight profile: %v", err)
	}
	return stored, nil
}

// LatestWeightProfile returns the newest stored profile, or nil when none exists.
func (s *SQLiteStore) LatestWeightProfile(ctx context.Context) (*StoredProfile, error) {
	var stored StoredProfile
	var raw string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, profile, samples, created_at FROM weight_profiles
		ORDER BY created_at DESC, rowid DESC LIMIT 1
	`).Scan(&stored.ID, &raw, &stored.Samples, &stored.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrDatabaseError, "failed to get weight profile: %v", err)
	}
	if err := json.Unmarshal([]byte(raw), &stored.Profile); err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrDatabaseError, "failed to decode weight profile: %v", err)
	}
	return &stored, nil
}

func normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
