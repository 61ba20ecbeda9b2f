// Package store persists fingerprint profiles and session relay
// statistics in PostgreSQL. Persistence is optional; the proxy core
// never depends on it.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/shroud/internal/fingerprint"
	"github.com/xkilldash9x/shroud/internal/proxy"
)

// ErrProfileNotFound is returned when no profile exists for a seed.
var ErrProfileNotFound = errors.New("store: profile not found")

// DBPool abstracts pgxpool.Pool so tests can substitute a mock.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store provides the PostgreSQL implementation.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// SaveProfile upserts a profile keyed by its seed. The attribute bundle
// is stored as JSONB so profile changes never need a migration.
func (s *Store) SaveProfile(ctx context.Context, profile *fingerprint.Profile) error {
	payload, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}

	sql := `
        INSERT INTO profiles (seed, device_class, attributes, created_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (seed) DO UPDATE SET
            device_class = EXCLUDED.device_class,
            attributes = EXCLUDED.attributes;
    `
	if _, err := s.pool.Exec(ctx, sql, profile.Seed, string(profile.DeviceClass), payload, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	s.log.Debug("Profile persisted", zap.String("seed", profile.Seed))
	return nil
}

// GetProfile loads the profile stored for a seed.
func (s *Store) GetProfile(ctx context.Context, seed string) (*fingerprint.Profile, error) {
	var payload []byte
	row := s.pool.QueryRow(ctx, `SELECT attributes FROM profiles WHERE seed = $1`, seed)
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	var profile fingerprint.Profile
	if err := json.Unmarshal(payload, &profile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
	}
	return &profile, nil
}

// SaveSessionStats records what one session did with its frames.
func (s *Store) SaveSessionStats(ctx context.Context, sessionID, seed string, stats proxy.StatsSnapshot) error {
	sql := `
        INSERT INTO session_stats (
            session_id, seed,
            forwarded_out, forwarded_in, blocked, rewritten,
            suppressed_events, dropped_malformed, dropped_unmatched,
            closed_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);
    `
	_, err := s.pool.Exec(ctx, sql,
		sessionID, seed,
		stats.ForwardedOut, stats.ForwardedIn, stats.Blocked, stats.Rewritten,
		stats.SuppressedEvents, stats.DroppedMalformed, stats.DroppedUnmatched,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save session stats: %w", err)
	}
	return nil
}
