package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // register the sqlite3 driver
	"go.uber.org/zap"

	"spence/pkg/musiclink"
)

const tracksSchema = `
CREATE TABLE IF NOT EXISTS resolved_tracks (
	query       TEXT PRIMARY KEY,
	track_id    TEXT NOT NULL,
	title       TEXT NOT NULL,
	artist      TEXT NOT NULL,
	duration_ms INTEGER NOT NULL,
	stream_url  TEXT NOT NULL,
	platform    TEXT NOT NULL,
	artwork_url TEXT NOT NULL DEFAULT '',
	isrc        TEXT NOT NULL DEFAULT '',
	stored_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_resolved_tracks_stored_at ON resolved_tracks(stored_at);
`

// TrackStore persists resolutions in SQLite so they survive restarts.
// Rows older than the TTL are ignored on read and removed by Purge.
type TrackStore struct {
	db     *sql.DB
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// OpenTrackStore opens (or creates) the database at path. path may be ":memory:".
func OpenTrackStore(path string, ttl time.Duration, logger *zap.Logger) (*TrackStore, error) {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open track store: %w", err)
	}
	// SQLite serialises writers; one connection also keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping track store: %w", err)
	}
	if _, err := db.Exec(tracksSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create track store schema: %w", err)
	}

	logger.Debug("Opened track store", zap.String("path", path), zap.Duration("ttl", ttl))
	return &TrackStore{db: db, ttl: ttl, now: time.Now, logger: logger}, nil
}

// StoredTrack is a persisted resolution and the time it was stored.
type StoredTrack struct {
	Track    *musiclink.Track
	StoredAt time.Time
}

// Get returns the stored track for query if it exists and is not older than the TTL.
func (s *TrackStore) Get(ctx context.Context, query string) (*StoredTrack, bool, error) {
	var (
		track    musiclink.Track
		storedAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT track_id, title, artist, duration_ms, stream_url, platform, artwork_url, isrc, stored_at
		FROM resolved_tracks WHERE query = ?`, query).Scan(
		&track.ID, &track.Title, &track.Artist, &track.DurationMS, &track.StreamURL,
		&track.Platform, &track.ArtworkURL, &track.ISRC, &storedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read track: %w", err)
	}

	stored := time.UnixMilli(storedAt)
	if s.now().Sub(stored) > s.ttl {
		return nil, false, nil
	}
	return &StoredTrack{Track: &track, StoredAt: stored}, true, nil
}

// Put stores track under query, replacing any previous row.
func (s *TrackStore) Put(ctx context.Context, query string, track *musiclink.Track) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO resolved_tracks
			(query, track_id, title, artist, duration_ms, stream_url, platform, artwork_url, isrc, stored_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(query) DO UPDATE SET
			track_id = excluded.track_id,
			title = excluded.title,
			artist = excluded.artist,
			duration_ms = excluded.duration_ms,
			stream_url = excluded.stream_url,
			platform = excluded.platform,
			artwork_url = excluded.artwork_url,
			isrc = excluded.isrc,
			stored_at = excluded.stored_at`,
		query, track.ID, track.Title, track.Artist, track.DurationMS, track.StreamURL,
		track.Platform, track.ArtworkURL, track.ISRC, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to store track: %w", err)
	}
	return nil
}

// Purge deletes rows older than the TTL and returns how many were removed.
func (s *TrackStore) Purge(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.ttl).UnixMilli()
	result, err := s.db.ExecContext(ctx, `DELETE FROM resolved_tracks WHERE stored_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge tracks: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count purged tracks: %w", err)
	}
	if removed > 0 {
		s.logger.Info("Purged expired tracks", zap.Int64("count", removed))
	}
	return removed, nil
}

// Count returns the number of stored rows, stale ones included.
func (s *TrackStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM resolved_tracks`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count tracks: %w", err)
	}
	return count, nil
}

// Ping checks the database connection.
func (s *TrackStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *TrackStore) Close() error {
	return s.db.Close()
}
