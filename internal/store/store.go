// Package store persists the resolution cache and the append-only attempt
// log in SQLite. The two tables are independent: nothing joins them, and the
// log is never read by the pipeline itself.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"moray/internal/media"
)

const schema = `
CREATE TABLE IF NOT EXISTS cache (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	content_id TEXT NOT NULL,
	media_type TEXT NOT NULL,
	audio_track TEXT NOT NULL,
	season INTEGER,
	episode INTEGER,
	url TEXT NOT NULL,
	kind TEXT NOT NULL,
	provider_id TEXT NOT NULL,
	pinned INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cache_key
	ON cache (content_id, media_type, audio_track, season, episode);

CREATE TABLE IF NOT EXISTS log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	content_id TEXT NOT NULL,
	media_type TEXT NOT NULL,
	audio_track TEXT NOT NULL,
	season INTEGER,
	episode INTEGER,
	provider_id TEXT NOT NULL,
	success INTEGER NOT NULL,
	url TEXT,
	error_message TEXT,
	created_at INTEGER NOT NULL
);
`

// Store wraps the SQLite database holding cache and log rows.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("creating data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// modernc/sqlite is serialized per connection; one connection avoids
	// table-lock races between the cache write and the log append.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// nullableInt maps the zero season/episode of movie keys to SQL NULL, so the
// exact-tuple matching has one canonical spelling for "not an episode".
func nullableInt(n int) any {
	if n == 0 {
		return nil
	}
	return n
}

// Lookup returns the cache entry for the exact key, or nil when none exists.
// Freshness is the caller's concern: stale rows are returned too.
func (s *Store) Lookup(key media.ResolutionKey) (*media.CacheEntry, error) {
	row := s.db.QueryRow(`
		SELECT season, episode, url, kind, provider_id, pinned, created_at, expires_at
		FROM cache
		WHERE content_id = ? AND media_type = ? AND audio_track = ?
		  AND season IS ? AND episode IS ?
		ORDER BY created_at DESC LIMIT 1`,
		key.ContentID, key.Type.String(), key.AudioTrack,
		nullableInt(key.Season), nullableInt(key.Episode))

	var season, episode sql.NullInt64
	var url, kind, providerID string
	var pinned bool
	var createdAt, expiresAt int64
	err := row.Scan(&season, &episode, &url, &kind, &providerID, &pinned, &createdAt, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading cache entry: %w", err)
	}

	entry := &media.CacheEntry{
		Key:        key,
		URL:        url,
		Kind:       media.SourceKind(kind),
		ProviderID: providerID,
		Pinned:     pinned,
		CreatedAt:  time.Unix(createdAt, 0),
		ExpiresAt:  time.Unix(expiresAt, 0),
	}
	entry.Key.Season = int(season.Int64)
	entry.Key.Episode = int(episode.Int64)
	return entry, nil
}

// Put writes a cache entry with overwrite semantics: any existing row for the
// exact key tuple is deleted first, then the new row inserted. An unpinned
// write never clobbers a pinned row; the pinned row stays and the write is a
// no-op.
func (s *Store) Put(entry media.CacheEntry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting cache write: %w", err)
	}
	defer tx.Rollback()

	key := entry.Key
	args := []any{
		key.ContentID, key.Type.String(), key.AudioTrack,
		nullableInt(key.Season), nullableInt(key.Episode),
	}

	if !entry.Pinned {
		var pinned int
		err := tx.QueryRow(`
			SELECT COUNT(*) FROM cache
			WHERE content_id = ? AND media_type = ? AND audio_track = ?
			  AND season IS ? AND episode IS ? AND pinned = 1`, args...).Scan(&pinned)
		if err != nil {
			return fmt.Errorf("checking pinned entry: %w", err)
		}
		if pinned > 0 {
			return nil
		}
	}

	if _, err := tx.Exec(`
		DELETE FROM cache
		WHERE content_id = ? AND media_type = ? AND audio_track = ?
		  AND season IS ? AND episode IS ?`, args...); err != nil {
		return fmt.Errorf("deleting stale cache entry: %w", err)
	}

	if _, err := tx.Exec(`
		INSERT INTO cache (content_id, media_type, audio_track, season, episode,
			url, kind, provider_id, pinned, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		key.ContentID, key.Type.String(), key.AudioTrack,
		nullableInt(key.Season), nullableInt(key.Episode),
		entry.URL, string(entry.Kind), entry.ProviderID, entry.Pinned,
		entry.CreatedAt.Unix(), entry.ExpiresAt.Unix()); err != nil {
		return fmt.Errorf("inserting cache entry: %w", err)
	}

	return tx.Commit()
}

// CountForKey returns how many cache rows exist for the exact key.
func (s *Store) CountForKey(key media.ResolutionKey) (int, error) {
	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM cache
		WHERE content_id = ? AND media_type = ? AND audio_track = ?
		  AND season IS ? AND episode IS ?`,
		key.ContentID, key.Type.String(), key.AudioTrack,
		nullableInt(key.Season), nullableInt(key.Episode)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting cache entries: %w", err)
	}
	return n, nil
}

// PurgeCache removes expired rows. With all set it removes everything except
// pinned rows; pinned rows only go when both all and includePinned are set.
func (s *Store) PurgeCache(now time.Time, all, includePinned bool) (int64, error) {
	var res sql.Result
	var err error
	switch {
	case all && includePinned:
		res, err = s.db.Exec(`DELETE FROM cache`)
	case all:
		res, err = s.db.Exec(`DELETE FROM cache WHERE pinned = 0`)
	default:
		res, err = s.db.Exec(`DELETE FROM cache WHERE pinned = 0 AND expires_at <= ?`, now.Unix())
	}
	if err != nil {
		return 0, fmt.Errorf("purging cache: %w", err)
	}
	return res.RowsAffected()
}

// ListCache returns cache rows, newest first.
func (s *Store) ListCache(limit int) ([]media.CacheEntry, error) {
	rows, err := s.db.Query(`
		SELECT content_id, media_type, audio_track, season, episode,
			url, kind, provider_id, pinned, created_at, expires_at
		FROM cache ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing cache: %w", err)
	}
	defer rows.Close()

	var entries []media.CacheEntry
	for rows.Next() {
		var e media.CacheEntry
		var mediaType string
		var season, episode sql.NullInt64
		var createdAt, expiresAt int64
		if err := rows.Scan(&e.Key.ContentID, &mediaType, &e.Key.AudioTrack,
			&season, &episode, &e.URL, (*string)(&e.Kind), &e.ProviderID,
			&e.Pinned, &createdAt, &expiresAt); err != nil {
			return nil, fmt.Errorf("scanning cache row: %w", err)
		}
		e.Key.Type = media.ParseMediaType(mediaType)
		e.Key.Season = int(season.Int64)
		e.Key.Episode = int(episode.Int64)
		e.CreatedAt = time.Unix(createdAt, 0)
		e.ExpiresAt = time.Unix(expiresAt, 0)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// AppendLog records one resolution attempt. Append-only.
func (s *Store) AppendLog(entry media.LogEntry) error {
	key := entry.Key
	_, err := s.db.Exec(`
		INSERT INTO log (content_id, media_type, audio_track, season, episode,
			provider_id, success, url, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		key.ContentID, key.Type.String(), key.AudioTrack,
		nullableInt(key.Season), nullableInt(key.Episode),
		entry.ProviderID, entry.Success, entry.URL, entry.ErrorMessage,
		entry.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("appending log entry: %w", err)
	}
	return nil
}

// ListLogs returns log rows, newest first.
func (s *Store) ListLogs(limit int) ([]media.LogEntry, error) {
	rows, err := s.db.Query(`
		SELECT content_id, media_type, audio_track, season, episode,
			provider_id, success, url, error_message, created_at
		FROM log ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing logs: %w", err)
	}
	defer rows.Close()

	var entries []media.LogEntry
	for rows.Next() {
		var e media.LogEntry
		var mediaType string
		var season, episode sql.NullInt64
		var url, errMsg sql.NullString
		var createdAt int64
		if err := rows.Scan(&e.Key.ContentID, &mediaType, &e.Key.AudioTrack,
			&season, &episode, &e.ProviderID, &e.Success, &url, &errMsg,
			&createdAt); err != nil {
			return nil, fmt.Errorf("scanning log row: %w", err)
		}
		e.Key.Type = media.ParseMediaType(mediaType)
		e.Key.Season = int(season.Int64)
		e.Key.Episode = int(episode.Int64)
		e.URL = url.String
		e.ErrorMessage = errMsg.String
		e.CreatedAt = time.Unix(createdAt, 0)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// PurgeLogs deletes the whole audit trail.
func (s *Store) PurgeLogs() (int64, error) {
	res, err := s.db.Exec(`DELETE FROM log`)
	if err != nil {
		return 0, fmt.Errorf("purging logs: %w", err)
	}
	return res.RowsAffected()
}
