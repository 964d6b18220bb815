// Package cache keeps upstream payloads in a SQLite file so repeated
// lookups do not hit the remote services. Payloads are stored
// zstd-compressed.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS payloads (
	key       TEXT PRIMARY KEY,
	data      BLOB NOT NULL,
	stored_at INTEGER NOT NULL
)`

// Store is a TTL cache backed by SQLite. It is safe for concurrent use.
type Store struct {
	conn   *sql.DB
	ttl    time.Duration
	logger *slog.Logger
	enc    *zstd.Encoder
	dec    *zstd.Decoder
	now    func() time.Time
}

// Open opens or creates the cache database at path.
func Open(path string, ttl time.Duration, logger *slog.Logger) (*Store, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		conn.Close()
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		conn.Close()
		return nil, err
	}

	logger.Debug("cache opened", "path", path, "ttl", ttl)
	return &Store{
		conn:   conn,
		ttl:    ttl,
		logger: logger,
		enc:    enc,
		dec:    dec,
		now:    time.Now,
	}, nil
}

// Get returns the payload stored under key if it is younger than the TTL.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		data     []byte
		storedAt int64
	)
	err := s.conn.QueryRowContext(ctx,
		"SELECT data, stored_at FROM payloads WHERE key = ?", key).Scan(&data, &storedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache lookup %q: %w", key, err)
	}

	if s.now().Sub(time.Unix(0, storedAt)) > s.ttl {
		return nil, false, nil
	}

	payload, err := s.dec.DecodeAll(data, nil)
	if err != nil {
		return nil, false, fmt.Errorf("cache decode %q: %w", key, err)
	}
	return payload, true, nil
}

// Put stores payload under key, replacing any older entry.
func (s *Store) Put(ctx context.Context, key string, payload []byte) error {
	data := s.enc.EncodeAll(payload, nil)
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO payloads (key, data, stored_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET data = excluded.data, stored_at = excluded.stored_at`,
		key, data, s.now().UnixNano())
	if err != nil {
		return fmt.Errorf("cache store %q: %w", key, err)
	}
	return nil
}

// Prune deletes every expired entry and reports how many were removed.
func (s *Store) Prune(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.ttl).UnixNano()
	res, err := s.conn.ExecContext(ctx, "DELETE FROM payloads WHERE stored_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("cache prune: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) Close() error {
	s.enc.Close()
	s.dec.Close()
	return s.conn.Close()
}
