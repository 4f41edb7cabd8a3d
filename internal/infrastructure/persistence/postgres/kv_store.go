package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/proximity-attendance/internal/domain/attendance"
)

var _ attendance.DurableStore = (*KVStore)(nil)

// KVStore is a DurableStore over the kv_blobs table.
type KVStore struct {
	conn         *Connection
	queryTimeout time.Duration
}

// NewKVStore creates the store. A zero queryTimeout leaves deadlines to
// the caller's context.
func NewKVStore(conn *Connection, queryTimeout time.Duration) *KVStore {
	return &KVStore{conn: conn, queryTimeout: queryTimeout}
}

func (s *KVStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.queryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.queryTimeout)
}

// Get returns the blob under key.
func (s *KVStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var value []byte
	err := s.conn.QueryRow(ctx, `SELECT value FROM kv_blobs WHERE key = $1`, key).Scan(&value)
	if IsNoRows(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("postgres: get %q: %w", key, err)
	}
	return value, true, nil
}

// Put upserts the blob under key and bumps its revision.
func (s *KVStore) Put(ctx context.Context, key string, value []byte) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.conn.Exec(ctx, `
		INSERT INTO kv_blobs (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value,
		    updated_at = NOW(),
		    revision = kv_blobs.revision + 1`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("postgres: put %q: %w", key, err)
	}
	return nil
}

// Ping checks the pool.
func (s *KVStore) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

// Close closes the pool.
func (s *KVStore) Close() error {
	s.conn.Close()
	return nil
}
