package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE KV BLOBS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Ledger collections, one JSON document per key ("sessions", "records").
CREATE TABLE IF NOT EXISTS kv_blobs (
    key        TEXT PRIMARY KEY,
    value      BYTEA NOT NULL,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);
`

const migration001Down = `
DROP TABLE IF EXISTS kv_blobs;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: WRITE COUNTER
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Incremented on every overwrite; useful when auditing how often a collection changes.
ALTER TABLE kv_blobs ADD COLUMN IF NOT EXISTS revision BIGINT NOT NULL DEFAULT 1;
`

const migration002Down = `
ALTER TABLE kv_blobs DROP COLUMN IF EXISTS revision;
`

// GetMigrations returns all embedded migrations.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_kv_blobs",
			UpSQL:   migration001Up,
			DownSQL: migration001Down,
		},
		{
			Version: 2,
			Name:    "kv_blobs_revision",
			UpSQL:   migration002Up,
			DownSQL: migration002Down,
		},
	}
}
