package attendance

import (
	"context"
)

// Storage keys the ledger persists its two collections under.
const (
	KeySessions = "sessions"
	KeyRecords  = "records"
)

// DurableStore is a blob store keyed by name. The ledger is its only writer.
// This interface is implemented by the infrastructure layer.
type DurableStore interface {
	// Get returns the stored blob. A missing key reports ok=false and no error.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Put replaces the blob stored under key.
	Put(ctx context.Context, key string, value []byte) error
}

// IdentityProvider supplies who is acting. The ledger trusts the ids it is
// handed and never authenticates.
type IdentityProvider interface {
	// Lookup returns a person by id.
	Lookup(ctx context.Context, personID string) (Person, error)

	// People lists every known person, ordered by name.
	People(ctx context.Context) ([]Person, error)
}
