package hierarchy

import (
	"context"

	"github.com/warp/leave-engine/engine"
)

// Store persists approval hierarchy entries. Entries are created and
// deleted, never updated in place.
//
// IMPLEMENTATIONS:
//   - store/memory: In-memory for testing
//   - store/sqlite: Production SQLite
type Store interface {
	// InsertEntry persists a new entry.
	InsertEntry(ctx context.Context, e Entry) error

	// DeleteEntry removes an entry by ID. Returns engine.ErrNotFound
	// if the entry doesn't exist. Surviving orders are NOT renumbered.
	DeleteEntry(ctx context.Context, id engine.EntryID) error

	// EntriesForKey returns all entries for exactly this chain key,
	// in no particular order.
	EntriesForKey(ctx context.Context, key Key) ([]Entry, error)
}
