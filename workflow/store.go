package workflow

import (
	"context"

	"github.com/warp/leave-engine/engine"
)

// Store persists applications. Applications are append-only at the
// record level: Insert creates, UpdateIf transitions, nothing deletes.
//
// OPTIMISTIC CONCURRENCY:
//   UpdateIf is the single write path for transitions. It must compare
//   the stored record's (status, stage) against the expected pair and
//   fail with engine.ErrStaleTransition on mismatch, so an approver
//   approving while the officer cancels can never silently overwrite.
//
// IMPLEMENTATIONS:
//   - store/memory: In-memory for testing
//   - store/sqlite: Production SQLite (conditional UPDATE)
type Store interface {
	// Insert persists a new application.
	Insert(ctx context.Context, app *Application) error

	// Get returns an application by ID, or engine.ErrNotFound.
	Get(ctx context.Context, id engine.ApplicationID) (*Application, error)

	// ListByOfficer returns all applications an officer ever submitted,
	// newest first.
	ListByOfficer(ctx context.Context, officerID engine.OfficerID) ([]*Application, error)

	// ListPending returns all pending applications.
	ListPending(ctx context.Context) ([]*Application, error)

	// UpdateIf persists app's state only if the stored record still has
	// the expected status and stage. Returns engine.ErrStaleTransition
	// on mismatch, engine.ErrNotFound if the record is gone.
	UpdateIf(ctx context.Context, app *Application, expectedStatus Status, expectedStage int) error

	// ApprovedDays returns every calendar date covered by the officer's
	// approved applications. Feeds working-day deduplication at submit.
	ApprovedDays(ctx context.Context, officerID engine.OfficerID) (engine.DateSet, error)
}
