/*
Package balance implements the per-officer, per-year leave balance ledger.

PURPOSE:
  Guarantees that no officer is ever granted more leave days than their
  annual allocation, even under concurrent submissions. Balances split
  into three buckets per leave type:

    allocated  what the administrator granted for the year
    committed  days permanently debited by approved applications
    reserved   days held by currently pending applications

INVARIANT:
  committed + reserved <= allocated, for every leave type, after every
  operation. Reserve fails rather than let two pending requests
  over-commit the same allocation.

LIFECYCLE OF A REQUEST'S DAYS:
  submit   -> reserve   (reserved += days, fails if over allocation)
  approve  -> commit    (reserved -= days, committed += days)
  reject   -> release   (reserved -= days)
  cancel   -> release   (reserved -= days)

ATOMICITY:
  Every mutation is a single read-modify-write against the year record,
  serialized per (officerID, year) key. Partial application (reserved
  decremented but committed not incremented) is a correctness violation.

SEE ALSO:
  - workflow/workflow.go: The only caller of reserve/commit/release
  - store/sqlite: Persistent year records
*/
package balance

import (
	"context"
	"fmt"
	"sync"

	"github.com/warp/leave-engine/engine"
)

// =============================================================================
// YEAR RECORD - One officer, one calendar year
// =============================================================================

// Bucket holds the three balance figures for one leave type.
type Bucket struct {
	Allocated engine.Amount
	Committed engine.Amount
	Reserved  engine.Amount
}

// Remaining returns allocated - committed - reserved.
func (b Bucket) Remaining() engine.Amount {
	return b.Allocated.Sub(b.Committed).Sub(b.Reserved)
}

// YearRecord is the balance state for one officer in one calendar year.
type YearRecord struct {
	OfficerID engine.OfficerID
	Year      int
	Buckets   map[engine.LeaveType]Bucket
}

func NewYearRecord(officerID engine.OfficerID, year int) *YearRecord {
	return &YearRecord{
		OfficerID: officerID,
		Year:      year,
		Buckets:   make(map[engine.LeaveType]Bucket),
	}
}

// Bucket returns the bucket for a leave type (zero-valued if unset).
func (r *YearRecord) Bucket(lt engine.LeaveType) Bucket {
	return r.Buckets[lt]
}

// =============================================================================
// STORE - Persistence interface
// =============================================================================

// Store persists year records. Load/Save are only ever called under the
// ledger's per-key serialization, so implementations need no additional
// coordination between the two calls.
type Store interface {
	// LoadYearRecord returns the record, or nil if none exists yet.
	LoadYearRecord(ctx context.Context, officerID engine.OfficerID, year int) (*YearRecord, error)

	// SaveYearRecord upserts the record.
	SaveYearRecord(ctx context.Context, rec *YearRecord) error
}

// =============================================================================
// LEDGER - Serialized balance mutations
// =============================================================================

// Ledger exclusively owns the committed/reserved fields of year records.
// All mutations are serialized per (officerID, year).
type Ledger struct {
	store Store

	mu    sync.Mutex
	locks map[lockKey]*sync.Mutex
}

type lockKey struct {
	OfficerID engine.OfficerID
	Year      int
}

func NewLedger(store Store) *Ledger {
	return &Ledger{
		store: store,
		locks: make(map[lockKey]*sync.Mutex),
	}
}

// lockFor returns the mutex serializing one (officer, year) record.
func (l *Ledger) lockFor(officerID engine.OfficerID, year int) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := lockKey{OfficerID: officerID, Year: year}
	if _, ok := l.locks[k]; !ok {
		l.locks[k] = &sync.Mutex{}
	}
	return l.locks[k]
}

// SetAllocation sets the annual allocation for one leave type, creating
// the year record if needed. Fails if the new allocation is below what
// is already committed + reserved.
func (l *Ledger) SetAllocation(ctx context.Context, officerID engine.OfficerID, year int, lt engine.LeaveType, allocated engine.Amount) error {
	if allocated.IsNegative() {
		return fmt.Errorf("allocation cannot be negative: %v", allocated.Value)
	}

	mu := l.lockFor(officerID, year)
	mu.Lock()
	defer mu.Unlock()

	rec, err := l.loadOrCreate(ctx, officerID, year)
	if err != nil {
		return err
	}

	b := rec.Bucket(lt)
	inUse := b.Committed.Add(b.Reserved)
	if allocated.LessThan(inUse) {
		return fmt.Errorf("allocation %v below already committed+reserved %v for %s/%d/%s",
			allocated.Value, inUse.Value, officerID, year, lt)
	}

	b.Allocated = allocated
	rec.Buckets[lt] = b
	return l.store.SaveYearRecord(ctx, rec)
}

// Remaining returns allocated - committed - reserved for one leave type.
// An officer with no year record has zero remaining.
func (l *Ledger) Remaining(ctx context.Context, officerID engine.OfficerID, year int, lt engine.LeaveType) (engine.Amount, error) {
	rec, err := l.store.LoadYearRecord(ctx, officerID, year)
	if err != nil {
		return engine.Amount{}, fmt.Errorf("failed to load year record: %w", err)
	}
	if rec == nil {
		return engine.ZeroAmount(), nil
	}
	return rec.Bucket(lt).Remaining(), nil
}

// Record returns the full year record for display. Nil if none exists.
func (l *Ledger) Record(ctx context.Context, officerID engine.OfficerID, year int) (*YearRecord, error) {
	return l.store.LoadYearRecord(ctx, officerID, year)
}

// Reserve holds days against a pending application. Fails with
// InsufficientBalanceError if days exceed the remaining allocation.
func (l *Ledger) Reserve(ctx context.Context, officerID engine.OfficerID, year int, lt engine.LeaveType, days engine.Amount) error {
	if !days.IsPositive() {
		return fmt.Errorf("reserve amount must be positive, got %v", days.Value)
	}

	mu := l.lockFor(officerID, year)
	mu.Lock()
	defer mu.Unlock()

	rec, err := l.loadOrCreate(ctx, officerID, year)
	if err != nil {
		return err
	}

	b := rec.Bucket(lt)
	if days.GreaterThan(b.Remaining()) {
		return &engine.InsufficientBalanceError{
			OfficerID: officerID,
			Year:      year,
			LeaveType: lt,
			Remaining: b.Remaining(),
			Requested: days,
		}
	}

	b.Reserved = b.Reserved.Add(days)
	rec.Buckets[lt] = b
	return l.store.SaveYearRecord(ctx, rec)
}

// Commit moves days from reserved to committed. Called only on final
// approval; the days were reserved at submit, so reserved >= days here
// unless the ledger was bypassed.
func (l *Ledger) Commit(ctx context.Context, officerID engine.OfficerID, year int, lt engine.LeaveType, days engine.Amount) error {
	mu := l.lockFor(officerID, year)
	mu.Lock()
	defer mu.Unlock()

	rec, err := l.loadOrCreate(ctx, officerID, year)
	if err != nil {
		return err
	}

	b := rec.Bucket(lt)
	if days.GreaterThan(b.Reserved) {
		return fmt.Errorf("commit %v exceeds reserved %v for %s/%d/%s",
			days.Value, b.Reserved.Value, officerID, year, lt)
	}

	b.Reserved = b.Reserved.Sub(days)
	b.Committed = b.Committed.Add(days)
	rec.Buckets[lt] = b
	return l.store.SaveYearRecord(ctx, rec)
}

// Release drops a reservation without committing. Called on rejection
// and cancellation.
func (l *Ledger) Release(ctx context.Context, officerID engine.OfficerID, year int, lt engine.LeaveType, days engine.Amount) error {
	mu := l.lockFor(officerID, year)
	mu.Lock()
	defer mu.Unlock()

	rec, err := l.loadOrCreate(ctx, officerID, year)
	if err != nil {
		return err
	}

	b := rec.Bucket(lt)
	if days.GreaterThan(b.Reserved) {
		return fmt.Errorf("release %v exceeds reserved %v for %s/%d/%s",
			days.Value, b.Reserved.Value, officerID, year, lt)
	}

	b.Reserved = b.Reserved.Sub(days)
	rec.Buckets[lt] = b
	return l.store.SaveYearRecord(ctx, rec)
}

func (l *Ledger) loadOrCreate(ctx context.Context, officerID engine.OfficerID, year int) (*YearRecord, error) {
	rec, err := l.store.LoadYearRecord(ctx, officerID, year)
	if err != nil {
		return nil, fmt.Errorf("failed to load year record: %w", err)
	}
	if rec == nil {
		rec = NewYearRecord(officerID, year)
	}
	return rec, nil
}
