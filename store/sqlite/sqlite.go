/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces.

INTERFACES IMPLEMENTED:
  hierarchy.Store: Approval chain entries (insert/delete only, no update)
  workflow.Store:  Applications, with the conditional transition write
  balance.Store:   Per officer/year balance records

TRANSITION WRITES:
  Application transitions go through a conditional UPDATE:

    UPDATE ... WHERE id = ? AND status = ? AND current_stage = ?

  Zero rows affected means either the record is gone (NotFound) or
  someone else transitioned it first (StaleTransition). This is the
  database end of the engine's optimistic-concurrency discipline.

AMOUNT STORAGE:
  Balance figures are stored as decimal strings, never floats, so
  nothing is lost round-tripping through the database.

WAL MODE:
  SQLite is opened with WAL for better concurrency: multiple readers
  don't block, single writer at a time.

SEE ALSO:
  - store/memory: In-memory implementation with identical semantics
  - workflow/store.go, hierarchy/store.go, balance/ledger.go: Contracts
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/leave-engine/balance"
	"github.com/warp/leave-engine/engine"
	"github.com/warp/leave-engine/hierarchy"
	"github.com/warp/leave-engine/workflow"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a SQLite store at the given path. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Approval hierarchy entries (create/delete only, never updated)
	CREATE TABLE IF NOT EXISTS hierarchy_entries (
		id TEXT PRIMARY KEY,
		applicant_type TEXT NOT NULL,
		applicant_position_id TEXT,           -- NULL = organization-wide chain
		approver_position_id TEXT NOT NULL,
		approval_order INTEGER NOT NULL,
		is_final_approver INTEGER NOT NULL DEFAULT 0,
		is_optional INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	-- Order unique within a chain; approver appears at most once per chain.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_entries_chain_order
		ON hierarchy_entries(applicant_type, COALESCE(applicant_position_id, ''), approval_order);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_entries_chain_approver
		ON hierarchy_entries(applicant_type, COALESCE(applicant_position_id, ''), approver_position_id);
	CREATE INDEX IF NOT EXISTS idx_entries_chain
		ON hierarchy_entries(applicant_type, applicant_position_id);

	-- Leave applications
	CREATE TABLE IF NOT EXISTS leave_applications (
		id TEXT PRIMARY KEY,
		officer_id TEXT NOT NULL,
		applicant_type TEXT NOT NULL,
		position_id TEXT NOT NULL,
		leave_type TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		reason TEXT,
		total_days INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		current_stage INTEGER NOT NULL,
		applied_at TEXT NOT NULL,
		decided_at TEXT,
		rejection_reason TEXT,
		decisions_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_applications_officer
		ON leave_applications(officer_id, applied_at DESC);
	CREATE INDEX IF NOT EXISTS idx_applications_status
		ON leave_applications(status);
	-- Approved-day deduplication scans an officer's approved ranges.
	CREATE INDEX IF NOT EXISTS idx_applications_officer_status
		ON leave_applications(officer_id, status);

	-- Balance records, one row per officer/year/leave type.
	-- Amounts stored as decimal strings.
	CREATE TABLE IF NOT EXISTS leave_balances (
		officer_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		leave_type TEXT NOT NULL,
		allocated TEXT NOT NULL DEFAULT '0',
		committed TEXT NOT NULL DEFAULT '0',
		reserved TEXT NOT NULL DEFAULT '0',
		updated_at TEXT NOT NULL,
		PRIMARY KEY (officer_id, year, leave_type)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// HIERARCHY ENTRIES (hierarchy.Store)
// =============================================================================

func (s *Store) InsertEntry(ctx context.Context, e hierarchy.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pos sql.NullString
	if e.ApplicantPositionID != nil {
		pos = sql.NullString{String: string(*e.ApplicantPositionID), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO hierarchy_entries
		(id, applicant_type, applicant_position_id, approver_position_id,
		 approval_order, is_final_approver, is_optional, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ApplicantType, pos, e.ApproverPositionID,
		e.Order, boolToInt(e.IsFinalApprover), boolToInt(e.IsOptional),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert hierarchy entry: %w", err)
	}
	return nil
}

func (s *Store) DeleteEntry(ctx context.Context, id engine.EntryID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM hierarchy_entries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete hierarchy entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return engine.ErrNotFound
	}
	return nil
}

func (s *Store) EntriesForKey(ctx context.Context, key hierarchy.Key) ([]hierarchy.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, applicant_type, applicant_position_id, approver_position_id,
		       approval_order, is_final_approver, is_optional
		FROM hierarchy_entries
		WHERE applicant_type = ? AND `
	args := []any{key.ApplicantType}
	if key.PositionID == nil {
		query += `applicant_position_id IS NULL`
	} else {
		query += `applicant_position_id = ?`
		args = append(args, *key.PositionID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query hierarchy entries: %w", err)
	}
	defer rows.Close()

	var entries []hierarchy.Entry
	for rows.Next() {
		var (
			e        hierarchy.Entry
			pos      sql.NullString
			final    int
			optional int
		)
		if err := rows.Scan(&e.ID, &e.ApplicantType, &pos, &e.ApproverPositionID, &e.Order, &final, &optional); err != nil {
			return nil, fmt.Errorf("failed to scan hierarchy entry: %w", err)
		}
		if pos.Valid {
			p := engine.PositionID(pos.String)
			e.ApplicantPositionID = &p
		}
		e.IsFinalApprover = final != 0
		e.IsOptional = optional != 0
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// APPLICATIONS (workflow.Store)
// =============================================================================

func (s *Store) Insert(ctx context.Context, app *workflow.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	decisions, err := json.Marshal(app.Decisions)
	if err != nil {
		return fmt.Errorf("failed to encode decisions: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO leave_applications
		(id, officer_id, applicant_type, position_id, leave_type,
		 start_date, end_date, reason, total_days, status, current_stage,
		 applied_at, decided_at, rejection_reason, decisions_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		app.ID, app.OfficerID, app.ApplicantType, app.PositionID, app.LeaveType,
		app.StartDate.String(), app.EndDate.String(), app.Reason,
		app.TotalDays, app.Status, app.CurrentStage,
		app.AppliedAt.UTC().Format(time.RFC3339),
		nullTime(app.DecidedAt), nullStringPtr(app.RejectionReason),
		string(decisions),
	)
	if err != nil {
		return fmt.Errorf("failed to insert application: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id engine.ApplicationID) (*workflow.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	apps, err := s.queryApplications(ctx, selectApplications+` WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(apps) == 0 {
		return nil, engine.ErrNotFound
	}
	return apps[0], nil
}

func (s *Store) ListByOfficer(ctx context.Context, officerID engine.OfficerID) ([]*workflow.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryApplications(ctx,
		selectApplications+` WHERE officer_id = ? ORDER BY applied_at DESC`, officerID)
}

func (s *Store) ListPending(ctx context.Context) ([]*workflow.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryApplications(ctx,
		selectApplications+` WHERE status = ? ORDER BY applied_at ASC`, workflow.StatusPending)
}

func (s *Store) UpdateIf(ctx context.Context, app *workflow.Application, expectedStatus workflow.Status, expectedStage int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	decisions, err := json.Marshal(app.Decisions)
	if err != nil {
		return fmt.Errorf("failed to encode decisions: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE leave_applications
		SET status = ?, current_stage = ?, decided_at = ?, rejection_reason = ?, decisions_json = ?
		WHERE id = ? AND status = ? AND current_stage = ?`,
		app.Status, app.CurrentStage, nullTime(app.DecidedAt),
		nullStringPtr(app.RejectionReason), string(decisions),
		app.ID, expectedStatus, expectedStage,
	)
	if err != nil {
		return fmt.Errorf("failed to update application: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if n == 1 {
		return nil
	}

	// Zero rows: missing record or lost race.
	var count int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM leave_applications WHERE id = ?`, app.ID,
	).Scan(&count); err != nil {
		return fmt.Errorf("failed to check application existence: %w", err)
	}
	if count == 0 {
		return engine.ErrNotFound
	}
	return engine.ErrStaleTransition
}

func (s *Store) ApprovedDays(ctx context.Context, officerID engine.OfficerID) (engine.DateSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT start_date, end_date FROM leave_applications
		WHERE officer_id = ? AND status = ?`,
		officerID, workflow.StatusApproved)
	if err != nil {
		return nil, fmt.Errorf("failed to query approved ranges: %w", err)
	}
	defer rows.Close()

	set := engine.NewDateSet()
	for rows.Next() {
		var startStr, endStr string
		if err := rows.Scan(&startStr, &endStr); err != nil {
			return nil, fmt.Errorf("failed to scan approved range: %w", err)
		}
		start, err := engine.ParseDate(startStr)
		if err != nil {
			return nil, err
		}
		end, err := engine.ParseDate(endStr)
		if err != nil {
			return nil, err
		}
		for _, d := range (engine.DateRange{Start: start, End: end}).Days() {
			set.Add(d)
		}
	}
	return set, rows.Err()
}

const selectApplications = `
	SELECT id, officer_id, applicant_type, position_id, leave_type,
	       start_date, end_date, reason, total_days, status, current_stage,
	       applied_at, decided_at, rejection_reason, decisions_json
	FROM leave_applications`

func (s *Store) queryApplications(ctx context.Context, query string, args ...any) ([]*workflow.Application, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query applications: %w", err)
	}
	defer rows.Close()

	var apps []*workflow.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}
	return apps, rows.Err()
}

func scanApplication(rows *sql.Rows) (*workflow.Application, error) {
	var (
		app             workflow.Application
		startStr        string
		endStr          string
		reason          sql.NullString
		appliedAt       string
		decidedAt       sql.NullString
		rejectionReason sql.NullString
		decisionsJSON   sql.NullString
	)

	err := rows.Scan(
		&app.ID, &app.OfficerID, &app.ApplicantType, &app.PositionID, &app.LeaveType,
		&startStr, &endStr, &reason, &app.TotalDays, &app.Status, &app.CurrentStage,
		&appliedAt, &decidedAt, &rejectionReason, &decisionsJSON,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan application: %w", err)
	}

	if app.StartDate, err = engine.ParseDate(startStr); err != nil {
		return nil, err
	}
	if app.EndDate, err = engine.ParseDate(endStr); err != nil {
		return nil, err
	}
	app.Reason = reason.String

	if t, err := time.Parse(time.RFC3339, appliedAt); err == nil {
		app.AppliedAt = t
	}
	if decidedAt.Valid {
		if t, err := time.Parse(time.RFC3339, decidedAt.String); err == nil {
			app.DecidedAt = &t
		}
	}
	if rejectionReason.Valid {
		r := rejectionReason.String
		app.RejectionReason = &r
	}
	if decisionsJSON.Valid && decisionsJSON.String != "" {
		if err := json.Unmarshal([]byte(decisionsJSON.String), &app.Decisions); err != nil {
			return nil, fmt.Errorf("failed to decode decisions: %w", err)
		}
	}

	return &app, nil
}

// =============================================================================
// BALANCE RECORDS (balance.Store)
// =============================================================================

func (s *Store) LoadYearRecord(ctx context.Context, officerID engine.OfficerID, year int) (*balance.YearRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT leave_type, allocated, committed, reserved
		FROM leave_balances
		WHERE officer_id = ? AND year = ?`,
		officerID, year)
	if err != nil {
		return nil, fmt.Errorf("failed to query year record: %w", err)
	}
	defer rows.Close()

	rec := balance.NewYearRecord(officerID, year)
	found := false
	for rows.Next() {
		var lt, allocated, committed, reserved string
		if err := rows.Scan(&lt, &allocated, &committed, &reserved); err != nil {
			return nil, fmt.Errorf("failed to scan year record row: %w", err)
		}
		b := balance.Bucket{}
		if b.Allocated, err = engine.ParseAmount(allocated); err != nil {
			return nil, err
		}
		if b.Committed, err = engine.ParseAmount(committed); err != nil {
			return nil, err
		}
		if b.Reserved, err = engine.ParseAmount(reserved); err != nil {
			return nil, err
		}
		rec.Buckets[engine.LeaveType(lt)] = b
		found = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return rec, nil
}

func (s *Store) SaveYearRecord(ctx context.Context, rec *balance.YearRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	for lt, b := range rec.Buckets {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO leave_balances (officer_id, year, leave_type, allocated, committed, reserved, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(officer_id, year, leave_type) DO UPDATE SET
				allocated = excluded.allocated,
				committed = excluded.committed,
				reserved = excluded.reserved,
				updated_at = excluded.updated_at`,
			rec.OfficerID, rec.Year, lt,
			b.Allocated.String(), b.Committed.String(), b.Reserved.String(), now,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert year record: %w", err)
		}
	}
	return tx.Commit()
}

// =============================================================================
// HELPERS
// =============================================================================

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
