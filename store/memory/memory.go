// Package memory provides an in-memory implementation of every store
// interface. Used by tests and the dev server (-db=:memory: equivalent
// without SQLite); it mirrors the SQLite store's semantics, including
// the conditional transition write.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/leave-engine/balance"
	"github.com/warp/leave-engine/engine"
	"github.com/warp/leave-engine/hierarchy"
	"github.com/warp/leave-engine/workflow"
)

// Store implements hierarchy.Store, balance.Store and workflow.Store.
type Store struct {
	mu sync.RWMutex

	entries  map[engine.EntryID]hierarchy.Entry
	apps     map[engine.ApplicationID]*workflow.Application
	balances map[balanceKey]*balance.YearRecord
}

type balanceKey struct {
	OfficerID engine.OfficerID
	Year      int
}

func New() *Store {
	return &Store{
		entries:  make(map[engine.EntryID]hierarchy.Entry),
		apps:     make(map[engine.ApplicationID]*workflow.Application),
		balances: make(map[balanceKey]*balance.YearRecord),
	}
}

// =============================================================================
// HIERARCHY ENTRIES (hierarchy.Store)
// =============================================================================

func (s *Store) InsertEntry(_ context.Context, e hierarchy.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.ID] = e
	return nil
}

func (s *Store) DeleteEntry(_ context.Context, id engine.EntryID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		return engine.ErrNotFound
	}
	delete(s.entries, id)
	return nil
}

func (s *Store) EntriesForKey(_ context.Context, key hierarchy.Key) ([]hierarchy.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []hierarchy.Entry
	for _, e := range s.entries {
		if key.Matches(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

// =============================================================================
// APPLICATIONS (workflow.Store)
// =============================================================================

func (s *Store) Insert(_ context.Context, app *workflow.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apps[app.ID] = app.Clone()
	return nil
}

func (s *Store) Get(_ context.Context, id engine.ApplicationID) (*workflow.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	app, ok := s.apps[id]
	if !ok {
		return nil, engine.ErrNotFound
	}
	return app.Clone(), nil
}

func (s *Store) ListByOfficer(_ context.Context, officerID engine.OfficerID) ([]*workflow.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*workflow.Application
	for _, app := range s.apps {
		if app.OfficerID == officerID {
			out = append(out, app.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AppliedAt.After(out[j].AppliedAt) })
	return out, nil
}

func (s *Store) ListPending(_ context.Context) ([]*workflow.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*workflow.Application
	for _, app := range s.apps {
		if app.Status == workflow.StatusPending {
			out = append(out, app.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AppliedAt.Before(out[j].AppliedAt) })
	return out, nil
}

func (s *Store) UpdateIf(_ context.Context, app *workflow.Application, expectedStatus workflow.Status, expectedStage int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.apps[app.ID]
	if !ok {
		return engine.ErrNotFound
	}
	if stored.Status != expectedStatus || stored.CurrentStage != expectedStage {
		return engine.ErrStaleTransition
	}
	s.apps[app.ID] = app.Clone()
	return nil
}

func (s *Store) ApprovedDays(_ context.Context, officerID engine.OfficerID) (engine.DateSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set := engine.NewDateSet()
	for _, app := range s.apps {
		if app.OfficerID != officerID || app.Status != workflow.StatusApproved {
			continue
		}
		for _, d := range app.Range().Days() {
			set.Add(d)
		}
	}
	return set, nil
}

// =============================================================================
// BALANCE YEAR RECORDS (balance.Store)
// =============================================================================

func (s *Store) LoadYearRecord(_ context.Context, officerID engine.OfficerID, year int) (*balance.YearRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.balances[balanceKey{OfficerID: officerID, Year: year}]
	if !ok {
		return nil, nil
	}
	return cloneRecord(rec), nil
}

func (s *Store) SaveYearRecord(_ context.Context, rec *balance.YearRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[balanceKey{OfficerID: rec.OfficerID, Year: rec.Year}] = cloneRecord(rec)
	return nil
}

func cloneRecord(rec *balance.YearRecord) *balance.YearRecord {
	cp := balance.NewYearRecord(rec.OfficerID, rec.Year)
	for lt, b := range rec.Buckets {
		cp.Buckets[lt] = b
	}
	return cp
}
