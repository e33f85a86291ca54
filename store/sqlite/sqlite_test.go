package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/balance"
	"github.com/warp/leave-engine/engine"
	"github.com/warp/leave-engine/hierarchy"
	"github.com/warp/leave-engine/workflow"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestHierarchyEntryRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	pos := engine.PositionID("pos-clerk")
	entry := hierarchy.Entry{
		ID:                  "entry-1",
		ApplicantType:       engine.ApplicantOfficer,
		ApplicantPositionID: &pos,
		ApproverPositionID:  "pos-supervisor",
		Order:               1,
		IsFinalApprover:     true,
	}
	require.NoError(t, s.InsertEntry(ctx, entry))

	// Exact key match only: the org-wide chain must not see it.
	orgWide, err := s.EntriesForKey(ctx, hierarchy.OrgWideKey(engine.ApplicantOfficer))
	require.NoError(t, err)
	assert.Empty(t, orgWide)

	got, err := s.EntriesForKey(ctx, hierarchy.PositionKey(engine.ApplicantOfficer, pos))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, entry.ID, got[0].ID)
	assert.Equal(t, entry.ApproverPositionID, got[0].ApproverPositionID)
	assert.True(t, got[0].IsFinalApprover)
	require.NotNil(t, got[0].ApplicantPositionID)
	assert.Equal(t, pos, *got[0].ApplicantPositionID)

	require.NoError(t, s.DeleteEntry(ctx, entry.ID))
	assert.ErrorIs(t, s.DeleteEntry(ctx, entry.ID), engine.ErrNotFound)
}

func TestApplicationRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	app := &workflow.Application{
		ID:            "app-1",
		OfficerID:     "off-1",
		ApplicantType: engine.ApplicantOfficer,
		PositionID:    "pos-clerk",
		LeaveType:     engine.LeaveCasual,
		StartDate:     engine.NewDate(2025, time.March, 3),
		EndDate:       engine.NewDate(2025, time.March, 7),
		Reason:        "family visit",
		TotalDays:     5,
		Status:        workflow.StatusPending,
		CurrentStage:  1,
		AppliedAt:     time.Now().UTC(),
	}
	require.NoError(t, s.Insert(ctx, app))

	got, err := s.Get(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, app.OfficerID, got.OfficerID)
	assert.Equal(t, app.StartDate, got.StartDate)
	assert.Equal(t, app.EndDate, got.EndDate)
	assert.Equal(t, 5, got.TotalDays)
	assert.Equal(t, workflow.StatusPending, got.Status)
	assert.Equal(t, 1, got.CurrentStage)
	assert.Nil(t, got.DecidedAt)

	_, err = s.Get(ctx, "app-missing")
	assert.ErrorIs(t, err, engine.ErrNotFound)
}

func TestUpdateIfEnforcesExpectedState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	app := &workflow.Application{
		ID:            "app-1",
		OfficerID:     "off-1",
		ApplicantType: engine.ApplicantOfficer,
		PositionID:    "pos-clerk",
		LeaveType:     engine.LeaveSick,
		StartDate:     engine.NewDate(2025, time.April, 1),
		EndDate:       engine.NewDate(2025, time.April, 2),
		TotalDays:     2,
		Status:        workflow.StatusPending,
		CurrentStage:  1,
		AppliedAt:     time.Now().UTC(),
	}
	require.NoError(t, s.Insert(ctx, app))

	// Advance to stage 2 against the expected pending/stage-1 state.
	advanced := app.Clone()
	advanced.CurrentStage = 2
	advanced.Decisions = []workflow.Decision{{
		StageOrder:         1,
		ApproverPositionID: "pos-supervisor",
		DecidedAt:          time.Now().UTC(),
	}}
	require.NoError(t, s.UpdateIf(ctx, advanced, workflow.StatusPending, 1))

	got, err := s.Get(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.CurrentStage)
	require.Len(t, got.Decisions, 1)
	assert.Equal(t, engine.PositionID("pos-supervisor"), got.Decisions[0].ApproverPositionID)

	// A second writer still expecting stage 1 lost the race.
	stale := app.Clone()
	stale.Status = workflow.StatusApproved
	err = s.UpdateIf(ctx, stale, workflow.StatusPending, 1)
	assert.ErrorIs(t, err, engine.ErrStaleTransition)

	// Unknown id is NotFound, not a stale write.
	missing := app.Clone()
	missing.ID = "app-missing"
	err = s.UpdateIf(ctx, missing, workflow.StatusPending, 1)
	assert.ErrorIs(t, err, engine.ErrNotFound)
}

func TestApprovedDaysUnionsApprovedRanges(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insert := func(id string, status workflow.Status, start, end engine.Date) {
		t.Helper()
		require.NoError(t, s.Insert(ctx, &workflow.Application{
			ID:            engine.ApplicationID(id),
			OfficerID:     "off-1",
			ApplicantType: engine.ApplicantOfficer,
			PositionID:    "pos-clerk",
			LeaveType:     engine.LeaveCasual,
			StartDate:     start,
			EndDate:       end,
			TotalDays:     end.Time.Day() - start.Time.Day() + 1,
			Status:        status,
			CurrentStage:  1,
			AppliedAt:     time.Now().UTC(),
		}))
	}

	insert("app-approved", workflow.StatusApproved,
		engine.NewDate(2025, time.May, 1), engine.NewDate(2025, time.May, 3))
	insert("app-pending", workflow.StatusPending,
		engine.NewDate(2025, time.May, 10), engine.NewDate(2025, time.May, 12))

	set, err := s.ApprovedDays(ctx, "off-1")
	require.NoError(t, err)
	assert.Equal(t, 3, set.Len())
	assert.True(t, set.Contains(engine.NewDate(2025, time.May, 2)))
	assert.False(t, set.Contains(engine.NewDate(2025, time.May, 10)))
}

func TestYearRecordRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec, err := s.LoadYearRecord(ctx, "off-1", 2025)
	require.NoError(t, err)
	assert.Nil(t, rec, "no record before first save")

	rec = balance.NewYearRecord("off-1", 2025)
	rec.Buckets[engine.LeaveCasual] = balance.Bucket{
		Allocated: engine.NewAmountFromInt(12),
		Committed: engine.NewAmountFromInt(3),
		Reserved:  engine.NewAmountFromInt(2),
	}
	rec.Buckets[engine.LeaveSick] = balance.Bucket{
		Allocated: engine.NewAmountFromInt(8),
	}
	require.NoError(t, s.SaveYearRecord(ctx, rec))

	got, err := s.LoadYearRecord(ctx, "off-1", 2025)
	require.NoError(t, err)
	require.NotNil(t, got)
	casual := got.Bucket(engine.LeaveCasual)
	assert.True(t, casual.Allocated.Equal(engine.NewAmountFromInt(12)))
	assert.True(t, casual.Committed.Equal(engine.NewAmountFromInt(3)))
	assert.True(t, casual.Reserved.Equal(engine.NewAmountFromInt(2)))
	assert.True(t, casual.Remaining().Equal(engine.NewAmountFromInt(7)))
	assert.True(t, got.Bucket(engine.LeaveSick).Allocated.Equal(engine.NewAmountFromInt(8)))

	// Overwrite in place.
	rec.Buckets[engine.LeaveCasual] = balance.Bucket{
		Allocated: engine.NewAmountFromInt(12),
		Committed: engine.NewAmountFromInt(5),
	}
	require.NoError(t, s.SaveYearRecord(ctx, rec))
	got, err = s.LoadYearRecord(ctx, "off-1", 2025)
	require.NoError(t, err)
	assert.True(t, got.Bucket(engine.LeaveCasual).Committed.Equal(engine.NewAmountFromInt(5)))
}
