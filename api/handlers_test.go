/*
handlers_test.go - HTTP-level tests for the API

Tests drive the full router with httptest against the in-memory store:
chain configuration, the submit/approve/reject/cancel flows, balance
summaries, and the domain-error to status-code mapping.
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/balance"
	"github.com/warp/leave-engine/engine"
	"github.com/warp/leave-engine/hierarchy"
	"github.com/warp/leave-engine/store/memory"
	"github.com/warp/leave-engine/workflow"
)

type fixture struct {
	router http.Handler
	store  *memory.Store
	ledger *balance.Ledger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.New()
	chains := hierarchy.NewService(store)
	ledger := balance.NewLedger(store)
	log := zerolog.Nop()
	eng := workflow.NewEngine(store, chains, ledger, nil, log)

	h := NewHandler(eng, chains, ledger, log)
	return &fixture{
		router: NewRouter(h),
		store:  store,
		ledger: ledger,
	}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

// seedChain configures supervisor (stage 1) then director (stage 2,
// final) for the pos-clerk position.
func (f *fixture) seedChain(t *testing.T) {
	t.Helper()
	for _, req := range []AddApproverRequest{
		{ApplicantType: "officer", PositionID: strPtr("pos-clerk"), ApproverPositionID: "pos-supervisor"},
		{ApplicantType: "officer", PositionID: strPtr("pos-clerk"), ApproverPositionID: "pos-director", IsFinalApprover: true},
	} {
		rec := f.do(t, http.MethodPost, "/api/hierarchy/approvers", req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
}

func (f *fixture) allocate(t *testing.T, officerID string, days float64) {
	t.Helper()
	require.NoError(t, f.ledger.SetAllocation(context.Background(),
		engine.OfficerID(officerID), 2025, engine.LeaveCasual, engine.NewAmount(days)))
}

func submitBody(officerID string) SubmitLeaveRequest {
	return SubmitLeaveRequest{
		OfficerID:     officerID,
		ApplicantType: "officer",
		PositionID:    "pos-clerk",
		LeaveType:     "casual",
		StartDate:     "2025-06-02",
		EndDate:       "2025-06-06",
		Reason:        "family event",
	}
}

func strPtr(s string) *string { return &s }

// =============================================================================
// HIERARCHY
// =============================================================================

func TestChainConfiguration(t *testing.T) {
	f := newFixture(t)

	// GIVEN: Two approvers appended to a position-specific chain
	f.seedChain(t)

	// WHEN: Listing the chain for that exact key
	rec := f.do(t, http.MethodGet, "/api/hierarchy/chain?applicant_type=officer&position_id=pos-clerk", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decode[[]ChainEntryDTO](t, rec)

	// THEN: Orders were auto-assigned in append order
	require.Len(t, entries, 2)
	assert.Equal(t, "pos-supervisor", entries[0].ApproverPositionID)
	assert.Equal(t, 1, entries[0].Order)
	assert.Equal(t, "pos-director", entries[1].ApproverPositionID)
	assert.Equal(t, 2, entries[1].Order)
	assert.True(t, entries[1].IsFinalApprover)

	// AND: The org-wide chain for the same type stays empty
	rec = f.do(t, http.MethodGet, "/api/hierarchy/chain?applicant_type=officer", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]ChainEntryDTO](t, rec))
}

func TestSelfApprovalRejected(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/hierarchy/approvers", AddApproverRequest{
		ApplicantType:      "officer",
		PositionID:         strPtr("pos-clerk"),
		ApproverPositionID: "pos-clerk",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDuplicateApproverRejected(t *testing.T) {
	f := newFixture(t)
	f.seedChain(t)

	rec := f.do(t, http.MethodPost, "/api/hierarchy/approvers", AddApproverRequest{
		ApplicantType:      "officer",
		PositionID:         strPtr("pos-clerk"),
		ApproverPositionID: "pos-supervisor",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRemoveApprover(t *testing.T) {
	f := newFixture(t)
	f.seedChain(t)

	rec := f.do(t, http.MethodGet, "/api/hierarchy/chain?applicant_type=officer&position_id=pos-clerk", nil)
	entries := decode[[]ChainEntryDTO](t, rec)
	require.Len(t, entries, 2)

	rec = f.do(t, http.MethodDelete, "/api/hierarchy/approvers/"+entries[0].ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// Remaining entry keeps its original order.
	rec = f.do(t, http.MethodGet, "/api/hierarchy/chain?applicant_type=officer&position_id=pos-clerk", nil)
	entries = decode[[]ChainEntryDTO](t, rec)
	require.Len(t, entries, 1)
	assert.Equal(t, 2, entries[0].Order)

	rec = f.do(t, http.MethodDelete, "/api/hierarchy/approvers/no-such-entry", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// LEAVE LIFECYCLE
// =============================================================================

func TestSubmitApproveFlow(t *testing.T) {
	f := newFixture(t)
	f.seedChain(t)
	f.allocate(t, "off-1", 12)

	// Submit
	rec := f.do(t, http.MethodPost, "/api/leaves", submitBody("off-1"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	app := decode[ApplicationDTO](t, rec)
	assert.Equal(t, "pending", app.Status)
	assert.Equal(t, 1, app.CurrentStage)
	assert.Equal(t, 5, app.TotalDays)

	// Balance holds the reservation
	rec = f.do(t, http.MethodGet, "/api/balances/off-1?year=2025", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode[BalanceSummaryDTO](t, rec)
	casual := findBucket(t, summary, "casual")
	assert.Equal(t, 5.0, casual.Reserved)
	assert.Equal(t, 7.0, casual.Remaining)

	// Stage 1 approval advances
	rec = f.do(t, http.MethodPost, fmt.Sprintf("/api/leaves/%s/approve", app.ID),
		ApproveRequest{ApproverPositionID: "pos-supervisor"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	app = decode[ApplicationDTO](t, rec)
	assert.Equal(t, "pending", app.Status)
	assert.Equal(t, 2, app.CurrentStage)

	// Final approval commits
	rec = f.do(t, http.MethodPost, fmt.Sprintf("/api/leaves/%s/approve", app.ID),
		ApproveRequest{ApproverPositionID: "pos-director"})
	require.Equal(t, http.StatusOK, rec.Code)
	app = decode[ApplicationDTO](t, rec)
	assert.Equal(t, "approved", app.Status)
	require.Len(t, app.Decisions, 2)

	rec = f.do(t, http.MethodGet, "/api/balances/off-1?year=2025", nil)
	summary = decode[BalanceSummaryDTO](t, rec)
	casual = findBucket(t, summary, "casual")
	assert.Equal(t, 5.0, casual.Committed)
	assert.Equal(t, 0.0, casual.Reserved)
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t)
	f.seedChain(t)
	f.allocate(t, "off-1", 12)

	// Unknown leave type fails struct validation
	bad := submitBody("off-1")
	bad.LeaveType = "sabbatical"
	rec := f.do(t, http.MethodPost, "/api/leaves", bad)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Malformed date
	bad = submitBody("off-1")
	bad.StartDate = "02/06/2025"
	rec = f.do(t, http.MethodPost, "/api/leaves", bad)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// End before start
	bad = submitBody("off-1")
	bad.StartDate = "2025-06-06"
	bad.EndDate = "2025-06-02"
	rec = f.do(t, http.MethodPost, "/api/leaves", bad)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitInsufficientBalanceConflicts(t *testing.T) {
	f := newFixture(t)
	f.seedChain(t)
	f.allocate(t, "off-1", 3)

	rec := f.do(t, http.MethodPost, "/api/leaves", submitBody("off-1"))
	assert.Equal(t, http.StatusConflict, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Contains(t, resp.Error, "Insufficient")
}

func TestWrongApproverForbidden(t *testing.T) {
	f := newFixture(t)
	f.seedChain(t)
	f.allocate(t, "off-1", 12)

	rec := f.do(t, http.MethodPost, "/api/leaves", submitBody("off-1"))
	require.Equal(t, http.StatusCreated, rec.Code)
	app := decode[ApplicationDTO](t, rec)

	// Director acts while supervisor's stage is current
	rec = f.do(t, http.MethodPost, fmt.Sprintf("/api/leaves/%s/approve", app.ID),
		ApproveRequest{ApproverPositionID: "pos-director"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRejectReleasesBalance(t *testing.T) {
	f := newFixture(t)
	f.seedChain(t)
	f.allocate(t, "off-1", 12)

	rec := f.do(t, http.MethodPost, "/api/leaves", submitBody("off-1"))
	require.Equal(t, http.StatusCreated, rec.Code)
	app := decode[ApplicationDTO](t, rec)

	rec = f.do(t, http.MethodPost, fmt.Sprintf("/api/leaves/%s/reject", app.ID),
		RejectRequest{ApproverPositionID: "pos-supervisor", Reason: "short staffed"})
	require.Equal(t, http.StatusOK, rec.Code)
	app = decode[ApplicationDTO](t, rec)
	assert.Equal(t, "rejected", app.Status)
	require.NotNil(t, app.RejectionReason)
	assert.Equal(t, "short staffed", *app.RejectionReason)

	rec = f.do(t, http.MethodGet, "/api/balances/off-1?year=2025", nil)
	casual := findBucket(t, decode[BalanceSummaryDTO](t, rec), "casual")
	assert.Equal(t, 0.0, casual.Reserved)
	assert.Equal(t, 12.0, casual.Remaining)

	// Rejection without a reason fails validation
	rec = f.do(t, http.MethodPost, fmt.Sprintf("/api/leaves/%s/reject", app.ID),
		RejectRequest{ApproverPositionID: "pos-supervisor"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelOnlyByOwner(t *testing.T) {
	f := newFixture(t)
	f.seedChain(t)
	f.allocate(t, "off-1", 12)

	rec := f.do(t, http.MethodPost, "/api/leaves", submitBody("off-1"))
	require.Equal(t, http.StatusCreated, rec.Code)
	app := decode[ApplicationDTO](t, rec)

	rec = f.do(t, http.MethodPost, fmt.Sprintf("/api/leaves/%s/cancel", app.ID),
		CancelRequest{OfficerID: "off-2"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, fmt.Sprintf("/api/leaves/%s/cancel", app.ID),
		CancelRequest{OfficerID: "off-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	app = decode[ApplicationDTO](t, rec)
	assert.Equal(t, "cancelled", app.Status)

	// Cancelling again conflicts: the application is terminal.
	rec = f.do(t, http.MethodPost, fmt.Sprintf("/api/leaves/%s/cancel", app.ID),
		CancelRequest{OfficerID: "off-1"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetLeaveNotFound(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/leaves/no-such-app", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPendingInbox(t *testing.T) {
	f := newFixture(t)
	f.seedChain(t)
	f.allocate(t, "off-1", 12)

	rec := f.do(t, http.MethodPost, "/api/leaves", submitBody("off-1"))
	require.Equal(t, http.StatusCreated, rec.Code)
	app := decode[ApplicationDTO](t, rec)

	rec = f.do(t, http.MethodGet, "/api/leaves/pending?approver_position_id=pos-supervisor", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]ApplicationDTO](t, rec), 1)

	rec = f.do(t, http.MethodGet, "/api/leaves/pending?approver_position_id=pos-director", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]ApplicationDTO](t, rec))

	// After stage 1 the application moves to the director's inbox.
	rec = f.do(t, http.MethodPost, fmt.Sprintf("/api/leaves/%s/approve", app.ID),
		ApproveRequest{ApproverPositionID: "pos-supervisor"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/leaves/pending?approver_position_id=pos-director", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]ApplicationDTO](t, rec), 1)
}

// =============================================================================
// BALANCES
// =============================================================================

func TestSetAllocation(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/admin/allocations", SetAllocationRequest{
		OfficerID: "off-1",
		Year:      2025,
		LeaveType: "casual",
		Allocated: 12,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	casual := findBucket(t, decode[BalanceSummaryDTO](t, rec), "casual")
	assert.Equal(t, 12.0, casual.Allocated)
	assert.Equal(t, 12.0, casual.Remaining)

	// Negative allocation rejected by validation
	rec = f.do(t, http.MethodPost, "/api/admin/allocations", SetAllocationRequest{
		OfficerID: "off-1",
		Year:      2025,
		LeaveType: "casual",
		Allocated: -1,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBalanceForUnknownOfficerIsZero(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/balances/off-unknown?year=2025", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode[BalanceSummaryDTO](t, rec)
	require.Len(t, summary.Buckets, 3)
	for _, b := range summary.Buckets {
		assert.Equal(t, 0.0, b.Allocated)
		assert.Equal(t, 0.0, b.Remaining)
	}
}

func findBucket(t *testing.T, summary BalanceSummaryDTO, leaveType string) BucketDTO {
	t.Helper()
	for _, b := range summary.Buckets {
		if b.LeaveType == leaveType {
			return b
		}
	}
	t.Fatalf("no bucket for leave type %q", leaveType)
	return BucketDTO{}
}
