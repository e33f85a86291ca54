/*
Package workflow drives a leave application through its approval chain.

PURPOSE:
  The state machine at the center of the system:

    Pending(stage) -> Approved | Rejected | Cancelled

  Pending at the chain's first required stage is the only entry point;
  all three terminal states are sinks. The workflow exclusively owns
  status transitions — the hierarchy service owns chain entries and the
  balance ledger owns committed/reserved; all cross-component effects
  happen through the transition methods here.

STAGE TRACKING:
  CurrentStage holds the ORDER VALUE of the chain entry currently
  awaiting a decision, not a slice index. Chains tolerate order gaps,
  so every walk goes through hierarchy.Chain's sorted helpers. The
  sentinel UnroutedStage means chain resolution produced no required
  approver: the application is valid but waits for manual
  administrative processing.

AUDIT:
  Applications are never deleted. Each non-terminal approval is recorded
  in the Decisions log so the full path to a terminal status is visible.

SEE ALSO:
  - workflow.go: Submit/Approve/Reject/Cancel
  - store.go: Persistence contract with the optimistic stage check
*/
package workflow

import (
	"time"

	"github.com/warp/leave-engine/engine"
)

// =============================================================================
// STATUS
// =============================================================================

type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
)

// UnroutedStage marks an application whose chain resolution produced no
// required approver. Not an error: the application stays pending for
// manual administrative processing.
const UnroutedStage = -1

// =============================================================================
// APPLICATION
// =============================================================================

// Application is one leave request and its approval progress.
// TotalDays is computed once at submission and never recomputed, even
// if the officer's approved-day set changes afterward.
type Application struct {
	ID            engine.ApplicationID
	OfficerID     engine.OfficerID
	ApplicantType engine.ApplicantType
	PositionID    engine.PositionID
	LeaveType     engine.LeaveType
	StartDate     engine.Date
	EndDate       engine.Date
	Reason        string

	TotalDays    int
	Status       Status
	CurrentStage int // order value of the awaiting entry, or UnroutedStage

	AppliedAt       time.Time
	DecidedAt       *time.Time
	RejectionReason *string

	// Decisions records each stage approval on the way to terminal status.
	Decisions []Decision
}

// Decision is one recorded stage approval.
type Decision struct {
	StageOrder         int
	ApproverPositionID engine.PositionID
	DecidedAt          time.Time
}

// Terminal reports whether the application reached a sink state.
func (a *Application) Terminal() bool {
	return a.Status != StatusPending
}

// Unrouted reports whether chain resolution found no required approver.
func (a *Application) Unrouted() bool {
	return a.CurrentStage == UnroutedStage
}

// Range returns the inclusive requested date range.
func (a *Application) Range() engine.DateRange {
	return engine.DateRange{Start: a.StartDate, End: a.EndDate}
}

// Clone returns a deep copy, so stores can hand out records without
// sharing mutable state with callers.
func (a *Application) Clone() *Application {
	cp := *a
	if a.DecidedAt != nil {
		t := *a.DecidedAt
		cp.DecidedAt = &t
	}
	if a.RejectionReason != nil {
		r := *a.RejectionReason
		cp.RejectionReason = &r
	}
	cp.Decisions = append([]Decision(nil), a.Decisions...)
	return &cp
}
