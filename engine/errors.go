/*
errors.go - Centralized error taxonomy for the leave engine

PURPOSE:
  All error kinds in one place for consistency and discoverability.
  Every error here represents a data-validity or caller-authorization
  problem, not a transient fault; the engine never retries on its own.

ERROR CATEGORIES:
  1. Validation errors - Bad input (date range, unknown enums)
  2. Chain errors      - Hierarchy configuration violations
  3. Workflow errors   - State machine and authorization violations
  4. Concurrency       - Optimistic-locking conflicts (the one retryable kind)

USAGE:
  Callers branch with errors.Is():

    if errors.Is(err, engine.ErrStaleTransition) {
        // refetch, re-decide, re-submit
    }

SEE ALSO:
  - workflow/workflow.go: Produces most of these
  - api/handlers.go: Maps them to HTTP status codes
*/
package engine

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidDateRange is returned when a request's end date precedes its start date.
	ErrInvalidDateRange = errors.New("invalid date range: end before start")

	// ErrInsufficientBalance is returned when a reservation exceeds the remaining allocation.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrSelfApproval is returned when a position is configured to approve its own requests.
	ErrSelfApproval = errors.New("approver position cannot equal applicant position")

	// ErrDuplicateApprover is returned when a position already appears in the chain.
	ErrDuplicateApprover = errors.New("approver already present in chain")

	// ErrNotFound is returned when a referenced record doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState is returned when transitioning an already-terminal application.
	// Distinguishes "already handled" from "in progress" for retrying callers.
	ErrInvalidState = errors.New("application is not pending")

	// ErrWrongApprover is returned when the acting position does not match the
	// entry at the application's current stage.
	ErrWrongApprover = errors.New("acting position does not match current stage")

	// ErrNotRequestOwner is returned when someone other than the submitting
	// officer attempts to cancel an application.
	ErrNotRequestOwner = errors.New("only the submitting officer can cancel")

	// ErrStaleTransition is returned when an optimistic status/stage check fails.
	// This is the one error kind callers are expected to retry.
	ErrStaleTransition = errors.New("stale transition: application changed concurrently")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientBalanceError reports the shortage detail.
type InsufficientBalanceError struct {
	OfficerID OfficerID
	Year      int
	LeaveType LeaveType
	Remaining Amount
	Requested Amount
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient %s balance for %s in %d: remaining %v, requested %v",
		e.LeaveType, e.OfficerID, e.Year, e.Remaining.Value, e.Requested.Value)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// WrongApproverError reports which position was expected at the current stage.
type WrongApproverError struct {
	ApplicationID ApplicationID
	Acting        PositionID
	Expected      PositionID // empty if the stage's entry no longer exists
}

func (e *WrongApproverError) Error() string {
	if e.Expected == "" {
		return fmt.Sprintf("position %s cannot act on %s: current stage has no configured approver",
			e.Acting, e.ApplicationID)
	}
	return fmt.Sprintf("position %s cannot act on %s: stage expects %s",
		e.Acting, e.ApplicationID, e.Expected)
}

func (e *WrongApproverError) Unwrap() error { return ErrWrongApprover }

// InvalidStateError reports the terminal status that blocked a transition.
type InvalidStateError struct {
	ApplicationID ApplicationID
	Status        string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("application %s is %s, not pending", e.ApplicationID, e.Status)
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStaleTransition)
}

// IsClientError returns true if the error is due to invalid client input
// or an authorization mismatch.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidDateRange) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrSelfApproval) ||
		errors.Is(err, ErrDuplicateApprover) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrWrongApprover) ||
		errors.Is(err, ErrNotRequestOwner)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
