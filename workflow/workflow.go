/*
workflow.go - Leave request lifecycle

REQUEST FLOW:
  Submit       validate dates -> price billable days -> reserve balance
               -> resolve chain -> persist pending -> notify stage approver
  Approve      authorize against current stage -> advance, or commit + approve
  Reject       authorize against current stage -> release + reject (terminal
               regardless of remaining stages)
  Cancel       submitting officer only, pending only -> release + cancel

RESERVE vs COMMIT:
  Reserving at submit holds the balance so simultaneous requests cannot
  over-commit the annual allocation. Only the final approval converts
  the hold into a permanent debit; rejection and cancellation release it.

OPTIONAL STAGES:
  An entry flagged optional is auto-advanced past without requiring its
  own approve call: submit positions the application at the first
  non-optional entry, and each advance jumps to the next non-optional
  one. A chain with no non-optional entry resolves to no required
  approver and the application is created unrouted.

CONCURRENCY:
  Every transition is read -> decide -> conditional write. The store's
  UpdateIf compares (status, stage) and yields StaleTransition on
  mismatch; the caller refetches and retries. The conditional write is
  the serialization point: the ledger operation runs only after the
  transition is owned.

CHAIN CHANGES MID-FLIGHT:
  A chain edit never retroactively rewrites an application's progress.
  Resolution is re-derived from the current entries on each call; if the
  entry at the current stage was deleted, acting on the application
  yields WrongApprover and the case falls to administrative handling.
*/
package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/warp/leave-engine/balance"
	"github.com/warp/leave-engine/engine"
	"github.com/warp/leave-engine/hierarchy"
)

// Engine exclusively owns application status transitions.
type Engine struct {
	apps       Store
	chains     *hierarchy.Service
	ledger     *balance.Ledger
	calc       engine.WorkingDayCalculator
	dispatcher Dispatcher
	log        zerolog.Logger
}

func NewEngine(apps Store, chains *hierarchy.Service, ledger *balance.Ledger, dispatcher Dispatcher, log zerolog.Logger) *Engine {
	if dispatcher == nil {
		dispatcher = &LogDispatcher{Log: log}
	}
	return &Engine{
		apps:       apps,
		chains:     chains,
		ledger:     ledger,
		dispatcher: dispatcher,
		log:        log,
	}
}

// =============================================================================
// SUBMIT
// =============================================================================

// SubmitInput carries a new leave request. Caller identity comes from
// the directory service upstream; here it is already-resolved IDs.
type SubmitInput struct {
	OfficerID     engine.OfficerID
	ApplicantType engine.ApplicantType
	PositionID    engine.PositionID
	LeaveType     engine.LeaveType
	StartDate     engine.Date
	EndDate       engine.Date
	Reason        string
}

// Submit prices the request, reserves balance, resolves the approval
// chain and persists a pending application. An empty resolved chain is
// not an error: the application is created unrouted for manual
// processing.
func (e *Engine) Submit(ctx context.Context, in SubmitInput) (*Application, error) {
	if !in.ApplicantType.Valid() {
		return nil, fmt.Errorf("unknown applicant type %q", in.ApplicantType)
	}
	if !in.LeaveType.Valid() {
		return nil, fmt.Errorf("unknown leave type %q", in.LeaveType)
	}
	if in.EndDate.Before(in.StartDate) {
		return nil, engine.ErrInvalidDateRange
	}

	approved, err := e.apps.ApprovedDays(ctx, in.OfficerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load approved days: %w", err)
	}

	totalDays, err := e.calc.Price(in.StartDate, in.EndDate, approved)
	if err != nil {
		return nil, err
	}
	if totalDays == 0 {
		return nil, fmt.Errorf("%w: every requested day is already approved leave", engine.ErrInvalidDateRange)
	}

	year := in.StartDate.Year()
	if err := e.ledger.Reserve(ctx, in.OfficerID, year, in.LeaveType, engine.NewAmountFromInt(totalDays)); err != nil {
		return nil, err
	}

	chain, err := e.chains.ResolveChain(ctx, in.ApplicantType, in.PositionID)
	if err != nil {
		e.compensateReserve(ctx, in.OfficerID, year, in.LeaveType, totalDays)
		return nil, fmt.Errorf("failed to resolve chain: %w", err)
	}

	stage := UnroutedStage
	if first, ok := chain.FirstRequired(); ok {
		stage = first.Order
	}

	app := &Application{
		ID:            engine.ApplicationID(uuid.NewString()),
		OfficerID:     in.OfficerID,
		ApplicantType: in.ApplicantType,
		PositionID:    in.PositionID,
		LeaveType:     in.LeaveType,
		StartDate:     in.StartDate,
		EndDate:       in.EndDate,
		Reason:        in.Reason,
		TotalDays:     totalDays,
		Status:        StatusPending,
		CurrentStage:  stage,
		AppliedAt:     time.Now().UTC(),
	}

	if err := e.apps.Insert(ctx, app); err != nil {
		e.compensateReserve(ctx, in.OfficerID, year, in.LeaveType, totalDays)
		return nil, fmt.Errorf("failed to persist application: %w", err)
	}

	if app.Unrouted() {
		e.notify(ctx, ToAdminQueue(), app.ID, EventSubmitted)
	} else {
		entry, _ := chain.EntryAt(stage)
		e.notify(ctx, ToPosition(entry.ApproverPositionID), app.ID, EventSubmitted)
	}

	return app, nil
}

// compensateReserve undoes the submit-time hold when persistence fails
// after the reservation succeeded.
func (e *Engine) compensateReserve(ctx context.Context, officerID engine.OfficerID, year int, lt engine.LeaveType, days int) {
	if err := e.ledger.Release(ctx, officerID, year, lt, engine.NewAmountFromInt(days)); err != nil {
		e.log.Error().Err(err).
			Str("officer_id", string(officerID)).
			Int("year", year).
			Str("leave_type", string(lt)).
			Msg("failed to release reservation after submit failure")
	}
}

// =============================================================================
// APPROVE
// =============================================================================

// Approve records the current stage's decision. If the entry is the
// final approver, or no required entry remains after it, the
// application becomes approved and the reservation is committed.
// Otherwise the application advances to the next required stage.
func (e *Engine) Approve(ctx context.Context, id engine.ApplicationID, acting engine.PositionID) (*Application, error) {
	app, entry, chain, err := e.authorize(ctx, id, acting)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	app.Decisions = append(app.Decisions, Decision{
		StageOrder:         entry.Order,
		ApproverPositionID: acting,
		DecidedAt:          now,
	})

	next, hasNext := chain.NextRequiredAfter(entry.Order)
	if entry.IsFinalApprover || !hasNext {
		return e.finalApprove(ctx, app, entry.Order, now)
	}

	prevStage := app.CurrentStage
	app.CurrentStage = next.Order
	if err := e.apps.UpdateIf(ctx, app, StatusPending, prevStage); err != nil {
		return nil, err
	}

	e.notify(ctx, ToPosition(next.ApproverPositionID), app.ID, EventAdvanced)
	return app, nil
}

func (e *Engine) finalApprove(ctx context.Context, app *Application, stage int, now time.Time) (*Application, error) {
	app.Status = StatusApproved
	app.DecidedAt = &now
	if err := e.apps.UpdateIf(ctx, app, StatusPending, stage); err != nil {
		return nil, err
	}

	days := engine.NewAmountFromInt(app.TotalDays)
	if err := e.ledger.Commit(ctx, app.OfficerID, app.StartDate.Year(), app.LeaveType, days); err != nil {
		// The transition is already owned; a commit failure here is an
		// infrastructure fault, not a lost race. Surface it loudly.
		e.log.Error().Err(err).Str("application_id", string(app.ID)).Msg("balance commit failed after approval")
		return nil, fmt.Errorf("approved but balance commit failed: %w", err)
	}

	e.notify(ctx, ToOfficer(app.OfficerID), app.ID, EventApproved)
	return app, nil
}

// =============================================================================
// REJECT
// =============================================================================

// Reject terminates the application at any stage and releases the hold.
func (e *Engine) Reject(ctx context.Context, id engine.ApplicationID, acting engine.PositionID, reason string) (*Application, error) {
	app, entry, _, err := e.authorize(ctx, id, acting)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	prevStage := app.CurrentStage
	app.Status = StatusRejected
	app.DecidedAt = &now
	app.RejectionReason = &reason
	app.Decisions = append(app.Decisions, Decision{
		StageOrder:         entry.Order,
		ApproverPositionID: acting,
		DecidedAt:          now,
	})

	if err := e.apps.UpdateIf(ctx, app, StatusPending, prevStage); err != nil {
		return nil, err
	}

	days := engine.NewAmountFromInt(app.TotalDays)
	if err := e.ledger.Release(ctx, app.OfficerID, app.StartDate.Year(), app.LeaveType, days); err != nil {
		e.log.Error().Err(err).Str("application_id", string(app.ID)).Msg("balance release failed after rejection")
		return nil, fmt.Errorf("rejected but balance release failed: %w", err)
	}

	e.notify(ctx, ToOfficer(app.OfficerID), app.ID, EventRejected)
	return app, nil
}

// =============================================================================
// CANCEL
// =============================================================================

// Cancel withdraws a pending application. Only the submitting officer
// may cancel, and only while the application is still pending.
func (e *Engine) Cancel(ctx context.Context, id engine.ApplicationID, requestedBy engine.OfficerID) (*Application, error) {
	app, err := e.apps.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if app.Terminal() {
		return nil, &engine.InvalidStateError{ApplicationID: id, Status: string(app.Status)}
	}
	if app.OfficerID != requestedBy {
		return nil, engine.ErrNotRequestOwner
	}

	now := time.Now().UTC()
	prevStage := app.CurrentStage
	app.Status = StatusCancelled
	app.DecidedAt = &now

	if err := e.apps.UpdateIf(ctx, app, StatusPending, prevStage); err != nil {
		return nil, err
	}

	days := engine.NewAmountFromInt(app.TotalDays)
	if err := e.ledger.Release(ctx, app.OfficerID, app.StartDate.Year(), app.LeaveType, days); err != nil {
		e.log.Error().Err(err).Str("application_id", string(app.ID)).Msg("balance release failed after cancellation")
		return nil, fmt.Errorf("cancelled but balance release failed: %w", err)
	}

	e.notify(ctx, ToOfficer(app.OfficerID), app.ID, EventCancelled)
	return app, nil
}

// =============================================================================
// QUERIES
// =============================================================================

// Get returns one application. Unrouted state is visible via
// Application.Unrouted().
func (e *Engine) Get(ctx context.Context, id engine.ApplicationID) (*Application, error) {
	return e.apps.Get(ctx, id)
}

// ListByOfficer returns an officer's applications, newest first.
func (e *Engine) ListByOfficer(ctx context.Context, officerID engine.OfficerID) ([]*Application, error) {
	return e.apps.ListByOfficer(ctx, officerID)
}

// ListPendingForApprover returns pending applications whose current
// stage awaits the given position.
func (e *Engine) ListPendingForApprover(ctx context.Context, pos engine.PositionID) ([]*Application, error) {
	pending, err := e.apps.ListPending(ctx)
	if err != nil {
		return nil, err
	}

	var inbox []*Application
	for _, app := range pending {
		if app.Unrouted() {
			continue
		}
		chain, err := e.chains.ResolveChain(ctx, app.ApplicantType, app.PositionID)
		if err != nil {
			return nil, err
		}
		if entry, ok := chain.EntryAt(app.CurrentStage); ok && entry.ApproverPositionID == pos {
			inbox = append(inbox, app)
		}
	}
	return inbox, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// authorize performs the shared existence/state/approver checks for
// approve and reject, returning the application, the current entry and
// the resolved chain.
func (e *Engine) authorize(ctx context.Context, id engine.ApplicationID, acting engine.PositionID) (*Application, hierarchy.Entry, hierarchy.Chain, error) {
	app, err := e.apps.Get(ctx, id)
	if err != nil {
		return nil, hierarchy.Entry{}, nil, err
	}
	if app.Terminal() {
		return nil, hierarchy.Entry{}, nil, &engine.InvalidStateError{ApplicationID: id, Status: string(app.Status)}
	}
	if app.Unrouted() {
		return nil, hierarchy.Entry{}, nil, &engine.WrongApproverError{ApplicationID: id, Acting: acting}
	}

	chain, err := e.chains.ResolveChain(ctx, app.ApplicantType, app.PositionID)
	if err != nil {
		return nil, hierarchy.Entry{}, nil, fmt.Errorf("failed to resolve chain: %w", err)
	}

	entry, ok := chain.EntryAt(app.CurrentStage)
	if !ok {
		// The entry at this stage was deleted mid-flight. Administrative
		// intervention, not a crash.
		return nil, hierarchy.Entry{}, nil, &engine.WrongApproverError{ApplicationID: id, Acting: acting}
	}
	if entry.ApproverPositionID != acting {
		return nil, hierarchy.Entry{}, nil, &engine.WrongApproverError{
			ApplicationID: id,
			Acting:        acting,
			Expected:      entry.ApproverPositionID,
		}
	}

	return app, entry, chain, nil
}

// notify dispatches best-effort. Failures are logged, never surfaced.
func (e *Engine) notify(ctx context.Context, to Recipient, id engine.ApplicationID, kind EventKind) {
	if err := e.dispatcher.Notify(ctx, to, id, kind); err != nil {
		e.log.Warn().Err(err).
			Str("application_id", string(id)).
			Str("event", string(kind)).
			Msg("notification dispatch failed")
	}
}
