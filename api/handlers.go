/*
handlers.go - HTTP API handlers for the leave workflow engine

PURPOSE:
  Exposes the workflow engine via REST API. Handles HTTP
  request/response, JSON serialization, input validation, and
  delegates to domain logic.

ENDPOINTS:
  Hierarchy:
    POST   /api/hierarchy/approvers      Append approver to a chain
    DELETE /api/hierarchy/approvers/{id} Remove a chain entry
    GET    /api/hierarchy/chain          List a chain (exact key)

  Leaves:
    POST   /api/leaves                   Submit leave application
    GET    /api/leaves?officer_id=       Officer's applications
    GET    /api/leaves/pending?approver_position_id= Approver inbox
    GET    /api/leaves/{id}              Application detail
    POST   /api/leaves/{id}/approve      Approve current stage
    POST   /api/leaves/{id}/reject       Reject (terminal)
    POST   /api/leaves/{id}/cancel       Withdraw own request

  Balances:
    GET    /api/balances/{officerID}?year= Balance summary
    POST   /api/admin/allocations        Set yearly allocation

REQUEST FLOW:
  1. Decode JSON body
  2. Validate with go-playground/validator struct tags
  3. Call domain logic (workflow engine, hierarchy service, ledger)
  4. Serialize response
  5. Map domain errors to HTTP status

ERROR HANDLING:
  Domain errors map to HTTP status via writeDomainError:
  - 400: Validation, invalid dates, self-approval, duplicate approver
  - 403: Wrong approver for the current stage, not the request owner
  - 404: Unknown application or chain entry
  - 409: Terminal re-transition, insufficient balance, lost race
  - 500: Everything else

SECURITY NOTE:
  No authentication middleware. The acting identity comes from the
  request body; an auth layer in front is expected to verify it.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/warp/leave-engine/balance"
	"github.com/warp/leave-engine/engine"
	"github.com/warp/leave-engine/hierarchy"
	"github.com/warp/leave-engine/workflow"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine    *workflow.Engine
	Hierarchy *hierarchy.Service
	Ledger    *balance.Ledger

	validate *validator.Validate
	log      zerolog.Logger
}

// NewHandler creates a new handler wired to the given domain services.
func NewHandler(eng *workflow.Engine, chains *hierarchy.Service, ledger *balance.Ledger, log zerolog.Logger) *Handler {
	return &Handler{
		Engine:    eng,
		Hierarchy: chains,
		Ledger:    ledger,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		log:       log,
	}
}

// decodeAndValidate decodes the JSON body into dst and runs struct-tag
// validation. Writes the 400 response itself; callers just return on false.
func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

// =============================================================================
// HIERARCHY HANDLERS
// =============================================================================

// AddApprover appends an approver position to a chain.
// POST /api/hierarchy/approvers
func (h *Handler) AddApprover(w http.ResponseWriter, r *http.Request) {
	var req AddApproverRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	at := engine.ApplicantType(req.ApplicantType)
	key := hierarchy.OrgWideKey(at)
	if req.PositionID != nil {
		key = hierarchy.PositionKey(at, engine.PositionID(*req.PositionID))
	}

	entry, err := h.Hierarchy.AddApprover(r.Context(), key,
		engine.PositionID(req.ApproverPositionID), req.IsFinalApprover, req.IsOptional)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toChainEntryDTO(entry))
}

// RemoveApprover deletes a chain entry. Orders of the remaining
// entries are left untouched.
// DELETE /api/hierarchy/approvers/{id}
func (h *Handler) RemoveApprover(w http.ResponseWriter, r *http.Request) {
	id := engine.EntryID(chi.URLParam(r, "id"))

	if err := h.Hierarchy.RemoveApprover(r.Context(), id); err != nil {
		h.writeDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetChain lists the chain for exactly the given key. Use
// applicant_type alone for the organization-wide chain, add
// position_id for a position-specific one.
// GET /api/hierarchy/chain?applicant_type=officer&position_id=pos-1
func (h *Handler) GetChain(w http.ResponseWriter, r *http.Request) {
	at, err := engine.ParseApplicantType(r.URL.Query().Get("applicant_type"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Unknown applicant_type (use officer or staff)", err)
		return
	}

	key := hierarchy.OrgWideKey(at)
	if pos := r.URL.Query().Get("position_id"); pos != "" {
		key = hierarchy.PositionKey(at, engine.PositionID(pos))
	}

	chain, err := h.Hierarchy.ListChain(r.Context(), key)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toChainDTOs(chain))
}

// =============================================================================
// LEAVE APPLICATION HANDLERS
// =============================================================================

// SubmitLeave creates a leave application: prices the range against
// already-approved days, reserves balance, and routes it to the first
// required stage.
// POST /api/leaves
func (h *Handler) SubmitLeave(w http.ResponseWriter, r *http.Request) {
	var req SubmitLeaveRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	start, err := engine.ParseDate(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date format (use YYYY-MM-DD)", err)
		return
	}
	end, err := engine.ParseDate(req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end_date format (use YYYY-MM-DD)", err)
		return
	}

	app, err := h.Engine.Submit(r.Context(), workflow.SubmitInput{
		OfficerID:     engine.OfficerID(req.OfficerID),
		ApplicantType: engine.ApplicantType(req.ApplicantType),
		PositionID:    engine.PositionID(req.PositionID),
		LeaveType:     engine.LeaveType(req.LeaveType),
		StartDate:     start,
		EndDate:       end,
		Reason:        req.Reason,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toApplicationDTO(app))
}

// GetLeave returns a single application.
// GET /api/leaves/{id}
func (h *Handler) GetLeave(w http.ResponseWriter, r *http.Request) {
	id := engine.ApplicationID(chi.URLParam(r, "id"))

	app, err := h.Engine.Get(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toApplicationDTO(app))
}

// ListLeaves returns an officer's applications, newest first.
// GET /api/leaves?officer_id=off-1
func (h *Handler) ListLeaves(w http.ResponseWriter, r *http.Request) {
	officerID := r.URL.Query().Get("officer_id")
	if officerID == "" {
		writeError(w, http.StatusBadRequest, "officer_id query parameter is required", nil)
		return
	}

	apps, err := h.Engine.ListByOfficer(r.Context(), engine.OfficerID(officerID))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toApplicationDTOs(apps))
}

// ListPendingLeaves returns the approver's inbox: pending applications
// whose current stage awaits the given position.
// GET /api/leaves/pending?approver_position_id=pos-1
func (h *Handler) ListPendingLeaves(w http.ResponseWriter, r *http.Request) {
	pos := r.URL.Query().Get("approver_position_id")
	if pos == "" {
		writeError(w, http.StatusBadRequest, "approver_position_id query parameter is required", nil)
		return
	}

	apps, err := h.Engine.ListPendingForApprover(r.Context(), engine.PositionID(pos))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toApplicationDTOs(apps))
}

// ApproveLeave records the current stage's approval and either
// advances the application or finalizes it.
// POST /api/leaves/{id}/approve
func (h *Handler) ApproveLeave(w http.ResponseWriter, r *http.Request) {
	id := engine.ApplicationID(chi.URLParam(r, "id"))

	var req ApproveRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	app, err := h.Engine.Approve(r.Context(), id, engine.PositionID(req.ApproverPositionID))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toApplicationDTO(app))
}

// RejectLeave terminally rejects the application and releases the
// reserved balance.
// POST /api/leaves/{id}/reject
func (h *Handler) RejectLeave(w http.ResponseWriter, r *http.Request) {
	id := engine.ApplicationID(chi.URLParam(r, "id"))

	var req RejectRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	app, err := h.Engine.Reject(r.Context(), id, engine.PositionID(req.ApproverPositionID), req.Reason)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toApplicationDTO(app))
}

// CancelLeave lets the owning officer withdraw a pending application.
// POST /api/leaves/{id}/cancel
func (h *Handler) CancelLeave(w http.ResponseWriter, r *http.Request) {
	id := engine.ApplicationID(chi.URLParam(r, "id"))

	var req CancelRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	app, err := h.Engine.Cancel(r.Context(), id, engine.OfficerID(req.OfficerID))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toApplicationDTO(app))
}

// =============================================================================
// BALANCE HANDLERS
// =============================================================================

// GetBalance returns an officer's balance summary for a year
// (defaults to the current year).
// GET /api/balances/{officerID}?year=2025
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	officerID := engine.OfficerID(chi.URLParam(r, "officerID"))

	year := engine.Today().Year()
	if y := r.URL.Query().Get("year"); y != "" {
		parsed, err := strconv.Atoi(y)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid year", err)
			return
		}
		year = parsed
	}

	rec, err := h.Ledger.Record(r.Context(), officerID, year)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toBalanceSummaryDTO(officerID, year, rec))
}

// SetAllocation sets the yearly entitlement for one leave type.
// Shrinking below already committed+reserved days is rejected.
// POST /api/admin/allocations
func (h *Handler) SetAllocation(w http.ResponseWriter, r *http.Request) {
	var req SetAllocationRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	err := h.Ledger.SetAllocation(r.Context(),
		engine.OfficerID(req.OfficerID), req.Year,
		engine.LeaveType(req.LeaveType), engine.NewAmount(req.Allocated))
	if err != nil {
		// SetAllocation failures are caller mistakes, not infra faults.
		writeError(w, http.StatusBadRequest, "Failed to set allocation", err)
		return
	}

	rec, err := h.Ledger.Record(r.Context(), engine.OfficerID(req.OfficerID), req.Year)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toBalanceSummaryDTO(engine.OfficerID(req.OfficerID), req.Year, rec))
}

// =============================================================================
// ERROR MAPPING & JSON HELPERS
// =============================================================================

// writeDomainError maps domain errors to HTTP status codes.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrNotFound):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, engine.ErrWrongApprover):
		writeError(w, http.StatusForbidden, "Not the approver for the current stage", err)
	case errors.Is(err, engine.ErrNotRequestOwner):
		writeError(w, http.StatusForbidden, "Only the requesting officer may cancel", err)
	case errors.Is(err, engine.ErrInvalidState):
		writeError(w, http.StatusConflict, "Application already decided", err)
	case errors.Is(err, engine.ErrInsufficientBalance):
		writeError(w, http.StatusConflict, "Insufficient leave balance", err)
	case errors.Is(err, engine.ErrStaleTransition):
		writeError(w, http.StatusConflict, "Application changed concurrently, retry", err)
	case errors.Is(err, engine.ErrInvalidDateRange),
		errors.Is(err, engine.ErrSelfApproval),
		errors.Is(err, engine.ErrDuplicateApprover):
		writeError(w, http.StatusBadRequest, "Invalid request", err)
	default:
		h.log.Error().Err(err).Msg("unhandled domain error")
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
