/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Hierarchy:
    ChainEntryDTO, AddApproverRequest

  Applications:
    ApplicationDTO, DecisionDTO, SubmitLeaveRequest,
    ApproveRequest, RejectRequest, CancelRequest

  Balances:
    BalanceSummaryDTO, BucketDTO, SetAllocationRequest

VALIDATION:
  Request types carry `validate` struct tags checked by
  go-playground/validator in the handlers. Cross-field rules
  (date ordering, balance sufficiency) stay in the domain layer.

SEE ALSO:
  - handlers.go: Uses these types
  - workflow/application.go, balance/ledger.go: Domain counterparts
*/
package api

import (
	"time"

	"github.com/warp/leave-engine/balance"
	"github.com/warp/leave-engine/engine"
	"github.com/warp/leave-engine/hierarchy"
	"github.com/warp/leave-engine/workflow"
)

// =============================================================================
// HIERARCHY
// =============================================================================

// AddApproverRequest appends an approver to a chain. Omit position_id
// to target the organization-wide chain for the applicant type.
type AddApproverRequest struct {
	ApplicantType      string  `json:"applicant_type" validate:"required,oneof=officer staff"`
	PositionID         *string `json:"position_id,omitempty" validate:"omitempty,min=1"`
	ApproverPositionID string  `json:"approver_position_id" validate:"required,min=1"`
	IsFinalApprover    bool    `json:"is_final_approver"`
	IsOptional         bool    `json:"is_optional"`
}

// ChainEntryDTO is one approval stage as returned to clients.
type ChainEntryDTO struct {
	ID                 string  `json:"id"`
	ApplicantType      string  `json:"applicant_type"`
	PositionID         *string `json:"position_id,omitempty"`
	ApproverPositionID string  `json:"approver_position_id"`
	Order              int     `json:"order"`
	IsFinalApprover    bool    `json:"is_final_approver"`
	IsOptional         bool    `json:"is_optional"`
}

func toChainEntryDTO(e hierarchy.Entry) ChainEntryDTO {
	dto := ChainEntryDTO{
		ID:                 string(e.ID),
		ApplicantType:      string(e.ApplicantType),
		ApproverPositionID: string(e.ApproverPositionID),
		Order:              e.Order,
		IsFinalApprover:    e.IsFinalApprover,
		IsOptional:         e.IsOptional,
	}
	if e.ApplicantPositionID != nil {
		pos := string(*e.ApplicantPositionID)
		dto.PositionID = &pos
	}
	return dto
}

func toChainDTOs(chain hierarchy.Chain) []ChainEntryDTO {
	dtos := make([]ChainEntryDTO, len(chain))
	for i, e := range chain {
		dtos[i] = toChainEntryDTO(e)
	}
	return dtos
}

// =============================================================================
// APPLICATIONS
// =============================================================================

// SubmitLeaveRequest creates a new leave application.
type SubmitLeaveRequest struct {
	OfficerID     string `json:"officer_id" validate:"required,min=1"`
	ApplicantType string `json:"applicant_type" validate:"required,oneof=officer staff"`
	PositionID    string `json:"position_id" validate:"required,min=1"`
	LeaveType     string `json:"leave_type" validate:"required,oneof=casual sick earned"`
	StartDate     string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate       string `json:"end_date" validate:"required,datetime=2006-01-02"`
	Reason        string `json:"reason" validate:"max=500"`
}

// ApproveRequest identifies the position acting on the current stage.
type ApproveRequest struct {
	ApproverPositionID string `json:"approver_position_id" validate:"required,min=1"`
}

// RejectRequest identifies the acting position and carries the
// mandatory rejection reason.
type RejectRequest struct {
	ApproverPositionID string `json:"approver_position_id" validate:"required,min=1"`
	Reason             string `json:"reason" validate:"required,min=1,max=500"`
}

// CancelRequest identifies the officer withdrawing their own request.
type CancelRequest struct {
	OfficerID string `json:"officer_id" validate:"required,min=1"`
}

// DecisionDTO is one recorded stage approval.
type DecisionDTO struct {
	StageOrder         int    `json:"stage_order"`
	ApproverPositionID string `json:"approver_position_id"`
	DecidedAt          string `json:"decided_at"`
}

// ApplicationDTO is the full application view returned to clients.
type ApplicationDTO struct {
	ID              string        `json:"id"`
	OfficerID       string        `json:"officer_id"`
	ApplicantType   string        `json:"applicant_type"`
	PositionID      string        `json:"position_id"`
	LeaveType       string        `json:"leave_type"`
	StartDate       string        `json:"start_date"`
	EndDate         string        `json:"end_date"`
	Reason          string        `json:"reason,omitempty"`
	TotalDays       int           `json:"total_days"`
	Status          string        `json:"status"`
	CurrentStage    int           `json:"current_stage"`
	Unrouted        bool          `json:"unrouted"`
	AppliedAt       string        `json:"applied_at"`
	DecidedAt       *string       `json:"decided_at,omitempty"`
	RejectionReason *string       `json:"rejection_reason,omitempty"`
	Decisions       []DecisionDTO `json:"decisions"`
}

func toApplicationDTO(app *workflow.Application) ApplicationDTO {
	dto := ApplicationDTO{
		ID:              string(app.ID),
		OfficerID:       string(app.OfficerID),
		ApplicantType:   string(app.ApplicantType),
		PositionID:      string(app.PositionID),
		LeaveType:       string(app.LeaveType),
		StartDate:       app.StartDate.String(),
		EndDate:         app.EndDate.String(),
		Reason:          app.Reason,
		TotalDays:       app.TotalDays,
		Status:          string(app.Status),
		CurrentStage:    app.CurrentStage,
		Unrouted:        app.Unrouted(),
		AppliedAt:       app.AppliedAt.Format(time.RFC3339),
		RejectionReason: app.RejectionReason,
		Decisions:       make([]DecisionDTO, 0, len(app.Decisions)),
	}
	if app.DecidedAt != nil {
		s := app.DecidedAt.Format(time.RFC3339)
		dto.DecidedAt = &s
	}
	for _, d := range app.Decisions {
		dto.Decisions = append(dto.Decisions, DecisionDTO{
			StageOrder:         d.StageOrder,
			ApproverPositionID: string(d.ApproverPositionID),
			DecidedAt:          d.DecidedAt.Format(time.RFC3339),
		})
	}
	return dto
}

func toApplicationDTOs(apps []*workflow.Application) []ApplicationDTO {
	dtos := make([]ApplicationDTO, len(apps))
	for i, app := range apps {
		dtos[i] = toApplicationDTO(app)
	}
	return dtos
}

// =============================================================================
// BALANCES
// =============================================================================

// SetAllocationRequest sets the yearly entitlement for one leave type.
type SetAllocationRequest struct {
	OfficerID string  `json:"officer_id" validate:"required,min=1"`
	Year      int     `json:"year" validate:"required,gte=2000,lte=2200"`
	LeaveType string  `json:"leave_type" validate:"required,oneof=casual sick earned"`
	Allocated float64 `json:"allocated" validate:"gte=0"`
}

// BucketDTO is one leave type's balance figures.
type BucketDTO struct {
	LeaveType string  `json:"leave_type"`
	Allocated float64 `json:"allocated"`
	Committed float64 `json:"committed"`
	Reserved  float64 `json:"reserved"`
	Remaining float64 `json:"remaining"`
}

// BalanceSummaryDTO is an officer's balance for one calendar year.
// Every known leave type appears, zero-valued when never allocated.
type BalanceSummaryDTO struct {
	OfficerID string      `json:"officer_id"`
	Year      int         `json:"year"`
	Buckets   []BucketDTO `json:"buckets"`
}

func toBalanceSummaryDTO(officerID engine.OfficerID, year int, rec *balance.YearRecord) BalanceSummaryDTO {
	dto := BalanceSummaryDTO{
		OfficerID: string(officerID),
		Year:      year,
		Buckets:   make([]BucketDTO, 0, len(engine.LeaveTypes())),
	}
	for _, lt := range engine.LeaveTypes() {
		var b balance.Bucket
		if rec != nil {
			b = rec.Bucket(lt)
		}
		dto.Buckets = append(dto.Buckets, BucketDTO{
			LeaveType: string(lt),
			Allocated: b.Allocated.Float64(),
			Committed: b.Committed.Float64(),
			Reserved:  b.Reserved.Float64(),
			Remaining: b.Remaining().Float64(),
		})
	}
	return dto
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
