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

QUANTITIES:
  Day quantities cross the wire as JSON numbers. Everything the engine
  produces sits on the 0.5 grid, so float64 round-trips them exactly.

VALIDATION:
  Request types carry go-playground/validator tags; handlers run them
  through Handler.validate before touching domain logic. Domain rules
  (balance sufficiency, transition legality) stay in the leave package.

SEE ALSO:
  - handlers.go: Uses these types
  - leave/types.go: The domain model these project
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/veldhr/leave-engine/leave"
)

// =============================================================================
// LEAVE TYPES
// =============================================================================

// LeaveTypeDTO represents a catalog entry in API responses.
type LeaveTypeDTO struct {
	ID                  string  `json:"id"`
	CompanyID           string  `json:"company_id"`
	Code                string  `json:"code"`
	Name                string  `json:"name"`
	DefaultDaysPerYear  float64 `json:"default_days_per_year"`
	IsPaid              bool    `json:"is_paid"`
	AccrualMethod       string  `json:"accrual_method"`
	MaxCarryOver        float64 `json:"max_carry_over"`
	RequiresApproval    bool    `json:"requires_approval"`
	RequiresAttachment  bool    `json:"requires_attachment"`
	AttachmentAfterDays *int    `json:"attachment_after_days,omitempty"`
	MinConsecutiveDays  *int    `json:"min_consecutive_days,omitempty"`
	MaxConsecutiveDays  *int    `json:"max_consecutive_days,omitempty"`
	SortOrder           int     `json:"sort_order"`
	IsActive            bool    `json:"is_active"`
	CreatedAt           string  `json:"created_at,omitempty"`
	UpdatedAt           string  `json:"updated_at,omitempty"`
	Version             int64   `json:"version"`
}

// CreateLeaveTypeRequest is the request to add a catalog entry.
type CreateLeaveTypeRequest struct {
	CompanyID           string  `json:"company_id" validate:"required"`
	Code                string  `json:"code" validate:"required,max=32"`
	Name                string  `json:"name" validate:"required,max=128"`
	DefaultDaysPerYear  float64 `json:"default_days_per_year" validate:"gte=0"`
	IsPaid              bool    `json:"is_paid"`
	AccrualMethod       string  `json:"accrual_method" validate:"required,oneof=none annual monthly"`
	MaxCarryOver        float64 `json:"max_carry_over" validate:"gte=0"`
	RequiresApproval    bool    `json:"requires_approval"`
	RequiresAttachment  bool    `json:"requires_attachment"`
	AttachmentAfterDays *int    `json:"attachment_after_days,omitempty" validate:"omitempty,gte=0"`
	MinConsecutiveDays  *int    `json:"min_consecutive_days,omitempty" validate:"omitempty,gte=1"`
	MaxConsecutiveDays  *int    `json:"max_consecutive_days,omitempty" validate:"omitempty,gte=1"`
	SortOrder           int     `json:"sort_order"`
}

// UpdateLeaveTypeRequest is the request to change a catalog entry. Version
// must match the stored record or the update is rejected as a conflict.
type UpdateLeaveTypeRequest struct {
	Code                string  `json:"code" validate:"required,max=32"`
	Name                string  `json:"name" validate:"required,max=128"`
	DefaultDaysPerYear  float64 `json:"default_days_per_year" validate:"gte=0"`
	IsPaid              bool    `json:"is_paid"`
	AccrualMethod       string  `json:"accrual_method" validate:"required,oneof=none annual monthly"`
	MaxCarryOver        float64 `json:"max_carry_over" validate:"gte=0"`
	RequiresApproval    bool    `json:"requires_approval"`
	RequiresAttachment  bool    `json:"requires_attachment"`
	AttachmentAfterDays *int    `json:"attachment_after_days,omitempty" validate:"omitempty,gte=0"`
	MinConsecutiveDays  *int    `json:"min_consecutive_days,omitempty" validate:"omitempty,gte=1"`
	MaxConsecutiveDays  *int    `json:"max_consecutive_days,omitempty" validate:"omitempty,gte=1"`
	SortOrder           int     `json:"sort_order"`
	Version             int64   `json:"version" validate:"required,gte=1"`
}

// =============================================================================
// EMPLOYEES
// =============================================================================

// EmployeeDTO represents an employee in API responses.
type EmployeeDTO struct {
	ID        string `json:"id"`
	CompanyID string `json:"company_id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// CreateEmployeeRequest upserts a directory projection row. IDs come from
// the upstream HR system, not from here.
type CreateEmployeeRequest struct {
	ID        string `json:"id" validate:"required"`
	CompanyID string `json:"company_id" validate:"required"`
	Name      string `json:"name" validate:"required"`
	Email     string `json:"email" validate:"omitempty,email"`
}

// =============================================================================
// BALANCES
// =============================================================================

// BalanceDTO represents one balance row with display names.
type BalanceDTO struct {
	EmployeeID     string  `json:"employee_id"`
	EmployeeName   string  `json:"employee_name,omitempty"`
	LeaveTypeID    string  `json:"leave_type_id"`
	LeaveTypeCode  string  `json:"leave_type_code,omitempty"`
	LeaveTypeName  string  `json:"leave_type_name,omitempty"`
	CycleYear      int     `json:"cycle_year"`
	OpeningBalance float64 `json:"opening_balance"`
	Accrued        float64 `json:"accrued"`
	Taken          float64 `json:"taken"`
	Pending        float64 `json:"pending"`
	Adjusted       float64 `json:"adjusted"`
	Forfeited      float64 `json:"forfeited"`
	CarriedForward float64 `json:"carried_forward"`
	CurrentBalance float64 `json:"current_balance"`
	Available      float64 `json:"available"`
}

// InitializeBalancesRequest seeds an employee's rows for a cycle year.
type InitializeBalancesRequest struct {
	CycleYear int    `json:"cycle_year" validate:"required,gte=2000,lte=2100"`
	ActorID   string `json:"actor_id" validate:"required"`
}

// AdjustmentRequest is a manual balance correction.
type AdjustmentRequest struct {
	EmployeeID  string  `json:"employee_id" validate:"required"`
	LeaveTypeID string  `json:"leave_type_id" validate:"required"`
	CycleYear   int     `json:"cycle_year" validate:"required,gte=2000,lte=2100"`
	Delta       float64 `json:"delta" validate:"required"`
	ActorID     string  `json:"actor_id" validate:"required"`
	Reason      string  `json:"reason" validate:"required"`
}

// RolloverRequest closes a company's cycle year.
type RolloverRequest struct {
	CompanyID string `json:"company_id" validate:"required"`
	FromYear  int    `json:"from_year" validate:"required,gte=2000,lte=2100"`
	ActorID   string `json:"actor_id" validate:"required"`
}

// RolloverResultDTO summarizes a rollover run.
type RolloverResultDTO struct {
	FromYear  int     `json:"from_year"`
	ToYear    int     `json:"to_year"`
	Rolled    int     `json:"rolled"`
	Skipped   int     `json:"skipped"`
	Carried   float64 `json:"carried"`
	Forfeited float64 `json:"forfeited"`
}

// =============================================================================
// REQUESTS
// =============================================================================

// ApprovalRecordDTO is one history entry on a request.
type ApprovalRecordDTO struct {
	ApproverID   string `json:"approver_id"`
	ApproverName string `json:"approver_name"`
	Action       string `json:"action"`
	Comments     string `json:"comments,omitempty"`
	ActionDate   string `json:"action_date"`
}

// RequestDTO represents a leave request in API responses.
type RequestDTO struct {
	ID                 string              `json:"id"`
	EmployeeID         string              `json:"employee_id"`
	EmployeeName       string              `json:"employee_name,omitempty"`
	CompanyID          string              `json:"company_id"`
	LeaveTypeID        string              `json:"leave_type_id"`
	LeaveTypeName      string              `json:"leave_type_name,omitempty"`
	StartDate          string              `json:"start_date"`
	EndDate            string              `json:"end_date"`
	IsHalfDay          bool                `json:"is_half_day"`
	HalfDayType        string              `json:"half_day_type,omitempty"`
	WorkingDays        float64             `json:"working_days"`
	Reason             string              `json:"reason,omitempty"`
	EmergencyContact   string              `json:"emergency_contact,omitempty"`
	AttachmentRef      string              `json:"attachment_ref,omitempty"`
	Status             string              `json:"status"`
	SubmittedDate      *string             `json:"submitted_date,omitempty"`
	CancelledBy        string              `json:"cancelled_by,omitempty"`
	CancellationReason string              `json:"cancellation_reason,omitempty"`
	History            []ApprovalRecordDTO `json:"history,omitempty"`
	CreatedAt          string              `json:"created_at,omitempty"`
	UpdatedAt          string              `json:"updated_at,omitempty"`
}

// CreateRequestRequest drafts a leave request. EndDate defaults to
// StartDate when omitted (half days always span one date).
type CreateRequestRequest struct {
	EmployeeID       string `json:"employee_id" validate:"required"`
	CompanyID        string `json:"company_id" validate:"required"`
	LeaveTypeID      string `json:"leave_type_id" validate:"required"`
	StartDate        string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate          string `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	IsHalfDay        bool   `json:"is_half_day"`
	HalfDayType      string `json:"half_day_type" validate:"omitempty,oneof=morning afternoon"`
	Reason           string `json:"reason"`
	EmergencyContact string `json:"emergency_contact"`
	AttachmentRef    string `json:"attachment_ref"`
}

// SubmitRequestRequest moves a draft to pending.
type SubmitRequestRequest struct {
	ActorID string `json:"actor_id" validate:"required"`
}

// ApproveRequestRequest approves a pending request.
type ApproveRequestRequest struct {
	ApproverID string `json:"approver_id" validate:"required"`
	Comments   string `json:"comments"`
}

// RejectRequestRequest rejects a pending request. A rejection without a
// reason is useless to the employee, so comments are mandatory.
type RejectRequestRequest struct {
	ApproverID string `json:"approver_id" validate:"required"`
	Comments   string `json:"comments" validate:"required"`
}

// CancelRequestRequest cancels a pending or approved request.
type CancelRequestRequest struct {
	CancelledBy string `json:"cancelled_by" validate:"required"`
	Reason      string `json:"reason"`
}

// SummaryDTO is the per-company request status breakdown.
type SummaryDTO struct {
	CompanyID string         `json:"company_id"`
	Counts    map[string]int `json:"counts"`
	Total     int            `json:"total"`
}

// =============================================================================
// HOLIDAYS, CALENDAR, AUDIT
// =============================================================================

// HolidayDTO represents a company holiday.
type HolidayDTO struct {
	ID        string `json:"id"`
	CompanyID string `json:"company_id"`
	Date      string `json:"date"`
	Name      string `json:"name"`
}

// CreateHolidayRequest registers a company holiday.
type CreateHolidayRequest struct {
	CompanyID string `json:"company_id" validate:"required"`
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	Name      string `json:"name" validate:"required"`
}

// WorkingDaysDTO is the business-day preview for a date span.
type WorkingDaysDTO struct {
	Start       string  `json:"start"`
	End         string  `json:"end"`
	IsHalfDay   bool    `json:"is_half_day"`
	WorkingDays float64 `json:"working_days"`
}

// AuditEntryDTO is one balance mutation in the audit trail.
type AuditEntryDTO struct {
	ID          string  `json:"id"`
	At          string  `json:"at"`
	ActorID     string  `json:"actor_id"`
	Action      string  `json:"action"`
	EmployeeID  string  `json:"employee_id"`
	LeaveTypeID string  `json:"leave_type_id"`
	CycleYear   int     `json:"cycle_year"`
	Delta       float64 `json:"delta"`
	Note        string  `json:"note,omitempty"`
}

// SeedRequest loads the default South African leave catalog for a company.
type SeedRequest struct {
	CompanyID string `json:"company_id" validate:"required"`
}

// SeedResultDTO reports how much of the default catalog was new.
type SeedResultDTO struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toLeaveTypeDTO(lt *leave.LeaveType) LeaveTypeDTO {
	return LeaveTypeDTO{
		ID:                  lt.ID,
		CompanyID:           lt.CompanyID,
		Code:                lt.Code,
		Name:                lt.Name,
		DefaultDaysPerYear:  days(lt.DefaultDaysPerYear),
		IsPaid:              lt.IsPaid,
		AccrualMethod:       string(lt.AccrualMethod),
		MaxCarryOver:        days(lt.MaxCarryOver),
		RequiresApproval:    lt.RequiresApproval,
		RequiresAttachment:  lt.RequiresAttachment,
		AttachmentAfterDays: lt.AttachmentRequiredAfterDays,
		MinConsecutiveDays:  lt.MinConsecutiveDays,
		MaxConsecutiveDays:  lt.MaxConsecutiveDays,
		SortOrder:           lt.SortOrder,
		IsActive:            lt.IsActive,
		CreatedAt:           lt.CreatedAt.Format(time.RFC3339),
		UpdatedAt:           lt.UpdatedAt.Format(time.RFC3339),
		Version:             lt.Version,
	}
}

func toEmployeeDTO(e *leave.Employee) EmployeeDTO {
	return EmployeeDTO{
		ID:        e.ID,
		CompanyID: e.CompanyID,
		Name:      e.Name,
		Email:     e.Email,
		CreatedAt: e.CreatedAt.Format(time.RFC3339),
	}
}

func toBalanceDTO(v leave.BalanceView) BalanceDTO {
	return BalanceDTO{
		EmployeeID:     v.EmployeeID,
		EmployeeName:   v.EmployeeName,
		LeaveTypeID:    v.LeaveTypeID,
		LeaveTypeCode:  v.LeaveTypeCode,
		LeaveTypeName:  v.LeaveTypeName,
		CycleYear:      v.CycleYear,
		OpeningBalance: days(v.OpeningBalance),
		Accrued:        days(v.Accrued),
		Taken:          days(v.Taken),
		Pending:        days(v.Pending),
		Adjusted:       days(v.Adjusted),
		Forfeited:      days(v.Forfeited),
		CarriedForward: days(v.CarriedForward),
		CurrentBalance: days(v.CurrentBalance),
		Available:      days(v.Available()),
	}
}

func toBalanceDTOFromRow(b *leave.LeaveBalance) BalanceDTO {
	return toBalanceDTO(leave.BalanceView{LeaveBalance: *b})
}

func toRequestDTO(r *leave.LeaveRequest, employeeName, leaveTypeName string) RequestDTO {
	dto := RequestDTO{
		ID:                 r.ID,
		EmployeeID:         r.EmployeeID,
		EmployeeName:       employeeName,
		CompanyID:          r.CompanyID,
		LeaveTypeID:        r.LeaveTypeID,
		LeaveTypeName:      leaveTypeName,
		StartDate:          r.StartDate.Format(time.DateOnly),
		EndDate:            r.EndDate.Format(time.DateOnly),
		IsHalfDay:          r.IsHalfDay,
		HalfDayType:        string(r.HalfDayType),
		WorkingDays:        days(r.WorkingDays),
		Reason:             r.Reason,
		EmergencyContact:   r.EmergencyContact,
		AttachmentRef:      r.AttachmentRef,
		Status:             string(r.Status),
		CancelledBy:        r.CancelledBy,
		CancellationReason: r.CancellationReason,
		CreatedAt:          r.CreatedAt.Format(time.RFC3339),
		UpdatedAt:          r.UpdatedAt.Format(time.RFC3339),
	}
	if r.SubmittedDate != nil {
		s := r.SubmittedDate.Format(time.RFC3339)
		dto.SubmittedDate = &s
	}
	for _, rec := range r.ApprovalHistory {
		dto.History = append(dto.History, ApprovalRecordDTO{
			ApproverID:   rec.ApproverID,
			ApproverName: rec.ApproverName,
			Action:       string(rec.Action),
			Comments:     rec.Comments,
			ActionDate:   rec.ActionDate.Format(time.RFC3339),
		})
	}
	return dto
}

func toAuditEntryDTO(e leave.AuditEntry) AuditEntryDTO {
	return AuditEntryDTO{
		ID:          e.ID,
		At:          e.At.Format(time.RFC3339),
		ActorID:     e.ActorID,
		Action:      string(e.Action),
		EmployeeID:  e.EmployeeID,
		LeaveTypeID: e.LeaveTypeID,
		CycleYear:   e.CycleYear,
		Delta:       days(e.Delta),
		Note:        e.Note,
	}
}

// days converts a day quantity for the wire. Quantities sit on the 0.5 grid,
// so the conversion is exact.
func days(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
