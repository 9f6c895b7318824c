/*
types.go - Core domain model for the leave engine

PURPOSE:
  Defines the three records everything else revolves around:

  LeaveType:    per-company catalog entry describing one category of leave
                (annual, sick, ...) and its rules: entitlement, accrual,
                carry-over cap, approval and attachment requirements.
  LeaveBalance: bucketed balance row per employee x leave type x cycle year.
                Buckets only ever move through ledger.go.
  LeaveRequest: a dated request moving through the workflow state machine,
                carrying its own append-only approval history.

QUANTITIES:
  All day quantities are decimal.Decimal with 0.5 granularity (half days).
  Never float64: 4.8 - 0.3 must be exactly 4.5 on a payslip.

VERSIONING:
  LeaveType, LeaveBalance and LeaveRequest carry a Version used by stores
  for optimistic concurrency. Version 0 means "not persisted yet"; stores
  bump it on every successful save and fail conflicting writes with
  ErrConcurrentModification.

SEE ALSO:
  - ledger.go:   the only code path allowed to mutate balance buckets
  - workflow.go: the request state machine
  - calendar.go: working-day counting
*/
package leave

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// LEAVE TYPE
// =============================================================================

// AccrualMethod describes how entitlement builds up over a cycle year.
type AccrualMethod string

const (
	// AccrualNone means the type grants no entitlement (unpaid leave).
	AccrualNone AccrualMethod = "none"
	// AccrualAnnual grants the full yearly entitlement up front.
	AccrualAnnual AccrualMethod = "annual"
	// AccrualMonthly is catalog metadata for payroll: entitlement is still
	// seeded up front here, payroll prorates it on its side.
	AccrualMonthly AccrualMethod = "monthly"
)

func (m AccrualMethod) Valid() bool {
	switch m {
	case AccrualNone, AccrualAnnual, AccrualMonthly:
		return true
	}
	return false
}

// LeaveType is one entry in a company's leave catalog.
//
// Code is unique among the company's ACTIVE types: deactivating a type frees
// its code for reuse while keeping history readable. Deactivation is always
// soft, types are never deleted.
type LeaveType struct {
	ID        string
	CompanyID string
	Code      string
	Name      string

	DefaultDaysPerYear decimal.Decimal
	IsPaid             bool
	AccrualMethod      AccrualMethod

	// MaxCarryOver caps how many unused days roll into the next cycle year.
	MaxCarryOver decimal.Decimal

	RequiresApproval   bool
	RequiresAttachment bool
	// AttachmentRequiredAfterDays is the span (in working days) beyond which
	// a supporting document becomes mandatory. Nil with RequiresAttachment
	// set means an attachment is required for any span.
	AttachmentRequiredAfterDays *int

	// Optional bounds on a single request's working-day span.
	MinConsecutiveDays *int
	MaxConsecutiveDays *int

	SortOrder int
	IsActive  bool

	CreatedAt time.Time
	UpdatedAt time.Time
	Version   int64
}

// AttachmentNeededFor reports whether a request spanning the given number of
// working days must carry a supporting document.
func (t *LeaveType) AttachmentNeededFor(workingDays decimal.Decimal) bool {
	if !t.RequiresAttachment {
		return false
	}
	if t.AttachmentRequiredAfterDays == nil {
		return true
	}
	threshold := decimal.NewFromInt(int64(*t.AttachmentRequiredAfterDays))
	return workingDays.GreaterThan(threshold)
}

func (t *LeaveType) Clone() *LeaveType {
	if t == nil {
		return nil
	}
	c := *t
	c.AttachmentRequiredAfterDays = cloneIntPtr(t.AttachmentRequiredAfterDays)
	c.MinConsecutiveDays = cloneIntPtr(t.MinConsecutiveDays)
	c.MaxConsecutiveDays = cloneIntPtr(t.MaxConsecutiveDays)
	return &c
}

func cloneIntPtr(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// =============================================================================
// LEAVE BALANCE
// =============================================================================

// LeaveBalance is the bucketed balance row for one employee, one leave type,
// one cycle year. Rows are created lazily and never deleted; a new cycle year
// gets a fresh row.
//
// Invariant, re-established by ledger.go after every mutation:
//
//	CurrentBalance = OpeningBalance + Accrued + CarriedForward + Adjusted
//	               - Taken - Forfeited
//
// Pending is informational bookkeeping (working days on outstanding
// pending-status requests) and deliberately outside the invariant.
type LeaveBalance struct {
	ID          string
	EmployeeID  string
	CompanyID   string
	LeaveTypeID string
	CycleYear   int

	OpeningBalance decimal.Decimal
	Accrued        decimal.Decimal
	Taken          decimal.Decimal
	Pending        decimal.Decimal
	Adjusted       decimal.Decimal // signed: manual credits and debits
	Forfeited      decimal.Decimal
	CarriedForward decimal.Decimal

	CurrentBalance decimal.Decimal

	CreatedAt time.Time
	UpdatedAt time.Time
	Version   int64
}

// Recompute re-derives CurrentBalance from the buckets.
func (b *LeaveBalance) Recompute() {
	b.CurrentBalance = b.OpeningBalance.
		Add(b.Accrued).
		Add(b.CarriedForward).
		Add(b.Adjusted).
		Sub(b.Taken).
		Sub(b.Forfeited)
}

// Available is what a NEW request may still claim: the current balance minus
// days already reserved by outstanding pending requests.
func (b *LeaveBalance) Available() decimal.Decimal {
	return b.CurrentBalance.Sub(b.Pending)
}

func (b *LeaveBalance) Clone() *LeaveBalance {
	if b == nil {
		return nil
	}
	c := *b
	return &c
}

// =============================================================================
// LEAVE REQUEST
// =============================================================================

type RequestStatus string

const (
	StatusDraft     RequestStatus = "draft"
	StatusPending   RequestStatus = "pending"
	StatusApproved  RequestStatus = "approved"
	StatusRejected  RequestStatus = "rejected"
	StatusCancelled RequestStatus = "cancelled"
	// StatusTaken marks historical leave consumed by an external payroll
	// batch. Accepted as terminal, never produced here.
	StatusTaken RequestStatus = "taken"
)

func (s RequestStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusPending, StatusApproved, StatusRejected, StatusCancelled, StatusTaken:
		return true
	}
	return false
}

// Terminal reports whether no further transition may leave this status.
func (s RequestStatus) Terminal() bool {
	switch s {
	case StatusRejected, StatusCancelled, StatusTaken:
		return true
	}
	return false
}

type HalfDayType string

const (
	HalfDayMorning   HalfDayType = "morning"
	HalfDayAfternoon HalfDayType = "afternoon"
)

func (h HalfDayType) Valid() bool {
	return h == HalfDayMorning || h == HalfDayAfternoon
}

// ApprovalAction is the kind of step recorded in a request's history.
type ApprovalAction string

const (
	ActionSubmitted ApprovalAction = "submitted"
	ActionApproved  ApprovalAction = "approved"
	ActionRejected  ApprovalAction = "rejected"
	ActionCancelled ApprovalAction = "cancelled"
)

// ApprovalRecord is one append-only entry in a request's history. ApproverName
// is captured at action time so history stays readable after directory changes.
type ApprovalRecord struct {
	ApproverID   string
	ApproverName string
	Action       ApprovalAction
	Comments     string
	ActionDate   time.Time
}

// LeaveRequest is a dated leave application moving through the state machine.
type LeaveRequest struct {
	ID          string
	EmployeeID  string
	CompanyID   string
	LeaveTypeID string

	StartDate time.Time
	EndDate   time.Time

	IsHalfDay   bool
	HalfDayType HalfDayType // set only when IsHalfDay

	// WorkingDays is sized once at creation by the business-day calculator
	// and is what the ledger moves on approval.
	WorkingDays decimal.Decimal

	Reason           string
	EmergencyContact string
	// AttachmentRef points at a document in the external document store.
	AttachmentRef string

	Status          RequestStatus
	ApprovalHistory []ApprovalRecord

	SubmittedDate      *time.Time
	CancelledBy        string
	CancellationReason string

	CreatedAt time.Time
	UpdatedAt time.Time
	Version   int64
}

func (r *LeaveRequest) Clone() *LeaveRequest {
	if r == nil {
		return nil
	}
	c := *r
	c.ApprovalHistory = append([]ApprovalRecord(nil), r.ApprovalHistory...)
	if r.SubmittedDate != nil {
		d := *r.SubmittedDate
		c.SubmittedDate = &d
	}
	return &c
}

// recordAction appends to the approval history. History is append-only; there
// is deliberately no way to edit or remove entries.
func (r *LeaveRequest) recordAction(actorID, actorName string, action ApprovalAction, comments string, at time.Time) {
	r.ApprovalHistory = append(r.ApprovalHistory, ApprovalRecord{
		ApproverID:   actorID,
		ApproverName: actorName,
		Action:       action,
		Comments:     comments,
		ActionDate:   at,
	})
}

// =============================================================================
// EMPLOYEE - local projection of the external directory
// =============================================================================

// Employee is the slim directory projection kept next to the engine's data so
// query views can show names. The system of record lives elsewhere.
type Employee struct {
	ID        string
	CompanyID string
	Name      string
	Email     string
	CreatedAt time.Time
}

// =============================================================================
// QUANTITY HELPERS
// =============================================================================

var halfStep = decimal.NewFromFloat(0.5)

// Days builds a day quantity from a literal. Test and seed convenience.
func Days(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// IsHalfStep reports whether d sits on the 0.5-day grid.
func IsHalfStep(d decimal.Decimal) bool {
	return d.Abs().Mod(halfStep).IsZero()
}

// CycleYear maps a date to its leave cycle year. Cycles are calendar years,
// January 1 through December 31.
func CycleYear(t time.Time) int {
	return t.Year()
}
