/*
workflow.go - Leave request state machine

PURPOSE:
  Drives a request through its lifecycle and keeps the balance row honest
  while doing it:

    draft ──submit──▶ pending ──approve──▶ approved
                         │                    │
                         ├──reject──▶ rejected│
                         └──cancel──┐         │
                                    ▼         ▼
                                 cancelled ◀──cancel (restores balance)

  "taken" arrives from an external payroll batch and is accepted as
  terminal; nothing here ever produces it.

TRANSACTIONALITY:
  Every transition is one atomic read-modify-write across the request and
  its balance row, executed inside TxStore.WithTx. The state is re-read on
  every attempt, versioned saves catch racing writers, and a bounded retry
  loop absorbs transient conflicts. Two managers approving the same
  request concurrently: exactly one wins, the balance moves once, the
  loser gets InvalidTransitionError from the fresh read.

BALANCE CHECKS:
  Submit guards against CurrentBalance minus already-reserved pending
  days, so stacked pending requests cannot overcommit a balance. Approve
  re-checks inside its own transaction: the submit-time check may be stale
  by the time a manager clicks.
*/
package leave

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// maxTransitionRetries bounds optimistic-conflict retries; beyond it the
// conflict surfaces to the caller as ConcurrentModificationError.
const maxTransitionRetries = 3

// Workflow executes state transitions on leave requests.
type Workflow struct {
	store  TxStore
	calc   *Calculator
	logger *zap.Logger
}

// NewWorkflow wires the state machine. A nil calc means the default
// weekend-only calculator (no holiday exclusion).
func NewWorkflow(store TxStore, calc *Calculator, logger ...*zap.Logger) *Workflow {
	if calc == nil {
		calc = NewCalculator(nil)
	}
	l := zap.L().Named("leave.workflow")
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0]
	}
	return &Workflow{store: store, calc: calc, logger: l}
}

// CreateInput carries everything a new draft needs.
type CreateInput struct {
	EmployeeID  string
	CompanyID   string
	LeaveTypeID string

	StartDate time.Time
	EndDate   time.Time

	IsHalfDay   bool
	HalfDayType HalfDayType

	Reason           string
	EmergencyContact string
	AttachmentRef    string
}

// Create stores a new draft. The span is sized exactly once, here; business
// rules (active type, bounds, attachment, balance) are enforced at submit.
func (w *Workflow) Create(ctx context.Context, in CreateInput) (*LeaveRequest, error) {
	if err := validateCreate(in); err != nil {
		return nil, err
	}

	emp, err := w.store.GetEmployee(ctx, in.EmployeeID)
	if err != nil {
		return nil, err
	}
	if emp == nil {
		return nil, &NotFoundError{Kind: "employee", ID: in.EmployeeID}
	}
	if emp.CompanyID != in.CompanyID {
		return nil, &ValidationError{Field: "companyId", Reason: "employee belongs to a different company"}
	}

	lt, err := w.store.GetLeaveType(ctx, in.LeaveTypeID)
	if err != nil {
		return nil, err
	}
	if lt == nil {
		return nil, &NotFoundError{Kind: "leave type", ID: in.LeaveTypeID}
	}
	if lt.CompanyID != in.CompanyID {
		return nil, &ValidationError{Field: "leaveTypeId", Reason: "leave type belongs to a different company"}
	}

	start, end := Day(in.StartDate), Day(in.EndDate)
	if in.IsHalfDay {
		end = start
	}

	days, err := w.calc.WorkingDays(ctx, in.CompanyID, start, end, in.IsHalfDay)
	if err != nil {
		return nil, fmt.Errorf("sizing span: %w", err)
	}

	now := time.Now().UTC()
	req := &LeaveRequest{
		ID:               uuid.NewString(),
		EmployeeID:       in.EmployeeID,
		CompanyID:        in.CompanyID,
		LeaveTypeID:      in.LeaveTypeID,
		StartDate:        start,
		EndDate:          end,
		IsHalfDay:        in.IsHalfDay,
		HalfDayType:      in.HalfDayType,
		WorkingDays:      days,
		Reason:           in.Reason,
		EmergencyContact: in.EmergencyContact,
		AttachmentRef:    in.AttachmentRef,
		Status:           StatusDraft,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := w.store.SaveRequest(ctx, req); err != nil {
		return nil, err
	}

	w.logger.Info("leave request created",
		zap.String("request_id", req.ID),
		zap.String("employee_id", req.EmployeeID),
		zap.String("leave_type_id", req.LeaveTypeID),
		zap.String("working_days", days.String()))
	return req, nil
}

// Get fetches one request.
func (w *Workflow) Get(ctx context.Context, requestID string) (*LeaveRequest, error) {
	req, err := w.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, &NotFoundError{Kind: "leave request", ID: requestID}
	}
	return req, nil
}

// Submit moves a draft to pending: validates the catalog rules, reserves the
// days against the balance, stamps SubmittedDate and records history. Types
// that do not require approval continue straight through approval in the same
// transaction, acted by "system".
func (w *Workflow) Submit(ctx context.Context, requestID, actorID string) (*LeaveRequest, error) {
	out, err := w.transition(ctx, "submit", requestID, func(s Store, req *LeaveRequest) error {
		if req.Status != StatusDraft {
			return &InvalidTransitionError{RequestID: req.ID, From: req.Status, Event: "submit"}
		}

		lt, err := s.GetLeaveType(ctx, req.LeaveTypeID)
		if err != nil {
			return err
		}
		if lt == nil {
			return &NotFoundError{Kind: "leave type", ID: req.LeaveTypeID}
		}
		if err := validateSubmit(req, lt); err != nil {
			return err
		}

		bal, err := loadOrSeedBalance(ctx, s, req.EmployeeID, req.LeaveTypeID, CycleYear(req.StartDate), actorID)
		if err != nil {
			return err
		}
		if req.WorkingDays.GreaterThan(bal.Available()) {
			return &InsufficientBalanceError{
				EmployeeID:  req.EmployeeID,
				LeaveTypeID: req.LeaveTypeID,
				Available:   bal.Available(),
				Requested:   req.WorkingDays,
			}
		}
		reservePending(bal, req.WorkingDays)
		if err := s.SaveBalance(ctx, bal); err != nil {
			return err
		}

		now := time.Now().UTC()
		req.Status = StatusPending
		req.SubmittedDate = &now
		req.UpdatedAt = now
		req.recordAction(actorID, actorName(ctx, s, actorID), ActionSubmitted, "", now)
		if err := s.SaveRequest(ctx, req); err != nil {
			return err
		}

		if !lt.RequiresApproval {
			return approveIn(ctx, s, req, "system", "system", "auto-approved")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	w.logger.Info("leave request submitted",
		zap.String("request_id", out.ID),
		zap.String("employee_id", out.EmployeeID),
		zap.String("status", string(out.Status)))
	return out, nil
}

// Approve moves a pending request to approved and deducts the days. The
// sufficiency check runs again here, inside the transaction, because the
// submit-time check may be stale.
func (w *Workflow) Approve(ctx context.Context, requestID, approverID, comments string) (*LeaveRequest, error) {
	out, err := w.transition(ctx, "approve", requestID, func(s Store, req *LeaveRequest) error {
		return approveIn(ctx, s, req, approverID, actorName(ctx, s, approverID), comments)
	})
	if err != nil {
		return nil, err
	}

	w.logger.Info("leave request approved",
		zap.String("request_id", out.ID),
		zap.String("approver_id", approverID),
		zap.String("working_days", out.WorkingDays.String()))
	return out, nil
}

// Reject declines a pending request and releases its pending reservation.
// Nothing was deducted, so nothing is restored.
func (w *Workflow) Reject(ctx context.Context, requestID, approverID, comments string) (*LeaveRequest, error) {
	out, err := w.transition(ctx, "reject", requestID, func(s Store, req *LeaveRequest) error {
		if req.Status != StatusPending {
			return &InvalidTransitionError{RequestID: req.ID, From: req.Status, Event: "reject"}
		}

		bal, err := loadOrSeedBalance(ctx, s, req.EmployeeID, req.LeaveTypeID, CycleYear(req.StartDate), approverID)
		if err != nil {
			return err
		}
		releasePending(bal, req.WorkingDays)
		if err := s.SaveBalance(ctx, bal); err != nil {
			return err
		}

		now := time.Now().UTC()
		req.Status = StatusRejected
		req.UpdatedAt = now
		req.recordAction(approverID, actorName(ctx, s, approverID), ActionRejected, comments, now)
		return s.SaveRequest(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	w.logger.Info("leave request rejected",
		zap.String("request_id", out.ID),
		zap.String("approver_id", approverID))
	return out, nil
}

// Cancel withdraws a pending or approved request. Cancelling an approved
// request restores the deducted days (clamped at zero taken); cancelling a
// pending one only releases the reservation.
func (w *Workflow) Cancel(ctx context.Context, requestID, actorID, reason string) (*LeaveRequest, error) {
	out, err := w.transition(ctx, "cancel", requestID, func(s Store, req *LeaveRequest) error {
		if req.Status != StatusPending && req.Status != StatusApproved {
			return &InvalidTransitionError{RequestID: req.ID, From: req.Status, Event: "cancel"}
		}

		bal, err := loadOrSeedBalance(ctx, s, req.EmployeeID, req.LeaveTypeID, CycleYear(req.StartDate), actorID)
		if err != nil {
			return err
		}
		switch req.Status {
		case StatusPending:
			releasePending(bal, req.WorkingDays)
		case StatusApproved:
			restoreTo(bal, req.WorkingDays)
		}
		if err := s.SaveBalance(ctx, bal); err != nil {
			return err
		}
		if req.Status == StatusApproved {
			note := "request " + req.ID + " cancelled"
			if err := auditBalance(ctx, s, AuditBalanceRestored, bal, req.WorkingDays, actorID, note); err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		req.Status = StatusCancelled
		req.CancelledBy = actorID
		req.CancellationReason = reason
		req.UpdatedAt = now
		req.recordAction(actorID, actorName(ctx, s, actorID), ActionCancelled, reason, now)
		return s.SaveRequest(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	w.logger.Info("leave request cancelled",
		zap.String("request_id", out.ID),
		zap.String("cancelled_by", actorID))
	return out, nil
}

// =============================================================================
// TRANSITION PLUMBING
// =============================================================================

// transition runs fn against a freshly loaded request inside a transaction,
// retrying on optimistic conflicts. Each retry re-reads everything, so fn
// must tolerate being called more than once.
func (w *Workflow) transition(ctx context.Context, event, requestID string, fn func(Store, *LeaveRequest) error) (*LeaveRequest, error) {
	var out *LeaveRequest
	var err error
	for attempt := 1; attempt <= maxTransitionRetries; attempt++ {
		err = w.store.WithTx(ctx, func(s Store) error {
			req, err := s.GetRequest(ctx, requestID)
			if err != nil {
				return err
			}
			if req == nil {
				return &NotFoundError{Kind: "leave request", ID: requestID}
			}
			if err := fn(s, req); err != nil {
				return err
			}
			out = req
			return nil
		})
		if !IsRetryable(err) {
			break
		}
		w.logger.Warn("transition conflicted, retrying",
			zap.String("request_id", requestID),
			zap.String("event", event),
			zap.Int("attempt", attempt))
	}
	if err != nil {
		if IsRetryable(err) {
			return nil, &ConcurrentModificationError{Kind: "leave request", ID: requestID}
		}
		return nil, err
	}
	return out, nil
}

// approveIn is the shared approval body: used by Approve and by Submit's
// auto-approval path, always inside a transaction. The catalog rules run
// again here against a fresh read: the type may have been deactivated or its
// rules tightened while the request sat in the queue.
func approveIn(ctx context.Context, s Store, req *LeaveRequest, approverID, approverName, comments string) error {
	if req.Status != StatusPending {
		return &InvalidTransitionError{RequestID: req.ID, From: req.Status, Event: "approve"}
	}

	lt, err := s.GetLeaveType(ctx, req.LeaveTypeID)
	if err != nil {
		return err
	}
	if lt == nil {
		return &NotFoundError{Kind: "leave type", ID: req.LeaveTypeID}
	}
	if err := validateSubmit(req, lt); err != nil {
		return err
	}

	bal, err := loadOrSeedBalance(ctx, s, req.EmployeeID, req.LeaveTypeID, CycleYear(req.StartDate), approverID)
	if err != nil {
		return err
	}
	if req.WorkingDays.GreaterThan(bal.CurrentBalance) {
		return &InsufficientBalanceError{
			EmployeeID:  req.EmployeeID,
			LeaveTypeID: req.LeaveTypeID,
			Available:   bal.CurrentBalance,
			Requested:   req.WorkingDays,
		}
	}

	releasePending(bal, req.WorkingDays)
	deductFrom(bal, req.WorkingDays)
	if err := s.SaveBalance(ctx, bal); err != nil {
		return err
	}
	if err := auditBalance(ctx, s, AuditBalanceDeducted, bal, req.WorkingDays.Neg(), approverID, "request "+req.ID+" approved"); err != nil {
		return err
	}

	now := time.Now().UTC()
	req.Status = StatusApproved
	req.UpdatedAt = now
	req.recordAction(approverID, approverName, ActionApproved, comments, now)
	return s.SaveRequest(ctx, req)
}

// actorName resolves a display name for history entries. Actors outside the
// directory (admins, "system") fall back to their ID.
func actorName(ctx context.Context, s Store, actorID string) string {
	emp, err := s.GetEmployee(ctx, actorID)
	if err != nil || emp == nil {
		return actorID
	}
	return emp.Name
}

// =============================================================================
// VALIDATION
// =============================================================================

func validateCreate(in CreateInput) error {
	switch {
	case in.EmployeeID == "":
		return &ValidationError{Field: "employeeId", Reason: "required"}
	case in.CompanyID == "":
		return &ValidationError{Field: "companyId", Reason: "required"}
	case in.LeaveTypeID == "":
		return &ValidationError{Field: "leaveTypeId", Reason: "required"}
	case in.StartDate.IsZero():
		return &ValidationError{Field: "startDate", Reason: "required"}
	case !in.IsHalfDay && in.EndDate.IsZero():
		return &ValidationError{Field: "endDate", Reason: "required"}
	}
	if in.IsHalfDay && !in.HalfDayType.Valid() {
		return &ValidationError{Field: "halfDayType", Reason: "must be morning or afternoon for a half-day request"}
	}
	if !in.IsHalfDay && in.HalfDayType != "" {
		return &ValidationError{Field: "halfDayType", Reason: "only allowed on half-day requests"}
	}
	return nil
}

func validateSubmit(req *LeaveRequest, lt *LeaveType) error {
	if !lt.IsActive {
		return &ValidationError{Field: "leaveTypeId", Reason: "leave type is inactive"}
	}
	if !req.IsHalfDay && req.StartDate.After(req.EndDate) {
		return &ValidationError{Field: "startDate", Reason: "must not be after endDate"}
	}
	if req.WorkingDays.IsZero() {
		return &ValidationError{Field: "workingDays", Reason: "span contains no working days"}
	}
	if lt.MinConsecutiveDays != nil && req.WorkingDays.LessThan(decimal.NewFromInt(int64(*lt.MinConsecutiveDays))) {
		return &ValidationError{
			Field:  "workingDays",
			Reason: fmt.Sprintf("%s requires at least %d consecutive days", lt.Code, *lt.MinConsecutiveDays),
		}
	}
	if lt.MaxConsecutiveDays != nil && req.WorkingDays.GreaterThan(decimal.NewFromInt(int64(*lt.MaxConsecutiveDays))) {
		return &ValidationError{
			Field:  "workingDays",
			Reason: fmt.Sprintf("%s allows at most %d consecutive days", lt.Code, *lt.MaxConsecutiveDays),
		}
	}
	if lt.AttachmentNeededFor(req.WorkingDays) && req.AttachmentRef == "" {
		return &ValidationError{Field: "attachmentRef", Reason: "supporting document required for this span"}
	}
	return nil
}
