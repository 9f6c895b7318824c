/*
workflow_test.go - Request state machine tests

ORGANIZATION:
  1. Lifecycle     - draft through approval, balances moving in step
  2. Balance gates - submit-time and approve-time sufficiency checks
  3. Cancellation  - pending releases, approved restores
  4. Half days     - 0.5 before any date logic
  5. Concurrency   - two managers racing on the same approval
  6. Catalog rules - attachments, consecutive-day bounds, inactive types
  7. Guards        - terminal states and malformed input

Dates used throughout: 2026-03-02 is a Monday; 2026-02-14 is a Saturday.
*/
package leave_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veldhr/leave-engine/leave"
	"github.com/veldhr/leave-engine/leave/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type testEngine struct {
	st     *store.Memory
	reg    *leave.Registry
	ledger *leave.Ledger
	wf     *leave.Workflow
	q      *leave.Queries
}

func newEngine(t *testing.T) *testEngine {
	t.Helper()
	st := store.NewMemory()
	return &testEngine{
		st:     st,
		reg:    leave.NewRegistry(st),
		ledger: leave.NewLedger(st),
		wf:     leave.NewWorkflow(st, leave.NewCalculator(st)),
		q:      leave.NewQueries(st, st),
	}
}

func addEmployee(t *testing.T, st *store.Memory, id, companyID, name string) {
	t.Helper()
	err := st.SaveEmployee(context.Background(), &leave.Employee{
		ID:        id,
		CompanyID: companyID,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
}

// setupCompany seeds the standard fixture: an annual type with 15 days and
// two directory entries, an employee and a manager.
func setupCompany(t *testing.T, e *testEngine) *leave.LeaveType {
	t.Helper()
	addEmployee(t, e.st, "emp-thandi", "acme", "Thandi Nkosi")
	addEmployee(t, e.st, "mgr-pieter", "acme", "Pieter Botha")
	return mustCreateType(t, e.reg, annualType("acme"))
}

func draft(t *testing.T, e *testEngine, typeID string, start, end time.Time) *leave.LeaveRequest {
	t.Helper()
	req, err := e.wf.Create(context.Background(), leave.CreateInput{
		EmployeeID:  "emp-thandi",
		CompanyID:   "acme",
		LeaveTypeID: typeID,
		StartDate:   start,
		EndDate:     end,
		Reason:      "family time",
	})
	require.NoError(t, err)
	return req
}

func balanceOf(t *testing.T, e *testEngine, typeID string, year int) *leave.LeaveBalance {
	t.Helper()
	b, err := e.ledger.Get(context.Background(), "emp-thandi", typeID, year)
	require.NoError(t, err)
	require.NotNil(t, b)
	return b
}

// =============================================================================
// 1. LIFECYCLE
// =============================================================================

func TestWorkflow_FullLifecycle(t *testing.T) {
	// GIVEN: 15 days of annual leave and a five-day request
	e := newEngine(t)
	ctx := context.Background()
	lt := setupCompany(t, e)

	req := draft(t, e, lt.ID, date(2026, time.March, 2), date(2026, time.March, 6))
	assert.Equal(t, leave.StatusDraft, req.Status)
	assert.Equal(t, "5", req.WorkingDays.String())
	assert.Nil(t, req.SubmittedDate)

	// WHEN: the employee submits
	submitted, err := e.wf.Submit(ctx, req.ID, "emp-thandi")
	require.NoError(t, err)

	// THEN: the request is pending and the days are reserved, not deducted
	assert.Equal(t, leave.StatusPending, submitted.Status)
	require.NotNil(t, submitted.SubmittedDate)
	require.Len(t, submitted.ApprovalHistory, 1)
	assert.Equal(t, leave.ActionSubmitted, submitted.ApprovalHistory[0].Action)
	assert.Equal(t, "Thandi Nkosi", submitted.ApprovalHistory[0].ApproverName)

	bal := balanceOf(t, e, lt.ID, 2026)
	assert.Equal(t, "5", bal.Pending.String())
	assert.Equal(t, "0", bal.Taken.String())
	assert.Equal(t, "15", bal.CurrentBalance.String())
	assert.Equal(t, "10", bal.Available().String())

	// WHEN: the manager approves
	approved, err := e.wf.Approve(ctx, req.ID, "mgr-pieter", "enjoy the break")
	require.NoError(t, err)

	// THEN: the reservation becomes a deduction
	assert.Equal(t, leave.StatusApproved, approved.Status)
	require.Len(t, approved.ApprovalHistory, 2)
	assert.Equal(t, leave.ActionApproved, approved.ApprovalHistory[1].Action)
	assert.Equal(t, "Pieter Botha", approved.ApprovalHistory[1].ApproverName)
	assert.Equal(t, "enjoy the break", approved.ApprovalHistory[1].Comments)

	bal = balanceOf(t, e, lt.ID, 2026)
	assert.Equal(t, "0", bal.Pending.String())
	assert.Equal(t, "5", bal.Taken.String())
	assert.Equal(t, "10", bal.CurrentBalance.String())

	// The deduction is on the audit trail.
	entries, err := e.q.AuditTrail(ctx, leave.AuditFilter{
		EmployeeID: "emp-thandi",
		Action:     leave.AuditBalanceDeducted,
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "-5", entries[0].Delta.String())
}

func TestWorkflow_RejectReleasesReservation(t *testing.T) {
	// GIVEN: a pending five-day request
	e := newEngine(t)
	ctx := context.Background()
	lt := setupCompany(t, e)
	req := draft(t, e, lt.ID, date(2026, time.March, 2), date(2026, time.March, 6))
	_, err := e.wf.Submit(ctx, req.ID, "emp-thandi")
	require.NoError(t, err)

	// WHEN: the manager rejects
	rejected, err := e.wf.Reject(ctx, req.ID, "mgr-pieter", "month-end, all hands on deck")
	require.NoError(t, err)

	// THEN: nothing was deducted and the reservation is gone
	assert.Equal(t, leave.StatusRejected, rejected.Status)
	require.Len(t, rejected.ApprovalHistory, 2)
	assert.Equal(t, "month-end, all hands on deck", rejected.ApprovalHistory[1].Comments)

	bal := balanceOf(t, e, lt.ID, 2026)
	assert.Equal(t, "0", bal.Pending.String())
	assert.Equal(t, "0", bal.Taken.String())
	assert.Equal(t, "15", bal.CurrentBalance.String())
}

// =============================================================================
// 2. BALANCE GATES
// =============================================================================

func TestWorkflow_SubmitInsufficientBalance(t *testing.T) {
	// GIVEN: a type granting only 4 days and a five-day request
	e := newEngine(t)
	ctx := context.Background()
	addEmployee(t, e.st, "emp-thandi", "acme", "Thandi Nkosi")

	short := annualType("acme")
	short.DefaultDaysPerYear = leave.Days(4)
	lt := mustCreateType(t, e.reg, short)

	req := draft(t, e, lt.ID, date(2026, time.March, 2), date(2026, time.March, 6))

	// WHEN: the employee submits
	_, err := e.wf.Submit(ctx, req.ID, "emp-thandi")

	// THEN: the refusal carries the numbers HR screens show
	require.Error(t, err)
	assert.EqualError(t, err, "insufficient leave balance: available 4 days, requested 5")
	assert.ErrorIs(t, err, leave.ErrInsufficientBalance)

	var ibe *leave.InsufficientBalanceError
	require.ErrorAs(t, err, &ibe)
	assert.Equal(t, "4", ibe.Available.String())
	assert.Equal(t, "5", ibe.Requested.String())

	// The failed submit left no trace: still a draft, nothing reserved.
	fresh, err := e.wf.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusDraft, fresh.Status)

	bal := balanceOf(t, e, lt.ID, 2026)
	assert.Equal(t, "0", bal.Pending.String())
}

func TestWorkflow_PendingReservationsStack(t *testing.T) {
	// GIVEN: 15 days with 10 already reserved by a pending request
	e := newEngine(t)
	ctx := context.Background()
	lt := setupCompany(t, e)

	first := draft(t, e, lt.ID, date(2026, time.March, 2), date(2026, time.March, 13))
	_, err := e.wf.Submit(ctx, first.ID, "emp-thandi")
	require.NoError(t, err)

	// WHEN: a second ten-day request is submitted
	second := draft(t, e, lt.ID, date(2026, time.March, 16), date(2026, time.March, 27))
	_, err = e.wf.Submit(ctx, second.ID, "emp-thandi")

	// THEN: it is checked against balance minus the outstanding reservation
	assert.EqualError(t, err, "insufficient leave balance: available 5 days, requested 10")
}

func TestWorkflow_ApproveRechecksBalance(t *testing.T) {
	// GIVEN: a request that passed its submit-time check
	e := newEngine(t)
	ctx := context.Background()
	lt := setupCompany(t, e)
	req := draft(t, e, lt.ID, date(2026, time.March, 2), date(2026, time.March, 6))
	_, err := e.wf.Submit(ctx, req.ID, "emp-thandi")
	require.NoError(t, err)

	// WHEN: the balance shrinks before the manager clicks
	_, err = e.ledger.Adjust(ctx, "emp-thandi", lt.ID, 2026, leave.Days(-13), "hr-1", "correction")
	require.NoError(t, err)

	// THEN: approval re-checks and refuses
	_, err = e.wf.Approve(ctx, req.ID, "mgr-pieter", "")
	assert.ErrorIs(t, err, leave.ErrInsufficientBalance)

	// The request survives as pending; nothing was deducted.
	fresh, err := e.wf.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusPending, fresh.Status)

	bal := balanceOf(t, e, lt.ID, 2026)
	assert.Equal(t, "0", bal.Taken.String())
	assert.Equal(t, "5", bal.Pending.String())
}

// =============================================================================
// 3. CANCELLATION
// =============================================================================

func TestWorkflow_CancelPendingReleasesReservation(t *testing.T) {
	// GIVEN: a pending five-day request
	e := newEngine(t)
	ctx := context.Background()
	lt := setupCompany(t, e)
	req := draft(t, e, lt.ID, date(2026, time.March, 2), date(2026, time.March, 6))
	_, err := e.wf.Submit(ctx, req.ID, "emp-thandi")
	require.NoError(t, err)

	// WHEN: the employee withdraws it
	cancelled, err := e.wf.Cancel(ctx, req.ID, "emp-thandi", "plans changed")
	require.NoError(t, err)

	// THEN: the reservation is released; nothing was ever deducted
	assert.Equal(t, leave.StatusCancelled, cancelled.Status)
	assert.Equal(t, "emp-thandi", cancelled.CancelledBy)
	assert.Equal(t, "plans changed", cancelled.CancellationReason)

	bal := balanceOf(t, e, lt.ID, 2026)
	assert.Equal(t, "0", bal.Pending.String())
	assert.Equal(t, "0", bal.Taken.String())
	assert.Equal(t, "15", bal.CurrentBalance.String())

	// No restore is audited; there was nothing to restore.
	entries, err := e.q.AuditTrail(ctx, leave.AuditFilter{
		EmployeeID: "emp-thandi",
		Action:     leave.AuditBalanceRestored,
	})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWorkflow_CancelApprovedRestoresBalance(t *testing.T) {
	// GIVEN: an approved five-day request, already deducted
	e := newEngine(t)
	ctx := context.Background()
	lt := setupCompany(t, e)
	req := draft(t, e, lt.ID, date(2026, time.March, 2), date(2026, time.March, 6))
	_, err := e.wf.Submit(ctx, req.ID, "emp-thandi")
	require.NoError(t, err)
	_, err = e.wf.Approve(ctx, req.ID, "mgr-pieter", "")
	require.NoError(t, err)

	// WHEN: the leave is called off
	cancelled, err := e.wf.Cancel(ctx, req.ID, "emp-thandi", "project escalation")
	require.NoError(t, err)

	// THEN: the deduction is reversed in full
	assert.Equal(t, leave.StatusCancelled, cancelled.Status)
	require.Len(t, cancelled.ApprovalHistory, 3)
	assert.Equal(t, leave.ActionCancelled, cancelled.ApprovalHistory[2].Action)

	bal := balanceOf(t, e, lt.ID, 2026)
	assert.Equal(t, "0", bal.Taken.String())
	assert.Equal(t, "15", bal.CurrentBalance.String())

	// The restore is audited with the returned day count.
	entries, err := e.q.AuditTrail(ctx, leave.AuditFilter{
		EmployeeID: "emp-thandi",
		Action:     leave.AuditBalanceRestored,
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "5", entries[0].Delta.String())
}

// =============================================================================
// 4. HALF DAYS
// =============================================================================

func TestWorkflow_HalfDayOnSaturday(t *testing.T) {
	// A half-day is 0.5 even on a weekend date. 2026-02-14 is a Saturday.
	e := newEngine(t)
	ctx := context.Background()
	lt := setupCompany(t, e)

	req, err := e.wf.Create(ctx, leave.CreateInput{
		EmployeeID:  "emp-thandi",
		CompanyID:   "acme",
		LeaveTypeID: lt.ID,
		StartDate:   date(2026, time.February, 14),
		EndDate:     date(2026, time.February, 14),
		IsHalfDay:   true,
		HalfDayType: leave.HalfDayMorning,
		Reason:      "stock-take shift swap",
	})
	require.NoError(t, err)
	assert.Equal(t, "0.5", req.WorkingDays.String())
	assert.Equal(t, req.StartDate, req.EndDate)

	_, err = e.wf.Submit(ctx, req.ID, "emp-thandi")
	require.NoError(t, err)
	_, err = e.wf.Approve(ctx, req.ID, "mgr-pieter", "")
	require.NoError(t, err)

	bal := balanceOf(t, e, lt.ID, 2026)
	assert.Equal(t, "0.5", bal.Taken.String())
	assert.Equal(t, "14.5", bal.CurrentBalance.String())
}

func TestWorkflow_HalfDayPinsEndToStart(t *testing.T) {
	// A mis-sized half-day span collapses to the start date.
	e := newEngine(t)
	lt := setupCompany(t, e)

	req, err := e.wf.Create(context.Background(), leave.CreateInput{
		EmployeeID:  "emp-thandi",
		CompanyID:   "acme",
		LeaveTypeID: lt.ID,
		StartDate:   date(2026, time.March, 2),
		EndDate:     date(2026, time.March, 6),
		IsHalfDay:   true,
		HalfDayType: leave.HalfDayAfternoon,
	})
	require.NoError(t, err)
	assert.Equal(t, date(2026, time.March, 2), req.EndDate)
	assert.Equal(t, "0.5", req.WorkingDays.String())
}

// =============================================================================
// 5. CONCURRENCY
// =============================================================================

func TestWorkflow_ConcurrentApprovalsMoveBalanceOnce(t *testing.T) {
	// GIVEN: one pending request and two managers clicking at the same time
	e := newEngine(t)
	ctx := context.Background()
	lt := setupCompany(t, e)
	addEmployee(t, e.st, "mgr-lerato", "acme", "Lerato Mokoena")

	req := draft(t, e, lt.ID, date(2026, time.March, 2), date(2026, time.March, 6))
	_, err := e.wf.Submit(ctx, req.ID, "emp-thandi")
	require.NoError(t, err)

	// WHEN: both approvals race
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, mgr := range []string{"mgr-pieter", "mgr-lerato"} {
		wg.Add(1)
		go func(i int, mgr string) {
			defer wg.Done()
			_, errs[i] = e.wf.Approve(ctx, req.ID, mgr, "approved")
		}(i, mgr)
	}
	wg.Wait()

	// THEN: exactly one wins
	var won, lost int
	for _, err := range errs {
		if err == nil {
			won++
			continue
		}
		lost++
		conflict := errors.Is(err, leave.ErrInvalidTransition) ||
			errors.Is(err, leave.ErrConcurrentModification)
		assert.True(t, conflict, "loser got unexpected error: %v", err)
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, 1, lost)

	// The balance moved exactly once and history carries one approval.
	bal := balanceOf(t, e, lt.ID, 2026)
	assert.Equal(t, "5", bal.Taken.String())
	assert.Equal(t, "10", bal.CurrentBalance.String())

	fresh, err := e.wf.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusApproved, fresh.Status)
	assert.Len(t, fresh.ApprovalHistory, 2)
}

// =============================================================================
// 6. CATALOG RULES
// =============================================================================

func TestWorkflow_AutoApprovalSkipsTheQueue(t *testing.T) {
	// GIVEN: sick leave does not require approval
	e := newEngine(t)
	ctx := context.Background()
	addEmployee(t, e.st, "emp-thandi", "acme", "Thandi Nkosi")

	sick := annualType("acme")
	sick.Code, sick.Name = "sick", "Sick Leave"
	sick.DefaultDaysPerYear = leave.Days(10)
	sick.RequiresApproval = false
	sick.RequiresAttachment = true
	sick.AttachmentRequiredAfterDays = iptr(2)
	lt := mustCreateType(t, e.reg, sick)

	req := draft(t, e, lt.ID, date(2026, time.March, 2), date(2026, time.March, 3))

	// WHEN: the employee submits
	out, err := e.wf.Submit(ctx, req.ID, "emp-thandi")
	require.NoError(t, err)

	// THEN: the request lands approved in the same call, acted by "system"
	assert.Equal(t, leave.StatusApproved, out.Status)
	require.Len(t, out.ApprovalHistory, 2)
	assert.Equal(t, leave.ActionSubmitted, out.ApprovalHistory[0].Action)
	assert.Equal(t, leave.ActionApproved, out.ApprovalHistory[1].Action)
	assert.Equal(t, "system", out.ApprovalHistory[1].ApproverID)

	bal := balanceOf(t, e, lt.ID, 2026)
	assert.Equal(t, "2", bal.Taken.String())
	assert.Equal(t, "0", bal.Pending.String())
}

func TestWorkflow_AttachmentRequiredBeyondThreshold(t *testing.T) {
	// GIVEN: sick leave wants a certificate for spans over two days
	e := newEngine(t)
	ctx := context.Background()
	addEmployee(t, e.st, "emp-thandi", "acme", "Thandi Nkosi")

	sick := annualType("acme")
	sick.Code, sick.Name = "sick", "Sick Leave"
	sick.DefaultDaysPerYear = leave.Days(10)
	sick.RequiresApproval = false
	sick.RequiresAttachment = true
	sick.AttachmentRequiredAfterDays = iptr(2)
	lt := mustCreateType(t, e.reg, sick)

	// Three days without a certificate: refused.
	bare := draft(t, e, lt.ID, date(2026, time.March, 2), date(2026, time.March, 4))
	_, err := e.wf.Submit(ctx, bare.ID, "emp-thandi")
	assert.ErrorIs(t, err, leave.ErrValidation)

	// The same span with a document reference goes through.
	withDoc, err := e.wf.Create(ctx, leave.CreateInput{
		EmployeeID:    "emp-thandi",
		CompanyID:     "acme",
		LeaveTypeID:   lt.ID,
		StartDate:     date(2026, time.March, 2),
		EndDate:       date(2026, time.March, 4),
		AttachmentRef: "doc-7781",
	})
	require.NoError(t, err)
	out, err := e.wf.Submit(ctx, withDoc.ID, "emp-thandi")
	require.NoError(t, err)
	assert.Equal(t, leave.StatusApproved, out.Status)
}

func TestWorkflow_AttachmentAlwaysRequiredWithoutThreshold(t *testing.T) {
	// RequiresAttachment with no threshold means any span needs a document.
	e := newEngine(t)
	addEmployee(t, e.st, "emp-thandi", "acme", "Thandi Nkosi")

	study := annualType("acme")
	study.Code, study.Name = "study", "Study Leave"
	study.DefaultDaysPerYear = leave.Days(5)
	study.RequiresAttachment = true
	lt := mustCreateType(t, e.reg, study)

	req := draft(t, e, lt.ID, date(2026, time.March, 2), date(2026, time.March, 2))
	_, err := e.wf.Submit(context.Background(), req.ID, "emp-thandi")
	assert.ErrorIs(t, err, leave.ErrValidation)
}

func TestWorkflow_ConsecutiveDayBounds(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	addEmployee(t, e.st, "emp-thandi", "acme", "Thandi Nkosi")

	// Family responsibility leave allows at most 3 consecutive days.
	family := annualType("acme")
	family.Code, family.Name = "family", "Family Responsibility Leave"
	family.DefaultDaysPerYear = leave.Days(3)
	family.MaxConsecutiveDays = iptr(3)
	famType := mustCreateType(t, e.reg, family)

	long := draft(t, e, famType.ID, date(2026, time.March, 2), date(2026, time.March, 5))
	_, err := e.wf.Submit(ctx, long.ID, "emp-thandi")
	assert.ErrorIs(t, err, leave.ErrValidation)

	// A shutdown type demands at least 2 consecutive days.
	shutdown := annualType("acme")
	shutdown.Code, shutdown.Name = "shutdown", "Builders Shutdown"
	shutdown.MinConsecutiveDays = iptr(2)
	shutType := mustCreateType(t, e.reg, shutdown)

	short := draft(t, e, shutType.ID, date(2026, time.March, 2), date(2026, time.March, 2))
	_, err = e.wf.Submit(ctx, short.ID, "emp-thandi")
	assert.ErrorIs(t, err, leave.ErrValidation)
}

func TestWorkflow_SubmitAgainstInactiveType(t *testing.T) {
	// GIVEN: a draft whose type is deactivated before submission
	e := newEngine(t)
	ctx := context.Background()
	lt := setupCompany(t, e)
	req := draft(t, e, lt.ID, date(2026, time.March, 2), date(2026, time.March, 6))

	_, err := e.reg.Deactivate(ctx, lt.ID)
	require.NoError(t, err)

	// THEN: the submit is refused; history is protected from dead catalog
	_, err = e.wf.Submit(ctx, req.ID, "emp-thandi")
	assert.ErrorIs(t, err, leave.ErrValidation)
}

func TestWorkflow_ApproveAgainstDeactivatedType(t *testing.T) {
	// GIVEN: a pending request whose type is deactivated while it waits
	e := newEngine(t)
	ctx := context.Background()
	lt := setupCompany(t, e)
	req := draft(t, e, lt.ID, date(2026, time.March, 2), date(2026, time.March, 6))
	_, err := e.wf.Submit(ctx, req.ID, "emp-thandi")
	require.NoError(t, err)

	_, err = e.reg.Deactivate(ctx, lt.ID)
	require.NoError(t, err)

	// THEN: approval re-reads the catalog and refuses the stale rules
	_, err = e.wf.Approve(ctx, req.ID, "mgr-pieter", "")
	assert.ErrorIs(t, err, leave.ErrValidation)

	// The request stays pending with its reservation intact.
	fresh, err := e.wf.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusPending, fresh.Status)

	bal := balanceOf(t, e, lt.ID, 2026)
	assert.Equal(t, "0", bal.Taken.String())
	assert.Equal(t, "5", bal.Pending.String())
}

func TestWorkflow_SubmitZeroWorkingDaySpan(t *testing.T) {
	// A weekend-only full-day span sizes to zero and cannot be submitted.
	e := newEngine(t)
	lt := setupCompany(t, e)

	req := draft(t, e, lt.ID, date(2026, time.March, 7), date(2026, time.March, 8))
	assert.Equal(t, "0", req.WorkingDays.String())

	_, err := e.wf.Submit(context.Background(), req.ID, "emp-thandi")
	assert.ErrorIs(t, err, leave.ErrValidation)
}

// =============================================================================
// 7. GUARDS
// =============================================================================

func TestWorkflow_TerminalAndIllegalTransitions(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	lt := setupCompany(t, e)

	// approve a draft: must be submitted first
	d := draft(t, e, lt.ID, date(2026, time.March, 2), date(2026, time.March, 6))
	_, err := e.wf.Approve(ctx, d.ID, "mgr-pieter", "")
	var ite *leave.InvalidTransitionError
	require.ErrorAs(t, err, &ite)
	assert.Equal(t, leave.StatusDraft, ite.From)
	assert.Equal(t, "approve", ite.Event)

	// cancel a draft: drafts are discarded, not cancelled
	_, err = e.wf.Cancel(ctx, d.ID, "emp-thandi", "")
	assert.ErrorIs(t, err, leave.ErrInvalidTransition)

	// submit twice
	_, err = e.wf.Submit(ctx, d.ID, "emp-thandi")
	require.NoError(t, err)
	_, err = e.wf.Submit(ctx, d.ID, "emp-thandi")
	assert.ErrorIs(t, err, leave.ErrInvalidTransition)

	// reject an approved request
	_, err = e.wf.Approve(ctx, d.ID, "mgr-pieter", "")
	require.NoError(t, err)
	_, err = e.wf.Reject(ctx, d.ID, "mgr-pieter", "too late")
	assert.ErrorIs(t, err, leave.ErrInvalidTransition)

	// cancel a rejected request
	r := draft(t, e, lt.ID, date(2026, time.March, 16), date(2026, time.March, 17))
	_, err = e.wf.Submit(ctx, r.ID, "emp-thandi")
	require.NoError(t, err)
	_, err = e.wf.Reject(ctx, r.ID, "mgr-pieter", "no cover")
	require.NoError(t, err)
	_, err = e.wf.Cancel(ctx, r.ID, "emp-thandi", "")
	assert.ErrorIs(t, err, leave.ErrInvalidTransition)
}

func TestWorkflow_TakenIsTerminal(t *testing.T) {
	// GIVEN: a historical "taken" request imported by a payroll batch
	e := newEngine(t)
	ctx := context.Background()
	lt := setupCompany(t, e)

	now := time.Now().UTC()
	imported := &leave.LeaveRequest{
		ID:          "req-payroll-1",
		EmployeeID:  "emp-thandi",
		CompanyID:   "acme",
		LeaveTypeID: lt.ID,
		StartDate:   date(2026, time.January, 5),
		EndDate:     date(2026, time.January, 9),
		WorkingDays: leave.Days(5),
		Status:      leave.StatusTaken,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, e.st.SaveRequest(ctx, imported))

	// THEN: no event moves it
	_, err := e.wf.Approve(ctx, imported.ID, "mgr-pieter", "")
	assert.ErrorIs(t, err, leave.ErrInvalidTransition)
	_, err = e.wf.Cancel(ctx, imported.ID, "emp-thandi", "")
	assert.ErrorIs(t, err, leave.ErrInvalidTransition)
	_, err = e.wf.Submit(ctx, imported.ID, "emp-thandi")
	assert.ErrorIs(t, err, leave.ErrInvalidTransition)
}

func TestWorkflow_CreateValidation(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	lt := setupCompany(t, e)
	addEmployee(t, e.st, "emp-globex", "globex", "Hank Scorpio")

	base := leave.CreateInput{
		EmployeeID:  "emp-thandi",
		CompanyID:   "acme",
		LeaveTypeID: lt.ID,
		StartDate:   date(2026, time.March, 2),
		EndDate:     date(2026, time.March, 6),
	}

	t.Run("unknown employee", func(t *testing.T) {
		in := base
		in.EmployeeID = "emp-ghost"
		_, err := e.wf.Create(ctx, in)
		assert.True(t, leave.IsNotFound(err))
	})

	t.Run("employee from another company", func(t *testing.T) {
		in := base
		in.EmployeeID = "emp-globex"
		_, err := e.wf.Create(ctx, in)
		assert.ErrorIs(t, err, leave.ErrValidation)
	})

	t.Run("unknown leave type", func(t *testing.T) {
		in := base
		in.LeaveTypeID = "no-such-type"
		_, err := e.wf.Create(ctx, in)
		assert.True(t, leave.IsNotFound(err))
	})

	t.Run("half-day without a slot", func(t *testing.T) {
		in := base
		in.IsHalfDay = true
		_, err := e.wf.Create(ctx, in)
		assert.ErrorIs(t, err, leave.ErrValidation)
	})

	t.Run("slot on a full-day request", func(t *testing.T) {
		in := base
		in.HalfDayType = leave.HalfDayMorning
		_, err := e.wf.Create(ctx, in)
		assert.ErrorIs(t, err, leave.ErrValidation)
	})

	t.Run("missing end date", func(t *testing.T) {
		in := base
		in.EndDate = time.Time{}
		_, err := e.wf.Create(ctx, in)
		assert.ErrorIs(t, err, leave.ErrValidation)
	})
}

func TestWorkflow_EventsOnMissingRequest(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	_, err := e.wf.Submit(ctx, "no-such-request", "emp-thandi")
	assert.True(t, leave.IsNotFound(err))
	_, err = e.wf.Approve(ctx, "no-such-request", "mgr-pieter", "")
	assert.True(t, leave.IsNotFound(err))
	_, err = e.wf.Get(ctx, "no-such-request")
	var nfe *leave.NotFoundError
	require.ErrorAs(t, err, &nfe)
	assert.Equal(t, "leave request", nfe.Kind)
}
