/*
sqlite_test.go - SQLite store tests

Runs the shared storage contract against the production store:
- versioned upserts and conflict detection
- the partial unique index behind active-code uniqueness
- append-only approval history
- transactional rollback through WithTx

All tests run on ":memory:" databases.
*/
package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veldhr/leave-engine/leave"
	"github.com/veldhr/leave-engine/store/sqlite"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func day(year int, month time.Month, d int) time.Time {
	return leave.Date(year, month, d)
}

// second-precision stamps: timestamps round-trip through RFC3339.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

func iptr(v int) *int { return &v }

func testType(id, code string) *leave.LeaveType {
	ts := now()
	return &leave.LeaveType{
		ID:                 id,
		CompanyID:          "acme",
		Code:               code,
		Name:               "Annual Leave",
		DefaultDaysPerYear: leave.Days(15),
		IsPaid:             true,
		AccrualMethod:      leave.AccrualAnnual,
		MaxCarryOver:       leave.Days(5),
		RequiresApproval:   true,
		SortOrder:          1,
		IsActive:           true,
		CreatedAt:          ts,
		UpdatedAt:          ts,
	}
}

func testBalance(id, employeeID, leaveTypeID string, year int) *leave.LeaveBalance {
	ts := now()
	b := &leave.LeaveBalance{
		ID:          id,
		EmployeeID:  employeeID,
		CompanyID:   "acme",
		LeaveTypeID: leaveTypeID,
		CycleYear:   year,
		Accrued:     leave.Days(15),
		Taken:       leave.Days(2.5),
		Pending:     leave.Days(0.5),
		Adjusted:    leave.Days(-1),
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}
	b.Recompute()
	return b
}

func testRequest(id string, status leave.RequestStatus, start, end, createdAt time.Time) *leave.LeaveRequest {
	return &leave.LeaveRequest{
		ID:          id,
		EmployeeID:  "emp-1",
		CompanyID:   "acme",
		LeaveTypeID: "lt-annual",
		StartDate:   start,
		EndDate:     end,
		WorkingDays: leave.Days(5),
		Reason:      "family time",
		Status:      status,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
}

// =============================================================================
// LEAVE TYPES
// =============================================================================

func TestSQLite_LeaveTypeRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	lt := testType("lt-1", "annual")
	lt.RequiresAttachment = true
	lt.AttachmentRequiredAfterDays = iptr(2)
	lt.MinConsecutiveDays = iptr(1)
	lt.MaxConsecutiveDays = iptr(15)

	require.NoError(t, st.SaveLeaveType(ctx, lt))
	assert.Equal(t, int64(1), lt.Version)

	got, err := st.GetLeaveType(ctx, "lt-1")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, lt.CompanyID, got.CompanyID)
	assert.Equal(t, lt.Code, got.Code)
	assert.Equal(t, "15", got.DefaultDaysPerYear.String())
	assert.Equal(t, "5", got.MaxCarryOver.String())
	assert.Equal(t, leave.AccrualAnnual, got.AccrualMethod)
	assert.True(t, got.RequiresAttachment)
	require.NotNil(t, got.AttachmentRequiredAfterDays)
	assert.Equal(t, 2, *got.AttachmentRequiredAfterDays)
	assert.Equal(t, 15, *got.MaxConsecutiveDays)
	assert.True(t, got.CreatedAt.Equal(lt.CreatedAt))
	assert.Equal(t, int64(1), got.Version)

	// Absent record: nil, not an error.
	missing, err := st.GetLeaveType(ctx, "lt-ghost")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLite_NilPointerFieldsSurviveRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.SaveLeaveType(ctx, testType("lt-1", "annual")))

	got, err := st.GetLeaveType(ctx, "lt-1")
	require.NoError(t, err)
	assert.Nil(t, got.AttachmentRequiredAfterDays)
	assert.Nil(t, got.MinConsecutiveDays)
	assert.Nil(t, got.MaxConsecutiveDays)
}

func TestSQLite_ActiveCodeUniquenessIsPartial(t *testing.T) {
	// GIVEN: an active "annual" type
	st := newTestStore(t)
	ctx := context.Background()
	first := testType("lt-1", "annual")
	require.NoError(t, st.SaveLeaveType(ctx, first))

	// THEN: a second active type with the same code is refused
	dup := testType("lt-2", "annual")
	err := st.SaveLeaveType(ctx, dup)
	assert.ErrorIs(t, err, leave.ErrDuplicateCode)

	// WHEN: the first is deactivated, the code frees up
	first.IsActive = false
	require.NoError(t, st.SaveLeaveType(ctx, first))

	replacement := testType("lt-3", "annual")
	require.NoError(t, st.SaveLeaveType(ctx, replacement))

	// Lookups see only the active holder of the code.
	found, err := st.FindActiveTypeByCode(ctx, "acme", "annual")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "lt-3", found.ID)
}

func TestSQLite_StaleVersionIsRefused(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	lt := testType("lt-1", "annual")
	require.NoError(t, st.SaveLeaveType(ctx, lt))
	lt.Name = "Annual Leave (v2)"
	require.NoError(t, st.SaveLeaveType(ctx, lt))
	assert.Equal(t, int64(2), lt.Version)

	stale := testType("lt-1", "annual")
	stale.Version = 1
	err := st.SaveLeaveType(ctx, stale)
	assert.ErrorIs(t, err, leave.ErrConcurrentModification)
}

func TestSQLite_ListLeaveTypesOrderAndVisibility(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	sick := testType("lt-sick", "sick")
	sick.Name, sick.SortOrder = "Sick Leave", 2
	family := testType("lt-family", "family")
	family.Name, family.SortOrder = "Family Responsibility", 3
	family.IsActive = false

	require.NoError(t, st.SaveLeaveType(ctx, sick))
	require.NoError(t, st.SaveLeaveType(ctx, testType("lt-annual", "annual")))
	require.NoError(t, st.SaveLeaveType(ctx, family))

	active, err := st.ListLeaveTypes(ctx, "acme", false)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "annual", active[0].Code)
	assert.Equal(t, "sick", active[1].Code)

	all, err := st.ListLeaveTypes(ctx, "acme", true)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

// =============================================================================
// BALANCES
// =============================================================================

func TestSQLite_BalanceRoundTripKeepsHalves(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	b := testBalance("bal-1", "emp-1", "lt-1", 2026)
	require.NoError(t, st.SaveBalance(ctx, b))
	assert.Equal(t, int64(1), b.Version)

	got, err := st.GetBalance(ctx, "emp-1", "lt-1", 2026)
	require.NoError(t, err)
	require.NotNil(t, got)

	// Decimal buckets come back exactly, halves included.
	assert.Equal(t, "15", got.Accrued.String())
	assert.Equal(t, "2.5", got.Taken.String())
	assert.Equal(t, "0.5", got.Pending.String())
	assert.Equal(t, "-1", got.Adjusted.String())
	assert.Equal(t, "11.5", got.CurrentBalance.String())

	missing, err := st.GetBalance(ctx, "emp-1", "lt-1", 2027)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLite_BalanceRowsAreUniquePerKey(t *testing.T) {
	// Two writers racing to create the same (employee, type, year) row:
	// the second insert is a lost update, not a second row.
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.SaveBalance(ctx, testBalance("bal-1", "emp-1", "lt-1", 2026)))

	err := st.SaveBalance(ctx, testBalance("bal-2", "emp-1", "lt-1", 2026))
	assert.ErrorIs(t, err, leave.ErrConcurrentModification)
}

func TestSQLite_ListBalancesScopes(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.SaveBalance(ctx, testBalance("bal-1", "emp-1", "lt-annual", 2026)))
	require.NoError(t, st.SaveBalance(ctx, testBalance("bal-2", "emp-1", "lt-sick", 2026)))
	require.NoError(t, st.SaveBalance(ctx, testBalance("bal-3", "emp-2", "lt-annual", 2026)))
	require.NoError(t, st.SaveBalance(ctx, testBalance("bal-4", "emp-1", "lt-annual", 2025)))

	mine, err := st.ListBalances(ctx, "emp-1", 2026)
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	company, err := st.ListCompanyBalances(ctx, "acme", 2026)
	require.NoError(t, err)
	assert.Len(t, company, 3)
}

// =============================================================================
// REQUESTS AND APPROVAL HISTORY
// =============================================================================

func TestSQLite_RequestRoundTripWithHistory(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	submitted := now()
	r := testRequest("req-1", leave.StatusPending, day(2026, time.March, 2), day(2026, time.March, 6), now())
	r.SubmittedDate = &submitted
	r.EmergencyContact = "082 555 0199"
	r.ApprovalHistory = []leave.ApprovalRecord{
		{ApproverID: "emp-1", ApproverName: "Thandi Nkosi", Action: leave.ActionSubmitted, ActionDate: submitted},
	}
	require.NoError(t, st.SaveRequest(ctx, r))

	got, err := st.GetRequest(ctx, "req-1")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.True(t, got.StartDate.Equal(day(2026, time.March, 2)))
	assert.True(t, got.EndDate.Equal(day(2026, time.March, 6)))
	assert.Equal(t, "5", got.WorkingDays.String())
	assert.Equal(t, leave.StatusPending, got.Status)
	assert.Equal(t, "082 555 0199", got.EmergencyContact)
	require.NotNil(t, got.SubmittedDate)
	assert.True(t, got.SubmittedDate.Equal(submitted))
	require.Len(t, got.ApprovalHistory, 1)
	assert.Equal(t, "Thandi Nkosi", got.ApprovalHistory[0].ApproverName)
}

func TestSQLite_ApprovalHistoryIsAppendOnly(t *testing.T) {
	// GIVEN: a pending request with one history entry
	st := newTestStore(t)
	ctx := context.Background()

	r := testRequest("req-1", leave.StatusPending, day(2026, time.March, 2), day(2026, time.March, 6), now())
	r.ApprovalHistory = []leave.ApprovalRecord{
		{ApproverID: "emp-1", Action: leave.ActionSubmitted, ActionDate: now()},
	}
	require.NoError(t, st.SaveRequest(ctx, r))

	// WHEN: the same record is saved again unchanged
	require.NoError(t, st.SaveRequest(ctx, r))

	got, err := st.GetRequest(ctx, "req-1")
	require.NoError(t, err)
	assert.Len(t, got.ApprovalHistory, 1, "re-saving must not duplicate history")

	// WHEN: an approval is appended and saved
	r = got
	r.Status = leave.StatusApproved
	r.ApprovalHistory = append(r.ApprovalHistory, leave.ApprovalRecord{
		ApproverID: "mgr-1", ApproverName: "Pieter Botha", Action: leave.ActionApproved, ActionDate: now(),
	})
	require.NoError(t, st.SaveRequest(ctx, r))

	// THEN: history grows by one, in action order
	got, err = st.GetRequest(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, leave.StatusApproved, got.Status)
	require.Len(t, got.ApprovalHistory, 2)
	assert.Equal(t, leave.ActionSubmitted, got.ApprovalHistory[0].Action)
	assert.Equal(t, leave.ActionApproved, got.ApprovalHistory[1].Action)
}

func TestSQLite_HalfDayFieldsRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	r := testRequest("req-1", leave.StatusDraft, day(2026, time.February, 14), day(2026, time.February, 14), now())
	r.IsHalfDay = true
	r.HalfDayType = leave.HalfDayMorning
	r.WorkingDays = leave.Days(0.5)
	require.NoError(t, st.SaveRequest(ctx, r))

	got, err := st.GetRequest(ctx, "req-1")
	require.NoError(t, err)
	assert.True(t, got.IsHalfDay)
	assert.Equal(t, leave.HalfDayMorning, got.HalfDayType)
	assert.Equal(t, "0.5", got.WorkingDays.String())
}

func TestSQLite_QueryRequestsFiltersAndOrder(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	base := now()
	r1 := testRequest("req-1", leave.StatusApproved, day(2026, time.March, 2), day(2026, time.March, 6), base.Add(-2*time.Hour))
	r2 := testRequest("req-2", leave.StatusPending, day(2026, time.March, 16), day(2026, time.March, 17), base.Add(-time.Hour))
	r3 := testRequest("req-3", leave.StatusPending, day(2026, time.April, 6), day(2026, time.April, 7), base)
	r3.EmployeeID = "emp-2"
	for _, r := range []*leave.LeaveRequest{r1, r2, r3} {
		require.NoError(t, st.SaveRequest(ctx, r))
	}

	all, err := st.QueryRequests(ctx, leave.RequestFilter{CompanyID: "acme"})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "req-3", all[0].ID)
	assert.Equal(t, "req-1", all[2].ID)

	pend, err := st.QueryRequests(ctx, leave.RequestFilter{CompanyID: "acme", Status: leave.StatusPending})
	require.NoError(t, err)
	assert.Len(t, pend, 2)

	mine, err := st.QueryRequests(ctx, leave.RequestFilter{CompanyID: "acme", EmployeeID: "emp-2"})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "req-3", mine[0].ID)

	// Overlap window catching only the middle request.
	window, err := st.QueryRequests(ctx, leave.RequestFilter{
		CompanyID: "acme",
		From:      day(2026, time.March, 17),
		To:        day(2026, time.March, 20),
	})
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, "req-2", window[0].ID)

	top, err := st.QueryRequests(ctx, leave.RequestFilter{CompanyID: "acme", Limit: 1})
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "req-3", top[0].ID)
}

func TestSQLite_CountRequestsByStatus(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	ts := now()
	require.NoError(t, st.SaveRequest(ctx, testRequest("req-1", leave.StatusApproved, day(2026, time.March, 2), day(2026, time.March, 6), ts)))
	require.NoError(t, st.SaveRequest(ctx, testRequest("req-2", leave.StatusPending, day(2026, time.March, 16), day(2026, time.March, 17), ts)))
	require.NoError(t, st.SaveRequest(ctx, testRequest("req-3", leave.StatusPending, day(2026, time.April, 6), day(2026, time.April, 7), ts)))

	counts, err := st.CountRequestsByStatus(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, 1, counts[leave.StatusApproved])
	assert.Equal(t, 2, counts[leave.StatusPending])
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestSQLite_WithTxRollsBackOnError(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := st.WithTx(ctx, func(s leave.Store) error {
		if err := s.SaveLeaveType(ctx, testType("lt-1", "annual")); err != nil {
			return err
		}
		if err := s.SaveBalance(ctx, testBalance("bal-1", "emp-1", "lt-1", 2026)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	lt, err := st.GetLeaveType(ctx, "lt-1")
	require.NoError(t, err)
	assert.Nil(t, lt)

	b, err := st.GetBalance(ctx, "emp-1", "lt-1", 2026)
	require.NoError(t, err)
	assert.Nil(t, b)
}

func TestSQLite_WithTxReadsOwnWrites(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	err := st.WithTx(ctx, func(s leave.Store) error {
		if err := s.SaveLeaveType(ctx, testType("lt-1", "annual")); err != nil {
			return err
		}
		found, err := s.FindActiveTypeByCode(ctx, "acme", "annual")
		if err != nil {
			return err
		}
		if found == nil {
			return errors.New("write not visible inside its own transaction")
		}
		return nil
	})
	require.NoError(t, err)

	found, err := st.FindActiveTypeByCode(ctx, "acme", "annual")
	require.NoError(t, err)
	assert.NotNil(t, found)
}

// =============================================================================
// EMPLOYEES, HOLIDAYS, AUDIT
// =============================================================================

func TestSQLite_EmployeeRoundTripAndListing(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	for _, e := range []*leave.Employee{
		{ID: "emp-1", CompanyID: "acme", Name: "Pieter Botha", Email: "pieter@acme.example", CreatedAt: now()},
		{ID: "emp-2", CompanyID: "acme", Name: "Ayanda Dlamini", CreatedAt: now()},
		{ID: "emp-3", CompanyID: "globex", Name: "Hank Scorpio", CreatedAt: now()},
	} {
		require.NoError(t, st.SaveEmployee(ctx, e))
	}

	got, err := st.GetEmployee(ctx, "emp-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "pieter@acme.example", got.Email)

	missing, err := st.GetEmployee(ctx, "emp-ghost")
	require.NoError(t, err)
	assert.Nil(t, missing)

	list, err := st.ListEmployees(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Ayanda Dlamini", list[0].Name)

	// Saving the same ID again updates in place.
	require.NoError(t, st.SaveEmployee(ctx, &leave.Employee{
		ID: "emp-2", CompanyID: "acme", Name: "Ayanda Dlamini-Khumalo", CreatedAt: now(),
	}))
	got, err = st.GetEmployee(ctx, "emp-2")
	require.NoError(t, err)
	assert.Equal(t, "Ayanda Dlamini-Khumalo", got.Name)
}

func TestSQLite_HolidaysUpsertAndYearScope(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	freedom := day(2026, time.April, 27)
	require.NoError(t, st.SaveHoliday(ctx, &leave.Holiday{ID: "hol-1", CompanyID: "acme", Date: freedom, Name: "Freedom Day"}))
	require.NoError(t, st.SaveHoliday(ctx, &leave.Holiday{ID: "hol-2", CompanyID: "acme", Date: freedom, Name: "Freedom Day (observed)"}))
	require.NoError(t, st.SaveHoliday(ctx, &leave.Holiday{ID: "hol-3", CompanyID: "acme", Date: day(2025, time.December, 25), Name: "Christmas Day"}))

	y2026, err := st.ListHolidays(ctx, "acme", 2026)
	require.NoError(t, err)
	require.Len(t, y2026, 1)
	assert.Equal(t, "Freedom Day (observed)", y2026[0].Name)
	assert.True(t, y2026[0].Date.Equal(freedom))

	all, err := st.ListHolidays(ctx, "acme", 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	hit, err := st.IsHoliday(ctx, "acme", freedom)
	require.NoError(t, err)
	assert.True(t, hit)

	miss, err := st.IsHoliday(ctx, "acme", day(2026, time.April, 28))
	require.NoError(t, err)
	assert.False(t, miss)
}

func TestSQLite_AuditTrailFiltersNewestFirst(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	base := now()
	entries := []leave.AuditEntry{
		{ID: "a-1", At: base.Add(-2 * time.Hour), ActorID: "hr-1", EmployeeID: "emp-1", LeaveTypeID: "lt-1", CycleYear: 2025, Action: leave.AuditBalanceInitialized, Delta: leave.Days(15), Note: "seeded annual"},
		{ID: "a-2", At: base.Add(-time.Hour), ActorID: "mgr-1", EmployeeID: "emp-1", LeaveTypeID: "lt-1", CycleYear: 2025, Action: leave.AuditBalanceDeducted, Delta: leave.Days(-5)},
		{ID: "a-3", At: base, ActorID: "mgr-1", EmployeeID: "emp-2", LeaveTypeID: "lt-1", CycleYear: 2026, Action: leave.AuditBalanceDeducted, Delta: leave.Days(-1)},
	}
	for _, e := range entries {
		require.NoError(t, st.AppendAudit(ctx, e))
	}

	all, err := st.ListAudit(ctx, leave.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a-3", all[0].ID)
	assert.Equal(t, "a-1", all[2].ID)

	deducted, err := st.ListAudit(ctx, leave.AuditFilter{EmployeeID: "emp-1", Action: leave.AuditBalanceDeducted})
	require.NoError(t, err)
	require.Len(t, deducted, 1)
	assert.Equal(t, "a-2", deducted[0].ID)
	assert.Equal(t, "-5", deducted[0].Delta.String())

	y2026, err := st.ListAudit(ctx, leave.AuditFilter{CycleYear: 2026})
	require.NoError(t, err)
	require.Len(t, y2026, 1)
	assert.Equal(t, "a-3", y2026[0].ID)

	top, err := st.ListAudit(ctx, leave.AuditFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "a-3", top[0].ID)
}
