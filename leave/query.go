/*
query.go - Read-only reporting facade

PURPOSE:
  The views HR screens are built from: balances per employee, filtered
  request lists, who is out today, per-company status counts, and the
  audit trail. Strictly read-only; nothing in here mutates.

DISPLAY NAMES:
  EmployeeName and LeaveTypeName are projected at query time from the
  directory and the catalog. They are never persisted on requests or
  balances, so a renamed employee shows up correctly everywhere without a
  backfill.
*/
package leave

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Queries serves read models over the store. All methods are read-only.
type Queries struct {
	store  Store
	dir    Directory
	logger *zap.Logger
}

// NewQueries wires the facade. A nil dir falls back to the store's own
// employee projection.
func NewQueries(store Store, dir Directory, logger ...*zap.Logger) *Queries {
	if dir == nil {
		dir = store
	}
	l := zap.L().Named("leave.query")
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0]
	}
	return &Queries{store: store, dir: dir, logger: l}
}

// BalanceView is a balance row plus the display names screens want.
type BalanceView struct {
	LeaveBalance
	EmployeeName  string
	LeaveTypeCode string
	LeaveTypeName string
}

// RequestView is a request plus display names.
type RequestView struct {
	LeaveRequest
	EmployeeName  string
	LeaveTypeName string
}

// StatusSummary is the per-company request count breakdown.
type StatusSummary struct {
	CompanyID string
	Counts    map[RequestStatus]int
	Total     int
}

// EmployeeBalances returns all of an employee's balance rows for a cycle
// year, enriched with names.
func (q *Queries) EmployeeBalances(ctx context.Context, employeeID string, cycleYear int) ([]BalanceView, error) {
	rows, err := q.store.ListBalances(ctx, employeeID, cycleYear)
	if err != nil {
		return nil, err
	}

	name := q.employeeName(ctx, employeeID)
	views := make([]BalanceView, 0, len(rows))
	typeCache := map[string]*LeaveType{}
	for _, b := range rows {
		lt := q.leaveType(ctx, typeCache, b.LeaveTypeID)
		v := BalanceView{LeaveBalance: *b, EmployeeName: name}
		if lt != nil {
			v.LeaveTypeCode = lt.Code
			v.LeaveTypeName = lt.Name
		}
		views = append(views, v)
	}
	return views, nil
}

// CompanyRequests lists a company's requests, newest first, narrowed by the
// filter's optional status/type/employee/date-overlap clauses.
func (q *Queries) CompanyRequests(ctx context.Context, f RequestFilter) ([]RequestView, error) {
	if f.CompanyID == "" {
		return nil, &ValidationError{Field: "companyId", Reason: "required"}
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, &ValidationError{Field: "status", Reason: "unknown status"}
	}

	reqs, err := q.store.QueryRequests(ctx, f)
	if err != nil {
		return nil, err
	}
	return q.enrich(ctx, reqs), nil
}

// OnLeave returns the approved requests spanning the given date: who is out.
func (q *Queries) OnLeave(ctx context.Context, companyID string, date time.Time) ([]RequestView, error) {
	if companyID == "" {
		return nil, &ValidationError{Field: "companyId", Reason: "required"}
	}

	day := Day(date)
	reqs, err := q.store.QueryRequests(ctx, RequestFilter{
		CompanyID: companyID,
		Status:    StatusApproved,
		From:      day,
		To:        day,
	})
	if err != nil {
		return nil, err
	}
	return q.enrich(ctx, reqs), nil
}

// Summary counts a company's requests by status. The four statuses dashboards
// always chart are present even when zero.
func (q *Queries) Summary(ctx context.Context, companyID string) (*StatusSummary, error) {
	if companyID == "" {
		return nil, &ValidationError{Field: "companyId", Reason: "required"}
	}

	counts, err := q.store.CountRequestsByStatus(ctx, companyID)
	if err != nil {
		return nil, err
	}
	for _, st := range []RequestStatus{StatusPending, StatusApproved, StatusRejected, StatusTaken} {
		if _, ok := counts[st]; !ok {
			counts[st] = 0
		}
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	return &StatusSummary{CompanyID: companyID, Counts: counts, Total: total}, nil
}

// AuditTrail lists balance mutations, newest first.
func (q *Queries) AuditTrail(ctx context.Context, f AuditFilter) ([]AuditEntry, error) {
	return q.store.ListAudit(ctx, f)
}

// =============================================================================
// ENRICHMENT
// =============================================================================

func (q *Queries) enrich(ctx context.Context, reqs []*LeaveRequest) []RequestView {
	views := make([]RequestView, 0, len(reqs))
	typeCache := map[string]*LeaveType{}
	nameCache := map[string]string{}
	for _, r := range reqs {
		v := RequestView{LeaveRequest: *r}
		if lt := q.leaveType(ctx, typeCache, r.LeaveTypeID); lt != nil {
			v.LeaveTypeName = lt.Name
		}
		name, ok := nameCache[r.EmployeeID]
		if !ok {
			name = q.employeeName(ctx, r.EmployeeID)
			nameCache[r.EmployeeID] = name
		}
		v.EmployeeName = name
		views = append(views, v)
	}
	return views
}

// employeeName tolerates directory gaps: a missing employee renders as an
// empty name, never an error on a read path.
func (q *Queries) employeeName(ctx context.Context, employeeID string) string {
	emp, err := q.dir.GetEmployee(ctx, employeeID)
	if err != nil {
		q.logger.Warn("directory lookup failed", zap.String("employee_id", employeeID), zap.Error(err))
		return ""
	}
	if emp == nil {
		return ""
	}
	return emp.Name
}

func (q *Queries) leaveType(ctx context.Context, cache map[string]*LeaveType, id string) *LeaveType {
	if lt, ok := cache[id]; ok {
		return lt
	}
	lt, err := q.store.GetLeaveType(ctx, id)
	if err != nil {
		q.logger.Warn("catalog lookup failed", zap.String("leave_type_id", id), zap.Error(err))
		lt = nil
	}
	cache[id] = lt
	return lt
}
