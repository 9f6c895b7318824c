/*
memory.go - In-memory store

PURPOSE:
  The Store/TxStore implementation tests and development run on. Same
  contract as store/sqlite, nothing durable.

TRANSACTIONS:
  WithTx holds the write lock for the whole transaction and takes a
  snapshot first; if fn fails the snapshot is restored. The transactional
  view hands fn the unlocked internals, so everything fn does stays under
  the one lock without deadlocking.

COPIES:
  Reads return clones and saves store clones. Callers can never reach the
  store's own records, which is what makes the snapshot rollback sound.
*/
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/veldhr/leave-engine/leave"
)

type balanceKey struct {
	EmployeeID  string
	LeaveTypeID string
	CycleYear   int
}

type holidayKey struct {
	CompanyID string
	Date      string // yyyy-mm-dd
}

// Memory is an in-memory TxStore.
type Memory struct {
	mu        sync.RWMutex
	types     map[string]*leave.LeaveType
	balances  map[balanceKey]*leave.LeaveBalance
	requests  map[string]*leave.LeaveRequest
	employees map[string]*leave.Employee
	holidays  map[holidayKey]*leave.Holiday
	audit     []leave.AuditEntry
}

func NewMemory() *Memory {
	return &Memory{
		types:     make(map[string]*leave.LeaveType),
		balances:  make(map[balanceKey]*leave.LeaveBalance),
		requests:  make(map[string]*leave.LeaveRequest),
		employees: make(map[string]*leave.Employee),
		holidays:  make(map[holidayKey]*leave.Holiday),
	}
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

type memorySnapshot struct {
	types     map[string]*leave.LeaveType
	balances  map[balanceKey]*leave.LeaveBalance
	requests  map[string]*leave.LeaveRequest
	employees map[string]*leave.Employee
	holidays  map[holidayKey]*leave.Holiday
	audit     []leave.AuditEntry
}

// WithTx runs fn against a transactional view under the store lock, rolling
// back to a snapshot when fn fails.
func (m *Memory) WithTx(_ context.Context, fn func(leave.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(&txView{m: m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

func (m *Memory) snapshot() memorySnapshot {
	s := memorySnapshot{
		types:     make(map[string]*leave.LeaveType, len(m.types)),
		balances:  make(map[balanceKey]*leave.LeaveBalance, len(m.balances)),
		requests:  make(map[string]*leave.LeaveRequest, len(m.requests)),
		employees: make(map[string]*leave.Employee, len(m.employees)),
		holidays:  make(map[holidayKey]*leave.Holiday, len(m.holidays)),
		audit:     append([]leave.AuditEntry(nil), m.audit...),
	}
	for k, v := range m.types {
		s.types[k] = v.Clone()
	}
	for k, v := range m.balances {
		s.balances[k] = v.Clone()
	}
	for k, v := range m.requests {
		s.requests[k] = v.Clone()
	}
	for k, v := range m.employees {
		e := *v
		s.employees[k] = &e
	}
	for k, v := range m.holidays {
		h := *v
		s.holidays[k] = &h
	}
	return s
}

func (m *Memory) restore(s memorySnapshot) {
	m.types = s.types
	m.balances = s.balances
	m.requests = s.requests
	m.employees = s.employees
	m.holidays = s.holidays
	m.audit = s.audit
}

// txView exposes the locked internals to a WithTx body.
type txView struct {
	m *Memory
}

// =============================================================================
// LEAVE TYPES
// =============================================================================

func (m *Memory) GetLeaveType(_ context.Context, id string) (*leave.LeaveType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getTypeLocked(id)
}

func (v *txView) GetLeaveType(_ context.Context, id string) (*leave.LeaveType, error) {
	return v.m.getTypeLocked(id)
}

func (m *Memory) getTypeLocked(id string) (*leave.LeaveType, error) {
	return m.types[id].Clone(), nil
}

func (m *Memory) FindActiveTypeByCode(_ context.Context, companyID, code string) (*leave.LeaveType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findActiveTypeLocked(companyID, code)
}

func (v *txView) FindActiveTypeByCode(_ context.Context, companyID, code string) (*leave.LeaveType, error) {
	return v.m.findActiveTypeLocked(companyID, code)
}

func (m *Memory) findActiveTypeLocked(companyID, code string) (*leave.LeaveType, error) {
	for _, lt := range m.types {
		if lt.CompanyID == companyID && lt.IsActive && lt.Code == code {
			return lt.Clone(), nil
		}
	}
	return nil, nil
}

func (m *Memory) ListLeaveTypes(_ context.Context, companyID string, includeInactive bool) ([]*leave.LeaveType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listTypesLocked(companyID, includeInactive)
}

func (v *txView) ListLeaveTypes(_ context.Context, companyID string, includeInactive bool) ([]*leave.LeaveType, error) {
	return v.m.listTypesLocked(companyID, includeInactive)
}

func (m *Memory) listTypesLocked(companyID string, includeInactive bool) ([]*leave.LeaveType, error) {
	var out []*leave.LeaveType
	for _, lt := range m.types {
		if lt.CompanyID != companyID {
			continue
		}
		if !includeInactive && !lt.IsActive {
			continue
		}
		out = append(out, lt.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (m *Memory) SaveLeaveType(_ context.Context, lt *leave.LeaveType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveTypeLocked(lt)
}

func (v *txView) SaveLeaveType(_ context.Context, lt *leave.LeaveType) error {
	return v.m.saveTypeLocked(lt)
}

func (m *Memory) saveTypeLocked(lt *leave.LeaveType) error {
	stored := int64(-1)
	if cur := m.types[lt.ID]; cur != nil {
		stored = cur.Version
	}
	if err := bumpVersion(stored, &lt.Version); err != nil {
		return err
	}
	m.types[lt.ID] = lt.Clone()
	return nil
}

// =============================================================================
// BALANCES
// =============================================================================

func (m *Memory) GetBalance(_ context.Context, employeeID, leaveTypeID string, cycleYear int) (*leave.LeaveBalance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getBalanceLocked(employeeID, leaveTypeID, cycleYear)
}

func (v *txView) GetBalance(_ context.Context, employeeID, leaveTypeID string, cycleYear int) (*leave.LeaveBalance, error) {
	return v.m.getBalanceLocked(employeeID, leaveTypeID, cycleYear)
}

func (m *Memory) getBalanceLocked(employeeID, leaveTypeID string, cycleYear int) (*leave.LeaveBalance, error) {
	return m.balances[balanceKey{employeeID, leaveTypeID, cycleYear}].Clone(), nil
}

func (m *Memory) ListBalances(_ context.Context, employeeID string, cycleYear int) ([]*leave.LeaveBalance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listBalancesLocked(func(b *leave.LeaveBalance) bool {
		return b.EmployeeID == employeeID && b.CycleYear == cycleYear
	})
}

func (v *txView) ListBalances(_ context.Context, employeeID string, cycleYear int) ([]*leave.LeaveBalance, error) {
	return v.m.listBalancesLocked(func(b *leave.LeaveBalance) bool {
		return b.EmployeeID == employeeID && b.CycleYear == cycleYear
	})
}

func (m *Memory) ListCompanyBalances(_ context.Context, companyID string, cycleYear int) ([]*leave.LeaveBalance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listBalancesLocked(func(b *leave.LeaveBalance) bool {
		return b.CompanyID == companyID && b.CycleYear == cycleYear
	})
}

func (v *txView) ListCompanyBalances(_ context.Context, companyID string, cycleYear int) ([]*leave.LeaveBalance, error) {
	return v.m.listBalancesLocked(func(b *leave.LeaveBalance) bool {
		return b.CompanyID == companyID && b.CycleYear == cycleYear
	})
}

func (m *Memory) listBalancesLocked(keep func(*leave.LeaveBalance) bool) ([]*leave.LeaveBalance, error) {
	var out []*leave.LeaveBalance
	for _, b := range m.balances {
		if keep(b) {
			out = append(out, b.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EmployeeID != out[j].EmployeeID {
			return out[i].EmployeeID < out[j].EmployeeID
		}
		return out[i].LeaveTypeID < out[j].LeaveTypeID
	})
	return out, nil
}

func (m *Memory) SaveBalance(_ context.Context, b *leave.LeaveBalance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveBalanceLocked(b)
}

func (v *txView) SaveBalance(_ context.Context, b *leave.LeaveBalance) error {
	return v.m.saveBalanceLocked(b)
}

func (m *Memory) saveBalanceLocked(b *leave.LeaveBalance) error {
	k := balanceKey{b.EmployeeID, b.LeaveTypeID, b.CycleYear}
	stored := int64(-1)
	if cur := m.balances[k]; cur != nil {
		stored = cur.Version
	}
	if err := bumpVersion(stored, &b.Version); err != nil {
		return err
	}
	m.balances[k] = b.Clone()
	return nil
}

// =============================================================================
// REQUESTS
// =============================================================================

func (m *Memory) GetRequest(_ context.Context, id string) (*leave.LeaveRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getRequestLocked(id)
}

func (v *txView) GetRequest(_ context.Context, id string) (*leave.LeaveRequest, error) {
	return v.m.getRequestLocked(id)
}

func (m *Memory) getRequestLocked(id string) (*leave.LeaveRequest, error) {
	return m.requests[id].Clone(), nil
}

func (m *Memory) QueryRequests(_ context.Context, f leave.RequestFilter) ([]*leave.LeaveRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.queryRequestsLocked(f)
}

func (v *txView) QueryRequests(_ context.Context, f leave.RequestFilter) ([]*leave.LeaveRequest, error) {
	return v.m.queryRequestsLocked(f)
}

func (m *Memory) queryRequestsLocked(f leave.RequestFilter) ([]*leave.LeaveRequest, error) {
	var out []*leave.LeaveRequest
	for _, r := range m.requests {
		if !matchesFilter(r, f) {
			continue
		}
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func matchesFilter(r *leave.LeaveRequest, f leave.RequestFilter) bool {
	if r.CompanyID != f.CompanyID {
		return false
	}
	if f.EmployeeID != "" && r.EmployeeID != f.EmployeeID {
		return false
	}
	if f.LeaveTypeID != "" && r.LeaveTypeID != f.LeaveTypeID {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	// From/To select requests whose span overlaps the window.
	if !f.From.IsZero() && r.EndDate.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && r.StartDate.After(f.To) {
		return false
	}
	return true
}

func (m *Memory) CountRequestsByStatus(_ context.Context, companyID string) (map[leave.RequestStatus]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.countByStatusLocked(companyID)
}

func (v *txView) CountRequestsByStatus(_ context.Context, companyID string) (map[leave.RequestStatus]int, error) {
	return v.m.countByStatusLocked(companyID)
}

func (m *Memory) countByStatusLocked(companyID string) (map[leave.RequestStatus]int, error) {
	counts := make(map[leave.RequestStatus]int)
	for _, r := range m.requests {
		if r.CompanyID == companyID {
			counts[r.Status]++
		}
	}
	return counts, nil
}

func (m *Memory) SaveRequest(_ context.Context, r *leave.LeaveRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveRequestLocked(r)
}

func (v *txView) SaveRequest(_ context.Context, r *leave.LeaveRequest) error {
	return v.m.saveRequestLocked(r)
}

func (m *Memory) saveRequestLocked(r *leave.LeaveRequest) error {
	stored := int64(-1)
	if cur := m.requests[r.ID]; cur != nil {
		stored = cur.Version
	}
	if err := bumpVersion(stored, &r.Version); err != nil {
		return err
	}
	m.requests[r.ID] = r.Clone()
	return nil
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func (m *Memory) GetEmployee(_ context.Context, id string) (*leave.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getEmployeeLocked(id)
}

func (v *txView) GetEmployee(_ context.Context, id string) (*leave.Employee, error) {
	return v.m.getEmployeeLocked(id)
}

func (m *Memory) getEmployeeLocked(id string) (*leave.Employee, error) {
	e, ok := m.employees[id]
	if !ok {
		return nil, nil
	}
	c := *e
	return &c, nil
}

func (m *Memory) ListEmployees(_ context.Context, companyID string) ([]*leave.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listEmployeesLocked(companyID)
}

func (v *txView) ListEmployees(_ context.Context, companyID string) ([]*leave.Employee, error) {
	return v.m.listEmployeesLocked(companyID)
}

func (m *Memory) listEmployeesLocked(companyID string) ([]*leave.Employee, error) {
	var out []*leave.Employee
	for _, e := range m.employees {
		if e.CompanyID == companyID {
			c := *e
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) SaveEmployee(_ context.Context, e *leave.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveEmployeeLocked(e)
}

func (v *txView) SaveEmployee(_ context.Context, e *leave.Employee) error {
	return v.m.saveEmployeeLocked(e)
}

func (m *Memory) saveEmployeeLocked(e *leave.Employee) error {
	c := *e
	m.employees[e.ID] = &c
	return nil
}

// =============================================================================
// HOLIDAYS
// =============================================================================

func (m *Memory) SaveHoliday(_ context.Context, h *leave.Holiday) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveHolidayLocked(h)
}

func (v *txView) SaveHoliday(_ context.Context, h *leave.Holiday) error {
	return v.m.saveHolidayLocked(h)
}

func (m *Memory) saveHolidayLocked(h *leave.Holiday) error {
	c := *h
	c.Date = leave.Day(h.Date)
	m.holidays[holidayKey{h.CompanyID, c.Date.Format(time.DateOnly)}] = &c
	return nil
}

func (m *Memory) ListHolidays(_ context.Context, companyID string, year int) ([]*leave.Holiday, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listHolidaysLocked(companyID, year)
}

func (v *txView) ListHolidays(_ context.Context, companyID string, year int) ([]*leave.Holiday, error) {
	return v.m.listHolidaysLocked(companyID, year)
}

func (m *Memory) listHolidaysLocked(companyID string, year int) ([]*leave.Holiday, error) {
	var out []*leave.Holiday
	for _, h := range m.holidays {
		if h.CompanyID != companyID {
			continue
		}
		if year != 0 && h.Date.Year() != year {
			continue
		}
		c := *h
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// IsHoliday makes Memory usable as a leave.HolidayCalendar.
func (m *Memory) IsHoliday(_ context.Context, companyID string, day time.Time) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.holidays[holidayKey{companyID, leave.Day(day).Format(time.DateOnly)}]
	return ok, nil
}

// =============================================================================
// AUDIT
// =============================================================================

func (m *Memory) AppendAudit(_ context.Context, e leave.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendAuditLocked(e)
}

func (v *txView) AppendAudit(_ context.Context, e leave.AuditEntry) error {
	return v.m.appendAuditLocked(e)
}

func (m *Memory) appendAuditLocked(e leave.AuditEntry) error {
	m.audit = append(m.audit, e)
	return nil
}

func (m *Memory) ListAudit(_ context.Context, f leave.AuditFilter) ([]leave.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listAuditLocked(f)
}

func (v *txView) ListAudit(_ context.Context, f leave.AuditFilter) ([]leave.AuditEntry, error) {
	return v.m.listAuditLocked(f)
}

func (m *Memory) listAuditLocked(f leave.AuditFilter) ([]leave.AuditEntry, error) {
	var out []leave.AuditEntry
	for i := len(m.audit) - 1; i >= 0; i-- {
		e := m.audit[i]
		if f.EmployeeID != "" && e.EmployeeID != f.EmployeeID {
			continue
		}
		if f.LeaveTypeID != "" && e.LeaveTypeID != f.LeaveTypeID {
			continue
		}
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		if f.CycleYear != 0 && e.CycleYear != f.CycleYear {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

// =============================================================================
// VERSIONING
// =============================================================================

// bumpVersion enforces optimistic concurrency: inserts need Version 0,
// updates need the stored version, and a successful save bumps the caller's
// copy. stored is -1 when no record exists.
func bumpVersion(stored int64, v *int64) error {
	switch {
	case stored < 0:
		if *v != 0 {
			return leave.ErrConcurrentModification
		}
		*v = 1
	case stored != *v:
		return leave.ErrConcurrentModification
	default:
		*v++
	}
	return nil
}
