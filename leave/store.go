/*
store.go - Persistence contract

PURPOSE:
  Defines what the engine needs from storage without caring what provides
  it. Two implementations ship with the repo:

    leave/store (memory.go):  in-memory, for tests and development
    store/sqlite:             production store, SQLite with WAL

WRITE SEMANTICS:
  Get* methods return (nil, nil) when the record does not exist; wrapping a
  miss into NotFoundError is the engine's job, not the store's.

  Save* methods are versioned upserts: Version 0 inserts, anything else
  updates only if the stored version still matches, bumping it by one.
  A mismatch (or an insert racing an identical insert) fails with
  ErrConcurrentModification.

TRANSACTIONS:
  TxStore.WithTx runs fn against a transactional view of the store. If fn
  returns an error every write inside it is rolled back. State transitions
  and ledger movements always run inside WithTx so a request and its
  balance can never drift apart.
*/
package leave

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Store is the document-store surface the engine runs on.
type Store interface {
	// Leave type catalog
	GetLeaveType(ctx context.Context, id string) (*LeaveType, error)
	FindActiveTypeByCode(ctx context.Context, companyID, code string) (*LeaveType, error)
	ListLeaveTypes(ctx context.Context, companyID string, includeInactive bool) ([]*LeaveType, error)
	SaveLeaveType(ctx context.Context, lt *LeaveType) error

	// Balance rows
	GetBalance(ctx context.Context, employeeID, leaveTypeID string, cycleYear int) (*LeaveBalance, error)
	ListBalances(ctx context.Context, employeeID string, cycleYear int) ([]*LeaveBalance, error)
	ListCompanyBalances(ctx context.Context, companyID string, cycleYear int) ([]*LeaveBalance, error)
	SaveBalance(ctx context.Context, b *LeaveBalance) error

	// Requests
	GetRequest(ctx context.Context, id string) (*LeaveRequest, error)
	QueryRequests(ctx context.Context, f RequestFilter) ([]*LeaveRequest, error)
	CountRequestsByStatus(ctx context.Context, companyID string) (map[RequestStatus]int, error)
	SaveRequest(ctx context.Context, r *LeaveRequest) error

	// Employee directory projection
	GetEmployee(ctx context.Context, id string) (*Employee, error)
	ListEmployees(ctx context.Context, companyID string) ([]*Employee, error)
	SaveEmployee(ctx context.Context, e *Employee) error

	// Holiday registry (data for the opt-in HolidayCalendar)
	SaveHoliday(ctx context.Context, h *Holiday) error
	ListHolidays(ctx context.Context, companyID string, year int) ([]*Holiday, error)

	// Audit trail for balance mutations
	AppendAudit(ctx context.Context, e AuditEntry) error
	ListAudit(ctx context.Context, f AuditFilter) ([]AuditEntry, error)
}

// TxStore is a Store that can run a function transactionally.
type TxStore interface {
	Store

	// WithTx executes fn against a transactional view. Returning an error
	// rolls back everything fn wrote.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// Directory is the slice of the employee directory the query facade needs.
// Both bundled stores satisfy it through their employee projection.
type Directory interface {
	GetEmployee(ctx context.Context, id string) (*Employee, error)
}

// =============================================================================
// FILTERS
// =============================================================================

// RequestFilter narrows QueryRequests. CompanyID is mandatory, everything
// else optional. From/To select requests whose date span OVERLAPS the window
// (the admin-screen reading), zero values mean unbounded.
type RequestFilter struct {
	CompanyID   string
	EmployeeID  string
	LeaveTypeID string
	Status      RequestStatus
	From        time.Time
	To          time.Time
	Limit       int // 0 = no limit
}

// AuditFilter narrows ListAudit. Zero values mean "any".
type AuditFilter struct {
	EmployeeID  string
	LeaveTypeID string
	Action      AuditAction
	CycleYear   int
	Limit       int
}

// =============================================================================
// AUDIT TRAIL
// =============================================================================

type AuditAction string

const (
	AuditBalanceInitialized AuditAction = "balance_initialized"
	AuditBalanceDeducted    AuditAction = "balance_deducted"
	AuditBalanceRestored    AuditAction = "balance_restored"
	AuditBalanceAdjusted    AuditAction = "balance_adjusted"
	AuditYearRolledOver     AuditAction = "year_rolled_over"
)

// AuditEntry records one balance mutation: who moved how many days through
// which bucket, and why. Written in the same transaction as the mutation.
type AuditEntry struct {
	ID          string
	At          time.Time
	ActorID     string
	Action      AuditAction
	EmployeeID  string
	LeaveTypeID string
	CycleYear   int
	Delta       decimal.Decimal
	Note        string
}
