/*
Package sqlite provides the SQLite-backed implementation of the storage
contract.

PURPOSE:
  Implements leave.Store and leave.TxStore on SQLite. In production the same
  patterns apply to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  leave_types:      per-company catalog, soft deactivation only
  leave_balances:   bucketed rows, one per employee x type x cycle year
  leave_requests:   workflow state, history in approval_records
  approval_records: append-only request history
  employees:        directory projection for display names
  holidays:         company holiday registry
  audit_log:        append-only record of balance mutations

VERSIONING:
  leave_types, leave_balances and leave_requests carry a version column.
  Saves with Version 0 insert the row at version 1; anything else updates
  WHERE version matches and bumps it. A lost race surfaces as
  leave.ErrConcurrentModification, which the workflow retries.

CODE UNIQUENESS:
  idx_leave_types_active_code is partial (WHERE is_active = 1): a code is
  unique among a company's ACTIVE types, deactivating a type frees it.

CONCURRENCY:
  A sync.RWMutex serializes writers in-process on top of SQLite's single
  writer. Helpers take a dbtx and never lock themselves, so the
  transactional view can reuse them under the lock WithTx already holds.

WAL MODE:
  The database is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/leave.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  workflow := leave.NewWorkflow(store, nil)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper migration
  tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - leave/store.go: the contract this implements
  - leave/store/memory.go: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/veldhr/leave-engine/leave"
)

// Store implements leave.TxStore on SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// dbtx is satisfied by both *sql.DB and *sql.Tx so every helper can run
// inside or outside a transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a SQLite store at the given path. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Leave type catalog
	CREATE TABLE IF NOT EXISTS leave_types (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		code TEXT NOT NULL,
		name TEXT NOT NULL,
		default_days_per_year TEXT NOT NULL,
		is_paid BOOLEAN NOT NULL DEFAULT TRUE,
		accrual_method TEXT NOT NULL,
		max_carry_over TEXT NOT NULL,
		requires_approval BOOLEAN NOT NULL DEFAULT TRUE,
		requires_attachment BOOLEAN NOT NULL DEFAULT FALSE,
		attachment_after_days INTEGER,
		min_consecutive_days INTEGER,
		max_consecutive_days INTEGER,
		sort_order INTEGER NOT NULL DEFAULT 0,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		version INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_leave_types_company
		ON leave_types(company_id);

	-- Code uniqueness among ACTIVE types only: deactivating frees the code
	CREATE UNIQUE INDEX IF NOT EXISTS idx_leave_types_active_code
		ON leave_types(company_id, code) WHERE is_active = 1;

	-- Balance rows, one per employee x leave type x cycle year
	CREATE TABLE IF NOT EXISTS leave_balances (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		company_id TEXT NOT NULL,
		leave_type_id TEXT NOT NULL,
		cycle_year INTEGER NOT NULL,
		opening_balance TEXT NOT NULL,
		accrued TEXT NOT NULL,
		taken TEXT NOT NULL,
		pending TEXT NOT NULL,
		adjusted TEXT NOT NULL,
		forfeited TEXT NOT NULL,
		carried_forward TEXT NOT NULL,
		current_balance TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		version INTEGER NOT NULL,
		UNIQUE(employee_id, leave_type_id, cycle_year)
	);

	CREATE INDEX IF NOT EXISTS idx_balances_employee_year
		ON leave_balances(employee_id, cycle_year);
	CREATE INDEX IF NOT EXISTS idx_balances_company_year
		ON leave_balances(company_id, cycle_year);

	-- Requests
	CREATE TABLE IF NOT EXISTS leave_requests (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		company_id TEXT NOT NULL,
		leave_type_id TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		is_half_day BOOLEAN NOT NULL DEFAULT FALSE,
		half_day_type TEXT,
		working_days TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		emergency_contact TEXT NOT NULL DEFAULT '',
		attachment_ref TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		submitted_date TEXT,
		cancelled_by TEXT NOT NULL DEFAULT '',
		cancellation_reason TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		version INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_requests_company_status
		ON leave_requests(company_id, status);
	CREATE INDEX IF NOT EXISTS idx_requests_employee
		ON leave_requests(employee_id);

	-- Overlap queries (on-leave-today, date-window filters)
	CREATE INDEX IF NOT EXISTS idx_requests_company_dates
		ON leave_requests(company_id, start_date, end_date);

	-- Append-only request history
	CREATE TABLE IF NOT EXISTS approval_records (
		request_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		approver_id TEXT NOT NULL,
		approver_name TEXT NOT NULL,
		action TEXT NOT NULL,
		comments TEXT NOT NULL DEFAULT '',
		action_date TEXT NOT NULL,
		PRIMARY KEY (request_id, seq)
	);

	-- Employee directory projection
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		name TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_employees_company
		ON employees(company_id);

	-- Company holidays
	CREATE TABLE IF NOT EXISTS holidays (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		day TEXT NOT NULL,
		name TEXT NOT NULL,
		UNIQUE(company_id, day)
	);

	-- Append-only audit of balance mutations
	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		at TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		action TEXT NOT NULL,
		employee_id TEXT NOT NULL,
		leave_type_id TEXT NOT NULL,
		cycle_year INTEGER NOT NULL,
		delta TEXT NOT NULL,
		note TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_audit_employee
		ON audit_log(employee_id, at DESC);
	CREATE INDEX IF NOT EXISTS idx_audit_action
		ON audit_log(action);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONS (leave.TxStore)
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(leave.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{parent: s, tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		if isBusyError(err) {
			return leave.ErrConcurrentModification
		}
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// txStore runs every Store method against the open transaction. It never
// touches the parent mutex; WithTx already holds it.
type txStore struct {
	parent *Store
	tx     *sql.Tx
}

func (ts *txStore) GetLeaveType(ctx context.Context, id string) (*leave.LeaveType, error) {
	return ts.parent.getLeaveType(ctx, ts.tx, id)
}

func (ts *txStore) FindActiveTypeByCode(ctx context.Context, companyID, code string) (*leave.LeaveType, error) {
	return ts.parent.findActiveTypeByCode(ctx, ts.tx, companyID, code)
}

func (ts *txStore) ListLeaveTypes(ctx context.Context, companyID string, includeInactive bool) ([]*leave.LeaveType, error) {
	return ts.parent.listLeaveTypes(ctx, ts.tx, companyID, includeInactive)
}

func (ts *txStore) SaveLeaveType(ctx context.Context, lt *leave.LeaveType) error {
	return ts.parent.saveLeaveType(ctx, ts.tx, lt)
}

func (ts *txStore) GetBalance(ctx context.Context, employeeID, leaveTypeID string, cycleYear int) (*leave.LeaveBalance, error) {
	return ts.parent.getBalance(ctx, ts.tx, employeeID, leaveTypeID, cycleYear)
}

func (ts *txStore) ListBalances(ctx context.Context, employeeID string, cycleYear int) ([]*leave.LeaveBalance, error) {
	return ts.parent.listBalances(ctx, ts.tx, "employee_id", employeeID, cycleYear)
}

func (ts *txStore) ListCompanyBalances(ctx context.Context, companyID string, cycleYear int) ([]*leave.LeaveBalance, error) {
	return ts.parent.listBalances(ctx, ts.tx, "company_id", companyID, cycleYear)
}

func (ts *txStore) SaveBalance(ctx context.Context, b *leave.LeaveBalance) error {
	return ts.parent.saveBalance(ctx, ts.tx, b)
}

func (ts *txStore) GetRequest(ctx context.Context, id string) (*leave.LeaveRequest, error) {
	return ts.parent.getRequest(ctx, ts.tx, id)
}

func (ts *txStore) QueryRequests(ctx context.Context, f leave.RequestFilter) ([]*leave.LeaveRequest, error) {
	return ts.parent.queryRequests(ctx, ts.tx, f)
}

func (ts *txStore) CountRequestsByStatus(ctx context.Context, companyID string) (map[leave.RequestStatus]int, error) {
	return ts.parent.countRequestsByStatus(ctx, ts.tx, companyID)
}

func (ts *txStore) SaveRequest(ctx context.Context, r *leave.LeaveRequest) error {
	return ts.parent.saveRequest(ctx, ts.tx, r)
}

func (ts *txStore) GetEmployee(ctx context.Context, id string) (*leave.Employee, error) {
	return ts.parent.getEmployee(ctx, ts.tx, id)
}

func (ts *txStore) ListEmployees(ctx context.Context, companyID string) ([]*leave.Employee, error) {
	return ts.parent.listEmployees(ctx, ts.tx, companyID)
}

func (ts *txStore) SaveEmployee(ctx context.Context, e *leave.Employee) error {
	return ts.parent.saveEmployee(ctx, ts.tx, e)
}

func (ts *txStore) SaveHoliday(ctx context.Context, h *leave.Holiday) error {
	return ts.parent.saveHoliday(ctx, ts.tx, h)
}

func (ts *txStore) ListHolidays(ctx context.Context, companyID string, year int) ([]*leave.Holiday, error) {
	return ts.parent.listHolidays(ctx, ts.tx, companyID, year)
}

func (ts *txStore) AppendAudit(ctx context.Context, e leave.AuditEntry) error {
	return ts.parent.appendAudit(ctx, ts.tx, e)
}

func (ts *txStore) ListAudit(ctx context.Context, f leave.AuditFilter) ([]leave.AuditEntry, error) {
	return ts.parent.listAudit(ctx, ts.tx, f)
}

// =============================================================================
// LEAVE TYPES
// =============================================================================

const leaveTypeColumns = `id, company_id, code, name, default_days_per_year, is_paid,
	accrual_method, max_carry_over, requires_approval, requires_attachment,
	attachment_after_days, min_consecutive_days, max_consecutive_days,
	sort_order, is_active, created_at, updated_at, version`

func (s *Store) GetLeaveType(ctx context.Context, id string) (*leave.LeaveType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLeaveType(ctx, s.db, id)
}

func (s *Store) getLeaveType(ctx context.Context, q dbtx, id string) (*leave.LeaveType, error) {
	row := q.QueryRowContext(ctx,
		"SELECT "+leaveTypeColumns+" FROM leave_types WHERE id = ?", id)
	return scanLeaveType(row)
}

func (s *Store) FindActiveTypeByCode(ctx context.Context, companyID, code string) (*leave.LeaveType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findActiveTypeByCode(ctx, s.db, companyID, code)
}

func (s *Store) findActiveTypeByCode(ctx context.Context, q dbtx, companyID, code string) (*leave.LeaveType, error) {
	row := q.QueryRowContext(ctx,
		"SELECT "+leaveTypeColumns+" FROM leave_types WHERE company_id = ? AND code = ? AND is_active = 1",
		companyID, code)
	return scanLeaveType(row)
}

func (s *Store) ListLeaveTypes(ctx context.Context, companyID string, includeInactive bool) ([]*leave.LeaveType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLeaveTypes(ctx, s.db, companyID, includeInactive)
}

func (s *Store) listLeaveTypes(ctx context.Context, q dbtx, companyID string, includeInactive bool) ([]*leave.LeaveType, error) {
	query := "SELECT " + leaveTypeColumns + " FROM leave_types WHERE company_id = ?"
	if !includeInactive {
		query += " AND is_active = 1"
	}
	query += " ORDER BY sort_order, name"

	rows, err := q.QueryContext(ctx, query, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query leave types: %w", err)
	}
	defer rows.Close()

	var out []*leave.LeaveType
	for rows.Next() {
		lt, err := scanLeaveType(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, lt)
	}
	return out, rows.Err()
}

func (s *Store) SaveLeaveType(ctx context.Context, lt *leave.LeaveType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLeaveType(ctx, s.db, lt)
}

func (s *Store) saveLeaveType(ctx context.Context, q dbtx, lt *leave.LeaveType) error {
	if lt.Version == 0 {
		_, err := q.ExecContext(ctx, `
			INSERT INTO leave_types (`+leaveTypeColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
			lt.ID, lt.CompanyID, lt.Code, lt.Name,
			lt.DefaultDaysPerYear.String(), lt.IsPaid,
			string(lt.AccrualMethod), lt.MaxCarryOver.String(),
			lt.RequiresApproval, lt.RequiresAttachment,
			nullInt(lt.AttachmentRequiredAfterDays),
			nullInt(lt.MinConsecutiveDays), nullInt(lt.MaxConsecutiveDays),
			lt.SortOrder, lt.IsActive,
			lt.CreatedAt.UTC().Format(time.RFC3339),
			lt.UpdatedAt.UTC().Format(time.RFC3339),
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				if strings.Contains(err.Error(), "leave_types.company_id") {
					return leave.ErrDuplicateCode
				}
				return leave.ErrConcurrentModification
			}
			return fmt.Errorf("failed to insert leave type: %w", err)
		}
		lt.Version = 1
		return nil
	}

	res, err := q.ExecContext(ctx, `
		UPDATE leave_types SET
			code = ?, name = ?, default_days_per_year = ?, is_paid = ?,
			accrual_method = ?, max_carry_over = ?, requires_approval = ?,
			requires_attachment = ?, attachment_after_days = ?,
			min_consecutive_days = ?, max_consecutive_days = ?,
			sort_order = ?, is_active = ?, updated_at = ?,
			version = version + 1
		WHERE id = ? AND version = ?`,
		lt.Code, lt.Name, lt.DefaultDaysPerYear.String(), lt.IsPaid,
		string(lt.AccrualMethod), lt.MaxCarryOver.String(), lt.RequiresApproval,
		lt.RequiresAttachment, nullInt(lt.AttachmentRequiredAfterDays),
		nullInt(lt.MinConsecutiveDays), nullInt(lt.MaxConsecutiveDays),
		lt.SortOrder, lt.IsActive, lt.UpdatedAt.UTC().Format(time.RFC3339),
		lt.ID, lt.Version,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return leave.ErrDuplicateCode
		}
		return fmt.Errorf("failed to update leave type: %w", err)
	}
	return bumpOnMatch(res, &lt.Version)
}

func scanLeaveType(row scanner) (*leave.LeaveType, error) {
	var (
		lt                           leave.LeaveType
		defaultDays, maxCarry        string
		accrual                      string
		attachAfter, minDays, maxDay sql.NullInt64
		createdAt, updatedAt         string
	)

	err := row.Scan(
		&lt.ID, &lt.CompanyID, &lt.Code, &lt.Name, &defaultDays, &lt.IsPaid,
		&accrual, &maxCarry, &lt.RequiresApproval, &lt.RequiresAttachment,
		&attachAfter, &minDays, &maxDay,
		&lt.SortOrder, &lt.IsActive, &createdAt, &updatedAt, &lt.Version,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan leave type: %w", err)
	}

	lt.DefaultDaysPerYear = mustDecimal(defaultDays)
	lt.MaxCarryOver = mustDecimal(maxCarry)
	lt.AccrualMethod = leave.AccrualMethod(accrual)
	lt.AttachmentRequiredAfterDays = intPtr(attachAfter)
	lt.MinConsecutiveDays = intPtr(minDays)
	lt.MaxConsecutiveDays = intPtr(maxDay)
	lt.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	lt.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &lt, nil
}

// =============================================================================
// BALANCES
// =============================================================================

const balanceColumns = `id, employee_id, company_id, leave_type_id, cycle_year,
	opening_balance, accrued, taken, pending, adjusted, forfeited,
	carried_forward, current_balance, created_at, updated_at, version`

func (s *Store) GetBalance(ctx context.Context, employeeID, leaveTypeID string, cycleYear int) (*leave.LeaveBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getBalance(ctx, s.db, employeeID, leaveTypeID, cycleYear)
}

func (s *Store) getBalance(ctx context.Context, q dbtx, employeeID, leaveTypeID string, cycleYear int) (*leave.LeaveBalance, error) {
	row := q.QueryRowContext(ctx,
		"SELECT "+balanceColumns+" FROM leave_balances WHERE employee_id = ? AND leave_type_id = ? AND cycle_year = ?",
		employeeID, leaveTypeID, cycleYear)
	return scanBalance(row)
}

func (s *Store) ListBalances(ctx context.Context, employeeID string, cycleYear int) ([]*leave.LeaveBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listBalances(ctx, s.db, "employee_id", employeeID, cycleYear)
}

func (s *Store) ListCompanyBalances(ctx context.Context, companyID string, cycleYear int) ([]*leave.LeaveBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listBalances(ctx, s.db, "company_id", companyID, cycleYear)
}

func (s *Store) listBalances(ctx context.Context, q dbtx, keyColumn, keyValue string, cycleYear int) ([]*leave.LeaveBalance, error) {
	query := "SELECT " + balanceColumns + " FROM leave_balances WHERE " + keyColumn + " = ? AND cycle_year = ?" +
		" ORDER BY employee_id, leave_type_id"

	rows, err := q.QueryContext(ctx, query, keyValue, cycleYear)
	if err != nil {
		return nil, fmt.Errorf("failed to query balances: %w", err)
	}
	defer rows.Close()

	var out []*leave.LeaveBalance
	for rows.Next() {
		b, err := scanBalance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) SaveBalance(ctx context.Context, b *leave.LeaveBalance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveBalance(ctx, s.db, b)
}

func (s *Store) saveBalance(ctx context.Context, q dbtx, b *leave.LeaveBalance) error {
	if b.Version == 0 {
		_, err := q.ExecContext(ctx, `
			INSERT INTO leave_balances (`+balanceColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
			b.ID, b.EmployeeID, b.CompanyID, b.LeaveTypeID, b.CycleYear,
			b.OpeningBalance.String(), b.Accrued.String(), b.Taken.String(),
			b.Pending.String(), b.Adjusted.String(), b.Forfeited.String(),
			b.CarriedForward.String(), b.CurrentBalance.String(),
			b.CreatedAt.UTC().Format(time.RFC3339),
			b.UpdatedAt.UTC().Format(time.RFC3339),
		)
		if err != nil {
			// A racing lazy initialization inserted the same row first.
			if isUniqueConstraintError(err) {
				return leave.ErrConcurrentModification
			}
			return fmt.Errorf("failed to insert balance: %w", err)
		}
		b.Version = 1
		return nil
	}

	res, err := q.ExecContext(ctx, `
		UPDATE leave_balances SET
			opening_balance = ?, accrued = ?, taken = ?, pending = ?,
			adjusted = ?, forfeited = ?, carried_forward = ?,
			current_balance = ?, updated_at = ?,
			version = version + 1
		WHERE id = ? AND version = ?`,
		b.OpeningBalance.String(), b.Accrued.String(), b.Taken.String(),
		b.Pending.String(), b.Adjusted.String(), b.Forfeited.String(),
		b.CarriedForward.String(), b.CurrentBalance.String(),
		b.UpdatedAt.UTC().Format(time.RFC3339),
		b.ID, b.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	return bumpOnMatch(res, &b.Version)
}

func scanBalance(row scanner) (*leave.LeaveBalance, error) {
	var b leave.LeaveBalance
	var opening, accrued, taken, pending, adjusted string
	var forfeited, carried, current, createdAt, updatedAt string

	err := row.Scan(
		&b.ID, &b.EmployeeID, &b.CompanyID, &b.LeaveTypeID, &b.CycleYear,
		&opening, &accrued, &taken, &pending, &adjusted,
		&forfeited, &carried, &current, &createdAt, &updatedAt, &b.Version,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan balance: %w", err)
	}

	b.OpeningBalance = mustDecimal(opening)
	b.Accrued = mustDecimal(accrued)
	b.Taken = mustDecimal(taken)
	b.Pending = mustDecimal(pending)
	b.Adjusted = mustDecimal(adjusted)
	b.Forfeited = mustDecimal(forfeited)
	b.CarriedForward = mustDecimal(carried)
	b.CurrentBalance = mustDecimal(current)
	b.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	b.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &b, nil
}

// =============================================================================
// REQUESTS
// =============================================================================

const requestColumns = `id, employee_id, company_id, leave_type_id, start_date,
	end_date, is_half_day, half_day_type, working_days, reason,
	emergency_contact, attachment_ref, status, submitted_date, cancelled_by,
	cancellation_reason, created_at, updated_at, version`

func (s *Store) GetRequest(ctx context.Context, id string) (*leave.LeaveRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getRequest(ctx, s.db, id)
}

func (s *Store) getRequest(ctx context.Context, q dbtx, id string) (*leave.LeaveRequest, error) {
	row := q.QueryRowContext(ctx,
		"SELECT "+requestColumns+" FROM leave_requests WHERE id = ?", id)
	r, err := scanRequest(row)
	if err != nil || r == nil {
		return nil, err
	}

	history, err := s.loadHistory(ctx, q, []string{r.ID})
	if err != nil {
		return nil, err
	}
	r.ApprovalHistory = history[r.ID]
	return r, nil
}

func (s *Store) QueryRequests(ctx context.Context, f leave.RequestFilter) ([]*leave.LeaveRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryRequests(ctx, s.db, f)
}

func (s *Store) queryRequests(ctx context.Context, q dbtx, f leave.RequestFilter) ([]*leave.LeaveRequest, error) {
	query := "SELECT " + requestColumns + " FROM leave_requests WHERE company_id = ?"
	args := []any{f.CompanyID}

	if f.EmployeeID != "" {
		query += " AND employee_id = ?"
		args = append(args, f.EmployeeID)
	}
	if f.LeaveTypeID != "" {
		query += " AND leave_type_id = ?"
		args = append(args, f.LeaveTypeID)
	}
	if f.Status != "" {
		query += " AND status = ?"
		args = append(args, string(f.Status))
	}
	// From/To select requests whose span overlaps the window.
	if !f.From.IsZero() {
		query += " AND end_date >= ?"
		args = append(args, f.From.Format(time.DateOnly))
	}
	if !f.To.IsZero() {
		query += " AND start_date <= ?"
		args = append(args, f.To.Format(time.DateOnly))
	}

	query += " ORDER BY created_at DESC, rowid DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query requests: %w", err)
	}
	defer rows.Close()

	var out []*leave.LeaveRequest
	var ids []string
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
		ids = append(ids, r.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	history, err := s.loadHistory(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	for _, r := range out {
		r.ApprovalHistory = history[r.ID]
	}
	return out, nil
}

func (s *Store) CountRequestsByStatus(ctx context.Context, companyID string) (map[leave.RequestStatus]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countRequestsByStatus(ctx, s.db, companyID)
}

func (s *Store) countRequestsByStatus(ctx context.Context, q dbtx, companyID string) (map[leave.RequestStatus]int, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT status, COUNT(*) FROM leave_requests WHERE company_id = ? GROUP BY status",
		companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to count requests: %w", err)
	}
	defer rows.Close()

	counts := make(map[leave.RequestStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[leave.RequestStatus(status)] = n
	}
	return counts, rows.Err()
}

func (s *Store) SaveRequest(ctx context.Context, r *leave.LeaveRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveRequest(ctx, s.db, r)
}

func (s *Store) saveRequest(ctx context.Context, q dbtx, r *leave.LeaveRequest) error {
	if r.Version == 0 {
		_, err := q.ExecContext(ctx, `
			INSERT INTO leave_requests (`+requestColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
			r.ID, r.EmployeeID, r.CompanyID, r.LeaveTypeID,
			r.StartDate.Format(time.DateOnly), r.EndDate.Format(time.DateOnly),
			r.IsHalfDay, nullString(string(r.HalfDayType)),
			r.WorkingDays.String(), r.Reason, r.EmergencyContact,
			r.AttachmentRef, string(r.Status), nullTime(r.SubmittedDate),
			r.CancelledBy, r.CancellationReason,
			r.CreatedAt.UTC().Format(time.RFC3339),
			r.UpdatedAt.UTC().Format(time.RFC3339),
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return leave.ErrConcurrentModification
			}
			return fmt.Errorf("failed to insert request: %w", err)
		}
		r.Version = 1
		return s.saveHistory(ctx, q, r)
	}

	res, err := q.ExecContext(ctx, `
		UPDATE leave_requests SET
			status = ?, submitted_date = ?, cancelled_by = ?,
			cancellation_reason = ?, attachment_ref = ?, updated_at = ?,
			version = version + 1
		WHERE id = ? AND version = ?`,
		string(r.Status), nullTime(r.SubmittedDate), r.CancelledBy,
		r.CancellationReason, r.AttachmentRef,
		r.UpdatedAt.UTC().Format(time.RFC3339),
		r.ID, r.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update request: %w", err)
	}
	if err := bumpOnMatch(res, &r.Version); err != nil {
		return err
	}
	return s.saveHistory(ctx, q, r)
}

// saveHistory appends any history records not yet stored. Existing (request,
// seq) pairs are left untouched, which keeps the table append-only.
func (s *Store) saveHistory(ctx context.Context, q dbtx, r *leave.LeaveRequest) error {
	for i, rec := range r.ApprovalHistory {
		_, err := q.ExecContext(ctx, `
			INSERT OR IGNORE INTO approval_records
			(request_id, seq, approver_id, approver_name, action, comments, action_date)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.ID, i, rec.ApproverID, rec.ApproverName, string(rec.Action),
			rec.Comments, rec.ActionDate.UTC().Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("failed to save approval record: %w", err)
		}
	}
	return nil
}

func (s *Store) loadHistory(ctx context.Context, q dbtx, requestIDs []string) (map[string][]leave.ApprovalRecord, error) {
	history := make(map[string][]leave.ApprovalRecord)
	if len(requestIDs) == 0 {
		return history, nil
	}

	placeholders := strings.Repeat("?,", len(requestIDs))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(requestIDs))
	for i, id := range requestIDs {
		args[i] = id
	}

	rows, err := q.QueryContext(ctx, `
		SELECT request_id, approver_id, approver_name, action, comments, action_date
		FROM approval_records
		WHERE request_id IN (`+placeholders+`)
		ORDER BY request_id, seq`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query approval records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			requestID, action, actionDate string
			rec                           leave.ApprovalRecord
		)
		if err := rows.Scan(&requestID, &rec.ApproverID, &rec.ApproverName,
			&action, &rec.Comments, &actionDate); err != nil {
			return nil, err
		}
		rec.Action = leave.ApprovalAction(action)
		rec.ActionDate, _ = time.Parse(time.RFC3339, actionDate)
		history[requestID] = append(history[requestID], rec)
	}
	return history, rows.Err()
}

func scanRequest(row scanner) (*leave.LeaveRequest, error) {
	var (
		r                    leave.LeaveRequest
		startDate, endDate   string
		halfDayType          sql.NullString
		workingDays, status  string
		submittedDate        sql.NullString
		createdAt, updatedAt string
	)

	err := row.Scan(
		&r.ID, &r.EmployeeID, &r.CompanyID, &r.LeaveTypeID,
		&startDate, &endDate, &r.IsHalfDay, &halfDayType, &workingDays,
		&r.Reason, &r.EmergencyContact, &r.AttachmentRef, &status,
		&submittedDate, &r.CancelledBy, &r.CancellationReason,
		&createdAt, &updatedAt, &r.Version,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan request: %w", err)
	}

	r.StartDate, _ = time.Parse(time.DateOnly, startDate)
	r.EndDate, _ = time.Parse(time.DateOnly, endDate)
	r.HalfDayType = leave.HalfDayType(halfDayType.String)
	r.WorkingDays = mustDecimal(workingDays)
	r.Status = leave.RequestStatus(status)
	if submittedDate.Valid {
		t, _ := time.Parse(time.RFC3339, submittedDate.String)
		r.SubmittedDate = &t
	}
	r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	r.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &r, nil
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func (s *Store) GetEmployee(ctx context.Context, id string) (*leave.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getEmployee(ctx, s.db, id)
}

func (s *Store) getEmployee(ctx context.Context, q dbtx, id string) (*leave.Employee, error) {
	var e leave.Employee
	var createdAt string

	err := q.QueryRowContext(ctx,
		"SELECT id, company_id, name, email, created_at FROM employees WHERE id = ?",
		id,
	).Scan(&e.ID, &e.CompanyID, &e.Name, &e.Email, &createdAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan employee: %w", err)
	}

	e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &e, nil
}

func (s *Store) ListEmployees(ctx context.Context, companyID string) ([]*leave.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listEmployees(ctx, s.db, companyID)
}

func (s *Store) listEmployees(ctx context.Context, q dbtx, companyID string) ([]*leave.Employee, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT id, company_id, name, email, created_at FROM employees WHERE company_id = ? ORDER BY name",
		companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query employees: %w", err)
	}
	defer rows.Close()

	var out []*leave.Employee
	for rows.Next() {
		var e leave.Employee
		var createdAt string
		if err := rows.Scan(&e.ID, &e.CompanyID, &e.Name, &e.Email, &createdAt); err != nil {
			return nil, err
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (s *Store) SaveEmployee(ctx context.Context, e *leave.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveEmployee(ctx, s.db, e)
}

func (s *Store) saveEmployee(ctx context.Context, q dbtx, e *leave.Employee) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO employees (id, company_id, name, email, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			company_id = excluded.company_id,
			name = excluded.name,
			email = excluded.email`,
		e.ID, e.CompanyID, e.Name, e.Email,
		e.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save employee: %w", err)
	}
	return nil
}

// =============================================================================
// HOLIDAYS
// =============================================================================

func (s *Store) SaveHoliday(ctx context.Context, h *leave.Holiday) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveHoliday(ctx, s.db, h)
}

func (s *Store) saveHoliday(ctx context.Context, q dbtx, h *leave.Holiday) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO holidays (id, company_id, day, name)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(company_id, day) DO UPDATE SET
			name = excluded.name`,
		h.ID, h.CompanyID, leave.Day(h.Date).Format(time.DateOnly), h.Name,
	)
	if err != nil {
		return fmt.Errorf("failed to save holiday: %w", err)
	}
	return nil
}

func (s *Store) ListHolidays(ctx context.Context, companyID string, year int) ([]*leave.Holiday, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listHolidays(ctx, s.db, companyID, year)
}

func (s *Store) listHolidays(ctx context.Context, q dbtx, companyID string, year int) ([]*leave.Holiday, error) {
	query := "SELECT id, company_id, day, name FROM holidays WHERE company_id = ?"
	args := []any{companyID}
	if year != 0 {
		query += " AND day >= ? AND day <= ?"
		args = append(args, fmt.Sprintf("%04d-01-01", year), fmt.Sprintf("%04d-12-31", year))
	}
	query += " ORDER BY day"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query holidays: %w", err)
	}
	defer rows.Close()

	var out []*leave.Holiday
	for rows.Next() {
		var h leave.Holiday
		var day string
		if err := rows.Scan(&h.ID, &h.CompanyID, &day, &h.Name); err != nil {
			return nil, err
		}
		h.Date, _ = time.Parse(time.DateOnly, day)
		out = append(out, &h)
	}
	return out, rows.Err()
}

// IsHoliday makes the store usable as a leave.HolidayCalendar.
func (s *Store) IsHoliday(ctx context.Context, companyID string, day time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM holidays WHERE company_id = ? AND day = ?",
		companyID, leave.Day(day).Format(time.DateOnly),
	).Scan(&count)
	return count > 0, err
}

// =============================================================================
// AUDIT
// =============================================================================

func (s *Store) AppendAudit(ctx context.Context, e leave.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendAudit(ctx, s.db, e)
}

func (s *Store) appendAudit(ctx context.Context, q dbtx, e leave.AuditEntry) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO audit_log
		(id, at, actor_id, action, employee_id, leave_type_id, cycle_year, delta, note)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.At.UTC().Format(time.RFC3339), e.ActorID, string(e.Action),
		e.EmployeeID, e.LeaveTypeID, e.CycleYear, e.Delta.String(), e.Note,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func (s *Store) ListAudit(ctx context.Context, f leave.AuditFilter) ([]leave.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listAudit(ctx, s.db, f)
}

func (s *Store) listAudit(ctx context.Context, q dbtx, f leave.AuditFilter) ([]leave.AuditEntry, error) {
	query := `SELECT id, at, actor_id, action, employee_id, leave_type_id, cycle_year, delta, note
		FROM audit_log WHERE 1=1`
	var args []any

	if f.EmployeeID != "" {
		query += " AND employee_id = ?"
		args = append(args, f.EmployeeID)
	}
	if f.LeaveTypeID != "" {
		query += " AND leave_type_id = ?"
		args = append(args, f.LeaveTypeID)
	}
	if f.Action != "" {
		query += " AND action = ?"
		args = append(args, string(f.Action))
	}
	if f.CycleYear != 0 {
		query += " AND cycle_year = ?"
		args = append(args, f.CycleYear)
	}

	query += " ORDER BY at DESC, rowid DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var out []leave.AuditEntry
	for rows.Next() {
		var (
			e          leave.AuditEntry
			at, action string
			delta      string
		)
		if err := rows.Scan(&e.ID, &at, &e.ActorID, &action,
			&e.EmployeeID, &e.LeaveTypeID, &e.CycleYear, &delta, &e.Note); err != nil {
			return nil, err
		}
		e.At, _ = time.Parse(time.RFC3339, at)
		e.Action = leave.AuditAction(action)
		e.Delta = mustDecimal(delta)
		out = append(out, e)
	}
	return out, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// bumpOnMatch checks a versioned UPDATE hit its row and bumps the caller's
// copy to match the database.
func bumpOnMatch(res sql.Result, version *int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return leave.ErrConcurrentModification
	}
	*version++
	return nil
}

func mustDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	return decimal.RequireFromString(s)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isBusyError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "database is locked") ||
		strings.Contains(err.Error(), "database table is locked"))
}
