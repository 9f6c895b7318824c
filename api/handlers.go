/*
handlers.go - HTTP API handlers for the leave engine

PURPOSE:
  Exposes the leave engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Leave types:
    GET    /api/types                    List a company's catalog
    POST   /api/types                    Create a leave type
    GET    /api/types/{id}               Get one type
    PUT    /api/types/{id}               Update rule fields
    POST   /api/types/{id}/deactivate    Soft-deactivate
    POST   /api/types/{id}/reactivate    Reactivate

  Employees:
    GET    /api/employees                List a company's employees
    POST   /api/employees                Upsert directory projection
    GET    /api/employees/{id}           Get one employee
    GET    /api/employees/{id}/balances  Balance rows for a cycle year
    POST   /api/employees/{id}/balances/initialize  Seed a cycle year

  Requests:
    POST   /api/requests                 Draft a request
    GET    /api/requests                 Filtered company listing
    GET    /api/requests/{id}            Get one request with history
    POST   /api/requests/{id}/submit     draft -> pending
    POST   /api/requests/{id}/approve    pending -> approved
    POST   /api/requests/{id}/reject     pending -> rejected
    POST   /api/requests/{id}/cancel     pending|approved -> cancelled

  Company views:
    GET    /api/companies/{id}/summary   Request counts by status
    GET    /api/companies/{id}/on-leave  Who is on approved leave on a date

  Admin:
    POST   /api/admin/adjustments        Manual balance correction
    POST   /api/admin/rollover           Year-end carry-over
    POST   /api/admin/seed               Load default SA catalog

  Calendar:
    GET    /api/holidays                 List company holidays
    POST   /api/holidays                 Register a holiday
    GET    /api/working-days             Business-day preview for a span

  Audit:
    GET    /api/audit                    Balance mutation trail

ERROR HANDLING:
  Domain errors map onto HTTP status via writeDomainError:
  - 400: validation, insufficient balance
  - 404: not found
  - 409: duplicate code, illegal transition, concurrent modification
  - 500: everything else

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.
  Actor identity is taken from request bodies and trusted as-is.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - leave/: The domain logic these handlers delegate to
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/veldhr/leave-engine/leave"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    leave.TxStore
	Registry *leave.Registry
	Ledger   *leave.Ledger
	Workflow *leave.Workflow
	Queries  *leave.Queries
	Calc     *leave.Calculator

	validate *validator.Validate
}

// NewHandler wires the engine on top of the given store. When the store also
// keeps the holiday registry (both bundled stores do), the business-day
// calculator picks it up.
func NewHandler(store leave.TxStore) *Handler {
	var holidays leave.HolidayCalendar
	if hc, ok := store.(leave.HolidayCalendar); ok {
		holidays = hc
	}
	calc := leave.NewCalculator(holidays)

	return &Handler{
		Store:    store,
		Registry: leave.NewRegistry(store),
		Ledger:   leave.NewLedger(store),
		Workflow: leave.NewWorkflow(store, calc),
		Queries:  leave.NewQueries(store, nil),
		Calc:     calc,
		validate: validator.New(),
	}
}

// =============================================================================
// LEAVE TYPE HANDLERS
// =============================================================================

// ListLeaveTypes returns a company's catalog.
func (h *Handler) ListLeaveTypes(w http.ResponseWriter, r *http.Request) {
	companyID := r.URL.Query().Get("company_id")
	if companyID == "" {
		writeError(w, http.StatusBadRequest, "company_id is required", nil)
		return
	}
	includeInactive := r.URL.Query().Get("include_inactive") == "true"

	types, err := h.Registry.List(r.Context(), companyID, includeInactive)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]LeaveTypeDTO, len(types))
	for i, lt := range types {
		dtos[i] = toLeaveTypeDTO(lt)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateLeaveType adds an entry to a company's catalog.
func (h *Handler) CreateLeaveType(w http.ResponseWriter, r *http.Request) {
	var req CreateLeaveTypeRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	created, err := h.Registry.Create(r.Context(), &leave.LeaveType{
		CompanyID:                   req.CompanyID,
		Code:                        req.Code,
		Name:                        req.Name,
		DefaultDaysPerYear:          leave.Days(req.DefaultDaysPerYear),
		IsPaid:                      req.IsPaid,
		AccrualMethod:               leave.AccrualMethod(req.AccrualMethod),
		MaxCarryOver:                leave.Days(req.MaxCarryOver),
		RequiresApproval:            req.RequiresApproval,
		RequiresAttachment:          req.RequiresAttachment,
		AttachmentRequiredAfterDays: req.AttachmentAfterDays,
		MinConsecutiveDays:          req.MinConsecutiveDays,
		MaxConsecutiveDays:          req.MaxConsecutiveDays,
		SortOrder:                   req.SortOrder,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLeaveTypeDTO(created))
}

// GetLeaveType returns one catalog entry.
func (h *Handler) GetLeaveType(w http.ResponseWriter, r *http.Request) {
	lt, err := h.Registry.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveTypeDTO(lt))
}

// UpdateLeaveType changes rule fields on an existing entry.
func (h *Handler) UpdateLeaveType(w http.ResponseWriter, r *http.Request) {
	var req UpdateLeaveTypeRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	lt, err := h.Registry.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	lt.Code = req.Code
	lt.Name = req.Name
	lt.DefaultDaysPerYear = leave.Days(req.DefaultDaysPerYear)
	lt.IsPaid = req.IsPaid
	lt.AccrualMethod = leave.AccrualMethod(req.AccrualMethod)
	lt.MaxCarryOver = leave.Days(req.MaxCarryOver)
	lt.RequiresApproval = req.RequiresApproval
	lt.RequiresAttachment = req.RequiresAttachment
	lt.AttachmentRequiredAfterDays = req.AttachmentAfterDays
	lt.MinConsecutiveDays = req.MinConsecutiveDays
	lt.MaxConsecutiveDays = req.MaxConsecutiveDays
	lt.SortOrder = req.SortOrder
	lt.Version = req.Version

	updated, err := h.Registry.Update(r.Context(), lt)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveTypeDTO(updated))
}

// DeactivateLeaveType soft-deactivates an entry, freeing its code.
func (h *Handler) DeactivateLeaveType(w http.ResponseWriter, r *http.Request) {
	lt, err := h.Registry.Deactivate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveTypeDTO(lt))
}

// ReactivateLeaveType turns a deactivated entry back on.
func (h *Handler) ReactivateLeaveType(w http.ResponseWriter, r *http.Request) {
	lt, err := h.Registry.Reactivate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveTypeDTO(lt))
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

// ListEmployees returns a company's directory projection.
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	companyID := r.URL.Query().Get("company_id")
	if companyID == "" {
		writeError(w, http.StatusBadRequest, "company_id is required", nil)
		return
	}

	employees, err := h.Store.ListEmployees(r.Context(), companyID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list employees", err)
		return
	}

	dtos := make([]EmployeeDTO, len(employees))
	for i, e := range employees {
		dtos[i] = toEmployeeDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateEmployee upserts a directory projection row.
func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req CreateEmployeeRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	emp := &leave.Employee{
		ID:        req.ID,
		CompanyID: req.CompanyID,
		Name:      req.Name,
		Email:     req.Email,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.Store.SaveEmployee(r.Context(), emp); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save employee", err)
		return
	}
	writeJSON(w, http.StatusCreated, toEmployeeDTO(emp))
}

// GetEmployee returns a single employee.
func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	emp, err := h.Store.GetEmployee(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get employee", err)
		return
	}
	if emp == nil {
		writeError(w, http.StatusNotFound, "Employee not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(emp))
}

// EmployeeBalances returns an employee's balance rows for a cycle year.
func (h *Handler) EmployeeBalances(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "id")
	year := leave.CycleYear(time.Now().UTC())
	if s := r.URL.Query().Get("year"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid year", err)
			return
		}
		year = n
	}

	views, err := h.Queries.EmployeeBalances(r.Context(), employeeID, year)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]BalanceDTO, len(views))
	for i, v := range views {
		dtos[i] = toBalanceDTO(v)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// InitializeBalances seeds an employee's balance rows for every active leave
// type. Safe to call twice; existing rows are left alone.
func (h *Handler) InitializeBalances(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "id")
	var req InitializeBalancesRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	emp, err := h.Store.GetEmployee(r.Context(), employeeID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get employee", err)
		return
	}
	if emp == nil {
		writeError(w, http.StatusNotFound, "Employee not found", nil)
		return
	}

	rows, err := h.Ledger.InitializeYear(r.Context(), employeeID, emp.CompanyID, req.CycleYear, req.ActorID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]BalanceDTO, len(rows))
	for i, b := range rows {
		dtos[i] = toBalanceDTOFromRow(b)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// REQUEST HANDLERS
// =============================================================================

// CreateRequest drafts a leave request.
func (h *Handler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	var req CreateRequestRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	start, err := time.Parse(time.DateOnly, req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date (use YYYY-MM-DD)", err)
		return
	}
	end := start
	if req.EndDate != "" {
		end, err = time.Parse(time.DateOnly, req.EndDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid end_date (use YYYY-MM-DD)", err)
			return
		}
	}

	created, err := h.Workflow.Create(r.Context(), leave.CreateInput{
		EmployeeID:       req.EmployeeID,
		CompanyID:        req.CompanyID,
		LeaveTypeID:      req.LeaveTypeID,
		StartDate:        start,
		EndDate:          end,
		IsHalfDay:        req.IsHalfDay,
		HalfDayType:      leave.HalfDayType(req.HalfDayType),
		Reason:           req.Reason,
		EmergencyContact: req.EmergencyContact,
		AttachmentRef:    req.AttachmentRef,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRequestDTO(created, "", ""))
}

// GetRequest returns one request with its approval history.
func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	req, err := h.Workflow.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(req, "", ""))
}

// ListRequests returns a filtered company listing with display names.
func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := leave.RequestFilter{
		CompanyID:   q.Get("company_id"),
		EmployeeID:  q.Get("employee_id"),
		LeaveTypeID: q.Get("leave_type_id"),
		Status:      leave.RequestStatus(q.Get("status")),
	}
	var err error
	if s := q.Get("from"); s != "" {
		if f.From, err = time.Parse(time.DateOnly, s); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid from date (use YYYY-MM-DD)", err)
			return
		}
	}
	if s := q.Get("to"); s != "" {
		if f.To, err = time.Parse(time.DateOnly, s); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid to date (use YYYY-MM-DD)", err)
			return
		}
	}
	if s := q.Get("limit"); s != "" {
		if f.Limit, err = strconv.Atoi(s); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
	}

	views, err := h.Queries.CompanyRequests(r.Context(), f)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestViewDTOs(views))
}

// SubmitRequest moves a draft to pending, reserving balance.
func (h *Handler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequestRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	updated, err := h.Workflow.Submit(r.Context(), chi.URLParam(r, "id"), req.ActorID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(updated, "", ""))
}

// ApproveRequest approves a pending request, deducting balance.
func (h *Handler) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	var req ApproveRequestRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	updated, err := h.Workflow.Approve(r.Context(), chi.URLParam(r, "id"), req.ApproverID, req.Comments)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(updated, "", ""))
}

// RejectRequest rejects a pending request, releasing its reservation.
func (h *Handler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	var req RejectRequestRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	updated, err := h.Workflow.Reject(r.Context(), chi.URLParam(r, "id"), req.ApproverID, req.Comments)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(updated, "", ""))
}

// CancelRequest cancels a pending or approved request.
func (h *Handler) CancelRequest(w http.ResponseWriter, r *http.Request) {
	var req CancelRequestRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	updated, err := h.Workflow.Cancel(r.Context(), chi.URLParam(r, "id"), req.CancelledBy, req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(updated, "", ""))
}

// =============================================================================
// COMPANY VIEW HANDLERS
// =============================================================================

// CompanySummary returns request counts by status.
func (h *Handler) CompanySummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Queries.Summary(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	counts := make(map[string]int, len(summary.Counts))
	for status, n := range summary.Counts {
		counts[string(status)] = n
	}
	writeJSON(w, http.StatusOK, SummaryDTO{
		CompanyID: summary.CompanyID,
		Counts:    counts,
		Total:     summary.Total,
	})
}

// OnLeave returns approved requests covering a date (today by default).
func (h *Handler) OnLeave(w http.ResponseWriter, r *http.Request) {
	date := time.Now().UTC()
	if s := r.URL.Query().Get("date"); s != "" {
		var err error
		if date, err = time.Parse(time.DateOnly, s); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date (use YYYY-MM-DD)", err)
			return
		}
	}

	views, err := h.Queries.OnLeave(r.Context(), chi.URLParam(r, "id"), date)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestViewDTOs(views))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// CreateAdjustment applies a manual balance correction.
func (h *Handler) CreateAdjustment(w http.ResponseWriter, r *http.Request) {
	var req AdjustmentRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	b, err := h.Ledger.Adjust(r.Context(), req.EmployeeID, req.LeaveTypeID,
		req.CycleYear, leave.Days(req.Delta), req.ActorID, req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTOFromRow(b))
}

// TriggerRollover closes a company's cycle year.
func (h *Handler) TriggerRollover(w http.ResponseWriter, r *http.Request) {
	var req RolloverRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	res, err := h.Ledger.Rollover(r.Context(), req.CompanyID, req.FromYear, req.ActorID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RolloverResultDTO{
		FromYear:  res.FromYear,
		ToYear:    res.ToYear,
		Rolled:    res.Rolled,
		Skipped:   res.Skipped,
		Carried:   days(res.Carried),
		Forfeited: days(res.Forfeited),
	})
}

// SeedDefaults loads the default South African catalog. Types whose code is
// already taken are skipped, so re-seeding is harmless.
func (h *Handler) SeedDefaults(w http.ResponseWriter, r *http.Request) {
	var req SeedRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var result SeedResultDTO
	for _, lt := range leave.DefaultTypes(req.CompanyID) {
		if _, err := h.Registry.Create(r.Context(), lt); err != nil {
			if errors.Is(err, leave.ErrDuplicateCode) {
				result.Skipped++
				continue
			}
			writeDomainError(w, err)
			return
		}
		result.Created++
	}
	writeJSON(w, http.StatusOK, result)
}

// =============================================================================
// HOLIDAY AND CALENDAR HANDLERS
// =============================================================================

// ListHolidays returns a company's holidays, optionally for one year.
func (h *Handler) ListHolidays(w http.ResponseWriter, r *http.Request) {
	companyID := r.URL.Query().Get("company_id")
	if companyID == "" {
		writeError(w, http.StatusBadRequest, "company_id is required", nil)
		return
	}
	year := 0
	if s := r.URL.Query().Get("year"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid year", err)
			return
		}
		year = n
	}

	holidays, err := h.Store.ListHolidays(r.Context(), companyID, year)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list holidays", err)
		return
	}

	dtos := make([]HolidayDTO, len(holidays))
	for i, hol := range holidays {
		dtos[i] = HolidayDTO{
			ID:        hol.ID,
			CompanyID: hol.CompanyID,
			Date:      hol.Date.Format(time.DateOnly),
			Name:      hol.Name,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateHoliday registers a company holiday. One holiday per company per
// date; re-posting the same date renames it.
func (h *Handler) CreateHoliday(w http.ResponseWriter, r *http.Request) {
	var req CreateHolidayRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	day, err := time.Parse(time.DateOnly, req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date (use YYYY-MM-DD)", err)
		return
	}

	hol := &leave.Holiday{
		ID:        uuid.NewString(),
		CompanyID: req.CompanyID,
		Date:      day,
		Name:      req.Name,
	}
	if err := h.Store.SaveHoliday(r.Context(), hol); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save holiday", err)
		return
	}
	writeJSON(w, http.StatusCreated, HolidayDTO{
		ID:        hol.ID,
		CompanyID: hol.CompanyID,
		Date:      hol.Date.Format(time.DateOnly),
		Name:      hol.Name,
	})
}

// PreviewWorkingDays sizes a date span without creating anything. With a
// company_id, that company's holidays are excluded.
func (h *Handler) PreviewWorkingDays(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, err := time.Parse(time.DateOnly, q.Get("start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start (use YYYY-MM-DD)", err)
		return
	}
	end := start
	if s := q.Get("end"); s != "" {
		if end, err = time.Parse(time.DateOnly, s); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid end (use YYYY-MM-DD)", err)
			return
		}
	}
	isHalfDay := q.Get("half_day") == "true"

	wd, err := h.Calc.WorkingDays(r.Context(), q.Get("company_id"), start, end, isHalfDay)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count working days", err)
		return
	}
	writeJSON(w, http.StatusOK, WorkingDaysDTO{
		Start:       start.Format(time.DateOnly),
		End:         end.Format(time.DateOnly),
		IsHalfDay:   isHalfDay,
		WorkingDays: days(wd),
	})
}

// =============================================================================
// AUDIT HANDLERS
// =============================================================================

// AuditTrail returns the balance mutation trail, newest first.
func (h *Handler) AuditTrail(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := leave.AuditFilter{
		EmployeeID:  q.Get("employee_id"),
		LeaveTypeID: q.Get("leave_type_id"),
		Action:      leave.AuditAction(q.Get("action")),
		Limit:       100,
	}
	var err error
	if s := q.Get("cycle_year"); s != "" {
		if f.CycleYear, err = strconv.Atoi(s); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid cycle_year", err)
			return
		}
	}
	if s := q.Get("limit"); s != "" {
		if f.Limit, err = strconv.Atoi(s); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
	}

	entries, err := h.Queries.AuditTrail(r.Context(), f)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]AuditEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toAuditEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

// decode parses a JSON body and runs struct validation.
func (h *Handler) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("malformed JSON: %w", err)
	}
	return h.validate.Struct(dst)
}

func toRequestViewDTOs(views []leave.RequestView) []RequestDTO {
	dtos := make([]RequestDTO, len(views))
	for i, v := range views {
		dtos[i] = toRequestDTO(&v.LeaveRequest, v.EmployeeName, v.LeaveTypeName)
	}
	return dtos
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps leave package errors onto HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case leave.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "not_found"})
	case errors.Is(err, leave.ErrDuplicateCode):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "duplicate_code"})
	case errors.Is(err, leave.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "invalid_transition"})
	case errors.Is(err, leave.ErrConcurrentModification):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "conflict"})
	case errors.Is(err, leave.ErrInsufficientBalance):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "insufficient_balance"})
	case leave.IsClientError(err):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "validation"})
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}
