/*
registry.go - Leave type catalog

PURPOSE:
  Owns the per-company catalog of leave types: what kinds of leave exist,
  how many days they grant, and which rules requests against them must
  follow. Everything else in the engine treats LeaveType as read-only
  configuration.

RULES:
  - Code is unique among a company's ACTIVE types. Deactivating a type
    frees its code; creating or reactivating into a collision fails with
    DuplicateCodeError.
  - Types are never deleted. Deactivation is soft so historical requests
    and balances stay explainable.
*/
package leave

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Registry manages the leave type catalog.
type Registry struct {
	store  TxStore
	logger *zap.Logger
}

func NewRegistry(store TxStore, logger ...*zap.Logger) *Registry {
	l := zap.L().Named("leave.registry")
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0]
	}
	return &Registry{store: store, logger: l}
}

// Create validates and stores a new leave type. The code collision check and
// the insert run in one transaction.
func (r *Registry) Create(ctx context.Context, lt *LeaveType) (*LeaveType, error) {
	lt = lt.Clone()
	lt.Code = normalizeCode(lt.Code)
	if err := validateType(lt); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	lt.ID = uuid.NewString()
	lt.IsActive = true
	lt.CreatedAt = now
	lt.UpdatedAt = now
	lt.Version = 0

	err := r.store.WithTx(ctx, func(s Store) error {
		existing, err := s.FindActiveTypeByCode(ctx, lt.CompanyID, lt.Code)
		if err != nil {
			return fmt.Errorf("code lookup failed: %w", err)
		}
		if existing != nil {
			return &DuplicateCodeError{CompanyID: lt.CompanyID, Code: lt.Code}
		}
		return s.SaveLeaveType(ctx, lt)
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("leave type created",
		zap.String("company_id", lt.CompanyID),
		zap.String("leave_type_id", lt.ID),
		zap.String("code", lt.Code))
	return lt, nil
}

// Update stores changed rule fields for an existing type. Callers fetch with
// Get, modify, and pass the record back; the version check catches racing
// editors. Activating a type goes through the same code collision check as
// Create.
func (r *Registry) Update(ctx context.Context, lt *LeaveType) (*LeaveType, error) {
	lt = lt.Clone()
	lt.Code = normalizeCode(lt.Code)
	if err := validateType(lt); err != nil {
		return nil, err
	}

	err := r.store.WithTx(ctx, func(s Store) error {
		current, err := s.GetLeaveType(ctx, lt.ID)
		if err != nil {
			return err
		}
		if current == nil {
			return &NotFoundError{Kind: "leave type", ID: lt.ID}
		}
		if lt.IsActive {
			existing, err := s.FindActiveTypeByCode(ctx, lt.CompanyID, lt.Code)
			if err != nil {
				return fmt.Errorf("code lookup failed: %w", err)
			}
			if existing != nil && existing.ID != lt.ID {
				return &DuplicateCodeError{CompanyID: lt.CompanyID, Code: lt.Code}
			}
		}
		lt.CreatedAt = current.CreatedAt
		lt.UpdatedAt = time.Now().UTC()
		return s.SaveLeaveType(ctx, lt)
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("leave type updated",
		zap.String("leave_type_id", lt.ID),
		zap.String("code", lt.Code))
	return lt, nil
}

// Deactivate soft-deletes a type: it disappears from pickers, keeps history
// readable, and frees its code for reuse. Already-inactive types pass through
// unchanged.
func (r *Registry) Deactivate(ctx context.Context, id string) (*LeaveType, error) {
	var out *LeaveType
	err := r.store.WithTx(ctx, func(s Store) error {
		lt, err := s.GetLeaveType(ctx, id)
		if err != nil {
			return err
		}
		if lt == nil {
			return &NotFoundError{Kind: "leave type", ID: id}
		}
		if !lt.IsActive {
			out = lt
			return nil
		}
		lt.IsActive = false
		lt.UpdatedAt = time.Now().UTC()
		if err := s.SaveLeaveType(ctx, lt); err != nil {
			return err
		}
		out = lt
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("leave type deactivated", zap.String("leave_type_id", id))
	return out, nil
}

// Reactivate turns a deactivated type back on, re-running the code collision
// check against the currently active set.
func (r *Registry) Reactivate(ctx context.Context, id string) (*LeaveType, error) {
	var out *LeaveType
	err := r.store.WithTx(ctx, func(s Store) error {
		lt, err := s.GetLeaveType(ctx, id)
		if err != nil {
			return err
		}
		if lt == nil {
			return &NotFoundError{Kind: "leave type", ID: id}
		}
		if lt.IsActive {
			out = lt
			return nil
		}
		existing, err := s.FindActiveTypeByCode(ctx, lt.CompanyID, lt.Code)
		if err != nil {
			return fmt.Errorf("code lookup failed: %w", err)
		}
		if existing != nil {
			return &DuplicateCodeError{CompanyID: lt.CompanyID, Code: lt.Code}
		}
		lt.IsActive = true
		lt.UpdatedAt = time.Now().UTC()
		if err := s.SaveLeaveType(ctx, lt); err != nil {
			return err
		}
		out = lt
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("leave type reactivated", zap.String("leave_type_id", id))
	return out, nil
}

// Get returns a type by ID.
func (r *Registry) Get(ctx context.Context, id string) (*LeaveType, error) {
	lt, err := r.store.GetLeaveType(ctx, id)
	if err != nil {
		return nil, err
	}
	if lt == nil {
		return nil, &NotFoundError{Kind: "leave type", ID: id}
	}
	return lt, nil
}

// List returns a company's catalog ordered by SortOrder then name. Inactive
// types are filtered out unless asked for.
func (r *Registry) List(ctx context.Context, companyID string, includeInactive bool) ([]*LeaveType, error) {
	return r.store.ListLeaveTypes(ctx, companyID, includeInactive)
}

// =============================================================================
// VALIDATION
// =============================================================================

func normalizeCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

func validateType(lt *LeaveType) error {
	switch {
	case lt.CompanyID == "":
		return &ValidationError{Field: "companyId", Reason: "required"}
	case lt.Code == "":
		return &ValidationError{Field: "code", Reason: "required"}
	case lt.Name == "":
		return &ValidationError{Field: "name", Reason: "required"}
	}
	if lt.DefaultDaysPerYear.LessThan(decimal.Zero) {
		return &ValidationError{Field: "defaultDaysPerYear", Reason: "must not be negative"}
	}
	if !lt.AccrualMethod.Valid() {
		return &ValidationError{Field: "accrualMethod", Reason: fmt.Sprintf("unknown method %q", lt.AccrualMethod)}
	}
	if lt.MaxCarryOver.LessThan(decimal.Zero) {
		return &ValidationError{Field: "maxCarryOver", Reason: "must not be negative"}
	}
	if lt.AttachmentRequiredAfterDays != nil && *lt.AttachmentRequiredAfterDays < 0 {
		return &ValidationError{Field: "attachmentRequiredAfterDays", Reason: "must not be negative"}
	}
	if lt.MinConsecutiveDays != nil && *lt.MinConsecutiveDays < 1 {
		return &ValidationError{Field: "minConsecutiveDays", Reason: "must be at least 1"}
	}
	if lt.MaxConsecutiveDays != nil && *lt.MaxConsecutiveDays < 1 {
		return &ValidationError{Field: "maxConsecutiveDays", Reason: "must be at least 1"}
	}
	if lt.MinConsecutiveDays != nil && lt.MaxConsecutiveDays != nil && *lt.MinConsecutiveDays > *lt.MaxConsecutiveDays {
		return &ValidationError{Field: "minConsecutiveDays", Reason: "must not exceed maxConsecutiveDays"}
	}
	return nil
}
