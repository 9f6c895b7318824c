/*
ledger.go - Balance ledger

PURPOSE:
  The ONLY code in the repo that moves balance buckets. The workflow, the
  API and the admin operations all come through here; everything else
  treats LeaveBalance as read-only.

  Public methods (Initialize, Deduct, Restore, Adjust, Rollover) each run
  in their own transaction. The unexported helpers at the bottom are the
  same movements exposed to workflow.go so a status change and its balance
  effect can share one transaction.

BUCKET RULES:
  - Rows are created lazily, seeded with the type's yearly entitlement,
    and never deleted.
  - Taken never goes below zero: restores clamp.
  - Pending is informational bookkeeping for outstanding requests and sits
    outside the balance invariant.
  - Only Adjusted may legitimately push CurrentBalance negative.

AUDIT:
  Every mutation writes an AuditEntry in the same transaction, so the
  trail can never disagree with the buckets.
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

// Ledger owns all balance mutations.
type Ledger struct {
	store  TxStore
	logger *zap.Logger
}

func NewLedger(store TxStore, logger ...*zap.Logger) *Ledger {
	l := zap.L().Named("leave.ledger")
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0]
	}
	return &Ledger{store: store, logger: l}
}

// Get reads one balance row. Returns (nil, nil) when the row does not exist
// yet; absence is normal for lazily created rows, not an error.
func (l *Ledger) Get(ctx context.Context, employeeID, leaveTypeID string, cycleYear int) (*LeaveBalance, error) {
	return l.store.GetBalance(ctx, employeeID, leaveTypeID, cycleYear)
}

// Initialize creates the balance row for (employee, type, year) if it does
// not exist, seeding Accrued with the type's yearly entitlement. Idempotent:
// later calls return the existing row untouched.
func (l *Ledger) Initialize(ctx context.Context, employeeID, leaveTypeID string, cycleYear int, actorID string) (*LeaveBalance, error) {
	var out *LeaveBalance
	err := l.store.WithTx(ctx, func(s Store) error {
		b, err := loadOrSeedBalance(ctx, s, employeeID, leaveTypeID, cycleYear, actorID)
		if err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// InitializeYear seeds rows for every active type in the company's catalog.
// Used at onboarding and by the seeding endpoint.
func (l *Ledger) InitializeYear(ctx context.Context, employeeID, companyID string, cycleYear int, actorID string) ([]*LeaveBalance, error) {
	var out []*LeaveBalance
	err := l.store.WithTx(ctx, func(s Store) error {
		types, err := s.ListLeaveTypes(ctx, companyID, false)
		if err != nil {
			return err
		}
		for _, lt := range types {
			b, err := loadOrSeedBalance(ctx, s, employeeID, lt.ID, cycleYear, actorID)
			if err != nil {
				return err
			}
			out = append(out, b)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Deduct consumes days from the current calendar year's row, lazily creating
// it when missing. Sufficiency is NOT checked here: callers that need the
// guard (the workflow does) check before deducting, in the same transaction.
func (l *Ledger) Deduct(ctx context.Context, employeeID, leaveTypeID string, days decimal.Decimal, actorID, note string) (*LeaveBalance, error) {
	if err := validateDays(days); err != nil {
		return nil, err
	}

	year := CycleYear(time.Now().UTC())
	var out *LeaveBalance
	err := l.store.WithTx(ctx, func(s Store) error {
		b, err := loadOrSeedBalance(ctx, s, employeeID, leaveTypeID, year, actorID)
		if err != nil {
			return err
		}
		deductFrom(b, days)
		if err := s.SaveBalance(ctx, b); err != nil {
			return err
		}
		out = b
		return auditBalance(ctx, s, AuditBalanceDeducted, b, days.Neg(), actorID, note)
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("balance deducted",
		zap.String("employee_id", employeeID),
		zap.String("leave_type_id", leaveTypeID),
		zap.String("days", days.String()))
	return out, nil
}

// Restore gives days back after an approved request is cancelled. Taken is
// clamped at zero, so restoring more than was ever taken cannot corrupt the
// row.
func (l *Ledger) Restore(ctx context.Context, employeeID, leaveTypeID string, days decimal.Decimal, actorID, note string) (*LeaveBalance, error) {
	if err := validateDays(days); err != nil {
		return nil, err
	}

	year := CycleYear(time.Now().UTC())
	var out *LeaveBalance
	err := l.store.WithTx(ctx, func(s Store) error {
		b, err := loadOrSeedBalance(ctx, s, employeeID, leaveTypeID, year, actorID)
		if err != nil {
			return err
		}
		restoreTo(b, days)
		if err := s.SaveBalance(ctx, b); err != nil {
			return err
		}
		out = b
		return auditBalance(ctx, s, AuditBalanceRestored, b, days, actorID, note)
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("balance restored",
		zap.String("employee_id", employeeID),
		zap.String("leave_type_id", leaveTypeID),
		zap.String("days", days.String()))
	return out, nil
}

// Adjust applies a signed manual correction through the Adjusted bucket.
// This is the one legitimate road to a negative CurrentBalance.
func (l *Ledger) Adjust(ctx context.Context, employeeID, leaveTypeID string, cycleYear int, delta decimal.Decimal, actorID, note string) (*LeaveBalance, error) {
	if delta.IsZero() {
		return nil, &ValidationError{Field: "delta", Reason: "must not be zero"}
	}
	if !IsHalfStep(delta) {
		return nil, &ValidationError{Field: "delta", Reason: "must be a multiple of 0.5"}
	}

	var out *LeaveBalance
	err := l.store.WithTx(ctx, func(s Store) error {
		b, err := loadOrSeedBalance(ctx, s, employeeID, leaveTypeID, cycleYear, actorID)
		if err != nil {
			return err
		}
		b.Adjusted = b.Adjusted.Add(delta)
		b.Recompute()
		b.UpdatedAt = time.Now().UTC()
		if err := s.SaveBalance(ctx, b); err != nil {
			return err
		}
		out = b
		return auditBalance(ctx, s, AuditBalanceAdjusted, b, delta, actorID, note)
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("balance adjusted",
		zap.String("employee_id", employeeID),
		zap.String("leave_type_id", leaveTypeID),
		zap.Int("cycle_year", cycleYear),
		zap.String("delta", delta.String()))
	return out, nil
}

// =============================================================================
// YEAR-END ROLLOVER
// =============================================================================

// RolloverResult summarizes one rollover run.
type RolloverResult struct {
	FromYear  int
	ToYear    int
	Rolled    int
	Skipped   int
	Carried   decimal.Decimal
	Forfeited decimal.Decimal
}

// Rollover closes a company's cycle year: each row carries
// min(remaining, maxCarryOver) into the next year's CarriedForward and
// forfeits the excess. Rows that already rolled (tracked through the audit
// trail) are skipped, so re-running after a partial failure is safe. Negative
// balances neither carry nor forfeit.
func (l *Ledger) Rollover(ctx context.Context, companyID string, fromYear int, actorID string) (*RolloverResult, error) {
	res := &RolloverResult{FromYear: fromYear, ToYear: fromYear + 1}

	err := l.store.WithTx(ctx, func(s Store) error {
		rows, err := s.ListCompanyBalances(ctx, companyID, fromYear)
		if err != nil {
			return err
		}
		for _, b := range rows {
			rolled, err := alreadyRolled(ctx, s, b)
			if err != nil {
				return err
			}
			if rolled {
				res.Skipped++
				continue
			}

			lt, err := s.GetLeaveType(ctx, b.LeaveTypeID)
			if err != nil {
				return err
			}
			if lt == nil {
				return &NotFoundError{Kind: "leave type", ID: b.LeaveTypeID}
			}

			remaining := b.CurrentBalance
			carry, excess := decimal.Zero, decimal.Zero
			if remaining.GreaterThan(decimal.Zero) {
				carry = decimal.Min(remaining, lt.MaxCarryOver)
				excess = remaining.Sub(carry)
			}

			b.Forfeited = b.Forfeited.Add(excess)
			b.Recompute()
			b.UpdatedAt = time.Now().UTC()
			if err := s.SaveBalance(ctx, b); err != nil {
				return err
			}

			next, err := loadOrSeedBalance(ctx, s, b.EmployeeID, b.LeaveTypeID, fromYear+1, actorID)
			if err != nil {
				return err
			}
			if carry.GreaterThan(decimal.Zero) {
				next.CarriedForward = next.CarriedForward.Add(carry)
				next.Recompute()
				next.UpdatedAt = time.Now().UTC()
				if err := s.SaveBalance(ctx, next); err != nil {
					return err
				}
			}

			note := fmt.Sprintf("carried %s into %d, forfeited %s", carry, fromYear+1, excess)
			if err := auditBalance(ctx, s, AuditYearRolledOver, b, carry, actorID, note); err != nil {
				return err
			}

			res.Rolled++
			res.Carried = res.Carried.Add(carry)
			res.Forfeited = res.Forfeited.Add(excess)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("rollover completed",
		zap.String("company_id", companyID),
		zap.Int("from_year", fromYear),
		zap.Int("rolled", res.Rolled),
		zap.Int("skipped", res.Skipped),
		zap.String("carried", res.Carried.String()),
		zap.String("forfeited", res.Forfeited.String()))
	return res, nil
}

func alreadyRolled(ctx context.Context, s Store, b *LeaveBalance) (bool, error) {
	entries, err := s.ListAudit(ctx, AuditFilter{
		EmployeeID:  b.EmployeeID,
		LeaveTypeID: b.LeaveTypeID,
		CycleYear:   b.CycleYear,
		Action:      AuditYearRolledOver,
		Limit:       1,
	})
	if err != nil {
		return false, err
	}
	return len(entries) > 0, nil
}

// =============================================================================
// SHARED MOVEMENTS - used here and by workflow.go, always inside a transaction
// =============================================================================

// loadOrSeedBalance fetches the row or lazily creates it seeded with the
// type's yearly entitlement. First write of a row audits the seeding.
func loadOrSeedBalance(ctx context.Context, s Store, employeeID, leaveTypeID string, cycleYear int, actorID string) (*LeaveBalance, error) {
	b, err := s.GetBalance(ctx, employeeID, leaveTypeID, cycleYear)
	if err != nil {
		return nil, err
	}
	if b != nil {
		return b, nil
	}

	lt, err := s.GetLeaveType(ctx, leaveTypeID)
	if err != nil {
		return nil, err
	}
	if lt == nil {
		return nil, &NotFoundError{Kind: "leave type", ID: leaveTypeID}
	}

	now := time.Now().UTC()
	b = &LeaveBalance{
		ID:          uuid.NewString(),
		EmployeeID:  employeeID,
		CompanyID:   lt.CompanyID,
		LeaveTypeID: leaveTypeID,
		CycleYear:   cycleYear,
		Accrued:     lt.DefaultDaysPerYear,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	b.Recompute()
	if err := s.SaveBalance(ctx, b); err != nil {
		return nil, err
	}
	if err := auditBalance(ctx, s, AuditBalanceInitialized, b, lt.DefaultDaysPerYear, actorID, "seeded "+lt.Code); err != nil {
		return nil, err
	}
	return b, nil
}

func deductFrom(b *LeaveBalance, days decimal.Decimal) {
	b.Taken = b.Taken.Add(days)
	b.Recompute()
	b.UpdatedAt = time.Now().UTC()
}

// restoreTo clamps Taken at zero; cancelling more than was ever deducted can
// not drive the bucket negative.
func restoreTo(b *LeaveBalance, days decimal.Decimal) {
	b.Taken = decimal.Max(decimal.Zero, b.Taken.Sub(days))
	b.Recompute()
	b.UpdatedAt = time.Now().UTC()
}

func reservePending(b *LeaveBalance, days decimal.Decimal) {
	b.Pending = b.Pending.Add(days)
	b.UpdatedAt = time.Now().UTC()
}

func releasePending(b *LeaveBalance, days decimal.Decimal) {
	b.Pending = decimal.Max(decimal.Zero, b.Pending.Sub(days))
	b.UpdatedAt = time.Now().UTC()
}

func auditBalance(ctx context.Context, s Store, action AuditAction, b *LeaveBalance, delta decimal.Decimal, actorID, note string) error {
	return s.AppendAudit(ctx, AuditEntry{
		ID:          uuid.NewString(),
		At:          time.Now().UTC(),
		ActorID:     actorID,
		Action:      action,
		EmployeeID:  b.EmployeeID,
		LeaveTypeID: b.LeaveTypeID,
		CycleYear:   b.CycleYear,
		Delta:       delta,
		Note:        note,
	})
}

func validateDays(days decimal.Decimal) error {
	if days.LessThanOrEqual(decimal.Zero) {
		return &ValidationError{Field: "days", Reason: "must be positive"}
	}
	if !IsHalfStep(days) {
		return &ValidationError{Field: "days", Reason: "must be a multiple of 0.5"}
	}
	return nil
}
