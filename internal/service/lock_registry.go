package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tabel/internal/clock"
	"tabel/internal/model"
	"tabel/internal/repository"
	"tabel/pkg/apperr"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LockRegistry tracks the approval state of main and correction timesheets
// and allocates correction sequence numbers. A month is locked either by the
// calendar (the following month has begun) or by explicit approval; both are
// terminal. Corrections lock only by approval.
type LockRegistry interface {
	IsMonthLocked(ctx context.Context, month, year int) (bool, error)
	IsCorrectionLocked(ctx context.Context, month, year, sequence int) (bool, error)
	// GetOrCreateCorrectionSequence returns the open sequence for the pair,
	// creating sequence 1 (or highest+1 after a seal) when none is open.
	// Runs under an advisory transaction lock so concurrent callers cannot
	// allocate duplicate numbers.
	GetOrCreateCorrectionSequence(ctx context.Context, month, year int) (int, error)
	// GenerateTimesheet creates the main lock record that ConfirmApproval
	// later seals. Approving a never-generated month is an error.
	GenerateTimesheet(ctx context.Context, month, year int, actorID *uuid.UUID) (*model.LockRecord, error)
	ConfirmApproval(ctx context.Context, month, year int, approverID uuid.UUID) (*model.LockRecord, error)
	ConfirmCorrectionApproval(ctx context.Context, month, year, sequence int, approverID uuid.UUID) (*model.LockRecord, error)
	// CorrectionMonths returns up to the 4 most recent locked months having
	// at least one correction, newest first.
	CorrectionMonths(ctx context.Context) ([]repository.MonthRef, error)
}

type lockRegistry struct {
	lockRepo  repository.LockRepository
	auditRepo repository.AuditRepository
	txManager repository.TransactionManager
	notifier  Notifier
	clock     clock.Clock
}

func NewLockRegistry(lockRepo repository.LockRepository, auditRepo repository.AuditRepository, txManager repository.TransactionManager, notifier Notifier, clk clock.Clock) LockRegistry {
	return &lockRegistry{
		lockRepo:  lockRepo,
		auditRepo: auditRepo,
		txManager: txManager,
		notifier:  notifier,
		clock:     clk,
	}
}

func validateMonth(month, year int) error {
	if month < 1 || month > 12 {
		return apperr.Validation("invalid month %d: must be 1..12", month)
	}
	if year < 2000 || year > 2100 {
		return apperr.Validation("invalid year %d", year)
	}
	return nil
}

func (s *lockRegistry) IsMonthLocked(ctx context.Context, month, year int) (bool, error) {
	if err := validateMonth(month, year); err != nil {
		return false, err
	}

	// Cheap calendar predicate first: the month is locked the instant the
	// next month begins.
	nextMonth := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	if !s.clock.Now().Before(nextMonth) {
		return true, nil
	}

	rec, err := s.lockRepo.FindMain(ctx, month, year)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read lock record for %02d.%d: %w", month, year, err)
	}
	return rec.IsApproved, nil
}

func (s *lockRegistry) IsCorrectionLocked(ctx context.Context, month, year, sequence int) (bool, error) {
	if err := validateMonth(month, year); err != nil {
		return false, err
	}

	rec, err := s.lockRepo.FindCorrection(ctx, month, year, sequence)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read correction %d of %02d.%d: %w", sequence, month, year, err)
	}
	return rec.IsApproved, nil
}

func (s *lockRegistry) GetOrCreateCorrectionSequence(ctx context.Context, month, year int) (int, error) {
	if err := validateMonth(month, year); err != nil {
		return 0, err
	}

	var sequence int
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		// Serialize concurrent allocations for this (month, year); the
		// read-latest-then-decide below is a race without it.
		if err := s.lockRepo.AcquireSequenceLock(txCtx, month, year); err != nil {
			return fmt.Errorf("failed to acquire sequence lock: %w", err)
		}

		latest, err := s.lockRepo.FindLatestCorrection(txCtx, month, year)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to read latest correction: %w", err)
		}

		if latest != nil && !latest.IsApproved {
			// An open sequence is reused until it is sealed.
			sequence = latest.CorrectionSequence
			return nil
		}

		sequence = 1
		if latest != nil {
			sequence = latest.CorrectionSequence + 1
		}

		rec := &model.LockRecord{
			Month:              month,
			Year:               year,
			IsCorrection:       true,
			CorrectionMonth:    month,
			CorrectionYear:     year,
			CorrectionSequence: sequence,
			GeneratedAt:        s.clock.Now(),
		}
		if err := s.lockRepo.Create(txCtx, rec); err != nil {
			return fmt.Errorf("failed to open correction %d of %02d.%d: %w", sequence, month, year, err)
		}

		details, _ := json.Marshal(map[string]interface{}{
			"month": month, "year": year, "sequence": sequence,
		})
		audit := &model.AuditLog{
			Action:     model.ActionOpenCorrection,
			EntityID:   rec.ID.String(),
			EntityName: rec.Describe(),
			Details:    string(details),
		}
		if err := s.auditRepo.Log(txCtx, audit); err != nil {
			return fmt.Errorf("failed to write audit log: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return sequence, nil
}

func (s *lockRegistry) GenerateTimesheet(ctx context.Context, month, year int, actorID *uuid.UUID) (*model.LockRecord, error) {
	if err := validateMonth(month, year); err != nil {
		return nil, err
	}

	var rec *model.LockRecord
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		existing, err := s.lockRepo.FindMain(txCtx, month, year)
		if err == nil {
			rec = existing
			return apperr.Validation("timesheet %02d.%d is already generated", month, year)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to read lock record: %w", err)
		}

		rec = &model.LockRecord{
			Month:       month,
			Year:        year,
			GeneratedAt: s.clock.Now(),
		}
		if err := s.lockRepo.Create(txCtx, rec); err != nil {
			return fmt.Errorf("failed to create timesheet %02d.%d: %w", month, year, err)
		}

		details, _ := json.Marshal(map[string]interface{}{"month": month, "year": year})
		audit := &model.AuditLog{
			UserID:     actorID,
			Action:     model.ActionGenerateTimesheet,
			EntityID:   rec.ID.String(),
			EntityName: rec.Describe(),
			Details:    string(details),
		}
		if err := s.auditRepo.Log(txCtx, audit); err != nil {
			return fmt.Errorf("failed to write audit log: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *lockRegistry) ConfirmApproval(ctx context.Context, month, year int, approverID uuid.UUID) (*model.LockRecord, error) {
	if err := validateMonth(month, year); err != nil {
		return nil, err
	}
	return s.seal(ctx, approverID, model.ActionApproveTimesheet, func(txCtx context.Context) (*model.LockRecord, error) {
		rec, err := s.lockRepo.FindMain(txCtx, month, year)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apperr.NotFound("timesheet", fmt.Sprintf("%02d.%d (generate it first)", month, year))
			}
			return nil, fmt.Errorf("failed to read lock record: %w", err)
		}
		return rec, nil
	})
}

func (s *lockRegistry) ConfirmCorrectionApproval(ctx context.Context, month, year, sequence int, approverID uuid.UUID) (*model.LockRecord, error) {
	if err := validateMonth(month, year); err != nil {
		return nil, err
	}
	return s.seal(ctx, approverID, model.ActionApproveCorrection, func(txCtx context.Context) (*model.LockRecord, error) {
		rec, err := s.lockRepo.FindCorrection(txCtx, month, year, sequence)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apperr.NotFound("correction", fmt.Sprintf("%d of %02d.%d", sequence, month, year))
			}
			return nil, fmt.Errorf("failed to read correction record: %w", err)
		}
		return rec, nil
	})
}

// seal marks a lock record approved exactly once. Approval is terminal:
// a sealed record is never reopened.
func (s *lockRegistry) seal(ctx context.Context, approverID uuid.UUID, action string, find func(context.Context) (*model.LockRecord, error)) (*model.LockRecord, error) {
	var rec *model.LockRecord
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		rec, err = find(txCtx)
		if err != nil {
			return err
		}
		if rec.IsApproved {
			return apperr.Validation("%s is already approved", rec.Describe())
		}

		now := s.clock.Now()
		rec.IsApproved = true
		rec.ApprovedAt = &now
		rec.ApprovedBy = &approverID
		if err := s.lockRepo.Update(txCtx, rec); err != nil {
			return fmt.Errorf("failed to approve %s: %w", rec.Describe(), err)
		}

		details, _ := json.Marshal(map[string]interface{}{
			"month": rec.Month, "year": rec.Year,
			"is_correction": rec.IsCorrection, "sequence": rec.CorrectionSequence,
		})
		audit := &model.AuditLog{
			UserID:     &approverID,
			Action:     action,
			EntityID:   rec.ID.String(),
			EntityName: rec.Describe(),
			Details:    string(details),
		}
		if err := s.auditRepo.Log(txCtx, audit); err != nil {
			return fmt.Errorf("failed to write audit log: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Broadcast(Event{
		Type: EventTimesheetApproved,
		Data: map[string]interface{}{"timesheet": rec.Describe()},
	})
	return rec, nil
}

func (s *lockRegistry) CorrectionMonths(ctx context.Context) ([]repository.MonthRef, error) {
	refs, err := s.lockRepo.ListCorrectionMonths(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list correction months: %w", err)
	}

	result := make([]repository.MonthRef, 0, 4)
	for _, ref := range refs {
		locked, err := s.IsMonthLocked(ctx, ref.Month, ref.Year)
		if err != nil {
			return nil, err
		}
		if !locked {
			continue
		}
		result = append(result, ref)
		if len(result) == 4 {
			break
		}
	}
	return result, nil
}
