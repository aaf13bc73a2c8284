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
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const dateLayout = "2006-01-02"

// --- DTOs ---

type CreateAttendanceRequest struct {
	StaffID string          `json:"staff_id" binding:"required"`
	Date    string          `json:"date" binding:"required"` // YYYY-MM-DD
	DateEnd string          `json:"date_end"`                // optional, inclusive
	Code    string          `json:"code" binding:"required"`
	Hours   decimal.Decimal `json:"hours"`
}

type UpdateAttendanceRequest struct {
	Date    string           `json:"date"`
	DateEnd string           `json:"date_end"`
	Code    string           `json:"code"`
	Hours   *decimal.Decimal `json:"hours"`
}

type DeleteAttendanceRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// DayCell is one day of the month grid.
type DayCell struct {
	Code  string          `json:"code"`
	Hours decimal.Decimal `json:"hours"`
}

type TimesheetRow struct {
	StaffID    string          `json:"staff_id"`
	StaffName  string          `json:"staff_name"`
	Days       map[int]DayCell `json:"days"`
	TotalDays  int             `json:"total_days"`
	TotalHours decimal.Decimal `json:"total_hours"`
}

// TimesheetGrid is the per-staff day grid of one month partition, the read
// model the timesheet screen and bulk scheduling consume.
type TimesheetGrid struct {
	Month     int             `json:"month"`
	Year      int             `json:"year"`
	Partition model.Partition `json:"partition"`
	Locked    bool            `json:"locked"`
	Rows      []TimesheetRow  `json:"rows"`
}

// --- Interface ---

// AttendanceService is the attendance ledger: CRUD over per-day/per-range
// tabel marks. Every write consults the lock registry for the owning
// partition and the conflict checker inside the same transaction.
type AttendanceService interface {
	Create(ctx context.Context, req CreateAttendanceRequest, actorID *uuid.UUID) (*model.AttendanceRecord, error)
	Update(ctx context.Context, id string, req UpdateAttendanceRequest, actorID *uuid.UUID) (*model.AttendanceRecord, error)
	Delete(ctx context.Context, id string, reason string, actorID *uuid.UUID) error
	GetByID(ctx context.Context, id string) (*model.AttendanceRecord, error)
	ListByStaffMonth(ctx context.Context, staffID string, month, year, correctionSequence int) ([]model.AttendanceRecord, error)
	MonthGrid(ctx context.Context, month, year, correctionSequence int) (*TimesheetGrid, error)
}

type attendanceService struct {
	attendanceRepo repository.AttendanceRepository
	staffRepo      repository.StaffRepository
	auditRepo      repository.AuditRepository
	txManager      repository.TransactionManager
	locks          LockRegistry
	checker        ConflictChecker
	notifier       Notifier
	clock          clock.Clock
}

func NewAttendanceService(
	attendanceRepo repository.AttendanceRepository,
	staffRepo repository.StaffRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	locks LockRegistry,
	checker ConflictChecker,
	notifier Notifier,
	clk clock.Clock,
) AttendanceService {
	return &attendanceService{
		attendanceRepo: attendanceRepo,
		staffRepo:      staffRepo,
		auditRepo:      auditRepo,
		txManager:      txManager,
		locks:          locks,
		checker:        checker,
		notifier:       notifier,
		clock:          clk,
	}
}

// --- Implementation ---

func parseDay(value string) (time.Time, error) {
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, apperr.Validation("invalid date %q: expected YYYY-MM-DD", value)
	}
	return t, nil
}

func (s *attendanceService) Create(ctx context.Context, req CreateAttendanceRequest, actorID *uuid.UUID) (*model.AttendanceRecord, error) {
	staffID, err := uuid.Parse(req.StaffID)
	if err != nil {
		return nil, apperr.Validation("invalid staff_id: %s", req.StaffID)
	}
	if !model.ValidActivityCode(req.Code) {
		return nil, apperr.Validation("unknown activity code %q", req.Code)
	}
	if req.Hours.IsNegative() {
		return nil, apperr.Validation("hours must not be negative")
	}

	start, err := parseDay(req.Date)
	if err != nil {
		return nil, err
	}
	end := start
	var dateEnd *time.Time
	if req.DateEnd != "" {
		e, err := parseDay(req.DateEnd)
		if err != nil {
			return nil, err
		}
		if e.Before(start) {
			return nil, apperr.Validation("date_end %s precedes date %s", req.DateEnd, req.Date)
		}
		end = e
		dateEnd = &e
	}

	if _, err := s.staffRepo.FindByID(ctx, staffID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("staff", req.StaffID)
		}
		return nil, fmt.Errorf("failed to load staff: %w", err)
	}

	rec := &model.AttendanceRecord{
		StaffID: staffID,
		Date:    start,
		DateEnd: dateEnd,
		Code:    req.Code,
		Hours:   req.Hours,
	}

	// Conflict check and insert share one transaction so two concurrent
	// requests cannot both pass the check for overlapping intervals.
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		locked, err := s.locks.IsMonthLocked(txCtx, int(start.Month()), start.Year())
		if err != nil {
			return err
		}
		if locked { // the interval's own month is sealed
			month, year, err := s.resolveCorrectionMonth(txCtx, start, end)
			if err != nil {
				return err
			}
			seq, err := s.locks.GetOrCreateCorrectionSequence(txCtx, month, year)
			if err != nil {
				return err
			}
			rec.IsCorrection = true
			rec.CorrectionMonth = month
			rec.CorrectionYear = year
			rec.CorrectionSequence = seq
		}

		if err := s.checkConflicts(txCtx, rec, start, end, nil); err != nil {
			return err
		}

		if err := s.attendanceRepo.Create(txCtx, rec); err != nil {
			return fmt.Errorf("failed to create attendance record: %w", err)
		}
		// Snapshot inside the transaction: once the insert commits, the
		// caller must see success.
		if err := s.applyLockSnapshot(txCtx, rec); err != nil {
			return err
		}
		return s.audit(txCtx, actorID, model.ActionCreateAttendance, rec, map[string]interface{}{
			"code": rec.Code, "date": req.Date, "date_end": req.DateEnd,
		})
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Broadcast(Event{
		Type: EventAttendanceChange,
		Data: map[string]interface{}{"staff_id": rec.StaffID.String(), "date": req.Date},
	})
	return rec, nil
}

// resolveCorrectionMonth picks which locked month absorbs a new correction.
// The precedence is fixed: the interval's own month if locked, else the
// current wall-clock month if locked, else the earliest locked month the
// interval touches. Multi-month intervals keep this exact order.
func (s *attendanceService) resolveCorrectionMonth(ctx context.Context, start, end time.Time) (int, int, error) {
	ownMonth, ownYear := int(start.Month()), start.Year()
	locked, err := s.locks.IsMonthLocked(ctx, ownMonth, ownYear)
	if err != nil {
		return 0, 0, err
	}
	if locked {
		return ownMonth, ownYear, nil
	}

	now := s.clock.Now()
	curMonth, curYear := int(now.Month()), now.Year()
	locked, err = s.locks.IsMonthLocked(ctx, curMonth, curYear)
	if err != nil {
		return 0, 0, err
	}
	if locked {
		return curMonth, curYear, nil
	}

	for cursor := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC); !cursor.After(end); cursor = cursor.AddDate(0, 1, 0) {
		m, y := int(cursor.Month()), cursor.Year()
		locked, err = s.locks.IsMonthLocked(ctx, m, y)
		if err != nil {
			return 0, 0, err
		}
		if locked {
			return m, y, nil
		}
	}
	return 0, 0, apperr.Locked("no locked month found for interval %s — %s", start.Format(dateLayout), end.Format(dateLayout))
}

// checkConflicts refuses the write when the candidate interval collides with
// existing marks in the same partition, or — for the workday code — with a
// vacation document covering any of its days.
func (s *attendanceService) checkConflicts(ctx context.Context, rec *model.AttendanceRecord, start, end time.Time, excludeID *uuid.UUID) error {
	hits, err := s.checker.FindAttendanceConflicts(ctx, rec.StaffID, start, end, rec.Partition())
	if err != nil {
		return err
	}
	items := make([]apperr.ConflictItem, 0, len(hits))
	for _, h := range hits {
		if excludeID != nil && h.ID == *excludeID {
			continue
		}
		items = append(items, apperr.ConflictItem{
			Kind:      "attendance",
			ID:        h.ID.String(),
			DateStart: h.Date,
			DateEnd:   h.End(),
			Label:     h.Code,
		})
	}
	if len(items) > 0 {
		return apperr.Conflict(
			fmt.Sprintf("interval %s — %s intersects %d existing record(s)", start.Format(dateLayout), end.Format(dateLayout), len(items)),
			items,
		)
	}

	if rec.Code != model.CodeWorkday {
		return nil
	}
	// A workday cannot land on a day already covered by a vacation document.
	docs, err := s.checker.FindDocumentConflicts(ctx, rec.StaffID, start, end, append(model.TerminalStatuses(), model.StatusDraft), nil)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}
	items = items[:0]
	for _, d := range docs {
		items = append(items, apperr.ConflictItem{
			Kind:      "document",
			ID:        d.ID.String(),
			DateStart: d.DateStart,
			DateEnd:   d.DateEnd,
			Label:     d.Status,
		})
	}
	return apperr.Conflict(
		fmt.Sprintf("workday %s — %s is covered by %d vacation document(s)", start.Format(dateLayout), end.Format(dateLayout), len(items)),
		items,
	)
}

// partitionLocked derives editability from the record's own stored partition,
// never from today: a correction record stays editable exactly while its own
// sequence remains open, regardless of later wall-clock rollovers.
func (s *attendanceService) partitionLocked(ctx context.Context, rec *model.AttendanceRecord) (bool, string, error) {
	if rec.IsCorrection {
		locked, err := s.locks.IsCorrectionLocked(ctx, rec.CorrectionMonth, rec.CorrectionYear, rec.CorrectionSequence)
		if err != nil {
			return false, "", err
		}
		if locked {
			return true, fmt.Sprintf("correction %d of %02d.%d is approved", rec.CorrectionSequence, rec.CorrectionMonth, rec.CorrectionYear), nil
		}
		return false, "", nil
	}

	month, year := int(rec.Date.Month()), rec.Date.Year()
	locked, err := s.locks.IsMonthLocked(ctx, month, year)
	if err != nil {
		return false, "", err
	}
	if locked {
		return true, fmt.Sprintf("timesheet %02d.%d is locked", month, year), nil
	}
	return false, "", nil
}

func (s *attendanceService) applyLockSnapshot(ctx context.Context, rec *model.AttendanceRecord) error {
	locked, reason, err := s.partitionLocked(ctx, rec)
	if err != nil {
		return err
	}
	rec.IsBlocked = locked
	rec.BlockedReason = reason
	return nil
}

func (s *attendanceService) Update(ctx context.Context, id string, req UpdateAttendanceRequest, actorID *uuid.UUID) (*model.AttendanceRecord, error) {
	recID, err := uuid.Parse(id)
	if err != nil {
		return nil, apperr.Validation("invalid attendance record id: %s", id)
	}

	var rec *model.AttendanceRecord
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		rec, err = s.attendanceRepo.FindByID(txCtx, recID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("attendance record", id)
			}
			return fmt.Errorf("failed to load attendance record: %w", err)
		}

		locked, reason, err := s.partitionLocked(txCtx, rec)
		if err != nil {
			return err
		}
		if locked {
			return apperr.Locked("%s", reason)
		}

		if req.Date != "" {
			d, err := parseDay(req.Date)
			if err != nil {
				return err
			}
			rec.Date = d
		}
		if req.DateEnd != "" {
			e, err := parseDay(req.DateEnd)
			if err != nil {
				return err
			}
			rec.DateEnd = &e
		}
		if req.Code != "" {
			if !model.ValidActivityCode(req.Code) {
				return apperr.Validation("unknown activity code %q", req.Code)
			}
			rec.Code = req.Code
		}
		if req.Hours != nil {
			if req.Hours.IsNegative() {
				return apperr.Validation("hours must not be negative")
			}
			rec.Hours = *req.Hours
		}
		if rec.DateEnd != nil && rec.DateEnd.Before(rec.Date) {
			return apperr.Validation("date_end precedes date")
		}

		if err := s.checkConflicts(txCtx, rec, rec.Date, rec.End(), &rec.ID); err != nil {
			return err
		}
		if err := s.attendanceRepo.Update(txCtx, rec); err != nil {
			return fmt.Errorf("failed to update attendance record: %w", err)
		}
		if err := s.applyLockSnapshot(txCtx, rec); err != nil {
			return err
		}
		return s.audit(txCtx, actorID, model.ActionUpdateAttendance, rec, map[string]interface{}{
			"code": rec.Code, "date": rec.Date.Format(dateLayout),
		})
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Broadcast(Event{
		Type: EventAttendanceChange,
		Data: map[string]interface{}{"staff_id": rec.StaffID.String(), "date": rec.Date.Format(dateLayout)},
	})
	return rec, nil
}

func (s *attendanceService) Delete(ctx context.Context, id string, reason string, actorID *uuid.UUID) error {
	recID, err := uuid.Parse(id)
	if err != nil {
		return apperr.Validation("invalid attendance record id: %s", id)
	}
	if reason == "" {
		return apperr.Validation("a deletion reason is required")
	}

	var rec *model.AttendanceRecord
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		rec, err = s.attendanceRepo.FindByID(txCtx, recID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("attendance record", id)
			}
			return fmt.Errorf("failed to load attendance record: %w", err)
		}

		locked, lockReason, err := s.partitionLocked(txCtx, rec)
		if err != nil {
			return err
		}
		if locked {
			return apperr.Locked("%s", lockReason)
		}

		// The reason outlives the row: the audit entry is written in the
		// same transaction, before the hard delete.
		if err := s.audit(txCtx, actorID, model.ActionDeleteAttendance, rec, map[string]interface{}{
			"reason":   reason,
			"code":     rec.Code,
			"date":     rec.Date.Format(dateLayout),
			"date_end": rec.End().Format(dateLayout),
		}); err != nil {
			return err
		}
		if err := s.attendanceRepo.Delete(txCtx, rec.ID); err != nil {
			return fmt.Errorf("failed to delete attendance record: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.notifier.Broadcast(Event{
		Type: EventAttendanceChange,
		Data: map[string]interface{}{"staff_id": rec.StaffID.String(), "date": rec.Date.Format(dateLayout)},
	})
	return nil
}

func (s *attendanceService) GetByID(ctx context.Context, id string) (*model.AttendanceRecord, error) {
	recID, err := uuid.Parse(id)
	if err != nil {
		return nil, apperr.Validation("invalid attendance record id: %s", id)
	}
	rec, err := s.attendanceRepo.FindByID(ctx, recID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("attendance record", id)
		}
		return nil, fmt.Errorf("failed to load attendance record: %w", err)
	}
	if err := s.applyLockSnapshot(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *attendanceService) ListByStaffMonth(ctx context.Context, staffID string, month, year, correctionSequence int) ([]model.AttendanceRecord, error) {
	id, err := uuid.Parse(staffID)
	if err != nil {
		return nil, apperr.Validation("invalid staff_id: %s", staffID)
	}
	if err := validateMonth(month, year); err != nil {
		return nil, err
	}

	partition := model.MainPartition()
	if correctionSequence > 0 {
		partition = model.CorrectionPartition(month, year, correctionSequence)
	}
	recs, err := s.attendanceRepo.ListByStaffMonth(ctx, id, month, year, partition)
	if err != nil {
		return nil, fmt.Errorf("failed to list attendance: %w", err)
	}
	for i := range recs {
		if err := s.applyLockSnapshot(ctx, &recs[i]); err != nil {
			return nil, err
		}
	}
	return recs, nil
}

func (s *attendanceService) MonthGrid(ctx context.Context, month, year, correctionSequence int) (*TimesheetGrid, error) {
	if err := validateMonth(month, year); err != nil {
		return nil, err
	}

	partition := model.MainPartition()
	locked, err := s.locks.IsMonthLocked(ctx, month, year)
	if err != nil {
		return nil, err
	}
	if correctionSequence > 0 {
		partition = model.CorrectionPartition(month, year, correctionSequence)
		locked, err = s.locks.IsCorrectionLocked(ctx, month, year, correctionSequence)
		if err != nil {
			return nil, err
		}
	}

	recs, err := s.attendanceRepo.ListMonth(ctx, month, year, partition)
	if err != nil {
		return nil, fmt.Errorf("failed to load month records: %w", err)
	}

	first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)

	rows := make(map[uuid.UUID]*TimesheetRow)
	order := make([]uuid.UUID, 0)
	for _, rec := range recs {
		row, ok := rows[rec.StaffID]
		if !ok {
			name := ""
			if rec.Staff != nil {
				name = rec.Staff.FullName()
			}
			row = &TimesheetRow{
				StaffID:    rec.StaffID.String(),
				StaffName:  name,
				Days:       make(map[int]DayCell),
				TotalHours: decimal.Zero,
			}
			rows[rec.StaffID] = row
			order = append(order, rec.StaffID)
		}

		from, to := rec.Date, rec.End()
		if from.Before(first) {
			from = first
		}
		if to.After(last) {
			to = last
		}
		for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
			row.Days[d.Day()] = DayCell{Code: rec.Code, Hours: rec.Hours}
			row.TotalDays++
			row.TotalHours = row.TotalHours.Add(rec.Hours)
		}
	}

	grid := &TimesheetGrid{Month: month, Year: year, Partition: partition, Locked: locked}
	for _, id := range order {
		grid.Rows = append(grid.Rows, *rows[id])
	}
	return grid, nil
}

func (s *attendanceService) audit(ctx context.Context, actorID *uuid.UUID, action string, rec *model.AttendanceRecord, details map[string]interface{}) error {
	payload, _ := json.Marshal(details)
	entry := &model.AuditLog{
		UserID:     actorID,
		Action:     action,
		EntityID:   rec.ID.String(),
		EntityName: rec.Code,
		Details:    string(payload),
	}
	if err := s.auditRepo.Log(ctx, entry); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}
