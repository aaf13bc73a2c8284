package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tabel/internal/model"
	"tabel/pkg/apperr"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// --- DTOs ---

type GenerateWorkdaysRequest struct {
	Month    int             `json:"month" binding:"required"`
	Year     int             `json:"year" binding:"required"`
	StaffIDs []string        `json:"staff_ids" binding:"required"`
	Hours    decimal.Decimal `json:"hours"` // per workday, default 8
}

// SkippedDay explains why a generated day was not written.
type SkippedDay struct {
	StaffID string `json:"staff_id"`
	Date    string `json:"date"`
	Reason  string `json:"reason"`
}

type GenerateWorkdaysReport struct {
	Created int          `json:"created"`
	Skipped []SkippedDay `json:"skipped"`
}

// FreeInterval is a candidate vacation range with no competing records.
type FreeInterval struct {
	DateStart time.Time `json:"date_start"`
	DateEnd   time.Time `json:"date_end"`
	Days      int       `json:"days"`
}

// --- Interface ---

// ScheduleService is a downstream consumer of the ledger and the conflict
// checker: bulk workday generation for a month, and free-interval search for
// vacation planning. It never writes around the ledger's own checks.
type ScheduleService interface {
	GenerateWorkdays(ctx context.Context, req GenerateWorkdaysRequest, actorID *uuid.UUID) (*GenerateWorkdaysReport, error)
	VacationSlots(ctx context.Context, staffID string, from, to string, minDays int) ([]FreeInterval, error)
}

type scheduleService struct {
	attendance AttendanceService
	checker    ConflictChecker
}

func NewScheduleService(attendance AttendanceService, checker ConflictChecker) ScheduleService {
	return &scheduleService{attendance: attendance, checker: checker}
}

// --- Implementation ---

func (s *scheduleService) GenerateWorkdays(ctx context.Context, req GenerateWorkdaysRequest, actorID *uuid.UUID) (*GenerateWorkdaysReport, error) {
	if err := validateMonth(req.Month, req.Year); err != nil {
		return nil, err
	}
	if len(req.StaffIDs) == 0 {
		return nil, apperr.Validation("staff_ids must not be empty")
	}
	hours := req.Hours
	if hours.IsZero() {
		hours = decimal.NewFromInt(8)
	}

	report := &GenerateWorkdaysReport{Skipped: []SkippedDay{}}
	first := time.Date(req.Year, time.Month(req.Month), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)

	for _, staffID := range req.StaffIDs {
		for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
			if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
				continue
			}

			_, err := s.attendance.Create(ctx, CreateAttendanceRequest{
				StaffID: staffID,
				Date:    day.Format(dateLayout),
				Code:    model.CodeWorkday,
				Hours:   hours,
			}, actorID)
			if err == nil {
				report.Created++
				continue
			}

			// Conflicting or sealed days are reported, not fatal; anything
			// else aborts the run.
			var conflict *apperr.ConflictError
			var lockErr *apperr.LockedError
			if errors.As(err, &conflict) || errors.As(err, &lockErr) {
				report.Skipped = append(report.Skipped, SkippedDay{
					StaffID: staffID,
					Date:    day.Format(dateLayout),
					Reason:  err.Error(),
				})
				continue
			}
			return nil, fmt.Errorf("bulk generation failed at %s for %s: %w", day.Format(dateLayout), staffID, err)
		}
	}
	return report, nil
}

func (s *scheduleService) VacationSlots(ctx context.Context, staffID string, from, to string, minDays int) ([]FreeInterval, error) {
	id, err := uuid.Parse(staffID)
	if err != nil {
		return nil, apperr.Validation("invalid staff_id: %s", staffID)
	}
	start, err := parseDay(from)
	if err != nil {
		return nil, err
	}
	end, err := parseDay(to)
	if err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, apperr.Validation("range end precedes range start")
	}
	if minDays < 1 {
		minDays = 1
	}

	busy := make(map[string]bool)
	markBusy := func(a, b time.Time) {
		if a.Before(start) {
			a = start
		}
		if b.After(end) {
			b = end
		}
		for d := a; !d.After(b); d = d.AddDate(0, 0, 1) {
			busy[d.Format(dateLayout)] = true
		}
	}

	recs, err := s.checker.FindAttendanceConflicts(ctx, id, start, end, model.MainPartition())
	if err != nil {
		return nil, err
	}
	for _, r := range recs {
		markBusy(r.Date, r.End())
	}

	docs, err := s.checker.FindDocumentConflicts(ctx, id, start, end, model.TerminalStatuses(), nil)
	if err != nil {
		return nil, err
	}
	for _, d := range docs {
		markBusy(d.DateStart, d.DateEnd)
	}

	var slots []FreeInterval
	var runStart time.Time
	runDays := 0
	flush := func(endOfRun time.Time) {
		if runDays >= minDays {
			slots = append(slots, FreeInterval{DateStart: runStart, DateEnd: endOfRun, Days: runDays})
		}
		runDays = 0
	}
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if busy[d.Format(dateLayout)] {
			if runDays > 0 {
				flush(d.AddDate(0, 0, -1))
			}
			continue
		}
		if runDays == 0 {
			runStart = d
		}
		runDays++
	}
	if runDays > 0 {
		flush(end)
	}
	return slots, nil
}
