package service

import (
	"context"
	"fmt"
	"time"

	"tabel/internal/model"
	"tabel/internal/repository"

	"github.com/google/uuid"
)

// ConflictChecker answers pure interval-overlap queries against existing
// attendance records and vacation documents. It must be consulted, and its
// result honored, before any ledger insertion: a hit always refuses the
// insert — overlapping ranges are never trimmed or merged automatically.
type ConflictChecker interface {
	// FindAttendanceConflicts scans one partition for marks intersecting
	// [start, end]. The ordinary-workday code never conflicts and is always
	// excluded from the scan.
	FindAttendanceConflicts(ctx context.Context, staffID uuid.UUID, start, end time.Time, partition model.Partition) ([]model.AttendanceRecord, error)
	// FindDocumentConflicts scans vacation documents intersecting the
	// interval, skipping the caller-selected statuses and optionally one
	// document (the candidate itself).
	FindDocumentConflicts(ctx context.Context, staffID uuid.UUID, start, end time.Time, excludeStatuses []string, excludeDocID *uuid.UUID) ([]model.Document, error)
}

type conflictChecker struct {
	attendanceRepo repository.AttendanceRepository
	documentRepo   repository.DocumentRepository
}

func NewConflictChecker(attendanceRepo repository.AttendanceRepository, documentRepo repository.DocumentRepository) ConflictChecker {
	return &conflictChecker{attendanceRepo: attendanceRepo, documentRepo: documentRepo}
}

func (c *conflictChecker) FindAttendanceConflicts(ctx context.Context, staffID uuid.UUID, start, end time.Time, partition model.Partition) ([]model.AttendanceRecord, error) {
	recs, err := c.attendanceRepo.FindOverlapping(ctx, staffID, start, end, partition, []string{model.CodeWorkday})
	if err != nil {
		return nil, fmt.Errorf("failed to scan attendance overlaps: %w", err)
	}
	return recs, nil
}

func (c *conflictChecker) FindDocumentConflicts(ctx context.Context, staffID uuid.UUID, start, end time.Time, excludeStatuses []string, excludeDocID *uuid.UUID) ([]model.Document, error) {
	docs, err := c.documentRepo.FindOverlapping(ctx, staffID, start, end, excludeStatuses, excludeDocID)
	if err != nil {
		return nil, fmt.Errorf("failed to scan document overlaps: %w", err)
	}
	return docs, nil
}
