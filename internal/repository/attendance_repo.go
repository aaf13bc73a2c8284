package repository

import (
	"context"
	"time"

	"tabel/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AttendanceRepository is data access for tabel marks. Overlap queries use
// the inclusive-endpoint test and are always partition-scoped: a correction
// overlay never competes with the main ledger for the same day.
type AttendanceRepository interface {
	Create(ctx context.Context, rec *model.AttendanceRecord) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.AttendanceRecord, error)
	Update(ctx context.Context, rec *model.AttendanceRecord) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindOverlapping(ctx context.Context, staffID uuid.UUID, start, end time.Time, partition model.Partition, excludeCodes []string) ([]model.AttendanceRecord, error)
	FindForDocumentDay(ctx context.Context, documentID uuid.UUID, day time.Time, partition model.Partition) (*model.AttendanceRecord, error)
	ListByStaffMonth(ctx context.Context, staffID uuid.UUID, month, year int, partition model.Partition) ([]model.AttendanceRecord, error)
	ListMonth(ctx context.Context, month, year int, partition model.Partition) ([]model.AttendanceRecord, error)
}

type attendanceRepository struct {
	db *gorm.DB
}

func NewAttendanceRepository(db *gorm.DB) AttendanceRepository {
	return &attendanceRepository{db: db}
}

// partitionScope narrows a query to one timesheet partition.
func partitionScope(q *gorm.DB, p model.Partition) *gorm.DB {
	if !p.IsCorrection {
		return q.Where("is_correction = ?", false)
	}
	return q.Where(
		"is_correction = ? AND correction_month = ? AND correction_year = ? AND correction_sequence = ?",
		true, p.Month, p.Year, p.Sequence,
	)
}

func (r *attendanceRepository) Create(ctx context.Context, rec *model.AttendanceRecord) error {
	return GetDB(ctx, r.db).Create(rec).Error
}

func (r *attendanceRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.AttendanceRecord, error) {
	var rec model.AttendanceRecord
	if err := GetDB(ctx, r.db).First(&rec, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *attendanceRepository) Update(ctx context.Context, rec *model.AttendanceRecord) error {
	return GetDB(ctx, r.db).Save(rec).Error
}

func (r *attendanceRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.AttendanceRecord{}).Error
}

func (r *attendanceRepository) FindOverlapping(ctx context.Context, staffID uuid.UUID, start, end time.Time, partition model.Partition, excludeCodes []string) ([]model.AttendanceRecord, error) {
	q := GetDB(ctx, r.db).Model(&model.AttendanceRecord{}).
		Where("staff_id = ?", staffID).
		Where("date <= ? AND COALESCE(date_end, date) >= ?", end, start)
	q = partitionScope(q, partition)
	if len(excludeCodes) > 0 {
		q = q.Where("code NOT IN ?", excludeCodes)
	}

	var recs []model.AttendanceRecord
	if err := q.Order("date").Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

func (r *attendanceRepository) FindForDocumentDay(ctx context.Context, documentID uuid.UUID, day time.Time, partition model.Partition) (*model.AttendanceRecord, error) {
	q := GetDB(ctx, r.db).
		Where("document_id = ?", documentID).
		Where("date <= ? AND COALESCE(date_end, date) >= ?", day, day)
	q = partitionScope(q, partition)

	var rec model.AttendanceRecord
	if err := q.First(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *attendanceRepository) ListByStaffMonth(ctx context.Context, staffID uuid.UUID, month, year int, partition model.Partition) ([]model.AttendanceRecord, error) {
	first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)

	q := GetDB(ctx, r.db).Model(&model.AttendanceRecord{}).
		Where("staff_id = ?", staffID).
		Where("date <= ? AND COALESCE(date_end, date) >= ?", last, first)
	q = partitionScope(q, partition)

	var recs []model.AttendanceRecord
	if err := q.Order("date").Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

func (r *attendanceRepository) ListMonth(ctx context.Context, month, year int, partition model.Partition) ([]model.AttendanceRecord, error) {
	first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)

	q := GetDB(ctx, r.db).Model(&model.AttendanceRecord{}).
		Preload("Staff").
		Where("date <= ? AND COALESCE(date_end, date) >= ?", last, first)
	q = partitionScope(q, partition)

	var recs []model.AttendanceRecord
	if err := q.Order("staff_id, date").Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}
