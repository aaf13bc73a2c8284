package repository

import (
	"context"
	"fmt"

	"tabel/internal/model"

	"gorm.io/gorm"
)

// MonthRef is one (month, year) pair with correction overlays.
type MonthRef struct {
	Month int `json:"month"`
	Year  int `json:"year"`
}

// LockRepository is data access for timesheet approval records.
type LockRepository interface {
	Create(ctx context.Context, rec *model.LockRecord) error
	Update(ctx context.Context, rec *model.LockRecord) error
	FindMain(ctx context.Context, month, year int) (*model.LockRecord, error)
	FindCorrection(ctx context.Context, month, year, sequence int) (*model.LockRecord, error)
	FindLatestCorrection(ctx context.Context, month, year int) (*model.LockRecord, error)
	ListCorrectionMonths(ctx context.Context) ([]MonthRef, error)
	// AcquireSequenceLock serializes concurrent sequence allocation for one
	// (month, year) pair. Must be called inside a transaction; the lock is
	// released on commit or rollback.
	AcquireSequenceLock(ctx context.Context, month, year int) error
}

type lockRepository struct {
	db *gorm.DB
}

func NewLockRepository(db *gorm.DB) LockRepository {
	return &lockRepository{db: db}
}

func (r *lockRepository) Create(ctx context.Context, rec *model.LockRecord) error {
	return GetDB(ctx, r.db).Create(rec).Error
}

func (r *lockRepository) Update(ctx context.Context, rec *model.LockRecord) error {
	return GetDB(ctx, r.db).Save(rec).Error
}

func (r *lockRepository) FindMain(ctx context.Context, month, year int) (*model.LockRecord, error) {
	var rec model.LockRecord
	err := GetDB(ctx, r.db).
		Where("month = ? AND year = ? AND is_correction = ?", month, year, false).
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *lockRepository) FindCorrection(ctx context.Context, month, year, sequence int) (*model.LockRecord, error) {
	var rec model.LockRecord
	err := GetDB(ctx, r.db).
		Where("is_correction = ? AND correction_month = ? AND correction_year = ? AND correction_sequence = ?",
			true, month, year, sequence).
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *lockRepository) FindLatestCorrection(ctx context.Context, month, year int) (*model.LockRecord, error) {
	var rec model.LockRecord
	err := GetDB(ctx, r.db).
		Where("is_correction = ? AND correction_month = ? AND correction_year = ?", true, month, year).
		Order("correction_sequence DESC").
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *lockRepository) ListCorrectionMonths(ctx context.Context) ([]MonthRef, error) {
	var refs []MonthRef
	err := GetDB(ctx, r.db).Model(&model.LockRecord{}).
		Select("DISTINCT correction_month AS month, correction_year AS year").
		Where("is_correction = ?", true).
		Order("year DESC, month DESC").
		Scan(&refs).Error
	if err != nil {
		return nil, err
	}
	return refs, nil
}

func (r *lockRepository) AcquireSequenceLock(ctx context.Context, month, year int) error {
	key := fmt.Sprintf("tabel-correction-%02d-%d", month, year)
	return GetDB(ctx, r.db).Exec("SELECT pg_advisory_xact_lock(hashtext(?))", key).Error
}
