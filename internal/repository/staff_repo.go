package repository

import (
	"context"

	"tabel/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StaffRepository is data access for the staff registry.
type StaffRepository interface {
	Create(ctx context.Context, staff *model.Staff) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Staff, error)
	List(ctx context.Context, department string, page, limit int) ([]model.Staff, int64, error)
	Update(ctx context.Context, staff *model.Staff) error
}

type staffRepository struct {
	db *gorm.DB
}

func NewStaffRepository(db *gorm.DB) StaffRepository {
	return &staffRepository{db: db}
}

func (r *staffRepository) Create(ctx context.Context, staff *model.Staff) error {
	return GetDB(ctx, r.db).Create(staff).Error
}

func (r *staffRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Staff, error) {
	var staff model.Staff
	if err := GetDB(ctx, r.db).First(&staff, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &staff, nil
}

func (r *staffRepository) List(ctx context.Context, department string, page, limit int) ([]model.Staff, int64, error) {
	db := GetDB(ctx, r.db)
	query := db.Model(&model.Staff{})
	if department != "" {
		query = query.Where("department = ?", department)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	var staff []model.Staff
	if err := query.Order("last_name, first_name").Offset(offset).Limit(limit).Find(&staff).Error; err != nil {
		return nil, 0, err
	}
	return staff, total, nil
}

func (r *staffRepository) Update(ctx context.Context, staff *model.Staff) error {
	return GetDB(ctx, r.db).Save(staff).Error
}
