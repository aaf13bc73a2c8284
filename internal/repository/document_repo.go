package repository

import (
	"context"
	"time"

	"tabel/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DocumentFilter narrows document listings.
type DocumentFilter struct {
	StaffID *uuid.UUID
	Status  string
	Type    string
	Page    int
	Limit   int
}

// DocumentRepository is data access for vacation/absence documents and their
// workflow steps.
type DocumentRepository interface {
	Create(ctx context.Context, doc *model.Document) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Document, error)
	Update(ctx context.Context, doc *model.Document) error
	UpdateStep(ctx context.Context, step *model.DocumentStep) error
	List(ctx context.Context, filter DocumentFilter) ([]model.Document, int64, error)
	FindOverlapping(ctx context.Context, staffID uuid.UUID, start, end time.Time, excludeStatuses []string, excludeDocID *uuid.UUID) ([]model.Document, error)
}

type documentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

func (r *documentRepository) Create(ctx context.Context, doc *model.Document) error {
	return GetDB(ctx, r.db).Create(doc).Error
}

func (r *documentRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Document, error) {
	var doc model.Document
	err := GetDB(ctx, r.db).
		Preload("Staff").
		Preload("Steps", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		First(&doc, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *documentRepository) Update(ctx context.Context, doc *model.Document) error {
	return GetDB(ctx, r.db).Omit("Steps", "Staff").Save(doc).Error
}

func (r *documentRepository) UpdateStep(ctx context.Context, step *model.DocumentStep) error {
	return GetDB(ctx, r.db).Save(step).Error
}

func (r *documentRepository) List(ctx context.Context, filter DocumentFilter) ([]model.Document, int64, error) {
	db := GetDB(ctx, r.db)
	query := db.Model(&model.Document{})
	if filter.StaffID != nil {
		query = query.Where("staff_id = ?", *filter.StaffID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	offset := (filter.Page - 1) * filter.Limit

	var docs []model.Document
	err := query.
		Preload("Staff").
		Preload("Steps", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		Order("created_at DESC").
		Offset(offset).
		Limit(filter.Limit).
		Find(&docs).Error
	if err != nil {
		return nil, 0, err
	}
	return docs, total, nil
}

func (r *documentRepository) FindOverlapping(ctx context.Context, staffID uuid.UUID, start, end time.Time, excludeStatuses []string, excludeDocID *uuid.UUID) ([]model.Document, error) {
	q := GetDB(ctx, r.db).Model(&model.Document{}).
		Where("staff_id = ?", staffID).
		Where("date_start <= ? AND date_end >= ?", end, start)
	if len(excludeStatuses) > 0 {
		q = q.Where("status NOT IN ?", excludeStatuses)
	}
	if excludeDocID != nil {
		q = q.Where("id <> ?", *excludeDocID)
	}

	var docs []model.Document
	if err := q.Order("date_start").Find(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}
