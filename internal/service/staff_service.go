package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"tabel/internal/model"
	"tabel/internal/repository"
	"tabel/pkg/apperr"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CreateStaffRequest struct {
	LastName   string `json:"last_name" binding:"required"`
	FirstName  string `json:"first_name" binding:"required"`
	MiddleName string `json:"middle_name"`
	Position   string `json:"position" binding:"required"`
	Department string `json:"department" binding:"required"`
	HiredAt    string `json:"hired_at" binding:"required"` // YYYY-MM-DD
}

type UpdateStaffRequest struct {
	LastName   *string `json:"last_name"`
	FirstName  *string `json:"first_name"`
	MiddleName *string `json:"middle_name"`
	Position   *string `json:"position"`
	Department *string `json:"department"`
	FiredAt    *string `json:"fired_at"` // YYYY-MM-DD, empty string clears it
}

// StaffService manages the employee registry the timesheet is built over.
type StaffService interface {
	Create(ctx context.Context, req CreateStaffRequest, actorID *uuid.UUID) (*model.Staff, error)
	GetByID(ctx context.Context, id string) (*model.Staff, error)
	List(ctx context.Context, department string, page, limit int) ([]model.Staff, int64, error)
	Update(ctx context.Context, id string, req UpdateStaffRequest) (*model.Staff, error)
}

type staffService struct {
	staffRepo repository.StaffRepository
	auditRepo repository.AuditRepository
	txManager repository.TransactionManager
}

func NewStaffService(staffRepo repository.StaffRepository, auditRepo repository.AuditRepository, txManager repository.TransactionManager) StaffService {
	return &staffService{staffRepo: staffRepo, auditRepo: auditRepo, txManager: txManager}
}

func (s *staffService) Create(ctx context.Context, req CreateStaffRequest, actorID *uuid.UUID) (*model.Staff, error) {
	hiredAt, err := time.Parse("2006-01-02", req.HiredAt)
	if err != nil {
		return nil, apperr.Validation("invalid hired_at date, expected YYYY-MM-DD")
	}

	staff := &model.Staff{
		LastName:   req.LastName,
		FirstName:  req.FirstName,
		MiddleName: req.MiddleName,
		Position:   req.Position,
		Department: req.Department,
		HiredAt:    hiredAt,
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.staffRepo.Create(txCtx, staff); err != nil {
			return fmt.Errorf("failed to create staff: %w", err)
		}
		details, _ := json.Marshal(map[string]string{
			"department": staff.Department,
			"position":   staff.Position,
		})
		return s.auditRepo.Log(txCtx, &model.AuditLog{
			UserID:     actorID,
			Action:     model.ActionCreateStaff,
			EntityID:   staff.ID.String(),
			EntityName: staff.FullName(),
			Details:    string(details),
		})
	})
	if err != nil {
		return nil, err
	}
	return staff, nil
}

func (s *staffService) GetByID(ctx context.Context, id string) (*model.Staff, error) {
	staffID, err := uuid.Parse(id)
	if err != nil {
		return nil, apperr.Validation("invalid staff id")
	}
	staff, err := s.staffRepo.FindByID(ctx, staffID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperr.NotFound("staff", id)
		}
		return nil, err
	}
	return staff, nil
}

func (s *staffService) List(ctx context.Context, department string, page, limit int) ([]model.Staff, int64, error) {
	return s.staffRepo.List(ctx, department, page, limit)
}

func (s *staffService) Update(ctx context.Context, id string, req UpdateStaffRequest) (*model.Staff, error) {
	staff, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.LastName != nil {
		staff.LastName = *req.LastName
	}
	if req.FirstName != nil {
		staff.FirstName = *req.FirstName
	}
	if req.MiddleName != nil {
		staff.MiddleName = *req.MiddleName
	}
	if req.Position != nil {
		staff.Position = *req.Position
	}
	if req.Department != nil {
		staff.Department = *req.Department
	}
	if req.FiredAt != nil {
		if *req.FiredAt == "" {
			staff.FiredAt = nil
		} else {
			firedAt, err := time.Parse("2006-01-02", *req.FiredAt)
			if err != nil {
				return nil, apperr.Validation("invalid fired_at date, expected YYYY-MM-DD")
			}
			staff.FiredAt = &firedAt
		}
	}

	if err := s.staffRepo.Update(ctx, staff); err != nil {
		return nil, fmt.Errorf("failed to update staff: %w", err)
	}
	return staff, nil
}
