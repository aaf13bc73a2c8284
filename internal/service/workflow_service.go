package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"tabel/internal/clock"
	"tabel/internal/model"
	"tabel/internal/repository"
	"tabel/pkg/apperr"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// --- DTOs ---

type CreateDocumentRequest struct {
	StaffID   string `json:"staff_id" binding:"required"`
	Type      string `json:"type" binding:"required"`
	DateStart string `json:"date_start" binding:"required"` // YYYY-MM-DD
	DateEnd   string `json:"date_end" binding:"required"`
	Approvers int    `json:"approvers"` // number of approver steps, default 1
}

type CompleteStepRequest struct {
	Comment string `json:"comment"`
}

// --- Interface ---

// WorkflowService runs the document approval pipeline: an ordered step set
// whose completion drives the derived status, and whose rector step writes
// through into the attendance ledger.
type WorkflowService interface {
	CreateDocument(ctx context.Context, req CreateDocumentRequest, actorID *uuid.UUID) (*model.Document, error)
	GetDocument(ctx context.Context, id string) (*model.Document, error)
	ListDocuments(ctx context.Context, filter repository.DocumentFilter) ([]model.Document, int64, error)
	CompleteStep(ctx context.Context, docID, stepID, comment string, actorID *uuid.UUID) (*model.Document, error)
	ClearStep(ctx context.Context, docID, stepID string, actorID *uuid.UUID) (*model.Document, error)
	RollbackToDraft(ctx context.Context, docID string, actorID *uuid.UUID) (*model.Document, error)
	RenderDocument(ctx context.Context, docID string) (string, error)
}

type workflowService struct {
	documentRepo   repository.DocumentRepository
	attendanceRepo repository.AttendanceRepository
	staffRepo      repository.StaffRepository
	auditRepo      repository.AuditRepository
	txManager      repository.TransactionManager
	locks          LockRegistry
	checker        ConflictChecker
	notifier       Notifier
	renderer       DocumentRenderer
	declension     DeclensionService
	clock          clock.Clock
}

func NewWorkflowService(
	documentRepo repository.DocumentRepository,
	attendanceRepo repository.AttendanceRepository,
	staffRepo repository.StaffRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	locks LockRegistry,
	checker ConflictChecker,
	notifier Notifier,
	renderer DocumentRenderer,
	declension DeclensionService,
	clk clock.Clock,
) WorkflowService {
	return &workflowService{
		documentRepo:   documentRepo,
		attendanceRepo: attendanceRepo,
		staffRepo:      staffRepo,
		auditRepo:      auditRepo,
		txManager:      txManager,
		locks:          locks,
		checker:        checker,
		notifier:       notifier,
		renderer:       renderer,
		declension:     declension,
		clock:          clk,
	}
}

// buildSteps lays out the pipeline as a tagged ordered list so a variable
// number of approver entries composes uniformly with the fixed steps.
func buildSteps(approvers int) []model.DocumentStep {
	if approvers < 1 {
		approvers = 1
	}
	steps := []model.DocumentStep{
		{StepID: model.StepApplicant},
		{StepID: model.StepApproval},
		{StepID: model.StepDepartmentHead},
	}
	for i := 0; i < approvers; i++ {
		steps = append(steps, model.DocumentStep{StepID: model.StepApprover})
	}
	steps = append(steps,
		model.DocumentStep{StepID: model.StepRector},
		model.DocumentStep{StepID: model.StepScanned},
		model.DocumentStep{StepID: model.StepTabel},
	)
	for i := range steps {
		steps[i].Position = i
	}
	return steps
}

func (s *workflowService) CreateDocument(ctx context.Context, req CreateDocumentRequest, actorID *uuid.UUID) (*model.Document, error) {
	staffID, err := uuid.Parse(req.StaffID)
	if err != nil {
		return nil, apperr.Validation("invalid staff_id: %s", req.StaffID)
	}
	if _, ok := model.ActivityCodeForDocType(req.Type); !ok {
		return nil, apperr.Validation("unknown document type %q", req.Type)
	}
	start, err := parseDay(req.DateStart)
	if err != nil {
		return nil, err
	}
	end, err := parseDay(req.DateEnd)
	if err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, apperr.Validation("date_end %s precedes date_start %s", req.DateEnd, req.DateStart)
	}
	if _, err := s.staffRepo.FindByID(ctx, staffID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("staff", req.StaffID)
		}
		return nil, fmt.Errorf("failed to load staff: %w", err)
	}

	doc := &model.Document{
		StaffID:   staffID,
		Type:      req.Type,
		DateStart: start,
		DateEnd:   end,
		Status:    model.StatusDraft,
		Steps:     buildSteps(req.Approvers),
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		hits, err := s.checker.FindDocumentConflicts(txCtx, staffID, start, end, model.TerminalStatuses(), nil)
		if err != nil {
			return err
		}
		if len(hits) > 0 {
			items := make([]apperr.ConflictItem, 0, len(hits))
			for _, h := range hits {
				items = append(items, apperr.ConflictItem{
					Kind:      "document",
					ID:        h.ID.String(),
					DateStart: h.DateStart,
					DateEnd:   h.DateEnd,
					Label:     h.Status,
				})
			}
			return apperr.Conflict(
				fmt.Sprintf("interval %s — %s intersects %d existing document(s)", req.DateStart, req.DateEnd, len(items)),
				items,
			)
		}

		if err := s.documentRepo.Create(txCtx, doc); err != nil {
			return fmt.Errorf("failed to create document: %w", err)
		}
		return s.audit(txCtx, actorID, model.ActionCreateDocument, doc, map[string]interface{}{
			"type": req.Type, "date_start": req.DateStart, "date_end": req.DateEnd,
		})
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *workflowService) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	docID, err := uuid.Parse(id)
	if err != nil {
		return nil, apperr.Validation("invalid document id: %s", id)
	}
	doc, err := s.documentRepo.FindByID(ctx, docID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("document", id)
		}
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	return doc, nil
}

func (s *workflowService) ListDocuments(ctx context.Context, filter repository.DocumentFilter) ([]model.Document, int64, error) {
	return s.documentRepo.List(ctx, filter)
}

func (s *workflowService) CompleteStep(ctx context.Context, docID, stepID, comment string, actorID *uuid.UUID) (*model.Document, error) {
	return s.mutateStep(ctx, docID, stepID, actorID, model.ActionCompleteStep, func(txCtx context.Context, doc *model.Document, step *model.DocumentStep) error {
		wasCompleted := step.Completed
		step.Completed = true
		// Idempotent re-completion keeps the original timestamp.
		if step.CompletedAt == nil {
			now := s.clock.Now()
			step.CompletedAt = &now
		}
		step.Comment = comment
		if err := s.documentRepo.UpdateStep(txCtx, step); err != nil {
			return fmt.Errorf("failed to update step: %w", err)
		}

		// Rector coupling: the first time the rector signs, write through
		// into the attendance ledger unless the tabel step already closed.
		if step.StepID == model.StepRector && !wasCompleted && !doc.StepCompleted(model.StepTabel) {
			if err := s.materialize(txCtx, doc, actorID); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *workflowService) ClearStep(ctx context.Context, docID, stepID string, actorID *uuid.UUID) (*model.Document, error) {
	// Un-signing never retracts ledger rows already materialized by a
	// previous rector completion. The asymmetry is intentional.
	return s.mutateStep(ctx, docID, stepID, actorID, model.ActionClearStep, func(txCtx context.Context, doc *model.Document, step *model.DocumentStep) error {
		step.Completed = false
		step.CompletedAt = nil
		if err := s.documentRepo.UpdateStep(txCtx, step); err != nil {
			return fmt.Errorf("failed to update step: %w", err)
		}
		return nil
	})
}

// mutateStep loads the document, applies fn to the addressed step, recomputes
// the derived status and blocked snapshot, and persists — all in one
// transaction. Status is never settable directly.
func (s *workflowService) mutateStep(ctx context.Context, docID, stepID string, actorID *uuid.UUID, action string, fn func(context.Context, *model.Document, *model.DocumentStep) error) (*model.Document, error) {
	id, err := uuid.Parse(docID)
	if err != nil {
		return nil, apperr.Validation("invalid document id: %s", docID)
	}
	sid, err := uuid.Parse(stepID)
	if err != nil {
		return nil, apperr.Validation("invalid step id: %s", stepID)
	}

	var doc *model.Document
	var prevStatus string
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		doc, err = s.documentRepo.FindByID(txCtx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("document", docID)
			}
			return fmt.Errorf("failed to load document: %w", err)
		}
		prevStatus = doc.Status

		var step *model.DocumentStep
		for i := range doc.Steps {
			if doc.Steps[i].ID == sid {
				step = &doc.Steps[i]
				break
			}
		}
		if step == nil {
			return apperr.NotFound("document step", stepID)
		}

		if err := fn(txCtx, doc, step); err != nil {
			return err
		}

		doc.Status = model.DeriveStatus(doc.Steps)
		if err := s.refreshBlocked(txCtx, doc); err != nil {
			return err
		}
		if err := s.documentRepo.Update(txCtx, doc); err != nil {
			return fmt.Errorf("failed to update document: %w", err)
		}
		return s.audit(txCtx, actorID, action, doc, map[string]interface{}{
			"step": step.StepID, "status": doc.Status,
		})
	})
	if err != nil {
		return nil, err
	}

	if doc.Status != prevStatus {
		s.notifier.Broadcast(Event{
			Type:       EventDocumentStatus,
			DocumentID: doc.ID.String(),
			Status:     doc.Status,
		})
	}
	return doc, nil
}

// materialize writes one attendance row per calendar day of the document's
// interval. Against a locked month it opens or reuses a correction sequence
// and stamps the document with the tuple; against an open month it writes to
// the main ledger and closes the tabel step. Days already materialized for
// this document are skipped, which makes re-entrant triggers harmless.
func (s *workflowService) materialize(ctx context.Context, doc *model.Document, actorID *uuid.UUID) error {
	code, ok := model.ActivityCodeForDocType(doc.Type)
	if !ok {
		return apperr.Validation("document type %q has no activity code", doc.Type)
	}

	month, year := int(doc.DateStart.Month()), doc.DateStart.Year()
	locked, err := s.locks.IsMonthLocked(ctx, month, year)
	if err != nil {
		return err
	}

	partition := model.MainPartition()
	if locked {
		seq, err := s.locks.GetOrCreateCorrectionSequence(ctx, month, year)
		if err != nil {
			return err
		}
		doc.IsCorrection = true
		doc.CorrectionMonth = month
		doc.CorrectionYear = year
		doc.CorrectionSequence = seq
		partition = model.CorrectionPartition(month, year, seq)
	}

	// Foreign marks on those days abort the whole write-through; rows this
	// document created earlier are not conflicts.
	hits, err := s.checker.FindAttendanceConflicts(ctx, doc.StaffID, doc.DateStart, doc.DateEnd, partition)
	if err != nil {
		return err
	}
	items := make([]apperr.ConflictItem, 0, len(hits))
	for _, h := range hits {
		if h.DocumentID != nil && *h.DocumentID == doc.ID {
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
		return apperr.Conflict("document interval intersects existing attendance records", items)
	}

	created := 0
	for day := doc.DateStart; !day.After(doc.DateEnd); day = day.AddDate(0, 0, 1) {
		_, err := s.attendanceRepo.FindForDocumentDay(ctx, doc.ID, day, partition)
		if err == nil {
			continue // already materialized — expected on re-entrant triggers
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to probe materialized day: %w", err)
		}

		rec := &model.AttendanceRecord{
			StaffID:            doc.StaffID,
			Date:               day,
			Code:               code,
			IsCorrection:       partition.IsCorrection,
			CorrectionMonth:    partition.Month,
			CorrectionYear:     partition.Year,
			CorrectionSequence: partition.Sequence,
			DocumentID:         &doc.ID,
		}
		if err := s.attendanceRepo.Create(ctx, rec); err != nil {
			return fmt.Errorf("failed to materialize day %s: %w", day.Format(dateLayout), err)
		}
		created++
	}

	if !locked {
		if tabel := doc.Step(model.StepTabel); tabel != nil {
			tabel.Completed = true
			if tabel.CompletedAt == nil {
				now := s.clock.Now()
				tabel.CompletedAt = &now
			}
			if err := s.documentRepo.UpdateStep(ctx, tabel); err != nil {
				return fmt.Errorf("failed to close tabel step: %w", err)
			}
		}
	}

	return s.audit(ctx, actorID, model.ActionMaterializeDocument, doc, map[string]interface{}{
		"days_created":  created,
		"is_correction": partition.IsCorrection,
		"sequence":      partition.Sequence,
	})
}

// refreshBlocked recomputes the document's blocked snapshot: a document is
// blocked once its ledger artifacts live in a sealed partition.
func (s *workflowService) refreshBlocked(ctx context.Context, doc *model.Document) error {
	doc.IsBlocked = false
	doc.BlockedReason = ""

	if doc.IsCorrection {
		locked, err := s.locks.IsCorrectionLocked(ctx, doc.CorrectionMonth, doc.CorrectionYear, doc.CorrectionSequence)
		if err != nil {
			return err
		}
		if locked {
			doc.IsBlocked = true
			doc.BlockedReason = fmt.Sprintf("correction %d of %02d.%d is approved", doc.CorrectionSequence, doc.CorrectionMonth, doc.CorrectionYear)
		}
		return nil
	}

	if doc.StepCompleted(model.StepTabel) {
		month, year := int(doc.DateStart.Month()), doc.DateStart.Year()
		locked, err := s.locks.IsMonthLocked(ctx, month, year)
		if err != nil {
			return err
		}
		if locked {
			doc.IsBlocked = true
			doc.BlockedReason = fmt.Sprintf("timesheet %02d.%d is locked", month, year)
		}
	}
	return nil
}

func (s *workflowService) RollbackToDraft(ctx context.Context, docID string, actorID *uuid.UUID) (*model.Document, error) {
	id, err := uuid.Parse(docID)
	if err != nil {
		return nil, apperr.Validation("invalid document id: %s", docID)
	}

	var doc *model.Document
	var prevStatus string
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		doc, err = s.documentRepo.FindByID(txCtx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("document", docID)
			}
			return fmt.Errorf("failed to load document: %w", err)
		}
		prevStatus = doc.Status

		if err := s.refreshBlocked(txCtx, doc); err != nil {
			return err
		}
		if doc.IsBlocked {
			return apperr.Locked("cannot roll back: %s", doc.BlockedReason)
		}

		// Clears steps and derived references only; materialized ledger
		// rows stay in place.
		for i := range doc.Steps {
			doc.Steps[i].Completed = false
			doc.Steps[i].CompletedAt = nil
			doc.Steps[i].Comment = ""
			if err := s.documentRepo.UpdateStep(txCtx, &doc.Steps[i]); err != nil {
				return fmt.Errorf("failed to clear step: %w", err)
			}
		}
		doc.IsCorrection = false
		doc.CorrectionMonth = 0
		doc.CorrectionYear = 0
		doc.CorrectionSequence = 0
		doc.Status = model.StatusDraft
		if err := s.documentRepo.Update(txCtx, doc); err != nil {
			return fmt.Errorf("failed to update document: %w", err)
		}
		return s.audit(txCtx, actorID, model.ActionRollbackDocument, doc, nil)
	})
	if err != nil {
		return nil, err
	}

	if doc.Status != prevStatus {
		s.notifier.Broadcast(Event{
			Type:       EventDocumentStatus,
			DocumentID: doc.ID.String(),
			Status:     doc.Status,
		})
	}
	return doc, nil
}

// RenderDocument asks the external renderer for a printable artifact. The
// staff name is declined to the genitive case for the order text.
func (s *workflowService) RenderDocument(ctx context.Context, docID string) (string, error) {
	doc, err := s.GetDocument(ctx, docID)
	if err != nil {
		return "", err
	}

	name := ""
	if doc.Staff != nil {
		name = doc.Staff.FullName()
	}
	declined, err := s.declension.Decline(name, CaseGenitive)
	if err != nil {
		declined = name
	}

	path, err := s.renderer.Render(ctx, doc, map[string]interface{}{
		"staff_name": declined,
		"type":       doc.Type,
		"date_start": doc.DateStart.Format(dateLayout),
		"date_end":   doc.DateEnd.Format(dateLayout),
		"status":     doc.Status,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render document: %w", err)
	}
	return path, nil
}

func (s *workflowService) audit(ctx context.Context, actorID *uuid.UUID, action string, doc *model.Document, details map[string]interface{}) error {
	payload, _ := json.Marshal(details)
	entry := &model.AuditLog{
		UserID:     actorID,
		Action:     action,
		EntityID:   doc.ID.String(),
		EntityName: doc.Type,
		Details:    string(payload),
	}
	if err := s.auditRepo.Log(ctx, entry); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}
