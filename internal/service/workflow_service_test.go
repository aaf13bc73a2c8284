package service

import (
	"context"
	"testing"
	"time"

	"tabel/internal/clock"
	"tabel/internal/model"
	"tabel/pkg/apperr"

	"github.com/google/uuid"
)

type stubRenderer struct {
	calls int
	path  string
}

func (r *stubRenderer) Render(context.Context, *model.Document, map[string]interface{}) (string, error) {
	r.calls++
	return r.path, nil
}

type workflowFixture struct {
	service  WorkflowService
	registry LockRegistry
	docRepo  *memDocumentRepo
	attRepo  *memAttendanceRepo
	audit    *memAuditRepo
	notifier *recordingNotifier
	renderer *stubRenderer
	staffID  uuid.UUID
}

func newWorkflowFixture(t *testing.T) *workflowFixture {
	t.Helper()
	attRepo := &memAttendanceRepo{}
	lockRepo := &memLockRepo{}
	docRepo := &memDocumentRepo{}
	staffRepo := &memStaffRepo{}
	auditRepo := &memAuditRepo{}
	notifier := &recordingNotifier{}
	renderer := &stubRenderer{path: "rendered/order.html"}
	clk := clock.Fixed(testNow)

	staff := &model.Staff{
		LastName:   "Франко",
		FirstName:  "Іван",
		Position:   "професор",
		Department: "кафедра філології",
		HiredAt:    time.Date(2018, 9, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := staffRepo.Create(context.Background(), staff); err != nil {
		t.Fatal(err)
	}

	registry := NewLockRegistry(lockRepo, auditRepo, passthroughTx{}, NoopNotifier(), clk)
	checker := NewConflictChecker(attRepo, docRepo)
	svc := NewWorkflowService(
		docRepo, attRepo, staffRepo, auditRepo, passthroughTx{},
		registry, checker, notifier, renderer, IdentityDeclension(), clk,
	)

	return &workflowFixture{
		service:  svc,
		registry: registry,
		docRepo:  docRepo,
		attRepo:  attRepo,
		audit:    auditRepo,
		notifier: notifier,
		renderer: renderer,
		staffID:  staff.ID,
	}
}

func (f *workflowFixture) createDoc(t *testing.T, docType, start, end string) *model.Document {
	t.Helper()
	doc, err := f.service.CreateDocument(context.Background(), CreateDocumentRequest{
		StaffID:   f.staffID.String(),
		Type:      docType,
		DateStart: start,
		DateEnd:   end,
	}, nil)
	if err != nil {
		t.Fatalf("CreateDocument(%s %s..%s): %v", docType, start, end, err)
	}
	return doc
}

// completeStep finds the step row by step id and completes it.
func (f *workflowFixture) completeStep(t *testing.T, doc *model.Document, stepID string) *model.Document {
	t.Helper()
	step := doc.Step(stepID)
	if step == nil {
		t.Fatalf("document has no %q step", stepID)
	}
	updated, err := f.service.CompleteStep(context.Background(), doc.ID.String(), step.ID.String(), "", nil)
	if err != nil {
		t.Fatalf("CompleteStep(%s): %v", stepID, err)
	}
	return updated
}

func TestCreateDocumentBuildsOrderedPipeline(t *testing.T) {
	f := newWorkflowFixture(t)

	doc := f.createDoc(t, model.DocTypeVacationAnnual, "2026-03-10", "2026-03-12")
	if doc.Status != model.StatusDraft {
		t.Fatalf("new document status = %q, want DRAFT", doc.Status)
	}

	want := []string{
		model.StepApplicant, model.StepApproval, model.StepDepartmentHead,
		model.StepApprover, model.StepRector, model.StepScanned, model.StepTabel,
	}
	if len(doc.Steps) != len(want) {
		t.Fatalf("got %d steps, want %d", len(doc.Steps), len(want))
	}
	for i, stepID := range want {
		if doc.Steps[i].StepID != stepID {
			t.Errorf("step[%d] = %q, want %q", i, doc.Steps[i].StepID, stepID)
		}
		if doc.Steps[i].Position != i {
			t.Errorf("step[%d] position = %d, want %d", i, doc.Steps[i].Position, i)
		}
	}
}

func TestCreateDocumentRejectsOverlap(t *testing.T) {
	f := newWorkflowFixture(t)

	f.createDoc(t, model.DocTypeVacationAnnual, "2026-03-10", "2026-03-14")

	_, err := f.service.CreateDocument(context.Background(), CreateDocumentRequest{
		StaffID:   f.staffID.String(),
		Type:      model.DocTypeBusinessTrip,
		DateStart: "2026-03-14",
		DateEnd:   "2026-03-18",
	}, nil)
	if err == nil {
		t.Fatal("overlapping document must be refused")
	}
	if apperr.HTTPStatus(err) != 409 {
		t.Fatalf("want conflict, got %v", err)
	}
}

func TestStatusFollowsHighestCompletedStep(t *testing.T) {
	f := newWorkflowFixture(t)
	doc := f.createDoc(t, model.DocTypeVacationAnnual, "2026-04-06", "2026-04-10")

	doc = f.completeStep(t, doc, model.StepApplicant)
	if doc.Status != model.StatusSubmitted {
		t.Fatalf("status = %q, want SUBMITTED", doc.Status)
	}

	doc = f.completeStep(t, doc, model.StepDepartmentHead)
	if doc.Status != model.StatusEndorsed {
		t.Fatalf("status = %q, want ENDORSED", doc.Status)
	}

	// Clearing the higher step drops the status back; the status is always
	// recomputed, never stored independently.
	head := doc.Step(model.StepDepartmentHead)
	doc, err := f.service.ClearStep(context.Background(), doc.ID.String(), head.ID.String(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Status != model.StatusSubmitted {
		t.Fatalf("status after clear = %q, want SUBMITTED", doc.Status)
	}
}

func TestRectorCompletionMaterializesIntoOpenMonth(t *testing.T) {
	f := newWorkflowFixture(t)
	doc := f.createDoc(t, model.DocTypeVacationAnnual, "2026-03-10", "2026-03-12")

	doc = f.completeStep(t, doc, model.StepRector)

	recs, err := f.attRepo.ListByStaffMonth(context.Background(), f.staffID, 3, 2026, model.MainPartition())
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d ledger rows, want 3 (one per day)", len(recs))
	}
	for _, rec := range recs {
		if rec.Code != model.CodeVacationAnnual {
			t.Errorf("row code = %q, want %q", rec.Code, model.CodeVacationAnnual)
		}
		if rec.DocumentID == nil || *rec.DocumentID != doc.ID {
			t.Error("ledger row must link back to the document")
		}
		if rec.IsCorrection {
			t.Error("open-month materialization must hit the main ledger")
		}
	}

	// Open month: the tabel step closes automatically with the write-through.
	if !doc.StepCompleted(model.StepTabel) {
		t.Fatal("tabel step must auto-complete in an open month")
	}
}

func TestRectorRecompletionDoesNotDuplicateDays(t *testing.T) {
	f := newWorkflowFixture(t)
	ctx := context.Background()
	doc := f.createDoc(t, model.DocTypeVacationAnnual, "2026-03-10", "2026-03-12")

	doc = f.completeStep(t, doc, model.StepRector)
	rector := doc.Step(model.StepRector)

	doc, err := f.service.ClearStep(ctx, doc.ID.String(), rector.ID.String(), nil)
	if err != nil {
		t.Fatal(err)
	}
	// Clearing did not close the tabel step back up, but its rows survive.
	recs, _ := f.attRepo.ListByStaffMonth(ctx, f.staffID, 3, 2026, model.MainPartition())
	if len(recs) != 3 {
		t.Fatalf("un-signing retracted ledger rows: %d left, want 3", len(recs))
	}

	f.completeStep(t, doc, model.StepRector)
	recs, _ = f.attRepo.ListByStaffMonth(ctx, f.staffID, 3, 2026, model.MainPartition())
	if len(recs) != 3 {
		t.Fatalf("re-signing duplicated ledger rows: %d, want 3", len(recs))
	}
}

func TestMaterializeIntoLockedMonthStampsCorrectionTuple(t *testing.T) {
	f := newWorkflowFixture(t)
	doc := f.createDoc(t, model.DocTypeBusinessTrip, "2026-02-10", "2026-02-11")

	doc = f.completeStep(t, doc, model.StepRector)

	if !doc.IsCorrection {
		t.Fatal("locked-month materialization must stamp the correction tuple")
	}
	if doc.CorrectionMonth != 2 || doc.CorrectionYear != 2026 || doc.CorrectionSequence != 1 {
		t.Fatalf("tuple = %d/%d seq %d, want 2/2026 seq 1",
			doc.CorrectionMonth, doc.CorrectionYear, doc.CorrectionSequence)
	}

	partition := model.CorrectionPartition(2, 2026, 1)
	recs, err := f.attRepo.ListByStaffMonth(context.Background(), f.staffID, 2, 2026, partition)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d correction rows, want 2", len(recs))
	}

	// The correction pathway leaves the tabel step to the operator.
	if doc.StepCompleted(model.StepTabel) {
		t.Fatal("tabel step must stay open for correction materialization")
	}
}

func TestRollbackRefusedWhileCorrectionSealed(t *testing.T) {
	f := newWorkflowFixture(t)
	ctx := context.Background()
	doc := f.createDoc(t, model.DocTypeVacationUnpaid, "2026-02-10", "2026-02-11")

	doc = f.completeStep(t, doc, model.StepRector)
	if _, err := f.registry.ConfirmCorrectionApproval(ctx, 2, 2026, 1, uuid.New()); err != nil {
		t.Fatal(err)
	}

	_, err := f.service.RollbackToDraft(ctx, doc.ID.String(), nil)
	if apperr.HTTPStatus(err) != 423 {
		t.Fatalf("want locked error, got %v", err)
	}

	// The refusal must leave the document untouched.
	reloaded, findErr := f.docRepo.FindByID(ctx, doc.ID)
	if findErr != nil {
		t.Fatal(findErr)
	}
	if !reloaded.StepCompleted(model.StepRector) {
		t.Fatal("refused rollback must not clear steps")
	}
	if !reloaded.IsCorrection {
		t.Fatal("refused rollback must not drop the correction tuple")
	}
}

func TestRollbackClearsStepsButKeepsLedgerRows(t *testing.T) {
	f := newWorkflowFixture(t)
	ctx := context.Background()
	doc := f.createDoc(t, model.DocTypeVacationAnnual, "2026-03-10", "2026-03-12")

	doc = f.completeStep(t, doc, model.StepApplicant)
	doc = f.completeStep(t, doc, model.StepRector)

	doc, err := f.service.RollbackToDraft(ctx, doc.ID.String(), nil)
	if err != nil {
		t.Fatalf("RollbackToDraft: %v", err)
	}
	if doc.Status != model.StatusDraft {
		t.Fatalf("status = %q, want DRAFT", doc.Status)
	}
	for _, step := range doc.Steps {
		if step.Completed || step.CompletedAt != nil {
			t.Errorf("step %q not cleared by rollback", step.StepID)
		}
	}

	// Materialized rows are never retracted.
	recs, _ := f.attRepo.ListByStaffMonth(ctx, f.staffID, 3, 2026, model.MainPartition())
	if len(recs) != 3 {
		t.Fatalf("rollback retracted ledger rows: %d left, want 3", len(recs))
	}
}

func TestMaterializeRefusedOverForeignMarks(t *testing.T) {
	f := newWorkflowFixture(t)
	ctx := context.Background()
	doc := f.createDoc(t, model.DocTypeVacationAnnual, "2026-03-10", "2026-03-12")

	// A sick-leave mark from another source occupies one of the days.
	foreign := &model.AttendanceRecord{
		StaffID: f.staffID,
		Date:    time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC),
		Code:    model.CodeSickLeave,
	}
	if err := f.attRepo.Create(ctx, foreign); err != nil {
		t.Fatal(err)
	}

	rector := doc.Step(model.StepRector)
	_, err := f.service.CompleteStep(ctx, doc.ID.String(), rector.ID.String(), "", nil)
	if apperr.HTTPStatus(err) != 409 {
		t.Fatalf("want conflict, got %v", err)
	}
}

func TestStatusChangeBroadcasts(t *testing.T) {
	f := newWorkflowFixture(t)
	doc := f.createDoc(t, model.DocTypeVacationAnnual, "2026-04-06", "2026-04-10")

	f.completeStep(t, doc, model.StepApplicant)

	if len(f.notifier.events) != 1 {
		t.Fatalf("got %d events, want 1", len(f.notifier.events))
	}
	evt := f.notifier.events[0]
	if evt.Type != EventDocumentStatus || evt.Status != model.StatusSubmitted {
		t.Fatalf("event = %+v, want document_status SUBMITTED", evt)
	}
}

func TestRenderDocumentUsesRenderer(t *testing.T) {
	f := newWorkflowFixture(t)
	doc := f.createDoc(t, model.DocTypeVacationAnnual, "2026-03-10", "2026-03-12")

	path, err := f.service.RenderDocument(context.Background(), doc.ID.String())
	if err != nil {
		t.Fatalf("RenderDocument: %v", err)
	}
	if path != f.renderer.path {
		t.Fatalf("path = %q, want %q", path, f.renderer.path)
	}
	if f.renderer.calls != 1 {
		t.Fatalf("renderer called %d times, want 1", f.renderer.calls)
	}
}
