package service

import (
	"context"
	"testing"
	"time"

	"tabel/internal/clock"
	"tabel/internal/model"
	"tabel/pkg/apperr"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type attendanceFixture struct {
	service  AttendanceService
	registry LockRegistry
	attRepo  *memAttendanceRepo
	lockRepo *memLockRepo
	docRepo  *memDocumentRepo
	audit    *memAuditRepo
	notifier *recordingNotifier
	staffID  uuid.UUID
}

func newAttendanceFixture(t *testing.T) *attendanceFixture {
	t.Helper()
	attRepo := &memAttendanceRepo{}
	lockRepo := &memLockRepo{}
	docRepo := &memDocumentRepo{}
	staffRepo := &memStaffRepo{}
	auditRepo := &memAuditRepo{}
	notifier := &recordingNotifier{}
	clk := clock.Fixed(testNow)

	staff := &model.Staff{
		LastName:   "Шевченко",
		FirstName:  "Тарас",
		Position:   "доцент",
		Department: "кафедра історії",
		HiredAt:    time.Date(2020, 9, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := staffRepo.Create(context.Background(), staff); err != nil {
		t.Fatal(err)
	}

	registry := NewLockRegistry(lockRepo, auditRepo, passthroughTx{}, NoopNotifier(), clk)
	checker := NewConflictChecker(attRepo, docRepo)
	svc := NewAttendanceService(attRepo, staffRepo, auditRepo, passthroughTx{}, registry, checker, notifier, clk)

	return &attendanceFixture{
		service:  svc,
		registry: registry,
		attRepo:  attRepo,
		lockRepo: lockRepo,
		docRepo:  docRepo,
		audit:    auditRepo,
		notifier: notifier,
		staffID:  staff.ID,
	}
}

func (f *attendanceFixture) create(t *testing.T, date, dateEnd, code string) *model.AttendanceRecord {
	t.Helper()
	rec, err := f.service.Create(context.Background(), CreateAttendanceRequest{
		StaffID: f.staffID.String(),
		Date:    date,
		DateEnd: dateEnd,
		Code:    code,
		Hours:   decimal.NewFromInt(8),
	}, nil)
	if err != nil {
		t.Fatalf("Create(%s, %s, %s): %v", date, dateEnd, code, err)
	}
	return rec
}

func TestCreateInOpenMonthStaysInMainLedger(t *testing.T) {
	f := newAttendanceFixture(t)

	rec := f.create(t, "2026-03-10", "", model.CodeVacationAnnual)
	if rec.IsCorrection {
		t.Fatal("open-month record must land in the main ledger")
	}
	if rec.IsBlocked {
		t.Fatalf("open-month record must not be blocked: %s", rec.BlockedReason)
	}
}

func TestCreateInLockedMonthOpensCorrection(t *testing.T) {
	f := newAttendanceFixture(t)

	// February 2026 is calendar-locked under the fixed clock.
	rec := f.create(t, "2026-02-10", "2026-02-12", model.CodeSickLeave)
	if !rec.IsCorrection {
		t.Fatal("locked-month record must be a correction")
	}
	if rec.CorrectionMonth != 2 || rec.CorrectionYear != 2026 || rec.CorrectionSequence != 1 {
		t.Fatalf("correction tuple = %d/%d seq %d, want 2/2026 seq 1",
			rec.CorrectionMonth, rec.CorrectionYear, rec.CorrectionSequence)
	}
	if rec.IsBlocked {
		t.Fatal("record in an open correction sequence must stay editable")
	}
}

func TestCreateRejectsOverlapInSamePartition(t *testing.T) {
	f := newAttendanceFixture(t)

	f.create(t, "2026-03-10", "2026-03-14", model.CodeVacationAnnual)

	_, err := f.service.Create(context.Background(), CreateAttendanceRequest{
		StaffID: f.staffID.String(),
		Date:    "2026-03-14", // shared endpoint still overlaps
		DateEnd: "2026-03-20",
		Code:    model.CodeBusinessTrip,
	}, nil)
	if err == nil {
		t.Fatal("overlapping interval must be refused")
	}
	if apperr.HTTPStatus(err) != 409 {
		t.Fatalf("want conflict, got %v", err)
	}
	items := apperr.ConflictsOf(err)
	if len(items) != 1 {
		t.Fatalf("got %d conflict items, want 1", len(items))
	}
	if items[0].Label != model.CodeVacationAnnual {
		t.Errorf("conflict label = %q, want %q", items[0].Label, model.CodeVacationAnnual)
	}
}

func TestWorkdayMarksNeverBlockVacation(t *testing.T) {
	f := newAttendanceFixture(t)

	f.create(t, "2026-03-09", "2026-03-13", model.CodeWorkday)

	// Vacation over existing workdays is fine; the workday code never
	// counts as a conflict.
	rec := f.create(t, "2026-03-10", "2026-03-11", model.CodeVacationAnnual)
	if rec.ID == uuid.Nil {
		t.Fatal("vacation over workdays must be created")
	}
}

func TestWorkdayRefusedOnVacationDocumentDays(t *testing.T) {
	f := newAttendanceFixture(t)

	doc := &model.Document{
		StaffID:   f.staffID,
		Type:      model.DocTypeVacationAnnual,
		DateStart: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		DateEnd:   time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
		Status:    model.StatusSubmitted,
	}
	if err := f.docRepo.Create(context.Background(), doc); err != nil {
		t.Fatal(err)
	}

	_, err := f.service.Create(context.Background(), CreateAttendanceRequest{
		StaffID: f.staffID.String(),
		Date:    "2026-03-12",
		Code:    model.CodeWorkday,
		Hours:   decimal.NewFromInt(8),
	}, nil)
	if err == nil {
		t.Fatal("workday on a vacation-document day must be refused")
	}
	if apperr.HTTPStatus(err) != 409 {
		t.Fatalf("HTTPStatus = %d, want 409", apperr.HTTPStatus(err))
	}
	items := apperr.ConflictsOf(err)
	if len(items) != 1 {
		t.Fatalf("got %d conflict items, want 1", len(items))
	}
	if items[0].Kind != "document" || items[0].ID != doc.ID.String() {
		t.Fatalf("conflict item = %+v, want the covering document", items[0])
	}
}

func TestWorkdayIgnoresDraftAndCompletedDocuments(t *testing.T) {
	f := newAttendanceFixture(t)
	ctx := context.Background()

	// Neither an unsubmitted draft nor a fully completed document reserves
	// the days any longer.
	for _, status := range []string{model.StatusDraft, model.StatusCompleted} {
		if err := f.docRepo.Create(ctx, &model.Document{
			StaffID:   f.staffID,
			Type:      model.DocTypeVacationAnnual,
			DateStart: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
			DateEnd:   time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
			Status:    status,
		}); err != nil {
			t.Fatal(err)
		}
	}

	rec := f.create(t, "2026-03-12", "", model.CodeWorkday)
	if rec.ID == uuid.Nil {
		t.Fatal("workday must be created when only draft and completed documents cover the day")
	}
}

func TestCorrectionOverlayIsIsolatedFromMainLedger(t *testing.T) {
	f := newAttendanceFixture(t)

	// A sick-leave mark already in the February main ledger.
	main := &model.AttendanceRecord{
		StaffID: f.staffID,
		Date:    time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC),
		Code:    model.CodeSickLeave,
	}
	if err := f.attRepo.Create(context.Background(), main); err != nil {
		t.Fatal(err)
	}

	// The same day in the correction overlay does not collide with it.
	rec := f.create(t, "2026-02-10", "", model.CodeVacationUnpaid)
	if !rec.IsCorrection {
		t.Fatal("expected a correction record")
	}
}

func TestUpdateRefusedOnceOwnPartitionSeals(t *testing.T) {
	f := newAttendanceFixture(t)
	ctx := context.Background()

	rec := f.create(t, "2026-02-10", "", model.CodeSickLeave)
	if _, err := f.registry.ConfirmCorrectionApproval(ctx, 2, 2026, 1, uuid.New()); err != nil {
		t.Fatal(err)
	}

	_, err := f.service.Update(ctx, rec.ID.String(), UpdateAttendanceRequest{Code: model.CodeVacationUnpaid}, nil)
	if err == nil {
		t.Fatal("editing a record in a sealed correction must fail")
	}
	if apperr.HTTPStatus(err) != 423 {
		t.Fatalf("want locked error, got %v", err)
	}
}

func TestCorrectionRecordEditableWhileSequenceOpen(t *testing.T) {
	f := newAttendanceFixture(t)

	rec := f.create(t, "2026-02-10", "", model.CodeSickLeave)

	// Editability comes from the record's own partition, not from the
	// month being calendar-locked.
	updated, err := f.service.Update(context.Background(), rec.ID.String(), UpdateAttendanceRequest{
		Code: model.CodeVacationUnpaid,
	}, nil)
	if err != nil {
		t.Fatalf("update in open correction sequence: %v", err)
	}
	if updated.Code != model.CodeVacationUnpaid {
		t.Fatalf("code = %q, want %q", updated.Code, model.CodeVacationUnpaid)
	}
}

func TestUpdateMainRecordRefusedAfterMonthLock(t *testing.T) {
	f := newAttendanceFixture(t)

	// Planted directly in the February main ledger, as if written before
	// the month rolled over.
	rec := &model.AttendanceRecord{
		StaffID: f.staffID,
		Date:    time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC),
		Code:    model.CodeVacationAnnual,
	}
	if err := f.attRepo.Create(context.Background(), rec); err != nil {
		t.Fatal(err)
	}

	_, err := f.service.Update(context.Background(), rec.ID.String(), UpdateAttendanceRequest{
		Code: model.CodeSickLeave,
	}, nil)
	if err == nil {
		t.Fatal("editing a main-ledger record of a locked month must fail")
	}
	if apperr.HTTPStatus(err) != 423 {
		t.Fatalf("want locked error, got %v", err)
	}
}

func TestDeleteRequiresReasonAndAuditsIt(t *testing.T) {
	f := newAttendanceFixture(t)
	ctx := context.Background()

	rec := f.create(t, "2026-03-10", "", model.CodeVacationAnnual)

	if err := f.service.Delete(ctx, rec.ID.String(), "", nil); err == nil {
		t.Fatal("delete without a reason must fail")
	}

	if err := f.service.Delete(ctx, rec.ID.String(), "entered for the wrong person", nil); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := f.attRepo.FindByID(ctx, rec.ID); err == nil {
		t.Fatal("record must be gone after delete")
	}

	var found bool
	for _, e := range f.audit.entries {
		if e.Action == model.ActionDeleteAttendance && e.EntityID == rec.ID.String() {
			found = true
			if e.Details == "" || e.Details == "null" {
				t.Error("deletion audit entry must carry the reason")
			}
		}
	}
	if !found {
		t.Fatal("deletion must leave an audit entry")
	}
}

func TestDeleteRefusedInSealedPartition(t *testing.T) {
	f := newAttendanceFixture(t)
	ctx := context.Background()

	rec := f.create(t, "2026-02-10", "", model.CodeSickLeave)
	if _, err := f.registry.ConfirmCorrectionApproval(ctx, 2, 2026, 1, uuid.New()); err != nil {
		t.Fatal(err)
	}

	err := f.service.Delete(ctx, rec.ID.String(), "mistake", nil)
	if apperr.HTTPStatus(err) != 423 {
		t.Fatalf("want locked error, got %v", err)
	}
	if _, findErr := f.attRepo.FindByID(ctx, rec.ID); findErr != nil {
		t.Fatal("refused delete must not remove the record")
	}
}

func TestSecondCorrectionSequenceAfterSeal(t *testing.T) {
	f := newAttendanceFixture(t)
	ctx := context.Background()

	first := f.create(t, "2026-02-10", "", model.CodeSickLeave)
	if first.CorrectionSequence != 1 {
		t.Fatalf("first correction sequence = %d, want 1", first.CorrectionSequence)
	}

	if _, err := f.registry.ConfirmCorrectionApproval(ctx, 2, 2026, 1, uuid.New()); err != nil {
		t.Fatal(err)
	}

	second := f.create(t, "2026-02-20", "", model.CodeVacationUnpaid)
	if second.CorrectionSequence != 2 {
		t.Fatalf("post-seal correction sequence = %d, want 2", second.CorrectionSequence)
	}
}

func TestMonthGridClipsRangesToMonth(t *testing.T) {
	f := newAttendanceFixture(t)

	// Spans the February/March boundary; written to the March main ledger
	// is impossible for Feb days, so plant it directly.
	end := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)
	rec := &model.AttendanceRecord{
		StaffID: f.staffID,
		Date:    time.Date(2026, 2, 26, 0, 0, 0, 0, time.UTC),
		DateEnd: &end,
		Code:    model.CodeVacationAnnual,
		Hours:   decimal.NewFromInt(8),
	}
	if err := f.attRepo.Create(context.Background(), rec); err != nil {
		t.Fatal(err)
	}

	grid, err := f.service.MonthGrid(context.Background(), 3, 2026, 0)
	if err != nil {
		t.Fatalf("MonthGrid: %v", err)
	}
	if len(grid.Rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(grid.Rows))
	}
	row := grid.Rows[0]
	if row.TotalDays != 3 {
		t.Fatalf("total days = %d, want 3 (range clipped to March)", row.TotalDays)
	}
	for _, day := range []int{1, 2, 3} {
		if _, ok := row.Days[day]; !ok {
			t.Errorf("day %d missing from grid", day)
		}
	}
	if _, ok := row.Days[26]; ok {
		t.Error("February days must not leak into the March grid")
	}
}

func TestCreateBroadcastsAttendanceChange(t *testing.T) {
	f := newAttendanceFixture(t)

	f.create(t, "2026-03-10", "", model.CodeVacationAnnual)

	if len(f.notifier.events) != 1 {
		t.Fatalf("got %d events, want 1", len(f.notifier.events))
	}
	if f.notifier.events[0].Type != EventAttendanceChange {
		t.Fatalf("event type = %q, want %q", f.notifier.events[0].Type, EventAttendanceChange)
	}
}
