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

// March 5th, 2026: February and earlier are calendar-locked, March is open.
var testNow = time.Date(2026, time.March, 5, 12, 0, 0, 0, time.UTC)

func newLockFixture(t *testing.T) (LockRegistry, *memLockRepo, *memAuditRepo) {
	t.Helper()
	lockRepo := &memLockRepo{}
	auditRepo := &memAuditRepo{}
	registry := NewLockRegistry(lockRepo, auditRepo, passthroughTx{}, NoopNotifier(), clock.Fixed(testNow))
	return registry, lockRepo, auditRepo
}

func TestIsMonthLockedByCalendar(t *testing.T) {
	registry, _, _ := newLockFixture(t)
	ctx := context.Background()

	cases := []struct {
		month, year int
		want        bool
	}{
		{2, 2026, true},  // previous month
		{12, 2025, true}, // previous year
		{3, 2026, false}, // current month
		{4, 2026, false}, // future month
	}
	for _, tc := range cases {
		got, err := registry.IsMonthLocked(ctx, tc.month, tc.year)
		if err != nil {
			t.Fatalf("IsMonthLocked(%d, %d): %v", tc.month, tc.year, err)
		}
		if got != tc.want {
			t.Errorf("IsMonthLocked(%d, %d) = %v, want %v", tc.month, tc.year, got, tc.want)
		}
	}
}

func TestIsMonthLockedByApproval(t *testing.T) {
	registry, _, _ := newLockFixture(t)
	ctx := context.Background()
	approver := uuid.New()

	locked, err := registry.IsMonthLocked(ctx, 3, 2026)
	if err != nil {
		t.Fatal(err)
	}
	if locked {
		t.Fatal("current month should start unlocked")
	}

	if _, err := registry.GenerateTimesheet(ctx, 3, 2026, nil); err != nil {
		t.Fatalf("GenerateTimesheet: %v", err)
	}
	locked, err = registry.IsMonthLocked(ctx, 3, 2026)
	if err != nil {
		t.Fatal(err)
	}
	if locked {
		t.Fatal("generation alone must not lock the month")
	}

	if _, err := registry.ConfirmApproval(ctx, 3, 2026, approver); err != nil {
		t.Fatalf("ConfirmApproval: %v", err)
	}
	locked, err = registry.IsMonthLocked(ctx, 3, 2026)
	if err != nil {
		t.Fatal(err)
	}
	if !locked {
		t.Fatal("approved month must be locked even before the calendar rollover")
	}
}

func TestGenerateTimesheetIsOneShot(t *testing.T) {
	registry, _, _ := newLockFixture(t)
	ctx := context.Background()

	if _, err := registry.GenerateTimesheet(ctx, 3, 2026, nil); err != nil {
		t.Fatalf("first generation: %v", err)
	}
	_, err := registry.GenerateTimesheet(ctx, 3, 2026, nil)
	if err == nil {
		t.Fatal("second generation must fail")
	}
	if apperr.HTTPStatus(err) != 400 {
		t.Fatalf("want validation error, got %v", err)
	}
}

func TestConfirmApprovalRequiresGeneration(t *testing.T) {
	registry, _, _ := newLockFixture(t)

	_, err := registry.ConfirmApproval(context.Background(), 3, 2026, uuid.New())
	if err == nil {
		t.Fatal("approving a never-generated month must fail")
	}
	if apperr.HTTPStatus(err) != 404 {
		t.Fatalf("want not-found, got %v", err)
	}
}

func TestConfirmApprovalIsTerminal(t *testing.T) {
	registry, _, _ := newLockFixture(t)
	ctx := context.Background()
	approver := uuid.New()

	if _, err := registry.GenerateTimesheet(ctx, 3, 2026, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := registry.ConfirmApproval(ctx, 3, 2026, approver); err != nil {
		t.Fatal(err)
	}
	if _, err := registry.ConfirmApproval(ctx, 3, 2026, approver); err == nil {
		t.Fatal("approving twice must fail")
	}
}

func TestCorrectionSequenceReuseThenIncrement(t *testing.T) {
	registry, _, auditRepo := newLockFixture(t)
	ctx := context.Background()

	seq, err := registry.GetOrCreateCorrectionSequence(ctx, 2, 2026)
	if err != nil {
		t.Fatalf("first allocation: %v", err)
	}
	if seq != 1 {
		t.Fatalf("first sequence = %d, want 1", seq)
	}

	// The open sequence is reused, not incremented.
	seq, err = registry.GetOrCreateCorrectionSequence(ctx, 2, 2026)
	if err != nil {
		t.Fatal(err)
	}
	if seq != 1 {
		t.Fatalf("reused sequence = %d, want 1", seq)
	}

	if _, err := registry.ConfirmCorrectionApproval(ctx, 2, 2026, 1, uuid.New()); err != nil {
		t.Fatalf("ConfirmCorrectionApproval: %v", err)
	}

	// After sealing, the next allocation opens sequence 2.
	seq, err = registry.GetOrCreateCorrectionSequence(ctx, 2, 2026)
	if err != nil {
		t.Fatal(err)
	}
	if seq != 2 {
		t.Fatalf("post-seal sequence = %d, want 2", seq)
	}

	wantActions := map[string]int{}
	for _, a := range auditRepo.actions() {
		wantActions[a]++
	}
	if wantActions[model.ActionOpenCorrection] != 2 {
		t.Errorf("OPEN_CORRECTION audited %d times, want 2", wantActions[model.ActionOpenCorrection])
	}
	if wantActions[model.ActionApproveCorrection] != 1 {
		t.Errorf("APPROVE_CORRECTION audited %d times, want 1", wantActions[model.ActionApproveCorrection])
	}
}

func TestIsCorrectionLocked(t *testing.T) {
	registry, _, _ := newLockFixture(t)
	ctx := context.Background()

	locked, err := registry.IsCorrectionLocked(ctx, 2, 2026, 1)
	if err != nil {
		t.Fatal(err)
	}
	if locked {
		t.Fatal("nonexistent correction must report unlocked")
	}

	if _, err := registry.GetOrCreateCorrectionSequence(ctx, 2, 2026); err != nil {
		t.Fatal(err)
	}
	locked, err = registry.IsCorrectionLocked(ctx, 2, 2026, 1)
	if err != nil {
		t.Fatal(err)
	}
	if locked {
		t.Fatal("open correction must report unlocked")
	}

	if _, err := registry.ConfirmCorrectionApproval(ctx, 2, 2026, 1, uuid.New()); err != nil {
		t.Fatal(err)
	}
	locked, err = registry.IsCorrectionLocked(ctx, 2, 2026, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !locked {
		t.Fatal("sealed correction must report locked")
	}
}

func TestCorrectionMonthsFiltersAndCaps(t *testing.T) {
	registry, _, _ := newLockFixture(t)
	ctx := context.Background()

	// Six locked months with corrections plus one unlocked (future) month.
	for _, ref := range []struct{ m, y int }{
		{9, 2025}, {10, 2025}, {11, 2025}, {12, 2025}, {1, 2026}, {2, 2026},
	} {
		if _, err := registry.GetOrCreateCorrectionSequence(ctx, ref.m, ref.y); err != nil {
			t.Fatalf("allocation %02d.%d: %v", ref.m, ref.y, err)
		}
	}
	if _, err := registry.GetOrCreateCorrectionSequence(ctx, 4, 2026); err != nil {
		t.Fatal(err)
	}

	months, err := registry.CorrectionMonths(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(months) != 4 {
		t.Fatalf("got %d months, want 4", len(months))
	}
	if months[0].Month != 2 || months[0].Year != 2026 {
		t.Errorf("newest month = %02d.%d, want 02.2026", months[0].Month, months[0].Year)
	}
	for _, ref := range months {
		if ref.Month == 4 && ref.Year == 2026 {
			t.Error("unlocked month 04.2026 must not be listed")
		}
	}
}

func TestValidateMonthBounds(t *testing.T) {
	registry, _, _ := newLockFixture(t)
	ctx := context.Background()

	for _, tc := range []struct{ m, y int }{{0, 2026}, {13, 2026}, {3, 1999}} {
		if _, err := registry.IsMonthLocked(ctx, tc.m, tc.y); err == nil {
			t.Errorf("IsMonthLocked(%d, %d) accepted out-of-range input", tc.m, tc.y)
		}
	}
}
