package service

import (
	"context"
	"sort"
	"time"

	"tabel/internal/model"
	"tabel/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// In-memory repository fakes. They mirror the SQL predicates of the real
// repositories closely enough that the services under test cannot tell the
// difference; the transaction manager is a pass-through.

type passthroughTx struct{}

func (passthroughTx) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

type recordingNotifier struct {
	events []Event
}

func (n *recordingNotifier) Broadcast(event Event) { n.events = append(n.events, event) }

// --- attendance ---

type memAttendanceRepo struct {
	recs []*model.AttendanceRecord
}

func (r *memAttendanceRepo) Create(_ context.Context, rec *model.AttendanceRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	cp := *rec
	r.recs = append(r.recs, &cp)
	return nil
}

func (r *memAttendanceRepo) FindByID(_ context.Context, id uuid.UUID) (*model.AttendanceRecord, error) {
	for _, rec := range r.recs {
		if rec.ID == id {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memAttendanceRepo) Update(_ context.Context, rec *model.AttendanceRecord) error {
	for i, existing := range r.recs {
		if existing.ID == rec.ID {
			cp := *rec
			r.recs[i] = &cp
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (r *memAttendanceRepo) Delete(_ context.Context, id uuid.UUID) error {
	for i, rec := range r.recs {
		if rec.ID == id {
			r.recs = append(r.recs[:i], r.recs[i+1:]...)
			return nil
		}
	}
	return nil
}

func samePartition(rec *model.AttendanceRecord, p model.Partition) bool {
	if !p.IsCorrection {
		return !rec.IsCorrection
	}
	return rec.IsCorrection &&
		rec.CorrectionMonth == p.Month &&
		rec.CorrectionYear == p.Year &&
		rec.CorrectionSequence == p.Sequence
}

func (r *memAttendanceRepo) FindOverlapping(_ context.Context, staffID uuid.UUID, start, end time.Time, partition model.Partition, excludeCodes []string) ([]model.AttendanceRecord, error) {
	excluded := make(map[string]bool, len(excludeCodes))
	for _, c := range excludeCodes {
		excluded[c] = true
	}

	var out []model.AttendanceRecord
	for _, rec := range r.recs {
		if rec.StaffID != staffID || !samePartition(rec, partition) || excluded[rec.Code] {
			continue
		}
		if rec.Overlaps(start, end) {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (r *memAttendanceRepo) FindForDocumentDay(_ context.Context, documentID uuid.UUID, day time.Time, partition model.Partition) (*model.AttendanceRecord, error) {
	for _, rec := range r.recs {
		if rec.DocumentID == nil || *rec.DocumentID != documentID || !samePartition(rec, partition) {
			continue
		}
		if rec.Overlaps(day, day) {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memAttendanceRepo) ListByStaffMonth(_ context.Context, staffID uuid.UUID, month, year int, partition model.Partition) ([]model.AttendanceRecord, error) {
	first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)

	var out []model.AttendanceRecord
	for _, rec := range r.recs {
		if rec.StaffID != staffID || !samePartition(rec, partition) {
			continue
		}
		if rec.Overlaps(first, last) {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (r *memAttendanceRepo) ListMonth(_ context.Context, month, year int, partition model.Partition) ([]model.AttendanceRecord, error) {
	first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)

	var out []model.AttendanceRecord
	for _, rec := range r.recs {
		if !samePartition(rec, partition) {
			continue
		}
		if rec.Overlaps(first, last) {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StaffID != out[j].StaffID {
			return out[i].StaffID.String() < out[j].StaffID.String()
		}
		return out[i].Date.Before(out[j].Date)
	})
	return out, nil
}

// --- locks ---

type memLockRepo struct {
	recs []*model.LockRecord
}

func (r *memLockRepo) Create(_ context.Context, rec *model.LockRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	cp := *rec
	r.recs = append(r.recs, &cp)
	return nil
}

func (r *memLockRepo) Update(_ context.Context, rec *model.LockRecord) error {
	for i, existing := range r.recs {
		if existing.ID == rec.ID {
			cp := *rec
			r.recs[i] = &cp
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (r *memLockRepo) FindMain(_ context.Context, month, year int) (*model.LockRecord, error) {
	for _, rec := range r.recs {
		if !rec.IsCorrection && rec.Month == month && rec.Year == year {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memLockRepo) FindCorrection(_ context.Context, month, year, sequence int) (*model.LockRecord, error) {
	for _, rec := range r.recs {
		if rec.IsCorrection && rec.CorrectionMonth == month && rec.CorrectionYear == year && rec.CorrectionSequence == sequence {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memLockRepo) FindLatestCorrection(_ context.Context, month, year int) (*model.LockRecord, error) {
	var latest *model.LockRecord
	for _, rec := range r.recs {
		if !rec.IsCorrection || rec.CorrectionMonth != month || rec.CorrectionYear != year {
			continue
		}
		if latest == nil || rec.CorrectionSequence > latest.CorrectionSequence {
			latest = rec
		}
	}
	if latest == nil {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *latest
	return &cp, nil
}

func (r *memLockRepo) ListCorrectionMonths(_ context.Context) ([]repository.MonthRef, error) {
	seen := make(map[repository.MonthRef]bool)
	var refs []repository.MonthRef
	for _, rec := range r.recs {
		if !rec.IsCorrection {
			continue
		}
		ref := repository.MonthRef{Month: rec.CorrectionMonth, Year: rec.CorrectionYear}
		if !seen[ref] {
			seen[ref] = true
			refs = append(refs, ref)
		}
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Year != refs[j].Year {
			return refs[i].Year > refs[j].Year
		}
		return refs[i].Month > refs[j].Month
	})
	return refs, nil
}

func (r *memLockRepo) AcquireSequenceLock(context.Context, int, int) error { return nil }

// --- documents ---

type memDocumentRepo struct {
	docs []*model.Document
}

func (r *memDocumentRepo) Create(_ context.Context, doc *model.Document) error {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	for i := range doc.Steps {
		if doc.Steps[i].ID == uuid.Nil {
			doc.Steps[i].ID = uuid.New()
		}
		doc.Steps[i].DocumentID = doc.ID
	}
	cp := *doc
	cp.Steps = append([]model.DocumentStep(nil), doc.Steps...)
	r.docs = append(r.docs, &cp)
	return nil
}

func (r *memDocumentRepo) find(id uuid.UUID) *model.Document {
	for _, doc := range r.docs {
		if doc.ID == id {
			return doc
		}
	}
	return nil
}

func (r *memDocumentRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Document, error) {
	doc := r.find(id)
	if doc == nil {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *doc
	cp.Steps = append([]model.DocumentStep(nil), doc.Steps...)
	return &cp, nil
}

func (r *memDocumentRepo) Update(_ context.Context, doc *model.Document) error {
	stored := r.find(doc.ID)
	if stored == nil {
		return gorm.ErrRecordNotFound
	}
	steps := stored.Steps
	*stored = *doc
	stored.Steps = steps // Omit("Steps") semantics
	return nil
}

func (r *memDocumentRepo) UpdateStep(_ context.Context, step *model.DocumentStep) error {
	doc := r.find(step.DocumentID)
	if doc == nil {
		return gorm.ErrRecordNotFound
	}
	for i := range doc.Steps {
		if doc.Steps[i].ID == step.ID {
			doc.Steps[i] = *step
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (r *memDocumentRepo) List(_ context.Context, filter repository.DocumentFilter) ([]model.Document, int64, error) {
	var out []model.Document
	for _, doc := range r.docs {
		if filter.StaffID != nil && doc.StaffID != *filter.StaffID {
			continue
		}
		if filter.Status != "" && doc.Status != filter.Status {
			continue
		}
		if filter.Type != "" && doc.Type != filter.Type {
			continue
		}
		out = append(out, *doc)
	}
	return out, int64(len(out)), nil
}

func (r *memDocumentRepo) FindOverlapping(_ context.Context, staffID uuid.UUID, start, end time.Time, excludeStatuses []string, excludeDocID *uuid.UUID) ([]model.Document, error) {
	excluded := make(map[string]bool, len(excludeStatuses))
	for _, s := range excludeStatuses {
		excluded[s] = true
	}

	var out []model.Document
	for _, doc := range r.docs {
		if doc.StaffID != staffID || excluded[doc.Status] {
			continue
		}
		if excludeDocID != nil && doc.ID == *excludeDocID {
			continue
		}
		if !doc.DateStart.After(end) && !start.After(doc.DateEnd) {
			out = append(out, *doc)
		}
	}
	return out, nil
}

// --- staff ---

type memStaffRepo struct {
	staff []*model.Staff
}

func (r *memStaffRepo) Create(_ context.Context, s *model.Staff) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	cp := *s
	r.staff = append(r.staff, &cp)
	return nil
}

func (r *memStaffRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Staff, error) {
	for _, s := range r.staff {
		if s.ID == id {
			cp := *s
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memStaffRepo) List(_ context.Context, department string, _, _ int) ([]model.Staff, int64, error) {
	var out []model.Staff
	for _, s := range r.staff {
		if department != "" && s.Department != department {
			continue
		}
		out = append(out, *s)
	}
	return out, int64(len(out)), nil
}

func (r *memStaffRepo) Update(_ context.Context, s *model.Staff) error {
	for i, existing := range r.staff {
		if existing.ID == s.ID {
			cp := *s
			r.staff[i] = &cp
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

// --- audit ---

type memAuditRepo struct {
	entries []model.AuditLog
}

func (r *memAuditRepo) Log(_ context.Context, entry *model.AuditLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *memAuditRepo) List(_ context.Context, _, _ int) ([]model.AuditLog, int64, error) {
	return append([]model.AuditLog(nil), r.entries...), int64(len(r.entries)), nil
}

func (r *memAuditRepo) actions() []string {
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}
