package model

import (
	"time"

	"github.com/google/uuid"
)

// Document types (vacation/absence orders).
const (
	DocTypeVacationAnnual     = "VACATION_ANNUAL"
	DocTypeVacationAdditional = "VACATION_ADDITIONAL"
	DocTypeVacationUnpaid     = "VACATION_UNPAID"
	DocTypeBusinessTrip       = "BUSINESS_TRIP"
)

var docTypeCodes = map[string]string{
	DocTypeVacationAnnual:     CodeVacationAnnual,
	DocTypeVacationAdditional: CodeVacationAdditional,
	DocTypeVacationUnpaid:     CodeVacationUnpaid,
	DocTypeBusinessTrip:       CodeBusinessTrip,
}

// ActivityCodeForDocType maps a document type to the tabel mark its
// materialized attendance rows carry.
func ActivityCodeForDocType(docType string) (string, bool) {
	code, ok := docTypeCodes[docType]
	return code, ok
}

// Workflow step identifiers, in pipeline order. The approver step may occur
// any number of times; all others are fixed.
const (
	StepApplicant      = "applicant"
	StepApproval       = "approval"
	StepDepartmentHead = "department_head"
	StepApprover       = "approver"
	StepRector         = "rector"
	StepScanned        = "scanned"
	StepTabel          = "tabel"
)

// Derived document statuses, strictly ordered.
const (
	StatusDraft       = "DRAFT"
	StatusSubmitted   = "SUBMITTED"
	StatusUnderReview = "UNDER_REVIEW"
	StatusEndorsed    = "ENDORSED"
	StatusAgreed      = "AGREED"
	StatusSigned      = "SIGNED"
	StatusCompleted   = "COMPLETED"
)

// statusRank orders statuses; DeriveStatus takes the highest rank among
// completed steps.
var statusRank = map[string]int{
	StatusDraft:       0,
	StatusSubmitted:   1,
	StatusUnderReview: 2,
	StatusEndorsed:    3,
	StatusAgreed:      4,
	StatusSigned:      5,
	StatusCompleted:   6,
}

var stepStatus = map[string]string{
	StepApplicant:      StatusSubmitted,
	StepApproval:       StatusUnderReview,
	StepDepartmentHead: StatusEndorsed,
	StepApprover:       StatusAgreed,
	StepRector:         StatusSigned,
	StepScanned:        StatusSigned,
	StepTabel:          StatusSigned,
}

// StatusRank exposes the ordering for comparisons ("strictly earlier than").
func StatusRank(status string) int { return statusRank[status] }

// DeriveStatus recomputes the document status from its step set. The status
// is never stored independently of this function's output: COMPLETED when
// every step is done, otherwise the highest-ranked status among completed
// steps, DRAFT when none are.
func DeriveStatus(steps []DocumentStep) string {
	if len(steps) == 0 {
		return StatusDraft
	}
	all := true
	best := StatusDraft
	for _, s := range steps {
		if !s.Completed {
			all = false
			continue
		}
		if st, ok := stepStatus[s.StepID]; ok && statusRank[st] > statusRank[best] {
			best = st
		}
	}
	if all {
		return StatusCompleted
	}
	return best
}

// DocumentStep is one named, independently completable gate of a document's
// approval pipeline. Steps are a tagged ordered list so a variable number of
// approver entries composes uniformly with the fixed ones.
type DocumentStep struct {
	ID          uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	DocumentID  uuid.UUID  `gorm:"type:uuid;not null;index" json:"document_id"`
	StepID      string     `gorm:"type:varchar(30);not null" json:"step_id"`
	Position    int        `gorm:"not null" json:"position"`
	Completed   bool       `gorm:"not null;default:false" json:"completed"`
	CompletedAt *time.Time `json:"completed_at"`
	Comment     string     `gorm:"type:text" json:"comment"`
}

// Document is a vacation/absence order moving through the approval pipeline.
// Status and IsBlocked are derived snapshots, refreshed after every mutation.
type Document struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	StaffID   uuid.UUID `gorm:"type:uuid;not null;index" json:"staff_id"`
	Staff     *Staff    `gorm:"foreignKey:StaffID" json:"staff,omitempty"`
	Type      string    `gorm:"type:varchar(30);not null" json:"type"`
	DateStart time.Time `gorm:"type:date;not null" json:"date_start"`
	DateEnd   time.Time `gorm:"type:date;not null" json:"date_end"`
	Status    string    `gorm:"type:varchar(20);not null;default:'DRAFT';index" json:"status"`

	// Correction tuple stamped when the document materialized into a sealed
	// month's overlay.
	IsCorrection       bool `gorm:"not null;default:false" json:"is_correction"`
	CorrectionMonth    int  `gorm:"not null;default:0" json:"correction_month,omitempty"`
	CorrectionYear     int  `gorm:"not null;default:0" json:"correction_year,omitempty"`
	CorrectionSequence int  `gorm:"not null;default:0" json:"correction_sequence,omitempty"`

	IsBlocked     bool   `gorm:"not null;default:false" json:"is_blocked"`
	BlockedReason string `gorm:"type:text" json:"blocked_reason,omitempty"`

	Steps []DocumentStep `gorm:"foreignKey:DocumentID;constraint:OnDelete:CASCADE" json:"steps"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TerminalStatuses are the statuses a document no longer competes for dates
// in — conflict scans exclude them by default.
func TerminalStatuses() []string { return []string{StatusCompleted} }

// Step returns the first step with the given id, or nil.
func (d *Document) Step(stepID string) *DocumentStep {
	for i := range d.Steps {
		if d.Steps[i].StepID == stepID {
			return &d.Steps[i]
		}
	}
	return nil
}

// StepCompleted reports whether the named step exists and is completed.
func (d *Document) StepCompleted(stepID string) bool {
	s := d.Step(stepID)
	return s != nil && s.Completed
}
