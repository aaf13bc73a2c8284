package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Activity codes follow the Ukrainian tabel notation.
const (
	CodeWorkday            = "Р"  // ordinary worked day
	CodeVacationAnnual     = "В"  // annual paid vacation
	CodeVacationAdditional = "Д"  // additional paid vacation
	CodeVacationUnpaid     = "НА" // unpaid leave
	CodeSickLeave          = "ТН" // temporary disability
	CodeBusinessTrip       = "ВД" // business trip
)

var activityCodes = map[string]bool{
	CodeWorkday:            true,
	CodeVacationAnnual:     true,
	CodeVacationAdditional: true,
	CodeVacationUnpaid:     true,
	CodeSickLeave:          true,
	CodeBusinessTrip:       true,
}

// ValidActivityCode reports whether code is a known tabel mark.
func ValidActivityCode(code string) bool { return activityCodes[code] }

// Partition identifies which timesheet a record belongs to: the main ledger
// of its month, or one exact correction overlay.
type Partition struct {
	IsCorrection bool `json:"is_correction"`
	Month        int  `json:"month,omitempty"`
	Year         int  `json:"year,omitempty"`
	Sequence     int  `json:"sequence,omitempty"`
}

// MainPartition is the non-correction ledger.
func MainPartition() Partition { return Partition{} }

// CorrectionPartition addresses one sealed-month overlay.
func CorrectionPartition(month, year, sequence int) Partition {
	return Partition{IsCorrection: true, Month: month, Year: year, Sequence: sequence}
}

// AttendanceRecord is one tabel mark for a staff member covering a single day
// or an inclusive date range.
type AttendanceRecord struct {
	ID      uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	StaffID uuid.UUID       `gorm:"type:uuid;not null;index:idx_attendance_staff" json:"staff_id"`
	Staff   *Staff          `gorm:"foreignKey:StaffID" json:"staff,omitempty"`
	Date    time.Time       `gorm:"type:date;not null;index" json:"date"`
	DateEnd *time.Time      `gorm:"type:date" json:"date_end"` // nil = single day
	Code    string          `gorm:"type:varchar(10);not null" json:"code"`
	Hours   decimal.Decimal `gorm:"type:numeric(5,2);not null;default:0" json:"hours"`

	// Correction overlay coordinates; meaningful only when IsCorrection.
	IsCorrection       bool `gorm:"not null;default:false;index:idx_attendance_partition" json:"is_correction"`
	CorrectionMonth    int  `gorm:"not null;default:0;index:idx_attendance_partition" json:"correction_month,omitempty"`
	CorrectionYear     int  `gorm:"not null;default:0;index:idx_attendance_partition" json:"correction_year,omitempty"`
	CorrectionSequence int  `gorm:"not null;default:0;index:idx_attendance_partition" json:"correction_sequence,omitempty"`

	// Link back to the vacation document that materialized this row, if any.
	DocumentID *uuid.UUID `gorm:"type:uuid;index" json:"document_id,omitempty"`

	// Lock snapshot, computed on read — never persisted.
	IsBlocked     bool   `gorm:"-" json:"is_blocked"`
	BlockedReason string `gorm:"-" json:"blocked_reason,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Partition returns the partition the record is stored in.
func (r *AttendanceRecord) Partition() Partition {
	if !r.IsCorrection {
		return MainPartition()
	}
	return CorrectionPartition(r.CorrectionMonth, r.CorrectionYear, r.CorrectionSequence)
}

// End returns the inclusive end of the record's interval.
func (r *AttendanceRecord) End() time.Time {
	if r.DateEnd != nil {
		return *r.DateEnd
	}
	return r.Date
}

// Overlaps applies the inclusive-endpoint interval test a<=d && c<=b.
func (r *AttendanceRecord) Overlaps(start, end time.Time) bool {
	return !r.Date.After(end) && !start.After(r.End())
}
