package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// LockRecord is the approval state of one timesheet: either the main sheet of
// (Month, Year), or one numbered correction overlay opened against an already
// sealed (CorrectionMonth, CorrectionYear).
//
// Main records are unique per (month, year). Correction sequences for a pair
// are strictly increasing from 1 and at most one of them is open at a time;
// a new sequence opens only after the previous one was approved.
type LockRecord struct {
	ID                 uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Month              int        `gorm:"not null;uniqueIndex:idx_lock_key" json:"month"`
	Year               int        `gorm:"not null;uniqueIndex:idx_lock_key" json:"year"`
	IsCorrection       bool       `gorm:"not null;default:false;uniqueIndex:idx_lock_key" json:"is_correction"`
	CorrectionMonth    int        `gorm:"not null;default:0;uniqueIndex:idx_lock_key" json:"correction_month,omitempty"`
	CorrectionYear     int        `gorm:"not null;default:0;uniqueIndex:idx_lock_key" json:"correction_year,omitempty"`
	CorrectionSequence int        `gorm:"not null;default:0;uniqueIndex:idx_lock_key" json:"correction_sequence,omitempty"`
	IsApproved         bool       `gorm:"not null;default:false" json:"is_approved"`
	GeneratedAt        time.Time  `gorm:"not null" json:"generated_at"`
	ApprovedAt         *time.Time `json:"approved_at"`
	ApprovedBy         *uuid.UUID `gorm:"type:uuid" json:"approved_by"`
	Approver           *User      `gorm:"foreignKey:ApprovedBy" json:"approver,omitempty"`
	CreatedAt          time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// Describe renders the record key for log and error messages.
func (l *LockRecord) Describe() string {
	if l.IsCorrection {
		return fmt.Sprintf("correction %d/%02d.%d", l.CorrectionSequence, l.CorrectionMonth, l.CorrectionYear)
	}
	return fmt.Sprintf("timesheet %02d.%d", l.Month, l.Year)
}
