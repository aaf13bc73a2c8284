package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Staff is an employee whose attendance is tracked in the timesheet.
// Name parts are kept separate for Ukrainian declension downstream.
type Staff struct {
	ID         uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	LastName   string         `gorm:"type:varchar(100);not null" json:"last_name"`
	FirstName  string         `gorm:"type:varchar(100);not null" json:"first_name"`
	MiddleName string         `gorm:"type:varchar(100)" json:"middle_name"`
	Position   string         `gorm:"type:varchar(255);not null" json:"position"`
	Department string         `gorm:"type:varchar(255);not null;index" json:"department"`
	HiredAt    time.Time      `gorm:"type:date;not null" json:"hired_at"`
	FiredAt    *time.Time     `gorm:"type:date" json:"fired_at"`
	CreatedAt  time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
}

// FullName renders the short official form, e.g. "Шевченко Т.Г.".
func (s *Staff) FullName() string {
	name := s.LastName
	if s.FirstName != "" {
		name += " " + s.FirstName
	}
	if s.MiddleName != "" {
		name += " " + s.MiddleName
	}
	return name
}
