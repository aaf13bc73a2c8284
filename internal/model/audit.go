package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	ActionCreateAttendance = "CREATE_ATTENDANCE"
	ActionUpdateAttendance = "UPDATE_ATTENDANCE"
	ActionDeleteAttendance = "DELETE_ATTENDANCE"

	ActionGenerateTimesheet = "GENERATE_TIMESHEET"
	ActionApproveTimesheet  = "APPROVE_TIMESHEET"
	ActionOpenCorrection    = "OPEN_CORRECTION"
	ActionApproveCorrection = "APPROVE_CORRECTION"

	ActionCreateDocument      = "CREATE_DOCUMENT"
	ActionCompleteStep        = "COMPLETE_STEP"
	ActionClearStep           = "CLEAR_STEP"
	ActionRollbackDocument    = "ROLLBACK_DOCUMENT"
	ActionMaterializeDocument = "MATERIALIZE_DOCUMENT"

	ActionCreateUser  = "CREATE_USER"
	ActionCreateStaff = "CREATE_STAFF"
)

// AuditLog tracks who did what and when for every critical mutation.
type AuditLog struct {
	ID         uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID     *uuid.UUID `gorm:"type:uuid;index" json:"user_id"` // nil for system-triggered writes
	User       *User      `gorm:"foreignKey:UserID" json:"user"`
	Action     string     `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID   string     `gorm:"type:varchar(50);index" json:"entity_id"`
	EntityName string     `gorm:"type:varchar(255)" json:"entity_name,omitempty"`
	Details    string     `gorm:"type:jsonb" json:"details"` // serialized JSON payload
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
}
