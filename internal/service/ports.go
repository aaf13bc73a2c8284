package service

import (
	"context"

	"tabel/internal/model"
)

// Event types broadcast over the notification bus.
const (
	EventDocumentStatus    = "document_status"
	EventAttendanceChange  = "attendance_change"
	EventTimesheetApproved = "timesheet_approved"
)

// Event is a fire-and-forget notification. The core emits them on status and
// attendance changes but never depends on delivery.
type Event struct {
	Type       string      `json:"type"`
	DocumentID string      `json:"document_id,omitempty"`
	Status     string      `json:"status,omitempty"`
	Data       interface{} `json:"data,omitempty"`
}

// Notifier broadcasts events to connected clients.
type Notifier interface {
	Broadcast(event Event)
}

type noopNotifier struct{}

func (noopNotifier) Broadcast(Event) {}

// NoopNotifier drops every event; used when no hub is wired.
func NoopNotifier() Notifier { return noopNotifier{} }

// Grammatical cases the declension collaborator understands.
const (
	CaseNominative = "nominative"
	CaseGenitive   = "genitive"
	CaseDative     = "dative"
)

// DeclensionService inflects Ukrainian names and titles into a grammatical
// case. Pure and stateless; used only when rendering documents.
type DeclensionService interface {
	Decline(text, grammaticalCase string) (string, error)
}

type identityDeclension struct{}

func (identityDeclension) Decline(text, _ string) (string, error) { return text, nil }

// IdentityDeclension returns text unchanged; stands in until a real
// morphology backend is configured.
func IdentityDeclension() DeclensionService { return identityDeclension{} }

// DocumentRenderer produces a printable artifact for a document and returns
// its path. Rendering failures never affect the approval pipeline itself.
type DocumentRenderer interface {
	Render(ctx context.Context, doc *model.Document, renderCtx map[string]interface{}) (string, error)
}
