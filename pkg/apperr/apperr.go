package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ConflictItem describes one record that collides with a candidate interval.
type ConflictItem struct {
	Kind      string    `json:"kind"` // "attendance" or "document"
	ID        string    `json:"id"`
	DateStart time.Time `json:"date_start"`
	DateEnd   time.Time `json:"date_end"`
	Label     string    `json:"label"` // activity code or document status
}

// ConflictError means the candidate interval collides with existing data.
// The caller must change the dates or remove the conflicting records.
type ConflictError struct {
	Reason    string
	Conflicts []ConflictItem
}

func (e *ConflictError) Error() string { return e.Reason }

// LockedError means the target period is sealed. Recoverable only via the
// correction pathway, never by retry.
type LockedError struct {
	Reason string
}

func (e *LockedError) Error() string { return e.Reason }

// ValidationError means the input itself is malformed (bad ranges, unknown
// activity code, out-of-contract dates).
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// NotFoundError means the referenced entity does not exist.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

func Conflict(reason string, items []ConflictItem) error {
	return &ConflictError{Reason: reason, Conflicts: items}
}

func Locked(format string, args ...interface{}) error {
	return &LockedError{Reason: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...interface{}) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

func NotFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// HTTPStatus maps the error taxonomy onto HTTP status codes so handlers
// answer uniformly. Unknown errors map to 500.
func HTTPStatus(err error) int {
	var (
		conflict   *ConflictError
		locked     *LockedError
		validation *ValidationError
		notFound   *NotFoundError
	)
	switch {
	case errors.As(err, &conflict):
		return http.StatusConflict
	case errors.As(err, &locked):
		return http.StatusLocked
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &notFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// ConflictsOf extracts the offending records when err wraps a ConflictError.
func ConflictsOf(err error) []ConflictItem {
	var conflict *ConflictError
	if errors.As(err, &conflict) {
		return conflict.Conflicts
	}
	return nil
}
