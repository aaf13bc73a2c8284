package handler

import (
	"tabel/internal/middleware"
	"tabel/pkg/apperr"
	"tabel/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// abortWithError maps the service error taxonomy onto HTTP responses.
// Conflict responses carry the offending records so the caller can fix
// the dates.
func abortWithError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if conflicts := apperr.ConflictsOf(err); conflicts != nil {
		c.JSON(status, gin.H{
			"status":      "error",
			"status_code": status,
			"error":       err.Error(),
			"conflicts":   conflicts,
		})
		return
	}
	c.JSON(status, response.Error(status, err.Error()))
}

// actorUUID resolves the authenticated user id set by the auth middleware.
func actorUUID(c *gin.Context) *uuid.UUID {
	s := middleware.ActorID(c)
	if s == nil {
		return nil
	}
	id, err := uuid.Parse(*s)
	if err != nil {
		return nil
	}
	return &id
}
