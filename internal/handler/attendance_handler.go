package handler

import (
	"net/http"
	"strconv"

	"tabel/internal/middleware"
	"tabel/internal/model"
	"tabel/internal/service"
	"tabel/pkg/response"

	"github.com/gin-gonic/gin"
)

type AttendanceHandler struct {
	attendanceService service.AttendanceService
}

func NewAttendanceHandler(attendanceService service.AttendanceService) *AttendanceHandler {
	return &AttendanceHandler{attendanceService: attendanceService}
}

func (h *AttendanceHandler) RegisterRoutes(router *gin.RouterGroup) {
	attendance := router.Group("/api/attendance")
	{
		attendance.GET("", middleware.RequireRole(model.RoleAdmin, model.RoleHR, model.RoleViewer), h.List)
		attendance.GET("/:id", middleware.RequireRole(model.RoleAdmin, model.RoleHR, model.RoleViewer), h.Get)
		attendance.POST("", middleware.RequireRole(model.RoleAdmin, model.RoleHR), h.Create)
		attendance.PUT("/:id", middleware.RequireRole(model.RoleAdmin, model.RoleHR), h.Update)
		attendance.DELETE("/:id", middleware.RequireRole(model.RoleAdmin, model.RoleHR), h.Delete)
	}
}

// Create inserts one attendance record
// @Summary      Create attendance record
// @Description  Records a tabel mark for a staff member; against a locked month the record lands in a correction overlay
// @Tags         attendance
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreateAttendanceRequest  true  "Attendance payload"
// @Success      201      {object}  response.Response{data=model.AttendanceRecord}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Failure      423      {object}  response.Response
// @Router       /api/attendance [post]
func (h *AttendanceHandler) Create(c *gin.Context) {
	var req service.CreateAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	rec, err := h.attendanceService.Create(c.Request.Context(), req, actorUUID(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, rec))
}

// Get fetches one attendance record with its lock snapshot
// @Summary      Get attendance record
// @Tags         attendance
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Record ID"
// @Success      200  {object}  response.Response{data=model.AttendanceRecord}
// @Failure      404  {object}  response.Response
// @Router       /api/attendance/{id} [get]
func (h *AttendanceHandler) Get(c *gin.Context) {
	rec, err := h.attendanceService.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, rec))
}

// List returns a staff member's records for one month partition
// @Summary      List attendance records
// @Tags         attendance
// @Produce      json
// @Security     BearerAuth
// @Param        staff_id             query     string  true   "Staff ID"
// @Param        month                query     int     true   "Month 1..12"
// @Param        year                 query     int     true   "Year"
// @Param        correction_sequence  query     int     false  "Correction overlay; 0 = main ledger"
// @Success      200  {object}  response.Response{data=object}
// @Router       /api/attendance [get]
func (h *AttendanceHandler) List(c *gin.Context) {
	month, _ := strconv.Atoi(c.Query("month"))
	year, _ := strconv.Atoi(c.Query("year"))
	seq, _ := strconv.Atoi(c.DefaultQuery("correction_sequence", "0"))

	recs, err := h.attendanceService.ListByStaffMonth(c.Request.Context(), c.Query("staff_id"), month, year, seq)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, map[string]interface{}{
		"records": recs,
		"total":   len(recs),
	}))
}

// Update edits a record while its own partition remains open
// @Summary      Update attendance record
// @Tags         attendance
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                           true  "Record ID"
// @Param        payload  body      service.UpdateAttendanceRequest  true  "Fields to change"
// @Success      200      {object}  response.Response{data=model.AttendanceRecord}
// @Failure      409      {object}  response.Response
// @Failure      423      {object}  response.Response
// @Router       /api/attendance/{id} [put]
func (h *AttendanceHandler) Update(c *gin.Context) {
	var req service.UpdateAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	rec, err := h.attendanceService.Update(c.Request.Context(), c.Param("id"), req, actorUUID(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, rec))
}

// Delete removes a record after capturing the caller's reason
// @Summary      Delete attendance record
// @Description  Hard-deletes a record; the reason is retained in the audit trail before the row disappears
// @Tags         attendance
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                           true  "Record ID"
// @Param        payload  body      service.DeleteAttendanceRequest  true  "Deletion reason"
// @Success      200      {object}  response.Response
// @Failure      423      {object}  response.Response
// @Router       /api/attendance/{id} [delete]
func (h *AttendanceHandler) Delete(c *gin.Context) {
	var req service.DeleteAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "A deletion reason is required"))
		return
	}

	if err := h.attendanceService.Delete(c.Request.Context(), c.Param("id"), req.Reason, actorUUID(c)); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, "Record deleted"))
}
