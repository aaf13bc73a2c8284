package handler

import (
	"net/http"
	"strconv"

	"tabel/internal/middleware"
	"tabel/internal/model"
	"tabel/internal/service"
	"tabel/pkg/apperr"
	"tabel/pkg/response"

	"github.com/gin-gonic/gin"
)

type TimesheetHandler struct {
	lockRegistry      service.LockRegistry
	attendanceService service.AttendanceService
}

func NewTimesheetHandler(lockRegistry service.LockRegistry, attendanceService service.AttendanceService) *TimesheetHandler {
	return &TimesheetHandler{lockRegistry: lockRegistry, attendanceService: attendanceService}
}

func (h *TimesheetHandler) RegisterRoutes(router *gin.RouterGroup) {
	ts := router.Group("/api/timesheet")
	{
		ts.GET("/corrections", middleware.RequireRole(model.RoleAdmin, model.RoleHR, model.RoleViewer), h.CorrectionMonths)
		ts.GET("/:year/:month", middleware.RequireRole(model.RoleAdmin, model.RoleHR, model.RoleViewer), h.MonthGrid)
		ts.POST("/:year/:month/generate", middleware.RequireRole(model.RoleAdmin, model.RoleHR), h.Generate)
		ts.POST("/:year/:month/approve", middleware.RequireRole(model.RoleAdmin), h.Approve)
		ts.POST("/:year/:month/corrections/:seq/approve", middleware.RequireRole(model.RoleAdmin), h.ApproveCorrection)
	}
}

func (h *TimesheetHandler) monthYear(c *gin.Context) (int, int, bool) {
	year, err := strconv.Atoi(c.Param("year"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid year"))
		return 0, 0, false
	}
	month, err := strconv.Atoi(c.Param("month"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid month"))
		return 0, 0, false
	}
	return month, year, true
}

// MonthGrid returns the staff-by-day grid for one month partition
// @Summary      Month timesheet grid
// @Tags         timesheet
// @Produce      json
// @Security     BearerAuth
// @Param        year                 path      int  true   "Year"
// @Param        month                path      int  true   "Month 1..12"
// @Param        correction_sequence  query     int  false  "Correction overlay; 0 = main ledger"
// @Success      200  {object}  response.Response{data=service.TimesheetGrid}
// @Router       /api/timesheet/{year}/{month} [get]
func (h *TimesheetHandler) MonthGrid(c *gin.Context) {
	month, year, ok := h.monthYear(c)
	if !ok {
		return
	}
	seq, _ := strconv.Atoi(c.DefaultQuery("correction_sequence", "0"))

	grid, err := h.attendanceService.MonthGrid(c.Request.Context(), month, year, seq)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, grid))
}

// Generate produces the timesheet document for a month
// @Summary      Generate timesheet
// @Description  Creates the month's lock record in a generated, unapproved state
// @Tags         timesheet
// @Produce      json
// @Security     BearerAuth
// @Param        year   path      int  true  "Year"
// @Param        month  path      int  true  "Month 1..12"
// @Success      201    {object}  response.Response{data=model.LockRecord}
// @Failure      400    {object}  response.Response
// @Router       /api/timesheet/{year}/{month}/generate [post]
func (h *TimesheetHandler) Generate(c *gin.Context) {
	month, year, ok := h.monthYear(c)
	if !ok {
		return
	}

	rec, err := h.lockRegistry.GenerateTimesheet(c.Request.Context(), month, year, actorUUID(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, rec))
}

// Approve seals the main timesheet for a month
// @Summary      Approve timesheet
// @Description  Marks the generated month as approved; the month's main ledger becomes read-only
// @Tags         timesheet
// @Produce      json
// @Security     BearerAuth
// @Param        year   path      int  true  "Year"
// @Param        month  path      int  true  "Month 1..12"
// @Success      200    {object}  response.Response{data=model.LockRecord}
// @Failure      400    {object}  response.Response
// @Failure      404    {object}  response.Response
// @Router       /api/timesheet/{year}/{month}/approve [post]
func (h *TimesheetHandler) Approve(c *gin.Context) {
	month, year, ok := h.monthYear(c)
	if !ok {
		return
	}
	actor := actorUUID(c)
	if actor == nil {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Unknown approver"))
		return
	}

	rec, err := h.lockRegistry.ConfirmApproval(c.Request.Context(), month, year, *actor)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, rec))
}

// ApproveCorrection seals one correction overlay
// @Summary      Approve correction timesheet
// @Description  Seals a correction overlay; the next write against the month opens the following sequence
// @Tags         timesheet
// @Produce      json
// @Security     BearerAuth
// @Param        year   path      int  true  "Year"
// @Param        month  path      int  true  "Month 1..12"
// @Param        seq    path      int  true  "Correction sequence"
// @Success      200    {object}  response.Response{data=model.LockRecord}
// @Failure      400    {object}  response.Response
// @Failure      404    {object}  response.Response
// @Router       /api/timesheet/{year}/{month}/corrections/{seq}/approve [post]
func (h *TimesheetHandler) ApproveCorrection(c *gin.Context) {
	month, year, ok := h.monthYear(c)
	if !ok {
		return
	}
	seq, err := strconv.Atoi(c.Param("seq"))
	if err != nil || seq < 1 {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid correction sequence"))
		return
	}
	actor := actorUUID(c)
	if actor == nil {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Unknown approver"))
		return
	}

	rec, err := h.lockRegistry.ConfirmCorrectionApproval(c.Request.Context(), month, year, seq, *actor)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, rec))
}

// CorrectionMonths lists locked months open for correction entry
// @Summary      List correction-eligible months
// @Tags         timesheet
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=object}
// @Router       /api/timesheet/corrections [get]
func (h *TimesheetHandler) CorrectionMonths(c *gin.Context) {
	months, err := h.lockRegistry.CorrectionMonths(c.Request.Context())
	if err != nil {
		c.JSON(apperr.HTTPStatus(err), response.Error(apperr.HTTPStatus(err), err.Error()))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, map[string]interface{}{
		"months": months,
	}))
}
