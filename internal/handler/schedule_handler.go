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

type ScheduleHandler struct {
	scheduleService service.ScheduleService
}

func NewScheduleHandler(scheduleService service.ScheduleService) *ScheduleHandler {
	return &ScheduleHandler{scheduleService: scheduleService}
}

func (h *ScheduleHandler) RegisterRoutes(router *gin.RouterGroup) {
	schedule := router.Group("/api/schedule")
	{
		schedule.POST("/workdays", middleware.RequireRole(model.RoleAdmin, model.RoleHR), h.GenerateWorkdays)
		schedule.GET("/vacation-slots", middleware.RequireRole(model.RoleAdmin, model.RoleHR, model.RoleViewer), h.VacationSlots)
	}
}

// GenerateWorkdays bulk-fills workday marks for a month
// @Summary      Generate workdays
// @Description  Writes a workday mark for each Mon-Fri of the month per staff member; occupied or locked days are reported as skipped
// @Tags         schedule
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.GenerateWorkdaysRequest  true  "Generation payload"
// @Success      200      {object}  response.Response{data=service.GenerateWorkdaysReport}
// @Failure      400      {object}  response.Response
// @Router       /api/schedule/workdays [post]
func (h *ScheduleHandler) GenerateWorkdays(c *gin.Context) {
	var req service.GenerateWorkdaysRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	report, err := h.scheduleService.GenerateWorkdays(c.Request.Context(), req, actorUUID(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, report))
}

// VacationSlots finds free intervals for vacation planning
// @Summary      Vacation slot search
// @Tags         schedule
// @Produce      json
// @Security     BearerAuth
// @Param        staff_id  query     string  true   "Staff ID"
// @Param        from      query     string  true   "Range start YYYY-MM-DD"
// @Param        to        query     string  true   "Range end YYYY-MM-DD"
// @Param        min_days  query     int     false  "Minimum slot length, default 1"
// @Success      200  {object}  response.Response{data=object}
// @Failure      400  {object}  response.Response
// @Router       /api/schedule/vacation-slots [get]
func (h *ScheduleHandler) VacationSlots(c *gin.Context) {
	minDays, _ := strconv.Atoi(c.DefaultQuery("min_days", "1"))

	slots, err := h.scheduleService.VacationSlots(c.Request.Context(), c.Query("staff_id"), c.Query("from"), c.Query("to"), minDays)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, map[string]interface{}{
		"slots": slots,
		"total": len(slots),
	}))
}
