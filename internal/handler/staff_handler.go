package handler

import (
	"net/http"

	"tabel/internal/middleware"
	"tabel/internal/model"
	"tabel/internal/service"
	"tabel/pkg/pagination"
	"tabel/pkg/response"

	"github.com/gin-gonic/gin"
)

type StaffHandler struct {
	staffService service.StaffService
}

func NewStaffHandler(staffService service.StaffService) *StaffHandler {
	return &StaffHandler{staffService: staffService}
}

func (h *StaffHandler) RegisterRoutes(router *gin.RouterGroup) {
	staff := router.Group("/api/staff")
	{
		staff.GET("", middleware.RequireRole(model.RoleAdmin, model.RoleHR, model.RoleViewer), h.List)
		staff.GET("/:id", middleware.RequireRole(model.RoleAdmin, model.RoleHR, model.RoleViewer), h.Get)
		staff.POST("", middleware.RequireRole(model.RoleAdmin, model.RoleHR), h.Create)
		staff.PUT("/:id", middleware.RequireRole(model.RoleAdmin, model.RoleHR), h.Update)
	}
}

// Create registers a new staff member
// @Summary      Create staff member
// @Tags         staff
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreateStaffRequest  true  "Staff payload"
// @Success      201      {object}  response.Response{data=model.Staff}
// @Failure      400      {object}  response.Response
// @Router       /api/staff [post]
func (h *StaffHandler) Create(c *gin.Context) {
	var req service.CreateStaffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	staff, err := h.staffService.Create(c.Request.Context(), req, actorUUID(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, staff))
}

// Get fetches one staff member
// @Summary      Get staff member
// @Tags         staff
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Staff ID"
// @Success      200  {object}  response.Response{data=model.Staff}
// @Failure      404  {object}  response.Response
// @Router       /api/staff/{id} [get]
func (h *StaffHandler) Get(c *gin.Context) {
	staff, err := h.staffService.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, staff))
}

// List returns staff, optionally filtered by department
// @Summary      List staff
// @Tags         staff
// @Produce      json
// @Security     BearerAuth
// @Param        department  query     string  false  "Department filter"
// @Param        page        query     int     false  "Page number"
// @Param        limit       query     int     false  "Items per page"
// @Success      200  {object}  response.Response{data=object}
// @Router       /api/staff [get]
func (h *StaffHandler) List(c *gin.Context) {
	p := pagination.Parse(c)
	staff, total, err := h.staffService.List(c.Request.Context(), c.Query("department"), p.Page, p.Limit)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, map[string]interface{}{
		"staff": staff,
		"total": total,
		"page":  p.Page,
		"limit": p.Limit,
	}))
}

// Update edits a staff member's registry entry
// @Summary      Update staff member
// @Tags         staff
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                      true  "Staff ID"
// @Param        payload  body      service.UpdateStaffRequest  true  "Fields to change"
// @Success      200      {object}  response.Response{data=model.Staff}
// @Failure      404      {object}  response.Response
// @Router       /api/staff/{id} [put]
func (h *StaffHandler) Update(c *gin.Context) {
	var req service.UpdateStaffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	staff, err := h.staffService.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, staff))
}
