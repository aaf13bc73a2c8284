package handler

import (
	"net/http"

	"tabel/internal/middleware"
	"tabel/internal/model"
	"tabel/internal/repository"
	"tabel/internal/service"
	"tabel/pkg/pagination"
	"tabel/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type DocumentHandler struct {
	workflowService service.WorkflowService
}

func NewDocumentHandler(workflowService service.WorkflowService) *DocumentHandler {
	return &DocumentHandler{workflowService: workflowService}
}

func (h *DocumentHandler) RegisterRoutes(router *gin.RouterGroup) {
	docs := router.Group("/api/documents")
	{
		docs.GET("", middleware.RequireRole(model.RoleAdmin, model.RoleHR, model.RoleViewer), h.List)
		docs.GET("/:id", middleware.RequireRole(model.RoleAdmin, model.RoleHR, model.RoleViewer), h.Get)
		docs.GET("/:id/render", middleware.RequireRole(model.RoleAdmin, model.RoleHR, model.RoleViewer), h.Render)
		docs.POST("", middleware.RequireRole(model.RoleAdmin, model.RoleHR), h.Create)
		docs.PUT("/:id/steps/:stepID/complete", middleware.RequireRole(model.RoleAdmin, model.RoleHR), h.CompleteStep)
		docs.PUT("/:id/steps/:stepID/clear", middleware.RequireRole(model.RoleAdmin, model.RoleHR), h.ClearStep)
		docs.POST("/:id/rollback", middleware.RequireRole(model.RoleAdmin, model.RoleHR), h.Rollback)
	}
}

// Create opens a vacation document with its signing route
// @Summary      Create document
// @Description  Creates a vacation or leave document in draft with the approval steps laid out
// @Tags         documents
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreateDocumentRequest  true  "Document payload"
// @Success      201      {object}  response.Response{data=model.Document}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/documents [post]
func (h *DocumentHandler) Create(c *gin.Context) {
	var req service.CreateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	doc, err := h.workflowService.CreateDocument(c.Request.Context(), req, actorUUID(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, doc))
}

// Get fetches one document with steps and staff preloaded
// @Summary      Get document
// @Tags         documents
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Document ID"
// @Success      200  {object}  response.Response{data=model.Document}
// @Failure      404  {object}  response.Response
// @Router       /api/documents/{id} [get]
func (h *DocumentHandler) Get(c *gin.Context) {
	doc, err := h.workflowService.GetDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, doc))
}

// List returns documents with optional filters
// @Summary      List documents
// @Tags         documents
// @Produce      json
// @Security     BearerAuth
// @Param        staff_id  query     string  false  "Staff filter"
// @Param        status    query     string  false  "Status filter"
// @Param        type      query     string  false  "Document type filter"
// @Param        page      query     int     false  "Page number"
// @Param        limit     query     int     false  "Items per page"
// @Success      200  {object}  response.Response{data=object}
// @Router       /api/documents [get]
func (h *DocumentHandler) List(c *gin.Context) {
	p := pagination.Parse(c)
	filter := repository.DocumentFilter{
		Status: c.Query("status"),
		Type:   c.Query("type"),
		Page:   p.Page,
		Limit:  p.Limit,
	}
	if raw := c.Query("staff_id"); raw != "" {
		staffID, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid staff_id"))
			return
		}
		filter.StaffID = &staffID
	}

	docs, total, err := h.workflowService.ListDocuments(c.Request.Context(), filter)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, map[string]interface{}{
		"documents": docs,
		"total":     total,
		"page":      p.Page,
		"limit":     p.Limit,
	}))
}

// CompleteStep marks one signing step as done
// @Summary      Complete document step
// @Description  Completes a step; completing the rector step writes the document's days into the timesheet
// @Tags         documents
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                      true   "Document ID"
// @Param        stepID   path      string                      true   "Step row ID"
// @Param        payload  body      service.CompleteStepRequest false  "Optional comment"
// @Success      200      {object}  response.Response{data=model.Document}
// @Failure      404      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/documents/{id}/steps/{stepID}/complete [put]
func (h *DocumentHandler) CompleteStep(c *gin.Context) {
	var req service.CompleteStepRequest
	// Body is optional; a missing body means no comment
	_ = c.ShouldBindJSON(&req)

	doc, err := h.workflowService.CompleteStep(c.Request.Context(), c.Param("id"), c.Param("stepID"), req.Comment, actorUUID(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, doc))
}

// ClearStep un-marks one signing step
// @Summary      Clear document step
// @Description  Reopens a step; attendance already written by the rector step stays in the ledger
// @Tags         documents
// @Produce      json
// @Security     BearerAuth
// @Param        id      path      string  true  "Document ID"
// @Param        stepID  path      string  true  "Step row ID"
// @Success      200     {object}  response.Response{data=model.Document}
// @Failure      404     {object}  response.Response
// @Router       /api/documents/{id}/steps/{stepID}/clear [put]
func (h *DocumentHandler) ClearStep(c *gin.Context) {
	doc, err := h.workflowService.ClearStep(c.Request.Context(), c.Param("id"), c.Param("stepID"), actorUUID(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, doc))
}

// Rollback returns a document to draft
// @Summary      Rollback document to draft
// @Description  Clears every step and correction binding; refused while the document's ledger artifacts sit in a sealed partition
// @Tags         documents
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Document ID"
// @Success      200  {object}  response.Response{data=model.Document}
// @Failure      423  {object}  response.Response
// @Router       /api/documents/{id}/rollback [post]
func (h *DocumentHandler) Rollback(c *gin.Context) {
	doc, err := h.workflowService.RollbackToDraft(c.Request.Context(), c.Param("id"), actorUUID(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, doc))
}

// Render produces the printable order for a document
// @Summary      Render document
// @Tags         documents
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Document ID"
// @Success      200  {object}  response.Response{data=object}
// @Failure      404  {object}  response.Response
// @Router       /api/documents/{id}/render [get]
func (h *DocumentHandler) Render(c *gin.Context) {
	path, err := h.workflowService.RenderDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, map[string]string{
		"file": path,
	}))
}
