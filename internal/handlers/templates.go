package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/bitebell/internal/models"
	"github.com/charlesng35/bitebell/internal/services"
	"github.com/charlesng35/bitebell/pkg/errors"
	"github.com/charlesng35/bitebell/pkg/response"
)

// TemplateHandler exposes template management for the admin console.
type TemplateHandler struct {
	svc *services.TemplateService
}

// NewTemplateHandler constructs a TemplateHandler.
func NewTemplateHandler(svc *services.TemplateService) *TemplateHandler {
	return &TemplateHandler{svc: svc}
}

// GET /api/admin/templates
func (h *TemplateHandler) List(c *gin.Context) {
	templates, err := h.svc.List(requestContext(c))
	if err != nil {
		response.Error(c, errors.ErrUpstreamUnavailable.WithInternal(err))
		return
	}
	response.Success(c, http.StatusOK, templates)
}

// GET /api/admin/templates/:id
func (h *TemplateHandler) Get(c *gin.Context) {
	tpl, err := h.svc.Get(requestContext(c), param(c, "id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, tpl)
}

// GET /api/admin/templates/default/:type
func (h *TemplateHandler) GetDefault(c *gin.Context) {
	notificationType := models.NotificationType(param(c, "type"))
	if !notificationType.Valid() {
		response.Error(c, errors.NewBadRequest("unknown notification type"))
		return
	}
	tpl, err := h.svc.GetDefault(requestContext(c), notificationType)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, tpl)
}

// POST /api/admin/templates
func (h *TemplateHandler) Create(c *gin.Context) {
	var input services.TemplateInput
	if !bindAndValidate(c, &input) {
		return
	}
	tpl, err := h.svc.Create(requestContext(c), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, tpl)
}

// PATCH /api/admin/templates/:id
func (h *TemplateHandler) Update(c *gin.Context) {
	var patch services.TemplatePatch
	if !bindAndValidate(c, &patch) {
		return
	}
	tpl, err := h.svc.Update(requestContext(c), param(c, "id"), patch)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, tpl)
}

// DELETE /api/admin/templates/:id
func (h *TemplateHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(requestContext(c), param(c, "id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// POST /api/admin/templates/preview
func (h *TemplateHandler) Preview(c *gin.Context) {
	var input services.PreviewInput
	if !bindAndValidate(c, &input) {
		return
	}
	result, err := h.svc.Preview(requestContext(c), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}
