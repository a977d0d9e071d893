package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/bitebell/internal/models"
	"github.com/charlesng35/bitebell/internal/services"
	"github.com/charlesng35/bitebell/pkg/errors"
	"github.com/charlesng35/bitebell/pkg/response"
)

// AutomationHandler exposes automation rule management.
type AutomationHandler struct {
	svc *services.AutomationService
}

// NewAutomationHandler constructs an AutomationHandler.
func NewAutomationHandler(svc *services.AutomationService) *AutomationHandler {
	return &AutomationHandler{svc: svc}
}

type setActiveRequest struct {
	IsActive *bool `json:"is_active" validate:"required"`
}

// GET /api/admin/automations?trigger_type=&active=true
func (h *AutomationHandler) List(c *gin.Context) {
	filter := services.AutomationFilter{
		TriggerType: models.TriggerType(strings.TrimSpace(c.Query("trigger_type"))),
		ActiveOnly:  c.Query("active") == "true",
	}
	rules, err := h.svc.List(requestContext(c), filter)
	if err != nil {
		response.Error(c, errors.ErrUpstreamUnavailable.WithInternal(err))
		return
	}
	response.Success(c, http.StatusOK, rules)
}

// GET /api/admin/automations/:id
func (h *AutomationHandler) Get(c *gin.Context) {
	rule, err := h.svc.Get(requestContext(c), param(c, "id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, rule)
}

// POST /api/admin/automations
func (h *AutomationHandler) Create(c *gin.Context) {
	var input services.AutomationInput
	if !bindAndValidate(c, &input) {
		return
	}
	rule, err := h.svc.Create(requestContext(c), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, rule)
}

// PATCH /api/admin/automations/:id
func (h *AutomationHandler) Update(c *gin.Context) {
	var patch services.AutomationPatch
	if !bindAndValidate(c, &patch) {
		return
	}
	rule, err := h.svc.Update(requestContext(c), param(c, "id"), patch)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, rule)
}

// PUT /api/admin/automations/:id/active
func (h *AutomationHandler) SetActive(c *gin.Context) {
	var req setActiveRequest
	if !bindAndValidate(c, &req) {
		return
	}
	rule, err := h.svc.SetActive(requestContext(c), param(c, "id"), *req.IsActive)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, rule)
}

// DELETE /api/admin/automations/:id
func (h *AutomationHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(requestContext(c), param(c, "id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}
