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

// TriggerHandler fires automation triggers from order, product and deal events.
type TriggerHandler struct {
	engine *services.AutomationEngine
}

// NewTriggerHandler constructs a TriggerHandler.
func NewTriggerHandler(engine *services.AutomationEngine) *TriggerHandler {
	return &TriggerHandler{engine: engine}
}

type triggerRequest struct {
	TriggerType  models.TriggerType      `json:"trigger_type" validate:"required"`
	Context      services.TriggerContext `json:"context"`
	TargetUserID string                  `json:"target_user_id,omitempty"`
}

// POST /api/admin/trigger
func (h *TriggerHandler) Fire(c *gin.Context) {
	var req triggerRequest
	if !bindAndValidate(c, &req) {
		return
	}
	if !req.TriggerType.Valid() {
		response.Error(c, errors.NewBadRequest("unknown trigger type"))
		return
	}
	result := h.engine.Trigger(requestContext(c), req.TriggerType, req.Context, strings.TrimSpace(req.TargetUserID))
	response.Success(c, http.StatusOK, result)
}
