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

// CampaignHandler exposes campaign management and manual dispatch.
type CampaignHandler struct {
	svc *services.CampaignService
}

// NewCampaignHandler constructs a CampaignHandler.
func NewCampaignHandler(svc *services.CampaignService) *CampaignHandler {
	return &CampaignHandler{svc: svc}
}

// GET /api/admin/campaigns?status=
func (h *CampaignHandler) List(c *gin.Context) {
	filter := services.CampaignFilter{Status: models.CampaignStatus(strings.TrimSpace(c.Query("status")))}
	campaigns, err := h.svc.List(requestContext(c), filter)
	if err != nil {
		response.Error(c, errors.ErrUpstreamUnavailable.WithInternal(err))
		return
	}
	response.Success(c, http.StatusOK, campaigns)
}

// GET /api/admin/campaigns/:id
func (h *CampaignHandler) Get(c *gin.Context) {
	campaign, err := h.svc.Get(requestContext(c), param(c, "id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, campaign)
}

// POST /api/admin/campaigns
func (h *CampaignHandler) Create(c *gin.Context) {
	var input services.CampaignInput
	if !bindAndValidate(c, &input) {
		return
	}
	input.CreatedBy = principal(c).UserID
	campaign, err := h.svc.Create(requestContext(c), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, campaign)
}

// PATCH /api/admin/campaigns/:id
func (h *CampaignHandler) Update(c *gin.Context) {
	var patch services.CampaignPatch
	if !bindAndValidate(c, &patch) {
		return
	}
	campaign, err := h.svc.Update(requestContext(c), param(c, "id"), patch)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, campaign)
}

// DELETE /api/admin/campaigns/:id
func (h *CampaignHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(requestContext(c), param(c, "id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// POST /api/admin/campaigns/:id/send
func (h *CampaignHandler) Send(c *gin.Context) {
	campaign, err := h.svc.SendNow(requestContext(c), param(c, "id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, campaign)
}

// POST /api/admin/campaigns/:id/cancel
func (h *CampaignHandler) Cancel(c *gin.Context) {
	campaign, err := h.svc.Cancel(requestContext(c), param(c, "id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, campaign)
}

// POST /api/admin/campaigns/process runs one dispatcher pass on demand. Partial failures
// still report the pass summary.
func (h *CampaignHandler) Process(c *gin.Context) {
	result, err := h.svc.ProcessScheduled(requestContext(c))
	if err != nil && result.Due == 0 {
		response.Error(c, errors.ErrUpstreamUnavailable.WithInternal(err))
		return
	}
	response.Success(c, http.StatusOK, result)
}
