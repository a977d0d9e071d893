package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/bitebell/internal/functions"
	"github.com/charlesng35/bitebell/internal/services"
	"github.com/charlesng35/bitebell/pkg/errors"
	"github.com/charlesng35/bitebell/pkg/response"
)

const (
	defaultFunctionListLimit = 50
	maxFunctionListLimit     = 200
)

// FunctionsHandler serves the callable notification functions. Every response uses the
// standard envelope; success=false is what remote callers treat as a logical failure.
type FunctionsHandler struct {
	notifications *services.NotificationService
	engagement    *services.EngagementService
}

// NewFunctionsHandler constructs a FunctionsHandler.
func NewFunctionsHandler(notifications *services.NotificationService, engagement *services.EngagementService) *FunctionsHandler {
	return &FunctionsHandler{notifications: notifications, engagement: engagement}
}

// GET /functions/v1/notifications?user_id=&limit=&unread=true
func (h *FunctionsHandler) List(c *gin.Context) {
	limit := parseIntQuery(c, "limit", defaultFunctionListLimit)
	if limit <= 0 || limit > maxFunctionListLimit {
		limit = defaultFunctionListLimit
	}
	rows, err := h.notifications.List(requestContext(c), services.ListNotificationsInput{
		UserID:     scopedUserID(c),
		Limit:      limit,
		Offset:     parseIntQuery(c, "offset", 0),
		UnreadOnly: c.Query("unread") == "true",
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, rows)
}

// POST /functions/v1/notifications
func (h *FunctionsHandler) Create(c *gin.Context) {
	var req functions.ScheduleRequest
	if !bindAndValidate(c, &req) {
		return
	}
	result, err := h.engagement.Schedule(requestContext(c), principal(c).UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, result)
}

// GET /functions/v1/notifications/stats?user_id=
func (h *FunctionsHandler) Stats(c *gin.Context) {
	stats, err := h.notifications.Stats(requestContext(c), scopedUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, stats)
}

// GET /functions/v1/notifications/analytics
func (h *FunctionsHandler) Analytics(c *gin.Context) {
	analytics, err := h.engagement.Analytics(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, analytics)
}

// POST /functions/v1/notifications/bulk
func (h *FunctionsHandler) Bulk(c *gin.Context) {
	var req functions.BulkRequest
	if !bindAndValidate(c, &req) {
		return
	}
	userID := scopedUserID(c)
	if userID == "" && !principal(c).IsAdmin() {
		response.Error(c, errors.ErrBadRequest.WithMessage("user_id is required"))
		return
	}
	result, err := h.notifications.Bulk(requestContext(c), userID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

// POST /functions/v1/notifications/segments
func (h *FunctionsHandler) Segments(c *gin.Context) {
	var req functions.SegmentRequest
	if !bindAndValidate(c, &req) {
		return
	}
	result, err := h.engagement.Segments(requestContext(c), req.Filters)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

// POST /functions/v1/notifications/ab-test
func (h *FunctionsHandler) ABTest(c *gin.Context) {
	var req functions.ABTestRequest
	if !bindAndValidate(c, &req) {
		return
	}
	result, err := h.engagement.ABTest(requestContext(c), principal(c).UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, result)
}
