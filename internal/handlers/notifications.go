package handlers

import (
	stderrors "errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/bitebell/internal/functions"
	"github.com/charlesng35/bitebell/internal/localstore"
	"github.com/charlesng35/bitebell/internal/services"
	"github.com/charlesng35/bitebell/pkg/errors"
	"github.com/charlesng35/bitebell/pkg/response"
)

// NotificationHandler serves the storefront notification views through the facade, so
// every read answers even when the remote functions are unreachable. Responses carry the
// serving backend in meta.source.
type NotificationHandler struct {
	facade *services.NotificationFacade
}

// NewNotificationHandler constructs a NotificationHandler.
func NewNotificationHandler(facade *services.NotificationFacade) *NotificationHandler {
	return &NotificationHandler{facade: facade}
}

type localCreateRequest struct {
	Type         string `json:"type" validate:"required"`
	Title        string `json:"title" validate:"required"`
	Message      string `json:"message" validate:"required"`
	TargetUserID string `json:"targetUserId,omitempty"`
	ActionURL    string `json:"actionUrl,omitempty"`
	ImageURL     string `json:"imageUrl,omitempty"`
}

// GET /api/notifications
func (h *NotificationHandler) List(c *gin.Context) {
	res := h.facade.GetAllNotifications(requestContext(c), principal(c).UserID)
	response.SuccessFromSource(c, http.StatusOK, res.Data, res.Source)
}

// GET /api/notifications/stats
func (h *NotificationHandler) Stats(c *gin.Context) {
	res := h.facade.GetStats(requestContext(c), principal(c).UserID)
	response.SuccessFromSource(c, http.StatusOK, res.Data, res.Source)
}

// GET /api/notifications/analytics
func (h *NotificationHandler) Analytics(c *gin.Context) {
	res := h.facade.GetAnalytics(requestContext(c))
	response.SuccessFromSource(c, http.StatusOK, res.Data, res.Source)
}

// POST /api/notifications/bulk
func (h *NotificationHandler) Bulk(c *gin.Context) {
	var req functions.BulkRequest
	if !bindAndValidate(c, &req) {
		return
	}
	res, err := h.facade.BulkOperation(requestContext(c), principal(c).UserID, req.IDs, req.Operation)
	if err != nil {
		response.Error(c, errors.ErrBadRequest.WithInternal(err).WithMessage(err.Error()))
		return
	}
	response.SuccessFromSource(c, http.StatusOK, res.Data, res.Source)
}

// POST /api/notifications/schedule
func (h *NotificationHandler) Schedule(c *gin.Context) {
	var req functions.ScheduleRequest
	if !bindAndValidate(c, &req) {
		return
	}
	res := h.facade.ScheduleNotification(requestContext(c), req)
	if res.Data.ID == "" {
		response.Error(c, errors.ErrUpstreamUnavailable)
		return
	}
	response.SuccessFromSource(c, http.StatusCreated, res.Data, res.Source)
}

// POST /api/notifications/segments
func (h *NotificationHandler) Segments(c *gin.Context) {
	var req functions.SegmentRequest
	if !bindAndValidate(c, &req) {
		return
	}
	res := h.facade.SegmentUsers(requestContext(c), req.Filters)
	response.SuccessFromSource(c, http.StatusOK, res.Data, res.Source)
}

// POST /api/notifications/ab-test
func (h *NotificationHandler) ABTest(c *gin.Context) {
	var req functions.ABTestRequest
	if !bindAndValidate(c, &req) {
		return
	}
	res, err := h.facade.RunABTest(requestContext(c), req)
	if err != nil {
		response.Error(c, errors.ErrUpstreamUnavailable.WithInternal(err))
		return
	}
	response.SuccessFromSource(c, http.StatusCreated, res.Data, res.Source)
}

// GET /api/notifications/local
func (h *NotificationHandler) LocalList(c *gin.Context) {
	entries := h.facade.Local().GetByUser(requestContext(c), principal(c).UserID)
	response.SuccessFromSource(c, http.StatusOK, entries, services.DataSourceLocal)
}

// POST /api/notifications/local
func (h *NotificationHandler) LocalCreate(c *gin.Context) {
	var req localCreateRequest
	if !bindAndValidate(c, &req) {
		return
	}
	caller := principal(c)
	target := strings.TrimSpace(req.TargetUserID)
	if target == "" {
		target = caller.UserID
	}
	if target != caller.UserID && !caller.IsAdmin() {
		response.Error(c, errors.ErrForbidden.WithMessage("customers can only create their own notifications"))
		return
	}
	entry, err := h.facade.Local().Create(requestContext(c), localstore.Entry{
		Type:         req.Type,
		Title:        req.Title,
		Message:      req.Message,
		TargetUserID: target,
		ActionURL:    req.ActionURL,
		ImageURL:     req.ImageURL,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessFromSource(c, http.StatusCreated, entry, services.DataSourceLocal)
}

// POST /api/notifications/local/seed
func (h *NotificationHandler) LocalSeed(c *gin.Context) {
	seeded, err := h.facade.Local().SeedDemo(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessFromSource(c, http.StatusOK, gin.H{"seeded": seeded}, services.DataSourceLocal)
}

// PUT /api/notifications/local/:id/read
func (h *NotificationHandler) LocalMarkRead(c *gin.Context) {
	id, ok := h.ownedLocalEntry(c)
	if !ok {
		return
	}
	if err := h.facade.Local().MarkAsRead(requestContext(c), id); err != nil {
		response.Error(c, localError(err))
		return
	}
	response.SuccessFromSource(c, http.StatusOK, gin.H{"read": true}, services.DataSourceLocal)
}

// PUT /api/notifications/local/read-all
func (h *NotificationHandler) LocalMarkAllRead(c *gin.Context) {
	n, err := h.facade.Local().MarkAllAsRead(requestContext(c), principal(c).UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessFromSource(c, http.StatusOK, gin.H{"affected": n}, services.DataSourceLocal)
}

// DELETE /api/notifications/local/:id
func (h *NotificationHandler) LocalDelete(c *gin.Context) {
	id, ok := h.ownedLocalEntry(c)
	if !ok {
		return
	}
	if err := h.facade.Local().Delete(requestContext(c), id); err != nil {
		response.Error(c, localError(err))
		return
	}
	response.SuccessFromSource(c, http.StatusOK, gin.H{"deleted": true}, services.DataSourceLocal)
}

// DELETE /api/notifications/local
func (h *NotificationHandler) LocalClear(c *gin.Context) {
	if err := h.facade.Local().ClearAll(requestContext(c), principal(c).UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessFromSource(c, http.StatusOK, gin.H{"cleared": true}, services.DataSourceLocal)
}

// ownedLocalEntry resolves the :id entry and checks the caller may change it. Entries the
// caller cannot see are reported as missing; shared ones are read-only for customers.
func (h *NotificationHandler) ownedLocalEntry(c *gin.Context) (string, bool) {
	entry, err := h.facade.Local().Get(requestContext(c), param(c, "id"))
	if err != nil {
		response.Error(c, localError(err))
		return "", false
	}
	caller := principal(c)
	if caller.IsAdmin() {
		return entry.ID, true
	}
	if !entry.VisibleTo(caller.UserID) {
		response.Error(c, localError(localstore.ErrNotFound))
		return "", false
	}
	if !entry.OwnedBy(caller.UserID) {
		response.Error(c, errors.ErrForbidden.WithMessage("shared notifications cannot be changed"))
		return "", false
	}
	return entry.ID, true
}

func localError(err error) error {
	if stderrors.Is(err, localstore.ErrNotFound) {
		return errors.ErrNotFound.WithMessage("notification not found")
	}
	return err
}
