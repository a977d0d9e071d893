package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/bitebell/internal/services"
	"github.com/charlesng35/bitebell/pkg/errors"
	"github.com/charlesng35/bitebell/pkg/response"
)

// UserHandler manages the customer records used for segmentation.
type UserHandler struct {
	svc *services.UserService
}

// NewUserHandler constructs a UserHandler.
func NewUserHandler(svc *services.UserService) *UserHandler {
	return &UserHandler{svc: svc}
}

type recordOrderRequest struct {
	PlacedAt *time.Time `json:"placed_at,omitempty"`
}

// POST /api/admin/users
func (h *UserHandler) Register(c *gin.Context) {
	var input services.RegisterUserInput
	if !bindAndValidate(c, &input) {
		return
	}
	user, err := h.svc.Register(requestContext(c), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, user)
}

// GET /api/admin/users
func (h *UserHandler) List(c *gin.Context) {
	users, err := h.svc.List(requestContext(c))
	if err != nil {
		response.Error(c, errors.ErrUpstreamUnavailable.WithInternal(err))
		return
	}
	response.Success(c, http.StatusOK, users)
}

// GET /api/admin/users/:id
func (h *UserHandler) Get(c *gin.Context) {
	user, err := h.svc.Get(requestContext(c), param(c, "id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, user)
}

// PUT /api/admin/users/:id/active
func (h *UserHandler) SetActive(c *gin.Context) {
	var req setActiveRequest
	if !bindAndValidate(c, &req) {
		return
	}
	user, err := h.svc.SetActive(requestContext(c), param(c, "id"), *req.IsActive)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, user)
}

// POST /api/admin/users/:id/orders
func (h *UserHandler) RecordOrder(c *gin.Context) {
	var req recordOrderRequest
	if c.Request.ContentLength > 0 && !bindAndValidate(c, &req) {
		return
	}
	at := time.Now().UTC()
	if req.PlacedAt != nil {
		at = req.PlacedAt.UTC()
	}
	if err := h.svc.RecordOrder(requestContext(c), param(c, "id"), at); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"recorded": true})
}
