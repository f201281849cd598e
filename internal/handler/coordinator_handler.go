package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/studentcrm/studentcrm-api/internal/middleware"
	"github.com/studentcrm/studentcrm-api/internal/models"
	"github.com/studentcrm/studentcrm-api/internal/service"
	appErrors "github.com/studentcrm/studentcrm-api/pkg/errors"
	"github.com/studentcrm/studentcrm-api/pkg/response"
)

// CoordinatorHandler exposes coordinator endpoints.
type CoordinatorHandler struct {
	coordinators *service.CoordinatorService
}

// NewCoordinatorHandler constructs CoordinatorHandler.
func NewCoordinatorHandler(coordinators *service.CoordinatorService) *CoordinatorHandler {
	return &CoordinatorHandler{coordinators: coordinators}
}

// List godoc
// @Summary List coordinators
// @Tags Coordinators
// @Produce json
// @Param search query string false "Search by name or coordinator number"
// @Param department query string false "Filter by department"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /coordinators [get]
func (h *CoordinatorHandler) List(c *gin.Context) {
	var filter models.CoordinatorFilter
	filter.Search = strings.TrimSpace(c.Query("search"))
	filter.Department = c.Query("department")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	coordinators, pagination, err := h.coordinators.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, coordinators, pagination)
}

// Get godoc
// @Summary Get coordinator
// @Tags Coordinators
// @Produce json
// @Param id path string true "Coordinator ID"
// @Success 200 {object} response.Envelope
// @Router /coordinators/{id} [get]
func (h *CoordinatorHandler) Get(c *gin.Context) {
	coordinator, err := h.coordinators.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if middleware.OwnershipOnly(c) {
		claims, ok := currentClaims(c)
		if !ok || claims.AccountID != coordinator.AccountID {
			response.Error(c, appErrors.ErrForbidden)
			return
		}
	}
	response.JSON(c, http.StatusOK, coordinator, nil)
}

// Create godoc
// @Summary Create coordinator with login account
// @Tags Coordinators
// @Accept json
// @Produce json
// @Param payload body service.CreateCoordinatorRequest true "Coordinator payload"
// @Success 201 {object} response.Envelope
// @Router /coordinators [post]
func (h *CoordinatorHandler) Create(c *gin.Context) {
	var req service.CreateCoordinatorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	coordinator, err := h.coordinators.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, coordinator)
}

// Update godoc
// @Summary Update coordinator
// @Tags Coordinators
// @Accept json
// @Produce json
// @Param id path string true "Coordinator ID"
// @Param payload body service.UpdateCoordinatorRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Router /coordinators/{id} [patch]
func (h *CoordinatorHandler) Update(c *gin.Context) {
	var req service.UpdateCoordinatorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	coordinator, err := h.coordinators.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, coordinator, nil)
}

// Delete godoc
// @Summary Delete coordinator and their login account
// @Tags Coordinators
// @Produce json
// @Param id path string true "Coordinator ID"
// @Success 204
// @Router /coordinators/{id} [delete]
func (h *CoordinatorHandler) Delete(c *gin.Context) {
	if err := h.coordinators.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ResetPassword godoc
// @Summary Issue a new temporary password for the coordinator
// @Tags Coordinators
// @Produce json
// @Param id path string true "Coordinator ID"
// @Success 204
// @Router /coordinators/{id}/reset-password [post]
func (h *CoordinatorHandler) ResetPassword(c *gin.Context) {
	if err := h.coordinators.ResetPassword(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
