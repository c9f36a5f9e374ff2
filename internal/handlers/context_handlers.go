package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"access-service/internal/middleware"
	"access-service/internal/models"
	"access-service/internal/services"
)

// ContextHandler exposes the business context hierarchy API
type ContextHandler struct {
	contexts *services.ContextService
}

func NewContextHandler(contexts *services.ContextService) *ContextHandler {
	return &ContextHandler{contexts: contexts}
}

func getPagination(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit
}

func badRequest(c *gin.Context, code, message string) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Success: false,
		Error:   models.Error{Code: code, Message: message},
	})
}

func parseIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "INVALID_ID", "Invalid "+name+" format")
		return uuid.Nil, false
	}
	return id, true
}

// CreateContext creates a business, location or department context
// @Summary Create context
// @Tags contexts
// @Accept json
// @Produce json
// @Param request body models.CreateContextRequest true "Context to create"
// @Success 201 {object} models.ContextResponse
// @Router /contexts [post]
func (h *ContextHandler) CreateContext(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)

	var req models.CreateContextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "INVALID_INPUT", err.Error())
		return
	}

	var createdBy *string
	if userID := c.GetString("user_id"); userID != "" {
		createdBy = &userID
	}

	created, err := h.contexts.CreateContext(c.Request.Context(), tenantID, req, createdBy)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrParentContextNotFound):
			badRequest(c, "PARENT_NOT_FOUND", "Parent context does not exist")
		case errors.Is(err, services.ErrInvalidParentContext):
			badRequest(c, "INVALID_HIERARCHY", "Parent context cannot hold a child of this type")
		case errors.Is(err, models.ErrContextNameRequired),
			errors.Is(err, models.ErrContextNameTooShort),
			errors.Is(err, models.ErrContextNameTooLong),
			errors.Is(err, models.ErrInvalidContextType),
			errors.Is(err, models.ErrBusinessContextHasParent),
			errors.Is(err, models.ErrContextParentRequired):
			badRequest(c, "VALIDATION_FAILED", err.Error())
		default:
			c.Error(middleware.NewDatabaseError("Failed to create context", err))
		}
		return
	}

	c.JSON(http.StatusCreated, models.ContextResponse{Success: true, Data: created})
}

// GetContext retrieves a context by ID
// @Summary Get context
// @Tags contexts
// @Produce json
// @Param id path string true "Context ID"
// @Success 200 {object} models.ContextResponse
// @Router /contexts/{id} [get]
func (h *ContextHandler) GetContext(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	bc, err := h.contexts.GetContext(c.Request.Context(), tenantID, id)
	if err != nil {
		if errors.Is(err, services.ErrContextNotFound) {
			c.JSON(http.StatusNotFound, models.ErrorResponse{
				Success: false,
				Error:   models.Error{Code: "NOT_FOUND", Message: "Context not found"},
			})
			return
		}
		c.Error(middleware.NewDatabaseError("Failed to load context", err))
		return
	}

	c.JSON(http.StatusOK, models.ContextResponse{Success: true, Data: bc})
}

// UpdateContext applies a partial update to a context
// @Summary Update context
// @Tags contexts
// @Accept json
// @Produce json
// @Param id path string true "Context ID"
// @Param request body models.ContextUpdate true "Fields to update"
// @Success 200 {object} models.ContextResponse
// @Router /contexts/{id} [patch]
func (h *ContextHandler) UpdateContext(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var patch models.ContextUpdate
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, "INVALID_INPUT", err.Error())
		return
	}

	if userID := c.GetString("user_id"); userID != "" && patch.UpdatedBy == nil {
		patch.UpdatedBy = &userID
	}

	updated, err := h.contexts.UpdateContext(c.Request.Context(), tenantID, id, patch)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrContextNotFound):
			c.JSON(http.StatusNotFound, models.ErrorResponse{
				Success: false,
				Error:   models.Error{Code: "NOT_FOUND", Message: "Context not found"},
			})
		case errors.Is(err, services.ErrContextVersionStale):
			c.JSON(http.StatusConflict, models.ErrorResponse{
				Success: false,
				Error:   models.Error{Code: "VERSION_CONFLICT", Message: "Context was modified concurrently, reload and retry"},
			})
		case errors.Is(err, models.ErrContextNameRequired),
			errors.Is(err, models.ErrContextNameTooShort),
			errors.Is(err, models.ErrContextNameTooLong):
			badRequest(c, "VALIDATION_FAILED", err.Error())
		default:
			c.Error(middleware.NewDatabaseError("Failed to update context", err))
		}
		return
	}

	c.JSON(http.StatusOK, models.ContextResponse{Success: true, Data: updated})
}

// DeactivateContext soft-disables a context
// @Summary Deactivate context
// @Tags contexts
// @Produce json
// @Param id path string true "Context ID"
// @Success 200 {object} models.ContextResponse
// @Router /contexts/{id} [delete]
func (h *ContextHandler) DeactivateContext(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var updatedBy *string
	if userID := c.GetString("user_id"); userID != "" {
		updatedBy = &userID
	}

	updated, err := h.contexts.DeactivateContext(c.Request.Context(), tenantID, id, updatedBy)
	if err != nil {
		if errors.Is(err, services.ErrContextNotFound) {
			c.JSON(http.StatusNotFound, models.ErrorResponse{
				Success: false,
				Error:   models.Error{Code: "NOT_FOUND", Message: "Context not found"},
			})
			return
		}
		c.Error(middleware.NewDatabaseError("Failed to deactivate context", err))
		return
	}

	c.JSON(http.StatusOK, models.ContextResponse{Success: true, Data: updated})
}

// ListContexts returns a paginated list, optionally filtered by business
// @Summary List contexts
// @Tags contexts
// @Produce json
// @Param businessId query string false "Business ID filter"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} models.ContextListResponse
// @Router /contexts [get]
func (h *ContextHandler) ListContexts(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)
	page, limit := getPagination(c)

	var businessID *uuid.UUID
	if raw := c.Query("businessId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			badRequest(c, "INVALID_ID", "Invalid businessId format")
			return
		}
		businessID = &id
	}

	contexts, pagination, err := h.contexts.ListContexts(c.Request.Context(), tenantID, businessID, page, limit)
	if err != nil {
		c.Error(middleware.NewDatabaseError("Failed to list contexts", err))
		return
	}

	c.JSON(http.StatusOK, models.ContextListResponse{
		Success:    true,
		Data:       contexts,
		Pagination: pagination,
	})
}

// GetChildren lists the direct children of a context
// @Summary List child contexts
// @Tags contexts
// @Produce json
// @Param id path string true "Context ID"
// @Success 200 {object} models.ContextListResponse
// @Router /contexts/{id}/children [get]
func (h *ContextHandler) GetChildren(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	children, err := h.contexts.GetChildren(c.Request.Context(), tenantID, id)
	if err != nil {
		c.Error(middleware.NewDatabaseError("Failed to list children", err))
		return
	}

	c.JSON(http.StatusOK, models.ContextListResponse{Success: true, Data: children})
}

// GetHierarchy returns the full context tree for a business
// @Summary Get context hierarchy
// @Tags contexts
// @Produce json
// @Param businessId path string true "Business ID"
// @Success 200 {object} models.ContextHierarchyResponse
// @Router /businesses/{businessId}/hierarchy [get]
func (h *ContextHandler) GetHierarchy(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)
	businessID, ok := parseIDParam(c, "businessId")
	if !ok {
		return
	}

	tree, err := h.contexts.GetHierarchy(c.Request.Context(), tenantID, businessID)
	if err != nil {
		c.Error(middleware.NewDatabaseError("Failed to load hierarchy", err))
		return
	}

	c.JSON(http.StatusOK, models.ContextHierarchyResponse{Success: true, Data: tree})
}
