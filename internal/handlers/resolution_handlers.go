package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"access-service/internal/middleware"
	"access-service/internal/models"
	"access-service/internal/services"
)

// ResolutionHandler exposes the role resolution API used by other services
// for authorization decisions
type ResolutionHandler struct {
	resolution *services.ResolutionService
}

func NewResolutionHandler(resolution *services.ResolutionService) *ResolutionHandler {
	return &ResolutionHandler{resolution: resolution}
}

func parseUserIDQuery(c *gin.Context) (uuid.UUID, bool) {
	userID, err := uuid.Parse(c.Query("userId"))
	if err != nil {
		badRequest(c, "INVALID_ID", "userId query parameter is required and must be a UUID")
		return uuid.Nil, false
	}
	return userID, true
}

// HasRole checks whether a user holds a role at an exact scope. Any internal
// failure is reported as an error rather than a false result so callers can
// distinguish "no" from "unknown".
// @Summary Check role
// @Tags resolution
// @Produce json
// @Param userId query string true "User ID"
// @Param role query string true "Role"
// @Param businessId query string true "Business ID"
// @Param locationId query string false "Location ID"
// @Param departmentId query string false "Department ID"
// @Success 200 {object} models.HasRoleResponse
// @Router /resolve/has-role [get]
func (h *ResolutionHandler) HasRole(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)

	userID, ok := parseUserIDQuery(c)
	if !ok {
		return
	}

	role := models.SystemRole(c.Query("role"))
	if !role.IsValid() {
		badRequest(c, "INVALID_ROLE", "Unknown role")
		return
	}

	scope, ok := scopeFromQuery(c)
	if !ok {
		return
	}

	has, err := h.resolution.HasRoleInContext(c.Request.Context(), tenantID, userID, role, scope)
	if err != nil {
		c.Error(middleware.NewDatabaseError("Failed to resolve role", err))
		return
	}

	c.JSON(http.StatusOK, models.HasRoleResponse{Success: true, HasRole: has})
}

// GetEffectiveRole returns the winning role for a user at an exact scope,
// null when the user holds none there
// @Summary Effective role
// @Tags resolution
// @Produce json
// @Param userId query string true "User ID"
// @Param businessId query string true "Business ID"
// @Param locationId query string false "Location ID"
// @Param departmentId query string false "Department ID"
// @Success 200 {object} models.EffectiveRoleResponse
// @Router /resolve/effective-role [get]
func (h *ResolutionHandler) GetEffectiveRole(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)

	userID, ok := parseUserIDQuery(c)
	if !ok {
		return
	}

	scope, ok := scopeFromQuery(c)
	if !ok {
		return
	}

	role, err := h.resolution.GetEffectiveRole(c.Request.Context(), tenantID, userID, scope)
	if err != nil {
		c.Error(middleware.NewDatabaseError("Failed to resolve role", err))
		return
	}

	c.JSON(http.StatusOK, models.EffectiveRoleResponse{Success: true, Role: role})
}

// CheckConflicts previews the duplicate check for a prospective grant
// @Summary Check grant conflicts
// @Tags resolution
// @Produce json
// @Param userId query string true "User ID"
// @Param role query string true "Role"
// @Param businessId query string true "Business ID"
// @Success 200 {object} models.AssignmentListResponse
// @Router /resolve/conflicts [get]
func (h *ResolutionHandler) CheckConflicts(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)

	userID, ok := parseUserIDQuery(c)
	if !ok {
		return
	}

	role := models.SystemRole(c.Query("role"))
	if !role.IsValid() {
		badRequest(c, "INVALID_ROLE", "Unknown role")
		return
	}

	scope, ok := scopeFromQuery(c)
	if !ok {
		return
	}

	conflicts, err := h.resolution.CheckConflicts(c.Request.Context(), tenantID, userID, role, scope)
	if err != nil {
		c.Error(middleware.NewDatabaseError("Failed to check conflicts", err))
		return
	}

	c.JSON(http.StatusOK, models.AssignmentListResponse{Success: true, Data: conflicts})
}
