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

// AssignmentHandler exposes the role assignment API
type AssignmentHandler struct {
	resolution *services.ResolutionService
}

func NewAssignmentHandler(resolution *services.ResolutionService) *AssignmentHandler {
	return &AssignmentHandler{resolution: resolution}
}

// scopeFromQuery builds an assignment scope from query parameters.
// businessId is required, locationId and departmentId are optional.
func scopeFromQuery(c *gin.Context) (models.AssignmentContext, bool) {
	businessID, err := uuid.Parse(c.Query("businessId"))
	if err != nil {
		badRequest(c, "INVALID_ID", "businessId query parameter is required and must be a UUID")
		return models.AssignmentContext{}, false
	}

	scope := models.AssignmentContext{BusinessID: businessID}
	if raw := c.Query("locationId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			badRequest(c, "INVALID_ID", "Invalid locationId format")
			return models.AssignmentContext{}, false
		}
		scope.LocationID = &id
	}
	if raw := c.Query("departmentId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			badRequest(c, "INVALID_ID", "Invalid departmentId format")
			return models.AssignmentContext{}, false
		}
		scope.DepartmentID = &id
	}
	return scope, true
}

// GrantRole creates a new role assignment
// @Summary Grant role
// @Tags assignments
// @Accept json
// @Produce json
// @Param request body models.GrantRoleRequest true "Role to grant"
// @Success 201 {object} models.AssignmentResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /assignments [post]
func (h *AssignmentHandler) GrantRole(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)

	var req models.GrantRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "INVALID_INPUT", err.Error())
		return
	}

	assignment, err := h.resolution.GrantRole(c.Request.Context(), tenantID, req)
	if err != nil {
		var dup *services.DuplicateAssignmentError
		switch {
		case errors.As(err, &dup):
			c.JSON(http.StatusConflict, models.ErrorResponse{
				Success: false,
				Error:   models.Error{Code: "DUPLICATE_ASSIGNMENT", Message: "User already holds this role at this scope"},
				Details: dup.Conflicts,
			})
		case errors.Is(err, services.ErrUnknownRole):
			badRequest(c, "INVALID_ROLE", "Unknown role")
		default:
			c.Error(middleware.NewDatabaseError("Failed to grant role", err))
		}
		return
	}

	c.JSON(http.StatusCreated, models.AssignmentResponse{Success: true, Data: assignment})
}

// GetAssignment retrieves one assignment by ID
// @Summary Get assignment
// @Tags assignments
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 200 {object} models.AssignmentResponse
// @Router /assignments/{id} [get]
func (h *AssignmentHandler) GetAssignment(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	assignment, err := h.resolution.GetAssignment(c.Request.Context(), tenantID, id)
	if err != nil {
		c.Error(middleware.NewDatabaseError("Failed to load assignment", err))
		return
	}
	if assignment == nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Success: false,
			Error:   models.Error{Code: "NOT_FOUND", Message: "Assignment not found"},
		})
		return
	}

	c.JSON(http.StatusOK, models.AssignmentResponse{Success: true, Data: assignment})
}

// RevokeAssignment soft-deletes an assignment
// @Summary Revoke assignment
// @Tags assignments
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 200 {object} models.AssignmentResponse
// @Router /assignments/{id} [delete]
func (h *AssignmentHandler) RevokeAssignment(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	revoked, err := h.resolution.RevokeRole(c.Request.Context(), tenantID, id)
	if err != nil {
		c.Error(middleware.NewDatabaseError("Failed to revoke assignment", err))
		return
	}
	if !revoked {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Success: false,
			Error:   models.Error{Code: "NOT_FOUND", Message: "Assignment not found"},
		})
		return
	}

	message := "Assignment revoked"
	c.JSON(http.StatusOK, models.AssignmentResponse{Success: true, Message: &message})
}

// ReactivateAssignment restores a revoked assignment. The original expiry
// still applies; a lapsed assignment stays invalid after reactivation.
// @Summary Reactivate assignment
// @Tags assignments
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 200 {object} models.AssignmentResponse
// @Router /assignments/{id}/reactivate [post]
func (h *AssignmentHandler) ReactivateAssignment(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	assignment, err := h.resolution.ReactivateAssignment(c.Request.Context(), tenantID, id)
	if err != nil {
		c.Error(middleware.NewDatabaseError("Failed to reactivate assignment", err))
		return
	}
	if assignment == nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Success: false,
			Error:   models.Error{Code: "NOT_FOUND", Message: "Assignment not found"},
		})
		return
	}

	c.JSON(http.StatusOK, models.AssignmentResponse{Success: true, Data: assignment})
}

// ListUserAssignments returns a user's assignments
// @Summary List user assignments
// @Tags assignments
// @Produce json
// @Param userId path string true "User ID"
// @Param activeOnly query bool false "Only currently valid assignments"
// @Success 200 {object} models.AssignmentListResponse
// @Router /users/{userId}/assignments [get]
func (h *AssignmentHandler) ListUserAssignments(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)
	userID, ok := parseIDParam(c, "userId")
	if !ok {
		return
	}

	activeOnly := c.DefaultQuery("activeOnly", "false") == "true"

	assignments, err := h.resolution.ListUserAssignments(c.Request.Context(), tenantID, userID, activeOnly)
	if err != nil {
		c.Error(middleware.NewDatabaseError("Failed to list assignments", err))
		return
	}

	c.JSON(http.StatusOK, models.AssignmentListResponse{Success: true, Data: assignments})
}

// GetAssignmentHistory returns a user's assignment history, newest first
// @Summary Assignment history
// @Tags assignments
// @Produce json
// @Param userId path string true "User ID"
// @Param includeCurrent query bool false "Include active assignments"
// @Success 200 {object} models.AssignmentListResponse
// @Router /users/{userId}/assignments/history [get]
func (h *AssignmentHandler) GetAssignmentHistory(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)
	userID, ok := parseIDParam(c, "userId")
	if !ok {
		return
	}

	includeCurrent := c.DefaultQuery("includeCurrent", "false") == "true"

	history, err := h.resolution.GetAssignmentHistory(c.Request.Context(), tenantID, userID, includeCurrent)
	if err != nil {
		c.Error(middleware.NewDatabaseError("Failed to load history", err))
		return
	}

	c.JSON(http.StatusOK, models.AssignmentListResponse{Success: true, Data: history})
}

// FilterAssignments runs the paginated multi-facet search
// @Summary Filter assignments
// @Tags assignments
// @Accept json
// @Produce json
// @Param request body models.AssignmentFilters true "Filters"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} models.AssignmentListResponse
// @Router /assignments/filter [post]
func (h *AssignmentHandler) FilterAssignments(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)
	page, limit := getPagination(c)

	var filters models.AssignmentFilters
	if err := c.ShouldBindJSON(&filters); err != nil {
		badRequest(c, "INVALID_INPUT", err.Error())
		return
	}

	result, err := h.resolution.ListAssignments(c.Request.Context(), tenantID, filters, page, limit)
	if err != nil {
		c.Error(middleware.NewDatabaseError("Failed to filter assignments", err))
		return
	}

	totalPages := int((result.Total + int64(limit) - 1) / int64(limit))
	c.JSON(http.StatusOK, models.AssignmentListResponse{
		Success: true,
		Data:    result.Data,
		Pagination: &models.PaginationInfo{
			Page:        result.Page,
			Limit:       result.Limit,
			Total:       result.Total,
			TotalPages:  totalPages,
			HasNext:     result.Page < totalPages,
			HasPrevious: result.Page > 1,
		},
	})
}

// SearchAssignments runs a free-text search over assigner names and notes
// @Summary Search assignments
// @Tags assignments
// @Produce json
// @Param q query string true "Search text"
// @Success 200 {object} models.AssignmentListResponse
// @Router /assignments/search [get]
func (h *AssignmentHandler) SearchAssignments(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)

	query := c.Query("q")
	if query == "" {
		badRequest(c, "INVALID_INPUT", "q query parameter is required")
		return
	}

	var scope *models.AssignmentContext
	if c.Query("businessId") != "" {
		s, ok := scopeFromQuery(c)
		if !ok {
			return
		}
		scope = &s
	}

	assignments, err := h.resolution.SearchAssignments(c.Request.Context(), tenantID, query, scope)
	if err != nil {
		c.Error(middleware.NewDatabaseError("Failed to search assignments", err))
		return
	}

	c.JSON(http.StatusOK, models.AssignmentListResponse{Success: true, Data: assignments})
}

// GetExpiringSoon lists active assignments nearing expiry
// @Summary Expiring assignments
// @Tags assignments
// @Produce json
// @Param days query int false "Window in days (default 7)"
// @Success 200 {object} models.AssignmentListResponse
// @Router /assignments/expiring [get]
func (h *AssignmentHandler) GetExpiringSoon(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)

	days, _ := strconv.Atoi(c.DefaultQuery("days", "7"))

	assignments, err := h.resolution.FindExpiringSoon(c.Request.Context(), tenantID, days)
	if err != nil {
		c.Error(middleware.NewDatabaseError("Failed to list expiring assignments", err))
		return
	}

	c.JSON(http.StatusOK, models.AssignmentListResponse{Success: true, Data: assignments})
}

// GetStats aggregates assignment counters
// @Summary Assignment statistics
// @Tags assignments
// @Produce json
// @Param businessId query string false "Business ID filter"
// @Success 200 {object} map[string]interface{}
// @Router /assignments/stats [get]
func (h *AssignmentHandler) GetStats(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)

	var businessID *uuid.UUID
	if raw := c.Query("businessId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			badRequest(c, "INVALID_ID", "Invalid businessId format")
			return
		}
		businessID = &id
	}

	stats, err := h.resolution.GetAssignmentStats(c.Request.Context(), tenantID, businessID)
	if err != nil {
		c.Error(middleware.NewDatabaseError("Failed to compute statistics", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": stats})
}

// GetUsersWithRole lists distinct users holding a role at a scope
// @Summary Users with role
// @Tags assignments
// @Produce json
// @Param role query string true "Role"
// @Param businessId query string true "Business ID"
// @Success 200 {object} map[string]interface{}
// @Router /assignments/users [get]
func (h *AssignmentHandler) GetUsersWithRole(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)

	role := models.SystemRole(c.Query("role"))
	if !role.IsValid() {
		badRequest(c, "INVALID_ROLE", "Unknown role")
		return
	}

	scope, ok := scopeFromQuery(c)
	if !ok {
		return
	}

	users, err := h.resolution.FindUsersWithRoleInContext(c.Request.Context(), tenantID, role, scope)
	if err != nil {
		c.Error(middleware.NewDatabaseError("Failed to list users", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": users})
}

// TransferAssignments moves all valid assignments between users
// @Summary Transfer assignments
// @Tags assignments
// @Accept json
// @Produce json
// @Param request body models.TransferAssignmentsRequest true "Transfer request"
// @Success 200 {object} map[string]interface{}
// @Router /assignments/transfer [post]
func (h *AssignmentHandler) TransferAssignments(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)

	var req models.TransferAssignmentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "INVALID_INPUT", err.Error())
		return
	}

	report, err := h.resolution.TransferAssignments(c.Request.Context(), tenantID, req.FromUserID, req.ToUserID, req.TransferredBy)
	if err != nil {
		c.Error(middleware.NewDatabaseError("Failed to transfer assignments", err))
		return
	}

	status := http.StatusOK
	if len(report.Failed) > 0 {
		// partial completion
		status = http.StatusMultiStatus
	}
	c.JSON(status, gin.H{"success": len(report.Failed) == 0, "data": report})
}
