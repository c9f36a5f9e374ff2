package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"access-service/internal/models"
	"access-service/internal/services"
)

// AccessMiddleware authorizes requests against role assignments. The scope
// being accessed comes from the X-Business-ID, X-Location-ID and
// X-Department-ID headers set by the frontend proxy.
type AccessMiddleware struct {
	resolution *services.ResolutionService
	logger     *logrus.Entry
}

func NewAccessMiddleware(resolution *services.ResolutionService, logger *logrus.Logger) *AccessMiddleware {
	return &AccessMiddleware{
		resolution: resolution,
		logger:     logger.WithField("component", "access_middleware"),
	}
}

// RequireAnyRole allows the request through when the user holds any of the
// given roles at the requested scope. Lookup failures deny access.
func (m *AccessMiddleware) RequireAnyRole(roles ...models.SystemRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := GetTenantID(c)
		userID := GetUserID(c)
		if userID == uuid.Nil {
			m.forbidden(c, "User context not found")
			return
		}

		scope, ok := scopeFromHeaders(c)
		if !ok {
			m.forbidden(c, "Access scope headers missing or malformed")
			return
		}

		for _, role := range roles {
			has, err := m.resolution.HasRoleInContext(c.Request.Context(), tenantID, userID, role, scope)
			if err != nil {
				m.logger.WithError(err).Warn("Role check failed, denying access")
				m.forbidden(c, "Failed to verify permissions")
				return
			}
			if has {
				c.Next()
				return
			}
		}

		m.forbidden(c, "Insufficient permissions")
	}
}

func scopeFromHeaders(c *gin.Context) (models.AssignmentContext, bool) {
	businessID, err := uuid.Parse(c.GetHeader("X-Business-ID"))
	if err != nil {
		return models.AssignmentContext{}, false
	}

	scope := models.AssignmentContext{BusinessID: businessID}
	if raw := c.GetHeader("X-Location-ID"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return models.AssignmentContext{}, false
		}
		scope.LocationID = &id
	}
	if raw := c.GetHeader("X-Department-ID"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return models.AssignmentContext{}, false
		}
		scope.DepartmentID = &id
	}
	return scope, true
}

func (m *AccessMiddleware) forbidden(c *gin.Context, message string) {
	c.JSON(http.StatusForbidden, models.ErrorResponse{
		Success: false,
		Error: models.Error{
			Code:    "FORBIDDEN",
			Message: message,
		},
	})
	c.Abort()
}
