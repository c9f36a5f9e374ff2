package models

import (
	"time"

	"github.com/google/uuid"
)

// SystemRole represents one of the fixed system roles
type SystemRole string

const (
	RoleSuperAdmin        SystemRole = "SUPER_ADMIN"
	RoleBusinessOwner     SystemRole = "BUSINESS_OWNER"
	RoleBusinessManager   SystemRole = "BUSINESS_MANAGER"
	RoleLocationManager   SystemRole = "LOCATION_MANAGER"
	RoleDepartmentManager SystemRole = "DEPARTMENT_MANAGER"
	RoleStaff             SystemRole = "STAFF"
	RoleViewer            SystemRole = "VIEWER"
)

// SystemRoles lists every known role
var SystemRoles = []SystemRole{
	RoleSuperAdmin,
	RoleBusinessOwner,
	RoleBusinessManager,
	RoleLocationManager,
	RoleDepartmentManager,
	RoleStaff,
	RoleViewer,
}

// IsValid reports whether r is a known system role
func (r SystemRole) IsValid() bool {
	for _, known := range SystemRoles {
		if r == known {
			return true
		}
	}
	return false
}

// AssignmentScope indicates the granularity of a grant
type AssignmentScope string

const (
	ScopeBusiness   AssignmentScope = "BUSINESS"
	ScopeLocation   AssignmentScope = "LOCATION"
	ScopeDepartment AssignmentScope = "DEPARTMENT"
)

// AssignmentContext identifies where a grant applies. BusinessID is always
// present; LocationID and DepartmentID narrow the scope when set.
type AssignmentContext struct {
	BusinessID   uuid.UUID  `json:"businessId"`
	LocationID   *uuid.UUID `json:"locationId,omitempty"`
	DepartmentID *uuid.UUID `json:"departmentId,omitempty"`
}

// Scope returns the granularity implied by the most specific id present
func (c AssignmentContext) Scope() AssignmentScope {
	if c.DepartmentID != nil {
		return ScopeDepartment
	}
	if c.LocationID != nil {
		return ScopeLocation
	}
	return ScopeBusiness
}

// RoleAssignment represents the grant of one role to one user within one
// context of the organizational hierarchy. Soft-deleting (is_active=false) is
// the only delete mechanism; EXPIRED is derived at read time, never stored.
type RoleAssignment struct {
	ID             uuid.UUID       `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TenantID       string          `json:"tenantId" gorm:"not null;index"`
	UserID         uuid.UUID       `json:"userId" gorm:"type:uuid;not null;index"`
	Role           SystemRole      `json:"role" gorm:"not null;index"`
	BusinessID     uuid.UUID       `json:"businessId" gorm:"type:uuid;not null;index"`
	LocationID     *uuid.UUID      `json:"locationId,omitempty" gorm:"type:uuid;index"`
	DepartmentID   *uuid.UUID      `json:"departmentId,omitempty" gorm:"type:uuid;index"`
	Scope          AssignmentScope `json:"assignmentScope" gorm:"not null"`
	IsActive       bool            `json:"isActive" gorm:"default:true"`
	ExpiresAt      *time.Time      `json:"expiresAt,omitempty"`
	AssignedBy     *uuid.UUID      `json:"assignedBy,omitempty" gorm:"type:uuid"`
	AssignedByName *string         `json:"assignedByName,omitempty"`
	Notes          *string         `json:"notes,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

func (RoleAssignment) TableName() string {
	return "role_assignments"
}

// Context returns the scope triple of this assignment
func (a *RoleAssignment) Context() AssignmentContext {
	return AssignmentContext{
		BusinessID:   a.BusinessID,
		LocationID:   a.LocationID,
		DepartmentID: a.DepartmentID,
	}
}

// IsExpired reports whether the assignment's validity window has passed
func (a *RoleAssignment) IsExpired(now time.Time) bool {
	return a.ExpiresAt != nil && !a.ExpiresAt.After(now)
}

// IsValid reports whether the assignment is usable for resolution:
// active and not expired
func (a *RoleAssignment) IsValid(now time.Time) bool {
	return a.IsActive && !a.IsExpired(now)
}

// AssignmentCriteria is an arbitrary filter combination for assignment queries.
// When IncludeExpired is false (the default) results are constrained to
// unexpired records.
type AssignmentCriteria struct {
	UserID         *uuid.UUID
	Role           *SystemRole
	BusinessID     *uuid.UUID
	LocationID     *uuid.UUID
	DepartmentID   *uuid.UUID
	IsActive       *bool
	AssignedBy     *uuid.UUID
	IncludeExpired bool
}

// ExpirationStatus is the expiry facet for filtered searches
type ExpirationStatus string

const (
	ExpirationActive       ExpirationStatus = "active"
	ExpirationExpired      ExpirationStatus = "expired"
	ExpirationExpiringSoon ExpirationStatus = "expiring_soon"
)

// ExpiringSoonWindowDays bounds the expiring_soon facet
const ExpiringSoonWindowDays = 7

// AssignmentFilters drives the paginated filter search
type AssignmentFilters struct {
	Roles            []SystemRole      `json:"roles,omitempty"`
	BusinessIDs      []uuid.UUID       `json:"businessIds,omitempty"`
	LocationIDs      []uuid.UUID       `json:"locationIds,omitempty"`
	DepartmentIDs    []uuid.UUID       `json:"departmentIds,omitempty"`
	IsActive         *bool             `json:"isActive,omitempty"`
	Scope            *AssignmentScope  `json:"scope,omitempty"`
	ExpirationStatus *ExpirationStatus `json:"expirationStatus,omitempty"`
	Search           string            `json:"search,omitempty"`
	SortBy           string            `json:"sortBy,omitempty"`
	SortOrder        string            `json:"sortOrder,omitempty"`
}

// AssignmentPage is an offset-paginated result set
type AssignmentPage struct {
	Data  []RoleAssignment `json:"data"`
	Total int64            `json:"total"`
	Page  int              `json:"page"`
	Limit int              `json:"limit"`
}

// AssignmentStats aggregates assignment counters, optionally per business
type AssignmentStats struct {
	TotalAssignments   int64                     `json:"totalAssignments"`
	ActiveAssignments  int64                     `json:"activeAssignments"`
	ExpiredAssignments int64                     `json:"expiredAssignments"`
	AssignmentsByRole  map[SystemRole]int64      `json:"assignmentsByRole"`
	AssignmentsByScope map[AssignmentScope]int64 `json:"assignmentsByScope"`
}

// GrantRoleRequest represents a request to grant a role to a user
type GrantRoleRequest struct {
	UserID         uuid.UUID  `json:"userId" binding:"required"`
	Role           SystemRole `json:"role" binding:"required"`
	BusinessID     uuid.UUID  `json:"businessId" binding:"required"`
	LocationID     *uuid.UUID `json:"locationId,omitempty"`
	DepartmentID   *uuid.UUID `json:"departmentId,omitempty"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
	AssignedBy     *uuid.UUID `json:"assignedBy,omitempty"`
	AssignedByName *string    `json:"assignedByName,omitempty"`
	Notes          *string    `json:"notes,omitempty"`
}

// TransferAssignmentsRequest represents a bulk transfer request
type TransferAssignmentsRequest struct {
	FromUserID    uuid.UUID `json:"fromUserId" binding:"required"`
	ToUserID      uuid.UUID `json:"toUserId" binding:"required"`
	TransferredBy uuid.UUID `json:"transferredBy" binding:"required"`
}

// TransferFailure records one source assignment that could not be transferred
type TransferFailure struct {
	AssignmentID uuid.UUID `json:"assignmentId"`
	Reason       string    `json:"reason"`
}

// TransferReport is the outcome of a bulk transfer. Partial completion is
// legal: earlier pairs stand, later failures are listed instead of swallowed.
type TransferReport struct {
	Transferred []RoleAssignment  `json:"transferred"`
	Failed      []TransferFailure `json:"failed,omitempty"`
}

// AssignmentResponse represents a single assignment API response
type AssignmentResponse struct {
	Success bool            `json:"success"`
	Data    *RoleAssignment `json:"data,omitempty"`
	Message *string         `json:"message,omitempty"`
}

// AssignmentListResponse represents a list of assignments API response
type AssignmentListResponse struct {
	Success    bool             `json:"success"`
	Data       []RoleAssignment `json:"data"`
	Pagination *PaginationInfo  `json:"pagination,omitempty"`
}

// EffectiveRoleResponse represents the resolved role for a user/context pair
type EffectiveRoleResponse struct {
	Success bool        `json:"success"`
	Role    *SystemRole `json:"role"`
}

// HasRoleResponse represents an authorization check result
type HasRoleResponse struct {
	Success bool `json:"success"`
	HasRole bool `json:"hasRole"`
}
