package models

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// ContextType represents the kind of node in the organizational hierarchy
type ContextType string

const (
	ContextTypeBusiness   ContextType = "BUSINESS"
	ContextTypeLocation   ContextType = "LOCATION"
	ContextTypeDepartment ContextType = "DEPARTMENT"
)

// Level returns the hierarchy depth for a context type.
// BUSINESS=0, LOCATION=1, DEPARTMENT=2; -1 for unknown types.
func (t ContextType) Level() int {
	switch t {
	case ContextTypeBusiness:
		return 0
	case ContextTypeLocation:
		return 1
	case ContextTypeDepartment:
		return 2
	default:
		return -1
	}
}

// IsValid reports whether t is a known context type
func (t ContextType) IsValid() bool {
	return t.Level() >= 0
}

// Context construction/update validation errors
var (
	ErrContextNameRequired      = errors.New("context name is required")
	ErrContextNameTooShort      = errors.New("context name must be at least 2 characters")
	ErrContextNameTooLong       = errors.New("context name must not exceed 200 characters")
	ErrBusinessIDRequired       = errors.New("business id is required")
	ErrInvalidContextType       = errors.New("invalid context type")
	ErrBusinessContextHasParent = errors.New("business context cannot have a parent")
	ErrContextParentRequired    = errors.New("non-business context must have a parent")
)

const (
	contextNameMinLen = 2
	contextNameMaxLen = 200
)

// BusinessContext represents one node of the Business -> Location -> Department hierarchy.
// Contexts are never hard-deleted; deactivation is the terminal state.
type BusinessContext struct {
	ID              uuid.UUID   `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TenantID        string      `json:"tenantId" gorm:"not null;index"`
	Name            string      `json:"name" gorm:"not null"`
	Description     *string     `json:"description,omitempty"`
	Code            *string     `json:"code,omitempty"`
	Type            ContextType `json:"type" gorm:"not null;index"`
	BusinessID      uuid.UUID   `json:"businessId" gorm:"type:uuid;not null;index"`
	ParentContextID *uuid.UUID  `json:"parentContextId,omitempty" gorm:"type:uuid;index"`
	Level           int         `json:"level" gorm:"not null"`
	Path            *string     `json:"path,omitempty"` // materialized, set by the repository after insert
	Timezone        *string     `json:"timezone,omitempty"`
	IsActive        bool        `json:"isActive" gorm:"default:true"`
	DisplayOrder    int         `json:"displayOrder" gorm:"default:0"`
	Settings        *JSON       `json:"settings,omitempty" gorm:"type:jsonb;default:'{}'"`
	Version         int         `json:"version" gorm:"default:1"`
	CreatedBy       *string     `json:"createdBy,omitempty"`
	UpdatedBy       *string     `json:"updatedBy,omitempty"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

func (BusinessContext) TableName() string {
	return "business_contexts"
}

// CreateContextParams carries the caller-supplied fields for a new context
type CreateContextParams struct {
	TenantID        string
	Name            string
	Description     *string
	Code            *string
	Type            ContextType
	BusinessID      uuid.UUID
	ParentContextID *uuid.UUID
	Timezone        *string
	DisplayOrder    int
	Settings        *JSON
	CreatedBy       *string
}

// NewBusinessContext validates params and returns a fully initialized context.
// Validation failures are deterministic and synchronous; no partial value is returned.
// Path stays unset until the repository anchors the node in the tree.
func NewBusinessContext(params CreateContextParams) (*BusinessContext, error) {
	name, err := validateContextName(params.Name)
	if err != nil {
		return nil, err
	}

	if params.BusinessID == uuid.Nil {
		return nil, ErrBusinessIDRequired
	}

	if !params.Type.IsValid() {
		return nil, ErrInvalidContextType
	}

	if params.Type == ContextTypeBusiness && params.ParentContextID != nil {
		return nil, ErrBusinessContextHasParent
	}
	if params.Type != ContextTypeBusiness && params.ParentContextID == nil {
		return nil, ErrContextParentRequired
	}

	now := time.Now()
	return &BusinessContext{
		ID:              uuid.New(),
		TenantID:        params.TenantID,
		Name:            name,
		Description:     params.Description,
		Code:            params.Code,
		Type:            params.Type,
		BusinessID:      params.BusinessID,
		ParentContextID: params.ParentContextID,
		Level:           params.Type.Level(),
		Timezone:        params.Timezone,
		IsActive:        true,
		DisplayOrder:    params.DisplayOrder,
		Settings:        params.Settings,
		Version:         1,
		CreatedBy:       params.CreatedBy,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// ContextUpdate is an explicit, fully-typed patch. Each updatable field is
// optional and applied individually; there is no generic object merge.
type ContextUpdate struct {
	Name         *string `json:"name,omitempty"`
	Description  *string `json:"description,omitempty"`
	Code         *string `json:"code,omitempty"`
	Timezone     *string `json:"timezone,omitempty"`
	DisplayOrder *int    `json:"displayOrder,omitempty"`
	IsActive     *bool   `json:"isActive,omitempty"`
	Settings     *JSON   `json:"settings,omitempty"`
	UpdatedBy    *string `json:"updatedBy,omitempty"`
}

// ApplyUpdate validates and applies the patch field by field, bumping Version
// and refreshing UpdatedAt. It is the single mutation entry point for contexts.
func (c *BusinessContext) ApplyUpdate(patch ContextUpdate) error {
	if patch.Name != nil {
		name, err := validateContextName(*patch.Name)
		if err != nil {
			return err
		}
		c.Name = name
	}
	if patch.Description != nil {
		c.Description = patch.Description
	}
	if patch.Code != nil {
		c.Code = patch.Code
	}
	if patch.Timezone != nil {
		c.Timezone = patch.Timezone
	}
	if patch.DisplayOrder != nil {
		c.DisplayOrder = *patch.DisplayOrder
	}
	if patch.IsActive != nil {
		c.IsActive = *patch.IsActive
	}
	if patch.Settings != nil {
		c.Settings = patch.Settings
	}
	if patch.UpdatedBy != nil {
		c.UpdatedBy = patch.UpdatedBy
	}

	c.Version++
	c.UpdatedAt = time.Now()
	return nil
}

// IsValidChild reports whether c may be attached under parent. The only legal
// transitions are BUSINESS->LOCATION and LOCATION->DEPARTMENT, and the child
// level must be exactly one below the parent.
func (c *BusinessContext) IsValidChild(parent *BusinessContext) bool {
	if parent == nil {
		return false
	}
	if c.Level != parent.Level+1 {
		return false
	}
	switch parent.Type {
	case ContextTypeBusiness:
		return c.Type == ContextTypeLocation
	case ContextTypeLocation:
		return c.Type == ContextTypeDepartment
	default:
		return false
	}
}

// IsRootContext reports whether c is a top-level BUSINESS node
func (c *BusinessContext) IsRootContext() bool {
	return c.Type == ContextTypeBusiness && c.ParentContextID == nil
}

// IsParentOf reports whether other is directly attached under c
func (c *BusinessContext) IsParentOf(other *BusinessContext) bool {
	return other != nil && other.ParentContextID != nil && *other.ParentContextID == c.ID
}

// IsChildOf reports whether c is directly attached under the given parent id
func (c *BusinessContext) IsChildOf(parentID uuid.UUID) bool {
	return c.ParentContextID != nil && *c.ParentContextID == parentID
}

func validateContextName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", ErrContextNameRequired
	}
	length := utf8.RuneCountInString(trimmed)
	if length < contextNameMinLen {
		return "", ErrContextNameTooShort
	}
	if length > contextNameMaxLen {
		return "", ErrContextNameTooLong
	}
	return trimmed, nil
}

// CreateContextRequest represents a request to create a context
type CreateContextRequest struct {
	Name            string      `json:"name" binding:"required"`
	Description     *string     `json:"description,omitempty"`
	Code            *string     `json:"code,omitempty"`
	Type            ContextType `json:"type" binding:"required"`
	BusinessID      uuid.UUID   `json:"businessId" binding:"required"`
	ParentContextID *uuid.UUID  `json:"parentContextId,omitempty"`
	Timezone        *string     `json:"timezone,omitempty"`
	DisplayOrder    *int        `json:"displayOrder,omitempty"`
	Settings        *JSON       `json:"settings,omitempty"`
}

// ContextResponse represents a single context API response
type ContextResponse struct {
	Success bool             `json:"success"`
	Data    *BusinessContext `json:"data,omitempty"`
	Message *string          `json:"message,omitempty"`
}

// ContextListResponse represents a list of contexts API response
type ContextListResponse struct {
	Success    bool              `json:"success"`
	Data       []BusinessContext `json:"data"`
	Pagination *PaginationInfo   `json:"pagination,omitempty"`
}

// ContextHierarchy represents the hierarchical structure of contexts
type ContextHierarchy struct {
	Context  BusinessContext    `json:"context"`
	Children []ContextHierarchy `json:"children,omitempty"`
}

// ContextHierarchyResponse represents the context hierarchy API response
type ContextHierarchyResponse struct {
	Success bool               `json:"success"`
	Data    []ContextHierarchy `json:"data"`
}
