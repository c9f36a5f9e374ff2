package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"access-service/internal/cache"
	"access-service/internal/models"
	"access-service/internal/repository"
)

var (
	ErrContextNotFound       = errors.New("context not found")
	ErrParentContextNotFound = errors.New("parent context not found")
	ErrInvalidParentContext  = errors.New("invalid parent for context type")
	ErrContextVersionStale   = errors.New("context was modified concurrently")
)

// ContextService manages the business/location/department hierarchy. Context
// rows change rarely, so reads go through the redis cache; every write
// invalidates the owning business subtree.
type ContextService struct {
	repo   repository.ContextRepository
	cache  *cache.ContextCache
	logger *logrus.Entry
}

func NewContextService(repo repository.ContextRepository, cache *cache.ContextCache, logger *logrus.Logger) *ContextService {
	return &ContextService{
		repo:   repo,
		cache:  cache,
		logger: logger.WithField("component", "contexts"),
	}
}

// CreateContext validates the parent relationship and inserts a new context.
// A LOCATION must hang off the business root, a DEPARTMENT off a LOCATION;
// any other pairing is rejected.
func (s *ContextService) CreateContext(ctx context.Context, tenantID string, req models.CreateContextRequest, createdBy *string) (*models.BusinessContext, error) {
	displayOrder := 0
	if req.DisplayOrder != nil {
		displayOrder = *req.DisplayOrder
	}

	bc, err := models.NewBusinessContext(models.CreateContextParams{
		TenantID:        tenantID,
		Name:            req.Name,
		Description:     req.Description,
		Code:            req.Code,
		Type:            req.Type,
		BusinessID:      req.BusinessID,
		ParentContextID: req.ParentContextID,
		Timezone:        req.Timezone,
		DisplayOrder:    displayOrder,
		Settings:        req.Settings,
		CreatedBy:       createdBy,
	})
	if err != nil {
		return nil, err
	}

	if bc.ParentContextID != nil {
		parent, err := s.repo.GetByID(ctx, tenantID, *bc.ParentContextID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrParentContextNotFound
			}
			return nil, err
		}
		if parent.BusinessID != bc.BusinessID || !bc.IsValidChild(parent) {
			return nil, ErrInvalidParentContext
		}
	}

	created, err := s.repo.Create(ctx, bc)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"contextId": created.ID,
		"type":      created.Type,
	}).Info("Context created")

	s.invalidate(ctx, created.TenantID, created.BusinessID)
	return created, nil
}

// UpdateContext applies a partial update under optimistic concurrency. The
// read row's version is the expected version; a concurrent writer surfaces
// as ErrContextVersionStale and the caller should re-read and retry.
func (s *ContextService) UpdateContext(ctx context.Context, tenantID string, id uuid.UUID, patch models.ContextUpdate) (*models.BusinessContext, error) {
	bc, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrContextNotFound
		}
		return nil, err
	}

	expectedVersion := bc.Version
	if err := bc.ApplyUpdate(patch); err != nil {
		return nil, err
	}

	updated, err := s.repo.Update(ctx, bc, expectedVersion)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrContextNotFound
		case errors.Is(err, repository.ErrVersionConflict):
			return nil, ErrContextVersionStale
		}
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"contextId": id,
		"version":   updated.Version,
	}).Info("Context updated")

	s.invalidate(ctx, tenantID, updated.BusinessID)
	return updated, nil
}

// DeactivateContext soft-disables a context. Assignments scoped to it are
// left untouched; resolution against a deactivated scope is a policy
// question for the caller, not the store.
func (s *ContextService) DeactivateContext(ctx context.Context, tenantID string, id uuid.UUID, updatedBy *string) (*models.BusinessContext, error) {
	inactive := false
	return s.UpdateContext(ctx, tenantID, id, models.ContextUpdate{
		IsActive:  &inactive,
		UpdatedBy: updatedBy,
	})
}

// GetContext reads one context, cache first
func (s *ContextService) GetContext(ctx context.Context, tenantID string, id uuid.UUID) (*models.BusinessContext, error) {
	if cached, err := s.cache.GetContext(ctx, tenantID, id); err == nil && cached != nil {
		return cached, nil
	}

	bc, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrContextNotFound
		}
		return nil, err
	}

	if err := s.cache.SetContext(ctx, bc); err != nil {
		s.logger.WithError(err).Debug("Context cache write failed")
	}
	return bc, nil
}

// ListContexts returns a paginated page, optionally narrowed to one business
func (s *ContextService) ListContexts(ctx context.Context, tenantID string, businessID *uuid.UUID, page, limit int) ([]models.BusinessContext, *models.PaginationInfo, error) {
	return s.repo.List(ctx, tenantID, businessID, page, limit)
}

// GetChildren lists the direct children of a context
func (s *ContextService) GetChildren(ctx context.Context, tenantID string, parentID uuid.UUID) ([]models.BusinessContext, error) {
	return s.repo.GetChildren(ctx, tenantID, parentID)
}

// GetHierarchy returns the full context tree for a business, cache first
func (s *ContextService) GetHierarchy(ctx context.Context, tenantID string, businessID uuid.UUID) ([]models.ContextHierarchy, error) {
	if cached, err := s.cache.GetHierarchy(ctx, tenantID, businessID); err == nil && cached != nil {
		return cached, nil
	}

	tree, err := s.repo.GetHierarchy(ctx, tenantID, businessID)
	if err != nil {
		return nil, err
	}

	if err := s.cache.SetHierarchy(ctx, tenantID, businessID, tree); err != nil {
		s.logger.WithError(err).Debug("Hierarchy cache write failed")
	}
	return tree, nil
}

func (s *ContextService) invalidate(ctx context.Context, tenantID string, businessID uuid.UUID) {
	if err := s.cache.InvalidateBusiness(ctx, tenantID, businessID); err != nil {
		s.logger.WithError(err).Warn("Context cache invalidation failed")
	}
}
