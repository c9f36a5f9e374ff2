package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"access-service/internal/cache"
	"access-service/internal/models"
	"access-service/internal/repository"
)

// MockContextRepository is a mock implementation of ContextRepository
type MockContextRepository struct {
	mock.Mock
}

func (m *MockContextRepository) Create(ctx context.Context, bc *models.BusinessContext) (*models.BusinessContext, error) {
	args := m.Called(ctx, bc)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.BusinessContext), args.Error(1)
}

func (m *MockContextRepository) GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*models.BusinessContext, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.BusinessContext), args.Error(1)
}

func (m *MockContextRepository) Exists(ctx context.Context, tenantID string, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, tenantID, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockContextRepository) Update(ctx context.Context, bc *models.BusinessContext, expectedVersion int) (*models.BusinessContext, error) {
	args := m.Called(ctx, bc, expectedVersion)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.BusinessContext), args.Error(1)
}

func (m *MockContextRepository) List(ctx context.Context, tenantID string, businessID *uuid.UUID, page, limit int) ([]models.BusinessContext, *models.PaginationInfo, error) {
	args := m.Called(ctx, tenantID, businessID, page, limit)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).([]models.BusinessContext), args.Get(1).(*models.PaginationInfo), args.Error(2)
}

func (m *MockContextRepository) GetChildren(ctx context.Context, tenantID string, parentID uuid.UUID) ([]models.BusinessContext, error) {
	args := m.Called(ctx, tenantID, parentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.BusinessContext), args.Error(1)
}

func (m *MockContextRepository) GetHierarchy(ctx context.Context, tenantID string, businessID uuid.UUID) ([]models.ContextHierarchy, error) {
	args := m.Called(ctx, tenantID, businessID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ContextHierarchy), args.Error(1)
}

// noopCache points at a closed port; the cache degrades to a nil client and
// every operation becomes a pass-through
func noopCache(t *testing.T) *cache.ContextCache {
	t.Helper()
	c, err := cache.NewContextCache("127.0.0.1", 1, "", 0, 60)
	assert.NoError(t, err)
	return c
}

func newTestContextService(t *testing.T, repo repository.ContextRepository) *ContextService {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewContextService(repo, noopCache(t), logger)
}

func TestCreateContext(t *testing.T) {
	businessID := uuid.New()

	t.Run("creates a business root without parent lookup", func(t *testing.T) {
		mockRepo := new(MockContextRepository)
		mockRepo.On("Create", mock.Anything, mock.AnythingOfType("*models.BusinessContext")).Return(&models.BusinessContext{
			ID:         uuid.New(),
			TenantID:   testTenant,
			Name:       "Acme Corp",
			Type:       models.ContextTypeBusiness,
			BusinessID: businessID,
		}, nil)

		service := newTestContextService(t, mockRepo)
		created, err := service.CreateContext(context.Background(), testTenant, models.CreateContextRequest{
			Name:       "Acme Corp",
			Type:       models.ContextTypeBusiness,
			BusinessID: businessID,
		}, nil)

		assert.NoError(t, err)
		assert.NotNil(t, created)
		mockRepo.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("attaches a location under a business", func(t *testing.T) {
		parentID := uuid.New()
		parent := &models.BusinessContext{
			ID:         parentID,
			TenantID:   testTenant,
			Type:       models.ContextTypeBusiness,
			Level:      0,
			BusinessID: businessID,
		}

		mockRepo := new(MockContextRepository)
		mockRepo.On("GetByID", mock.Anything, testTenant, parentID).Return(parent, nil)
		mockRepo.On("Create", mock.Anything, mock.AnythingOfType("*models.BusinessContext")).Return(&models.BusinessContext{
			ID:   uuid.New(),
			Type: models.ContextTypeLocation,
		}, nil)

		service := newTestContextService(t, mockRepo)
		created, err := service.CreateContext(context.Background(), testTenant, models.CreateContextRequest{
			Name:            "Downtown",
			Type:            models.ContextTypeLocation,
			BusinessID:      businessID,
			ParentContextID: &parentID,
		}, nil)

		assert.NoError(t, err)
		assert.NotNil(t, created)
	})

	t.Run("rejects a department under a business", func(t *testing.T) {
		parentID := uuid.New()
		parent := &models.BusinessContext{
			ID:         parentID,
			TenantID:   testTenant,
			Type:       models.ContextTypeBusiness,
			Level:      0,
			BusinessID: businessID,
		}

		mockRepo := new(MockContextRepository)
		mockRepo.On("GetByID", mock.Anything, testTenant, parentID).Return(parent, nil)

		service := newTestContextService(t, mockRepo)
		_, err := service.CreateContext(context.Background(), testTenant, models.CreateContextRequest{
			Name:            "Kitchen",
			Type:            models.ContextTypeDepartment,
			BusinessID:      businessID,
			ParentContextID: &parentID,
		}, nil)

		assert.ErrorIs(t, err, ErrInvalidParentContext)
		mockRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("rejects a parent from a different business", func(t *testing.T) {
		parentID := uuid.New()
		parent := &models.BusinessContext{
			ID:         parentID,
			TenantID:   testTenant,
			Type:       models.ContextTypeBusiness,
			Level:      0,
			BusinessID: uuid.New(),
		}

		mockRepo := new(MockContextRepository)
		mockRepo.On("GetByID", mock.Anything, testTenant, parentID).Return(parent, nil)

		service := newTestContextService(t, mockRepo)
		_, err := service.CreateContext(context.Background(), testTenant, models.CreateContextRequest{
			Name:            "Downtown",
			Type:            models.ContextTypeLocation,
			BusinessID:      businessID,
			ParentContextID: &parentID,
		}, nil)

		assert.ErrorIs(t, err, ErrInvalidParentContext)
	})

	t.Run("missing parent surfaces as ErrParentContextNotFound", func(t *testing.T) {
		parentID := uuid.New()

		mockRepo := new(MockContextRepository)
		mockRepo.On("GetByID", mock.Anything, testTenant, parentID).Return(nil, repository.ErrNotFound)

		service := newTestContextService(t, mockRepo)
		_, err := service.CreateContext(context.Background(), testTenant, models.CreateContextRequest{
			Name:            "Downtown",
			Type:            models.ContextTypeLocation,
			BusinessID:      businessID,
			ParentContextID: &parentID,
		}, nil)

		assert.ErrorIs(t, err, ErrParentContextNotFound)
	})
}

func TestUpdateContext(t *testing.T) {
	businessID := uuid.New()
	contextID := uuid.New()

	existing := func() *models.BusinessContext {
		return &models.BusinessContext{
			ID:         contextID,
			TenantID:   testTenant,
			Name:       "Acme Corp",
			Type:       models.ContextTypeBusiness,
			BusinessID: businessID,
			IsActive:   true,
			Version:    3,
		}
	}

	t.Run("passes the read version as the expected version", func(t *testing.T) {
		mockRepo := new(MockContextRepository)
		mockRepo.On("GetByID", mock.Anything, testTenant, contextID).Return(existing(), nil)
		mockRepo.On("Update", mock.Anything, mock.AnythingOfType("*models.BusinessContext"), 3).Return(&models.BusinessContext{
			ID:      contextID,
			Name:    "Acme Holdings",
			Version: 4,
		}, nil)

		service := newTestContextService(t, mockRepo)
		newName := "Acme Holdings"
		updated, err := service.UpdateContext(context.Background(), testTenant, contextID, models.ContextUpdate{Name: &newName})

		assert.NoError(t, err)
		assert.Equal(t, 4, updated.Version)
		mockRepo.AssertExpectations(t)
	})

	t.Run("concurrent modification surfaces as stale version", func(t *testing.T) {
		mockRepo := new(MockContextRepository)
		mockRepo.On("GetByID", mock.Anything, testTenant, contextID).Return(existing(), nil)
		mockRepo.On("Update", mock.Anything, mock.AnythingOfType("*models.BusinessContext"), 3).Return(nil, repository.ErrVersionConflict)

		service := newTestContextService(t, mockRepo)
		newName := "Acme Holdings"
		_, err := service.UpdateContext(context.Background(), testTenant, contextID, models.ContextUpdate{Name: &newName})

		assert.ErrorIs(t, err, ErrContextVersionStale)
	})

	t.Run("unknown context surfaces as not found", func(t *testing.T) {
		mockRepo := new(MockContextRepository)
		mockRepo.On("GetByID", mock.Anything, testTenant, contextID).Return(nil, repository.ErrNotFound)

		service := newTestContextService(t, mockRepo)
		_, err := service.UpdateContext(context.Background(), testTenant, contextID, models.ContextUpdate{})

		assert.ErrorIs(t, err, ErrContextNotFound)
	})
}

func TestDeactivateContext(t *testing.T) {
	businessID := uuid.New()
	contextID := uuid.New()

	mockRepo := new(MockContextRepository)
	mockRepo.On("GetByID", mock.Anything, testTenant, contextID).Return(&models.BusinessContext{
		ID:         contextID,
		TenantID:   testTenant,
		Name:       "Acme Corp",
		Type:       models.ContextTypeBusiness,
		BusinessID: businessID,
		IsActive:   true,
		Version:    1,
	}, nil)
	mockRepo.On("Update", mock.Anything, mock.MatchedBy(func(bc *models.BusinessContext) bool {
		return !bc.IsActive
	}), 1).Return(&models.BusinessContext{ID: contextID, IsActive: false, Version: 2}, nil)

	service := newTestContextService(t, mockRepo)
	updated, err := service.DeactivateContext(context.Background(), testTenant, contextID, nil)

	assert.NoError(t, err)
	assert.False(t, updated.IsActive)
	mockRepo.AssertExpectations(t)
}

func TestGetHierarchyFallsThroughToRepository(t *testing.T) {
	businessID := uuid.New()
	tree := []models.ContextHierarchy{
		{
			Context: models.BusinessContext{ID: uuid.New(), Type: models.ContextTypeBusiness},
			Children: []models.ContextHierarchy{
				{Context: models.BusinessContext{ID: uuid.New(), Type: models.ContextTypeLocation}},
			},
		},
	}

	mockRepo := new(MockContextRepository)
	mockRepo.On("GetHierarchy", mock.Anything, testTenant, businessID).Return(tree, nil)

	service := newTestContextService(t, mockRepo)
	got, err := service.GetHierarchy(context.Background(), testTenant, businessID)

	assert.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Len(t, got[0].Children, 1)
}
