package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"access-service/internal/models"
	"access-service/internal/repository"
)

// MockAssignmentRepository is a mock implementation of AssignmentRepository
type MockAssignmentRepository struct {
	mock.Mock
}

func (m *MockAssignmentRepository) Save(ctx context.Context, tenantID string, assignment *models.RoleAssignment) (*models.RoleAssignment, error) {
	args := m.Called(ctx, tenantID, assignment)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RoleAssignment), args.Error(1)
}

func (m *MockAssignmentRepository) FindByID(ctx context.Context, tenantID string, id uuid.UUID) (*models.RoleAssignment, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RoleAssignment), args.Error(1)
}

func (m *MockAssignmentRepository) FindByUserID(ctx context.Context, tenantID string, userID uuid.UUID) ([]models.RoleAssignment, error) {
	args := m.Called(ctx, tenantID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.RoleAssignment), args.Error(1)
}

func (m *MockAssignmentRepository) FindActiveByUserID(ctx context.Context, tenantID string, userID uuid.UUID) ([]models.RoleAssignment, error) {
	args := m.Called(ctx, tenantID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.RoleAssignment), args.Error(1)
}

func (m *MockAssignmentRepository) FindActiveByUserIDAndContext(ctx context.Context, tenantID string, userID uuid.UUID, scope models.AssignmentContext) ([]models.RoleAssignment, error) {
	args := m.Called(ctx, tenantID, userID, scope)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.RoleAssignment), args.Error(1)
}

func (m *MockAssignmentRepository) FindByContext(ctx context.Context, tenantID string, scope models.AssignmentContext) ([]models.RoleAssignment, error) {
	args := m.Called(ctx, tenantID, scope)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.RoleAssignment), args.Error(1)
}

func (m *MockAssignmentRepository) FindByCriteria(ctx context.Context, tenantID string, criteria models.AssignmentCriteria) ([]models.RoleAssignment, error) {
	args := m.Called(ctx, tenantID, criteria)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.RoleAssignment), args.Error(1)
}

func (m *MockAssignmentRepository) FindWithFilters(ctx context.Context, tenantID string, filters models.AssignmentFilters, page, limit int) (*models.AssignmentPage, error) {
	args := m.Called(ctx, tenantID, filters, page, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AssignmentPage), args.Error(1)
}

func (m *MockAssignmentRepository) FindExpiringSoon(ctx context.Context, tenantID string, daysAhead int) ([]models.RoleAssignment, error) {
	args := m.Called(ctx, tenantID, daysAhead)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.RoleAssignment), args.Error(1)
}

func (m *MockAssignmentRepository) Delete(ctx context.Context, tenantID string, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, tenantID, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockAssignmentRepository) DeactivateActive(ctx context.Context, tenantID string, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, tenantID, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockAssignmentRepository) DeleteByUserID(ctx context.Context, tenantID string, userID uuid.UUID) (int64, error) {
	args := m.Called(ctx, tenantID, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockAssignmentRepository) DeleteByContext(ctx context.Context, tenantID string, scope models.AssignmentContext) (int64, error) {
	args := m.Called(ctx, tenantID, scope)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockAssignmentRepository) Reactivate(ctx context.Context, tenantID string, id uuid.UUID) (*models.RoleAssignment, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RoleAssignment), args.Error(1)
}

func (m *MockAssignmentRepository) GetAssignmentStats(ctx context.Context, tenantID string, businessID *uuid.UUID) (*models.AssignmentStats, error) {
	args := m.Called(ctx, tenantID, businessID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AssignmentStats), args.Error(1)
}

func (m *MockAssignmentRepository) FindUsersWithRoleInContext(ctx context.Context, tenantID string, role models.SystemRole, scope models.AssignmentContext) ([]uuid.UUID, error) {
	args := m.Called(ctx, tenantID, role, scope)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

func (m *MockAssignmentRepository) TransferAssignments(ctx context.Context, tenantID string, fromUserID, toUserID, transferredBy uuid.UUID) (*models.TransferReport, error) {
	args := m.Called(ctx, tenantID, fromUserID, toUserID, transferredBy)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TransferReport), args.Error(1)
}

func (m *MockAssignmentRepository) CheckAssignmentConflicts(ctx context.Context, tenantID string, userID uuid.UUID, role models.SystemRole, scope models.AssignmentContext) ([]models.RoleAssignment, error) {
	args := m.Called(ctx, tenantID, userID, role, scope)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.RoleAssignment), args.Error(1)
}

func (m *MockAssignmentRepository) GetAssignmentHistory(ctx context.Context, tenantID string, userID uuid.UUID, includeCurrent bool) ([]models.RoleAssignment, error) {
	args := m.Called(ctx, tenantID, userID, includeCurrent)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.RoleAssignment), args.Error(1)
}

func (m *MockAssignmentRepository) SearchAssignments(ctx context.Context, tenantID string, query string, scope *models.AssignmentContext) ([]models.RoleAssignment, error) {
	args := m.Called(ctx, tenantID, query, scope)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.RoleAssignment), args.Error(1)
}

func (m *MockAssignmentRepository) WithTransaction(ctx context.Context, fn func(txRepo repository.AssignmentRepository) error) error {
	args := m.Called(ctx, fn)
	return args.Error(0)
}

func newTestResolutionService(repo repository.AssignmentRepository) *ResolutionService {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewResolutionService(repo, nil, logger)
}

const testTenant = "tenant-1"

func TestHasRoleInContext(t *testing.T) {
	userID := uuid.New()
	businessID := uuid.New()
	scope := models.AssignmentContext{BusinessID: businessID}

	t.Run("user holds the role", func(t *testing.T) {
		mockRepo := new(MockAssignmentRepository)
		mockRepo.On("FindActiveByUserIDAndContext", mock.Anything, testTenant, userID, scope).Return([]models.RoleAssignment{
			{UserID: userID, Role: models.RoleBusinessManager, BusinessID: businessID, IsActive: true},
		}, nil)

		service := newTestResolutionService(mockRepo)
		has, err := service.HasRoleInContext(context.Background(), testTenant, userID, models.RoleBusinessManager, scope)

		assert.NoError(t, err)
		assert.True(t, has)
	})

	t.Run("user holds a different role at the scope", func(t *testing.T) {
		mockRepo := new(MockAssignmentRepository)
		mockRepo.On("FindActiveByUserIDAndContext", mock.Anything, testTenant, userID, scope).Return([]models.RoleAssignment{
			{UserID: userID, Role: models.RoleViewer, BusinessID: businessID, IsActive: true},
		}, nil)

		service := newTestResolutionService(mockRepo)
		has, err := service.HasRoleInContext(context.Background(), testTenant, userID, models.RoleBusinessManager, scope)

		assert.NoError(t, err)
		assert.False(t, has)
	})

	t.Run("lookup failure denies access", func(t *testing.T) {
		mockRepo := new(MockAssignmentRepository)
		mockRepo.On("FindActiveByUserIDAndContext", mock.Anything, testTenant, userID, scope).Return(nil, errors.New("connection refused"))

		service := newTestResolutionService(mockRepo)
		has, err := service.HasRoleInContext(context.Background(), testTenant, userID, models.RoleBusinessManager, scope)

		assert.Error(t, err)
		assert.False(t, has)
	})
}

func TestGetEffectiveRole(t *testing.T) {
	userID := uuid.New()
	businessID := uuid.New()
	scope := models.AssignmentContext{BusinessID: businessID}
	now := time.Now()

	t.Run("newest assignment wins", func(t *testing.T) {
		mockRepo := new(MockAssignmentRepository)
		mockRepo.On("FindActiveByUserIDAndContext", mock.Anything, testTenant, userID, scope).Return([]models.RoleAssignment{
			{UserID: userID, Role: models.RoleViewer, BusinessID: businessID, CreatedAt: now.Add(-2 * time.Hour)},
			{UserID: userID, Role: models.RoleBusinessManager, BusinessID: businessID, CreatedAt: now.Add(-1 * time.Hour)},
			{UserID: userID, Role: models.RoleStaff, BusinessID: businessID, CreatedAt: now.Add(-3 * time.Hour)},
		}, nil)

		service := newTestResolutionService(mockRepo)
		role, err := service.GetEffectiveRole(context.Background(), testTenant, userID, scope)

		assert.NoError(t, err)
		assert.NotNil(t, role)
		assert.Equal(t, models.RoleBusinessManager, *role)
	})

	t.Run("no assignments yields nil", func(t *testing.T) {
		mockRepo := new(MockAssignmentRepository)
		mockRepo.On("FindActiveByUserIDAndContext", mock.Anything, testTenant, userID, scope).Return([]models.RoleAssignment{}, nil)

		service := newTestResolutionService(mockRepo)
		role, err := service.GetEffectiveRole(context.Background(), testTenant, userID, scope)

		assert.NoError(t, err)
		assert.Nil(t, role)
	})
}

func TestGrantRole(t *testing.T) {
	userID := uuid.New()
	businessID := uuid.New()
	scope := models.AssignmentContext{BusinessID: businessID}
	req := models.GrantRoleRequest{
		UserID:     userID,
		Role:       models.RoleLocationManager,
		BusinessID: businessID,
	}

	t.Run("grants when no conflict exists", func(t *testing.T) {
		mockRepo := new(MockAssignmentRepository)
		mockRepo.On("CheckAssignmentConflicts", mock.Anything, testTenant, userID, models.RoleLocationManager, scope).Return([]models.RoleAssignment{}, nil)
		mockRepo.On("Save", mock.Anything, testTenant, mock.AnythingOfType("*models.RoleAssignment")).Return(&models.RoleAssignment{
			ID:         uuid.New(),
			UserID:     userID,
			Role:       models.RoleLocationManager,
			BusinessID: businessID,
			IsActive:   true,
		}, nil)

		service := newTestResolutionService(mockRepo)
		assignment, err := service.GrantRole(context.Background(), testTenant, req)

		assert.NoError(t, err)
		assert.NotNil(t, assignment)
		assert.True(t, assignment.IsActive)
		mockRepo.AssertExpectations(t)
	})

	t.Run("rejects duplicate grants with conflict details", func(t *testing.T) {
		existing := models.RoleAssignment{
			ID:         uuid.New(),
			UserID:     userID,
			Role:       models.RoleLocationManager,
			BusinessID: businessID,
			IsActive:   true,
		}
		mockRepo := new(MockAssignmentRepository)
		mockRepo.On("CheckAssignmentConflicts", mock.Anything, testTenant, userID, models.RoleLocationManager, scope).Return([]models.RoleAssignment{existing}, nil)

		service := newTestResolutionService(mockRepo)
		assignment, err := service.GrantRole(context.Background(), testTenant, req)

		assert.Nil(t, assignment)
		var dup *DuplicateAssignmentError
		assert.ErrorAs(t, err, &dup)
		assert.Len(t, dup.Conflicts, 1)
		assert.Equal(t, existing.ID, dup.Conflicts[0].ID)
		mockRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("rejects unknown roles", func(t *testing.T) {
		mockRepo := new(MockAssignmentRepository)
		service := newTestResolutionService(mockRepo)

		_, err := service.GrantRole(context.Background(), testTenant, models.GrantRoleRequest{
			UserID:     userID,
			Role:       models.SystemRole("WIZARD"),
			BusinessID: businessID,
		})

		assert.ErrorIs(t, err, ErrUnknownRole)
	})
}

func TestRevokeRole(t *testing.T) {
	t.Run("revokes an existing assignment", func(t *testing.T) {
		id := uuid.New()
		mockRepo := new(MockAssignmentRepository)
		mockRepo.On("FindByID", mock.Anything, testTenant, id).Return(&models.RoleAssignment{ID: id, IsActive: true}, nil)
		mockRepo.On("Delete", mock.Anything, testTenant, id).Return(true, nil)

		service := newTestResolutionService(mockRepo)
		revoked, err := service.RevokeRole(context.Background(), testTenant, id)

		assert.NoError(t, err)
		assert.True(t, revoked)
	})

	t.Run("unknown assignment is reported, not an error", func(t *testing.T) {
		id := uuid.New()
		mockRepo := new(MockAssignmentRepository)
		mockRepo.On("FindByID", mock.Anything, testTenant, id).Return(nil, nil)

		service := newTestResolutionService(mockRepo)
		revoked, err := service.RevokeRole(context.Background(), testTenant, id)

		assert.NoError(t, err)
		assert.False(t, revoked)
		mockRepo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestReactivateAssignment(t *testing.T) {
	id := uuid.New()
	expired := time.Now().Add(-time.Hour)

	mockRepo := new(MockAssignmentRepository)
	mockRepo.On("Reactivate", mock.Anything, testTenant, id).Return(&models.RoleAssignment{
		ID:        id,
		IsActive:  true,
		ExpiresAt: &expired,
	}, nil)

	service := newTestResolutionService(mockRepo)
	assignment, err := service.ReactivateAssignment(context.Background(), testTenant, id)

	assert.NoError(t, err)
	assert.True(t, assignment.IsActive)
	// Expiry is untouched: the record is active yet still invalid
	assert.False(t, assignment.IsValid(time.Now()))
}

func TestTransferAssignments(t *testing.T) {
	fromUser := uuid.New()
	toUser := uuid.New()
	admin := uuid.New()

	t.Run("returns the full report on partial failure", func(t *testing.T) {
		report := &models.TransferReport{
			Transferred: []models.RoleAssignment{{ID: uuid.New(), UserID: toUser}},
			Failed:      []models.TransferFailure{{AssignmentID: uuid.New(), Reason: "duplicate assignment at target"}},
		}
		mockRepo := new(MockAssignmentRepository)
		mockRepo.On("TransferAssignments", mock.Anything, testTenant, fromUser, toUser, admin).Return(report, nil)

		service := newTestResolutionService(mockRepo)
		got, err := service.TransferAssignments(context.Background(), testTenant, fromUser, toUser, admin)

		assert.NoError(t, err)
		assert.Len(t, got.Transferred, 1)
		assert.Len(t, got.Failed, 1)
	})
}

func TestFindExpiringSoonDefaultsWindow(t *testing.T) {
	mockRepo := new(MockAssignmentRepository)
	mockRepo.On("FindExpiringSoon", mock.Anything, testTenant, models.ExpiringSoonWindowDays).Return([]models.RoleAssignment{}, nil)

	service := newTestResolutionService(mockRepo)
	_, err := service.FindExpiringSoon(context.Background(), testTenant, 0)

	assert.NoError(t, err)
	mockRepo.AssertExpectations(t)
}
