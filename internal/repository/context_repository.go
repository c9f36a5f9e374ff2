package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"access-service/internal/models"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrVersionConflict = errors.New("version conflict - record was modified by another request")
)

// ContextRepository persists the organizational hierarchy
type ContextRepository interface {
	Create(ctx context.Context, bc *models.BusinessContext) (*models.BusinessContext, error)
	GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*models.BusinessContext, error)
	Exists(ctx context.Context, tenantID string, id uuid.UUID) (bool, error)
	Update(ctx context.Context, bc *models.BusinessContext, expectedVersion int) (*models.BusinessContext, error)
	List(ctx context.Context, tenantID string, businessID *uuid.UUID, page, limit int) ([]models.BusinessContext, *models.PaginationInfo, error)
	GetChildren(ctx context.Context, tenantID string, parentID uuid.UUID) ([]models.BusinessContext, error)
	GetHierarchy(ctx context.Context, tenantID string, businessID uuid.UUID) ([]models.ContextHierarchy, error)
}

type contextRepository struct {
	db *gorm.DB
}

func NewContextRepository(db *gorm.DB) ContextRepository {
	return &contextRepository{db: db}
}

// Create inserts the node and materializes its path from the parent chain.
// Path assignment happens after the insert, once the node is anchored.
func (r *contextRepository) Create(ctx context.Context, bc *models.BusinessContext) (*models.BusinessContext, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(bc).Error; err != nil {
			return err
		}

		path := "/" + bc.ID.String()
		if bc.ParentContextID != nil {
			var parent models.BusinessContext
			if err := tx.
				Where("tenant_id = ? AND id = ?", bc.TenantID, *bc.ParentContextID).
				First(&parent).Error; err != nil {
				return err
			}
			if parent.Path != nil {
				path = *parent.Path + "/" + bc.ID.String()
			}
		}

		bc.Path = &path
		return tx.Model(&models.BusinessContext{}).
			Where("id = ?", bc.ID).
			Update("path", path).Error
	})
	if err != nil {
		return nil, err
	}
	return bc, nil
}

func (r *contextRepository) GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*models.BusinessContext, error) {
	var bc models.BusinessContext
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&bc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &bc, nil
}

func (r *contextRepository) Exists(ctx context.Context, tenantID string, id uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.BusinessContext{}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Count(&count).Error
	return count > 0, err
}

// Update writes the already-patched context, guarded by the optimistic
// concurrency token: the row is only written when the stored version still
// matches expectedVersion.
func (r *contextRepository) Update(ctx context.Context, bc *models.BusinessContext, expectedVersion int) (*models.BusinessContext, error) {
	result := r.db.WithContext(ctx).
		Model(&models.BusinessContext{}).
		Where("tenant_id = ? AND id = ? AND version = ?", bc.TenantID, bc.ID, expectedVersion).
		Updates(map[string]interface{}{
			"name":          bc.Name,
			"description":   bc.Description,
			"code":          bc.Code,
			"timezone":      bc.Timezone,
			"is_active":     bc.IsActive,
			"display_order": bc.DisplayOrder,
			"settings":      bc.Settings,
			"version":       bc.Version,
			"updated_by":    bc.UpdatedBy,
			"updated_at":    time.Now(),
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		exists, err := r.Exists(ctx, bc.TenantID, bc.ID)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, ErrNotFound
		}
		return nil, ErrVersionConflict
	}
	return bc, nil
}

func (r *contextRepository) List(ctx context.Context, tenantID string, businessID *uuid.UUID, page, limit int) ([]models.BusinessContext, *models.PaginationInfo, error) {
	var contexts []models.BusinessContext
	var total int64

	query := r.db.WithContext(ctx).
		Model(&models.BusinessContext{}).
		Where("tenant_id = ?", tenantID)
	if businessID != nil {
		query = query.Where("business_id = ?", *businessID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, nil, err
	}

	offset := (page - 1) * limit
	if err := query.
		Order("level ASC, display_order ASC, name ASC").
		Offset(offset).Limit(limit).
		Find(&contexts).Error; err != nil {
		return nil, nil, err
	}

	return contexts, buildPagination(page, limit, total), nil
}

func (r *contextRepository) GetChildren(ctx context.Context, tenantID string, parentID uuid.UUID) ([]models.BusinessContext, error) {
	var children []models.BusinessContext
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND parent_context_id = ?", tenantID, parentID).
		Order("display_order ASC, name ASC").
		Find(&children).Error
	return children, err
}

// GetHierarchy loads the whole tree of one business in a single query and
// assembles it in memory, children grouped under their parents.
func (r *contextRepository) GetHierarchy(ctx context.Context, tenantID string, businessID uuid.UUID) ([]models.ContextHierarchy, error) {
	var contexts []models.BusinessContext
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND business_id = ?", tenantID, businessID).
		Order("level ASC, display_order ASC, name ASC").
		Find(&contexts).Error
	if err != nil {
		return nil, err
	}

	byParent := make(map[uuid.UUID][]models.BusinessContext)
	var roots []models.BusinessContext
	for _, bc := range contexts {
		if bc.ParentContextID == nil {
			roots = append(roots, bc)
			continue
		}
		byParent[*bc.ParentContextID] = append(byParent[*bc.ParentContextID], bc)
	}

	var build func(bc models.BusinessContext) models.ContextHierarchy
	build = func(bc models.BusinessContext) models.ContextHierarchy {
		node := models.ContextHierarchy{Context: bc}
		for _, child := range byParent[bc.ID] {
			node.Children = append(node.Children, build(child))
		}
		return node
	}

	result := make([]models.ContextHierarchy, len(roots))
	for i, root := range roots {
		result[i] = build(root)
	}
	return result, nil
}

func buildPagination(page, limit int, total int64) *models.PaginationInfo {
	totalPages := int((total + int64(limit) - 1) / int64(limit))
	return &models.PaginationInfo{
		Page:        page,
		Limit:       limit,
		Total:       total,
		TotalPages:  totalPages,
		HasNext:     page < totalPages,
		HasPrevious: page > 1,
	}
}
