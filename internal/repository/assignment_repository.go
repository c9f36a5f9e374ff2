package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"access-service/internal/models"
)

// AssignmentRepository is the query surface the resolution engine depends on.
// Single-record lookups report "not found" as a nil result, never as an error;
// infrastructure failures propagate unchanged.
type AssignmentRepository interface {
	Save(ctx context.Context, tenantID string, assignment *models.RoleAssignment) (*models.RoleAssignment, error)
	FindByID(ctx context.Context, tenantID string, id uuid.UUID) (*models.RoleAssignment, error)
	FindByUserID(ctx context.Context, tenantID string, userID uuid.UUID) ([]models.RoleAssignment, error)
	FindActiveByUserID(ctx context.Context, tenantID string, userID uuid.UUID) ([]models.RoleAssignment, error)
	FindActiveByUserIDAndContext(ctx context.Context, tenantID string, userID uuid.UUID, scope models.AssignmentContext) ([]models.RoleAssignment, error)
	FindByContext(ctx context.Context, tenantID string, scope models.AssignmentContext) ([]models.RoleAssignment, error)
	FindByCriteria(ctx context.Context, tenantID string, criteria models.AssignmentCriteria) ([]models.RoleAssignment, error)
	FindWithFilters(ctx context.Context, tenantID string, filters models.AssignmentFilters, page, limit int) (*models.AssignmentPage, error)
	FindExpiringSoon(ctx context.Context, tenantID string, daysAhead int) ([]models.RoleAssignment, error)
	Delete(ctx context.Context, tenantID string, id uuid.UUID) (bool, error)
	DeactivateActive(ctx context.Context, tenantID string, id uuid.UUID) (bool, error)
	DeleteByUserID(ctx context.Context, tenantID string, userID uuid.UUID) (int64, error)
	DeleteByContext(ctx context.Context, tenantID string, scope models.AssignmentContext) (int64, error)
	Reactivate(ctx context.Context, tenantID string, id uuid.UUID) (*models.RoleAssignment, error)
	GetAssignmentStats(ctx context.Context, tenantID string, businessID *uuid.UUID) (*models.AssignmentStats, error)
	FindUsersWithRoleInContext(ctx context.Context, tenantID string, role models.SystemRole, scope models.AssignmentContext) ([]uuid.UUID, error)
	TransferAssignments(ctx context.Context, tenantID string, fromUserID, toUserID, transferredBy uuid.UUID) (*models.TransferReport, error)
	CheckAssignmentConflicts(ctx context.Context, tenantID string, userID uuid.UUID, role models.SystemRole, scope models.AssignmentContext) ([]models.RoleAssignment, error)
	GetAssignmentHistory(ctx context.Context, tenantID string, userID uuid.UUID, includeCurrent bool) ([]models.RoleAssignment, error)
	SearchAssignments(ctx context.Context, tenantID string, query string, scope *models.AssignmentContext) ([]models.RoleAssignment, error)
	WithTransaction(ctx context.Context, fn func(txRepo AssignmentRepository) error) error
}

type assignmentRepository struct {
	db *gorm.DB
}

func NewAssignmentRepository(db *gorm.DB) AssignmentRepository {
	return &assignmentRepository{db: db}
}

// applyValidityFilter restricts a query to usable assignments:
// is_active AND (no expiry OR expiry in the future)
func (r *assignmentRepository) applyValidityFilter(query *gorm.DB, now time.Time) *gorm.DB {
	return query.
		Where("is_active = ?", true).
		Where("expires_at IS NULL OR expires_at > ?", now)
}

// applyContextFilter constrains the scope id fields that are present in scope.
// Absent fields are not constrained.
func (r *assignmentRepository) applyContextFilter(query *gorm.DB, scope models.AssignmentContext) *gorm.DB {
	query = query.Where("business_id = ?", scope.BusinessID)
	if scope.LocationID != nil {
		query = query.Where("location_id = ?", *scope.LocationID)
	}
	if scope.DepartmentID != nil {
		query = query.Where("department_id = ?", *scope.DepartmentID)
	}
	return query
}

// applyExactScopeFilter matches the scope triple exactly: absent fields must
// be NULL. Used for duplicate-grant detection.
func (r *assignmentRepository) applyExactScopeFilter(query *gorm.DB, scope models.AssignmentContext) *gorm.DB {
	query = query.Where("business_id = ?", scope.BusinessID)
	if scope.LocationID != nil {
		query = query.Where("location_id = ?", *scope.LocationID)
	} else {
		query = query.Where("location_id IS NULL")
	}
	if scope.DepartmentID != nil {
		query = query.Where("department_id = ?", *scope.DepartmentID)
	} else {
		query = query.Where("department_id IS NULL")
	}
	return query
}

func (r *assignmentRepository) Save(ctx context.Context, tenantID string, assignment *models.RoleAssignment) (*models.RoleAssignment, error) {
	assignment.TenantID = tenantID
	assignment.Scope = assignment.Context().Scope()
	assignment.UpdatedAt = time.Now()

	if assignment.ID == uuid.Nil {
		assignment.ID = uuid.New()
		assignment.CreatedAt = assignment.UpdatedAt
		if err := r.db.WithContext(ctx).Create(assignment).Error; err != nil {
			return nil, err
		}
		return assignment, nil
	}

	if err := r.db.WithContext(ctx).Save(assignment).Error; err != nil {
		return nil, err
	}
	return assignment, nil
}

func (r *assignmentRepository) FindByID(ctx context.Context, tenantID string, id uuid.UUID) (*models.RoleAssignment, error) {
	var assignment models.RoleAssignment
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&assignment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &assignment, nil
}

func (r *assignmentRepository) FindByUserID(ctx context.Context, tenantID string, userID uuid.UUID) ([]models.RoleAssignment, error) {
	var assignments []models.RoleAssignment
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND user_id = ?", tenantID, userID).
		Order("created_at DESC").
		Find(&assignments).Error
	return assignments, err
}

func (r *assignmentRepository) FindActiveByUserID(ctx context.Context, tenantID string, userID uuid.UUID) ([]models.RoleAssignment, error) {
	var assignments []models.RoleAssignment
	query := r.db.WithContext(ctx).
		Where("tenant_id = ? AND user_id = ?", tenantID, userID)
	query = r.applyValidityFilter(query, time.Now())

	err := query.Order("created_at DESC").Find(&assignments).Error
	return assignments, err
}

func (r *assignmentRepository) FindActiveByUserIDAndContext(ctx context.Context, tenantID string, userID uuid.UUID, scope models.AssignmentContext) ([]models.RoleAssignment, error) {
	var assignments []models.RoleAssignment
	query := r.db.WithContext(ctx).
		Where("tenant_id = ? AND user_id = ?", tenantID, userID)
	query = r.applyValidityFilter(query, time.Now())
	query = r.applyContextFilter(query, scope)

	err := query.Order("created_at DESC").Find(&assignments).Error
	return assignments, err
}

func (r *assignmentRepository) FindByContext(ctx context.Context, tenantID string, scope models.AssignmentContext) ([]models.RoleAssignment, error) {
	var assignments []models.RoleAssignment
	query := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	query = r.applyContextFilter(query, scope)

	err := query.Order("created_at DESC").Find(&assignments).Error
	return assignments, err
}

func (r *assignmentRepository) FindByCriteria(ctx context.Context, tenantID string, criteria models.AssignmentCriteria) ([]models.RoleAssignment, error) {
	var assignments []models.RoleAssignment
	query := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID)

	if criteria.UserID != nil {
		query = query.Where("user_id = ?", *criteria.UserID)
	}
	if criteria.Role != nil {
		query = query.Where("role = ?", *criteria.Role)
	}
	if criteria.BusinessID != nil {
		query = query.Where("business_id = ?", *criteria.BusinessID)
	}
	if criteria.LocationID != nil {
		query = query.Where("location_id = ?", *criteria.LocationID)
	}
	if criteria.DepartmentID != nil {
		query = query.Where("department_id = ?", *criteria.DepartmentID)
	}
	if criteria.IsActive != nil {
		query = query.Where("is_active = ?", *criteria.IsActive)
	}
	if criteria.AssignedBy != nil {
		query = query.Where("assigned_by = ?", *criteria.AssignedBy)
	}
	if !criteria.IncludeExpired {
		query = query.Where("expires_at IS NULL OR expires_at > ?", time.Now())
	}

	err := query.Order("created_at DESC").Find(&assignments).Error
	return assignments, err
}

// sortable whitelist for FindWithFilters
var assignmentSortFields = map[string]string{
	"createdAt": "created_at",
	"updatedAt": "updated_at",
	"expiresAt": "expires_at",
	"role":      "role",
	"userId":    "user_id",
}

func (r *assignmentRepository) FindWithFilters(ctx context.Context, tenantID string, filters models.AssignmentFilters, page, limit int) (*models.AssignmentPage, error) {
	now := time.Now()
	query := r.db.WithContext(ctx).
		Model(&models.RoleAssignment{}).
		Where("tenant_id = ?", tenantID)

	if len(filters.Roles) > 0 {
		query = query.Where("role IN ?", filters.Roles)
	}
	if len(filters.BusinessIDs) > 0 {
		query = query.Where("business_id IN ?", filters.BusinessIDs)
	}
	if len(filters.LocationIDs) > 0 {
		query = query.Where("location_id IN ?", filters.LocationIDs)
	}
	if len(filters.DepartmentIDs) > 0 {
		query = query.Where("department_id IN ?", filters.DepartmentIDs)
	}
	if filters.IsActive != nil {
		query = query.Where("is_active = ?", *filters.IsActive)
	}
	if filters.Scope != nil {
		query = query.Where("scope = ?", *filters.Scope)
	}
	if filters.ExpirationStatus != nil {
		switch *filters.ExpirationStatus {
		case models.ExpirationActive:
			query = query.Where("expires_at IS NULL OR expires_at > ?", now)
		case models.ExpirationExpired:
			query = query.Where("expires_at IS NOT NULL AND expires_at <= ?", now)
		case models.ExpirationExpiringSoon:
			query = query.Where("expires_at > ? AND expires_at < ?", now, now.AddDate(0, 0, models.ExpiringSoonWindowDays))
		}
	}
	if filters.Search != "" {
		pattern := "%" + filters.Search + "%"
		query = query.Where("assigned_by_name ILIKE ? OR notes ILIKE ?", pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}

	sortColumn := "created_at"
	if col, ok := assignmentSortFields[filters.SortBy]; ok {
		sortColumn = col
	}
	direction := "DESC"
	if filters.SortOrder == "asc" {
		direction = "ASC"
	}

	var assignments []models.RoleAssignment
	offset := (page - 1) * limit
	if err := query.
		Order(fmt.Sprintf("%s %s", sortColumn, direction)).
		Offset(offset).Limit(limit).
		Find(&assignments).Error; err != nil {
		return nil, err
	}

	return &models.AssignmentPage{
		Data:  assignments,
		Total: total,
		Page:  page,
		Limit: limit,
	}, nil
}

func (r *assignmentRepository) FindExpiringSoon(ctx context.Context, tenantID string, daysAhead int) ([]models.RoleAssignment, error) {
	now := time.Now()
	var assignments []models.RoleAssignment
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND is_active = ?", tenantID, true).
		Where("expires_at > ? AND expires_at < ?", now, now.AddDate(0, 0, daysAhead)).
		Order("expires_at ASC").
		Find(&assignments).Error
	return assignments, err
}

func (r *assignmentRepository) Delete(ctx context.Context, tenantID string, id uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.RoleAssignment{}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Updates(map[string]interface{}{
			"is_active":  false,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// DeactivateActive deactivates the assignment only if it is still active.
// Returns false when the record is gone or was already deactivated, so
// callers racing a concurrent revoke can tell they lost.
func (r *assignmentRepository) DeactivateActive(ctx context.Context, tenantID string, id uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.RoleAssignment{}).
		Where("tenant_id = ? AND id = ? AND is_active = ?", tenantID, id, true).
		Updates(map[string]interface{}{
			"is_active":  false,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *assignmentRepository) DeleteByUserID(ctx context.Context, tenantID string, userID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.RoleAssignment{}).
		Where("tenant_id = ? AND user_id = ? AND is_active = ?", tenantID, userID, true).
		Updates(map[string]interface{}{
			"is_active":  false,
			"updated_at": time.Now(),
		})
	return result.RowsAffected, result.Error
}

func (r *assignmentRepository) DeleteByContext(ctx context.Context, tenantID string, scope models.AssignmentContext) (int64, error) {
	query := r.db.WithContext(ctx).
		Model(&models.RoleAssignment{}).
		Where("tenant_id = ? AND is_active = ?", tenantID, true)
	query = r.applyContextFilter(query, scope)

	result := query.Updates(map[string]interface{}{
		"is_active":  false,
		"updated_at": time.Now(),
	})
	return result.RowsAffected, result.Error
}

// Reactivate flips is_active back on without touching expires_at. A record
// whose expiry has already passed comes back active yet remains excluded from
// every validity-filtered query.
func (r *assignmentRepository) Reactivate(ctx context.Context, tenantID string, id uuid.UUID) (*models.RoleAssignment, error) {
	assignment, err := r.FindByID(ctx, tenantID, id)
	if err != nil || assignment == nil {
		return nil, err
	}

	assignment.IsActive = true
	assignment.UpdatedAt = time.Now()
	if err := r.db.WithContext(ctx).Save(assignment).Error; err != nil {
		return nil, err
	}
	return assignment, nil
}

func (r *assignmentRepository) GetAssignmentStats(ctx context.Context, tenantID string, businessID *uuid.UUID) (*models.AssignmentStats, error) {
	now := time.Now()
	base := func() *gorm.DB {
		query := r.db.WithContext(ctx).
			Model(&models.RoleAssignment{}).
			Where("tenant_id = ?", tenantID)
		if businessID != nil {
			query = query.Where("business_id = ?", *businessID)
		}
		return query
	}

	stats := &models.AssignmentStats{
		AssignmentsByRole:  make(map[models.SystemRole]int64),
		AssignmentsByScope: make(map[models.AssignmentScope]int64),
	}

	if err := base().Count(&stats.TotalAssignments).Error; err != nil {
		return nil, err
	}
	if err := base().
		Where("is_active = ?", true).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Count(&stats.ActiveAssignments).Error; err != nil {
		return nil, err
	}
	if err := base().
		Where("expires_at IS NOT NULL AND expires_at <= ?", now).
		Count(&stats.ExpiredAssignments).Error; err != nil {
		return nil, err
	}

	type roleCount struct {
		Role  models.SystemRole
		Count int64
	}
	var roleCounts []roleCount
	if err := base().
		Select("role, COUNT(*) as count").
		Group("role").
		Scan(&roleCounts).Error; err != nil {
		return nil, err
	}
	for _, rc := range roleCounts {
		stats.AssignmentsByRole[rc.Role] = rc.Count
	}

	type scopeCount struct {
		Scope models.AssignmentScope
		Count int64
	}
	var scopeCounts []scopeCount
	if err := base().
		Select("scope, COUNT(*) as count").
		Group("scope").
		Scan(&scopeCounts).Error; err != nil {
		return nil, err
	}
	for _, sc := range scopeCounts {
		stats.AssignmentsByScope[sc.Scope] = sc.Count
	}

	return stats, nil
}

func (r *assignmentRepository) FindUsersWithRoleInContext(ctx context.Context, tenantID string, role models.SystemRole, scope models.AssignmentContext) ([]uuid.UUID, error) {
	query := r.db.WithContext(ctx).
		Model(&models.RoleAssignment{}).
		Where("tenant_id = ? AND role = ?", tenantID, role)
	query = r.applyValidityFilter(query, time.Now())
	query = r.applyContextFilter(query, scope)

	var userIDs []uuid.UUID
	err := query.Distinct("user_id").Pluck("user_id", &userIDs).Error
	return userIDs, err
}

// TransferAssignments moves every currently-valid assignment of fromUserID to
// toUserID. Each deactivate-then-create pair runs in its own transaction so a
// failing pair rolls back together; pairs completed earlier stand, and later
// failures are reported instead of swallowed.
func (r *assignmentRepository) TransferAssignments(ctx context.Context, tenantID string, fromUserID, toUserID, transferredBy uuid.UUID) (*models.TransferReport, error) {
	sources, err := r.FindActiveByUserID(ctx, tenantID, fromUserID)
	if err != nil {
		return nil, err
	}

	report := &models.TransferReport{}

	for _, source := range sources {
		source := source
		notes := fmt.Sprintf("Transferred from user %s by %s", fromUserID, transferredBy)
		replacement := models.RoleAssignment{
			UserID:       toUserID,
			Role:         source.Role,
			BusinessID:   source.BusinessID,
			LocationID:   source.LocationID,
			DepartmentID: source.DepartmentID,
			Scope:        source.Scope,
			IsActive:     true,
			ExpiresAt:    source.ExpiresAt,
			AssignedBy:   &transferredBy,
			Notes:        &notes,
		}

		err := r.WithTransaction(ctx, func(txRepo AssignmentRepository) error {
			deactivated, err := txRepo.DeactivateActive(ctx, tenantID, source.ID)
			if err != nil {
				return err
			}
			if !deactivated {
				return fmt.Errorf("assignment %s no longer active", source.ID)
			}
			_, err = txRepo.Save(ctx, tenantID, &replacement)
			return err
		})
		if err != nil {
			report.Failed = append(report.Failed, models.TransferFailure{
				AssignmentID: source.ID,
				Reason:       err.Error(),
			})
			continue
		}
		report.Transferred = append(report.Transferred, replacement)
	}

	return report, nil
}

// CheckAssignmentConflicts returns every currently-valid assignment with the
// identical (user, role, scope triple). The persistence layer carries a
// partial unique index over active rows; this check is the advisory fast path.
func (r *assignmentRepository) CheckAssignmentConflicts(ctx context.Context, tenantID string, userID uuid.UUID, role models.SystemRole, scope models.AssignmentContext) ([]models.RoleAssignment, error) {
	query := r.db.WithContext(ctx).
		Where("tenant_id = ? AND user_id = ? AND role = ?", tenantID, userID, role)
	query = r.applyValidityFilter(query, time.Now())
	query = r.applyExactScopeFilter(query, scope)

	var conflicts []models.RoleAssignment
	err := query.Find(&conflicts).Error
	return conflicts, err
}

func (r *assignmentRepository) GetAssignmentHistory(ctx context.Context, tenantID string, userID uuid.UUID, includeCurrent bool) ([]models.RoleAssignment, error) {
	query := r.db.WithContext(ctx).
		Where("tenant_id = ? AND user_id = ?", tenantID, userID)
	if !includeCurrent {
		query = query.Where("is_active = ?", false)
	}

	var assignments []models.RoleAssignment
	err := query.Order("created_at DESC").Find(&assignments).Error
	return assignments, err
}

func (r *assignmentRepository) SearchAssignments(ctx context.Context, tenantID string, search string, scope *models.AssignmentContext) ([]models.RoleAssignment, error) {
	pattern := "%" + search + "%"
	query := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Where("role ILIKE ? OR assigned_by_name ILIKE ? OR notes ILIKE ?", pattern, pattern, pattern)
	if scope != nil {
		query = r.applyContextFilter(query, *scope)
	}

	var assignments []models.RoleAssignment
	err := query.Order("created_at DESC").Find(&assignments).Error
	return assignments, err
}

func (r *assignmentRepository) WithTransaction(ctx context.Context, fn func(txRepo AssignmentRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&assignmentRepository{db: tx})
	})
}
