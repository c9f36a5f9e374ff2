package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"access-service/internal/events"
	"access-service/internal/models"
	"access-service/internal/repository"
)

var ErrUnknownRole = errors.New("unknown system role")

// DuplicateAssignmentError reports a grant that would duplicate one or more
// currently-valid assignments with the identical (user, role, scope) triple.
// The engine surfaces the conflicts; the caller decides whether to reject.
type DuplicateAssignmentError struct {
	Conflicts []models.RoleAssignment
}

func (e *DuplicateAssignmentError) Error() string {
	return fmt.Sprintf("duplicate assignment: %d conflicting grant(s) already valid", len(e.Conflicts))
}

// ResolutionService is the decision layer on top of the assignment store.
// It resolves effective roles, enforces conflict invariants on writes, and
// performs bulk transfer. It never caches assignment state; every resolution
// re-reads current truth.
type ResolutionService struct {
	repo      repository.AssignmentRepository
	publisher *events.Publisher
	logger    *logrus.Entry
}

// NewResolutionService creates a new ResolutionService. The publisher may be
// nil; event publication is best-effort and never gates a mutation.
func NewResolutionService(repo repository.AssignmentRepository, publisher *events.Publisher, logger *logrus.Logger) *ResolutionService {
	return &ResolutionService{
		repo:      repo,
		publisher: publisher,
		logger:    logger.WithField("component", "resolution"),
	}
}

// HasRoleInContext reports whether the user holds a currently-valid grant of
// exactly this role at exactly this scope. Callers must treat a returned
// error as "access denied" - authorization fails closed.
func (s *ResolutionService) HasRoleInContext(ctx context.Context, tenantID string, userID uuid.UUID, role models.SystemRole, scope models.AssignmentContext) (bool, error) {
	assignments, err := s.repo.FindActiveByUserIDAndContext(ctx, tenantID, userID, scope)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"userId": userID,
			"role":   role,
		}).WithError(err).Error("Role check failed")
		return false, err
	}

	for _, a := range assignments {
		if a.Role == role {
			return true, nil
		}
	}
	return false, nil
}

// GetEffectiveRole returns the role of the most recently created valid
// assignment for the exact scope, or nil when the user holds none. The policy
// is last-writer-wins within an exact scope match; the engine does not expand
// a grant at one hierarchy level onto the levels beneath it.
func (s *ResolutionService) GetEffectiveRole(ctx context.Context, tenantID string, userID uuid.UUID, scope models.AssignmentContext) (*models.SystemRole, error) {
	assignments, err := s.repo.FindActiveByUserIDAndContext(ctx, tenantID, userID, scope)
	if err != nil {
		s.logger.WithField("userId", userID).WithError(err).Error("Effective role lookup failed")
		return nil, err
	}
	if len(assignments) == 0 {
		return nil, nil
	}

	sort.SliceStable(assignments, func(i, j int) bool {
		return assignments[i].CreatedAt.After(assignments[j].CreatedAt)
	})

	role := assignments[0].Role
	return &role, nil
}

// GrantRole creates a new assignment after running the duplicate check. A
// non-empty conflict list is returned as a DuplicateAssignmentError; the
// persistence layer's partial unique index over valid rows is the hard
// backstop for the check-then-act window.
func (s *ResolutionService) GrantRole(ctx context.Context, tenantID string, req models.GrantRoleRequest) (*models.RoleAssignment, error) {
	if !req.Role.IsValid() {
		return nil, ErrUnknownRole
	}

	scope := models.AssignmentContext{
		BusinessID:   req.BusinessID,
		LocationID:   req.LocationID,
		DepartmentID: req.DepartmentID,
	}

	conflicts, err := s.repo.CheckAssignmentConflicts(ctx, tenantID, req.UserID, req.Role, scope)
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		return nil, &DuplicateAssignmentError{Conflicts: conflicts}
	}

	assignment := &models.RoleAssignment{
		UserID:         req.UserID,
		Role:           req.Role,
		BusinessID:     req.BusinessID,
		LocationID:     req.LocationID,
		DepartmentID:   req.DepartmentID,
		IsActive:       true,
		ExpiresAt:      req.ExpiresAt,
		AssignedBy:     req.AssignedBy,
		AssignedByName: req.AssignedByName,
		Notes:          req.Notes,
	}

	saved, err := s.repo.Save(ctx, tenantID, assignment)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"userId": saved.UserID,
		"role":   saved.Role,
		"scope":  saved.Scope,
	}).Info("Role granted")

	if s.publisher != nil {
		s.publisher.PublishGranted(ctx, saved)
	}
	return saved, nil
}

// CheckConflicts exposes the duplicate check without granting
func (s *ResolutionService) CheckConflicts(ctx context.Context, tenantID string, userID uuid.UUID, role models.SystemRole, scope models.AssignmentContext) ([]models.RoleAssignment, error) {
	return s.repo.CheckAssignmentConflicts(ctx, tenantID, userID, role, scope)
}

// RevokeRole soft-deletes an assignment. Returns false when the id is unknown.
func (s *ResolutionService) RevokeRole(ctx context.Context, tenantID string, id uuid.UUID) (bool, error) {
	assignment, err := s.repo.FindByID(ctx, tenantID, id)
	if err != nil {
		return false, err
	}
	if assignment == nil {
		return false, nil
	}

	deleted, err := s.repo.Delete(ctx, tenantID, id)
	if err != nil || !deleted {
		return deleted, err
	}

	s.logger.WithFields(logrus.Fields{
		"assignmentId": id,
		"userId":       assignment.UserID,
	}).Info("Role revoked")

	if s.publisher != nil {
		assignment.IsActive = false
		s.publisher.PublishRevoked(ctx, assignment)
	}
	return true, nil
}

// ReactivateAssignment flips a revoked assignment back to active. Expiry is
// deliberately untouched: reactivating a record whose expiry has passed
// yields an active record that every validity query still excludes.
// Extending validity requires a fresh grant.
func (s *ResolutionService) ReactivateAssignment(ctx context.Context, tenantID string, id uuid.UUID) (*models.RoleAssignment, error) {
	assignment, err := s.repo.Reactivate(ctx, tenantID, id)
	if err != nil || assignment == nil {
		return assignment, err
	}

	s.logger.WithField("assignmentId", id).Info("Assignment reactivated")

	if s.publisher != nil {
		s.publisher.PublishReactivated(ctx, assignment)
	}
	return assignment, nil
}

// TransferAssignments moves all currently-valid assignments from one user to
// another with audit provenance. Partial completion is surfaced in the
// report, never swallowed.
func (s *ResolutionService) TransferAssignments(ctx context.Context, tenantID string, fromUserID, toUserID, transferredBy uuid.UUID) (*models.TransferReport, error) {
	report, err := s.repo.TransferAssignments(ctx, tenantID, fromUserID, toUserID, transferredBy)
	if err != nil {
		return nil, err
	}

	entry := s.logger.WithFields(logrus.Fields{
		"fromUserId":  fromUserID,
		"toUserId":    toUserID,
		"transferred": len(report.Transferred),
		"failed":      len(report.Failed),
	})
	if len(report.Failed) > 0 {
		entry.Warn("Assignment transfer partially failed")
	} else {
		entry.Info("Assignments transferred")
	}

	if s.publisher != nil {
		for i := range report.Transferred {
			s.publisher.PublishTransferred(ctx, &report.Transferred[i])
		}
	}
	return report, nil
}

// GetAssignment returns one assignment or nil when absent
func (s *ResolutionService) GetAssignment(ctx context.Context, tenantID string, id uuid.UUID) (*models.RoleAssignment, error) {
	return s.repo.FindByID(ctx, tenantID, id)
}

// ListUserAssignments returns a user's assignments, all or valid-only
func (s *ResolutionService) ListUserAssignments(ctx context.Context, tenantID string, userID uuid.UUID, activeOnly bool) ([]models.RoleAssignment, error) {
	if activeOnly {
		return s.repo.FindActiveByUserID(ctx, tenantID, userID)
	}
	return s.repo.FindByUserID(ctx, tenantID, userID)
}

// ListAssignments runs the paginated filter search
func (s *ResolutionService) ListAssignments(ctx context.Context, tenantID string, filters models.AssignmentFilters, page, limit int) (*models.AssignmentPage, error) {
	return s.repo.FindWithFilters(ctx, tenantID, filters, page, limit)
}

// FindExpiringSoon lists active assignments expiring within daysAhead days.
// Already-expired grants are not "expiring" and are excluded.
func (s *ResolutionService) FindExpiringSoon(ctx context.Context, tenantID string, daysAhead int) ([]models.RoleAssignment, error) {
	if daysAhead <= 0 {
		daysAhead = models.ExpiringSoonWindowDays
	}
	return s.repo.FindExpiringSoon(ctx, tenantID, daysAhead)
}

// GetAssignmentStats aggregates counters, optionally for one business
func (s *ResolutionService) GetAssignmentStats(ctx context.Context, tenantID string, businessID *uuid.UUID) (*models.AssignmentStats, error) {
	return s.repo.GetAssignmentStats(ctx, tenantID, businessID)
}

// FindUsersWithRoleInContext lists distinct holders of a role at a scope
func (s *ResolutionService) FindUsersWithRoleInContext(ctx context.Context, tenantID string, role models.SystemRole, scope models.AssignmentContext) ([]uuid.UUID, error) {
	return s.repo.FindUsersWithRoleInContext(ctx, tenantID, role, scope)
}

// GetAssignmentHistory returns a user's assignments newest-first; with
// includeCurrent false only historical (inactive) records are returned
func (s *ResolutionService) GetAssignmentHistory(ctx context.Context, tenantID string, userID uuid.UUID, includeCurrent bool) ([]models.RoleAssignment, error) {
	return s.repo.GetAssignmentHistory(ctx, tenantID, userID, includeCurrent)
}

// SearchAssignments runs a free-text search, optionally narrowed to a scope
func (s *ResolutionService) SearchAssignments(ctx context.Context, tenantID string, query string, scope *models.AssignmentContext) ([]models.RoleAssignment, error) {
	return s.repo.SearchAssignments(ctx, tenantID, query, scope)
}
