package models

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestContextTypeLevel(t *testing.T) {
	assert.Equal(t, 0, ContextTypeBusiness.Level())
	assert.Equal(t, 1, ContextTypeLocation.Level())
	assert.Equal(t, 2, ContextTypeDepartment.Level())
	assert.Equal(t, -1, ContextType("WAREHOUSE").Level())
}

func TestNewBusinessContext(t *testing.T) {
	businessID := uuid.New()
	parentID := uuid.New()

	t.Run("creates a business root", func(t *testing.T) {
		bc, err := NewBusinessContext(CreateContextParams{
			TenantID:   "tenant-1",
			Name:       "  Acme Corp  ",
			Type:       ContextTypeBusiness,
			BusinessID: businessID,
		})

		assert.NoError(t, err)
		assert.Equal(t, "Acme Corp", bc.Name)
		assert.Equal(t, 0, bc.Level)
		assert.Equal(t, 1, bc.Version)
		assert.True(t, bc.IsActive)
		assert.True(t, bc.IsRootContext())
		assert.Nil(t, bc.Path)
	})

	t.Run("rejects blank and short names", func(t *testing.T) {
		_, err := NewBusinessContext(CreateContextParams{Name: "   ", Type: ContextTypeBusiness, BusinessID: businessID})
		assert.ErrorIs(t, err, ErrContextNameRequired)

		_, err = NewBusinessContext(CreateContextParams{Name: "A", Type: ContextTypeBusiness, BusinessID: businessID})
		assert.ErrorIs(t, err, ErrContextNameTooShort)

		_, err = NewBusinessContext(CreateContextParams{Name: strings.Repeat("x", 201), Type: ContextTypeBusiness, BusinessID: businessID})
		assert.ErrorIs(t, err, ErrContextNameTooLong)
	})

	t.Run("name length counts runes, not bytes", func(t *testing.T) {
		_, err := NewBusinessContext(CreateContextParams{Name: "é", Type: ContextTypeBusiness, BusinessID: businessID})
		assert.ErrorIs(t, err, ErrContextNameTooShort)

		// 200 runes but 600 bytes; must still be accepted
		bc, err := NewBusinessContext(CreateContextParams{Name: strings.Repeat("店", 200), Type: ContextTypeBusiness, BusinessID: businessID})
		assert.NoError(t, err)
		assert.Equal(t, strings.Repeat("店", 200), bc.Name)

		_, err = NewBusinessContext(CreateContextParams{Name: strings.Repeat("店", 201), Type: ContextTypeBusiness, BusinessID: businessID})
		assert.ErrorIs(t, err, ErrContextNameTooLong)
	})

	t.Run("rejects unknown context types", func(t *testing.T) {
		_, err := NewBusinessContext(CreateContextParams{Name: "Warehouse", Type: ContextType("WAREHOUSE"), BusinessID: businessID})
		assert.ErrorIs(t, err, ErrInvalidContextType)
	})

	t.Run("business contexts cannot have a parent", func(t *testing.T) {
		_, err := NewBusinessContext(CreateContextParams{
			Name:            "Acme Corp",
			Type:            ContextTypeBusiness,
			BusinessID:      businessID,
			ParentContextID: &parentID,
		})
		assert.ErrorIs(t, err, ErrBusinessContextHasParent)
	})

	t.Run("non-business contexts require a parent", func(t *testing.T) {
		_, err := NewBusinessContext(CreateContextParams{
			Name:       "Downtown",
			Type:       ContextTypeLocation,
			BusinessID: businessID,
		})
		assert.ErrorIs(t, err, ErrContextParentRequired)
	})

	t.Run("requires a business id", func(t *testing.T) {
		_, err := NewBusinessContext(CreateContextParams{Name: "Acme Corp", Type: ContextTypeBusiness})
		assert.ErrorIs(t, err, ErrBusinessIDRequired)
	})
}

func TestIsValidChild(t *testing.T) {
	businessID := uuid.New()

	business := &BusinessContext{Type: ContextTypeBusiness, Level: 0, BusinessID: businessID}
	location := &BusinessContext{Type: ContextTypeLocation, Level: 1, BusinessID: businessID}
	department := &BusinessContext{Type: ContextTypeDepartment, Level: 2, BusinessID: businessID}

	assert.True(t, location.IsValidChild(business))
	assert.True(t, department.IsValidChild(location))

	// Departments cannot hang directly off a business
	assert.False(t, department.IsValidChild(business))
	// No transitions out of a department
	assert.False(t, business.IsValidChild(department))
	assert.False(t, location.IsValidChild(department))
	// Same-type nesting is illegal
	assert.False(t, location.IsValidChild(location))
	assert.False(t, business.IsValidChild(nil))
}

func TestApplyUpdate(t *testing.T) {
	businessID := uuid.New()

	t.Run("applies only the fields present", func(t *testing.T) {
		bc, err := NewBusinessContext(CreateContextParams{
			Name:       "Acme Corp",
			Type:       ContextTypeBusiness,
			BusinessID: businessID,
		})
		assert.NoError(t, err)

		newName := "Acme Holdings"
		inactive := false
		err = bc.ApplyUpdate(ContextUpdate{Name: &newName, IsActive: &inactive})

		assert.NoError(t, err)
		assert.Equal(t, "Acme Holdings", bc.Name)
		assert.False(t, bc.IsActive)
		assert.Equal(t, 2, bc.Version)
	})

	t.Run("invalid name leaves the context untouched", func(t *testing.T) {
		bc, err := NewBusinessContext(CreateContextParams{
			Name:       "Acme Corp",
			Type:       ContextTypeBusiness,
			BusinessID: businessID,
		})
		assert.NoError(t, err)

		bad := "x"
		err = bc.ApplyUpdate(ContextUpdate{Name: &bad})

		assert.ErrorIs(t, err, ErrContextNameTooShort)
		assert.Equal(t, "Acme Corp", bc.Name)
		assert.Equal(t, 1, bc.Version)
	})
}

func TestParentChildPredicates(t *testing.T) {
	parentID := uuid.New()
	parent := &BusinessContext{ID: parentID, Type: ContextTypeBusiness}
	child := &BusinessContext{ID: uuid.New(), Type: ContextTypeLocation, ParentContextID: &parentID}

	assert.True(t, parent.IsParentOf(child))
	assert.True(t, child.IsChildOf(parentID))
	assert.False(t, child.IsParentOf(parent))
	assert.False(t, parent.IsChildOf(child.ID))
}
