package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"grievance-management-api/models"
)

func TestParseStatus(t *testing.T) {
	tests := map[string]models.Status{
		"pending":      models.StatusPending,
		" In Progress": models.StatusInProgress,
		"IN_PROGRESS":  models.StatusInProgress,
		"resolved":     models.StatusResolved,
		"Closed":       models.StatusClosed,
	}
	for input, want := range tests {
		got, ok := ParseStatus(input)
		assert.True(t, ok, input)
		assert.Equal(t, want, got, input)
	}

	_, ok := ParseStatus("archived")
	assert.False(t, ok)
}

func TestParsePriorityAndRole(t *testing.T) {
	p, ok := ParsePriority("HIGH")
	assert.True(t, ok)
	assert.Equal(t, models.PriorityHigh, p)

	_, ok = ParsePriority("whenever")
	assert.False(t, ok)

	r, ok := ParseRole("STAFF")
	assert.True(t, ok)
	assert.Equal(t, models.RoleStaff, r)

	_, ok = ParseRole("superuser")
	assert.False(t, ok)
}

func TestValidators(t *testing.T) {
	assert.True(t, ValidateEmail("jane@example.com"))
	assert.False(t, ValidateEmail("jane@"))

	assert.True(t, ValidatePhone("9876543210"))
	assert.False(t, ValidatePhone("5876543210"))
	assert.False(t, ValidatePhone("98765"))

	assert.Equal(t, "jane@example.com", NormalizeEmail("  Jane@Example.COM "))
	assert.Equal(t, "abc", SanitizeInput(" a\x00bc "))

	blank := "   "
	assert.Nil(t, SanitizeOptional(&blank))
	assert.Nil(t, SanitizeOptional(nil))
}
