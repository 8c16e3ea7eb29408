package utils

import (
	"strings"

	"grievance-management-api/models"
)

// Accepted spellings for each canonical enum value. Lookups are
// case-insensitive and ignore surrounding whitespace.
var (
	statusSynonyms = map[models.Status][]string{
		models.StatusPending: {
			"pending",
			"open",
			"new",
		},
		models.StatusInProgress: {
			"in_progress",
			"in progress",
			"in-progress",
			"inprogress",
		},
		models.StatusResolved: {
			"resolved",
		},
		models.StatusClosed: {
			"closed",
		},
		models.StatusRejected: {
			"rejected",
		},
	}
	prioritySynonyms = map[models.Priority][]string{
		models.PriorityLow:    {"low"},
		models.PriorityMedium: {"medium", "normal"},
		models.PriorityHigh:   {"high"},
		models.PriorityUrgent: {"urgent", "critical"},
	}
	roleSynonyms = map[models.Role][]string{
		models.RoleAdmin: {"admin", "administrator"},
		models.RoleStaff: {"staff"},
		models.RoleUser:  {"user"},
	}

	statusAliasToCanonical   = buildAliasMap(statusSynonyms)
	priorityAliasToCanonical = buildAliasMap(prioritySynonyms)
	roleAliasToCanonical     = buildAliasMap(roleSynonyms)
)

func buildAliasMap[T ~string](synonyms map[T][]string) map[string]T {
	aliasMap := make(map[string]T)
	for canonical, aliases := range synonyms {
		aliasMap[normalizeKey(string(canonical))] = canonical
		for _, alias := range aliases {
			if key := normalizeKey(alias); key != "" {
				aliasMap[key] = canonical
			}
		}
	}
	return aliasMap
}

func normalizeKey(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// ParseStatus resolves a client-supplied status. ok is false for unknown input.
func ParseStatus(value string) (models.Status, bool) {
	status, ok := statusAliasToCanonical[normalizeKey(value)]
	return status, ok
}

func ParsePriority(value string) (models.Priority, bool) {
	priority, ok := priorityAliasToCanonical[normalizeKey(value)]
	return priority, ok
}

func ParseRole(value string) (models.Role, bool) {
	role, ok := roleAliasToCanonical[normalizeKey(value)]
	return role, ok
}
