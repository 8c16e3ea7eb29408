// Package events carries grievance lifecycle events from the services that
// commit them to the handlers that fan them out as notifications.
package events

import (
	"fmt"

	"github.com/goccy/go-json"

	"grievance-management-api/models"
)

// Topics.
const (
	TopicGrievanceSubmitted     = "grievance.submitted"
	TopicGrievanceAssigned      = "grievance.assigned"
	TopicGrievanceStatusChanged = "grievance.status_changed"
	TopicGrievanceCommented     = "grievance.commented"
	TopicDeadLetter             = "notifications.dead_letter"
)

type GrievanceSubmitted struct {
	GrievanceID   uint   `json:"grievance_id"`
	Title         string `json:"title"`
	SubmitterID   uint   `json:"submitter_id"`
	SubmitterName string `json:"submitter_name"`
}

type GrievanceAssigned struct {
	GrievanceID uint   `json:"grievance_id"`
	Title       string `json:"title"`
	AssigneeID  uint   `json:"assignee_id"`
	AssignedBy  uint   `json:"assigned_by"`
}

type GrievanceStatusChanged struct {
	GrievanceID uint          `json:"grievance_id"`
	Title       string        `json:"title"`
	SubmitterID uint          `json:"submitter_id"`
	OldStatus   models.Status `json:"old_status"`
	NewStatus   models.Status `json:"new_status"`
	ChangedBy   uint          `json:"changed_by"`
}

type GrievanceCommented struct {
	GrievanceID   uint   `json:"grievance_id"`
	Title         string `json:"title"`
	SubmitterID   uint   `json:"submitter_id"`
	CommenterID   uint   `json:"commenter_id"`
	CommenterName string `json:"commenter_name"`
}

func encode(payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return data, nil
}

// Decode unmarshals an event payload into dst.
func Decode(data []byte, dst interface{}) error {
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}
	return nil
}
