// internal/models/audit.go
package models

import "time"

// Audit actions
const (
	ActionApplicationSubmitted  = "application_submitted"
	ActionStatusChanged         = "status_changed"
	ActionApplicationAssigned   = "application_assigned"
	ActionApplicationReassigned = "application_reassigned"
	ActionCommentAdded          = "comment_added"
	ActionStatsRebuilt          = "stats_rebuilt"
)

// Resource types
const (
	ResourceApplication = "application"
	ResourceStatistics  = "statistics"
)

// AuditEntry is an immutable record of an action taken against the system.
// Entries are created once and never mutated or deleted.
type AuditEntry struct {
	ID           string                 `json:"id" bson:"_id"`
	Action       string                 `json:"action" bson:"action"`
	ActorID      string                 `json:"actorId" bson:"actorId"`
	ResourceType string                 `json:"resourceType" bson:"resourceType"`
	ResourceID   string                 `json:"resourceId" bson:"resourceId"`
	Details      map[string]interface{} `json:"details,omitempty" bson:"details,omitempty"`
	Success      bool                   `json:"success" bson:"success"`
	CreatedAt    time.Time              `json:"createdAt" bson:"createdAt"`
}
