// internal/models/application.go
package models

import "time"

// Application statuses
const (
	StatusSubmitted         = "submitted"
	StatusUnderReview       = "under_review"
	StatusApproved          = "approved"
	StatusRejected          = "rejected"
	StatusDocumentsRequired = "documents_required"
	StatusCompleted         = "completed"
	StatusCancelled         = "cancelled"
)

// Priorities
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

// StatusHistoryEntry is one row of an application's append-only history.
// The last entry's status always matches the application's Status field.
type StatusHistoryEntry struct {
	Status    string    `json:"status" bson:"status"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
	Actor     string    `json:"actor" bson:"actor"`
	Remarks   string    `json:"remarks,omitempty" bson:"remarks,omitempty"`
}

// Comment is a staff or applicant note attached to an application.
type Comment struct {
	AuthorID  string    `json:"authorId" bson:"authorId"`
	Text      string    `json:"text" bson:"text"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

// Application is one citizen request for a government service.
type Application struct {
	ID                   string                 `json:"id" bson:"_id"`
	ServiceType          string                 `json:"serviceType" bson:"serviceType"`
	ApplicantID          string                 `json:"applicantId" bson:"applicantId"`
	Status               string                 `json:"status" bson:"status"`
	StatusHistory        []StatusHistoryEntry   `json:"statusHistory" bson:"statusHistory"`
	AssignedTo           string                 `json:"assignedTo,omitempty" bson:"assignedTo,omitempty"`
	Fee                  float64                `json:"fee" bson:"fee"`
	Priority             string                 `json:"priority" bson:"priority"`
	ExpectedCompletionAt time.Time              `json:"expectedCompletionAt" bson:"expectedCompletionAt"`
	FormData             map[string]interface{} `json:"formData,omitempty" bson:"formData,omitempty"`
	Documents            []string               `json:"documents,omitempty" bson:"documents,omitempty"`
	Comments             []Comment              `json:"comments,omitempty" bson:"comments,omitempty"`
	CreatedAt            time.Time              `json:"createdAt" bson:"createdAt"`
	UpdatedAt            time.Time              `json:"updatedAt" bson:"updatedAt"`
}

// IsTerminalStatus reports whether no further transition is permitted out of status.
func IsTerminalStatus(status string) bool {
	switch status {
	case StatusCompleted, StatusRejected, StatusCancelled:
		return true
	}
	return false
}
