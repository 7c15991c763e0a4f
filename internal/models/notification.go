// internal/models/notification.go
package models

import "time"

// Notification types
const (
	NotificationStatusUpdate = "status_update"
	NotificationAssignment   = "assignment"
	NotificationGeneral      = "general"
)

// Notification is a message queued for a specific user. The dispatcher creates
// it; only the recipient flips IsRead.
type Notification struct {
	ID                string    `json:"id" bson:"_id"`
	UserID            string    `json:"userId" bson:"userId"`
	Title             string    `json:"title" bson:"title"`
	Message           string    `json:"message" bson:"message"`
	Type              string    `json:"type" bson:"type"`
	RelatedResourceID string    `json:"relatedResourceId,omitempty" bson:"relatedResourceId,omitempty"`
	IsRead            bool      `json:"isRead" bson:"isRead"`
	CreatedAt         time.Time `json:"createdAt" bson:"createdAt"`
}
