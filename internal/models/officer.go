// internal/models/officer.go
package models

// Officer is a staff member eligible to review applications in a category.
// The officer directory lives in the relational staff database.
type Officer struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone,omitempty"`
	Category string `json:"category"`
	Active   bool   `json:"active"`
}
