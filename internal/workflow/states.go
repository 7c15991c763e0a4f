// internal/workflow/states.go
package workflow

import "eservices-portal/internal/models"

// transitions is the complete status graph. Terminal statuses have no entry:
// nothing is reachable from completed, rejected or cancelled.
var transitions = map[string][]string{
	models.StatusSubmitted: {
		models.StatusUnderReview,
		models.StatusCancelled,
	},
	models.StatusUnderReview: {
		models.StatusApproved,
		models.StatusRejected,
		models.StatusDocumentsRequired,
		models.StatusCancelled,
	},
	// resubmission after the applicant provides the missing documents
	models.StatusDocumentsRequired: {
		models.StatusUnderReview,
		models.StatusCancelled,
	},
	models.StatusApproved: {
		models.StatusCompleted,
		models.StatusCancelled,
	},
}

// CanTransition reports whether the status graph permits from -> to.
func CanTransition(from, to string) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// AllowedTargets returns the statuses reachable from the given status.
func AllowedTargets(from string) []string {
	targets := transitions[from]
	out := make([]string, len(targets))
	copy(out, targets)
	return out
}
