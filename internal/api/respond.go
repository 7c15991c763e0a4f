// internal/api/respond.go
package api

import (
	"encoding/json"
	"net/http"

	"eservices-portal/internal/common/errors"
)

type errorBody struct {
	Error errorPayload `json:"error"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeError renders a portal error with its mapped HTTP status. Anything else
// is a 500 with an opaque body so internals never leak.
func writeError(w http.ResponseWriter, err error) {
	code := errors.CodeOf(err)
	if code == "" {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: errorPayload{
			Code:    "INTERNAL_ERROR",
			Message: "Internal server error",
		}})
		return
	}

	payload := errorPayload{Code: string(code)}
	if pe, ok := err.(*errors.PortalError); ok {
		payload.Message = pe.Message
		payload.Details = pe.Details
	}
	writeJSON(w, errors.HTTPStatus(code), errorBody{Error: payload})
}
