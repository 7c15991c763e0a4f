// internal/api/handlers.go
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"eservices-portal/internal/audit"
	"eservices-portal/internal/common/auth"
	"eservices-portal/internal/common/errors"
	"eservices-portal/internal/models"
	"eservices-portal/internal/store"

	"github.com/go-chi/chi/v5"
)

func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.NewValidationError("malformed JSON body")
	}
	return nil
}

// parseCursor rejects a client-supplied continuation cursor that cannot be
// decoded, so a garbage cursor reads as a bad request rather than a storage
// failure.
func parseCursor(r *http.Request) (string, error) {
	cursor := r.URL.Query().Get("cursor")
	if cursor == "" {
		return "", nil
	}
	if _, _, err := store.DecodeCursor(cursor); err != nil {
		return "", errors.NewValidationError("malformed cursor")
	}
	return cursor, nil
}

// staffActor returns the request actor if it may perform staff operations.
func staffActor(r *http.Request) (*auth.Actor, error) {
	actor := auth.FromContext(r.Context())
	if actor == nil {
		return nil, errors.NewUnauthorizedError("staff endpoint requires a bearer token")
	}
	if !auth.IsStaff(actor) {
		return nil, errors.NewForbiddenError("staff role required")
	}
	return actor, nil
}

// ==========================
// Applications
// ==========================

type createApplicationRequest struct {
	ServiceType string                 `json:"serviceType"`
	ApplicantID string                 `json:"applicantId"`
	FormData    map[string]interface{} `json:"formData"`
	Documents   []string               `json:"documents"`
}

func (s *Server) handleCreateApplication(w http.ResponseWriter, r *http.Request) {
	var req createApplicationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	applicantID := req.ApplicantID
	if actor := auth.FromContext(r.Context()); actor != nil {
		applicantID = actor.ID
	}

	app, err := s.workflow.Create(r.Context(), applicantID, req.ServiceType, req.FormData, req.Documents)
	if err != nil {
		writeError(w, err)
		return
	}

	// Assignment is synchronous but best-effort: a failure or empty officer
	// pool leaves the application submitted, which is a valid state.
	if s.assigner != nil {
		if svc, ok := s.catalog.Lookup(app.ServiceType); ok {
			if _, err := s.assigner.Assign(r.Context(), app.ID, svc.Category); err != nil {
				s.logger.Error("assignment failed", map[string]interface{}{
					"error":         err,
					"applicationId": app.ID,
				})
			} else if refreshed, err := s.workflow.Get(r.Context(), app.ID); err == nil {
				app = refreshed
			}
		}
	}

	writeJSON(w, http.StatusCreated, app)
}

func (s *Server) handleGetApplication(w http.ResponseWriter, r *http.Request) {
	app, err := s.workflow.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

type applicationListResponse struct {
	Applications []models.Application `json:"applications"`
	NextCursor   string               `json:"nextCursor,omitempty"`
}

func (s *Server) handleListApplications(w http.ResponseWriter, r *http.Request) {
	cursor, err := parseCursor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	q := store.Query{
		Filters: map[string]interface{}{},
		Cursor:  cursor,
		Limit:   parseLimit(r),
	}
	if v := r.URL.Query().Get("status"); v != "" {
		q.Filters["status"] = v
	}
	if v := r.URL.Query().Get("serviceType"); v != "" {
		q.Filters["serviceType"] = v
	}
	q.Normalize()

	var apps []models.Application
	if err := s.store.Find(r.Context(), store.CollectionApplications, q, &apps); err != nil {
		writeError(w, errors.NewStorageError("list applications", err))
		return
	}

	resp := applicationListResponse{}
	if int64(len(apps)) > q.Limit {
		apps = apps[:q.Limit]
		last := apps[len(apps)-1]
		resp.NextCursor = store.EncodeCursor(last.CreatedAt, last.ID)
	}
	if apps == nil {
		apps = []models.Application{}
	}
	resp.Applications = apps
	writeJSON(w, http.StatusOK, resp)
}

type transitionRequest struct {
	Status  string `json:"status"`
	Remarks string `json:"remarks"`
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	actor, err := staffActor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req transitionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Status == "" {
		writeError(w, errors.NewValidationError("status is required"))
		return
	}

	res, err := s.workflow.Transition(r.Context(), chi.URLParam(r, "id"), req.Status, actor.ID, req.Remarks)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type reassignRequest struct {
	OfficerID string `json:"officerId"`
}

func (s *Server) handleReassign(w http.ResponseWriter, r *http.Request) {
	actor, err := staffActor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req reassignRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.assigner.Reassign(r.Context(), chi.URLParam(r, "id"), req.OfficerID, actor.ID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"assignedTo": req.OfficerID})
}

type commentRequest struct {
	AuthorID string `json:"authorId"`
	Text     string `json:"text"`
}

func (s *Server) handleAddComment(w http.ResponseWriter, r *http.Request) {
	var req commentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	authorID := req.AuthorID
	if actor := auth.FromContext(r.Context()); actor != nil {
		authorID = actor.ID
	}
	if authorID == "" || req.Text == "" {
		writeError(w, errors.NewValidationError("authorId and text are required"))
		return
	}

	id := chi.URLParam(r, "id")
	comment := models.Comment{
		AuthorID:  authorID,
		Text:      req.Text,
		Timestamp: time.Now().UTC(),
	}
	if err := s.store.AppendToArray(r.Context(), store.CollectionApplications, id, "comments", comment); err != nil {
		if err == store.ErrNotFound {
			writeError(w, errors.NewNotFoundError("application", id))
			return
		}
		writeError(w, errors.NewStorageError("append comment", err))
		return
	}

	s.trail.Record(r.Context(), models.ActionCommentAdded, authorID,
		models.ResourceApplication, id, map[string]interface{}{"text": req.Text}, true)
	writeJSON(w, http.StatusCreated, comment)
}

// ==========================
// Notifications
// ==========================

type notificationListResponse struct {
	Notifications []models.Notification `json:"notifications"`
	NextCursor    string                `json:"nextCursor,omitempty"`
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if actor := auth.FromContext(r.Context()); actor != nil {
		userID = actor.ID
	}
	if userID == "" {
		writeError(w, errors.NewValidationError("userId is required"))
		return
	}

	var isRead *bool
	if v := r.URL.Query().Get("isRead"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, errors.NewValidationError("isRead must be a boolean"))
			return
		}
		isRead = &b
	}

	cursor, err := parseCursor(r)
	if err != nil {
		writeError(w, err)
		return
	}

	list, next, err := s.dispatcher.ListForUser(r.Context(), userID, isRead, cursor, parseLimit(r))
	if err != nil {
		writeError(w, errors.NewStorageError("list notifications", err))
		return
	}
	if list == nil {
		list = []models.Notification{}
	}
	writeJSON(w, http.StatusOK, notificationListResponse{Notifications: list, NextCursor: next})
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if actor := auth.FromContext(r.Context()); actor != nil {
		userID = actor.ID
	}
	if userID == "" {
		writeError(w, errors.NewValidationError("userId is required"))
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.dispatcher.MarkRead(r.Context(), id, userID); err != nil {
		if err == store.ErrNotFound {
			writeError(w, errors.NewNotFoundError("notification", id))
			return
		}
		writeError(w, errors.NewStorageError("mark notification read", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"isRead": true})
}

// ==========================
// Audit, stats
// ==========================

func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if _, err := staffActor(r); err != nil {
		writeError(w, err)
		return
	}

	cursor, err := parseCursor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	f := audit.Filter{
		ActorID:      r.URL.Query().Get("actorId"),
		Action:       r.URL.Query().Get("action"),
		ResourceType: r.URL.Query().Get("resourceType"),
		Cursor:       cursor,
		Limit:        parseLimit(r),
	}
	for param, dst := range map[string]**time.Time{"since": &f.Since, "until": &f.Until} {
		if v := r.URL.Query().Get(param); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				writeError(w, errors.NewValidationError(param+" must be RFC3339"))
				return
			}
			*dst = &t
		}
	}

	page, err := s.trail.List(r.Context(), f)
	if err != nil {
		writeError(w, errors.NewStorageError("list audit entries", err))
		return
	}
	if page.Entries == nil {
		page.Entries = []models.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	snap, err := s.aggregator.Snapshot(r.Context())
	if err != nil {
		writeError(w, errors.NewStorageError("read statistics", err))
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleStatsRebuild(w http.ResponseWriter, r *http.Request) {
	actor, err := staffActor(r)
	if err != nil {
		writeError(w, err)
		return
	}

	snap, err := s.aggregator.Rebuild(r.Context())
	if err != nil {
		writeError(w, errors.NewStorageError("rebuild statistics", err))
		return
	}
	s.trail.Record(r.Context(), models.ActionStatsRebuilt, actor.ID,
		models.ResourceStatistics, "portal:stats", nil, true)
	writeJSON(w, http.StatusOK, snap)
}

func parseLimit(r *http.Request) int64 {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
