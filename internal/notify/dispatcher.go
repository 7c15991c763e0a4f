// internal/notify/dispatcher.go

// Package notify creates user-facing notifications and pushes them over the
// configured channels. Everything here is fire-and-forget: channel failures
// are logged and never propagated to the caller's primary operation.
package notify

import (
	"context"
	"database/sql"
	"time"

	"eservices-portal/internal/common/aws"
	"eservices-portal/internal/common/logger"
	"eservices-portal/internal/common/metrics"
	"eservices-portal/internal/models"
	"eservices-portal/internal/store"

	"github.com/google/uuid"
)

// ContactResolver looks up a user's delivery addresses. A missing user is not
// an error for dispatch purposes; channels are simply skipped.
type ContactResolver interface {
	Contact(ctx context.Context, userID string) (email, phone string, err error)
}

// SQLContactResolver resolves contacts from the relational user directory.
type SQLContactResolver struct {
	DB *sql.DB
}

func (r *SQLContactResolver) Contact(ctx context.Context, userID string) (string, string, error) {
	var email, phone string
	err := r.DB.QueryRowContext(ctx,
		`SELECT email, phone FROM users WHERE id = $1`, userID).Scan(&email, &phone)
	return email, phone, err
}

// Input describes one notification to dispatch.
type Input struct {
	UserID    string
	Title     string
	Message   string
	Type      string
	RelatedID string
	Priority  string
}

type Dispatcher struct {
	store        store.Store
	contacts     ContactResolver
	ses          *aws.SESClient
	sns          *aws.SNSClient
	emailEnabled bool
	smsEnabled   bool
	smsThreshold string
	logger       logger.Logger
}

type Config struct {
	EmailEnabled bool
	SMSEnabled   bool
	SMSThreshold string
}

func NewDispatcher(st store.Store, contacts ContactResolver, ses *aws.SESClient, sns *aws.SNSClient, cfg Config, log logger.Logger) *Dispatcher {
	threshold := cfg.SMSThreshold
	if threshold == "" {
		threshold = models.PriorityHigh
	}
	return &Dispatcher{
		store:        st,
		contacts:     contacts,
		ses:          ses,
		sns:          sns,
		emailEnabled: cfg.EmailEnabled,
		smsEnabled:   cfg.SMSEnabled,
		smsThreshold: threshold,
		logger:       log.WithFields(map[string]interface{}{"component": "notify"}),
	}
}

// Dispatch creates the notification record, then attempts the enabled
// channels. The record is the only guaranteed artifact: it becomes visible to
// the user on their next read regardless of channel outcomes.
func (d *Dispatcher) Dispatch(ctx context.Context, in Input) {
	n := models.Notification{
		ID:                uuid.New().String(),
		UserID:            in.UserID,
		Title:             in.Title,
		Message:           in.Message,
		Type:              in.Type,
		RelatedResourceID: in.RelatedID,
		IsRead:            false,
		CreatedAt:         time.Now().UTC(),
	}

	if err := d.store.Create(ctx, store.CollectionNotifications, n); err != nil {
		d.logger.Error("notification record create failed", map[string]interface{}{
			"error":  err,
			"userId": in.UserID,
			"type":   in.Type,
		})
		// still try the push channels below
	}

	if !d.emailEnabled && !d.smsEnabled {
		return
	}
	if d.contacts == nil {
		return
	}

	email, phone, err := d.contacts.Contact(ctx, in.UserID)
	if err != nil {
		d.logger.Warn("recipient contact not found", map[string]interface{}{
			"userId": in.UserID,
		})
		return
	}

	if d.emailEnabled && d.ses != nil && email != "" {
		if err := d.ses.SendPlainEmail(ctx, email, in.Title, in.Message); err != nil {
			metrics.NotificationsFailed.WithLabelValues("email").Inc()
			d.logger.Error("email send failed", map[string]interface{}{
				"error":  err,
				"userId": in.UserID,
			})
		} else {
			metrics.NotificationsSent.WithLabelValues("email").Inc()
		}
	}

	// SMS only for priority at the configured threshold
	if d.smsEnabled && d.sns != nil && phone != "" && in.Priority == d.smsThreshold {
		if err := d.sns.SendSMS(ctx, phone, in.Message); err != nil {
			metrics.NotificationsFailed.WithLabelValues("sms").Inc()
			d.logger.Error("SMS send failed", map[string]interface{}{
				"error":  err,
				"userId": in.UserID,
			})
		} else {
			metrics.NotificationsSent.WithLabelValues("sms").Inc()
		}
	}
}

// ListForUser returns a user's notifications newest-first. isRead filters when
// non-nil.
func (d *Dispatcher) ListForUser(ctx context.Context, userID string, isRead *bool, cursor string, limit int64) ([]models.Notification, string, error) {
	q := store.Query{
		Filters: map[string]interface{}{"userId": userID},
		Cursor:  cursor,
		Limit:   limit,
	}
	if isRead != nil {
		q.Filters["isRead"] = *isRead
	}
	q.Normalize()

	var list []models.Notification
	if err := d.store.Find(ctx, store.CollectionNotifications, q, &list); err != nil {
		return nil, "", err
	}

	next := ""
	if int64(len(list)) > q.Limit {
		list = list[:q.Limit]
		last := list[len(list)-1]
		next = store.EncodeCursor(last.CreatedAt, last.ID)
	}
	return list, next, nil
}

// MarkRead flips isRead for the recipient. Only the recipient may mutate it.
func (d *Dispatcher) MarkRead(ctx context.Context, notificationID, userID string) error {
	var n models.Notification
	if err := d.store.Get(ctx, store.CollectionNotifications, notificationID, &n); err != nil {
		return err
	}
	if n.UserID != userID {
		return store.ErrNotFound
	}
	return d.store.UpdateFields(ctx, store.CollectionNotifications, notificationID,
		map[string]interface{}{"isRead": true})
}
