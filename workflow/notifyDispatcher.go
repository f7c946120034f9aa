package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/lims_backend/config"
	"bitbucket.org/mmdatafocus/lims_backend/models"
	"bitbucket.org/mmdatafocus/lims_backend/store"
	"bitbucket.org/mmdatafocus/lims_backend/utils"
)

// NotificationPublisher sends one result-ready payload and returns the
// broker-assigned message id.
type NotificationPublisher interface {
	Publish(ctx context.Context, payload any) (string, error)
}

// PubSubPublisher publishes through the configured Pub/Sub topic.
type PubSubPublisher struct{}

func (PubSubPublisher) Publish(ctx context.Context, payload any) (string, error) {
	return config.PublishResultNotification(ctx, payload)
}

// NotifyDispatcher drains pending WhatsApp requests from the outbox document
// and publishes them. Delivery is at-least-once: a crash between publish and
// mark leaves the request pending and it goes out again.
type NotifyDispatcher struct {
	Store        store.DocumentStore
	Logger       *logrus.Logger
	Publisher    NotificationPublisher
	DispatcherID string

	PollInterval time.Duration
	MaxAttempts  int
}

func NewNotifyDispatcher(st store.DocumentStore, logger *logrus.Logger) *NotifyDispatcher {
	return &NotifyDispatcher{
		Store:        st,
		Logger:       logger,
		Publisher:    PubSubPublisher{},
		DispatcherID: uuid.NewString(),
		PollInterval: 5 * time.Second,
		MaxAttempts:  10,
	}
}

// Run polls until the context is cancelled.
func (d *NotifyDispatcher) Run(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		d.DispatchOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.PollInterval):
		}
	}
}

// DispatchOnce publishes every pending (or retryable failed) request in the
// outbox document once.
func (d *NotifyDispatcher) DispatchOnce(ctx context.Context) {
	doc, err := d.Store.Get(ctx, store.CollectionWhatsAppRequests, store.DocWhatsAppOrders)
	if err != nil {
		if !utils.IsNotFound(err) && d.Logger != nil {
			config.LogError(d.Logger, "workflow", "NotifyDispatcher.DispatchOnce", "read outbox", nil, err)
		}
		return
	}

	var outbox map[string]models.WhatsAppRequest
	if err := store.Decode(doc, &outbox); err != nil {
		if d.Logger != nil {
			config.LogError(d.Logger, "workflow", "NotifyDispatcher.DispatchOnce", "decode outbox", nil, err)
		}
		return
	}

	for orderID, req := range outbox {
		if !d.eligible(req) {
			continue
		}
		msgID, pubErr := d.Publisher.Publish(ctx, req)
		if pubErr != nil {
			d.markFailed(ctx, orderID, req, pubErr)
			continue
		}
		d.markSent(ctx, orderID, msgID)
	}
}

func (d *NotifyDispatcher) eligible(req models.WhatsAppRequest) bool {
	switch req.WhatsAppStatus {
	case models.WhatsAppStatusPending:
		return true
	case models.WhatsAppStatusFailed:
		return d.MaxAttempts <= 0 || req.Attempts < d.MaxAttempts
	}
	return false
}

func (d *NotifyDispatcher) markSent(ctx context.Context, orderID, msgID string) {
	now := time.Now().UTC()
	err := d.Store.SetMerge(ctx, store.CollectionWhatsAppRequests, store.DocWhatsAppOrders, store.Document{
		orderID: map[string]any{
			"whatsapp_status": models.WhatsAppStatusSent,
			"sent_at":         now.Format(time.RFC3339Nano),
			"message_id":      msgID,
			"last_error":      "",
		},
	})
	if err != nil && d.Logger != nil {
		config.LogError(d.Logger, "workflow", "NotifyDispatcher.markSent", orderID, nil, err)
	}
}

func (d *NotifyDispatcher) markFailed(ctx context.Context, orderID string, req models.WhatsAppRequest, pubErr error) {
	err := d.Store.SetMerge(ctx, store.CollectionWhatsAppRequests, store.DocWhatsAppOrders, store.Document{
		orderID: map[string]any{
			"whatsapp_status": models.WhatsAppStatusFailed,
			"attempts":        float64(req.Attempts + 1),
			"last_error":      pubErr.Error(),
		},
	})
	if err != nil && d.Logger != nil {
		config.LogError(d.Logger, "workflow", "NotifyDispatcher.markFailed", orderID, nil, err)
	}
	if d.Logger != nil {
		config.LogError(d.Logger, "workflow", "NotifyDispatcher.markFailed", orderID, req, pubErr)
	}
}
