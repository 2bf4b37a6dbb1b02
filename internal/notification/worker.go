package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/SherClockHolmes/webpush-go"

	"event-checkin-backend/internal/checkin"
	"event-checkin-backend/internal/logger"
	"event-checkin-backend/internal/metrics"
	"event-checkin-backend/internal/model"
	"event-checkin-backend/internal/store"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// Alert is one denied scan worth telling staff about.
type Alert struct {
	TagID    string `json:"tagId"`
	Location string `json:"location"`
	Reason   string `json:"reason"`
	Name     string `json:"name,omitempty"`
}

// WorkerPool fans staff alerts out to every push subscription.
type WorkerPool struct {
	size    int
	jobs    chan Alert
	store   store.Store
	webpush *webpush.Options
	sender  NotificationSender
	reasons map[string]bool
}

// NewWorkerPool creates a new worker pool that alerts on the given denial reasons.
func NewWorkerPool(size int, s store.Store, webpushOptions *webpush.Options, reasons []string) *WorkerPool {
	set := make(map[string]bool, len(reasons))
	for _, r := range reasons {
		set[strings.ToUpper(strings.TrimSpace(r))] = true
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan Alert, size*16),
		store:   s,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
		reasons: set,
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log := logger.WithFields(map[string]interface{}{"worker": id})
	log.Debug("alert worker started")
	for {
		select {
		case alert := <-wp.jobs:
			wp.sendAlert(ctx, alert)
		case <-ctx.Done():
			log.Debug("alert worker shutting down")
			return
		}
	}
}

// ScanDecided queues an alert for denied scans whose reason is configured.
// The request path never blocks on a full queue; the alert is dropped instead.
func (wp *WorkerPool) ScanDecided(tagID, location string, d checkin.Decision) {
	if d.Allowed() || !wp.reasons[string(d.Reason)] {
		return
	}
	wp.Dispatch(Alert{TagID: tagID, Location: location, Reason: string(d.Reason), Name: d.Name})
}

// Dispatch sends a job to the worker pool.
func (wp *WorkerPool) Dispatch(alert Alert) {
	select {
	case wp.jobs <- alert:
	default:
		metrics.IncAlert("dropped")
		logger.WithFields(map[string]interface{}{"tag_id": alert.TagID, "reason": alert.Reason}).
			Warn("alert queue full; dropping alert")
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan Alert {
	return wp.jobs
}

func (wp *WorkerPool) sendAlert(ctx context.Context, alert Alert) {
	subscriptions, err := wp.store.ListSubscriptions(ctx)
	if err != nil {
		logger.Log().WithError(err).Error("failed to list push subscriptions")
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	payload, err := json.Marshal(map[string]any{
		"title": "Scan denied",
		"body":  alertBody(alert),
		"alert": alert,
	})
	if err != nil {
		logger.Log().WithError(err).Error("failed to encode alert payload")
		return
	}

	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, payload)
	}
}

func alertBody(alert Alert) string {
	if alert.Name != "" {
		return fmt.Sprintf("%s at %s: %s (tag %s)", alert.Reason, alert.Location, alert.Name, alert.TagID)
	}
	return fmt.Sprintf("%s at %s (tag %s)", alert.Reason, alert.Location, alert.TagID)
}

// sendNotification sends a single web push notification.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		metrics.IncAlert("error")
		logger.WithFields(map[string]interface{}{"endpoint": sub.Endpoint}).WithError(err).Warn("error sending alert")
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == http.StatusGone {
		metrics.IncAlert("expired")
		logger.WithFields(map[string]interface{}{"endpoint": sub.Endpoint}).Info("subscription expired; deleting")
		if err := wp.store.DeleteSubscription(ctx, sub.Endpoint); err != nil {
			logger.WithFields(map[string]interface{}{"endpoint": sub.Endpoint}).WithError(err).Error("failed to delete expired subscription")
		}
		return
	}
	metrics.IncAlert("sent")
}
