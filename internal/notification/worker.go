package notification

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/rs/zerolog"

	"snacktrack-backend/internal/log"
	"snacktrack-backend/internal/metrics"
	"snacktrack-backend/internal/model"
	"snacktrack-backend/internal/store"
)

// AlertKind identifies why an alert was raised.
type AlertKind string

const (
	AlertLowFullness AlertKind = "machine_low_fullness"
	AlertLowStock    AlertKind = "product_low_stock"
)

// Alert is one restock notification. Alerts with a MachineID go to that
// machine's subscribers; others go to every subscription.
type Alert struct {
	Kind      AlertKind `json:"kind"`
	MachineID string    `json:"machineId,omitempty"`
	ProductID string    `json:"productId,omitempty"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
}

// Dispatcher accepts alerts without blocking the caller.
type Dispatcher interface {
	Dispatch(a Alert)
}

// NopDispatcher discards every alert. It is used when push is not configured.
type NopDispatcher struct{}

func (NopDispatcher) Dispatch(Alert) {}

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

// WorkerPool manages a pool of workers for sending alerts.
type WorkerPool struct {
	size    int
	jobs    chan Alert
	store   store.SubscriptionStore
	webpush *webpush.Options
	sender  NotificationSender
	logger  zerolog.Logger
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size, queueSize int, subs store.SubscriptionStore, webpushOptions *webpush.Options) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan Alert, queueSize),
		store:   subs,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
		logger:  log.WithComponent("notification"),
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	wp.logger.Debug().Int("worker", id).Msg("worker started")
	for {
		select {
		case alert := <-wp.jobs:
			wp.sendAlert(ctx, alert)
		case <-ctx.Done():
			wp.logger.Debug().Int("worker", id).Msg("worker shutting down")
			return
		}
	}
}

// Dispatch queues an alert. When the queue is full the alert is dropped.
func (wp *WorkerPool) Dispatch(a Alert) {
	select {
	case wp.jobs <- a:
	default:
		metrics.AlertsDropped.Inc()
		wp.logger.Warn().Str("kind", string(a.Kind)).Str("machine_id", a.MachineID).Msg("alert queue full, dropping alert")
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan Alert {
	return wp.jobs
}

func (wp *WorkerPool) recipients(ctx context.Context, a Alert) ([]model.PushSubscription, error) {
	if a.MachineID != "" {
		return wp.store.SubscriptionsForMachine(ctx, a.MachineID)
	}
	return wp.store.ListSubscriptions(ctx)
}

func (wp *WorkerPool) sendAlert(ctx context.Context, a Alert) {
	subscriptions, err := wp.recipients(ctx, a)
	if err != nil {
		wp.logger.Error().Err(err).Str("kind", string(a.Kind)).Msg("failed to fetch subscriptions")
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	payload, err := json.Marshal(a)
	if err != nil {
		wp.logger.Error().Err(err).Msg("failed to encode alert")
		return
	}

	wp.logger.Info().Str("kind", string(a.Kind)).Int("recipients", len(subscriptions)).Msg("sending alert")
	for _, sub := range subscriptions {
		if wp.sendNotification(ctx, sub, payload) {
			metrics.AlertsSent.WithLabelValues(string(a.Kind)).Inc()
		}
	}
}

// sendNotification sends a single web push notification and reports
// whether the push service accepted it.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) bool {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		wp.logger.Error().Err(err).Str("endpoint", sub.Endpoint).Msg("failed to send notification")
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		wp.logger.Info().Str("endpoint", sub.Endpoint).Msg("subscription expired, deleting")
		if err := wp.store.DeleteSubscription(ctx, sub.Endpoint); err != nil {
			wp.logger.Error().Err(err).Str("endpoint", sub.Endpoint).Msg("failed to delete expired subscription")
		}
		return false
	}
	return resp.StatusCode < 300
}
