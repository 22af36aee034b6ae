package notification

import (
	"context"
	"fmt"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"

	"simrig-booking-backend/internal/model"
	"simrig-booking-backend/internal/store"
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

// Repository is what the workers read subscriptions and tickets from.
type Repository interface {
	store.SubscriptionStore
	GetQueueEntry(ctx context.Context, id string) (*model.QueueEntry, error)
	GetMachine(ctx context.Context, id string) (*model.Machine, error)
}

// WorkerPool sends "your turn" notifications for called queue entries.
type WorkerPool struct {
	size    int
	jobs    chan string
	repo    Repository
	webpush *webpush.Options
	sender  NotificationSender
	logger  *zap.Logger
}

// NewWorkerPool creates a new worker pool. queueSize bounds the number of
// pending jobs; Dispatch drops jobs beyond it.
func NewWorkerPool(size, queueSize int, repo Repository, webpushOptions *webpush.Options, logger *zap.Logger) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	if queueSize <= 0 {
		queueSize = size
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan string, queueSize),
		repo:    repo,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
		logger:  logger,
	}
}

// SetSender replaces the web push sender. It must be called before Start.
func (wp *WorkerPool) SetSender(sender NotificationSender) {
	wp.sender = sender
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	wp.logger.Debug("Notification worker started", zap.Int("worker", id))
	for {
		select {
		case entryID := <-wp.jobs:
			wp.sendNotificationsForEntry(ctx, entryID)
		case <-ctx.Done():
			wp.logger.Debug("Notification worker shutting down", zap.Int("worker", id))
			return
		}
	}
}

// Dispatch queues a notification for the queue entry. It never blocks the
// caller; when the pool is saturated the job is dropped.
func (wp *WorkerPool) Dispatch(queueEntryID string) {
	select {
	case wp.jobs <- queueEntryID:
	default:
		wp.logger.Warn("Notification queue full, dropping job", zap.String("queue_entry_id", queueEntryID))
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan string {
	return wp.jobs
}

func (wp *WorkerPool) sendNotificationsForEntry(ctx context.Context, entryID string) {
	log := wp.logger.With(zap.String("queue_entry_id", entryID))

	subscriptions, err := wp.repo.ListSubscriptionsForEntry(ctx, entryID)
	if err != nil {
		log.Error("Error fetching subscriptions", zap.Error(err))
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	entry, err := wp.repo.GetQueueEntry(ctx, entryID)
	if err != nil {
		log.Error("Error fetching queue entry", zap.Error(err))
		return
	}

	log.Info("Sending notifications", zap.Int("subscriptions", len(subscriptions)))
	message := []byte(wp.message(ctx, entry))
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, message)
	}
}

// message names the machine when the entry waits for a specific one and its
// name can be loaded.
func (wp *WorkerPool) message(ctx context.Context, entry *model.QueueEntry) string {
	if entry.MachineID == "" {
		return fmt.Sprintf("Ticket %d: it's your turn!", entry.QueueNumber)
	}
	label := entry.MachineID
	if m, err := wp.repo.GetMachine(ctx, entry.MachineID); err != nil {
		wp.logger.Warn("Error fetching machine", zap.String("machine_id", entry.MachineID), zap.Error(err))
	} else if m.Name != "" {
		label = m.Name
	}
	return fmt.Sprintf("Ticket %d: it's your turn on %s!", entry.QueueNumber, label)
}

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
		wp.logger.Error("Error sending notification", zap.String("endpoint", sub.Endpoint), zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		wp.logger.Info("Subscription expired, deleting", zap.String("endpoint", sub.Endpoint))
		if err := wp.repo.DeleteSubscription(ctx, sub.Endpoint); err != nil {
			wp.logger.Error("Failed to delete expired subscription", zap.String("endpoint", sub.Endpoint), zap.Error(err))
		}
	}
}
