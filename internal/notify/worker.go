package notify

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"repairhub-backend/internal/model"
)

// PushSender defines the interface for sending a web push notification.
type PushSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of PushSender using the webpush
// library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// WorkerPool bridges ready-ticket change events to web push
// notifications for subscribed browser sessions. It subscribes to the
// notifier and fans deliveries out over a fixed pool of workers.
type WorkerPool struct {
	size    int
	jobs    chan int64
	db      *gorm.DB
	webpush *webpush.Options
	sender  PushSender
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan int64, size), // Buffered channel
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{}, // Use the real sender by default
	}
}

// SetSender replaces the push sender. Tests use this to avoid network.
func (wp *WorkerPool) SetSender(s PushSender) {
	wp.sender = s
}

// Start launches the worker goroutines and the notifier bridge.
func (wp *WorkerPool) Start(ctx context.Context, notifier *Notifier) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}

	events, cancel := notifier.Subscribe(64)
	go func() {
		defer cancel()
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				if ev.EntityType == EntityTicket && ev.ChangeKind == KindReady {
					wp.Dispatch(ev.EntityID)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// worker is the actual worker goroutine.
func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("Push worker %d started", id)
	for {
		select {
		case ticketID := <-wp.jobs:
			log.Printf("Push worker %d processing ticket %d", id, ticketID)
			wp.sendNotificationsForTicket(ctx, ticketID)
		case <-ctx.Done():
			log.Printf("Push worker %d shutting down", id)
			return
		}
	}
}

// Dispatch sends a job to the worker pool.
func (wp *WorkerPool) Dispatch(ticketID int64) {
	wp.jobs <- ticketID
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan int64 {
	return wp.jobs
}

// sendNotificationsForTicket fetches subscriptions and sends a
// ready-for-pickup notice for the given ticket.
func (wp *WorkerPool) sendNotificationsForTicket(ctx context.Context, ticketID int64) {
	var subscriptions []model.PushSubscription
	if err := wp.db.WithContext(ctx).Find(&subscriptions).Error; err != nil {
		log.Printf("Error fetching push subscriptions: %v", err)
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	ticketLabel := fmt.Sprintf("#%d", ticketID)
	var ticket model.Ticket
	if err := wp.db.WithContext(ctx).
		Select("receipt_number", "device_name").
		First(&ticket, ticketID).Error; err != nil {
		log.Printf("Error fetching ticket %d: %v", ticketID, err)
	} else {
		ticketLabel = fmt.Sprintf("#%d (%s)", ticket.ReceiptNumber, ticket.DeviceName)
	}

	log.Printf("Sending %d notifications for ticket %d", len(subscriptions), ticketID)
	message := fmt.Sprintf("Ticket %s is ready for pickup", ticketLabel)
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, []byte(message))
	}
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
		log.Printf("Error sending notification to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == http.StatusGone {
		log.Printf("Subscription for endpoint %s is expired. Deleting.", sub.Endpoint)
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			log.Printf("Failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}
