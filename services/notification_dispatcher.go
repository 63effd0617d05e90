package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"spottedAPI/internal/notification"
)

// Notifier is the fire-and-forget notification boundary the engine calls
// after awarding achievements or creating invites. Delivery failure must never
// roll back the write that triggered it, so Dispatch has no error return.
type Notifier interface {
	Dispatch(ctx context.Context, push notification.Push)
}

type PushNotificationProvider interface {
	SendPush(ctx context.Context, tokens []notification.DeviceToken, title, body string, data map[string]any) error
}

// NotificationDispatcher queues pushes onto a bounded worker pool. Device
// tokens are resolved at send time so a user registering a new device between
// enqueue and delivery still gets the push.
type NotificationDispatcher struct {
	db           *pgxpool.Pool
	pushProvider PushNotificationProvider
	workers      int
	jobQueue     chan notification.Push
	stopChan     chan struct{}
	wg           sync.WaitGroup
}

func NewNotificationDispatcher(db *pgxpool.Pool) *NotificationDispatcher {
	dispatcher := &NotificationDispatcher{
		db:       db,
		workers:  5, // 5 workers is plenty for now
		jobQueue: make(chan notification.Push, 100),
		stopChan: make(chan struct{}),
	}

	dispatcher.startWorkers()

	return dispatcher
}

// SetPushProvider injects the real FCM provider from main.go. Without a
// provider the dispatcher logs and drops, which keeps tests and local dev
// from needing Firebase credentials.
func (d *NotificationDispatcher) SetPushProvider(provider PushNotificationProvider) {
	d.pushProvider = provider
}

func (d *NotificationDispatcher) startWorkers() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
}

func (d *NotificationDispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case push := <-d.jobQueue:
			d.processPush(push)
		case <-d.stopChan:
			return
		}
	}
}

func (d *NotificationDispatcher) processPush(push notification.Push) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if d.pushProvider == nil {
		log.Printf("Skipping push to user %s: no provider configured", push.UserID)
		return
	}

	tokens, err := d.deviceTokens(ctx, push.UserID)
	if err != nil {
		log.Printf("Push failed for user %s: %v", push.UserID, err)
		return
	}
	if len(tokens) == 0 {
		return
	}

	data := push.Data
	if data == nil {
		data = map[string]any{}
	}
	data["category"] = string(push.Category)

	if err := d.pushProvider.SendPush(ctx, tokens, push.Title, push.Body, data); err != nil {
		// Dispatch errors are reported here and go no further, the write that
		// triggered this push has already committed.
		log.Printf("Push failed for user %s: %v", push.UserID, err)
	}
}

func (d *NotificationDispatcher) deviceTokens(ctx context.Context, userID uuid.UUID) ([]notification.DeviceToken, error) {
	rows, err := d.db.Query(ctx, `
		SELECT token, platform, last_used
		FROM device_tokens
		WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query device tokens: %w", err)
	}
	defer rows.Close()

	var tokens []notification.DeviceToken
	for rows.Next() {
		var t notification.DeviceToken
		if err := rows.Scan(&t.Token, &t.Platform, &t.LastUsed); err != nil {
			return nil, fmt.Errorf("failed to scan device token: %w", err)
		}
		tokens = append(tokens, t)
	}

	return tokens, rows.Err()
}

// RegisterDevice upserts a device token for the user.
func (d *NotificationDispatcher) RegisterDevice(ctx context.Context, userID uuid.UUID, token, platform string) error {
	_, err := d.db.Exec(ctx, `
		INSERT INTO device_tokens (user_id, token, platform, last_used)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id, token) DO UPDATE SET platform = $3, last_used = NOW()
	`, userID, token, platform)
	if err != nil {
		return fmt.Errorf("failed to register device: %w", err)
	}

	return nil
}

// Dispatch queues the push. Blocks briefly when the queue is full, then drops.
func (d *NotificationDispatcher) Dispatch(ctx context.Context, push notification.Push) {
	select {
	case d.jobQueue <- push:
	case <-time.After(5 * time.Second):
		log.Printf("Failed to queue push for user %s: queue full", push.UserID)
	}
}

// Stop drains the workers gracefully.
func (d *NotificationDispatcher) Stop() {
	log.Println("Stopping notification dispatcher...")
	close(d.stopChan)
	d.wg.Wait()
	log.Println("Notification dispatcher stopped")
}

// MockPushProvider logs instead of delivering. Used in tests and local dev.
type MockPushProvider struct{}

func (m *MockPushProvider) SendPush(ctx context.Context, tokens []notification.DeviceToken, title, body string, data map[string]any) error {
	log.Printf("MOCK PUSH: Sending to %d devices: %s - %s", len(tokens), title, body)
	return nil
}
