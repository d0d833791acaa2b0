package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"repairhub-backend/internal/model"
)

// fakeSender records sent notifications instead of hitting the network.
type fakeSender struct {
	mu         sync.Mutex
	sent       []string // endpoints
	payloads   []string
	statusCode int
}

func (f *fakeSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sub.Endpoint)
	f.payloads = append(f.payloads, string(payload))

	status := f.statusCode
	if status == 0 {
		status = http.StatusCreated
	}
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader("")),
	}, nil
}

func (f *fakeSender) endpoints() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func newWorkerTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	gormDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, gormDB.AutoMigrate(&model.Ticket{}, &model.PushSubscription{}))
	return gormDB
}

func TestWorkerPool_SendsToAllSubscriptions(t *testing.T) {
	gormDB := newWorkerTestDB(t)

	ticket := model.Ticket{ID: 7, ReceiptNumber: 501, Status: model.StatusReady, DeviceName: "ThinkPad T480"}
	require.NoError(t, gormDB.Create(&ticket).Error)
	for i := 0; i < 3; i++ {
		sub := model.PushSubscription{Endpoint: fmt.Sprintf("https://push.example/%d", i), P256DH: "key", Auth: "auth"}
		require.NoError(t, gormDB.Create(&sub).Error)
	}

	sender := &fakeSender{}
	pool := NewWorkerPool(2, gormDB, &webpush.Options{})
	pool.SetSender(sender)

	pool.sendNotificationsForTicket(context.Background(), 7)

	endpoints := sender.endpoints()
	assert.Len(t, endpoints, 3)
	assert.Contains(t, sender.payloads[0], "#501")
	assert.Contains(t, sender.payloads[0], "ThinkPad T480")
}

func TestWorkerPool_BridgeDispatchesOnlyReadyEvents(t *testing.T) {
	gormDB := newWorkerTestDB(t)
	notifier := NewNotifier()

	ticket := model.Ticket{ID: 7, ReceiptNumber: 501, Status: model.StatusReady}
	require.NoError(t, gormDB.Create(&ticket).Error)
	sub := model.PushSubscription{Endpoint: "https://push.example/session", P256DH: "key", Auth: "auth"}
	require.NoError(t, gormDB.Create(&sub).Error)

	sender := &fakeSender{}
	pool := NewWorkerPool(1, gormDB, &webpush.Options{})
	pool.SetSender(sender)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx, notifier)

	// Give the bridge a moment to subscribe before publishing.
	require.Eventually(t, func() bool { return notifier.SubscriberCount() == 1 },
		time.Second, 10*time.Millisecond)

	notifier.Publish(Event{EntityType: EntityTicket, EntityID: 7, ChangeKind: KindUpdated})
	notifier.Publish(Event{EntityType: EntityPart, EntityID: 3, ChangeKind: KindCreated})
	notifier.Publish(Event{EntityType: EntityTicket, EntityID: 7, ChangeKind: KindReady})

	// Only the ready event produces a push.
	require.Eventually(t, func() bool { return len(sender.endpoints()) == 1 },
		time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, sender.endpoints(), 1)
}

func TestWorkerPool_ExpiredSubscriptionIsDeleted(t *testing.T) {
	gormDB := newWorkerTestDB(t)

	ticket := model.Ticket{ID: 7, ReceiptNumber: 501, Status: model.StatusReady}
	require.NoError(t, gormDB.Create(&ticket).Error)
	sub := model.PushSubscription{Endpoint: "https://push.example/expired", P256DH: "key", Auth: "auth"}
	require.NoError(t, gormDB.Create(&sub).Error)

	sender := &fakeSender{statusCode: http.StatusGone}
	pool := NewWorkerPool(1, gormDB, &webpush.Options{})
	pool.SetSender(sender)

	pool.sendNotificationsForTicket(context.Background(), 7)

	var count int64
	require.NoError(t, gormDB.Model(&model.PushSubscription{}).Count(&count).Error)
	assert.Equal(t, int64(0), count, "a 410 response must remove the subscription")
}
