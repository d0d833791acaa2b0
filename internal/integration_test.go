package internal

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"repairhub-backend/config"
	"repairhub-backend/internal/api"
	"repairhub-backend/internal/db"
	"repairhub-backend/internal/hub"
	"repairhub-backend/internal/model"
	"repairhub-backend/internal/notify"
	"repairhub-backend/internal/store"
	"repairhub-backend/internal/syncagent"
)

func setupHub(t *testing.T) (*httptest.Server, store.Store, *notify.Notifier) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	gormDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.Migrate(gormDB))

	appStore := store.NewGormStore(gormDB)
	notifier := notify.NewNotifier()
	coord := hub.NewCoordinator(appStore, notifier, 5*time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	cfg := &config.ServerConfig{
		RateLimitPerSec: 1000,
		RateLimitBurst:  1000,
		// Short backstop TTL: the tests below tolerate the asynchronous
		// event-driven invalidation by polling.
		CacheTTLSeconds: 1,
	}
	router := api.NewRouter(ctx, cfg, coord, appStore, notifier, nil)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, appStore, notifier
}

// syncSees retries a full pull until the agent's cache satisfies the
// condition, absorbing the asynchronous response-cache invalidation.
func syncSees(t *testing.T, agent *syncagent.Agent, cond func() bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		if err := agent.SyncOnce(context.Background()); err != nil {
			return false
		}
		return cond()
	}, 5*time.Second, 50*time.Millisecond)
}

// TestMultiDeviceLifecycle walks two devices through a full working day:
// simultaneous client intake, contested editing, a part sale, the ready
// hand-off, and a deletion — verifying that both devices converge on the
// same hub state at every step.
func TestMultiDeviceLifecycle(t *testing.T) {
	srv, appStore, notifier := setupHub(t)
	ctx := context.Background()

	android := syncagent.NewAgent(syncagent.NewHubClient(srv.URL, "Android", 5*time.Second), time.Minute)
	desktop := syncagent.NewAgent(syncagent.NewHubClient(srv.URL, "Desktop", 5*time.Second), time.Minute)

	var androidTicket, desktopTicket *model.Ticket

	t.Run("Initial Sync", func(t *testing.T) {
		require.NoError(t, android.SyncOnce(ctx))
		require.NoError(t, desktop.SyncOnce(ctx))
		assert.True(t, android.Connected())
		assert.True(t, desktop.Connected())
		assert.Empty(t, android.Tickets())
	})

	t.Run("Concurrent Intake Gets Distinct Receipts", func(t *testing.T) {
		var wg sync.WaitGroup
		var errA, errD error
		wg.Add(2)
		go func() {
			defer wg.Done()
			androidTicket, errA = android.CreateTicket(ctx, &model.Ticket{ClientName: "Petro", CostLabor: 100})
		}()
		go func() {
			defer wg.Done()
			desktopTicket, errD = desktop.CreateTicket(ctx, &model.Ticket{ClientName: "Olha", CostLabor: 150})
		}()
		wg.Wait()
		require.NoError(t, errA)
		require.NoError(t, errD)

		assert.ElementsMatch(t, []int64{1, 2},
			[]int64{androidTicket.ReceiptNumber, desktopTicket.ReceiptNumber},
			"two devices creating at once must get distinct consecutive numbers")

		// Each device eventually sees both intakes.
		syncSees(t, android, func() bool { return len(android.Tickets()) == 2 })
		syncSees(t, desktop, func() bool { return len(desktop.Tickets()) == 2 })
	})

	t.Run("Advisory Lock Conflict", func(t *testing.T) {
		editing, err := syncagent.OpenLockSession(ctx, android.Client(), androidTicket.ID)
		require.NoError(t, err)

		// Desktop opens the same ticket: the session succeeds, but the
		// holder is reported so the UI can warn.
		contested, err := syncagent.OpenLockSession(ctx, desktop.Client(), androidTicket.ID)
		require.NoError(t, err)
		holder, held := contested.HeldElsewhere()
		assert.True(t, held)
		assert.Equal(t, "Android", holder)

		// Android finishes editing; desktop's next heartbeat takes over.
		require.NoError(t, editing.Close())
		require.NoError(t, contested.Refresh(ctx))
		_, held = contested.HeldElsewhere()
		assert.False(t, held)

		state, err := desktop.Client().GetLock(ctx, androidTicket.ID)
		require.NoError(t, err)
		assert.Equal(t, "Desktop", state.HeldBy())
		require.NoError(t, contested.Close())
	})

	t.Run("Part Sale Keeps Totals Consistent", func(t *testing.T) {
		part := &model.Part{Name: "battery", Cost: 120, Price: 200, Available: true}
		require.NoError(t, appStore.CreatePart(ctx, part))

		sold, err := android.AttachPart(ctx, androidTicket.ID, part.ID, nil)
		require.NoError(t, err)
		assert.Equal(t, androidTicket.CostTotal+200, sold.CostTotal)

		syncSees(t, desktop, func() bool {
			cached, ok := desktop.Ticket(androidTicket.ID)
			return ok && cached.CostTotal == sold.CostTotal
		})

		// Selling the same physical part on the other ticket is refused.
		_, err = desktop.AttachPart(ctx, desktopTicket.ID, part.ID, nil)
		require.Error(t, err)

		// Taking the part back restores the totals and the warehouse.
		restored, err := android.DetachPart(ctx, androidTicket.ID, part.ID)
		require.NoError(t, err)
		assert.Equal(t, androidTicket.CostTotal, restored.CostTotal)

		parts, err := appStore.ListParts(ctx, true)
		require.NoError(t, err)
		require.Len(t, parts, 1)
		assert.True(t, parts[0].Available)
	})

	t.Run("Ready Transition Streams Event", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/events")
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		require.Equal(t, http.StatusOK, resp.StatusCode)

		// One subscriber is the cache invalidator; wait for ours too.
		require.Eventually(t, func() bool { return notifier.SubscriberCount() >= 2 },
			2*time.Second, 10*time.Millisecond)

		androidTicket.Status = model.StatusReady
		_, err = android.UpdateTicket(ctx, androidTicket)
		require.NoError(t, err)

		assert.True(t, sseContains(resp.Body, `"changeKind":"ready"`, 3*time.Second),
			"the stream must carry the ready notification")
	})

	t.Run("Deletion Propagates", func(t *testing.T) {
		require.NoError(t, desktop.DeleteTicket(ctx, desktopTicket.ID))

		syncSees(t, android, func() bool {
			_, ok := android.Ticket(desktopTicket.ID)
			return !ok && len(android.Tickets()) == 1
		})

		state, err := android.Client().GetLock(ctx, desktopTicket.ID)
		require.NoError(t, err)
		assert.False(t, state.Locked, "deleting a ticket drops its advisory lock")
	})
}

// sseContains reads the event stream until a line containing substr
// arrives or the timeout passes.
func sseContains(body io.Reader, substr string, timeout time.Duration) bool {
	found := make(chan bool, 1)
	go func() {
		reader := bufio.NewReader(body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				found <- false
				return
			}
			if strings.Contains(line, substr) {
				found <- true
				return
			}
		}
	}()
	select {
	case ok := <-found:
		return ok
	case <-time.After(timeout):
		return false
	}
}
