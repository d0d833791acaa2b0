package syncagent

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"repairhub-backend/internal/model"
)

// Agent maintains a local read cache of tickets that approximates hub
// state under intermittent connectivity. The UI reads only this cache;
// all mutations go straight to the hub and are refused while
// disconnected.
type Agent struct {
	client   *HubClient
	interval time.Duration

	mu        sync.Mutex
	tickets   map[int64]model.Ticket
	lastSync  time.Time
	connected bool

	// syncing/pendingSync coalesce overlapping SyncOnce calls: a call
	// arriving while a pull is in flight marks a re-run instead of
	// racing the cache.
	syncing     bool
	pendingSync bool

	// suspended defers syncs while a local create-ticket draft is in
	// flight, so a pull cannot clobber the optimistic UI state. epoch is
	// bumped by every SuspendSync; a pull whose fetch started in an
	// earlier epoch discards its snapshot, since it may predate the
	// draft the suspension protected.
	suspended    int
	deferredSync bool
	epoch        int64
}

// NewAgent creates a sync agent over the given hub client. interval is
// the periodic pull cadence used by Run.
func NewAgent(client *HubClient, interval time.Duration) *Agent {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Agent{
		client:   client,
		interval: interval,
		tickets:  make(map[int64]model.Ticket),
	}
}

// Client exposes the underlying hub client, e.g. for lock sessions.
func (a *Agent) Client() *HubClient {
	return a.client
}

// Connected reports whether the last hub contact succeeded.
func (a *Agent) Connected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connected
}

// LastSync reports when the cache was last refreshed from the hub.
func (a *Agent) LastSync() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastSync
}

// Tickets returns a snapshot of the cached tickets ordered by id.
func (a *Agent) Tickets() []model.Ticket {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]model.Ticket, 0, len(a.tickets))
	for _, t := range a.tickets {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Ticket returns a single cached ticket.
func (a *Agent) Ticket(id int64) (model.Ticket, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	t, ok := a.tickets[id]
	return t, ok
}

// Run pulls periodically until ctx is cancelled.
func (a *Agent) Run(ctx context.Context) {
	log.Println("Sync agent starting...")
	if err := a.SyncOnce(ctx); err != nil {
		log.Printf("Initial sync failed: %v", err)
	}

	timer := time.NewTimer(a.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Sync agent shutting down.")
			return
		case <-timer.C:
			if err := a.SyncOnce(ctx); err != nil {
				log.Printf("Sync failed: %v", err)
			}
			timer.Reset(a.interval)
		}
	}
}

// SyncOnce pulls the ticket set from the hub and replaces the local
// cache. While suspended the pull is deferred (run exactly once after
// resume), and a call overlapping an in-flight pull coalesces into one
// re-run. On failure the existing cache is left untouched as the
// last-known-good snapshot.
func (a *Agent) SyncOnce(ctx context.Context) error {
	a.mu.Lock()
	if a.suspended > 0 {
		a.deferredSync = true
		a.mu.Unlock()
		return nil
	}
	if a.syncing {
		a.pendingSync = true
		a.mu.Unlock()
		return nil
	}
	a.syncing = true
	a.mu.Unlock()

	for {
		err := a.pull(ctx)

		a.mu.Lock()
		if err != nil {
			a.syncing = false
			a.pendingSync = false
			a.mu.Unlock()
			return err
		}
		if a.suspended > 0 {
			// Suspended while pulling: hand the remaining work to
			// ResumeSync instead of leaving a stale pending flag behind.
			if a.pendingSync {
				a.pendingSync = false
				a.deferredSync = true
			}
			a.syncing = false
			a.mu.Unlock()
			return nil
		}
		if a.pendingSync {
			a.pendingSync = false
			a.mu.Unlock()
			continue
		}
		a.syncing = false
		a.mu.Unlock()
		return nil
	}
}

// pull performs one full fetch-and-replace. Refetching the whole set
// over the shop LAN is cheaper and simpler than reconciling deltas and
// deletions (the hub's since cursor exists for delta-capable surfaces).
func (a *Agent) pull(ctx context.Context) error {
	a.mu.Lock()
	started := a.epoch
	a.mu.Unlock()

	tickets, err := a.client.ListTickets(ctx, nil)
	if err != nil {
		a.mu.Lock()
		a.connected = false
		a.mu.Unlock()
		return fmt.Errorf("ticket pull failed: %w", err)
	}

	fresh := make(map[int64]model.Ticket, len(tickets))
	for _, t := range tickets {
		fresh[t.ID] = t
	}

	a.mu.Lock()
	a.connected = true
	if a.epoch != started {
		// A suspension began after this fetch started, so the snapshot
		// may be missing a record the suspension was protecting. Discard
		// it and refetch.
		a.pendingSync = true
		a.mu.Unlock()
		return nil
	}
	a.tickets = fresh
	a.lastSync = time.Now()
	a.mu.Unlock()
	return nil
}

// SuspendSync defers pulls while a local create-ticket draft is being
// built. Calls nest; each must be paired with ResumeSync.
func (a *Agent) SuspendSync() {
	a.mu.Lock()
	a.suspended++
	a.epoch++
	a.mu.Unlock()
}

// ResumeSync ends a suspension. When the last suspension ends and a
// sync was deferred in the meantime, exactly one sync runs now.
func (a *Agent) ResumeSync() {
	a.mu.Lock()
	if a.suspended > 0 {
		a.suspended--
	}
	runDeferred := a.suspended == 0 && a.deferredSync
	if runDeferred {
		a.deferredSync = false
	}
	a.mu.Unlock()

	if runDeferred {
		if err := a.SyncOnce(context.Background()); err != nil {
			log.Printf("Deferred sync failed: %v", err)
		}
	}
}

// CreateTicket builds a new ticket on the hub. Sync is suspended for
// the duration so a pull cannot overwrite the optimistic draft.
func (a *Agent) CreateTicket(ctx context.Context, t *model.Ticket) (*model.Ticket, error) {
	if err := a.ensureConnected(); err != nil {
		return nil, err
	}

	a.SuspendSync()
	defer a.ResumeSync()

	created, err := a.client.CreateTicket(ctx, t)
	if err != nil {
		return nil, err
	}
	a.cachePut(*created)
	return created, nil
}

// UpdateTicket saves edits on the hub and refreshes the cached copy.
func (a *Agent) UpdateTicket(ctx context.Context, t *model.Ticket) (*model.Ticket, error) {
	if err := a.ensureConnected(); err != nil {
		return nil, err
	}
	updated, err := a.client.UpdateTicket(ctx, t)
	if err != nil {
		return nil, err
	}
	a.cachePut(*updated)
	return updated, nil
}

// DeleteTicket removes the ticket on the hub and from the cache.
func (a *Agent) DeleteTicket(ctx context.Context, id int64) error {
	if err := a.ensureConnected(); err != nil {
		return err
	}
	if err := a.client.DeleteTicket(ctx, id); err != nil {
		return err
	}
	a.mu.Lock()
	delete(a.tickets, id)
	a.mu.Unlock()
	return nil
}

// AttachPart sells a warehouse part on the ticket via the hub.
func (a *Agent) AttachPart(ctx context.Context, ticketID, partID int64, price *float64) (*model.Ticket, error) {
	if err := a.ensureConnected(); err != nil {
		return nil, err
	}
	ticket, err := a.client.AttachPart(ctx, ticketID, partID, price)
	if err != nil {
		return nil, err
	}
	a.cachePut(*ticket)
	return ticket, nil
}

// DetachPart removes the part from the ticket via the hub.
func (a *Agent) DetachPart(ctx context.Context, ticketID, partID int64) (*model.Ticket, error) {
	if err := a.ensureConnected(); err != nil {
		return nil, err
	}
	ticket, err := a.client.DetachPart(ctx, ticketID, partID)
	if err != nil {
		return nil, err
	}
	a.cachePut(*ticket)
	return ticket, nil
}

func (a *Agent) ensureConnected() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return ErrNotConnected
	}
	return nil
}

func (a *Agent) cachePut(t model.Ticket) {
	a.mu.Lock()
	a.tickets[t.ID] = t
	a.mu.Unlock()
}
