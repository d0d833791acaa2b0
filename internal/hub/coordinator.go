package hub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"repairhub-backend/internal/model"
	"repairhub-backend/internal/notify"
	"repairhub-backend/internal/store"
)

// Coordinator is the single authoritative point of ticket mutation and
// lock arbitration. It owns the lock table and serializes receipt number
// allocation; every successful mutation publishes a change event.
type Coordinator struct {
	store    store.Store
	locks    *LockTable
	notifier *notify.Notifier

	// receiptMu linearizes allocations so two devices pressing "new
	// ticket" at the same instant get distinct numbers even on database
	// drivers with weak transaction isolation.
	receiptMu sync.Mutex

	// writeMu serializes read-modify-write ticket mutations. The store
	// transactions load the ticket without a row lock, so on a
	// read-committed backend a concurrent update and attach could both
	// read the same row and the later Save would win with stale totals.
	writeMu sync.Mutex
}

// NewCoordinator creates a coordinator over the given store, publishing
// change events to notifier. Locks go stale after lockStaleAfter.
func NewCoordinator(s store.Store, notifier *notify.Notifier, lockStaleAfter time.Duration) *Coordinator {
	return &Coordinator{
		store:    s,
		locks:    NewLockTable(lockStaleAfter),
		notifier: notifier,
	}
}

// AllocateReceiptNumber returns the next receipt number. The increment
// is durable before the number is handed out; a failed persistence write
// consumes nothing.
func (c *Coordinator) AllocateReceiptNumber(ctx context.Context) (int64, error) {
	c.receiptMu.Lock()
	defer c.receiptMu.Unlock()
	return c.store.NextReceiptNumber(ctx)
}

// CreateTicket persists a new ticket, allocating its receipt number
// unless the client already holds one from next-receipt-number.
func (c *Coordinator) CreateTicket(ctx context.Context, t *model.Ticket) (*model.Ticket, error) {
	if t.Status == "" {
		t.Status = model.StatusQueued
	}
	if !t.Status.Valid() {
		return nil, fmt.Errorf("invalid ticket status %q", t.Status)
	}
	if t.ReceiptNumber == 0 {
		number, err := c.AllocateReceiptNumber(ctx)
		if err != nil {
			return nil, err
		}
		t.ReceiptNumber = number
	}

	if err := c.store.CreateTicket(ctx, t); err != nil {
		return nil, err
	}
	c.notifier.Publish(notify.Event{EntityType: notify.EntityTicket, EntityID: t.ID, ChangeKind: notify.KindCreated})
	return t, nil
}

// UpdateTicket writes the ticket regardless of lock state; locks are
// advisory and a non-holder's save is flagged to humans, not rejected.
func (c *Coordinator) UpdateTicket(ctx context.Context, t *model.Ticket) (*model.Ticket, error) {
	if t.Status != "" && !t.Status.Valid() {
		return nil, fmt.Errorf("invalid ticket status %q", t.Status)
	}

	c.writeMu.Lock()
	prior, err := c.store.GetTicket(ctx, t.ID)
	if err != nil {
		c.writeMu.Unlock()
		return nil, err
	}

	updated, err := c.store.UpdateTicket(ctx, t)
	c.writeMu.Unlock()
	if err != nil {
		return nil, err
	}

	c.notifier.Publish(notify.Event{EntityType: notify.EntityTicket, EntityID: updated.ID, ChangeKind: notify.KindUpdated})
	if updated.Status == model.StatusReady && prior.Status != model.StatusReady {
		c.notifier.Publish(notify.Event{EntityType: notify.EntityTicket, EntityID: updated.ID, ChangeKind: notify.KindReady})
	}
	return updated, nil
}

// DeleteTicket removes the ticket, restores its parts to the warehouse
// and drops any advisory lock left on it.
func (c *Coordinator) DeleteTicket(ctx context.Context, id int64) error {
	c.writeMu.Lock()
	err := c.store.DeleteTicket(ctx, id)
	c.writeMu.Unlock()
	if err != nil {
		return err
	}
	c.locks.Drop(id)

	c.notifier.Publish(notify.Event{EntityType: notify.EntityTicket, EntityID: id, ChangeKind: notify.KindDeleted})
	c.notifier.Publish(notify.Event{EntityType: notify.EntityPart, EntityID: 0, ChangeKind: notify.KindUpdated})
	return nil
}

// AttachPart sells a warehouse part instance on the ticket.
func (c *Coordinator) AttachPart(ctx context.Context, ticketID, partID int64, price *float64) (*model.Ticket, error) {
	c.writeMu.Lock()
	ticket, err := c.store.AttachPart(ctx, ticketID, partID, price)
	c.writeMu.Unlock()
	if err != nil {
		return nil, err
	}
	c.publishPartChange(ticketID, partID)
	return ticket, nil
}

// DetachPart takes the part back off the ticket and restores its
// warehouse availability.
func (c *Coordinator) DetachPart(ctx context.Context, ticketID, partID int64) (*model.Ticket, error) {
	c.writeMu.Lock()
	ticket, err := c.store.DetachPart(ctx, ticketID, partID)
	c.writeMu.Unlock()
	if err != nil {
		return nil, err
	}
	c.publishPartChange(ticketID, partID)
	return ticket, nil
}

// CreatePart adds a new part instance to the warehouse.
func (c *Coordinator) CreatePart(ctx context.Context, p *model.Part) (*model.Part, error) {
	if err := c.store.CreatePart(ctx, p); err != nil {
		return nil, err
	}
	c.notifier.Publish(notify.Event{EntityType: notify.EntityPart, EntityID: p.ID, ChangeKind: notify.KindCreated})
	return p, nil
}

// GetLock reports the ticket's advisory lock state.
func (c *Coordinator) GetLock(ticketID int64) LockStatus {
	return c.locks.Get(ticketID)
}

// AcquireLock takes or refreshes the advisory lock for device. When the
// lock is held elsewhere the holder's info is returned; that is a normal
// result, never an error.
func (c *Coordinator) AcquireLock(ticketID int64, device string) LockStatus {
	return c.locks.Acquire(ticketID, device)
}

// ReleaseLock drops the lock if device holds it; otherwise a no-op.
func (c *Coordinator) ReleaseLock(ticketID int64, device string) {
	c.locks.Release(ticketID, device)
}

func (c *Coordinator) publishPartChange(ticketID, partID int64) {
	c.notifier.Publish(notify.Event{EntityType: notify.EntityTicket, EntityID: ticketID, ChangeKind: notify.KindUpdated})
	c.notifier.Publish(notify.Event{EntityType: notify.EntityPart, EntityID: partID, ChangeKind: notify.KindUpdated})
}
