package hub

import (
	"sync"
	"time"
)

// LockStatus describes the advisory lock state of a single ticket as
// seen by one request. Locks are informational: holding one never
// prevents another device from writing, it only drives UI warnings.
type LockStatus struct {
	Locked     bool
	Device     string
	AcquiredAt time.Time
}

type lockEntry struct {
	device     string
	acquiredAt time.Time
}

// LockTable is the in-memory advisory lock map, keyed by ticket id.
// It is owned exclusively by the Coordinator; all access is serialized
// by a single mutex. Entries older than staleAfter are treated as
// abandoned and purged lazily on the next access, so a crashed client
// cannot wedge a ticket.
type LockTable struct {
	mu         sync.Mutex
	locks      map[int64]lockEntry
	staleAfter time.Duration
	now        func() time.Time
}

// NewLockTable creates a lock table whose entries expire staleAfter
// after their last refresh.
func NewLockTable(staleAfter time.Duration) *LockTable {
	return &LockTable{
		locks:      make(map[int64]lockEntry),
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// Acquire takes the lock for device if it is free (or stale, or already
// held by the same device, which refreshes acquiredAt as a heartbeat).
// If another device holds it, the existing lock is returned untouched;
// the holder is never evicted by a competing acquire.
func (t *LockTable) Acquire(ticketID int64, device string) LockStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	entry, ok := t.locks[ticketID]
	if ok && entry.device != device && !t.stale(entry, now) {
		return LockStatus{Locked: true, Device: entry.device, AcquiredAt: entry.acquiredAt}
	}

	t.locks[ticketID] = lockEntry{device: device, acquiredAt: now}
	return LockStatus{Locked: true, Device: device, AcquiredAt: now}
}

// Get reports the current lock state, purging a stale entry first.
func (t *LockTable) Get(ticketID int64) LockStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.locks[ticketID]
	if !ok {
		return LockStatus{}
	}
	if t.stale(entry, t.now()) {
		delete(t.locks, ticketID)
		return LockStatus{}
	}
	return LockStatus{Locked: true, Device: entry.device, AcquiredAt: entry.acquiredAt}
}

// Release removes the lock only when device is the current holder.
// Releasing a lock held by someone else (or no lock at all) is a silent
// no-op so client teardown stays idempotent.
func (t *LockTable) Release(ticketID int64, device string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if entry, ok := t.locks[ticketID]; ok && entry.device == device {
		delete(t.locks, ticketID)
	}
}

// Drop removes the lock regardless of holder. Used when the locked
// record itself is deleted.
func (t *LockTable) Drop(ticketID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.locks, ticketID)
}

func (t *LockTable) stale(entry lockEntry, now time.Time) bool {
	return t.staleAfter > 0 && now.Sub(entry.acquiredAt) > t.staleAfter
}
