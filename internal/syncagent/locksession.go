package syncagent

import (
	"context"
	"sync"
	"time"
)

// releaseTimeout bounds the release call made from Close, which often
// runs during teardown without a caller-supplied context.
const releaseTimeout = 5 * time.Second

// LockSession binds an advisory ticket lock to a UI edit session. Open
// it when the edit view appears and Close it on every exit path; Close
// releases at most once no matter how often it is called.
type LockSession struct {
	client   *HubClient
	ticketID int64

	mu         sync.Mutex
	heldBy     string
	acquiredAt time.Time

	releaseOnce sync.Once
	releaseErr  error
}

// OpenLockSession checks the ticket's current lock state and then
// acquires the lock for this device. When another device already holds
// it, the session still opens (the lock is advisory, editing stays
// permitted) and HeldElsewhere reports the holder so the UI can show a
// warning banner.
func OpenLockSession(ctx context.Context, client *HubClient, ticketID int64) (*LockSession, error) {
	s := &LockSession{client: client, ticketID: ticketID}

	current, err := client.GetLock(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	s.noteHolder(current)

	acquired, err := client.AcquireLock(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	s.noteHolder(acquired)
	if acquired.HeldBy() == client.Device() && acquired.AcquiredAt != nil {
		s.acquiredAt = *acquired.AcquiredAt
	}
	return s, nil
}

// HeldElsewhere reports the device that held the lock when this session
// opened (or last refreshed), if it was not us.
func (s *LockSession) HeldElsewhere() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heldBy, s.heldBy != ""
}

// AcquiredAt reports when the hub recorded our acquisition. Zero when
// the lock is held elsewhere.
func (s *LockSession) AcquiredAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acquiredAt
}

// Refresh re-acquires the lock as a heartbeat so a long edit session is
// not purged as stale.
func (s *LockSession) Refresh(ctx context.Context) error {
	state, err := s.client.AcquireLock(ctx, s.ticketID)
	if err != nil {
		return err
	}
	s.noteHolder(state)
	s.mu.Lock()
	if state.AcquiredAt != nil && s.heldBy == "" {
		s.acquiredAt = *state.AcquiredAt
	}
	s.mu.Unlock()
	return nil
}

// Close releases the lock exactly once. Safe to call from defer on
// every exit path; subsequent calls return the first result.
func (s *LockSession) Close() error {
	s.releaseOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()
		s.releaseErr = s.client.ReleaseLock(ctx, s.ticketID)
	})
	return s.releaseErr
}

func (s *LockSession) noteHolder(state LockState) {
	holder := state.HeldBy()
	s.mu.Lock()
	if holder != "" && holder != s.client.Device() {
		s.heldBy = holder
	} else if holder == s.client.Device() {
		s.heldBy = ""
	}
	s.mu.Unlock()
}
