package usecase

import (
	"context"
	"fmt"
	"sync"
)

// SessionLocker serializes turns within one session so the history a route
// reads is never interleaved with a concurrent turn's append. Different
// sessions proceed in parallel.
type SessionLocker struct {
	mu    sync.Mutex
	locks map[string]*sessionSlot
}

type sessionSlot struct {
	ch       chan struct{} // capacity 1; holding the token holds the lock
	refCount int
}

// NewSessionLocker creates a new session locker.
func NewSessionLocker() *SessionLocker {
	return &SessionLocker{locks: make(map[string]*sessionSlot)}
}

// Lock blocks until the session's lock is held or ctx is done. The returned
// unlock function must be called exactly once.
func (sl *SessionLocker) Lock(ctx context.Context, sessionID string) (unlock func(), err error) {
	sl.mu.Lock()
	slot, ok := sl.locks[sessionID]
	if !ok {
		slot = &sessionSlot{ch: make(chan struct{}, 1)}
		sl.locks[sessionID] = slot
	}
	slot.refCount++
	sl.mu.Unlock()

	select {
	case slot.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-slot.ch
				sl.release(sessionID, slot)
			})
		}, nil
	case <-ctx.Done():
		sl.release(sessionID, slot)
		return nil, fmt.Errorf("session lock: %w", ctx.Err())
	}
}

func (sl *SessionLocker) release(sessionID string, slot *sessionSlot) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	slot.refCount--
	if slot.refCount == 0 {
		delete(sl.locks, sessionID)
	}
}

// ActiveCount returns the number of sessions with held or pending locks.
func (sl *SessionLocker) ActiveCount() int {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return len(sl.locks)
}
