package usecase

import (
	"context"
	"fmt"
	"sync"
)

// ConversationLocker serialises exchanges per conversation so that two
// messages from one user never answer against the same history snapshot.
type ConversationLocker struct {
	mu    sync.Mutex
	slots map[string]*conversationSlot
}

type conversationSlot struct {
	sem  chan struct{}
	refs int
}

// NewConversationLocker creates an empty locker.
func NewConversationLocker() *ConversationLocker {
	return &ConversationLocker{slots: make(map[string]*conversationSlot)}
}

// Lock blocks until the conversation of ownerID is free or ctx is done.
// The returned unlock function must be called exactly once.
func (l *ConversationLocker) Lock(ctx context.Context, ownerID string) (unlock func(), err error) {
	l.mu.Lock()
	slot, ok := l.slots[ownerID]
	if !ok {
		slot = &conversationSlot{sem: make(chan struct{}, 1)}
		l.slots[ownerID] = slot
	}
	slot.refs++
	l.mu.Unlock()

	select {
	case slot.sem <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-slot.sem
				l.release(ownerID, slot)
			})
		}, nil
	case <-ctx.Done():
		l.release(ownerID, slot)
		return nil, fmt.Errorf("conversation lock: %w", ctx.Err())
	}
}

func (l *ConversationLocker) release(ownerID string, slot *conversationSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, ownerID)
	}
}

// Active returns the number of conversations with held or pending locks.
func (l *ConversationLocker) Active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
