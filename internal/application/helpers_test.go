package application_test

import (
	"context"
	"sync"
	"time"

	"github.com/example/slot-reservations/internal/application"
	"github.com/example/slot-reservations/internal/persistence"
)

// faultyStore wraps a store and fails selected operations.
type faultyStore struct {
	persistence.Store

	mu             sync.Mutex
	listSlotsErr   error
	getPointerErr  error
	swapSlotErr    error
	swapPointerErr error
	getSessionErr  error
	getProfileErr  error
	swapSlotCalls  int
	swapPtrCalls   int
	// beforePointerSwap runs once before the next SwapPointer.
	beforePointerSwap func()
}

func (f *faultyStore) set(fn func(*faultyStore)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *faultyStore) GetSession(ctx context.Context, id string) (persistence.Session, error) {
	f.mu.Lock()
	err := f.getSessionErr
	f.mu.Unlock()
	if err != nil {
		return persistence.Session{}, err
	}
	return f.Store.GetSession(ctx, id)
}

func (f *faultyStore) ListSlots(ctx context.Context, sessionID string) ([]persistence.SlotRecord, error) {
	f.mu.Lock()
	err := f.listSlotsErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.Store.ListSlots(ctx, sessionID)
}

func (f *faultyStore) GetPointer(ctx context.Context, key persistence.PointerKey) (persistence.Pointer, error) {
	f.mu.Lock()
	err := f.getPointerErr
	f.mu.Unlock()
	if err != nil {
		return persistence.Pointer{}, err
	}
	return f.Store.GetPointer(ctx, key)
}

func (f *faultyStore) GetProfile(ctx context.Context, userID string) (persistence.Profile, error) {
	f.mu.Lock()
	err := f.getProfileErr
	f.mu.Unlock()
	if err != nil {
		return persistence.Profile{}, err
	}
	return f.Store.GetProfile(ctx, userID)
}

func (f *faultyStore) SwapSlot(ctx context.Context, key persistence.SlotKey, expected, next *persistence.Occupant) error {
	f.mu.Lock()
	f.swapSlotCalls++
	err := f.swapSlotErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Store.SwapSlot(ctx, key, expected, next)
}

func (f *faultyStore) SwapPointer(ctx context.Context, key persistence.PointerKey, expected, next *persistence.Pointer) error {
	f.mu.Lock()
	f.swapPtrCalls++
	err := f.swapPointerErr
	hook := f.beforePointerSwap
	f.beforePointerSwap = nil
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	if err != nil {
		return err
	}
	return f.Store.SwapPointer(ctx, key, expected, next)
}

func (f *faultyStore) writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.swapSlotCalls + f.swapPtrCalls
}

type eventLog struct {
	mu     sync.Mutex
	events []application.SlotEvent
}

func (l *eventLog) Publish(_ context.Context, event application.SlotEvent) {
	l.mu.Lock()
	l.events = append(l.events, event)
	l.mu.Unlock()
}

func (l *eventLog) types() []application.SlotEventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]application.SlotEventType, 0, len(l.events))
	for _, event := range l.events {
		out = append(out, event.Type)
	}
	return out
}

type operationLog struct {
	mu       sync.Mutex
	outcomes map[string][]string
}

func (l *operationLog) RecordOperation(_ context.Context, operation, outcome string, _ time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.outcomes == nil {
		l.outcomes = make(map[string][]string)
	}
	l.outcomes[operation] = append(l.outcomes[operation], outcome)
}

func (l *operationLog) get(operation string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.outcomes[operation]...)
}
