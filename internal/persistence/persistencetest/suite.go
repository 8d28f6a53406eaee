// Package persistencetest holds the behaviour every persistence backend must share.
package persistencetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/slot-reservations/internal/persistence"
)

// Opener returns a fresh, empty store for one test.
type Opener func(t *testing.T) persistence.Store

var reservedAt = time.Date(2025, 5, 10, 9, 30, 0, 0, time.UTC)

// Run exercises the catalog, profile, slot and pointer contracts.
func Run(t *testing.T, open Opener) {
	t.Helper()

	t.Run("sessions", func(t *testing.T) { testSessions(t, open(t)) })
	t.Run("profiles", func(t *testing.T) { testProfiles(t, open(t)) })
	t.Run("slot swap", func(t *testing.T) { testSlotSwap(t, open(t)) })
	t.Run("slot claim race", func(t *testing.T) { testSlotRace(t, open(t)) })
	t.Run("pointer swap", func(t *testing.T) { testPointerSwap(t, open(t)) })
	t.Run("pointer scopes", func(t *testing.T) { testPointerScopes(t, open(t)) })
}

func testSessions(t *testing.T, store persistence.Store) {
	ctx := context.Background()

	_, err := store.GetSession(ctx, "missing")
	require.ErrorIs(t, err, persistence.ErrNotFound)

	first := persistence.Session{
		ID:        "Sat-10-May",
		Event:     "Five a side",
		Date:      "2025-05-10",
		Time:      "10:00",
		Status:    "active",
		CreatedAt: reservedAt,
		Teams:     []byte(`{"Reds":{"slotCount":5},"Blues":5}`),
	}
	second := persistence.Session{ID: "Sun-11-May", Status: "inactive", CreatedAt: reservedAt}
	require.NoError(t, store.PutSession(ctx, first))
	require.NoError(t, store.PutSession(ctx, second))

	got, err := store.GetSession(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Event, got.Event)
	assert.Equal(t, first.Date, got.Date)
	assert.Equal(t, first.Time, got.Time)
	assert.Equal(t, first.Status, got.Status)
	assert.True(t, first.CreatedAt.Equal(got.CreatedAt), "created at %v", got.CreatedAt)
	assert.JSONEq(t, string(first.Teams), string(got.Teams))

	first.Event = "Seven a side"
	require.NoError(t, store.PutSession(ctx, first))
	got, err = store.GetSession(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "Seven a side", got.Event)

	all, err := store.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	ids := []string{all[0].ID, all[1].ID}
	assert.ElementsMatch(t, []string{"Sat-10-May", "Sun-11-May"}, ids)
}

func testProfiles(t *testing.T, store persistence.Store) {
	ctx := context.Background()

	_, err := store.GetProfile(ctx, "u1")
	require.ErrorIs(t, err, persistence.ErrNotFound)

	require.NoError(t, store.PutProfile(ctx, persistence.Profile{UserID: "u1", Name: "Ana", Email: "ana@example.com"}))
	profile, err := store.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ana", profile.Name)
	assert.Equal(t, "ana@example.com", profile.Email)
}

func testSlotSwap(t *testing.T, store persistence.Store) {
	ctx := context.Background()
	key := persistence.SlotKey{SessionID: "s1", Team: "Team A", Index: 2}
	ana := &persistence.Occupant{UserID: "ana", DisplayName: "Ana", ReservedAt: reservedAt}
	ben := &persistence.Occupant{UserID: "ben", DisplayName: "Ben", ReservedAt: reservedAt}

	require.NoError(t, store.SwapSlot(ctx, key, nil, ana))
	require.ErrorIs(t, store.SwapSlot(ctx, key, nil, ben), persistence.ErrConditionFailed)
	require.ErrorIs(t, store.SwapSlot(ctx, key, ben, nil), persistence.ErrConditionFailed)

	other := persistence.SlotKey{SessionID: "s1", Team: "Team B", Index: 0}
	require.NoError(t, store.SwapSlot(ctx, other, nil, ben))
	require.NoError(t, store.SwapSlot(ctx, persistence.SlotKey{SessionID: "s2", Team: "Team A", Index: 2}, nil, ben))

	records, err := store.ListSlots(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	byKey := map[persistence.SlotKey]persistence.Occupant{}
	for _, record := range records {
		byKey[record.Key] = record.Occupant
	}
	assert.Equal(t, "ana", byKey[key].UserID)
	assert.Equal(t, "Ana", byKey[key].DisplayName)
	assert.True(t, reservedAt.Equal(byKey[key].ReservedAt))
	assert.Equal(t, "ben", byKey[other].UserID)

	renamed := &persistence.Occupant{UserID: "ana", DisplayName: "Ana B", ReservedAt: reservedAt}
	require.NoError(t, store.SwapSlot(ctx, key, ana, renamed))

	require.NoError(t, store.SwapSlot(ctx, key, ana, nil))
	require.ErrorIs(t, store.SwapSlot(ctx, key, ana, nil), persistence.ErrConditionFailed)

	records, err = store.ListSlots(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, records, 1)

	empty, err := store.ListSlots(ctx, "nothing-here")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func testSlotRace(t *testing.T, store persistence.Store) {
	ctx := context.Background()
	key := persistence.SlotKey{SessionID: "race", Team: "Team A", Index: 0}

	const contenders = 12
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
		others  []error
	)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			userID := fmt.Sprintf("user-%d", i)
			err := store.SwapSlot(ctx, key, nil, &persistence.Occupant{UserID: userID, ReservedAt: reservedAt})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				winners = append(winners, userID)
				return
			}
			others = append(others, err)
		}(i)
	}
	wg.Wait()

	require.Len(t, winners, 1)
	for _, err := range others {
		assert.True(t, errors.Is(err, persistence.ErrConditionFailed), "unexpected error %v", err)
	}

	records, err := store.ListSlots(ctx, "race")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, winners[0], records[0].Occupant.UserID)
}

func testPointerSwap(t *testing.T, store persistence.Store) {
	ctx := context.Background()
	key := persistence.PointerKey{UserID: "ana"}

	_, err := store.GetPointer(ctx, key)
	require.ErrorIs(t, err, persistence.ErrNotFound)

	first := &persistence.Pointer{SessionID: "s1", Team: "Team A", SlotIndex: 1, SessionLabel: "Five a side", DisplayName: "Ana", ReservedAt: reservedAt}
	second := &persistence.Pointer{SessionID: "s1", Team: "Team B", SlotIndex: 0, SessionLabel: "Five a side", DisplayName: "Ana", ReservedAt: reservedAt}

	require.NoError(t, store.SwapPointer(ctx, key, nil, first))
	require.ErrorIs(t, store.SwapPointer(ctx, key, nil, second), persistence.ErrConditionFailed)

	got, err := store.GetPointer(ctx, key)
	require.NoError(t, err)
	assert.True(t, got.SameSlot(*first))
	assert.Equal(t, "Five a side", got.SessionLabel)
	assert.Equal(t, "Ana", got.DisplayName)
	assert.True(t, reservedAt.Equal(got.ReservedAt))

	require.ErrorIs(t, store.SwapPointer(ctx, key, second, nil), persistence.ErrConditionFailed)

	// Display metadata does not take part in the comparison.
	relabelled := *first
	relabelled.SessionLabel = "renamed"
	require.NoError(t, store.SwapPointer(ctx, key, &relabelled, second))

	got, err = store.GetPointer(ctx, key)
	require.NoError(t, err)
	assert.True(t, got.SameSlot(*second))

	require.NoError(t, store.SwapPointer(ctx, key, second, nil))
	_, err = store.GetPointer(ctx, key)
	require.ErrorIs(t, err, persistence.ErrNotFound)
	require.ErrorIs(t, store.SwapPointer(ctx, key, second, nil), persistence.ErrConditionFailed)
}

func testPointerScopes(t *testing.T, store persistence.Store) {
	ctx := context.Background()
	global := persistence.PointerKey{UserID: "ana"}
	scoped := persistence.PointerKey{UserID: "ana", SessionID: "s2"}

	require.NoError(t, store.SwapPointer(ctx, global, nil, &persistence.Pointer{SessionID: "s1", Team: "Team A"}))
	require.NoError(t, store.SwapPointer(ctx, scoped, nil, &persistence.Pointer{SessionID: "s2", Team: "Team C", SlotIndex: 3}))

	got, err := store.GetPointer(ctx, global)
	require.NoError(t, err)
	assert.Equal(t, "s1", got.SessionID)

	got, err = store.GetPointer(ctx, scoped)
	require.NoError(t, err)
	assert.Equal(t, "Team C", got.Team)

	_, err = store.GetPointer(ctx, persistence.PointerKey{UserID: "ben"})
	require.ErrorIs(t, err, persistence.ErrNotFound)
}
