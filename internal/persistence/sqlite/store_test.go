package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/slot-reservations/internal/persistence"
	"github.com/example/slot-reservations/internal/persistence/persistencetest"
	"github.com/example/slot-reservations/internal/persistence/sqlite"
)

func openStore(t *testing.T, path string) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(context.Background(), sqlite.DefaultConfig(path), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreContract(t *testing.T) {
	persistencetest.Run(t, func(t *testing.T) persistence.Store {
		return openStore(t, filepath.Join(t.TempDir(), "reservations.db"))
	})
}

func TestStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "reservations.db")

	first, err := sqlite.Open(ctx, sqlite.DefaultConfig(path), nil)
	require.NoError(t, err)
	key := persistence.SlotKey{SessionID: "s1", Team: "Team A", Index: 0}
	require.NoError(t, first.SwapSlot(ctx, key, nil, &persistence.Occupant{UserID: "u1"}))
	require.NoError(t, first.Close())

	second := openStore(t, path)
	records, err := second.ListSlots(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "u1", records[0].Occupant.UserID)
}

func TestStoreInMemory(t *testing.T) {
	ctx := context.Background()
	store := openStore(t, ":memory:")

	require.NoError(t, store.PutSession(ctx, persistence.Session{ID: "s1", Status: "active"}))
	session, err := store.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, session.Teams)
	require.NoError(t, store.Ping(ctx))
}

func TestConfigValidate(t *testing.T) {
	cases := map[string]sqlite.Config{
		"empty path":       {},
		"negative timeout": {Path: "x.db", BusyTimeout: -1},
		"journal mode":     {Path: "x.db", JournalMode: "SIDEWAYS"},
		"synchronous":      {Path: "x.db", Synchronous: "SOMETIMES"},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, sqlite.DefaultConfig("x.db").Validate())
}
