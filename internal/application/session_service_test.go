package application_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/slot-reservations/internal/application"
	"github.com/example/slot-reservations/internal/persistence"
	"github.com/example/slot-reservations/internal/persistence/memory"
	"github.com/example/slot-reservations/internal/roster"
	"github.com/example/slot-reservations/internal/testfixtures"
)

func seed(t *testing.T, store persistence.Store, fixtures ...testfixtures.SessionFixture) {
	t.Helper()
	for _, fixture := range fixtures {
		require.NoError(t, store.PutSession(context.Background(), fixture.Persistence()))
	}
}

func TestGetSessionDetailsAppliesDefaults(t *testing.T) {
	store := memory.Open()
	created := time.Date(2025, time.June, 7, 18, 30, 0, 0, time.UTC)
	seed(t, store, testfixtures.SessionFixture{ID: "bare", CreatedAt: created})

	svc := application.NewSessionService(store, 0, 0, nil)
	details, err := svc.GetSessionDetails(context.Background(), "bare")
	require.NoError(t, err)

	assert.Equal(t, "Football Session", details.Event)
	assert.Equal(t, "Not specified", details.Time)
	assert.Equal(t, "2025-06-07", details.Date)
	assert.Equal(t, "active", details.Status)
	assert.Equal(t, roster.DefaultTeams(roster.DefaultSlotCapacity), details.Teams)

	team, ok := details.Team("Team B")
	require.True(t, ok)
	assert.Equal(t, 8, team.Capacity)
	_, ok = details.Team("Team Z")
	assert.False(t, ok)
}

func TestGetSessionDetailsDefaultCapacity(t *testing.T) {
	store := memory.Open()
	seed(t, store, testfixtures.NewSessionFixture(testfixtures.WithSessionID("s"), testfixtures.WithSessionTeams(`{"Keepers": null}`)))

	details, err := application.NewSessionService(store, 5, 0, nil).GetSessionDetails(context.Background(), "s")
	require.NoError(t, err)
	assert.Equal(t, []roster.TeamLayout{{Name: "Keepers", Capacity: 5}}, details.Teams)
}

func TestGetSessionDetailsErrors(t *testing.T) {
	store := &faultyStore{Store: memory.Open()}
	seed(t, store, testfixtures.NewSessionFixture(testfixtures.WithSessionID("broken"), testfixtures.WithSessionTeams(`{"Team A": -3}`)))
	svc := application.NewSessionService(store, 0, 0, nil)

	_, err := svc.GetSessionDetails(context.Background(), "absent")
	assert.ErrorIs(t, err, application.ErrNotFound)
	assert.Equal(t, "Session not found.", application.Message(err))

	_, err = svc.GetSessionDetails(context.Background(), "   ")
	assert.ErrorIs(t, err, application.ErrNotFound)

	_, err = svc.GetSessionDetails(context.Background(), "broken")
	assert.ErrorIs(t, err, application.ErrCatalogUnavailable)

	store.set(func(s *faultyStore) { s.getSessionErr = errors.New("catalog down") })
	_, err = svc.GetSessionDetails(context.Background(), "absent")
	var catalogErr *application.CatalogError
	require.ErrorAs(t, err, &catalogErr)
	assert.Equal(t, "get session", catalogErr.Op)
}

func TestGetSessionDetailsCache(t *testing.T) {
	clock := testfixtures.NewClock(time.Time{})
	store := memory.Open()
	fixture := testfixtures.NewSessionFixture(testfixtures.WithSessionID("cached"))
	seed(t, store, fixture)

	svc := application.NewSessionService(store, 0, time.Minute, clock.NowFunc())
	first, err := svc.GetSessionDetails(context.Background(), "cached")
	require.NoError(t, err)

	fixture.Event = "Renamed"
	seed(t, store, fixture)

	second, err := svc.GetSessionDetails(context.Background(), "cached")
	require.NoError(t, err)
	assert.Equal(t, first.Event, second.Event, "cached details should be served within the TTL")

	clock.Advance(2 * time.Minute)
	third, err := svc.GetSessionDetails(context.Background(), "cached")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", third.Event)

	fixture.Event = "Renamed again"
	seed(t, store, fixture)
	svc.Invalidate("cached")
	fourth, err := svc.GetSessionDetails(context.Background(), "cached")
	require.NoError(t, err)
	assert.Equal(t, "Renamed again", fourth.Event)
}

func TestListActiveSessions(t *testing.T) {
	store := &faultyStore{Store: memory.Open()}
	seed(t, store,
		testfixtures.NewSessionFixture(testfixtures.WithSessionID("b"), testfixtures.WithSessionDate("2025-06-01")),
		testfixtures.NewSessionFixture(testfixtures.WithSessionID("a"), testfixtures.WithSessionDate("2025-06-01")),
		testfixtures.NewSessionFixture(testfixtures.WithSessionID("early"), testfixtures.WithSessionDate("2025-05-01")),
		testfixtures.NewSessionFixture(testfixtures.WithSessionID("closed"), testfixtures.WithSessionStatus("closed")),
		testfixtures.NewSessionFixture(testfixtures.WithSessionID("unset"), testfixtures.WithSessionStatus("")),
		testfixtures.NewSessionFixture(testfixtures.WithSessionID("malformed"), testfixtures.WithSessionTeams(`[{"name": ""}]`)),
	)
	svc := application.NewSessionService(store, 0, 0, nil)

	sessions, err := svc.ListActiveSessions(context.Background())
	require.NoError(t, err)
	ids := make([]string, 0, len(sessions))
	for _, session := range sessions {
		ids = append(ids, session.ID)
	}
	assert.Equal(t, []string{"early", "a", "b"}, ids)

	store.set(func(s *faultyStore) { s.Store = failingCatalog{s.Store} })
	_, err = svc.ListActiveSessions(context.Background())
	assert.ErrorIs(t, err, application.ErrCatalogUnavailable)
}

type failingCatalog struct {
	persistence.Store
}

func (failingCatalog) ListSessions(context.Context) ([]persistence.Session, error) {
	return nil, errors.New("catalog down")
}
