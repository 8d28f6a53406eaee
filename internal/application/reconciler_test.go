package application_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/slot-reservations/internal/application"
	"github.com/example/slot-reservations/internal/persistence"
	"github.com/example/slot-reservations/internal/testfixtures"
)

func TestReconcileRemovesDuplicateOccupancy(t *testing.T) {
	f := newFixture(t, "")
	user := f.NewUser(t, "")
	f.Occupy(t, f.session.ID, "Team B", 4, user.UserID)
	f.Occupy(t, f.session.ID, "Team A", 0, user.UserID)

	view := f.Load(t, user, f.session.ID)
	assert.True(t, view.Consistent)
	require.NotNil(t, view.Current)
	assert.Equal(t, "Team A", view.Current.Team)
	assert.Equal(t, 0, view.Current.SlotIndex)
	assert.Zero(t, findTeam(t, view, "Team B").Occupied)

	assert.Equal(t, map[persistence.SlotKey]string{slotKey(f.session.ID, "Team A", 0): user.UserID}, f.Slots(t, f.session.ID))
	pointer, err := f.pointer(t, user.UserID)
	require.NoError(t, err)
	assert.Equal(t, "Team A", pointer.Team)
	assert.Equal(t, 0, pointer.SlotIndex)
	assert.Contains(t, f.events.types(), application.SlotRepaired)
}

func TestReconcileIsIdempotent(t *testing.T) {
	f := newFixture(t, "")
	user := f.NewUser(t, "")
	f.Occupy(t, f.session.ID, "Team A", 2, user.UserID)
	f.Occupy(t, f.session.ID, "Team B", 0, user.UserID)

	first := f.Load(t, user, f.session.ID)
	writes := f.store.writes()
	second := f.Load(t, user, f.session.ID)

	assert.Equal(t, writes, f.store.writes(), "a settled session should not be written again")
	assert.Equal(t, first.Teams, second.Teams)
	assert.Equal(t, first.Current, second.Current)
	assert.Equal(t, first.Pointer, second.Pointer)
}

func TestReconcileDeletesStalePointer(t *testing.T) {
	f := newFixture(t, "")
	user := f.NewUser(t, "")
	f.PlacePointer(t, persistence.PointerKey{UserID: user.UserID}, persistence.Pointer{
		SessionID: f.session.ID,
		Team:      "Team A",
		SlotIndex: 0,
	})

	view := f.Load(t, user, f.session.ID)
	assert.True(t, view.Consistent)
	assert.Nil(t, view.Current)
	assert.Nil(t, view.Pointer)
	_, err := f.pointer(t, user.UserID)
	assert.ErrorIs(t, err, persistence.ErrNotFound)
}

func TestReconcilePointerRepairs(t *testing.T) {
	t.Run("pointer naming another slot is overwritten", func(t *testing.T) {
		f := newFixture(t, "")
		user := f.NewUser(t, "")
		f.Occupy(t, f.session.ID, "Team B", 1, user.UserID)
		f.PlacePointer(t, persistence.PointerKey{UserID: user.UserID}, persistence.Pointer{SessionID: f.session.ID, Team: "Team A", SlotIndex: 2})

		f.Load(t, user, f.session.ID)
		pointer, err := f.pointer(t, user.UserID)
		require.NoError(t, err)
		assert.Equal(t, "Team B", pointer.Team)
		assert.Equal(t, 1, pointer.SlotIndex)
	})

	t.Run("pointer for another session is kept without a slot here", func(t *testing.T) {
		f := newFixture(t, "")
		user := f.NewUser(t, "")
		elsewhere := persistence.Pointer{SessionID: "other-session", Team: "Team A", SlotIndex: 1}
		f.PlacePointer(t, persistence.PointerKey{UserID: user.UserID}, elsewhere)

		view := f.Load(t, user, f.session.ID)
		assert.Nil(t, view.Current)
		require.NotNil(t, view.Pointer)
		assert.Equal(t, "other-session", view.Pointer.SessionID)
		pointer, err := f.pointer(t, user.UserID)
		require.NoError(t, err)
		assert.True(t, pointer.SameSlot(elsewhere))
	})

	t.Run("pointer for another session is replaced by a slot here", func(t *testing.T) {
		f := newFixture(t, "")
		user := f.NewUser(t, "")
		f.Occupy(t, f.session.ID, "Team A", 1, user.UserID)
		f.PlacePointer(t, persistence.PointerKey{UserID: user.UserID}, persistence.Pointer{SessionID: "other-session", Team: "Team A", SlotIndex: 1})

		view := f.Load(t, user, f.session.ID)
		require.NotNil(t, view.Pointer)
		assert.Equal(t, f.session.ID, view.Pointer.SessionID)
	})
}

func TestReconcileFailedRepairMarksViewInconsistent(t *testing.T) {
	f := newFixture(t, "")
	user := f.NewUser(t, "")
	f.Occupy(t, f.session.ID, "Team A", 0, user.UserID)
	f.Occupy(t, f.session.ID, "Team B", 0, user.UserID)

	f.store.set(func(s *faultyStore) { s.swapSlotErr = errors.New("slot store down") })
	view, err := f.Reconciler.Reconcile(context.Background(), user, f.session.ID)
	require.NoError(t, err)
	assert.False(t, view.Consistent)

	_, err = f.Coordinator.Reserve(context.Background(), view, "Team A", 1)
	assert.ErrorIs(t, err, application.ErrStoreUnavailable)
}

func TestReconcileDisplayName(t *testing.T) {
	f := newFixture(t, "")

	withProfile := f.NewUser(t, "Profile Name")
	assert.Equal(t, "Profile Name", f.Load(t, withProfile, f.session.ID).DisplayName)

	identityOnly := f.NewUser(t, "")
	assert.Equal(t, identityOnly.DisplayName, f.Load(t, identityOnly, f.session.ID).DisplayName)

	anonymous := testfixtures.NewUserFixture(testfixtures.WithUserDisplayName("")).Principal()
	assert.Equal(t, "Guest", f.Load(t, anonymous, f.session.ID).DisplayName)

	f.store.set(func(s *faultyStore) { s.getProfileErr = errors.New("directory down") })
	assert.Equal(t, withProfile.DisplayName, f.Load(t, withProfile, f.session.ID).DisplayName)
}

func TestReconcileErrors(t *testing.T) {
	f := newFixture(t, "")
	user := f.NewUser(t, "")

	_, err := f.Reconciler.Reconcile(context.Background(), user, "missing")
	assert.ErrorIs(t, err, application.ErrNotFound)

	_, err = f.Reconciler.Reconcile(context.Background(), application.Principal{}, f.session.ID)
	assert.Error(t, err)

	cases := map[string]struct {
		inject func(*faultyStore)
		want   error
	}{
		"catalog": {func(s *faultyStore) { s.getSessionErr = errors.New("catalog down") }, application.ErrCatalogUnavailable},
		"slots":   {func(s *faultyStore) { s.listSlotsErr = errors.New("slots down") }, application.ErrStoreUnavailable},
		"pointer": {func(s *faultyStore) { s.getPointerErr = errors.New("pointer down") }, application.ErrStoreUnavailable},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, "")
			f.store.set(tc.inject)
			_, err := f.Reconciler.Reconcile(context.Background(), user, f.session.ID)
			assert.ErrorIs(t, err, tc.want)
			assert.True(t, application.Retryable(err))
		})
	}
}

func TestReconcileNormalizesSessionKey(t *testing.T) {
	f := newFixture(t, "")
	session := f.SeedSession(t, testfixtures.NewSessionFixture(testfixtures.WithSessionID("Sat-10-May")))
	user := f.NewUser(t, "")

	view := f.Load(t, user, "Sat 10  May")
	assert.Equal(t, session.ID, view.Session.ID)

	_, err := f.Coordinator.Reserve(context.Background(), view, "Team A", 0)
	require.NoError(t, err)
	assert.Len(t, f.Slots(t, "Sat-10-May"), 1)
}

func TestReconcileSessionStoredWithWhitespace(t *testing.T) {
	f := newFixture(t, "")
	f.SeedSession(t, testfixtures.NewSessionFixture(
		testfixtures.WithSessionID("Sat 10 May"),
		testfixtures.WithSessionDate("2000-01-01"),
	))
	user := f.NewUser(t, "")

	listed, err := f.Sessions.ListActiveSessions(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, listed)
	assert.Equal(t, "Sat 10 May", listed[0].ID)
	assert.Equal(t, "Sat-10-May", listed[0].Key)

	for _, id := range []string{listed[0].ID, listed[0].Key} {
		f.Sessions.Invalidate(id)
		view := f.Load(t, user, id)
		assert.Equal(t, "Sat 10 May", view.Session.ID, "loaded as %q", id)
		assert.Equal(t, "Sat-10-May", view.Session.Key, "loaded as %q", id)
	}

	view := f.Load(t, user, "Sat 10 May")
	reservation, err := f.Coordinator.Reserve(context.Background(), view, "Team A", 0)
	require.NoError(t, err)
	assert.Equal(t, "Sat-10-May", reservation.SessionID)
	assert.Equal(t, map[persistence.SlotKey]string{slotKey("Sat-10-May", "Team A", 0): user.UserID}, f.Slots(t, "Sat-10-May"))

	reloaded := f.Load(t, user, "Sat-10-May")
	require.NotNil(t, reloaded.Current)
	assert.True(t, reloaded.Consistent)
}

func TestReconcileRejectsOversizedTeams(t *testing.T) {
	f := newFixture(t, "")
	for id, teams := range map[string]string{
		"huge":     `{"Team A": 4611686018427387904}`,
		"huge-key": `{"Team A": {"slots": {"2000000": null}}}`,
	} {
		f.SeedSession(t, testfixtures.NewSessionFixture(testfixtures.WithSessionID(id), testfixtures.WithSessionTeams(teams)))

		var err error
		require.NotPanics(t, func() {
			_, err = f.Reconciler.Reconcile(context.Background(), f.NewUser(t, ""), id)
		})
		assert.ErrorIs(t, err, application.ErrCatalogUnavailable, "session %s", id)
	}
}

func TestReconcileIgnoresSlotsOutsideLayout(t *testing.T) {
	f := newFixture(t, "")
	f.Occupy(t, f.session.ID, "Team Z", 0, "someone")
	f.Occupy(t, f.session.ID, "Team A", 7, "someone")

	view := f.Load(t, f.NewUser(t, ""), f.session.ID)
	require.Len(t, view.Teams, 2)
	assert.Zero(t, findTeam(t, view, "Team A").Occupied)
}
